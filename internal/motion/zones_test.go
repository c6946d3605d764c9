package motion

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sentryview/sentryview/internal/data"
)

func square(x0, y0, x1, y1 float64) []data.Point {
	return []data.Point{{X: x0, Y: y0}, {X: x1, Y: y0}, {X: x1, Y: y1}, {X: x0, Y: y1}}
}

func TestPointInPolygon(t *testing.T) {
	poly := square(0.2, 0.2, 0.8, 0.8)

	tests := []struct {
		name string
		x, y float64
		want bool
	}{
		{"center", 0.5, 0.5, true},
		{"outside left", 0.1, 0.5, false},
		{"outside below", 0.5, 0.9, false},
		{"near corner inside", 0.21, 0.21, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, pointInPolygon(tt.x, tt.y, poly))
		})
	}
}

func TestZoneAllowsNoZonesConfigured(t *testing.T) {
	assert.True(t, zoneAllows(nil, 0.5, 0.5))
}

func TestZoneAllowsDisabledZonesIgnored(t *testing.T) {
	zones := []data.Zone{
		{Name: "porch", Enabled: false, Points: square(0, 0, 0.1, 0.1)},
	}
	// Only disabled zones configured behaves like no zones at all.
	assert.True(t, zoneAllows(zones, 0.9, 0.9))
}

func TestZoneAllowsEnabledZoneGates(t *testing.T) {
	zones := []data.Zone{
		{Name: "driveway", Enabled: true, Points: square(0.0, 0.0, 0.5, 0.5)},
	}
	assert.True(t, zoneAllows(zones, 0.25, 0.25))
	assert.False(t, zoneAllows(zones, 0.75, 0.75))
}

func TestZoneAllowsAnyOfMultiple(t *testing.T) {
	zones := []data.Zone{
		{Name: "driveway", Enabled: true, Points: square(0.0, 0.0, 0.3, 0.3)},
		{Name: "walkway", Enabled: true, Points: square(0.6, 0.6, 0.9, 0.9)},
	}
	assert.True(t, zoneAllows(zones, 0.7, 0.7))
	assert.False(t, zoneAllows(zones, 0.5, 0.5))
}

func TestZoneWithTooFewPointsIgnored(t *testing.T) {
	zones := []data.Zone{
		{Name: "broken", Enabled: true, Points: []data.Point{{X: 0, Y: 0}, {X: 1, Y: 1}}},
	}
	assert.True(t, zoneAllows(zones, 0.5, 0.5))
}
