package motion

import (
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentryview/sentryview/internal/capture"
	"github.com/sentryview/sentryview/internal/data"
)

// grayFrame builds a uniform gray frame with an optional bright square
// painted at (bx, by).
func grayFrame(cam uuid.UUID, at time.Time, bright bool, bx, by int) capture.Frame {
	img := image.NewGray(image.Rect(0, 0, 100, 100))
	for i := range img.Pix {
		img.Pix[i] = 40
	}
	if bright {
		for y := by; y < by+30 && y < 100; y++ {
			for x := bx; x < bx+30 && x < 100; x++ {
				img.SetGray(x, y, color.Gray{Y: 220})
			}
		}
	}
	return capture.Frame{CameraID: cam, CapturedAt: at, Image: img, JPEG: []byte{0xff, 0xd8}}
}

func testCamera(cfg data.DetectionConfig) *data.Camera {
	return &data.Camera{
		ID:        uuid.New(),
		Name:      "front-door",
		Kind:      data.SourceRTSP,
		Detection: cfg,
	}
}

func TestDetectorEmitsOnMotion(t *testing.T) {
	cam := testCamera(data.DetectionConfig{Algorithm: AlgorithmDiff, MinAreaPercent: 1})
	d, err := New(cam)
	require.NoError(t, err)
	defer d.Close()

	at := time.Now()
	// First frame only seeds the model.
	assert.Nil(t, d.Process(grayFrame(cam.ID, at, false, 0, 0)))

	det := d.Process(grayFrame(cam.ID, at.Add(time.Second), true, 10, 10))
	require.NotNil(t, det)
	assert.Equal(t, cam.ID, det.CameraID)
	assert.Equal(t, data.DetectionMotion, det.Kind)
	assert.Greater(t, det.AreaPercent, 1.0)
	require.NotNil(t, det.Region)
	assert.InDelta(t, 0.25, det.Region.CenterX(), 0.05)
	require.Len(t, det.Frames, 1)
}

func TestDetectorIgnoresSmallMotion(t *testing.T) {
	cam := testCamera(data.DetectionConfig{Algorithm: AlgorithmDiff, MinAreaPercent: 50})
	d, err := New(cam)
	require.NoError(t, err)
	defer d.Close()

	at := time.Now()
	d.Process(grayFrame(cam.ID, at, false, 0, 0))
	// 9% of the frame changes, below the 50% threshold.
	assert.Nil(t, d.Process(grayFrame(cam.ID, at.Add(time.Second), true, 10, 10)))
}

func TestDetectorZoneGating(t *testing.T) {
	cam := testCamera(data.DetectionConfig{
		Algorithm:      AlgorithmDiff,
		MinAreaPercent: 1,
		Zones: []data.Zone{
			{Name: "far corner", Enabled: true, Points: square(0.7, 0.7, 1.0, 1.0)},
		},
	})
	d, err := New(cam)
	require.NoError(t, err)
	defer d.Close()

	at := time.Now()
	d.Process(grayFrame(cam.ID, at, false, 0, 0))
	// Motion centroid near (0.25, 0.25), outside the only enabled zone.
	assert.Nil(t, d.Process(grayFrame(cam.ID, at.Add(time.Second), true, 10, 10)))
}

func TestDetectorCooldown(t *testing.T) {
	cam := testCamera(data.DetectionConfig{Algorithm: AlgorithmDiff, MinAreaPercent: 1, CooldownSeconds: 30})
	d, err := New(cam)
	require.NoError(t, err)
	defer d.Close()

	base := time.Now()
	clock := base
	d.now = func() time.Time { return clock }

	d.Process(grayFrame(cam.ID, base, false, 0, 0))
	require.NotNil(t, d.Process(grayFrame(cam.ID, base.Add(time.Second), true, 10, 10)))

	// Motion again inside the cooldown window is suppressed.
	clock = base.Add(10 * time.Second)
	assert.Nil(t, d.Process(grayFrame(cam.ID, clock, true, 40, 40)))

	// After the cooldown it emits again.
	clock = base.Add(31 * time.Second)
	assert.NotNil(t, d.Process(grayFrame(cam.ID, clock, true, 10, 10)))
}

func TestScheduleAllows(t *testing.T) {
	midday := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC) // Wednesday
	night := time.Date(2026, 3, 4, 23, 30, 0, 0, time.UTC)
	predawn := time.Date(2026, 3, 5, 4, 0, 0, 0, time.UTC) // Thursday

	tests := []struct {
		name string
		s    *data.Schedule
		t    time.Time
		want bool
	}{
		{"no schedule", nil, midday, true},
		{"inside window", &data.Schedule{Start: "09:00", End: "17:00"}, midday, true},
		{"outside window", &data.Schedule{Start: "09:00", End: "17:00"}, night, false},
		{"overnight window late", &data.Schedule{Start: "22:00", End: "06:00"}, night, true},
		{"overnight window early", &data.Schedule{Start: "22:00", End: "06:00"}, predawn, true},
		{"overnight window midday", &data.Schedule{Start: "22:00", End: "06:00"}, midday, false},
		{"wrong day", &data.Schedule{Start: "09:00", End: "17:00", Days: []int{int(time.Saturday)}}, midday, false},
		{"right day", &data.Schedule{Start: "09:00", End: "17:00", Days: []int{int(time.Wednesday)}}, midday, true},
		{"bad clock falls open", &data.Schedule{Start: "nope", End: "17:00"}, night, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, scheduleAllows(tt.s, tt.t))
		})
	}
}

func TestNewSubtractorUnknownAlgorithm(t *testing.T) {
	_, err := NewSubtractor("sorcery")
	assert.Error(t, err)
}
