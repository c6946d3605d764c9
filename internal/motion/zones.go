package motion

import "github.com/sentryview/sentryview/internal/data"

// zoneAllows reports whether the point (the motion bounding box centroid)
// falls inside at least one enabled zone. With no enabled zones configured,
// any region qualifies.
func zoneAllows(zones []data.Zone, x, y float64) bool {
	anyEnabled := false
	for _, z := range zones {
		if !z.Enabled || len(z.Points) < 3 {
			continue
		}
		anyEnabled = true
		if pointInPolygon(x, y, z.Points) {
			return true
		}
	}
	return !anyEnabled
}

// pointInPolygon is the standard ray-casting containment test over a
// polygon in normalized [0,1] coordinates.
func pointInPolygon(x, y float64, poly []data.Point) bool {
	inside := false
	n := len(poly)
	j := n - 1
	for i := 0; i < n; i++ {
		pi, pj := poly[i], poly[j]
		if (pi.Y > y) != (pj.Y > y) &&
			x < (pj.X-pi.X)*(y-pi.Y)/(pj.Y-pi.Y)+pi.X {
			inside = !inside
		}
		j = i
	}
	return inside
}
