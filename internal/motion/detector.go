package motion

import (
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/sentryview/sentryview/internal/capture"
	"github.com/sentryview/sentryview/internal/data"
)

// MotionDetector is the stateful per-camera frame stage. One instance per
// capture session; the background model restarts with the connection.
type MotionDetector struct {
	cam data.Camera
	sub Subtractor

	lastEmit time.Time
	now      func() time.Time
}

func New(cam *data.Camera) (*MotionDetector, error) {
	sub, err := NewSubtractor(cam.Detection.Algorithm)
	if err != nil {
		return nil, err
	}
	return &MotionDetector{cam: *cam, sub: sub, now: time.Now}, nil
}

// Process runs one frame through the background model and gates the result
// on area threshold, zone containment, schedule, and per-camera cooldown.
// Returns nil when the frame does not qualify.
func (d *MotionDetector) Process(f capture.Frame) *data.RawDetection {
	now := d.now()

	if !scheduleAllows(d.cam.Detection.Schedule, now) {
		return nil
	}

	regions, areaPct := d.sub.Apply(f)
	if len(regions) == 0 || areaPct < d.cam.Detection.MinAreaPercent {
		return nil
	}

	region := largestRegion(regions)
	if !zoneAllows(d.cam.Detection.Zones, region.CenterX(), region.CenterY()) {
		return nil
	}

	cooldown := time.Duration(d.cam.Detection.CooldownSeconds) * time.Second
	if !d.lastEmit.IsZero() && now.Sub(d.lastEmit) < cooldown {
		return nil
	}
	d.lastEmit = now

	det := &data.RawDetection{
		ID:           uuid.New(),
		CameraID:     d.cam.ID,
		Kind:         data.DetectionMotion,
		OccurredAt:   f.CapturedAt,
		AreaPercent:  areaPct,
		Region:       &region,
		AnalysisMode: d.cam.Detection.AnalysisMode,
	}
	if len(f.JPEG) > 0 {
		det.Frames = [][]byte{f.JPEG}
	}
	return det
}

func (d *MotionDetector) Close() error { return d.sub.Close() }

func largestRegion(regions []data.Region) data.Region {
	best := regions[0]
	for _, r := range regions[1:] {
		if r.W*r.H > best.W*best.H {
			best = r
		}
	}
	return best
}

// scheduleAllows checks the camera's detection schedule. A window may cross
// midnight ("22:00" to "06:00"). No schedule means always on.
func scheduleAllows(s *data.Schedule, t time.Time) bool {
	if s == nil || s.Start == "" || s.End == "" {
		return true
	}

	if len(s.Days) > 0 {
		match := false
		for _, d := range s.Days {
			if time.Weekday(d) == t.Weekday() {
				match = true
				break
			}
		}
		if !match {
			return false
		}
	}

	start, okS := parseClock(s.Start)
	end, okE := parseClock(s.End)
	if !okS || !okE {
		return true
	}

	minutes := t.Hour()*60 + t.Minute()
	if start <= end {
		return minutes >= start && minutes < end
	}
	// Crosses midnight.
	return minutes >= start || minutes < end
}

func parseClock(v string) (int, bool) {
	if len(v) != 5 || v[2] != ':' {
		return 0, false
	}
	h, err1 := strconv.Atoi(v[:2])
	m, err2 := strconv.Atoi(v[3:])
	if err1 != nil || err2 != nil || h > 23 || m > 59 {
		return 0, false
	}
	return h*60 + m, true
}
