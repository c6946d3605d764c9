package capture

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sentryview/sentryview/internal/data"
	"github.com/sentryview/sentryview/internal/metrics"
)

// Detector is the per-camera motion stage fed by a poll source. Implemented
// by internal/motion; faked in tests.
type Detector interface {
	Process(f Frame) *data.RawDetection
	Close() error
}

// DetectorFactory builds a fresh detector per capture session, so the
// background model restarts with the connection.
type DetectorFactory func(cam *data.Camera) (Detector, error)

// DetectionSink accepts raw detections for analysis. Submit never blocks;
// a false return means the backpressure policy rejected the item.
type DetectionSink interface {
	Submit(det *data.RawDetection) bool
}

// StatusSink receives camera status transitions.
type StatusSink func(change StatusChange)

// cameraStatusStore is the slice of the persistence collaborator the
// manager needs.
type cameraStatusStore interface {
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
}

// BackoffConfig bounds reconnect behavior. After MaxAttempts consecutive
// failures the camera is surfaced as offline; retries continue at Max.
type BackoffConfig struct {
	Base        time.Duration
	Max         time.Duration
	MaxAttempts int
}

func (c *BackoffConfig) defaults() {
	if c.Base <= 0 {
		c.Base = time.Second
	}
	if c.Max <= 0 {
		c.Max = 60 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
}

// Manager owns one long-lived capture unit per enabled camera. Units are
// independent: a camera failing, reconnecting, or being disabled never
// touches another camera's unit.
type Manager struct {
	factory     SourceFactory
	newDetector DetectorFactory
	sink        DetectionSink
	status      StatusSink
	store       cameraStatusStore
	backoff     BackoffConfig

	mu      sync.Mutex
	runners map[uuid.UUID]*runner
	wg      sync.WaitGroup
}

type runner struct {
	cancel context.CancelFunc
	done   chan struct{}

	lastStatus string
}

func NewManager(factory SourceFactory, newDetector DetectorFactory, sink DetectionSink, status StatusSink, store cameraStatusStore, backoff BackoffConfig) *Manager {
	backoff.defaults()
	return &Manager{
		factory:     factory,
		newDetector: newDetector,
		sink:        sink,
		status:      status,
		store:       store,
		backoff:     backoff,
		runners:     make(map[uuid.UUID]*runner),
	}
}

// StartCamera launches (or relaunches) the capture unit for a camera.
func (m *Manager) StartCamera(ctx context.Context, cam *data.Camera) {
	m.StopCamera(cam.ID)

	runCtx, cancel := context.WithCancel(ctx)
	r := &runner{cancel: cancel, done: make(chan struct{})}

	m.mu.Lock()
	m.runners[cam.ID] = r
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer close(r.done)
		m.run(runCtx, *cam, r)
	}()
}

// StopCamera terminates a camera's unit and waits for it to exit. Called on
// disable/delete; other units are unaffected.
func (m *Manager) StopCamera(id uuid.UUID) {
	m.mu.Lock()
	r, ok := m.runners[id]
	if ok {
		delete(m.runners, id)
	}
	m.mu.Unlock()

	if ok {
		r.cancel()
		<-r.done
	}
}

// Running reports whether a camera currently owns a capture unit.
func (m *Manager) Running(id uuid.UUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.runners[id]
	return ok
}

// Shutdown cancels every unit and waits up to grace for them to drain.
func (m *Manager) Shutdown(grace time.Duration) {
	m.mu.Lock()
	for id, r := range m.runners {
		r.cancel()
		delete(m.runners, id)
	}
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(grace):
		log.Printf("[Capture] shutdown grace of %s elapsed, abandoning remaining units", grace)
	}
}

func (m *Manager) run(ctx context.Context, cam data.Camera, r *runner) {
	attempts := 0

	for ctx.Err() == nil {
		src, err := m.factory(&cam)
		if err != nil {
			// Configuration problem; retrying cannot fix it.
			log.Printf("[Capture] camera %s (%s): %v", cam.Name, cam.ID, err)
			m.setStatus(&cam, r, data.CameraStatusOffline, err.Error())
			return
		}

		m.setStatus(&cam, r, data.CameraStatusConnecting, "")
		if err := src.Open(ctx); err != nil {
			attempts++
			metrics.CaptureReconnectsTotal.WithLabelValues("fail").Inc()
			if attempts == m.backoff.MaxAttempts {
				log.Printf("[Capture] camera %s (%s): unreachable after %d attempts: %v", cam.Name, cam.ID, attempts, err)
				m.setStatus(&cam, r, data.CameraStatusOffline, "unreachable")
			}
			if !m.sleep(ctx, m.backoffDelay(attempts)) {
				return
			}
			continue
		}

		attempts = 0
		metrics.CaptureReconnectsTotal.WithLabelValues("ok").Inc()
		m.setStatus(&cam, r, data.CameraStatusOnline, "")

		det, err := m.newDetector(&cam)
		if err != nil {
			log.Printf("[Capture] camera %s: detector init failed: %v", cam.ID, err)
			src.Close()
			return
		}

		m.consume(ctx, &cam, src, det)

		src.Close()
		det.Close()

		if ctx.Err() == nil {
			// Session died; backoff loop takes over.
			m.setStatus(&cam, r, data.CameraStatusConnecting, "reconnecting")
			if !m.sleep(ctx, m.backoffDelay(1)) {
				return
			}
		}
	}

	m.setStatus(&cam, r, data.CameraStatusOffline, "stopped")
}

// consume pumps one live session until its channels close or ctx ends.
func (m *Manager) consume(ctx context.Context, cam *data.Camera, src Source, det Detector) {
	frames := src.Frames()
	events := src.Events()

	for {
		select {
		case <-ctx.Done():
			return

		case f, ok := <-frames:
			if !ok {
				return
			}
			if d := det.Process(f); d != nil {
				if !m.sink.Submit(d) {
					log.Printf("[Capture] camera %s: detection rejected by queue backpressure", cam.ID)
				}
			}

		case d, ok := <-events:
			if !ok {
				return
			}
			if !m.sink.Submit(&d) {
				log.Printf("[Capture] camera %s: push detection rejected by queue backpressure", cam.ID)
			}
		}
	}
}

func (m *Manager) setStatus(cam *data.Camera, r *runner, status, reason string) {
	if r.lastStatus == status {
		return
	}
	r.lastStatus = status
	metrics.SetCameraStatus(cam.ID.String(), status)

	dbCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := m.store.UpdateStatus(dbCtx, cam.ID, status); err != nil && err != data.ErrRecordNotFound {
		log.Printf("[Capture] camera %s: status persist error: %v", cam.ID, err)
	}

	if m.status != nil {
		m.status(StatusChange{CameraID: cam.ID, Status: status, Reason: reason, At: time.Now()})
	}
}

func (m *Manager) backoffDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := m.backoff.Base << (attempt - 1)
	if d > m.backoff.Max || d <= 0 {
		d = m.backoff.Max
	}
	return d
}

func (m *Manager) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
