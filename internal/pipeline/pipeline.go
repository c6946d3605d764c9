package pipeline

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/sentryview/sentryview/internal/ai"
	"github.com/sentryview/sentryview/internal/data"
	"github.com/sentryview/sentryview/internal/metrics"
)

// Describer is the AI orchestrator capability the workers call.
type Describer interface {
	Describe(ctx context.Context, det *data.RawDetection) *ai.Analysis
}

// Correlator assigns correlation groups to finalized events.
type Correlator interface {
	Assign(ctx context.Context, evt *data.Event) error
}

// AlertSink evaluates alert rules against a finalized, correlated event.
type AlertSink interface {
	Evaluate(ctx context.Context, evt *data.Event)
}

// EventNotifier receives the terminal new-event signal.
type EventNotifier interface {
	EventCreated(evt *data.Event)
}

type detectionStore interface {
	Insert(ctx context.Context, d *data.RawDetection) error
}

type eventStore interface {
	Insert(ctx context.Context, e *data.Event) error
}

type Config struct {
	QueueSize     int
	Workers       int
	DedupTTL      time.Duration
	DedupMaxKeys  int
	ShutdownGrace time.Duration
}

func (c *Config) defaults() {
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.DedupTTL <= 0 {
		c.DedupTTL = 10 * time.Second
	}
	if c.DedupMaxKeys <= 0 {
		c.DedupMaxKeys = 4096
	}
	if c.ShutdownGrace <= 0 {
		c.ShutdownGrace = 10 * time.Second
	}
}

// Pipeline is the bounded work queue plus its fixed-size analysis worker
// pool. The pool size is independent of camera count; it protects provider
// rate limits and local CPU.
type Pipeline struct {
	cfg        Config
	queue      *queue
	dedup      *lru.Cache[string, time.Time]
	describer  Describer
	detections detectionStore
	events     eventStore
	correlator Correlator
	alerts     AlertSink
	notifier   EventNotifier

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

func New(describer Describer, detections detectionStore, events eventStore, correlator Correlator, alerts AlertSink, notifier EventNotifier, cfg Config) *Pipeline {
	cfg.defaults()
	cache, _ := lru.New[string, time.Time](cfg.DedupMaxKeys)
	return &Pipeline{
		cfg:        cfg,
		queue:      newQueue(cfg.QueueSize),
		dedup:      cache,
		describer:  describer,
		detections: detections,
		events:     events,
		correlator: correlator,
		alerts:     alerts,
		notifier:   notifier,
	}
}

// Submit implements the capture sink. Duplicates are consumed silently;
// a false return means the backpressure policy rejected the newest item.
func (p *Pipeline) Submit(det *data.RawDetection) bool {
	origin := "push"
	if det.Region != nil {
		origin = "motion"
	}

	if p.isDuplicate(dedupKey(det)) {
		metrics.DetectionsTotal.WithLabelValues(origin, "duplicate").Inc()
		return true
	}

	if !p.queue.offer(job{det: det, enqueuedAt: time.Now()}) {
		metrics.DetectionsTotal.WithLabelValues(origin, "dropped").Inc()
		log.Printf("[Pipeline] queue full, rejecting detection %s from camera %s", det.ID, det.CameraID)
		return false
	}
	metrics.DetectionsTotal.WithLabelValues(origin, "queued").Inc()
	return true
}

func (p *Pipeline) isDuplicate(key string) bool {
	if addedAt, ok := p.dedup.Get(key); ok {
		if time.Since(addedAt) < p.cfg.DedupTTL {
			return true
		}
	}
	p.dedup.Add(key, time.Now())
	return false
}

// Start launches the worker pool.
func (p *Pipeline) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go p.worker(runCtx)
	}
}

// Shutdown stops the pool, letting in-flight analysis finish within the
// configured grace period.
func (p *Pipeline) Shutdown() {
	if p.cancel != nil {
		p.cancel()
	}
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(p.cfg.ShutdownGrace):
		log.Printf("[Pipeline] shutdown grace of %s elapsed, abandoning in-flight work", p.cfg.ShutdownGrace)
	}
}

func (p *Pipeline) worker(ctx context.Context) {
	defer p.wg.Done()
	for {
		j, ok := p.queue.dequeue(ctx)
		if !ok {
			return
		}
		p.process(ctx, j)
	}
}

// process is one detection's full path: describe, persist, correlate,
// evaluate alerts, broadcast. Exactly one event (successful or failed) comes
// out of every dequeued detection.
func (p *Pipeline) process(ctx context.Context, j job) {
	det := j.det

	dbCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	if err := p.detections.Insert(dbCtx, det); err != nil {
		log.Printf("[Pipeline] detection %s persist error: %v", det.ID, err)
	}
	cancel()

	analysis := p.describer.Describe(ctx, det)

	evt := &data.Event{
		ID:             uuid.New(),
		DetectionID:    det.ID,
		CameraID:       det.CameraID,
		Kind:           det.Kind,
		OccurredAt:     det.OccurredAt,
		Description:    analysis.Description,
		Confidence:     analysis.Confidence,
		Provider:       analysis.Provider,
		AnalysisMode:   string(analysis.Mode),
		FallbackReason: analysis.FallbackReason,
		CostUSD:        analysis.CostUSD,
		AnalysisFailed: analysis.Failed,
	}

	dbCtx, cancel = context.WithTimeout(ctx, 5*time.Second)
	err := p.events.Insert(dbCtx, evt)
	cancel()
	if err != nil {
		log.Printf("[ERROR] Pipeline: event insert for detection %s: %v", det.ID, err)
		return
	}
	metrics.AnalysisLatency.Observe(float64(time.Since(j.enqueuedAt).Milliseconds()))

	if err := p.correlator.Assign(ctx, evt); err != nil {
		log.Printf("[Pipeline] correlation for event %s: %v", evt.ID, err)
	}

	p.notifier.EventCreated(evt)
	p.alerts.Evaluate(ctx, evt)
}
