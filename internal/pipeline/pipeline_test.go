package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentryview/sentryview/internal/ai"
	"github.com/sentryview/sentryview/internal/data"
)

type stubDescriber struct{}

func (stubDescriber) Describe(_ context.Context, det *data.RawDetection) *ai.Analysis {
	text := "something moved"
	provider := "stub"
	return &ai.Analysis{Description: &text, Provider: &provider, Mode: ai.ModeSingleFrame}
}

type failingDescriber struct{}

func (failingDescriber) Describe(_ context.Context, det *data.RawDetection) *ai.Analysis {
	reason := "stub: error"
	return &ai.Analysis{Mode: ai.ModeSingleFrame, Failed: true, FallbackReason: &reason}
}

type memDetectionStore struct {
	mu   sync.Mutex
	dets []*data.RawDetection
}

func (s *memDetectionStore) Insert(_ context.Context, d *data.RawDetection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dets = append(s.dets, d)
	return nil
}

type memEventStore struct {
	mu     sync.Mutex
	events []*data.Event
}

func (s *memEventStore) Insert(_ context.Context, e *data.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *memEventStore) all() []*data.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*data.Event, len(s.events))
	copy(out, s.events)
	return out
}

type nopCorrelator struct{}

func (nopCorrelator) Assign(context.Context, *data.Event) error { return nil }

type recordingSink struct {
	mu     sync.Mutex
	events []*data.Event
}

func (s *recordingSink) Evaluate(_ context.Context, evt *data.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, evt)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []*data.Event
}

func (n *recordingNotifier) EventCreated(evt *data.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, evt)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestPipelineProducesExactlyOneEvent(t *testing.T) {
	events := &memEventStore{}
	sink := &recordingSink{}
	notifier := &recordingNotifier{}
	p := New(stubDescriber{}, &memDetectionStore{}, events, nopCorrelator{}, sink, notifier, Config{Workers: 2})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)

	d := det(uuid.New(), time.Now())
	require.True(t, p.Submit(d))

	waitFor(t, func() bool { return len(events.all()) == 1 })
	evt := events.all()[0]
	assert.Equal(t, d.ID, evt.DetectionID)
	assert.Equal(t, d.CameraID, evt.CameraID)
	assert.Equal(t, "something moved", *evt.Description)
	assert.False(t, evt.AnalysisFailed)

	// Downstream stages each saw the event once.
	waitFor(t, func() bool {
		sink.mu.Lock()
		defer sink.mu.Unlock()
		return len(sink.events) == 1
	})
	notifier.mu.Lock()
	assert.Len(t, notifier.events, 1)
	notifier.mu.Unlock()
}

func TestPipelineFailedAnalysisStillCreatesEvent(t *testing.T) {
	events := &memEventStore{}
	p := New(failingDescriber{}, &memDetectionStore{}, events, nopCorrelator{}, &recordingSink{}, &recordingNotifier{}, Config{Workers: 1})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)

	require.True(t, p.Submit(det(uuid.New(), time.Now())))

	waitFor(t, func() bool { return len(events.all()) == 1 })
	evt := events.all()[0]
	assert.True(t, evt.AnalysisFailed)
	assert.Nil(t, evt.Description)
	require.NotNil(t, evt.FallbackReason)
	assert.Contains(t, *evt.FallbackReason, "stub: error")
}

func TestPipelineDeduplicatesSameSecond(t *testing.T) {
	events := &memEventStore{}
	p := New(stubDescriber{}, &memDetectionStore{}, events, nopCorrelator{}, &recordingSink{}, &recordingNotifier{}, Config{Workers: 1})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)

	cam := uuid.New()
	at := time.Now()
	require.True(t, p.Submit(det(cam, at)))
	require.True(t, p.Submit(det(cam, at)), "duplicate is consumed, not rejected")

	waitFor(t, func() bool { return len(events.all()) == 1 })
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, events.all(), 1, "duplicate must not produce a second event")
}

func TestPipelineRejectsWhenSaturated(t *testing.T) {
	// No workers running, so the queue fills.
	p := New(stubDescriber{}, &memDetectionStore{}, &memEventStore{}, nopCorrelator{}, &recordingSink{}, &recordingNotifier{}, Config{QueueSize: 2, Workers: 1})

	cam := uuid.New()
	now := time.Now()
	assert.True(t, p.Submit(det(cam, now)))
	assert.True(t, p.Submit(det(cam, now.Add(time.Second))))
	assert.False(t, p.Submit(det(cam, now.Add(2*time.Second))))
}

func TestPipelineShutdownDrainsInFlight(t *testing.T) {
	events := &memEventStore{}
	p := New(stubDescriber{}, &memDetectionStore{}, events, nopCorrelator{}, &recordingSink{}, &recordingNotifier{}, Config{Workers: 1, ShutdownGrace: time.Second})

	p.Start(context.Background())
	require.True(t, p.Submit(det(uuid.New(), time.Now())))

	waitFor(t, func() bool { return len(events.all()) == 1 })
	p.Shutdown()
}
