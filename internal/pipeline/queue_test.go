package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentryview/sentryview/internal/data"
)

func det(cam uuid.UUID, at time.Time) *data.RawDetection {
	return &data.RawDetection{
		ID:         uuid.New(),
		CameraID:   cam,
		Kind:       data.DetectionMotion,
		OccurredAt: at,
	}
}

func TestQueueFIFO(t *testing.T) {
	q := newQueue(4)
	cam := uuid.New()
	now := time.Now()

	first := det(cam, now)
	second := det(cam, now.Add(time.Second))
	require.True(t, q.offer(job{det: first}))
	require.True(t, q.offer(job{det: second}))

	j, ok := q.dequeue(context.Background())
	require.True(t, ok)
	assert.Equal(t, first.ID, j.det.ID)

	j, ok = q.dequeue(context.Background())
	require.True(t, ok)
	assert.Equal(t, second.ID, j.det.ID)
}

func TestQueueRejectsNewestWhenFull(t *testing.T) {
	q := newQueue(2)
	cam := uuid.New()
	now := time.Now()

	kept1 := det(cam, now)
	kept2 := det(cam, now.Add(time.Second))
	require.True(t, q.offer(job{det: kept1}))
	require.True(t, q.offer(job{det: kept2}))

	assert.False(t, q.offer(job{det: det(cam, now.Add(2*time.Second))}),
		"full queue rejects the newest item")

	// The queued items are untouched.
	j, _ := q.dequeue(context.Background())
	assert.Equal(t, kept1.ID, j.det.ID)
	j, _ = q.dequeue(context.Background())
	assert.Equal(t, kept2.ID, j.det.ID)
}

func TestQueueDequeueHonorsContext(t *testing.T) {
	q := newQueue(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, ok := q.dequeue(ctx)
	assert.False(t, ok)
}

func TestDedupKeyBucketsToSecond(t *testing.T) {
	cam := uuid.New()
	at := time.Date(2026, 3, 1, 12, 0, 0, 100*int(time.Millisecond), time.UTC)

	a := det(cam, at)
	b := det(cam, at.Add(500*time.Millisecond))
	c := det(cam, at.Add(time.Second))

	assert.Equal(t, dedupKey(a), dedupKey(b), "same second collapses")
	assert.NotEqual(t, dedupKey(a), dedupKey(c))

	other := det(uuid.New(), at)
	assert.NotEqual(t, dedupKey(a), dedupKey(other), "different cameras never collapse")
}
