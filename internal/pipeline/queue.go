package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/sentryview/sentryview/internal/data"
	"github.com/sentryview/sentryview/internal/metrics"
)

// job is one queued detection with its enqueue time for SLA accounting.
type job struct {
	det        *data.RawDetection
	enqueuedAt time.Time
}

// queue is the bounded FIFO between capture units and analysis workers.
// Many producers, many consumers, no duplicate delivery (channel semantics).
type queue struct {
	ch chan job
}

func newQueue(size int) *queue {
	if size <= 0 {
		size = 64
	}
	return &queue{ch: make(chan job, size)}
}

// offer enqueues without blocking. When the queue is full the newest item
// is rejected (the producer drops and logs) so capture never stalls.
func (q *queue) offer(j job) bool {
	select {
	case q.ch <- j:
		metrics.QueueDepth.Set(float64(len(q.ch)))
		return true
	default:
		return false
	}
}

// dequeue blocks until a job or context cancellation.
func (q *queue) dequeue(ctx context.Context) (job, bool) {
	select {
	case <-ctx.Done():
		return job{}, false
	case j := <-q.ch:
		metrics.QueueDepth.Set(float64(len(q.ch)))
		return j, true
	}
}

// dedupKey buckets occurrence time to one second, collapsing micro-timing
// duplicates from the same camera.
func dedupKey(det *data.RawDetection) string {
	return fmt.Sprintf("%s|%s|%d", det.CameraID, det.Kind, det.OccurredAt.Truncate(time.Second).Unix())
}
