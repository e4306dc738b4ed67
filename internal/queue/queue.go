// Package queue provides the unbounded FIFO job queue between the web
// producers and the single pipeline worker.
package queue

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Queue is a generic unbounded multi-producer/single-consumer FIFO.
// Enqueue never blocks and never rejects; Dequeue blocks the consumer
// until an item is available or the context is cancelled.
type Queue[T any] struct {
	mu      sync.Mutex
	items   []T
	notify  chan struct{}
	logger  *slog.Logger
	stats   Stats
	maxSeen int64
}

// Stats tracks queue usage counters.
type Stats struct {
	TotalEnqueued int64
	TotalDequeued int64
	MaxDepthSeen  int64
}

// New creates an empty queue.
func New[T any](logger *slog.Logger) *Queue[T] {
	return &Queue[T]{
		notify: make(chan struct{}, 1),
		logger: logger,
	}
}

// Enqueue appends an item to the tail of the queue. Never blocks.
func (q *Queue[T]) Enqueue(item T) {
	q.mu.Lock()
	q.items = append(q.items, item)
	depth := int64(len(q.items))
	if depth > q.maxSeen {
		q.maxSeen = depth
	}
	q.mu.Unlock()

	atomic.AddInt64(&q.stats.TotalEnqueued, 1)

	// Wake the consumer if it is waiting.
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Dequeue removes and returns the head of the queue, blocking until an
// item is available. Returns ctx.Err() if the context is cancelled first.
func (q *Queue[T]) Dequeue(ctx context.Context) (T, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			item := q.items[0]
			q.items = q.items[1:]
			q.mu.Unlock()
			atomic.AddInt64(&q.stats.TotalDequeued, 1)
			return item, nil
		}
		q.mu.Unlock()

		select {
		case <-q.notify:
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}
}

// Snapshot returns the pending items in queue order.
func (q *Queue[T]) Snapshot() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]T, len(q.items))
	copy(out, q.items)
	return out
}

// Len returns the current number of pending items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// GetStats returns a copy of the usage counters.
func (q *Queue[T]) GetStats() Stats {
	q.mu.Lock()
	maxSeen := q.maxSeen
	q.mu.Unlock()
	return Stats{
		TotalEnqueued: atomic.LoadInt64(&q.stats.TotalEnqueued),
		TotalDequeued: atomic.LoadInt64(&q.stats.TotalDequeued),
		MaxDepthSeen:  maxSeen,
	}
}
