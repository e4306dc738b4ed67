package queue

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestQueueFIFO(t *testing.T) {
	q := New[int](testLogger())
	for i := 1; i <= 5; i++ {
		q.Enqueue(i)
	}

	ctx := context.Background()
	for i := 1; i <= 5; i++ {
		item, err := q.Dequeue(ctx)
		require.NoError(t, err)
		assert.Equal(t, i, item)
	}
	assert.Zero(t, q.Len())
}

func TestQueueDequeueBlocksUntilEnqueue(t *testing.T) {
	q := New[string](testLogger())

	got := make(chan string, 1)
	go func() {
		item, err := q.Dequeue(context.Background())
		if err == nil {
			got <- item
		}
	}()

	// Give the consumer time to park.
	time.Sleep(20 * time.Millisecond)
	q.Enqueue("wake")

	select {
	case item := <-got:
		assert.Equal(t, "wake", item)
	case <-time.After(2 * time.Second):
		t.Fatal("dequeue never woke up")
	}
}

func TestQueueDequeueCancelled(t *testing.T) {
	q := New[int](testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := q.Dequeue(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestQueueSnapshotPreservesOrder(t *testing.T) {
	q := New[int](testLogger())
	q.Enqueue(10)
	q.Enqueue(20)
	q.Enqueue(30)

	snap := q.Snapshot()
	assert.Equal(t, []int{10, 20, 30}, snap)

	// Snapshot is a copy; mutating it does not touch the queue.
	snap[0] = 99
	item, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10, item)
}

func TestQueueConcurrentProducers(t *testing.T) {
	q := New[int](testLogger())

	const producers = 8
	const perProducer = 50

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Enqueue(i)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, producers*perProducer, q.Len())

	ctx := context.Background()
	for i := 0; i < producers*perProducer; i++ {
		_, err := q.Dequeue(ctx)
		require.NoError(t, err)
	}

	stats := q.GetStats()
	assert.Equal(t, int64(producers*perProducer), stats.TotalEnqueued)
	assert.Equal(t, int64(producers*perProducer), stats.TotalDequeued)
	assert.Equal(t, int64(producers*perProducer), stats.MaxDepthSeen)
}
