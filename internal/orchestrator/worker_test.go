package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/norton62/demo2video/internal/job"
	"github.com/norton62/demo2video/internal/queue"
)

// MockResults implements ResultSink
type MockResults struct {
	mu       sync.Mutex
	appended []job.Result
	failNext int
	events   *eventLog
}

func (m *MockResults) Append(r job.Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failNext > 0 {
		m.failNext--
		return fmt.Errorf("results: disk full")
	}
	m.appended = append(m.appended, r)
	if m.events != nil {
		m.events.add("append")
	}
	return nil
}

func (m *MockResults) list() []job.Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]job.Result, len(m.appended))
	copy(out, m.appended)
	return out
}

// MockStats implements StatsSink
type MockStats struct {
	mu    sync.Mutex
	calls []string
}

func (m *MockStats) RecordJob(jobID, suspectID string, timing PhaseTiming, status job.TaskStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, jobID+":"+status.String())
}

func (m *MockStats) list() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.calls))
	copy(out, m.calls)
	return out
}

func queuedJob(id, suspect string) job.Job {
	return job.Job{
		ID:          id,
		ShareCode:   "CSGO-aaaaa-bbbbb-ccccc-ddddd-eeeee",
		SuspectID:   suspect,
		SubmittedBy: "tester",
		PublishMode: job.PublishUpload,
		SubmittedAt: time.Now(),
	}
}

func TestWorkerProcessesJobsInOrder(t *testing.T) {
	deps := newTestDeps()
	q := queue.New[job.Job](createTestLogger())
	results := &MockResults{}
	status := &MockStatus{}

	q.Enqueue(queuedJob("job-1", "76561198000000001"))
	q.Enqueue(queuedJob("job-2", "76561198000000002"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w := NewWorker(q, deps.collaborators(), testSettings(), status, results, nil, createTestLogger())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return len(results.list()) == 2
	}, 2*time.Second, 5*time.Millisecond)

	appended := results.list()
	assert.Equal(t, "76561198000000001", appended[0].SuspectID)
	assert.Equal(t, "76561198000000002", appended[1].SuspectID)

	// Exactly one result per dequeued job.
	assert.Len(t, appended, 2)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop after cancellation")
	}
}

func TestWorkerIdleOnlyAfterAppend(t *testing.T) {
	deps := newTestDeps()
	q := queue.New[job.Job](createTestLogger())
	events := &eventLog{}
	results := &MockResults{events: events}
	status := &MockStatus{events: events}

	q.Enqueue(queuedJob("job-1", "76561198000000001"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w := NewWorker(q, deps.collaborators(), testSettings(), status, results, nil, createTestLogger())
	go w.Run(ctx)

	require.Eventually(t, func() bool {
		list := events.list()
		return len(list) >= 2
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, []string{"append", "idle"}, events.list()[:2])
}

func TestWorkerSurvivesAppendFailure(t *testing.T) {
	deps := newTestDeps()
	q := queue.New[job.Job](createTestLogger())
	results := &MockResults{failNext: 1}
	status := &MockStatus{}

	q.Enqueue(queuedJob("job-1", "76561198000000001"))
	q.Enqueue(queuedJob("job-2", "76561198000000002"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w := NewWorker(q, deps.collaborators(), testSettings(), status, results, nil, createTestLogger())
	go w.Run(ctx)

	// The first append fails; the loop must still process job 2.
	require.Eventually(t, func() bool {
		list := results.list()
		return len(list) == 1 && list[0].SuspectID == "76561198000000002"
	}, 2*time.Second, 5*time.Millisecond)
}

func TestWorkerRecordsStats(t *testing.T) {
	deps := newTestDeps()
	q := queue.New[job.Job](createTestLogger())
	results := &MockResults{}
	stats := &MockStats{}

	q.Enqueue(queuedJob("job-1", "76561198000000001"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w := NewWorker(q, deps.collaborators(), testSettings(), &MockStatus{}, results, stats, createTestLogger())
	go w.Run(ctx)

	require.Eventually(t, func() bool {
		return len(stats.list()) == 1
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, "job-1:"+job.StatusUploaded.String(), stats.list()[0])
}
