package gameproc

import (
	"context"
	"log/slog"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testWatcher(running func() (bool, error)) *Watcher {
	w := NewWatcher("cs2.exe", time.Millisecond, time.Millisecond, testLogger())
	w.running = running
	return w
}

func TestWaitForStartAppearsAfterPolls(t *testing.T) {
	var polls int32
	w := testWatcher(func() (bool, error) {
		return atomic.AddInt32(&polls, 1) >= 3, nil
	})

	err := w.WaitForStart(context.Background(), time.Second)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, atomic.LoadInt32(&polls), int32(3))
}

func TestWaitForStartTimeout(t *testing.T) {
	w := testWatcher(func() (bool, error) { return false, nil })

	err := w.WaitForStart(context.Background(), 20*time.Millisecond)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "did not appear")
}

func TestWaitForStartCancelled(t *testing.T) {
	w := testWatcher(func() (bool, error) { return false, nil })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := w.WaitForStart(ctx, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWaitForExit(t *testing.T) {
	var polls int32
	w := testWatcher(func() (bool, error) {
		return atomic.AddInt32(&polls, 1) < 3, nil
	})

	require.NoError(t, w.WaitForExit(context.Background(), time.Second))
}

func TestWaitForExitTimeout(t *testing.T) {
	w := testWatcher(func() (bool, error) { return true, nil })

	err := w.WaitForExit(context.Background(), 20*time.Millisecond)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "did not close")
}

func TestPollSurvivesLookupErrors(t *testing.T) {
	var polls int32
	w := testWatcher(func() (bool, error) {
		if atomic.AddInt32(&polls, 1) < 3 {
			return false, assert.AnError
		}
		return true, nil
	})

	// Transient process-table errors are retried, not fatal.
	require.NoError(t, w.WaitForStart(context.Background(), time.Second))
}

func TestTerminateMissingProcess(t *testing.T) {
	w := NewWatcher("definitely-not-a-real-process-name.exe", time.Millisecond, time.Millisecond, testLogger())
	assert.NoError(t, w.Terminate())
}
