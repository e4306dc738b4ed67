// Package gameproc observes and terminates the external game process by
// name, by polling the system process table.
package gameproc

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// Watcher polls for a named process. Poll intervals are tunables, not
// hidden constants.
type Watcher struct {
	name               string
	readyPollInterval  time.Duration
	finishPollInterval time.Duration
	logger             *slog.Logger

	// running overrides process-table lookups in tests.
	running func() (bool, error)
}

// NewWatcher creates a watcher for the process with the given image name
// (e.g. "cs2.exe").
func NewWatcher(name string, readyPoll, finishPoll time.Duration, logger *slog.Logger) *Watcher {
	w := &Watcher{
		name:               name,
		readyPollInterval:  readyPoll,
		finishPollInterval: finishPoll,
		logger:             logger,
	}
	w.running = w.processPresent
	return w
}

// WaitForStart polls until the process appears, bounded by timeout.
func (w *Watcher) WaitForStart(ctx context.Context, timeout time.Duration) error {
	w.logger.Info("waiting for game process to appear", "process", w.name, "timeout", timeout)

	err := w.pollUntil(ctx, timeout, w.readyPollInterval, true)
	if err != nil {
		return fmt.Errorf("gameproc: %s did not appear within %s: %w", w.name, timeout, err)
	}
	w.logger.Info("game process found", "process", w.name)
	return nil
}

// WaitForExit polls until the process disappears, bounded by timeout.
func (w *Watcher) WaitForExit(ctx context.Context, timeout time.Duration) error {
	w.logger.Info("waiting for game process to close", "process", w.name, "timeout", timeout)

	err := w.pollUntil(ctx, timeout, w.finishPollInterval, false)
	if err != nil {
		return fmt.Errorf("gameproc: %s did not close within %s: %w", w.name, timeout, err)
	}
	w.logger.Info("game process has closed", "process", w.name)
	return nil
}

// Terminate force-kills every process matching the watched name,
// children included. Missing processes are not an error.
func (w *Watcher) Terminate() error {
	w.logger.Info("force-terminating game process", "process", w.name)

	procs, err := process.Processes()
	if err != nil {
		return fmt.Errorf("gameproc: list processes: %w", err)
	}

	found := false
	for _, p := range procs {
		name, err := p.Name()
		if err != nil || !strings.EqualFold(name, w.name) {
			continue
		}
		found = true
		if children, err := p.Children(); err == nil {
			for _, child := range children {
				if err := child.Kill(); err != nil {
					w.logger.Warn("failed to kill child process", "pid", child.Pid, "error", err)
				}
			}
		}
		if err := p.Kill(); err != nil {
			w.logger.Error("failed to kill game process", "pid", p.Pid, "error", err)
			return fmt.Errorf("gameproc: kill pid %d: %w", p.Pid, err)
		}
		w.logger.Info("game process terminated", "pid", p.Pid)
	}

	if !found {
		w.logger.Info("game process not found, nothing to terminate", "process", w.name)
	}
	return nil
}

var errTimeout = fmt.Errorf("timed out")

// pollUntil polls the process table until presence matches want.
func (w *Watcher) pollUntil(ctx context.Context, timeout, interval time.Duration, want bool) error {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		present, err := w.running()
		if err != nil {
			w.logger.Warn("failed to inspect process table", "error", err)
		} else if present == want {
			return nil
		}

		if time.Now().After(deadline) {
			return errTimeout
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (w *Watcher) processPresent() (bool, error) {
	procs, err := process.Processes()
	if err != nil {
		return false, err
	}
	for _, p := range procs {
		name, err := p.Name()
		if err != nil {
			continue
		}
		if strings.EqualFold(name, w.name) {
			return true, nil
		}
	}
	return false, nil
}
