// Package csdm wraps the external demo-analysis tool as narrow process
// invocations. The tool's command syntax is opaque to the rest of the
// pipeline.
package csdm

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// Tool invokes the analysis/playback CLI inside its working directory.
type Tool struct {
	workDir string
	logger  *slog.Logger
}

// NewTool creates an adapter for the tool checked out at workDir.
func NewTool(workDir string, logger *slog.Logger) *Tool {
	return &Tool{workDir: workDir, logger: logger}
}

// Analyze runs the analysis command synchronously and waits for process
// exit, bounded by the context. A non-zero exit is returned as an error.
func (t *Tool) Analyze(ctx context.Context, demoPath string) error {
	args := []string{"out/cli.js", "analyze", demoPath}
	t.logger.Info("executing analysis command",
		"dir", t.workDir,
		"command", "node "+strings.Join(args, " "))

	cmd := exec.CommandContext(ctx, "node", args...)
	cmd.Dir = t.workDir

	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("csdm: analysis failed: %w (output: %s)", err, truncate(out))
	}

	t.logger.Info("analysis command completed")
	return nil
}

// LaunchHighlights starts highlight playback for a player. Fire and
// forget: the process is spawned and not awaited, success means only
// that the spawn worked.
func (t *Tool) LaunchHighlights(demoPath, suspectID string) error {
	args := []string{"out/cli.js", "highlights", demoPath, suspectID}
	t.logger.Info("executing highlights command",
		"dir", t.workDir,
		"command", "node "+strings.Join(args, " "))

	cmd := exec.Command("node", args...)
	cmd.Dir = t.workDir

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("csdm: launch highlights: %w", err)
	}

	// Reap the child when it eventually exits; the pipeline tracks the
	// game process instead.
	go func() {
		if err := cmd.Wait(); err != nil {
			t.logger.Warn("highlights command exited with error", "error", err)
		}
	}()

	t.logger.Info("highlights command sent, game should be launching", "pid", cmd.Process.Pid)
	return nil
}

func truncate(out []byte) string {
	const max = 512
	s := strings.TrimSpace(string(out))
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
