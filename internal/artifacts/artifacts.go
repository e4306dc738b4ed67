// Package artifacts locates and relocates the media files produced by
// the recorder.
package artifacts

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/norton62/demo2video/internal/job"
)

// Resolver finds produced media files and renames them with job
// metadata.
type Resolver struct {
	logger *slog.Logger

	// now is overridable for deterministic names in tests.
	now func() time.Time
}

// NewResolver creates an artifact resolver.
func NewResolver(logger *slog.Logger) *Resolver {
	return &Resolver{logger: logger, now: time.Now}
}

// LocateLatest returns the most recently modified file in dir with the
// given extension. Returns job.ErrNoArtifact when none exists. There is
// no per-job tagging of outputs; correctness relies on the pipeline
// processing one job at a time.
func (r *Resolver) LocateLatest(dir, ext string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("artifacts: read %s: %w", dir, err)
	}

	var latest string
	var latestMod time.Time
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ext) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if latest == "" || info.ModTime().After(latestMod) {
			latest = filepath.Join(dir, entry.Name())
			latestMod = info.ModTime()
		}
	}

	if latest == "" {
		return "", fmt.Errorf("artifacts: %w in %s", job.ErrNoArtifact, dir)
	}
	return latest, nil
}

// RenameWithMetadata moves the file to a human-readable name derived
// from the subject identifier, an optional label and a timestamp. On
// collision an incrementing numeric suffix is appended; an existing file
// is never overwritten.
func (r *Resolver) RenameWithMetadata(path, suspectID, label string) (string, error) {
	dir := filepath.Dir(path)
	ext := filepath.Ext(path)

	base := fmt.Sprintf("%s_%s", suspectID, r.now().Format("2006-01-02_15-04-05"))
	if label != "" {
		base = fmt.Sprintf("%s_%s", sanitizeLabel(label), base)
	}

	target := filepath.Join(dir, base+ext)
	for n := 2; ; n++ {
		if _, err := os.Stat(target); os.IsNotExist(err) {
			break
		}
		target = filepath.Join(dir, fmt.Sprintf("%s-%03d%s", base, n, ext))
	}

	if err := os.Rename(path, target); err != nil {
		return "", fmt.Errorf("artifacts: rename %s: %w", path, err)
	}

	r.logger.Info("artifact renamed", "from", path, "to", target)
	return target, nil
}

// sanitizeLabel strips characters that are unsafe in filenames.
func sanitizeLabel(label string) string {
	return strings.Map(func(c rune) rune {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
			return c
		case c == '-' || c == '_':
			return c
		default:
			return '_'
		}
	}, label)
}
