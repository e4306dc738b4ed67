package orchestrator

import (
	"context"
	"time"

	"github.com/norton62/demo2video/internal/job"
)

// Downloader resolves a submitted target reference and fetches the replay
// file. ResolveInput returns job.ErrInvalidInput when no well-formed token
// is found; Download returns job.ErrDemoExpired when the resolution
// service reports the source is gone.
type Downloader interface {
	ResolveInput(raw string) (ref string, err error)
	Download(ctx context.Context, ref string) (demoPath string, err error)
}

// Analyzer invokes the external replay-analysis tool synchronously.
// A non-zero exit is returned as an error.
type Analyzer interface {
	Analyze(ctx context.Context, demoPath string) error
}

// PlaybackLauncher starts the highlight playback process. The launch is
// fire-and-forget: success means only that the process was spawned.
type PlaybackLauncher interface {
	LaunchHighlights(demoPath, suspectID string) error
}

// GameWatcher observes and terminates the external game process.
type GameWatcher interface {
	WaitForStart(ctx context.Context, timeout time.Duration) error
	WaitForExit(ctx context.Context, timeout time.Duration) error
	Terminate() error
}

// Recorder is the per-job control channel to the capture application.
// It is owned exclusively by one job from Connect to Disconnect.
type Recorder interface {
	Connect(ctx context.Context) error
	StartRecord() error
	StopRecord() error
	Disconnect() error
	Connected() bool
	Recording() bool
}

// ArtifactResolver finds and relocates produced media files.
type ArtifactResolver interface {
	LocateLatest(dir, ext string) (string, error)
	RenameWithMetadata(path, suspectID, label string) (string, error)
}

// Publisher uploads a local file to the hosting service and returns its
// public URL.
type Publisher interface {
	Publish(ctx context.Context, path, title string) (url string, err error)
}

// NameResolver resolves a display name for a subject identifier.
// Best-effort: returns "" on any failure.
type NameResolver interface {
	ResolveName(ctx context.Context, suspectID string) string
}

// StatusSink receives live status updates from the pipeline.
type StatusSink interface {
	Set(phase job.Phase, step, suspect string)
	SetIdle()
}

// ResultSink durably appends one record per completed job.
type ResultSink interface {
	Append(r job.Result) error
}

// StatsSink receives per-job stage timings. Implementations must not
// block the worker.
type StatsSink interface {
	RecordJob(jobID, suspectID string, timing PhaseTiming, status job.TaskStatus)
}

// Collaborators bundles the external dependencies the pipeline drives.
type Collaborators struct {
	Downloader Downloader
	Analyzer   Analyzer
	Launcher   PlaybackLauncher
	Game       GameWatcher
	Recorder   Recorder
	Artifacts  ArtifactResolver
	Publisher  Publisher
	Names      NameResolver
}

// Settings carries the tunable constants of the pipeline. All observed
// magic values from operation live here, not in the code.
type Settings struct {
	// OutputDir is scanned for produced media files.
	OutputDir string

	// ArtifactExt is the extension of produced media files.
	ArtifactExt string

	// AnalysisTimeout bounds the external analysis tool run.
	AnalysisTimeout time.Duration

	// ReadyTimeout bounds the wait for the game process to appear.
	ReadyTimeout time.Duration

	// SettleDelay is the fixed pause after the game appears before
	// recording starts. Compensates for engine load time.
	SettleDelay time.Duration

	// FinishTimeout bounds the wait for the game process to exit.
	FinishTimeout time.Duration

	// SaveGrace is the pause after stop-record for the recorder to
	// finish writing the file.
	SaveGrace time.Duration

	// IdlePause is the pause between jobs before status resets to idle.
	IdlePause time.Duration
}

// outcome is the terminal disposition of one job, threaded through the
// state machine and mapped exhaustively into the Result record.
type outcome struct {
	status   job.TaskStatus
	url      string
	artifact string
	name     string
	stage    string
	err      error
}
