// Package orchestrator contains the pipeline core: a per-job state
// machine that drives download, analysis, playback, recording and
// publishing, and the single-consumer worker loop around it.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/norton62/demo2video/internal/job"
)

// Orchestrator represents a single execution instance of a job.
// It owns the recorder session for the duration of that job.
type Orchestrator struct {
	// Core identification
	j job.Job

	// State management
	state State

	// Dependencies
	deps     Collaborators
	settings Settings
	status   StatusSink
	logger   *slog.Logger

	// Per-job working data
	resolvedRef string
	demoPath    string
	out         outcome

	// Phase timing
	timing PhaseTiming

	// Optional state recorder for testing
	recorder *StateRecorder
}

// New creates an orchestrator for one job.
func New(j job.Job, deps Collaborators, settings Settings, status StatusSink, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		j:        j,
		state:    &QueuedState{},
		deps:     deps,
		settings: settings,
		status:   status,
		logger:   logger.With("job_id", j.ID, "suspect", j.SuspectID),
		timing: PhaseTiming{
			CreatedAt: time.Now(),
		},
	}
}

// Timing returns the phase timing boundaries observed so far.
func (o *Orchestrator) Timing() PhaseTiming {
	return o.timing
}

// GetStateName returns the current state name (for testing)
func (o *Orchestrator) GetStateName() string {
	return o.state.Name()
}

// transitionTo performs a state transition and logs it
func (o *Orchestrator) transitionTo(newState State) {
	oldStateName := o.state.Name()
	o.state = newState

	// Record state for testing if recorder is present
	if o.recorder != nil {
		o.recorder.Record(newState)
	}

	o.logger.Info("state transition",
		"from", oldStateName,
		"to", newState.Name())
}

// fail records the terminal disposition and moves to the failed state.
// next must be the current state's ToFailed() result.
func (o *Orchestrator) fail(next *FailedState, status job.TaskStatus, stage string, err error) {
	o.logger.Error("stage failed", "stage", stage, "error", err)
	o.out.status = status
	o.out.stage = stage
	o.out.err = err
	o.transitionTo(next)
}

// Run executes the job to its terminal state and returns the single
// Result record for it. Cleanup of the recorder session and the game
// process always happens before Run returns, whatever state was reached.
func (o *Orchestrator) Run(ctx context.Context) (res job.Result) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("pipeline panic recovered", "panic", r)
			o.out.status = job.StatusProcessingFailed
			o.out.err = fmt.Errorf("panic: %v", r)
			res = o.finalize(ctx)
		}
	}()

	o.runLoop(ctx)
	return o.finalize(ctx)
}

func (o *Orchestrator) runLoop(ctx context.Context) {
	for {
		switch o.state.(type) {
		case *QueuedState:
			o.runQueued(ctx)
		case *ResolvingInputState:
			o.runResolvingInput(ctx)
		case *DownloadingState:
			o.runDownloading(ctx)
		case *AnalyzingState:
			o.runAnalyzing(ctx)
		case *ConnectingRecorderState:
			o.runConnectingRecorder(ctx)
		case *LaunchingPlaybackState:
			o.runLaunchingPlayback(ctx)
		case *WaitingForPlaybackReadyState:
			o.runWaitingForPlaybackReady(ctx)
		case *RecordingState:
			o.runRecording(ctx)
		case *WaitingForPlaybackFinishedState:
			o.runWaitingForPlaybackFinished(ctx)
		case *StoppingRecorderState:
			o.runStoppingRecorder(ctx)
		case *DisconnectingState:
			o.runDisconnecting()
		case *LocatingArtifactState:
			o.runLocatingArtifact(ctx)
		case *PublishingState:
			o.runPublishing(ctx)
		case *RenamingState:
			o.runRenaming(ctx)
		case *DoneState:
			return
		case *FailedState:
			return
		default:
			o.logger.Error("unknown state type", "state", fmt.Sprintf("%T", o.state))
			o.out.status = job.StatusProcessingFailed
			o.out.err = fmt.Errorf("unknown state %T", o.state)
			o.transitionTo(&FailedState{})
		}
	}
}

// runQueued starts the job
func (o *Orchestrator) runQueued(ctx context.Context) {
	state := o.state.(*QueuedState)

	o.status.Set(job.PhaseDownloading, "Starting new job...", o.j.SuspectID)

	if err := ctx.Err(); err != nil {
		o.fail(state.ToFailed(), job.StatusProcessingFailed, "queued", err)
		return
	}

	o.transitionTo(state.ToResolvingInput())
}

// runResolvingInput distinguishes a direct demo URL from a share code and
// validates the token shape
func (o *Orchestrator) runResolvingInput(ctx context.Context) {
	state := o.state.(*ResolvingInputState)

	if err := ctx.Err(); err != nil {
		o.fail(state.ToFailed(), job.StatusProcessingFailed, "resolving_input", err)
		return
	}

	ref, err := o.deps.Downloader.ResolveInput(o.j.ShareCode)
	if err != nil {
		o.status.Set(job.PhaseError, "Invalid share code provided.", o.j.SuspectID)
		o.fail(state.ToFailed(), job.StatusProcessingFailed, "resolving_input", err)
		return
	}

	o.resolvedRef = ref
	o.transitionTo(state.ToDownloading())
}

// runDownloading fetches the replay file. A file already present at the
// destination path counts as success.
func (o *Orchestrator) runDownloading(ctx context.Context) {
	state := o.state.(*DownloadingState)

	o.status.Set(job.PhaseDownloading, fmt.Sprintf("Downloading demo for %s...", o.resolvedRef), o.j.SuspectID)
	o.timing.DownloadStarted = time.Now()

	demoPath, err := o.deps.Downloader.Download(ctx, o.resolvedRef)
	if err != nil {
		status := job.StatusProcessingFailed
		if errors.Is(err, job.ErrDemoExpired) {
			status = job.StatusDemoExpired
		}
		o.fail(state.ToFailed(), status, "downloading", err)
		return
	}

	o.demoPath = demoPath
	o.transitionTo(state.ToAnalyzing())
}

// runAnalyzing invokes the external analysis tool with a bounded wait
func (o *Orchestrator) runAnalyzing(ctx context.Context) {
	state := o.state.(*AnalyzingState)

	o.status.Set(job.PhaseAnalyzing, "Analyzing demo...", o.j.SuspectID)
	o.timing.AnalysisStarted = time.Now()

	analysisCtx, cancel := context.WithTimeout(ctx, o.settings.AnalysisTimeout)
	defer cancel()

	if err := o.deps.Analyzer.Analyze(analysisCtx, o.demoPath); err != nil {
		o.fail(state.ToFailed(), job.StatusProcessingFailed, "analyzing", err)
		return
	}

	o.transitionTo(state.ToConnectingRecorder())
}

// runConnectingRecorder opens the recorder control channel
func (o *Orchestrator) runConnectingRecorder(ctx context.Context) {
	state := o.state.(*ConnectingRecorderState)

	o.status.Set(job.PhaseConnectingRecorder, "Connecting to OBS...", o.j.SuspectID)

	if err := o.deps.Recorder.Connect(ctx); err != nil {
		o.fail(state.ToFailed(), job.StatusProcessingFailed, "connecting_recorder", err)
		return
	}

	o.transitionTo(state.ToLaunchingPlayback())
}

// runLaunchingPlayback spawns the playback process. Success means only
// that the process was spawned.
func (o *Orchestrator) runLaunchingPlayback(ctx context.Context) {
	state := o.state.(*LaunchingPlaybackState)

	o.status.Set(job.PhaseRecording, "Launching CS2 for highlights...", o.j.SuspectID)

	if err := ctx.Err(); err != nil {
		o.fail(state.ToFailed(), job.StatusProcessingFailed, "launching_playback", err)
		return
	}

	if err := o.deps.Launcher.LaunchHighlights(o.demoPath, o.j.SuspectID); err != nil {
		o.fail(state.ToFailed(), job.StatusProcessingFailed, "launching_playback", err)
		return
	}

	o.transitionTo(state.ToWaitingForPlaybackReady())
}

// runWaitingForPlaybackReady polls for the game process to appear, then
// applies the settle delay before recording starts
func (o *Orchestrator) runWaitingForPlaybackReady(ctx context.Context) {
	state := o.state.(*WaitingForPlaybackReadyState)

	if err := o.deps.Game.WaitForStart(ctx, o.settings.ReadyTimeout); err != nil {
		o.fail(state.ToFailed(), job.StatusProcessingFailed, "waiting_for_playback_ready", err)
		return
	}

	o.logger.Info("game process found, waiting for engine to load", "settle_delay", o.settings.SettleDelay)
	if err := sleepCtx(ctx, o.settings.SettleDelay); err != nil {
		o.fail(state.ToFailed(), job.StatusProcessingFailed, "waiting_for_playback_ready", err)
		return
	}

	o.transitionTo(state.ToRecording())
}

// runRecording issues start-record. If the recorder is already recording
// it adopts that session rather than failing.
func (o *Orchestrator) runRecording(ctx context.Context) {
	state := o.state.(*RecordingState)

	o.status.Set(job.PhaseRecording, "Starting OBS recording...", o.j.SuspectID)
	o.timing.RecordingStarted = time.Now()

	if err := ctx.Err(); err != nil {
		o.fail(state.ToFailed(), job.StatusProcessingFailed, "recording", err)
		return
	}

	if err := o.deps.Recorder.StartRecord(); err != nil {
		o.fail(state.ToFailed(), job.StatusProcessingFailed, "recording", err)
		return
	}

	o.transitionTo(state.ToWaitingForPlaybackFinished())
}

// runWaitingForPlaybackFinished polls for the game process to disappear
func (o *Orchestrator) runWaitingForPlaybackFinished(ctx context.Context) {
	state := o.state.(*WaitingForPlaybackFinishedState)

	o.status.Set(job.PhaseRecording, "Waiting for highlights to finish...", o.j.SuspectID)

	if err := o.deps.Game.WaitForExit(ctx, o.settings.FinishTimeout); err != nil {
		o.fail(state.ToFailed(), job.StatusProcessingFailed, "waiting_for_playback_finished", err)
		return
	}

	o.timing.PlaybackFinished = time.Now()
	o.transitionTo(state.ToStoppingRecorder())
}

// runStoppingRecorder stops the recorder if it is recording. Failures
// here are logged, never escalated.
func (o *Orchestrator) runStoppingRecorder(ctx context.Context) {
	state := o.state.(*StoppingRecorderState)

	o.status.Set(job.PhaseFinalizing, "Stopping OBS recording...", o.j.SuspectID)
	o.stopRecorder(ctx)

	o.transitionTo(state.ToDisconnecting())
}

// runDisconnecting tears down the control channel, best-effort
func (o *Orchestrator) runDisconnecting() {
	state := o.state.(*DisconnectingState)

	o.disconnectRecorder()

	o.transitionTo(state.ToLocatingArtifact())
}

// runLocatingArtifact scans the output directory for the newest produced
// media file
func (o *Orchestrator) runLocatingArtifact(ctx context.Context) {
	state := o.state.(*LocatingArtifactState)

	o.status.Set(job.PhaseFinalizing, "Finding latest recording...", o.j.SuspectID)

	if err := ctx.Err(); err != nil {
		o.fail(state.ToFailed(), job.StatusProcessingFailed, "locating_artifact", err)
		return
	}

	artifact, err := o.deps.Artifacts.LocateLatest(o.settings.OutputDir, o.settings.ArtifactExt)
	if err != nil {
		o.fail(state.ToFailed(), job.StatusProcessingFailed, "locating_artifact", err)
		return
	}

	o.logger.Info("latest recording found", "artifact", artifact)
	o.out.artifact = artifact

	if o.j.PublishMode == job.PublishUpload {
		o.transitionTo(state.ToPublishing())
	} else {
		o.transitionTo(state.ToRenaming())
	}
}

// runPublishing uploads the artifact with a title built from the
// best-effort display name and the subject identifier
func (o *Orchestrator) runPublishing(ctx context.Context) {
	state := o.state.(*PublishingState)

	o.out.name = o.deps.Names.ResolveName(ctx, o.j.SuspectID)
	o.timing.PublishStarted = time.Now()

	title := o.videoTitle()
	o.status.Set(job.PhasePublishing, fmt.Sprintf("Uploading %s...", filepath.Base(o.out.artifact)), o.j.SuspectID)

	url, err := o.deps.Publisher.Publish(ctx, o.out.artifact, title)
	if err != nil {
		o.fail(state.ToFailed(), job.StatusUploadFailed, "publishing", err)
		return
	}
	if url == "" {
		o.fail(state.ToFailed(), job.StatusUploadFailed, "publishing", fmt.Errorf("upload did not return a URL"))
		return
	}

	o.out.status = job.StatusUploaded
	o.out.url = url
	o.transitionTo(state.ToDone())
}

// runRenaming relocates the artifact under a human-readable name
func (o *Orchestrator) runRenaming(ctx context.Context) {
	state := o.state.(*RenamingState)

	o.out.name = o.deps.Names.ResolveName(ctx, o.j.SuspectID)
	o.status.Set(job.PhaseFinalizing, "Saving recording...", o.j.SuspectID)

	newPath, err := o.deps.Artifacts.RenameWithMetadata(o.out.artifact, o.j.SuspectID, o.out.name)
	if err != nil {
		o.fail(state.ToFailed(), job.StatusSaveFailed, "renaming", err)
		return
	}

	o.out.status = job.StatusSavedLocally
	o.out.artifact = newPath
	o.out.url = newPath
	o.transitionTo(state.ToDone())
}

// videoTitle builds the upload title from the resolved display name and
// the subject identifier.
func (o *Orchestrator) videoTitle() string {
	if o.out.name != "" {
		return fmt.Sprintf("Suspected Cheater: %s (%s) - Highlights", o.out.name, o.j.SuspectID)
	}
	return fmt.Sprintf("Suspected Cheater: %s - Highlights", o.j.SuspectID)
}

// stopRecorder issues stop-record if a recording is active. Never
// escalates. The save-grace pause is cut short on cancellation so
// shutdown is not held up.
func (o *Orchestrator) stopRecorder(ctx context.Context) {
	if !o.deps.Recorder.Recording() {
		return
	}
	if err := o.deps.Recorder.StopRecord(); err != nil {
		o.logger.Error("failed to stop recording", "error", err)
		return
	}
	o.logger.Info("waiting for recorder to save the video file", "save_grace", o.settings.SaveGrace)
	_ = sleepCtx(ctx, o.settings.SaveGrace)
}

// disconnectRecorder closes the control channel if it is open. Never
// escalates.
func (o *Orchestrator) disconnectRecorder() {
	if !o.deps.Recorder.Connected() {
		return
	}
	if err := o.deps.Recorder.Disconnect(); err != nil {
		o.logger.Error("failed to disconnect recorder", "error", err)
	}
}

// finalize runs the unconditional cleanup phase and produces the single
// Result record. It executes for every exit from the state machine.
func (o *Orchestrator) finalize(ctx context.Context) job.Result {
	// Recorder teardown, in case the job failed mid-session.
	o.stopRecorder(ctx)
	o.disconnectRecorder()

	// Backstop against a hung game process, whether or not playback
	// ever started.
	if err := o.deps.Game.Terminate(); err != nil {
		o.logger.Error("failed to force-terminate game process", "error", err)
	}

	o.timing.CompletedAt = time.Now()

	if o.out.status.Succeeded() {
		o.status.Set(job.PhaseFinished, o.finishedStep(), o.j.SuspectID)
		o.logger.Info("job completed", "task_status", o.out.status, "outcome", o.out.url)
	} else {
		if o.out.status == "" {
			o.out.status = job.StatusProcessingFailed
		}
		o.status.Set(job.PhaseError, fmt.Sprintf("Workflow failed: %v", o.out.err), o.j.SuspectID)
		o.logger.Error("job failed",
			"task_status", o.out.status,
			"stage", o.out.stage,
			"error", o.out.err)
	}

	return job.Result{
		Timestamp:    time.Now(),
		SuspectID:    o.j.SuspectID,
		SuspectName:  o.out.name,
		ShareCode:    o.j.ShareCode,
		Outcome:      o.out.url,
		TaskStatus:   o.out.status,
		ArtifactPath: o.out.artifact,
		PublishMode:  o.j.PublishMode,
		SubmittedBy:  o.j.SubmittedBy,
	}
}

func (o *Orchestrator) finishedStep() string {
	if o.out.status == job.StatusUploaded {
		return "Upload complete!"
	}
	return "Recording saved."
}

// sleepCtx sleeps for d or until the context is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
