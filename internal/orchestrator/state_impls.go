package orchestrator

// QueuedState - job accepted, nothing started yet
type QueuedState struct{}

func (s *QueuedState) Name() string { return "queued" }
func (s *QueuedState) ToResolvingInput() *ResolvingInputState {
	return &ResolvingInputState{}
}
func (s *QueuedState) ToFailed() *FailedState {
	return &FailedState{}
}

// ResolvingInputState - deciding between direct URL and share code
type ResolvingInputState struct{}

func (s *ResolvingInputState) Name() string { return "resolving_input" }
func (s *ResolvingInputState) ToDownloading() *DownloadingState {
	return &DownloadingState{}
}
func (s *ResolvingInputState) ToFailed() *FailedState {
	return &FailedState{}
}

// DownloadingState - fetching the replay file
type DownloadingState struct{}

func (s *DownloadingState) Name() string { return "downloading" }
func (s *DownloadingState) ToAnalyzing() *AnalyzingState {
	return &AnalyzingState{}
}
func (s *DownloadingState) ToFailed() *FailedState {
	return &FailedState{}
}

// AnalyzingState - external analysis tool running
type AnalyzingState struct{}

func (s *AnalyzingState) Name() string { return "analyzing" }
func (s *AnalyzingState) ToConnectingRecorder() *ConnectingRecorderState {
	return &ConnectingRecorderState{}
}
func (s *AnalyzingState) ToFailed() *FailedState {
	return &FailedState{}
}

// ConnectingRecorderState - opening the recorder control channel
type ConnectingRecorderState struct{}

func (s *ConnectingRecorderState) Name() string { return "connecting_recorder" }
func (s *ConnectingRecorderState) ToLaunchingPlayback() *LaunchingPlaybackState {
	return &LaunchingPlaybackState{}
}
func (s *ConnectingRecorderState) ToFailed() *FailedState {
	return &FailedState{}
}

// LaunchingPlaybackState - spawning the playback process (fire-and-forget)
type LaunchingPlaybackState struct{}

func (s *LaunchingPlaybackState) Name() string { return "launching_playback" }
func (s *LaunchingPlaybackState) ToWaitingForPlaybackReady() *WaitingForPlaybackReadyState {
	return &WaitingForPlaybackReadyState{}
}
func (s *LaunchingPlaybackState) ToFailed() *FailedState {
	return &FailedState{}
}

// WaitingForPlaybackReadyState - polling for the game process to appear
type WaitingForPlaybackReadyState struct{}

func (s *WaitingForPlaybackReadyState) Name() string { return "waiting_for_playback_ready" }
func (s *WaitingForPlaybackReadyState) ToRecording() *RecordingState {
	return &RecordingState{}
}
func (s *WaitingForPlaybackReadyState) ToFailed() *FailedState {
	return &FailedState{}
}

// RecordingState - issuing start-record to the recorder
type RecordingState struct{}

func (s *RecordingState) Name() string { return "recording" }
func (s *RecordingState) ToWaitingForPlaybackFinished() *WaitingForPlaybackFinishedState {
	return &WaitingForPlaybackFinishedState{}
}
func (s *RecordingState) ToFailed() *FailedState {
	return &FailedState{}
}

// WaitingForPlaybackFinishedState - polling for the game process to exit
type WaitingForPlaybackFinishedState struct{}

func (s *WaitingForPlaybackFinishedState) Name() string { return "waiting_for_playback_finished" }
func (s *WaitingForPlaybackFinishedState) ToStoppingRecorder() *StoppingRecorderState {
	return &StoppingRecorderState{}
}
func (s *WaitingForPlaybackFinishedState) ToFailed() *FailedState {
	return &FailedState{}
}

// StoppingRecorderState - best-effort stop of the recorder
type StoppingRecorderState struct{}

func (s *StoppingRecorderState) Name() string { return "stopping_recorder" }
func (s *StoppingRecorderState) ToDisconnecting() *DisconnectingState {
	return &DisconnectingState{}
}

// DisconnectingState - best-effort teardown of the control channel
type DisconnectingState struct{}

func (s *DisconnectingState) Name() string { return "disconnecting" }
func (s *DisconnectingState) ToLocatingArtifact() *LocatingArtifactState {
	return &LocatingArtifactState{}
}

// LocatingArtifactState - scanning the output directory
type LocatingArtifactState struct{}

func (s *LocatingArtifactState) Name() string { return "locating_artifact" }
func (s *LocatingArtifactState) ToPublishing() *PublishingState {
	return &PublishingState{}
}
func (s *LocatingArtifactState) ToRenaming() *RenamingState {
	return &RenamingState{}
}
func (s *LocatingArtifactState) ToFailed() *FailedState {
	return &FailedState{}
}

// PublishingState - uploading the artifact to the hosting service
type PublishingState struct{}

func (s *PublishingState) Name() string { return "publishing" }
func (s *PublishingState) ToDone() *DoneState {
	return &DoneState{}
}
func (s *PublishingState) ToFailed() *FailedState {
	return &FailedState{}
}

// RenamingState - relocating the artifact using job metadata
type RenamingState struct{}

func (s *RenamingState) Name() string { return "renaming" }
func (s *RenamingState) ToDone() *DoneState {
	return &DoneState{}
}
func (s *RenamingState) ToFailed() *FailedState {
	return &FailedState{}
}

// Terminal States

// DoneState - job completed successfully
type DoneState struct{}

func (s *DoneState) Name() string { return "done" }

// FailedState - job reached a terminal failure
type FailedState struct{}

func (s *FailedState) Name() string { return "failed" }
