// Package job defines the shared data model for the pipeline: submitted
// jobs, the process-wide status snapshot, and durable result records.
package job

import (
	"fmt"
	"time"
)

// PublishMode selects how a finished recording is disposed.
type PublishMode string

const (
	// PublishUpload uploads the recording to the configured hosting service.
	PublishUpload PublishMode = "upload"

	// PublishSaveLocally renames the recording in place using job metadata.
	PublishSaveLocally PublishMode = "save"
)

// IsValid reports whether the publish mode is one of the defined constants.
func (m PublishMode) IsValid() bool {
	switch m {
	case PublishUpload, PublishSaveLocally:
		return true
	default:
		return false
	}
}

func (m PublishMode) String() string { return string(m) }

// Phase is the coarse-grained status surfaced to pollers. Only the latest
// value is observable; intermediate phases can be missed.
type Phase string

const (
	PhaseIdle               Phase = "Idle"
	PhaseDownloading        Phase = "Downloading"
	PhaseAnalyzing          Phase = "Analyzing"
	PhaseConnectingRecorder Phase = "ConnectingRecorder"
	PhaseRecording          Phase = "Recording"
	PhaseFinalizing         Phase = "Finalizing"
	PhasePublishing         Phase = "Publishing"
	PhaseFinished           Phase = "Finished"
	PhaseError              Phase = "Error"
)

func (p Phase) String() string { return string(p) }

// TaskStatus is the final disposition recorded for one completed job.
type TaskStatus string

const (
	StatusUploaded         TaskStatus = "Uploaded"
	StatusSavedLocally     TaskStatus = "SavedLocally"
	StatusUploadFailed     TaskStatus = "UploadFailed"
	StatusSaveFailed       TaskStatus = "SaveFailed"
	StatusProcessingFailed TaskStatus = "ProcessingFailed"
	StatusDemoExpired      TaskStatus = "DemoExpired"
)

func (s TaskStatus) String() string { return string(s) }

// Succeeded reports whether the status represents a fully successful job.
func (s TaskStatus) Succeeded() bool {
	return s == StatusUploaded || s == StatusSavedLocally
}

// Job is one unit of work submitted by a producer. Immutable once enqueued;
// consumed exactly once by the worker.
type Job struct {
	ID          string      `json:"id"`
	ShareCode   string      `json:"share_code"`
	SuspectID   string      `json:"suspect_steam_id"`
	SubmittedBy string      `json:"submitted_by"`
	PublishMode PublishMode `json:"publish_mode"`
	SubmittedAt time.Time   `json:"submitted_at"`
}

// Validate checks the fields producers are required to fill in.
func (j *Job) Validate() error {
	if j.ShareCode == "" {
		return fmt.Errorf("job: share code or demo URL is required")
	}
	if j.SuspectID == "" {
		return fmt.Errorf("job: suspect steam id is required")
	}
	if j.SubmittedBy == "" {
		return fmt.Errorf("job: submitted_by is required")
	}
	if !j.PublishMode.IsValid() {
		return fmt.Errorf("job: invalid publish mode %q", j.PublishMode)
	}
	return nil
}

// Status is the process-wide current-job snapshot. Mutated only by the
// worker; read-only everywhere else.
type Status struct {
	Status  Phase  `json:"status"`
	Step    string `json:"step"`
	Suspect string `json:"suspect"`
}

// IdleStatus is the status published between jobs.
func IdleStatus() Status {
	return Status{
		Status: PhaseIdle,
		Step:   "Waiting for a new demo to be submitted.",
	}
}

// Result is the durable record of one completed job. Exactly one Result is
// appended per dequeued Job, regardless of which stage failed.
type Result struct {
	Timestamp    time.Time   `json:"timestamp"`
	SuspectID    string      `json:"suspect_steam_id"`
	SuspectName  string      `json:"suspect_name,omitempty"`
	ShareCode    string      `json:"share_code"`
	Outcome      string      `json:"outcome,omitempty"`
	TaskStatus   TaskStatus  `json:"task_status"`
	ArtifactPath string      `json:"artifact_path,omitempty"`
	PublishMode  PublishMode `json:"publish_mode"`
	SubmittedBy  string      `json:"submitted_by"`
}
