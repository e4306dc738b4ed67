package job

import "errors"

// Failure taxonomy shared between the pipeline core and its collaborators.
// Adapters return (or wrap) these sentinels so the orchestrator can map a
// stage failure to the right terminal disposition.
var (
	// ErrInvalidInput means no well-formed share code or demo URL was
	// found in the submitted reference.
	ErrInvalidInput = errors.New("invalid share code or demo URL")

	// ErrDemoExpired means the resolution service reported the source
	// replay is no longer retrievable.
	ErrDemoExpired = errors.New("demo is no longer available")

	// ErrNoArtifact means the output directory contained no produced
	// media file after recording.
	ErrNoArtifact = errors.New("no recording artifact found")
)
