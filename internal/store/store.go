package store

// Store persists run checkpoints. Implementations must be safe for
// concurrent use. Load and Delete return an error matching ErrNotFound
// when the run has no checkpoint.
type Store interface {
	// SaveCheckpoint atomically replaces the checkpoint of runID
	SaveCheckpoint(runID string, checkpoint *Checkpoint) error

	LoadCheckpoint(runID string) (*Checkpoint, error)

	// ListCheckpoints skips run directories whose checkpoint cannot be read
	ListCheckpoints() ([]CheckpointInfo, error)

	// DeleteCheckpoint removes the run directory with its trace
	DeleteCheckpoint(runID string) error
}

// ErrNotFound matches any NotFoundError via errors.Is
var ErrNotFound = &NotFoundError{}

// NotFoundError reports a run without a checkpoint or trace
type NotFoundError struct {
	RunID string
}

func (e *NotFoundError) Error() string {
	if e.RunID != "" {
		return "checkpoint not found: " + e.RunID
	}
	return "checkpoint not found"
}

func (e *NotFoundError) Is(target error) bool {
	_, ok := target.(*NotFoundError)
	return ok
}
