package verify

import (
	"context"

	"github.com/google/uuid"
)

// Outcome is the verdict of a volume that finished verification.
type Outcome int

const (
	OutcomeOK Outcome = iota + 1
	OutcomeCorrupted
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeCorrupted:
		return "corrupted"
	default:
		return "unknown"
	}
}

// ProgressSink receives the fraction [0,1] of the current volume that has
// been checked. A false return asks the volume to stop early; volumes that
// stop return ErrInterrupted (or the context error).
type ProgressSink interface {
	Update(fraction float64) bool
}

// Item is one physical volume of a dictionary.
type Item interface {
	// DictionaryID identifies the logical dictionary the volume belongs to.
	DictionaryID() uuid.UUID
	// Name is a human-readable label used in logs and fault messages.
	Name() string
	// Verify checks the volume and blocks until done. ctx is cancelled when
	// the job is cancelled or the volume's time limit passes. An error means
	// the check itself could not be completed.
	Verify(ctx context.Context, sink ProgressSink) (Outcome, error)
}
