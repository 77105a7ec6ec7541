package verify

import (
	"time"

	"github.com/google/uuid"
)

// Event is delivered on a Handle's event channel.
type Event interface {
	isEvent()
}

// ProgressEvent reports the fraction of the whole dictionary checked so far.
// Fractions never decrease within one job.
type ProgressEvent struct {
	DictionaryID uuid.UUID
	// Ordinal is the 1-based volume being checked, or the volume count once done.
	Ordinal  int
	Fraction float64
}

// ItemVerifiedEvent is emitted once for every volume that finished its check.
type ItemVerifiedEvent struct {
	DictionaryID uuid.UUID
	Ordinal      int
	Item         string
	Outcome      Outcome
}

// TerminalEvent is the last event of every job.
type TerminalEvent struct {
	Result Result
}

func (ProgressEvent) isEvent()     {}
func (ItemVerifiedEvent) isEvent() {}
func (TerminalEvent) isEvent()     {}

// Status is the final state of a verification as seen by observers.
type Status int

const (
	StatusSucceeded Status = iota + 1
	StatusCorrupted
	StatusFailed
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusSucceeded:
		return "succeeded"
	case StatusCorrupted:
		return "corrupted"
	case StatusFailed:
		return "failed"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Result summarizes a finished verification.
type Result struct {
	DictionaryID uuid.UUID
	Status       Status
	// Verified counts volumes that finished their check.
	Verified int
	Total    int
	// Ordinal and Item name the corrupted or faulting volume.
	Ordinal int
	Item    string
	// Message is the fault's original cause for StatusFailed.
	Message string
	Err     error
	// PersistErr is set when the outcome could not be written to the record file.
	PersistErr error
	StartedAt  time.Time
	FinishedAt time.Time
}
