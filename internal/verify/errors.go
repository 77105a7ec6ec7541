package verify

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrNoItems        = errors.New("no volumes to verify")
	ErrMixedIdentity  = errors.New("volumes belong to different dictionaries")
	ErrAlreadyRunning = errors.New("verification already running")
	ErrJobStarted     = errors.New("verification job already started")
	ErrItemTimeout    = errors.New("volume verification timed out")
	ErrShuttingDown   = errors.New("verification controller is shut down")
	// ErrInterrupted is returned by items that stopped because the sink asked them to.
	ErrInterrupted = errors.New("volume verification interrupted")
)

// ItemFault reports a volume whose verification could not be completed.
type ItemFault struct {
	DictionaryID uuid.UUID
	Ordinal      int
	Item         string
	Err          error
}

func (f *ItemFault) Error() string {
	return fmt.Sprintf("verify volume %d (%s): %v", f.Ordinal, f.Item, f.Err)
}

func (f *ItemFault) Unwrap() error {
	return f.Err
}
