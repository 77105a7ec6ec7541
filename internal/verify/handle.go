package verify

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Handle observes and controls one running verification.
type Handle struct {
	job       *Job
	startedAt time.Time
	out       *eventQueue

	eventsOnce sync.Once
	events     chan Event

	done   chan struct{}
	result Result
}

func newHandle(job *Job, startedAt time.Time) *Handle {
	return &Handle{
		job:       job,
		startedAt: startedAt,
		out:       newEventQueue(),
		done:      make(chan struct{}),
	}
}

// DictionaryID returns the identity being verified.
func (h *Handle) DictionaryID() uuid.UUID {
	return h.job.DictionaryID()
}

// Cancel asks the job to stop at its next poll point. The job finishes with
// StatusCancelled unless it already reached another final state.
func (h *Handle) Cancel() {
	h.job.Cancel()
}

// Events returns the job's events in production order, ending with one
// TerminalEvent after which the channel is closed. Events are buffered until
// the first call; callers that call Events must drain the channel.
func (h *Handle) Events() <-chan Event {
	h.eventsOnce.Do(func() {
		h.events = make(chan Event)
		go func() {
			defer close(h.events)
			for {
				ev, ok := h.out.pop()
				if !ok {
					return
				}
				h.events <- ev
			}
		}()
	})
	return h.events
}

// Done is closed once the result is available.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Result returns the final result once Done is closed.
func (h *Handle) Result() (Result, bool) {
	select {
	case <-h.done:
		return h.result, true
	default:
		return Result{}, false
	}
}

// Wait blocks until the job finishes or ctx ends.
func (h *Handle) Wait(ctx context.Context) (Result, error) {
	select {
	case <-h.done:
		return h.result, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

func (h *Handle) finish(result Result) {
	h.result = result
	h.out.push(TerminalEvent{Result: result})
	h.out.close()
	close(h.done)
}
