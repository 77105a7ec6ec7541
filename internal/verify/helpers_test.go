package verify

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
)

var (
	dictU = uuid.MustParse("1b4e28ba-2fa1-11d2-883f-0016d3cca427")
	dictV = uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
)

type fakeItem struct {
	id      uuid.UUID
	name    string
	outcome Outcome
	err     error
	// steps is the number of sink updates reported before returning.
	steps int
	// block, when set, holds Verify until closed or ctx ends.
	block chan struct{}
	// stall, when set, holds Verify until closed, ignoring ctx.
	stall chan struct{}
	// started is closed when Verify begins; returned when it ends.
	started   chan struct{}
	returned  chan struct{}
	afterStep func(step int)
	panicWith any
	calls     atomic.Int32
}

func (f *fakeItem) DictionaryID() uuid.UUID { return f.id }

func (f *fakeItem) Name() string { return f.name }

func (f *fakeItem) Verify(ctx context.Context, sink ProgressSink) (Outcome, error) {
	f.calls.Add(1)
	if f.returned != nil {
		defer close(f.returned)
	}
	if f.started != nil {
		close(f.started)
	}
	if f.stall != nil {
		<-f.stall
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	for step := 1; step <= f.steps; step++ {
		cont := sink.Update(float64(step) / float64(f.steps))
		if f.afterStep != nil {
			f.afterStep(step)
		}
		if !cont {
			return 0, ErrInterrupted
		}
	}
	if f.panicWith != nil {
		panic(f.panicWith)
	}
	return f.outcome, f.err
}

func okItems(id uuid.UUID, n int) []*fakeItem {
	items := make([]*fakeItem, n)
	for i := range items {
		items[i] = &fakeItem{id: id, name: "vol" + string(rune('1'+i)), outcome: OutcomeOK}
	}
	return items
}

func asItems(fakes []*fakeItem) []Item {
	out := make([]Item, len(fakes))
	for i, f := range fakes {
		out[i] = f
	}
	return out
}

func collectEvents(t *testing.T, h *Handle) []Event {
	t.Helper()
	var events []Event
	timeout := time.After(5 * time.Second)
	ch := h.Events()
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-timeout:
			t.Fatalf("timed out waiting for events; got %d so far", len(events))
		}
	}
}

func splitEvents(events []Event) (progress []ProgressEvent, verified []ItemVerifiedEvent, terminals []TerminalEvent) {
	for _, ev := range events {
		switch e := ev.(type) {
		case ProgressEvent:
			progress = append(progress, e)
		case ItemVerifiedEvent:
			verified = append(verified, e)
		case TerminalEvent:
			terminals = append(terminals, e)
		}
	}
	return progress, verified, terminals
}

func assertMonotonic(t *testing.T, progress []ProgressEvent) {
	t.Helper()
	for i := 1; i < len(progress); i++ {
		if progress[i].Fraction < progress[i-1].Fraction {
			t.Fatalf("progress decreased at %d: %v -> %v", i, progress[i-1].Fraction, progress[i].Fraction)
		}
	}
}

func approxEqual(a, b float64) bool {
	const eps = 1e-9
	d := a - b
	return d < eps && d > -eps
}
