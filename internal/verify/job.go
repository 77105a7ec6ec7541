package verify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"dictverify/internal/logging"
)

// State is the lifecycle position of a Job. Completed, Cancelled, and Failed
// are final.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateCompleted
	StateCancelled
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// JobOptions tunes a single Job.
type JobOptions struct {
	// ItemTimeout bounds each volume's check; zero means no limit.
	ItemTimeout time.Duration
	Logger      *slog.Logger
}

// JobResult is what Run reports once the job reaches a final state.
type JobResult struct {
	State    State
	Verified int
	// Corrupted is set when a volume finished with OutcomeCorrupted.
	Corrupted bool
	// CorruptOrdinal is the 1-based ordinal of the first corrupted volume.
	CorruptOrdinal int
	CorruptItem    string
	Fault          *ItemFault
}

// Job verifies the volumes of one dictionary in order. A Job runs once.
type Job struct {
	id     uuid.UUID
	items  []Item
	opts   JobOptions
	logger *slog.Logger

	state     atomic.Int32
	cancelled atomic.Bool

	mu        sync.Mutex
	cancelRun context.CancelFunc
}

// NewJob validates that items is non-empty and that every item belongs to
// the same dictionary.
func NewJob(items []Item, opts JobOptions) (*Job, error) {
	if len(items) == 0 {
		return nil, ErrNoItems
	}
	id := items[0].DictionaryID()
	for i, item := range items[1:] {
		if other := item.DictionaryID(); other != id {
			return nil, fmt.Errorf("%w: volume %d is %s, expected %s", ErrMixedIdentity, i+2, other, id)
		}
	}

	logger := logging.NewComponentLogger(opts.Logger, "verify").
		With(logging.String(logging.FieldDictionaryID, id.String()))

	return &Job{
		id:     id,
		items:  append([]Item(nil), items...),
		opts:   opts,
		logger: logger,
	}, nil
}

// DictionaryID returns the identity shared by the job's volumes.
func (j *Job) DictionaryID() uuid.UUID {
	return j.id
}

// Len returns the number of volumes in the job.
func (j *Job) Len() int {
	return len(j.items)
}

// State returns the current lifecycle state.
func (j *Job) State() State {
	return State(j.state.Load())
}

// Cancel sets the job's cancellation token. It is irreversible and safe to
// call from any goroutine, before or during Run.
func (j *Job) Cancel() {
	j.cancelled.Store(true)
	j.mu.Lock()
	cancel := j.cancelRun
	j.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Cancelled reports whether the cancellation token has been set.
func (j *Job) Cancelled() bool {
	return j.cancelled.Load()
}

func (j *Job) stopRequested(ctx context.Context) bool {
	return j.cancelled.Load() || ctx.Err() != nil
}

// Run verifies every volume on the calling goroutine, passing each event to
// emit in order. It returns once the job is Completed, Cancelled, or Failed.
// Cancellation of ctx has the same effect as Cancel.
func (j *Job) Run(ctx context.Context, emit func(Event)) (JobResult, error) {
	if !j.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return JobResult{State: j.State()}, ErrJobStarted
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	j.mu.Lock()
	j.cancelRun = cancel
	j.mu.Unlock()
	if j.cancelled.Load() {
		cancel()
	}

	total := len(j.items)
	last := 0.0
	report := func(completed int, fraction float64) {
		overall := (float64(completed) + clampFraction(fraction)) / float64(total)
		if overall < last {
			overall = last
		}
		last = overall
		emit(ProgressEvent{DictionaryID: j.id, Ordinal: min(completed+1, total), Fraction: overall})
	}

	var res JobResult
	for i, item := range j.items {
		ordinal := i + 1
		if j.stopRequested(runCtx) {
			return j.finish(StateCancelled, res), nil
		}

		report(i, 0)
		j.logger.Debug("verifying volume",
			logging.Int(logging.FieldVolume, ordinal),
			logging.String("item", item.Name()))

		outcome, err := j.verifyItem(runCtx, item, func(fraction float64) { report(i, fraction) })
		if err != nil {
			if errors.Is(err, ErrItemTimeout) || !j.stopRequested(runCtx) {
				res.Fault = &ItemFault{DictionaryID: j.id, Ordinal: ordinal, Item: item.Name(), Err: err}
				j.cancelled.Store(true)
				logging.WarnWithContext(j.logger, "volume verification failed",
					"verify_item_failed",
					logging.Int(logging.FieldVolume, ordinal),
					logging.String("item", item.Name()),
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "check that the volume file is readable"),
					logging.String(logging.FieldImpact, "remaining volumes were not verified"))
				return j.finish(StateFailed, res), nil
			}
			return j.finish(StateCancelled, res), nil
		}

		res.Verified++
		emit(ItemVerifiedEvent{DictionaryID: j.id, Ordinal: ordinal, Item: item.Name(), Outcome: outcome})
		j.logger.Info("volume verified",
			logging.Int(logging.FieldVolume, ordinal),
			logging.String("item", item.Name()),
			logging.String("outcome", outcome.String()))

		if outcome == OutcomeCorrupted && !res.Corrupted {
			res.Corrupted = true
			res.CorruptOrdinal = ordinal
			res.CorruptItem = item.Name()
			j.Cancel()
		}
	}

	report(total, 0)
	return j.finish(StateCompleted, res), nil
}

func (j *Job) finish(state State, res JobResult) JobResult {
	j.state.Store(int32(state))
	res.State = state
	j.logger.Debug("verification job finished",
		logging.String("state", state.String()),
		logging.Int("verified", res.Verified),
		logging.Int("total", len(j.items)))
	return res
}

// verifyItem runs one volume's check under the per-volume time limit and
// converts panics and invalid outcomes into errors. When the limit passes
// the check is abandoned even if it never looks at its context; the
// abandoned call keeps running but can no longer report progress.
func (j *Job) verifyItem(ctx context.Context, item Item, report func(float64)) (Outcome, error) {
	itemCtx := ctx
	var expired <-chan time.Time
	if j.opts.ItemTimeout > 0 {
		var cancel context.CancelFunc
		itemCtx, cancel = context.WithTimeout(ctx, j.opts.ItemTimeout)
		defer cancel()
		timer := time.NewTimer(j.opts.ItemTimeout)
		defer timer.Stop()
		expired = timer.C
	}

	sink := &itemSink{ctx: itemCtx, job: j, report: report}
	done := make(chan itemReturn, 1)
	go func() {
		var ret itemReturn
		defer func() {
			if r := recover(); r != nil {
				ret = itemReturn{err: fmt.Errorf("panic during verification: %v", r)}
			}
			done <- ret
		}()
		ret.outcome, ret.err = item.Verify(itemCtx, sink)
	}()

	var ret itemReturn
	select {
	case ret = <-done:
	case <-expired:
		sink.abandon()
		return 0, j.timeoutError()
	}

	if ret.err != nil {
		if j.opts.ItemTimeout > 0 && errors.Is(itemCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return 0, j.timeoutError()
		}
		return 0, ret.err
	}
	if ret.outcome != OutcomeOK && ret.outcome != OutcomeCorrupted {
		return 0, fmt.Errorf("volume returned invalid outcome %d", int(ret.outcome))
	}
	return ret.outcome, nil
}

func (j *Job) timeoutError() error {
	return fmt.Errorf("%w after %s", ErrItemTimeout, j.opts.ItemTimeout)
}

type itemReturn struct {
	outcome Outcome
	err     error
}

type itemSink struct {
	ctx    context.Context
	job    *Job
	report func(float64)

	mu        sync.Mutex
	abandoned bool
}

func (s *itemSink) Update(fraction float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.abandoned {
		return false
	}
	s.report(fraction)
	return !s.job.stopRequested(s.ctx)
}

// abandon stops a timed-out check from reporting. Once it returns no
// further progress reaches the job.
func (s *itemSink) abandon() {
	s.mu.Lock()
	s.abandoned = true
	s.mu.Unlock()
}

func clampFraction(f float64) float64 {
	switch {
	case math.IsNaN(f) || f < 0:
		return 0
	case f > 1:
		return 1
	default:
		return f
	}
}
