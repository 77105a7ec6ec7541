package verify

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"

	"dictverify/internal/logging"
	"dictverify/internal/records"
)

// RecordStore loads and saves the whole record map.
type RecordStore interface {
	Load() (map[uuid.UUID]records.Record, error)
	Save(map[uuid.UUID]records.Record) error
}

// RunLog receives every finished verification.
type RunLog interface {
	AppendRun(ctx context.Context, result Result) error
}

// Options configures a Controller.
type Options struct {
	Logger *slog.Logger
	// ItemTimeout bounds each volume's check; zero means no limit.
	ItemTimeout time.Duration
	// LowPriority runs jobs on a thread with lowered scheduling priority.
	LowPriority bool
	// SaveRetries is the number of extra attempts when saving records fails.
	SaveRetries int
	// History, when set, is appended to after every job.
	History RunLog
	// Now overrides the clock used for record timestamps.
	Now func() time.Time
}

const (
	saveRetryDelay    = 25 * time.Millisecond
	historyAppendWait = 5 * time.Second
)

// Controller owns the in-memory record map and the set of running jobs.
// All record mutations happen under mu, and each is followed by a full save.
type Controller struct {
	store  RecordStore
	opts   Options
	logger *slog.Logger

	mu      sync.Mutex
	records map[uuid.UUID]records.Record
	active  map[uuid.UUID]*Handle
	closed  bool

	// saveMu serializes store writes; it is taken before mu, never after.
	saveMu sync.Mutex

	wg sync.WaitGroup
}

// NewController loads the record map from store. A load failure is logged
// and the controller starts with an empty map.
func NewController(store RecordStore, opts Options) *Controller {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	opts.SaveRetries = max(opts.SaveRetries, 0)
	logger := logging.NewComponentLogger(opts.Logger, "verify")

	loaded, err := store.Load()
	if err != nil {
		logging.WarnWithContext(logger, "failed to load verification records",
			"records_load_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "the record file will be rewritten on the next verification"),
			logging.String(logging.FieldImpact, "previous verification results are not shown"))
		loaded = nil
	}
	if loaded == nil {
		loaded = make(map[uuid.UUID]records.Record)
	}
	logger.Debug("loaded verification records", logging.Int("record_count", len(loaded)))

	return &Controller{
		store:   store,
		opts:    opts,
		logger:  logger,
		records: loaded,
		active:  make(map[uuid.UUID]*Handle),
	}
}

// Start begins verifying items in the background and returns immediately.
// All items must share one dictionary identity. Cancelling ctx cancels the job.
func (c *Controller) Start(ctx context.Context, items []Item) (*Handle, error) {
	job, err := NewJob(items, JobOptions{ItemTimeout: c.opts.ItemTimeout, Logger: c.opts.Logger})
	if err != nil {
		return nil, err
	}
	id := job.DictionaryID()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrShuttingDown
	}
	if _, busy := c.active[id]; busy {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrAlreadyRunning, id)
	}
	handle := newHandle(job, c.opts.Now())
	c.active[id] = handle
	c.wg.Add(2)
	c.mu.Unlock()

	jobEvents := newEventQueue()
	go c.runJob(ctx, job, jobEvents)
	go c.deliver(handle, jobEvents)

	c.logger.Info("verification started",
		logging.String(logging.FieldDictionaryID, id.String()),
		logging.Int("volume_count", job.Len()))
	return handle, nil
}

// Lookup returns the last recorded outcome for id.
func (c *Controller) Lookup(id uuid.UUID) (records.Record, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.records[id]
	return rec, ok
}

// Records returns every recorded outcome, newest first.
func (c *Controller) Records() []records.Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	return records.Sorted(c.records)
}

// Running reports whether a job for id is in flight.
func (c *Controller) Running(id uuid.UUID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.active[id]
	return ok
}

// Shutdown cancels every running job and waits for their terminal events to
// be processed or for ctx to end. Start fails with ErrShuttingDown afterwards.
func (c *Controller) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	for _, h := range c.active {
		h.Cancel()
	}
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// jobFinished carries the job's own result from the job goroutine to the
// delivery goroutine. It is never forwarded to observers.
type jobFinished struct {
	result JobResult
	err    error
}

func (jobFinished) isEvent() {}

func (c *Controller) runJob(ctx context.Context, job *Job, events *eventQueue) {
	defer c.wg.Done()
	if c.opts.LowPriority {
		if err := lowerThreadPriority(); err != nil {
			c.logger.Debug("could not lower verification thread priority", logging.Error(err))
		}
	}
	res, err := job.Run(ctx, events.push)
	events.push(jobFinished{result: res, err: err})
	events.close()
}

// deliver consumes one job's events in order, applies record updates, and
// forwards everything observers should see.
func (c *Controller) deliver(h *Handle, events *eventQueue) {
	defer c.wg.Done()
	id := h.job.DictionaryID()

	var persistErr error
	for {
		ev, ok := events.pop()
		if !ok {
			return
		}
		switch e := ev.(type) {
		case ProgressEvent:
			h.out.push(e)
		case ItemVerifiedEvent:
			h.out.push(e)
			if e.Outcome == OutcomeCorrupted {
				h.job.Cancel()
				if err := c.record(id, false); err != nil {
					persistErr = err
				}
			}
		case jobFinished:
			result := c.settle(h, e, persistErr)
			c.appendHistory(result)

			c.mu.Lock()
			delete(c.active, id)
			c.mu.Unlock()

			h.finish(result)
		}
	}
}

// settle turns the job's result into the observer-facing Result, recording
// success when every volume passed.
func (c *Controller) settle(h *Handle, finished jobFinished, persistErr error) Result {
	res := finished.result
	result := Result{
		DictionaryID: h.job.DictionaryID(),
		Verified:     res.Verified,
		Total:        h.job.Len(),
		StartedAt:    h.startedAt,
		PersistErr:   persistErr,
	}

	switch {
	case finished.err != nil:
		result.Status = StatusFailed
		result.Err = finished.err
		result.Message = finished.err.Error()
	case res.Corrupted:
		result.Status = StatusCorrupted
		result.Ordinal = res.CorruptOrdinal
		result.Item = res.CorruptItem
	case res.State == StateFailed && res.Fault != nil:
		result.Status = StatusFailed
		result.Ordinal = res.Fault.Ordinal
		result.Item = res.Fault.Item
		result.Message = res.Fault.Err.Error()
		result.Err = res.Fault
	case res.State == StateCompleted:
		result.Status = StatusSucceeded
		result.PersistErr = c.record(result.DictionaryID, true)
	default:
		result.Status = StatusCancelled
	}
	result.FinishedAt = c.opts.Now()

	c.logger.Info("verification finished",
		logging.String(logging.FieldDictionaryID, result.DictionaryID.String()),
		logging.String("status", result.Status.String()),
		logging.Int("verified", result.Verified),
		logging.Int("total", result.Total),
		logging.Duration("elapsed", result.FinishedAt.Sub(result.StartedAt)))
	return result
}

// record stores the outcome for id and rewrites the record file. The
// in-memory map is updated even when saving fails. Each attempt saves a
// fresh copy of the map, so the last save always holds every outcome.
func (c *Controller) record(id uuid.UUID, passed bool) error {
	rec := records.Record{DictionaryID: id, Passed: passed, CheckedAt: c.opts.Now().UTC()}

	c.saveMu.Lock()
	defer c.saveMu.Unlock()

	c.mu.Lock()
	c.records[id] = rec
	c.mu.Unlock()

	var err error
	for attempt := 0; attempt <= c.opts.SaveRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(time.Duration(attempt) * saveRetryDelay)
		}
		c.mu.Lock()
		snapshot := maps.Clone(c.records)
		c.mu.Unlock()
		if err = c.store.Save(snapshot); err == nil {
			return nil
		}
	}
	logging.WarnWithContext(c.logger, "failed to save verification records",
		"records_save_failed",
		logging.String(logging.FieldDictionaryID, id.String()),
		logging.Int("attempts", c.opts.SaveRetries+1),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check free space and permissions of the state directory"),
		logging.String(logging.FieldImpact, "the result is kept for this session only"))
	return fmt.Errorf("save verification records: %w", err)
}

func (c *Controller) appendHistory(result Result) {
	if c.opts.History == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), historyAppendWait)
	defer cancel()
	if err := c.opts.History.AppendRun(ctx, result); err != nil {
		logging.WarnWithContext(c.logger, "failed to append verification history",
			"history_append_failed",
			logging.String(logging.FieldDictionaryID, result.DictionaryID.String()),
			logging.Error(err),
			logging.String(logging.FieldImpact, "this run is missing from the history view"))
	}
}
