package verify

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"dictverify/internal/records"
)

var fixedNow = time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC)

func newTestController(t *testing.T, opts Options) (*Controller, *records.File) {
	t.Helper()
	store := records.NewFile(filepath.Join(t.TempDir(), "verify", "verifydata.json"))
	if opts.Now == nil {
		opts.Now = func() time.Time { return fixedNow }
	}
	return NewController(store, opts), store
}

func waitResult(t *testing.T, h *Handle) Result {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res, err := h.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	return res
}

func TestControllerAllVolumesOK(t *testing.T) {
	ctrl, store := newTestController(t, Options{})
	h, err := ctrl.Start(context.Background(), asItems(okItems(dictU, 3)))
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	progress, verified, terminals := splitEvents(collectEvents(t, h))
	if len(terminals) != 1 {
		t.Fatalf("terminal events = %d, want 1", len(terminals))
	}
	result := terminals[0].Result
	if result.Status != StatusSucceeded || result.Verified != 3 || result.Total != 3 {
		t.Fatalf("unexpected result %+v", result)
	}
	if len(verified) != 3 {
		t.Fatalf("item events = %d, want 3", len(verified))
	}
	assertMonotonic(t, progress)
	want := []float64{0, 1.0 / 3, 2.0 / 3, 1}
	for i, w := range want {
		if !approxEqual(progress[i].Fraction, w) {
			t.Fatalf("progress[%d] = %v, want %v", i, progress[i].Fraction, w)
		}
	}

	rec, ok := ctrl.Lookup(dictU)
	if !ok || !rec.Passed || !rec.CheckedAt.Equal(fixedNow) {
		t.Fatalf("unexpected record %+v (found=%v)", rec, ok)
	}

	persisted, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(persisted) != 1 || !persisted[dictU].Passed {
		t.Fatalf("unexpected persisted records %+v", persisted)
	}
}

func TestControllerCorruptedSecondVolume(t *testing.T) {
	ctrl, store := newTestController(t, Options{})
	fakes := okItems(dictV, 2)
	fakes[1].outcome = OutcomeCorrupted

	h, err := ctrl.Start(context.Background(), asItems(fakes))
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	_, verified, terminals := splitEvents(collectEvents(t, h))

	if len(verified) != 2 ||
		verified[0].Ordinal != 1 || verified[0].Outcome != OutcomeOK ||
		verified[1].Ordinal != 2 || verified[1].Outcome != OutcomeCorrupted {
		t.Fatalf("unexpected item events %+v", verified)
	}
	if len(terminals) != 1 || terminals[0].Result.Status != StatusCorrupted || terminals[0].Result.DictionaryID != dictV {
		t.Fatalf("unexpected terminal %+v", terminals)
	}

	persisted, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if rec, ok := persisted[dictV]; !ok || rec.Passed {
		t.Fatalf("expected failed record for V, got %+v", persisted)
	}
}

func TestControllerCorruptedStopsRemainingVolumes(t *testing.T) {
	ctrl, store := newTestController(t, Options{})
	fakes := okItems(dictU, 4)
	fakes[0].outcome = OutcomeCorrupted

	h, _ := ctrl.Start(context.Background(), asItems(fakes))
	result := waitResult(t, h)
	if result.Status != StatusCorrupted || result.Ordinal != 1 || result.Item != fakes[0].name {
		t.Fatalf("unexpected result %+v", result)
	}
	for _, f := range fakes[1:] {
		if f.calls.Load() != 0 {
			t.Fatalf("volume %s should not run after corruption", f.name)
		}
	}
	persisted, _ := store.Load()
	if len(persisted) != 1 || persisted[dictU].Passed {
		t.Fatalf("expected exactly one failed record, got %+v", persisted)
	}
}

func TestControllerFaultKeepsPriorRecord(t *testing.T) {
	ctrl, store := newTestController(t, Options{})

	h, _ := ctrl.Start(context.Background(), asItems(okItems(dictU, 1)))
	waitResult(t, h)
	prior, _ := ctrl.Lookup(dictU)

	fakes := okItems(dictU, 3)
	fakes[0].err = errors.New("disk read error")
	h, err := ctrl.Start(context.Background(), asItems(fakes))
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	_, _, terminals := splitEvents(collectEvents(t, h))
	result := terminals[0].Result
	if result.Status != StatusFailed || result.Message != "disk read error" || result.DictionaryID != dictU {
		t.Fatalf("unexpected result %+v", result)
	}
	if result.Ordinal != 1 || result.Item != fakes[0].name {
		t.Fatalf("failing volume not reported: %+v", result)
	}
	if fakes[1].calls.Load() != 0 || fakes[2].calls.Load() != 0 {
		t.Fatal("volumes after the fault should not run")
	}

	after, ok := ctrl.Lookup(dictU)
	if !ok || after != prior {
		t.Fatalf("record changed after failure: before %+v after %+v", prior, after)
	}
	persisted, _ := store.Load()
	if !persisted[dictU].Passed {
		t.Fatal("persisted record should be untouched by a failed run")
	}
}

func TestControllerCancelledBeforeStart(t *testing.T) {
	ctrl, store := newTestController(t, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fakes := okItems(dictU, 2)
	h, err := ctrl.Start(ctx, asItems(fakes))
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	_, verified, terminals := splitEvents(collectEvents(t, h))
	if len(verified) != 0 {
		t.Fatalf("expected no item events, got %d", len(verified))
	}
	if len(terminals) != 1 || terminals[0].Result.Status != StatusCancelled {
		t.Fatalf("unexpected terminal %+v", terminals)
	}
	if _, ok := ctrl.Lookup(dictU); ok {
		t.Fatal("cancelled run must not write a record")
	}
	if persisted, _ := store.Load(); len(persisted) != 0 {
		t.Fatalf("expected nothing persisted, got %+v", persisted)
	}
}

func TestControllerHandleCancel(t *testing.T) {
	ctrl, _ := newTestController(t, Options{})
	fakes := okItems(dictU, 2)
	fakes[0].block = make(chan struct{})
	fakes[0].started = make(chan struct{})

	h, _ := ctrl.Start(context.Background(), asItems(fakes))
	<-fakes[0].started
	h.Cancel()

	result := waitResult(t, h)
	if result.Status != StatusCancelled {
		t.Fatalf("status = %v, want cancelled", result.Status)
	}
	if fakes[1].calls.Load() != 0 {
		t.Fatal("second volume should not run after cancel")
	}
	if _, ok := ctrl.Lookup(dictU); ok {
		t.Fatal("cancelled run must not write a record")
	}
}

func TestControllerRejectsOverlappingRun(t *testing.T) {
	ctrl, _ := newTestController(t, Options{})
	blocking := okItems(dictU, 1)
	blocking[0].block = make(chan struct{})
	blocking[0].started = make(chan struct{})

	first, err := ctrl.Start(context.Background(), asItems(blocking))
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	<-blocking[0].started
	if !ctrl.Running(dictU) {
		t.Fatal("expected U to be running")
	}

	if _, err := ctrl.Start(context.Background(), asItems(okItems(dictU, 1))); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}

	other, err := ctrl.Start(context.Background(), asItems(okItems(dictV, 2)))
	if err != nil {
		t.Fatalf("distinct dictionaries may run concurrently: %v", err)
	}
	if res := waitResult(t, other); res.Status != StatusSucceeded {
		t.Fatalf("unexpected result for V: %+v", res)
	}

	close(blocking[0].block)
	if res := waitResult(t, first); res.Status != StatusSucceeded {
		t.Fatalf("unexpected result for U: %+v", res)
	}
	if ctrl.Running(dictU) {
		t.Fatal("U should no longer be running")
	}

	again, err := ctrl.Start(context.Background(), asItems(okItems(dictU, 1)))
	if err != nil {
		t.Fatalf("restart after completion: %v", err)
	}
	waitResult(t, again)
}

func TestControllerRejectsInvalidInput(t *testing.T) {
	ctrl, _ := newTestController(t, Options{})
	if _, err := ctrl.Start(context.Background(), nil); !errors.Is(err, ErrNoItems) {
		t.Fatalf("expected ErrNoItems, got %v", err)
	}
	mixed := []Item{
		&fakeItem{id: dictU, name: "a", outcome: OutcomeOK},
		&fakeItem{id: dictV, name: "b", outcome: OutcomeOK},
	}
	if _, err := ctrl.Start(context.Background(), mixed); !errors.Is(err, ErrMixedIdentity) {
		t.Fatalf("expected ErrMixedIdentity, got %v", err)
	}
	if ctrl.Running(dictU) {
		t.Fatal("rejected start must not register a job")
	}
}

func TestControllerLastWriteWins(t *testing.T) {
	var clock atomic.Int64
	clock.Store(fixedNow.Unix())
	ctrl, store := newTestController(t, Options{Now: func() time.Time { return time.Unix(clock.Load(), 0) }})

	waitResult(t, mustStart(t, ctrl, asItems(okItems(dictU, 1))))

	clock.Add(3600)
	corrupt := okItems(dictU, 1)
	corrupt[0].outcome = OutcomeCorrupted
	waitResult(t, mustStart(t, ctrl, asItems(corrupt)))

	persisted, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(persisted) != 1 {
		t.Fatalf("expected one record, got %d", len(persisted))
	}
	rec := persisted[dictU]
	if rec.Passed || !rec.CheckedAt.Equal(time.Unix(clock.Load(), 0)) {
		t.Fatalf("expected second outcome to win, got %+v", rec)
	}
	if len(ctrl.Records()) != 1 {
		t.Fatal("in-memory map should hold one record")
	}
}

func TestControllerReloadsRecords(t *testing.T) {
	ctrl, store := newTestController(t, Options{})
	waitResult(t, mustStart(t, ctrl, asItems(okItems(dictU, 2))))

	reopened := NewController(store, Options{})
	rec, ok := reopened.Lookup(dictU)
	if !ok || !rec.Passed || !rec.CheckedAt.Equal(fixedNow) {
		t.Fatalf("record not restored: %+v (found=%v)", rec, ok)
	}
}

type failingStore struct {
	mu    sync.Mutex
	saves int
}

func (s *failingStore) Load() (map[uuid.UUID]records.Record, error) {
	return nil, records.ErrCorrupted
}

func (s *failingStore) Save(map[uuid.UUID]records.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	return errors.New("read-only file system")
}

func TestControllerSaveFailureIsReported(t *testing.T) {
	store := &failingStore{}
	ctrl := NewController(store, Options{SaveRetries: 2, Now: func() time.Time { return fixedNow }})

	result := waitResult(t, mustStart(t, ctrl, asItems(okItems(dictU, 1))))
	if result.Status != StatusSucceeded {
		t.Fatalf("status = %v, want succeeded", result.Status)
	}
	if result.PersistErr == nil {
		t.Fatal("expected persist error to be reported")
	}
	if store.saves != 3 {
		t.Fatalf("save attempts = %d, want 3", store.saves)
	}
	if rec, ok := ctrl.Lookup(dictU); !ok || !rec.Passed {
		t.Fatal("in-memory record should survive a failed save")
	}
}

type memoryRunLog struct {
	mu      sync.Mutex
	results []Result
}

func (m *memoryRunLog) AppendRun(_ context.Context, result Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, result)
	return nil
}

func TestControllerAppendsHistory(t *testing.T) {
	runs := &memoryRunLog{}
	ctrl, _ := newTestController(t, Options{History: runs})

	fakes := okItems(dictU, 2)
	fakes[1].err = errors.New("short read")
	waitResult(t, mustStart(t, ctrl, asItems(fakes)))

	runs.mu.Lock()
	defer runs.mu.Unlock()
	if len(runs.results) != 1 {
		t.Fatalf("history entries = %d, want 1", len(runs.results))
	}
	if got := runs.results[0]; got.Status != StatusFailed || got.Message != "short read" {
		t.Fatalf("unexpected history entry %+v", got)
	}
}

func TestControllerShutdownCancelsJobs(t *testing.T) {
	ctrl, _ := newTestController(t, Options{LowPriority: true})
	fakes := okItems(dictU, 1)
	fakes[0].block = make(chan struct{})
	fakes[0].started = make(chan struct{})
	h := mustStart(t, ctrl, asItems(fakes))
	<-fakes[0].started

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := ctrl.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	res, ok := h.Result()
	if !ok || res.Status != StatusCancelled {
		t.Fatalf("expected cancelled result after shutdown, got %+v (ok=%v)", res, ok)
	}
}

func TestControllerRejectsStartAfterShutdown(t *testing.T) {
	ctrl, _ := newTestController(t, Options{})
	if err := ctrl.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	fakes := okItems(dictU, 1)
	h, err := ctrl.Start(context.Background(), asItems(fakes))
	if !errors.Is(err, ErrShuttingDown) || h != nil {
		t.Fatalf("expected ErrShuttingDown, got handle=%v err=%v", h != nil, err)
	}
	if fakes[0].calls.Load() != 0 || ctrl.Running(dictU) {
		t.Fatal("no job may run after shutdown")
	}
}

type countingStore struct {
	mu    sync.Mutex
	saves int
	last  map[uuid.UUID]records.Record
}

func (s *countingStore) Load() (map[uuid.UUID]records.Record, error) {
	return nil, nil
}

func (s *countingStore) Save(m map[uuid.UUID]records.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	s.last = m
	return nil
}

func TestControllerNegativeSaveRetriesStillSaves(t *testing.T) {
	store := &countingStore{}
	ctrl := NewController(store, Options{SaveRetries: -1, Now: func() time.Time { return fixedNow }})

	result := waitResult(t, mustStart(t, ctrl, asItems(okItems(dictU, 1))))
	if result.Status != StatusSucceeded || result.PersistErr != nil {
		t.Fatalf("unexpected result %+v", result)
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	if store.saves != 1 || !store.last[dictU].Passed {
		t.Fatalf("saves = %d, record = %+v; want one save of a passing record", store.saves, store.last[dictU])
	}
}

func TestControllerConcurrentJobsPersistEveryOutcome(t *testing.T) {
	ctrl, store := newTestController(t, Options{})

	const dictionaries = 8
	want := make(map[uuid.UUID]bool, dictionaries)
	handles := make([]*Handle, 0, dictionaries)
	for i := 0; i < dictionaries; i++ {
		id := uuid.New()
		fakes := okItems(id, 3)
		for _, f := range fakes {
			f.steps = 5
		}
		passed := i%3 != 0
		if !passed {
			fakes[1].outcome = OutcomeCorrupted
		}
		want[id] = passed
		handles = append(handles, mustStart(t, ctrl, asItems(fakes)))
	}
	for _, h := range handles {
		waitResult(t, h)
	}

	persisted, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(persisted) != dictionaries {
		t.Fatalf("persisted %d records, want %d", len(persisted), dictionaries)
	}
	for id, passed := range want {
		rec, ok := persisted[id]
		if !ok || rec.Passed != passed {
			t.Fatalf("record for %s = %+v (found=%v), want passed=%v", id, rec, ok, passed)
		}
		if mem, _ := ctrl.Lookup(id); mem.Passed != rec.Passed || !mem.CheckedAt.Equal(rec.CheckedAt) {
			t.Fatalf("in-memory record %+v differs from persisted %+v", mem, rec)
		}
	}
}

type stuckStore struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (s *stuckStore) Load() (map[uuid.UUID]records.Record, error) {
	return nil, nil
}

func (s *stuckStore) Save(map[uuid.UUID]records.Record) error {
	s.once.Do(func() { close(s.entered) })
	<-s.release
	return errors.New("device busy")
}

func TestControllerLookupDuringSaveRetries(t *testing.T) {
	store := &stuckStore{entered: make(chan struct{}), release: make(chan struct{})}
	ctrl := NewController(store, Options{SaveRetries: 3, Now: func() time.Time { return fixedNow }})
	h := mustStart(t, ctrl, asItems(okItems(dictU, 1)))
	<-store.entered

	looked := make(chan bool, 1)
	go func() {
		_, ok := ctrl.Lookup(dictU)
		looked <- ok
	}()
	select {
	case ok := <-looked:
		if !ok {
			t.Fatal("outcome should be visible while the save is pending")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Lookup blocked while the record file was being saved")
	}

	close(store.release)
	if res := waitResult(t, h); res.PersistErr == nil {
		t.Fatal("expected persist error after every attempt failed")
	}
}

func mustStart(t *testing.T, ctrl *Controller, items []Item) *Handle {
	t.Helper()
	h, err := ctrl.Start(context.Background(), items)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	return h
}
