package history_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"dictverify/internal/history"
	"dictverify/internal/verify"
)

var (
	dictU = uuid.MustParse("6f1c2a4e-8d2b-4b1e-9a55-0c7e1d3f9b21")
	dictV = uuid.MustParse("0b9d7c51-3e6a-4f08-8c2d-7a4e5f6b1c90")
)

func openStore(t *testing.T) *history.Store {
	t.Helper()
	store, err := history.Open(context.Background(), filepath.Join(t.TempDir(), "state", "history.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestOpenAppliesMigrationsTwice(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	ctx := context.Background()

	first, err := history.Open(ctx, path)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	second, err := history.Open(ctx, path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer second.Close()
	if second.Path() != path {
		t.Fatalf("Path() = %q, want %q", second.Path(), path)
	}
}

func TestAppendRunAndRecent(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC)

	runs := []verify.Result{
		{
			DictionaryID: dictU,
			Status:       verify.StatusSucceeded,
			Verified:     3,
			Total:        3,
			StartedAt:    base,
			FinishedAt:   base.Add(time.Minute),
		},
		{
			DictionaryID: dictV,
			Status:       verify.StatusFailed,
			Verified:     1,
			Total:        2,
			Ordinal:      2,
			Item:         "Field Guide (vol 2 of 2)",
			Message:      "read volume: input/output error",
			PersistErr:   errors.New("disk full"),
			StartedAt:    base.Add(2 * time.Minute),
			FinishedAt:   base.Add(3 * time.Minute),
		},
		{
			DictionaryID: dictU,
			Status:       verify.StatusCorrupted,
			Verified:     1,
			Total:        3,
			Ordinal:      1,
			Item:         "Atlas (vol 1 of 3)",
			StartedAt:    base.Add(4 * time.Minute),
			FinishedAt:   base.Add(5 * time.Minute),
		},
	}
	for _, run := range runs {
		if err := store.AppendRun(ctx, run); err != nil {
			t.Fatalf("AppendRun failed: %v", err)
		}
	}

	all, err := store.Recent(ctx, uuid.Nil, 10)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(all))
	}
	if all[0].Status != "corrupted" || all[2].Status != "succeeded" {
		t.Fatalf("unexpected order: %q, %q, %q", all[0].Status, all[1].Status, all[2].Status)
	}

	failed := all[1]
	if failed.DictionaryID != dictV || failed.Volume != 2 || failed.Verified != 1 || failed.Total != 2 {
		t.Fatalf("unexpected failed entry: %#v", failed)
	}
	if failed.Message != "read volume: input/output error" {
		t.Fatalf("message = %q", failed.Message)
	}
	if failed.PersistError != "disk full" {
		t.Fatalf("persist error = %q", failed.PersistError)
	}
	if !failed.FinishedAt.Equal(base.Add(3 * time.Minute)) {
		t.Fatalf("finished at = %v", failed.FinishedAt)
	}

	onlyU, err := store.Recent(ctx, dictU, 10)
	if err != nil {
		t.Fatalf("Recent(dictU) failed: %v", err)
	}
	if len(onlyU) != 2 {
		t.Fatalf("expected 2 entries for dictU, got %d", len(onlyU))
	}
	for _, entry := range onlyU {
		if entry.DictionaryID != dictU {
			t.Fatalf("unexpected dictionary %s", entry.DictionaryID)
		}
	}
	if onlyU[1].Volume != 0 || onlyU[1].Item != "" {
		t.Fatalf("succeeded run should have no volume, got %#v", onlyU[1])
	}

	limited, err := store.Recent(ctx, uuid.Nil, 1)
	if err != nil {
		t.Fatalf("Recent(limit 1) failed: %v", err)
	}
	if len(limited) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(limited))
	}
}

func TestStoreImplementsRunLog(t *testing.T) {
	var _ verify.RunLog = openStore(t)
}
