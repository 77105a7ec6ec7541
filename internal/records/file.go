package records

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"dictverify/internal/fileutil"
)

// ErrCorrupted reports a record file that exists but cannot be decoded.
var ErrCorrupted = errors.New("verification records corrupted")

const fileVersion = 1

type fileEnvelope struct {
	Version int      `json:"version"`
	Records []Record `json:"records"`
}

// File loads and saves the record map at a fixed path.
type File struct {
	path string
	lock *flock.Flock
}

// NewFile returns a File for path. Nothing touches the filesystem until Load or Save.
func NewFile(path string) *File {
	return &File{path: path, lock: flock.New(path + ".lock")}
}

// Path returns the location of the record file.
func (f *File) Path() string {
	return f.path
}

// Load reads the record map. A missing file yields an empty map and no error.
// An unreadable or undecodable file yields an error wrapping ErrCorrupted.
func (f *File) Load() (map[uuid.UUID]Record, error) {
	records := make(map[uuid.UUID]Record)

	if _, err := os.Stat(filepath.Dir(f.path)); errors.Is(err, fs.ErrNotExist) {
		return records, nil
	}
	if err := f.lock.RLock(); err != nil {
		return records, fmt.Errorf("lock record file: %w", err)
	}
	defer f.lock.Unlock() //nolint:errcheck

	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return records, nil
		}
		return records, fmt.Errorf("%w: read %s: %w", ErrCorrupted, f.path, err)
	}
	if len(data) == 0 {
		return records, nil
	}

	var envelope fileEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return records, fmt.Errorf("%w: parse %s: %w", ErrCorrupted, f.path, err)
	}
	if envelope.Version != fileVersion {
		return records, fmt.Errorf("%w: unsupported version %d", ErrCorrupted, envelope.Version)
	}

	for _, rec := range envelope.Records {
		if rec.DictionaryID == uuid.Nil {
			continue
		}
		records[rec.DictionaryID] = rec
	}
	return records, nil
}

// Save rewrites the whole map. The previous file is replaced only after the
// new content has been fully written and synced.
func (f *File) Save(records map[uuid.UUID]Record) error {
	envelope := fileEnvelope{Version: fileVersion, Records: Sorted(records)}
	data, err := json.MarshalIndent(envelope, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal records: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create record directory: %w", err)
	}

	if err := f.lock.Lock(); err != nil {
		return fmt.Errorf("lock record file: %w", err)
	}
	defer f.lock.Unlock() //nolint:errcheck

	if err := fileutil.WriteFileAtomic(f.path, data, 0o644); err != nil {
		return fmt.Errorf("save records: %w", err)
	}
	return nil
}
