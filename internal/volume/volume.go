package volume

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"dictverify/internal/verify"
)

const defaultChunkSize = 256 * 1024

// Volume is one data file of a dictionary. It implements verify.Item.
type Volume struct {
	manifest     Manifest
	id           uuid.UUID
	dataPath     string
	manifestPath string
	chunkSize    int
}

// Open reads the manifest at manifestPath. chunkSize <= 0 selects the default read size.
func Open(manifestPath string, chunkSize int) (*Volume, error) {
	m, err := ReadManifest(manifestPath)
	if err != nil {
		return nil, err
	}
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	dataPath := m.File
	if !filepath.IsAbs(dataPath) {
		dataPath = filepath.Join(filepath.Dir(manifestPath), dataPath)
	}
	return &Volume{
		manifest:     m,
		id:           uuid.MustParse(strings.TrimSpace(m.DictionaryID)),
		dataPath:     dataPath,
		manifestPath: manifestPath,
		chunkSize:    chunkSize,
	}, nil
}

func (v *Volume) DictionaryID() uuid.UUID { return v.id }

func (v *Volume) Name() string { return v.DisplayTitle(true) }

// DataPath returns the absolute location of the volume's data file.
func (v *Volume) DataPath() string { return v.dataPath }

// Number is the volume's 1-based position within its dictionary.
func (v *Volume) Number() int { return v.manifest.Volume }

// DisplayTitle renders "Title Version", optionally followed by "(vol i of n)"
// when the dictionary spans more than one volume.
func (v *Volume) DisplayTitle(withVolume bool) string {
	var b strings.Builder
	b.WriteString(titleCaser.String(strings.TrimSpace(v.manifest.Title)))
	if version := strings.TrimSpace(v.manifest.Version); version != "" {
		b.WriteByte(' ')
		b.WriteString(version)
	}
	if withVolume && v.manifest.Of > 1 {
		b.WriteString(" (vol ")
		b.WriteString(strconv.Itoa(v.manifest.Volume))
		b.WriteString(" of ")
		b.WriteString(strconv.Itoa(v.manifest.Of))
		b.WriteByte(')')
	}
	return b.String()
}

var titleCaser = cases.Title(language.Und, cases.NoLower)

// Verify hashes the data file and compares the digest with the manifest.
// A readable file whose digest differs is OutcomeCorrupted; a file that
// cannot be read is an error.
func (v *Volume) Verify(ctx context.Context, sink verify.ProgressSink) (verify.Outcome, error) {
	file, err := os.Open(v.dataPath)
	if err != nil {
		return 0, fmt.Errorf("open volume: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat volume: %w", err)
	}
	size := info.Size()

	hasher := sha256.New()
	buf := make([]byte, v.chunkSize)
	var read int64
	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		n, readErr := file.Read(buf)
		if n > 0 {
			hasher.Write(buf[:n])
			read += int64(n)
			if !sink.Update(progressFraction(read, size)) {
				if err := ctx.Err(); err != nil {
					return 0, err
				}
				return 0, verify.ErrInterrupted
			}
		}
		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			return 0, fmt.Errorf("read volume: %w", readErr)
		}
	}
	if size == 0 {
		sink.Update(1)
	}

	expected := strings.ToLower(strings.TrimSpace(v.manifest.SHA256))
	if hex.EncodeToString(hasher.Sum(nil)) != expected {
		return verify.OutcomeCorrupted, nil
	}
	return verify.OutcomeOK, nil
}

func progressFraction(read, size int64) float64 {
	if size <= 0 || read >= size {
		return 1
	}
	return float64(read) / float64(size)
}
