package volume

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/pelletier/go-toml/v2"

	"dictverify/internal/fileutil"
)

// ManifestExt is the extension of volume manifest files.
const ManifestExt = ".toml"

var ErrInvalidManifest = errors.New("invalid volume manifest")

// Manifest describes one volume file.
type Manifest struct {
	DictionaryID string `toml:"dictionary_id"`
	Title        string `toml:"title"`
	Version      string `toml:"version,omitempty"`
	Volume       int    `toml:"volume"`
	Of           int    `toml:"of"`
	ArticleCount int    `toml:"article_count,omitempty"`
	// File is the data file, relative to the manifest's directory unless absolute.
	File   string `toml:"file"`
	SHA256 string `toml:"sha256"`
}

// ReadManifest parses and validates the manifest at path.
func ReadManifest(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	decoder := toml.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&m); err != nil {
		return Manifest{}, fmt.Errorf("%w: %s: %w", ErrInvalidManifest, path, err)
	}
	if err := m.validate(); err != nil {
		return Manifest{}, fmt.Errorf("%w: %s: %w", ErrInvalidManifest, path, err)
	}
	return m, nil
}

func (m Manifest) validate() error {
	if _, err := uuid.Parse(strings.TrimSpace(m.DictionaryID)); err != nil {
		return fmt.Errorf("dictionary_id: %w", err)
	}
	if strings.TrimSpace(m.Title) == "" {
		return errors.New("title is required")
	}
	if m.Volume < 1 {
		return errors.New("volume must be 1 or greater")
	}
	if m.Of < m.Volume {
		return fmt.Errorf("of (%d) must not be less than volume (%d)", m.Of, m.Volume)
	}
	if strings.TrimSpace(m.File) == "" {
		return errors.New("file is required")
	}
	digest, err := hex.DecodeString(strings.TrimSpace(m.SHA256))
	if err != nil || len(digest) != sha256.Size {
		return errors.New("sha256 must be a 64 character hex digest")
	}
	return nil
}

// WriteManifest validates m and writes it to path.
func WriteManifest(path string, m Manifest) error {
	if err := m.validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidManifest, err)
	}
	data, err := toml.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	if err := fileutil.WriteFileAtomic(path, data, 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

// Describe fills in m.File and m.SHA256 from the data file at dataPath.
// When m.DictionaryID is empty a new identity is generated.
func Describe(dataPath string, m Manifest) (Manifest, error) {
	digest, err := fileutil.HashFile(dataPath)
	if err != nil {
		return Manifest{}, fmt.Errorf("hash volume: %w", err)
	}

	if strings.TrimSpace(m.DictionaryID) == "" {
		m.DictionaryID = uuid.NewString()
	}
	if m.Volume == 0 {
		m.Volume = 1
	}
	if m.Of == 0 {
		m.Of = m.Volume
	}
	m.File = filepath.Base(dataPath)
	m.SHA256 = digest
	return m, nil
}

// ManifestPathFor returns the manifest location conventionally paired with dataPath.
func ManifestPathFor(dataPath string) string {
	return strings.TrimSuffix(dataPath, filepath.Ext(dataPath)) + ManifestExt
}
