package volume

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"dictverify/internal/logging"
	"dictverify/internal/verify"
)

// Dictionary is the set of volumes sharing one identity, ordered by volume number.
type Dictionary struct {
	ID      uuid.UUID
	Volumes []*Volume
}

// Title is the display title of the dictionary without a volume suffix.
func (d Dictionary) Title() string {
	if len(d.Volumes) == 0 {
		return d.ID.String()
	}
	return d.Volumes[0].DisplayTitle(false)
}

// ArticleCount is the article count declared by the first volume.
func (d Dictionary) ArticleCount() int {
	if len(d.Volumes) == 0 {
		return 0
	}
	return d.Volumes[0].manifest.ArticleCount
}

// TotalVolumes is the number of volumes the dictionary declares.
func (d Dictionary) TotalVolumes() int {
	total := 0
	for _, v := range d.Volumes {
		total = max(total, v.manifest.Of)
	}
	return total
}

// Items returns the volumes as verification items.
func (d Dictionary) Items() []verify.Item {
	items := make([]verify.Item, len(d.Volumes))
	for i, v := range d.Volumes {
		items[i] = v
	}
	return items
}

// Options tunes Discover.
type Options struct {
	ChunkSize int
	Logger    *slog.Logger
}

// Discover walks dir for manifests and groups them into dictionaries sorted
// by title. Invalid manifests and duplicate volume numbers are logged and
// skipped. A missing directory yields no dictionaries.
func Discover(dir string, opts Options) ([]Dictionary, error) {
	logger := logging.NewComponentLogger(opts.Logger, "volume")
	groups := make(map[uuid.UUID]map[int]*Volume)

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir && errors.Is(err, fs.ErrNotExist) {
				return fs.SkipAll
			}
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ManifestExt) {
			return nil
		}
		vol, err := Open(path, opts.ChunkSize)
		if err != nil {
			logging.WarnWithContext(logger, "skipping invalid volume manifest",
				"volume_manifest_invalid",
				logging.String("path", path),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "fix or remove the manifest"),
				logging.String(logging.FieldImpact, "the volume is not listed or verified"))
			return nil
		}
		byNumber := groups[vol.id]
		if byNumber == nil {
			byNumber = make(map[int]*Volume)
			groups[vol.id] = byNumber
		}
		if existing, dup := byNumber[vol.Number()]; dup {
			logging.WarnWithContext(logger, "duplicate volume number",
				"volume_duplicate",
				logging.String(logging.FieldDictionaryID, vol.id.String()),
				logging.Int(logging.FieldVolume, vol.Number()),
				logging.String("kept", existing.manifestPath),
				logging.String("skipped", path),
				logging.String(logging.FieldImpact, "only the first manifest is verified"))
			return nil
		}
		byNumber[vol.Number()] = vol
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan dictionary directory: %w", err)
	}

	dicts := make([]Dictionary, 0, len(groups))
	for id, byNumber := range groups {
		vols := make([]*Volume, 0, len(byNumber))
		for _, v := range byNumber {
			vols = append(vols, v)
		}
		sort.Slice(vols, func(i, j int) bool { return vols[i].Number() < vols[j].Number() })
		dicts = append(dicts, Dictionary{ID: id, Volumes: vols})
	}
	sort.Slice(dicts, func(i, j int) bool {
		ti, tj := strings.ToLower(dicts[i].Title()), strings.ToLower(dicts[j].Title())
		if ti != tj {
			return ti < tj
		}
		return dicts[i].ID.String() < dicts[j].ID.String()
	})
	return dicts, nil
}

// Find selects a dictionary by full identity, identity prefix, or
// case-insensitive title. Ambiguous prefixes or titles match nothing.
func Find(dicts []Dictionary, query string) (Dictionary, bool) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Dictionary{}, false
	}
	if id, err := uuid.Parse(query); err == nil {
		for _, d := range dicts {
			if d.ID == id {
				return d, true
			}
		}
		return Dictionary{}, false
	}

	var match Dictionary
	matches := 0
	lower := strings.ToLower(query)
	for _, d := range dicts {
		if strings.HasPrefix(d.ID.String(), lower) || strings.EqualFold(d.Title(), query) {
			match = d
			matches++
		}
	}
	return match, matches == 1
}
