package volume

import (
	"os"
	"path/filepath"
	"testing"
)

const otherDictID = "6ba7b810-9dad-11d1-80b4-00c04fd430c8"

func TestDiscoverGroupsVolumes(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "wiki")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	writeVolume(t, sub, "wiki-2", []byte("two"), Manifest{DictionaryID: testDictID, Title: "wiki", Volume: 2, Of: 2, ArticleCount: 500})
	writeVolume(t, sub, "wiki-1", []byte("one"), Manifest{DictionaryID: testDictID, Title: "wiki", Volume: 1, Of: 2, ArticleCount: 500})
	writeVolume(t, dir, "atlas", []byte("atlas"), Manifest{DictionaryID: otherDictID, Title: "atlas"})
	if err := os.WriteFile(filepath.Join(dir, "broken.toml"), []byte("not = [valid"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	dicts, err := Discover(dir, Options{})
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(dicts) != 2 {
		t.Fatalf("dictionaries = %d, want 2", len(dicts))
	}
	if dicts[0].Title() != "Atlas" || dicts[1].Title() != "Wiki" {
		t.Fatalf("unexpected order %q, %q", dicts[0].Title(), dicts[1].Title())
	}
	wiki := dicts[1]
	if len(wiki.Volumes) != 2 || wiki.Volumes[0].Number() != 1 || wiki.Volumes[1].Number() != 2 {
		t.Fatal("volumes should be ordered by number")
	}
	if wiki.TotalVolumes() != 2 || wiki.ArticleCount() != 500 {
		t.Fatalf("unexpected totals %d/%d", wiki.TotalVolumes(), wiki.ArticleCount())
	}
	items := wiki.Items()
	if len(items) != 2 || items[0].DictionaryID().String() != testDictID {
		t.Fatal("items should expose the dictionary identity")
	}
}

func TestDiscoverSkipsDuplicateVolumeNumbers(t *testing.T) {
	dir := t.TempDir()
	writeVolume(t, dir, "a", []byte("a"), Manifest{DictionaryID: testDictID, Title: "dup", Volume: 1, Of: 1})
	writeVolume(t, dir, "b", []byte("b"), Manifest{DictionaryID: testDictID, Title: "dup", Volume: 1, Of: 1})

	dicts, err := Discover(dir, Options{})
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(dicts) != 1 || len(dicts[0].Volumes) != 1 {
		t.Fatalf("expected one volume after duplicate, got %+v", dicts)
	}
}

func TestDiscoverMissingDirectory(t *testing.T) {
	dicts, err := Discover(filepath.Join(t.TempDir(), "absent"), Options{})
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(dicts) != 0 {
		t.Fatalf("expected no dictionaries, got %d", len(dicts))
	}
}

func TestFind(t *testing.T) {
	dir := t.TempDir()
	writeVolume(t, dir, "wiki", []byte("w"), Manifest{DictionaryID: testDictID, Title: "wiki"})
	writeVolume(t, dir, "atlas", []byte("a"), Manifest{DictionaryID: otherDictID, Title: "atlas"})
	dicts, _ := Discover(dir, Options{})

	tests := []struct {
		query string
		want  string
		ok    bool
	}{
		{testDictID, testDictID, true},
		{"6ba7", otherDictID, true},
		{"WIKI", testDictID, true},
		{"", "", false},
		{"missing", "", false},
	}
	for _, tt := range tests {
		got, ok := Find(dicts, tt.query)
		if ok != tt.ok {
			t.Fatalf("Find(%q) ok = %v, want %v", tt.query, ok, tt.ok)
		}
		if ok && got.ID.String() != tt.want {
			t.Fatalf("Find(%q) = %s, want %s", tt.query, got.ID, tt.want)
		}
	}
}
