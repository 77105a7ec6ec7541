package records

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// Record is the outcome of the most recent verification of one dictionary.
type Record struct {
	DictionaryID uuid.UUID `json:"dictionary_id"`
	Passed       bool      `json:"passed"`
	CheckedAt    time.Time `json:"checked_at"`
}

// Result renders the outcome as shown to users.
func (r Record) Result() string {
	if r.Passed {
		return "ok"
	}
	return "corrupted"
}

// Sorted returns the records newest first, breaking ties by identity so the
// order is deterministic.
func Sorted(m map[uuid.UUID]Record) []Record {
	out := make([]Record, 0, len(m))
	for _, rec := range m {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CheckedAt.Equal(out[j].CheckedAt) {
			return out[i].CheckedAt.After(out[j].CheckedAt)
		}
		return out[i].DictionaryID.String() < out[j].DictionaryID.String()
	})
	return out
}
