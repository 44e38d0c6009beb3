package export

import (
	"github.com/cespare/xxhash/v2"
)

// index is a membership set of previously written records.
// Entries are bucketed by their xxhash digest and confirmed by exact
// comparison, so hash collisions never cause a record to be skipped.
type index struct {
	buckets map[uint64][]string
	size    int
}

func newIndex() *index {
	return &index{buckets: make(map[uint64][]string)}
}

// Contains reports whether s is in the index.
func (ix *index) Contains(s string) bool {
	for _, candidate := range ix.buckets[xxhash.Sum64String(s)] {
		if candidate == s {
			return true
		}
	}
	return false
}

// Add inserts s and reports whether it was new.
func (ix *index) Add(s string) bool {
	h := xxhash.Sum64String(s)
	for _, candidate := range ix.buckets[h] {
		if candidate == s {
			return false
		}
	}
	ix.buckets[h] = append(ix.buckets[h], s)
	ix.size++
	return true
}

// Len returns the number of distinct entries.
func (ix *index) Len() int {
	return ix.size
}
