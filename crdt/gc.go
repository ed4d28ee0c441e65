package crdt

import (
	"sort"
	"time"
)

// ExpireBefore returns the deletion timestamp under which tombstones older
// than retention can be collected.
func ExpireBefore(now time.Time, retention time.Duration) int64 {
	return now.Add(-retention).UnixNano()
}

// Collectable returns the tombstones of entries deleted before limit, sorted
// by ID.
func Collectable(limit int64, entries []Entry) []Entry {
	out := []Entry{}
	for _, entry := range entries {
		if IsEntryRemoved(entry) && entry.GetLastDeleted() < limit {
			out = append(out, entry)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].GetID() < out[j].GetID()
	})
	return out
}
