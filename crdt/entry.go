// Package crdt holds the last-writer-wins rules shared by entries replicated
// over the gossip layer.
package crdt

// Entry is a replicated record carrying its last add and delete timestamps.
type Entry interface {
	GetID() string
	GetLastAdded() int64
	GetLastDeleted() int64
}

type Status int

const (
	StatusUnknown Status = iota
	StatusAdded
	StatusRemoved
)

// StatusOf returns whether s was last added or last removed. An entry that
// was never written, or whose timestamps are equal, is unknown.
func StatusOf(s Entry) Status {
	added, deleted := s.GetLastAdded(), s.GetLastDeleted()
	switch {
	case added > 0 && added > deleted:
		return StatusAdded
	case deleted > 0 && deleted > added:
		return StatusRemoved
	default:
		return StatusUnknown
	}
}

func IsEntryAdded(s Entry) bool {
	return StatusOf(s) == StatusAdded
}
func IsEntryRemoved(s Entry) bool {
	return StatusOf(s) == StatusRemoved
}

// LastUpdate returns the timestamp of the latest add or delete of s.
func LastUpdate(s Entry) int64 {
	if s.GetLastAdded() > s.GetLastDeleted() {
		return s.GetLastAdded()
	}
	return s.GetLastDeleted()
}

// IsEntryOutdated reports whether remote must replace local. On equal
// timestamps a remote tombstone replaces a live local entry, so that
// concurrent add and delete converge to the delete on every node.
func IsEntryOutdated(local Entry, remote Entry) bool {
	l, r := LastUpdate(local), LastUpdate(remote)
	if l != r {
		return l < r
	}
	return IsEntryAdded(local) && IsEntryRemoved(remote)
}
