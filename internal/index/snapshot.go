package index

import (
	"sort"
	"time"

	"github.com/Aman-CERP/notebrain/internal/store"
)

// FileState is what change detection knows about one document.
type FileState struct {
	Hash    string
	ModTime time.Time
}

// Snapshot maps document IDs to their state at one point in time.
type Snapshot map[string]FileState

// ChangeSet lists document IDs that differ between two snapshots. Each list
// is sorted and the three are disjoint.
type ChangeSet struct {
	Added   []string
	Updated []string
	Removed []string
}

// IsEmpty reports whether nothing changed.
func (c ChangeSet) IsEmpty() bool {
	return len(c.Added) == 0 && len(c.Updated) == 0 && len(c.Removed) == 0
}

// Len returns the number of changed documents.
func (c ChangeSet) Len() int {
	return len(c.Added) + len(c.Updated) + len(c.Removed)
}

// Diff compares two snapshots by content hash. A document whose only change
// is its modification time is not reported.
func Diff(previous, current Snapshot) ChangeSet {
	cs := ChangeSet{Added: []string{}, Updated: []string{}, Removed: []string{}}
	for id, cur := range current {
		prev, ok := previous[id]
		switch {
		case !ok:
			cs.Added = append(cs.Added, id)
		case prev.Hash != cur.Hash:
			cs.Updated = append(cs.Updated, id)
		}
	}
	for id := range previous {
		if _, ok := current[id]; !ok {
			cs.Removed = append(cs.Removed, id)
		}
	}
	sort.Strings(cs.Added)
	sort.Strings(cs.Updated)
	sort.Strings(cs.Removed)
	return cs
}

// SnapshotFromRecords builds the snapshot of what is currently indexed.
func SnapshotFromRecords(docs []*store.DocumentRecord) Snapshot {
	snap := make(Snapshot, len(docs))
	for _, d := range docs {
		snap[d.ID] = FileState{Hash: d.ContentHash, ModTime: d.ModTime}
	}
	return snap
}
