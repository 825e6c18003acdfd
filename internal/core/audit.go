package core

import (
	"cmp"
	"iter"
	"slices"
	"sort"

	"smartloan/pkg/domain"
)

// AuditLog is the append-only history of committed mutations for one session.
// Entry IDs are assigned on append and increase monotonically; they are never
// reused, even after eviction.
type AuditLog struct {
	entries []domain.AuditEntry
	nextID  uint64
}

// NewAuditLog returns an empty log whose first entry will receive ID 1.
func NewAuditLog() *AuditLog {
	return &AuditLog{nextID: 1}
}

// Append assigns the next ID to entry, stores a copy and returns it.
func (l *AuditLog) Append(entry domain.AuditEntry) domain.AuditEntry {
	entry = entry.Clone()
	entry.ID = l.nextID
	l.nextID++
	l.entries = append(l.entries, entry)
	return entry.Clone()
}

// Recent returns up to n entries, newest first.
func (l *AuditLog) Recent(n int) []domain.AuditEntry {
	if n <= 0 || len(l.entries) == 0 {
		return nil
	}
	n = min(n, len(l.entries))
	out := make([]domain.AuditEntry, 0, n)
	for i := len(l.entries) - 1; i >= len(l.entries)-n; i-- {
		out = append(out, l.entries[i].Clone())
	}
	return out
}

// All yields every retained entry in insertion order.
func (l *AuditLog) All() iter.Seq[domain.AuditEntry] {
	return func(yield func(domain.AuditEntry) bool) {
		for _, e := range l.entries {
			if !yield(e.Clone()) {
				return
			}
		}
	}
}

// EvictOlderThan drops every entry whose ID is below id and returns how many
// were removed. It is the only destructive operation on the log.
func (l *AuditLog) EvictOlderThan(id uint64) int {
	idx := sort.Search(len(l.entries), func(i int) bool { return l.entries[i].ID >= id })
	if idx == 0 {
		return 0
	}
	l.entries = slices.Clone(l.entries[idx:])
	return idx
}

// Len returns the number of retained entries.
func (l *AuditLog) Len() int { return len(l.entries) }

// LastID returns the ID of the most recent append, or zero when nothing was
// ever appended.
func (l *AuditLog) LastID() uint64 { return l.nextID - 1 }

func (l *AuditLog) snapshot() ([]domain.AuditEntry, uint64) {
	out := make([]domain.AuditEntry, len(l.entries))
	for i, e := range l.entries {
		out[i] = e.Clone()
	}
	return out, l.nextID
}

func restoreAuditLog(entries []domain.AuditEntry, nextID uint64) *AuditLog {
	l := &AuditLog{nextID: nextID}
	for _, e := range entries {
		l.entries = append(l.entries, e.Clone())
		if e.ID >= l.nextID {
			l.nextID = e.ID + 1
		}
	}
	slices.SortFunc(l.entries, func(a, b domain.AuditEntry) int { return cmp.Compare(a.ID, b.ID) })
	if l.nextID == 0 {
		l.nextID = 1
	}
	return l
}
