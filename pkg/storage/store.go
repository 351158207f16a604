// Package storage keeps the snapshots produced by successive polls.
package storage

import "time"

// Batch holds one group's arrays, parallel to the group's selected buffers.
type Batch [][]float64

// Snapshot is the complete result of one poll, parallel to the Selection it
// was polled with.
type Snapshot struct {
	// Sequence numbers snapshots in poll order, starting at 1.
	Sequence uint64
	PolledAt time.Time
	Mode     string
	Groups   []Batch
}

// Clone returns a deep copy of s.
func (s Snapshot) Clone() Snapshot {
	out := s
	if s.Groups == nil {
		return out
	}
	out.Groups = make([]Batch, len(s.Groups))
	for i, batch := range s.Groups {
		if batch == nil {
			continue
		}
		cp := make(Batch, len(batch))
		for j, values := range batch {
			cp[j] = append([]float64(nil), values...)
		}
		out.Groups[i] = cp
	}
	return out
}

// Store retains snapshots either as a growing history (stacking) or as a
// single latest snapshot (overwrite).
//
// The store raises NewData on every Record and never clears it itself: the
// reader acknowledges consumption with ClearNewData. In overwrite mode a
// Record that finds NewData still raised replaces an unread snapshot and
// marks the store as overflowed.
type Store interface {
	Record(s Snapshot, stacking bool)
	Latest() (Snapshot, bool)
	All() []Snapshot
	NewData() bool
	ClearNewData()
	Overflowed() bool
	Reset()
}
