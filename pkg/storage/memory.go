package storage

import "sync"

// MemoryStore is the in-process Store. It is safe for concurrent use.
type MemoryStore struct {
	mu         sync.RWMutex
	snapshots  []Snapshot
	newData    bool
	overflowed bool
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Record stores s. With stacking, s is appended to the history and the
// overflow flag is left as is. Without stacking, s replaces whatever was
// stored and the overflow flag reports whether the previous snapshot was
// still unread.
func (m *MemoryStore) Record(s Snapshot, stacking bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if stacking {
		m.snapshots = append(m.snapshots, s)
	} else {
		m.overflowed = m.newData
		m.snapshots = []Snapshot{s}
	}
	m.newData = true
}

// Latest returns the most recent snapshot, if any.
func (m *MemoryStore) Latest() (Snapshot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.snapshots) == 0 {
		return Snapshot{}, false
	}
	return m.snapshots[len(m.snapshots)-1].Clone(), true
}

// All returns a deep copy of every retained snapshot, oldest first.
func (m *MemoryStore) All() []Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Snapshot, len(m.snapshots))
	for i, s := range m.snapshots {
		out[i] = s.Clone()
	}
	return out
}

func (m *MemoryStore) NewData() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.newData
}

// ClearNewData acknowledges the latest snapshot.
func (m *MemoryStore) ClearNewData() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.newData = false
}

func (m *MemoryStore) Overflowed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.overflowed
}

// Reset drops every snapshot and clears both flags.
func (m *MemoryStore) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots = nil
	m.newData = false
	m.overflowed = false
}

// Len returns the number of retained snapshots.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.snapshots)
}
