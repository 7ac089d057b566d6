package faultlog

import (
	"sync"
)

// MemoryStore keeps fault entries in memory.
// Data is lost when the process exits.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []Entry
	byID    map[string]int
	closed  bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID: make(map[string]int),
	}
}

// Record implements Store.
func (m *MemoryStore) Record(entry Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	entry = normalize(entry)
	if i, ok := m.byID[entry.ID]; ok {
		m.entries[i] = entry
		return nil
	}
	m.byID[entry.ID] = len(m.entries)
	m.entries = append(m.entries, entry)
	return nil
}

// List implements Store.
func (m *MemoryStore) List(limit int) ([]Entry, error) {
	return m.collect(limit, func(Entry) bool { return true })
}

// ListByEventType implements Store.
func (m *MemoryStore) ListByEventType(eventType string, limit int) ([]Entry, error) {
	return m.collect(limit, func(e Entry) bool { return e.EventType == eventType })
}

// collect walks entries newest first.
func (m *MemoryStore) collect(limit int, keep func(Entry) bool) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	result := []Entry{}
	for i := len(m.entries) - 1; i >= 0; i-- {
		if !keep(m.entries[i]) {
			continue
		}
		result = append(result, m.entries[i])
		if limit > 0 && len(result) == limit {
			break
		}
	}
	return result, nil
}

// Get implements Store.
func (m *MemoryStore) Get(id string) (Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return Entry{}, ErrStoreClosed
	}

	i, ok := m.byID[id]
	if !ok {
		return Entry{}, ErrNotFound
	}
	return m.entries[i], nil
}

// Count implements Store.
func (m *MemoryStore) Count() (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return 0, ErrStoreClosed
	}
	return len(m.entries), nil
}

// Clear implements Store.
func (m *MemoryStore) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}
	m.entries = nil
	m.byID = make(map[string]int)
	return nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.entries = nil
	m.byID = nil
	return nil
}
