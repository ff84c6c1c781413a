package cert

import (
	"sort"
	"sync"
)

// MemoryStore is an in-memory TrustStore, used by tests and for ad-hoc
// trust handed in on the command line.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[Fingerprint]TrustEntry
}

// NewMemoryStore creates an empty in-memory trust store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[Fingerprint]TrustEntry),
	}
}

// Add trusts a fingerprint.
func (s *MemoryStore) Add(entry TrustEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[entry.Fingerprint]; exists {
		return ErrAlreadyTrusted
	}
	s.entries[entry.Fingerprint] = entry
	return nil
}

// Contains reports whether the fingerprint is trusted.
func (s *MemoryStore) Contains(fp Fingerprint) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, exists := s.entries[fp]
	return exists
}

// Remove revokes trust.
func (s *MemoryStore) Remove(fp Fingerprint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[fp]; !exists {
		return ErrNotTrusted
	}
	delete(s.entries, fp)
	return nil
}

// List returns all entries, ordered by AddedAt.
func (s *MemoryStore) List() []TrustEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]TrustEntry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].AddedAt.Before(entries[j].AddedAt)
	})
	return entries
}

// Count returns the number of trusted fingerprints.
func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Save is a no-op for the in-memory store.
func (s *MemoryStore) Save() error { return nil }

// Load is a no-op for the in-memory store.
func (s *MemoryStore) Load() error { return nil }

// Compile-time interface satisfaction check.
var _ TrustStore = (*MemoryStore)(nil)
