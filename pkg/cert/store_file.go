package cert

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/fxamacker/cbor/v2"
)

// trustFileVersion is the on-disk format version.
const trustFileVersion = 1

// trustFile is the persisted form of a FileStore.
type trustFile struct {
	Version uint8        `cbor:"1,keyasint"`
	Entries []TrustEntry `cbor:"2,keyasint"`
}

// FileStore is a file-backed TrustStore. Entries live in memory between
// Save and Load; the file is CBOR, written with restricted permissions
// since knowing a trusted fingerprint is half of impersonating its owner.
type FileStore struct {
	mu      sync.RWMutex
	path    string
	entries map[Fingerprint]TrustEntry
}

// NewFileStore creates a trust store backed by the file at path. The file
// is not read until Load.
func NewFileStore(path string) *FileStore {
	return &FileStore{
		path:    path,
		entries: make(map[Fingerprint]TrustEntry),
	}
}

// Path returns the backing file path.
func (s *FileStore) Path() string {
	return s.path
}

// Add trusts a fingerprint.
func (s *FileStore) Add(entry TrustEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[entry.Fingerprint]; exists {
		return ErrAlreadyTrusted
	}
	s.entries[entry.Fingerprint] = entry
	return nil
}

// Contains reports whether the fingerprint is trusted.
func (s *FileStore) Contains(fp Fingerprint) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, exists := s.entries[fp]
	return exists
}

// Remove revokes trust.
func (s *FileStore) Remove(fp Fingerprint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[fp]; !exists {
		return ErrNotTrusted
	}
	delete(s.entries, fp)
	return nil
}

// List returns all entries, ordered by AddedAt.
func (s *FileStore) List() []TrustEntry {
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
func (s *FileStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Save writes all entries to the backing file, creating parent directories
// as needed.
func (s *FileStore) Save() error {
	s.mu.RLock()
	doc := trustFile{Version: trustFileVersion}
	doc.Entries = make([]TrustEntry, 0, len(s.entries))
	for _, e := range s.entries {
		doc.Entries = append(doc.Entries, e)
	}
	s.mu.RUnlock()

	sort.Slice(doc.Entries, func(i, j int) bool {
		return doc.Entries[i].AddedAt.Before(doc.Entries[j].AddedAt)
	})

	data, err := cbor.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode trust store: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("create trust store directory: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0600); err != nil {
		return fmt.Errorf("write trust store %s: %w", s.path, err)
	}
	return nil
}

// Load replaces the in-memory entries with the file contents. A missing
// file loads an empty store; that is the normal first-run state.
func (s *FileStore) Load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.mu.Lock()
			s.entries = make(map[Fingerprint]TrustEntry)
			s.mu.Unlock()
			return nil
		}
		return fmt.Errorf("read trust store %s: %w", s.path, err)
	}

	var doc trustFile
	if err := cbor.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("decode trust store %s: %w", s.path, err)
	}
	if doc.Version != trustFileVersion {
		return fmt.Errorf("trust store %s: unsupported version %d", s.path, doc.Version)
	}

	entries := make(map[Fingerprint]TrustEntry, len(doc.Entries))
	for _, e := range doc.Entries {
		entries[e.Fingerprint] = e
	}

	s.mu.Lock()
	s.entries = entries
	s.mu.Unlock()
	return nil
}

// Compile-time interface satisfaction check.
var _ TrustStore = (*FileStore)(nil)
