package cert

import (
	"errors"
	"time"
)

// Trust store errors.
var (
	ErrNotTrusted     = errors.New("fingerprint not trusted")
	ErrAlreadyTrusted = errors.New("fingerprint already trusted")
)

// TrustEntry records one trusted peer certificate.
type TrustEntry struct {
	// Fingerprint of the peer certificate.
	Fingerprint Fingerprint `cbor:"1,keyasint"`

	// Name is an optional human label (screen name or host).
	Name string `cbor:"2,keyasint,omitempty"`

	// AddedAt records when the peer was first trusted.
	AddedAt time.Time `cbor:"3,keyasint"`
}

// TrustStore holds the certificate fingerprints of trusted peers. The
// server consults a store of trusted clients, the client a store of
// trusted servers. Implementations must be safe for concurrent access.
type TrustStore interface {
	// Add trusts a fingerprint. Returns ErrAlreadyTrusted when present.
	Add(entry TrustEntry) error

	// Contains reports whether the fingerprint is trusted.
	Contains(fp Fingerprint) bool

	// Remove revokes trust. Returns ErrNotTrusted when absent.
	Remove(fp Fingerprint) error

	// List returns all entries, ordered by AddedAt.
	List() []TrustEntry

	// Count returns the number of trusted fingerprints.
	Count() int

	// Save persists the store to its backing storage.
	// For in-memory stores this is a no-op.
	Save() error

	// Load reads the store from its backing storage, replacing the
	// in-memory contents. For in-memory stores this is a no-op.
	Load() error
}
