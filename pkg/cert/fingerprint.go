package cert

import (
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidFingerprint is returned when parsing malformed fingerprint text.
var ErrInvalidFingerprint = errors.New("invalid fingerprint")

// Fingerprint is the SHA-256 digest of a certificate in DER form. It is
// the identity peers are trusted by: self-signed certificates carry no
// chain, so trust decisions compare fingerprints against a local store.
type Fingerprint [sha256.Size]byte

// NewFingerprint computes the fingerprint of DER-encoded certificate bytes.
func NewFingerprint(der []byte) Fingerprint {
	return sha256.Sum256(der)
}

// FingerprintOf computes the fingerprint of a parsed certificate.
func FingerprintOf(c *x509.Certificate) Fingerprint {
	return NewFingerprint(c.Raw)
}

// ParseFingerprint parses the display form produced by String, with or
// without colon separators, case-insensitively.
func ParseFingerprint(s string) (Fingerprint, error) {
	cleaned := strings.ReplaceAll(strings.TrimSpace(s), ":", "")
	raw, err := hex.DecodeString(cleaned)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("%w: %v", ErrInvalidFingerprint, err)
	}
	if len(raw) != sha256.Size {
		return Fingerprint{}, fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidFingerprint, len(raw), sha256.Size)
	}

	var fp Fingerprint
	copy(fp[:], raw)
	return fp, nil
}

// String returns the display form: uppercase hex octets joined by colons,
// the format shown to users when confirming a new peer.
func (fp Fingerprint) String() string {
	parts := make([]string, len(fp))
	for i, b := range fp {
		parts[i] = fmt.Sprintf("%02X", b)
	}
	return strings.Join(parts, ":")
}

// Hex returns the compact lowercase hex form used in TXT records and files.
func (fp Fingerprint) Hex() string {
	return hex.EncodeToString(fp[:])
}

// IsZero reports whether the fingerprint is unset.
func (fp Fingerprint) IsZero() bool {
	return fp == Fingerprint{}
}
