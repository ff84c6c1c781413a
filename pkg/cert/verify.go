package cert

import (
	"crypto/x509"
	"errors"
	"fmt"
	"time"
)

// Verification errors.
var (
	ErrNoPeerCertificate = errors.New("no peer certificate presented")
	ErrCertExpired       = errors.New("certificate has expired")
	ErrCertNotYetValid   = errors.New("certificate is not yet valid")
)

// VerifyFingerprint checks the certificate's validity window and looks its
// fingerprint up in the trust store. Chain building is deliberately absent:
// peers present self-signed certificates and trust is pinned per
// fingerprint exchange, not delegated to a CA.
func VerifyFingerprint(c *x509.Certificate, store TrustStore) error {
	if c == nil {
		return ErrNoPeerCertificate
	}

	now := time.Now()
	if now.Before(c.NotBefore) {
		return ErrCertNotYetValid
	}
	if now.After(c.NotAfter) {
		return ErrCertExpired
	}

	fp := FingerprintOf(c)
	if !store.Contains(fp) {
		return fmt.Errorf("%w: %s", ErrNotTrusted, fp)
	}
	return nil
}

// VerifyPeerCertificate creates a tls.Config.VerifyPeerCertificate callback
// that accepts peers whose certificate fingerprint is in the store. Used
// together with InsecureSkipVerify, which disables only the chain and host
// checks this callback replaces.
func VerifyPeerCertificate(store TrustStore) func(rawCerts [][]byte, verifiedChains [][]*x509.Certificate) error {
	return func(rawCerts [][]byte, verifiedChains [][]*x509.Certificate) error {
		if len(rawCerts) == 0 {
			return ErrNoPeerCertificate
		}

		peerCert, err := x509.ParseCertificate(rawCerts[0])
		if err != nil {
			return fmt.Errorf("parse peer certificate: %w", err)
		}

		return VerifyFingerprint(peerCert, store)
	}
}
