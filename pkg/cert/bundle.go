package cert

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
)

// Bundle load errors.
var (
	ErrBundleNotFound = errors.New("certificate bundle not found")
	ErrBundleInvalid  = errors.New("certificate bundle invalid")
)

// Bundle is a loaded TLS acceptor credential: the private key and
// certificate read from a single PEM file, plus derived identity.
type Bundle struct {
	// Path the bundle was loaded from.
	Path string

	// Certificate is ready for use in a tls.Config.
	Certificate tls.Certificate

	// Leaf is the parsed certificate.
	Leaf *x509.Certificate

	// Fingerprint identifies this credential to peers.
	Fingerprint Fingerprint
}

// LoadBundle reads a combined PEM file (certificate and private key in one
// file) from path. The path comes from Locator.Resolve; a missing or
// malformed file is the certificate-load failure class, never fatal to the
// listener that requested it.
func LoadBundle(path string) (*Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrBundleNotFound, path)
		}
		return nil, fmt.Errorf("read bundle %s: %w", path, err)
	}

	// The same bytes carry both blocks; X509KeyPair picks out each.
	tlsCert, err := tls.X509KeyPair(data, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrBundleInvalid, path, err)
	}

	leaf, err := x509.ParseCertificate(tlsCert.Certificate[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrBundleInvalid, path, err)
	}
	tlsCert.Leaf = leaf

	return &Bundle{
		Path:        path,
		Certificate: tlsCert,
		Leaf:        leaf,
		Fingerprint: FingerprintOf(leaf),
	}, nil
}
