package cert

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"time"
)

// DefaultValidity is the validity period for generated bundles. Self-signed
// credentials are pinned by fingerprint, so rotation forces re-trusting on
// every peer; a long period avoids that churn.
const DefaultValidity = 10 * 365 * 24 * time.Hour

// GenerateBundle creates a self-signed ECDSA P-256 credential, writes it to
// path as a combined PEM file (key first, 0600), and returns the loaded
// bundle. Parent directories are created as needed.
func GenerateBundle(path, commonName string, validity time.Duration) (*Bundle, error) {
	if validity <= 0 {
		validity = DefaultValidity
	}

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}

	der, err := createSelfSigned(commonName, key, validity)
	if err != nil {
		return nil, err
	}

	if err := writeBundleFile(path, der, key); err != nil {
		return nil, err
	}

	return LoadBundle(path)
}

// createSelfSigned builds a self-signed certificate for commonName and
// returns the DER bytes.
func createSelfSigned(commonName string, key *ecdsa.PrivateKey, validity time.Duration) ([]byte, error) {
	serialNumber, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("generate serial: %w", err)
	}

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber: serialNumber,
		Subject: pkix.Name{
			CommonName:   commonName,
			Organization: []string{"Deskflow"},
		},
		// Backdated an hour so clock skew between peers does not reject a
		// freshly generated credential.
		NotBefore:             now.Add(-time.Hour),
		NotAfter:              now.Add(validity),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
		IsCA:                  false,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return nil, fmt.Errorf("create certificate: %w", err)
	}
	return der, nil
}

// writeBundleFile writes the combined PEM bundle with key material first.
// The file carries the private key, so permissions are restricted.
func writeBundleFile(path string, certDER []byte, key *ecdsa.PrivateKey) error {
	keyPEM, err := EncodeKeyPEM(key)
	if err != nil {
		return fmt.Errorf("encode key: %w", err)
	}

	leaf, err := x509.ParseCertificate(certDER)
	if err != nil {
		return fmt.Errorf("parse generated certificate: %w", err)
	}
	certPEM := EncodeCertPEM(leaf)

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create bundle directory: %w", err)
	}

	data := append(keyPEM, certPEM...)
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write bundle %s: %w", path, err)
	}
	return nil
}
