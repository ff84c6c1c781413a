package cert

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"math/big"
	"testing"
	"time"
)

// makeCert builds a self-signed certificate with an explicit validity
// window so expiry handling can be tested directly.
func makeCert(t *testing.T, notBefore, notAfter time.Time) *x509.Certificate {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}
	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "test-peer"},
		NotBefore:    notBefore,
		NotAfter:     notAfter,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("CreateCertificate failed: %v", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("ParseCertificate failed: %v", err)
	}
	return cert
}

func TestVerifyFingerprint(t *testing.T) {
	now := time.Now()

	t.Run("Trusted", func(t *testing.T) {
		cert := makeCert(t, now.Add(-time.Hour), now.Add(time.Hour))
		store := NewMemoryStore()
		if err := store.Add(TrustEntry{Fingerprint: FingerprintOf(cert), AddedAt: now}); err != nil {
			t.Fatalf("Add failed: %v", err)
		}

		if err := VerifyFingerprint(cert, store); err != nil {
			t.Errorf("VerifyFingerprint of trusted cert: %v", err)
		}
	})

	t.Run("Untrusted", func(t *testing.T) {
		cert := makeCert(t, now.Add(-time.Hour), now.Add(time.Hour))
		store := NewMemoryStore()

		err := VerifyFingerprint(cert, store)
		if !errors.Is(err, ErrNotTrusted) {
			t.Errorf("got %v, want ErrNotTrusted", err)
		}
	})

	t.Run("Expired", func(t *testing.T) {
		cert := makeCert(t, now.Add(-2*time.Hour), now.Add(-time.Hour))
		store := NewMemoryStore()
		if err := store.Add(TrustEntry{Fingerprint: FingerprintOf(cert), AddedAt: now}); err != nil {
			t.Fatalf("Add failed: %v", err)
		}

		err := VerifyFingerprint(cert, store)
		if !errors.Is(err, ErrCertExpired) {
			t.Errorf("got %v, want ErrCertExpired", err)
		}
	})

	t.Run("NotYetValid", func(t *testing.T) {
		cert := makeCert(t, now.Add(time.Hour), now.Add(2*time.Hour))
		store := NewMemoryStore()
		if err := store.Add(TrustEntry{Fingerprint: FingerprintOf(cert), AddedAt: now}); err != nil {
			t.Fatalf("Add failed: %v", err)
		}

		err := VerifyFingerprint(cert, store)
		if !errors.Is(err, ErrCertNotYetValid) {
			t.Errorf("got %v, want ErrCertNotYetValid", err)
		}
	})
}

func TestVerifyPeerCertificate(t *testing.T) {
	now := time.Now()
	cert := makeCert(t, now.Add(-time.Hour), now.Add(time.Hour))
	store := NewMemoryStore()
	if err := store.Add(TrustEntry{Fingerprint: FingerprintOf(cert), AddedAt: now}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	verify := VerifyPeerCertificate(store)

	t.Run("TrustedDER", func(t *testing.T) {
		if err := verify([][]byte{cert.Raw}, nil); err != nil {
			t.Errorf("verify of trusted DER: %v", err)
		}
	})

	t.Run("UntrustedDER", func(t *testing.T) {
		other := makeCert(t, now.Add(-time.Hour), now.Add(time.Hour))
		err := verify([][]byte{other.Raw}, nil)
		if !errors.Is(err, ErrNotTrusted) {
			t.Errorf("got %v, want ErrNotTrusted", err)
		}
	})

	t.Run("NoCertificate", func(t *testing.T) {
		err := verify(nil, nil)
		if !errors.Is(err, ErrNoPeerCertificate) {
			t.Errorf("got %v, want ErrNoPeerCertificate", err)
		}
	})

	t.Run("MalformedDER", func(t *testing.T) {
		if err := verify([][]byte{[]byte("garbage")}, nil); err == nil {
			t.Error("verify of malformed DER succeeded, want error")
		}
	})
}
