package cert

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestGenerateAndLoadBundle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tls", "deskflow.pem")

	generated, err := GenerateBundle(path, "deskflow-server", time.Hour)
	if err != nil {
		t.Fatalf("GenerateBundle failed: %v", err)
	}

	if generated.Leaf == nil {
		t.Fatal("generated bundle has no leaf certificate")
	}
	if generated.Leaf.Subject.CommonName != "deskflow-server" {
		t.Errorf("CommonName = %q, want %q", generated.Leaf.Subject.CommonName, "deskflow-server")
	}
	if generated.Fingerprint.IsZero() {
		t.Error("generated bundle has zero fingerprint")
	}

	// Reload from disk and compare identities.
	loaded, err := LoadBundle(path)
	if err != nil {
		t.Fatalf("LoadBundle failed: %v", err)
	}
	if loaded.Fingerprint != generated.Fingerprint {
		t.Errorf("reloaded fingerprint %s != generated %s", loaded.Fingerprint, generated.Fingerprint)
	}
	if loaded.Path != path {
		t.Errorf("Path = %q, want %q", loaded.Path, path)
	}
	if loaded.Certificate.PrivateKey == nil {
		t.Error("reloaded bundle has no private key")
	}
}

func TestGenerateBundleRestrictsPermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deskflow.pem")

	if _, err := GenerateBundle(path, "perm-check", time.Hour); err != nil {
		t.Fatalf("GenerateBundle failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat failed: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("bundle permissions = %o, want 0600", perm)
	}
}

func TestLoadBundleMissingFile(t *testing.T) {
	_, err := LoadBundle(filepath.Join(t.TempDir(), "absent.pem"))
	if !errors.Is(err, ErrBundleNotFound) {
		t.Errorf("got %v, want ErrBundleNotFound", err)
	}
}

func TestLoadBundleGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage.pem")
	if err := os.WriteFile(path, []byte("not pem at all"), 0600); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	_, err := LoadBundle(path)
	if !errors.Is(err, ErrBundleInvalid) {
		t.Errorf("got %v, want ErrBundleInvalid", err)
	}
}

func TestLoadBundleCertificateOnly(t *testing.T) {
	// A bundle missing its key block must fail to load.
	full := filepath.Join(t.TempDir(), "full.pem")
	bundle, err := GenerateBundle(full, "split", time.Hour)
	if err != nil {
		t.Fatalf("GenerateBundle failed: %v", err)
	}

	certOnly := filepath.Join(t.TempDir(), "cert-only.pem")
	if err := os.WriteFile(certOnly, EncodeCertPEM(bundle.Leaf), 0600); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	if _, err := LoadBundle(certOnly); !errors.Is(err, ErrBundleInvalid) {
		t.Errorf("got %v, want ErrBundleInvalid", err)
	}
}

func TestGenerateBundleValidityWindow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deskflow.pem")

	bundle, err := GenerateBundle(path, "validity", 48*time.Hour)
	if err != nil {
		t.Fatalf("GenerateBundle failed: %v", err)
	}

	now := time.Now()
	if bundle.Leaf.NotBefore.After(now) {
		t.Error("certificate not yet valid at generation time")
	}
	if bundle.Leaf.NotAfter.Before(now.Add(47 * time.Hour)) {
		t.Error("certificate expires earlier than requested validity")
	}
}

func TestPEMHelpersRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deskflow.pem")
	bundle, err := GenerateBundle(path, "pem-roundtrip", time.Hour)
	if err != nil {
		t.Fatalf("GenerateBundle failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}

	// The combined file decodes both ways regardless of block order.
	parsedCert, err := DecodeCertPEM(data)
	if err != nil {
		t.Fatalf("DecodeCertPEM failed: %v", err)
	}
	if FingerprintOf(parsedCert) != bundle.Fingerprint {
		t.Error("decoded certificate fingerprint mismatch")
	}

	if _, err := DecodeKeyPEM(data); err != nil {
		t.Fatalf("DecodeKeyPEM failed: %v", err)
	}
}
