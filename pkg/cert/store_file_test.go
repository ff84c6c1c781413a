package cert

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFileStore(t *testing.T) {
	t.Run("SaveLoadRoundtrip", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "trusted-clients.dat")

		store := NewFileStore(path)
		fpA := NewFingerprint([]byte("client a"))
		fpB := NewFingerprint([]byte("client b"))
		added := time.Now().Truncate(time.Second)

		if err := store.Add(TrustEntry{Fingerprint: fpA, Name: "laptop", AddedAt: added}); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
		if err := store.Add(TrustEntry{Fingerprint: fpB, AddedAt: added.Add(time.Minute)}); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
		if err := store.Save(); err != nil {
			t.Fatalf("Save failed: %v", err)
		}

		reloaded := NewFileStore(path)
		if err := reloaded.Load(); err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if reloaded.Count() != 2 {
			t.Fatalf("reloaded Count() = %d, want 2", reloaded.Count())
		}
		if !reloaded.Contains(fpA) || !reloaded.Contains(fpB) {
			t.Error("reloaded store is missing fingerprints")
		}

		entries := reloaded.List()
		if entries[0].Name != "laptop" {
			t.Errorf("entry name = %q, want %q", entries[0].Name, "laptop")
		}
		if !entries[0].AddedAt.Equal(added) {
			t.Errorf("entry AddedAt = %v, want %v", entries[0].AddedAt, added)
		}
	})

	t.Run("LoadMissingFile", func(t *testing.T) {
		store := NewFileStore(filepath.Join(t.TempDir(), "does-not-exist.dat"))
		if err := store.Load(); err != nil {
			t.Fatalf("Load of missing file: got %v, want nil", err)
		}
		if store.Count() != 0 {
			t.Errorf("Count() = %d, want 0", store.Count())
		}
	})

	t.Run("LoadCorruptFile", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "corrupt.dat")
		if err := os.WriteFile(path, []byte("not a trust store"), 0o600); err != nil {
			t.Fatalf("WriteFile failed: %v", err)
		}

		store := NewFileStore(path)
		if err := store.Load(); err == nil {
			t.Error("Load of corrupt file succeeded, want error")
		}
	})

	t.Run("SaveCreatesParentDirs", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nested", "deeper", "trust.dat")

		store := NewFileStore(path)
		if err := store.Add(TrustEntry{Fingerprint: NewFingerprint([]byte("x")), AddedAt: time.Now()}); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
		if err := store.Save(); err != nil {
			t.Fatalf("Save failed: %v", err)
		}

		info, err := os.Stat(path)
		if err != nil {
			t.Fatalf("Stat failed: %v", err)
		}
		if perm := info.Mode().Perm(); perm != 0o600 {
			t.Errorf("file mode = %o, want 0600", perm)
		}
	})

	t.Run("Path", func(t *testing.T) {
		store := NewFileStore("/some/where/trust.dat")
		if got := store.Path(); got != "/some/where/trust.dat" {
			t.Errorf("Path() = %q", got)
		}
	})
}
