package cert

import (
	"strings"
	"testing"
)

func TestFingerprintFormats(t *testing.T) {
	fp := NewFingerprint([]byte("test certificate bytes"))

	display := fp.String()
	if !strings.Contains(display, ":") {
		t.Errorf("String() = %q, want colon-separated octets", display)
	}
	if parts := strings.Split(display, ":"); len(parts) != 32 {
		t.Errorf("String() has %d octets, want 32", len(parts))
	}
	if display != strings.ToUpper(display) {
		t.Errorf("String() = %q, want uppercase", display)
	}

	compact := fp.Hex()
	if len(compact) != 64 {
		t.Errorf("Hex() length = %d, want 64", len(compact))
	}
	if compact != strings.ToLower(compact) {
		t.Errorf("Hex() = %q, want lowercase", compact)
	}
}

func TestParseFingerprintRoundTrip(t *testing.T) {
	fp := NewFingerprint([]byte("roundtrip"))

	fromDisplay, err := ParseFingerprint(fp.String())
	if err != nil {
		t.Fatalf("ParseFingerprint(display) failed: %v", err)
	}
	if fromDisplay != fp {
		t.Error("display form did not round-trip")
	}

	fromHex, err := ParseFingerprint(fp.Hex())
	if err != nil {
		t.Fatalf("ParseFingerprint(hex) failed: %v", err)
	}
	if fromHex != fp {
		t.Error("hex form did not round-trip")
	}
}

func TestParseFingerprintRejectsMalformed(t *testing.T) {
	tests := []string{
		"",
		"zz",
		"abcd",                    // too short
		strings.Repeat("ab", 31),  // one byte short
		strings.Repeat("ab", 33),  // one byte long
		"not hex at all::::",
	}

	for _, input := range tests {
		if _, err := ParseFingerprint(input); err == nil {
			t.Errorf("ParseFingerprint(%q) succeeded, want error", input)
		}
	}
}

func TestFingerprintIsZero(t *testing.T) {
	var zero Fingerprint
	if !zero.IsZero() {
		t.Error("zero value not reported as zero")
	}

	fp := NewFingerprint([]byte("x"))
	if fp.IsZero() {
		t.Error("computed fingerprint reported as zero")
	}
}

func TestFingerprintDiffersPerInput(t *testing.T) {
	a := NewFingerprint([]byte("cert a"))
	b := NewFingerprint([]byte("cert b"))
	if a == b {
		t.Error("different inputs produced the same fingerprint")
	}
}
