package eslcrypto

import (
	"bytes"
	"strings"
	"testing"
)

func TestDigest_DeterministicAndDomainSeparated(t *testing.T) {
	d1, err := Digest("schema-a", []byte("x"), []byte("y"))
	if err != nil {
		t.Fatalf("Digest: %v", err)
	}
	d2, err := Digest("schema-a", []byte("x"), []byte("y"))
	if err != nil {
		t.Fatalf("Digest: %v", err)
	}
	if !bytes.Equal(d1, d2) {
		t.Fatalf("digest not deterministic")
	}

	d3, err := Digest("schema-b", []byte("x"), []byte("y"))
	if err != nil {
		t.Fatalf("Digest: %v", err)
	}
	if bytes.Equal(d1, d3) {
		t.Fatalf("expected different digests across domains")
	}
}

func TestDigest_LengthPrefixingPreventsBoundaryShifts(t *testing.T) {
	// ("ab","c") and ("a","bc") concatenate identically; the length prefixes
	// must keep them distinct.
	d1, err := Digest("d", []byte("ab"), []byte("c"))
	if err != nil {
		t.Fatalf("Digest: %v", err)
	}
	d2, err := Digest("d", []byte("a"), []byte("bc"))
	if err != nil {
		t.Fatalf("Digest: %v", err)
	}
	if bytes.Equal(d1, d2) {
		t.Fatalf("boundary shift produced equal digests")
	}
}

func TestDigest_RejectsNilMsg(t *testing.T) {
	if _, err := Digest("d", nil); err == nil {
		t.Fatalf("expected error for nil msg")
	}
}

func TestParseID32_RoundTrip(t *testing.T) {
	raw := strings.Repeat("ab", 32)
	for _, in := range []string{raw, "0x" + raw, "0X" + strings.ToUpper(raw)} {
		b, err := ParseID32(in)
		if err != nil {
			t.Fatalf("ParseID32(%q): %v", in, err)
		}
		if got := IDString(b); got != "0x"+raw {
			t.Fatalf("canonical form mismatch: %q", got)
		}
	}
}

func TestParseID32_Rejects(t *testing.T) {
	for _, in := range []string{"", "0x", "zz", "0x" + strings.Repeat("ab", 31), "0x" + strings.Repeat("ab", 33)} {
		if _, err := ParseID32(in); err == nil {
			t.Fatalf("expected error for %q", in)
		}
	}
}
