package canon

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestMarshal_SortsKeysUTF16(t *testing.T) {
	obj := Obj{
		"b":          Str("2"),
		"a":          Str("1"),
		"｡":          Str("halfwidth"), // U+FF61 sorts after BMP letters
		"\U0001F600": Str("emoji"),     // surrogate pair: sorts before U+FF61 in UTF-16
	}
	out, err := Marshal(obj)
	if err != nil {
		t.Fatalf("Marshal() failed: %v", err)
	}
	s := string(out)

	// "a" < "b" < U+1F600 (surrogates D83D DE00) < U+FF61
	iA := strings.Index(s, `"a"`)
	iB := strings.Index(s, `"b"`)
	iEmoji := strings.Index(s, "\U0001F600")
	iHW := strings.Index(s, "｡")
	if !(iA < iB && iB < iEmoji && iEmoji < iHW) {
		t.Errorf("keys not in UTF-16 order: %s", s)
	}
}

func TestMarshal_NoHTMLEscaping(t *testing.T) {
	out, err := Marshal(Str("<a> & <b>"))
	if err != nil {
		t.Fatalf("Marshal() failed: %v", err)
	}
	if string(out) != `"<a> & <b>"` {
		t.Errorf("HTML characters were escaped: %s", out)
	}
}

func TestMarshal_NFCNormalization(t *testing.T) {
	// U+0065 U+0301 (e + combining acute) must normalize to U+00E9.
	decomposed := Str("café")
	composed := Str("café")

	a, err := Marshal(decomposed)
	if err != nil {
		t.Fatalf("Marshal(decomposed) failed: %v", err)
	}
	b, err := Marshal(composed)
	if err != nil {
		t.Fatalf("Marshal(composed) failed: %v", err)
	}
	if string(a) != string(b) {
		t.Errorf("NFC normalization mismatch: %q vs %q", a, b)
	}
}

func TestMarshal_NilForbidden(t *testing.T) {
	if _, err := Marshal(nil); err == nil {
		t.Error("expected error for nil value, got none")
	}
	if _, err := Marshal(Arr{Str("ok"), nil}); err == nil {
		t.Error("expected error for nil array element, got none")
	}
}

func TestHashWithDomain_Separation(t *testing.T) {
	data := []byte("payload")
	a := HashWithDomain(DomainPlan, data)
	b := HashWithDomain(DomainPlanItem, data)
	if a == b {
		t.Error("different domains produced the same hash")
	}
}

func TestHashValue_Stable(t *testing.T) {
	obj := Obj{"source": Str("a.txt"), "seq": Int(7), "hidden": Bool(false)}
	h1 := MustHashValue(DomainPlanItem, obj)
	h2 := MustHashValue(DomainPlanItem, obj)
	if h1 != h2 {
		t.Errorf("hash not stable: %s vs %s", h1, h2)
	}
	if len(h1) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(h1))
	}
}

func TestFingerprintFile_PathIndependent(t *testing.T) {
	dir := t.TempDir()
	p1 := filepath.Join(dir, "one.txt")
	p2 := filepath.Join(dir, "sub", "two.txt")
	if err := os.MkdirAll(filepath.Dir(p2), 0o755); err != nil {
		t.Fatal(err)
	}
	for _, p := range []string{p1, p2} {
		if err := os.WriteFile(p, []byte("same bytes"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	f1, err := FingerprintFile(p1)
	if err != nil {
		t.Fatalf("FingerprintFile(p1) failed: %v", err)
	}
	f2, err := FingerprintFile(p2)
	if err != nil {
		t.Fatalf("FingerprintFile(p2) failed: %v", err)
	}
	if f1 != f2 {
		t.Error("identical content at different paths produced different fingerprints")
	}
}
