package importer

import "testing"

func TestFingerprintStable(t *testing.T) {
	header := []string{"name", "city"}
	values := []string{"Cafe X", "Barcelona"}
	a := Fingerprint(nil, header, values)
	b := Fingerprint(nil, header, values)
	if a != b {
		t.Fatalf("same row must hash the same: %s vs %s", a, b)
	}
	if len(a) != 64 {
		t.Fatalf("expected hex sha256 digest, got %q", a)
	}
}

func TestFingerprintSensitiveToContent(t *testing.T) {
	header := []string{"name", "city"}
	base := Fingerprint(nil, header, []string{"Cafe X", "Barcelona"})
	if got := Fingerprint(nil, header, []string{"Cafe X", "Madrid"}); got == base {
		t.Fatalf("changed cell must change the fingerprint")
	}
	if got := Fingerprint(nil, []string{"city", "name"}, []string{"Cafe X", "Barcelona"}); got == base {
		t.Fatalf("column identity is part of the fingerprint")
	}
}

func TestFingerprintKeyedBySecret(t *testing.T) {
	header := []string{"name"}
	values := []string{"Cafe X"}
	plain := Fingerprint(nil, header, values)
	keyed := Fingerprint([]byte("s3cret"), header, values)
	if plain == keyed {
		t.Fatalf("secret must change the fingerprint")
	}
	if keyed != Fingerprint([]byte("s3cret"), header, values) {
		t.Fatalf("keyed fingerprint must still be deterministic")
	}
}

func TestFingerprintShortRowPadsEmpty(t *testing.T) {
	header := []string{"name", "city"}
	short := Fingerprint(nil, header, []string{"Cafe X"})
	padded := Fingerprint(nil, header, []string{"Cafe X", ""})
	if short != padded {
		t.Fatalf("missing trailing cells read as empty: %s vs %s", short, padded)
	}
}
