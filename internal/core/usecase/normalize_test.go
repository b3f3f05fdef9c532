package usecase

import "testing"

func TestNormalizeQuestionCanonicalizes(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Number of beds?", "number of beds"},
		{"  NUMBER   of BEDS!! ", "number of beds"},
		{"Number-of-beds", "number of beds"},
		{"Does the site have a -80°C freezer?", "does the site have a 80 c freezer"},
		{"", ""},
		{"?!.,", ""},
	}
	for _, tc := range cases {
		if got := NormalizeQuestion(tc.in); got != tc.want {
			t.Errorf("NormalizeQuestion(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestFingerprintStableAcrossWording(t *testing.T) {
	a := Fingerprint(NormalizeQuestion("Number of beds?"))
	b := Fingerprint(NormalizeQuestion("  number of BEDS "))
	if a != b {
		t.Fatalf("expected identical fingerprints for same normalized question, got %s vs %s", a, b)
	}
	if len(a) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(a))
	}

	c := Fingerprint(NormalizeQuestion("Number of ICU beds?"))
	if a == c {
		t.Fatal("different questions must not collide")
	}
}

func TestTokenOverlap(t *testing.T) {
	query := toTokenSet("number of beds")
	chunk := toTokenSet("The hospital has a number of certified beds available")
	got := tokenOverlap(query, chunk)
	if got != 1.0 {
		t.Fatalf("expected full overlap, got %v", got)
	}

	partial := tokenOverlap(query, toTokenSet("beds only"))
	if partial <= 0 || partial >= 1 {
		t.Fatalf("expected partial overlap in (0,1), got %v", partial)
	}

	if tokenOverlap(nil, chunk) != 0 {
		t.Fatal("empty query must score zero")
	}
}
