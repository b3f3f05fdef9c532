package qdrant

import (
	"fmt"
	"testing"
)

func TestEncodeSparseQueryIsStable(t *testing.T) {
	first := encodeSparseQuery("number of beds inpatient capacity")
	second := encodeSparseQuery("number of beds inpatient capacity")

	if len(first.Indices) != len(second.Indices) {
		t.Fatalf("encoding not stable: %d vs %d terms", len(first.Indices), len(second.Indices))
	}
	for i := range first.Indices {
		if first.Indices[i] != second.Indices[i] || first.Values[i] != second.Values[i] {
			t.Fatalf("encoding not stable at %d", i)
		}
	}
}

func TestEncodeSparseQueryCaseAndPunctuationInsensitive(t *testing.T) {
	plain := encodeSparseQuery("number of beds")
	noisy := encodeSparseQuery("Number, of BEDS?")

	if len(plain.Indices) != len(noisy.Indices) {
		t.Fatalf("expected same term set, got %d vs %d", len(plain.Indices), len(noisy.Indices))
	}
	for i := range plain.Indices {
		if plain.Indices[i] != noisy.Indices[i] {
			t.Fatalf("index mismatch at %d", i)
		}
	}
}

func TestEncodeSparseQueryRepeatedTermWeighsHeavier(t *testing.T) {
	once := encodeSparseQuery("freezer")
	thrice := encodeSparseQuery("freezer freezer freezer")

	if len(once.Values) != 1 || len(thrice.Values) != 1 {
		t.Fatalf("expected single term, got %d and %d", len(once.Values), len(thrice.Values))
	}
	if thrice.Values[0] <= once.Values[0] {
		t.Fatalf("repeated term must weigh heavier: %v vs %v", thrice.Values[0], once.Values[0])
	}
	// BM25 saturation keeps the weight bounded by k+1.
	if thrice.Values[0] >= queryBM25K+1 {
		t.Fatalf("weight must saturate below k+1, got %v", thrice.Values[0])
	}
}

func TestEncodeSparseQueryEmpty(t *testing.T) {
	vec := encodeSparseQuery("   ??? ---")
	if len(vec.Indices) != 0 || len(vec.Values) != 0 {
		t.Fatalf("expected empty vector, got %+v", vec)
	}
}

func TestEncodeSparseQueryCapsTermCount(t *testing.T) {
	var b []byte
	for i := 0; i < maxSparseTerms+50; i++ {
		b = append(b, []byte(fmt.Sprintf("term%d ", i))...)
	}
	vec := encodeSparseQuery(string(b))
	if len(vec.Indices) != maxSparseTerms {
		t.Fatalf("expected %d terms, got %d", maxSparseTerms, len(vec.Indices))
	}
	if len(vec.Values) != len(vec.Indices) {
		t.Fatalf("indices and values diverge: %d vs %d", len(vec.Indices), len(vec.Values))
	}
}

func TestHashTokenNeverZero(t *testing.T) {
	for _, token := range []string{"a", "beds", "freezer", "2024"} {
		if hashToken(token) == 0 {
			t.Fatalf("token %q hashed to zero", token)
		}
	}
}
