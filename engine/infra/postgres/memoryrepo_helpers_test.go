package postgres

import (
	"testing"

	"github.com/learnloop/cortex/engine/memory"
)

func TestCosineSimilarity01_IdenticalVectorsReturnOne(t *testing.T) {
	v := []float32{1, 0, 0}
	if sim := cosineSimilarity01(v, v); sim < 0.999 {
		t.Fatalf("expected ~1.0, got %f", sim)
	}
}

func TestCosineSimilarity01_MismatchedLengthReturnsZero(t *testing.T) {
	if sim := cosineSimilarity01([]float32{1}, []float32{1, 2}); sim != 0 {
		t.Fatalf("expected 0, got %f", sim)
	}
}

func TestSortHitsBySimilarityDesc_OrdersDescending(t *testing.T) {
	hits := []memory.SearchHit{
		{Similarity: 0.2},
		{Similarity: 0.9},
		{Similarity: 0.5},
	}
	sortHitsBySimilarityDesc(hits)
	if hits[0].Similarity != 0.9 || hits[1].Similarity != 0.5 || hits[2].Similarity != 0.2 {
		t.Fatalf("expected descending order, got %+v", hits)
	}
}

func TestSortHitsBySimilarityDesc_EmptyAndSingleAreNoOps(t *testing.T) {
	var empty []memory.SearchHit
	sortHitsBySimilarityDesc(empty)

	single := []memory.SearchHit{{Similarity: 0.5}}
	sortHitsBySimilarityDesc(single)
	if single[0].Similarity != 0.5 {
		t.Fatalf("unexpected mutation of single-element slice: %+v", single)
	}
}

func TestNullableString_EmptyReturnsNil(t *testing.T) {
	if got := nullableString(""); got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
}

func TestNullableString_NonEmptyReturnsPointer(t *testing.T) {
	got := nullableString("hello")
	if got == nil || *got != "hello" {
		t.Fatalf("unexpected result: %v", got)
	}
}

func TestColumnList_JoinsWithCommaSpace(t *testing.T) {
	got := columnList([]string{"a", "b", "c"})
	if got != "a, b, c" {
		t.Fatalf("unexpected: %q", got)
	}
}

func TestColumnList_EmptyReturnsEmptyString(t *testing.T) {
	if got := columnList(nil); got != "" {
		t.Fatalf("expected empty string, got %q", got)
	}
}
