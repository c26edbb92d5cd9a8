package embeddings

import (
	"context"
	"math"
	"testing"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	svc, err := New(Config{Dimension: 64, CacheSize: 100}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return svc
}

func TestNew_DefaultsDimensionAndCacheSize(t *testing.T) {
	svc, err := New(Config{}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if svc.Dimension() != 384 {
		t.Fatalf("expected default dimension 384, got %d", svc.Dimension())
	}
}

func TestEmbed_EmptyTextReturnsNil(t *testing.T) {
	svc := newTestService(t)
	if v := svc.Embed(context.Background(), ""); v != nil {
		t.Fatalf("expected nil for empty text, got %v", v)
	}
}

func TestEmbed_IsDeterministicForSameText(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	a := svc.embed("the quick brown fox")
	b := svc.embed("the quick brown fox")
	if len(a) != len(b) {
		t.Fatalf("expected equal length vectors")
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("expected deterministic embeddings, differed at %d: %v vs %v", i, a[i], b[i])
		}
	}
	_ = ctx
}

func TestEmbed_ReturnsUnitNormalizedVector(t *testing.T) {
	svc := newTestService(t)
	vec := svc.embed("some reasonably long piece of text to embed")
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	norm = math.Sqrt(norm)
	if math.Abs(norm-1.0) > 1e-3 {
		t.Fatalf("expected unit-normalized vector, got norm %f", norm)
	}
}

func TestEmbed_DifferentTextsProduceDifferentVectors(t *testing.T) {
	svc := newTestService(t)
	a := svc.embed("cats are great pets")
	b := svc.embed("quantum mechanics is hard")
	same := true
	for i := range a {
		if a[i] != b[i] {
			same = false
			break
		}
	}
	if same {
		t.Fatal("expected distinct embeddings for distinct texts")
	}
}

func TestEmbedBatch_EmbedsEachTextIndependently(t *testing.T) {
	svc := newTestService(t)
	out := svc.EmbedBatch(context.Background(), []string{"hello world", "", "goodbye world"})
	if len(out) != 3 {
		t.Fatalf("expected 3 results, got %d", len(out))
	}
	if out[0] == nil {
		t.Fatal("expected non-nil embedding for non-empty text")
	}
	if out[1] != nil {
		t.Fatal("expected nil embedding for empty text")
	}
	if out[2] == nil {
		t.Fatal("expected non-nil embedding for non-empty text")
	}
}

func TestCosineSimilarity_IdenticalVectorsReturnOne(t *testing.T) {
	v := []float32{1, 0, 0}
	sim := CosineSimilarity(v, v)
	if math.Abs(sim-1.0) > 1e-9 {
		t.Fatalf("expected similarity 1.0, got %f", sim)
	}
}

func TestCosineSimilarity_OrthogonalVectorsReturnHalf(t *testing.T) {
	a := []float32{1, 0}
	b := []float32{0, 1}
	sim := CosineSimilarity(a, b)
	if math.Abs(sim-0.5) > 1e-9 {
		t.Fatalf("expected similarity 0.5 for orthogonal vectors, got %f", sim)
	}
}

func TestCosineSimilarity_MismatchedLengthsReturnZero(t *testing.T) {
	if sim := CosineSimilarity([]float32{1, 2}, []float32{1, 2, 3}); sim != 0 {
		t.Fatalf("expected 0 for mismatched lengths, got %f", sim)
	}
}

func TestCosineSimilarity_ZeroVectorReturnsZero(t *testing.T) {
	if sim := CosineSimilarity([]float32{0, 0}, []float32{1, 1}); sim != 0 {
		t.Fatalf("expected 0 when one vector is all-zero, got %f", sim)
	}
}

func TestTokenize_LowercasesAndSplitsOnNonAlphanumeric(t *testing.T) {
	got := tokenize("Hello, World! 123")
	want := []string{"hello", "world", "123"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}
