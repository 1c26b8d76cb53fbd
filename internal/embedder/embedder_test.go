package embedder_test

import (
	"context"
	"math"
	"testing"

	"github.com/opencode-dev/kernel/internal/embedder"
)

func TestStubEmbedIsDeterministic(t *testing.T) {
	s := embedder.NewStub(16)
	a, err := s.Embed(context.Background(), "use jwt for auth")
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	b, err := s.Embed(context.Background(), "use jwt for auth")
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(a) != 16 {
		t.Fatalf("expected dimension 16, got %d", len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("expected identical embeddings for identical text, diverged at %d: %v vs %v", i, a[i], b[i])
		}
	}
}

func TestStubEmbedIsUnitNormalized(t *testing.T) {
	s := embedder.NewStub(8)
	v, err := s.Embed(context.Background(), "some text")
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	var sumSq float64
	for _, f := range v {
		sumSq += float64(f) * float64(f)
	}
	norm := math.Sqrt(sumSq)
	if math.Abs(norm-1.0) > 1e-6 {
		t.Errorf("expected unit norm, got %v", norm)
	}
}

func TestUnavailableAlwaysErrors(t *testing.T) {
	var u embedder.Unavailable
	if _, err := u.Embed(context.Background(), "text"); err != embedder.ErrUnavailable {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}

func TestCosineSimilarityIdenticalVectorsIsOne(t *testing.T) {
	v := []float32{0.6, 0.8}
	sim := embedder.CosineSimilarity(v, v)
	if math.Abs(sim-1.0) > 1e-6 {
		t.Errorf("expected similarity 1.0 for identical vectors, got %v", sim)
	}
}

func TestCosineSimilarityOrthogonalVectorsIsZero(t *testing.T) {
	a := []float32{1, 0}
	b := []float32{0, 1}
	sim := embedder.CosineSimilarity(a, b)
	if math.Abs(sim) > 1e-6 {
		t.Errorf("expected similarity 0 for orthogonal vectors, got %v", sim)
	}
}

func TestCosineSimilarityMismatchedLengthIsZero(t *testing.T) {
	if sim := embedder.CosineSimilarity([]float32{1, 2}, []float32{1}); sim != 0 {
		t.Errorf("expected 0 for mismatched lengths, got %v", sim)
	}
}
