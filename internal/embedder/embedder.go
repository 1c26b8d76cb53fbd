// Package embedder provides the kernel's boundary onto the embedding
// model, an external collaborator the kernel never implements (spec
// §1: "the embedding model, accessed via a Embed(text) -> Vector
// capability"). Callers depend on the Embedder interface; Stub exists
// for tests and for deployments with no embedding model wired yet.
package embedder

import (
	"context"
	"errors"
	"hash/fnv"
	"math"
)

// ErrUnavailable is returned when the embedding capability cannot be
// reached. Callers fall back to FTS+trigger-only indexing and search
// (spec §7 EmbedUnavailable).
var ErrUnavailable = errors.New("embedder: capability unavailable")

// Embedder turns text into a fixed-dimension, unit-normalized vector.
// The dimension is fixed per deployment but not prescribed by the
// kernel (spec §1 Non-goals).
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// Stub is a deterministic, dependency-free Embedder for tests and for
// installations that have not wired a real embedding model. It hashes
// text into a fixed-dimension vector so the same input always embeds
// identically, which is enough to exercise indexing, cosine similarity,
// and RRF fusion without a live model.
type Stub struct {
	dim int
}

// NewStub returns a Stub producing vectors of the given dimension.
func NewStub(dim int) Stub {
	if dim <= 0 {
		dim = 32
	}
	return Stub{dim: dim}
}

func (s Stub) Dimension() int { return s.dim }

func (s Stub) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v := make([]float32, s.dim)
	h := fnv.New64a()
	for i := 0; i < s.dim; i++ {
		h.Reset()
		_, _ = h.Write([]byte{byte(i), byte(i >> 8)})
		_, _ = h.Write([]byte(text))
		sum := h.Sum64()
		v[i] = float32(int64(sum%2000)-1000) / 1000
	}
	normalize(v)
	return v, nil
}

func normalize(v []float32) {
	var sumSq float64
	for _, f := range v {
		sumSq += float64(f) * float64(f)
	}
	norm := math.Sqrt(sumSq)
	if norm == 0 {
		return
	}
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
}

// Unavailable always fails with ErrUnavailable, modeling a deployment
// whose embedding model is down (spec §7 EmbedUnavailable).
type Unavailable struct{}

func (Unavailable) Dimension() int { return 0 }
func (Unavailable) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, ErrUnavailable
}

// CosineSimilarity computes cosine similarity between two equal-length
// vectors, used by the search engine's base vector search (spec §4.6.1).
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
