// Package embeddings defines the Provider interface for vector embedding backends.
//
// The question planner embeds every generated question so that near-duplicates
// of questions the candidate has already been asked can be filtered out with a
// pgvector similarity search.
//
// Implementations must be safe for concurrent use.
package embeddings

import (
	"context"
	"math"
)

// Provider is the abstraction over any text-embedding backend.
//
// All vectors returned by a single Provider share the length returned by
// Dimensions.
type Provider interface {
	// Embed computes the embedding vector for a single text string.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch computes embedding vectors for texts in one provider call. The
	// i-th result corresponds to texts[i]. On error the whole slice is nil.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the fixed length of every embedding vector.
	Dimensions() int

	// ModelID returns the provider-specific model identifier
	// (e.g., "text-embedding-3-small").
	ModelID() string
}

// CosineSimilarity returns the cosine of the angle between a and b, or 0 when
// the lengths differ or either vector is all zeros.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
