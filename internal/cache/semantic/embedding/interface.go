// Package embedding turns text into vectors for the semantic cache's
// similarity lookups.
package embedding

import "context"

// Embedder generates text embeddings.
type Embedder interface {
	// Embed returns the embedding of text.
	Embed(ctx context.Context, text string) ([]float64, error)

	// EmbedBatch returns one embedding per text, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float64, error)

	// Model names the embedding model.
	Model() string

	// Dimension is the length of every returned vector.
	Dimension() int
}
