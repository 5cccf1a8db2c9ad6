package embedding

import (
	"context"

	"github.com/blueberrycongee/reasoncache/internal/resilience"
)

// GuardedEmbedder stops calling a remote embedder after repeated failures,
// so cache lookups skip the vector path quickly during an outage.
type GuardedEmbedder struct {
	Embedder
	breaker *resilience.Breaker
}

// NewGuardedEmbedder wraps inner with b.
func NewGuardedEmbedder(inner Embedder, b *resilience.Breaker) *GuardedEmbedder {
	return &GuardedEmbedder{Embedder: inner, breaker: b}
}

func (g *GuardedEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	var vec []float64
	err := g.breaker.Do(ctx, func(ctx context.Context) error {
		var err error
		vec, err = g.Embedder.Embed(ctx, text)
		return err
	})
	return vec, err
}

func (g *GuardedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	var vecs [][]float64
	err := g.breaker.Do(ctx, func(ctx context.Context) error {
		var err error
		vecs, err = g.Embedder.EmbedBatch(ctx, texts)
		return err
	})
	return vecs, err
}
