package embedding

import (
	"context"
	"math"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
)

const hashingModel = "feature-hashing"

// HashingEmbedder embeds text locally by hashing word unigrams and bigrams
// into a fixed number of signed buckets. Equal texts get equal vectors and
// texts sharing words score a positive cosine similarity.
type HashingEmbedder struct {
	dimension int
}

// NewHashingEmbedder creates an embedder producing vectors of length
// dimension. Non-positive values fall back to 256.
func NewHashingEmbedder(dimension int) *HashingEmbedder {
	if dimension <= 0 {
		dimension = 256
	}
	return &HashingEmbedder{dimension: dimension}
}

// Embed returns the L2-normalized feature vector of text. Text without
// any word characters yields the zero vector.
func (h *HashingEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vec := make([]float64, h.dimension)
	tokens := tokenize(text)
	for i, tok := range tokens {
		h.add(vec, tok, 1)
		if i > 0 {
			h.add(vec, tokens[i-1]+" "+tok, 0.5)
		}
	}

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	if norm > 0 {
		norm = math.Sqrt(norm)
		for i := range vec {
			vec[i] /= norm
		}
	}
	return vec, nil
}

func (h *HashingEmbedder) add(vec []float64, feature string, weight float64) {
	sum := xxhash.Sum64String(feature)
	idx := sum % uint64(h.dimension)
	if sum>>63 == 1 {
		weight = -weight
	}
	vec[idx] += weight
}

// EmbedBatch embeds each text in turn.
func (h *HashingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, text := range texts {
		v, err := h.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (h *HashingEmbedder) Model() string  { return hashingModel }
func (h *HashingEmbedder) Dimension() int { return h.dimension }

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
