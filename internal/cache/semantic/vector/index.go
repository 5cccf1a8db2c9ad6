// Package vector provides the in-process similarity index used by the
// semantic cache.
package vector

import (
	"fmt"
	"math"
	"sort"
	"sync"
)

// SearchOptions configures a similarity search.
type SearchOptions struct {
	// TopK limits the number of results. Zero means no limit.
	TopK int
	// MinScore drops results with a lower cosine similarity.
	MinScore float64
}

// SearchResult is a single match, most similar first.
type SearchResult struct {
	ID    string
	Score float64
}

// MemoryIndex maps entry ids to embeddings and answers cosine searches by
// scanning every vector. It is safe for concurrent use.
type MemoryIndex struct {
	mu        sync.RWMutex
	dimension int
	vectors   map[string][]float64
}

// NewMemoryIndex creates an index. A zero dimension is fixed by the first
// inserted vector.
func NewMemoryIndex(dimension int) *MemoryIndex {
	return &MemoryIndex{
		dimension: dimension,
		vectors:   make(map[string][]float64),
	}
}

// Upsert stores v under id, replacing any previous vector.
func (m *MemoryIndex) Upsert(id string, v []float64) error {
	if len(v) == 0 {
		return fmt.Errorf("empty vector for %s", id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dimension == 0 {
		m.dimension = len(v)
	}
	if len(v) != m.dimension {
		return fmt.Errorf("vector dimension mismatch: got %d, want %d", len(v), m.dimension)
	}
	m.vectors[id] = append([]float64(nil), v...)
	return nil
}

// Delete removes id. Missing ids are ignored.
func (m *MemoryIndex) Delete(id string) {
	m.mu.Lock()
	delete(m.vectors, id)
	m.mu.Unlock()
}

// Get returns a copy of the vector stored under id.
func (m *MemoryIndex) Get(id string) ([]float64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.vectors[id]
	if !ok {
		return nil, false
	}
	return append([]float64(nil), v...), true
}

// Len returns the number of indexed vectors.
func (m *MemoryIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.vectors)
}

// Reset drops every vector and keeps the configured dimension.
func (m *MemoryIndex) Reset() {
	m.mu.Lock()
	m.vectors = make(map[string][]float64)
	m.mu.Unlock()
}

// Search returns vectors ordered by descending similarity to query. Equal
// scores are ordered by id.
func (m *MemoryIndex) Search(query []float64, opts SearchOptions) []SearchResult {
	m.mu.RLock()
	results := make([]SearchResult, 0, len(m.vectors))
	for id, v := range m.vectors {
		score := CosineSimilarity(query, v)
		if score < opts.MinScore {
			continue
		}
		results = append(results, SearchResult{ID: id, Score: score})
	}
	m.mu.RUnlock()

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
	if opts.TopK > 0 && len(results) > opts.TopK {
		results = results[:opts.TopK]
	}
	return results
}

// CosineSimilarity returns the cosine of the angle between a and b, in
// [-1, 1]. Vectors of different length or zero norm score 0.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(na) * math.Sqrt(nb))
	return math.Max(-1, math.Min(1, sim))
}
