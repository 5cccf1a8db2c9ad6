package vector

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float64
		want float64
	}{
		{name: "identical", a: []float64{1, 2, 3}, b: []float64{1, 2, 3}, want: 1},
		{name: "opposite", a: []float64{1, 0}, b: []float64{-1, 0}, want: -1},
		{name: "orthogonal", a: []float64{1, 0}, b: []float64{0, 1}, want: 0},
		{name: "scaled", a: []float64{1, 1}, b: []float64{3, 3}, want: 1},
		{name: "length mismatch", a: []float64{1, 0}, b: []float64{1, 0, 0}, want: 0},
		{name: "zero norm", a: []float64{0, 0}, b: []float64{1, 1}, want: 0},
		{name: "empty", a: nil, b: nil, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, CosineSimilarity(tt.a, tt.b), 1e-12)
		})
	}
}

func TestCosineSimilarity_Bounds(t *testing.T) {
	vectors := [][]float64{
		{0.3, -1.2, 4.5}, {1e-9, 1e9, 0}, {-7, -7, -7}, {math.Pi, math.E, 1},
	}
	for _, a := range vectors {
		for _, b := range vectors {
			s := CosineSimilarity(a, b)
			assert.GreaterOrEqual(t, s, -1.0)
			assert.LessOrEqual(t, s, 1.0)
		}
	}
}

func TestMemoryIndex_Search(t *testing.T) {
	idx := NewMemoryIndex(0)
	require.NoError(t, idx.Upsert("a", []float64{1, 0}))
	require.NoError(t, idx.Upsert("b", []float64{0.8, 0.6}))
	require.NoError(t, idx.Upsert("c", []float64{0, 1}))
	require.NoError(t, idx.Upsert("d", []float64{1, 0}))

	got := idx.Search([]float64{1, 0}, SearchOptions{MinScore: 0.5})
	require.Len(t, got, 3)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "d", got[1].ID)
	assert.Equal(t, "b", got[2].ID)
	assert.InDelta(t, 0.8, got[2].Score, 1e-12)

	top := idx.Search([]float64{1, 0}, SearchOptions{TopK: 1})
	require.Len(t, top, 1)
	assert.Equal(t, "a", top[0].ID)
}

func TestMemoryIndex_Dimension(t *testing.T) {
	idx := NewMemoryIndex(3)
	assert.Error(t, idx.Upsert("a", []float64{1, 2}))
	assert.Error(t, idx.Upsert("a", nil))
	require.NoError(t, idx.Upsert("a", []float64{1, 2, 3}))

	v, ok := idx.Get("a")
	require.True(t, ok)
	v[0] = 99
	again, _ := idx.Get("a")
	assert.Equal(t, 1.0, again[0])

	idx.Delete("a")
	assert.Zero(t, idx.Len())
	idx.Delete("missing")
}
