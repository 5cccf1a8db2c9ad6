package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyGenerator_HashInput(t *testing.T) {
	gen := NewKeyGenerator("")

	t.Run("map key order does not matter", func(t *testing.T) {
		h1, err := gen.HashInput(map[string]any{"a": 1, "b": "two"})
		require.NoError(t, err)
		h2, err := gen.HashInput(map[string]any{"b": "two", "a": 1})
		require.NoError(t, err)

		assert.Equal(t, h1, h2)
		// SHA-256 produces 64 hex characters
		assert.Len(t, h1, 64)
	})

	t.Run("different inputs produce different hashes", func(t *testing.T) {
		h1, err := gen.HashInput("hello")
		require.NoError(t, err)
		h2, err := gen.HashInput("world")
		require.NoError(t, err)
		assert.NotEqual(t, h1, h2)
	})

	t.Run("unserializable input fails", func(t *testing.T) {
		_, err := gen.HashInput(map[string]any{"fn": func() {}})
		assert.Error(t, err)
	})
}

func TestKeyGenerator_ReasoningKey(t *testing.T) {
	params := ReasoningKeyParams{InputHash: "abc", Strategy: "deductive", Layer: "semantic", Depth: 2}

	assert.Equal(t, "abc:deductive:semantic:2", NewKeyGenerator("").ReasoningKey(params))
	assert.Equal(t, "hrf:abc:deductive:semantic:2", NewKeyGenerator("hrf").ReasoningKey(params))
}

func TestKeyGenerator_LayerKey(t *testing.T) {
	gen := NewKeyGenerator("")

	t.Run("uses record id when present", func(t *testing.T) {
		k1, err := gen.LayerKey("raw", map[string]any{"id": "doc-1", "v": 1})
		require.NoError(t, err)
		k2, err := gen.LayerKey("raw", map[string]any{"id": "doc-1", "v": 2})
		require.NoError(t, err)

		assert.Equal(t, "raw:id:doc-1", k1)
		assert.Equal(t, k1, k2)
	})

	t.Run("numeric id", func(t *testing.T) {
		k, err := gen.LayerKey("raw", map[string]any{"id": 42})
		require.NoError(t, err)
		assert.Equal(t, "raw:id:42", k)
	})

	t.Run("falls back to serialized data", func(t *testing.T) {
		k1, err := gen.LayerKey("semantic", map[string]any{"text": "a"})
		require.NoError(t, err)
		k2, err := gen.LayerKey("semantic", map[string]any{"text": "b"})
		require.NoError(t, err)

		assert.Contains(t, k1, "semantic:sha:")
		assert.NotEqual(t, k1, k2)
	})

	t.Run("layer is part of the key", func(t *testing.T) {
		k1, _ := gen.LayerKey("raw", map[string]any{"id": "x"})
		k2, _ := gen.LayerKey("abstract", map[string]any{"id": "x"})
		assert.NotEqual(t, k1, k2)
	})
}
