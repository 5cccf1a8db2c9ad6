package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
)

// KeyGenerator derives cache keys for layer results and reasoning results.
type KeyGenerator struct {
	// Prefix is prepended to all generated keys.
	Prefix string
}

// NewKeyGenerator creates a new KeyGenerator with optional prefix.
func NewKeyGenerator(prefix string) *KeyGenerator {
	return &KeyGenerator{Prefix: prefix}
}

// HashInput returns the hex SHA-256 of the canonical JSON form of input.
// Map keys are serialized in sorted order, so equal inputs hash equally.
func (g *KeyGenerator) HashInput(input any) (string, error) {
	data, err := json.Marshal(input)
	if err != nil {
		return "", fmt.Errorf("serialize input: %w", err)
	}
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:]), nil
}

// ReasoningKeyParams identifies one reasoning call.
type ReasoningKeyParams struct {
	InputHash string
	Strategy  string
	Layer     string
	Depth     int
}

// ReasoningKey builds the reasoning cache key.
// The key format is: [prefix:]hash:strategy:layer:depth
func (g *KeyGenerator) ReasoningKey(p ReasoningKeyParams) string {
	return g.withPrefix(fmt.Sprintf("%s:%s:%s:%d", p.InputHash, p.Strategy, p.Layer, p.Depth))
}

// LayerKey builds the layer cache key for a record.
// Records carrying a scalar "id" are keyed by it; anything else by its serialized hash.
// The key format is: [prefix:]layer:id:<id> or [prefix:]layer:sha:<hash>
func (g *KeyGenerator) LayerKey(layer string, data map[string]any) (string, error) {
	if id, ok := recordID(data); ok {
		return g.withPrefix(layer + ":id:" + id), nil
	}
	hash, err := g.HashInput(data)
	if err != nil {
		return "", err
	}
	return g.withPrefix(layer + ":sha:" + hash), nil
}

func (g *KeyGenerator) withPrefix(key string) string {
	if g.Prefix == "" {
		return key
	}
	var sb strings.Builder
	sb.WriteString(g.Prefix)
	sb.WriteString(":")
	sb.WriteString(key)
	return sb.String()
}

func recordID(data map[string]any) (string, bool) {
	v, ok := data["id"]
	if !ok || v == nil {
		return "", false
	}
	switch id := v.(type) {
	case string:
		if id == "" {
			return "", false
		}
		return id, true
	case int, int32, int64, uint, uint32, uint64, float32, float64, json.Number:
		return fmt.Sprint(id), true
	default:
		return "", false
	}
}
