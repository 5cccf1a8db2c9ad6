// Package semantic implements a similarity-aware result cache. Entries are
// found by exact key, by overlap with a context map, or by cosine
// similarity of an embedding computed from text.
package semantic

import (
	"time"

	"github.com/blueberrycongee/reasoncache/internal/cache"
)

// Match paths reported on Entry.MatchedBy.
const (
	MatchKey     = "key"
	MatchContext = "context"
	MatchVector  = "vector"
)

// Entry is a cached value and its bookkeeping.
type Entry struct {
	ID               string           `json:"id"`
	Key              string           `json:"key"`
	Result           any              `json:"result"`
	Timestamp        time.Time        `json:"timestamp"`
	LastAccessed     time.Time        `json:"last_accessed"`
	AccessCount      int64            `json:"access_count"`
	TTL              time.Duration    `json:"ttl"`
	Context          map[string]any   `json:"context,omitempty"`
	ConsistencyLevel ConsistencyLevel `json:"consistency_level"`
	Priority         int              `json:"priority"`
	Size             int64            `json:"size"`
	Embedding        []float64        `json:"embedding,omitempty"`

	// Set on returned copies only.
	MatchedBy  string  `json:"matched_by,omitempty"`
	Similarity float64 `json:"similarity,omitempty"`
}

// Expired reports whether the entry's TTL has elapsed at now. A zero TTL
// never expires.
func (e *Entry) Expired(now time.Time) bool {
	return e.TTL > 0 && now.Sub(e.Timestamp) > e.TTL
}

func (e *Entry) clone() *Entry {
	cp := *e
	cp.Result = cache.DeepCopy(e.Result)
	cp.Context = cache.CopyMap(e.Context)
	cp.Embedding = append([]float64(nil), e.Embedding...)
	return &cp
}

// StoreOptions tunes a single Store call.
type StoreOptions struct {
	// TTL overrides the default. Negative means never expire.
	TTL              time.Duration
	Context          map[string]any
	ConsistencyLevel ConsistencyLevel
	Priority         int
	// Text is embedded for vector lookups when similarity search is on.
	Text string
}

// RetrieveOptions enables the fallback lookup paths of Retrieve.
type RetrieveOptions struct {
	Context map[string]any
	Text    string
}

// InvalidateOptions selects entries to remove. All wins over Key, and Key
// wins over Context.
type InvalidateOptions struct {
	Key     string
	Context map[string]any
	All     bool
}

// Stats is a point-in-time view of cache counters.
type Stats struct {
	Initialized   bool    `json:"initialized"`
	Entries       int     `json:"entries"`
	SizeBytes     int64   `json:"size_bytes"`
	Hits          int64   `json:"hits"`
	Misses        int64   `json:"misses"`
	Stores        int64   `json:"stores"`
	Invalidations int64   `json:"invalidations"`
	Evictions     int64   `json:"evictions"`
	Expirations   int64   `json:"expirations"`
	HitRate       float64 `json:"hit_rate"`
}

// Event payloads.
type (
	StoredPayload struct {
		Key string
		ID  string
	}
	RemovedPayload struct {
		Keys   []string
		Reason string
	}
)
