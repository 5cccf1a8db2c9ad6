package semantic

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/goccy/go-json"

	"github.com/blueberrycongee/reasoncache/internal/metrics"
)

const (
	snapshotVersion = 1
	persistTimeout  = 30 * time.Second
)

type snapshotDoc struct {
	Version int       `json:"version"`
	SavedAt time.Time `json:"saved_at"`
	Entries []*Entry  `json:"entries"`
}

// schedulePersistLocked marks the cache dirty and reports whether a
// snapshot write may start now. A true result must be followed by persist.
func (c *Cache) schedulePersistLocked() bool {
	if !c.initialized || !c.cfg.EnableOfflineSupport || c.store == nil {
		return false
	}
	c.dirty = true
	if !c.limiter.Allow() {
		metrics.SnapshotWrites.WithLabelValues(c.store.Name(), "throttled").Inc()
		return false
	}
	c.dirty = false
	c.writes.Add(1)
	return true
}

func (c *Cache) persist() {
	defer c.writes.Done()
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := c.save(ctx); err != nil {
		c.logger.Warn("semantic cache snapshot failed", "backend", c.store.Name(), "error", err)
		c.mu.Lock()
		c.dirty = true
		c.mu.Unlock()
	}
}

// save writes the current entries. Concurrent saves are serialized, and
// each captures the state at the moment it runs.
func (c *Cache) save(ctx context.Context) error {
	c.saveMu.Lock()
	defer c.saveMu.Unlock()

	c.mu.Lock()
	doc := snapshotDoc{
		Version: snapshotVersion,
		SavedAt: c.now(),
		Entries: make([]*Entry, 0, len(c.entries)),
	}
	for _, e := range c.entries {
		doc.Entries = append(doc.Entries, e.clone())
	}
	c.mu.Unlock()
	sort.Slice(doc.Entries, func(i, j int) bool { return doc.Entries[i].Key < doc.Entries[j].Key })

	data, err := json.Marshal(doc)
	if err != nil {
		metrics.SnapshotWrites.WithLabelValues(c.store.Name(), "error").Inc()
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := c.store.Save(ctx, data); err != nil {
		metrics.SnapshotWrites.WithLabelValues(c.store.Name(), "error").Inc()
		return err
	}
	metrics.SnapshotWrites.WithLabelValues(c.store.Name(), "success").Inc()
	return nil
}

// loadSnapshot returns the stored entries. Restored results are generic
// JSON values.
func (c *Cache) loadSnapshot(ctx context.Context) ([]*Entry, error) {
	data, err := c.store.Load(ctx)
	if err != nil || data == nil {
		return nil, err
	}
	var doc snapshotDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if doc.Version != snapshotVersion {
		return nil, fmt.Errorf("unsupported snapshot version %d", doc.Version)
	}
	out := doc.Entries[:0]
	for _, e := range doc.Entries {
		if e == nil || e.Key == "" || e.ID == "" {
			continue
		}
		e.MatchedBy, e.Similarity = "", 0
		out = append(out, e)
	}
	return out, nil
}
