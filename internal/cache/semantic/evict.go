package semantic

import "sort"

// evictLocked removes entries in strategy order until the cache holds at
// most 80% of MaxSize, and returns the evicted keys.
func (c *Cache) evictLocked() []string {
	target := c.cfg.MaxSize * 8 / 10
	if target < 1 {
		target = 1
	}
	if len(c.entries) <= target {
		return nil
	}

	candidates := make([]*Entry, 0, len(c.entries))
	for _, e := range c.entries {
		candidates = append(candidates, e)
	}
	sort.Slice(candidates, evictionOrder(c.cfg.ExpirationStrategy, candidates))

	var keys []string
	for _, e := range candidates {
		if len(c.entries) <= target {
			break
		}
		c.removeLocked(e, reasonEvict)
		keys = append(keys, e.Key)
	}
	c.dirty = true
	c.logger.Debug("semantic cache evicted entries", "count", len(keys), "strategy", c.cfg.ExpirationStrategy)
	return keys
}

// evictionOrder returns a less func ranking entries to evict first.
func evictionOrder(s EvictionStrategy, es []*Entry) func(i, j int) bool {
	return func(i, j int) bool {
		a, b := es[i], es[j]
		switch s {
		case EvictLFU:
			if a.AccessCount != b.AccessCount {
				return a.AccessCount < b.AccessCount
			}
			if !a.LastAccessed.Equal(b.LastAccessed) {
				return a.LastAccessed.Before(b.LastAccessed)
			}
		case EvictSize:
			if a.Size != b.Size {
				return a.Size > b.Size
			}
		case EvictPriority:
			if a.Priority != b.Priority {
				return a.Priority < b.Priority
			}
			if !a.LastAccessed.Equal(b.LastAccessed) {
				return a.LastAccessed.Before(b.LastAccessed)
			}
		case EvictTime:
		default: // LRU
			if !a.LastAccessed.Equal(b.LastAccessed) {
				return a.LastAccessed.Before(b.LastAccessed)
			}
		}
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.Before(b.Timestamp)
		}
		return a.ID < b.ID
	}
}
