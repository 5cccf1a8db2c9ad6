package semantic

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/blueberrycongee/reasoncache/internal/cache"
	"github.com/blueberrycongee/reasoncache/internal/cache/semantic/embedding"
	"github.com/blueberrycongee/reasoncache/internal/cache/semantic/snapshot"
	"github.com/blueberrycongee/reasoncache/internal/cache/semantic/vector"
	"github.com/blueberrycongee/reasoncache/internal/events"
	"github.com/blueberrycongee/reasoncache/internal/metrics"
	"github.com/blueberrycongee/reasoncache/pkg/errors"
)

// Removal reasons, also used as metric labels.
const (
	reasonInvalidate = "invalidate"
	reasonExpire     = "expire"
	reasonEvict      = "evict"
	reasonReplace    = "replace"
)

const component = "semantic cache"

// Cache is a semantic result cache. It must be initialized before use and
// is safe for concurrent use.
type Cache struct {
	base     Config
	source   ConfigSource
	embedder embedding.Embedder
	store    snapshot.Store
	emitter  events.Emitter
	logger   *slog.Logger
	now      func() time.Time

	// lifecycle serializes Initialize and Shutdown.
	lifecycle sync.Mutex

	mu          sync.Mutex
	cfg         Config
	initialized bool
	entries     map[string]*Entry // by key
	byID        map[string]*Entry
	contexts    contextIndex
	vectors     *vector.MemoryIndex
	sizeBytes   int64
	dirty       bool
	counters    counters
	limiter     *rate.Limiter

	stop    chan struct{}
	stopped chan struct{}
	writes  sync.WaitGroup
	saveMu  sync.Mutex
}

type counters struct {
	hits, misses, stores, invalidations, evictions, expirations int64
}

// Option configures a Cache.
type Option func(*Cache)

// WithEmbedder enables vector lookups. Without one, vector similarity is
// skipped even when enabled in the config.
func WithEmbedder(e embedding.Embedder) Option {
	return func(c *Cache) { c.embedder = e }
}

// WithSnapshotStore sets where snapshots go when offline support is on.
func WithSnapshotStore(s snapshot.Store) Option {
	return func(c *Cache) { c.store = s }
}

// WithConfigSource makes Initialize read semantic_cache.* settings from src.
func WithConfigSource(src ConfigSource) Option {
	return func(c *Cache) { c.source = src }
}

// WithEmitter sets the event sink.
func WithEmitter(e events.Emitter) Option {
	return func(c *Cache) { c.emitter = e }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) { c.logger = l }
}

// New creates an uninitialized cache.
func New(cfg Config, opts ...Option) *Cache {
	c := &Cache{
		base:    cfg,
		emitter: events.Nop{},
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.reset()
	return c
}

func (c *Cache) reset() {
	c.entries = make(map[string]*Entry)
	c.byID = make(map[string]*Entry)
	c.contexts = make(contextIndex)
	c.vectors = vector.NewMemoryIndex(0)
	c.sizeBytes = 0
	c.dirty = false
	c.counters = counters{}
}

// Initialize resolves settings, restores the last snapshot when offline
// support is on and starts the expiry sweeper. Calling it again is a no-op.
func (c *Cache) Initialize(ctx context.Context) error {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	c.mu.Lock()
	done := c.initialized
	c.mu.Unlock()
	if done {
		return nil
	}

	cfg := c.base.overlay(c.source)
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.EnableVectorSimilarity && c.embedder == nil {
		c.logger.Info("semantic cache has no embedder, vector lookups disabled")
	}

	var restored []*Entry
	if cfg.EnableOfflineSupport && c.store != nil {
		var err error
		restored, err = c.loadSnapshot(ctx)
		if err != nil {
			c.logger.Warn("semantic cache snapshot restore failed", "backend", c.store.Name(), "error", err)
		}
	}

	c.mu.Lock()
	c.cfg = cfg
	c.reset()
	if cfg.PersistInterval > 0 {
		c.limiter = rate.NewLimiter(rate.Every(cfg.PersistInterval), 1)
	} else {
		c.limiter = rate.NewLimiter(rate.Inf, 1)
	}
	now := c.now()
	for _, e := range restored {
		if e.Expired(now) {
			continue
		}
		c.insertLocked(e)
	}
	var evicted []string
	if len(c.entries) > cfg.MaxSize {
		evicted = c.evictLocked()
	}
	c.initialized = true
	c.updateGaugesLocked()
	count := len(c.entries)
	c.mu.Unlock()

	c.emitRemoved(evicted, reasonEvict)

	c.stop = make(chan struct{})
	c.stopped = make(chan struct{})
	go c.sweep(cfg.ExpirationInterval, c.stop, c.stopped)

	c.logger.Info("semantic cache initialized",
		"max_size", cfg.MaxSize,
		"eviction", cfg.ExpirationStrategy,
		"vector_similarity", c.vectorEnabled(cfg),
		"offline_support", cfg.EnableOfflineSupport,
		"restored", count,
	)
	return nil
}

func (c *Cache) vectorEnabled(cfg Config) bool {
	return cfg.EnableVectorSimilarity && c.embedder != nil
}

// config returns the active config, or an error before Initialize.
func (c *Cache) config() (Config, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.initialized {
		return Config{}, errors.NewNotInitializedError(component)
	}
	return c.cfg, nil
}

// Store caches value under key, replacing any existing entry.
func (c *Cache) Store(ctx context.Context, key string, value any, opts StoreOptions) (*Entry, error) {
	start := time.Now()
	defer func() { metrics.ObserveDuration("semantic_store", time.Since(start)) }()

	if key == "" {
		return nil, errors.NewInvalidArgumentError("cache key is required")
	}
	if opts.ConsistencyLevel != "" && !opts.ConsistencyLevel.Valid() {
		return nil, errors.NewInvalidArgumentError("unknown consistency level %q", opts.ConsistencyLevel)
	}
	cfg, err := c.config()
	if err != nil {
		return nil, err
	}

	result, size, err := normalize(value)
	if err != nil {
		return nil, errors.NewInvalidArgumentError("value is not serializable: %v", err)
	}

	var emb []float64
	if c.vectorEnabled(cfg) && opts.Text != "" {
		emb, err = c.embedder.Embed(ctx, opts.Text)
		if err != nil {
			c.logger.Warn("embedding failed, storing without vector", "key", key, "error", err)
			emb = nil
		}
	}

	ttl := cfg.DefaultTTL
	switch {
	case opts.TTL > 0:
		ttl = opts.TTL
	case opts.TTL < 0:
		ttl = 0
	}
	level := opts.ConsistencyLevel
	if level == "" {
		level = cfg.DefaultConsistencyLevel
	}

	now := c.now()
	e := &Entry{
		ID:               uuid.NewString(),
		Key:              key,
		Result:           result,
		Timestamp:        now,
		LastAccessed:     now,
		TTL:              ttl,
		Context:          cache.CopyMap(opts.Context),
		ConsistencyLevel: level,
		Priority:         opts.Priority,
		Size:             size,
		Embedding:        emb,
	}

	c.mu.Lock()
	if !c.initialized {
		c.mu.Unlock()
		return nil, errors.NewNotInitializedError(component)
	}
	if old, ok := c.entries[key]; ok {
		c.removeLocked(old, reasonReplace)
	}
	c.insertLocked(e)
	c.counters.stores++
	var evicted []string
	if len(c.entries) > c.cfg.MaxSize {
		evicted = c.evictLocked()
	}
	persist := c.schedulePersistLocked()
	c.updateGaugesLocked()
	out := e.clone()
	c.mu.Unlock()

	metrics.SemanticCacheStores.Inc()
	c.emitter.Emit(events.CacheStored, StoredPayload{Key: key, ID: e.ID})
	c.emitRemoved(evicted, reasonEvict)
	if persist {
		go c.persist()
	}
	return out, nil
}

// Retrieve finds an entry by key, then by best context overlap, then by
// embedding similarity. A miss returns nil and no error.
func (c *Cache) Retrieve(ctx context.Context, key string, opts RetrieveOptions) (*Entry, error) {
	start := time.Now()
	defer func() { metrics.ObserveDuration("semantic_retrieve", time.Since(start)) }()

	c.mu.Lock()
	if !c.initialized {
		c.mu.Unlock()
		return nil, errors.NewNotInitializedError(component)
	}
	cfg := c.cfg
	now := c.now()
	var expired []string

	if e, ok := c.entries[key]; ok && key != "" {
		if !e.Expired(now) {
			out := c.hitLocked(e, now, MatchKey, 0)
			c.mu.Unlock()
			return out, nil
		}
		c.removeLocked(e, reasonExpire)
		expired = append(expired, e.Key)
	}

	if cfg.EnableContextAwareness && len(opts.Context) > 0 {
		for {
			e := c.contexts.best(opts.Context, c.byID)
			if e == nil {
				break
			}
			if !e.Expired(now) {
				out := c.hitLocked(e, now, MatchContext, 0)
				c.updateGaugesLocked()
				c.mu.Unlock()
				c.emitRemoved(expired, reasonExpire)
				return out, nil
			}
			c.removeLocked(e, reasonExpire)
			expired = append(expired, e.Key)
		}
	}
	vectorPath := c.vectorEnabled(cfg) && opts.Text != "" && c.vectors.Len() > 0
	if !vectorPath {
		c.missLocked()
		c.updateGaugesLocked()
		c.mu.Unlock()
		c.emitRemoved(expired, reasonExpire)
		return nil, nil
	}
	c.mu.Unlock()
	c.emitRemoved(expired, reasonExpire)

	query, err := c.embedder.Embed(ctx, opts.Text)
	if err != nil {
		c.logger.Warn("embedding failed, skipping vector lookup", "error", err)
	}

	c.mu.Lock()
	if !c.initialized {
		c.mu.Unlock()
		return nil, errors.NewNotInitializedError(component)
	}
	var out *Entry
	expired = expired[:0]
	if query != nil {
		now = c.now()
		for _, hit := range c.vectors.Search(query, vector.SearchOptions{MinScore: cfg.SimilarityThreshold}) {
			e, ok := c.byID[hit.ID]
			if !ok {
				continue
			}
			if e.Expired(now) {
				c.removeLocked(e, reasonExpire)
				expired = append(expired, e.Key)
				continue
			}
			out = c.hitLocked(e, now, MatchVector, hit.Score)
			break
		}
	}
	if out == nil {
		c.missLocked()
	}
	c.updateGaugesLocked()
	c.mu.Unlock()
	c.emitRemoved(expired, reasonExpire)
	return out, nil
}

func (c *Cache) hitLocked(e *Entry, now time.Time, path string, similarity float64) *Entry {
	e.LastAccessed = now
	e.AccessCount++
	c.counters.hits++
	metrics.SemanticCacheLookups.WithLabelValues(path).Inc()
	out := e.clone()
	out.MatchedBy = path
	out.Similarity = similarity
	return out
}

func (c *Cache) missLocked() {
	c.counters.misses++
	metrics.SemanticCacheLookups.WithLabelValues("miss").Inc()
}

// Invalidate removes the selected entries and returns how many were removed.
func (c *Cache) Invalidate(_ context.Context, opts InvalidateOptions) (int, error) {
	if !opts.All && opts.Key == "" && len(opts.Context) == 0 {
		return 0, errors.NewInvalidArgumentError("invalidate needs a key, a context or all")
	}

	c.mu.Lock()
	if !c.initialized {
		c.mu.Unlock()
		return 0, errors.NewNotInitializedError(component)
	}
	var victims []*Entry
	switch {
	case opts.All:
		for _, e := range c.entries {
			victims = append(victims, e)
		}
	case opts.Key != "":
		if e, ok := c.entries[opts.Key]; ok {
			victims = append(victims, e)
		}
	default:
		for _, id := range c.contexts.matchAll(opts.Context) {
			victims = append(victims, c.byID[id])
		}
	}
	keys := make([]string, 0, len(victims))
	for _, e := range victims {
		c.removeLocked(e, reasonInvalidate)
		keys = append(keys, e.Key)
	}
	persist := len(keys) > 0 && c.schedulePersistLocked()
	c.updateGaugesLocked()
	c.mu.Unlock()

	c.emitRemoved(keys, reasonInvalidate)
	if persist {
		go c.persist()
	}
	return len(keys), nil
}

// ExpireEntries removes every expired entry and returns how many went.
// It does nothing before Initialize.
func (c *Cache) ExpireEntries() int {
	c.mu.Lock()
	if !c.initialized {
		c.mu.Unlock()
		return 0
	}
	now := c.now()
	var keys []string
	for _, e := range c.entries {
		if e.Expired(now) {
			c.removeLocked(e, reasonExpire)
			keys = append(keys, e.Key)
		}
	}
	if len(keys) > 0 {
		c.dirty = true
	}
	c.updateGaugesLocked()
	c.mu.Unlock()

	c.emitRemoved(keys, reasonExpire)
	return len(keys)
}

// Stats returns current counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Stats{
		Initialized:   c.initialized,
		Entries:       len(c.entries),
		SizeBytes:     c.sizeBytes,
		Hits:          c.counters.hits,
		Misses:        c.counters.misses,
		Stores:        c.counters.stores,
		Invalidations: c.counters.invalidations,
		Evictions:     c.counters.evictions,
		Expirations:   c.counters.expirations,
	}
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRate = float64(s.Hits) / float64(total)
	}
	return s
}

// CosineSimilarity returns the cosine similarity of a and b, or 0 when
// their lengths differ or either has zero norm.
func (c *Cache) CosineSimilarity(a, b []float64) float64 {
	return vector.CosineSimilarity(a, b)
}

// Shutdown stops the sweeper, waits for pending snapshot writes and takes
// a final snapshot when offline support is on. The cache returns to the
// uninitialized state. Calling it again is a no-op.
func (c *Cache) Shutdown(ctx context.Context) error {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	c.mu.Lock()
	if !c.initialized {
		c.mu.Unlock()
		return nil
	}
	c.initialized = false
	cfg := c.cfg
	c.mu.Unlock()

	close(c.stop)
	<-c.stopped
	c.writes.Wait()

	var err error
	if cfg.EnableOfflineSupport && c.store != nil {
		err = c.save(ctx)
	}

	c.mu.Lock()
	c.reset()
	c.updateGaugesLocked()
	c.mu.Unlock()

	c.logger.Info("semantic cache shut down")
	return err
}

func (c *Cache) sweep(interval time.Duration, stop <-chan struct{}, stopped chan<- struct{}) {
	defer close(stopped)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if n := c.ExpireEntries(); n > 0 {
				c.logger.Debug("semantic cache expired entries", "count", n)
			}
			c.mu.Lock()
			persist := c.dirty && c.schedulePersistLocked()
			c.mu.Unlock()
			if persist {
				c.persist()
			}
		}
	}
}

// insertLocked adds e to every index.
func (c *Cache) insertLocked(e *Entry) {
	c.entries[e.Key] = e
	c.byID[e.ID] = e
	c.contexts.add(e)
	if len(e.Embedding) > 0 {
		if err := c.vectors.Upsert(e.ID, e.Embedding); err != nil {
			c.logger.Warn("dropping entry embedding", "key", e.Key, "error", err)
			e.Embedding = nil
		}
	}
	c.sizeBytes += e.Size
}

// removeLocked is the single removal path; every index and counter is
// updated here.
func (c *Cache) removeLocked(e *Entry, reason string) {
	if cur, ok := c.entries[e.Key]; !ok || cur != e {
		return
	}
	delete(c.entries, e.Key)
	delete(c.byID, e.ID)
	c.contexts.remove(e)
	c.vectors.Delete(e.ID)
	c.sizeBytes -= e.Size

	switch reason {
	case reasonInvalidate:
		c.counters.invalidations++
	case reasonExpire:
		c.counters.expirations++
	case reasonEvict:
		c.counters.evictions++
	}
	metrics.SemanticCacheRemovals.WithLabelValues(reason).Inc()
}

func (c *Cache) updateGaugesLocked() {
	metrics.SemanticCacheEntries.Set(float64(len(c.entries)))
	metrics.SemanticCacheSizeBytes.Set(float64(c.sizeBytes))
}

func (c *Cache) emitRemoved(keys []string, reason string) {
	if len(keys) == 0 {
		return
	}
	event := events.CacheEvicted
	if reason == reasonInvalidate {
		event = events.CacheInvalidated
	}
	c.emitter.Emit(event, RemovedPayload{Keys: append([]string(nil), keys...), Reason: reason})
}

// estimateSize is the length of the JSON encoding of v.
func estimateSize(v any) (int64, error) {
	_, size, err := normalize(v)
	return size, err
}

// normalize returns v decoded back from its JSON encoding, along with the
// encoding's length. Cached results hold no references into caller memory
// and look the same whether stored live or restored from a snapshot.
func normalize(v any) (any, int64, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, 0, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, 0, err
	}
	return out, int64(len(data)), nil
}
