package layers

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"

	"github.com/blueberrycongee/reasoncache/internal/cache"
	"github.com/blueberrycongee/reasoncache/internal/events"
	"github.com/blueberrycongee/reasoncache/internal/metrics"
	"github.com/blueberrycongee/reasoncache/internal/security"
	"github.com/blueberrycongee/reasoncache/pkg/errors"
)

// LayerChangedPayload is emitted with events.LayerChanged.
type LayerChangedPayload struct {
	Previous string `json:"previous"`
	New      string `json:"new"`
}

// DataProcessedPayload is emitted with events.DataProcessed.
type DataProcessedPayload struct {
	Layer  string           `json:"layer"`
	Result *ProcessedRecord `json:"result"`
}

// Manager owns the enabled layers, the current layer and the processed-record cache.
// It is safe for concurrent use.
type Manager struct {
	layers     []Layer
	byName     map[string]Layer
	processors map[string]Processor
	fallback   Processor

	cacheEnabled bool
	cache        *cache.TTLCache[*ProcessedRecord]
	keys         *cache.KeyGenerator

	emitter   events.Emitter
	encryptor security.Encryptor
	logger    *slog.Logger
	now       func() time.Time

	mu      sync.RWMutex
	current string

	closed atomic.Bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithEmitter sets the notification sink.
func WithEmitter(e events.Emitter) Option {
	return func(m *Manager) { m.emitter = e }
}

// WithEncryptor enables sealing of sensitive records.
func WithEncryptor(e security.Encryptor) Option {
	return func(m *Manager) { m.encryptor = e }
}

// WithProcessor overrides the processor of one layer.
func WithProcessor(layer string, p Processor) Option {
	return func(m *Manager) { m.processors[layer] = p }
}

// WithLayer registers an additional layer that can then be enabled in Config.
func WithLayer(l Layer, p Processor) Option {
	return func(m *Manager) {
		m.byName[l.Name] = l
		if p != nil {
			m.processors[l.Name] = p
		}
	}
}

// New creates a layer manager. Configuration errors are fatal.
func New(cfg Config, opts ...Option) (*Manager, error) {
	m := &Manager{
		byName:     make(map[string]Layer),
		processors: make(map[string]Processor),
		fallback:   FeatureProcessor{},
		keys:       cache.NewKeyGenerator(""),
		emitter:    events.Nop{},
		now:        time.Now,
	}
	for _, l := range BuiltinLayers() {
		m.byName[l.Name] = l
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}

	if err := cfg.validate(m.byName); err != nil {
		return nil, err
	}

	known := m.byName
	m.byName = make(map[string]Layer, len(cfg.Enabled))
	for _, name := range cfg.Enabled {
		l := known[name]
		m.layers = append(m.layers, l)
		m.byName[name] = l
	}
	sort.SliceStable(m.layers, func(i, j int) bool { return m.layers[i].Level < m.layers[j].Level })

	m.current = cfg.Default
	m.cacheEnabled = cfg.CacheEnabled
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	m.cache = cache.NewTTLCache[*ProcessedRecord](cache.TTLConfig{DefaultTTL: ttl})

	return m, nil
}

// AvailableLayers returns the enabled layer names ordered by level.
func (m *Manager) AvailableLayers() []string {
	out := make([]string, len(m.layers))
	for i, l := range m.layers {
		out[i] = l.Name
	}
	return out
}

// HasLayer reports whether name is enabled.
func (m *Manager) HasLayer(name string) bool {
	_, ok := m.byName[name]
	return ok
}

// Layer returns the enabled layer called name.
func (m *Manager) Layer(name string) (Layer, bool) {
	l, ok := m.byName[name]
	return l, ok
}

// CurrentLayer returns the layer used by ProcessData.
func (m *Manager) CurrentLayer() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// SetCurrentLayer switches the current layer and emits events.LayerChanged.
func (m *Manager) SetCurrentLayer(name string) error {
	if !m.HasLayer(name) {
		return errors.NewInvalidLayerError(name)
	}

	m.mu.Lock()
	previous := m.current
	m.current = name
	m.mu.Unlock()

	m.logger.Debug("current layer changed", "previous", previous, "new", name)
	m.emitter.Emit(events.LayerChanged, LayerChangedPayload{Previous: previous, New: name})
	return nil
}

// ProcessData processes data at the current layer.
func (m *Manager) ProcessData(ctx context.Context, data any) (*ProcessedRecord, error) {
	return m.ProcessDataAtLayer(ctx, data, m.CurrentLayer())
}

// ProcessDataAtLayer processes data at layer, serving from the cache when possible.
func (m *Manager) ProcessDataAtLayer(ctx context.Context, data any, layer string) (*ProcessedRecord, error) {
	if m.closed.Load() {
		return nil, errors.NewDisposedError("layer manager")
	}
	l, ok := m.byName[layer]
	if !ok {
		return nil, errors.NewInvalidLayerError(layer)
	}
	record, err := NormalizeRecord(data)
	if err != nil {
		return nil, err
	}
	return m.process(ctx, l, record)
}

// ProcessDataThroughLayers processes data at each layer in the given order.
// Every layer is validated before any processing happens, so a bad name
// yields no partial results.
func (m *Manager) ProcessDataThroughLayers(ctx context.Context, data any, layers []string) ([]*ProcessedRecord, error) {
	if m.closed.Load() {
		return nil, errors.NewDisposedError("layer manager")
	}
	resolved := make([]Layer, 0, len(layers))
	for _, name := range layers {
		l, ok := m.byName[name]
		if !ok {
			return nil, errors.NewInvalidLayerError(name)
		}
		resolved = append(resolved, l)
	}
	record, err := NormalizeRecord(data)
	if err != nil {
		return nil, err
	}

	out := make([]*ProcessedRecord, 0, len(resolved))
	for _, l := range resolved {
		res, err := m.process(ctx, l, record)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, nil
}

func (m *Manager) process(ctx context.Context, l Layer, data map[string]any) (*ProcessedRecord, error) {
	key, err := m.keys.LayerKey(l.Name, data)
	if err != nil {
		return nil, errors.NewInvalidArgumentError("data is not serializable: %v", err)
	}

	if m.cacheEnabled {
		if cached, _, ok := m.cache.Get(key); ok {
			metrics.LayerProcessed.WithLabelValues(l.Name, "hit").Inc()
			out := cached.Clone()
			out.FromCache = true
			return out, nil
		}
	}

	proc := m.processors[l.Name]
	if proc == nil {
		proc = m.fallback
	}
	features, err := proc.Process(ctx, l, data)
	if err != nil {
		m.logger.Error("layer processing failed", "layer", l.Name, "error", err)
		return nil, errors.Wrap("process_data", err)
	}

	result := &ProcessedRecord{
		Layer:     l.Name,
		Level:     l.Level,
		Processed: true,
		Timestamp: m.now(),
		Data:      cache.CopyMap(data),
		Features:  features,
	}
	if isSensitive(data) {
		result.Sensitive = true
		m.seal(ctx, result)
	}

	if m.cacheEnabled {
		m.cache.Set(key, result.Clone(), 0)
	}
	metrics.LayerProcessed.WithLabelValues(l.Name, "miss").Inc()

	m.emitter.Emit(events.DataProcessed, DataProcessedPayload{Layer: l.Name, Result: result.Clone()})
	return result, nil
}

// seal moves the payload of a sensitive record into an envelope. Failure
// leaves the record unencrypted; the record is still processed.
func (m *Manager) seal(ctx context.Context, r *ProcessedRecord) {
	if m.encryptor == nil {
		return
	}
	plain, err := json.Marshal(r.Data)
	if err == nil {
		var env *security.Envelope
		env, err = m.encryptor.Encrypt(ctx, plain)
		if err == nil {
			r.Envelope = env
			kept := map[string]any{}
			if id, ok := r.Data["id"]; ok {
				kept["id"] = id
			}
			r.Data = kept
			return
		}
	}
	metrics.LayerEncryptionFailures.WithLabelValues(r.Layer).Inc()
	m.logger.Warn("failed to encrypt sensitive record, continuing unencrypted",
		"layer", r.Layer, "error", err)
}

// OpenRecord returns the payload of r, decrypting it when sealed.
func (m *Manager) OpenRecord(ctx context.Context, r *ProcessedRecord) (map[string]any, error) {
	if r.Envelope == nil {
		return cache.CopyMap(r.Data), nil
	}
	if m.encryptor == nil {
		return nil, errors.NewNotInitializedError("encryption")
	}
	plain, err := m.encryptor.Decrypt(ctx, r.Envelope)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(plain, &out); err != nil {
		return nil, errors.NewInternalError("decode sealed record", err)
	}
	return out, nil
}

// ClearCache drops every cached processed record.
func (m *Manager) ClearCache() {
	m.cache.Flush()
}

// CacheStats drops expired records and returns processed-record cache
// statistics.
func (m *Manager) CacheStats() cache.Stats {
	m.cache.Purge()
	return m.cache.Stats()
}

// Close releases the cache. It is idempotent; later processing fails.
func (m *Manager) Close() error {
	if m.closed.Swap(true) {
		return nil
	}
	m.cache.Flush()
	return nil
}
