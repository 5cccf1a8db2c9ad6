// Package events provides the in-process notification bus shared by the
// layer manager, the reasoning framework and the semantic cache.
// Delivery is synchronous and best-effort: a panicking handler is logged and skipped.
package events

import (
	"log/slog"
	"sync"
)

// Event names emitted by reasoncache components.
const (
	LayerChanged                  = "layer:changed"
	DataProcessed                 = "data:processed"
	ReasoningCompleted            = "reasoning:completed"
	HierarchicalReasoningComplete = "reasoning:hierarchical:completed"
	StrategyChanged               = "strategy:changed"
	CacheStored                   = "cache:stored"
	CacheInvalidated              = "cache:invalidated"
	CacheEvicted                  = "cache:evicted"
)

// Handler receives an event payload.
type Handler func(event string, payload any)

// Emitter is the narrow capability components depend on.
type Emitter interface {
	Emit(event string, payload any)
}

type subscription struct {
	id      uint64
	handler Handler
}

// Bus is a minimal publish/subscribe hub.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[string][]subscription
	logger *slog.Logger
}

// NewBus creates an empty bus. A nil logger falls back to slog.Default().
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		subs:   make(map[string][]subscription),
		logger: logger,
	}
}

// Subscribe registers handler for event and returns a function that removes it.
// The returned function is safe to call more than once.
func (b *Bus) Subscribe(event string, handler Handler) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[event] = append(b.subs[event], subscription{id: id, handler: handler})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.unsubscribe(event, id) })
	}
}

func (b *Bus) unsubscribe(event string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subs[event]
	for i, s := range subs {
		if s.id == id {
			b.subs[event] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(b.subs[event]) == 0 {
		delete(b.subs, event)
	}
}

// Emit delivers payload to every handler subscribed to event, in subscription order.
func (b *Bus) Emit(event string, payload any) {
	b.mu.RLock()
	subs := make([]subscription, len(b.subs[event]))
	copy(subs, b.subs[event])
	b.mu.RUnlock()

	for _, s := range subs {
		b.deliver(event, payload, s.handler)
	}
}

func (b *Bus) deliver(event string, payload any, handler Handler) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked", "event", event, "panic", r)
		}
	}()
	handler(event, payload)
}

// Count returns the number of handlers subscribed to event.
func (b *Bus) Count(event string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[event])
}

// Reset removes every subscription.
func (b *Bus) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = make(map[string][]subscription)
}

// Nop is an Emitter that drops everything.
type Nop struct{}

// Emit implements Emitter.
func (Nop) Emit(string, any) {}
