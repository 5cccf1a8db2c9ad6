package events

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBus() *Bus {
	return NewBus(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestBus_EmitInOrder(t *testing.T) {
	bus := newTestBus()

	var got []string
	bus.Subscribe(LayerChanged, func(_ string, p any) { got = append(got, "a:"+p.(string)) })
	bus.Subscribe(LayerChanged, func(_ string, p any) { got = append(got, "b:"+p.(string)) })
	bus.Subscribe(DataProcessed, func(_ string, p any) { got = append(got, "other") })

	bus.Emit(LayerChanged, "x")

	assert.Equal(t, []string{"a:x", "b:x"}, got)
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := newTestBus()

	calls := 0
	unsub := bus.Subscribe(ReasoningCompleted, func(string, any) { calls++ })
	require.Equal(t, 1, bus.Count(ReasoningCompleted))

	unsub()
	unsub() // idempotent

	bus.Emit(ReasoningCompleted, nil)
	assert.Equal(t, 0, calls)
	assert.Equal(t, 0, bus.Count(ReasoningCompleted))
}

func TestBus_PanickingHandlerDoesNotStopDelivery(t *testing.T) {
	bus := newTestBus()

	delivered := false
	bus.Subscribe(CacheStored, func(string, any) { panic("boom") })
	bus.Subscribe(CacheStored, func(string, any) { delivered = true })

	assert.NotPanics(t, func() { bus.Emit(CacheStored, nil) })
	assert.True(t, delivered)
}

func TestBus_Reset(t *testing.T) {
	bus := newTestBus()
	bus.Subscribe(CacheEvicted, func(string, any) {})
	bus.Reset()
	assert.Equal(t, 0, bus.Count(CacheEvicted))
}
