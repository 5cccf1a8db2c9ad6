package healthcheck

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestProber_RunOnce(t *testing.T) {
	var failing atomic.Bool
	failing.Store(true)
	prober := NewProber(Config{Enabled: true}, nil,
		Check{Name: "cache", Fn: func(context.Context) error { return nil }},
		Check{Name: "snapshot", Fn: func(context.Context) error {
			if failing.Load() {
				return errors.New("connection refused")
			}
			return nil
		}},
	)

	assert.True(t, prober.Ready(), "ready before the first run")

	prober.RunOnce(context.Background())
	assert.False(t, prober.Ready())
	assert.Equal(t, map[string]string{"cache": "ok", "snapshot": "connection refused"}, prober.Results())

	failing.Store(false)
	prober.RunOnce(context.Background())
	assert.True(t, prober.Ready())
	assert.Equal(t, "ok", prober.Results()["snapshot"])
}

func TestProber_Timeout(t *testing.T) {
	prober := NewProber(Config{Timeout: 10 * time.Millisecond}, nil,
		Check{Name: "slow", Fn: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		}},
	)
	prober.RunOnce(context.Background())
	assert.False(t, prober.Ready())
	assert.Contains(t, prober.Results()["slow"], "deadline")
}

func TestProber_StartStops(t *testing.T) {
	defer goleak.VerifyNone(t)

	var runs atomic.Int64
	prober := NewProber(Config{Enabled: true, Interval: 5 * time.Millisecond}, nil,
		Check{Name: "count", Fn: func(context.Context) error {
			runs.Add(1)
			return nil
		}},
	)

	ctx, cancel := context.WithCancel(context.Background())
	prober.Start(ctx)
	prober.Start(ctx)
	require.Eventually(t, func() bool { return runs.Load() >= 2 }, time.Second, time.Millisecond)
	cancel()
}

func TestProber_Disabled(t *testing.T) {
	var runs atomic.Int64
	prober := NewProber(Config{}, nil, Check{Name: "x", Fn: func(context.Context) error {
		runs.Add(1)
		return nil
	}})
	prober.Start(context.Background())
	time.Sleep(10 * time.Millisecond)
	assert.Zero(t, runs.Load())
}

func TestProber_RunsChecksConcurrently(t *testing.T) {
	release := make(chan struct{})
	var entered atomic.Int64
	blocking := func(context.Context) error {
		if entered.Add(1) == 2 {
			close(release)
		}
		<-release
		return nil
	}
	prober := NewProber(Config{Timeout: time.Second}, nil,
		Check{Name: "a", Fn: blocking},
		Check{Name: "b", Fn: blocking},
	)

	done := make(chan struct{})
	go func() {
		prober.RunOnce(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("checks ran one after another")
	}

	st := prober.Status()
	require.Len(t, st, 2)
	assert.NoError(t, st["a"].Err)
	assert.False(t, st["b"].CheckedAt.IsZero())
}
