package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/blueberrycongee/reasoncache/internal/metrics"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

var errUpstream = errors.New("upstream down")

func fail(context.Context) error    { return errUpstream }
func succeed(context.Context) error { return nil }

func newTestBreaker(name string) (*Breaker, *fakeClock) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	b := New(name, Config{
		FailureThreshold:    3,
		SuccessThreshold:    2,
		OpenTimeout:         time.Minute,
		HalfOpenMaxRequests: 1,
	}, WithClock(clock.Now))
	return b, clock
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateClosed, "closed"},
		{StateOpen, "open"},
		{StateHalfOpen, "half-open"},
		{State(42), "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.state.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNew_FillsDefaults(t *testing.T) {
	b := New("defaults", Config{})
	if b.cfg != DefaultConfig() {
		t.Errorf("cfg = %+v, want %+v", b.cfg, DefaultConfig())
	}
	if b.State() != StateClosed {
		t.Errorf("State() = %v, want closed", b.State())
	}
}

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	b, _ := newTestBreaker("opens")
	ctx := context.Background()

	_ = b.Do(ctx, fail)
	_ = b.Do(ctx, fail)
	_ = b.Do(ctx, succeed)
	_ = b.Do(ctx, fail)
	_ = b.Do(ctx, fail)
	if b.State() != StateClosed {
		t.Fatalf("a success should reset the failure count, state = %v", b.State())
	}

	if err := b.Do(ctx, fail); !errors.Is(err, errUpstream) {
		t.Fatalf("Do() = %v, want the upstream error", err)
	}
	if b.State() != StateOpen {
		t.Fatalf("State() = %v, want open", b.State())
	}

	called := false
	err := b.Do(ctx, func(context.Context) error { called = true; return nil })
	if !errors.Is(err, ErrOpen) || called {
		t.Errorf("open breaker: err = %v, called = %v", err, called)
	}
	if got := testutil.ToFloat64(metrics.CircuitBreakerState.WithLabelValues("opens")); got != float64(StateOpen) {
		t.Errorf("state gauge = %v, want %v", got, float64(StateOpen))
	}
}

func TestBreaker_HalfOpenRecovery(t *testing.T) {
	b, clock := newTestBreaker("recovers")
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_ = b.Do(ctx, fail)
	}

	clock.Advance(59 * time.Second)
	if b.Allow() {
		t.Fatal("should stay open before the timeout")
	}

	clock.Advance(time.Second)
	if !b.Allow() {
		t.Fatal("should allow a trial call after the timeout")
	}
	if b.State() != StateHalfOpen {
		t.Fatalf("State() = %v, want half-open", b.State())
	}
	if b.Allow() {
		t.Error("only one trial call may be in flight")
	}
	b.RecordSuccess()

	if err := b.Do(ctx, succeed); err != nil {
		t.Fatalf("second trial: %v", err)
	}
	if b.State() != StateClosed {
		t.Errorf("State() = %v, want closed", b.State())
	}
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	b, clock := newTestBreaker("reopens")
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_ = b.Do(ctx, fail)
	}
	clock.Advance(time.Minute)

	_ = b.Do(ctx, fail)
	if b.State() != StateOpen {
		t.Fatalf("State() = %v, want open", b.State())
	}
	if b.Allow() {
		t.Error("the open timeout should restart on reopen")
	}
}

func TestBreaker_CallerCancellationIsNotAFailure(t *testing.T) {
	b, _ := newTestBreaker("cancelled")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for i := 0; i < 5; i++ {
		err := b.Do(ctx, func(ctx context.Context) error { return ctx.Err() })
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Do() = %v, want context.Canceled", err)
		}
	}
	if b.State() != StateClosed {
		t.Errorf("State() = %v, want closed", b.State())
	}
}

func TestBreaker_Concurrent(t *testing.T) {
	b, _ := newTestBreaker("concurrent")
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = b.Do(ctx, fail)
		}()
	}
	wg.Wait()

	if b.State() != StateOpen {
		t.Errorf("State() = %v, want open", b.State())
	}
}
