// Package resilience keeps failing dependencies of the semantic cache from
// slowing down every call that touches them.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/blueberrycongee/reasoncache/internal/metrics"
)

// State is the position of a Breaker.
type State int

const (
	// StateClosed lets calls through and counts consecutive failures.
	StateClosed State = iota
	// StateOpen rejects calls until OpenTimeout has passed.
	StateOpen
	// StateHalfOpen lets a few trial calls through.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrOpen is returned by Do while the breaker rejects calls.
var ErrOpen = errors.New("circuit breaker is open")

// Config tunes a Breaker. Zero fields take the defaults.
type Config struct {
	// FailureThreshold consecutive failures open the breaker.
	FailureThreshold int `yaml:"failure_threshold"`
	// SuccessThreshold half-open successes close it again.
	SuccessThreshold int `yaml:"success_threshold"`
	// OpenTimeout is how long the breaker stays open before trial calls.
	OpenTimeout time.Duration `yaml:"open_timeout"`
	// HalfOpenMaxRequests bounds the trial calls in flight.
	HalfOpenMaxRequests int `yaml:"half_open_max_requests"`
}

// DefaultConfig opens after five failures and retries after thirty seconds.
func DefaultConfig() Config {
	return Config{
		FailureThreshold:    5,
		SuccessThreshold:    2,
		OpenTimeout:         30 * time.Second,
		HalfOpenMaxRequests: 1,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = def.FailureThreshold
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = def.SuccessThreshold
	}
	if c.OpenTimeout <= 0 {
		c.OpenTimeout = def.OpenTimeout
	}
	if c.HalfOpenMaxRequests <= 0 {
		c.HalfOpenMaxRequests = def.HalfOpenMaxRequests
	}
	return c
}

// Breaker is a consecutive-failure circuit breaker. It is safe for
// concurrent use.
type Breaker struct {
	name   string
	cfg    Config
	logger *slog.Logger
	now    func() time.Time

	mu        sync.Mutex
	state     State
	failures  int
	successes int
	trials    int
	openedAt  time.Time
}

// Option configures a Breaker.
type Option func(*Breaker)

// WithLogger logs state transitions to l.
func WithLogger(l *slog.Logger) Option {
	return func(b *Breaker) { b.logger = l }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) { b.now = now }
}

// New returns a closed breaker. name labels logs and the state gauge.
func New(name string, cfg Config, opts ...Option) *Breaker {
	b := &Breaker{
		name:   name,
		cfg:    cfg.withDefaults(),
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(StateClosed))
	return b
}

func (b *Breaker) Name() string { return b.name }

// State reports the current state. An open breaker whose timeout has
// passed still reads as open until the next call is allowed.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Do runs fn unless the breaker is open. A cancelled or expired ctx is
// the caller giving up, so it is not held against the dependency.
func (b *Breaker) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if !b.Allow() {
		return ErrOpen
	}
	err := fn(ctx)
	switch {
	case err == nil:
		b.RecordSuccess()
	case ctx.Err() != nil:
		b.release()
	default:
		b.RecordFailure()
	}
	return err
}

// Allow reports whether a call may proceed and, when half-open, reserves
// one of the trial slots.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.cfg.OpenTimeout {
			return false
		}
		b.transition(StateHalfOpen)
		b.trials = 1
		return true
	case StateHalfOpen:
		if b.trials >= b.cfg.HalfOpenMaxRequests {
			return false
		}
		b.trials++
		return true
	default:
		return true
	}
}

// RecordSuccess reports that an allowed call succeeded.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		b.failures = 0
	case StateHalfOpen:
		b.trials--
		b.successes++
		if b.successes >= b.cfg.SuccessThreshold {
			b.transition(StateClosed)
		}
	}
}

// RecordFailure reports that an allowed call failed.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.transition(StateOpen)
		}
	case StateHalfOpen:
		b.transition(StateOpen)
	}
}

// release frees a half-open trial slot without judging the outcome.
func (b *Breaker) release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateHalfOpen && b.trials > 0 {
		b.trials--
	}
}

// transition must be called with mu held.
func (b *Breaker) transition(to State) {
	if b.state == to {
		return
	}
	from := b.state
	b.state = to
	b.failures, b.successes, b.trials = 0, 0, 0
	if to == StateOpen {
		b.openedAt = b.now()
	}
	metrics.CircuitBreakerState.WithLabelValues(b.name).Set(float64(to))

	level := slog.LevelInfo
	if to == StateOpen {
		level = slog.LevelWarn
	}
	b.logger.Log(context.Background(), level, "circuit breaker state changed",
		"breaker", b.name, "from", from.String(), "to", to.String())
}
