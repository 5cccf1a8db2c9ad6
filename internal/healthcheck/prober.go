// Package healthcheck runs periodic dependency checks behind the readiness
// endpoint.
package healthcheck

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// Config controls the prober.
type Config struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout"`
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = 30 * time.Second
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	return c
}

// Check probes one dependency. A nil error means healthy.
type Check struct {
	Name string
	Fn   func(ctx context.Context) error
}

// Status is the outcome of the most recent run of one check.
type Status struct {
	Err       error
	Latency   time.Duration
	CheckedAt time.Time
}

// Prober runs its checks concurrently on a fixed interval and remembers the
// last Status of each.
type Prober struct {
	cfg     Config
	checks  []Check
	logger  *slog.Logger
	started atomic.Bool

	mu   sync.RWMutex
	last map[string]Status
}

// NewProber returns a prober over checks. It does nothing until Start or
// RunOnce is called.
func NewProber(cfg Config, logger *slog.Logger, checks ...Check) *Prober {
	if logger == nil {
		logger = slog.Default()
	}
	return &Prober{
		cfg:    cfg.withDefaults(),
		checks: checks,
		logger: logger.With("component", "healthcheck"),
		last:   make(map[string]Status, len(checks)),
	}
}

// Start runs the checks immediately and then every Interval until ctx is
// done. Only the first call has any effect, and none when disabled.
func (p *Prober) Start(ctx context.Context) {
	if p == nil || !p.cfg.Enabled || !p.started.CompareAndSwap(false, true) {
		return
	}
	go func() {
		tick := time.NewTicker(p.cfg.Interval)
		defer tick.Stop()
		for {
			p.RunOnce(ctx)
			select {
			case <-ctx.Done():
				return
			case <-tick.C:
			}
		}
	}()
}

// RunOnce runs every check in parallel, each bounded by Timeout, and
// returns once all have finished.
func (p *Prober) RunOnce(ctx context.Context) {
	var g errgroup.Group
	for _, c := range p.checks {
		g.Go(func() error {
			p.record(c.Name, p.probe(ctx, c))
			return nil
		})
	}
	_ = g.Wait()
}

func (p *Prober) probe(ctx context.Context, c Check) Status {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()
	start := time.Now()
	err := c.Fn(ctx)
	return Status{Err: err, Latency: time.Since(start), CheckedAt: start}
}

// record stores st and logs transitions between healthy and failing.
func (p *Prober) record(name string, st Status) {
	p.mu.Lock()
	prev, seen := p.last[name]
	p.last[name] = st
	p.mu.Unlock()

	failedBefore := seen && prev.Err != nil
	switch {
	case st.Err != nil && !failedBefore:
		p.logger.Warn("dependency unhealthy", "check", name, "error", st.Err)
	case st.Err == nil && failedBefore:
		p.logger.Info("dependency recovered", "check", name, "latency", st.Latency)
	}
}

// Ready is false when any check failed its last run. A prober that has not
// run yet is ready.
func (p *Prober) Ready() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, st := range p.last {
		if st.Err != nil {
			return false
		}
	}
	return true
}

// Status returns a copy of the last outcome of every check that has run.
func (p *Prober) Status() map[string]Status {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]Status, len(p.last))
	for name, st := range p.last {
		out[name] = st
	}
	return out
}

// Results maps each check to "ok" or its last error text.
func (p *Prober) Results() map[string]string {
	out := make(map[string]string)
	for name, st := range p.Status() {
		out[name] = "ok"
		if st.Err != nil {
			out[name] = st.Err.Error()
		}
	}
	return out
}
