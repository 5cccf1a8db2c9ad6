package observability

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// DurationObserver receives every completed timer.
type DurationObserver func(label string, elapsed time.Duration)

type runningTimer struct {
	label   string
	started time.Time
}

// Monitor hands out operation timers. Unknown or already-ended timer ids are
// routine lookup misses and yield a zero duration.
type Monitor struct {
	mu       sync.Mutex
	timers   map[string]runningTimer
	observer DurationObserver
	now      func() time.Time
}

// NewMonitor creates a Monitor. observer may be nil.
func NewMonitor(observer DurationObserver) *Monitor {
	return &Monitor{
		timers:   make(map[string]runningTimer),
		observer: observer,
		now:      time.Now,
	}
}

// StartTimer starts a timer for label and returns its id.
func (m *Monitor) StartTimer(label string) string {
	if m == nil {
		return ""
	}
	id := uuid.NewString()

	m.mu.Lock()
	m.timers[id] = runningTimer{label: label, started: m.now()}
	m.mu.Unlock()

	return id
}

// EndTimer stops the timer and returns the elapsed time.
func (m *Monitor) EndTimer(id string) time.Duration {
	if m == nil || id == "" {
		return 0
	}

	m.mu.Lock()
	t, ok := m.timers[id]
	if ok {
		delete(m.timers, id)
	}
	m.mu.Unlock()

	if !ok {
		return 0
	}

	elapsed := m.now().Sub(t.started)
	if m.observer != nil {
		m.observer(t.label, elapsed)
	}
	return elapsed
}

// Running returns the number of timers not yet ended.
func (m *Monitor) Running() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.timers)
}
