package reasoning

import (
	"github.com/google/uuid"

	"github.com/blueberrycongee/reasoncache/internal/cache"
)

func (f *Framework) openTrace(input any, opts any) *Trace {
	tr := &Trace{
		ID:        uuid.NewString(),
		Input:     cache.DeepCopy(input),
		Options:   opts,
		StartTime: f.now(),
	}
	f.traceMu.Lock()
	f.traces[tr.ID] = tr
	f.traceMu.Unlock()
	return tr
}

// step appends s to tr. A nil trace is ignored.
func (f *Framework) step(tr *Trace, s TraceStep) {
	if tr == nil {
		return
	}
	s.Timestamp = f.now()
	f.traceMu.Lock()
	tr.Steps = append(tr.Steps, s)
	f.traceMu.Unlock()
}

func (f *Framework) closeTrace(tr *Trace, result any, layerResults map[string]*Result) {
	f.traceMu.Lock()
	defer f.traceMu.Unlock()
	tr.EndTime = f.now()
	tr.Duration = tr.EndTime.Sub(tr.StartTime)
	tr.Result = result
	tr.LayerResults = layerResults
}

// Trace returns a copy of the trace with the given id, or nil.
func (f *Framework) Trace(id string) *Trace {
	f.traceMu.RLock()
	defer f.traceMu.RUnlock()
	tr, ok := f.traces[id]
	if !ok {
		return nil
	}
	return tr.clone()
}

// TraceCount returns the number of stored traces.
func (f *Framework) TraceCount() int {
	f.traceMu.RLock()
	defer f.traceMu.RUnlock()
	return len(f.traces)
}

// ClearTraces removes every stored trace.
func (f *Framework) ClearTraces() {
	f.traceMu.Lock()
	f.traces = make(map[string]*Trace)
	f.traceMu.Unlock()
}
