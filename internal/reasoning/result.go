package reasoning

import (
	"time"

	"github.com/blueberrycongee/reasoncache/internal/cache"
)

// Result is the outcome of one Reason call. A Result is never mutated once
// produced; cache hits return a copy with FromCache set.
type Result struct {
	ReasoningID   string       `json:"reasoning_id"`
	InputID       string       `json:"input_id"`
	Strategy      Strategy     `json:"strategy"`
	Layer         string       `json:"layer"`
	Depth         int          `json:"depth"`
	Conclusion    any          `json:"conclusion"`
	Confidence    float64      `json:"confidence"`
	LowConfidence bool         `json:"low_confidence,omitempty"`
	Timestamp     time.Time    `json:"timestamp"`
	Explanation   *Explanation `json:"explanation,omitempty"`
	TraceID       string       `json:"trace_id,omitempty"`
	FromCache     bool         `json:"from_cache,omitempty"`
}

// Clone returns a deep copy.
func (r *Result) Clone() *Result {
	if r == nil {
		return nil
	}
	cp := *r
	cp.Conclusion = cache.DeepCopy(r.Conclusion)
	cp.Explanation = r.Explanation.Clone()
	return &cp
}

// Insight is a qualitative observation about how layer results relate.
type Insight struct {
	Type        string   `json:"type"`
	Description string   `json:"description"`
	Layers      []string `json:"layers,omitempty"`
	Score       float64  `json:"score"`
}

// Insight types produced by cross-layer integration.
const (
	InsightConsistency   = "consistency"
	InsightEmergence     = "emergence"
	InsightContradiction = "contradiction"
)

// IntegratedConclusion combines per-layer results.
type IntegratedConclusion struct {
	PrimaryConclusion  any                `json:"primary_conclusion"`
	PrimaryLayer       string             `json:"primary_layer"`
	CrossLayerInsights []Insight          `json:"cross_layer_insights"`
	LayerConclusions   map[string]*Result `json:"layer_conclusions"`
	// LayerOrder lists LayerConclusions keys in request order.
	LayerOrder []string `json:"layer_order"`
}

// HierarchicalResult is the outcome of ReasonAcrossLayers.
type HierarchicalResult struct {
	ReasoningID string               `json:"reasoning_id"`
	Strategy    Strategy             `json:"strategy"`
	Conclusion  IntegratedConclusion `json:"conclusion"`
	Confidence  float64              `json:"confidence"`
	Timestamp   time.Time            `json:"timestamp"`
	Explanation *Explanation         `json:"explanation,omitempty"`
	TraceID     string               `json:"trace_id,omitempty"`
}

// TraceStep is one recorded action of a traced call.
type TraceStep struct {
	Timestamp  time.Time      `json:"timestamp"`
	Action     string         `json:"action"`
	Strategy   Strategy       `json:"strategy,omitempty"`
	Layer      string         `json:"layer,omitempty"`
	Depth      int            `json:"depth,omitempty"`
	Confidence *float64       `json:"confidence,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
}

// Trace records the execution of a traced call. Traces have no TTL.
type Trace struct {
	ID           string             `json:"id"`
	Input        any                `json:"input"`
	Options      any                `json:"options"`
	StartTime    time.Time          `json:"start_time"`
	Steps        []TraceStep        `json:"steps"`
	EndTime      time.Time          `json:"end_time"`
	Duration     time.Duration      `json:"duration"`
	Result       any                `json:"result,omitempty"`
	LayerResults map[string]*Result `json:"layer_results,omitempty"`
}

func (t *Trace) clone() *Trace {
	cp := *t
	cp.Input = cache.DeepCopy(t.Input)
	cp.Steps = make([]TraceStep, len(t.Steps))
	for i, s := range t.Steps {
		s.Details = cache.CopyMap(s.Details)
		cp.Steps[i] = s
	}
	switch r := t.Result.(type) {
	case *Result:
		cp.Result = r.Clone()
	case *HierarchicalResult:
		cp.Result = r.clone()
	}
	if t.LayerResults != nil {
		cp.LayerResults = make(map[string]*Result, len(t.LayerResults))
		for k, v := range t.LayerResults {
			cp.LayerResults[k] = v.Clone()
		}
	}
	return &cp
}

// Event payloads.

// CompletedPayload is emitted with events.ReasoningCompleted.
type CompletedPayload struct {
	InputID     string   `json:"input_id"`
	Strategy    Strategy `json:"strategy"`
	Layer       string   `json:"layer"`
	Depth       int      `json:"depth"`
	ReasoningID string   `json:"reasoning_id"`
	Confidence  float64  `json:"confidence"`
}

// HierarchicalPayload is emitted with events.HierarchicalReasoningComplete.
type HierarchicalPayload struct {
	InputID      string   `json:"input_id"`
	Strategy     Strategy `json:"strategy"`
	Layers       []string `json:"layers"`
	ReasoningID  string   `json:"reasoning_id"`
	PrimaryLayer string   `json:"primary_layer"`
	Confidence   float64  `json:"confidence"`
}

// StrategyChangedPayload is emitted with events.StrategyChanged.
type StrategyChangedPayload struct {
	Previous Strategy `json:"previous"`
	New      Strategy `json:"new"`
}
