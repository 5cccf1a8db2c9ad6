package reasoning

import (
	"context"
	"math"

	"github.com/blueberrycongee/reasoncache/internal/layers"
)

// Explanation describes how a conclusion was reached.
type Explanation struct {
	Summary          string             `json:"summary"`
	Factors          []string           `json:"factors"`
	CertaintyFactors map[string]float64 `json:"certainty_factors"`
}

// Clone returns a deep copy.
func (e *Explanation) Clone() *Explanation {
	if e == nil {
		return nil
	}
	cp := &Explanation{
		Summary: e.Summary,
		Factors: append([]string(nil), e.Factors...),
	}
	if e.CertaintyFactors != nil {
		cp.CertaintyFactors = make(map[string]float64, len(e.CertaintyFactors))
		for k, v := range e.CertaintyFactors {
			cp.CertaintyFactors[k] = v
		}
	}
	return cp
}

// Outcome is what an Applier produces.
type Outcome struct {
	Conclusion  any
	Confidence  float64
	Explanation *Explanation
}

// Applier applies one strategy to a processed record.
// Implementations must return a confidence in [0, 1].
type Applier interface {
	Apply(ctx context.Context, input *layers.ProcessedRecord, depth int) (*Outcome, error)
}

// ApplierFunc adapts a function to Applier.
type ApplierFunc func(ctx context.Context, input *layers.ProcessedRecord, depth int) (*Outcome, error)

// Apply implements Applier.
func (f ApplierFunc) Apply(ctx context.Context, input *layers.ProcessedRecord, depth int) (*Outcome, error) {
	return f(ctx, input, depth)
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
