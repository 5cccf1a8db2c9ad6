package reasoning

import (
	"context"
	"fmt"
	"math"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/blueberrycongee/reasoncache/internal/events"
	"github.com/blueberrycongee/reasoncache/internal/layers"
	"github.com/blueberrycongee/reasoncache/internal/metrics"
	"github.com/blueberrycongee/reasoncache/internal/observability"
	"github.com/blueberrycongee/reasoncache/pkg/errors"
)

// layerWeights weighs each layer's confidence during integration.
var layerWeights = map[string]float64{
	layers.Raw:        0.10,
	layers.Syntactic:  0.15,
	layers.Semantic:   0.25,
	layers.Conceptual: 0.25,
	layers.Abstract:   0.25,
}

const defaultLayerWeight = 0.2

// LayerWeight returns the integration weight of a layer.
func LayerWeight(layer string) float64 {
	if w, ok := layerWeights[layer]; ok {
		return w
	}
	return defaultLayerWeight
}

// ReasonAcrossLayers reasons at every requested layer concurrently and
// integrates the per-layer results.
func (f *Framework) ReasonAcrossLayers(ctx context.Context, input any, opts CrossLayerOptions) (*HierarchicalResult, error) {
	lp, current, _, traced, err := f.state()
	if err != nil {
		return nil, err
	}

	strategy := opts.Strategy
	if strategy == "" {
		strategy = current
	}
	if !f.cfg.enabled(strategy) {
		err := errors.NewUnsupportedStrategyError(string(strategy))
		f.fail("reason_across_layers", err)
		return nil, err
	}
	if opts.MaxDepth > f.cfg.MaxReasoningDepth {
		err := errors.NewDepthExceededError(opts.MaxDepth, f.cfg.MaxReasoningDepth)
		f.fail("reason_across_layers", err)
		return nil, err
	}

	names := opts.Layers
	if len(names) == 0 {
		names = lp.AvailableLayers()
	}
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if !lp.HasLayer(name) {
			err := errors.NewInvalidLayerError(name)
			f.fail("reason_across_layers", err)
			return nil, err
		}
		if seen[name] {
			err := errors.NewInvalidArgumentError("layer %q requested twice", name)
			f.fail("reason_across_layers", err)
			return nil, err
		}
		seen[name] = true
	}

	ctx, span := observability.StartReasoningSpan(ctx, f.tracer, "reasoncache.reason_across_layers", observability.ReasoningSpanAttributes{
		Strategy: string(strategy),
		Layers:   names,
	})
	defer span.End()

	var tr *Trace
	if traced {
		tr = f.openTrace(input, opts)
		f.step(tr, TraceStep{Action: "start", Strategy: strategy, Details: map[string]any{"layers": names}})
	}

	results := make([]*Result, len(names))
	g, gctx := errgroup.WithContext(ctx)
	for i, name := range names {
		g.Go(func() error {
			r, err := f.Reason(gctx, input, ReasonOptions{
				Strategy:  strategy,
				Layer:     name,
				Depth:     1,
				SkipCache: opts.SkipCache,
				InputID:   opts.InputID,
			})
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		observability.RecordError(span, err)
		return nil, errors.Wrap("reason_across_layers", err)
	}

	out := integrate(strategy, names, results, f.cfg.ConfidenceThreshold)
	out.ReasoningID = uuid.NewString()
	out.Timestamp = f.now()

	byLayer := out.Conclusion.LayerConclusions
	if tr != nil {
		out.TraceID = tr.ID
		for _, r := range results {
			conf := r.Confidence
			f.step(tr, TraceStep{Action: "layer", Strategy: strategy, Layer: r.Layer, Depth: r.Depth, Confidence: &conf})
		}
		conf := out.Confidence
		f.step(tr, TraceStep{Action: "integrate", Strategy: strategy, Confidence: &conf,
			Details: map[string]any{"primary_layer": out.Conclusion.PrimaryLayer}})
		f.step(tr, TraceStep{Action: "finish", Strategy: strategy, Confidence: &conf})
		layerCopies := make(map[string]*Result, len(byLayer))
		for k, v := range byLayer {
			layerCopies[k] = v.Clone()
		}
		f.closeTrace(tr, out.clone(), layerCopies)
	}

	metrics.HierarchicalRequests.WithLabelValues(string(strategy)).Inc()
	observability.RecordReasoningResult(span, out.ReasoningID, out.Confidence, false)

	f.bus.Emit(events.HierarchicalReasoningComplete, HierarchicalPayload{
		InputID:      results[0].InputID,
		Strategy:     strategy,
		Layers:       append([]string(nil), names...),
		ReasoningID:  out.ReasoningID,
		PrimaryLayer: out.Conclusion.PrimaryLayer,
		Confidence:   out.Confidence,
	})
	return out, nil
}

// integrate combines per-layer results given in request order.
func integrate(strategy Strategy, names []string, results []*Result, threshold float64) *HierarchicalResult {
	byLayer := make(map[string]*Result, len(results))
	primary := results[0]
	var weighted, totalWeight float64
	for _, r := range results {
		byLayer[r.Layer] = r
		if r.Confidence > primary.Confidence {
			primary = r
		}
		w := LayerWeight(r.Layer)
		weighted += w * r.Confidence
		totalWeight += w
	}
	confidence := 0.0
	if totalWeight > 0 {
		confidence = clamp01(weighted / totalWeight)
	}

	insights := []Insight{
		consistencyInsight(results),
		emergenceInsight(results),
		contradictionInsight(results, threshold),
	}

	factors := make([]string, 0, len(results))
	for _, r := range results {
		factors = append(factors, fmt.Sprintf("%s: confidence %.2f, weight %.2f", r.Layer, r.Confidence, LayerWeight(r.Layer)))
	}

	return &HierarchicalResult{
		Strategy: strategy,
		Conclusion: IntegratedConclusion{
			PrimaryConclusion:  primary.Conclusion,
			PrimaryLayer:       primary.Layer,
			CrossLayerInsights: insights,
			LayerConclusions:   byLayer,
			LayerOrder:         append([]string(nil), names...),
		},
		Confidence: confidence,
		Explanation: &Explanation{
			Summary: fmt.Sprintf("integrated %s reasoning across %d layers; %s layer is primary",
				strategy, len(results), primary.Layer),
			Factors: factors,
			CertaintyFactors: map[string]float64{
				"weighted_confidence": confidence,
				"primary_confidence":  primary.Confidence,
				"consistency":         insights[0].Score,
			},
		},
	}
}

// consistencyInsight scores how closely layer confidences agree.
func consistencyInsight(results []*Result) Insight {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, r := range results {
		lo = math.Min(lo, r.Confidence)
		hi = math.Max(hi, r.Confidence)
	}
	spread := hi - lo
	desc := "layers agree on the conclusion"
	if spread > 0.2 {
		desc = "layers diverge in confidence"
	}
	return Insight{
		Type:        InsightConsistency,
		Description: desc,
		Layers:      layerNames(results),
		Score:       clamp01(1 - spread),
	}
}

// emergenceInsight reports layers more confident than the least weighted one.
func emergenceInsight(results []*Result) Insight {
	base := results[0]
	for _, r := range results {
		if LayerWeight(r.Layer) < LayerWeight(base.Layer) {
			base = r
		}
	}
	var emergent []string
	gain := 0.0
	for _, r := range results {
		if r == base {
			continue
		}
		if d := r.Confidence - base.Confidence; d > 0 {
			emergent = append(emergent, r.Layer)
			gain = math.Max(gain, d)
		}
	}
	desc := "no layer adds confidence over " + base.Layer
	if len(emergent) > 0 {
		desc = fmt.Sprintf("higher layers add up to %.2f confidence over %s", gain, base.Layer)
	}
	return Insight{
		Type:        InsightEmergence,
		Description: desc,
		Layers:      emergent,
		Score:       clamp01(gain),
	}
}

// contradictionInsight reports layers that fall below the confidence
// threshold while others clear it.
func contradictionInsight(results []*Result, threshold float64) Insight {
	var below []string
	for _, r := range results {
		if r.Confidence < threshold {
			below = append(below, r.Layer)
		}
	}
	score := 0.0
	desc := "no contradictions between layers"
	if len(below) > 0 && len(below) < len(results) {
		minority := math.Min(float64(len(below)), float64(len(results)-len(below)))
		score = minority / float64(len(results))
		desc = fmt.Sprintf("%d of %d layers fall below the confidence threshold", len(below), len(results))
	} else if len(below) == len(results) {
		desc = "all layers fall below the confidence threshold"
	}
	return Insight{
		Type:        InsightContradiction,
		Description: desc,
		Layers:      below,
		Score:       score,
	}
}

func layerNames(results []*Result) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Layer
	}
	return out
}

func (h *HierarchicalResult) clone() *HierarchicalResult {
	cp := *h
	cp.Explanation = h.Explanation.Clone()
	cp.Conclusion.LayerConclusions = make(map[string]*Result, len(h.Conclusion.LayerConclusions))
	for k, v := range h.Conclusion.LayerConclusions {
		cp.Conclusion.LayerConclusions[k] = v.Clone()
	}
	cp.Conclusion.LayerOrder = append([]string(nil), h.Conclusion.LayerOrder...)
	cp.Conclusion.CrossLayerInsights = append([]Insight(nil), h.Conclusion.CrossLayerInsights...)
	return &cp
}
