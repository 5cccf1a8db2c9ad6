package reasoning

import (
	"context"
	"fmt"

	"github.com/blueberrycongee/reasoncache/internal/layers"
)

// band is the confidence range a strategy maps its evidence score into.
type band struct {
	lo, hi float64
}

func (b band) scale(score float64) float64 {
	return clamp01(b.lo + (b.hi-b.lo)*clamp01(score))
}

var strategyBands = map[Strategy]band{
	Deductive:      {0.80, 0.95},
	Inductive:      {0.60, 0.85},
	Abductive:      {0.50, 0.80},
	Analogical:     {0.40, 0.75},
	Causal:         {0.60, 0.85},
	Counterfactual: {0.30, 0.70},
	Probabilistic:  {0.50, 0.90},
}

// signals is the evidence a strategy reads from a processed record.
// Features a layer does not produce read as zero.
type signals struct {
	layer       string
	level       int
	fields      float64
	tokens      float64
	distinct    float64
	density     float64
	negations   float64
	causal      float64
	conditional float64
	uncertain   float64
	numeric     float64
	premises    float64
	depth       float64
}

func readSignals(r *layers.ProcessedRecord) signals {
	return signals{
		layer:       r.Layer,
		level:       r.Level,
		fields:      r.Feature(layers.FeatureFields),
		tokens:      r.Feature(layers.FeatureTokens),
		distinct:    r.Feature(layers.FeatureDistinctTerms),
		density:     r.Feature(layers.FeatureLexicalDensity),
		negations:   r.Feature(layers.FeatureNegations),
		causal:      r.Feature(layers.FeatureCausalMarkers),
		conditional: r.Feature(layers.FeatureConditionalMarkers),
		uncertain:   r.Feature(layers.FeatureUncertainty),
		numeric:     r.Feature(layers.FeatureNumericFields),
		premises:    r.Feature(layers.FeaturePremises),
		depth:       r.Feature(layers.FeatureDepth),
	}
}

// saturate maps v >= 0 onto [0, 1) with half-saturation at k.
func saturate(v, k float64) float64 {
	if v <= 0 || k <= 0 {
		return 0
	}
	return v / (v + k)
}

// depthGain rewards deeper reasoning with diminishing returns.
func depthGain(depth int) float64 {
	return saturate(float64(depth-1), 2)
}

// coverage is how much evidence the layer exposed, in [0, 1].
func (s signals) coverage() float64 {
	return 0.2*float64(s.level)/4 + 0.8*saturate(s.tokens+s.fields, 20)
}

type heuristic struct {
	strategy Strategy
	score    func(s signals, depth int) (float64, map[string]float64)
	conclude func(s signals) string
	factors  func(s signals) []string
}

func (h heuristic) Apply(ctx context.Context, input *layers.ProcessedRecord, depth int) (*Outcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := readSignals(input)
	score, certainty := h.score(s, depth)
	confidence := strategyBands[h.strategy].scale(score)

	factors := []string{
		fmt.Sprintf("processed at %s layer (level %d)", s.layer, s.level),
		fmt.Sprintf("reasoning depth %d", depth),
	}
	factors = append(factors, h.factors(s)...)

	return &Outcome{
		Conclusion: h.conclude(s),
		Confidence: confidence,
		Explanation: &Explanation{
			Summary:          fmt.Sprintf("%s reasoning at the %s layer with confidence %.2f", h.strategy, s.layer, confidence),
			Factors:          factors,
			CertaintyFactors: certainty,
		},
	}, nil
}

// DefaultAppliers returns the built-in heuristic applier for every strategy.
// Scores are derived from record features, so identical inputs always
// produce identical outcomes.
func DefaultAppliers() map[Strategy]Applier {
	return map[Strategy]Applier{
		Deductive: heuristic{
			strategy: Deductive,
			score: func(s signals, depth int) (float64, map[string]float64) {
				premise := saturate(s.premises+s.conditional, 2)
				consistency := 1 - saturate(s.negations+s.uncertain, 2)
				score := 0.4*premise + 0.3*consistency + 0.2*s.coverage() + 0.1*depthGain(depth)
				return score, map[string]float64{"premise_strength": premise, "consistency": consistency}
			},
			conclude: func(s signals) string {
				if s.premises > 0 {
					return fmt.Sprintf("conclusion follows from %d premises", int(s.premises))
				}
				return "conclusion follows from the stated facts"
			},
			factors: func(s signals) []string {
				return []string{
					fmt.Sprintf("%d explicit premises", int(s.premises)),
					fmt.Sprintf("%d conditional markers", int(s.conditional)),
				}
			},
		},
		Inductive: heuristic{
			strategy: Inductive,
			score: func(s signals, depth int) (float64, map[string]float64) {
				sample := saturate(s.premises+s.numeric, 4)
				variety := s.density
				score := 0.45*sample + 0.25*variety + 0.2*s.coverage() + 0.1*depthGain(depth)
				return score, map[string]float64{"sample_size": sample, "variety": variety}
			},
			conclude: func(s signals) string {
				return fmt.Sprintf("general pattern inferred from %d observations", int(s.premises+s.numeric))
			},
			factors: func(s signals) []string {
				return []string{
					fmt.Sprintf("%d observations", int(s.premises)),
					fmt.Sprintf("%d numeric fields", int(s.numeric)),
				}
			},
		},
		Abductive: heuristic{
			strategy: Abductive,
			score: func(s signals, depth int) (float64, map[string]float64) {
				plausibility := saturate(s.causal+s.premises, 3)
				parsimony := 1 - saturate(s.distinct, 60)
				score := 0.4*plausibility + 0.3*parsimony + 0.2*s.coverage() + 0.1*depthGain(depth)
				return score, map[string]float64{"plausibility": plausibility, "parsimony": parsimony}
			},
			conclude: func(s signals) string {
				return "best explanation accounts for the observed evidence"
			},
			factors: func(s signals) []string {
				return []string{
					fmt.Sprintf("%d explanatory markers", int(s.causal)),
					fmt.Sprintf("%d distinct terms", int(s.distinct)),
				}
			},
		},
		Analogical: heuristic{
			strategy: Analogical,
			score: func(s signals, depth int) (float64, map[string]float64) {
				structure := saturate(s.fields+s.depth, 6)
				overlap := 1 - s.density
				if s.tokens == 0 {
					overlap = 0
				}
				score := 0.4*structure + 0.3*overlap + 0.2*s.coverage() + 0.1*depthGain(depth)
				return score, map[string]float64{"structural_similarity": structure, "term_overlap": overlap}
			},
			conclude: func(s signals) string {
				return fmt.Sprintf("mapped by analogy across %d structural fields", int(s.fields))
			},
			factors: func(s signals) []string {
				return []string{
					fmt.Sprintf("%d fields", int(s.fields)),
					fmt.Sprintf("nesting depth %d", int(s.depth)),
				}
			},
		},
		Causal: heuristic{
			strategy: Causal,
			score: func(s signals, depth int) (float64, map[string]float64) {
				links := saturate(s.causal, 2)
				confound := saturate(s.uncertain+s.negations, 3)
				score := 0.5*links + 0.2*(1-confound) + 0.2*s.coverage() + 0.1*depthGain(depth)
				return score, map[string]float64{"causal_links": links, "confounding": confound}
			},
			conclude: func(s signals) string {
				if s.causal > 0 {
					return fmt.Sprintf("%d causal links identified", int(s.causal))
				}
				return "no explicit causal link identified"
			},
			factors: func(s signals) []string {
				return []string{fmt.Sprintf("%d causal markers", int(s.causal))}
			},
		},
		Counterfactual: heuristic{
			strategy: Counterfactual,
			score: func(s signals, depth int) (float64, map[string]float64) {
				alternatives := saturate(s.conditional, 2)
				grounding := saturate(s.causal+s.premises, 3)
				score := 0.45*alternatives + 0.25*grounding + 0.2*s.coverage() + 0.1*depthGain(depth)
				return score, map[string]float64{"alternatives": alternatives, "grounding": grounding}
			},
			conclude: func(s signals) string {
				return fmt.Sprintf("outcome under %d alternative conditions assessed", int(s.conditional))
			},
			factors: func(s signals) []string {
				return []string{fmt.Sprintf("%d conditional markers", int(s.conditional))}
			},
		},
		Probabilistic: heuristic{
			strategy: Probabilistic,
			score: func(s signals, depth int) (float64, map[string]float64) {
				evidence := saturate(s.numeric+s.premises, 3)
				hedging := saturate(s.uncertain, 2)
				score := 0.4*evidence + 0.3*(1-hedging) + 0.2*s.coverage() + 0.1*depthGain(depth)
				return score, map[string]float64{"evidence": evidence, "hedging": hedging}
			},
			conclude: func(s signals) string {
				return fmt.Sprintf("likelihood estimated from %d quantitative signals", int(s.numeric+s.uncertain))
			},
			factors: func(s signals) []string {
				return []string{
					fmt.Sprintf("%d numeric fields", int(s.numeric)),
					fmt.Sprintf("%d uncertainty markers", int(s.uncertain)),
				}
			},
		},
	}
}
