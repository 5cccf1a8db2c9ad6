package layers

import (
	"context"
	"strings"
	"unicode"

	"github.com/goccy/go-json"
)

// Processor derives features for a record at one layer.
type Processor interface {
	Process(ctx context.Context, layer Layer, data map[string]any) (map[string]float64, error)
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx context.Context, layer Layer, data map[string]any) (map[string]float64, error)

// Process implements Processor.
func (f ProcessorFunc) Process(ctx context.Context, layer Layer, data map[string]any) (map[string]float64, error) {
	return f(ctx, layer, data)
}

// Feature names produced by FeatureProcessor. Higher layers include the
// features of every lower layer.
const (
	FeatureFields             = "fields"
	FeatureBytes              = "bytes"
	FeatureTokens             = "tokens"
	FeatureSentences          = "sentences"
	FeatureAvgTokenLength     = "avg_token_length"
	FeatureDistinctTerms      = "distinct_terms"
	FeatureLexicalDensity     = "lexical_density"
	FeatureNegations          = "negations"
	FeatureNumericFields      = "numeric_fields"
	FeatureBooleanFields      = "boolean_fields"
	FeatureNestedFields       = "nested_fields"
	FeatureCausalMarkers      = "causal_markers"
	FeatureConditionalMarkers = "conditional_markers"
	FeatureUncertainty        = "uncertainty_markers"
	FeatureDepth              = "depth"
	FeaturePremises           = "premises"
)

var (
	negationWords    = wordSet("not", "no", "never", "none", "cannot", "without", "nor")
	causalWords      = wordSet("because", "therefore", "cause", "causes", "caused", "leads", "due", "since", "thus", "hence", "results")
	conditionalWords = wordSet("if", "unless", "would", "could", "suppose", "otherwise", "had", "were")
	uncertainWords   = wordSet("maybe", "perhaps", "likely", "probably", "possibly", "might", "chance", "often", "usually")
	premiseKeys      = []string{"premises", "facts", "observations", "evidence", "examples"}
)

func wordSet(words ...string) map[string]struct{} {
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		out[w] = struct{}{}
	}
	return out
}

// FeatureProcessor is the default Processor. It computes structural and
// lexical features whose richness grows with the layer level.
type FeatureProcessor struct{}

// Process implements Processor.
func (FeatureProcessor) Process(_ context.Context, layer Layer, data map[string]any) (map[string]float64, error) {
	f := make(map[string]float64)

	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	f[FeatureFields] = float64(len(data))
	f[FeatureBytes] = float64(len(raw))
	if layer.Level < 1 {
		return f, nil
	}

	var text []string
	collectStrings(data, &text)
	joined := strings.Join(text, " ")
	tokens := tokenize(joined)

	f[FeatureTokens] = float64(len(tokens))
	f[FeatureSentences] = float64(countSentences(joined, len(tokens)))
	if len(tokens) > 0 {
		total := 0
		for _, t := range tokens {
			total += len(t)
		}
		f[FeatureAvgTokenLength] = float64(total) / float64(len(tokens))
	}
	if layer.Level < 2 {
		return f, nil
	}

	distinct := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		distinct[t] = struct{}{}
	}
	f[FeatureDistinctTerms] = float64(len(distinct))
	if len(tokens) > 0 {
		f[FeatureLexicalDensity] = float64(len(distinct)) / float64(len(tokens))
	}
	f[FeatureNegations] = float64(countIn(tokens, negationWords))
	if layer.Level < 3 {
		return f, nil
	}

	numeric, boolean, nested := countKinds(data)
	f[FeatureNumericFields] = float64(numeric)
	f[FeatureBooleanFields] = float64(boolean)
	f[FeatureNestedFields] = float64(nested)
	f[FeatureCausalMarkers] = float64(countIn(tokens, causalWords))
	f[FeatureConditionalMarkers] = float64(countIn(tokens, conditionalWords))
	f[FeatureUncertainty] = float64(countIn(tokens, uncertainWords))
	if layer.Level < 4 {
		return f, nil
	}

	f[FeatureDepth] = float64(nestingDepth(data))
	premises := 0
	for _, k := range premiseKeys {
		switch v := data[k].(type) {
		case []any:
			premises += len(v)
		case []string:
			premises += len(v)
		case string:
			if v != "" {
				premises++
			}
		}
	}
	f[FeaturePremises] = float64(premises)

	return f, nil
}

func collectStrings(v any, out *[]string) {
	switch t := v.(type) {
	case string:
		*out = append(*out, t)
	case map[string]any:
		for _, item := range t {
			collectStrings(item, out)
		}
	case []any:
		for _, item := range t {
			collectStrings(item, out)
		}
	case []string:
		*out = append(*out, t...)
	}
}

func tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
	return fields
}

func countSentences(s string, tokens int) int {
	if tokens == 0 {
		return 0
	}
	n := strings.Count(s, ".") + strings.Count(s, "!") + strings.Count(s, "?")
	if n == 0 {
		return 1
	}
	return n
}

func countIn(tokens []string, set map[string]struct{}) int {
	n := 0
	for _, t := range tokens {
		if _, ok := set[t]; ok {
			n++
		}
	}
	return n
}

func countKinds(v any) (numeric, boolean, nested int) {
	var walk func(any, bool)
	walk = func(v any, top bool) {
		switch t := v.(type) {
		case float64, float32, int, int64, int32, uint, uint64, json.Number:
			numeric++
		case bool:
			boolean++
		case map[string]any:
			if !top {
				nested++
			}
			for _, item := range t {
				walk(item, false)
			}
		case []any:
			nested++
			for _, item := range t {
				walk(item, false)
			}
		}
	}
	walk(v, true)
	return numeric, boolean, nested
}

func nestingDepth(v any) int {
	switch t := v.(type) {
	case map[string]any:
		deepest := 0
		for _, item := range t {
			deepest = max(deepest, nestingDepth(item))
		}
		return deepest + 1
	case []any:
		deepest := 0
		for _, item := range t {
			deepest = max(deepest, nestingDepth(item))
		}
		return deepest + 1
	default:
		return 0
	}
}
