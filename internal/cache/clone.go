package cache

// DeepCopy copies the JSON-shaped parts of v (maps, slices) so callers can
// mutate the result without touching cached state. Other values are returned
// as-is, which is safe for immutable scalars.
func DeepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return CopyMap(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = DeepCopy(item)
		}
		return out
	case []map[string]any:
		out := make([]map[string]any, len(t))
		for i, m := range t {
			out[i] = CopyMap(m)
		}
		return out
	case []string:
		return append([]string(nil), t...)
	case []float64:
		return append([]float64(nil), t...)
	case map[string]string:
		out := make(map[string]string, len(t))
		for k, s := range t {
			out[k] = s
		}
		return out
	default:
		return v
	}
}

// CopyMap deep-copies a record.
func CopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = DeepCopy(v)
	}
	return out
}
