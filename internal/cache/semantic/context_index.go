package semantic

import (
	"fmt"
	"sort"

	"github.com/goccy/go-json"
)

// contextIndex maps attribute -> encoded value -> entry ids.
type contextIndex map[string]map[string]map[string]struct{}

// valueKey encodes v so that equal JSON values share a key.
func valueKey(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%T:%v", v, v)
	}
	return string(data)
}

func (x contextIndex) add(e *Entry) {
	for attr, v := range e.Context {
		values, ok := x[attr]
		if !ok {
			values = make(map[string]map[string]struct{})
			x[attr] = values
		}
		vk := valueKey(v)
		ids, ok := values[vk]
		if !ok {
			ids = make(map[string]struct{})
			values[vk] = ids
		}
		ids[e.ID] = struct{}{}
	}
}

func (x contextIndex) remove(e *Entry) {
	for attr, v := range e.Context {
		values, ok := x[attr]
		if !ok {
			continue
		}
		vk := valueKey(v)
		delete(values[vk], e.ID)
		if len(values[vk]) == 0 {
			delete(values, vk)
		}
		if len(values) == 0 {
			delete(x, attr)
		}
	}
}

// best returns the entry sharing the most attribute values with query.
// Ties go to the most recent entry, then the lower id.
func (x contextIndex) best(query map[string]any, byID map[string]*Entry) *Entry {
	overlap := make(map[string]int)
	for attr, v := range query {
		for id := range x[attr][valueKey(v)] {
			overlap[id]++
		}
	}

	var best *Entry
	bestScore := 0
	for id, score := range overlap {
		e := byID[id]
		if e == nil {
			continue
		}
		switch {
		case best == nil, score > bestScore:
		case score < bestScore:
			continue
		case e.Timestamp.After(best.Timestamp):
		case e.Timestamp.Equal(best.Timestamp) && e.ID < best.ID:
		default:
			continue
		}
		best, bestScore = e, score
	}
	return best
}

// matchAll returns the sorted ids of entries matching every attribute of
// query.
func (x contextIndex) matchAll(query map[string]any) []string {
	var ids []string
	first := true
	for attr, v := range query {
		set := x[attr][valueKey(v)]
		if first {
			for id := range set {
				ids = append(ids, id)
			}
			first = false
			continue
		}
		kept := ids[:0]
		for _, id := range ids {
			if _, ok := set[id]; ok {
				kept = append(kept, id)
			}
		}
		ids = kept
	}
	sort.Strings(ids)
	return ids
}
