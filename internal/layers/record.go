package layers

import (
	"time"

	"github.com/goccy/go-json"

	"github.com/blueberrycongee/reasoncache/internal/cache"
	"github.com/blueberrycongee/reasoncache/internal/security"
	"github.com/blueberrycongee/reasoncache/pkg/errors"
)

// SensitiveField marks a record whose payload must be sealed.
const SensitiveField = "sensitive"

// ProcessedRecord is the output of processing one record at one layer.
type ProcessedRecord struct {
	Layer     string             `json:"layer"`
	Level     int                `json:"level"`
	Processed bool               `json:"processed"`
	Timestamp time.Time          `json:"timestamp"`
	Data      map[string]any     `json:"data,omitempty"`
	Features  map[string]float64 `json:"features,omitempty"`

	// Sensitive records carry their payload in Envelope when an encryptor
	// is attached; Data then keeps only the record id.
	Sensitive bool               `json:"sensitive,omitempty"`
	Envelope  *security.Envelope `json:"envelope,omitempty"`

	FromCache bool `json:"from_cache,omitempty"`
}

// Clone returns a deep copy.
func (r *ProcessedRecord) Clone() *ProcessedRecord {
	if r == nil {
		return nil
	}
	cp := *r
	cp.Data = cache.CopyMap(r.Data)
	if r.Features != nil {
		cp.Features = make(map[string]float64, len(r.Features))
		for k, v := range r.Features {
			cp.Features[k] = v
		}
	}
	if r.Envelope != nil {
		env := *r.Envelope
		env.Nonce = append([]byte(nil), r.Envelope.Nonce...)
		env.Ciphertext = append([]byte(nil), r.Envelope.Ciphertext...)
		cp.Envelope = &env
	}
	return &cp
}

// Feature returns a named feature or 0.
func (r *ProcessedRecord) Feature(name string) float64 {
	if r == nil {
		return 0
	}
	return r.Features[name]
}

// NormalizeRecord converts input into a structured record. Nil values,
// arrays and scalars are rejected; other values are accepted when their
// JSON form is an object. The returned map is a copy.
func NormalizeRecord(data any) (map[string]any, error) {
	switch v := data.(type) {
	case nil:
		return nil, errors.NewInvalidArgumentError("data must be a structured record, got nil")
	case map[string]any:
		if v == nil {
			return nil, errors.NewInvalidArgumentError("data must be a structured record, got nil map")
		}
		return cache.CopyMap(v), nil
	case []any, []map[string]any, string, bool, float64, float32, int, int64, int32, uint, uint64, json.Number:
		return nil, errors.NewInvalidArgumentError("data must be a structured record, got %T", data)
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return nil, errors.NewInvalidArgumentError("data is not serializable: %v", err)
	}
	if len(raw) == 0 || raw[0] != '{' {
		return nil, errors.NewInvalidArgumentError("data must be a structured record, got %T", data)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, errors.NewInvalidArgumentError("data is not a record: %v", err)
	}
	return out, nil
}

func isSensitive(data map[string]any) bool {
	v, ok := data[SensitiveField].(bool)
	return ok && v
}
