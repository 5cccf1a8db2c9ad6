package observability

import (
	"fmt"
	"regexp"
	"strings"
)

const redacted = "[REDACTED]"

// Redactor masks credentials and key material in log output.
type Redactor struct {
	patterns      []redactPattern
	sensitiveKeys []string
}

type redactPattern struct {
	name        string
	regex       *regexp.Regexp
	replacement string
}

// NewRedactor creates a redactor for bearer tokens, JWTs, Vault tokens,
// AWS access keys, inline encryption keys and email addresses.
func NewRedactor() *Redactor {
	r := &Redactor{
		sensitiveKeys: []string{
			"password", "secret", "token", "authorization", "api_key", "apikey",
			"encryption_key", "credential", "ciphertext", "nonce",
		},
	}
	for _, p := range []struct{ name, pattern, replacement string }{
		{"bearer_token", `(?i)bearer\s+[a-z0-9\-_.~+/]+=*`, "Bearer " + redacted},
		{"jwt", `eyJ[a-zA-Z0-9_-]+\.[a-zA-Z0-9_-]+\.[a-zA-Z0-9_-]*`, "[REDACTED_JWT]"},
		{"vault_token", `hvs\.[a-zA-Z0-9_\-]{20,}`, "[REDACTED_VAULT_TOKEN]"},
		{"aws_access_key", `\b(AKIA|ASIA)[A-Z0-9]{16}\b`, "[REDACTED_AWS_KEY]"},
		{"hex_key", `\b[a-fA-F0-9]{64}\b`, "[REDACTED_KEY]"},
		{"inline_key", `base64:[A-Za-z0-9+/]{40,}={0,2}`, "base64:" + redacted},
		{"openai_key", `sk-[a-zA-Z0-9\-_]{20,}`, "[REDACTED_API_KEY]"},
		{"email", `[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`, "[REDACTED_EMAIL]"},
	} {
		if err := r.AddPattern(p.name, p.pattern, p.replacement); err != nil {
			panic(err)
		}
	}
	return r
}

// AddPattern registers a regular expression whose matches are replaced.
func (r *Redactor) AddPattern(name, pattern, replacement string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return fmt.Errorf("redaction pattern %s: %w", name, err)
	}
	r.patterns = append(r.patterns, redactPattern{name: name, regex: re, replacement: replacement})
	return nil
}

// Redact applies every pattern to s.
func (r *Redactor) Redact(s string) string {
	for _, p := range r.patterns {
		s = p.regex.ReplaceAllString(s, p.replacement)
	}
	return s
}

// SensitiveKey reports whether values logged under key are always masked.
// Plain "key" is not sensitive: cache keys are logged by name.
func (r *Redactor) SensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, k := range r.sensitiveKeys {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

// RedactMap returns a redacted copy of m.
func (r *Redactor) RedactMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = r.redactValue(k, v)
	}
	return out
}

func (r *Redactor) redactValue(key string, value any) any {
	if key != "" && r.SensitiveKey(key) {
		return redacted
	}
	switch v := value.(type) {
	case string:
		return r.Redact(v)
	case map[string]any:
		return r.RedactMap(v)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = r.redactValue("", item)
		}
		return out
	default:
		return value
	}
}
