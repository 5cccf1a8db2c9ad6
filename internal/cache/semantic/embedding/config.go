package embedding

import (
	"log/slog"
	"time"

	"github.com/blueberrycongee/reasoncache/internal/resilience"
	"github.com/blueberrycongee/reasoncache/pkg/errors"
)

// Embedder backends.
const (
	TypeHashing = "hashing"
	TypeOpenAI  = "openai"
)

// Config selects and configures an Embedder.
type Config struct {
	Type      string        `yaml:"type"`
	Dimension int           `yaml:"dimension"`
	Model     string        `yaml:"model"`
	APIBase   string        `yaml:"api_base"`
	APIKey    string        `yaml:"api_key"` // literal, env:// or vault:// reference
	Timeout   time.Duration `yaml:"timeout"`

	// MaxRetryWait caps the delay taken from a Retry-After header.
	MaxRetryWait time.Duration `yaml:"max_retry_wait"`
	// Breaker guards the openai backend.
	Breaker resilience.Config `yaml:"breaker"`
}

// DefaultConfig returns the local hashing embedder configuration.
func DefaultConfig() Config {
	return Config{
		Type:         TypeHashing,
		Dimension:    256,
		Timeout:      30 * time.Second,
		MaxRetryWait: defaultMaxRetryWait,
		Breaker:      resilience.DefaultConfig(),
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	switch c.Type {
	case TypeHashing:
		if c.Dimension <= 0 {
			return errors.NewInvalidConfigError("semantic_cache.embedding.dimension must be positive")
		}
	case TypeOpenAI:
		if c.APIKey == "" {
			return errors.NewInvalidConfigError("semantic_cache.embedding.api_key is required for openai")
		}
		if c.Dimension < 0 {
			return errors.NewInvalidConfigError("semantic_cache.embedding.dimension cannot be negative")
		}
	default:
		return errors.NewInvalidConfigError("unsupported semantic_cache.embedding.type: %s", c.Type)
	}
	if c.Timeout < 0 || c.MaxRetryWait < 0 {
		return errors.NewInvalidConfigError("semantic_cache.embedding timeouts cannot be negative")
	}
	return nil
}

// New builds the Embedder described by cfg. APIKey must already be
// resolved to its literal value. Remote embedders come wrapped in a
// circuit breaker.
func New(cfg Config, logger *slog.Logger) (Embedder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	switch cfg.Type {
	case TypeOpenAI:
		e, err := NewOpenAIEmbedder(OpenAIConfig{
			APIKey:       cfg.APIKey,
			APIBase:      cfg.APIBase,
			Model:        cfg.Model,
			Dimension:    cfg.Dimension,
			Timeout:      cfg.Timeout,
			MaxRetryWait: cfg.MaxRetryWait,
		})
		if err != nil {
			return nil, err
		}
		return NewGuardedEmbedder(e, resilience.New("embedding_openai", cfg.Breaker, resilience.WithLogger(logger))), nil
	default:
		return NewHashingEmbedder(cfg.Dimension), nil
	}
}
