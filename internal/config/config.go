// Package config provides configuration management with hot-reload support.
// It uses fsnotify to watch for file changes and atomic pointer swaps for zero-downtime updates.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/blueberrycongee/reasoncache/internal/auth"
	"github.com/blueberrycongee/reasoncache/internal/cache/semantic"
	"github.com/blueberrycongee/reasoncache/internal/cache/semantic/embedding"
	"github.com/blueberrycongee/reasoncache/internal/cache/semantic/snapshot"
	"github.com/blueberrycongee/reasoncache/internal/healthcheck"
	"github.com/blueberrycongee/reasoncache/internal/layers"
	"github.com/blueberrycongee/reasoncache/internal/observability"
	"github.com/blueberrycongee/reasoncache/internal/reasoning"
	"github.com/blueberrycongee/reasoncache/internal/secret/vault"
	"github.com/blueberrycongee/reasoncache/internal/security"
	"github.com/blueberrycongee/reasoncache/pkg/errors"
)

// Config represents the complete service configuration.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Logging       LoggingConfig       `yaml:"logging"`
	Metrics       MetricsConfig       `yaml:"metrics"`
	Tracing       TracingConfig       `yaml:"tracing"`
	OTel          OTelConfig          `yaml:"otel"`
	Layers        layers.Config       `yaml:"layers"`
	Reasoning     reasoning.Config    `yaml:"reasoning"`
	SemanticCache SemanticCacheConfig `yaml:"semantic_cache"`
	Security      security.Config     `yaml:"security"`
	Auth          auth.Config         `yaml:"auth"`
	Secrets       SecretsConfig       `yaml:"secrets"`
	Health        healthcheck.Config  `yaml:"health"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
	// MaxBodyBytes caps request bodies. Zero uses the API default.
	MaxBodyBytes int64 `yaml:"max_body_bytes"`
	// RequestTimeout bounds a single reasoning request. The result of a
	// request that times out is still cached.
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// TracingConfig contains OpenTelemetry tracing settings.
type TracingConfig struct {
	Enabled     bool              `yaml:"enabled"`
	Endpoint    string            `yaml:"endpoint"`     // OTLP endpoint (e.g., "localhost:4317")
	Exporter    string            `yaml:"exporter"`     // grpc (default) or http
	ServiceName string            `yaml:"service_name"` // Service name for traces
	SampleRate  float64           `yaml:"sample_rate"`  // Sampling rate (0.0 to 1.0)
	Insecure    bool              `yaml:"insecure"`     // Use insecure connection (no TLS)
	Headers     map[string]string `yaml:"headers"`
}

// OTelConfig contains OTLP export settings for metrics and logs. Service
// name and version are shared with tracing.
type OTelConfig struct {
	Metrics OTLPConfig `yaml:"metrics"`
	Logs    OTLPConfig `yaml:"logs"`
}

// OTLPConfig configures one OTLP export pipeline.
type OTLPConfig struct {
	Enabled  bool              `yaml:"enabled"`
	Endpoint string            `yaml:"endpoint"`
	Exporter string            `yaml:"exporter"` // grpc (default) or http
	Insecure bool              `yaml:"insecure"`
	Headers  map[string]string `yaml:"headers"`
	// Interval between metric exports. Ignored for logs.
	Interval time.Duration `yaml:"interval"`
}

// SemanticCacheConfig groups the semantic cache with its collaborators.
type SemanticCacheConfig struct {
	Enabled         bool `yaml:"enabled"`
	semantic.Config `yaml:",inline"`
	Embedding       embedding.Config `yaml:"embedding"`
	Snapshot        snapshot.Config  `yaml:"snapshot"`
}

// SecretsConfig configures key reference resolution.
type SecretsConfig struct {
	CacheTTL time.Duration `yaml:"cache_ttl"`
	Vault    vault.Config  `yaml:"vault"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Port:           8080,
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   60 * time.Second,
			IdleTimeout:    60 * time.Second,
			RequestTimeout: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			Endpoint:    "localhost:4317",
			ServiceName: "reasoncache",
			SampleRate:  1.0,
			Insecure:    true,
		},
		OTel: OTelConfig{
			Metrics: OTLPConfig{Endpoint: "localhost:4317", Insecure: true, Interval: time.Minute},
			Logs:    OTLPConfig{Endpoint: "localhost:4317", Insecure: true},
		},
		Layers:    layers.DefaultConfig(),
		Reasoning: reasoning.DefaultConfig(),
		SemanticCache: SemanticCacheConfig{
			Enabled:   true,
			Config:    semantic.DefaultConfig(),
			Embedding: embedding.DefaultConfig(),
			Snapshot:  snapshot.DefaultConfig(),
		},
		Security: security.DefaultConfig(),
		Auth:     auth.DefaultConfig(),
		Secrets: SecretsConfig{
			CacheTTL: 5 * time.Minute,
		},
		Health: healthcheck.Config{
			Enabled:  true,
			Interval: 30 * time.Second,
			Timeout:  5 * time.Second,
		},
	}
	// The assembled engine always has a semantic cache to write into.
	cfg.Reasoning.SemanticCacheWrite = true
	return cfg
}

// LoadFromFile reads and parses a YAML configuration file.
// Environment variables in the format ${VAR_NAME} are expanded.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over DefaultConfig and validates the result.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.NewInvalidConfigError("invalid server port: %d", c.Server.Port)
	}
	if c.Server.RequestTimeout < 0 {
		return errors.NewInvalidConfigError("server.request_timeout cannot be negative")
	}

	switch strings.ToLower(c.Logging.Format) {
	case "", "json", "text":
	default:
		return errors.NewInvalidConfigError("unsupported logging.format: %s", c.Logging.Format)
	}

	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		return errors.NewInvalidConfigError("tracing.sample_rate must be between 0 and 1")
	}
	for name, exporter := range map[string]string{
		"tracing.exporter":      c.Tracing.Exporter,
		"otel.metrics.exporter": c.OTel.Metrics.Exporter,
		"otel.logs.exporter":    c.OTel.Logs.Exporter,
	} {
		if _, err := observability.ParseExporterType(exporter); err != nil {
			return errors.NewInvalidConfigError("%s: %v", name, err)
		}
	}
	if c.OTel.Metrics.Interval < 0 {
		return errors.NewInvalidConfigError("otel.metrics.interval cannot be negative")
	}

	if err := c.Layers.Validate(); err != nil {
		return err
	}
	if err := c.Reasoning.Validate(); err != nil {
		return err
	}
	if c.SemanticCache.Enabled {
		if err := c.SemanticCache.Config.Validate(); err != nil {
			return err
		}
		if c.SemanticCache.EnableVectorSimilarity {
			if err := c.SemanticCache.Embedding.Validate(); err != nil {
				return err
			}
		}
		if c.SemanticCache.EnableOfflineSupport {
			if err := c.SemanticCache.Snapshot.Validate(); err != nil {
				return err
			}
		}
	}
	if err := c.Security.Validate(); err != nil {
		return err
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}

	return nil
}

// Warning codes returned by Warnings.
const (
	WarningLiteralEncryptionKey = "literal_encryption_key"
	WarningSensitiveWithoutKey  = "security_disabled"
	WarningVectorWithoutText    = "vector_similarity_without_semantic_write"
	WarningTrustedHeaders       = "trusted_identity_headers"
)

// Warning describes a configuration that is valid but probably unintended.
type Warning struct {
	Code    string
	Message string
}

// Warnings reports risky but valid settings.
func (c *Config) Warnings() []Warning {
	var out []Warning

	if c.Security.Enabled && c.Security.EncryptionKey != "" && !strings.Contains(c.Security.EncryptionKey, "://") {
		out = append(out, Warning{
			Code:    WarningLiteralEncryptionKey,
			Message: "security.encryption_key is a literal value; prefer env:// or vault:// references",
		})
	}
	if !c.Security.Enabled {
		out = append(out, Warning{
			Code:    WarningSensitiveWithoutKey,
			Message: "security is disabled; records marked sensitive are cached unencrypted",
		})
	}
	if c.Security.Enabled && c.Auth.TrustHeaders {
		out = append(out, Warning{
			Code:    WarningTrustedHeaders,
			Message: "access control trusts X-User-ID and X-User-Role; set auth.trust_headers to false unless a gateway sets them",
		})
	}
	if c.SemanticCache.Enabled && c.SemanticCache.EnableVectorSimilarity && !c.Reasoning.SemanticCacheWrite {
		out = append(out, Warning{
			Code:    WarningVectorWithoutText,
			Message: "vector similarity is on but reasoning results are not written to the semantic cache",
		})
	}

	return out
}
