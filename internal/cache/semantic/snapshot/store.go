// Package snapshot persists semantic cache snapshots to a pluggable backend.
// A snapshot is an opaque document written and read as a whole.
package snapshot

import (
	"context"
	"log/slog"

	"github.com/blueberrycongee/reasoncache/internal/resilience"
	"github.com/blueberrycongee/reasoncache/pkg/errors"
)

// Backends.
const (
	BackendFile   = "file"
	BackendRedis  = "redis"
	BackendS3     = "s3"
	BackendBadger = "badger"
)

// Store saves and loads a single snapshot document.
type Store interface {
	// Name identifies the backend in logs and metrics.
	Name() string
	// Save replaces the stored snapshot with data.
	Save(ctx context.Context, data []byte) error
	// Load returns the stored snapshot, or nil when none exists.
	Load(ctx context.Context) ([]byte, error)
	Close() error
}

// Pinger is implemented by stores backed by a remote service.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config selects and configures a Store.
type Config struct {
	Backend string `yaml:"backend"`
	// Path is the snapshot file for the file backend and the database
	// directory for badger.
	Path string `yaml:"path"`
	// Key names the snapshot in redis, s3 and badger.
	Key string `yaml:"key"`

	Redis  RedisConfig  `yaml:"redis"`
	S3     S3Config     `yaml:"s3"`
	Badger BadgerConfig `yaml:"badger"`

	// Breaker guards the redis and s3 backends.
	Breaker resilience.Config `yaml:"breaker"`
}

// RedisConfig configures RedisStore.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// S3Config configures S3Store. Empty credentials use the default AWS chain.
type S3Config struct {
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"` // MinIO and other S3-compatible services
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

// BadgerConfig configures BadgerStore.
type BadgerConfig struct {
	InMemory bool `yaml:"in_memory"`
}

// DefaultConfig writes snapshots to a local file.
func DefaultConfig() Config {
	return Config{
		Backend: BackendFile,
		Path:    "reasoncache-snapshot.json",
		Key:     "reasoncache:semantic:snapshot",
		Redis:   RedisConfig{Addr: "localhost:6379"},
		Breaker: resilience.DefaultConfig(),
	}
}

// Validate checks the fields the selected backend needs.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendFile:
		if c.Path == "" {
			return errors.NewInvalidConfigError("semantic_cache.snapshot.path is required for the file backend")
		}
	case BackendRedis:
		if c.Redis.Addr == "" {
			return errors.NewInvalidConfigError("semantic_cache.snapshot.redis.addr is required")
		}
	case BackendS3:
		if c.S3.Bucket == "" {
			return errors.NewInvalidConfigError("semantic_cache.snapshot.s3.bucket is required")
		}
	case BackendBadger:
		if c.Path == "" && !c.Badger.InMemory {
			return errors.NewInvalidConfigError("semantic_cache.snapshot.path is required for a persistent badger store")
		}
	default:
		return errors.NewInvalidConfigError("unsupported semantic_cache.snapshot.backend: %s", c.Backend)
	}
	if c.Backend != BackendFile && c.Key == "" {
		return errors.NewInvalidConfigError("semantic_cache.snapshot.key is required for %s", c.Backend)
	}
	return nil
}

// New opens the Store described by cfg. Secret references in cfg must
// already be resolved.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	guard := func(s Store) *GuardedStore {
		return NewGuardedStore(s, resilience.New("snapshot_"+s.Name(), cfg.Breaker, resilience.WithLogger(logger)))
	}
	switch cfg.Backend {
	case BackendRedis:
		s, err := NewRedisStore(ctx, cfg.Redis, cfg.Key)
		if err != nil {
			return nil, err
		}
		return guard(s), nil
	case BackendS3:
		s, err := NewS3Store(ctx, cfg.S3, cfg.Key)
		if err != nil {
			return nil, err
		}
		return guard(s), nil
	case BackendBadger:
		return NewBadgerStore(cfg.Path, cfg.Badger.InMemory, cfg.Key, logger)
	default:
		return NewFileStore(cfg.Path), nil
	}
}
