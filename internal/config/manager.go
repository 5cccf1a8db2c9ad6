package config

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Status describes the currently loaded configuration.
type Status struct {
	Path        string    `json:"path"`
	Checksum    string    `json:"checksum"`
	LoadedAt    time.Time `json:"loaded_at"`
	ReloadCount int64     `json:"reload_count"`
}

type loaded struct {
	cfg    *Config
	view   View
	status Status
}

// Manager owns the loaded configuration. Readers see a consistent snapshot
// through an atomic pointer; reloads swap the whole snapshot at once.
type Manager struct {
	current atomic.Pointer[loaded]
	path    string
	logger  *slog.Logger
	reloads atomic.Int64

	mu       sync.Mutex
	onChange []func(*Config)
	watcher  *fsnotify.Watcher
	done     chan struct{}
}

// NewManager creates a new configuration manager.
func NewManager(path string, logger *slog.Logger) (*Manager, error) {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		path:   path,
		logger: logger,
	}
	if err := m.load(); err != nil {
		return nil, err
	}
	return m, nil
}

// NewStaticManager wraps an already built Config. Reload and Watch are unavailable.
func NewStaticManager(cfg *Config) (*Manager, error) {
	view, err := NewView(cfg)
	if err != nil {
		return nil, fmt.Errorf("render config: %w", err)
	}
	m := &Manager{logger: slog.Default()}
	m.reloads.Store(1)
	m.current.Store(&loaded{
		cfg:    cfg,
		view:   view,
		status: Status{LoadedAt: time.Now(), ReloadCount: 1},
	})
	return m, nil
}

func (m *Manager) load() error {
	data, err := os.ReadFile(m.path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return err
	}
	view, err := NewView(cfg)
	if err != nil {
		return fmt.Errorf("render config: %w", err)
	}

	sum := sha256.Sum256(data)
	count := m.reloads.Add(1)
	m.current.Store(&loaded{
		cfg:  cfg,
		view: view,
		status: Status{
			Path:        m.path,
			Checksum:    hex.EncodeToString(sum[:]),
			LoadedAt:    time.Now(),
			ReloadCount: count,
		},
	})

	for _, w := range cfg.Warnings() {
		m.logger.Warn("config warning", "code", w.Code, "message", w.Message)
	}
	return nil
}

// Get returns the current configuration. Callers must not mutate it.
func (m *Manager) Get() *Config {
	return m.current.Load().cfg
}

// Value returns the setting at a dotted YAML path, or def when absent.
func (m *Manager) Value(path string, def any) any {
	return m.current.Load().view.Lookup(path, def)
}

// Status returns metadata about the loaded configuration.
func (m *Manager) Status() Status {
	return m.current.Load().status
}

// OnChange registers fn to run after every successful Reload.
func (m *Manager) OnChange(fn func(*Config)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChange = append(m.onChange, fn)
}

// Reload re-reads the file. On failure the current configuration is kept.
func (m *Manager) Reload() error {
	if m.path == "" {
		return fmt.Errorf("config manager has no backing file")
	}
	if err := m.load(); err != nil {
		return err
	}

	cfg := m.Get()
	m.mu.Lock()
	listeners := append([](func(*Config))(nil), m.onChange...)
	m.mu.Unlock()
	for _, fn := range listeners {
		fn(cfg)
	}
	return nil
}

// Watch reloads the configuration whenever its file is written, created or
// renamed into place. Bursts of events collapse into one reload. The parent
// directory is watched so editors that replace the file are still seen.
func (m *Manager) Watch(ctx context.Context) error {
	if m.path == "" {
		return fmt.Errorf("config manager has no backing file")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.watcher != nil {
		return fmt.Errorf("config manager is already watching %s", m.path)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create config watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(m.path)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch %s: %w", filepath.Dir(m.path), err)
	}
	m.watcher = watcher
	m.done = make(chan struct{})

	go m.watchLoop(ctx, watcher, m.done)
	return nil
}

const reloadDelay = 500 * time.Millisecond

func (m *Manager) watchLoop(ctx context.Context, w *fsnotify.Watcher, done chan struct{}) {
	defer close(done)

	target := filepath.Clean(m.path)
	pending := time.NewTimer(reloadDelay)
	pending.Stop()
	defer pending.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = w.Close()
			return

		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				pending.Reset(reloadDelay)
			}

		case <-pending.C:
			if err := m.Reload(); err != nil {
				m.logger.Error("config reload failed, keeping previous", "path", m.path, "error", err)
				continue
			}
			m.logger.Info("config reloaded", "path", m.path, "checksum", m.Status().Checksum)

		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			m.logger.Warn("config watcher error", "error", err)
		}
	}
}

// Close stops watching and waits for an in-flight reload to finish.
func (m *Manager) Close() error {
	m.mu.Lock()
	w, done := m.watcher, m.done
	m.watcher, m.done = nil, nil
	m.mu.Unlock()

	if w == nil {
		return nil
	}
	err := w.Close()
	<-done
	return err
}
