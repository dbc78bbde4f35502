package config

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Status describes the currently loaded configuration file.
type Status struct {
	Path        string    `json:"path"`
	Checksum    string    `json:"checksum"`
	LoadedAt    time.Time `json:"loaded_at"`
	ReloadCount int64     `json:"reload_count"`
}

// Manager handles configuration loading and hot-reload.
// It uses atomic pointer swaps to ensure thread-safe config updates.
type Manager struct {
	config  atomic.Pointer[Config]
	status  atomic.Pointer[Status]
	path    string
	watcher *fsnotify.Watcher
	logger  *slog.Logger

	mu       sync.Mutex
	onChange []func(*Config)
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

// Get returns the current configuration.
// This is safe to call concurrently from multiple goroutines.
func (m *Manager) Get() *Config {
	return m.config.Load()
}

// Status returns details about the loaded configuration file.
func (m *Manager) Status() Status {
	if s := m.status.Load(); s != nil {
		return *s
	}
	return Status{Path: m.path}
}

// OnChange registers a callback to be invoked when configuration changes.
func (m *Manager) OnChange(fn func(*Config)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChange = append(m.onChange, fn)
}

// Reload re-reads the file and, if it is valid, swaps it in and notifies
// listeners. An invalid file leaves the current configuration in place.
func (m *Manager) Reload() error {
	if err := m.load(); err != nil {
		return err
	}

	m.mu.Lock()
	callbacks := append([]func(*Config){}, m.onChange...)
	m.mu.Unlock()

	cfg := m.config.Load()
	for _, fn := range callbacks {
		fn(cfg)
	}
	return nil
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

	sum := sha256.Sum256(data)
	var count int64 = 1
	if prev := m.status.Load(); prev != nil {
		count = prev.ReloadCount + 1
	}

	m.config.Store(cfg)
	m.status.Store(&Status{
		Path:        m.path,
		Checksum:    hex.EncodeToString(sum[:]),
		LoadedAt:    time.Now(),
		ReloadCount: count,
	})
	return nil
}

// Watch starts watching the configuration file for changes.
// It debounces rapid changes and reloads configuration atomically.
func (m *Manager) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	m.watcher = watcher

	if err := watcher.Add(m.path); err != nil {
		_ = watcher.Close()
		return err
	}

	go m.watchLoop(ctx)
	return nil
}

func (m *Manager) watchLoop(ctx context.Context) {
	// Debounce timer to avoid rapid reloads
	const debounceDelay = 500 * time.Millisecond
	var debounceTimer *time.Timer

	for {
		select {
		case <-ctx.Done():
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			_ = m.watcher.Close()
			return

		case event, ok := <-m.watcher.Events:
			if !ok {
				return
			}

			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				debounceTimer = time.AfterFunc(debounceDelay, m.reload)
			}

		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			m.logger.Error("config watcher error", "error", err)
		}
	}
}

func (m *Manager) reload() {
	if err := m.Reload(); err != nil {
		m.logger.Error("failed to reload config, keeping current",
			"error", err,
		)
		return
	}
	m.logger.Info("configuration reloaded successfully", "checksum", m.Status().Checksum)
}

// Close stops the configuration watcher.
func (m *Manager) Close() error {
	if m.watcher != nil {
		return m.watcher.Close()
	}
	return nil
}
