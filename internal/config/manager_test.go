package config

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestManagerStatus(t *testing.T) {
	path := writeConfigFile(t, `
server:
  port: 8080
`)
	mgr, err := NewManager(path, discardLogger())
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}

	status := mgr.Status()
	if status.Path != path {
		t.Fatalf("Status().Path = %q, want %q", status.Path, path)
	}
	if status.Checksum == "" {
		t.Fatal("Status().Checksum is empty")
	}
	if status.LoadedAt.IsZero() {
		t.Fatal("Status().LoadedAt is zero")
	}
	if status.ReloadCount == 0 {
		t.Fatal("Status().ReloadCount should be > 0")
	}
}

func TestManagerReloadUpdatesChecksum(t *testing.T) {
	path := writeConfigFile(t, `
logging:
  level: info
`)
	mgr, err := NewManager(path, discardLogger())
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}

	var notified atomic.Int32
	mgr.OnChange(func(cfg *Config) {
		if cfg.Logging.Level == "debug" {
			notified.Add(1)
		}
	})

	before := mgr.Status()
	if err := os.WriteFile(path, []byte("logging:\n  level: debug\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if err := mgr.Reload(); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}

	after := mgr.Status()
	if after.Checksum == before.Checksum {
		t.Fatal("expected checksum to change after reload")
	}
	if after.ReloadCount != before.ReloadCount+1 {
		t.Fatalf("expected reload count %d, got %d", before.ReloadCount+1, after.ReloadCount)
	}
	if mgr.Get().Logging.Level != "debug" {
		t.Fatalf("expected level debug, got %s", mgr.Get().Logging.Level)
	}
	if notified.Load() != 1 {
		t.Fatalf("expected one OnChange notification, got %d", notified.Load())
	}
}

func TestManagerReloadKeepsCurrentOnError(t *testing.T) {
	path := writeConfigFile(t, "server:\n  port: 8081\n")
	mgr, err := NewManager(path, discardLogger())
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}

	if err := os.WriteFile(path, []byte("server:\n  port: -1\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if err := mgr.Reload(); err == nil {
		t.Fatal("expected reload error for invalid config")
	}
	if mgr.Get().Server.Port != 8081 {
		t.Fatalf("expected previous config to stay active, got port %d", mgr.Get().Server.Port)
	}
}

func TestManagerWatch(t *testing.T) {
	path := writeConfigFile(t, "logging:\n  level: info\n")
	mgr, err := NewManager(path, discardLogger())
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}

	changed := make(chan string, 1)
	mgr.OnChange(func(cfg *Config) {
		select {
		case changed <- cfg.Logging.Level:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := mgr.Watch(ctx); err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	if err := os.WriteFile(path, []byte("logging:\n  level: warn\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	select {
	case level := <-changed:
		if level != "warn" {
			t.Fatalf("expected warn, got %s", level)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for config reload")
	}
}

func TestNewManager_InvalidFile(t *testing.T) {
	if _, err := NewManager(filepath.Join(t.TempDir(), "missing.yaml"), nil); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}
