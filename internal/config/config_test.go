package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Server.Port != 8080 {
		t.Errorf("default port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 30*time.Second {
		t.Errorf("default read timeout = %v, want 30s", cfg.Server.ReadTimeout)
	}
	if cfg.Secrets.Vault.Enabled {
		t.Error("vault should be disabled by default")
	}
	if cfg.Secrets.Vault.MountPoint != "secret" {
		t.Errorf("default mount point = %q, want secret", cfg.Secrets.Vault.MountPoint)
	}
	if !cfg.Secrets.Local.Enabled {
		t.Error("local encryption should be enabled by default")
	}
	if cfg.Secrets.Local.PathIndex {
		t.Error("path index should be disabled by default")
	}
	if cfg.KV.Type != "memory" {
		t.Errorf("default kv type = %q, want memory", cfg.KV.Type)
	}
	if !cfg.Metrics.Enabled {
		t.Error("metrics should be enabled by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid config", mutate: func(*Config) {}},
		{name: "invalid port zero", mutate: func(c *Config) { c.Server.Port = 0 }, wantErr: "invalid server port"},
		{name: "invalid port too high", mutate: func(c *Config) { c.Server.Port = 70000 }, wantErr: "invalid server port"},
		{name: "negative timeout", mutate: func(c *Config) { c.Server.ReadTimeout = -1 }, wantErr: "timeouts"},
		{name: "bad log format", mutate: func(c *Config) { c.Logging.Format = "xml" }, wantErr: "logging.format"},
		{name: "bad sample rate", mutate: func(c *Config) { c.Tracing.SampleRate = 2 }, wantErr: "sample_rate"},
		{name: "bad tracing protocol", mutate: func(c *Config) { c.Tracing.Protocol = "thrift" }, wantErr: "tracing.protocol"},
		{name: "bad kv type", mutate: func(c *Config) { c.KV.Type = "etcd" }, wantErr: "kv.type"},
		{
			name: "redis without address",
			mutate: func(c *Config) {
				c.KV.Type = "redis"
				c.KV.Redis.Addr = ""
			},
			wantErr: "kv.redis",
		},
		{
			name: "redis cluster",
			mutate: func(c *Config) {
				c.KV.Type = "redis"
				c.KV.Redis.Addr = ""
				c.KV.Redis.ClusterAddrs = []string{"r1:6379", "r2:6379"}
			},
		},
		{
			name: "bad retention schedule",
			mutate: func(c *Config) {
				c.Audit.Retention = time.Hour
				c.Audit.RetentionSchedule = "every hour"
			},
			wantErr: "audit.retention_schedule",
		},
		{name: "bad audit store", mutate: func(c *Config) { c.Audit.Store = "s3" }, wantErr: "audit.store"},
		{name: "postgres without dsn", mutate: func(c *Config) { c.Audit.Store = "postgres" }, wantErr: "postgres_dsn"},
		{
			name: "postgres disabled without dsn",
			mutate: func(c *Config) {
				c.Audit.Store = "postgres"
				c.Audit.Enabled = false
			},
		},
		{name: "bad auth method", mutate: func(c *Config) { c.Secrets.Vault.AuthMethod = "ldap" }, wantErr: "auth_method"},
		{name: "cache without ttl", mutate: func(c *Config) { c.Secrets.Cache.Enabled = true; c.Secrets.Cache.TTL = 0 }, wantErr: "cache.ttl"},
		{name: "negative breaker timeout", mutate: func(c *Config) { c.Secrets.Vault.CircuitBreaker.Timeout = -1 }, wantErr: "circuit_breaker"},
		{
			name: "rate limit without rpm",
			mutate: func(c *Config) {
				c.RateLimit.Enabled = true
				c.RateLimit.RequestsPerMinute = 0
			},
			wantErr: "requests_per_minute",
		},
		{
			name: "distributed rate limit needs redis",
			mutate: func(c *Config) {
				c.RateLimit.Enabled = true
				c.RateLimit.Distributed = true
			},
			wantErr: "kv.type redis",
		},
		{
			name: "vault enabled without address",
			mutate: func(c *Config) {
				c.Secrets.Vault.Enabled = true
				c.Secrets.Vault.Address = ""
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	t.Run("valid file", func(t *testing.T) {
		path := createTempFile(t, `
server:
  port: 9000
  max_body_bytes: 2048
secrets:
  vault:
    enabled: true
    address: https://vault.internal:8200
    token: env://VAULT_TOKEN
    timeout: 2s
  local:
    enabled: true
    previous_keys:
      - old-key
    path_index: true
  cache:
    enabled: true
    ttl: 1m
kv:
  type: redis
  redis:
    addr: redis:6379
    namespace: prod
audit:
  store: postgres
  postgres_dsn: postgres://audit@db/audit
`)

		cfg, err := LoadFromFile(path)
		if err != nil {
			t.Fatalf("LoadFromFile() error = %v", err)
		}

		if cfg.Server.Port != 9000 || cfg.Server.MaxBodyBytes != 2048 {
			t.Errorf("unexpected server config: %+v", cfg.Server)
		}
		if cfg.Secrets.Vault.Token != "env://VAULT_TOKEN" {
			t.Errorf("vault token reference = %q", cfg.Secrets.Vault.Token)
		}
		if cfg.Secrets.Vault.Timeout != 2*time.Second {
			t.Errorf("vault timeout = %v, want 2s", cfg.Secrets.Vault.Timeout)
		}
		if cfg.Secrets.Vault.MountPoint != "secret" {
			t.Errorf("mount point default lost: %q", cfg.Secrets.Vault.MountPoint)
		}
		if !cfg.Secrets.Local.PathIndex || len(cfg.Secrets.Local.PreviousKeys) != 1 {
			t.Errorf("unexpected local config: %+v", cfg.Secrets.Local)
		}
		if cfg.Secrets.Cache.TTL != time.Minute {
			t.Errorf("cache ttl = %v, want 1m", cfg.Secrets.Cache.TTL)
		}
		if cfg.KV.Redis.Addr != "redis:6379" || cfg.KV.Redis.Namespace != "prod" {
			t.Errorf("unexpected redis config: %+v", cfg.KV.Redis)
		}
		if cfg.KV.Redis.DialTimeout != 5*time.Second {
			t.Errorf("redis dial timeout default lost: %v", cfg.KV.Redis.DialTimeout)
		}
	})

	t.Run("env expansion", func(t *testing.T) {
		t.Setenv("TEST_BOOTSTRAP_TOKEN", "bootstrap-123")
		path := createTempFile(t, `
auth:
  bootstrap_token: ${TEST_BOOTSTRAP_TOKEN}
`)

		cfg, err := LoadFromFile(path)
		if err != nil {
			t.Fatalf("LoadFromFile() error = %v", err)
		}
		if cfg.Auth.BootstrapToken != "bootstrap-123" {
			t.Errorf("bootstrap token = %q, want bootstrap-123", cfg.Auth.BootstrapToken)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadFromFile("/nonexistent/path/config.yaml")
		if err == nil {
			t.Error("expected error for nonexistent file")
		}
	})

	t.Run("invalid yaml", func(t *testing.T) {
		path := createTempFile(t, "server: [")
		if _, err := LoadFromFile(path); err == nil {
			t.Error("expected parse error")
		}
	})

	t.Run("invalid values", func(t *testing.T) {
		path := createTempFile(t, "kv:\n  type: etcd\n")
		_, err := LoadFromFile(path)
		if err == nil || !strings.Contains(err.Error(), "validate config") {
			t.Errorf("expected validation error, got %v", err)
		}
	})
}

func createTempFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}
