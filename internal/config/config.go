// Package config provides configuration management with hot-reload support.
// It uses fsnotify to watch for file changes and atomic pointer swaps for zero-downtime updates.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	kvredis "github.com/hishamos/secrets/internal/kv/redis"
)

// Config represents the complete service configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Tracing   TracingConfig   `yaml:"tracing"`
	Secrets   SecretsConfig   `yaml:"secrets"`
	KV        KVConfig        `yaml:"kv"`
	Auth      AuthConfig      `yaml:"auth"`
	Audit     AuditConfig     `yaml:"audit"`
	CORS      CORSConfig      `yaml:"cors"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
	MaxBodyBytes int64         `yaml:"max_body_bytes"`
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
	Enabled     bool    `yaml:"enabled"`
	Endpoint    string  `yaml:"endpoint"`     // OTLP endpoint (e.g., "localhost:4317")
	Protocol    string  `yaml:"protocol"`     // grpc, http
	ServiceName string  `yaml:"service_name"` // Service name for traces
	SampleRate  float64 `yaml:"sample_rate"`  // Sampling rate (0.0 to 1.0)
	Insecure    bool    `yaml:"insecure"`     // Use insecure connection (no TLS)
}

// SecretsConfig selects and configures the secret backend. It is read once
// when the secret service is built.
type SecretsConfig struct {
	Vault VaultConfig       `yaml:"vault"`
	Local LocalConfig       `yaml:"local"`
	Cache SecretCacheConfig `yaml:"cache"`
}

// VaultConfig configures the Vault KV v2 backend. Token, RoleID and SecretID
// accept references (env://NAME, file:///path) as well as literals.
type VaultConfig struct {
	Enabled    bool          `yaml:"enabled"`
	Address    string        `yaml:"address"`
	Token      string        `yaml:"token"`
	MountPoint string        `yaml:"mount_point"`
	Namespace  string        `yaml:"namespace"`
	Timeout    time.Duration `yaml:"timeout"`
	AuthMethod string        `yaml:"auth_method"` // token, approle, cert
	RoleID     string        `yaml:"role_id"`
	SecretID   string        `yaml:"secret_id"`
	CACert     string        `yaml:"ca_cert"`
	ClientCert string        `yaml:"client_cert"`
	ClientKey  string        `yaml:"client_key"`

	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// CircuitBreakerConfig guards calls to the vault server.
type CircuitBreakerConfig struct {
	Enabled          bool          `yaml:"enabled"`
	FailureThreshold int           `yaml:"failure_threshold"`
	SuccessThreshold int           `yaml:"success_threshold"`
	Timeout          time.Duration `yaml:"timeout"` // how long the circuit stays open
}

// LocalConfig configures the local encryption backend.
type LocalConfig struct {
	Enabled       bool     `yaml:"enabled"`
	EncryptionKey string   `yaml:"encryption_key"` // empty = ephemeral key
	PreviousKeys  []string `yaml:"previous_keys"`
	PathIndex     bool     `yaml:"path_index"`
}

// SecretCacheConfig configures the read-through cache in front of the
// active backend.
type SecretCacheConfig struct {
	Enabled bool          `yaml:"enabled"`
	TTL     time.Duration `yaml:"ttl"`
}

// KVConfig selects the persistence used by the local backend.
type KVConfig struct {
	Type  string         `yaml:"type"` // memory, redis
	Redis kvredis.Config `yaml:"redis"`
}

// AuthConfig configures the administrator gate in front of the HTTP API.
type AuthConfig struct {
	Enabled        bool   `yaml:"enabled"`
	BootstrapToken string `yaml:"bootstrap_token"`
	JWTSecret      string `yaml:"jwt_secret"`
	JWTIssuer      string `yaml:"jwt_issuer"`
	AdminRole      string `yaml:"admin_role"`
}

// CORSConfig configures cross-origin access for browser dashboards.
type CORSConfig struct {
	Enabled          bool          `yaml:"enabled"`
	AllowAllOrigins  bool          `yaml:"allow_all_origins"`
	AllowedOrigins   []string      `yaml:"allowed_origins"`
	DeniedOrigins    []string      `yaml:"denied_origins"` // "*" denies every origin
	AllowCredentials bool          `yaml:"allow_credentials"`
	AllowMethods     []string      `yaml:"allow_methods"`
	AllowHeaders     []string      `yaml:"allow_headers"`
	ExposeHeaders    []string      `yaml:"expose_headers"`
	MaxAge           time.Duration `yaml:"max_age"`
}

// RateLimitConfig limits requests per client IP in front of the admin gate.
type RateLimitConfig struct {
	Enabled           bool     `yaml:"enabled"`
	RequestsPerMinute int      `yaml:"requests_per_minute"`
	Burst             int      `yaml:"burst"`
	Distributed       bool     `yaml:"distributed"` // share counters through kv.redis
	FailOpen          bool     `yaml:"fail_open"`
	TrustedProxyCIDRs []string `yaml:"trusted_proxy_cidrs"`
}

// AuditConfig configures the audit trail of secret operations.
type AuditConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Store       string `yaml:"store"` // memory, postgres
	PostgresDSN string `yaml:"postgres_dsn"`
	MaxEntries  int    `yaml:"max_entries"` // memory store capacity

	// Retention removes entries older than this age on RetentionSchedule.
	// Zero keeps entries forever.
	Retention         time.Duration `yaml:"retention"`
	RetentionSchedule string        `yaml:"retention_schedule"` // cron spec, e.g. "@hourly"
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
			MaxBodyBytes: 1 << 20,
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
			Protocol:    "grpc",
			ServiceName: "hishamos-secrets",
			SampleRate:  1.0,
			Insecure:    true,
		},
		Secrets: SecretsConfig{
			Vault: VaultConfig{
				Enabled:    false,
				MountPoint: "secret",
				Timeout:    5 * time.Second,
				AuthMethod: "token",

				CircuitBreaker: CircuitBreakerConfig{
					Enabled:          true,
					FailureThreshold: 5,
					SuccessThreshold: 2,
					Timeout:          30 * time.Second,
				},
			},
			Local: LocalConfig{
				Enabled: true,
			},
			Cache: SecretCacheConfig{
				Enabled: false,
				TTL:     30 * time.Second,
			},
		},
		KV: KVConfig{
			Type:  "memory",
			Redis: kvredis.DefaultConfig(),
		},
		Auth: AuthConfig{
			Enabled:   true,
			AdminRole: "admin",
		},
		Audit: AuditConfig{
			Enabled:    true,
			Store:      "memory",
			MaxEntries: 10000,

			RetentionSchedule: "@hourly",
		},
		CORS: CORSConfig{
			AllowMethods:  []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowHeaders:  []string{"Content-Type", "Authorization", "X-HishamOS-Bootstrap-Token", "X-Request-ID"},
			ExposeHeaders: []string{"X-Request-ID"},
			MaxAge:        10 * time.Minute,
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 120,
			Burst:             20,
			FailOpen:          true,
		},
	}
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

// Parse expands environment variables in data and decodes it over the
// defaults.
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

// Validate checks the configuration for errors. A vault section that is
// enabled without an address is not an error: vault is skipped at startup.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.ReadTimeout < 0 || c.Server.WriteTimeout < 0 || c.Server.IdleTimeout < 0 {
		return fmt.Errorf("server timeouts cannot be negative")
	}
	if c.Server.MaxBodyBytes < 0 {
		return fmt.Errorf("server.max_body_bytes cannot be negative")
	}

	switch c.Logging.Format {
	case "", "json", "text":
	default:
		return fmt.Errorf("invalid logging.format: %q", c.Logging.Format)
	}

	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		return fmt.Errorf("tracing.sample_rate must be between 0 and 1")
	}
	switch c.Tracing.Protocol {
	case "", "grpc", "http":
	default:
		return fmt.Errorf("invalid tracing.protocol: %q", c.Tracing.Protocol)
	}

	if c.Secrets.Vault.Timeout < 0 {
		return fmt.Errorf("secrets.vault.timeout cannot be negative")
	}
	switch c.Secrets.Vault.AuthMethod {
	case "", "token", "approle", "cert":
	default:
		return fmt.Errorf("invalid secrets.vault.auth_method: %q", c.Secrets.Vault.AuthMethod)
	}
	if cb := c.Secrets.Vault.CircuitBreaker; cb.FailureThreshold < 0 || cb.SuccessThreshold < 0 || cb.Timeout < 0 {
		return fmt.Errorf("secrets.vault.circuit_breaker values cannot be negative")
	}
	if c.Secrets.Cache.TTL < 0 {
		return fmt.Errorf("secrets.cache.ttl cannot be negative")
	}
	if c.Secrets.Cache.Enabled && c.Secrets.Cache.TTL == 0 {
		return fmt.Errorf("secrets.cache.ttl is required when the cache is enabled")
	}

	switch c.KV.Type {
	case "memory":
	case "redis":
		if c.KV.Redis.Addr == "" && len(c.KV.Redis.ClusterAddrs) == 0 && len(c.KV.Redis.SentinelAddrs) == 0 {
			return fmt.Errorf("kv.redis: addr, cluster_addrs or sentinel_addrs is required")
		}
	default:
		return fmt.Errorf("invalid kv.type: %q", c.KV.Type)
	}

	if c.CORS.MaxAge < 0 {
		return fmt.Errorf("cors.max_age cannot be negative")
	}
	if c.CORS.Enabled && c.CORS.AllowAllOrigins && c.CORS.AllowCredentials {
		return fmt.Errorf("cors.allow_all_origins cannot be combined with allow_credentials")
	}
	if c.RateLimit.Enabled {
		if c.RateLimit.RequestsPerMinute <= 0 {
			return fmt.Errorf("rate_limit.requests_per_minute must be positive")
		}
		if c.RateLimit.Burst < 0 {
			return fmt.Errorf("rate_limit.burst cannot be negative")
		}
		if c.RateLimit.Distributed && c.KV.Type != "redis" {
			return fmt.Errorf("rate_limit.distributed requires kv.type redis")
		}
	}
	if c.Audit.Retention < 0 {
		return fmt.Errorf("audit.retention cannot be negative")
	}
	if c.Audit.Retention > 0 {
		if _, err := cron.ParseStandard(c.Audit.RetentionSchedule); err != nil {
			return fmt.Errorf("invalid audit.retention_schedule %q: %w", c.Audit.RetentionSchedule, err)
		}
	}
	switch c.Audit.Store {
	case "memory":
		if c.Audit.MaxEntries < 0 {
			return fmt.Errorf("audit.max_entries cannot be negative")
		}
	case "postgres":
		if c.Audit.Enabled && c.Audit.PostgresDSN == "" {
			return fmt.Errorf("audit.postgres_dsn is required when audit.store is postgres")
		}
	default:
		return fmt.Errorf("invalid audit.store: %q", c.Audit.Store)
	}

	return nil
}
