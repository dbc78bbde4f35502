// Package redis provides a Redis-backed kv.Store.
package redis

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/hishamos/secrets/internal/kv"
)

// Store implements kv.Store using Redis as backend.
type Store struct {
	client    goredis.UniversalClient
	namespace string

	// Statistics
	hits    atomic.Int64
	misses  atomic.Int64
	sets    atomic.Int64
	deletes atomic.Int64
	errors  atomic.Int64
}

// Config holds configuration for the Redis store.
type Config struct {
	// Single node configuration
	Addr     string `yaml:"addr"`     // Redis address (e.g., "localhost:6379")
	Password string `yaml:"password"` // Redis password
	DB       int    `yaml:"db"`       // Redis database number

	// Cluster configuration
	ClusterAddrs []string `yaml:"cluster_addrs"` // Redis cluster addresses

	// Sentinel configuration
	SentinelAddrs  []string `yaml:"sentinel_addrs"`  // Sentinel addresses
	SentinelMaster string   `yaml:"sentinel_master"` // Sentinel master name

	// Common configuration
	Namespace     string        `yaml:"namespace"`       // Key namespace prefix
	DialTimeout   time.Duration `yaml:"dial_timeout"`    // Connection timeout
	ReadTimeout   time.Duration `yaml:"read_timeout"`    // Read timeout
	WriteTimeout  time.Duration `yaml:"write_timeout"`   // Write timeout
	PoolSize      int           `yaml:"pool_size"`       // Connection pool size
	MinIdleConns  int           `yaml:"min_idle_conns"`  // Minimum idle connections
	TLSEnabled    bool          `yaml:"tls_enabled"`     // Enable TLS
	TLSSkipVerify bool          `yaml:"tls_skip_verify"` // Skip TLS verification
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Addr:         "localhost:6379",
		DB:           0,
		Namespace:    "hishamos",
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// New creates a new Redis store and verifies connectivity.
// Client-side retries are disabled: a failed call surfaces as a single error.
func New(cfg Config) (*Store, error) {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 5 * time.Second
	}

	var tlsConfig *tls.Config
	if cfg.TLSEnabled {
		tlsConfig = &tls.Config{
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: cfg.TLSSkipVerify, //nolint:gosec // opt-in for self-signed dev clusters
		}
	}

	var client goredis.UniversalClient

	switch {
	case len(cfg.ClusterAddrs) > 0:
		client = goredis.NewClusterClient(&goredis.ClusterOptions{
			Addrs:        cfg.ClusterAddrs,
			Password:     cfg.Password,
			DialTimeout:  cfg.DialTimeout,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			PoolSize:     cfg.PoolSize,
			MinIdleConns: cfg.MinIdleConns,
			MaxRetries:   -1,
			TLSConfig:    tlsConfig,
		})
	case len(cfg.SentinelAddrs) > 0:
		client = goredis.NewFailoverClient(&goredis.FailoverOptions{
			MasterName:    cfg.SentinelMaster,
			SentinelAddrs: cfg.SentinelAddrs,
			Password:      cfg.Password,
			DB:            cfg.DB,
			DialTimeout:   cfg.DialTimeout,
			ReadTimeout:   cfg.ReadTimeout,
			WriteTimeout:  cfg.WriteTimeout,
			PoolSize:      cfg.PoolSize,
			MinIdleConns:  cfg.MinIdleConns,
			MaxRetries:    -1,
			TLSConfig:     tlsConfig,
		})
	default:
		client = goredis.NewClient(&goredis.Options{
			Addr:         cfg.Addr,
			Password:     cfg.Password,
			DB:           cfg.DB,
			DialTimeout:  cfg.DialTimeout,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			PoolSize:     cfg.PoolSize,
			MinIdleConns: cfg.MinIdleConns,
			MaxRetries:   -1,
			TLSConfig:    tlsConfig,
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return NewWithClient(client, cfg.Namespace), nil
}

// NewWithClient wraps an existing client. The caller keeps ownership of
// connectivity checks.
func NewWithClient(client goredis.UniversalClient, namespace string) *Store {
	return &Store{
		client:    client,
		namespace: namespace,
	}
}

// Client returns the underlying Redis client.
func (s *Store) Client() goredis.UniversalClient {
	return s.client
}

// Namespace returns the key prefix applied to every key.
func (s *Store) Namespace() string {
	return s.namespace
}

// prefixKey adds namespace prefix to the key.
func (s *Store) prefixKey(key string) string {
	if s.namespace == "" {
		return key
	}
	return s.namespace + ":" + key
}

// Get retrieves a value from Redis.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := s.client.Get(ctx, s.prefixKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			s.misses.Add(1)
			return nil, nil
		}
		s.errors.Add(1)
		return nil, fmt.Errorf("redis get: %w", err)
	}

	s.hits.Add(1)
	return val, nil
}

// Set stores a value in Redis without expiry.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	if err := s.client.Set(ctx, s.prefixKey(key), value, 0).Err(); err != nil {
		s.errors.Add(1)
		return fmt.Errorf("redis set: %w", err)
	}

	s.sets.Add(1)
	return nil
}

// Delete removes a key from Redis.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefixKey(key)).Err(); err != nil {
		s.errors.Add(1)
		return fmt.Errorf("redis del: %w", err)
	}

	s.deletes.Add(1)
	return nil
}

// SetAdd adds a member to a Redis set.
func (s *Store) SetAdd(ctx context.Context, key, member string) error {
	if err := s.client.SAdd(ctx, s.prefixKey(key), member).Err(); err != nil {
		s.errors.Add(1)
		return fmt.Errorf("redis sadd: %w", err)
	}
	return nil
}

// SetRemove removes a member from a Redis set.
func (s *Store) SetRemove(ctx context.Context, key, member string) error {
	if err := s.client.SRem(ctx, s.prefixKey(key), member).Err(); err != nil {
		s.errors.Add(1)
		return fmt.Errorf("redis srem: %w", err)
	}
	return nil
}

// SetMembers returns the members of a Redis set.
func (s *Store) SetMembers(ctx context.Context, key string) ([]string, error) {
	members, err := s.client.SMembers(ctx, s.prefixKey(key)).Result()
	if err != nil {
		s.errors.Add(1)
		return nil, fmt.Errorf("redis smembers: %w", err)
	}
	if members == nil {
		members = []string{}
	}
	return members, nil
}

// Ping checks Redis connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (s *Store) Close() error {
	return s.client.Close()
}

// Stats returns store statistics.
func (s *Store) Stats() kv.Stats {
	hits := s.hits.Load()
	misses := s.misses.Load()

	return kv.Stats{
		Hits:    hits,
		Misses:  misses,
		Sets:    s.sets.Load(),
		Deletes: s.deletes.Load(),
		Errors:  s.errors.Load(),
		HitRate: kv.HitRate(hits, misses),
	}
}

var _ kv.Store = (*Store)(nil)
