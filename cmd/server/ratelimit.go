package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hishamos/secrets/internal/auth"
	"github.com/hishamos/secrets/internal/config"
	"github.com/hishamos/secrets/internal/kv"
	kvredis "github.com/hishamos/secrets/internal/kv/redis"
	"github.com/hishamos/secrets/internal/resilience"
	"github.com/hishamos/secrets/internal/secretstore"
)

// setupRateLimiter builds the per-client limiter. Distributed counters reuse
// the local backend's Redis store when there is one and otherwise open their
// own connection, which the returned cleanup closes. It returns a nil limiter
// when rate limiting is disabled.
func setupRateLimiter(ctx context.Context, cfg *config.Config, shared kv.Store, skipPaths []string, logger *slog.Logger) (*auth.RateLimiter, []func(), error) {
	rc := cfg.RateLimit
	if !rc.Enabled {
		return nil, nil, nil
	}

	limiter := auth.NewRateLimiter(auth.RateLimiterConfig{
		RequestsPerMinute: rc.RequestsPerMinute,
		Burst:             rc.Burst,
		FailOpen:          rc.FailOpen,
		TrustedProxyCIDRs: rc.TrustedProxyCIDRs,
		SkipPaths:         skipPaths,
		Logger:            logger,
	})
	var stops []func()

	if rc.Distributed {
		store, ok := shared.(*kvredis.Store)
		if !ok {
			opened, err := secretstore.OpenKV(cfg.KV)
			if err != nil {
				if !rc.FailOpen {
					return nil, nil, fmt.Errorf("open rate limit store: %w", err)
				}
				logger.Warn("distributed rate limiting unavailable, using local counters", "error", err)
			}
			if rs, ok := opened.(*kvredis.Store); ok {
				store = rs
				stops = append(stops, func() { _ = rs.Close() })
			}
		}
		if store != nil {
			prefix := "ratelimit"
			if ns := store.Namespace(); ns != "" {
				prefix = ns + ":ratelimit"
			}
			limiter.SetDistributedLimiter(resilience.NewRedisLimiter(store.Client(), prefix))
		}
	}

	stops = append(stops, startPeriodic(ctx, limiter.CleanupInterval(), func() { limiter.Cleanup() }))
	logger.Info("rate limiting enabled",
		"requests_per_minute", rc.RequestsPerMinute,
		"burst", rc.Burst,
		"distributed", rc.Distributed,
	)
	return limiter, stops, nil
}
