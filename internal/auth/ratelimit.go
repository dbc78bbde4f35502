package auth

import (
	"context"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/hishamos/secrets/internal/metrics"
	"github.com/hishamos/secrets/internal/resilience"
)

// RateLimiterConfig configures per-client request limiting.
type RateLimiterConfig struct {
	RequestsPerMinute int
	Burst             int
	FailOpen          bool // allow requests when the distributed limiter fails
	TrustedProxyCIDRs []string
	CleanupTTL        time.Duration // idle time after which a local limiter is dropped
	SkipPaths         []string
	Logger            *slog.Logger
}

// RateLimiter limits requests per client IP. Counters live in process unless
// a distributed limiter is set, in which case every replica shares them.
type RateLimiter struct {
	mu          sync.Mutex
	limiters    map[string]*clientLimiter
	limit       rate.Limit
	rpm         int
	burst       int
	cleanupTTL  time.Duration
	distributed resilience.WindowLimiter
	failOpen    bool
	trusted     []*net.IPNet
	skipPaths   map[string]bool
	logger      *slog.Logger
}

type clientLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// NewRateLimiter creates a rate limiter. Zero values default to 60 requests
// per minute with a burst of 10.
func NewRateLimiter(cfg RateLimiterConfig) *RateLimiter {
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = 60
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 10
	}
	if cfg.CleanupTTL <= 0 {
		cfg.CleanupTTL = 10 * time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	trusted, invalid := ParseTrustedProxies(cfg.TrustedProxyCIDRs)
	for _, value := range invalid {
		cfg.Logger.Warn("invalid trusted proxy cidr ignored", "value", value)
	}

	skip := make(map[string]bool, len(cfg.SkipPaths))
	for _, p := range cfg.SkipPaths {
		skip[p] = true
	}

	return &RateLimiter{
		limiters:   make(map[string]*clientLimiter),
		limit:      rate.Limit(float64(cfg.RequestsPerMinute) / 60.0),
		rpm:        cfg.RequestsPerMinute,
		burst:      cfg.Burst,
		cleanupTTL: cfg.CleanupTTL,
		failOpen:   cfg.FailOpen,
		trusted:    trusted,
		skipPaths:  skip,
		logger:     cfg.Logger,
	}
}

// SetDistributedLimiter shares counters through l.
func (rl *RateLimiter) SetDistributedLimiter(l resilience.WindowLimiter) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.distributed = l
}

// Check records a request from client and reports whether it may proceed.
// retryAfter is a hint for rejected requests.
func (rl *RateLimiter) Check(ctx context.Context, client string) (allowed bool, retryAfter time.Duration) {
	rl.mu.Lock()
	distributed := rl.distributed
	rl.mu.Unlock()

	if distributed != nil {
		res, err := distributed.Check(ctx, client, int64(rl.rpm), time.Minute)
		if err == nil {
			return res.Allowed, res.RetryAfter
		}
		action := "allow"
		if !rl.failOpen {
			action = "deny"
		}
		metrics.RateLimiterBackendErrors.WithLabelValues(action).Inc()
		rl.logger.Warn("distributed rate limiter check failed",
			"error", err,
			"fail_open", rl.failOpen,
		)
		return rl.failOpen, time.Minute
	}

	lim := rl.localLimiter(client)
	if lim.Allow() {
		return true, 0
	}
	return false, time.Duration(float64(time.Second) / float64(rl.limit))
}

func (rl *RateLimiter) localLimiter(client string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	if cl, ok := rl.limiters[client]; ok {
		cl.lastAccess = now
		return cl.limiter
	}
	cl := &clientLimiter{limiter: rate.NewLimiter(rl.limit, rl.burst), lastAccess: now}
	rl.limiters[client] = cl
	return cl.limiter
}

// Cleanup drops local limiters idle for longer than the cleanup TTL and
// returns how many were removed.
func (rl *RateLimiter) Cleanup() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	removed := 0
	cutoff := time.Now().Add(-rl.cleanupTTL)
	for client, cl := range rl.limiters {
		if cl.lastAccess.Before(cutoff) {
			delete(rl.limiters, client)
			removed++
		}
	}
	return removed
}

// CleanupInterval is how often Cleanup should run.
func (rl *RateLimiter) CleanupInterval() time.Duration {
	return rl.cleanupTTL / 2
}

// Middleware rejects requests over the limit with 429.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rl.skipPaths[r.URL.Path] || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		client := ClientIP(r, rl.trusted)
		allowed, retryAfter := rl.Check(r.Context(), client)
		if !allowed {
			metrics.RateLimitRejections.Inc()
			seconds := int(math.Ceil(retryAfter.Seconds()))
			if seconds < 1 {
				seconds = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(seconds))
			writeJSONError(w, http.StatusTooManyRequests, "rate_limit_error", "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}
