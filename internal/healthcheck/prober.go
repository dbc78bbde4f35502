// Package healthcheck periodically probes the dependencies behind the secret
// backend (the kv store, the audit database) and reports their state for
// readiness checks.
package healthcheck

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hishamos/secrets/internal/metrics"
)

const (
	defaultProbeInterval = 30 * time.Second
	defaultProbeTimeout  = 5 * time.Second
)

// Config controls the prober behavior.
type Config struct {
	Enabled  bool
	Interval time.Duration
	Timeout  time.Duration
}

// CheckFunc probes a single dependency.
type CheckFunc func(ctx context.Context) error

// Result is the last observed state of a dependency.
type Result struct {
	Healthy   bool      `json:"healthy"`
	Error     string    `json:"error,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// Prober periodically runs registered checks.
type Prober struct {
	cfg     Config
	logger  *slog.Logger
	started atomic.Bool

	mu      sync.RWMutex
	checks  map[string]CheckFunc
	results map[string]Result
}

// NewProber creates a new prober.
func NewProber(cfg Config, logger *slog.Logger) *Prober {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultProbeInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultProbeTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Prober{
		cfg:     cfg,
		logger:  logger,
		checks:  make(map[string]CheckFunc),
		results: make(map[string]Result),
	}
}

// Register adds a named check. Registering a name twice replaces the check.
func (p *Prober) Register(name string, check CheckFunc) {
	if p == nil || check == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.checks[name] = check
}

// Start begins the probe loop until the context is canceled.
func (p *Prober) Start(ctx context.Context) {
	if p == nil || !p.cfg.Enabled {
		return
	}
	if !p.started.CompareAndSwap(false, true) {
		return
	}

	go p.run(ctx)
}

func (p *Prober) run(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	p.RunOnce(ctx)

	for {
		select {
		case <-ticker.C:
			p.RunOnce(ctx)
		case <-ctx.Done():
			p.logger.Info("healthcheck prober stopped")
			return
		}
	}
}

// RunOnce runs every registered check once.
func (p *Prober) RunOnce(ctx context.Context) {
	p.mu.RLock()
	checks := make(map[string]CheckFunc, len(p.checks))
	for name, check := range p.checks {
		checks[name] = check
	}
	p.mu.RUnlock()

	for name, check := range checks {
		if ctx.Err() != nil {
			return
		}
		p.probe(ctx, name, check)
	}
}

func (p *Prober) probe(ctx context.Context, name string, check CheckFunc) {
	probeCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	err := check(probeCtx)
	result := Result{Healthy: err == nil, CheckedAt: time.Now().UTC()}
	if err != nil {
		result.Error = err.Error()
	}

	p.mu.Lock()
	previous, seen := p.results[name]
	p.results[name] = result
	p.mu.Unlock()

	metrics.SetDependencyHealth(name, result.Healthy)

	switch {
	case err != nil:
		p.logger.Warn("healthcheck probe failed", "dependency", name, "error", err)
	case seen && !previous.Healthy:
		p.logger.Info("healthcheck probe recovered", "dependency", name)
	}
}

// Results returns a snapshot of the last result per dependency.
func (p *Prober) Results() map[string]Result {
	if p == nil {
		return map[string]Result{}
	}
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make(map[string]Result, len(p.results))
	for name, r := range p.results {
		out[name] = r
	}
	return out
}

// Unhealthy returns the sorted names of dependencies whose last probe failed.
func (p *Prober) Unhealthy() []string {
	var names []string
	for name, r := range p.Results() {
		if !r.Healthy {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
