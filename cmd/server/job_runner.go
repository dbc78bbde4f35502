package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/hishamos/secrets/internal/audit"
	"github.com/hishamos/secrets/internal/config"
)

const retentionRunTimeout = time.Minute

// startAuditRetention prunes audit entries older than audit.retention once at
// startup and then on audit.retention_schedule. It returns a nil stop func
// when retention is disabled.
func startAuditRetention(ctx context.Context, cfg *config.Config, store audit.Store, logger *slog.Logger) (func(), error) {
	if cfg == nil || !cfg.Audit.Enabled || cfg.Audit.Retention <= 0 || store == nil {
		return nil, nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	retention := cfg.Audit.Retention
	schedule := cfg.Audit.RetentionSchedule
	if schedule == "" {
		schedule = "@hourly"
	}

	prune := func() {
		runCtx, cancel := context.WithTimeout(ctx, retentionRunTimeout)
		defer cancel()

		deleted, err := store.DeleteOlderThan(runCtx, time.Now().Add(-retention))
		if err != nil {
			logger.Warn("audit retention failed", "error", err)
			return
		}
		if deleted > 0 {
			logger.Info("audit entries pruned", "deleted", deleted, "retention", retention.String())
		}
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(schedule, prune); err != nil {
		return nil, fmt.Errorf("schedule audit retention %q: %w", schedule, err)
	}

	prune()
	c.Start()
	logger.Info("audit retention enabled", "retention", retention.String(), "schedule", schedule)

	return func() {
		<-c.Stop().Done()
	}, nil
}
