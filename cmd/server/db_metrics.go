package main

import (
	"context"
	"database/sql"
	"log/slog"
	"sync"
	"time"

	"github.com/hishamos/secrets/internal/kv"
	"github.com/hishamos/secrets/internal/metrics"
)

type dbStatsProvider interface {
	DBStats() sql.DBStats
}

// startPeriodic calls update immediately and then on every tick until ctx is
// canceled or the returned stop function is called.
func startPeriodic(ctx context.Context, interval time.Duration, update func()) func() {
	if ctx == nil {
		ctx = context.Background()
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}

	update()

	ticker := time.NewTicker(interval)
	stopCh := make(chan struct{})
	var once sync.Once
	stop := func() {
		once.Do(func() { close(stopCh) })
	}

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				update()
			case <-ctx.Done():
				stop()
				return
			case <-stopCh:
				return
			}
		}
	}()
	return stop
}

func startDBPoolMetrics(ctx context.Context, provider dbStatsProvider, logger *slog.Logger, interval time.Duration) func() {
	if provider == nil {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}

	stop := startPeriodic(ctx, interval, func() {
		metrics.UpdateAuditDBPoolStats(provider.DBStats())
	})
	logger.Debug("db pool metrics updater started", "interval", interval.String())
	return stop
}

func startKVMetrics(ctx context.Context, store kv.Store, name string, logger *slog.Logger, interval time.Duration) func() {
	if store == nil {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}

	stop := startPeriodic(ctx, interval, func() {
		metrics.UpdateKVStats(name, store.Stats())
	})
	logger.Debug("kv metrics updater started", "store", name, "interval", interval.String())
	return stop
}
