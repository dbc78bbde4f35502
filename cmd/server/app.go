package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hishamos/secrets/internal/api"
	"github.com/hishamos/secrets/internal/audit"
	"github.com/hishamos/secrets/internal/auth"
	"github.com/hishamos/secrets/internal/config"
	"github.com/hishamos/secrets/internal/healthcheck"
	"github.com/hishamos/secrets/internal/observability"
	"github.com/hishamos/secrets/internal/secret/ref"
	"github.com/hishamos/secrets/internal/secretstore"
)

const metricsInterval = 30 * time.Second

// app holds everything the server builds from configuration.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	tracing *observability.TracerProvider
	secrets *secretstore.Result
	audit   audit.Store
	prober  *healthcheck.Prober
	handler http.Handler
	stops   []func()
	cancel  context.CancelFunc
}

// setupLogger builds the redacting logger described by cfg. The returned
// LevelVar lets configuration reloads change the level.
func setupLogger(cfg config.LoggingConfig, out io.Writer) (*slog.Logger, *slog.LevelVar) {
	level := new(slog.LevelVar)
	level.Set(observability.ParseLevel(cfg.Level))

	logger := observability.NewLogger(observability.LoggerConfig{
		Level:      level,
		Output:     out,
		JSONFormat: cfg.Format != "text",
	}, observability.NewRedactor())
	return logger, level
}

// newApp wires the secret service, audit trail, health checkr and HTTP stack.
// It only fails on errors that make serving impossible; backend problems
// leave the service running with backend "none".
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, resolver *ref.Resolver) (*app, error) {
	if cfg == nil {
		return nil, errNilConfig
	}
	if resolver == nil {
		resolver = ref.NewDefaultResolver()
	}

	for _, w := range cfg.Warnings() {
		logger.Warn("configuration warning", "code", w.Code, "message", w.Message)
	}

	ctx, cancel := context.WithCancel(ctx)
	a := &app{cfg: cfg, logger: logger, cancel: cancel}

	tp, err := observability.InitTracing(ctx, observability.TracingConfig{
		Enabled:     cfg.Tracing.Enabled,
		Endpoint:    cfg.Tracing.Endpoint,
		Protocol:    cfg.Tracing.Protocol,
		ServiceName: cfg.Tracing.ServiceName,
		SampleRate:  cfg.Tracing.SampleRate,
		Insecure:    cfg.Tracing.Insecure,
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("init tracing: %w", err)
	}
	a.tracing = tp

	a.secrets = secretstore.Open(ctx, cfg, secretstore.Deps{
		Logger:   logger,
		Tracer:   tp.Tracer(),
		Resolver: resolver,
	})

	auditLogger, err := a.openAudit(ctx)
	if err != nil {
		_ = a.Close(context.Background())
		return nil, err
	}

	a.prober = healthcheck.NewProber(healthcheck.Config{Enabled: true}, logger)
	if store := a.secrets.KV; store != nil {
		a.prober.Register("kv", store.Ping)
		a.stops = append(a.stops, startKVMetrics(ctx, store, cfg.KV.Type, logger, metricsInterval))
	}
	if pg, ok := a.audit.(*audit.PostgresStore); ok {
		a.prober.Register("audit_db", pg.Ping)
		a.stops = append(a.stops, startDBPoolMetrics(ctx, pg, logger, metricsInterval))
	}
	a.prober.Start(ctx)

	stop, err := startAuditRetention(ctx, cfg, a.audit, logger)
	if err != nil {
		_ = a.Close(context.Background())
		return nil, err
	}
	if stop != nil {
		a.stops = append(a.stops, stop)
	}

	creds, err := resolveCredentials(ctx, cfg.Auth, resolver)
	if err != nil {
		_ = a.Close(context.Background())
		return nil, err
	}

	trustedProxies, invalid := auth.ParseTrustedProxies(cfg.RateLimit.TrustedProxyCIDRs)
	if len(invalid) > 0 && !cfg.RateLimit.Enabled {
		logger.Warn("ignoring invalid trusted proxy entries", "entries", invalid)
	}

	svc := a.secrets.Service
	mux, err := buildMux(cfg,
		api.NewSecretHandler(api.SecretHandlerConfig{
			Service:      svc,
			Audit:        auditLogger,
			Logger:       logger,
			MaxBodyBytes: cfg.Server.MaxBodyBytes,

			TrustedProxies: trustedProxies,
		}),
		api.NewAuditHandler(a.audit, logger),
		api.NewHealthHandler(svc, a.prober, logger),
	)
	if err != nil {
		_ = a.Close(context.Background())
		return nil, err
	}

	limiter, stops, err := setupRateLimiter(ctx, cfg, a.secrets.KV, ungatedPaths(cfg), logger)
	if err != nil {
		_ = a.Close(context.Background())
		return nil, err
	}
	a.stops = append(a.stops, stops...)

	middleware, err := buildMiddlewareStack(cfg, creds, limiter, tp.Tracer(), logger)
	if err != nil {
		_ = a.Close(context.Background())
		return nil, err
	}
	a.handler = middleware(mux)
	return a, nil
}

func (a *app) openAudit(ctx context.Context) (*audit.Logger, error) {
	ac := a.cfg.Audit
	if !ac.Enabled {
		return audit.NewLogger(nil, false, a.logger), nil
	}

	switch ac.Store {
	case "postgres":
		pg, err := audit.OpenPostgres(ctx, audit.PostgresConfig{
			DSN:          ac.PostgresDSN,
			MaxOpenConns: 10,
			MaxIdleConns: 5,
			ConnLifetime: 30 * time.Minute,
		})
		if err != nil {
			return nil, fmt.Errorf("open audit store: %w", err)
		}
		a.audit = pg
	default:
		a.audit = audit.NewMemoryStore(ac.MaxEntries)
	}
	a.logger.Info("audit trail enabled", "store", ac.Store)
	return audit.NewLogger(a.audit, true, a.logger), nil
}

func resolveCredentials(ctx context.Context, cfg config.AuthConfig, resolver *ref.Resolver) (credentials, error) {
	var creds credentials
	var err error
	if cfg.BootstrapToken != "" {
		if creds.BootstrapToken, err = resolver.Resolve(ctx, cfg.BootstrapToken); err != nil {
			return creds, fmt.Errorf("resolve auth.bootstrap_token: %w", err)
		}
	}
	if cfg.JWTSecret != "" {
		if creds.JWTSecret, err = resolver.Resolve(ctx, cfg.JWTSecret); err != nil {
			return creds, fmt.Errorf("resolve auth.jwt_secret: %w", err)
		}
	}
	return creds, nil
}

// Close stops background jobs and releases the backend, audit store and
// tracer in that order.
func (a *app) Close(ctx context.Context) error {
	if a.cancel != nil {
		a.cancel()
	}
	for _, stop := range a.stops {
		if stop != nil {
			stop()
		}
	}
	a.stops = nil

	var errs []error
	if a.secrets != nil && a.secrets.Service != nil {
		if err := a.secrets.Service.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close secret backend: %w", err))
		}
	}
	if a.audit != nil {
		if err := a.audit.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close audit store: %w", err))
		}
	}
	if a.tracing != nil {
		if err := a.tracing.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown tracing: %w", err))
		}
	}
	return errors.Join(errs...)
}
