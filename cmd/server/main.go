// Package main is the entry point for the HishamOS secret management server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hishamos/secrets/internal/config"
	"github.com/hishamos/secrets/internal/observability"
	"github.com/hishamos/secrets/internal/secret/local"
)

const shutdownTimeout = 30 * time.Second

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to configuration file")
	generateKey := flag.Bool("generate-key", false, "print a new local encryption key and exit")
	validate := flag.Bool("validate", false, "validate the configuration file and exit")
	envFile := flag.String("env-file", ".env", "optional dotenv file loaded before the configuration")
	flag.Parse()

	if *generateKey {
		key, err := local.GenerateKey()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Println(key)
		return
	}

	bootLogger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	if loaded, err := loadEnvFile(*envFile); err != nil {
		bootLogger.Error("failed to load env file", "path", *envFile, "error", err)
		os.Exit(1)
	} else if loaded {
		bootLogger.Info("loaded environment file", "path", *envFile)
	}

	cfgManager, err := config.NewManager(*configPath, bootLogger)
	if err != nil {
		bootLogger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	cfg := cfgManager.Get()

	if *validate {
		for _, w := range cfg.Warnings() {
			fmt.Fprintf(os.Stderr, "warning: %s: %s\n", w.Code, w.Message)
		}
		fmt.Println("configuration OK")
		return
	}

	logger, level := setupLogger(cfg.Logging, os.Stdout)
	slog.SetDefault(logger)
	logger.Info("starting secret management server", "config", *configPath)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfgManager.OnChange(func(next *config.Config) {
		level.Set(observability.ParseLevel(next.Logging.Level))
		logger.Info("configuration reloaded; secret backend settings apply on restart",
			"log_level", next.Logging.Level)
	})
	if err := cfgManager.Watch(ctx); err != nil {
		logger.Warn("config hot-reload disabled", "error", err)
	}

	a, err := newApp(ctx, cfg, logger, nil)
	if err != nil {
		logger.Error("failed to initialize server", "error", err)
		_ = cfgManager.Close()
		os.Exit(1)
	}
	logger.Info("secret backend selected", "backend", a.secrets.Service.Backend())

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      a.handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	exitCode := 0
	select {
	case <-ctx.Done():
		logger.Info("shutting down server...")
	case err := <-serveErr:
		if err != nil {
			logger.Error("server error", "error", err)
			exitCode = 1
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	if err := a.Close(shutdownCtx); err != nil {
		logger.Error("cleanup error", "error", err)
	}
	if err := cfgManager.Close(); err != nil {
		logger.Warn("config watcher close error", "error", err)
	}

	logger.Info("server stopped")
	if exitCode != 0 {
		os.Exit(exitCode)
	}
}
