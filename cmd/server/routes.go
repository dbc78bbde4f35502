package main

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hishamos/secrets/internal/config"
)

type routeRegistrar interface {
	RegisterRoutes(*http.ServeMux)
}

var errNilConfig = errors.New("config is required")

func buildMux(cfg *config.Config, registrars ...routeRegistrar) (*http.ServeMux, error) {
	if cfg == nil {
		return nil, errNilConfig
	}

	mux := http.NewServeMux()
	for _, r := range registrars {
		if r != nil {
			r.RegisterRoutes(mux)
		}
	}

	if cfg.Metrics.Enabled {
		mux.Handle("GET "+cfg.Metrics.Path, promhttp.Handler())
	}
	return mux, nil
}
