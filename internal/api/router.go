// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/hwidgate/hwidgate/internal/api/handlers"
	apimiddleware "github.com/hwidgate/hwidgate/internal/api/middleware"
	"github.com/hwidgate/hwidgate/internal/metrics"
	"github.com/hwidgate/hwidgate/internal/web/swagger"
)

// Dependencies holds all the dependencies needed for the API
type Dependencies struct {
	LicenseService handlers.LicenseService
	MetricsManager *metrics.Manager
}

// NewRouter creates and configures the main application router
func NewRouter(deps *Dependencies) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(apimiddleware.HTTPLogger)
	r.Use(middleware.Recoverer)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte("License Server is Live!"))
	})

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	licenseHandler := handlers.NewLicenseHandler(deps.LicenseService, deps.MetricsManager)
	licenseHandler.RegisterRoutes(r)

	if deps.MetricsManager != nil {
		metricsHandler := handlers.NewMetricsHandler(deps.MetricsManager)
		r.Get("/metrics", metricsHandler.ServeMetrics)
	}

	swaggerHandler, err := swagger.NewHandler()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load OpenAPI spec")
	} else {
		swaggerHandler.RegisterRoutes(r)
	}

	return r
}
