// Package router configures the phylogger operational HTTP routes.
//
// Routes configured:
//   - GET /healthz - 200 once a configuration is loaded, 503 before
//   - GET /metrics - Prometheus metrics endpoint
//   - GET /status  - poller state: selection, cursors, sample count, flags
//
// Sample data itself is never served. A status whose last poll is older than
// the stale threshold carries an X-Phyxlog-Stale header.
package router

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/HatiCode/phyxlog/pkg/client"
	"github.com/HatiCode/phyxlog/pkg/errors"
	"github.com/HatiCode/phyxlog/pkg/experiment"
	"github.com/HatiCode/phyxlog/pkg/httpx"
	"github.com/HatiCode/phyxlog/pkg/poller"
)

// StatusSource is the part of the poller the routes read.
type StatusSource interface {
	Status() poller.Status
	Configuration() *experiment.Configuration
}

// SetupRoutes configures HTTP endpoints for phylogger. The handler is wrapped
// in recovery and request logging middleware.
func SetupRoutes(src StatusSource, gatherer prometheus.Gatherer, staleAfter time.Duration, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/healthz", httpx.HealthHandlerWithCheck(func() error {
		if src.Configuration() == nil {
			return errors.ErrNoConfiguration
		}
		return nil
	}))

	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	mux.HandleFunc("/status", handleStatus(src, staleAfter, logger))

	return httpx.RecoveryMiddleware(logger)(httpx.LoggingMiddleware(logger)(mux))
}

// handleStatus returns a handler for GET /status.
func handleStatus(src StatusSource, staleAfter time.Duration, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			httpx.WriteErrorMessage(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		st := src.Status()
		if client.IsStale(st, staleAfter) {
			w.Header().Set(client.StaleHeader, "true")
		}
		if err := httpx.WriteJSON(w, http.StatusOK, st); err != nil {
			logger.Error("failed to write status", "error", err)
		}
	}
}
