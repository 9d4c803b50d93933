package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/redwoodjs/sdk-sub000/server/internal/config"
	"github.com/redwoodjs/sdk-sub000/server/internal/coordinator"
	"github.com/redwoodjs/sdk-sub000/server/internal/drain"
)

// New constructs the HTTP handler for the coordinator. /metrics is served
// here only when the metrics address matches the main port.
func New(cfg config.ServerConfig, hub *coordinator.Hub, gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	for _, m := range middlewareChain() {
		r.Use(m)
	}

	r.Get("/healthz", healthHandler(hub.Drain()))
	r.Route("/api", func(ar chi.Router) {
		if len(cfg.AllowedOrigins) > 0 {
			ar.Use(cors.Handler(cors.Options{
				AllowedOrigins: cfg.AllowedOrigins,
				AllowedMethods: []string{"GET", "OPTIONS"},
				AllowedHeaders: []string{"*"},
			}))
		}
		ar.With(bearerAuth(cfg.APIKey)).Get("/state", stateHandler(hub))
	})
	r.Handle(cfg.WSPath, hub)

	if gatherer != nil && cfg.MetricsAddr == fmt.Sprintf(":%d", cfg.Port) {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

// MetricsHandler serves metrics on a dedicated listener.
func MetricsHandler(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return mux
}

func healthHandler(ctl *drain.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := ctl.Status()
		code := http.StatusOK
		if status == drain.StatusDraining {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, map[string]string{"status": status})
	}
}

func stateHandler(hub *coordinator.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, hub.Snapshot())
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
