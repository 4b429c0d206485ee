package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kkkkikiki/loyalty/internal/sweeper"
)

// Pinger reports store health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RouterOptions holds the dependencies of the non-RPC routes.
type RouterOptions struct {
	AllowedOrigins []string
	DB             Pinger
	Sweeper        *sweeper.Sweeper
}

// NewRouter creates a router serving the RPC procedures, health checks,
// metrics and the manual sweep trigger.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type",
			"Connect-Protocol-Version", "Connect-Timeout-Ms"},
		ExposedHeaders: []string{reasonHeader, availableHeader},
		MaxAge:         300,
	}))

	h.Mount(r)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		hostname, _ := os.Hostname()
		writeJSON(w, http.StatusOK, map[string]string{
			"status":   "ok",
			"service":  "loyalty-core",
			"hostname": hostname,
		})
	})

	r.Get("/health/db", func(w http.ResponseWriter, r *http.Request) {
		if opts.DB == nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "error", "message": "no database"})
			return
		}
		if err := opts.DB.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "error", "message": "database unavailable"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "database": "connected"})
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Post("/admin/sweep", func(w http.ResponseWriter, r *http.Request) {
		sw := opts.Sweeper
		if sw == nil {
			sw = h.sweeper
		}
		res, err := sw.SweepOnce(r.Context())
		if err != nil {
			log.Printf("[Admin] Sweep failed: %v", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"status": "error", "message": "sweep failed"})
			return
		}
		writeJSON(w, http.StatusOK, res)
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[HTTP] failed to write response: %v", err)
	}
}
