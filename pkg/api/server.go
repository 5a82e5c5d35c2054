package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aundhe1m/backy-agent/pkg/config"
	"github.com/aundhe1m/backy-agent/pkg/drives"
	"github.com/aundhe1m/backy-agent/pkg/log"
	"github.com/aundhe1m/backy-agent/pkg/metrics"
	"github.com/aundhe1m/backy-agent/pkg/operations"
	"github.com/aundhe1m/backy-agent/pkg/pool"
)

// Server is the HTTP presentation layer over the operational core.
type Server struct {
	cfg        *config.Config
	drives     *drives.Cache
	operator   *pool.Operator
	inventory  *pool.Inventory
	reconciler *pool.Reconciler
	registry   *operations.Registry
	logger     zerolog.Logger
}

// NewServer creates the API server.
func NewServer(
	cfg *config.Config,
	driveCache *drives.Cache,
	operator *pool.Operator,
	inventory *pool.Inventory,
	reconciler *pool.Reconciler,
	registry *operations.Registry,
) *Server {
	return &Server{
		cfg:        cfg,
		drives:     driveCache,
		operator:   operator,
		inventory:  inventory,
		reconciler: reconciler,
		registry:   registry,
		logger:     log.WithComponent("api"),
	}
}

// Router builds the HTTP routing table. Health and metrics endpoints are
// exempt from API-key auth; everything under /api/v1 requires the key.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.observe)

	r.Get("/health", metrics.HealthHandler())
	r.Get("/ready", metrics.ReadyHandler())
	r.Get("/live", metrics.LiveHandler())
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.requireAPIKey)

		r.Get("/drives", s.listDrives)
		r.Get("/drives/{serial}/status", s.driveStatus)
		r.Post("/drives/processes/kill", s.killProcesses)

		r.Get("/pools", s.listPools)
		r.Post("/pools", s.createPool)
		r.Post("/pools/validate", s.validatePools)
		r.Get("/pools/{guid}", s.getPool)
		r.Get("/pools/{guid}/output", s.getPoolOutput)
		r.Post("/pools/{guid}/mount", s.mountPool)
		r.Post("/pools/{guid}/unmount", s.unmountPool)
		r.Delete("/pools/{guid}", s.removePool)
	})

	return r
}

// Run serves the API until ctx is cancelled, then drains connections.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(s.cfg.ListenPort),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Int("port", s.cfg.ListenPort).Msg("API server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("api server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("api server shutdown failed: %w", err)
		}
		s.logger.Info().Msg("API server stopped")
		return nil
	}
}

// requireAPIKey rejects requests without the shared X-Api-Key header. An
// empty configured key disables the check.
func (s *Server) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.APIKey != "" && r.Header.Get("X-Api-Key") != s.cfg.APIKey {
			writeJSON(w, http.StatusUnauthorized, errorBody("invalid or missing API key"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// observe records request metrics and an access log line.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		timer := metrics.NewTimer()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		timer.ObserveDurationVec(metrics.APIRequestDuration, r.Method)
		metrics.APIRequestsTotal.WithLabelValues(r.Method, strconv.Itoa(rec.status)).Inc()
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", timer.Duration()).
			Msg("Request handled")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
