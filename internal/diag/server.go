// Package diag serves read-only diagnostics: prometheus metrics, liveness and
// the current session and history as JSON.
package diag

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"lumen/internal/domain"
)

// StatusSource exposes the live session.
type StatusSource interface {
	Status() domain.Status
	History() []domain.HistoryEntry
}

// Server is the diagnostics HTTP endpoint.
type Server struct {
	srv    *http.Server
	logger zerolog.Logger
}

func NewServer(addr string, source StatusSource, gatherer prometheus.Gatherer, logger zerolog.Logger) *Server {
	logger = logger.With().Str("component", "diag").Logger()
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           NewRouter(source, gatherer, logger),
			ReadHeaderTimeout: 5 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		logger: logger,
	}
}

// NewRouter builds the diagnostics routes.
func NewRouter(source StatusSource, gatherer prometheus.Gatherer, logger zerolog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/healthz"))

	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	r.Route("/api", func(r chi.Router) {
		r.Get("/status", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, logger, source.Status())
		})
		r.Get("/history", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, logger, map[string]any{"history": source.History()})
		})
	})
	return r
}

// Start listens in the background. The returned address is the bound one,
// which differs from the configured one when the port is 0.
func (s *Server) Start() (string, error) {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return "", err
	}
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("diagnostics server stopped")
		}
	}()
	s.logger.Info().Str("addr", ln.Addr().String()).Msg("diagnostics server listening")
	return ln.Addr().String(), nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, logger zerolog.Logger, v any) {
	raw, err := sonic.Marshal(v)
	if err != nil {
		logger.Error().Err(err).Msg("encode diagnostics response")
		http.Error(w, "encode failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(raw)
}
