package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/aaronlmathis/bladetemp/internal/config"
	"github.com/aaronlmathis/bladetemp/internal/middleware"
	"github.com/aaronlmathis/bladetemp/internal/stream"
	"github.com/aaronlmathis/bladetemp/internal/temperature"
	"github.com/aaronlmathis/bladetemp/internal/version"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// TemperatureService produces the per-node temperature report for a backend.
type TemperatureService interface {
	Temperatures(ctx context.Context, baseURL string) (*temperature.Response, error)
}

// Server represents the API server
type Server struct {
	logger       *zap.Logger
	config       *config.Config
	router       chi.Router
	temperatures TemperatureService
	hub          *stream.Hub
}

// NewServer creates a new API server. hub may be nil, in which case the
// stream endpoint is not registered.
func NewServer(logger *zap.Logger, cfg *config.Config, temperatures TemperatureService, hub *stream.Hub) *Server {
	s := &Server{
		logger:       logger,
		config:       cfg,
		router:       chi.NewRouter(),
		temperatures: temperatures,
		hub:          hub,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupMiddleware() {
	s.router.Use(chimw.RequestID)
	s.router.Use(chimw.RealIP)
	s.router.Use(chimw.Logger)
	s.router.Use(chimw.Recoverer)
	s.router.Use(middleware.RequestIDResponseMiddleware)
	s.router.Use(middleware.PrometheusMiddleware)
	s.router.Use(middleware.CORS)
}

func (s *Server) setupRoutes() {
	// Health endpoints
	s.router.Get("/", s.handleHealth)
	s.router.Get("/health", s.handleHealth)

	s.router.Get("/version", s.handleVersion)
	s.router.Handle("/metrics", promhttp.Handler())

	s.router.Route("/api/temperatures", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(chimw.Timeout(s.config.RequestTimeout()))
			if rpm := s.config.RateLimits.TemperaturesPerMinute; rpm > 0 {
				r.Use(middleware.NewRateLimiter(s.logger, rpm).Handler)
			}
			r.Use(middleware.NewETagMiddleware(s.logger).Middleware)

			r.Get("/", s.handleTemperatures)
		})

		if s.hub != nil {
			r.Get("/stream", s.hub.ServeWS)
		}
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(version.Get())
}
