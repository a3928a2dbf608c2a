package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/chonkmart/checkout/internal/catalog"
	"github.com/chonkmart/checkout/internal/circuitbreaker"
	"github.com/chonkmart/checkout/internal/config"
	"github.com/chonkmart/checkout/internal/logger"
	"github.com/chonkmart/checkout/internal/metrics"
	"github.com/chonkmart/checkout/internal/purchase"
	"github.com/chonkmart/checkout/internal/ratelimit"
)

var (
	serverStartTime = time.Now()
)

// Server wires handlers, middleware, and dependencies.
type Server struct {
	handlers
	httpServer *http.Server
}

type handlers struct {
	cfg      *config.Config
	registry *purchase.Registry
	catalog  catalog.Repository
	wallet   purchase.Wallet
	breakers *circuitbreaker.Manager
	metrics  *metrics.Metrics
	logger   zerolog.Logger
}

// New builds the HTTP server with configured router.
func New(cfg *config.Config, registry *purchase.Registry, catalogRepo catalog.Repository, buyerWallet purchase.Wallet, breakers *circuitbreaker.Manager, metricsCollector *metrics.Metrics, appLogger zerolog.Logger) *Server {
	router := chi.NewRouter()

	s := &Server{
		handlers: handlers{
			cfg:      cfg,
			registry: registry,
			catalog:  catalogRepo,
			wallet:   buyerWallet,
			breakers: breakers,
			metrics:  metricsCollector,
			logger:   appLogger,
		},
		httpServer: &http.Server{
			Addr:         cfg.Server.Address,
			ReadTimeout:  cfg.Server.ReadTimeout.Duration,
			WriteTimeout: cfg.Server.WriteTimeout.Duration,
			IdleTimeout:  cfg.Server.IdleTimeout.Duration,
			Handler:      router,
		},
	}

	s.configureRouter(router)
	return s
}

func (s *Server) configureRouter(router chi.Router) {
	cfg := s.cfg

	if len(cfg.Server.CORSAllowedOrigins) > 0 {
		router.Use(cors.New(cors.Options{
			AllowedOrigins:   cfg.Server.CORSAllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"*"},
			AllowCredentials: false,
			MaxAge:           300,
		}).Handler)
	}

	// Security headers first so every response carries them
	router.Use(securityHeadersMiddleware)

	// Structured logging before RequestID so the context logger propagates
	router.Use(logger.Middleware(s.logger))
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)

	for _, mw := range ratelimit.Middleware(ratelimit.Config{
		GlobalEnabled: cfg.RateLimit.GlobalEnabled,
		GlobalLimit:   cfg.RateLimit.GlobalLimit,
		GlobalWindow:  cfg.RateLimit.GlobalWindow.Duration,
		PerIPEnabled:  cfg.RateLimit.PerIPEnabled,
		PerIPLimit:    cfg.RateLimit.PerIPLimit,
		PerIPWindow:   cfg.RateLimit.PerIPWindow.Duration,
		Metrics:       s.metrics,
	}) {
		router.Use(mw)
	}

	// Lightweight endpoints with a short timeout (health, metrics, listings)
	router.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(5 * time.Second))
		r.Get("/health", s.handlers.health)
		r.Get("/checkout/v1/items", s.handlers.listItems)
		// Protected by optional admin API key (CHONK_ADMIN_METRICS_API_KEY)
		r.With(adminMetricsAuth(cfg.Server.AdminMetricsAPIKey)).Handle("/metrics", promhttp.Handler())
	})

	// Purchase flow endpoints; submission covers build + sign + broadcast
	router.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))

		r.Post("/checkout/v1/purchases", s.handlers.startPurchase)
		r.Get("/checkout/v1/purchases/{purchaseID}", s.handlers.getPurchase)
		r.Post("/checkout/v1/purchases/{purchaseID}/pay", s.handlers.payPurchase)
		r.Delete("/checkout/v1/purchases/{purchaseID}", s.handlers.cancelPurchase)
		r.Get("/checkout/v1/purchases/{purchaseID}/download", s.handlers.downloadPurchase)
	})
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
