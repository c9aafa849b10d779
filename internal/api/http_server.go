// Package api serves provider and payment webhooks and a small operator API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/adiga-code/numerology/internal/config"
	"github.com/adiga-code/numerology/internal/logging"
	"github.com/adiga-code/numerology/internal/models"
	"github.com/adiga-code/numerology/internal/payment"
	"github.com/adiga-code/numerology/internal/provider"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	generationTokenHeader = "X-Generation-Token"
	requestIDHeader       = "X-Request-Id"
	maxBodyBytes          = 1 << 20
)

type CallbackHandler interface {
	OnCallback(ctx context.Context, result provider.Result) error
}

type GatewayHandler interface {
	HandleGatewayNotification(ctx context.Context, n *payment.Notification) error
}

type OrderReader interface {
	GetOrderByExternalID(ctx context.Context, externalID string) (*models.Order, error)
	GetOrderDetails(ctx context.Context, id int64) (*models.OrderDetails, error)
	OrdersBetween(ctx context.Context, from, to time.Time) ([]*models.Order, error)
}

type Pinger interface {
	PingContext(ctx context.Context) error
}

// Deps are the services behind the HTTP routes. Nil handlers disable their
// routes with 503.
type Deps struct {
	Callbacks       CallbackHandler
	Payments        GatewayHandler
	Orders          OrderReader
	Catalog         *models.Catalog
	DB              Pinger
	Redis           *redis.Client
	GenerationToken string
	WebhookSecret   string
}

// HTTPServer exposes webhooks and the operator API.
type HTTPServer struct {
	deps   Deps
	auth   *HTTPAuth
	router chi.Router
	server *http.Server
	logger *zerolog.Logger
}

func NewHTTPServer(cfg config.APIConfig, deps Deps, logger *zerolog.Logger) *HTTPServer {
	srv := &HTTPServer{
		deps:   deps,
		auth:   NewHTTPAuth(cfg),
		logger: logging.Component(logger, "http"),
	}

	r := chi.NewRouter()
	r.Use(srv.requestLogger)

	r.Get("/healthz", srv.handleHealth)

	r.Route("/webhook", func(r chi.Router) {
		r.Post("/generation/result", srv.handleGenerationResult)
		r.Post("/payments/gateway", srv.handleGatewayNotification)
	})

	r.Route("/api/v1/orders", func(r chi.Router) {
		r.With(srv.auth.Require(permExportOrders)).Get("/export", srv.handleExport)
		r.With(srv.auth.Require(permReadOrders)).Get("/{externalID}", srv.handleOrder)
	})

	srv.router = r
	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
	return srv
}

func (s *HTTPServer) Handler() http.Handler { return s.router }

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := map[string]string{}
	healthy := true
	if s.deps.DB != nil {
		checks["db"] = "ok"
		if err := s.deps.DB.PingContext(ctx); err != nil {
			checks["db"] = err.Error()
			healthy = false
		}
	}
	if s.deps.Redis != nil {
		checks["redis"] = "ok"
		if err := s.deps.Redis.Ping(ctx).Err(); err != nil {
			// без redis бот работает на памяти
			checks["redis"] = err.Error()
		}
	}

	statusCode := http.StatusOK
	status := "ok"
	if !healthy {
		statusCode = http.StatusServiceUnavailable
		status = "degraded"
	}
	writeJSON(w, statusCode, map[string]any{"status": status, "checks": checks})
}

func (s *HTTPServer) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, requestID)

		log := s.logger.With().Str("request_id", requestID).Logger()
		r = r.WithContext(log.WithContext(r.Context()))

		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
