// Package api is the HTTP front end for cmd/batchd: an admission route
// backed by the configured batcher.Engine, plus health and metrics
// endpoints, adapted from internal/api/routes.go and internal/api/server.go.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/FairForge/batchd/internal/auth"
	"github.com/FairForge/batchd/internal/batcher"
	"github.com/FairForge/batchd/internal/logging"
	"github.com/FairForge/batchd/internal/ratelimit"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// maxRequestBody bounds the size of a single admission request body.
const maxRequestBody = 1 << 20 // 1 MiB

// statusForSubmitError maps an Engine.Submit error to an HTTP status.
func statusForSubmitError(err error) int {
	switch {
	case errors.Is(err, batcher.ErrQueueFull):
		return http.StatusServiceUnavailable
	case errors.Is(err, batcher.ErrEngineStopped):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadRequest
	}
}

// Submitter is the engine-agnostic surface the HTTP layer needs: submit
// one item as raw JSON, get back its result as raw JSON. main.go builds
// the concrete implementation for whichever batcher.Engine[T, S] the
// configured adapter instantiates, since chi's router cannot itself be
// generic over T and S.
type Submitter interface {
	SubmitJSON(ctx context.Context, body []byte) (json.RawMessage, error)
}

// Server wires the admission route to a Submitter and exposes health
// and metrics endpoints alongside it.
type Server struct {
	log       *zap.Logger
	router    chi.Router
	http      *http.Server
	submitter Submitter
	startTime time.Time
}

// NewServer builds a Server listening on addr. auther and limiter are
// optional: either may be nil to skip that middleware (e.g. disabled
// auth in local development).
func NewServer(addr string, log *zap.Logger, submitter Submitter, auther *auth.Validator, limiter *ratelimit.Limiter) *Server {
	s := &Server{
		log:       log,
		router:    chi.NewRouter(),
		submitter: submitter,
		startTime: time.Now(),
	}

	s.router.Use(logging.RequestLogger(log))
	if limiter != nil {
		s.router.Use(limiter.Middleware)
	}

	s.router.Get("/v1/health", s.handleHealth)
	s.router.Handle("/metrics", promhttp.Handler())

	s.router.Route("/v1/items", func(r chi.Router) {
		if auther != nil {
			r.Use(auther.Middleware)
		}
		r.Post("/", s.handleSubmit)
	})

	s.http = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	return s
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status": "ok",
		"uptime": time.Since(s.startTime).String(),
	})
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	result, err := s.submitter.SubmitJSON(r.Context(), body)
	if err != nil {
		s.writeSubmitError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(result)
}

func (s *Server) writeSubmitError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusForSubmitError(err)
	s.log.Warn("submit failed",
		zap.String("correlation_id", logging.CorrelationID(r.Context())),
		zap.Int("status", status),
		zap.Error(err),
	)
	http.Error(w, err.Error(), status)
}

// Start blocks serving HTTP until the server is shut down.
func (s *Server) Start() error {
	s.log.Info("starting http server", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api: serve: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
