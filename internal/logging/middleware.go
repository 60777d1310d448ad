// Package logging provides the HTTP request-logging middleware for
// cmd/batchd: one structured zap line per request, tagged with a
// correlation ID threaded through the request's context.
package logging

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type contextKey string

// CorrelationIDKey is the context key RequestLogger stores the
// per-request correlation ID under.
const CorrelationIDKey contextKey = "correlation_id"

// CorrelationID returns the correlation ID stashed in ctx by
// RequestLogger, or "" if none is present.
func CorrelationID(ctx context.Context) string {
	id, _ := ctx.Value(CorrelationIDKey).(string)
	return id
}

// statusRecorder captures the status code a handler writes, since
// http.ResponseWriter does not expose it after the fact.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// RequestLogger returns middleware that assigns each request a
// correlation ID (reusing an inbound X-Correlation-ID header if
// present), stores it in the request's context, and logs the request's
// method, path, status, and latency once it completes.
func RequestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get("X-Correlation-ID")
			if id == "" {
				id = uuid.New().String()
			}
			w.Header().Set("X-Correlation-ID", id)

			ctx := context.WithValue(r.Context(), CorrelationIDKey, id)
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			start := time.Now()
			next.ServeHTTP(rec, r.WithContext(ctx))
			elapsed := time.Since(start)

			log.Info("http request",
				zap.String("correlation_id", id),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", rec.status),
				zap.Duration("elapsed", elapsed),
			)
		})
	}
}
