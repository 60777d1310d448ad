// Package ratelimit bounds the rate at which cmd/batchd accepts HTTP
// requests, independent of the engine's own admission backpressure
// (batcher.ErrQueueFull): this limits arrival rate, the engine enforces
// queue capacity.
package ratelimit

import (
	"net/http"

	"golang.org/x/time/rate"
)

// Limiter wraps a token-bucket rate.Limiter shared across all requests.
type Limiter struct {
	limiter *rate.Limiter
}

// New creates a Limiter allowing ratePerSecond requests on average with
// bursts up to burst.
func New(ratePerSecond float64, burst int) *Limiter {
	return &Limiter{limiter: rate.NewLimiter(rate.Limit(ratePerSecond), burst)}
}

// Allow reports whether a request may proceed right now.
func (l *Limiter) Allow() bool {
	return l.limiter.Allow()
}

// Middleware rejects requests with 429 once the bucket is empty.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow() {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte("rate limit exceeded"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
