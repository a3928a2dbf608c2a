package ratelimit

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"

	"github.com/chonkmart/checkout/internal/metrics"
)

// Config holds rate limiting configuration.
type Config struct {
	// Global rate limiting (across all users)
	GlobalEnabled bool
	GlobalLimit   int           // requests per window
	GlobalWindow  time.Duration // time window

	// Per-IP rate limiting
	PerIPEnabled bool
	PerIPLimit   int
	PerIPWindow  time.Duration

	// Metrics collector (optional)
	Metrics *metrics.Metrics
}

// rateLimitResponse represents the JSON error response for rate limit exceeded.
type rateLimitResponse struct {
	Error             string `json:"error"`
	Message           string `json:"message"`
	RetryAfterSeconds int    `json:"retry_after_seconds"`
}

// DefaultConfig returns sensible default rate limits.
// These are generous limits designed to stop obvious spam while not restricting legitimate use.
func DefaultConfig() Config {
	return Config{
		GlobalEnabled: true,
		GlobalLimit:   1000,
		GlobalWindow:  1 * time.Minute,

		PerIPEnabled: true,
		PerIPLimit:   120,
		PerIPWindow:  1 * time.Minute,
	}
}

// limitExceededHandler writes the standard 429 response and records the hit.
func limitExceededHandler(limitType string, windowSeconds int, collector *metrics.Metrics) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		collector.ObserveRateLimit(limitType)

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Retry-After", strconv.Itoa(windowSeconds))
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(rateLimitResponse{
			Error:             "rate_limit_exceeded",
			Message:           "Too many requests, slow down",
			RetryAfterSeconds: windowSeconds,
		})
	}
}

// Middleware builds the configured rate limiting middleware chain.
// Returned middlewares are applied outermost-first: global, then per-IP.
func Middleware(cfg Config) []func(http.Handler) http.Handler {
	var chain []func(http.Handler) http.Handler

	if cfg.GlobalEnabled && cfg.GlobalLimit > 0 {
		chain = append(chain, httprate.Limit(
			cfg.GlobalLimit,
			cfg.GlobalWindow,
			httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
				return "global", nil
			}),
			httprate.WithLimitHandler(limitExceededHandler("global", int(cfg.GlobalWindow.Seconds()), cfg.Metrics)),
		))
	}

	if cfg.PerIPEnabled && cfg.PerIPLimit > 0 {
		chain = append(chain, httprate.Limit(
			cfg.PerIPLimit,
			cfg.PerIPWindow,
			httprate.WithKeyFuncs(httprate.KeyByIP),
			httprate.WithLimitHandler(limitExceededHandler("per_ip", int(cfg.PerIPWindow.Seconds()), cfg.Metrics)),
		))
	}

	return chain
}
