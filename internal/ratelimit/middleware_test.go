package ratelimit

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func chainHandlers(cfg Config) http.Handler {
	var handler http.Handler = okHandler()
	mws := Middleware(cfg)
	for i := len(mws) - 1; i >= 0; i-- {
		handler = mws[i](handler)
	}
	return handler
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if !cfg.GlobalEnabled {
		t.Error("Expected global rate limiting to be enabled by default")
	}
	if cfg.GlobalLimit != 1000 {
		t.Errorf("Expected global limit 1000, got %d", cfg.GlobalLimit)
	}
	if !cfg.PerIPEnabled {
		t.Error("Expected per-IP rate limiting to be enabled by default")
	}
}

func TestMiddlewareDisabled(t *testing.T) {
	handler := chainHandlers(Config{})

	for i := 0; i < 100; i++ {
		req := httptest.NewRequest("GET", "/test", nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("Request %d: expected 200, got %d", i, w.Code)
		}
	}
}

func TestGlobalLimitEnforced(t *testing.T) {
	handler := chainHandlers(Config{
		GlobalEnabled: true,
		GlobalLimit:   5,
		GlobalWindow:  time.Minute,
	})

	var limited int
	for i := 0; i < 10; i++ {
		req := httptest.NewRequest("GET", "/test", nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		if w.Code == http.StatusTooManyRequests {
			limited++

			if w.Header().Get("Retry-After") == "" {
				t.Error("expected Retry-After header on 429")
			}
			var body rateLimitResponse
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
				t.Fatalf("decode 429 body: %v", err)
			}
			if body.Error != "rate_limit_exceeded" {
				t.Errorf("unexpected error field: %s", body.Error)
			}
			if body.RetryAfterSeconds != 60 {
				t.Errorf("unexpected retry after: %d", body.RetryAfterSeconds)
			}
		}
	}

	if limited != 5 {
		t.Errorf("expected 5 limited requests, got %d", limited)
	}
}

func TestPerIPLimitIsolatesClients(t *testing.T) {
	handler := chainHandlers(Config{
		PerIPEnabled: true,
		PerIPLimit:   3,
		PerIPWindow:  time.Minute,
	})

	send := func(addr string) int {
		req := httptest.NewRequest("GET", "/test", nil)
		req.RemoteAddr = addr
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w.Code
	}

	for i := 0; i < 3; i++ {
		if code := send("10.0.0.1:1234"); code != http.StatusOK {
			t.Fatalf("request %d from first client: expected 200, got %d", i, code)
		}
	}
	if code := send("10.0.0.1:1234"); code != http.StatusTooManyRequests {
		t.Errorf("expected first client limited, got %d", code)
	}
	// A different client is unaffected.
	if code := send("10.0.0.2:1234"); code != http.StatusOK {
		t.Errorf("expected second client allowed, got %d", code)
	}
}
