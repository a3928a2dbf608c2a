package httputil

import (
	"net/http"
	"time"
)

// NewClient creates a new HTTP client with the given timeout and pooled transport settings.
// This provides consistent configuration across all HTTP clients in the application
// (transaction builder requests, catalog calls).
func NewClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}
