package circuitbreaker

import (
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"github.com/chonkmart/checkout/internal/config"
)

// ServiceType identifies different external services for circuit breaker isolation.
type ServiceType string

const (
	ServiceSolanaRPC ServiceType = "solana_rpc"
	ServiceBuilder   ServiceType = "tx_builder"
	ServiceCatalog   ServiceType = "catalog"
)

// Manager manages circuit breakers for different external services.
// Provides bulkhead isolation - each service has its own circuit breaker
// to prevent cascading failures across service boundaries.
type Manager struct {
	breakers map[ServiceType]*gobreaker.CircuitBreaker
	enabled  bool
}

// BreakerConfig configures a single circuit breaker.
type BreakerConfig struct {
	MaxRequests         uint32
	Interval            time.Duration
	Timeout             time.Duration
	ConsecutiveFailures uint32
	FailureRatio        float64
	MinRequests         uint32
}

// NewManagerFromConfig creates a circuit breaker manager from application config.
func NewManagerFromConfig(cfg config.CircuitBreakerConfig) *Manager {
	m := &Manager{
		breakers: make(map[ServiceType]*gobreaker.CircuitBreaker),
		enabled:  cfg.Enabled,
	}
	if !cfg.Enabled {
		return m
	}

	for service, bc := range map[ServiceType]config.BreakerServiceConfig{
		ServiceSolanaRPC: cfg.SolanaRPC,
		ServiceBuilder:   cfg.Builder,
		ServiceCatalog:   cfg.Catalog,
	} {
		m.breakers[service] = newBreaker(service, BreakerConfig{
			MaxRequests:         bc.MaxRequests,
			Interval:            bc.Interval.Duration,
			Timeout:             bc.Timeout.Duration,
			ConsecutiveFailures: bc.ConsecutiveFailures,
			FailureRatio:        bc.FailureRatio,
			MinRequests:         bc.MinRequests,
		})
	}
	return m
}

// newBreaker constructs a gobreaker instance with defaults applied.
func newBreaker(service ServiceType, cfg BreakerConfig) *gobreaker.CircuitBreaker {
	if cfg.MaxRequests == 0 {
		cfg.MaxRequests = 1
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.ConsecutiveFailures == 0 {
		cfg.ConsecutiveFailures = 5
	}
	if cfg.FailureRatio == 0 {
		cfg.FailureRatio = 0.5
	}
	if cfg.MinRequests == 0 {
		cfg.MinRequests = 10
	}

	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        string(service),
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.ConsecutiveFailures >= cfg.ConsecutiveFailures {
				return true
			}
			if counts.Requests >= cfg.MinRequests {
				ratio := float64(counts.TotalFailures) / float64(counts.Requests)
				return ratio >= cfg.FailureRatio
			}
			return false
		},
	})
}

// Execute runs fn through the circuit breaker for the given service.
// When the manager is disabled (or the service is unknown) fn runs directly.
func (m *Manager) Execute(service ServiceType, fn func() (interface{}, error)) (interface{}, error) {
	if m == nil || !m.enabled {
		return fn()
	}
	cb, ok := m.breakers[service]
	if !ok {
		return fn()
	}
	result, err := cb.Execute(fn)
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return nil, fmt.Errorf("circuit breaker %s: %w", service, err)
	}
	return result, err
}

// State returns the current breaker state for a service (for health reporting).
func (m *Manager) State(service ServiceType) string {
	if m == nil || !m.enabled {
		return "disabled"
	}
	cb, ok := m.breakers[service]
	if !ok {
		return "unknown"
	}
	return cb.State().String()
}
