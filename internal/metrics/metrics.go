package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the checkout service.
type Metrics struct {
	// Purchase flow metrics
	PurchasesStartedTotal *prometheus.CounterVec
	PurchasesPaidTotal    *prometheus.CounterVec
	SubmissionsTotal      *prometheus.CounterVec
	ActiveFlows           prometheus.Gauge

	// Confirmation poller metrics
	PollCyclesTotal   *prometheus.CounterVec
	ConfirmationDelay *prometheus.HistogramVec

	// RPC call metrics
	RPCCallsTotal   *prometheus.CounterVec
	RPCCallDuration *prometheus.HistogramVec
	RPCErrorsTotal  *prometheus.CounterVec

	// Order ledger metrics
	OrdersRecordedTotal *prometheus.CounterVec

	// Rate limiting metrics
	RateLimitHitsTotal *prometheus.CounterVec
}

// New creates and registers all Prometheus metrics.
func New(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		PurchasesStartedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chonkmart_purchases_started_total",
				Help: "Total number of purchase flows started",
			},
			[]string{"item"},
		),
		PurchasesPaidTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chonkmart_purchases_paid_total",
				Help: "Total number of purchase flows that reached the paid state",
			},
			[]string{"item", "via"},
		),
		SubmissionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chonkmart_submissions_total",
				Help: "Total number of payment submission attempts by outcome",
			},
			[]string{"outcome"},
		),
		ActiveFlows: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "chonkmart_active_flows",
				Help: "Number of purchase flows currently alive",
			},
		),
		PollCyclesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chonkmart_poll_cycles_total",
				Help: "Total confirmation poll cycles by outcome",
			},
			[]string{"outcome"},
		),
		ConfirmationDelay: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "chonkmart_confirmation_delay_seconds",
				Help:    "Time from submission to observed confirmation",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"commitment"},
		),
		RPCCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chonkmart_rpc_calls_total",
				Help: "Total Solana RPC calls",
			},
			[]string{"method", "network"},
		),
		RPCCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "chonkmart_rpc_call_duration_seconds",
				Help:    "Solana RPC call latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "network"},
		),
		RPCErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chonkmart_rpc_errors_total",
				Help: "Total failed Solana RPC calls",
			},
			[]string{"method", "network"},
		),
		OrdersRecordedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chonkmart_orders_recorded_total",
				Help: "Total fulfillment records written to the order ledger",
			},
			[]string{"item"},
		),
		RateLimitHitsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chonkmart_rate_limit_hits_total",
				Help: "Total requests rejected by rate limiting",
			},
			[]string{"limit_type"},
		),
	}
}

// ObserveRPCCall records an RPC call with duration and error status.
func (m *Metrics) ObserveRPCCall(method, network string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.RPCCallsTotal.WithLabelValues(method, network).Inc()
	m.RPCCallDuration.WithLabelValues(method, network).Observe(duration.Seconds())
	if err != nil {
		m.RPCErrorsTotal.WithLabelValues(method, network).Inc()
	}
}

// ObservePollCycle records the outcome of one confirmation poll cycle.
func (m *Metrics) ObservePollCycle(outcome string) {
	if m == nil {
		return
	}
	m.PollCyclesTotal.WithLabelValues(outcome).Inc()
}

// ObserveRateLimit records a rate limit rejection.
func (m *Metrics) ObserveRateLimit(limitType string) {
	if m == nil {
		return
	}
	m.RateLimitHitsTotal.WithLabelValues(limitType).Inc()
}
