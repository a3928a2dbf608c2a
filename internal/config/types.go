package config

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration to support string based YAML decoding.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses duration values expressed as Go-style strings or numbers interpreted as seconds.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		raw := strings.TrimSpace(value.Value)
		if raw == "" {
			d.Duration = 0
			return nil
		}
		parsed, err := time.ParseDuration(raw)
		if err == nil {
			d.Duration = parsed
			return nil
		}
		secs, convErr := time.ParseDuration(fmt.Sprintf("%ss", raw))
		if convErr == nil {
			d.Duration = secs
			return nil
		}
		return fmt.Errorf("invalid duration value %q: %w", raw, err)
	default:
		return fmt.Errorf("unsupported duration node kind: %v", value.Kind)
	}
}

// MarshalYAML renders the duration as a string to keep config edits human-friendly.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// Config holds application level configuration aggregated from file and environment variables.
type Config struct {
	Server         ServerConfig         `yaml:"server"`
	Logging        LoggingConfig        `yaml:"logging"`
	Solana         SolanaConfig         `yaml:"solana"`
	Builder        BuilderConfig        `yaml:"builder"`
	Wallet         WalletConfig         `yaml:"wallet"`
	Catalog        CatalogConfig        `yaml:"catalog"`
	Purchase       PurchaseConfig       `yaml:"purchase"`
	RateLimit      RateLimitConfig      `yaml:"rate_limit"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Address            string   `yaml:"address"`
	ReadTimeout        Duration `yaml:"read_timeout"`
	WriteTimeout       Duration `yaml:"write_timeout"`
	IdleTimeout        Duration `yaml:"idle_timeout"`
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`
	AdminMetricsAPIKey string   `yaml:"admin_metrics_api_key"` // Optional API key to protect /metrics (leave empty to disable protection)
}

// LoggingConfig holds structured logging configuration.
type LoggingConfig struct {
	Level       string `yaml:"level"`  // debug, info, warn, error
	Format      string `yaml:"format"` // json, console
	Environment string `yaml:"environment"`
}

// SolanaConfig holds ledger connectivity and confirmation settings.
type SolanaConfig struct {
	Network       string `yaml:"network"`
	RPCURL        string `yaml:"rpc_url"`
	Commitment    string `yaml:"commitment"` // confirmed | finalized
	SkipPreflight bool   `yaml:"skip_preflight"`
}

// BuilderConfig holds transaction builder configuration.
// Mode "remote" posts the order descriptor to an external builder service;
// mode "local" assembles the payment transaction in-process.
type BuilderConfig struct {
	Mode           string   `yaml:"mode"` // local | remote
	URL            string   `yaml:"url"`
	Timeout        Duration `yaml:"timeout"`
	PaymentAddress string   `yaml:"payment_address"` // Merchant wallet receiving payments (local mode)
	MemoPrefix     string   `yaml:"memo_prefix"`
}

// WalletConfig holds the buyer wallet used to sign and broadcast payments.
type WalletConfig struct {
	PrivateKey string `yaml:"-"` // Loaded from env (CHONK_WALLET_KEY), never from file
}

// CatalogItem defines a purchasable item when the catalog source is "yaml".
type CatalogItem struct {
	Name          string `yaml:"name"`
	ContentHash   string `yaml:"content_hash"` // IPFS CID of the downloadable artifact
	Filename      string `yaml:"filename"`
	PriceLamports uint64 `yaml:"price_lamports"`
}

// CatalogConfig holds order ledger / catalog store configuration.
type CatalogConfig struct {
	Source          string                 `yaml:"source"` // memory | yaml | postgres | mongodb
	PostgresURL     string                 `yaml:"postgres_url"`
	ItemsTableName  string                 `yaml:"items_table_name"`  // Default: "items"
	OrdersTableName string                 `yaml:"orders_table_name"` // Default: "orders"
	MongoDBURL      string                 `yaml:"mongodb_url"`
	MongoDBDatabase string                 `yaml:"mongodb_database"`
	Items           map[string]CatalogItem `yaml:"items"` // Only used when Source = "yaml"
}

// PurchaseConfig holds purchase flow tuning.
type PurchaseConfig struct {
	PollInterval  Duration `yaml:"poll_interval"`  // Confirmation poll cadence (default: 1s)
	UpdateBuffer  int      `yaml:"update_buffer"`  // State update channel capacity
	SubmitTimeout Duration `yaml:"submit_timeout"` // Budget for build + sign + broadcast
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	GlobalEnabled bool     `yaml:"global_enabled"`
	GlobalLimit   int      `yaml:"global_limit"`
	GlobalWindow  Duration `yaml:"global_window"`
	PerIPEnabled  bool     `yaml:"per_ip_enabled"`
	PerIPLimit    int      `yaml:"per_ip_limit"`
	PerIPWindow   Duration `yaml:"per_ip_window"`
}

// BreakerServiceConfig configures a single circuit breaker.
type BreakerServiceConfig struct {
	MaxRequests         uint32   `yaml:"max_requests"`
	Interval            Duration `yaml:"interval"`
	Timeout             Duration `yaml:"timeout"`
	ConsecutiveFailures uint32   `yaml:"consecutive_failures"`
	FailureRatio        float64  `yaml:"failure_ratio"`
	MinRequests         uint32   `yaml:"min_requests"`
}

// CircuitBreakerConfig holds circuit breaker settings per external service.
type CircuitBreakerConfig struct {
	Enabled   bool                 `yaml:"enabled"`
	SolanaRPC BreakerServiceConfig `yaml:"solana_rpc"`
	Builder   BreakerServiceConfig `yaml:"builder"`
	Catalog   BreakerServiceConfig `yaml:"catalog"`
}
