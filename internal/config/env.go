package config

import (
	"os"
	"strconv"
	"time"
)

// applyEnvOverrides applies environment variable overrides to the config.
// Environment variables take precedence over YAML configuration.
// All env vars use CHONK_ prefix for namespace isolation.
func (c *Config) applyEnvOverrides() {
	// Server config
	setIfEnv(&c.Server.Address, "CHONK_SERVER_ADDRESS")
	setIfEnv(&c.Server.AdminMetricsAPIKey, "CHONK_ADMIN_METRICS_API_KEY")

	// Logging config
	setIfEnv(&c.Logging.Level, "CHONK_LOG_LEVEL")
	setIfEnv(&c.Logging.Format, "CHONK_LOG_FORMAT")
	setIfEnv(&c.Logging.Environment, "CHONK_ENVIRONMENT")

	// Solana config
	setIfEnv(&c.Solana.Network, "CHONK_SOLANA_NETWORK")
	setIfEnv(&c.Solana.RPCURL, "CHONK_SOLANA_RPC_URL")
	setIfEnv(&c.Solana.Commitment, "CHONK_SOLANA_COMMITMENT")
	setBoolIfEnv(&c.Solana.SkipPreflight, "CHONK_SOLANA_SKIP_PREFLIGHT")

	// Builder config
	setIfEnv(&c.Builder.Mode, "CHONK_BUILDER_MODE")
	setIfEnv(&c.Builder.URL, "CHONK_BUILDER_URL")
	setIfEnv(&c.Builder.PaymentAddress, "CHONK_PAYMENT_ADDRESS")
	setIfEnv(&c.Builder.MemoPrefix, "CHONK_MEMO_PREFIX")
	setDurationIfEnv(&c.Builder.Timeout, "CHONK_BUILDER_TIMEOUT")

	// Wallet key never lives in the YAML file
	setIfEnv(&c.Wallet.PrivateKey, "CHONK_WALLET_KEY")

	// Catalog config
	setIfEnv(&c.Catalog.Source, "CHONK_CATALOG_SOURCE")
	setIfEnv(&c.Catalog.PostgresURL, "CHONK_CATALOG_POSTGRES_URL")
	setIfEnv(&c.Catalog.MongoDBURL, "CHONK_CATALOG_MONGODB_URL")
	setIfEnv(&c.Catalog.MongoDBDatabase, "CHONK_CATALOG_MONGODB_DATABASE")

	// Purchase flow config
	setDurationIfEnv(&c.Purchase.PollInterval, "CHONK_PURCHASE_POLL_INTERVAL")
	setDurationIfEnv(&c.Purchase.SubmitTimeout, "CHONK_PURCHASE_SUBMIT_TIMEOUT")
	setIntIfEnv(&c.Purchase.UpdateBuffer, "CHONK_PURCHASE_UPDATE_BUFFER")

	// Rate limit config
	setBoolIfEnv(&c.RateLimit.GlobalEnabled, "CHONK_RATE_LIMIT_GLOBAL_ENABLED")
	setIntIfEnv(&c.RateLimit.GlobalLimit, "CHONK_RATE_LIMIT_GLOBAL_LIMIT")
	setBoolIfEnv(&c.RateLimit.PerIPEnabled, "CHONK_RATE_LIMIT_PER_IP_ENABLED")
	setIntIfEnv(&c.RateLimit.PerIPLimit, "CHONK_RATE_LIMIT_PER_IP_LIMIT")

	// Circuit breaker config
	setBoolIfEnv(&c.CircuitBreaker.Enabled, "CHONK_CIRCUIT_BREAKER_ENABLED")
}

// setIfEnv assigns the env value when the variable is set and non-empty.
func setIfEnv(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// setBoolIfEnv parses and assigns a boolean env value when set.
func setBoolIfEnv(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			*dst = parsed
		}
	}
}

// setIntIfEnv parses and assigns an integer env value when set.
func setIntIfEnv(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			*dst = parsed
		}
	}
}

// setDurationIfEnv parses and assigns a duration env value when set.
func setDurationIfEnv(dst *Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			*dst = Duration{Duration: parsed}
		}
	}
}
