package config

import (
	"fmt"
)

// finalize validates the aggregated configuration and fills derived defaults.
func (c *Config) finalize() error {
	if c.Solana.RPCURL == "" {
		return fmt.Errorf("solana.rpc_url is required")
	}

	switch c.Solana.Commitment {
	case "confirmed", "finalized":
	case "":
		c.Solana.Commitment = "confirmed"
	default:
		return fmt.Errorf("solana.commitment must be \"confirmed\" or \"finalized\", got %q", c.Solana.Commitment)
	}

	switch c.Builder.Mode {
	case "local":
		if c.Builder.PaymentAddress == "" {
			return fmt.Errorf("builder.payment_address is required when builder.mode is \"local\"")
		}
	case "remote":
		if c.Builder.URL == "" {
			return fmt.Errorf("builder.url is required when builder.mode is \"remote\"")
		}
	default:
		return fmt.Errorf("builder.mode must be \"local\" or \"remote\", got %q", c.Builder.Mode)
	}

	switch c.Catalog.Source {
	case "memory", "yaml", "postgres", "mongodb":
	case "":
		// Smart defaults: pick the backend matching the provided connection details
		switch {
		case c.Catalog.PostgresURL != "":
			c.Catalog.Source = "postgres"
		case c.Catalog.MongoDBURL != "":
			c.Catalog.Source = "mongodb"
		case len(c.Catalog.Items) > 0:
			c.Catalog.Source = "yaml"
		default:
			c.Catalog.Source = "memory"
		}
	default:
		return fmt.Errorf("unknown catalog source: %s", c.Catalog.Source)
	}

	if c.Catalog.Source == "postgres" && c.Catalog.PostgresURL == "" {
		return fmt.Errorf("catalog.postgres_url is required when catalog.source is \"postgres\"")
	}
	if c.Catalog.Source == "mongodb" {
		if c.Catalog.MongoDBURL == "" {
			return fmt.Errorf("catalog.mongodb_url is required when catalog.source is \"mongodb\"")
		}
		if c.Catalog.MongoDBDatabase == "" {
			c.Catalog.MongoDBDatabase = "chonkmart"
		}
	}

	if c.Purchase.PollInterval.Duration <= 0 {
		return fmt.Errorf("purchase.poll_interval must be positive")
	}
	if c.Purchase.UpdateBuffer <= 0 {
		c.Purchase.UpdateBuffer = 16
	}

	return nil
}
