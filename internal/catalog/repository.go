package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/chonkmart/checkout/internal/config"
)

// ErrItemNotFound is returned when an item doesn't exist or is inactive.
var ErrItemNotFound = errors.New("catalog: item not found")

// Item represents a purchasable digital item.
type Item struct {
	ID            string    // Item ID (e.g., "chonky-cat-pack")
	Name          string    // Human-readable name
	ContentHash   string    // IPFS CID of the downloadable artifact
	Filename      string    // Suggested download filename
	PriceLamports uint64    // Price in lamports
	Active        bool      // Enable/disable item
	CreatedAt     time.Time // Creation timestamp
	UpdatedAt     time.Time // Last update timestamp
}

// Order is the fulfillment record persisted once a payment is confirmed.
// Reference is globally unique per purchase attempt; recording the same
// reference twice is a no-op so retried fulfillment stays idempotent.
type Order struct {
	Buyer     string    // Buyer wallet public key
	Reference string    // Order reference public key
	ItemID    string    // Purchased item
	CreatedAt time.Time // Fulfillment timestamp
}

// Repository defines the order ledger / catalog store interface.
type Repository interface {
	// GetItem retrieves an active item by ID.
	GetItem(ctx context.Context, id string) (Item, error)

	// ListItems returns all active items.
	ListItems(ctx context.Context) ([]Item, error)

	// RecordOrder persists a fulfillment record.
	// Recording an order with an already-known reference is a no-op.
	RecordOrder(ctx context.Context, order Order) error

	// HasPurchased reports whether the buyer already owns the item.
	HasPurchased(ctx context.Context, buyer, itemID string) (bool, error)

	// Close closes any open connections.
	Close() error
}

// NewRepository creates a catalog repository based on config.
func NewRepository(cfg config.CatalogConfig) (Repository, error) {
	switch cfg.Source {
	case "", "memory":
		return NewMemoryRepository(nil), nil
	case "yaml":
		return NewMemoryRepository(itemsFromConfig(cfg.Items)), nil
	case "postgres":
		if cfg.PostgresURL == "" {
			return nil, errors.New("catalog: postgres_url required when source is 'postgres'")
		}
		repo, err := NewPostgresRepository(cfg.PostgresURL)
		if err != nil {
			return nil, err
		}
		return repo.WithTableNames(cfg.ItemsTableName, cfg.OrdersTableName), nil
	case "mongodb":
		if cfg.MongoDBURL == "" {
			return nil, errors.New("catalog: mongodb_url required when source is 'mongodb'")
		}
		return NewMongoDBRepository(cfg.MongoDBURL, cfg.MongoDBDatabase)
	default:
		return nil, errors.New("catalog: unknown source: " + cfg.Source)
	}
}

// itemsFromConfig converts config-declared items into catalog items.
func itemsFromConfig(items map[string]config.CatalogItem) []Item {
	now := time.Now()
	out := make([]Item, 0, len(items))
	for id, it := range items {
		out = append(out, Item{
			ID:            id,
			Name:          it.Name,
			ContentHash:   it.ContentHash,
			Filename:      it.Filename,
			PriceLamports: it.PriceLamports,
			Active:        true,
			CreatedAt:     now,
			UpdatedAt:     now,
		})
	}
	return out
}
