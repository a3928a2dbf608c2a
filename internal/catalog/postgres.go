package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db          *sql.DB
	itemsTable  string // Configurable table name (default: "items")
	ordersTable string // Configurable table name (default: "orders")
}

// Query timeout constants
const (
	queryTimeoutGet   = 5 * time.Second  // Timeout for single-row queries
	queryTimeoutList  = 10 * time.Second // Timeout for list queries
	queryTimeoutWrite = 5 * time.Second  // Timeout for inserts
)

// Input validation constraints
const maxIDLength = 255

var validTableNameRegex = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// validateID validates item/buyer/reference identifier input.
func validateID(id string) error {
	if len(id) == 0 || len(id) > maxIDLength {
		return fmt.Errorf("invalid identifier length: must be between 1 and %d characters", maxIDLength)
	}
	return nil
}

// validateTableName ensures table name is safe from SQL injection.
func validateTableName(name string) error {
	if !validTableNameRegex.MatchString(name) {
		return fmt.Errorf("invalid table name: %s (must be alphanumeric with underscores only)", name)
	}
	return nil
}

// withQueryTimeout adds a timeout to the context if not already set.
func withQueryTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}

// NewPostgresRepository creates a PostgreSQL-backed repository.
func NewPostgresRepository(connectionString string) (*PostgresRepository, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresRepository{db: db, itemsTable: "items", ordersTable: "orders"}, nil
}

// WithTableNames sets custom table names.
// Invalid names are ignored and the defaults kept.
func (r *PostgresRepository) WithTableNames(itemsTable, ordersTable string) *PostgresRepository {
	if itemsTable != "" && validateTableName(itemsTable) == nil {
		r.itemsTable = itemsTable
	}
	if ordersTable != "" && validateTableName(ordersTable) == nil {
		r.ordersTable = ordersTable
	}
	return r
}

// GetItem retrieves an active item by ID.
func (r *PostgresRepository) GetItem(ctx context.Context, id string) (Item, error) {
	if err := validateID(id); err != nil {
		return Item{}, err
	}

	ctx, cancel := withQueryTimeout(ctx, queryTimeoutGet)
	defer cancel()

	query := fmt.Sprintf(`
		SELECT id, name, content_hash, filename, price_lamports, active, created_at, updated_at
		FROM %s
		WHERE id = $1 AND active = true`, r.itemsTable)

	var item Item
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&item.ID,
		&item.Name,
		&item.ContentHash,
		&item.Filename,
		&item.PriceLamports,
		&item.Active,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return Item{}, ErrItemNotFound
	}
	if err != nil {
		return Item{}, fmt.Errorf("query item: %w", err)
	}
	return item, nil
}

// ListItems returns all active items.
func (r *PostgresRepository) ListItems(ctx context.Context) ([]Item, error) {
	ctx, cancel := withQueryTimeout(ctx, queryTimeoutList)
	defer cancel()

	query := fmt.Sprintf(`
		SELECT id, name, content_hash, filename, price_lamports, active, created_at, updated_at
		FROM %s
		WHERE active = true
		ORDER BY id`, r.itemsTable)

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var item Item
		if err := rows.Scan(
			&item.ID,
			&item.Name,
			&item.ContentHash,
			&item.Filename,
			&item.PriceLamports,
			&item.Active,
			&item.CreatedAt,
			&item.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// RecordOrder persists a fulfillment record.
// ON CONFLICT DO NOTHING keeps retried writes for the same reference idempotent.
func (r *PostgresRepository) RecordOrder(ctx context.Context, order Order) error {
	if err := validateID(order.Reference); err != nil {
		return err
	}

	ctx, cancel := withQueryTimeout(ctx, queryTimeoutWrite)
	defer cancel()

	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now()
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (reference, buyer, item_id, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (reference) DO NOTHING`, r.ordersTable)

	_, err := r.db.ExecContext(ctx, query, order.Reference, order.Buyer, order.ItemID, order.CreatedAt)
	if err != nil {
		return fmt.Errorf("record order: %w", err)
	}
	return nil
}

// HasPurchased reports whether the buyer already owns the item.
func (r *PostgresRepository) HasPurchased(ctx context.Context, buyer, itemID string) (bool, error) {
	ctx, cancel := withQueryTimeout(ctx, queryTimeoutGet)
	defer cancel()

	query := fmt.Sprintf(`
		SELECT EXISTS (
			SELECT 1 FROM %s WHERE buyer = $1 AND item_id = $2
		)`, r.ordersTable)

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, buyer, itemID).Scan(&exists); err != nil {
		return false, fmt.Errorf("query purchases: %w", err)
	}
	return exists, nil
}

// Close closes the database connection.
func (r *PostgresRepository) Close() error {
	return r.db.Close()
}
