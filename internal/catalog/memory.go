package catalog

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepository is an in-memory Repository implementation suitable for
// tests, local development, and yaml-declared catalogs.
type MemoryRepository struct {
	mu     sync.RWMutex
	items  map[string]Item
	orders map[string]Order           // reference -> order (globally unique)
	owned  map[string]map[string]bool // buyer -> itemID -> true (secondary index)
}

// NewMemoryRepository constructs a MemoryRepository seeded with the given items.
func NewMemoryRepository(items []Item) *MemoryRepository {
	m := &MemoryRepository{
		items:  make(map[string]Item),
		orders: make(map[string]Order),
		owned:  make(map[string]map[string]bool),
	}
	for _, item := range items {
		m.items[item.ID] = item
	}
	return m
}

// PutItem inserts or replaces an item (used by tests and seeding).
func (m *MemoryRepository) PutItem(item Item) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item.UpdatedAt = time.Now()
	m.items[item.ID] = item
}

// GetItem retrieves an active item by ID.
func (m *MemoryRepository) GetItem(_ context.Context, id string) (Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	item, ok := m.items[id]
	if !ok || !item.Active {
		return Item{}, ErrItemNotFound
	}
	return item, nil
}

// ListItems returns all active items sorted by ID.
func (m *MemoryRepository) ListItems(_ context.Context) ([]Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	items := make([]Item, 0, len(m.items))
	for _, item := range m.items {
		if item.Active {
			items = append(items, item)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

// RecordOrder persists a fulfillment record.
// A reference that already exists is left untouched so retries stay idempotent.
func (m *MemoryRepository) RecordOrder(_ context.Context, order Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.orders[order.Reference]; exists {
		return nil
	}

	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now()
	}
	m.orders[order.Reference] = order

	byBuyer, ok := m.owned[order.Buyer]
	if !ok {
		byBuyer = make(map[string]bool)
		m.owned[order.Buyer] = byBuyer
	}
	byBuyer[order.ItemID] = true
	return nil
}

// HasPurchased reports whether the buyer already owns the item.
func (m *MemoryRepository) HasPurchased(_ context.Context, buyer, itemID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.owned[buyer][itemID], nil
}

// OrderCount returns the number of recorded orders (test helper).
func (m *MemoryRepository) OrderCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.orders)
}

// Close implements the Repository interface.
func (m *MemoryRepository) Close() error {
	return nil
}
