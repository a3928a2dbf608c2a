package catalog

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoDBRepository implements Repository using MongoDB.
type MongoDBRepository struct {
	client *mongo.Client
	items  *mongo.Collection
	orders *mongo.Collection
}

// mongoItem represents the MongoDB item document structure.
type mongoItem struct {
	ID            string    `bson:"_id"`
	Name          string    `bson:"name"`
	ContentHash   string    `bson:"contentHash"`
	Filename      string    `bson:"filename"`
	PriceLamports uint64    `bson:"priceLamports"`
	Active        bool      `bson:"active"`
	CreatedAt     time.Time `bson:"createdAt"`
	UpdatedAt     time.Time `bson:"updatedAt"`
}

// mongoOrder represents the MongoDB order document structure.
// The order reference is the document key, which enforces uniqueness.
type mongoOrder struct {
	Reference string    `bson:"_id"`
	Buyer     string    `bson:"buyer"`
	ItemID    string    `bson:"itemId"`
	CreatedAt time.Time `bson:"createdAt"`
}

// NewMongoDBRepository creates a MongoDB-backed repository.
func NewMongoDBRepository(connectionString, database string) (*MongoDBRepository, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(connectionString))
	if err != nil {
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}

	items := client.Database(database).Collection("items")
	orders := client.Database(database).Collection("orders")

	indexModels := []mongo.IndexModel{
		{Keys: bson.D{{Key: "buyer", Value: 1}, {Key: "itemId", Value: 1}}},
		{Keys: bson.D{{Key: "createdAt", Value: -1}}},
	}
	if _, err := orders.Indexes().CreateMany(ctx, indexModels); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("create indexes: %w", err)
	}

	return &MongoDBRepository{
		client: client,
		items:  items,
		orders: orders,
	}, nil
}

// GetItem retrieves an active item by ID.
func (r *MongoDBRepository) GetItem(ctx context.Context, id string) (Item, error) {
	filter := bson.M{"_id": id, "active": true}

	var mi mongoItem
	err := r.items.FindOne(ctx, filter).Decode(&mi)
	if err == mongo.ErrNoDocuments {
		return Item{}, ErrItemNotFound
	}
	if err != nil {
		return Item{}, fmt.Errorf("find item: %w", err)
	}
	return mi.toItem(), nil
}

// ListItems returns all active items.
func (r *MongoDBRepository) ListItems(ctx context.Context) ([]Item, error) {
	cursor, err := r.items.Find(ctx, bson.M{"active": true}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer cursor.Close(ctx)

	var items []Item
	for cursor.Next(ctx) {
		var mi mongoItem
		if err := cursor.Decode(&mi); err != nil {
			return nil, fmt.Errorf("decode item: %w", err)
		}
		items = append(items, mi.toItem())
	}
	return items, cursor.Err()
}

// RecordOrder persists a fulfillment record.
// $setOnInsert with upsert keeps retried writes for the same reference idempotent.
func (r *MongoDBRepository) RecordOrder(ctx context.Context, order Order) error {
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now()
	}

	doc := mongoOrder{
		Reference: order.Reference,
		Buyer:     order.Buyer,
		ItemID:    order.ItemID,
		CreatedAt: order.CreatedAt,
	}

	filter := bson.M{"_id": order.Reference}
	update := bson.M{"$setOnInsert": doc}
	_, err := r.orders.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("record order: %w", err)
	}
	return nil
}

// HasPurchased reports whether the buyer already owns the item.
func (r *MongoDBRepository) HasPurchased(ctx context.Context, buyer, itemID string) (bool, error) {
	filter := bson.M{"buyer": buyer, "itemId": itemID}
	count, err := r.orders.CountDocuments(ctx, filter, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("count orders: %w", err)
	}
	return count > 0, nil
}

// Close disconnects the MongoDB client.
func (r *MongoDBRepository) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return r.client.Disconnect(ctx)
}

// toItem converts the document to the domain type.
func (mi mongoItem) toItem() Item {
	return Item{
		ID:            mi.ID,
		Name:          mi.Name,
		ContentHash:   mi.ContentHash,
		Filename:      mi.Filename,
		PriceLamports: mi.PriceLamports,
		Active:        mi.Active,
		CreatedAt:     mi.CreatedAt,
		UpdatedAt:     mi.UpdatedAt,
	}
}
