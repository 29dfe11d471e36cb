package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/cartsync/internal/domain"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type mongoRepository struct {
	collection *mongo.Collection
}

func NewMongoRepository(db *mongo.Database) CartStore {
	return &mongoRepository{
		collection: db.Collection("cart_items"),
	}
}

func (m *mongoRepository) GetCartItems(ctx context.Context, userID string) ([]domain.CartRow, error) {
	filter := bson.M{"user_id": userID}
	opts := options.Find().SetSort(bson.D{{Key: "added_at", Value: 1}, {Key: "_id", Value: 1}})

	cursor, err := m.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to get cart items: %w", err)
	}
	defer cursor.Close(ctx)

	rows := []domain.CartRow{}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode cart items: %w", err)
	}
	return rows, nil
}

func (m *mongoRepository) UpsertItem(ctx context.Context, userID, productID string, quantity int, rowID string) (*domain.CartRow, error) {
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}
	if rowID == "" {
		rowID = uuid.NewString()
	}
	now := time.Now().UTC()

	filter := bson.M{"user_id": userID, "product_id": productID}
	update := bson.M{
		"$set": bson.M{
			"quantity":   quantity,
			"updated_at": now,
		},
		"$setOnInsert": bson.M{
			"_id":      rowID,
			"added_at": now,
		},
	}
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var row domain.CartRow
	if err := m.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&row); err != nil {
		return nil, fmt.Errorf("failed to upsert cart item: %w", err)
	}
	return &row, nil
}

func (m *mongoRepository) UpdateQuantity(ctx context.Context, rowID string, quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	update := bson.M{
		"$set": bson.M{
			"quantity":   quantity,
			"updated_at": time.Now().UTC(),
		},
	}

	result, err := m.collection.UpdateOne(ctx, bson.M{"_id": rowID}, update)
	if err != nil {
		return fmt.Errorf("failed to update item quantity: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrItemNotFound
	}
	return nil
}

func (m *mongoRepository) RemoveItem(ctx context.Context, rowID string) error {
	result, err := m.collection.DeleteOne(ctx, bson.M{"_id": rowID})
	if err != nil {
		return fmt.Errorf("failed to remove item: %w", err)
	}
	if result.DeletedCount == 0 {
		return ErrItemNotFound
	}
	return nil
}

func (m *mongoRepository) ClearCart(ctx context.Context, userID string) error {
	if _, err := m.collection.DeleteMany(ctx, bson.M{"user_id": userID}); err != nil {
		return fmt.Errorf("failed to clear cart: %w", err)
	}
	return nil
}

func (m *mongoRepository) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "product_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "updated_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(90 * 24 * 60 * 60), // 90 days TTL
		},
	}

	_, err := m.collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	return nil
}

// EnsureIndexes creates the indexes when store is backed by MongoDB.
func EnsureIndexes(ctx context.Context, store CartStore) error {
	m, ok := store.(*mongoRepository)
	if !ok {
		return errors.New("store is not a mongo repository")
	}
	return m.CreateIndexes(ctx)
}
