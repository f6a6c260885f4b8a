package repository

import (
	"context"
	"fmt"
	"time"

	"urgify-core/internal/domain"
	"urgify-core/internal/infrastructure/repository/entity"
	"urgify-core/internal/ports"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoWidgetConfigRepository implements WidgetConfigRepository using MongoDB
type MongoWidgetConfigRepository struct {
	collection *mongo.Collection
}

// NewMongoWidgetConfigRepository creates a new MongoDB widget config repository
func NewMongoWidgetConfigRepository(db *mongo.Database) ports.WidgetConfigRepository {
	return &MongoWidgetConfigRepository{
		collection: db.Collection("widget_configs"),
	}
}

// Get retrieves a shop's widget configuration
func (r *MongoWidgetConfigRepository) Get(ctx context.Context, shop string) (*domain.WidgetConfig, error) {
	var doc entity.MongoWidgetConfigDoc
	filter := bson.M{"shop": shop}

	err := r.collection.FindOne(ctx, filter).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, fmt.Errorf("widget config for %s: %w", shop, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get widget config: %w", err)
	}

	return doc.ToDomain(), nil
}

// Upsert creates or replaces a shop's widget configuration
func (r *MongoWidgetConfigRepository) Upsert(ctx context.Context, cfg *domain.WidgetConfig) error {
	doc := entity.MongoWidgetConfigDocFromDomain(cfg)
	doc.UpdatedAt = time.Now()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now()
	}

	opts := options.Update().SetUpsert(true)
	filter := bson.M{"shop": cfg.Shop}
	update := bson.M{"$set": doc}

	_, err := r.collection.UpdateOne(ctx, filter, update, opts)
	if err != nil {
		return fmt.Errorf("failed to upsert widget config: %w", err)
	}

	return nil
}

// SetPlan updates only the subscription plan field
func (r *MongoWidgetConfigRepository) SetPlan(ctx context.Context, shop, plan string) error {
	return r.setFields(ctx, shop, bson.M{"plan": plan})
}

// SetThemePublished updates only the theme-published flag
func (r *MongoWidgetConfigRepository) SetThemePublished(ctx context.Context, shop string, published bool) error {
	return r.setFields(ctx, shop, bson.M{"themePublished": published})
}

// DeleteByShop removes a shop's configuration entirely
func (r *MongoWidgetConfigRepository) DeleteByShop(ctx context.Context, shop string) error {
	_, err := r.collection.DeleteOne(ctx, bson.M{"shop": shop})
	if err != nil {
		return fmt.Errorf("failed to delete widget config: %w", err)
	}
	return nil
}

func (r *MongoWidgetConfigRepository) setFields(ctx context.Context, shop string, fields bson.M) error {
	fields["updatedAt"] = time.Now()
	res, err := r.collection.UpdateOne(ctx, bson.M{"shop": shop}, bson.M{"$set": fields})
	if err != nil {
		return fmt.Errorf("failed to update widget config: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("widget config for %s: %w", shop, domain.ErrNotFound)
	}
	return nil
}
