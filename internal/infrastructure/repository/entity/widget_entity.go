package entity

import (
	"time"

	"urgify-core/internal/domain"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MongoWidgetConfigDoc represents a shop's widget configuration in MongoDB
type MongoWidgetConfigDoc struct {
	ID              primitive.ObjectID `bson:"_id,omitempty"`
	Shop            string             `bson:"shop"`
	Enabled         bool               `bson:"enabled"`
	Plan            string             `bson:"plan"`
	StockThreshold  int                `bson:"stockThreshold"`
	MessageTemplate string             `bson:"messageTemplate"`
	ThemePublished  bool               `bson:"themePublished"`
	CreatedAt       time.Time          `bson:"createdAt"`
	UpdatedAt       time.Time          `bson:"updatedAt"`
}

// ToDomain converts the MongoDB document to a domain entity
func (d *MongoWidgetConfigDoc) ToDomain() *domain.WidgetConfig {
	return &domain.WidgetConfig{
		ID:              d.ID.Hex(),
		Shop:            d.Shop,
		Enabled:         d.Enabled,
		Plan:            d.Plan,
		StockThreshold:  d.StockThreshold,
		MessageTemplate: d.MessageTemplate,
		ThemePublished:  d.ThemePublished,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
	}
}

// MongoWidgetConfigDocFromDomain converts a domain entity to a MongoDB document
func MongoWidgetConfigDocFromDomain(cfg *domain.WidgetConfig) *MongoWidgetConfigDoc {
	doc := &MongoWidgetConfigDoc{
		Shop:            cfg.Shop,
		Enabled:         cfg.Enabled,
		Plan:            cfg.Plan,
		StockThreshold:  cfg.StockThreshold,
		MessageTemplate: cfg.MessageTemplate,
		ThemePublished:  cfg.ThemePublished,
		CreatedAt:       cfg.CreatedAt,
		UpdatedAt:       cfg.UpdatedAt,
	}

	if cfg.ID != "" {
		if objID, err := primitive.ObjectIDFromHex(cfg.ID); err == nil {
			doc.ID = objID
		}
	}

	return doc
}
