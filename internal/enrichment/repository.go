package enrichment

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Repository interface {
	ListCategories(ctx context.Context) ([]CategoryEntry, error)
}

type MongoDBRepository struct {
	collection *mongo.Collection
}

func NewRepository(db *mongo.Database, collection string) Repository {
	return &MongoDBRepository{
		collection: db.Collection(collection),
	}
}

func (r *MongoDBRepository) ListCategories(ctx context.Context) ([]CategoryEntry, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "category", Value: 1}}).
		SetProjection(bson.M{"_id": 0, "category": 1, "group": 1})

	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find categories: %w", err)
	}
	defer cursor.Close(ctx)

	var entries []CategoryEntry
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode categories: %w", err)
	}

	return entries, nil
}
