package migrations

import (
	"context"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// EnsureLedgerIndexes creates the unique identity index the Mongo ledger
// relies on for idempotent writes, plus a processed_at index for listing.
func EnsureLedgerIndexes(ctx context.Context, db *mongo.Database, collectionName string) error {
	collection := db.Collection(collectionName)

	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "bucket", Value: 1}, {Key: "key", Value: 1}},
			Options: options.Index().SetName("idx_" + collectionName + "_identity").SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "processed_at", Value: -1}},
			Options: options.Index().SetName("idx_" + collectionName + "_processed_at"),
		},
	}

	_, err := collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		if !strings.Contains(err.Error(), "already exists") {
			return fmt.Errorf("failed to create indexes on %s: %w", collectionName, err)
		}
	}

	return nil
}
