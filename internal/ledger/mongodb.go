package ledger

import (
	"context"
	stderrors "errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"ingest/internal/notification"
	"ingest/pkg/metrics"
)

const mongoBackend = "mongodb"

// MongoLedger keeps one document per identity. Uniqueness on (bucket, key)
// is enforced by the index created by migrations.EnsureLedgerIndexes.
type MongoLedger struct {
	collection *mongo.Collection
}

func NewMongoLedger(db *mongo.Database, collection string) *MongoLedger {
	return &MongoLedger{collection: db.Collection(collection)}
}

func identityFilter(id notification.ObjectIdentity) bson.M {
	return bson.M{"bucket": id.Bucket, "key": id.Key}
}

func (l *MongoLedger) Lookup(ctx context.Context, id notification.ObjectIdentity) (*Entry, error) {
	var entry Entry
	err := l.collection.FindOne(ctx, identityFilter(id)).Decode(&entry)
	if stderrors.Is(err, mongo.ErrNoDocuments) {
		metrics.IncLedgerLookup(mongoBackend, "miss")
		return nil, nil
	}
	if err != nil {
		metrics.IncLedgerLookup(mongoBackend, "error")
		return nil, ledgerIOError("lookup", id, err)
	}

	metrics.IncLedgerLookup(mongoBackend, "hit")
	return &entry, nil
}

func (l *MongoLedger) Record(ctx context.Context, entry Entry) error {
	_, err := l.collection.UpdateOne(ctx,
		identityFilter(entry.Identity()),
		bson.M{"$setOnInsert": entry},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		// Two concurrent upserts can both miss and race on the unique index.
		if mongo.IsDuplicateKeyError(err) {
			return nil
		}
		return ledgerIOError("record", entry.Identity(), err)
	}
	return nil
}

func (l *MongoLedger) Count(ctx context.Context) (int, error) {
	n, err := l.collection.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("mongodb count failed: %w", err)
	}
	return int(n), nil
}
