package services

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// MongoStore backs the vicinity cache and dedupe ledger with MongoDB for
// deployments where several machines share one store. The ledger relies on a
// unique index plus plain inserts, so IsNew stays atomic under concurrent
// workers.
type MongoStore struct {
	cache  *mongo.Collection
	ledger *mongo.Collection
	logger *zap.Logger
}

type mongoCacheEntry struct {
	VKey     string    `bson:"vkey"`
	Response []byte    `bson:"response_json"`
	LastUsed time.Time `bson:"last_used"`
}

type mongoLedgerEntry struct {
	Key       string    `bson:"key"`
	FirstSeen time.Time `bson:"first_seen"`
}

// NewMongoStore prepares collections and their unique indexes.
func NewMongoStore(db *mongo.Database, logger *zap.Logger) (*MongoStore, error) {
	ms := &MongoStore{
		cache:  db.Collection("vicinity_cache"),
		ledger: db.Collection("places_seen"),
		logger: logger,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := ms.cache.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "vkey", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return nil, fmt.Errorf("create vicinity_cache index: %w", err)
	}
	_, err = ms.ledger.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "key", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return nil, fmt.Errorf("create places_seen index: %w", err)
	}

	return ms, nil
}

// Get fetches a cached response; last_used is refreshed asynchronously.
func (ms *MongoStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var entry mongoCacheEntry
	err := ms.cache.FindOne(ctx, bson.M{"vkey": key}).Decode(&entry)
	if err == mongo.ErrNoDocuments {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("mongo cache get: %w", err)
	}

	go func() {
		bgCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, err := ms.cache.UpdateOne(bgCtx,
			bson.M{"vkey": key},
			bson.M{"$set": bson.M{"last_used": time.Now()}})
		if err != nil {
			ms.logger.Warn("mongo cache touch failed", zap.Error(err), zap.String("vkey", key))
		}
	}()

	return entry.Response, true, nil
}

// Put upserts the response for key.
func (ms *MongoStore) Put(ctx context.Context, key string, value []byte) error {
	entry := mongoCacheEntry{VKey: key, Response: value, LastUsed: time.Now()}
	opts := options.Replace().SetUpsert(true)
	if _, err := ms.cache.ReplaceOne(ctx, bson.M{"vkey": key}, entry, opts); err != nil {
		return fmt.Errorf("mongo cache put: %w", err)
	}
	return nil
}

// IsNew inserts against the unique index; a duplicate-key error means the
// identity was already ledgered.
func (ms *MongoStore) IsNew(ctx context.Context, key string) (bool, error) {
	_, err := ms.ledger.InsertOne(ctx, mongoLedgerEntry{Key: key, FirstSeen: time.Now()})
	if mongo.IsDuplicateKeyError(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("mongo ledger insert: %w", err)
	}
	return true, nil
}

// Count reports the ledger size.
func (ms *MongoStore) Count(ctx context.Context) (int64, error) {
	n, err := ms.ledger.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("mongo ledger count: %w", err)
	}
	return n, nil
}

// Close is a no-op; the mongo client belongs to the caller.
func (ms *MongoStore) Close() error {
	return nil
}
