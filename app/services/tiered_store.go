package services

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// TieredStore layers a fast shared tier (Redis) over a durable tier
// (SQLite/Mongo). Reads try hot then cold; a cold hit is synced back to the
// hot tier in the background. Writes go to both, and a hot-tier failure only
// degrades - the durable tier is the source of record.
type TieredStore struct {
	hot    KVStore
	cold   KVStore
	logger *zap.Logger
}

// NewTieredStore composes the two tiers.
func NewTieredStore(hot, cold KVStore, logger *zap.Logger) *TieredStore {
	return &TieredStore{hot: hot, cold: cold, logger: logger}
}

// Get checks the hot tier first; falls back to the cold tier on miss or
// hot-tier error.
func (ts *TieredStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, found, err := ts.hot.Get(ctx, key)
	if err != nil {
		ts.logger.Warn("hot tier get failed, falling back", zap.Error(err))
	} else if found {
		return value, true, nil
	}

	value, found, err = ts.cold.Get(ctx, key)
	if err != nil || !found {
		return nil, false, err
	}

	go func() {
		bgCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := ts.hot.Put(bgCtx, key, value); err != nil {
			ts.logger.Warn("hot tier backfill failed", zap.Error(err), zap.String("key", key))
		}
	}()
	return value, true, nil
}

// Put writes the durable tier first, then the hot tier best-effort.
func (ts *TieredStore) Put(ctx context.Context, key string, value []byte) error {
	if err := ts.cold.Put(ctx, key, value); err != nil {
		return err
	}
	if err := ts.hot.Put(ctx, key, value); err != nil {
		ts.logger.Warn("hot tier put failed", zap.Error(err), zap.String("key", key))
	}
	return nil
}

// Close closes both tiers, preferring the first error.
func (ts *TieredStore) Close() error {
	hotErr := ts.hot.Close()
	coldErr := ts.cold.Close()
	if coldErr != nil {
		return coldErr
	}
	return hotErr
}
