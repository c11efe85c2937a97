package services

import "context"

// KVStore is the durable layer behind the vicinity cache: raw bytes keyed by
// vicinity key. Put must be atomic (single-statement insert-or-replace) so a
// multi-worker deployment stays correct.
type KVStore interface {
	// Get returns the stored value, or found=false on a miss.
	Get(ctx context.Context, key string) (value []byte, found bool, err error)

	// Put inserts or replaces the value for key.
	Put(ctx context.Context, key string, value []byte) error

	// Close releases the underlying handle.
	Close() error
}

// LedgerStore is the durable set behind the global dedupe ledger. IsNew is a
// single atomic test-and-set: it returns true and marks the key when unseen,
// false otherwise. There is no separate check - that would race.
type LedgerStore interface {
	IsNew(ctx context.Context, key string) (bool, error)

	// Count reports how many identities have been marked.
	Count(ctx context.Context) (int64, error)

	Close() error
}

// CacheStats are the counters exposed on the ops endpoint.
type CacheStats struct {
	HitRate   float64 `json:"hit_rate"`
	TotalHits int64   `json:"total_hits"`
	TotalMiss int64   `json:"total_miss"`
	L1Hits    int64   `json:"l1_hits"`
	L1Items   int     `json:"l1_items"`
}
