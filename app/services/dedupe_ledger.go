package services

import (
	"context"

	"go.uber.org/zap"
)

// DedupeLedger ensures each physical place reaches the primary output at most
// once across the whole run, including resumed runs. It only gates the
// primary output - the same place may legitimately be the best match for many
// input records, so best-match selection never consults it.
type DedupeLedger struct {
	store  LedgerStore
	logger *zap.Logger
}

// NewDedupeLedger wraps a durable ledger store.
func NewDedupeLedger(store LedgerStore, logger *zap.Logger) *DedupeLedger {
	return &DedupeLedger{store: store, logger: logger}
}

// IsNew atomically checks-and-marks the place identity. True exactly once per
// identity over the lifetime of the durable store.
func (dl *DedupeLedger) IsNew(ctx context.Context, identity string) (bool, error) {
	fresh, err := dl.store.IsNew(ctx, identity)
	if err != nil {
		return false, err
	}
	if fresh {
		dl.logger.Debug("ledgered new place", zap.String("identity", identity))
	}
	return fresh, nil
}

// Count reports how many identities have been emitted so far.
func (dl *DedupeLedger) Count(ctx context.Context) (int64, error) {
	return dl.store.Count(ctx)
}
