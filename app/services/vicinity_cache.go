package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/place-matcher/internal/search"
)

// QueryParams are the request parameters that affect result content and so
// participate in the vicinity key.
type QueryParams struct {
	Limit        int
	RadiusMeters int
}

// VicinityCache deduplicates place-search calls for nearby queries: an
// in-process LRU in front of a durable KVStore, keyed by rounded coordinates
// plus postal code plus query parameters. Coarser rounding raises the hit
// rate at the cost of spatial resolution. Entries never expire; the cache
// answers "have we already queried this vicinity", never freshness.
type VicinityCache struct {
	l1       *lru.Cache[string, *search.Response]
	store    KVStore
	decimals int
	logger   *zap.Logger

	// Counters are read from the ops endpoint's goroutine while the
	// resolver is mutating them.
	l1Hits    atomic.Int64
	storeHits atomic.Int64
	misses    atomic.Int64
}

// NewVicinityCache wires the L1 LRU over the durable store. decimals is the
// coordinate rounding precision (3 is roughly 100 m cells).
func NewVicinityCache(store KVStore, l1Size, decimals int, logger *zap.Logger) (*VicinityCache, error) {
	if l1Size <= 0 {
		l1Size = 10000
	}
	l1, err := lru.New[string, *search.Response](l1Size)
	if err != nil {
		return nil, fmt.Errorf("create vicinity L1 cache: %w", err)
	}
	return &VicinityCache{l1: l1, store: store, decimals: decimals, logger: logger}, nil
}

// Key builds the vicinity key for a query position.
func (vc *VicinityCache) Key(lat, lon float64, postal string, p QueryParams) string {
	return fmt.Sprintf("%s|%s|%s|n%d|r%d",
		postal,
		strconv.FormatFloat(roundTo(lat, vc.decimals), 'f', -1, 64),
		strconv.FormatFloat(roundTo(lon, vc.decimals), 'f', -1, 64),
		p.Limit, p.RadiusMeters)
}

// Get returns the cached response for the vicinity, or found=false. A
// durable hit populates L1 for the next lookup.
func (vc *VicinityCache) Get(ctx context.Context, lat, lon float64, postal string, p QueryParams) (*search.Response, bool, error) {
	key := vc.Key(lat, lon, postal, p)

	if resp, ok := vc.l1.Get(key); ok {
		vc.l1Hits.Add(1)
		vc.logger.Debug("vicinity L1 hit", zap.String("vkey", key))
		return resp, true, nil
	}

	raw, found, err := vc.store.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if !found {
		vc.misses.Add(1)
		return nil, false, nil
	}

	var resp search.Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		// Treat an undecodable entry as a miss; the caller refetches and
		// overwrites it.
		vc.logger.Warn("vicinity cache entry undecodable", zap.Error(err), zap.String("vkey", key))
		vc.misses.Add(1)
		return nil, false, nil
	}

	vc.storeHits.Add(1)
	vc.l1.Add(key, &resp)
	vc.logger.Debug("vicinity store hit", zap.String("vkey", key))
	return &resp, true, nil
}

// Put stores a fresh response under the vicinity key, in both layers.
func (vc *VicinityCache) Put(ctx context.Context, lat, lon float64, postal string, p QueryParams, resp *search.Response) error {
	key := vc.Key(lat, lon, postal, p)

	raw, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("marshal vicinity response: %w", err)
	}
	if err := vc.store.Put(ctx, key, raw); err != nil {
		return err
	}
	vc.l1.Add(key, resp)
	return nil
}

// Stats returns hit counters for the ops endpoint. Safe to call from another
// goroutine while the cache is in use.
func (vc *VicinityCache) Stats() CacheStats {
	l1Hits := vc.l1Hits.Load()
	misses := vc.misses.Load()
	hits := l1Hits + vc.storeHits.Load()
	total := hits + misses
	stats := CacheStats{
		TotalHits: hits,
		TotalMiss: misses,
		L1Hits:    l1Hits,
		L1Items:   vc.l1.Len(),
	}
	if total > 0 {
		stats.HitRate = float64(hits) / float64(total)
	}
	return stats
}

func roundTo(v float64, decimals int) float64 {
	f, _ := strconv.ParseFloat(strconv.FormatFloat(v, 'f', decimals, 64), 64)
	return f
}
