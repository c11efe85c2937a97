package search

import (
	"context"
	"fmt"
	"time"

	"github.com/meilisearch/meilisearch-go"
	"go.uber.org/zap"
)

// GazetteerConfig configures the Meilisearch-backed provider.
type GazetteerConfig struct {
	Host      string
	APIKey    string
	IndexName string
	Timeout   time.Duration
}

// GazetteerSearcher is an offline Provider backed by a local Meilisearch
// index of places. Used when a run works against a pre-seeded gazetteer
// instead of the hosted maps API, e.g. for replays and credit-free dry runs.
type GazetteerSearcher struct {
	client    meilisearch.ServiceManager
	indexName string
	timeout   time.Duration
	logger    *zap.Logger
}

// NewGazetteerSearcher connects and health-checks the Meilisearch instance.
func NewGazetteerSearcher(cfg GazetteerConfig, logger *zap.Logger) (*GazetteerSearcher, error) {
	client := meilisearch.New(cfg.Host, meilisearch.WithAPIKey(cfg.APIKey))
	if _, err := client.Health(); err != nil {
		return nil, fmt.Errorf("meilisearch unreachable: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &GazetteerSearcher{
		client:    client,
		indexName: cfg.IndexName,
		timeout:   cfg.Timeout,
		logger:    logger,
	}, nil
}

// Search queries the places index with a geo-radius filter around the query
// point. The radius defaults to 2 km when the query does not carry one, wide
// enough that distance scoring still sees decayed-to-zero candidates.
func (gs *GazetteerSearcher) Search(ctx context.Context, q Query) (*Response, error) {
	radius := q.RadiusMeters
	if radius <= 0 {
		radius = 2000
	}

	req := &meilisearch.SearchRequest{
		Limit:  int64(q.Limit),
		Filter: fmt.Sprintf("_geoRadius(%v, %v, %d)", q.Lat, q.Lon, radius),
	}

	result, err := gs.client.Index(gs.indexName).Search(q.Text, req)
	if err != nil {
		return nil, fmt.Errorf("gazetteer search: %w", err)
	}

	resp := &Response{Places: []Place{}}
	for _, hit := range result.Hits {
		hitMap, ok := hit.(map[string]interface{})
		if !ok {
			continue
		}
		resp.Places = append(resp.Places, placeFromHit(hitMap))
	}

	gs.logger.Debug("gazetteer search ok",
		zap.String("q", q.Text),
		zap.Int("places", len(resp.Places)))
	return resp, nil
}

// placeFromHit maps a Meilisearch document onto a Place. Geo coordinates live
// under the reserved _geo field.
func placeFromHit(hit map[string]interface{}) Place {
	p := Place{}
	if v, ok := hit["title"].(string); ok {
		p.Title = v
	}
	if v, ok := hit["address"].(string); ok {
		p.Address = v
	}
	if geo, ok := hit["_geo"].(map[string]interface{}); ok {
		if lat, ok := geo["lat"].(float64); ok {
			p.Latitude = lat
		}
		if lon, ok := geo["lng"].(float64); ok {
			p.Longitude = lon
		}
	}
	if v, ok := hit["category"].(string); ok {
		p.Category = v
	}
	if v, ok := hit["cid"].(string); ok {
		p.CID = v
	}
	if v, ok := hit["website"].(string); ok {
		p.Website = v
	}
	if v, ok := hit["rating"].(float64); ok {
		p.Rating = v
	}
	if v, ok := hit["ratingCount"].(float64); ok {
		p.RatingCount = int(v)
	}
	return p
}

// SeedPlaces loads documents into the gazetteer index in batches, configuring
// filterable attributes first so geo queries work.
func (gs *GazetteerSearcher) SeedPlaces(places []Place) error {
	index := gs.client.Index(gs.indexName)

	if _, err := index.UpdateFilterableAttributes(&[]string{"_geo", "category"}); err != nil {
		return fmt.Errorf("configure gazetteer index: %w", err)
	}

	var docs []map[string]interface{}
	for i, p := range places {
		id := p.CID
		if id == "" {
			id = fmt.Sprintf("place-%d", i)
		}
		docs = append(docs, map[string]interface{}{
			"id":          id,
			"title":       p.Title,
			"address":     p.Address,
			"_geo":        map[string]float64{"lat": p.Latitude, "lng": p.Longitude},
			"category":    p.Category,
			"cid":         p.CID,
			"website":     p.Website,
			"rating":      p.Rating,
			"ratingCount": p.RatingCount,
		})
	}

	const batchSize = 1000
	for i := 0; i < len(docs); i += batchSize {
		end := i + batchSize
		if end > len(docs) {
			end = len(docs)
		}
		task, err := index.AddDocuments(docs[i:end], "id")
		if err != nil {
			return fmt.Errorf("seed gazetteer batch %d-%d: %w", i, end, err)
		}
		gs.logger.Info("seeded gazetteer batch",
			zap.Int("from", i),
			zap.Int("to", end),
			zap.Int64("task_uid", task.TaskUID))
	}
	return nil
}
