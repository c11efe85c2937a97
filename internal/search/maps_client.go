package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// MapsConfig configures the hosted maps-search client.
type MapsConfig struct {
	Endpoint string
	APIKey   string
	Country  string // gl parameter, e.g. "in"
	Language string // hl parameter, e.g. "en"
	Timeout  time.Duration
	QPS      float64 // max request rate; 0 disables limiting
}

// MapsClient calls a Serper-style maps search endpoint. It owns only the
// per-call timeout and a rate limiter; retries belong to the resolver.
type MapsClient struct {
	cfg     MapsConfig
	http    *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewMapsClient builds the client. Timeout defaults to 30s.
func NewMapsClient(cfg MapsConfig, logger *zap.Logger) *MapsClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	var limiter *rate.Limiter
	if cfg.QPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.QPS), 1)
	}
	return &MapsClient{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: limiter,
		logger:  logger,
	}
}

type mapsRequest struct {
	Q      string `json:"q"`
	Num    int    `json:"num"`
	Start  int    `json:"start"`
	LL     string `json:"ll"`
	GL     string `json:"gl,omitempty"`
	HL     string `json:"hl,omitempty"`
	Radius int    `json:"radius,omitempty"`
}

// Search posts one maps query. A response without a places array is an error
// so the caller's retry loop treats it as transient.
func (mc *MapsClient) Search(ctx context.Context, q Query) (*Response, error) {
	if mc.limiter != nil {
		if err := mc.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	payload := mapsRequest{
		Q:   q.Text,
		Num: q.Limit,
		LL:  fmt.Sprintf("%v,%v", q.Lat, q.Lon),
		GL:  mc.cfg.Country,
		HL:  mc.cfg.Language,
	}
	if q.RadiusMeters > 0 {
		payload.Radius = q.RadiusMeters
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal search payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, mc.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("X-API-KEY", mc.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := mc.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("maps search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("maps search: unexpected status %d", resp.StatusCode)
	}

	var out struct {
		Places []Place `json:"places"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	if out.Places == nil {
		return nil, fmt.Errorf("maps search: response missing places")
	}

	mc.logger.Debug("maps search ok",
		zap.String("q", q.Text),
		zap.Int("places", len(out.Places)))
	return &Response{Places: out.Places}, nil
}
