// Seeds the local Meilisearch gazetteer from a places CSV so batches can run
// against the offline provider instead of the hosted maps API.
//
// Usage:
//
//	go run ./cmd/seed_gazetteer -input data/places.csv
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/place-matcher/app/models"
	"github.com/place-matcher/internal/search"
)

func main() {
	input := flag.String("input", "data/places.csv", "places CSV: name,address,lat,lon,category,cid,website,rating,reviews")
	host := flag.String("host", envOr("MEILISEARCH_URL", "http://localhost:7700"), "Meilisearch URL")
	apiKey := flag.String("api-key", os.Getenv("MEILISEARCH_MASTER_KEY"), "Meilisearch master key")
	indexName := flag.String("index", "places", "index name")
	flag.Parse()

	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatal("Cannot initialize logger:", err)
	}
	defer logger.Sync()

	places, err := loadPlaces(*input)
	if err != nil {
		logger.Fatal("Failed to load places", zap.Error(err))
	}
	logger.Info("Places loaded", zap.Int("count", len(places)), zap.String("input", *input))

	searcher, err := search.NewGazetteerSearcher(search.GazetteerConfig{
		Host:      *host,
		APIKey:    *apiKey,
		IndexName: *indexName,
		Timeout:   30 * time.Second,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to connect to Meilisearch", zap.Error(err))
	}

	start := time.Now()
	if err := searcher.SeedPlaces(places); err != nil {
		logger.Fatal("Seed failed", zap.Error(err))
	}
	logger.Info("Gazetteer seeded",
		zap.Int("places", len(places)),
		zap.Duration("took", time.Since(start)))
}

func loadPlaces(path string) ([]search.Place, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	field := func(row []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var places []search.Place
	for line := 2; ; line++ {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		lat, latErr := strconv.ParseFloat(field(row, "lat"), 64)
		lon, lonErr := strconv.ParseFloat(field(row, "lon"), 64)
		if latErr != nil || lonErr != nil {
			log.Printf("Warning: line %d has bad coordinates, skipped", line)
			continue
		}
		rating, _ := strconv.ParseFloat(field(row, "rating"), 64)
		reviews := models.ParseReviewCount(field(row, "reviews"))
		places = append(places, search.Place{
			Title:       field(row, "name"),
			Address:     field(row, "address"),
			Latitude:    lat,
			Longitude:   lon,
			Category:    field(row, "category"),
			CID:         field(row, "cid"),
			Website:     field(row, "website"),
			Rating:      rating,
			RatingCount: reviews,
		})
	}
	return places, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
