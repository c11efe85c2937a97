package main

import (
	"context"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/viper"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/place-matcher/app/config"
	"github.com/place-matcher/app/controllers"
	"github.com/place-matcher/app/services"
	"github.com/place-matcher/internal/matcher"
	"github.com/place-matcher/internal/normalizer"
	"github.com/place-matcher/internal/search"
	"github.com/place-matcher/internal/sink"
	"github.com/place-matcher/internal/source"
	"github.com/place-matcher/routes"
)

func main() {
	// 1. Load configuration
	loadConfig()
	if err := config.Load(viper.GetString("matcher.config")); err != nil {
		log.Fatalf("Cannot load matcher config: %v", err)
	}

	// 2. Init logger
	logger := initLogger()
	defer logger.Sync()

	logger.Info("Starting Place Matcher")

	// 3. Stores: vicinity cache KV + dedupe ledger
	kv, ledgerStore := initStores(logger)
	defer kv.Close()
	defer ledgerStore.Close()

	// 4. Candidate provider
	provider := initProvider(logger)

	// 5. Matching components
	tn := normalizer.NewTextNormalizer(config.C.Synonyms)
	classifier := matcher.NewCategoryClassifier(config.C.Allowlist, config.C.SubstringCat)
	scorer := matcher.NewScorer(scorerConfig(), tn, classifier)

	// 6. Cache, ledger, checkpoint
	cache, err := services.NewVicinityCache(kv, viper.GetInt("cache.l1_size"), config.C.RoundDigits, logger)
	if err != nil {
		logger.Fatal("Failed to initialize vicinity cache", zap.Error(err))
	}
	ledger := services.NewDedupeLedger(ledgerStore, logger)

	checkpoint, err := services.NewCheckpointTracker(viper.GetString("paths.checkpoint"), logger)
	if err != nil {
		logger.Fatal("Failed to initialize checkpoint tracker", zap.Error(err))
	}

	// 7. Input and sinks
	records, headers, err := source.LoadCSV(viper.GetString("paths.input"), source.DefaultColumnMap())
	if err != nil {
		logger.Fatal("Failed to load input", zap.Error(err))
	}
	logger.Info("Input loaded", zap.Int("records", len(records)))

	primary, audit, result := initSinks(headers, logger)
	defer primary.Close()
	defer audit.Close()
	defer result.Close()

	// 8. Resolver
	resolver := services.NewResolverService(
		provider, cache, ledger, checkpoint, tn, classifier, scorer,
		primary, audit, result, resolverConfig(), logger)

	// 9. Optional ops endpoint while the batch runs
	if port := viper.GetString("ops.port"); port != "" {
		go func() {
			gin.SetMode(gin.ReleaseMode)
			router := gin.New()
			router.Use(gin.Recovery())
			ops := controllers.NewOpsController(cache, ledger, checkpoint, logger)
			routes.SetupOpsRoutes(router, ops)
			logger.Info("Ops endpoint listening", zap.String("port", port))
			if err := router.Run(":" + port); err != nil {
				logger.Warn("Ops endpoint stopped", zap.Error(err))
			}
		}()
	}

	// 10. Run with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := resolver.Run(ctx, records, headers); err != nil {
		if ctx.Err() != nil {
			logger.Warn("Run interrupted; checkpoint preserved for resume", zap.Error(err))
			return
		}
		logger.Fatal("Run failed", zap.Error(err))
	}

	stats := cache.Stats()
	logger.Info("Batch complete",
		zap.Float64("cache_hit_rate", stats.HitRate),
		zap.Int64("cache_hits", stats.TotalHits),
		zap.Int64("cache_misses", stats.TotalMiss))
}

// loadConfig loads infra configuration from file and env vars.
func loadConfig() {
	viper.SetConfigName("app")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	viper.AddConfigPath(".")

	viper.SetDefault("app.env", "development")
	viper.SetDefault("matcher.config", "config/matcher.yaml")
	viper.SetDefault("store.backend", "sqlite")
	viper.SetDefault("store.sqlite_path", "data/place_matcher.db")
	viper.SetDefault("mongo.url", "mongodb://localhost:27017/place_matcher")
	viper.SetDefault("redis.url", "")
	viper.SetDefault("cache.l1_size", 10000)
	viper.SetDefault("provider.kind", "maps")
	viper.SetDefault("provider.endpoint", "https://google.serper.dev/maps")
	viper.SetDefault("provider.country", "in")
	viper.SetDefault("provider.language", "en")
	viper.SetDefault("provider.qps", 2.0)
	viper.SetDefault("meilisearch.url", "http://localhost:7700")
	viper.SetDefault("meilisearch.master_key", "")
	viper.SetDefault("meilisearch.index", "places")
	viper.SetDefault("paths.input", "data/input.csv")
	viper.SetDefault("paths.primary_out", "data/matches.csv")
	viper.SetDefault("paths.audit_out", "data/eliminated.csv")
	viper.SetDefault("paths.result_out", "data/results.csv")
	viper.SetDefault("paths.checkpoint", "data/checkpoint.json")
	viper.SetDefault("ops.port", "")

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Warning: Cannot read config file: %v", err)
	}
}

func initLogger() *zap.Logger {
	env := getEnv("APP_ENV", "development")

	var cfg zap.Config
	if env == "production" {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
	}

	logger, err := cfg.Build()
	if err != nil {
		log.Fatal("Cannot initialize logger:", err)
	}
	return logger
}

// initStores picks the persistence backend. SQLite is the default for a
// single-host batch; mongo shares the cache and ledger across hosts; a
// populated redis.url adds a hot tier over either.
func initStores(logger *zap.Logger) (services.KVStore, services.LedgerStore) {
	var kv services.KVStore
	var ledger services.LedgerStore

	switch backend := viper.GetString("store.backend"); backend {
	case "mongo":
		db := initMongoDB(logger)
		store, err := services.NewMongoStore(db, logger)
		if err != nil {
			logger.Fatal("Failed to initialize Mongo store", zap.Error(err))
		}
		kv, ledger = store, store
	case "sqlite":
		store, err := services.NewSQLiteStore(viper.GetString("store.sqlite_path"), logger)
		if err != nil {
			logger.Fatal("Failed to initialize SQLite store", zap.Error(err))
		}
		kv, ledger = store, store
	default:
		logger.Fatal("Unknown store backend", zap.String("backend", backend))
	}

	if redisURL := viper.GetString("redis.url"); redisURL != "" {
		hot, err := services.NewRedisStore(redisURL, 24*time.Hour, logger)
		if err != nil {
			logger.Fatal("Failed to initialize Redis store", zap.Error(err))
		}
		kv = services.NewTieredStore(hot, kv, logger)
	}
	return kv, ledger
}

func initProvider(logger *zap.Logger) search.Provider {
	switch kind := viper.GetString("provider.kind"); kind {
	case "maps":
		apiKey := os.Getenv("SERPER_API_KEY")
		if apiKey == "" {
			logger.Fatal("SERPER_API_KEY is required for the maps provider")
		}
		return search.NewMapsClient(search.MapsConfig{
			Endpoint: viper.GetString("provider.endpoint"),
			APIKey:   apiKey,
			Country:  viper.GetString("provider.country"),
			Language: viper.GetString("provider.language"),
			Timeout:  config.SearchTimeout(),
			QPS:      viper.GetFloat64("provider.qps"),
		}, logger)
	case "gazetteer":
		searcher, err := search.NewGazetteerSearcher(search.GazetteerConfig{
			Host:      viper.GetString("meilisearch.url"),
			APIKey:    viper.GetString("meilisearch.master_key"),
			IndexName: viper.GetString("meilisearch.index"),
			Timeout:   config.SearchTimeout(),
		}, logger)
		if err != nil {
			logger.Fatal("Failed to initialize gazetteer searcher", zap.Error(err))
		}
		return searcher
	default:
		logger.Fatal("Unknown provider kind", zap.String("kind", kind))
		return nil
	}
}

func initMongoDB(logger *zap.Logger) *mongo.Database {
	mongoURL := viper.GetString("mongo.url")

	client, err := mongo.Connect(context.Background(), options.Client().ApplyURI(mongoURL))
	if err != nil {
		logger.Fatal("Failed to connect to MongoDB", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.Ping(ctx, nil); err != nil {
		logger.Fatal("Failed to ping MongoDB", zap.Error(err))
	}

	dbName := "place_matcher"
	if u, err := url.Parse(mongoURL); err == nil {
		if name := strings.Trim(u.Path, "/"); name != "" {
			dbName = name
		}
	}

	logger.Info("Connected to MongoDB", zap.String("database", dbName))
	return client.Database(dbName)
}

func initSinks(headers []string, logger *zap.Logger) (primary, audit, result sink.Sink) {
	var err error
	primary, err = sink.NewCSVSink(viper.GetString("paths.primary_out"), sink.PrimaryColumns)
	if err != nil {
		logger.Fatal("Failed to open primary output", zap.Error(err))
	}
	audit, err = sink.NewCSVSink(viper.GetString("paths.audit_out"), sink.AuditColumns)
	if err != nil {
		logger.Fatal("Failed to open audit output", zap.Error(err))
	}
	result, err = sink.NewCSVSink(viper.GetString("paths.result_out"), sink.ResultColumns(headers))
	if err != nil {
		logger.Fatal("Failed to open result output", zap.Error(err))
	}
	return primary, audit, result
}

func scorerConfig() matcher.ScorerConfig {
	return matcher.ScorerConfig{
		Weights:       config.C.EffectiveWeights(),
		ReviewTiers:   config.C.Reviews.Tiers,
		BrandTokens:   config.C.Brands,
		OverrideOn:    config.C.OverrideOn,
		OverrideMaxKm: config.C.Thresholds.OverrideMaxKm,
	}
}

func resolverConfig() services.ResolverConfig {
	cfg := services.DefaultResolverConfig()
	cfg.QueryKeyword = config.C.Search.Keyword
	cfg.Country = config.C.Search.Country
	cfg.ResultLimit = config.C.Search.ResultLimit
	cfg.RadiusMeters = config.C.Search.RadiusMeters
	cfg.ShortlistSize = config.C.Shortlist
	cfg.AcceptThreshold = config.C.Thresholds.Accept
	cfg.MinReviews = config.C.Reviews.MinReviews
	cfg.Region = matcher.BoundingBox{
		LatMin: config.C.Region.LatMin, LatMax: config.C.Region.LatMax,
		LonMin: config.C.Region.LonMin, LonMax: config.C.Region.LonMax,
	}
	cfg.RegionTokens = config.C.RegionTokens
	return cfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
