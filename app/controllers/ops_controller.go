package controllers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/place-matcher/app/services"
)

// OpsController exposes run progress over HTTP while a batch is in flight.
type OpsController struct {
	cache      *services.VicinityCache
	ledger     *services.DedupeLedger
	checkpoint *services.CheckpointTracker
	started    time.Time
	logger     *zap.Logger
}

func NewOpsController(cache *services.VicinityCache, ledger *services.DedupeLedger, checkpoint *services.CheckpointTracker, logger *zap.Logger) *OpsController {
	return &OpsController{
		cache:      cache,
		ledger:     ledger,
		checkpoint: checkpoint,
		started:    time.Now(),
		logger:     logger,
	}
}

func (oc *OpsController) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"uptime": time.Since(oc.started).String(),
	})
}

func (oc *OpsController) Progress(c *gin.Context) {
	state := oc.checkpoint.State()
	c.JSON(http.StatusOK, gin.H{
		"last_processed_index": state.LastProcessedIndex,
		"errors":               len(state.Errors),
	})
}

func (oc *OpsController) CacheStats(c *gin.Context) {
	stats := oc.cache.Stats()
	resp := gin.H{
		"hit_rate":   stats.HitRate,
		"total_hits": stats.TotalHits,
		"total_miss": stats.TotalMiss,
		"l1_hits":    stats.L1Hits,
		"l1_items":   stats.L1Items,
	}
	if count, err := oc.ledger.Count(c.Request.Context()); err == nil {
		resp["places_seen"] = count
	} else {
		oc.logger.Warn("ledger count failed", zap.Error(err))
	}
	c.JSON(http.StatusOK, resp)
}
