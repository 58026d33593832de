package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ebisiere/crossarb/internal/database"
	"github.com/ebisiere/crossarb/internal/pricecache"
)

type StatusHandler struct {
	cache *pricecache.PriceCache
	db    *database.PostgresDB
	redis *database.RedisClient
}

func NewStatusHandler(cache *pricecache.PriceCache, db *database.PostgresDB, redis *database.RedisClient) *StatusHandler {
	return &StatusHandler{cache: cache, db: db, redis: redis}
}

// PriceCacheStatus reports per-venue cache freshness.
func (h *StatusHandler) PriceCacheStatus(c *gin.Context) {
	status := h.cache.Status()
	c.JSON(http.StatusOK, gin.H{
		"running":   h.cache.IsRunning(),
		"venues":    status,
		"count":     len(status),
		"timestamp": time.Now(),
	})
}

// Health reports liveness of the engine's backing services.
func (h *StatusHandler) Health(c *gin.Context) {
	services := gin.H{}
	healthy := true

	if h.db != nil {
		if err := h.db.HealthCheck(c.Request.Context()); err != nil {
			services["database"] = "unhealthy: " + err.Error()
			healthy = false
		} else {
			services["database"] = "healthy"
		}
	}

	if h.redis != nil {
		if err := h.redis.HealthCheck(c.Request.Context()); err != nil {
			services["redis"] = "unhealthy: " + err.Error()
			healthy = false
		} else {
			services["redis"] = "healthy"
		}
	}

	if h.cache.IsRunning() {
		services["price_cache"] = "running"
	} else {
		services["price_cache"] = "stopped"
		healthy = false
	}

	status := "healthy"
	code := http.StatusOK
	if !healthy {
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	}

	c.JSON(code, gin.H{
		"status":    status,
		"services":  services,
		"timestamp": time.Now(),
	})
}
