package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ebisiere/crossarb/internal/api/handlers"
	"github.com/ebisiere/crossarb/internal/metrics"
)

// Handlers groups the HTTP handlers mounted by SetupRoutes.
type Handlers struct {
	Scan    *handlers.ScanHandler
	Execute *handlers.ExecuteHandler
	Status  *handlers.StatusHandler
}

// SetupRoutes mounts the API surface on the given router.
func SetupRoutes(router *gin.Engine, h Handlers, m *metrics.Metrics) {
	router.GET("/health", h.Status.Health)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/scan", h.Scan.Scan)
		v1.GET("/scanner/status", h.Scan.RotatorStatus)

		v1.POST("/execute", h.Execute.Execute)
		v1.GET("/active-transfers", h.Execute.ActiveTransfers)
		v1.GET("/history", h.Execute.History)

		v1.GET("/price-cache-status", h.Status.PriceCacheStatus)
	}
}
