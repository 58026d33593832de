package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/ebisiere/crossarb/internal/models"
	"github.com/ebisiere/crossarb/internal/scanner"
)

type ScanHandler struct {
	scanner *scanner.Scanner
	rotator *scanner.BridgeRotator
	logger  *logrus.Logger
}

type ScanRequest struct {
	Venues           []string `json:"venues" binding:"required,min=2"`
	Assets           []string `json:"assets" binding:"required,min=1"`
	BridgeAsset      string   `json:"bridge_asset" binding:"required"`
	MinProfitPercent float64  `json:"min_profit_percent"`
	MaxAmount        float64  `json:"max_amount" binding:"required,gt=0"`
}

type ScanResponse struct {
	Opportunities  []models.PathProfitEstimate `json:"opportunities"`
	EvaluatedCount int                         `json:"evaluated_count"`
	SkippedCount   int                         `json:"skipped_count"`
	TotalPaths     int                         `json:"total_paths"`
	Timestamp      time.Time                   `json:"timestamp"`
}

func NewScanHandler(s *scanner.Scanner, rotator *scanner.BridgeRotator, logger *logrus.Logger) *ScanHandler {
	return &ScanHandler{scanner: s, rotator: rotator, logger: logger}
}

// Scan runs one on-demand scan over the requested selection and returns the
// opportunities clearing the requested profit floor, ranked best first.
func (h *ScanHandler) Scan(c *gin.Context) {
	var req ScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid scan request: " + err.Error()})
		return
	}

	result, err := h.scanner.Scan(c.Request.Context(), req.Venues, req.Assets, req.BridgeAsset, decimal.NewFromFloat(req.MaxAmount))
	if err != nil {
		h.logger.WithError(err).Error("Scan failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Scan failed"})
		return
	}

	minProfit := decimal.NewFromFloat(req.MinProfitPercent)
	opportunities := make([]models.PathProfitEstimate, 0, len(result.Estimates))
	for _, est := range result.Estimates {
		if est.Viable && est.ProfitPercent.GreaterThanOrEqual(minProfit) {
			opportunities = append(opportunities, est)
		}
	}

	c.JSON(http.StatusOK, ScanResponse{
		Opportunities:  opportunities,
		EvaluatedCount: result.EvaluatedCount,
		SkippedCount:   result.SkippedCount,
		TotalPaths:     result.EvaluatedCount + result.SkippedCount,
		Timestamp:      result.ScannedAt,
	})
}

// RotatorStatus reports the bridge rotation scanner's best-per-bridge view.
func (h *ScanHandler) RotatorStatus(c *gin.Context) {
	if h.rotator == nil {
		c.JSON(http.StatusOK, gin.H{"running": false})
		return
	}
	c.JSON(http.StatusOK, h.rotator.Status())
}
