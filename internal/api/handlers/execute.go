package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/ebisiere/crossarb/internal/config"
	"github.com/ebisiere/crossarb/internal/database"
	"github.com/ebisiere/crossarb/internal/executor"
	"github.com/ebisiere/crossarb/internal/models"
	"github.com/ebisiere/crossarb/internal/utils"
	"github.com/ebisiere/crossarb/internal/validator"
)

type ExecuteHandler struct {
	orchestrator *executor.Orchestrator
	historyRepo  *database.HistoryRepository
	riskCfg      config.RiskConfig
	logger       *logrus.Logger
}

type ExecuteRequest struct {
	Opportunity models.PathProfitEstimate   `json:"opportunity" binding:"required"`
	Amount      float64                     `json:"amount"`
	Credentials models.ExecutionCredentials `json:"credentials"`
	Confirm     bool                        `json:"confirm"`
	DryRun      bool                        `json:"dry_run"`
}

type ExecuteResponse struct {
	Success      bool                     `json:"success"`
	Saga         *models.ExecutionSaga    `json:"saga,omitempty"`
	Report       *models.ValidationReport `json:"validation,omitempty"`
	FundLossRisk bool                     `json:"fund_loss_risk,omitempty"`
	Error        string                   `json:"error,omitempty"`
}

func NewExecuteHandler(o *executor.Orchestrator, historyRepo *database.HistoryRepository, riskCfg config.RiskConfig, logger *logrus.Logger) *ExecuteHandler {
	return &ExecuteHandler{orchestrator: o, historyRepo: historyRepo, riskCfg: riskCfg, logger: logger}
}

// Execute runs one arbitrage saga for a previously scanned opportunity.
// Returns 409 when an execution already holds the venue's admission slot and
// 422 with the full check report when pre-flight validation blocks the trade.
func (h *ExecuteHandler) Execute(c *gin.Context) {
	var req ExecuteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid execute request: " + err.Error()})
		return
	}

	amount := req.Opportunity.InputAmount
	if req.Amount > 0 {
		amount = decimal.NewFromFloat(req.Amount)
	}

	opts := validator.Options{
		Live:        !req.DryRun,
		Confirmed:   req.Confirm,
		Credentials: req.Credentials,
		Limits:      h.limits(),
		ActiveCount: h.orchestrator.ActiveCount(),
		DailyCount:  h.dailyCount(c),
	}

	saga, report, err := h.orchestrator.Execute(c.Request.Context(), req.Opportunity.Path, amount, &req.Opportunity, opts)
	if err != nil {
		var busy *utils.BusyError
		if errors.As(err, &busy) {
			c.JSON(http.StatusConflict, ExecuteResponse{Success: false, Error: err.Error()})
			return
		}
		h.logger.WithError(err).Error("Execution request failed")
		c.JSON(http.StatusInternalServerError, ExecuteResponse{Success: false, Error: err.Error()})
		return
	}

	if saga.State == models.SagaValidationFailed {
		resp := ExecuteResponse{Success: false, Saga: saga, Report: report, Error: saga.Error}
		if failing := report.FailedCheck(); failing != nil && failing.FundLossRisk {
			resp.FundLossRisk = true
		}
		c.JSON(http.StatusUnprocessableEntity, resp)
		return
	}

	c.JSON(http.StatusOK, ExecuteResponse{Success: saga.Succeeded(), Saga: saga, Report: report, Error: saga.Error})
}

// ActiveTransfers lists sagas currently in flight.
func (h *ExecuteHandler) ActiveTransfers(c *gin.Context) {
	active := h.orchestrator.ActiveSagas()
	c.JSON(http.StatusOK, gin.H{
		"transfers": active,
		"count":     len(active),
		"timestamp": time.Now(),
	})
}

// History returns recent terminal sagas from the in-memory ring, falling back
// to the repository when the ring holds fewer entries than requested.
func (h *ExecuteHandler) History(c *gin.Context) {
	limitStr := c.DefaultQuery("limit", "20")
	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit < 1 || limit > 100 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit parameter (1-100)"})
		return
	}

	recent := h.orchestrator.History().Recent(limit)
	if len(recent) < limit && h.historyRepo != nil {
		stored, err := h.historyRepo.ListRecent(c.Request.Context(), limit)
		if err != nil {
			h.logger.WithError(err).Warn("Failed to read persisted history, serving in-memory entries")
		} else if len(stored) > len(recent) {
			c.JSON(http.StatusOK, gin.H{"history": stored, "count": len(stored)})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"history": recent, "count": len(recent)})
}

func (h *ExecuteHandler) limits() models.RiskLimits {
	return models.RiskLimits{
		MaxBalancePercent:   decimal.NewFromFloat(h.riskCfg.MaxBalancePercent),
		MaxTradeAmountUSD:   decimal.NewFromFloat(h.riskCfg.MaxTradeAmountUSD),
		MinReservePercent:   decimal.NewFromFloat(h.riskCfg.MinReservePercent),
		MaxConcurrentTrades: h.riskCfg.MaxConcurrentTrades,
		MaxDailyTrades:      h.riskCfg.MaxDailyTrades,
	}
}

func (h *ExecuteHandler) dailyCount(c *gin.Context) int {
	if h.historyRepo == nil {
		return 0
	}
	midnight := time.Now().Truncate(24 * time.Hour)
	count, err := h.historyRepo.CountSince(c.Request.Context(), midnight)
	if err != nil {
		h.logger.WithError(err).Warn("Failed to count today's executions")
		return 0
	}
	return count
}
