package risk

import (
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/ebisiere/crossarb/internal/exchange"
	"github.com/ebisiere/crossarb/internal/models"
	"github.com/ebisiere/crossarb/internal/utils"
)

// Calculator sizes a safe trade amount against the operator's risk limits.
type Calculator struct {
	logger *logrus.Logger
}

// NewCalculator creates a risk calculator.
func NewCalculator(logger *logrus.Logger) *Calculator {
	return &Calculator{logger: logger}
}

// SizeTrade computes the recommended trade amount in units of the trade asset:
// the minimum of the balance left after the reserve, the portfolio-percentage
// cap, and the absolute USD cap converted via refUSDRate. When no live rate is
// available (zero), a static approximate table supplies the conversion. The
// result is never negative, and exactly one constraint is reported as binding
// whenever the recommendation is below the available balance.
func (c *Calculator) SizeTrade(asset string, available decimal.Decimal, limits models.RiskLimits, refUSDRate decimal.Decimal) models.TradeSizing {
	hundred := decimal.NewFromInt(100)

	reserve := available.Mul(limits.MinReservePercent).Div(hundred)
	afterReserve := available.Sub(reserve)
	maxByPercentage := available.Mul(limits.MaxBalancePercent).Div(hundred)

	rate := refUSDRate
	if rate.LessThanOrEqual(decimal.Zero) {
		rate = exchange.ApproxUSDRate(asset)
	}
	maxByAbsolute := available
	if rate.GreaterThan(decimal.Zero) {
		maxByAbsolute = limits.MaxTradeAmountUSD.Div(rate)
	}

	recommended := afterReserve
	binding := models.ConstraintReserve
	if maxByPercentage.LessThan(recommended) {
		recommended = maxByPercentage
		binding = models.ConstraintPercentage
	}
	if maxByAbsolute.LessThan(recommended) {
		recommended = maxByAbsolute
		binding = models.ConstraintAbsolute
	}

	if recommended.LessThan(decimal.Zero) {
		recommended = decimal.Zero
	}
	if recommended.GreaterThanOrEqual(available) {
		binding = models.ConstraintNone
	}

	sizing := models.TradeSizing{
		RecommendedAmount:   recommended,
		BindingConstraint:   binding,
		BalanceAfterReserve: afterReserve,
		MaxByPercentage:     maxByPercentage,
		MaxByAbsolute:       maxByAbsolute,
	}

	c.logger.WithFields(logrus.Fields{
		"asset":       asset,
		"available":   available.String(),
		"recommended": recommended.String(),
		"binding":     binding,
	}).Debug("Sized trade amount")

	return sizing
}

// CheckDailyCount verifies today's trade count is below the daily limit.
// Advisory gate consumed by the pre-flight validator.
func (c *Calculator) CheckDailyCount(todayCount int, limits models.RiskLimits) error {
	if limits.MaxDailyTrades > 0 && todayCount >= limits.MaxDailyTrades {
		return utils.NewValidationErrorf("daily trade limit reached (%d/%d)", todayCount, limits.MaxDailyTrades)
	}
	return nil
}

// CheckConcurrent verifies the number of in-flight trades is below the limit.
func (c *Calculator) CheckConcurrent(activeCount int, limits models.RiskLimits) error {
	if limits.MaxConcurrentTrades > 0 && activeCount >= limits.MaxConcurrentTrades {
		return utils.NewValidationErrorf("concurrent trade limit reached (%d/%d)", activeCount, limits.MaxConcurrentTrades)
	}
	return nil
}
