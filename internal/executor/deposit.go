package executor

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/ebisiere/crossarb/internal/exchange"
	"github.com/ebisiere/crossarb/internal/utils"
)

// DepositMonitor polls a destination venue's balance until an expected
// transfer arrives. The poll suspends only the owning saga's goroutine, never
// the process.
type DepositMonitor struct {
	pollInterval time.Duration
	timeout      time.Duration
	arrivalRatio decimal.Decimal
	logger       *logrus.Logger
}

// NewDepositMonitor creates a monitor. arrivalRatio is the fraction of the
// expected amount that counts as arrival (0.95 buffers network and exchange
// rounding).
func NewDepositMonitor(pollInterval, timeout time.Duration, arrivalRatio float64, logger *logrus.Logger) *DepositMonitor {
	return &DepositMonitor{
		pollInterval: pollInterval,
		timeout:      timeout,
		arrivalRatio: decimal.NewFromFloat(arrivalRatio),
		logger:       logger,
	}
}

// Wait blocks until the adapter's available balance of asset has increased
// over baseline by at least arrivalRatio x expected, returning the observed
// increase. At timeout expiry, and not before, it returns DepositTimeoutError;
// funds are then in flight but unconfirmed, not lost.
func (m *DepositMonitor) Wait(ctx context.Context, adapter exchange.Adapter, asset string, baseline, expected decimal.Decimal, withdrawalID string) (decimal.Decimal, error) {
	if expected.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, utils.NewValidationErrorf("expected deposit amount must be positive, got %s", expected)
	}
	threshold := expected.Mul(m.arrivalRatio)

	m.logger.WithFields(logrus.Fields{
		"venue":     adapter.Name(),
		"asset":     asset,
		"expected":  expected.String(),
		"threshold": threshold.String(),
		"timeout":   m.timeout.String(),
	}).Info("Monitoring destination balance for deposit arrival")

	deadline := time.NewTimer(m.timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return decimal.Zero, ctx.Err()
		case <-deadline.C:
			return decimal.Zero, &utils.DepositTimeoutError{
				Venue:        adapter.Name(),
				Asset:        asset,
				WithdrawalID: withdrawalID,
				Waited:       m.timeout.String(),
			}
		case <-ticker.C:
			balance, err := adapter.GetBalance(ctx, asset)
			if err != nil {
				// Transient read failures only cost one poll tick.
				m.logger.WithError(err).WithField("venue", adapter.Name()).Debug("Balance poll failed")
				continue
			}
			increase := balance.Available.Sub(baseline)
			if increase.GreaterThanOrEqual(threshold) {
				m.logger.WithFields(logrus.Fields{
					"venue":    adapter.Name(),
					"asset":    asset,
					"increase": increase.String(),
				}).Info("Deposit arrival confirmed")
				return increase, nil
			}
		}
	}
}
