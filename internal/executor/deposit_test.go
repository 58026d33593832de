package executor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ebisiere/crossarb/internal/exchange"
	"github.com/ebisiere/crossarb/internal/utils"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

// balanceAdapter serves a scripted sequence of balance reads.
type balanceAdapter struct {
	name string

	mu       sync.Mutex
	balances []decimal.Decimal
	errs     []error
	calls    int
}

func (a *balanceAdapter) Name() string { return a.name }
func (a *balanceAdapter) GetBalance(ctx context.Context, asset string) (*exchange.Balance, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	i := a.calls
	a.calls++
	if i < len(a.errs) && a.errs[i] != nil {
		return nil, a.errs[i]
	}
	if i >= len(a.balances) {
		i = len(a.balances) - 1
	}
	if i < 0 {
		return &exchange.Balance{}, nil
	}
	return &exchange.Balance{Available: a.balances[i]}, nil
}
func (a *balanceAdapter) GetTicker(ctx context.Context, pair string) (*exchange.Ticker, error) {
	return nil, nil
}
func (a *balanceAdapter) PlaceMarketOrder(ctx context.Context, side exchange.OrderSide, pair string, amount decimal.Decimal) (*exchange.OrderResult, error) {
	return nil, nil
}
func (a *balanceAdapter) Withdraw(ctx context.Context, asset string, amount decimal.Decimal, address, tag string) (*exchange.WithdrawalResult, error) {
	return nil, nil
}
func (a *balanceAdapter) OperationalStatus(ctx context.Context) (bool, error) { return true, nil }
func (a *balanceAdapter) HasNativeSpread() bool                              { return true }

func TestDepositMonitorConfirmsArrival(t *testing.T) {
	monitor := NewDepositMonitor(5*time.Millisecond, time.Second, 0.95, testLogger())

	// Baseline 100, expecting 50: arrival threshold is 47.5. The balance
	// climbs past it on the third poll.
	adapter := &balanceAdapter{
		name: "kraken",
		balances: []decimal.Decimal{
			decimal.NewFromInt(100),
			decimal.NewFromInt(120),
			decimal.NewFromInt(148),
		},
	}

	increase, err := monitor.Wait(context.Background(), adapter, "XRP",
		decimal.NewFromInt(100), decimal.NewFromInt(50), "wd-1")

	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(48).Equal(increase))
}

func TestDepositMonitorPartialArrivalWithinRatio(t *testing.T) {
	monitor := NewDepositMonitor(5*time.Millisecond, time.Second, 0.95, testLogger())

	// 95% of the expected amount counts as arrived.
	adapter := &balanceAdapter{
		name:     "kraken",
		balances: []decimal.Decimal{decimal.NewFromFloat(47.5)},
	}

	increase, err := monitor.Wait(context.Background(), adapter, "XRP",
		decimal.Zero, decimal.NewFromInt(50), "wd-2")

	require.NoError(t, err)
	assert.True(t, decimal.NewFromFloat(47.5).Equal(increase))
}

func TestDepositMonitorTimesOut(t *testing.T) {
	monitor := NewDepositMonitor(5*time.Millisecond, 40*time.Millisecond, 0.95, testLogger())

	adapter := &balanceAdapter{
		name:     "kraken",
		balances: []decimal.Decimal{decimal.NewFromInt(100)},
	}

	start := time.Now()
	_, err := monitor.Wait(context.Background(), adapter, "XRP",
		decimal.NewFromInt(100), decimal.NewFromInt(50), "wd-3")
	waited := time.Since(start)

	require.Error(t, err)
	var timeout *utils.DepositTimeoutError
	require.True(t, errors.As(err, &timeout))
	assert.Equal(t, "kraken", timeout.Venue)
	assert.Equal(t, "wd-3", timeout.WithdrawalID)
	assert.GreaterOrEqual(t, waited, 40*time.Millisecond, "timeout fires at expiry, not before")
}

func TestDepositMonitorToleratesReadFailures(t *testing.T) {
	monitor := NewDepositMonitor(5*time.Millisecond, time.Second, 0.95, testLogger())

	// Two failed polls only cost their ticks; the third succeeds.
	adapter := &balanceAdapter{
		name:     "kraken",
		errs:     []error{errors.New("read failed"), errors.New("read failed")},
		balances: []decimal.Decimal{decimal.Zero, decimal.Zero, decimal.NewFromInt(50)},
	}

	increase, err := monitor.Wait(context.Background(), adapter, "XRP",
		decimal.Zero, decimal.NewFromInt(50), "wd-4")

	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(50).Equal(increase))
}

func TestDepositMonitorRejectsNonPositiveExpected(t *testing.T) {
	monitor := NewDepositMonitor(5*time.Millisecond, time.Second, 0.95, testLogger())
	adapter := &balanceAdapter{name: "kraken"}

	_, err := monitor.Wait(context.Background(), adapter, "XRP",
		decimal.Zero, decimal.Zero, "wd-5")
	assert.Error(t, err)
}

func TestDepositMonitorRespectsContext(t *testing.T) {
	monitor := NewDepositMonitor(5*time.Millisecond, time.Minute, 0.95, testLogger())
	adapter := &balanceAdapter{name: "kraken", balances: []decimal.Decimal{decimal.Zero}}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := monitor.Wait(ctx, adapter, "XRP", decimal.Zero, decimal.NewFromInt(50), "wd-6")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
