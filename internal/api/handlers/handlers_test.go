package handlers

import (
	"context"
	"errors"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/ebisiere/crossarb/internal/config"
	"github.com/ebisiere/crossarb/internal/exchange"
	"github.com/ebisiere/crossarb/internal/executor"
	"github.com/ebisiere/crossarb/internal/pricecache"
	"github.com/ebisiere/crossarb/internal/ratelimit"
	"github.com/ebisiere/crossarb/internal/risk"
	"github.com/ebisiere/crossarb/internal/scanner"
	"github.com/ebisiere/crossarb/internal/validator"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

// fakeVenue is a minimal in-memory venue for handler-level tests.
type fakeVenue struct {
	name    string
	tickers map[string]exchange.Ticker
	balance decimal.Decimal
}

func (a *fakeVenue) Name() string { return a.name }
func (a *fakeVenue) GetTicker(ctx context.Context, pair string) (*exchange.Ticker, error) {
	t, ok := a.tickers[pair]
	if !ok {
		return nil, errors.New("no ticker for " + pair)
	}
	return &t, nil
}
func (a *fakeVenue) PlaceMarketOrder(ctx context.Context, side exchange.OrderSide, pair string, amount decimal.Decimal) (*exchange.OrderResult, error) {
	return &exchange.OrderResult{OrderID: "ord", FilledQty: amount, AvgPrice: decimal.NewFromInt(1)}, nil
}
func (a *fakeVenue) Withdraw(ctx context.Context, asset string, amount decimal.Decimal, address, tag string) (*exchange.WithdrawalResult, error) {
	return &exchange.WithdrawalResult{WithdrawalID: "wd"}, nil
}
func (a *fakeVenue) GetBalance(ctx context.Context, asset string) (*exchange.Balance, error) {
	return &exchange.Balance{Available: a.balance}, nil
}
func (a *fakeVenue) OperationalStatus(ctx context.Context) (bool, error) { return true, nil }
func (a *fakeVenue) HasNativeSpread() bool                              { return true }

type stack struct {
	registry     *exchange.Registry
	cache        *pricecache.PriceCache
	scanner      *scanner.Scanner
	admission    *ratelimit.Admission
	orchestrator *executor.Orchestrator
}

// newStack wires a two-venue engine with a live price spread between alpha
// (cheap) and beta (dear).
func newStack(t *testing.T) *stack {
	t.Helper()
	logger := testLogger()

	registry := exchange.NewRegistry(nil, logger)
	registry.Register(&fakeVenue{
		name:    "alpha",
		balance: decimal.NewFromInt(100000),
		tickers: map[string]exchange.Ticker{
			"XRP/USDT": {Bid: decimal.NewFromFloat(0.499), Ask: decimal.NewFromFloat(0.50), Last: decimal.NewFromFloat(0.4995)},
		},
	}, decimal.NewFromFloat(0.001))
	registry.Register(&fakeVenue{
		name:    "beta",
		balance: decimal.NewFromInt(100000),
		tickers: map[string]exchange.Ticker{
			"XRP/USDT": {Bid: decimal.NewFromFloat(0.52), Ask: decimal.NewFromFloat(0.521), Last: decimal.NewFromFloat(0.5205)},
		},
	}, decimal.NewFromFloat(0.001))

	venues := []config.VenueConfig{
		{Name: "alpha", Pairs: []string{"XRP/USDT"}},
		{Name: "beta", Pairs: []string{"XRP/USDT"}},
	}
	cacheCfg := config.PriceCacheConfig{
		IntervalSeconds: 5,
		ReferenceQuote:  "USDT",
		SyntheticSpread: 0.0005,
		CrossRateMaxDev: 0.30,
	}

	cache := pricecache.New(registry, venues, cacheCfg, nil, nil, logger)
	cache.RefreshAll(context.Background())

	s := scanner.New(cache, registry, config.ScannerConfig{}, nil, logger)

	limiter := ratelimit.NewLimiter(config.RateLimitConfig{DefaultIntervalMs: 1}, nil, nil, logger)
	queue := ratelimit.NewQueue(limiter, config.RateLimitConfig{QueueSize: 16}, logger)
	queue.Start()
	t.Cleanup(queue.Stop)

	admission := ratelimit.NewAdmission(nil, logger)
	preflight := validator.New(registry, risk.NewCalculator(logger), nil, cache, "USDT", 0.5, 0.5, logger)

	orchestrator := executor.NewOrchestrator(registry, preflight, queue, admission, config.ExecutionConfig{
		DepositPollSeconds:    1,
		DepositTimeoutMinutes: 1,
		DepositArrivalRatio:   0.95,
		HistorySize:           10,
	}, nil, nil, nil, logger)

	return &stack{
		registry:     registry,
		cache:        cache,
		scanner:      s,
		admission:    admission,
		orchestrator: orchestrator,
	}
}

func testRiskConfig() config.RiskConfig {
	return config.RiskConfig{
		MaxBalancePercent:   25,
		MaxTradeAmountUSD:   2000,
		MinReservePercent:   10,
		MaxConcurrentTrades: 2,
		MaxDailyTrades:      20,
	}
}
