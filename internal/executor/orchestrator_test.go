package executor

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ebisiere/crossarb/internal/config"
	"github.com/ebisiere/crossarb/internal/exchange"
	"github.com/ebisiere/crossarb/internal/models"
	"github.com/ebisiere/crossarb/internal/ratelimit"
	"github.com/ebisiere/crossarb/internal/risk"
	"github.com/ebisiere/crossarb/internal/utils"
	"github.com/ebisiere/crossarb/internal/validator"
)

const validXRPAddress = "rN7n7otQDd6FczFgLdSqtcsAUxDkw6fzRH"

// tradeAdapter is a scriptable venue for saga tests.
type tradeAdapter struct {
	name    string
	tickers map[string]exchange.Ticker

	mu            sync.Mutex
	balances      map[string]decimal.Decimal
	orderResult   *exchange.OrderResult
	orderErr      error
	withdrawalID  string
	withdrawErr   error
	balanceAfter  map[string]decimal.Decimal
	balanceCalls  map[string]int
}

func (a *tradeAdapter) Name() string { return a.name }
func (a *tradeAdapter) GetTicker(ctx context.Context, pair string) (*exchange.Ticker, error) {
	t, ok := a.tickers[pair]
	if !ok {
		return nil, errors.New("no ticker for " + pair)
	}
	return &t, nil
}
func (a *tradeAdapter) PlaceMarketOrder(ctx context.Context, side exchange.OrderSide, pair string, amount decimal.Decimal) (*exchange.OrderResult, error) {
	if a.orderErr != nil {
		return nil, a.orderErr
	}
	return a.orderResult, nil
}
func (a *tradeAdapter) Withdraw(ctx context.Context, asset string, amount decimal.Decimal, address, tag string) (*exchange.WithdrawalResult, error) {
	if a.withdrawErr != nil {
		return nil, a.withdrawErr
	}
	return &exchange.WithdrawalResult{WithdrawalID: a.withdrawalID}, nil
}

// GetBalance serves balances, switching an asset to its balanceAfter value
// from the second read on. That models a deposit landing between the baseline
// snapshot and the first monitor poll.
func (a *tradeAdapter) GetBalance(ctx context.Context, asset string) (*exchange.Balance, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.balanceCalls == nil {
		a.balanceCalls = make(map[string]int)
	}
	a.balanceCalls[asset]++

	if after, ok := a.balanceAfter[asset]; ok && a.balanceCalls[asset] > 1 {
		return &exchange.Balance{Available: after}, nil
	}
	return &exchange.Balance{Available: a.balances[asset]}, nil
}
func (a *tradeAdapter) OperationalStatus(ctx context.Context) (bool, error) { return true, nil }
func (a *tradeAdapter) HasNativeSpread() bool                              { return true }

type recordingStore struct {
	mu    sync.Mutex
	sagas []*models.ExecutionSaga
}

func (s *recordingStore) Append(ctx context.Context, saga *models.ExecutionSaga) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sagas = append(s.sagas, saga)
	return nil
}

type recordingNotifier struct {
	mu    sync.Mutex
	sagas []*models.ExecutionSaga
}

func (n *recordingNotifier) NotifySagaTerminal(ctx context.Context, saga *models.ExecutionSaga) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sagas = append(n.sagas, saga)
}

type sagaFixture struct {
	orchestrator *Orchestrator
	admission    *ratelimit.Admission
	queue        *ratelimit.Queue
	source       *tradeAdapter
	dest         *tradeAdapter
	store        *recordingStore
	notifier     *recordingNotifier
}

func newSagaFixture(t *testing.T) *sagaFixture {
	t.Helper()
	logger := testLogger()

	source := &tradeAdapter{
		name: "binance",
		tickers: map[string]exchange.Ticker{
			"XRP/USDT": {Bid: decimal.NewFromFloat(0.499), Ask: decimal.NewFromFloat(0.50), Last: decimal.NewFromFloat(0.4995)},
		},
		balances:     map[string]decimal.Decimal{"USDT": decimal.NewFromInt(10000)},
		orderResult:  &exchange.OrderResult{OrderID: "ord-1", FilledQty: decimal.NewFromInt(1998), AvgPrice: decimal.NewFromFloat(0.5005)},
		withdrawalID: "wd-1",
	}
	dest := &tradeAdapter{
		name: "kraken",
		tickers: map[string]exchange.Ticker{
			"XRP/USDT": {Bid: decimal.NewFromFloat(0.52), Ask: decimal.NewFromFloat(0.521), Last: decimal.NewFromFloat(0.5205)},
		},
		balances:     map[string]decimal.Decimal{"XRP": decimal.Zero},
		balanceAfter: map[string]decimal.Decimal{"XRP": decimal.NewFromFloat(1997.8)},
		orderResult:  &exchange.OrderResult{OrderID: "ord-2", FilledQty: decimal.NewFromFloat(1997.8), AvgPrice: decimal.NewFromFloat(0.52)},
	}

	registry := exchange.NewRegistry(nil, logger)
	registry.Register(source, decimal.NewFromFloat(0.001))
	registry.Register(dest, decimal.NewFromFloat(0.001))

	limiter := ratelimit.NewLimiter(config.RateLimitConfig{DefaultIntervalMs: 1}, nil, nil, logger)
	queue := ratelimit.NewQueue(limiter, config.RateLimitConfig{QueueSize: 16}, logger)
	queue.Start()
	t.Cleanup(queue.Stop)

	admission := ratelimit.NewAdmission(nil, logger)
	preflight := validator.New(registry, risk.NewCalculator(logger), nil, nil, "USDT", 0.5, 0.5, logger)

	store := &recordingStore{}
	notifier := &recordingNotifier{}

	orchestrator := NewOrchestrator(registry, preflight, queue, admission, config.ExecutionConfig{
		DepositPollSeconds:    1,
		DepositTimeoutMinutes: 1,
		DepositArrivalRatio:   0.95,
		HistorySize:           10,
	}, store, notifier, nil, logger)

	return &sagaFixture{
		orchestrator: orchestrator,
		admission:    admission,
		queue:        queue,
		source:       source,
		dest:         dest,
		store:        store,
		notifier:     notifier,
	}
}

func sagaPath() models.ArbitragePath {
	return models.ArbitragePath{
		ID:          "path-1",
		SourceVenue: "binance",
		DestVenue:   "kraken",
		SourceAsset: "USDT",
		DestAsset:   "USDT",
		BridgeAsset: "XRP",
	}
}

func sagaOptions() validator.Options {
	return validator.Options{
		Live:      true,
		Confirmed: true,
		Credentials: models.ExecutionCredentials{
			DepositAddress: validXRPAddress,
			DepositTag:     "12345",
		},
		Limits: models.RiskLimits{
			MaxBalancePercent:   decimal.NewFromInt(25),
			MaxTradeAmountUSD:   decimal.NewFromInt(2000),
			MinReservePercent:   decimal.NewFromInt(10),
			MaxConcurrentTrades: 2,
			MaxDailyTrades:      20,
		},
	}
}

func sagaEstimate(amount decimal.Decimal) *models.PathProfitEstimate {
	return &models.PathProfitEstimate{
		Path:          sagaPath(),
		InputAmount:   amount,
		ProfitAmount:  decimal.NewFromFloat(37.8),
		ProfitPercent: decimal.NewFromFloat(3.78),
		Viable:        true,
	}
}

func TestExecuteHappyPath(t *testing.T) {
	f := newSagaFixture(t)
	amount := decimal.NewFromInt(1000)

	saga, report, err := f.orchestrator.Execute(context.Background(), sagaPath(), amount, sagaEstimate(amount), sagaOptions())

	require.NoError(t, err)
	require.NotNil(t, saga)
	assert.True(t, report.Passed)

	assert.Equal(t, models.SagaCompleted, saga.State)
	assert.True(t, saga.Succeeded())
	assert.Equal(t, "wd-1", saga.WithdrawalID)
	require.NotNil(t, saga.EndedAt)

	// output = 1997.8 * 0.52 = 1038.856
	assert.True(t, decimal.NewFromFloat(38.856).Equal(saga.ActualProfit), "actual profit %s", saga.ActualProfit)

	// The leg log walks the full state machine in order.
	var states []models.SagaState
	for _, rec := range saga.LegLog {
		states = append(states, rec.State)
	}
	assert.Equal(t, []models.SagaState{
		models.SagaValidating,
		models.SagaBuyPending, models.SagaBuyDone,
		models.SagaWithdrawPending, models.SagaWithdrawDone,
		models.SagaMonitorDeposit, models.SagaDepositConfirmed,
		models.SagaSellPending, models.SagaSellDone,
	}, states)

	// Slots released, saga recorded everywhere.
	assert.False(t, f.admission.Held("binance"))
	assert.False(t, f.admission.Held("kraken"))
	assert.Equal(t, 0, f.orchestrator.ActiveCount())
	assert.Equal(t, 1, f.orchestrator.History().Len())
	assert.Len(t, f.store.sagas, 1)
	assert.Len(t, f.notifier.sagas, 1)
}

func TestExecuteBusyVenue(t *testing.T) {
	f := newSagaFixture(t)
	amount := decimal.NewFromInt(1000)

	_, err := f.admission.Acquire("other-saga", "binance")
	require.NoError(t, err)

	saga, report, err := f.orchestrator.Execute(context.Background(), sagaPath(), amount, sagaEstimate(amount), sagaOptions())

	require.Error(t, err)
	var busy *utils.BusyError
	assert.True(t, errors.As(err, &busy))
	assert.Nil(t, saga)
	assert.Nil(t, report)

	// A rejected execution leaves no trace.
	assert.Equal(t, 0, f.orchestrator.History().Len())
	assert.Empty(t, f.store.sagas)
}

func TestExecuteValidationFailed(t *testing.T) {
	f := newSagaFixture(t)
	amount := decimal.NewFromInt(1000)

	est := sagaEstimate(amount)
	est.Viable = false

	saga, report, err := f.orchestrator.Execute(context.Background(), sagaPath(), amount, est, sagaOptions())

	require.NoError(t, err)
	require.NotNil(t, saga)
	assert.Equal(t, models.SagaValidationFailed, saga.State)
	assert.False(t, report.Passed)
	assert.NotEmpty(t, saga.Error)

	// No order was placed; the slot is free again and the outcome recorded.
	assert.False(t, f.admission.Held("binance"))
	assert.Equal(t, 1, f.orchestrator.History().Len())
	assert.Len(t, f.notifier.sagas, 1)
}

func TestExecuteBuyFailure(t *testing.T) {
	f := newSagaFixture(t)
	amount := decimal.NewFromInt(1000)

	f.source.orderErr = errors.New("exchange rejected order")

	saga, _, err := f.orchestrator.Execute(context.Background(), sagaPath(), amount, sagaEstimate(amount), sagaOptions())

	require.NoError(t, err)
	require.NotNil(t, saga)
	assert.Equal(t, models.SagaFailed, saga.State)
	assert.Contains(t, saga.Error, "exchange rejected order")
	assert.Empty(t, saga.WithdrawalID)

	assert.False(t, f.admission.Held("binance"))
	assert.False(t, f.admission.Held("kraken"))
}

func TestExecuteWithdrawFailureAfterBuy(t *testing.T) {
	f := newSagaFixture(t)
	amount := decimal.NewFromInt(1000)

	f.source.withdrawErr = errors.New("withdrawals suspended")

	saga, _, err := f.orchestrator.Execute(context.Background(), sagaPath(), amount, sagaEstimate(amount), sagaOptions())

	require.NoError(t, err)
	assert.Equal(t, models.SagaFailed, saga.State)
	assert.Contains(t, saga.Error, "withdrawals suspended")

	// The buy leg is still on record; nothing is rolled back.
	var sawBuyDone bool
	for _, rec := range saga.LegLog {
		if rec.State == models.SagaBuyDone {
			sawBuyDone = true
		}
	}
	assert.True(t, sawBuyDone)
}

func TestExecuteSecondSagaAfterFirstCompletes(t *testing.T) {
	f := newSagaFixture(t)
	amount := decimal.NewFromInt(1000)

	saga1, _, err := f.orchestrator.Execute(context.Background(), sagaPath(), amount, sagaEstimate(amount), sagaOptions())
	require.NoError(t, err)
	require.Equal(t, models.SagaCompleted, saga1.State)

	// Reset the scripted deposit arrival for the second run.
	f.dest.mu.Lock()
	f.dest.balanceCalls = nil
	f.dest.mu.Unlock()

	saga2, _, err := f.orchestrator.Execute(context.Background(), sagaPath(), amount, sagaEstimate(amount), sagaOptions())
	require.NoError(t, err)
	assert.Equal(t, models.SagaCompleted, saga2.State)
	assert.Equal(t, 2, f.orchestrator.History().Len())
}
