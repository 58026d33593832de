package executor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/ebisiere/crossarb/internal/config"
	"github.com/ebisiere/crossarb/internal/exchange"
	"github.com/ebisiere/crossarb/internal/metrics"
	"github.com/ebisiere/crossarb/internal/models"
	"github.com/ebisiere/crossarb/internal/ratelimit"
	"github.com/ebisiere/crossarb/internal/utils"
	"github.com/ebisiere/crossarb/internal/validator"
)

// HistoryStore persists terminal sagas. Satisfied by the postgres repository.
type HistoryStore interface {
	Append(ctx context.Context, saga *models.ExecutionSaga) error
}

// Notifier receives saga terminal-state alerts.
type Notifier interface {
	NotifySagaTerminal(ctx context.Context, saga *models.ExecutionSaga)
}

// Orchestrator drives one multi-leg arbitrage transaction end to end: admission,
// validation, buy, withdraw, deposit monitoring, sell. There is no automatic
// retry or rollback of completed legs; a withdrawal once submitted is
// irreversible, so failures after that point are handed to the operator with
// the recorded withdrawal identifier.
type Orchestrator struct {
	registry  *exchange.Registry
	validator *validator.PreFlightValidator
	queue     *ratelimit.Queue
	admission *ratelimit.Admission
	monitor   *DepositMonitor
	history   *History
	store     HistoryStore
	notifier  Notifier
	metrics   *metrics.Metrics
	logger    *logrus.Logger

	mu       sync.RWMutex
	inflight map[string]*models.ExecutionSaga
}

// NewOrchestrator wires the orchestrator with its collaborators.
func NewOrchestrator(
	registry *exchange.Registry,
	v *validator.PreFlightValidator,
	queue *ratelimit.Queue,
	admission *ratelimit.Admission,
	cfg config.ExecutionConfig,
	store HistoryStore,
	notifier Notifier,
	m *metrics.Metrics,
	logger *logrus.Logger,
) *Orchestrator {
	return &Orchestrator{
		registry:  registry,
		validator: v,
		queue:     queue,
		admission: admission,
		monitor: NewDepositMonitor(
			time.Duration(cfg.DepositPollSeconds)*time.Second,
			time.Duration(cfg.DepositTimeoutMinutes)*time.Minute,
			cfg.DepositArrivalRatio,
			logger,
		),
		history:  NewHistory(cfg.HistorySize),
		store:    store,
		notifier: notifier,
		metrics:  m,
		logger:   logger,
		inflight: make(map[string]*models.ExecutionSaga),
	}
}

// Execute runs one saga. A BusyError is returned without creating any record
// when an execution already holds a required admission slot. On validation
// failure the saga terminates at VALIDATION_FAILED and the report is returned
// alongside it.
func (o *Orchestrator) Execute(ctx context.Context, path models.ArbitragePath, amount decimal.Decimal, estimate *models.PathProfitEstimate, opts validator.Options) (*models.ExecutionSaga, *models.ValidationReport, error) {
	saga := &models.ExecutionSaga{
		ID:        uuid.New().String(),
		Path:      path,
		Amount:    amount,
		State:     models.SagaInitiated,
		StartedAt: time.Now(),
	}
	if estimate != nil {
		saga.EstimatedProfit = estimate.ProfitAmount
	}

	keys := []string{path.SourceVenue}
	if path.DestVenue != path.SourceVenue {
		keys = append(keys, path.DestVenue)
	}
	token, err := o.admission.Acquire(saga.ID, keys...)
	if err != nil {
		return nil, nil, err
	}

	o.trackStart(saga)
	defer func() {
		// The slot must be released no matter how the saga terminates, or the
		// venue would be locked out permanently.
		o.admission.Release(token)
		o.finalize(saga)
	}()

	log := o.logger.WithFields(logrus.Fields{"saga_id": saga.ID, "route": path.Describe()})
	log.WithField("amount", amount.String()).Info("Execution started")

	// Pre-flight validation.
	o.transition(saga, models.SagaValidating, models.LegRecord{Step: "validate"})
	report := o.validator.Validate(ctx, path, amount, estimate, opts)
	if !report.Passed {
		failing := report.FailedCheck()
		saga.State = models.SagaValidationFailed
		if failing != nil {
			saga.Error = failing.Message
		}
		log.WithField("error", saga.Error).Warn("Execution blocked by pre-flight validation")
		return saga, report, nil
	}

	// Buy leg: the first chargeable operation. Everything after it runs on a
	// context detached from caller cancellation; in-flight money movements
	// must not be abandoned halfway.
	o.transition(saga, models.SagaBuyPending, models.LegRecord{Step: "buy", Detail: path.SourcePair() + " on " + path.SourceVenue})
	srcAdapter, err := o.registry.Get(path.SourceVenue)
	if err != nil {
		return o.fail(saga, "buy", err), report, nil
	}

	var buyResult *exchange.OrderResult
	err = o.queue.Do(ctx, path.SourceVenue, func(ctx context.Context) error {
		var opErr error
		buyResult, opErr = srcAdapter.PlaceMarketOrder(ctx, exchange.SideBuy, path.SourcePair(), amount)
		return opErr
	})
	if err != nil {
		return o.fail(saga, "buy", err), report, nil
	}
	o.transition(saga, models.SagaBuyDone, models.LegRecord{
		Step:      "buy",
		OrderID:   buyResult.OrderID,
		FilledQty: buyResult.FilledQty,
		AvgPrice:  buyResult.AvgPrice,
	})

	postBuy := context.WithoutCancel(ctx)
	bridgeQty := buyResult.FilledQty

	// Withdraw leg. Address and tag are re-validated at the point of transfer;
	// a missing required tag here is a fatal safety stop, not a retry case.
	if exchange.TagRequired(path.BridgeAsset) && opts.Credentials.DepositTag == "" {
		return o.fail(saga, "withdraw", utils.NewFatalSafetyErrorf(
			"%s withdrawal to %s requires a destination tag", path.BridgeAsset, path.DestVenue)), report, nil
	}
	if !exchange.ValidAddress(path.BridgeAsset, opts.Credentials.DepositAddress) {
		return o.fail(saga, "withdraw", utils.NewValidationErrorf(
			"invalid %s deposit address %q", path.BridgeAsset, opts.Credentials.DepositAddress)), report, nil
	}

	dstAdapter, err := o.registry.Get(path.DestVenue)
	if err != nil {
		return o.fail(saga, "withdraw", err), report, nil
	}

	// Snapshot the destination balance before the withdrawal so arrival can be
	// measured as an increase over this baseline.
	var baseline decimal.Decimal
	err = o.queue.Do(postBuy, path.DestVenue, func(ctx context.Context) error {
		balance, opErr := dstAdapter.GetBalance(ctx, path.BridgeAsset)
		if opErr != nil {
			return opErr
		}
		baseline = balance.Available
		return nil
	})
	if err != nil {
		return o.fail(saga, "withdraw", err), report, nil
	}

	o.transition(saga, models.SagaWithdrawPending, models.LegRecord{Step: "withdraw", Detail: bridgeQty.String() + " " + path.BridgeAsset})
	var withdrawal *exchange.WithdrawalResult
	err = o.queue.Do(postBuy, path.SourceVenue, func(ctx context.Context) error {
		var opErr error
		withdrawal, opErr = srcAdapter.Withdraw(ctx, path.BridgeAsset, bridgeQty, opts.Credentials.DepositAddress, opts.Credentials.DepositTag)
		return opErr
	})
	if err != nil {
		return o.fail(saga, "withdraw", err), report, nil
	}
	saga.WithdrawalID = withdrawal.WithdrawalID
	o.transition(saga, models.SagaWithdrawDone, models.LegRecord{Step: "withdraw", WithdrawalID: withdrawal.WithdrawalID})

	// Deposit monitoring. Expected arrival is the bridge quantity minus the
	// flat withdrawal fee.
	expected := bridgeQty.Sub(exchange.WithdrawalFee(path.SourceVenue, path.BridgeAsset))
	o.transition(saga, models.SagaMonitorDeposit, models.LegRecord{Step: "monitor_deposit", Detail: "expecting " + expected.String() + " " + path.BridgeAsset})

	arrived, err := o.monitor.Wait(postBuy, dstAdapter, path.BridgeAsset, baseline, expected, withdrawal.WithdrawalID)
	if err != nil {
		var timeout *utils.DepositTimeoutError
		if errors.As(err, &timeout) {
			// Funds are in flight but unconfirmed: reported distinctly from
			// other failures so the operator reconciles instead of writing off.
			saga.LegLog = append(saga.LegLog, models.LegRecord{Step: "monitor_deposit", State: models.SagaDepositTimeout, Detail: err.Error(), At: time.Now()})
			saga.State = models.SagaDepositTimeout
			saga.Error = err.Error()
			log.WithField("withdrawal_id", withdrawal.WithdrawalID).Error("Deposit confirmation timed out, funds in flight")
			return saga, report, nil
		}
		return o.fail(saga, "monitor_deposit", err), report, nil
	}
	o.transition(saga, models.SagaDepositConfirmed, models.LegRecord{Step: "monitor_deposit", FilledQty: arrived})

	// Sell leg.
	o.transition(saga, models.SagaSellPending, models.LegRecord{Step: "sell", Detail: path.DestPair() + " on " + path.DestVenue})
	var sellResult *exchange.OrderResult
	err = o.queue.Do(postBuy, path.DestVenue, func(ctx context.Context) error {
		var opErr error
		sellResult, opErr = dstAdapter.PlaceMarketOrder(ctx, exchange.SideSell, path.DestPair(), arrived)
		return opErr
	})
	if err != nil {
		return o.fail(saga, "sell", err), report, nil
	}
	o.transition(saga, models.SagaSellDone, models.LegRecord{
		Step:      "sell",
		OrderID:   sellResult.OrderID,
		FilledQty: sellResult.FilledQty,
		AvgPrice:  sellResult.AvgPrice,
	})

	output := sellResult.FilledQty.Mul(sellResult.AvgPrice)
	saga.ActualProfit = output.Sub(amount)
	saga.Slippage = saga.ActualProfit.Sub(saga.EstimatedProfit)
	saga.State = models.SagaCompleted

	log.WithFields(logrus.Fields{
		"actual_profit": saga.ActualProfit.String(),
		"slippage":      saga.Slippage.String(),
	}).Info("Execution completed")

	return saga, report, nil
}

// transition logs the side effect before the state advances, keeping the
// saga's progress inspectable.
func (o *Orchestrator) transition(saga *models.ExecutionSaga, state models.SagaState, record models.LegRecord) {
	record.State = state
	record.At = time.Now()
	saga.LegLog = append(saga.LegLog, record)
	saga.State = state
}

func (o *Orchestrator) fail(saga *models.ExecutionSaga, step string, err error) *models.ExecutionSaga {
	saga.LegLog = append(saga.LegLog, models.LegRecord{Step: step, State: models.SagaFailed, Detail: err.Error(), At: time.Now()})
	saga.State = models.SagaFailed
	saga.Error = err.Error()
	o.logger.WithError(err).WithFields(logrus.Fields{"saga_id": saga.ID, "step": step}).Error("Execution failed")
	return saga
}

func (o *Orchestrator) trackStart(saga *models.ExecutionSaga) {
	o.mu.Lock()
	o.inflight[saga.ID] = saga
	o.mu.Unlock()
}

// finalize runs for every saga regardless of outcome: stamps the end time,
// records history, persists, notifies and counts.
func (o *Orchestrator) finalize(saga *models.ExecutionSaga) {
	now := time.Now()
	saga.EndedAt = &now

	o.mu.Lock()
	delete(o.inflight, saga.ID)
	o.mu.Unlock()

	o.history.Add(saga)

	if o.store != nil {
		// Persistence is best-effort; a storage outage must not change the
		// saga outcome.
		if err := o.store.Append(context.Background(), saga); err != nil {
			o.logger.WithError(err).WithField("saga_id", saga.ID).Error("Failed to persist execution history")
		}
	}
	if o.notifier != nil {
		o.notifier.NotifySagaTerminal(context.Background(), saga)
	}
	if o.metrics != nil {
		o.metrics.Executions.WithLabelValues(string(saga.State)).Inc()
	}
}

// ActiveSagas returns the executions currently in flight.
func (o *Orchestrator) ActiveSagas() []*models.ExecutionSaga {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]*models.ExecutionSaga, 0, len(o.inflight))
	for _, saga := range o.inflight {
		out = append(out, saga)
	}
	return out
}

// ActiveCount returns the number of in-flight executions.
func (o *Orchestrator) ActiveCount() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.inflight)
}

// History exposes the bounded terminal-saga ring.
func (o *Orchestrator) History() *History {
	return o.history
}
