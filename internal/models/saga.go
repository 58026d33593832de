package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// SagaState enumerates the states of a multi-leg execution.
type SagaState string

const (
	SagaInitiated        SagaState = "INITIATED"
	SagaValidating       SagaState = "VALIDATING"
	SagaValidationFailed SagaState = "VALIDATION_FAILED"
	SagaBuyPending       SagaState = "BUY_PENDING"
	SagaBuyDone          SagaState = "BUY_DONE"
	SagaWithdrawPending  SagaState = "WITHDRAW_PENDING"
	SagaWithdrawDone     SagaState = "WITHDRAW_DONE"
	SagaMonitorDeposit   SagaState = "MONITOR_DEPOSIT"
	SagaDepositConfirmed SagaState = "DEPOSIT_CONFIRMED"
	SagaDepositTimeout   SagaState = "DEPOSIT_TIMEOUT"
	SagaSellPending      SagaState = "SELL_PENDING"
	SagaSellDone         SagaState = "SELL_DONE"
	SagaCompleted        SagaState = "COMPLETED"
	SagaFailed           SagaState = "FAILED"
)

// Terminal reports whether the state ends the saga.
func (s SagaState) Terminal() bool {
	switch s {
	case SagaCompleted, SagaFailed, SagaValidationFailed, SagaDepositTimeout:
		return true
	}
	return false
}

// LegRecord logs one side effect of the saga, written before the state advances.
type LegRecord struct {
	Step         string          `json:"step"`
	State        SagaState       `json:"state"`
	Detail       string          `json:"detail,omitempty"`
	OrderID      string          `json:"order_id,omitempty"`
	WithdrawalID string          `json:"withdrawal_id,omitempty"`
	FilledQty    decimal.Decimal `json:"filled_qty,omitempty"`
	AvgPrice     decimal.Decimal `json:"avg_price,omitempty"`
	At           time.Time       `json:"at"`
}

// ExecutionSaga is one end-to-end multi-leg transaction. Created when execution
// begins, mutated only by the orchestrator, terminal at COMPLETED, FAILED,
// VALIDATION_FAILED or DEPOSIT_TIMEOUT.
type ExecutionSaga struct {
	ID              string          `json:"id"`
	Path            ArbitragePath   `json:"path"`
	Amount          decimal.Decimal `json:"amount"`
	State           SagaState       `json:"state"`
	LegLog          []LegRecord     `json:"leg_log"`
	StartedAt       time.Time       `json:"started_at"`
	EndedAt         *time.Time      `json:"ended_at,omitempty"`
	EstimatedProfit decimal.Decimal `json:"estimated_profit"`
	ActualProfit    decimal.Decimal `json:"actual_profit"`
	Slippage        decimal.Decimal `json:"slippage"`
	WithdrawalID    string          `json:"withdrawal_id,omitempty"`
	Error           string          `json:"error,omitempty"`
}

// Succeeded reports whether the saga completed all legs.
func (s *ExecutionSaga) Succeeded() bool {
	return s.State == SagaCompleted
}

// CheckResult is one pre-flight check outcome. Every check attempted before the
// first failure is reported, so a blocked trade can be fully explained.
type CheckResult struct {
	Name         string `json:"name"`
	Passed       bool   `json:"passed"`
	Message      string `json:"message"`
	FundLossRisk bool   `json:"fund_loss_risk,omitempty"`
}

// ValidationReport is the structured result of the pre-flight validator.
type ValidationReport struct {
	Passed   bool          `json:"passed"`
	Checks   []CheckResult `json:"checks"`
	Warnings []string      `json:"warnings,omitempty"`
}

// FailedCheck returns the failing check, or nil when the report passed.
func (r *ValidationReport) FailedCheck() *CheckResult {
	for i := range r.Checks {
		if !r.Checks[i].Passed {
			return &r.Checks[i]
		}
	}
	return nil
}
