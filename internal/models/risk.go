package models

import "github.com/shopspring/decimal"

// RiskLimits is the per-operator risk configuration. Read-only to the engine;
// ownership of the persisted settings lives outside this core.
type RiskLimits struct {
	MaxBalancePercent   decimal.Decimal `json:"max_balance_percent"`
	MaxTradeAmountUSD   decimal.Decimal `json:"max_trade_amount_usd"`
	MinReservePercent   decimal.Decimal `json:"min_reserve_percent"`
	MaxConcurrentTrades int             `json:"max_concurrent_trades"`
	MaxDailyTrades      int             `json:"max_daily_trades"`
}

// Binding constraint labels reported by the risk calculator.
const (
	ConstraintReserve    = "reserve"
	ConstraintPercentage = "percentage"
	ConstraintAbsolute   = "absolute"
	ConstraintNone       = "none"
)

// TradeSizing is the risk calculator's recommendation for one trade.
type TradeSizing struct {
	RecommendedAmount   decimal.Decimal `json:"recommended_amount"`
	BindingConstraint   string          `json:"binding_constraint"`
	BalanceAfterReserve decimal.Decimal `json:"balance_after_reserve"`
	MaxByPercentage     decimal.Decimal `json:"max_by_percentage"`
	MaxByAbsolute       decimal.Decimal `json:"max_by_absolute"`
}

// OperatorSettings is the persisted per-operator selection the engine reads.
type OperatorSettings struct {
	OperatorID       string          `json:"operator_id"`
	Venues           []string        `json:"venues"`
	Assets           []string        `json:"assets"`
	BridgeAssets     []string        `json:"bridge_assets"`
	MinProfitPercent decimal.Decimal `json:"min_profit_percent"`
	Limits           RiskLimits      `json:"limits"`
}

// ExecutionCredentials carries what the executor needs beyond adapter auth:
// the deposit address (and tag, when the ledger requires one) on the
// destination venue for the bridge asset.
type ExecutionCredentials struct {
	DepositAddress string `json:"deposit_address"`
	DepositTag     string `json:"deposit_tag,omitempty"`
}
