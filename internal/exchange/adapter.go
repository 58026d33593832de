package exchange

import (
	"context"

	"github.com/shopspring/decimal"
)

// OrderSide is the direction of a market order.
type OrderSide string

const (
	SideBuy  OrderSide = "buy"
	SideSell OrderSide = "sell"
)

// Ticker is a venue's raw quote for one pair. Bid/Ask may be zero for venues
// whose public ticker only carries the last trade price.
type Ticker struct {
	Bid  decimal.Decimal `json:"bid"`
	Ask  decimal.Decimal `json:"ask"`
	Last decimal.Decimal `json:"last"`
}

// OrderResult reports a filled market order.
type OrderResult struct {
	OrderID   string          `json:"order_id"`
	FilledQty decimal.Decimal `json:"filled_qty"`
	AvgPrice  decimal.Decimal `json:"avg_price"`
}

// WithdrawalResult identifies a submitted withdrawal. A withdrawal once
// submitted is irreversible; the ID is the operator's reconciliation handle.
type WithdrawalResult struct {
	WithdrawalID string `json:"withdrawal_id"`
}

// Balance reports the available amount of one asset.
type Balance struct {
	Available decimal.Decimal `json:"available"`
}

// Adapter is the uniform capability surface over one venue's REST API.
// Authentication and signing are entirely internal to each implementation.
type Adapter interface {
	Name() string

	GetTicker(ctx context.Context, pair string) (*Ticker, error)
	PlaceMarketOrder(ctx context.Context, side OrderSide, pair string, amount decimal.Decimal) (*OrderResult, error)
	Withdraw(ctx context.Context, asset string, amount decimal.Decimal, address, tag string) (*WithdrawalResult, error)
	GetBalance(ctx context.Context, asset string) (*Balance, error)

	// OperationalStatus reports whether the venue declares itself tradeable.
	// An error means the probe itself failed (infrastructure), not that the
	// venue is down.
	OperationalStatus(ctx context.Context) (bool, error)

	// HasNativeSpread reports whether GetTicker returns real bid/ask quotes.
	// When false the price cache synthesizes a symmetric spread around last.
	HasNativeSpread() bool
}

// Compile-time interface checks.
var _ Adapter = (*RESTAdapter)(nil)
