package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// LegType identifies one atomic operation within a multi-step arbitrage.
type LegType string

const (
	LegBuy      LegType = "buy"
	LegWithdraw LegType = "withdraw"
	LegSell     LegType = "sell"
)

// Leg describes one step of an arbitrage path.
type Leg struct {
	Type  LegType `json:"type"`
	Venue string  `json:"venue"`
	Pair  string  `json:"pair,omitempty"`
	Asset string  `json:"asset,omitempty"`
}

// ArbitragePath is one candidate route: buy the bridge asset on the source
// venue, move it to the destination venue, sell it there. Paths are immutable
// once generated for a scan cycle.
type ArbitragePath struct {
	ID          string `json:"id"`
	SourceVenue string `json:"source_venue"`
	DestVenue   string `json:"dest_venue"`
	SourceAsset string `json:"source_asset"`
	DestAsset   string `json:"dest_asset"`
	BridgeAsset string `json:"bridge_asset"`
	Legs        [3]Leg `json:"legs"`
}

// SourcePair returns the pair traded on the source venue (bridge vs source asset).
func (p *ArbitragePath) SourcePair() string {
	return p.BridgeAsset + "/" + p.SourceAsset
}

// DestPair returns the pair traded on the destination venue (bridge vs dest asset).
func (p *ArbitragePath) DestPair() string {
	return p.BridgeAsset + "/" + p.DestAsset
}

// Describe renders a short human-readable route summary.
func (p *ArbitragePath) Describe() string {
	return fmt.Sprintf("%s:%s -> [%s] -> %s:%s", p.SourceVenue, p.SourceAsset, p.BridgeAsset, p.DestVenue, p.DestAsset)
}

// FeeBreakdown itemizes the modeled costs of a path.
type FeeBreakdown struct {
	Trading    decimal.Decimal `json:"trading"`
	Withdrawal decimal.Decimal `json:"withdrawal"`
	Network    decimal.Decimal `json:"network"`
}

// PathProfitEstimate is the modeled outcome of pushing InputAmount through a
// path. Recomputed every scan cycle, never persisted across cycles.
type PathProfitEstimate struct {
	Path          ArbitragePath   `json:"path"`
	InputAmount   decimal.Decimal `json:"input_amount"`
	OutputAmount  decimal.Decimal `json:"output_amount"`
	ProfitAmount  decimal.Decimal `json:"profit_amount"`
	ProfitPercent decimal.Decimal `json:"profit_percent"`
	Fees          FeeBreakdown    `json:"fees"`
	Viable        bool            `json:"viable"`
}

// ScanResult is the outcome of one full scan over the configured selection.
// EvaluatedCount + SkippedCount always equals the number of generated paths.
type ScanResult struct {
	BridgeAsset    string               `json:"bridge_asset"`
	Estimates      []PathProfitEstimate `json:"estimates"`
	EvaluatedCount int                  `json:"evaluated_count"`
	SkippedCount   int                  `json:"skipped_count"`
	ScannedAt      time.Time            `json:"scanned_at"`
}

// Best returns the highest-ranked estimate, or nil for an empty result.
func (r *ScanResult) Best() *PathProfitEstimate {
	if r == nil || len(r.Estimates) == 0 {
		return nil
	}
	return &r.Estimates[0]
}

// NonViableProfitPercent is the sentinel assigned to paths that could not be
// evaluated or whose withdrawal fee consumes the whole bridge amount. It sorts
// below every real result and never aborts a scan.
var NonViableProfitPercent = decimal.NewFromInt(-100)
