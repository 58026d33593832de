package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceQuote represents one normalized ticker observation for a venue/pair.
// Quotes are ephemeral and overwritten on every poll cycle.
type PriceQuote struct {
	Venue      string          `json:"venue"`
	Pair       string          `json:"pair"`
	Bid        decimal.Decimal `json:"bid"`
	Ask        decimal.Decimal `json:"ask"`
	Last       decimal.Decimal `json:"last"`
	CapturedAt time.Time       `json:"captured_at"`
}

// Age returns how old the quote is relative to now.
func (q *PriceQuote) Age(now time.Time) time.Duration {
	return now.Sub(q.CapturedAt)
}

// VenueSnapshot holds the latest accepted quotes for a single venue.
type VenueSnapshot struct {
	Venue     string                `json:"venue"`
	Quotes    map[string]PriceQuote `json:"quotes"`
	FetchedAt time.Time             `json:"fetched_at"`
}

// Age returns how old the snapshot is relative to now.
func (s *VenueSnapshot) Age(now time.Time) time.Duration {
	return now.Sub(s.FetchedAt)
}

// Quote returns the quote for a pair, or nil if the pair was not captured.
func (s *VenueSnapshot) Quote(pair string) *PriceQuote {
	if s == nil {
		return nil
	}
	q, ok := s.Quotes[pair]
	if !ok {
		return nil
	}
	return &q
}

// VenueCacheStatus describes the freshness of one venue's cache entry, as
// reported by the price-cache status endpoint.
type VenueCacheStatus struct {
	Venue     string    `json:"venue"`
	PairCount int       `json:"pair_count"`
	FetchedAt time.Time `json:"fetched_at"`
	AgeMs     int64     `json:"age_ms"`
	Stale     bool      `json:"stale"`
}
