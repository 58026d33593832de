package exchange

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// Per-asset flat withdrawal fees in units of the withdrawn asset. Venues that
// publish their own schedule override these in venueWithdrawalFees.
var defaultWithdrawalFees = map[string]decimal.Decimal{
	"BTC":  decimal.NewFromFloat(0.0005),
	"ETH":  decimal.NewFromFloat(0.005),
	"XRP":  decimal.NewFromFloat(0.1),
	"XLM":  decimal.NewFromFloat(0.01),
	"LTC":  decimal.NewFromFloat(0.001),
	"TRX":  decimal.NewFromFloat(1),
	"EOS":  decimal.NewFromFloat(0.1),
	"ADA":  decimal.NewFromFloat(1),
	"DOGE": decimal.NewFromFloat(5),
}

var venueWithdrawalFees = map[string]map[string]decimal.Decimal{
	"binance": {
		"XRP": decimal.NewFromFloat(0.2),
		"LTC": decimal.NewFromFloat(0.001),
	},
	"kraken": {
		"XRP": decimal.NewFromFloat(0.02),
		"XLM": decimal.NewFromFloat(0.00002),
	},
	"bitstamp": {
		"XRP": decimal.NewFromFloat(0.02),
	},
}

// Assets whose ledgers route deposits by destination tag/memo. Omitting the
// tag on a tag-required deposit loses the funds.
var tagRequiredAssets = map[string]bool{
	"XRP":  true,
	"XLM":  true,
	"EOS":  true,
	"ATOM": true,
	"HBAR": true,
}

// Approximate USD rates used only as a fallback when no live reference rate is
// available for sizing the absolute trade limit.
var approxUSDRates = map[string]decimal.Decimal{
	"BTC":  decimal.NewFromInt(60000),
	"ETH":  decimal.NewFromInt(2500),
	"XRP":  decimal.NewFromFloat(0.55),
	"XLM":  decimal.NewFromFloat(0.1),
	"LTC":  decimal.NewFromInt(70),
	"USDT": decimal.NewFromInt(1),
	"USDC": decimal.NewFromInt(1),
	"EUR":  decimal.NewFromFloat(1.08),
	"USD":  decimal.NewFromInt(1),
}

var addressPatterns = map[string]*regexp.Regexp{
	"XRP": regexp.MustCompile(`^r[1-9A-HJ-NP-Za-km-z]{24,34}$`),
	"XLM": regexp.MustCompile(`^G[A-Z2-7]{55}$`),
	"BTC": regexp.MustCompile(`^(bc1[a-z0-9]{25,62}|[13][a-km-zA-HJ-NP-Z1-9]{25,34})$`),
	"ETH": regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`),
	"LTC": regexp.MustCompile(`^(ltc1[a-z0-9]{25,62}|[LM][a-km-zA-HJ-NP-Z1-9]{26,33})$`),
}

// WithdrawalFee returns the flat withdrawal fee for an asset on a venue, in
// units of the asset. Unknown assets get zero; the scanner then models only
// trading fees for them.
func WithdrawalFee(venue, asset string) decimal.Decimal {
	venue = strings.ToLower(venue)
	asset = strings.ToUpper(asset)
	if fees, ok := venueWithdrawalFees[venue]; ok {
		if fee, ok := fees[asset]; ok {
			return fee
		}
	}
	if fee, ok := defaultWithdrawalFees[asset]; ok {
		return fee
	}
	return decimal.Zero
}

// TagRequired reports whether deposits of an asset need a destination tag/memo.
// The requirement comes from the ledger, so it applies on every venue.
func TagRequired(asset string) bool {
	return tagRequiredAssets[strings.ToUpper(asset)]
}

// ApproxUSDRate returns a static approximate USD rate for an asset, or zero
// when the asset is unknown.
func ApproxUSDRate(asset string) decimal.Decimal {
	if rate, ok := approxUSDRates[strings.ToUpper(asset)]; ok {
		return rate
	}
	return decimal.Zero
}

// ValidAddress checks the format of a withdrawal address for an asset. Assets
// without a known pattern get a length sanity check only.
func ValidAddress(asset, address string) bool {
	if address == "" {
		return false
	}
	if re, ok := addressPatterns[strings.ToUpper(asset)]; ok {
		return re.MatchString(address)
	}
	return len(address) >= 20 && len(address) <= 128
}
