package validator

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/ebisiere/crossarb/internal/exchange"
	"github.com/ebisiere/crossarb/internal/models"
	"github.com/ebisiere/crossarb/internal/risk"
	"github.com/ebisiere/crossarb/internal/scanner"
	"github.com/ebisiere/crossarb/internal/utils"
)

// Check names, in execution order.
const (
	CheckBalance       = "balance_sufficiency"
	CheckAddress       = "destination_address"
	CheckTag           = "destination_tag"
	CheckProfitability = "modeled_profitability"
	CheckAmountLimits  = "amount_limits"
	CheckConfirmation  = "execution_confirmation"
	CheckFreshPrice    = "fresh_price_recheck"
	CheckVenueStatus   = "venue_operational_status"
)

// Notifier receives fund-loss-risk alerts. Satisfied by the telegram notifier.
type Notifier interface {
	NotifyFundLossRisk(ctx context.Context, route, message string)
}

// RateSource supplies cached fresh quotes for limit sizing. Satisfied by the
// price cache.
type RateSource interface {
	FreshQuote(venue, pair string) (*models.PriceQuote, error)
}

// Options carries the per-request knobs for one validation run.
type Options struct {
	Live        bool
	Confirmed   bool
	Credentials models.ExecutionCredentials
	Limits      models.RiskLimits
	ActiveCount int
	DailyCount  int
}

// PreFlightValidator is the final gate of independent safety checks run
// immediately before capital commitment. Checks execute in a fixed order and
// validation stops at the first failure, but the report lists every check
// attempted up to that point so the caller can explain exactly why a trade was
// blocked. This component never places an order.
type PreFlightValidator struct {
	registry         *exchange.Registry
	calculator       *risk.Calculator
	notifier         Notifier
	rates            RateSource
	referenceQuote   string
	minProfitPercent decimal.Decimal
	feeBuffer        decimal.Decimal
	logger           *logrus.Logger
}

// New creates the validator. feeBufferPercent pads the balance check to cover
// trading fees (0.5 means 0.5%). rates may be nil; limit sizing then converts
// through the static rate table.
func New(registry *exchange.Registry, calculator *risk.Calculator, notifier Notifier, rates RateSource, referenceQuote string, minProfitPercent, feeBufferPercent float64, logger *logrus.Logger) *PreFlightValidator {
	return &PreFlightValidator{
		registry:         registry,
		calculator:       calculator,
		notifier:         notifier,
		rates:            rates,
		referenceQuote:   strings.ToUpper(referenceQuote),
		minProfitPercent: decimal.NewFromFloat(minProfitPercent),
		feeBuffer:        decimal.NewFromFloat(feeBufferPercent).Div(decimal.NewFromInt(100)),
		logger:           logger,
	}
}

// Validate runs the full check chain for one path and amount.
func (v *PreFlightValidator) Validate(ctx context.Context, path models.ArbitragePath, amount decimal.Decimal, estimate *models.PathProfitEstimate, opts Options) *models.ValidationReport {
	report := &models.ValidationReport{Passed: true}

	checks := []func(context.Context, models.ArbitragePath, decimal.Decimal, *models.PathProfitEstimate, Options, *models.ValidationReport) models.CheckResult{
		v.checkBalance,
		v.checkAddress,
		v.checkTag,
		v.checkProfitability,
		v.checkAmountLimits,
		v.checkConfirmation,
		v.checkFreshPrice,
		v.checkVenueStatus,
	}

	for _, check := range checks {
		result := check(ctx, path, amount, estimate, opts, report)
		report.Checks = append(report.Checks, result)
		if !result.Passed {
			report.Passed = false
			v.logger.WithFields(logrus.Fields{
				"route":   path.Describe(),
				"check":   result.Name,
				"message": result.Message,
			}).Warn("Pre-flight validation failed")
			if result.FundLossRisk && v.notifier != nil {
				v.notifier.NotifyFundLossRisk(ctx, path.Describe(), result.Message)
			}
			return report
		}
	}

	v.logger.WithField("route", path.Describe()).Info("Pre-flight validation passed")
	return report
}

func (v *PreFlightValidator) checkBalance(ctx context.Context, path models.ArbitragePath, amount decimal.Decimal, _ *models.PathProfitEstimate, _ Options, _ *models.ValidationReport) models.CheckResult {
	adapter, err := v.registry.Get(path.SourceVenue)
	if err != nil {
		return failed(CheckBalance, err.Error())
	}
	balance, err := adapter.GetBalance(ctx, path.SourceAsset)
	if err != nil {
		return failed(CheckBalance, fmt.Sprintf("could not read %s balance on %s: %v", path.SourceAsset, path.SourceVenue, err))
	}

	required := amount.Mul(decimal.NewFromInt(1).Add(v.feeBuffer))
	if required.GreaterThan(balance.Available) {
		insufficient := utils.NewInsufficientBalanceError(path.SourceVenue, path.SourceAsset,
			required.StringFixed(8), balance.Available.StringFixed(8))
		return failed(CheckBalance, insufficient.Error())
	}
	return passed(CheckBalance, fmt.Sprintf("%s available on %s covers %s plus fee buffer", balance.Available.StringFixed(8), path.SourceVenue, amount.StringFixed(8)))
}

func (v *PreFlightValidator) checkAddress(_ context.Context, path models.ArbitragePath, _ decimal.Decimal, _ *models.PathProfitEstimate, opts Options, _ *models.ValidationReport) models.CheckResult {
	address := opts.Credentials.DepositAddress
	if address == "" {
		return failed(CheckAddress, fmt.Sprintf("no deposit address provided for %s on %s", path.BridgeAsset, path.DestVenue))
	}
	if !exchange.ValidAddress(path.BridgeAsset, address) {
		return failed(CheckAddress, fmt.Sprintf("deposit address %q is not a valid %s address", address, path.BridgeAsset))
	}
	return passed(CheckAddress, "destination address present and format-valid")
}

// checkTag is the hard, non-overridable fund-loss gate: assets on tag-routed
// ledgers must carry a destination tag, or the deposit is unrecoverable.
func (v *PreFlightValidator) checkTag(_ context.Context, path models.ArbitragePath, _ decimal.Decimal, _ *models.PathProfitEstimate, opts Options, _ *models.ValidationReport) models.CheckResult {
	if !exchange.TagRequired(path.BridgeAsset) {
		return passed(CheckTag, fmt.Sprintf("%s deposits do not require a destination tag", path.BridgeAsset))
	}
	if opts.Credentials.DepositTag == "" {
		fatal := utils.NewFatalSafetyErrorf("%s deposits on %s require a destination tag and none was provided; a tagless transfer is unrecoverable",
			path.BridgeAsset, path.DestVenue)
		return models.CheckResult{
			Name:         CheckTag,
			Passed:       false,
			FundLossRisk: true,
			Message:      fatal.Error(),
		}
	}
	return passed(CheckTag, "required destination tag present")
}

func (v *PreFlightValidator) checkProfitability(_ context.Context, _ models.ArbitragePath, _ decimal.Decimal, estimate *models.PathProfitEstimate, _ Options, _ *models.ValidationReport) models.CheckResult {
	if estimate == nil || !estimate.Viable {
		return failed(CheckProfitability, "no viable profit estimate for this path")
	}
	if estimate.ProfitPercent.LessThan(v.minProfitPercent) {
		return failed(CheckProfitability, fmt.Sprintf("modeled profit %s%% is below the %s%% threshold",
			estimate.ProfitPercent.StringFixed(4), v.minProfitPercent.StringFixed(2)))
	}
	return passed(CheckProfitability, fmt.Sprintf("modeled profit %s%% meets threshold", estimate.ProfitPercent.StringFixed(4)))
}

func (v *PreFlightValidator) checkAmountLimits(ctx context.Context, path models.ArbitragePath, amount decimal.Decimal, _ *models.PathProfitEstimate, opts Options, report *models.ValidationReport) models.CheckResult {
	adapter, err := v.registry.Get(path.SourceVenue)
	if err != nil {
		return failed(CheckAmountLimits, err.Error())
	}
	balance, err := adapter.GetBalance(ctx, path.SourceAsset)
	if err != nil {
		return failed(CheckAmountLimits, fmt.Sprintf("could not read balance for limit sizing: %v", err))
	}

	sizing := v.calculator.SizeTrade(path.SourceAsset, balance.Available, opts.Limits, v.liveUSDRate(path.SourceVenue, path.SourceAsset))
	if amount.GreaterThan(sizing.RecommendedAmount) {
		return failed(CheckAmountLimits, fmt.Sprintf("amount %s exceeds risk-sized maximum %s (binding constraint: %s)",
			amount.StringFixed(8), sizing.RecommendedAmount.StringFixed(8), sizing.BindingConstraint))
	}

	if err := v.calculator.CheckConcurrent(opts.ActiveCount, opts.Limits); err != nil {
		return failed(CheckAmountLimits, err.Error())
	}
	if err := v.calculator.CheckDailyCount(opts.DailyCount, opts.Limits); err != nil {
		report.Warnings = append(report.Warnings, err.Error())
	}

	return passed(CheckAmountLimits, "amount within absolute and portfolio-percentage limits")
}

func (v *PreFlightValidator) checkConfirmation(_ context.Context, _ models.ArbitragePath, _ decimal.Decimal, _ *models.PathProfitEstimate, opts Options, _ *models.ValidationReport) models.CheckResult {
	if opts.Live && !opts.Confirmed {
		return failed(CheckConfirmation, "live execution requires the explicit confirmation flag")
	}
	return passed(CheckConfirmation, "execution confirmation present")
}

// checkFreshPrice bypasses the cache: it re-fetches current quotes straight
// from the venue adapters and re-runs the profit model on them.
func (v *PreFlightValidator) checkFreshPrice(ctx context.Context, path models.ArbitragePath, amount decimal.Decimal, _ *models.PathProfitEstimate, _ Options, _ *models.ValidationReport) models.CheckResult {
	srcAdapter, err := v.registry.Get(path.SourceVenue)
	if err != nil {
		return failed(CheckFreshPrice, err.Error())
	}
	dstAdapter, err := v.registry.Get(path.DestVenue)
	if err != nil {
		return failed(CheckFreshPrice, err.Error())
	}

	srcTicker, err := srcAdapter.GetTicker(ctx, path.SourcePair())
	if err != nil {
		return failed(CheckFreshPrice, fmt.Sprintf("could not re-fetch %s on %s: %v", path.SourcePair(), path.SourceVenue, err))
	}
	dstTicker, err := dstAdapter.GetTicker(ctx, path.DestPair())
	if err != nil {
		return failed(CheckFreshPrice, fmt.Sprintf("could not re-fetch %s on %s: %v", path.DestPair(), path.DestVenue, err))
	}

	fresh, ok := scanner.Estimate(path, amount, scanner.EstimateInputs{
		SourceAsk:     srcTicker.Ask,
		DestBid:       dstTicker.Bid,
		SourceFee:     v.registry.TakerFee(path.SourceVenue),
		DestFee:       v.registry.TakerFee(path.DestVenue),
		WithdrawalFee: exchange.WithdrawalFee(path.SourceVenue, path.BridgeAsset),
	})
	if !ok || !fresh.Viable {
		return failed(CheckFreshPrice, "fresh quotes are unusable for this path")
	}
	if fresh.ProfitPercent.LessThan(v.minProfitPercent) {
		return failed(CheckFreshPrice, fmt.Sprintf("profit dropped to %s%% on fresh quotes, below the %s%% threshold",
			fresh.ProfitPercent.StringFixed(4), v.minProfitPercent.StringFixed(2)))
	}
	return passed(CheckFreshPrice, fmt.Sprintf("fresh re-check holds at %s%%", fresh.ProfitPercent.StringFixed(4)))
}

// checkVenueStatus is best-effort: only an explicit "not operational" signal
// blocks trading; a failed probe downgrades to a warning.
func (v *PreFlightValidator) checkVenueStatus(ctx context.Context, path models.ArbitragePath, _ decimal.Decimal, _ *models.PathProfitEstimate, _ Options, report *models.ValidationReport) models.CheckResult {
	for _, venue := range []string{path.SourceVenue, path.DestVenue} {
		adapter, err := v.registry.Get(venue)
		if err != nil {
			return failed(CheckVenueStatus, err.Error())
		}
		operational, err := adapter.OperationalStatus(ctx)
		if err != nil {
			report.Warnings = append(report.Warnings, fmt.Sprintf("status probe for %s failed: %v", venue, err))
			continue
		}
		if !operational {
			return failed(CheckVenueStatus, fmt.Sprintf("venue %s reports not operational", venue))
		}
	}
	return passed(CheckVenueStatus, "venues operational (or status unverifiable)")
}

// liveUSDRate derives the asset's reference-quote rate from the cached pair
// on the source venue. Zero when no fresh quote exists; the calculator then
// falls back to its static table.
func (v *PreFlightValidator) liveUSDRate(venue, asset string) decimal.Decimal {
	if v.rates == nil || v.referenceQuote == "" {
		return decimal.Zero
	}
	if strings.EqualFold(asset, v.referenceQuote) {
		return decimal.NewFromInt(1)
	}
	quote, err := v.rates.FreshQuote(venue, strings.ToUpper(asset)+"/"+v.referenceQuote)
	if err != nil {
		return decimal.Zero
	}
	mid := quote.Bid.Add(quote.Ask).Div(decimal.NewFromInt(2))
	if !mid.IsPositive() {
		return decimal.Zero
	}
	return mid
}

func passed(name, message string) models.CheckResult {
	return models.CheckResult{Name: name, Passed: true, Message: message}
}

func failed(name, message string) models.CheckResult {
	return models.CheckResult{Name: name, Passed: false, Message: message}
}
