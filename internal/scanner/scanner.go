package scanner

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/ebisiere/crossarb/internal/config"
	"github.com/ebisiere/crossarb/internal/exchange"
	"github.com/ebisiere/crossarb/internal/metrics"
	"github.com/ebisiere/crossarb/internal/models"
	"github.com/ebisiere/crossarb/internal/pricecache"
)

// Scanner enumerates candidate bridge-arbitrage routes and ranks them by
// modeled profit against the latest price cache snapshots. A scan always
// completes: paths it cannot evaluate are degraded to the -100% sentinel and
// counted, never aborted on.
type Scanner struct {
	cache    *pricecache.PriceCache
	registry *exchange.Registry
	cfg      config.ScannerConfig
	metrics  *metrics.Metrics
	logger   *logrus.Logger
}

// New creates a scanner bound to a price cache and the venue registry.
func New(cache *pricecache.PriceCache, registry *exchange.Registry, cfg config.ScannerConfig, m *metrics.Metrics, logger *logrus.Logger) *Scanner {
	return &Scanner{
		cache:    cache,
		registry: registry,
		cfg:      cfg,
		metrics:  m,
		logger:   logger,
	}
}

// Scan generates every candidate path for the given selection, evaluates each
// against current snapshots with inputAmount, and returns the ranked result.
func (s *Scanner) Scan(ctx context.Context, venues, assets []string, bridgeAsset string, inputAmount decimal.Decimal) (*models.ScanResult, error) {
	start := time.Now()

	paths := s.generatePaths(venues, assets, bridgeAsset)

	result := &models.ScanResult{
		BridgeAsset: bridgeAsset,
		Estimates:   make([]models.PathProfitEstimate, 0, len(paths)),
		ScannedAt:   start,
	}

	for _, path := range paths {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		estimate, evaluated := s.evaluate(path, inputAmount)
		if evaluated {
			result.EvaluatedCount++
		} else {
			result.SkippedCount++
		}
		result.Estimates = append(result.Estimates, estimate)
	}

	// Rank descending by profit; ties retain generation order.
	sort.SliceStable(result.Estimates, func(i, j int) bool {
		return result.Estimates[i].ProfitPercent.GreaterThan(result.Estimates[j].ProfitPercent)
	})

	if s.metrics != nil {
		s.metrics.Scans.WithLabelValues(bridgeAsset).Inc()
		s.metrics.ScanDuration.Observe(time.Since(start).Seconds())
		s.metrics.PathsEvaluated.Add(float64(result.EvaluatedCount))
		s.metrics.PathsSkipped.Add(float64(result.SkippedCount))
	}

	s.logger.WithFields(logrus.Fields{
		"bridge":    bridgeAsset,
		"evaluated": result.EvaluatedCount,
		"skipped":   result.SkippedCount,
		"duration":  time.Since(start).String(),
	}).Debug("Scan completed")

	return result, nil
}

// generatePaths builds the Cartesian product of distinct (source, dest) venue
// pairs and the asset selection. By default a path keeps the same currency on
// both ends (pure bridge-rate arbitrage); allow_cross_currency opens the
// combined currency-conversion product.
func (s *Scanner) generatePaths(venues, assets []string, bridgeAsset string) []models.ArbitragePath {
	var paths []models.ArbitragePath

	for _, src := range venues {
		for _, dst := range venues {
			if src == dst {
				continue
			}
			for _, srcAsset := range assets {
				if srcAsset == bridgeAsset {
					continue
				}
				destAssets := []string{srcAsset}
				if s.cfg.AllowCrossCurrency {
					destAssets = destAssets[:0]
					for _, dstAsset := range assets {
						if dstAsset != bridgeAsset {
							destAssets = append(destAssets, dstAsset)
						}
					}
				}
				for _, dstAsset := range destAssets {
					paths = append(paths, newPath(src, dst, srcAsset, dstAsset, bridgeAsset))
				}
			}
		}
	}
	return paths
}

func newPath(src, dst, srcAsset, dstAsset, bridgeAsset string) models.ArbitragePath {
	path := models.ArbitragePath{
		ID:          uuid.New().String(),
		SourceVenue: src,
		DestVenue:   dst,
		SourceAsset: srcAsset,
		DestAsset:   dstAsset,
		BridgeAsset: bridgeAsset,
	}
	path.Legs = [3]models.Leg{
		{Type: models.LegBuy, Venue: src, Pair: path.SourcePair()},
		{Type: models.LegWithdraw, Venue: src, Asset: bridgeAsset},
		{Type: models.LegSell, Venue: dst, Pair: path.DestPair()},
	}
	return path
}

// evaluate runs the profit model for one path. The second return value is
// false when the path had to be skipped for missing or unusable prices.
func (s *Scanner) evaluate(path models.ArbitragePath, inputAmount decimal.Decimal) (models.PathProfitEstimate, bool) {
	srcQuote, err := s.cache.FreshQuote(path.SourceVenue, path.SourcePair())
	if err != nil {
		return nonViable(path, inputAmount), false
	}
	dstQuote, err := s.cache.FreshQuote(path.DestVenue, path.DestPair())
	if err != nil {
		return nonViable(path, inputAmount), false
	}

	estimate, ok := Estimate(path, inputAmount, EstimateInputs{
		SourceAsk:     srcQuote.Ask,
		DestBid:       dstQuote.Bid,
		SourceFee:     s.registry.TakerFee(path.SourceVenue),
		DestFee:       s.registry.TakerFee(path.DestVenue),
		WithdrawalFee: exchange.WithdrawalFee(path.SourceVenue, path.BridgeAsset),
	})
	if !ok {
		return nonViable(path, inputAmount), false
	}
	return estimate, true
}

// EstimateInputs are the market observations the profit model consumes.
type EstimateInputs struct {
	SourceAsk     decimal.Decimal
	DestBid       decimal.Decimal
	SourceFee     decimal.Decimal
	DestFee       decimal.Decimal
	WithdrawalFee decimal.Decimal
}

// Estimate applies the bridge-arbitrage profit model:
//
//	bridgeBought       = (amount / sourceAsk) * (1 - sourceFee)
//	bridgeAfterTransfer = bridgeBought - withdrawalFee
//	output             = bridgeAfterTransfer * destBid * (1 - destFee)
//
// The boolean result is false when the inputs make the model inapplicable
// (non-positive prices or amount). A withdrawal fee swallowing the whole
// bridge amount yields an evaluated but non-viable estimate at the sentinel.
// Exported so the pre-flight validator can re-run the model on fresh quotes.
func Estimate(path models.ArbitragePath, amount decimal.Decimal, in EstimateInputs) (models.PathProfitEstimate, bool) {
	if amount.LessThanOrEqual(decimal.Zero) || in.SourceAsk.LessThanOrEqual(decimal.Zero) || in.DestBid.LessThanOrEqual(decimal.Zero) {
		return nonViable(path, amount), false
	}

	one := decimal.NewFromInt(1)

	bridgeBought := amount.Div(in.SourceAsk).Mul(one.Sub(in.SourceFee))
	tradingFeeSrc := amount.Div(in.SourceAsk).Mul(in.SourceFee)

	bridgeAfterTransfer := bridgeBought.Sub(in.WithdrawalFee)
	if bridgeAfterTransfer.LessThanOrEqual(decimal.Zero) {
		est := nonViable(path, amount)
		est.Fees = models.FeeBreakdown{Trading: tradingFeeSrc, Withdrawal: in.WithdrawalFee, Network: decimal.Zero}
		return est, true
	}

	gross := bridgeAfterTransfer.Mul(in.DestBid)
	output := gross.Mul(one.Sub(in.DestFee))
	tradingFeeDst := gross.Mul(in.DestFee)

	profitAmount := output.Sub(amount)
	profitPercent := profitAmount.Div(amount).Mul(decimal.NewFromInt(100))

	return models.PathProfitEstimate{
		Path:          path,
		InputAmount:   amount,
		OutputAmount:  output,
		ProfitAmount:  profitAmount,
		ProfitPercent: profitPercent,
		Fees: models.FeeBreakdown{
			Trading:    tradingFeeSrc.Add(tradingFeeDst),
			Withdrawal: in.WithdrawalFee,
			Network:    decimal.Zero,
		},
		Viable: true,
	}, true
}

func nonViable(path models.ArbitragePath, amount decimal.Decimal) models.PathProfitEstimate {
	return models.PathProfitEstimate{
		Path:          path,
		InputAmount:   amount,
		OutputAmount:  decimal.Zero,
		ProfitAmount:  amount.Neg(),
		ProfitPercent: models.NonViableProfitPercent,
		Viable:        false,
	}
}
