package pricecache

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ebisiere/crossarb/internal/config"
	"github.com/ebisiere/crossarb/internal/exchange"
	"github.com/ebisiere/crossarb/internal/metrics"
	"github.com/ebisiere/crossarb/internal/models"
	"github.com/ebisiere/crossarb/internal/utils"
)

// Publisher receives the latest snapshots after each successful poll cycle.
type Publisher interface {
	Publish(ctx context.Context, snapshots map[string]*models.VenueSnapshot)
	PublishStatus(ctx context.Context, status []models.VenueCacheStatus)
}

// PriceCache polls every configured venue on a fixed period and keeps the
// latest normalized snapshot per venue. A venue's failure never blocks the
// others; its previous snapshot stays available with growing staleness until
// the next successful fetch. Consumers must treat a missing or stale entry as
// "no data", never as zero.
type PriceCache struct {
	registry  *exchange.Registry
	pairs     map[string][]string
	cfg       config.PriceCacheConfig
	publisher Publisher
	metrics   *metrics.Metrics
	logger    *logrus.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.RWMutex
	snapshots map[string]*models.VenueSnapshot
	isRunning bool
}

// New creates a price cache over the configured venues. The publisher may be
// nil when Redis mirroring is disabled.
func New(registry *exchange.Registry, venues []config.VenueConfig, cfg config.PriceCacheConfig, publisher Publisher, m *metrics.Metrics, logger *logrus.Logger) *PriceCache {
	ctx, cancel := context.WithCancel(context.Background())

	pairs := make(map[string][]string, len(venues))
	for _, vc := range venues {
		pairs[vc.Name] = vc.Pairs
	}

	return &PriceCache{
		registry:  registry,
		pairs:     pairs,
		cfg:       cfg,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
		snapshots: make(map[string]*models.VenueSnapshot),
	}
}

// Start launches the poll loop. Calling Start on a running cache is a no-op.
func (c *PriceCache) Start() {
	c.mu.Lock()
	if c.isRunning {
		c.mu.Unlock()
		c.logger.Debug("Price cache already running")
		return
	}
	c.isRunning = true
	c.mu.Unlock()

	c.logger.WithFields(logrus.Fields{
		"interval_seconds": c.cfg.IntervalSeconds,
		"venues":           len(c.pairs),
	}).Info("Starting price cache")

	c.wg.Add(1)
	go c.pollLoop()
}

// Stop halts polling. Safe to call more than once.
func (c *PriceCache) Stop() {
	c.mu.Lock()
	if !c.isRunning {
		c.mu.Unlock()
		return
	}
	c.isRunning = false
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
	c.logger.Info("Price cache stopped")
}

// IsRunning reports whether the poll loop is active.
func (c *PriceCache) IsRunning() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isRunning
}

func (c *PriceCache) pollLoop() {
	defer c.wg.Done()

	// Fill the cache immediately rather than waiting one interval.
	c.RefreshAll(c.ctx)

	ticker := time.NewTicker(c.cfg.PollInterval())
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.RefreshAll(c.ctx)
		}
	}
}

// RefreshAll fans out one fetch per venue in parallel and applies the results.
// Exported so tests and the rotation scanner can force a cycle.
func (c *PriceCache) RefreshAll(ctx context.Context) {
	g, gctx := errgroup.WithContext(ctx)

	var resultMu sync.Mutex
	results := make(map[string]*models.VenueSnapshot)

	for venue, pairs := range c.pairs {
		g.Go(func() error {
			snapshot, err := c.fetchVenue(gctx, venue, pairs)
			if err != nil {
				// Isolate the failure: keep the previous snapshot and move on.
				c.logger.WithError(err).WithField("venue", venue).Warn("Price fetch failed, keeping previous snapshot")
				c.countRefresh(venue, "error")
				return nil
			}
			resultMu.Lock()
			results[venue] = snapshot
			resultMu.Unlock()
			c.countRefresh(venue, "success")
			return nil
		})
	}
	_ = g.Wait()

	c.mu.Lock()
	for venue, snapshot := range results {
		c.snapshots[venue] = snapshot
	}
	c.mu.Unlock()

	if c.publisher != nil {
		c.publisher.Publish(ctx, c.copySnapshots())
		c.publisher.PublishStatus(ctx, c.Status())
	}
}

// fetchVenue pulls and normalizes all configured pairs for one venue.
func (c *PriceCache) fetchVenue(ctx context.Context, venue string, pairs []string) (*models.VenueSnapshot, error) {
	adapter, err := c.registry.Get(venue)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	quotes := make(map[string]models.PriceQuote, len(pairs))

	for _, pair := range pairs {
		ticker, err := adapter.GetTicker(ctx, pair)
		if err != nil {
			// A single pair failing does not invalidate the venue cycle.
			c.logger.WithError(err).WithFields(logrus.Fields{"venue": venue, "pair": pair}).Debug("Ticker fetch failed")
			continue
		}

		quote, ok := c.normalize(venue, pair, adapter, ticker, now)
		if !ok {
			continue
		}
		quotes[pair] = quote
	}

	if len(quotes) == 0 {
		return nil, &utils.PriceUnavailableError{Venue: venue, Pair: "*"}
	}

	c.dropImplausibleCrossRates(venue, quotes)

	return &models.VenueSnapshot{Venue: venue, Quotes: quotes, FetchedAt: now}, nil
}

// normalize applies the spread synthesis and liquidity admission rules.
func (c *PriceCache) normalize(venue, pair string, adapter exchange.Adapter, ticker *exchange.Ticker, now time.Time) (models.PriceQuote, bool) {
	bid, ask := ticker.Bid, ticker.Ask

	// Venues whose public ticker omits bid/ask get a symmetric synthetic
	// spread around the last price.
	if (!adapter.HasNativeSpread() || bid.LessThanOrEqual(decimal.Zero) || ask.LessThanOrEqual(decimal.Zero)) && ticker.Last.GreaterThan(decimal.Zero) {
		spread := decimal.NewFromFloat(c.cfg.SyntheticSpread)
		bid = ticker.Last.Mul(decimal.NewFromInt(1).Sub(spread))
		ask = ticker.Last.Mul(decimal.NewFromInt(1).Add(spread))
	}

	// No liquidity on either side means no usable quote.
	if bid.LessThanOrEqual(decimal.Zero) || ask.LessThanOrEqual(decimal.Zero) {
		c.logger.WithFields(logrus.Fields{"venue": venue, "pair": pair}).Debug("Rejected quote with non-positive bid/ask")
		return models.PriceQuote{}, false
	}

	last := ticker.Last
	if last.LessThanOrEqual(decimal.Zero) {
		last = bid.Add(ask).Div(decimal.NewFromInt(2))
	}

	return models.PriceQuote{
		Venue:      venue,
		Pair:       pair,
		Bid:        bid,
		Ask:        ask,
		Last:       last,
		CapturedAt: now,
	}, true
}

// dropImplausibleCrossRates removes quotes for pairs not denominated in the
// reference quote currency when they deviate too far from the cross rate
// implied by the two reference-quoted legs. This guards against stale or
// corrupted tickers.
func (c *PriceCache) dropImplausibleCrossRates(venue string, quotes map[string]models.PriceQuote) {
	maxDev := decimal.NewFromFloat(c.cfg.CrossRateMaxDev)

	for pair, quote := range quotes {
		base, quoteCcy, ok := splitPair(pair)
		if !ok || quoteCcy == c.cfg.ReferenceQuote {
			continue
		}

		baseRef, okBase := quotes[base+"/"+c.cfg.ReferenceQuote]
		ccyRef, okCcy := quotes[quoteCcy+"/"+c.cfg.ReferenceQuote]
		if !okBase || !okCcy || ccyRef.Last.LessThanOrEqual(decimal.Zero) {
			// No implied rate available, keep the observation.
			continue
		}

		implied := baseRef.Last.Div(ccyRef.Last)
		if implied.LessThanOrEqual(decimal.Zero) {
			continue
		}

		deviation := quote.Last.Sub(implied).Abs().Div(implied)
		if deviation.GreaterThan(maxDev) {
			c.logger.WithFields(logrus.Fields{
				"venue":     venue,
				"pair":      pair,
				"observed":  quote.Last.String(),
				"implied":   implied.String(),
				"deviation": deviation.String(),
			}).Warn("Dropping quote deviating from implied cross rate")
			delete(quotes, pair)
		}
	}
}

// Snapshot returns the latest snapshot for a venue, or nil if the venue has
// never been fetched. Snapshots are immutable once stored.
func (c *PriceCache) Snapshot(venue string) *models.VenueSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshots[venue]
}

// FreshQuote returns the current quote for a venue/pair, rejecting missing or
// stale data.
func (c *PriceCache) FreshQuote(venue, pair string) (*models.PriceQuote, error) {
	snapshot := c.Snapshot(venue)
	if snapshot == nil {
		return nil, &utils.PriceUnavailableError{Venue: venue, Pair: pair}
	}
	if c.IsStale(snapshot) {
		return nil, &utils.PriceUnavailableError{Venue: venue, Pair: pair}
	}
	quote := snapshot.Quote(pair)
	if quote == nil {
		return nil, &utils.PriceUnavailableError{Venue: venue, Pair: pair}
	}
	return quote, nil
}

// IsStale reports whether a snapshot is older than twice the poll interval.
func (c *PriceCache) IsStale(snapshot *models.VenueSnapshot) bool {
	if snapshot == nil {
		return true
	}
	return snapshot.Age(time.Now()) > 2*c.cfg.PollInterval()
}

// Status reports per-venue freshness, sorted by venue name.
func (c *PriceCache) Status() []models.VenueCacheStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	now := time.Now()
	status := make([]models.VenueCacheStatus, 0, len(c.snapshots))
	for venue, snapshot := range c.snapshots {
		status = append(status, models.VenueCacheStatus{
			Venue:     venue,
			PairCount: len(snapshot.Quotes),
			FetchedAt: snapshot.FetchedAt,
			AgeMs:     snapshot.Age(now).Milliseconds(),
			Stale:     snapshot.Age(now) > 2*c.cfg.PollInterval(),
		})
	}
	sort.Slice(status, func(i, j int) bool { return status[i].Venue < status[j].Venue })
	return status
}

func (c *PriceCache) copySnapshots() map[string]*models.VenueSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]*models.VenueSnapshot, len(c.snapshots))
	for venue, snapshot := range c.snapshots {
		out[venue] = snapshot
	}
	return out
}

func (c *PriceCache) countRefresh(venue, result string) {
	if c.metrics != nil {
		c.metrics.CacheRefreshes.WithLabelValues(venue, result).Inc()
	}
}

func splitPair(pair string) (base, quote string, ok bool) {
	for i := 0; i < len(pair); i++ {
		if pair[i] == '/' {
			if i == 0 || i == len(pair)-1 {
				return "", "", false
			}
			return pair[:i], pair[i+1:], true
		}
	}
	return "", "", false
}
