package scanner

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/ebisiere/crossarb/internal/models"
)

// BridgeScanStatus is one bridge's latest rotation outcome.
type BridgeScanStatus struct {
	BridgeAsset string                     `json:"bridge_asset"`
	LastScan    time.Time                  `json:"last_scan"`
	Best        *models.PathProfitEstimate `json:"best,omitempty"`
	Evaluated   int                        `json:"evaluated"`
	Skipped     int                        `json:"skipped"`
}

// RotatorStatus aggregates the per-bridge view plus the best path seen across
// every bridge.
type RotatorStatus struct {
	Running     bool                       `json:"running"`
	Current     string                     `json:"current_bridge"`
	Bridges     []BridgeScanStatus         `json:"bridges"`
	OverallBest *models.PathProfitEstimate `json:"overall_best,omitempty"`
}

// BridgeRotator cycles through a fixed list of bridge assets on a timer,
// scanning one bridge per tick and remembering the best result per bridge.
// Scans for the same bridge are single-flight: a tick that lands while that
// bridge's scan is still running joins the in-flight scan instead of starting
// a second one.
type BridgeRotator struct {
	scanner  *Scanner
	bridges  []string
	venues   []string
	assets   []string
	amount   decimal.Decimal
	interval time.Duration
	logger   *logrus.Logger

	group  singleflight.Group
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.RWMutex
	isRunning bool
	index     int
	results   map[string]BridgeScanStatus
}

// NewBridgeRotator creates a rotator over the given bridge assets.
func NewBridgeRotator(s *Scanner, bridges, venues, assets []string, amount decimal.Decimal, interval time.Duration, logger *logrus.Logger) *BridgeRotator {
	ctx, cancel := context.WithCancel(context.Background())
	return &BridgeRotator{
		scanner:  s,
		bridges:  bridges,
		venues:   venues,
		assets:   assets,
		amount:   amount,
		interval: interval,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		results:  make(map[string]BridgeScanStatus),
	}
}

// Start launches the rotation loop. No-op when already running or when no
// bridges are configured.
func (r *BridgeRotator) Start() {
	r.mu.Lock()
	if r.isRunning || len(r.bridges) == 0 {
		r.mu.Unlock()
		return
	}
	r.isRunning = true
	r.mu.Unlock()

	r.logger.WithFields(logrus.Fields{
		"bridges":  r.bridges,
		"interval": r.interval.String(),
	}).Info("Starting bridge rotation scanner")

	r.wg.Add(1)
	go r.loop()
}

// Stop halts the rotation loop.
func (r *BridgeRotator) Stop() {
	r.mu.Lock()
	if !r.isRunning {
		r.mu.Unlock()
		return
	}
	r.isRunning = false
	r.mu.Unlock()

	r.cancel()
	r.wg.Wait()
	r.logger.Info("Bridge rotation scanner stopped")
}

func (r *BridgeRotator) loop() {
	defer r.wg.Done()

	r.scanCurrent()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.advance()
			r.scanCurrent()
		}
	}
}

func (r *BridgeRotator) advance() {
	r.mu.Lock()
	r.index = (r.index + 1) % len(r.bridges)
	r.mu.Unlock()
}

func (r *BridgeRotator) scanCurrent() {
	r.mu.RLock()
	bridge := r.bridges[r.index]
	r.mu.RUnlock()

	// singleflight keys on the bridge asset, so two ticks can never run
	// concurrent scans for the same bridge.
	_, err, _ := r.group.Do(bridge, func() (interface{}, error) {
		result, err := r.scanner.Scan(r.ctx, r.venues, r.assets, bridge, r.amount)
		if err != nil {
			return nil, err
		}
		r.record(bridge, result)
		return result, nil
	})
	if err != nil && r.ctx.Err() == nil {
		r.logger.WithError(err).WithField("bridge", bridge).Warn("Rotation scan failed")
	}
}

func (r *BridgeRotator) record(bridge string, result *models.ScanResult) {
	status := BridgeScanStatus{
		BridgeAsset: bridge,
		LastScan:    result.ScannedAt,
		Evaluated:   result.EvaluatedCount,
		Skipped:     result.SkippedCount,
	}
	if best := result.Best(); best != nil && best.Viable {
		status.Best = best
	}

	r.mu.Lock()
	r.results[bridge] = status
	r.mu.Unlock()
}

// Status reports the per-bridge results in rotation order plus the overall
// best viable estimate.
func (r *BridgeRotator) Status() RotatorStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	status := RotatorStatus{Running: r.isRunning}
	if len(r.bridges) > 0 {
		status.Current = r.bridges[r.index]
	}

	for _, bridge := range r.bridges {
		entry, ok := r.results[bridge]
		if !ok {
			entry = BridgeScanStatus{BridgeAsset: bridge}
		}
		status.Bridges = append(status.Bridges, entry)
		if entry.Best != nil {
			if status.OverallBest == nil || entry.Best.ProfitPercent.GreaterThan(status.OverallBest.ProfitPercent) {
				status.OverallBest = entry.Best
			}
		}
	}
	return status
}
