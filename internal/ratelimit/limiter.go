package ratelimit

import (
	"context"
	"time"

	"sync"

	"github.com/sirupsen/logrus"

	"github.com/ebisiere/crossarb/internal/config"
	"github.com/ebisiere/crossarb/internal/metrics"
)

// Limiter enforces a minimum interval between consecutive calls per venue,
// plus a small global delay between any two operations. The per-venue
// last-call map is process-wide mutable state; every check-and-update happens
// in a single critical section so two sagas can never interleave calls against
// the same venue inside its spacing window.
type Limiter struct {
	mu              sync.Mutex
	last            map[string]time.Time
	lastGlobal      time.Time
	intervals       map[string]time.Duration
	defaultInterval time.Duration
	globalDelay     time.Duration
	metrics         *metrics.Metrics
	logger          *logrus.Logger
}

// NewLimiter builds a limiter from the rate limit config and the per-venue
// minimum intervals (tighter for high-limit venues, looser for low-limit
// regional ones).
func NewLimiter(cfg config.RateLimitConfig, venues []config.VenueConfig, m *metrics.Metrics, logger *logrus.Logger) *Limiter {
	intervals := make(map[string]time.Duration, len(venues))
	for _, vc := range venues {
		if vc.MinIntervalMs > 0 {
			intervals[vc.Name] = time.Duration(vc.MinIntervalMs) * time.Millisecond
		}
	}

	defaultInterval := time.Duration(cfg.DefaultIntervalMs) * time.Millisecond
	if defaultInterval <= 0 {
		defaultInterval = time.Second
	}

	return &Limiter{
		last:            make(map[string]time.Time),
		intervals:       intervals,
		defaultInterval: defaultInterval,
		globalDelay:     time.Duration(cfg.GlobalDelayMs) * time.Millisecond,
		metrics:         m,
		logger:          logger,
	}
}

// Interval returns the minimum spacing for a venue.
func (l *Limiter) Interval(venue string) time.Duration {
	if interval, ok := l.intervals[venue]; ok {
		return interval
	}
	return l.defaultInterval
}

// Wait suspends the caller until the venue's spacing window has elapsed, then
// claims the slot. Two consecutive grants for the same venue are always
// separated by at least Interval(venue).
func (l *Limiter) Wait(ctx context.Context, venue string) error {
	start := time.Now()
	for {
		wait, granted := l.tryClaim(venue)
		if granted {
			if l.metrics != nil {
				l.metrics.RateLimitWait.Observe(time.Since(start).Seconds())
			}
			return nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// tryClaim atomically checks both spacing windows and, when clear, records the
// call. Otherwise it returns how long to sleep before retrying.
func (l *Limiter) tryClaim(venue string) (time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	wait := time.Duration(0)

	if last, ok := l.last[venue]; ok {
		if until := l.Interval(venue) - now.Sub(last); until > wait {
			wait = until
		}
	}
	if !l.lastGlobal.IsZero() && l.globalDelay > 0 {
		if until := l.globalDelay - now.Sub(l.lastGlobal); until > wait {
			wait = until
		}
	}

	if wait > 0 {
		return wait, false
	}

	l.last[venue] = now
	l.lastGlobal = now
	return 0, true
}
