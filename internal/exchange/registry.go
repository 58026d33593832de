package exchange

import (
	"sort"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/ebisiere/crossarb/internal/config"
	"github.com/ebisiere/crossarb/internal/utils"
)

// Registry holds one adapter per configured venue. Constructed once at startup
// and passed by reference to every consumer.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
	fees     map[string]decimal.Decimal
}

// NewRegistry builds adapters for every configured venue.
func NewRegistry(venues []config.VenueConfig, logger *logrus.Logger) *Registry {
	r := &Registry{
		adapters: make(map[string]Adapter, len(venues)),
		fees:     make(map[string]decimal.Decimal, len(venues)),
	}
	for _, vc := range venues {
		r.adapters[vc.Name] = NewRESTAdapter(vc, nil, logger)
		r.fees[vc.Name] = decimal.NewFromFloat(vc.TakerFee)
		logger.WithFields(logrus.Fields{
			"venue":    vc.Name,
			"base_url": vc.BaseURL,
			"pairs":    len(vc.Pairs),
		}).Debug("Registered venue adapter")
	}
	return r
}

// Register adds or replaces an adapter. Used by tests to install fakes.
func (r *Registry) Register(adapter Adapter, takerFee decimal.Decimal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[adapter.Name()] = adapter
	r.fees[adapter.Name()] = takerFee
}

// Get returns the adapter for a venue.
func (r *Registry) Get(venue string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	adapter, ok := r.adapters[venue]
	if !ok {
		return nil, utils.NewValidationErrorf("unknown venue: %s", venue)
	}
	return adapter, nil
}

// TakerFee returns the configured taker fee for a venue; falls back to 0.1%
// for venues registered without one.
func (r *Registry) TakerFee(venue string) decimal.Decimal {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if fee, ok := r.fees[venue]; ok && !fee.IsZero() {
		return fee
	}
	return decimal.NewFromFloat(0.001)
}

// Names returns all registered venue names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
