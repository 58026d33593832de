package ratelimit

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/ebisiere/crossarb/internal/metrics"
	"github.com/ebisiere/crossarb/internal/utils"
)

// Token proves ownership of one or more admission slots. Released exactly once.
type Token struct {
	keys     []string
	holderID string
	released bool
}

// Keys returns the slot keys held by the token.
func (t *Token) Keys() []string {
	return t.keys
}

// Admission is the single-flight gate over venues (or venue pairs). A key that
// is already held is rejected immediately with BusyError, never queued:
// stacking concurrent financial operations against the same venue is unsafe.
// The slot set is process-wide mutable state guarded by one mutex.
type Admission struct {
	mu      sync.Mutex
	slots   map[string]string
	metrics *metrics.Metrics
	logger  *logrus.Logger
}

// NewAdmission creates the admission gate.
func NewAdmission(m *metrics.Metrics, logger *logrus.Logger) *Admission {
	return &Admission{
		slots:   make(map[string]string),
		metrics: m,
		logger:  logger,
	}
}

// Acquire claims every key atomically. Either all keys are granted or none;
// a partial grant is never left behind.
func (a *Admission) Acquire(holderID string, keys ...string) (*Token, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, key := range keys {
		if holder, held := a.slots[key]; held {
			return nil, utils.NewBusyError(key, holder)
		}
	}
	for _, key := range keys {
		a.slots[key] = holderID
	}

	if a.metrics != nil {
		a.metrics.AdmissionSlots.Set(float64(len(a.slots)))
	}
	a.logger.WithFields(logrus.Fields{"holder": holderID, "keys": keys}).Debug("Admission slots acquired")

	return &Token{keys: keys, holderID: holderID}, nil
}

// Release frees the token's slots. Unconditional and idempotent; the caller
// defers it so a saga reaching any terminal state can never leave a venue
// permanently locked out.
func (a *Admission) Release(token *Token) {
	if token == nil {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if token.released {
		return
	}
	token.released = true

	for _, key := range token.keys {
		// Only the recorded holder may free a slot.
		if a.slots[key] == token.holderID {
			delete(a.slots, key)
		}
	}

	if a.metrics != nil {
		a.metrics.AdmissionSlots.Set(float64(len(a.slots)))
	}
	a.logger.WithFields(logrus.Fields{"holder": token.holderID, "keys": token.keys}).Debug("Admission slots released")
}

// Held reports whether a key currently has a holder.
func (a *Admission) Held(key string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, held := a.slots[key]
	return held
}

// HolderOf returns the saga holding a key, if any.
func (a *Admission) HolderOf(key string) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	holder, held := a.slots[key]
	return holder, held
}
