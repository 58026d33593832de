package executor

import (
	"sync"

	"github.com/ebisiere/crossarb/internal/models"
)

// History is the bounded in-memory list of terminal sagas, most recent first.
// Long-term retention lives in the history repository; this ring serves the
// HTTP history endpoint without a database round trip.
type History struct {
	mu    sync.RWMutex
	items []*models.ExecutionSaga
	max   int
}

// NewHistory creates a ring keeping the most recent max sagas.
func NewHistory(max int) *History {
	if max <= 0 {
		max = 100
	}
	return &History{max: max}
}

// Add records a terminal saga at the front, evicting the oldest past capacity.
func (h *History) Add(saga *models.ExecutionSaga) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.items = append([]*models.ExecutionSaga{saga}, h.items...)
	if len(h.items) > h.max {
		h.items = h.items[:h.max]
	}
}

// Recent returns up to limit sagas, most recent first.
func (h *History) Recent(limit int) []*models.ExecutionSaga {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if limit <= 0 || limit > len(h.items) {
		limit = len(h.items)
	}
	out := make([]*models.ExecutionSaga, limit)
	copy(out, h.items[:limit])
	return out
}

// Len returns the number of retained sagas.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.items)
}
