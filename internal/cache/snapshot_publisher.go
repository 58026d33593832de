package cache

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/ebisiere/crossarb/internal/models"
)

// Store is the key/value surface the publisher needs. Satisfied by
// *database.RedisClient.
type Store interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, keys ...string) error
}

// PublisherStats tracks publish outcomes.
type PublisherStats struct {
	Published int64 `json:"published"`
	Failed    int64 `json:"failed"`
}

// SnapshotPublisher mirrors the latest venue snapshots and cache status into
// Redis so external consumers (dashboards, the status endpoint of sibling
// processes) can read them without touching the engine. Publishing is
// best-effort: a Redis failure is logged and never blocks a poll cycle.
type SnapshotPublisher struct {
	store  Store
	ttl    time.Duration
	prefix string
	logger *logrus.Logger

	mu    sync.Mutex
	stats PublisherStats
}

// NewSnapshotPublisher creates a Redis-backed snapshot publisher.
func NewSnapshotPublisher(store Store, ttl time.Duration, logger *logrus.Logger) *SnapshotPublisher {
	return &SnapshotPublisher{
		store:  store,
		ttl:    ttl,
		prefix: "price_cache:",
		logger: logger,
	}
}

// Publish writes each venue snapshot under its own key with TTL.
func (p *SnapshotPublisher) Publish(ctx context.Context, snapshots map[string]*models.VenueSnapshot) {
	for venue, snapshot := range snapshots {
		if snapshot == nil {
			continue
		}
		data, err := json.Marshal(snapshot)
		if err != nil {
			p.recordFailure()
			p.logger.WithError(err).WithField("venue", venue).Warn("Failed to serialize snapshot")
			continue
		}
		if err := p.store.Set(ctx, p.prefix+"snapshot:"+venue, data, p.ttl); err != nil {
			p.recordFailure()
			p.logger.WithError(err).WithField("venue", venue).Warn("Failed to publish snapshot to Redis")
			continue
		}
		p.mu.Lock()
		p.stats.Published++
		p.mu.Unlock()
	}
}

// PublishStatus writes the aggregated per-venue cache status.
func (p *SnapshotPublisher) PublishStatus(ctx context.Context, status []models.VenueCacheStatus) {
	data, err := json.Marshal(status)
	if err != nil {
		p.recordFailure()
		p.logger.WithError(err).Warn("Failed to serialize cache status")
		return
	}
	if err := p.store.Set(ctx, p.prefix+"status", data, p.ttl); err != nil {
		p.recordFailure()
		p.logger.WithError(err).Warn("Failed to publish cache status to Redis")
	}
}

// GetSnapshot reads a previously published snapshot back from Redis.
func (p *SnapshotPublisher) GetSnapshot(ctx context.Context, venue string) (*models.VenueSnapshot, bool) {
	data, err := p.store.Get(ctx, p.prefix+"snapshot:"+venue)
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		p.logger.WithError(err).WithField("venue", venue).Warn("Redis error reading snapshot")
		return nil, false
	}
	var snapshot models.VenueSnapshot
	if err := json.Unmarshal([]byte(data), &snapshot); err != nil {
		p.logger.WithError(err).WithField("venue", venue).Warn("Failed to deserialize snapshot")
		return nil, false
	}
	return &snapshot, true
}

// Invalidate removes the published snapshots and status document, so that
// consumers stop reading state from an engine that is shutting down.
func (p *SnapshotPublisher) Invalidate(ctx context.Context, venues []string) {
	keys := make([]string, 0, len(venues)+1)
	for _, venue := range venues {
		keys = append(keys, p.prefix+"snapshot:"+venue)
	}
	keys = append(keys, p.prefix+"status")
	if err := p.store.Delete(ctx, keys...); err != nil {
		p.logger.WithError(err).Warn("Failed to invalidate published snapshots")
	}
}

// Stats returns a copy of the publish counters.
func (p *SnapshotPublisher) Stats() PublisherStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

func (p *SnapshotPublisher) recordFailure() {
	p.mu.Lock()
	p.stats.Failed++
	p.mu.Unlock()
}
