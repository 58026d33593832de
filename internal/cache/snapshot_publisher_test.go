package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ebisiere/crossarb/internal/database"
	"github.com/ebisiere/crossarb/internal/models"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func newTestPublisher(t *testing.T) (*SnapshotPublisher, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := &database.RedisClient{Client: client}
	return NewSnapshotPublisher(store, 30*time.Second, testLogger()), mr
}

// The publisher goes through the shared Redis wrapper, not a raw client.
var _ Store = (*database.RedisClient)(nil)

func testSnapshot(venue string) *models.VenueSnapshot {
	return &models.VenueSnapshot{
		Venue: venue,
		Quotes: map[string]models.PriceQuote{
			"XRP/USDT": {
				Venue:      venue,
				Pair:       "XRP/USDT",
				Bid:        decimal.NewFromFloat(0.50),
				Ask:        decimal.NewFromFloat(0.501),
				Last:       decimal.NewFromFloat(0.5005),
				CapturedAt: time.Now().UTC(),
			},
		},
		FetchedAt: time.Now().UTC(),
	}
}

func TestPublishAndReadBack(t *testing.T) {
	publisher, mr := newTestPublisher(t)
	ctx := context.Background()

	publisher.Publish(ctx, map[string]*models.VenueSnapshot{
		"binance": testSnapshot("binance"),
		"kraken":  testSnapshot("kraken"),
	})

	assert.True(t, mr.Exists("price_cache:snapshot:binance"))
	assert.True(t, mr.Exists("price_cache:snapshot:kraken"))

	snapshot, ok := publisher.GetSnapshot(ctx, "binance")
	require.True(t, ok)
	assert.Equal(t, "binance", snapshot.Venue)
	require.Contains(t, snapshot.Quotes, "XRP/USDT")
	assert.True(t, decimal.NewFromFloat(0.50).Equal(snapshot.Quotes["XRP/USDT"].Bid))

	stats := publisher.Stats()
	assert.Equal(t, int64(2), stats.Published)
	assert.Equal(t, int64(0), stats.Failed)
}

func TestPublishSetsTTL(t *testing.T) {
	publisher, mr := newTestPublisher(t)

	publisher.Publish(context.Background(), map[string]*models.VenueSnapshot{
		"binance": testSnapshot("binance"),
	})

	ttl := mr.TTL("price_cache:snapshot:binance")
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, 30*time.Second)
}

func TestPublishSkipsNilSnapshots(t *testing.T) {
	publisher, mr := newTestPublisher(t)

	publisher.Publish(context.Background(), map[string]*models.VenueSnapshot{"ghost": nil})

	assert.False(t, mr.Exists("price_cache:snapshot:ghost"))
	assert.Equal(t, int64(0), publisher.Stats().Published)
}

func TestPublishStatus(t *testing.T) {
	publisher, mr := newTestPublisher(t)

	publisher.PublishStatus(context.Background(), []models.VenueCacheStatus{
		{Venue: "binance", PairCount: 3, AgeMs: 1200, Stale: false},
	})

	raw, err := mr.Get("price_cache:status")
	require.NoError(t, err)
	assert.Contains(t, raw, `"binance"`)
	assert.Contains(t, raw, `"pair_count":3`)
}

func TestGetSnapshotMissing(t *testing.T) {
	publisher, _ := newTestPublisher(t)

	_, ok := publisher.GetSnapshot(context.Background(), "nothing")
	assert.False(t, ok)
}

func TestInvalidateRemovesPublishedKeys(t *testing.T) {
	publisher, mr := newTestPublisher(t)
	ctx := context.Background()

	publisher.Publish(ctx, map[string]*models.VenueSnapshot{
		"binance": testSnapshot("binance"),
		"kraken":  testSnapshot("kraken"),
	})
	publisher.PublishStatus(ctx, []models.VenueCacheStatus{{Venue: "binance", PairCount: 1}})

	require.True(t, mr.Exists("price_cache:snapshot:binance"))
	require.True(t, mr.Exists("price_cache:status"))

	publisher.Invalidate(ctx, []string{"binance", "kraken"})

	assert.False(t, mr.Exists("price_cache:snapshot:binance"))
	assert.False(t, mr.Exists("price_cache:snapshot:kraken"))
	assert.False(t, mr.Exists("price_cache:status"))
}

func TestPublishFailureCounted(t *testing.T) {
	publisher, mr := newTestPublisher(t)

	// A dead Redis makes publishing fail silently; the counter records it.
	mr.Close()

	publisher.Publish(context.Background(), map[string]*models.VenueSnapshot{
		"binance": testSnapshot("binance"),
	})

	stats := publisher.Stats()
	assert.Equal(t, int64(0), stats.Published)
	assert.Equal(t, int64(1), stats.Failed)
}
