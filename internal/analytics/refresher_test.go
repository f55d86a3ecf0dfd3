package analytics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stocksense/backend-go/internal/config"
	"github.com/stocksense/backend-go/internal/domain"
	"github.com/stocksense/backend-go/internal/repository/memory"
	"github.com/stocksense/backend-go/internal/risk"
)

var testNow = time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)

type fakeScorer struct {
	failFor map[string]bool
	calls   int
}

func (s *fakeScorer) CalculateProductRisk(_ context.Context, productID string) (*risk.Assessment, error) {
	s.calls++
	if s.failFor[productID] {
		return nil, errors.New("scoring service unavailable")
	}
	return &risk.Assessment{
		Score:     72.5,
		RiskLevel: "high",
		Factors:   domain.RiskFactors{{Factor: "supplier_delay", Impact: 0.6}},
	}, nil
}

type recordingCache struct {
	sets []string
}

func (c *recordingCache) Get(context.Context, string) (*domain.RiskScore, bool, error) {
	return nil, false, nil
}

func (c *recordingCache) Set(_ context.Context, score *domain.RiskScore) error {
	c.sets = append(c.sets, score.ProductID)
	return nil
}

func (c *recordingCache) Invalidate(context.Context, string) error { return nil }

func newRefresher(store *memory.Store, scorer risk.Scorer, riskCache *recordingCache) *Refresher {
	rc := NewRefresher(
		store.Products(),
		store.AlertRepo(),
		store.Snapshots(),
		store.StockHistoryRepo(),
		store.RiskScores(),
		scorer,
		riskCache,
		config.RiskConfig{Expiry: time.Hour, Timeout: time.Second},
	)
	return rc.WithNow(func() time.Time { return testNow })
}

func seedProducts(store *memory.Store) {
	store.AddClient(domain.Client{ID: "c1", IsActive: true})
	store.AddProduct(domain.Product{
		ID: "p1", ClientID: "c1", Name: "Gloves", IsActive: true,
		PackSize: 10, PacksAvailable: 4, TotalUnits: 40,
		ReorderPointPacks: 5, AvgDailyUsage: 10,
	})
	store.AddProduct(domain.Product{
		ID: "p2", ClientID: "c1", Name: "Swabs", IsActive: true,
		PackSize: 1, PacksAvailable: 500, TotalUnits: 500,
		ReorderPointPacks: 50, AvgDailyUsage: 2,
	})
}

func TestSnapshotDailyStock(t *testing.T) {
	store := memory.NewStore()
	seedProducts(store)
	pid := "p1"
	store.AddAlert(domain.Alert{
		ID: "a1", ClientID: "c1", ProductID: &pid,
		Type: domain.AlertCriticalStock, Severity: domain.SeverityCritical,
		CreatedAt: testNow.Add(-2 * time.Hour),
	})

	r := newRefresher(store, &fakeScorer{}, &recordingCache{})
	written, err := r.SnapshotDailyStock(context.Background(), "c1", testNow)
	require.NoError(t, err)
	assert.Equal(t, 2, written)

	snaps := store.DailySnapshots()
	require.Len(t, snaps, 2)

	byProduct := map[string]domain.DailySnapshot{}
	for _, s := range snaps {
		byProduct[s.ProductID] = s
	}
	assert.Equal(t, domain.StatusCritical, byProduct["p1"].StockStatus)
	assert.Equal(t, 1, byProduct["p1"].AlertsCreated)
	assert.Equal(t, domain.StatusHealthy, byProduct["p2"].StockStatus)
	assert.Equal(t, 0, byProduct["p2"].AlertsCreated)
	assert.Equal(t, time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC), byProduct["p1"].Day)

	// Re-running the same day replaces rows instead of adding more.
	written, err = r.SnapshotDailyStock(context.Background(), "c1", testNow)
	require.NoError(t, err)
	assert.Equal(t, 2, written)
	assert.Len(t, store.DailySnapshots(), 2)
}

func TestSnapshotDailyStockWritesStatusCache(t *testing.T) {
	store := memory.NewStore()
	seedProducts(store)

	r := newRefresher(store, &fakeScorer{}, &recordingCache{})
	_, err := r.SnapshotDailyStock(context.Background(), "c1", testNow)
	require.NoError(t, err)

	p1 := store.Product("p1")
	assert.Equal(t, domain.StatusCritical, p1.StockStatus)
	assert.InDelta(t, 0.6, p1.WeeksRemaining, 1e-9)
	require.NotNil(t, p1.StatusComputedAt)
	assert.Equal(t, testNow, *p1.StatusComputedAt)

	p2 := store.Product("p2")
	assert.Equal(t, domain.StatusHealthy, p2.StockStatus)
	assert.InDelta(t, 35.7, p2.WeeksRemaining, 1e-9)
}

func TestAggregateAlertMetrics(t *testing.T) {
	store := memory.NewStore()
	seedProducts(store)
	pid := "p1"
	store.AddAlert(domain.Alert{
		ID: "a1", ClientID: "c1", ProductID: &pid,
		Type: domain.AlertStockout, Severity: domain.SeverityCritical,
		CreatedAt: testNow.Add(-3 * time.Hour),
	})
	store.AddAlert(domain.Alert{
		ID: "a2", ClientID: "c1", ProductID: &pid,
		Type: domain.AlertUsageSpike, Severity: domain.SeverityWarning,
		CreatedAt: testNow.Add(-2 * time.Hour),
	})
	// Opened yesterday, resolved today after 30 hours.
	createdAt := testNow.Add(-32 * time.Hour)
	dismissedAt := testNow.Add(-2 * time.Hour)
	store.AddAlert(domain.Alert{
		ID: "a3", ClientID: "c1", ProductID: &pid,
		Type: domain.AlertLowStock, Severity: domain.SeverityWarning,
		Dismissed: true, DismissedAt: &dismissedAt, CreatedAt: createdAt,
	})

	r := newRefresher(store, &fakeScorer{}, &recordingCache{})
	require.NoError(t, r.AggregateAlertMetrics(context.Background(), "c1", testNow))

	metrics, ok := store.DailyAlertMetrics("c1", testNow.Truncate(24*time.Hour))
	require.True(t, ok)
	assert.Equal(t, 2, metrics.Created)
	assert.Equal(t, 1, metrics.Resolved)
	assert.Equal(t, 1, metrics.ByType.Stockout)
	assert.Equal(t, 1, metrics.ByType.UsageSpike)
	assert.Equal(t, 0, metrics.ByType.LowStock)
	assert.Equal(t, 1, metrics.BySeverity.Critical)
	assert.Equal(t, 1, metrics.BySeverity.Warning)
	assert.Equal(t, 30.0, metrics.AvgResolutionHours)
}

func TestAggregateAlertMetricsBucketsOnUTCDay(t *testing.T) {
	store := memory.NewStore()
	seedProducts(store)

	// Noon in UTC+7 is 05:00 UTC, inside the UTC day 2026-03-10.
	bangkok := time.FixedZone("UTC+7", 7*3600)
	localNoon := time.Date(2026, 3, 10, 12, 0, 0, 0, bangkok)
	pid := "p1"
	store.AddAlert(domain.Alert{
		ID: "a1", ClientID: "c1", ProductID: &pid,
		Type: domain.AlertStockout, Severity: domain.SeverityCritical,
		CreatedAt: localNoon,
	})

	r := newRefresher(store, &fakeScorer{}, &recordingCache{})
	require.NoError(t, r.AggregateAlertMetrics(context.Background(), "c1", localNoon))

	utcDay := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	metrics, ok := store.DailyAlertMetrics("c1", utcDay)
	require.True(t, ok)
	assert.Equal(t, 1, metrics.Created)
	assert.Equal(t, utcDay, metrics.Day)
}

func TestRefreshRiskScores(t *testing.T) {
	store := memory.NewStore()
	seedProducts(store)

	scorer := &fakeScorer{failFor: map[string]bool{"p1": true}}
	riskCache := &recordingCache{}
	r := newRefresher(store, scorer, riskCache)

	refreshed, err := r.RefreshRiskScores(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, 1, refreshed)
	assert.Equal(t, 2, scorer.calls)

	_, ok := store.RiskScore("p1")
	assert.False(t, ok, "failed scoring must leave no row")

	score, ok := store.RiskScore("p2")
	require.True(t, ok)
	assert.Equal(t, 72.5, score.Score)
	assert.Equal(t, "high", score.RiskLevel)
	assert.Equal(t, testNow, score.ComputedAt)
	assert.Equal(t, testNow.Add(time.Hour), score.ExpiresAt)
	require.Len(t, score.Factors, 1)
	assert.Equal(t, "supplier_delay", score.Factors[0].Factor)

	// Write-through keeps the cache warm for the next read.
	assert.Equal(t, []string{"p2"}, riskCache.sets)
}

func TestRecordStockHistory(t *testing.T) {
	store := memory.NewStore()
	seedProducts(store)

	r := newRefresher(store, &fakeScorer{}, &recordingCache{})
	recorded, err := r.RecordStockHistory(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, 2, recorded)

	records := store.StockHistory()
	require.Len(t, records, 2)
	for _, rec := range records {
		assert.Equal(t, "scheduled", rec.Source)
		assert.Equal(t, testNow, rec.RecordedAt)
	}
}
