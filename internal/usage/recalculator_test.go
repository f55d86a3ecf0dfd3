package usage

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stocksense/backend-go/internal/domain"
	"github.com/stocksense/backend-go/internal/repository/memory"
)

// midMonth anchors the clock to the 15th so AddDate month arithmetic never
// normalizes across bucket boundaries.
func midMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 15, 12, 0, 0, 0, time.UTC)
}

func newRecalculator(store *memory.Store, now time.Time) *Recalculator {
	return NewRecalculator(
		store.Products(),
		store.Transactions(),
		store.StockHistoryRepo(),
		store.UsageMetricRepo(),
	).WithNow(func() time.Time { return now })
}

// seedMonthlyOrders adds one completed transaction of units per month for the
// given number of trailing months.
func seedMonthlyOrders(store *memory.Store, productID string, months int, units float64, now time.Time) {
	for i := 1; i <= months; i++ {
		store.AddTransaction(domain.Transaction{
			ID:            productID + "-tx-" + string(rune('0'+i)),
			ClientID:      "c1",
			ProductID:     productID,
			QuantityUnits: units,
			QuantityPacks: units / 10,
			OrderStatus:   "completed",
			DateSubmitted: now.AddDate(0, -i, 0),
		})
	}
}

func TestTimeWeights(t *testing.T) {
	weights := timeWeights(6)
	require.Len(t, weights, 6)

	var sum float64
	for _, w := range weights {
		sum += w
	}
	assert.InDelta(t, 1.0, sum, 1e-9)

	// The three most recent months carry 1.5x the weight of the older ones.
	assert.InDelta(t, 1.5, weights[5]/weights[0], 1e-9)
	assert.InDelta(t, weights[3], weights[5], 1e-9)
}

func TestTimeWeightsShortHistory(t *testing.T) {
	weights := timeWeights(2)
	require.Len(t, weights, 2)
	assert.InDelta(t, 0.5, weights[0], 1e-9)
	assert.InDelta(t, 0.5, weights[1], 1e-9)
}

func TestCoefficientOfVariation(t *testing.T) {
	assert.InDelta(t, 0, coefficientOfVariation([]float64{5, 5, 5}), 1e-9)
	assert.True(t, math.IsInf(coefficientOfVariation(nil), 1))
	assert.True(t, math.IsInf(coefficientOfVariation([]float64{0, 0}), 1))
	assert.Greater(t, coefficientOfVariation([]float64{1, 100}), 0.9)
}

func TestConfidenceScoreBounds(t *testing.T) {
	best := confidenceScore(12, 0.1, 10, MethodHybrid)
	worst := confidenceScore(1, 2.0, 200, "unknown")

	assert.Greater(t, best, worst)
	assert.LessOrEqual(t, best, 1.0)
	assert.Greater(t, worst, 0.0)

	// Full marks everywhere: 0.30 + 0.25 + 0.20 + 0.15*0.95 + 0.05.
	assert.InDelta(t, 0.94, best, 0.001)
}

func TestRecalculateProductNoData(t *testing.T) {
	store := memory.NewStore()
	p := domain.Product{ID: "p1", ClientID: "c1", IsActive: true, PackSize: 10}
	store.AddProduct(p)

	rc := newRecalculator(store, time.Now().UTC())
	result, err := rc.RecalculateProduct(context.Background(), &p)
	require.NoError(t, err)
	assert.Equal(t, MethodNoData, result.Method)
	assert.Zero(t, result.MonthlyUsageUnits)
	assert.Zero(t, result.Confidence)
}

func TestRecalculateProductEstimatedFromReorderPoint(t *testing.T) {
	store := memory.NewStore()
	p := domain.Product{ID: "p1", ClientID: "c1", IsActive: true, PackSize: 5, ReorderPointPacks: 20}
	store.AddProduct(p)

	rc := newRecalculator(store, time.Now().UTC())
	result, err := rc.RecalculateProduct(context.Background(), &p)
	require.NoError(t, err)

	// 20 packs covering four weeks: 5 packs/week, 21.65 packs/month.
	assert.Equal(t, MethodEstimated, result.Method)
	assert.InDelta(t, 21.65, result.MonthlyUsagePacks, 1e-9)
	assert.InDelta(t, 108.25, result.MonthlyUsageUnits, 1e-9)
	assert.InDelta(t, 108.25/avgDaysPerMonth, result.AvgDailyUnits, 1e-9)
	assert.InDelta(t, 0.3, result.Confidence, 1e-9)
	assert.Zero(t, result.DataMonths)
}

func TestRecalculateProductEstimateLosesToOrders(t *testing.T) {
	now := midMonth(time.Now().UTC())
	store := memory.NewStore()
	p := domain.Product{ID: "p1", ClientID: "c1", IsActive: true, PackSize: 10, ReorderPointPacks: 50}
	store.AddProduct(p)
	seedMonthlyOrders(store, "p1", 6, 100, now)

	rc := newRecalculator(store, now)
	result, err := rc.RecalculateProduct(context.Background(), &p)
	require.NoError(t, err)
	assert.Equal(t, MethodOrderFulfillment, result.Method)
}

func TestRecalculateProductFromOrders(t *testing.T) {
	now := midMonth(time.Now().UTC())
	store := memory.NewStore()
	p := domain.Product{ID: "p1", ClientID: "c1", IsActive: true, PackSize: 10}
	store.AddProduct(p)
	seedMonthlyOrders(store, "p1", 6, 100, now)

	rc := newRecalculator(store, now)
	result, err := rc.RecalculateProduct(context.Background(), &p)
	require.NoError(t, err)

	assert.Equal(t, MethodOrderFulfillment, result.Method)
	// Steady history: the weighting changes nothing.
	assert.InDelta(t, 100, result.MonthlyUsageUnits, 1e-9)
	assert.InDelta(t, 10, result.MonthlyUsagePacks, 1e-9)
	assert.InDelta(t, 100/avgDaysPerMonth, result.AvgDailyUnits, 1e-9)
	assert.Equal(t, 6, result.DataMonths)
	assert.Greater(t, result.Confidence, 0.5)
}

func TestRecalculateProductFromSnapshots(t *testing.T) {
	now := midMonth(time.Now().UTC())
	store := memory.NewStore()
	p := domain.Product{ID: "p1", ClientID: "c1", IsActive: true, PackSize: 1}
	store.AddProduct(p)

	// Weekly snapshots dropping 14 units per week: 2 units/day.
	for week := 0; week < 8; week++ {
		store.AddStockHistory(domain.StockHistory{
			ID:         "h" + string(rune('0'+week)),
			ProductID:  "p1",
			TotalUnits: float64(200 - 14*week),
			RecordedAt: now.AddDate(0, 0, -7*(8-week)),
		})
	}

	rc := newRecalculator(store, now)
	result, err := rc.RecalculateProduct(context.Background(), &p)
	require.NoError(t, err)

	assert.Equal(t, MethodSnapshotDelta, result.Method)
	assert.InDelta(t, 2, result.AvgDailyUnits, 1e-9)
	assert.InDelta(t, 2*avgDaysPerMonth, result.MonthlyUsageUnits, 1e-9)
}

func TestRecalculateProductPrefersHybrid(t *testing.T) {
	now := midMonth(time.Now().UTC())
	store := memory.NewStore()
	p := domain.Product{ID: "p1", ClientID: "c1", IsActive: true, PackSize: 1}
	store.AddProduct(p)

	// Orders say ~100 units/month, snapshots say ~61.
	seedMonthlyOrders(store, "p1", 6, 100, now)
	for week := 0; week < 8; week++ {
		store.AddStockHistory(domain.StockHistory{
			ID:         "h" + string(rune('0'+week)),
			ProductID:  "p1",
			TotalUnits: float64(200 - 14*week),
			RecordedAt: now.AddDate(0, 0, -7*(8-week)),
		})
	}

	rc := newRecalculator(store, now)
	result, err := rc.RecalculateProduct(context.Background(), &p)
	require.NoError(t, err)

	assert.Equal(t, MethodHybrid, result.Method)
	// Blended estimate falls between the two sources.
	assert.Greater(t, result.MonthlyUsageUnits, 2*avgDaysPerMonth)
	assert.Less(t, result.MonthlyUsageUnits, 100.0)
}

func TestRecalculateClientPersists(t *testing.T) {
	now := midMonth(time.Now().UTC())
	store := memory.NewStore()
	store.AddClient(domain.Client{ID: "c1", IsActive: true})
	store.AddProduct(domain.Product{ID: "p1", ClientID: "c1", IsActive: true, PackSize: 10})
	seedMonthlyOrders(store, "p1", 6, 100, now)
	// A product with no history still succeeds with the no_data method.
	store.AddProduct(domain.Product{ID: "p2", ClientID: "c1", IsActive: true, PackSize: 1})

	rc := newRecalculator(store, now)
	updated, err := rc.RecalculateClient(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, 2, updated)

	metrics := store.UsageMetrics()
	require.Len(t, metrics, 2)

	p := store.Product("p1")
	assert.InDelta(t, 100, p.AvgMonthlyUsage, 1e-9)
	assert.InDelta(t, 100/avgDaysPerMonth, p.AvgDailyUsage, 1e-9)
}
