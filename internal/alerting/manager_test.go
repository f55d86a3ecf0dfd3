package alerting

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stocksense/backend-go/internal/config"
	"github.com/stocksense/backend-go/internal/domain"
	"github.com/stocksense/backend-go/internal/repository"
	"github.com/stocksense/backend-go/internal/repository/memory"
)

var testNow = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

func newManager(store *memory.Store) *Manager {
	return NewManager(
		store.Clients(),
		store.Products(),
		store.AlertRepo(),
		store.UsageMetricRepo(),
		store.Transactions(),
		config.AlertingConfig{UsageSpikeFactor: 2.0, NoMovementDays: 30},
	).WithNow(func() time.Time { return testNow })
}

func seedClient(store *memory.Store) {
	store.AddClient(domain.Client{ID: "c1", Name: "Clinic", IsActive: true})
}

func TestGenerateClientAlerts(t *testing.T) {
	store := memory.NewStore()
	seedClient(store)
	// 40 units against a reorder point of 50 units: critical.
	store.AddProduct(domain.Product{
		ID: "crit", ClientID: "c1", Name: "Gloves", IsActive: true,
		PackSize: 1, TotalUnits: 40, ReorderPointPacks: 50, AvgDailyUsage: 10,
	})
	// Out of stock.
	store.AddProduct(domain.Product{
		ID: "out", ClientID: "c1", Name: "Masks", IsActive: true,
		PackSize: 1, ReorderPointPacks: 20, AvgDailyUsage: 2,
	})
	// Comfortably stocked.
	store.AddProduct(domain.Product{
		ID: "ok", ClientID: "c1", Name: "Swabs", IsActive: true,
		PackSize: 1, TotalUnits: 500, ReorderPointPacks: 50, AvgDailyUsage: 2,
	})

	m := newManager(store)
	created, err := m.GenerateClientAlerts(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, 2, created)

	byProduct := map[string]domain.Alert{}
	for _, a := range store.Alerts() {
		byProduct[*a.ProductID] = a
	}

	crit := byProduct["crit"]
	assert.Equal(t, domain.AlertCriticalStock, crit.Type)
	assert.Equal(t, domain.SeverityCritical, crit.Severity)
	assert.Equal(t, 25.0, crit.ThresholdValue)
	assert.Equal(t, 40.0, crit.ObservedValue)

	out := byProduct["out"]
	assert.Equal(t, domain.AlertStockout, out.Type)
	assert.Equal(t, domain.SeverityCritical, out.Severity)

	_, ok := byProduct["ok"]
	assert.False(t, ok)
}

func TestGenerateClientAlertsIsIdempotent(t *testing.T) {
	store := memory.NewStore()
	seedClient(store)
	store.AddProduct(domain.Product{
		ID: "out", ClientID: "c1", Name: "Masks", IsActive: true,
		PackSize: 1, ReorderPointPacks: 20, AvgDailyUsage: 2,
	})

	m := newManager(store)
	created, err := m.GenerateClientAlerts(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, 1, created)

	created, err = m.GenerateClientAlerts(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, 0, created)
	assert.Len(t, store.Alerts(), 1)
}

func TestGenerateClientAlertsSkipsEventStockout(t *testing.T) {
	store := memory.NewStore()
	seedClient(store)
	store.AddProduct(domain.Product{
		ID: "event", ClientID: "c1", Name: "Flu Clinic Kit", IsActive: true,
		ItemType: domain.ItemTypeEvent,
		PackSize: 1, ReorderPointPacks: 20, AvgDailyUsage: 2,
	})

	m := newManager(store)
	created, err := m.GenerateClientAlerts(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, 0, created)
}

func TestGenerateClientAlertsPrefersLatestMetricUsage(t *testing.T) {
	store := memory.NewStore()
	seedClient(store)
	// Cached daily usage says healthy; the latest metric says under two weeks
	// of stock remain.
	store.AddProduct(domain.Product{
		ID: "p1", ClientID: "c1", Name: "Gauze", IsActive: true,
		PackSize: 1, TotalUnits: 270, ReorderPointPacks: 100, AvgDailyUsage: 1,
	})
	store.AddUsageMetric(domain.UsageMetric{
		ID: "m1", ProductID: "p1", AvgDailyUnits: 20, CreatedAt: testNow,
	})

	m := newManager(store)
	created, err := m.GenerateClientAlerts(context.Background(), "c1")
	require.NoError(t, err)
	require.Equal(t, 1, created)
	assert.Equal(t, domain.AlertCriticalStock, store.Alerts()[0].Type)
}

func TestGenerateClientAlertsHidesOrphans(t *testing.T) {
	store := memory.NewStore()
	seedClient(store)
	store.AddSettings(domain.ClientSettings{ClientID: "c1", ShowOrphanProducts: false})
	store.AddProduct(domain.Product{
		ID: "orphan", ClientID: "c1", Name: "Legacy", IsActive: true, IsOrphan: true,
		PackSize: 1, ReorderPointPacks: 20, AvgDailyUsage: 2,
	})

	m := newManager(store)
	created, err := m.GenerateClientAlerts(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, 0, created)
}

func TestGenerateClientAlertsMissingClient(t *testing.T) {
	store := memory.NewStore()

	m := newManager(store)
	_, err := m.GenerateClientAlerts(context.Background(), "nope")
	require.Error(t, err)
	assert.ErrorIs(t, err, repository.ErrClientNotFound)
}

func TestResolveOutdatedAlerts(t *testing.T) {
	store := memory.NewStore()
	seedClient(store)
	// Restocked product with a stale stockout alert.
	store.AddProduct(domain.Product{
		ID: "restocked", ClientID: "c1", IsActive: true,
		PackSize: 1, TotalUnits: 200, ReorderPointPacks: 50,
	})
	pid := "restocked"
	store.AddAlert(domain.Alert{
		ID: "a1", ClientID: "c1", ProductID: &pid,
		Type: domain.AlertStockout, Severity: domain.SeverityCritical,
		CreatedAt: testNow.Add(-24 * time.Hour),
	})
	// Still below the reorder point: low_stock stays open.
	store.AddProduct(domain.Product{
		ID: "still-low", ClientID: "c1", IsActive: true,
		PackSize: 1, TotalUnits: 30, ReorderPointPacks: 50,
	})
	pid2 := "still-low"
	store.AddAlert(domain.Alert{
		ID: "a2", ClientID: "c1", ProductID: &pid2,
		Type: domain.AlertLowStock, Severity: domain.SeverityWarning,
		CreatedAt: testNow.Add(-24 * time.Hour),
	})

	m := newManager(store)
	resolved, err := m.ResolveOutdatedAlerts(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, 1, resolved)

	for _, a := range store.Alerts() {
		switch a.ID {
		case "a1":
			assert.True(t, a.Dismissed)
			require.NotNil(t, a.DismissedAt)
			assert.Equal(t, testNow, *a.DismissedAt)
		case "a2":
			assert.False(t, a.Dismissed)
		}
	}

	// A second run with unchanged stock resolves nothing further.
	resolved, err = m.ResolveOutdatedAlerts(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, 0, resolved)
	alerts := store.Alerts()
	require.Len(t, alerts, 2)
	for _, a := range alerts {
		if a.ID == "a2" {
			assert.False(t, a.Dismissed)
		}
	}
}

func TestResolveThenGenerateReplacesAlertType(t *testing.T) {
	store := memory.NewStore()
	seedClient(store)
	// Was out of stock, partially restocked: stockout resolves, critical opens.
	store.AddProduct(domain.Product{
		ID: "p1", ClientID: "c1", Name: "Gloves", IsActive: true,
		PackSize: 1, TotalUnits: 20, ReorderPointPacks: 50, AvgDailyUsage: 10,
	})
	pid := "p1"
	store.AddAlert(domain.Alert{
		ID: "a1", ClientID: "c1", ProductID: &pid,
		Type: domain.AlertStockout, Severity: domain.SeverityCritical,
		CreatedAt: testNow.Add(-24 * time.Hour),
	})

	m := newManager(store)
	res, err := m.RunAlertGeneration(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Resolved)
	assert.Equal(t, 1, res.Created)

	var open []domain.Alert
	for _, a := range store.Alerts() {
		if !a.Dismissed {
			open = append(open, a)
		}
	}
	require.Len(t, open, 1)
	assert.Equal(t, domain.AlertCriticalStock, open[0].Type)
}

func TestDetectUsageSpikes(t *testing.T) {
	store := memory.NewStore()
	seedClient(store)
	// Baseline ~3.3 units/day; latest metric at 10 units/day.
	store.AddProduct(domain.Product{
		ID: "spiking", ClientID: "c1", Name: "Gauze", IsActive: true,
		PackSize: 1, TotalUnits: 500, AvgMonthlyUsage: 100,
	})
	store.AddUsageMetric(domain.UsageMetric{
		ID: "m1", ProductID: "spiking", AvgDailyUnits: 10, CreatedAt: testNow,
	})
	// Running at its baseline.
	store.AddProduct(domain.Product{
		ID: "steady", ClientID: "c1", Name: "Swabs", IsActive: true,
		PackSize: 1, TotalUnits: 500, AvgMonthlyUsage: 100,
	})
	store.AddUsageMetric(domain.UsageMetric{
		ID: "m2", ProductID: "steady", AvgDailyUnits: 3, CreatedAt: testNow,
	})

	m := newManager(store)
	n, err := m.DetectUsageSpikes(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	alerts := store.Alerts()
	require.Len(t, alerts, 1)
	assert.Equal(t, domain.AlertUsageSpike, alerts[0].Type)
	assert.Equal(t, domain.SeverityWarning, alerts[0].Severity)
	assert.Equal(t, "spiking", *alerts[0].ProductID)
	assert.Equal(t, 10.0, alerts[0].ObservedValue)
}

func TestDetectNoMovement(t *testing.T) {
	store := memory.NewStore()
	seedClient(store)
	// Stocked, never moved.
	store.AddProduct(domain.Product{
		ID: "idle", ClientID: "c1", Name: "Splints", IsActive: true,
		PackSize: 1, TotalUnits: 60,
	})
	// Stocked, moved last week.
	store.AddProduct(domain.Product{
		ID: "busy", ClientID: "c1", Name: "Gauze", IsActive: true,
		PackSize: 1, TotalUnits: 60,
	})
	store.AddTransaction(domain.Transaction{
		ID: "t1", ClientID: "c1", ProductID: "busy",
		QuantityUnits: 5, OrderStatus: "completed",
		DateSubmitted: testNow.AddDate(0, 0, -7),
	})
	// Out of stock: nothing to flag.
	store.AddProduct(domain.Product{
		ID: "empty", ClientID: "c1", Name: "Tape", IsActive: true,
		PackSize: 1,
	})

	m := newManager(store)
	n, err := m.DetectNoMovement(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	alerts := store.Alerts()
	require.Len(t, alerts, 1)
	assert.Equal(t, domain.AlertNoMovement, alerts[0].Type)
	assert.Equal(t, domain.SeverityInfo, alerts[0].Severity)
	assert.Equal(t, "idle", *alerts[0].ProductID)
}

func TestRunAlertGenerationOrdering(t *testing.T) {
	store := memory.NewStore()
	seedClient(store)
	store.AddProduct(domain.Product{
		ID: "p1", ClientID: "c1", Name: "Gloves", IsActive: true,
		PackSize: 1, TotalUnits: 60, ReorderPointPacks: 50, AvgDailyUsage: 1,
	})

	m := newManager(store)
	res, err := m.RunAlertGeneration(context.Background(), "c1")
	require.NoError(t, err)
	// Watch-level stock raises nothing; the only finding is the product that
	// has never moved.
	assert.Equal(t, GenerationResult{NoMovement: 1}, res)
}
