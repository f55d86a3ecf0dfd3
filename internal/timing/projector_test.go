package timing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stocksense/backend-go/internal/config"
	"github.com/stocksense/backend-go/internal/domain"
	"github.com/stocksense/backend-go/internal/repository/memory"
)

var testNow = time.Date(2026, 3, 10, 15, 30, 0, 0, time.UTC)

func intPtr(v int) *int { return &v }

func TestCalculateStockoutDate(t *testing.T) {
	t.Run("floors partial days", func(t *testing.T) {
		proj := CalculateStockoutDate(100, 7, testNow)
		require.NotNil(t, proj.Date)
		require.NotNil(t, proj.DaysRemaining)
		assert.Equal(t, 14, *proj.DaysRemaining)
		assert.Equal(t, time.Date(2026, 3, 24, 0, 0, 0, 0, time.UTC), *proj.Date)
	})

	t.Run("no usage data yields nil projection", func(t *testing.T) {
		assert.Nil(t, CalculateStockoutDate(100, 0, testNow).Date)
		assert.Nil(t, CalculateStockoutDate(100, -1, testNow).Date)
	})

	t.Run("zero stock projects today", func(t *testing.T) {
		proj := CalculateStockoutDate(0, 5, testNow)
		require.NotNil(t, proj.DaysRemaining)
		assert.Equal(t, 0, *proj.DaysRemaining)
		assert.Equal(t, time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC), *proj.Date)
	})
}

func TestResolveLeadTime(t *testing.T) {
	defaults := domain.TimingDefaults{
		SupplierLeadDays:   7,
		ShippingLeadDays:   3,
		ProcessingLeadDays: 2,
		SafetyBufferDays:   3,
	}

	t.Run("defaults only", func(t *testing.T) {
		lt := ResolveLeadTime(&domain.Product{}, defaults)
		assert.Equal(t, 15, lt.TotalDays)
		assert.False(t, lt.Pinned)
	})

	t.Run("product overrides replace components", func(t *testing.T) {
		p := &domain.Product{
			SupplierLeadDays: intPtr(10),
			SafetyBufferDays: intPtr(0),
		}
		lt := ResolveLeadTime(p, defaults)
		assert.Equal(t, 10, lt.SupplierDays)
		assert.Equal(t, 0, lt.SafetyDays)
		assert.Equal(t, 15, lt.TotalDays)
	})

	t.Run("pinned total wins over components", func(t *testing.T) {
		p := &domain.Product{
			SupplierLeadDays: intPtr(10),
			TotalLeadDays:    intPtr(21),
		}
		lt := ResolveLeadTime(p, defaults)
		assert.Equal(t, 21, lt.TotalDays)
		assert.True(t, lt.Pinned)
	})
}

func TestUrgencyFor(t *testing.T) {
	tests := []struct {
		name string
		days *int
		want domain.Urgency
	}{
		{"nil is safe", nil, domain.UrgencySafe},
		{"negative is overdue", intPtr(-1), domain.UrgencyOverdue},
		{"zero is critical", intPtr(0), domain.UrgencyCritical},
		{"three is critical", intPtr(3), domain.UrgencyCritical},
		{"seven is soon", intPtr(7), domain.UrgencySoon},
		{"fourteen is upcoming", intPtr(14), domain.UrgencyUpcoming},
		{"fifteen is safe", intPtr(15), domain.UrgencySafe},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, UrgencyFor(tt.days))
		})
	}
}

func TestCalculateOrderDeadline(t *testing.T) {
	defaults := domain.TimingDefaults{SupplierLeadDays: 7, ShippingLeadDays: 3}

	p := &domain.Product{
		ID:            "p1",
		Name:          "Widget",
		TotalUnits:    120,
		AvgDailyUsage: 6,
	}

	d := CalculateOrderDeadline(p, defaults, testNow)

	// 20 days of stock, 10 days of lead time.
	require.NotNil(t, d.StockoutDate)
	assert.Equal(t, time.Date(2026, 3, 30, 0, 0, 0, 0, time.UTC), *d.StockoutDate)
	require.NotNil(t, d.LastOrderByDate)
	assert.Equal(t, time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC), *d.LastOrderByDate)
	require.NotNil(t, d.DaysUntilDeadline)
	assert.Equal(t, 10, *d.DaysUntilDeadline)
	assert.Equal(t, domain.UrgencyUpcoming, d.Urgency)
}

func TestCalculateOrderDeadlineNoUsage(t *testing.T) {
	p := &domain.Product{ID: "p1", TotalUnits: 120}

	d := CalculateOrderDeadline(p, domain.TimingDefaults{}, testNow)

	assert.Nil(t, d.StockoutDate)
	assert.Nil(t, d.LastOrderByDate)
	assert.Nil(t, d.DaysUntilDeadline)
	assert.Equal(t, domain.UrgencySafe, d.Urgency)
}

func testTimingConfig() config.TimingConfig {
	return config.TimingConfig{
		SupplierLeadDays:   7,
		ShippingLeadDays:   3,
		ProcessingLeadDays: 2,
		SafetyBufferDays:   3,
	}
}

func TestGetUpcomingDeadlines(t *testing.T) {
	store := memory.NewStore()
	store.AddClient(domain.Client{ID: "c1", IsActive: true})
	// 5 days of stock: deadline is well past (lead time 15d).
	store.AddProduct(domain.Product{
		ID: "urgent", ClientID: "c1", IsActive: true,
		TotalUnits: 25, AvgDailyUsage: 5,
	})
	// 60 days of stock: deadline in 45 days.
	store.AddProduct(domain.Product{
		ID: "relaxed", ClientID: "c1", IsActive: true,
		TotalUnits: 300, AvgDailyUsage: 5,
	})
	// No usage data: excluded from the scan entirely.
	store.AddProduct(domain.Product{
		ID: "silent", ClientID: "c1", IsActive: true,
		TotalUnits: 300,
	})

	pr := NewProjector(store.Products(), store.Clients(), testTimingConfig()).
		WithNow(func() time.Time { return testNow })

	t.Run("sorted ascending by deadline", func(t *testing.T) {
		deadlines, err := pr.GetUpcomingDeadlines(context.Background(), "c1", DeadlineFilter{})
		require.NoError(t, err)
		require.Len(t, deadlines, 2)
		assert.Equal(t, "urgent", deadlines[0].ProductID)
		assert.Equal(t, domain.UrgencyOverdue, deadlines[0].Urgency)
		assert.Equal(t, "relaxed", deadlines[1].ProductID)
	})

	t.Run("horizon filter", func(t *testing.T) {
		deadlines, err := pr.GetUpcomingDeadlines(context.Background(), "c1", DeadlineFilter{HorizonDays: 14})
		require.NoError(t, err)
		require.Len(t, deadlines, 1)
		assert.Equal(t, "urgent", deadlines[0].ProductID)
	})

	t.Run("urgency filter", func(t *testing.T) {
		deadlines, err := pr.GetUpcomingDeadlines(context.Background(), "c1", DeadlineFilter{
			Urgencies: []domain.Urgency{domain.UrgencySafe},
		})
		require.NoError(t, err)
		require.Len(t, deadlines, 1)
		assert.Equal(t, "relaxed", deadlines[0].ProductID)
	})
}

func TestGetUpcomingDeadlinesUsesClientSettings(t *testing.T) {
	store := memory.NewStore()
	store.AddClient(domain.Client{ID: "c1", IsActive: true})
	store.AddSettings(domain.ClientSettings{
		ClientID:         "c1",
		SupplierLeadDays: intPtr(30),
	})
	store.AddProduct(domain.Product{
		ID: "p1", ClientID: "c1", IsActive: true,
		TotalUnits: 100, AvgDailyUsage: 5,
	})

	pr := NewProjector(store.Products(), store.Clients(), testTimingConfig()).
		WithNow(func() time.Time { return testNow })

	deadlines, err := pr.GetUpcomingDeadlines(context.Background(), "c1", DeadlineFilter{})
	require.NoError(t, err)
	require.Len(t, deadlines, 1)
	// 30 supplier + 3 shipping + 2 processing + 3 safety.
	assert.Equal(t, 38, deadlines[0].LeadTime.TotalDays)
}

func TestRefreshStaleTimings(t *testing.T) {
	computed := testNow.Add(-2 * time.Hour)
	store := memory.NewStore()
	store.AddClient(domain.Client{ID: "c1", IsActive: true})
	store.AddProduct(domain.Product{
		ID: "never", ClientID: "c1", IsActive: true,
		TotalUnits: 50, AvgDailyUsage: 5,
	})
	store.AddProduct(domain.Product{
		ID: "fresh", ClientID: "c1", IsActive: true,
		TotalUnits: 50, AvgDailyUsage: 5,
		StatusComputedAt: &testNow,
	})
	store.AddProduct(domain.Product{
		ID: "stale", ClientID: "c1", IsActive: true,
		TotalUnits: 50, AvgDailyUsage: 5,
		StatusComputedAt: &computed,
	})

	pr := NewProjector(store.Products(), store.Clients(), testTimingConfig()).
		WithNow(func() time.Time { return testNow })

	refreshed, err := pr.RefreshStaleTimings(context.Background(), "c1", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 2, refreshed)

	p := store.Product("stale")
	require.NotNil(t, p.ProjectedStockoutDate)
	assert.Equal(t, time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC), *p.ProjectedStockoutDate)
	require.NotNil(t, p.LastOrderByDate)
	assert.Equal(t, time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC), *p.LastOrderByDate)
	require.NotNil(t, p.TotalLeadDays)
	assert.Equal(t, 15, *p.TotalLeadDays)
	require.NotNil(t, p.StatusComputedAt)
	assert.Equal(t, testNow, *p.StatusComputedAt)

	// Untouched product keeps its cache.
	assert.Nil(t, store.Product("fresh").ProjectedStockoutDate)
}
