// Package timing projects stockout dates and order deadlines from stock
// levels, usage rates and lead-time composition.
package timing

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/stocksense/backend-go/internal/config"
	"github.com/stocksense/backend-go/internal/domain"
	"github.com/stocksense/backend-go/internal/repository"
)

// StockoutProjection is the projected stockout for a single product. Both
// fields are nil when there is no usage data.
type StockoutProjection struct {
	Date          *time.Time `json:"date"`
	DaysRemaining *int       `json:"days_remaining"`
}

// LeadTime is a resolved lead-time composition in days.
type LeadTime struct {
	SupplierDays   int  `json:"supplier_days"`
	ShippingDays   int  `json:"shipping_days"`
	ProcessingDays int  `json:"processing_days"`
	SafetyDays     int  `json:"safety_days"`
	TotalDays      int  `json:"total_days"`
	Pinned         bool `json:"pinned"`
}

// OrderDeadline is the computed order timing for a product.
type OrderDeadline struct {
	ProductID         string          `json:"product_id"`
	ProductName       string          `json:"product_name"`
	StockoutDate      *time.Time      `json:"stockout_date"`
	LastOrderByDate   *time.Time      `json:"last_order_by_date"`
	DaysUntilDeadline *int            `json:"days_until_deadline"`
	LeadTime          LeadTime        `json:"lead_time"`
	Urgency           domain.Urgency  `json:"urgency"`
}

// DeadlineFilter narrows a batch deadline scan.
type DeadlineFilter struct {
	// HorizonDays keeps only deadlines within this many days; 0 means no limit.
	HorizonDays int
	// Urgencies keeps only the listed urgency levels; empty means all.
	Urgencies []domain.Urgency
}

// CalculateStockoutDate projects when stock runs out at the current usage
// rate. A non-positive usage rate yields a nil projection ("no usage data").
func CalculateStockoutDate(stockUnits, dailyUsage float64, now time.Time) StockoutProjection {
	if dailyUsage <= 0 {
		return StockoutProjection{}
	}

	days := int(math.Floor(stockUnits / dailyUsage))
	if days < 0 {
		days = 0
	}
	date := truncateDay(now).AddDate(0, 0, days)

	return StockoutProjection{Date: &date, DaysRemaining: &days}
}

// ResolveLeadTime composes the lead time for a product: a pinned total on the
// product wins outright; otherwise each component is the product override or
// the client default.
func ResolveLeadTime(p *domain.Product, defaults domain.TimingDefaults) LeadTime {
	lt := LeadTime{
		SupplierDays:   intOr(p.SupplierLeadDays, defaults.SupplierLeadDays),
		ShippingDays:   intOr(p.ShippingLeadDays, defaults.ShippingLeadDays),
		ProcessingDays: intOr(p.ProcessingLeadDays, defaults.ProcessingLeadDays),
		SafetyDays:     intOr(p.SafetyBufferDays, defaults.SafetyBufferDays),
	}
	lt.TotalDays = lt.SupplierDays + lt.ShippingDays + lt.ProcessingDays + lt.SafetyDays

	if p.TotalLeadDays != nil && *p.TotalLeadDays > 0 {
		lt.TotalDays = *p.TotalLeadDays
		lt.Pinned = true
	}

	return lt
}

// UrgencyFor classifies days-until-deadline into an urgency bucket. A nil
// value (no usage data) is safe.
func UrgencyFor(daysUntilDeadline *int) domain.Urgency {
	if daysUntilDeadline == nil {
		return domain.UrgencySafe
	}
	d := *daysUntilDeadline
	switch {
	case d < 0:
		return domain.UrgencyOverdue
	case d <= 3:
		return domain.UrgencyCritical
	case d <= 7:
		return domain.UrgencySoon
	case d <= 14:
		return domain.UrgencyUpcoming
	default:
		return domain.UrgencySafe
	}
}

// CalculateOrderDeadline computes the full order timing for one product.
func CalculateOrderDeadline(p *domain.Product, defaults domain.TimingDefaults, now time.Time) OrderDeadline {
	lt := ResolveLeadTime(p, defaults)
	proj := CalculateStockoutDate(p.TotalUnits, p.AvgDailyUsage, now)

	d := OrderDeadline{
		ProductID:    p.ID,
		ProductName:  p.Name,
		StockoutDate: proj.Date,
		LeadTime:     lt,
	}

	if proj.Date != nil {
		orderBy := proj.Date.AddDate(0, 0, -lt.TotalDays)
		d.LastOrderByDate = &orderBy

		days := int(math.Ceil(orderBy.Sub(truncateDay(now)).Hours() / 24))
		d.DaysUntilDeadline = &days
	}

	d.Urgency = UrgencyFor(d.DaysUntilDeadline)

	return d
}

// Projector runs batch deadline scans and maintains the cached timing
// fields on products.
type Projector struct {
	products repository.ProductRepository
	clients  repository.ClientRepository
	defaults domain.TimingDefaults
	now      func() time.Time
}

// NewProjector creates a Projector with system-wide timing defaults from config.
func NewProjector(products repository.ProductRepository, clients repository.ClientRepository, cfg config.TimingConfig) *Projector {
	return &Projector{
		products: products,
		clients:  clients,
		defaults: domain.TimingDefaults{
			SupplierLeadDays:   cfg.SupplierLeadDays,
			ShippingLeadDays:   cfg.ShippingLeadDays,
			ProcessingLeadDays: cfg.ProcessingLeadDays,
			SafetyBufferDays:   cfg.SafetyBufferDays,
		},
		now: time.Now,
	}
}

// WithNow overrides the clock, for tests.
func (pr *Projector) WithNow(now func() time.Time) *Projector {
	pr.now = now
	return pr
}

// GetUpcomingDeadlines scans a client's products with positive usage, applies
// the deadline computation and returns results sorted ascending by days until
// deadline (nil sorts last).
func (pr *Projector) GetUpcomingDeadlines(ctx context.Context, clientID string, filter DeadlineFilter) ([]OrderDeadline, error) {
	defaults, err := pr.clientDefaults(ctx, clientID)
	if err != nil {
		return nil, err
	}

	products, err := pr.products.ListActiveByClient(ctx, clientID, true)
	if err != nil {
		return nil, fmt.Errorf("listing products for deadlines: %w", err)
	}

	allowed := map[domain.Urgency]bool{}
	for _, u := range filter.Urgencies {
		allowed[u] = true
	}

	now := pr.now()
	deadlines := make([]OrderDeadline, 0, len(products))
	for i := range products {
		p := &products[i]
		if p.AvgDailyUsage <= 0 {
			continue
		}

		d := CalculateOrderDeadline(p, defaults, now)
		if filter.HorizonDays > 0 && (d.DaysUntilDeadline == nil || *d.DaysUntilDeadline > filter.HorizonDays) {
			continue
		}
		if len(allowed) > 0 && !allowed[d.Urgency] {
			continue
		}
		deadlines = append(deadlines, d)
	}

	sort.SliceStable(deadlines, func(i, j int) bool {
		a, b := deadlines[i].DaysUntilDeadline, deadlines[j].DaysUntilDeadline
		if a == nil {
			return false
		}
		if b == nil {
			return true
		}
		return *a < *b
	})

	return deadlines, nil
}

// RefreshProductTiming recomputes and persists the derived timing fields for
// one product: projected stockout date, last order-by date and total lead
// days, plus the recomputation timestamp.
func (pr *Projector) RefreshProductTiming(ctx context.Context, p *domain.Product, defaults domain.TimingDefaults) error {
	now := pr.now()
	d := CalculateOrderDeadline(p, defaults, now)

	update := repository.TimingUpdate{
		ProjectedStockoutDate: d.StockoutDate,
		LastOrderByDate:       d.LastOrderByDate,
		TotalLeadDays:         d.LeadTime.TotalDays,
		ComputedAt:            now,
	}
	if err := pr.products.UpdateTimingFields(ctx, p.ID, update); err != nil {
		return fmt.Errorf("updating timing fields for product %s: %w", p.ID, err)
	}

	return nil
}

// RefreshStaleTimings recomputes every product of the client whose timing
// cache is older than maxAge or has never been computed. Per-product failures
// are logged and skipped.
func (pr *Projector) RefreshStaleTimings(ctx context.Context, clientID string, maxAge time.Duration) (int, error) {
	defaults, err := pr.clientDefaults(ctx, clientID)
	if err != nil {
		return 0, err
	}

	cutoff := pr.now().Add(-maxAge)
	stale, err := pr.products.ListStaleTimings(ctx, clientID, cutoff)
	if err != nil {
		return 0, fmt.Errorf("listing stale timings: %w", err)
	}

	refreshed := 0
	for i := range stale {
		if err := pr.RefreshProductTiming(ctx, &stale[i], defaults); err != nil {
			log.Warn().Err(err).Str("product_id", stale[i].ID).Msg("timing: refresh failed, skipping")
			continue
		}
		refreshed++
	}

	return refreshed, nil
}

func (pr *Projector) clientDefaults(ctx context.Context, clientID string) (domain.TimingDefaults, error) {
	settings, err := pr.clients.GetSettings(ctx, clientID)
	if err != nil {
		return domain.TimingDefaults{}, fmt.Errorf("loading client settings: %w", err)
	}
	return pr.defaults.Resolve(settings), nil
}

func intOr(v *int, fallback int) int {
	if v != nil {
		return *v
	}
	return fallback
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
