// Package analytics maintains the derived aggregates that reporting reads:
// daily stock snapshots, daily alert metrics and the product risk score
// cache. All writes are idempotent upserts by natural key so repeated runs
// within a day converge.
package analytics

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/stocksense/backend-go/internal/cache"
	"github.com/stocksense/backend-go/internal/config"
	"github.com/stocksense/backend-go/internal/domain"
	"github.com/stocksense/backend-go/internal/repository"
	"github.com/stocksense/backend-go/internal/risk"
	"github.com/stocksense/backend-go/internal/stockstatus"
)

// Refresher recomputes and persists derived aggregates per client.
type Refresher struct {
	products   repository.ProductRepository
	alerts     repository.AlertRepository
	snapshots  repository.SnapshotRepository
	history    repository.StockHistoryRepository
	riskScores repository.RiskScoreRepository
	scorer     risk.Scorer
	riskCache  cache.RiskScoreCache
	riskCfg    config.RiskConfig
	now        func() time.Time
}

// NewRefresher creates a Refresher. A nil riskCache falls back to a noop.
func NewRefresher(
	products repository.ProductRepository,
	alerts repository.AlertRepository,
	snapshots repository.SnapshotRepository,
	history repository.StockHistoryRepository,
	riskScores repository.RiskScoreRepository,
	scorer risk.Scorer,
	riskCache cache.RiskScoreCache,
	riskCfg config.RiskConfig,
) *Refresher {
	if riskCache == nil {
		riskCache = cache.NewNoopRiskScoreCache()
	}
	return &Refresher{
		products:   products,
		alerts:     alerts,
		snapshots:  snapshots,
		history:    history,
		riskScores: riskScores,
		scorer:     scorer,
		riskCache:  riskCache,
		riskCfg:    riskCfg,
		now:        time.Now,
	}
}

// WithNow overrides the clock, for tests.
func (r *Refresher) WithNow(now func() time.Time) *Refresher {
	r.now = now
	return r
}

// SnapshotDailyStock upserts one DailySnapshot row per active product for the
// given day. Status is reclassified from the product's current fields and
// written back to the product's cached status columns so the snapshot and the
// live listing agree. Returns the number of rows written.
func (r *Refresher) SnapshotDailyStock(ctx context.Context, clientID string, day time.Time) (int, error) {
	day = truncateDay(day)

	products, err := r.products.ListActiveByClient(ctx, clientID, true)
	if err != nil {
		return 0, fmt.Errorf("listing products for snapshot: %w", err)
	}

	created, err := r.alerts.ListCreatedOn(ctx, clientID, day)
	if err != nil {
		return 0, fmt.Errorf("loading alerts created on %s: %w", day.Format("2006-01-02"), err)
	}
	createdByProduct := make(map[string]int)
	for _, a := range created {
		if a.ProductID != nil {
			createdByProduct[*a.ProductID]++
		}
	}

	written := 0
	for i := range products {
		p := &products[i]
		c := stockstatus.Classify(p.TotalUnits, p.ReorderPointUnits(), p.AvgDailyUsage)

		statusUpdate := repository.StatusUpdate{
			StockStatus:    c.Status,
			WeeksRemaining: c.WeeksRemaining,
			ComputedAt:     r.now(),
		}
		if err := r.products.UpdateStatusFields(ctx, p.ID, statusUpdate); err != nil {
			log.Warn().Err(err).Str("product_id", p.ID).Msg("analytics: status writeback failed, skipping")
			continue
		}

		snap := &domain.DailySnapshot{
			ProductID:      p.ID,
			ClientID:       clientID,
			Day:            day,
			PacksAvailable: p.PacksAvailable,
			TotalUnits:     p.TotalUnits,
			StockStatus:    c.Status,
			AlertsCreated:  createdByProduct[p.ID],
		}
		if err := r.snapshots.UpsertDailySnapshot(ctx, snap); err != nil {
			log.Warn().Err(err).Str("product_id", p.ID).Msg("analytics: snapshot upsert failed, skipping")
			continue
		}
		written++
	}

	return written, nil
}

// AggregateAlertMetrics upserts the (client, day) DailyAlertMetrics row from
// the alerts created and resolved that day.
func (r *Refresher) AggregateAlertMetrics(ctx context.Context, clientID string, day time.Time) error {
	day = truncateDay(day)

	created, err := r.alerts.ListCreatedOn(ctx, clientID, day)
	if err != nil {
		return fmt.Errorf("loading alerts created on %s: %w", day.Format("2006-01-02"), err)
	}
	resolved, err := r.alerts.ListResolvedOn(ctx, clientID, day)
	if err != nil {
		return fmt.Errorf("loading alerts resolved on %s: %w", day.Format("2006-01-02"), err)
	}

	metrics := &domain.DailyAlertMetrics{
		ClientID: clientID,
		Day:      day,
		Created:  len(created),
		Resolved: len(resolved),
	}
	for _, a := range created {
		metrics.ByType.Add(a.Type)
		metrics.BySeverity.Add(a.Severity)
	}

	var totalHours float64
	counted := 0
	for _, a := range resolved {
		if a.DismissedAt == nil {
			continue
		}
		totalHours += a.DismissedAt.Sub(a.CreatedAt).Hours()
		counted++
	}
	if counted > 0 {
		metrics.AvgResolutionHours = math.Round(totalHours/float64(counted)*10) / 10
	}

	if err := r.snapshots.UpsertDailyAlertMetrics(ctx, metrics); err != nil {
		return fmt.Errorf("upserting alert metrics: %w", err)
	}

	return nil
}

// RefreshRiskScores recomputes the risk score row for each active product via
// the external scorer. Scorer failures skip the product; its stale row is
// retried next cycle. Returns the number refreshed.
func (r *Refresher) RefreshRiskScores(ctx context.Context, clientID string) (int, error) {
	products, err := r.products.ListActiveByClient(ctx, clientID, true)
	if err != nil {
		return 0, fmt.Errorf("listing products for risk refresh: %w", err)
	}

	expiry := r.riskCfg.Expiry
	if expiry <= 0 {
		expiry = 2 * time.Hour
	}

	refreshed := 0
	for i := range products {
		p := &products[i]

		callCtx := ctx
		var cancel context.CancelFunc
		if r.riskCfg.Timeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, r.riskCfg.Timeout)
		}
		assessment, err := r.scorer.CalculateProductRisk(callCtx, p.ID)
		if cancel != nil {
			cancel()
		}
		if err != nil {
			log.Warn().Err(err).Str("product_id", p.ID).Msg("analytics: risk scoring failed, skipping")
			continue
		}

		now := r.now()
		score := &domain.RiskScore{
			ProductID:  p.ID,
			Score:      assessment.Score,
			RiskLevel:  assessment.RiskLevel,
			Factors:    assessment.Factors,
			ComputedAt: now,
			ExpiresAt:  now.Add(expiry),
		}
		if err := r.riskScores.Upsert(ctx, score); err != nil {
			log.Warn().Err(err).Str("product_id", p.ID).Msg("analytics: risk score upsert failed, skipping")
			continue
		}
		if err := r.riskCache.Set(ctx, score); err != nil {
			log.Warn().Err(err).Str("product_id", p.ID).Msg("analytics: risk cache set failed")
		}
		refreshed++
	}

	return refreshed, nil
}

// RecordStockHistory appends a stock history row per active product, feeding
// the snapshot-delta usage method. Returns the number recorded.
func (r *Refresher) RecordStockHistory(ctx context.Context, clientID string) (int, error) {
	products, err := r.products.ListActiveByClient(ctx, clientID, true)
	if err != nil {
		return 0, fmt.Errorf("listing products for stock history: %w", err)
	}

	now := r.now()
	recorded := 0
	for i := range products {
		p := &products[i]
		record := &domain.StockHistory{
			ID:             uuid.NewString(),
			ProductID:      p.ID,
			PacksAvailable: p.PacksAvailable,
			TotalUnits:     p.TotalUnits,
			Source:         "scheduled",
			RecordedAt:     now,
		}
		if err := r.history.Insert(ctx, record); err != nil {
			log.Warn().Err(err).Str("product_id", p.ID).Msg("analytics: stock history insert failed, skipping")
			continue
		}
		recorded++
	}

	return recorded, nil
}

// truncateDay buckets an instant to its UTC calendar day, the same grid the
// alert repositories window on.
func truncateDay(t time.Time) time.Time {
	return t.UTC().Truncate(24 * time.Hour)
}
