// Package usage recomputes per-product consumption rates from order history
// and stock-history snapshots, picking the highest-confidence method.
package usage

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/stocksense/backend-go/internal/domain"
	"github.com/stocksense/backend-go/internal/repository"
)

const (
	avgDaysPerMonth  = 30.44
	avgWeeksPerMonth = 4.33
	lookbackMonths   = 12
	recentWeight     = 1.5
	recentWeightSpan = 3

	// A reorder point is assumed to cover two weeks of lead time plus two
	// weeks of safety stock.
	reorderCoverageWeeks = 4.0
	estimatedConfidence  = 0.3
)

// Calculation method names recorded on the resulting metric.
const (
	MethodOrderFulfillment = "order_fulfillment"
	MethodSnapshotDelta    = "snapshot_delta"
	MethodHybrid           = "hybrid"
	MethodEstimated        = "estimated"
	MethodNoData           = "no_data"
)

// Result is one recalculated usage rate for a product.
type Result struct {
	ProductID         string  `json:"product_id"`
	MonthlyUsageUnits float64 `json:"monthly_usage_units"`
	MonthlyUsagePacks float64 `json:"monthly_usage_packs"`
	AvgDailyUnits     float64 `json:"avg_daily_units"`
	Method            string  `json:"method"`
	Confidence        float64 `json:"confidence"`
	DataMonths        int     `json:"data_months"`
}

// Recalculator derives usage rates and persists them as UsageMetric rows plus
// cached fields on the product.
type Recalculator struct {
	products     repository.ProductRepository
	transactions repository.TransactionRepository
	history      repository.StockHistoryRepository
	metrics      repository.UsageMetricRepository
	now          func() time.Time
}

// NewRecalculator creates a Recalculator.
func NewRecalculator(
	products repository.ProductRepository,
	transactions repository.TransactionRepository,
	history repository.StockHistoryRepository,
	metrics repository.UsageMetricRepository,
) *Recalculator {
	return &Recalculator{
		products:     products,
		transactions: transactions,
		history:      history,
		metrics:      metrics,
		now:          time.Now,
	}
}

// WithNow overrides the clock, for tests.
func (rc *Recalculator) WithNow(now func() time.Time) *Recalculator {
	rc.now = now
	return rc
}

// RecalculateClient recomputes usage for every active product of the client,
// writing a metric row and refreshing the product's cached usage fields.
// Per-product failures are logged and skipped; returns the number updated.
func (rc *Recalculator) RecalculateClient(ctx context.Context, clientID string) (int, error) {
	products, err := rc.products.ListActiveByClient(ctx, clientID, true)
	if err != nil {
		return 0, fmt.Errorf("listing products for usage recalc: %w", err)
	}

	updated := 0
	for i := range products {
		p := &products[i]
		result, err := rc.RecalculateProduct(ctx, p)
		if err != nil {
			log.Warn().Err(err).Str("product_id", p.ID).Msg("usage: recalculation failed, skipping")
			continue
		}
		if err := rc.persist(ctx, p, result); err != nil {
			log.Warn().Err(err).Str("product_id", p.ID).Msg("usage: persist failed, skipping")
			continue
		}
		updated++
	}

	return updated, nil
}

// RecalculateProduct computes the product's monthly usage using every
// available method and returns the highest-confidence result.
func (rc *Recalculator) RecalculateProduct(ctx context.Context, p *domain.Product) (*Result, error) {
	orders, err := rc.fromOrders(ctx, p)
	if err != nil {
		return nil, err
	}
	snapshots, err := rc.fromSnapshots(ctx, p)
	if err != nil {
		return nil, err
	}
	hybrid := combine(p.ID, orders, snapshots)

	best := pickBest(hybrid, orders, snapshots, fromReorderPoint(p))
	if best == nil {
		return &Result{ProductID: p.ID, Method: MethodNoData}, nil
	}
	return best, nil
}

// fromOrders computes monthly usage from completed transactions, weighting
// the most recent months more heavily.
func (rc *Recalculator) fromOrders(ctx context.Context, p *domain.Product) (*Result, error) {
	months, err := rc.transactions.MonthlyTotals(ctx, p.ID, lookbackMonths)
	if err != nil {
		return nil, fmt.Errorf("loading monthly totals: %w", err)
	}
	if len(months) == 0 {
		return nil, nil
	}

	weights := timeWeights(len(months))
	var weightedUnits float64
	values := make([]float64, len(months))
	for i, m := range months {
		weightedUnits += m.TotalUnits * weights[i]
		values[i] = m.TotalUnits
	}

	packSize := p.PackSize
	if packSize <= 0 {
		packSize = 1
	}

	daysSinceLast := int(rc.now().Sub(months[len(months)-1].Month).Hours() / 24)
	confidence := confidenceScore(len(months), coefficientOfVariation(values), daysSinceLast, MethodOrderFulfillment)

	return &Result{
		ProductID:         p.ID,
		MonthlyUsageUnits: weightedUnits,
		MonthlyUsagePacks: weightedUnits / float64(packSize),
		AvgDailyUnits:     weightedUnits / avgDaysPerMonth,
		Method:            MethodOrderFulfillment,
		Confidence:        confidence,
		DataMonths:        len(months),
	}, nil
}

// fromSnapshots infers consumption from deltas between consecutive stock
// history records: negative deltas are consumption events.
func (rc *Recalculator) fromSnapshots(ctx context.Context, p *domain.Product) (*Result, error) {
	since := rc.now().AddDate(0, -lookbackMonths, 0)
	records, err := rc.history.ListByProductSince(ctx, p.ID, since)
	if err != nil {
		return nil, fmt.Errorf("loading stock history: %w", err)
	}
	if len(records) < 2 {
		return nil, nil
	}

	var dailyRates []float64
	for i := 1; i < len(records); i++ {
		delta := records[i].TotalUnits - records[i-1].TotalUnits
		days := records[i].RecordedAt.Sub(records[i-1].RecordedAt).Hours() / 24
		if delta >= 0 || days <= 0 {
			continue
		}
		dailyRates = append(dailyRates, -delta/days)
	}
	if len(dailyRates) == 0 {
		return nil, nil
	}

	var sum float64
	monthlyEquivs := make([]float64, len(dailyRates))
	for i, r := range dailyRates {
		sum += r
		monthlyEquivs[i] = r * avgDaysPerMonth
	}
	avgDaily := sum / float64(len(dailyRates))
	monthlyUnits := avgDaily * avgDaysPerMonth

	packSize := p.PackSize
	if packSize <= 0 {
		packSize = 1
	}

	last := records[len(records)-1].RecordedAt
	daysSinceLast := int(rc.now().Sub(last).Hours() / 24)
	span := records[len(records)-1].RecordedAt.Sub(records[0].RecordedAt).Hours() / 24
	dataMonths := int(span / avgDaysPerMonth)
	confidence := confidenceScore(len(dailyRates), coefficientOfVariation(monthlyEquivs), daysSinceLast, MethodSnapshotDelta)

	return &Result{
		ProductID:         p.ID,
		MonthlyUsageUnits: monthlyUnits,
		MonthlyUsagePacks: monthlyUnits / float64(packSize),
		AvgDailyUnits:     avgDaily,
		Method:            MethodSnapshotDelta,
		Confidence:        confidence,
		DataMonths:        dataMonths,
	}, nil
}

// fromReorderPoint estimates usage from the reorder point alone, for products
// with neither order history nor usable stock history. The reorder point is
// read as roughly a month of coverage, so the estimate carries a fixed low
// confidence and loses to any data-backed method.
func fromReorderPoint(p *domain.Product) *Result {
	if p.ReorderPointPacks <= 0 {
		return nil
	}

	weeklyPacks := p.ReorderPointPacks / reorderCoverageWeeks
	monthlyPacks := weeklyPacks * avgWeeksPerMonth

	packSize := p.PackSize
	if packSize <= 0 {
		packSize = 1
	}
	monthlyUnits := monthlyPacks * float64(packSize)

	return &Result{
		ProductID:         p.ID,
		MonthlyUsageUnits: monthlyUnits,
		MonthlyUsagePacks: monthlyPacks,
		AvgDailyUnits:     monthlyUnits / avgDaysPerMonth,
		Method:            MethodEstimated,
		Confidence:        estimatedConfidence,
	}
}

func (rc *Recalculator) persist(ctx context.Context, p *domain.Product, result *Result) error {
	now := rc.now()
	metric := &domain.UsageMetric{
		ID:                uuid.NewString(),
		ProductID:         p.ID,
		PeriodType:        "monthly",
		PeriodStart:       now.AddDate(0, 0, -30),
		PeriodEnd:         now,
		AvgDailyUnits:     result.AvgDailyUnits,
		TotalUnits:        result.MonthlyUsageUnits,
		CalculationMethod: result.Method,
		ConfidenceScore:   result.Confidence,
		DataMonths:        result.DataMonths,
		CreatedAt:         now,
	}
	if err := rc.metrics.Insert(ctx, metric); err != nil {
		return fmt.Errorf("inserting usage metric: %w", err)
	}

	update := repository.UsageUpdate{
		AvgDailyUsage:   result.AvgDailyUnits,
		AvgMonthlyUsage: result.MonthlyUsageUnits,
	}
	if err := rc.products.UpdateUsageFields(ctx, p.ID, update); err != nil {
		return fmt.Errorf("updating product usage fields: %w", err)
	}

	return nil
}

// combine produces a confidence-weighted blend of the order and snapshot
// results. Blending both sources scores higher than either alone.
func combine(productID string, orders, snapshots *Result) *Result {
	if orders == nil || snapshots == nil {
		return nil
	}

	total := orders.Confidence + snapshots.Confidence
	if total == 0 {
		return nil
	}
	ow := orders.Confidence / total
	sw := snapshots.Confidence / total

	confidence := math.Min((orders.Confidence+snapshots.Confidence)/1.5, 1.0)
	dataMonths := orders.DataMonths
	if snapshots.DataMonths > dataMonths {
		dataMonths = snapshots.DataMonths
	}

	return &Result{
		ProductID:         productID,
		MonthlyUsageUnits: orders.MonthlyUsageUnits*ow + snapshots.MonthlyUsageUnits*sw,
		MonthlyUsagePacks: orders.MonthlyUsagePacks*ow + snapshots.MonthlyUsagePacks*sw,
		AvgDailyUnits:     orders.AvgDailyUnits*ow + snapshots.AvgDailyUnits*sw,
		Method:            MethodHybrid,
		Confidence:        round2(confidence),
		DataMonths:        dataMonths,
	}
}

func pickBest(candidates ...*Result) *Result {
	var best *Result
	for _, c := range candidates {
		if c == nil {
			continue
		}
		if best == nil || c.Confidence > best.Confidence {
			best = c
		}
	}
	return best
}

// timeWeights returns normalized weights with the most recent periods
// weighted more heavily.
func timeWeights(n int) []float64 {
	weights := make([]float64, n)
	var sum float64
	for i := range weights {
		weights[i] = 1
		if n >= recentWeightSpan && i >= n-recentWeightSpan {
			weights[i] = recentWeight
		}
		sum += weights[i]
	}
	for i := range weights {
		weights[i] /= sum
	}
	return weights
}

// confidenceScore blends data volume, consistency, recency and method
// reliability into a 0..1 score.
func confidenceScore(dataPoints int, cv float64, daysSinceLast int, method string) float64 {
	dataScore := 0.25
	switch {
	case dataPoints >= 12:
		dataScore = 1.0
	case dataPoints >= 6:
		dataScore = 0.75
	case dataPoints >= 3:
		dataScore = 0.5
	}

	consistencyScore := 0.2
	switch {
	case cv < 0.2:
		consistencyScore = 1.0
	case cv < 0.5:
		consistencyScore = 0.7
	case cv < 1.0:
		consistencyScore = 0.4
	}

	recencyScore := 0.4
	switch {
	case daysSinceLast <= 30:
		recencyScore = 1.0
	case daysSinceLast <= 60:
		recencyScore = 0.8
	case daysSinceLast <= 90:
		recencyScore = 0.6
	}

	methodScore := 0.5
	switch method {
	case MethodSnapshotDelta:
		methodScore = 0.9
	case MethodOrderFulfillment:
		methodScore = 0.85
	case MethodHybrid:
		methodScore = 0.95
	}

	score := 0.30*dataScore + 0.25*consistencyScore + 0.20*recencyScore + 0.15*methodScore + 0.10*0.5
	return round2(score)
}

func coefficientOfVariation(values []float64) float64 {
	if len(values) == 0 {
		return math.Inf(1)
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))
	if mean == 0 {
		return math.Inf(1)
	}

	var sq float64
	for _, v := range values {
		sq += (v - mean) * (v - mean)
	}
	std := math.Sqrt(sq / float64(len(values)))
	return std / mean
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
