// Package anomaly flags unusual consumption patterns by comparing a recent
// usage window against a trailing baseline. Findings are returned in memory
// for dashboards; they are not persisted as alerts.
package anomaly

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/stocksense/backend-go/internal/repository"
)

// Severity ranks a finding. Distinct from alert severity: these feed the
// anomaly dashboard, not the alert lifecycle.
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

var severityRank = map[Severity]int{
	SeverityHigh:   0,
	SeverityMedium: 1,
	SeverityLow:    2,
}

// Kind identifies the anomaly rule that fired.
type Kind string

const (
	KindDemandSpike Kind = "demand_spike"
	KindDemandDrop  Kind = "demand_drop"
	KindDeadStock   Kind = "dead_stock"
	KindOverstock   Kind = "overstock"
)

// Finding is one detected anomaly for a product.
type Finding struct {
	ProductID   string   `json:"product_id"`
	ProductName string   `json:"product_name"`
	Kind        Kind     `json:"kind"`
	Severity    Severity `json:"severity"`
	Observed    float64  `json:"observed"`
	Baseline    float64  `json:"baseline"`
	Message     string   `json:"message"`
}

const (
	recentWindowDays   = 7
	baselineWindowDays = 90
	deadStockDays      = 90
)

// Detector compares recent vs baseline usage windows per product.
type Detector struct {
	products     repository.ProductRepository
	transactions repository.TransactionRepository
	now          func() time.Time
}

// NewDetector creates a Detector.
func NewDetector(products repository.ProductRepository, transactions repository.TransactionRepository) *Detector {
	return &Detector{products: products, transactions: transactions, now: time.Now}
}

// WithNow overrides the clock, for tests.
func (d *Detector) WithNow(now func() time.Time) *Detector {
	d.now = now
	return d
}

// DetectForClient runs all anomaly rules over a client's active products and
// returns findings sorted by severity (high first). Deterministic for a given
// transaction snapshot.
func (d *Detector) DetectForClient(ctx context.Context, clientID string) ([]Finding, error) {
	now := d.now()

	products, err := d.products.ListActiveByClient(ctx, clientID, true)
	if err != nil {
		return nil, fmt.Errorf("listing products for anomaly detection: %w", err)
	}

	// One query covers the baseline window for every rule except dead stock,
	// which needs the last movement regardless of age.
	since := now.AddDate(0, 0, -(recentWindowDays + baselineWindowDays))
	txs, err := d.transactions.ListCompletedByClientSince(ctx, clientID, since)
	if err != nil {
		return nil, fmt.Errorf("loading transactions for anomaly detection: %w", err)
	}

	lastMovement, err := d.transactions.LastMovementByClient(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("loading last movements: %w", err)
	}

	windows := make(map[string]*usageWindows, len(products))
	for _, tx := range txs {
		w := windows[tx.ProductID]
		if w == nil {
			w = &usageWindows{}
			windows[tx.ProductID] = w
		}
		age := now.Sub(tx.DateSubmitted)
		days := age.Hours() / 24
		switch {
		case days <= recentWindowDays:
			w.recentWeek += tx.QuantityUnits
			w.trailingTwoWeeks += tx.QuantityUnits
		case days <= 2*recentWindowDays:
			w.trailingTwoWeeks += tx.QuantityUnits
			w.baseline += tx.QuantityUnits
		case days <= recentWindowDays+baselineWindowDays:
			w.baseline += tx.QuantityUnits
		}
	}

	var findings []Finding
	for i := range products {
		p := &products[i]
		w := windows[p.ID]
		if w == nil {
			w = &usageWindows{}
		}

		baselineWeekly := w.baseline / (baselineWindowDays / 7.0)

		if baselineWeekly > 5 && w.recentWeek >= 2*baselineWeekly {
			sev := SeverityMedium
			if w.recentWeek >= 3*baselineWeekly {
				sev = SeverityHigh
			}
			findings = append(findings, Finding{
				ProductID:   p.ID,
				ProductName: p.Name,
				Kind:        KindDemandSpike,
				Severity:    sev,
				Observed:    w.recentWeek,
				Baseline:    baselineWeekly,
				Message:     fmt.Sprintf("weekly usage %.0f units vs baseline %.1f", w.recentWeek, baselineWeekly),
			})
		}

		if baselineWeekly > 10 && w.trailingTwoWeeks < 2*baselineWeekly*0.5 {
			findings = append(findings, Finding{
				ProductID:   p.ID,
				ProductName: p.Name,
				Kind:        KindDemandDrop,
				Severity:    SeverityMedium,
				Observed:    w.trailingTwoWeeks,
				Baseline:    2 * baselineWeekly,
				Message:     fmt.Sprintf("two-week usage %.0f units vs expected %.1f", w.trailingTwoWeeks, 2*baselineWeekly),
			})
		}

		last, moved := lastMovement[p.ID]
		if p.TotalUnits > 0 && (!moved || now.Sub(last) >= deadStockDays*24*time.Hour) {
			sev := SeverityLow
			if p.TotalUnits > 100 {
				sev = SeverityHigh
			}
			findings = append(findings, Finding{
				ProductID:   p.ID,
				ProductName: p.Name,
				Kind:        KindDeadStock,
				Severity:    sev,
				Observed:    p.TotalUnits,
				Baseline:    0,
				Message:     fmt.Sprintf("%.0f units on hand with no movement in %d+ days", p.TotalUnits, deadStockDays),
			})
		}

		if p.AvgMonthlyUsage > 0 && p.TotalUnits > 6*p.AvgMonthlyUsage {
			sev := SeverityMedium
			if p.TotalUnits > 12*p.AvgMonthlyUsage {
				sev = SeverityHigh
			}
			findings = append(findings, Finding{
				ProductID:   p.ID,
				ProductName: p.Name,
				Kind:        KindOverstock,
				Severity:    sev,
				Observed:    p.TotalUnits,
				Baseline:    6 * p.AvgMonthlyUsage,
				Message:     fmt.Sprintf("%.0f units on hand, %.1f months of supply", p.TotalUnits, p.TotalUnits/p.AvgMonthlyUsage),
			})
		}
	}

	sort.SliceStable(findings, func(i, j int) bool {
		return severityRank[findings[i].Severity] < severityRank[findings[j].Severity]
	})

	return findings, nil
}

type usageWindows struct {
	recentWeek       float64
	trailingTwoWeeks float64
	baseline         float64
}
