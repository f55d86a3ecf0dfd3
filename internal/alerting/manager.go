// Package alerting owns the alert lifecycle: creating alerts from stock
// classification, suppressing duplicates, and resolving alerts whose
// triggering condition no longer holds.
package alerting

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/stocksense/backend-go/internal/config"
	"github.com/stocksense/backend-go/internal/domain"
	"github.com/stocksense/backend-go/internal/repository"
	"github.com/stocksense/backend-go/internal/stockstatus"
)

const avgDaysPerMonth = 30.44

// GenerationResult reports what a full alert generation pass did for a client.
type GenerationResult struct {
	Resolved    int `json:"resolved"`
	Created     int `json:"created"`
	UsageSpikes int `json:"usage_spikes"`
	NoMovement  int `json:"no_movement"`
}

// Manager drives the per-client alert lifecycle.
type Manager struct {
	clients      repository.ClientRepository
	products     repository.ProductRepository
	alerts       repository.AlertRepository
	metrics      repository.UsageMetricRepository
	transactions repository.TransactionRepository
	cfg          config.AlertingConfig
	now          func() time.Time
}

// NewManager creates a Manager.
func NewManager(
	clients repository.ClientRepository,
	products repository.ProductRepository,
	alerts repository.AlertRepository,
	metrics repository.UsageMetricRepository,
	transactions repository.TransactionRepository,
	cfg config.AlertingConfig,
) *Manager {
	if cfg.UsageSpikeFactor <= 0 {
		cfg.UsageSpikeFactor = 2.0
	}
	if cfg.NoMovementDays <= 0 {
		cfg.NoMovementDays = 30
	}
	return &Manager{
		clients:      clients,
		products:     products,
		alerts:       alerts,
		metrics:      metrics,
		transactions: transactions,
		cfg:          cfg,
		now:          time.Now,
	}
}

// WithNow overrides the clock, for tests.
func (m *Manager) WithNow(now func() time.Time) *Manager {
	m.now = now
	return m
}

// RunAlertGeneration is the full per-client pass: resolve outdated alerts
// first so changed conditions can re-alert, then generate status alerts, then
// the usage-spike and no-movement detectors.
func (m *Manager) RunAlertGeneration(ctx context.Context, clientID string) (GenerationResult, error) {
	var res GenerationResult
	var err error

	if res.Resolved, err = m.ResolveOutdatedAlerts(ctx, clientID); err != nil {
		return res, err
	}
	if res.Created, err = m.GenerateClientAlerts(ctx, clientID); err != nil {
		return res, err
	}
	if res.UsageSpikes, err = m.DetectUsageSpikes(ctx, clientID); err != nil {
		return res, err
	}
	if res.NoMovement, err = m.DetectNoMovement(ctx, clientID); err != nil {
		return res, err
	}

	return res, nil
}

// GenerateClientAlerts classifies each of the client's products and creates
// one alert per product where the implied alert type has no open alert yet.
// Returns the number of alerts created. Per-product problems are skipped;
// a missing client aborts the run.
func (m *Manager) GenerateClientAlerts(ctx context.Context, clientID string) (int, error) {
	client, settings, err := m.loadClient(ctx, clientID)
	if err != nil {
		return 0, err
	}

	includeOrphans := settings == nil || settings.ShowOrphanProducts
	products, err := m.products.ListActiveByClient(ctx, clientID, includeOrphans)
	if err != nil {
		return 0, fmt.Errorf("listing products for client %s: %w", clientID, err)
	}

	openIndex, err := m.openAlertIndex(ctx, clientID)
	if err != nil {
		return 0, err
	}

	latest, err := m.metrics.LatestByClient(ctx, clientID)
	if err != nil {
		return 0, fmt.Errorf("loading usage metrics for client %s: %w", clientID, err)
	}

	now := m.now()
	var pending []domain.Alert
	skipped := 0
	for i := range products {
		p := &products[i]

		daily := p.AvgDailyUsage
		if metric, ok := latest[p.ID]; ok && metric.AvgDailyUnits > 0 {
			daily = metric.AvgDailyUnits
		}

		c := stockstatus.Classify(p.TotalUnits, p.ReorderPointUnits(), daily)

		alertType, severity, ok := domain.AlertForStatus(c.Status)
		if !ok {
			continue
		}
		if alertType == domain.AlertStockout && p.ItemType == domain.ItemTypeEvent {
			continue
		}
		if openIndex[openKey(p.ID, alertType)] {
			continue
		}

		alert, err := m.buildStatusAlert(p, c, alertType, severity, now)
		if err != nil {
			skipped++
			log.Warn().Err(err).Str("product_id", p.ID).Msg("alerting: skipping product")
			continue
		}
		pending = append(pending, *alert)
	}

	if skipped > 0 {
		log.Warn().Int("skipped", skipped).Str("client_id", client.ID).Msg("alerting: products skipped during generation")
	}

	if len(pending) == 0 {
		return 0, nil
	}

	created, err := m.alerts.InsertIfNoOpen(ctx, pending)
	if err != nil {
		return 0, fmt.Errorf("inserting alerts for client %s: %w", clientID, err)
	}

	return created, nil
}

// ResolveOutdatedAlerts dismisses open product alerts whose triggering
// condition no longer holds: stockout resolves when stock > 0, critical when
// stock exceeds half the reorder point, low when stock exceeds the reorder
// point. Returns the number resolved.
func (m *Manager) ResolveOutdatedAlerts(ctx context.Context, clientID string) (int, error) {
	if _, _, err := m.loadClient(ctx, clientID); err != nil {
		return 0, err
	}

	open, err := m.alerts.ListOpenByClient(ctx, clientID)
	if err != nil {
		return 0, fmt.Errorf("listing open alerts for client %s: %w", clientID, err)
	}

	products, err := m.products.ListActiveByClient(ctx, clientID, true)
	if err != nil {
		return 0, fmt.Errorf("listing products for client %s: %w", clientID, err)
	}
	byID := make(map[string]*domain.Product, len(products))
	for i := range products {
		byID[products[i].ID] = &products[i]
	}

	now := m.now()
	resolved := 0
	for _, alert := range open {
		if alert.ProductID == nil {
			continue
		}
		p, ok := byID[*alert.ProductID]
		if !ok {
			continue
		}

		var clear bool
		switch alert.Type {
		case domain.AlertStockout:
			clear = p.TotalUnits > 0
		case domain.AlertCriticalStock:
			clear = p.TotalUnits > 0.5*p.ReorderPointUnits()
		case domain.AlertLowStock:
			clear = p.TotalUnits > p.ReorderPointUnits()
		default:
			continue
		}
		if !clear {
			continue
		}

		if err := m.alerts.Dismiss(ctx, alert.ID, now); err != nil {
			log.Warn().Err(err).Str("alert_id", alert.ID).Msg("alerting: dismiss failed, skipping")
			continue
		}
		resolved++
	}

	return resolved, nil
}

// DetectUsageSpikes raises a usage_spike alert for products whose most recent
// usage metric runs at or above the configured multiple of the product's
// average daily usage.
func (m *Manager) DetectUsageSpikes(ctx context.Context, clientID string) (int, error) {
	products, err := m.products.ListActiveByClient(ctx, clientID, true)
	if err != nil {
		return 0, fmt.Errorf("listing products for client %s: %w", clientID, err)
	}

	latest, err := m.metrics.LatestByClient(ctx, clientID)
	if err != nil {
		return 0, fmt.Errorf("loading usage metrics for client %s: %w", clientID, err)
	}

	openIndex, err := m.openAlertIndex(ctx, clientID)
	if err != nil {
		return 0, err
	}

	now := m.now()
	var pending []domain.Alert
	for i := range products {
		p := &products[i]
		if p.AvgMonthlyUsage <= 0 {
			continue
		}
		metric, ok := latest[p.ID]
		if !ok {
			continue
		}

		baselineDaily := p.AvgMonthlyUsage / avgDaysPerMonth
		threshold := m.cfg.UsageSpikeFactor * baselineDaily
		if metric.AvgDailyUnits < threshold {
			continue
		}
		if openIndex[openKey(p.ID, domain.AlertUsageSpike)] {
			continue
		}

		productID := p.ID
		pending = append(pending, domain.Alert{
			ID:             uuid.NewString(),
			ClientID:       clientID,
			ProductID:      &productID,
			Type:           domain.AlertUsageSpike,
			Severity:       domain.SeverityWarning,
			ThresholdValue: threshold,
			ObservedValue:  metric.AvgDailyUnits,
			Message:        fmt.Sprintf("%s: daily usage %.1f units, %.1fx the recent average", p.Name, metric.AvgDailyUnits, metric.AvgDailyUnits/baselineDaily),
			CreatedAt:      now,
		})
	}

	if len(pending) == 0 {
		return 0, nil
	}
	return m.alerts.InsertIfNoOpen(ctx, pending)
}

// DetectNoMovement raises a no_movement alert for stocked products with no
// completed transaction within the configured window.
func (m *Manager) DetectNoMovement(ctx context.Context, clientID string) (int, error) {
	products, err := m.products.ListActiveByClient(ctx, clientID, true)
	if err != nil {
		return 0, fmt.Errorf("listing products for client %s: %w", clientID, err)
	}

	lastMovement, err := m.transactions.LastMovementByClient(ctx, clientID)
	if err != nil {
		return 0, fmt.Errorf("loading last movements for client %s: %w", clientID, err)
	}

	openIndex, err := m.openAlertIndex(ctx, clientID)
	if err != nil {
		return 0, err
	}

	now := m.now()
	cutoff := now.AddDate(0, 0, -m.cfg.NoMovementDays)
	var pending []domain.Alert
	for i := range products {
		p := &products[i]
		if p.TotalUnits <= 0 {
			continue
		}
		last, moved := lastMovement[p.ID]
		if moved && last.After(cutoff) {
			continue
		}
		if openIndex[openKey(p.ID, domain.AlertNoMovement)] {
			continue
		}

		daysSince := float64(m.cfg.NoMovementDays)
		if moved {
			daysSince = now.Sub(last).Hours() / 24
		}

		productID := p.ID
		pending = append(pending, domain.Alert{
			ID:             uuid.NewString(),
			ClientID:       clientID,
			ProductID:      &productID,
			Type:           domain.AlertNoMovement,
			Severity:       domain.SeverityInfo,
			ThresholdValue: float64(m.cfg.NoMovementDays),
			ObservedValue:  daysSince,
			Message:        fmt.Sprintf("%s: %.0f units on hand with no movement in %d+ days", p.Name, p.TotalUnits, m.cfg.NoMovementDays),
			CreatedAt:      now,
		})
	}

	if len(pending) == 0 {
		return 0, nil
	}
	return m.alerts.InsertIfNoOpen(ctx, pending)
}

func (m *Manager) buildStatusAlert(p *domain.Product, c stockstatus.Classification, alertType domain.AlertType, severity domain.Severity, now time.Time) (*domain.Alert, error) {
	if p.PackSize < 0 {
		return nil, fmt.Errorf("product %s has negative pack size %d", p.ID, p.PackSize)
	}

	reorderUnits := p.ReorderPointUnits()
	var threshold float64
	var message string
	switch alertType {
	case domain.AlertStockout:
		threshold = 0
		message = fmt.Sprintf("%s is out of stock", p.Name)
	case domain.AlertCriticalStock:
		threshold = 0.5 * reorderUnits
		message = fmt.Sprintf("%s is critically low: %.0f units, %.1f weeks remaining", p.Name, p.TotalUnits, c.WeeksRemaining)
	case domain.AlertLowStock:
		threshold = reorderUnits
		message = fmt.Sprintf("%s is below its reorder point: %.0f of %.0f units", p.Name, p.TotalUnits, reorderUnits)
	default:
		return nil, fmt.Errorf("no alert template for type %s", alertType)
	}

	productID := p.ID
	return &domain.Alert{
		ID:             uuid.NewString(),
		ClientID:       p.ClientID,
		ProductID:      &productID,
		Type:           alertType,
		Severity:       severity,
		ThresholdValue: threshold,
		ObservedValue:  p.TotalUnits,
		Message:        message,
		CreatedAt:      now,
	}, nil
}

func (m *Manager) openAlertIndex(ctx context.Context, clientID string) (map[string]bool, error) {
	open, err := m.alerts.ListOpenByClient(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("listing open alerts for client %s: %w", clientID, err)
	}
	index := make(map[string]bool, len(open))
	for _, a := range open {
		if a.ProductID == nil {
			continue
		}
		index[openKey(*a.ProductID, a.Type)] = true
	}
	return index, nil
}

func (m *Manager) loadClient(ctx context.Context, clientID string) (*domain.Client, *domain.ClientSettings, error) {
	client, err := m.clients.GetByID(ctx, clientID)
	if err != nil {
		return nil, nil, fmt.Errorf("loading client %s: %w", clientID, err)
	}
	settings, err := m.clients.GetSettings(ctx, clientID)
	if err != nil {
		return nil, nil, fmt.Errorf("loading settings for client %s: %w", clientID, err)
	}
	return client, settings, nil
}

func openKey(productID string, t domain.AlertType) string {
	return productID + "|" + string(t)
}
