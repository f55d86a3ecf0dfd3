package postgres

import (
	"context"
	"fmt"

	"github.com/stocksense/backend-go/internal/domain"
	"github.com/stocksense/backend-go/internal/repository"
)

type usageMetricRepository struct {
	db *DB
}

func NewUsageMetricRepository(db *DB) repository.UsageMetricRepository {
	return &usageMetricRepository{db: db}
}

func (r *usageMetricRepository) Insert(ctx context.Context, metric *domain.UsageMetric) error {
	query := `
		INSERT INTO usage_metrics (
			id, product_id, period_type, period_start, period_end,
			avg_daily_units, total_units, calculation_method,
			confidence_score, data_months, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	if _, err := r.db.ExecContext(ctx, query,
		metric.ID, metric.ProductID, metric.PeriodType,
		metric.PeriodStart, metric.PeriodEnd,
		metric.AvgDailyUnits, metric.TotalUnits, metric.CalculationMethod,
		metric.ConfidenceScore, metric.DataMonths, metric.CreatedAt,
	); err != nil {
		return fmt.Errorf("failed to insert usage metric: %w", err)
	}

	return nil
}

func (r *usageMetricRepository) LatestByClient(ctx context.Context, clientID string) (map[string]domain.UsageMetric, error) {
	query := `
		SELECT DISTINCT ON (m.product_id)
			m.id, m.product_id, m.period_type, m.period_start, m.period_end,
			m.avg_daily_units, m.total_units, m.calculation_method,
			m.confidence_score, m.data_months, m.created_at
		FROM usage_metrics m
		JOIN products p ON p.id = m.product_id
		WHERE p.client_id = $1
		ORDER BY m.product_id, m.created_at DESC
	`

	var metrics []domain.UsageMetric
	if err := r.db.SelectContext(ctx, &metrics, query, clientID); err != nil {
		return nil, fmt.Errorf("failed to list latest usage metrics: %w", err)
	}

	out := make(map[string]domain.UsageMetric, len(metrics))
	for _, m := range metrics {
		out[m.ProductID] = m
	}

	return out, nil
}
