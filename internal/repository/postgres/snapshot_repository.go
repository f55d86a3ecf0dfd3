package postgres

import (
	"context"
	"fmt"

	"github.com/stocksense/backend-go/internal/domain"
	"github.com/stocksense/backend-go/internal/repository"
)

type snapshotRepository struct {
	db *DB
}

func NewSnapshotRepository(db *DB) repository.SnapshotRepository {
	return &snapshotRepository{db: db}
}

func (r *snapshotRepository) UpsertDailySnapshot(ctx context.Context, snap *domain.DailySnapshot) error {
	query := `
		INSERT INTO daily_snapshots (
			product_id, client_id, day,
			packs_available, total_units, stock_status, alerts_created
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (product_id, day)
		DO UPDATE SET
			packs_available = EXCLUDED.packs_available,
			total_units = EXCLUDED.total_units,
			stock_status = EXCLUDED.stock_status,
			alerts_created = EXCLUDED.alerts_created
	`

	if _, err := r.db.ExecContext(ctx, query,
		snap.ProductID, snap.ClientID, snap.Day,
		snap.PacksAvailable, snap.TotalUnits, snap.StockStatus, snap.AlertsCreated,
	); err != nil {
		return fmt.Errorf("failed to upsert daily snapshot: %w", err)
	}

	return nil
}

func (r *snapshotRepository) UpsertDailyAlertMetrics(ctx context.Context, metrics *domain.DailyAlertMetrics) error {
	query := `
		INSERT INTO daily_alert_metrics (
			client_id, day, created, resolved,
			by_type, by_severity, avg_resolution_hours
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (client_id, day)
		DO UPDATE SET
			created = EXCLUDED.created,
			resolved = EXCLUDED.resolved,
			by_type = EXCLUDED.by_type,
			by_severity = EXCLUDED.by_severity,
			avg_resolution_hours = EXCLUDED.avg_resolution_hours
	`

	if _, err := r.db.ExecContext(ctx, query,
		metrics.ClientID, metrics.Day, metrics.Created, metrics.Resolved,
		metrics.ByType, metrics.BySeverity, metrics.AvgResolutionHours,
	); err != nil {
		return fmt.Errorf("failed to upsert daily alert metrics: %w", err)
	}

	return nil
}
