package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/stocksense/backend-go/internal/domain"
	"github.com/stocksense/backend-go/internal/repository"
)

const alertColumns = `
	id, client_id, product_id, type, severity,
	threshold_value, observed_value, message,
	dismissed, dismissed_at, created_at
`

type alertRepository struct {
	db *DB
}

func NewAlertRepository(db *DB) repository.AlertRepository {
	return &alertRepository{db: db}
}

func (r *alertRepository) ListOpenByClient(ctx context.Context, clientID string) ([]domain.Alert, error) {
	query := `
		SELECT ` + alertColumns + `
		FROM alerts
		WHERE client_id = $1 AND dismissed = FALSE
		ORDER BY created_at
	`

	var alerts []domain.Alert
	if err := r.db.SelectContext(ctx, &alerts, query, clientID); err != nil {
		return nil, fmt.Errorf("failed to list open alerts: %w", err)
	}

	return alerts, nil
}

// InsertIfNoOpen relies on a conditional insert so two concurrent runs cannot
// both open an alert for the same (product, type).
func (r *alertRepository) InsertIfNoOpen(ctx context.Context, alerts []domain.Alert) (int, error) {
	query := `
		INSERT INTO alerts (
			id, client_id, product_id, type, severity,
			threshold_value, observed_value, message,
			dismissed, created_at
		)
		SELECT $1, $2, $3, $4, $5, $6, $7, $8, FALSE, $9
		WHERE NOT EXISTS (
			SELECT 1 FROM alerts
			WHERE product_id = $3 AND type = $4 AND dismissed = FALSE
		)
	`

	inserted := 0
	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, query)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer stmt.Close()

		for _, alert := range alerts {
			res, err := stmt.ExecContext(ctx,
				alert.ID, alert.ClientID, alert.ProductID,
				alert.Type, alert.Severity,
				alert.ThresholdValue, alert.ObservedValue, alert.Message,
				alert.CreatedAt,
			)
			if err != nil {
				return fmt.Errorf("failed to insert alert: %w", err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("failed to read rows affected: %w", err)
			}
			inserted += int(n)
		}

		return nil
	})
	if err != nil {
		return 0, err
	}

	return inserted, nil
}

func (r *alertRepository) Dismiss(ctx context.Context, alertID string, at time.Time) error {
	query := `
		UPDATE alerts
		SET dismissed = TRUE, dismissed_at = $2
		WHERE id = $1 AND dismissed = FALSE
	`

	if _, err := r.db.ExecContext(ctx, query, alertID, at); err != nil {
		return fmt.Errorf("failed to dismiss alert: %w", err)
	}

	return nil
}

func (r *alertRepository) ListCreatedOn(ctx context.Context, clientID string, day time.Time) ([]domain.Alert, error) {
	query := `
		SELECT ` + alertColumns + `
		FROM alerts
		WHERE client_id = $1
			AND created_at >= $2 AND created_at < $3
		ORDER BY created_at
	`

	start := day.Truncate(24 * time.Hour)
	var alerts []domain.Alert
	if err := r.db.SelectContext(ctx, &alerts, query, clientID, start, start.AddDate(0, 0, 1)); err != nil {
		return nil, fmt.Errorf("failed to list created alerts: %w", err)
	}

	return alerts, nil
}

func (r *alertRepository) ListResolvedOn(ctx context.Context, clientID string, day time.Time) ([]domain.Alert, error) {
	query := `
		SELECT ` + alertColumns + `
		FROM alerts
		WHERE client_id = $1
			AND dismissed = TRUE
			AND dismissed_at >= $2 AND dismissed_at < $3
		ORDER BY dismissed_at
	`

	start := day.Truncate(24 * time.Hour)
	var alerts []domain.Alert
	if err := r.db.SelectContext(ctx, &alerts, query, clientID, start, start.AddDate(0, 0, 1)); err != nil {
		return nil, fmt.Errorf("failed to list resolved alerts: %w", err)
	}

	return alerts, nil
}
