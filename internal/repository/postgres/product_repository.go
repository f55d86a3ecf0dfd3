package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/stocksense/backend-go/internal/domain"
	"github.com/stocksense/backend-go/internal/repository"
)

const productColumns = `
	id, client_id, name, item_type, pack_size,
	packs_available, total_units, reorder_point_packs,
	avg_daily_usage, avg_monthly_usage,
	is_active, is_orphan,
	supplier_lead_days, shipping_lead_days, processing_lead_days, safety_buffer_days,
	stock_status, weeks_remaining, projected_stockout_date,
	last_order_by_date, total_lead_days, status_computed_at,
	created_at, updated_at
`

type productRepository struct {
	db *DB
}

func NewProductRepository(db *DB) repository.ProductRepository {
	return &productRepository{db: db}
}

func (r *productRepository) GetByID(ctx context.Context, id string) (*domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	var product domain.Product
	if err := r.db.GetContext(ctx, &product, query, id); err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}

	return &product, nil
}

func (r *productRepository) ListActiveByClient(ctx context.Context, clientID string, includeOrphans bool) ([]domain.Product, error) {
	query := `
		SELECT ` + productColumns + `
		FROM products
		WHERE client_id = $1
			AND is_active = TRUE
			AND ($2 OR is_orphan = FALSE)
		ORDER BY name
	`

	var products []domain.Product
	if err := r.db.SelectContext(ctx, &products, query, clientID, includeOrphans); err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}

	return products, nil
}

func (r *productRepository) ListStaleTimings(ctx context.Context, clientID string, cutoff time.Time) ([]domain.Product, error) {
	query := `
		SELECT ` + productColumns + `
		FROM products
		WHERE client_id = $1
			AND is_active = TRUE
			AND (status_computed_at IS NULL OR status_computed_at < $2)
		ORDER BY status_computed_at NULLS FIRST
	`

	var products []domain.Product
	if err := r.db.SelectContext(ctx, &products, query, clientID, cutoff); err != nil {
		return nil, fmt.Errorf("failed to list stale timings: %w", err)
	}

	return products, nil
}

func (r *productRepository) UpdateStatusFields(ctx context.Context, productID string, update repository.StatusUpdate) error {
	query := `
		UPDATE products
		SET stock_status = $2,
			weeks_remaining = $3,
			status_computed_at = $4,
			updated_at = NOW()
		WHERE id = $1
	`

	if _, err := r.db.ExecContext(ctx, query, productID,
		update.StockStatus, update.WeeksRemaining, update.ComputedAt); err != nil {
		return fmt.Errorf("failed to update status fields: %w", err)
	}

	return nil
}

func (r *productRepository) UpdateTimingFields(ctx context.Context, productID string, update repository.TimingUpdate) error {
	query := `
		UPDATE products
		SET projected_stockout_date = $2,
			last_order_by_date = $3,
			total_lead_days = $4,
			status_computed_at = $5,
			updated_at = NOW()
		WHERE id = $1
	`

	if _, err := r.db.ExecContext(ctx, query, productID,
		update.ProjectedStockoutDate, update.LastOrderByDate,
		update.TotalLeadDays, update.ComputedAt); err != nil {
		return fmt.Errorf("failed to update timing fields: %w", err)
	}

	return nil
}

func (r *productRepository) UpdateUsageFields(ctx context.Context, productID string, update repository.UsageUpdate) error {
	query := `
		UPDATE products
		SET avg_daily_usage = $2,
			avg_monthly_usage = $3,
			updated_at = NOW()
		WHERE id = $1
	`

	if _, err := r.db.ExecContext(ctx, query, productID,
		update.AvgDailyUsage, update.AvgMonthlyUsage); err != nil {
		return fmt.Errorf("failed to update usage fields: %w", err)
	}

	return nil
}
