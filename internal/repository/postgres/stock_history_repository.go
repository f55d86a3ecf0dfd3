package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/stocksense/backend-go/internal/domain"
	"github.com/stocksense/backend-go/internal/repository"
)

type stockHistoryRepository struct {
	db *DB
}

func NewStockHistoryRepository(db *DB) repository.StockHistoryRepository {
	return &stockHistoryRepository{db: db}
}

func (r *stockHistoryRepository) Insert(ctx context.Context, record *domain.StockHistory) error {
	query := `
		INSERT INTO stock_history (
			id, product_id, packs_available, total_units, source, recorded_at
		) VALUES ($1, $2, $3, $4, $5, $6)
	`

	if _, err := r.db.ExecContext(ctx, query,
		record.ID, record.ProductID,
		record.PacksAvailable, record.TotalUnits,
		record.Source, record.RecordedAt,
	); err != nil {
		return fmt.Errorf("failed to insert stock history: %w", err)
	}

	return nil
}

func (r *stockHistoryRepository) ListByProductSince(ctx context.Context, productID string, since time.Time) ([]domain.StockHistory, error) {
	query := `
		SELECT id, product_id, packs_available, total_units, source, recorded_at
		FROM stock_history
		WHERE product_id = $1 AND recorded_at >= $2
		ORDER BY recorded_at
	`

	var records []domain.StockHistory
	if err := r.db.SelectContext(ctx, &records, query, productID, since); err != nil {
		return nil, fmt.Errorf("failed to list stock history: %w", err)
	}

	return records, nil
}
