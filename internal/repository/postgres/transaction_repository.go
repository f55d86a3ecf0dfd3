package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/stocksense/backend-go/internal/domain"
	"github.com/stocksense/backend-go/internal/repository"
)

type transactionRepository struct {
	db *DB
}

func NewTransactionRepository(db *DB) repository.TransactionRepository {
	return &transactionRepository{db: db}
}

func (r *transactionRepository) ListCompletedByClientSince(ctx context.Context, clientID string, since time.Time) ([]domain.Transaction, error) {
	query := `
		SELECT id, client_id, product_id, quantity_units, quantity_packs,
			order_status, date_submitted
		FROM transactions
		WHERE client_id = $1
			AND order_status = 'completed'
			AND date_submitted >= $2
		ORDER BY date_submitted
	`

	var txs []domain.Transaction
	if err := r.db.SelectContext(ctx, &txs, query, clientID, since); err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}

	return txs, nil
}

func (r *transactionRepository) LastMovementByClient(ctx context.Context, clientID string) (map[string]time.Time, error) {
	query := `
		SELECT product_id, MAX(date_submitted) AS last_movement
		FROM transactions
		WHERE client_id = $1 AND order_status = 'completed'
		GROUP BY product_id
	`

	rows, err := r.db.QueryxContext(ctx, query, clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to query last movement: %w", err)
	}
	defer rows.Close()

	out := make(map[string]time.Time)
	for rows.Next() {
		var productID string
		var last time.Time
		if err := rows.Scan(&productID, &last); err != nil {
			return nil, fmt.Errorf("failed to scan last movement: %w", err)
		}
		out[productID] = last
	}

	return out, rows.Err()
}

func (r *transactionRepository) MonthlyTotals(ctx context.Context, productID string, months int) ([]repository.MonthlyUsage, error) {
	query := `
		SELECT date_trunc('month', date_submitted) AS month,
			SUM(quantity_units) AS total_units,
			SUM(quantity_packs) AS total_packs,
			COUNT(*) AS tx_count
		FROM transactions
		WHERE product_id = $1
			AND order_status = 'completed'
			AND date_submitted >= NOW() - ($2 || ' months')::interval
		GROUP BY 1
		ORDER BY 1
	`

	var totals []repository.MonthlyUsage
	if err := r.db.SelectContext(ctx, &totals, query, productID, months); err != nil {
		return nil, fmt.Errorf("failed to aggregate monthly totals: %w", err)
	}

	return totals, nil
}
