package postgres

import (
	"context"
	"fmt"

	"github.com/stocksense/backend-go/internal/domain"
	"github.com/stocksense/backend-go/internal/repository"
)

type riskScoreRepository struct {
	db *DB
}

func NewRiskScoreRepository(db *DB) repository.RiskScoreRepository {
	return &riskScoreRepository{db: db}
}

func (r *riskScoreRepository) Upsert(ctx context.Context, score *domain.RiskScore) error {
	query := `
		INSERT INTO risk_scores (
			product_id, score, risk_level, factors, computed_at, expires_at
		) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (product_id)
		DO UPDATE SET
			score = EXCLUDED.score,
			risk_level = EXCLUDED.risk_level,
			factors = EXCLUDED.factors,
			computed_at = EXCLUDED.computed_at,
			expires_at = EXCLUDED.expires_at
	`

	if _, err := r.db.ExecContext(ctx, query,
		score.ProductID, score.Score, score.RiskLevel,
		score.Factors, score.ComputedAt, score.ExpiresAt,
	); err != nil {
		return fmt.Errorf("failed to upsert risk score: %w", err)
	}

	return nil
}
