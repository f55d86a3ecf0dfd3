package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/stocksense/backend-go/internal/domain"
	"github.com/stocksense/backend-go/internal/repository"
)

type clientRepository struct {
	db *DB
}

func NewClientRepository(db *DB) repository.ClientRepository {
	return &clientRepository{db: db}
}

func (r *clientRepository) GetByID(ctx context.Context, id string) (*domain.Client, error) {
	query := `
		SELECT id, name, is_active, created_at
		FROM clients
		WHERE id = $1
	`

	var client domain.Client
	if err := r.db.GetContext(ctx, &client, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrClientNotFound
		}
		return nil, fmt.Errorf("failed to get client: %w", err)
	}

	return &client, nil
}

func (r *clientRepository) ListActive(ctx context.Context) ([]domain.Client, error) {
	query := `
		SELECT id, name, is_active, created_at
		FROM clients
		WHERE is_active = TRUE
		ORDER BY created_at
	`

	var clients []domain.Client
	if err := r.db.SelectContext(ctx, &clients, query); err != nil {
		return nil, fmt.Errorf("failed to list active clients: %w", err)
	}

	return clients, nil
}

func (r *clientRepository) GetSettings(ctx context.Context, clientID string) (*domain.ClientSettings, error) {
	query := `
		SELECT client_id, show_orphan_products,
			supplier_lead_days, shipping_lead_days,
			processing_lead_days, safety_buffer_days
		FROM client_settings
		WHERE client_id = $1
	`

	var settings domain.ClientSettings
	if err := r.db.GetContext(ctx, &settings, query, clientID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get client settings: %w", err)
	}

	return &settings, nil
}
