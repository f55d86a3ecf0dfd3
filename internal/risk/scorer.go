// Package risk defines the external risk-scoring collaborator interface and a
// thin HTTP client for it. Scores are computed elsewhere; this engine only
// caches them.
package risk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/stocksense/backend-go/internal/config"
	"github.com/stocksense/backend-go/internal/domain"
)

// Assessment is one risk-scoring result for a product.
type Assessment struct {
	Score     float64            `json:"score"`
	RiskLevel string             `json:"risk_level"`
	Factors   domain.RiskFactors `json:"factors"`
}

// Scorer is the external risk-scoring collaborator. Injected into the cache
// refresher so it depends on an abstraction rather than a concrete service.
type Scorer interface {
	CalculateProductRisk(ctx context.Context, productID string) (*Assessment, error)
}

// HTTPScorer calls the risk-scoring service over HTTP.
type HTTPScorer struct {
	baseURL string
	client  *http.Client
}

// NewHTTPScorer creates an HTTPScorer using the configured endpoint and timeout.
func NewHTTPScorer(cfg config.RiskConfig) *HTTPScorer {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPScorer{
		baseURL: cfg.ServiceURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// CalculateProductRisk fetches a fresh risk assessment for the product.
func (s *HTTPScorer) CalculateProductRisk(ctx context.Context, productID string) (*Assessment, error) {
	body, err := json.Marshal(map[string]string{"product_id": productID})
	if err != nil {
		return nil, fmt.Errorf("encoding risk request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/risk-score", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building risk request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("risk service call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("risk service returned status %d", resp.StatusCode)
	}

	var assessment Assessment
	if err := json.NewDecoder(resp.Body).Decode(&assessment); err != nil {
		return nil, fmt.Errorf("decoding risk response: %w", err)
	}

	return &assessment, nil
}
