package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/stocksense/backend-go/internal/config"
	"github.com/stocksense/backend-go/internal/domain"
)

const riskScoreKeyPrefix = "risk_score"

// RiskScoreCache is the hot read path for product risk scores. The store
// remains the source of truth; this layer only avoids recomputation on reads.
type RiskScoreCache interface {
	Get(ctx context.Context, productID string) (*domain.RiskScore, bool, error)
	Set(ctx context.Context, score *domain.RiskScore) error
	Invalidate(ctx context.Context, productID string) error
}

type redisRiskScoreCache struct {
	client *redis.Client
	ttl    time.Duration
}

type noopRiskScoreCache struct{}

// NewRiskScoreCache returns a redis-backed cache when caching is enabled and
// a noop otherwise.
func NewRiskScoreCache(cfg config.CacheConfig) (RiskScoreCache, error) {
	if !cfg.Enabled {
		return &noopRiskScoreCache{}, nil
	}

	client, ttl, err := newRedisClient(cfg)
	if err != nil {
		return nil, err
	}

	return &redisRiskScoreCache{client: client, ttl: ttl}, nil
}

// NewNoopRiskScoreCache returns a cache that stores nothing.
func NewNoopRiskScoreCache() RiskScoreCache {
	return &noopRiskScoreCache{}
}

func (c *redisRiskScoreCache) Get(ctx context.Context, productID string) (*domain.RiskScore, bool, error) {
	payload, err := c.client.Get(ctx, riskScoreKey(productID)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get failed: %w", err)
	}

	var score domain.RiskScore
	if err := json.Unmarshal(payload, &score); err != nil {
		return nil, false, fmt.Errorf("decode risk score cache: %w", err)
	}

	return &score, true, nil
}

func (c *redisRiskScoreCache) Set(ctx context.Context, score *domain.RiskScore) error {
	payload, err := json.Marshal(score)
	if err != nil {
		return fmt.Errorf("encode risk score cache: %w", err)
	}

	if err := c.client.Set(ctx, riskScoreKey(score.ProductID), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (c *redisRiskScoreCache) Invalidate(ctx context.Context, productID string) error {
	return c.client.Del(ctx, riskScoreKey(productID)).Err()
}

func (n *noopRiskScoreCache) Get(ctx context.Context, productID string) (*domain.RiskScore, bool, error) {
	return nil, false, nil
}

func (n *noopRiskScoreCache) Set(ctx context.Context, score *domain.RiskScore) error {
	return nil
}

func (n *noopRiskScoreCache) Invalidate(ctx context.Context, productID string) error {
	return nil
}

func riskScoreKey(productID string) string {
	return fmt.Sprintf("%s:%s", riskScoreKeyPrefix, productID)
}
