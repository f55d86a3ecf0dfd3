// Package service wires the engine components over the repositories and
// exposes the operations the scheduler and the jobs CLI run. Every Run method
// takes a client ID; an empty ID means every active client.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/stocksense/backend-go/internal/alerting"
	"github.com/stocksense/backend-go/internal/analytics"
	"github.com/stocksense/backend-go/internal/anomaly"
	"github.com/stocksense/backend-go/internal/cache"
	"github.com/stocksense/backend-go/internal/config"
	"github.com/stocksense/backend-go/internal/domain"
	"github.com/stocksense/backend-go/internal/repository"
	"github.com/stocksense/backend-go/internal/repository/postgres"
	"github.com/stocksense/backend-go/internal/risk"
	"github.com/stocksense/backend-go/internal/timing"
	"github.com/stocksense/backend-go/internal/usage"
)

// Repos bundles the repository implementations the engine runs on.
type Repos struct {
	Clients      repository.ClientRepository
	Products     repository.ProductRepository
	Alerts       repository.AlertRepository
	Transactions repository.TransactionRepository
	Metrics      repository.UsageMetricRepository
	History      repository.StockHistoryRepository
	Snapshots    repository.SnapshotRepository
	RiskScores   repository.RiskScoreRepository
}

// NewPostgresRepos builds the full repository set on one postgres pool.
func NewPostgresRepos(db *postgres.DB) Repos {
	return Repos{
		Clients:      postgres.NewClientRepository(db),
		Products:     postgres.NewProductRepository(db),
		Alerts:       postgres.NewAlertRepository(db),
		Transactions: postgres.NewTransactionRepository(db),
		Metrics:      postgres.NewUsageMetricRepository(db),
		History:      postgres.NewStockHistoryRepository(db),
		Snapshots:    postgres.NewSnapshotRepository(db),
		RiskScores:   postgres.NewRiskScoreRepository(db),
	}
}

// Engine is the assembled inventory health engine.
type Engine struct {
	repos     Repos
	manager   *alerting.Manager
	recalc    *usage.Recalculator
	projector *timing.Projector
	detector  *anomaly.Detector
	refresher *analytics.Refresher
	scorer    risk.Scorer
	riskCache cache.RiskScoreCache
	cfg       *config.Config
}

// NewEngine wires the engine components. A nil riskCache falls back to a noop;
// a nil scorer falls back to the configured HTTP scorer.
func NewEngine(cfg *config.Config, repos Repos, scorer risk.Scorer, riskCache cache.RiskScoreCache) *Engine {
	if scorer == nil {
		scorer = risk.NewHTTPScorer(cfg.Risk)
	}
	if riskCache == nil {
		riskCache = cache.NewNoopRiskScoreCache()
	}

	return &Engine{
		repos: repos,
		manager: alerting.NewManager(
			repos.Clients, repos.Products, repos.Alerts,
			repos.Metrics, repos.Transactions, cfg.Alerting,
		),
		recalc: usage.NewRecalculator(
			repos.Products, repos.Transactions, repos.History, repos.Metrics,
		),
		projector: timing.NewProjector(repos.Products, repos.Clients, cfg.Timing),
		detector:  anomaly.NewDetector(repos.Products, repos.Transactions),
		refresher: analytics.NewRefresher(
			repos.Products, repos.Alerts, repos.Snapshots, repos.History,
			repos.RiskScores, scorer, riskCache, cfg.Risk,
		),
		scorer:    scorer,
		riskCache: riskCache,
		cfg:       cfg,
	}
}

// RunAlertGeneration runs the full alert lifecycle pass.
func (e *Engine) RunAlertGeneration(ctx context.Context, clientID string) error {
	return e.forEachClient(ctx, clientID, func(ctx context.Context, id string) error {
		res, err := e.manager.RunAlertGeneration(ctx, id)
		if err != nil {
			return err
		}
		log.Info().
			Str("client_id", id).
			Int("resolved", res.Resolved).
			Int("created", res.Created).
			Int("usage_spikes", res.UsageSpikes).
			Int("no_movement", res.NoMovement).
			Msg("alert generation completed")
		return nil
	})
}

// RunUsageRecalculation refreshes usage metrics and cached usage fields.
func (e *Engine) RunUsageRecalculation(ctx context.Context, clientID string) error {
	return e.forEachClient(ctx, clientID, func(ctx context.Context, id string) error {
		updated, err := e.recalc.RecalculateClient(ctx, id)
		if err != nil {
			return err
		}
		log.Info().Str("client_id", id).Int("updated", updated).Msg("usage recalculation completed")
		return nil
	})
}

// RunTimingRefresh recomputes stale cached timing fields.
func (e *Engine) RunTimingRefresh(ctx context.Context, clientID string) error {
	return e.forEachClient(ctx, clientID, func(ctx context.Context, id string) error {
		refreshed, err := e.projector.RefreshStaleTimings(ctx, id, e.cfg.Timing.MaxCacheAge)
		if err != nil {
			return err
		}
		log.Info().Str("client_id", id).Int("refreshed", refreshed).Msg("timing refresh completed")
		return nil
	})
}

// RunStockHistory appends a stock history record per product.
func (e *Engine) RunStockHistory(ctx context.Context, clientID string) error {
	return e.forEachClient(ctx, clientID, func(ctx context.Context, id string) error {
		recorded, err := e.refresher.RecordStockHistory(ctx, id)
		if err != nil {
			return err
		}
		log.Info().Str("client_id", id).Int("recorded", recorded).Msg("stock history recorded")
		return nil
	})
}

// RunDailySnapshots upserts today's per-product snapshot rows.
func (e *Engine) RunDailySnapshots(ctx context.Context, clientID string) error {
	return e.forEachClient(ctx, clientID, func(ctx context.Context, id string) error {
		written, err := e.refresher.SnapshotDailyStock(ctx, id, time.Now())
		if err != nil {
			return err
		}
		log.Info().Str("client_id", id).Int("written", written).Msg("daily snapshots written")
		return nil
	})
}

// RunAlertMetrics upserts today's per-client alert metrics row.
func (e *Engine) RunAlertMetrics(ctx context.Context, clientID string) error {
	return e.forEachClient(ctx, clientID, func(ctx context.Context, id string) error {
		if err := e.refresher.AggregateAlertMetrics(ctx, id, time.Now()); err != nil {
			return err
		}
		log.Info().Str("client_id", id).Msg("alert metrics aggregated")
		return nil
	})
}

// RunRiskRefresh recomputes the risk score cache via the external scorer.
func (e *Engine) RunRiskRefresh(ctx context.Context, clientID string) error {
	return e.forEachClient(ctx, clientID, func(ctx context.Context, id string) error {
		refreshed, err := e.refresher.RefreshRiskScores(ctx, id)
		if err != nil {
			return err
		}
		log.Info().Str("client_id", id).Int("refreshed", refreshed).Msg("risk scores refreshed")
		return nil
	})
}

// DetectAnomalies runs the anomaly rules for one client.
func (e *Engine) DetectAnomalies(ctx context.Context, clientID string) ([]anomaly.Finding, error) {
	return e.detector.DetectForClient(ctx, clientID)
}

// UpcomingDeadlines returns a client's order deadlines, soonest first.
func (e *Engine) UpcomingDeadlines(ctx context.Context, clientID string, horizonDays int) ([]timing.OrderDeadline, error) {
	return e.projector.GetUpcomingDeadlines(ctx, clientID, timing.DeadlineFilter{HorizonDays: horizonDays})
}

// GetProductRisk serves a product's risk score cache-first, falling back to
// the scorer and writing the result through.
func (e *Engine) GetProductRisk(ctx context.Context, productID string) (*domain.RiskScore, error) {
	if score, ok, err := e.riskCache.Get(ctx, productID); err == nil && ok {
		return score, nil
	} else if err != nil {
		log.Warn().Err(err).Str("product_id", productID).Msg("risk cache get failed")
	}

	assessment, err := e.scorer.CalculateProductRisk(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("scoring product %s: %w", productID, err)
	}

	expiry := e.cfg.Risk.Expiry
	if expiry <= 0 {
		expiry = 2 * time.Hour
	}
	now := time.Now()
	score := &domain.RiskScore{
		ProductID:  productID,
		Score:      assessment.Score,
		RiskLevel:  assessment.RiskLevel,
		Factors:    assessment.Factors,
		ComputedAt: now,
		ExpiresAt:  now.Add(expiry),
	}
	if err := e.repos.RiskScores.Upsert(ctx, score); err != nil {
		return nil, fmt.Errorf("storing risk score for %s: %w", productID, err)
	}
	if err := e.riskCache.Set(ctx, score); err != nil {
		log.Warn().Err(err).Str("product_id", productID).Msg("risk cache set failed")
	}

	return score, nil
}

// forEachClient applies fn to one client or to every active client. Per-client
// failures are logged; the pass keeps going and reports the first error.
func (e *Engine) forEachClient(ctx context.Context, clientID string, fn func(ctx context.Context, clientID string) error) error {
	if clientID != "" {
		return fn(ctx, clientID)
	}

	clients, err := e.repos.Clients.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("listing active clients: %w", err)
	}

	var firstErr error
	for _, c := range clients {
		if err := fn(ctx, c.ID); err != nil {
			log.Error().Err(err).Str("client_id", c.ID).Msg("client pass failed")
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	return firstErr
}
