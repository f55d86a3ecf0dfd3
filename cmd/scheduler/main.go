// cmd/scheduler/main.go
package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/stocksense/backend-go/internal/cache"
	"github.com/stocksense/backend-go/internal/config"
	"github.com/stocksense/backend-go/internal/repository/postgres"
	"github.com/stocksense/backend-go/internal/scheduler"
	"github.com/stocksense/backend-go/internal/service"
	"github.com/stocksense/backend-go/pkg/logger"
)

func main() {
	cfg := config.Load()
	logger.SetLevel(cfg.LogLevel)

	db, err := postgres.NewDB(&cfg.Database)
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := db.HealthCheck(ctx); err != nil {
		logger.Log.Fatal().Err(err).Msg("database health check failed")
	}

	riskCache, err := cache.NewRiskScoreCache(cfg.Cache)
	if err != nil {
		logger.Log.Warn().Err(err).Msg("risk cache unavailable, continuing without it")
		riskCache = cache.NewNoopRiskScoreCache()
	}

	engine := service.NewEngine(cfg, service.NewPostgresRepos(db), nil, riskCache)

	sched := scheduler.New(scheduler.WithTick(cfg.Scheduler.Tick))
	sched.Register("alert_generation", cfg.Scheduler.AlertGenInterval, func(ctx context.Context) error {
		return engine.RunAlertGeneration(ctx, "")
	})
	sched.Register("usage_recalculation", cfg.Scheduler.UsageRecalcInterval, func(ctx context.Context) error {
		return engine.RunUsageRecalculation(ctx, "")
	})
	sched.Register("timing_refresh", cfg.Scheduler.TimingRefreshInterval, func(ctx context.Context) error {
		return engine.RunTimingRefresh(ctx, "")
	})
	sched.Register("stock_history_snapshot", cfg.Scheduler.StockHistoryInterval, func(ctx context.Context) error {
		return engine.RunStockHistory(ctx, "")
	})
	sched.Register("daily_snapshot_aggregation", cfg.Scheduler.DailySnapshotInterval, func(ctx context.Context) error {
		return engine.RunDailySnapshots(ctx, "")
	})
	sched.Register("daily_alert_metrics", cfg.Scheduler.AlertMetricsInterval, func(ctx context.Context) error {
		return engine.RunAlertMetrics(ctx, "")
	})
	sched.Register("risk_score_refresh", cfg.Scheduler.RiskRefreshInterval, func(ctx context.Context) error {
		return engine.RunRiskRefresh(ctx, "")
	})

	logger.Log.Info().Msg("inventory engine scheduler starting")
	sched.Start(ctx)
	logger.Log.Info().Msg("inventory engine scheduler stopped")
}
