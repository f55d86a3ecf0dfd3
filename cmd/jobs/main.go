// cmd/jobs/main.go
package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/stocksense/backend-go/internal/cache"
	"github.com/stocksense/backend-go/internal/config"
	"github.com/stocksense/backend-go/internal/repository/postgres"
	"github.com/stocksense/backend-go/internal/service"
	"github.com/stocksense/backend-go/pkg/logger"
)

func newClientFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "client",
		Usage:   "Client ID to run against (default: all active clients)",
		EnvVars: []string{"CLIENT_ID"},
	}
}

func buildEngine() (*service.Engine, error) {
	cfg := config.Load()
	logger.SetLevel(cfg.LogLevel)

	db, err := postgres.NewDB(&cfg.Database)
	if err != nil {
		return nil, err
	}

	riskCache, err := cache.NewRiskScoreCache(cfg.Cache)
	if err != nil {
		logger.Log.Warn().Err(err).Msg("risk cache unavailable, continuing without it")
		riskCache = cache.NewNoopRiskScoreCache()
	}

	return service.NewEngine(cfg, service.NewPostgresRepos(db), nil, riskCache), nil
}

func runJob(fn func(ctx context.Context, engine *service.Engine, c *cli.Context) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		engine, err := buildEngine()
		if err != nil {
			return err
		}
		return fn(c.Context, engine, c)
	}
}

func main() {
	app := &cli.App{
		Name:  "jobs",
		Usage: "Run inventory engine jobs once and exit",
		Commands: []*cli.Command{
			{
				Name:  "alerts",
				Usage: "Resolve outdated alerts and generate new ones",
				Flags: []cli.Flag{newClientFlag()},
				Action: runJob(func(ctx context.Context, engine *service.Engine, c *cli.Context) error {
					return engine.RunAlertGeneration(ctx, c.String("client"))
				}),
			},
			{
				Name:  "usage",
				Usage: "Recalculate product usage rates",
				Flags: []cli.Flag{newClientFlag()},
				Action: runJob(func(ctx context.Context, engine *service.Engine, c *cli.Context) error {
					return engine.RunUsageRecalculation(ctx, c.String("client"))
				}),
			},
			{
				Name:  "timing",
				Usage: "Refresh stale order-timing caches",
				Flags: []cli.Flag{newClientFlag()},
				Action: runJob(func(ctx context.Context, engine *service.Engine, c *cli.Context) error {
					return engine.RunTimingRefresh(ctx, c.String("client"))
				}),
			},
			{
				Name:  "stock-history",
				Usage: "Record a stock level history point per product",
				Flags: []cli.Flag{newClientFlag()},
				Action: runJob(func(ctx context.Context, engine *service.Engine, c *cli.Context) error {
					return engine.RunStockHistory(ctx, c.String("client"))
				}),
			},
			{
				Name:  "snapshots",
				Usage: "Upsert today's daily stock snapshots",
				Flags: []cli.Flag{newClientFlag()},
				Action: runJob(func(ctx context.Context, engine *service.Engine, c *cli.Context) error {
					return engine.RunDailySnapshots(ctx, c.String("client"))
				}),
			},
			{
				Name:  "alert-metrics",
				Usage: "Aggregate today's alert metrics",
				Flags: []cli.Flag{newClientFlag()},
				Action: runJob(func(ctx context.Context, engine *service.Engine, c *cli.Context) error {
					return engine.RunAlertMetrics(ctx, c.String("client"))
				}),
			},
			{
				Name:  "risk",
				Usage: "Refresh product risk scores via the scoring service",
				Flags: []cli.Flag{newClientFlag()},
				Action: runJob(func(ctx context.Context, engine *service.Engine, c *cli.Context) error {
					return engine.RunRiskRefresh(ctx, c.String("client"))
				}),
			},
			{
				Name:  "risk-score",
				Usage: "Fetch one product's risk score, cache-first",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "product",
						Usage:    "Product ID to score",
						Required: true,
					},
				},
				Action: runJob(func(ctx context.Context, engine *service.Engine, c *cli.Context) error {
					score, err := engine.GetProductRisk(ctx, c.String("product"))
					if err != nil {
						return err
					}
					enc := json.NewEncoder(os.Stdout)
					enc.SetIndent("", "  ")
					return enc.Encode(score)
				}),
			},
			{
				Name:  "anomalies",
				Usage: "Detect usage anomalies for a client and print them",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "client",
						Usage:    "Client ID to scan",
						Required: true,
						EnvVars:  []string{"CLIENT_ID"},
					},
				},
				Action: runJob(func(ctx context.Context, engine *service.Engine, c *cli.Context) error {
					findings, err := engine.DetectAnomalies(ctx, c.String("client"))
					if err != nil {
						return err
					}
					enc := json.NewEncoder(os.Stdout)
					enc.SetIndent("", "  ")
					return enc.Encode(findings)
				}),
			},
			{
				Name:  "deadlines",
				Usage: "List upcoming order deadlines for a client",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "client",
						Usage:    "Client ID to scan",
						Required: true,
						EnvVars:  []string{"CLIENT_ID"},
					},
					&cli.IntFlag{
						Name:  "horizon",
						Usage: "Only include deadlines within this many days (0 = no limit)",
					},
				},
				Action: runJob(func(ctx context.Context, engine *service.Engine, c *cli.Context) error {
					deadlines, err := engine.UpcomingDeadlines(ctx, c.String("client"), c.Int("horizon"))
					if err != nil {
						return err
					}
					enc := json.NewEncoder(os.Stdout)
					enc.SetIndent("", "  ")
					return enc.Encode(deadlines)
				}),
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger.Log.Fatal().Err(err).Msg("job failed")
	}
}
