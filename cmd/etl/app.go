package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/fleximart-etl/internal/catalog"
	"github.com/JonMunkholm/fleximart-etl/internal/config"
	"github.com/JonMunkholm/fleximart-etl/internal/core"
	"github.com/JonMunkholm/fleximart-etl/internal/logging"
	"github.com/JonMunkholm/fleximart-etl/internal/store"
)

// app holds what both run and serve need.
type app struct {
	cfg      *config.Config
	pool     *pgxpool.Pool
	store    *store.Postgres
	pipeline *core.Pipeline
}

// bootstrap loads configuration, sets up logging and connects to the
// database. The caller must call close.
func bootstrap(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Debug("configuration loaded", "config", cfg.String())

	rules, err := config.LoadRules(cfg.ETL.RulesFile)
	if err != nil {
		return nil, err
	}

	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	pg := store.New(pool)
	if err := pg.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	pipeline, err := core.New(pg, core.Options{
		Paths: cfg.ETL.SourcePaths(),
		Rules: rules,
		Retry: core.RetryConfig{
			MaxAttempts:  cfg.Retry.Attempts,
			InitialDelay: cfg.Retry.InitialDelay,
			MaxDelay:     cfg.Retry.MaxDelay,
			Multiplier:   cfg.Retry.Multiplier,
		},
		ReportPath: cfg.ETL.ReportPath,
	})
	if err != nil {
		pool.Close()
		return nil, err
	}

	return &app{cfg: cfg, pool: pool, store: pg, pipeline: pipeline}, nil
}

func (a *app) close() {
	a.pool.Close()
}

// runOnce executes one pipeline pass bounded by ETL_RUN_TIMEOUT and, when
// MONGO_URL is set and the run succeeded, exports the product catalog.
func (a *app) runOnce(ctx context.Context) (*core.Report, error) {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.ETL.RunTimeout)
	defer cancel()

	result, err := a.pipeline.Run(ctx)
	if err != nil {
		return result.Report, err
	}

	if a.cfg.Catalog.MongoURL != "" {
		if err := exportCatalog(ctx, a.cfg.Catalog, result.Products()); err != nil {
			return result.Report, err
		}
	}
	return result.Report, nil
}

func exportCatalog(ctx context.Context, cfg config.CatalogConfig, products []*core.Product) error {
	client, err := catalog.Connect(ctx, cfg)
	if err != nil {
		return fmt.Errorf("catalog: %w", err)
	}
	defer func() {
		if err := client.Disconnect(context.WithoutCancel(ctx)); err != nil {
			slog.Warn("disconnect from MongoDB", "error", err)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	if _, err := catalog.NewExporter(client.Database(cfg.Database)).Export(ctx, products); err != nil {
		return fmt.Errorf("catalog: %w", err)
	}
	return nil
}
