package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/your-org/signal-tube/internal/collection"
	"github.com/your-org/signal-tube/internal/config"
	"github.com/your-org/signal-tube/internal/datastore"
	"github.com/your-org/signal-tube/internal/ingest"
	"github.com/your-org/signal-tube/internal/tube"
)

func main() {
	var configPath, dataDir, outPath string
	flag.StringVar(&configPath, "config", "config/app_config.yaml", "path to config file")
	flag.StringVar(&dataDir, "data", "", "directory of unit CSV files (overrides db/ingest sources)")
	flag.StringVar(&outPath, "out", "tube_model.json", "path for the trained model artifact")
	flag.Parse()

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	logger, err := newLogger(cfg.App.LogLevel)
	if err != nil {
		panic(fmt.Sprintf("failed to build logger: %v", err))
	}
	defer logger.Sync()

	store, err := loadStore(context.Background(), cfg, dataDir, logger)
	if err != nil {
		logger.Fatal("Failed to load collection", zap.Error(err))
	}

	opts := []tube.Option{tube.WithLogger(logger)}
	if cfg.App.Seed != 0 {
		opts = append(opts, tube.WithSeed(cfg.App.Seed))
	}
	if len(cfg.Learn.Variables) > 0 {
		opts = append(opts, tube.WithVariables(cfg.Learn.Variables...))
	}
	if len(cfg.Learn.Factors) > 0 {
		opts = append(opts, tube.WithFactors(cfg.Learn.Factors...))
	}
	model := tube.New(store, opts...)

	if err := model.Fit(cfg.Params(), tube.NewLogObserver(logger)); err != nil {
		logger.Fatal("Training failed", zap.Error(err))
	}

	fmt.Print(model.Describe().String())

	artifact, err := model.Artifact()
	if err != nil {
		logger.Fatal("Failed to export model", zap.Error(err))
	}
	payload, err := json.MarshalIndent(artifact, "", "  ")
	if err != nil {
		logger.Fatal("Failed to encode model", zap.Error(err))
	}
	if err := os.WriteFile(outPath, payload, 0o644); err != nil {
		logger.Fatal("Failed to write model artifact", zap.Error(err))
	}
	logger.Info("Model artifact written",
		zap.String("path", outPath),
		zap.String("fitID", model.FitID()))
}

// loadStore builds the training collection from, in order of precedence, a
// CSV directory, the configured database, or the live ingest feed.
func loadStore(ctx context.Context, cfg *config.Config, dataDir string, logger *zap.Logger) (*collection.Store, error) {
	if dataDir != "" {
		return collection.LoadCSVDir(dataDir, logger)
	}
	if dsn := cfg.DB.DSN(); dsn != "" {
		if err := datastore.RunMigrations(dsn, logger); err != nil {
			return nil, err
		}
		pool, err := pgxpool.New(ctx, dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		defer pool.Close()
		return datastore.NewRepository(pool, logger).LoadStore(ctx, cfg.DB.Store)
	}
	if cfg.Ingest.URL != "" {
		store := collection.NewStore("ingest")
		client := ingest.NewClient(cfg.Ingest.URL, collection.NewBuilder(store), logger)
		if err := client.Run(ctx); err != nil {
			return nil, err
		}
		return store, nil
	}
	return nil, fmt.Errorf("no data source configured: pass -data, or set db/ingest in %s", "config")
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	return zcfg.Build()
}
