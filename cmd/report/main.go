package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/your-org/signal-tube/internal/collection"
	"github.com/your-org/signal-tube/internal/config"
	"github.com/your-org/signal-tube/internal/csvwriter"
	"github.com/your-org/signal-tube/internal/profile"
	"github.com/your-org/signal-tube/internal/report"
	"github.com/your-org/signal-tube/internal/tube"
)

const (
	hurstMinLag = 2
	hurstMaxLag = 20
)

func main() {
	var configPath, dataDir, modelPath, outPath string
	flag.StringVar(&configPath, "config", "config/app_config.yaml", "path to config file")
	flag.StringVar(&dataDir, "data", "", "directory of unit CSV files")
	flag.StringVar(&modelPath, "model", "", "trained model artifact; when empty a fresh model is fitted")
	flag.StringVar(&outPath, "out", "coverage.csv", "path for the coverage CSV")
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

	if dataDir == "" {
		logger.Fatal("No data directory given; pass -data")
	}
	store, err := collection.LoadCSVDir(dataDir, logger)
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

	if modelPath != "" {
		payload, err := os.ReadFile(modelPath)
		if err != nil {
			logger.Fatal("Failed to read model artifact", zap.Error(err))
		}
		var artifact tube.Artifact
		if err := json.Unmarshal(payload, &artifact); err != nil {
			logger.Fatal("Failed to decode model artifact", zap.Error(err))
		}
		model.Restore(&artifact)
		logger.Info("Model restored", zap.String("fitID", model.FitID()))
	} else if err := model.Fit(cfg.Params(), tube.NewLogObserver(logger)); err != nil {
		logger.Fatal("Training failed", zap.Error(err))
	}

	coverages, summaries, err := report.Evaluate(model, store, logger)
	if err != nil {
		logger.Fatal("Evaluation failed", zap.Error(err))
	}

	writer, err := csvwriter.NewWriter(outPath, logger)
	if err != nil {
		logger.Fatal("Failed to open output", zap.Error(err))
	}
	defer writer.Close()
	if err := report.WriteCSV(writer, coverages); err != nil {
		logger.Fatal("Failed to write coverage CSV", zap.Error(err))
	}
	logger.Info("Coverage report written",
		zap.String("path", writer.Path()),
		zap.Int("units", store.Len()),
		zap.Int("records", len(coverages)))

	for _, s := range summaries {
		fmt.Printf("%s: coverage %s over %d rows (mean width %.4g, residual p95 %.4g)\n",
			s.Variable, s.Coverage, s.Rows, s.MeanWidth, s.ExcessP95)
	}

	if store.Len() > 0 {
		profiles, err := profile.Describe(store.Unit(0), hurstMinLag, hurstMaxLag)
		if err != nil {
			logger.Fatal("Failed to profile first unit", zap.Error(err))
		}
		for _, p := range profiles {
			fields := []zap.Field{
				zap.String("column", p.Column),
				zap.Int("rows", p.Rows),
				zap.Float64("mean", p.Mean),
				zap.Float64("stddev", p.StdDev),
				zap.Float64("volatility", p.Volatility),
			}
			if p.HurstOK {
				fields = append(fields, zap.Float64("hurst", p.Hurst))
			}
			logger.Info("Signal profile", fields...)
		}
	}
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
