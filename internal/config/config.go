// Package config handles application configuration.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/your-org/signal-tube/internal/tube"
)

// Config defines the structure for all application configuration.
type Config struct {
	App    AppConfig    `yaml:"app"`
	Learn  LearnConfig  `yaml:"learn"`
	Tube   TubeConfig   `yaml:"tube"`
	DB     DBConfig     `yaml:"db"`
	Ingest IngestConfig `yaml:"ingest"`
}

// AppConfig holds process-level settings.
type AppConfig struct {
	LogLevel string `yaml:"log_level"`
	// Seed makes training reproducible when non-zero.
	Seed int64 `yaml:"seed"`
}

// LearnConfig holds candidate generation and selection settings.
type LearnConfig struct {
	RetryNumber    int      `yaml:"retry_number"`
	KeepBestNumber int      `yaml:"keep_best_number"`
	SamplesPercent Percent  `yaml:"samples_percent"`
	MaxFeatures    int      `yaml:"max_features"`
	Variables      []string `yaml:"variables"`
	Factors        []string `yaml:"factors"`
}

// TubeConfig holds envelope calibration settings.
type TubeConfig struct {
	TubeThreshold Percent `yaml:"tube_threshold"`
}

// DBConfig holds the unit store connection settings. All fields can be
// overridden from the environment.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"-"` // Loaded from env
	Name     string `yaml:"name"`
	Store    string `yaml:"store"`
}

// IngestConfig holds the live ingestion settings.
type IngestConfig struct {
	URL string `yaml:"url"`
}

// DSN renders the database connection string, or "" when no host is
// configured.
func (c DBConfig) DSN() string {
	if c.Host == "" {
		return ""
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s", c.User, c.Password, c.Host, c.Port, c.Name)
}

// Params maps the configuration onto engine parameters.
func (c *Config) Params() tube.Params {
	return tube.Params{
		Learn: tube.LearnParams{
			RetryNumber:    c.Learn.RetryNumber,
			KeepBestNumber: c.Learn.KeepBestNumber,
			SamplesPercent: float64(c.Learn.SamplesPercent),
			MaxFeatures:    c.Learn.MaxFeatures,
		},
		Tube: tube.TubeParams{
			TubeThreshold: float64(c.Tube.TubeThreshold),
		},
	}
}

// LoadConfig loads configuration from the specified YAML file path and
// environment variables. Missing learn/tube settings fall back to the engine
// defaults.
func LoadConfig(configPath string) (*Config, error) {
	defaults := tube.DefaultParams()
	cfg := &Config{
		App: AppConfig{LogLevel: "info"},
		Learn: LearnConfig{
			RetryNumber:    defaults.Learn.RetryNumber,
			KeepBestNumber: defaults.Learn.KeepBestNumber,
			SamplesPercent: Percent(defaults.Learn.SamplesPercent),
			MaxFeatures:    defaults.Learn.MaxFeatures,
		},
		Tube: TubeConfig{TubeThreshold: Percent(defaults.Tube.TubeThreshold)},
		DB:   DBConfig{Port: "5432", Store: "default"},
	}

	file, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(file, cfg); err != nil {
		return nil, err
	}

	// Load sensitive data and overrides from environment variables
	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		cfg.App.LogLevel = logLevel
	}
	if dbHost := os.Getenv("DB_HOST"); dbHost != "" {
		cfg.DB.Host = dbHost
	}
	if dbPort := os.Getenv("DB_PORT"); dbPort != "" {
		cfg.DB.Port = dbPort
	}
	if dbUser := os.Getenv("DB_USER"); dbUser != "" {
		cfg.DB.User = dbUser
	}
	if dbPassword := os.Getenv("DB_PASSWORD"); dbPassword != "" {
		cfg.DB.Password = dbPassword
	}
	if dbName := os.Getenv("DB_NAME"); dbName != "" {
		cfg.DB.Name = dbName
	}

	return cfg, nil
}
