// Package config loads service configuration from an optional YAML file,
// overridden by environment variables for deployment-only knobs.
package config

import (
	"flag"
	"fmt"
	"os"

	"github.com/caarlos0/env/v10"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config is the resolved service configuration.
type Config struct {
	Listen          string
	DataDir         string
	Companies       map[string]string
	StartingBalance decimal.Decimal
	FluctuationSpan float64
	ConflictRetries int
	Backend         string
	PostgresDSN     string
	KafkaBrokers    []string
	KafkaTopic      string
	JournalDir      string
}

type fileConfig struct {
	Listen             string            `yaml:"listen"`
	DataDir            string            `yaml:"data_dir"`
	Companies          map[string]string `yaml:"companies"`
	StartingBalanceStr string            `yaml:"starting_balance"`
	FluctuationSpan    *float64          `yaml:"fluctuation_span"`
	ConflictRetries    *int              `yaml:"conflict_retries"`
	Backend            string            `yaml:"backend"`
	JournalDir         string            `yaml:"journal_dir"`
	KafkaTopic         string            `yaml:"kafka_topic"`
}

type envOverlay struct {
	Listen       string   `env:"TRADESIM_LISTEN"`
	Backend      string   `env:"TRADESIM_BACKEND"`
	PostgresDSN  string   `env:"DATABASE_URL"`
	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic   string   `env:"KAFKA_TOPIC"`
}

// defaultCompanies mirrors the stock universe shipped with the simulator.
var defaultCompanies = map[string]string{
	"Apple":     "Apple.csv",
	"Google":    "Google.csv",
	"Amazon":    "Amazon.csv",
	"Netflix":   "Netflix.csv",
	"Facebook":  "Facebook.csv",
	"Microsoft": "Microsoft.csv",
	"Tesla":     "Tesla.csv",
	"Uber":      "Uber.csv",
	"Walmart":   "Walmart.csv",
	"Zoom":      "Zoom.csv",
}

// Get resolves configuration: defaults, then the YAML file named by the
// -config flag (if any), then environment variables.
func Get() (Config, error) {
	path := flag.String("config", "", "path to yaml config")
	flag.Parse()

	return Load(*path)
}

// Load is Get without flag parsing, for tests and embedding.
func Load(path string) (Config, error) {
	cfg := Config{
		Listen:          ":8080",
		DataDir:         "./data",
		Companies:       defaultCompanies,
		StartingBalance: decimal.NewFromInt(100000),
		FluctuationSpan: 0.03,
		ConflictRetries: 3,
		Backend:         "memory",
		JournalDir:      "./wal/events",
		KafkaTopic:      "tradesim.events",
	}

	if path != "" {
		if err := applyFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, validate(cfg)
}

func applyFile(cfg *Config, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	if fc.Listen != "" {
		cfg.Listen = fc.Listen
	}
	if fc.DataDir != "" {
		cfg.DataDir = fc.DataDir
	}
	if len(fc.Companies) > 0 {
		cfg.Companies = fc.Companies
	}
	if fc.StartingBalanceStr != "" {
		balance, err := decimal.NewFromString(fc.StartingBalanceStr)
		if err != nil {
			return fmt.Errorf("incorrect 'starting_balance' param in yaml config: %w", err)
		}
		cfg.StartingBalance = balance
	}
	if fc.FluctuationSpan != nil {
		cfg.FluctuationSpan = *fc.FluctuationSpan
	}
	if fc.ConflictRetries != nil {
		cfg.ConflictRetries = *fc.ConflictRetries
	}
	if fc.Backend != "" {
		cfg.Backend = fc.Backend
	}
	if fc.JournalDir != "" {
		cfg.JournalDir = fc.JournalDir
	}
	if fc.KafkaTopic != "" {
		cfg.KafkaTopic = fc.KafkaTopic
	}
	return nil
}

func applyEnv(cfg *Config) error {
	var overlay envOverlay
	if err := env.Parse(&overlay); err != nil {
		return err
	}

	if overlay.Listen != "" {
		cfg.Listen = overlay.Listen
	}
	if overlay.Backend != "" {
		cfg.Backend = overlay.Backend
	}
	if overlay.PostgresDSN != "" {
		cfg.PostgresDSN = overlay.PostgresDSN
	}
	if len(overlay.KafkaBrokers) > 0 {
		cfg.KafkaBrokers = overlay.KafkaBrokers
	}
	if overlay.KafkaTopic != "" {
		cfg.KafkaTopic = overlay.KafkaTopic
	}
	return nil
}

func validate(cfg Config) error {
	if cfg.StartingBalance.IsNegative() {
		return fmt.Errorf("starting_balance must not be negative, got %s", cfg.StartingBalance)
	}
	if cfg.FluctuationSpan < 0 || cfg.FluctuationSpan >= 1 {
		return fmt.Errorf("fluctuation_span must be in [0, 1), got %v", cfg.FluctuationSpan)
	}
	if cfg.ConflictRetries < 0 {
		return fmt.Errorf("conflict_retries must not be negative, got %d", cfg.ConflictRetries)
	}
	switch cfg.Backend {
	case "memory":
	case "postgres":
		if cfg.PostgresDSN == "" {
			return fmt.Errorf("postgres backend requires DATABASE_URL")
		}
	default:
		return fmt.Errorf("unsupported backend %q (use memory or postgres)", cfg.Backend)
	}
	if len(cfg.Companies) == 0 {
		return fmt.Errorf("at least one company must be configured")
	}
	return nil
}
