package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the single configuration structure for the agent. All
// defaults are fixed here at construction time; no component falls back
// to its own per-call defaults.
type Config struct {
	Mode         string        `yaml:"mode" default:"paper" validate:"oneof=paper live"`
	Symbols      []string      `yaml:"symbols" validate:"min=1,dive,required"`
	PollInterval time.Duration `yaml:"poll_interval" default:"30s" validate:"gt=0"`
	PaperEquity  float64       `yaml:"paper_equity" default:"1000" validate:"gt=0"`

	Risk    RiskConfig    `yaml:"risk"`
	Data    DataConfig    `yaml:"data"`
	Audit   AuditConfig   `yaml:"audit"`
	Monitor MonitorConfig `yaml:"monitor"`
}

// RiskConfig holds the numeric thresholds that bound financial loss.
type RiskConfig struct {
	MaxEquityUsagePct float64 `yaml:"max_equity_usage_pct" default:"0.30" validate:"gt=0,lte=1"`
	SwingTargetPct    float64 `yaml:"swing_target_pct" default:"0.25" validate:"gt=0,lte=1"`
	ScalpTargetPct    float64 `yaml:"scalp_target_pct" default:"0.15" validate:"gt=0,lte=1"`
	MinAllocationUSD  float64 `yaml:"min_allocation_usd" default:"3.0" validate:"gte=0"`
	MinNotionalUSD    float64 `yaml:"min_notional_usd" default:"20.0" validate:"gte=0"`
	MaxLeverage       float64 `yaml:"max_leverage" default:"10" validate:"gte=1"`
}

// DataConfig configures the market-data boundary.
type DataConfig struct {
	BaseURL        string        `yaml:"base_url" default:"https://fapi.binance.com"`
	WSURL          string        `yaml:"ws_url" default:"wss://fstream.binance.com/ws"`
	WSEnabled      bool          `yaml:"ws_enabled"`
	RequestTimeout time.Duration `yaml:"request_timeout" default:"10s" validate:"gt=0"`
	RPS            float64       `yaml:"rps" default:"5" validate:"gt=0"`
	Burst          int           `yaml:"burst" default:"10" validate:"gte=1"`
}

// AuditConfig configures the cycle audit trail. PostgresDSN is optional;
// when empty only the JSONL sink is active.
type AuditConfig struct {
	Path        string `yaml:"path" default:"logs/audit.jsonl"`
	PostgresDSN string `yaml:"postgres_dsn"`
}

// MonitorConfig configures the /health and /metrics HTTP server.
type MonitorConfig struct {
	Addr string `yaml:"addr" default:":8090"`
}

// Load resolves configuration once at startup: .env file (if present),
// built-in defaults, the YAML file, then environment overrides, then
// validation. Returns an error rather than a partially valid config.
func Load(path string) (*Config, error) {
	// Missing .env is normal outside development.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("failed to apply config defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every threshold once; components trust the config
// afterwards.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("QUANTGATE_MODE"); v != "" {
		cfg.Mode = v
	}
	if v := os.Getenv("QUANTGATE_AUDIT_PATH"); v != "" {
		cfg.Audit.Path = v
	}
	if v := os.Getenv("QUANTGATE_AUDIT_POSTGRES_DSN"); v != "" {
		cfg.Audit.PostgresDSN = v
	}
	if v := os.Getenv("QUANTGATE_DATA_BASE_URL"); v != "" {
		cfg.Data.BaseURL = v
	}
	if v := os.Getenv("QUANTGATE_PAPER_EQUITY"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.PaperEquity = f
		}
	}
}
