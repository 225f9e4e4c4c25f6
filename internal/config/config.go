package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for tradesim.
type Config struct {
	Storage    Storage       `yaml:"storage"`
	Server     Server        `yaml:"server"`
	Alpaca     Alpaca        `yaml:"alpaca"`
	Logging    Logging       `yaml:"logging"`
	Fetch      FetchConfig   `yaml:"fetch"`
	Simulation Simulation    `yaml:"simulation"`
	Backtest   Backtest      `yaml:"backtest"`
	Trading    TradingConfig `yaml:"trading"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
}

// Server holds network listener configuration.
type Server struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	GRPCPort int    `yaml:"grpc_port"`
}

// Alpaca holds credentials and endpoints for the Alpaca APIs.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	BaseURL   string `yaml:"base_url"`
	DataURL   string `yaml:"data_url"`
	Feed      string `yaml:"feed"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// FetchConfig controls bar downloads from Alpaca.
type FetchConfig struct {
	StartDate       string   `yaml:"start_date"`
	Symbols         []string `yaml:"symbols"`
	BatchSize       int      `yaml:"batch_size"`
	RateLimitPerMin int      `yaml:"rate_limit_per_min"`
	MaxAttempts     int      `yaml:"max_attempts"`
}

// Simulation configures the simulated broker of every run.
type Simulation struct {
	Deposit       float64            `yaml:"deposit"`
	BaseCurrency  string             `yaml:"base_currency"`
	AccountModel  string             `yaml:"account_model"` // cash | margin
	Leverage      float64            `yaml:"leverage"`
	Maintenance   float64            `yaml:"maintenance"`
	MinimumEquity float64            `yaml:"minimum_equity"`
	FeeBips       float64            `yaml:"fee_bips"`
	FeeMinimum    float64            `yaml:"fee_minimum"`
	SpreadBips    float64            `yaml:"spread_bips"`
	PriceType     string             `yaml:"price_type"`
	Participation float64            `yaml:"participation"`
	Rates         map[string]float64 `yaml:"rates"` // currency -> value in a common pivot
}

// Backtest selects the data and strategies to run.
type Backtest struct {
	Market      string      `yaml:"market"`
	Symbols     []string    `yaml:"symbols"`
	Start       string      `yaml:"start"`
	End         string      `yaml:"end"`
	MaxParallel int         `yaml:"max_parallel"`
	Sequential  bool        `yaml:"sequential"`
	ExportFills bool        `yaml:"export_fills"`
	Runs        []RunConfig `yaml:"runs"`
}

// RunConfig names one strategy run.
type RunConfig struct {
	Strategy string             `yaml:"strategy"`
	Params   map[string]float64 `yaml:"params"`
}

// TradingConfig defines risk and order-sizing parameters.
type TradingConfig struct {
	MaxPositionPct  float64 `yaml:"max_position_pct"`
	MaxDailyLossPct float64 `yaml:"max_daily_loss_pct"`
	OrderPct        float64 `yaml:"order_pct"`
	TakeProfitPct   float64 `yaml:"take_profit_pct"`
	StopLossPct     float64 `yaml:"stop_loss_pct"`
	AllowShort      bool    `yaml:"allow_short"`
	QtyPrecision    int32   `yaml:"qty_precision"`
	TIF             string  `yaml:"tif"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Default returns the configuration used for unset fields.
func Default() *Config {
	return &Config{
		Storage: Storage{DataDir: "data", SQLitePath: "data/tradesim.db"},
		Server:  Server{Host: "127.0.0.1", Port: 8080, GRPCPort: 9090},
		Alpaca:  Alpaca{Feed: "sip"},
		Logging: Logging{Level: "info", Format: "json"},
		Fetch:   FetchConfig{BatchSize: 100, RateLimitPerMin: 200, MaxAttempts: 3},
		Simulation: Simulation{
			Deposit:      1_000_000,
			BaseCurrency: "USD",
			AccountModel: "cash",
			Leverage:     2,
			Maintenance:  0.3,
			PriceType:    "default",
		},
		Backtest: Backtest{Market: "us"},
		Trading:  TradingConfig{OrderPct: 0.1, TIF: "gtc"},
	}
}

// Load reads the YAML configuration file at the given path over Default,
// applies environment variable overrides and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	s := c.Simulation
	switch s.AccountModel {
	case "cash", "margin":
	default:
		return fmt.Errorf("simulation.account_model %q: want cash or margin", s.AccountModel)
	}
	if s.Deposit < 0 || s.FeeBips < 0 || s.FeeMinimum < 0 || s.SpreadBips < 0 {
		return fmt.Errorf("simulation: deposit, fees and spread must not be negative")
	}
	if s.Participation < 0 || s.Participation > 1 {
		return fmt.Errorf("simulation.participation %v: want a fraction in [0, 1]", s.Participation)
	}
	if s.AccountModel == "margin" && s.Leverage <= 0 {
		return fmt.Errorf("simulation.leverage %v: must be positive", s.Leverage)
	}
	t := c.Trading
	if t.OrderPct < 0 || t.OrderPct > 1 {
		return fmt.Errorf("trading.order_pct %v: want a fraction in [0, 1]", t.OrderPct)
	}
	if t.MaxPositionPct < 0 || t.MaxDailyLossPct < 0 || t.TakeProfitPct < 0 || t.StopLossPct < 0 {
		return fmt.Errorf("trading: percentages must not be negative")
	}
	if t.StopLossPct >= 1 {
		return fmt.Errorf("trading.stop_loss_pct %v: must be below 1", t.StopLossPct)
	}
	if c.Backtest.MaxParallel < 0 {
		return fmt.Errorf("backtest.max_parallel %d: must not be negative", c.Backtest.MaxParallel)
	}
	return nil
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("TRADESIM_DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}

	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}

	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Alpaca.APIKey = v
	}

	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Alpaca.APISecret = v
	}

	if v := os.Getenv("ALPACA_BASE_URL"); v != "" {
		cfg.Alpaca.BaseURL = v
	}

	if v := os.Getenv("ALPACA_DATA_URL"); v != "" {
		cfg.Alpaca.DataURL = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}

	if v, err := strconv.ParseBool(os.Getenv("TRADESIM_SEQUENTIAL")); err == nil {
		cfg.Backtest.Sequential = v
	}
	if v, err := strconv.Atoi(os.Getenv("TRADESIM_MAX_PARALLEL")); err == nil {
		cfg.Backtest.MaxParallel = v
	}

	// Standard Alpaca env vars take precedence.
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}
