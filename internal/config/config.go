// Package config loads the decision core's configuration with Viper,
// mirroring the teacher's internal/config/config.go: a single typed
// struct, mapstructure tags, environment overrides, and a sync.Once
// singleton for callers that don't want to thread a *Config everywhere.
package config

import (
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	coreerrors "github.com/auroratrading/core/pkg/errors"
)

// Config is the process-wide configuration, loaded once at startup.
type Config struct {
	Env string `mapstructure:"env"`

	Broker    BrokerConfig    `mapstructure:"broker"`
	Analyst   AnalystConfig   `mapstructure:"analyst"`
	Risk      RiskConfig      `mapstructure:"risk"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Database  DatabaseConfig  `mapstructure:"database"`
	API       APIConfig       `mapstructure:"api"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

type BrokerConfig struct {
	BaseURL    string `mapstructure:"base_url"`
	DataURL    string `mapstructure:"data_url"`
	APIKey     string `mapstructure:"api_key"`
	APISecret  string `mapstructure:"api_secret"`
	Paper      bool   `mapstructure:"paper"`
	TimeoutSec int    `mapstructure:"timeout_seconds"`
}

type AnalystConfig struct {
	APIKey           string `mapstructure:"api_key"`
	BaseURL          string `mapstructure:"base_url"`
	Model            string `mapstructure:"model"`
	MaxDailyRequests int    `mapstructure:"max_daily_requests"`
	TimeoutSec       int    `mapstructure:"timeout_seconds"`
}

// RiskConfig mirrors the thresholds in spec.md §4.5, clamped at read time
// per the design notes (never trusted bare from the config file).
type RiskConfig struct {
	MaxPortfolioExposurePct float64 `mapstructure:"max_portfolio_exposure_pct"`
	MaxSingleStockPct       float64 `mapstructure:"max_single_stock_pct"`
	MaxOpenPositions        int     `mapstructure:"max_open_positions"`
	MinSignalConfidence     float64 `mapstructure:"min_signal_confidence"`
	VIXHaltThreshold        float64 `mapstructure:"vix_halt_threshold"`
	VIXHalveThreshold       float64 `mapstructure:"vix_halve_threshold"`
	DailyLossOrangePct      float64 `mapstructure:"daily_loss_orange_pct"`
	MaxWeeklyLossPct        float64 `mapstructure:"max_weekly_loss_pct"`
	MaxMonthlyLossPct       float64 `mapstructure:"max_monthly_loss_pct"`
	DrawdownRedPct          float64 `mapstructure:"drawdown_red_pct"`
	MaxTradesPerDay         int     `mapstructure:"max_trades_per_day"`
}

type SchedulerConfig struct {
	CycleIntervalSeconds int      `mapstructure:"cycle_interval_seconds"`
	Timezone             string   `mapstructure:"timezone"`
	Symbols              []string `mapstructure:"symbols"`
	DefaultAllocationPct float64  `mapstructure:"default_allocation_pct"`
	TradingStartHour     int      `mapstructure:"trading_start_hour"`
	TradingEndHour       int      `mapstructure:"trading_end_hour"`
}

type DatabaseConfig struct {
	DSN          string `mapstructure:"dsn"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

type APIConfig struct {
	ListenAddr    string `mapstructure:"listen_addr"`
	JWTSecret     string `mapstructure:"jwt_secret"`
	RateLimitRPS  int    `mapstructure:"rate_limit_rps"`
	RateLimitBurst int   `mapstructure:"rate_limit_burst"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

var (
	once     sync.Once
	instance *Config
	loadErr  error
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "development")
	v.SetDefault("broker.timeout_seconds", 30)
	v.SetDefault("broker.paper", true)
	v.SetDefault("analyst.model", "gpt-4o-mini")
	v.SetDefault("analyst.max_daily_requests", 200)
	v.SetDefault("analyst.timeout_seconds", 30)
	v.SetDefault("risk.max_portfolio_exposure_pct", 80.0)
	v.SetDefault("risk.max_single_stock_pct", 15.0)
	v.SetDefault("risk.max_open_positions", 10)
	v.SetDefault("risk.min_signal_confidence", 0.60)
	v.SetDefault("risk.vix_halt_threshold", 35.0)
	v.SetDefault("risk.vix_halve_threshold", 25.0)
	v.SetDefault("risk.daily_loss_orange_pct", 5.0)
	v.SetDefault("risk.max_weekly_loss_pct", 10.0)
	v.SetDefault("risk.max_monthly_loss_pct", 15.0)
	v.SetDefault("risk.drawdown_red_pct", 15.0)
	v.SetDefault("risk.max_trades_per_day", 20)
	v.SetDefault("scheduler.cycle_interval_seconds", 300)
	v.SetDefault("scheduler.timezone", "America/New_York")
	v.SetDefault("scheduler.default_allocation_pct", 5.0)
	v.SetDefault("scheduler.trading_start_hour", 9)
	v.SetDefault("scheduler.trading_end_hour", 16)
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("api.listen_addr", ":8080")
	v.SetDefault("api.rate_limit_rps", 5)
	v.SetDefault("api.rate_limit_burst", 10)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.json", true)
}

// Load reads configuration from (optionally) a file at path, then overlays
// environment variables prefixed AURORA_ (e.g. AURORA_BROKER_API_KEY).
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("AURORA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, coreerrors.New(coreerrors.KindConfig, "config", "read config file", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, coreerrors.New(coreerrors.KindConfig, "config", "unmarshal config", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, coreerrors.New(coreerrors.KindConfig, "config", "validate config", err)
	}

	return &cfg, nil
}

// MustLoadOnce loads the singleton config exactly once per process and
// reuses it on subsequent calls, matching the teacher's sync.Once pattern.
func MustLoadOnce(path string) *Config {
	once.Do(func() {
		instance, loadErr = Load(path)
	})
	if loadErr != nil {
		panic(loadErr)
	}
	return instance
}

// Validate rejects a missing broker URL and out-of-range exposure,
// single-stock, confidence and cycle-interval settings. It does not check
// the loss, drawdown or count limits; internal/risk clamps those to its
// hard caps when it reads them.
func (c *Config) Validate() error {
	if c.Broker.BaseURL == "" {
		return fmt.Errorf("broker.base_url is required")
	}
	if c.Risk.MaxPortfolioExposurePct <= 0 || c.Risk.MaxPortfolioExposurePct > 100 {
		return fmt.Errorf("risk.max_portfolio_exposure_pct must be in (0,100]")
	}
	if c.Risk.MaxSingleStockPct <= 0 || c.Risk.MaxSingleStockPct > c.Risk.MaxPortfolioExposurePct {
		return fmt.Errorf("risk.max_single_stock_pct must be in (0, max_portfolio_exposure_pct]")
	}
	if c.Risk.MinSignalConfidence < 0 || c.Risk.MinSignalConfidence > 1 {
		return fmt.Errorf("risk.min_signal_confidence must be in [0,1]")
	}
	if c.Scheduler.CycleIntervalSeconds <= 0 {
		return fmt.Errorf("scheduler.cycle_interval_seconds must be positive")
	}
	return nil
}

// NewLogger builds the process zap.Logger the way the teacher's
// cmd/tradsys/main.go does: production config for json+info/warn+,
// development config otherwise.
func NewLogger(cfg LoggingConfig) (*zap.Logger, error) {
	var zcfg zap.Config
	if cfg.JSON {
		zcfg = zap.NewProductionConfig()
	} else {
		zcfg = zap.NewDevelopmentConfig()
	}
	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	zcfg.Level = level
	return zcfg.Build()
}
