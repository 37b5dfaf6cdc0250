package config

import (
	"fmt"
	"math"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config represents application configuration
type Config struct {
	Regime     RegimeConfig     `envconfig:"REGIME"`
	Risk       RiskConfig       `envconfig:"RISK"`
	Ensemble   EnsembleConfig   `envconfig:"ENSEMBLE"`
	Backtest   BacktestConfig   `envconfig:"BACKTEST"`
	State      StateConfig      `envconfig:"STATE"`
	Database   DatabaseConfig   `envconfig:"DB"`
	ClickHouse ClickHouseConfig `envconfig:"CLICKHOUSE"`
	Redis      RedisConfig      `envconfig:"REDIS"`
	Logging    LoggingConfig    `envconfig:"LOG"`
	Service    ServiceConfig    `envconfig:"SERVICE"`
}

// RegimeConfig represents regime classifier thresholds
type RegimeConfig struct {
	WindowShort  int     `envconfig:"WINDOW_SHORT" default:"50"`
	WindowLong   int     `envconfig:"WINDOW_LONG" default:"200"`
	ADXPeriod    int     `envconfig:"ADX_PERIOD" default:"14"`
	ADXThreshold float64 `envconfig:"ADX_THRESHOLD" default:"20"`
	VIXThreshold float64 `envconfig:"VIX_THRESHOLD" default:"25"`
}

// RiskConfig represents risk guard limits.
// Loss limits are negative percentages (-5 means a 5% loss).
type RiskConfig struct {
	InitialPortfolioValue float64 `envconfig:"INITIAL_PORTFOLIO_VALUE" default:"1000000"`
	DailyLossLimitPct     float64 `envconfig:"DAILY_LOSS_LIMIT_PCT" default:"-5"`
	MaxDrawdownLimitPct   float64 `envconfig:"MAX_DRAWDOWN_LIMIT_PCT" default:"-20"`
	MaxPositionSizePct    float64 `envconfig:"MAX_POSITION_SIZE_PCT" default:"20"`
	MaxVIX                float64 `envconfig:"MAX_VIX" default:"30"`
	BlackSwanSigma        float64 `envconfig:"BLACK_SWAN_SIGMA" default:"2.5"`
	Timezone              string  `envconfig:"TIMEZONE" default:"Local"`
}

// EnsembleConfig represents forecaster weights and limits
type EnsembleConfig struct {
	MomentumWeight      float64       `envconfig:"MOMENTUM_WEIGHT" default:"0.35"`
	LinearTrendWeight   float64       `envconfig:"LINEAR_TREND_WEIGHT" default:"0.30"`
	EMADriftWeight      float64       `envconfig:"EMA_DRIFT_WEIGHT" default:"0.20"`
	MeanReversionWeight float64       `envconfig:"MEAN_REVERSION_WEIGHT" default:"0.15"`
	ModelTimeout        time.Duration `envconfig:"MODEL_TIMEOUT" default:"0s"`
}

// BacktestConfig represents walk-forward defaults
type BacktestConfig struct {
	Horizon      int           `envconfig:"HORIZON" default:"5"`
	MinHistory   int           `envconfig:"MIN_HISTORY" default:"50"`
	Step         time.Duration `envconfig:"STEP" default:"168h"`
	Concurrency  int           `envconfig:"CONCURRENCY" default:"1"`
	AnchorSunday bool          `envconfig:"ANCHOR_SUNDAY" default:"true"` // first decision date moves to a Sunday
}

// StateConfig selects where risk guard state lives
type StateConfig struct {
	Backend string `envconfig:"BACKEND" default:"file"` // file, postgres, redis, memory
	Path    string `envconfig:"PATH" default:"data/risk_guard_state.json"`
	GuardID string `envconfig:"GUARD_ID" default:"default"`
}

// DatabaseConfig represents database connection parameters
type DatabaseConfig struct {
	Host           string `envconfig:"HOST" default:"localhost"`
	Port           int    `envconfig:"PORT" default:"5432"`
	Name           string `envconfig:"NAME" default:"trader"`
	User           string `envconfig:"USER" default:"trader"`
	Password       string `envconfig:"PASSWORD" default:""`
	SSLMode        string `envconfig:"SSLMODE" default:"disable"`
	MigrationsPath string `envconfig:"MIGRATIONS_PATH" default:"migrations"`
}

// ClickHouseConfig represents ClickHouse connection parameters
type ClickHouseConfig struct {
	Enabled  bool   `envconfig:"ENABLED" default:"false"`
	Host     string `envconfig:"HOST" default:"localhost"`
	Port     int    `envconfig:"PORT" default:"9000"`
	Database string `envconfig:"DATABASE" default:"trader"`
	User     string `envconfig:"USER" default:"default"`
	Password string `envconfig:"PASSWORD" default:""`
}

// RedisConfig represents Redis connection parameters
type RedisConfig struct {
	Host     string        `envconfig:"HOST" default:"localhost"`
	Port     int           `envconfig:"PORT" default:"6379"`
	Password string        `envconfig:"PASSWORD" default:""`
	DB       int           `envconfig:"DB" default:"0"`
	LockTTL  time.Duration `envconfig:"LOCK_TTL" default:"5s"`
	UseLock  bool          `envconfig:"USE_LOCK" default:"false"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level string `envconfig:"LEVEL" default:"info"`
	File  string `envconfig:"FILE" default:""`
}

// ServiceConfig represents the long-running decision service
type ServiceConfig struct {
	DecisionInterval time.Duration `envconfig:"DECISION_INTERVAL" default:"1h"`
	HealthPort       string        `envconfig:"HEALTH_PORT" default:"8080"`
	ShutdownTimeout  time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Default returns configuration populated with defaults only
func Default() *Config {
	return &Config{
		Regime: RegimeConfig{
			WindowShort:  50,
			WindowLong:   200,
			ADXPeriod:    14,
			ADXThreshold: 20,
			VIXThreshold: 25,
		},
		Risk: RiskConfig{
			InitialPortfolioValue: 1_000_000,
			DailyLossLimitPct:     -5,
			MaxDrawdownLimitPct:   -20,
			MaxPositionSizePct:    20,
			MaxVIX:                30,
			BlackSwanSigma:        2.5,
			Timezone:              "Local",
		},
		Ensemble: EnsembleConfig{
			MomentumWeight:      0.35,
			LinearTrendWeight:   0.30,
			EMADriftWeight:      0.20,
			MeanReversionWeight: 0.15,
		},
		Backtest: BacktestConfig{
			Horizon:     5,
			MinHistory:  50,
			Step:         7 * 24 * time.Hour,
			Concurrency:  1,
			AnchorSunday: true,
		},
		State: StateConfig{
			Backend: "file",
			Path:    "data/risk_guard_state.json",
			GuardID: "default",
		},
		Logging: LoggingConfig{Level: "info"},
		Service: ServiceConfig{
			DecisionInterval: time.Hour,
			HealthPort:       "8080",
			ShutdownTimeout:  10 * time.Second,
		},
	}
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if err := c.Regime.Validate(); err != nil {
		return err
	}
	if err := c.Risk.Validate(); err != nil {
		return err
	}

	weights := []float64{
		c.Ensemble.MomentumWeight,
		c.Ensemble.LinearTrendWeight,
		c.Ensemble.EMADriftWeight,
		c.Ensemble.MeanReversionWeight,
	}
	total := 0.0
	for _, w := range weights {
		if w < 0 || math.IsNaN(w) {
			return fmt.Errorf("ensemble weights must be non-negative")
		}
		total += w
	}
	if total <= 0 {
		return fmt.Errorf("at least one ensemble weight must be positive")
	}
	if c.Ensemble.ModelTimeout < 0 {
		return fmt.Errorf("ensemble model timeout must not be negative")
	}

	if c.Backtest.Horizon < 1 {
		return fmt.Errorf("backtest horizon must be at least 1")
	}
	if c.Backtest.MinHistory < 1 {
		return fmt.Errorf("backtest min_history must be at least 1")
	}
	if c.Backtest.Step <= 0 {
		return fmt.Errorf("backtest step must be positive")
	}

	switch c.State.Backend {
	case "file":
		if c.State.Path == "" {
			return fmt.Errorf("state path is required for file backend")
		}
	case "postgres", "redis", "memory":
	default:
		return fmt.Errorf("unknown state backend: %q", c.State.Backend)
	}
	if c.State.GuardID == "" {
		return fmt.Errorf("state guard_id is required")
	}
	if c.Service.DecisionInterval <= 0 {
		return fmt.Errorf("service decision_interval must be positive")
	}

	return nil
}

// Validate checks regime thresholds
func (c *RegimeConfig) Validate() error {
	if c.WindowShort < 1 || c.WindowLong < 1 {
		return fmt.Errorf("regime windows must be positive")
	}
	if c.WindowShort >= c.WindowLong {
		return fmt.Errorf("regime window_short (%d) must be below window_long (%d)", c.WindowShort, c.WindowLong)
	}
	if c.ADXPeriod < 1 {
		return fmt.Errorf("regime adx_period must be positive")
	}
	return nil
}

// Validate checks risk limits
func (c *RiskConfig) Validate() error {
	if c.InitialPortfolioValue <= 0 {
		return fmt.Errorf("initial_portfolio_value must be positive")
	}
	if c.DailyLossLimitPct >= 0 {
		return fmt.Errorf("daily_loss_limit_pct must be negative, got %.2f", c.DailyLossLimitPct)
	}
	if c.MaxDrawdownLimitPct >= 0 {
		return fmt.Errorf("max_drawdown_limit_pct must be negative, got %.2f", c.MaxDrawdownLimitPct)
	}
	if c.MaxPositionSizePct <= 0 || c.MaxPositionSizePct > 100 {
		return fmt.Errorf("max_position_size_pct must be between 0 and 100")
	}
	if c.MaxVIX <= 0 {
		return fmt.Errorf("max_vix must be positive")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves the timezone used for daily resets
func (c *RiskConfig) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid risk timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// GetDSN returns PostgreSQL connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// GetDSN returns ClickHouse connection string
func (c *ClickHouseConfig) GetDSN() string {
	return fmt.Sprintf(
		"clickhouse://%s:%s@%s:%d/%s",
		c.User, c.Password, c.Host, c.Port, c.Database,
	)
}

// Addr returns host:port for Redis
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
