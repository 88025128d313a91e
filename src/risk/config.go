package risk

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	MaxTotalExposure     float64 `envconfig:"RISK_MAX_TOTAL_EXPOSURE" default:"50000"`
	MaxDailyLoss         float64 `envconfig:"RISK_MAX_DAILY_LOSS" default:"2000"`
	MaxPortfolioDrawdown float64 `envconfig:"RISK_MAX_PORTFOLIO_DRAWDOWN" default:"0.15"`
	MaxPositionRisk      float64 `envconfig:"RISK_MAX_POSITION_RISK" default:"0.02"`
	MaxCorrelationRisk   float64 `envconfig:"RISK_MAX_CORRELATION_RISK" default:"0.70"`
	MaxSinglePosition    float64 `envconfig:"RISK_MAX_SINGLE_POSITION" default:"0.10"`
	MinAccountBalance    float64 `envconfig:"RISK_MIN_ACCOUNT_BALANCE" default:"1000"`
	MaxLeverageGlobal    float64 `envconfig:"RISK_MAX_LEVERAGE_GLOBAL" default:"10"`
	MaxPositions         int     `envconfig:"RISK_MAX_POSITIONS" default:"20"`
	VolatilityThreshold  float64 `envconfig:"RISK_VOLATILITY_THRESHOLD" default:"0.05"`

	MonitorInterval      time.Duration `envconfig:"RISK_MONITOR_INTERVAL" default:"5s"`
	AlertCleanupInterval time.Duration `envconfig:"RISK_ALERT_CLEANUP_INTERVAL" default:"5m"`
	AlertRetention       time.Duration `envconfig:"RISK_ALERT_RETENTION" default:"24h"`
	StatsWindowDays      int           `envconfig:"RISK_STATS_WINDOW_DAYS" default:"30"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}

// GlobalLimits is the account-wide limit set every trade is checked against.
type GlobalLimits struct {
	MaxTotalExposure     float64
	MaxDailyLoss         float64
	MaxPortfolioDrawdown float64
	MaxPositionRisk      float64
	MaxCorrelationRisk   float64
	MaxSinglePosition    float64
	MinAccountBalance    float64
	MaxLeverageGlobal    float64
	MaxPositions         int
}

func (c Config) Limits() GlobalLimits {
	return GlobalLimits{
		MaxTotalExposure:     c.MaxTotalExposure,
		MaxDailyLoss:         c.MaxDailyLoss,
		MaxPortfolioDrawdown: c.MaxPortfolioDrawdown,
		MaxPositionRisk:      c.MaxPositionRisk,
		MaxCorrelationRisk:   c.MaxCorrelationRisk,
		MaxSinglePosition:    c.MaxSinglePosition,
		MinAccountBalance:    c.MinAccountBalance,
		MaxLeverageGlobal:    c.MaxLeverageGlobal,
		MaxPositions:         c.MaxPositions,
	}
}

// Per-strategy limit defaults, applied when a strategy does not override them.
const (
	DefaultMaxPositionSize = 1000.0
	DefaultMaxDailyLoss    = 500.0
	DefaultMaxDrawdown     = 0.20
	DefaultMaxLeverage     = 10.0
)
