package model

import "time"

const (
	AlertLevelLow      = "low"
	AlertLevelMedium   = "medium"
	AlertLevelHigh     = "high"
	AlertLevelCritical = "critical"
)

// Alert types mirror the metric that tripped the threshold.
const (
	AlertTypeExposure      = "exposure_limit"
	AlertTypeDailyLoss     = "daily_loss_limit"
	AlertTypeDrawdown      = "drawdown_limit"
	AlertTypeMarginUsage   = "margin_usage"
	AlertTypePositionCount = "position_count"
	AlertTypePositionSize  = "position_size"
	AlertTypeCorrelation   = "correlation"
	AlertTypeVolatility    = "volatility"
	AlertTypeEmergencyStop = "emergency_stop"
)

// RiskAlert records a limit threshold breach. Alerts resolve automatically
// when the metric drops back under the warning band, and are purged after
// their retention window.
type RiskAlert struct {
	ID         string     `gorm:"primaryKey;size:60" json:"id"`
	Level      string     `gorm:"size:20;not null;index" json:"level"`
	Type       string     `gorm:"size:50;not null;index" json:"type"`
	Message    string     `gorm:"size:512;not null" json:"message"`
	Value      float64    `json:"value"`
	Limit      float64    `json:"limit"`
	StrategyID *uint      `gorm:"index" json:"strategy_id,omitempty"`
	Symbol     string     `gorm:"size:50" json:"symbol,omitempty"`
	Resolved   bool       `gorm:"not null;default:false;index" json:"resolved"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

func (RiskAlert) TableName() string {
	return "risk_alerts"
}
