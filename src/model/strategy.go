package model

import "time"

const (
	StrategyStatusInactive = "inactive"
	StrategyStatusActive   = "active"
	StrategyStatusPaused   = "paused"
	StrategyStatusError    = "error"
	StrategyStatusStopped  = "stopped"
)

// Strategy is a registered trading strategy together with its runtime state.
// Parameters feed the signal algorithm selected by Type; RiskLimits override
// the per-strategy defaults applied during trade validation.
type Strategy struct {
	ID              uint           `gorm:"primaryKey" json:"id"`
	Name            string         `gorm:"size:255;not null;uniqueIndex" json:"name"`
	Description     string         `gorm:"size:512" json:"description"`
	Type            string         `gorm:"size:50;not null" json:"type"`
	Symbol          string         `gorm:"size:50;not null;index" json:"symbol"`
	ConnectionID    uint           `gorm:"not null;index" json:"connection_id"`
	Status          string         `gorm:"size:20;not null;default:inactive" json:"status"`
	Parameters      map[string]any `gorm:"type:jsonb" json:"parameters,omitempty"`
	RiskLimits      map[string]any `gorm:"type:jsonb" json:"risk_limits,omitempty"`
	Leverage        float64        `gorm:"not null;default:1" json:"leverage"`
	MarginMode      string         `gorm:"size:20;not null;default:isolated" json:"margin_mode"`
	LastError       string         `gorm:"size:512" json:"last_error,omitempty"`
	LastSignalAt    *time.Time     `json:"last_signal_at,omitempty"`
	LastExecutionAt *time.Time     `json:"last_execution_at,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

func (Strategy) TableName() string {
	return "strategies"
}

// RiskLimit returns a numeric limit override, falling back to def when the
// strategy does not carry one.
func (s *Strategy) RiskLimit(key string, def float64) float64 {
	if s.RiskLimits == nil {
		return def
	}
	switch v := s.RiskLimits[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return def
	}
}
