package model

import "time"

const (
	PositionSideLong  = "long"
	PositionSideShort = "short"

	PositionStatusOpen   = "open"
	PositionStatusClosed = "closed"
)

// Position is the locally cached view of an exchange position. ID is derived
// from the connection and symbol ("pos_<connection>_<symbol>") so repeated
// syncs upsert the same row.
type Position struct {
	ID               string     `gorm:"primaryKey;size:120" json:"id"`
	ConnectionID     uint       `gorm:"not null;index" json:"connection_id"`
	Symbol           string     `gorm:"size:50;not null;index" json:"symbol"`
	Side             string     `gorm:"size:10;not null" json:"side"`
	Size             float64    `gorm:"not null" json:"size"`
	EntryPrice       float64    `gorm:"not null" json:"entry_price"`
	MarkPrice        float64    `json:"mark_price"`
	UnrealizedPnl    float64    `json:"unrealized_pnl"`
	RealizedPnl      float64    `json:"realized_pnl"`
	PnlPercentage    float64    `json:"pnl_percentage"`
	Leverage         float64    `gorm:"not null;default:1" json:"leverage"`
	MarginMode       string     `gorm:"size:20" json:"margin_mode"`
	LiquidationPrice *float64   `json:"liquidation_price,omitempty"`
	Status           string     `gorm:"size:20;not null;default:open;index" json:"status"`
	OpenedAt         time.Time  `json:"opened_at"`
	ClosedAt         *time.Time `json:"closed_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func (Position) TableName() string {
	return "positions"
}

// Value returns the position notional at the current mark price.
func (p *Position) Value() float64 {
	return p.Size * p.MarkPrice
}
