package model

import "time"

const (
	TradeStatusFilled   = "filled"
	TradeStatusRejected = "rejected"
	TradeStatusFailed   = "failed"
)

// Trade is the persisted record of one executed (or attempted) signal.
// ProtectionMissing flags fills whose stop-loss/take-profit placement failed
// after the entry order went through; those need operator attention.
type Trade struct {
	ID                string     `gorm:"primaryKey;size:60" json:"id"`
	StrategyID        uint       `gorm:"not null;index" json:"strategy_id"`
	ConnectionID      uint       `gorm:"not null;index" json:"connection_id"`
	Symbol            string     `gorm:"size:50;not null;index" json:"symbol"`
	Side              string     `gorm:"size:10;not null" json:"side"`
	OrderType         string     `gorm:"size:20;not null" json:"order_type"`
	Quantity          float64    `gorm:"not null" json:"quantity"`
	Price             float64    `json:"price"`
	ExchangeOrderID   string     `gorm:"size:100;index" json:"exchange_order_id,omitempty"`
	Status            string     `gorm:"size:20;not null;index" json:"status"`
	Pnl               float64    `json:"pnl"`
	ProtectionMissing bool       `gorm:"not null;default:false" json:"protection_missing"`
	Error             string     `gorm:"size:512" json:"error,omitempty"`
	ExecutedAt        *time.Time `json:"executed_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

func (Trade) TableName() string {
	return "trades"
}
