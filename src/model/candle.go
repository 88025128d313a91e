package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Candle is one stored OHLCV bar. The (symbol, interval, datetime) key lets
// the backfill command upsert overlapping downloads.
type Candle struct {
	ID       uint            `gorm:"primaryKey"`
	Symbol   string          `json:"symbol"   gorm:"type:varchar(50);not null;uniqueIndex:ux_candles_symbol_interval_datetime,priority:1"`
	Interval string          `json:"interval" gorm:"type:varchar(10);not null;uniqueIndex:ux_candles_symbol_interval_datetime,priority:2"`
	Datetime time.Time       `json:"datetime" gorm:"not null;uniqueIndex:ux_candles_symbol_interval_datetime,priority:3;index:idx_candles_datetime"`
	Open     decimal.Decimal `json:"open"   gorm:"type:double precision;not null"`
	High     decimal.Decimal `json:"high"   gorm:"type:double precision;not null"`
	Low      decimal.Decimal `json:"low"    gorm:"type:double precision;not null"`
	Close    decimal.Decimal `json:"close"  gorm:"type:double precision;not null"`
	Volume   decimal.Decimal `json:"volume" gorm:"type:double precision;not null"`
}

func (Candle) TableName() string {
	return "candles"
}
