package model

import "time"

const (
	SignalActionBuy        = "buy"
	SignalActionSell       = "sell"
	SignalActionCloseLong  = "close_long"
	SignalActionCloseShort = "close_short"
	SignalActionHold       = "hold"
)

// TradingSignal is the typed intent a strategy emits for one tick. Signals
// are transient: they either pass risk validation and become a Trade, or they
// are dropped with their violations logged. They are never replayed.
type TradingSignal struct {
	ID         string    `json:"id"`
	StrategyID uint      `json:"strategy_id"`
	Symbol     string    `json:"symbol"`
	Action     string    `json:"action"`
	Quantity   float64   `json:"quantity"`
	Price      float64   `json:"price"`
	Leverage   float64   `json:"leverage"`
	Confidence float64   `json:"confidence"`
	StopLoss   *float64  `json:"stop_loss,omitempty"`
	TakeProfit *float64  `json:"take_profit,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// IsExit reports whether the signal closes an existing position rather than
// opening or increasing one.
func (s *TradingSignal) IsExit() bool {
	return s.Action == SignalActionCloseLong || s.Action == SignalActionCloseShort
}

// TradeValue returns quantity * price * leverage, the exposure the trade
// adds. An unset leverage counts as 1x.
func (s *TradingSignal) TradeValue() float64 {
	lev := s.Leverage
	if lev < 1 {
		lev = 1
	}
	return s.Quantity * s.Price * lev
}
