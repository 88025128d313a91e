package model

import "time"

// PortfolioMetrics is one account-wide snapshot computed per monitoring pass
// and shared by every risk check in the same tick. It is not persisted.
type PortfolioMetrics struct {
	TotalEquity      float64   `json:"total_equity"`
	AvailableBalance float64   `json:"available_balance"`
	TotalExposure    float64   `json:"total_exposure"`
	DailyPnl         float64   `json:"daily_pnl"`
	TotalPnl         float64   `json:"total_pnl"`
	CurrentDrawdown  float64   `json:"current_drawdown"`
	MaxDrawdown      float64   `json:"max_drawdown"`
	PeakEquity       float64   `json:"peak_equity"`
	MarginUsage      float64   `json:"margin_usage"`
	PositionCount    int       `json:"position_count"`
	SharpeRatio      float64   `json:"sharpe_ratio"`
	WinRate          float64   `json:"win_rate"`
	Timestamp        time.Time `json:"timestamp"`
}

// PositionSummary aggregates the open-position cache for broadcast and the
// status endpoints.
type PositionSummary struct {
	TotalPositions     int     `json:"total_positions"`
	WinningPositions   int     `json:"winning_positions"`
	LosingPositions    int     `json:"losing_positions"`
	TotalUnrealizedPnl float64 `json:"total_unrealized_pnl"`
	TotalValue         float64 `json:"total_value"`
	WinRate            float64 `json:"win_rate"`
}

// TradingStats is the rolling window of closed-trade statistics used for the
// sharpe and win-rate figures.
type TradingStats struct {
	TotalTrades   int     `json:"total_trades"`
	WinningTrades int     `json:"winning_trades"`
	LosingTrades  int     `json:"losing_trades"`
	TotalPnl      float64 `json:"total_pnl"`
	AvgWin        float64 `json:"avg_win"`
	AvgLoss       float64 `json:"avg_loss"`
	WinRate       float64 `json:"win_rate"`
}
