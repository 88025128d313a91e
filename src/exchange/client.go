package exchange

import (
	"context"
	"time"
)

// PositionData is the exchange-side view of one open position, before it is
// mapped into the local cache model.
type PositionData struct {
	Symbol           string
	Side             string
	Size             float64
	EntryPrice       float64
	MarkPrice        float64
	UnrealizedPnl    float64
	RealizedPnl      float64
	Leverage         float64
	MarginMode       string
	LiquidationPrice *float64
}

// WalletBalance is the unified-account equity snapshot.
type WalletBalance struct {
	TotalEquity      float64
	AvailableBalance float64
	UnrealizedPnl    float64
}

// OrderParams describes one order request.
type OrderParams struct {
	Symbol      string
	Side        string
	OrderType   string
	Qty         float64
	Price       *float64
	ReduceOnly  bool
	TimeInForce string
}

// OrderResult carries the exchange identifiers of an accepted order.
type OrderResult struct {
	OrderID     string
	OrderLinkID string
}

// OpenOrder is one resting order returned by the open-orders query.
type OpenOrder struct {
	OrderID   string
	Symbol    string
	Side      string
	OrderType string
	Qty       float64
	Price     float64
}

// Kline is one OHLCV bar returned by the market data endpoint.
type Kline struct {
	Start  time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Client is the minimal exchange surface the control plane depends on.
// Implementations must be safe for concurrent use.
type Client interface {
	GetPositions(ctx context.Context) ([]PositionData, error)
	GetWalletBalance(ctx context.Context) (*WalletBalance, error)
	GetKlines(ctx context.Context, symbol, interval string, limit int) ([]Kline, error)
	GetOpenOrders(ctx context.Context, symbol string) ([]OpenOrder, error)
	PlaceOrder(ctx context.Context, params OrderParams) (*OrderResult, error)
	CancelOrder(ctx context.Context, symbol, orderID string) error
	SetLeverage(ctx context.Context, symbol string, leverage float64) error
	SetMarginMode(ctx context.Context, symbol, mode string, leverage float64) error
	SetTradingStop(ctx context.Context, symbol string, stopLoss, takeProfit *float64) error
}
