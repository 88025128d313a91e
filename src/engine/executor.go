package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	logger "github.com/sirupsen/logrus"

	"tradecontrol/src/exchange"
	"tradecontrol/src/model"
	"tradecontrol/src/monitoring"
	"tradecontrol/src/notify"
)

// OrderExecutor turns an approved signal into exchange orders. A Trade row
// is written for every attempt, including partial failures: an entry that
// fills but loses its protective stop is recorded with ProtectionMissing set
// so monitoring can react.
type OrderExecutor struct {
	provider exchange.Provider
	trades   TradeStore
	notifier notify.Notifier
}

func NewOrderExecutor(provider exchange.Provider, trades TradeStore, notifier notify.Notifier) *OrderExecutor {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &OrderExecutor{provider: provider, trades: trades, notifier: notifier}
}

func orderSide(action string) (side string, reduceOnly bool, err error) {
	switch action {
	case model.SignalActionBuy:
		return "Buy", false, nil
	case model.SignalActionSell:
		return "Sell", false, nil
	case model.SignalActionCloseLong:
		return "Sell", true, nil
	case model.SignalActionCloseShort:
		return "Buy", true, nil
	default:
		return "", false, fmt.Errorf("action %q is not executable", action)
	}
}

// Execute submits the signal as a market order, then places the protective
// stop-loss/take-profit. Leverage and margin mode are applied first for
// entries; the exchange rejects redundant changes, which is not an error.
func (x *OrderExecutor) Execute(ctx context.Context, strat *model.Strategy, signal *model.TradingSignal) (*model.Trade, error) {
	side, reduceOnly, err := orderSide(signal.Action)
	if err != nil {
		return nil, err
	}

	log := logger.WithFields(map[string]interface{}{
		"component": "OrderExecutor",
		"strategy":  strat.Name,
		"symbol":    signal.Symbol,
		"action":    signal.Action,
		"qty":       signal.Quantity,
	})

	trade := &model.Trade{
		ID:           uuid.NewString(),
		StrategyID:   strat.ID,
		ConnectionID: strat.ConnectionID,
		Symbol:       signal.Symbol,
		Side:         side,
		OrderType:    "Market",
		Quantity:     signal.Quantity,
		Price:        signal.Price,
		CreatedAt:    time.Now().UTC(),
	}

	client, err := x.provider.ClientForConnection(ctx, strat.ConnectionID)
	if err != nil {
		return x.recordFailure(ctx, trade, err)
	}

	if !reduceOnly {
		x.applyLeverage(ctx, client, strat, signal.Symbol, log)
	}

	result, err := client.PlaceOrder(ctx, exchange.OrderParams{
		Symbol:     signal.Symbol,
		Side:       side,
		OrderType:  "Market",
		Qty:        signal.Quantity,
		ReduceOnly: reduceOnly,
	})
	if err != nil {
		return x.recordFailure(ctx, trade, err)
	}

	now := time.Now().UTC()
	trade.Status = model.TradeStatusFilled
	trade.ExchangeOrderID = result.OrderID
	trade.ExecutedAt = &now

	if signal.StopLoss != nil || signal.TakeProfit != nil {
		if err := client.SetTradingStop(ctx, signal.Symbol, signal.StopLoss, signal.TakeProfit); err != nil {
			trade.ProtectionMissing = true
			log.WithError(err).Error("Protective orders failed after entry fill")
		}
	}

	if err := x.trades.Create(ctx, trade); err != nil {
		log.WithError(err).Error("Failed to persist trade record")
	}
	monitoring.RecordExecution(signal.Symbol, trade.Status)
	log.WithField("order_id", result.OrderID).Info("Order executed")

	return trade, nil
}

func (x *OrderExecutor) applyLeverage(ctx context.Context, client exchange.Client, strat *model.Strategy, symbol string, log *logger.Entry) {
	if strat.MarginMode != "" {
		if err := client.SetMarginMode(ctx, symbol, strat.MarginMode, strat.Leverage); err != nil && !isNotModified(err) {
			log.WithError(err).Warn("Could not set margin mode")
		}
	}
	if strat.Leverage > 0 {
		if err := client.SetLeverage(ctx, symbol, strat.Leverage); err != nil && !isNotModified(err) {
			log.WithError(err).Warn("Could not set leverage")
		}
	}
}

// isNotModified matches the exchange's "already set" responses, which carry
// no actionable information.
func isNotModified(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not modified") || strings.Contains(msg, "110043")
}

func (x *OrderExecutor) recordFailure(ctx context.Context, trade *model.Trade, cause error) (*model.Trade, error) {
	trade.Status = model.TradeStatusFailed
	trade.Error = cause.Error()

	if err := x.trades.Create(ctx, trade); err != nil {
		logger.WithError(err).WithField("component", "OrderExecutor").
			Error("Failed to persist failed trade record")
	}
	monitoring.RecordExecution(trade.Symbol, trade.Status)

	return trade, cause
}
