package strategy

import (
	"math"

	"tradecontrol/src/model"
)

const (
	defaultRSIPeriod     = 14
	defaultRSIOversold   = 30
	defaultRSIOverbought = 70
	rsiMaxConfidence     = 0.9
	rsiLongStopPct       = 0.97
	rsiLongTakePct       = 1.05
	rsiShortStopPct      = 1.03
	rsiShortTakePct      = 0.95
)

func init() {
	Register(&rsiReversal{})
}

// rsiReversal buys oversold and sells overbought conditions. Confidence
// scales with how far the oscillator sits past its threshold.
type rsiReversal struct{}

func (g *rsiReversal) Name() string { return "rsi" }

func (g *rsiReversal) MinBars() int { return defaultRSIPeriod + 1 }

func (g *rsiReversal) Generate(s *model.Strategy, m MarketSnapshot) (*model.TradingSignal, error) {
	period := int(paramFloat(s, "rsi_period", defaultRSIPeriod))
	oversold := paramFloat(s, "oversold", defaultRSIOversold)
	overbought := paramFloat(s, "overbought", defaultRSIOverbought)
	qty := paramFloat(s, "position_size", defaultPositionSize)

	value, ok := RSI(m.Closes, period)
	if !ok {
		return nil, nil
	}

	switch {
	case value < oversold:
		return &model.TradingSignal{
			StrategyID: s.ID,
			Symbol:     m.Symbol,
			Action:     model.SignalActionBuy,
			Quantity:   qty,
			Price:      m.Price,
			Confidence: math.Min(rsiMaxConfidence, (oversold-value)/10),
			StopLoss:   floatPtr(m.Price * rsiLongStopPct),
			TakeProfit: floatPtr(m.Price * rsiLongTakePct),
			Reason:     "RSI oversold",
		}, nil

	case value > overbought:
		return &model.TradingSignal{
			StrategyID: s.ID,
			Symbol:     m.Symbol,
			Action:     model.SignalActionSell,
			Quantity:   qty,
			Price:      m.Price,
			Confidence: math.Min(rsiMaxConfidence, (value-overbought)/10),
			StopLoss:   floatPtr(m.Price * rsiShortStopPct),
			TakeProfit: floatPtr(m.Price * rsiShortTakePct),
			Reason:     "RSI overbought",
		}, nil
	}

	return nil, nil
}
