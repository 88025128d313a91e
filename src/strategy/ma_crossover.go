package strategy

import (
	"tradecontrol/src/model"
)

const (
	defaultShortMA        = 10
	defaultLongMA         = 30
	crossoverConfidence   = 0.7
	crossoverLongStopPct  = 0.98
	crossoverLongTakePct  = 1.04
	crossoverShortStopPct = 1.02
	crossoverShortTakePct = 0.96
	defaultPositionSize   = 0.01
)

func init() {
	Register(&maCrossover{})
}

// maCrossover signals when the short moving average crosses the long one.
// A cross needs both the previous and the current bar, so a fresh cross is
// only detected once.
type maCrossover struct{}

func (g *maCrossover) Name() string { return "ma_crossover" }

func (g *maCrossover) MinBars() int { return defaultLongMA + 1 }

func (g *maCrossover) Generate(s *model.Strategy, m MarketSnapshot) (*model.TradingSignal, error) {
	shortPeriod := int(paramFloat(s, "short_ma", defaultShortMA))
	longPeriod := int(paramFloat(s, "long_ma", defaultLongMA))
	qty := paramFloat(s, "position_size", defaultPositionSize)

	if len(m.Closes) < longPeriod+1 {
		return nil, nil
	}

	prev := m.Closes[:len(m.Closes)-1]

	shortNow, ok1 := SMA(m.Closes, shortPeriod)
	longNow, ok2 := SMA(m.Closes, longPeriod)
	shortPrev, ok3 := SMA(prev, shortPeriod)
	longPrev, ok4 := SMA(prev, longPeriod)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return nil, nil
	}

	switch {
	case shortPrev <= longPrev && shortNow > longNow:
		return &model.TradingSignal{
			StrategyID: s.ID,
			Symbol:     m.Symbol,
			Action:     model.SignalActionBuy,
			Quantity:   qty,
			Price:      m.Price,
			Confidence: crossoverConfidence,
			StopLoss:   floatPtr(m.Price * crossoverLongStopPct),
			TakeProfit: floatPtr(m.Price * crossoverLongTakePct),
			Reason:     "short MA crossed above long MA",
		}, nil

	case shortPrev >= longPrev && shortNow < longNow:
		return &model.TradingSignal{
			StrategyID: s.ID,
			Symbol:     m.Symbol,
			Action:     model.SignalActionSell,
			Quantity:   qty,
			Price:      m.Price,
			Confidence: crossoverConfidence,
			StopLoss:   floatPtr(m.Price * crossoverShortStopPct),
			TakeProfit: floatPtr(m.Price * crossoverShortTakePct),
			Reason:     "short MA crossed below long MA",
		}, nil
	}

	return nil, nil
}
