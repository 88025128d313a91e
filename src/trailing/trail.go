package trailing

import "tradecontrol/src/exchange"

func isBullish(k exchange.Kline) bool { return k.Close > k.Open }
func isBearish(k exchange.Kline) bool { return k.Close < k.Open }

func avgLow(klines []exchange.Kline) float64 {
	if len(klines) == 0 {
		return 0
	}
	sum := 0.0
	for _, k := range klines {
		sum += k.Low
	}
	return sum / float64(len(klines))
}

func avgHigh(klines []exchange.Kline) float64 {
	if len(klines) == 0 {
		return 0
	}
	sum := 0.0
	for _, k := range klines {
		sum += k.High
	}
	return sum / float64(len(klines))
}

// NextStopLoss ratchets a trailing stop for a long or short position.
//
// Long:
// - gate: previous candle bullish
// - floor: avg(low) over lookback
// - clamp: candidate <= prev.Low
// - update: SL = max(SL, candidate)
//
// Short:
// - gate: previous candle bearish
// - ceiling: avg(high) over lookback
// - clamp: candidate >= prev.High
// - update: SL = min(SL, candidate)
//
// A currentSL of zero means no stop is set yet; the first qualifying candle
// seeds it.
func NextStopLoss(side string, currentSL float64, klines []exchange.Kline, lookback int) (newSL float64, moved bool) {
	if len(klines) < 2 {
		return currentSL, false
	}
	if lookback <= 0 {
		lookback = 20
	}
	if lookback > len(klines) {
		lookback = len(klines)
	}

	prev := klines[len(klines)-2]
	window := klines[len(klines)-lookback:]

	switch side {
	case "long":
		if !isBullish(prev) {
			return currentSL, false
		}

		candidate := avgLow(window)
		if candidate > prev.Low {
			candidate = prev.Low
		}

		if candidate > currentSL {
			return candidate, true
		}
		return currentSL, false

	case "short":
		if !isBearish(prev) {
			return currentSL, false
		}

		candidate := avgHigh(window)
		// Do not set the stop below the last bearish candle high.
		if candidate < prev.High {
			candidate = prev.High
		}

		// The stop only moves down for shorts.
		if currentSL == 0 || candidate < currentSL {
			return candidate, true
		}
		return currentSL, false

	default:
		return currentSL, false
	}
}
