package strategy

import "github.com/shopspring/decimal"

// SMA returns the simple moving average of the last period closes.
// Returns false when there is not enough history.
func SMA(closes []float64, period int) (float64, bool) {
	if period <= 0 || len(closes) < period {
		return 0, false
	}

	sum := decimal.Zero
	for _, c := range closes[len(closes)-period:] {
		sum = sum.Add(decimal.NewFromFloat(c))
	}
	avg, _ := sum.Div(decimal.NewFromInt(int64(period))).Float64()
	return avg, true
}

// RSI returns the relative strength index over the last period bars using
// the simple average of gains and losses.
// Returns false when there is not enough history.
func RSI(closes []float64, period int) (float64, bool) {
	if period <= 0 || len(closes) < period+1 {
		return 0, false
	}

	window := closes[len(closes)-period-1:]
	gains := decimal.Zero
	losses := decimal.Zero
	for i := 1; i < len(window); i++ {
		delta := decimal.NewFromFloat(window[i]).Sub(decimal.NewFromFloat(window[i-1]))
		if delta.IsPositive() {
			gains = gains.Add(delta)
		} else {
			losses = losses.Add(delta.Neg())
		}
	}

	if losses.IsZero() {
		return 100, true
	}

	periodDec := decimal.NewFromInt(int64(period))
	avgGain := gains.Div(periodDec)
	avgLoss := losses.Div(periodDec)

	rs := avgGain.Div(avgLoss)
	hundred := decimal.NewFromInt(100)
	rsi := hundred.Sub(hundred.Div(decimal.NewFromInt(1).Add(rs)))

	out, _ := rsi.Float64()
	return out, true
}
