package risk

import "github.com/shopspring/decimal"

// QtyFromRisk sizes a position so that getting stopped out loses at most
// riskPct of equity. Returns zero when the stop sits on the entry price.
func QtyFromRisk(equity, riskPct, entryPrice, stopPrice float64) float64 {
	entry := decimal.NewFromFloat(entryPrice)
	stop := decimal.NewFromFloat(stopPrice)

	distance := entry.Sub(stop).Abs()
	if distance.IsZero() || equity <= 0 || riskPct <= 0 {
		return 0
	}

	riskAmount := decimal.NewFromFloat(equity).Mul(decimal.NewFromFloat(riskPct))
	qty, _ := riskAmount.Div(distance).Float64()
	return qty
}

// RoundStep floors qty to the instrument's lot step so orders never exceed
// the intended size.
func RoundStep(qty, step float64) float64 {
	if step <= 0 {
		return qty
	}

	q := decimal.NewFromFloat(qty)
	s := decimal.NewFromFloat(step)

	steps := q.Div(s).Floor()
	out, _ := steps.Mul(s).Float64()
	return out
}
