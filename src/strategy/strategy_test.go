package strategy

import (
	"testing"
	"time"

	"tradecontrol/src/model"

	"github.com/stretchr/testify/require"
)

func snapshot(closes []float64) MarketSnapshot {
	return MarketSnapshot{
		Symbol:    "BTCUSDT",
		Closes:    closes,
		Price:     closes[len(closes)-1],
		Timestamp: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func flatSeries(n int, price float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = price
	}
	return out
}

func TestForTypeResolvesRegisteredGenerators(t *testing.T) {
	for _, name := range []string{"ma_crossover", "rsi"} {
		g, err := ForType(name)
		require.NoError(t, err)
		require.Equal(t, name, g.Name())
	}

	_, err := ForType("martingale")
	require.Error(t, err)
}

func TestMACrossoverSignals(t *testing.T) {
	g, err := ForType("ma_crossover")
	require.NoError(t, err)

	strat := &model.Strategy{ID: 1, Type: "ma_crossover", Symbol: "BTCUSDT"}

	t.Run("cross above emits buy", func(t *testing.T) {
		closes := append(flatSeries(30, 100), 150)
		sig, err := g.Generate(strat, snapshot(closes))
		require.NoError(t, err)
		require.NotNil(t, sig)
		require.Equal(t, model.SignalActionBuy, sig.Action)
		require.Equal(t, 0.7, sig.Confidence)
		require.InDelta(t, 150*0.98, *sig.StopLoss, 1e-9)
		require.InDelta(t, 150*1.04, *sig.TakeProfit, 1e-9)
	})

	t.Run("cross below emits sell", func(t *testing.T) {
		closes := append(flatSeries(30, 100), 50)
		sig, err := g.Generate(strat, snapshot(closes))
		require.NoError(t, err)
		require.NotNil(t, sig)
		require.Equal(t, model.SignalActionSell, sig.Action)
		require.InDelta(t, 50*1.02, *sig.StopLoss, 1e-9)
		require.InDelta(t, 50*0.96, *sig.TakeProfit, 1e-9)
	})

	t.Run("flat market holds", func(t *testing.T) {
		sig, err := g.Generate(strat, snapshot(flatSeries(40, 100)))
		require.NoError(t, err)
		require.Nil(t, sig)
	})

	t.Run("insufficient history holds", func(t *testing.T) {
		sig, err := g.Generate(strat, snapshot(flatSeries(10, 100)))
		require.NoError(t, err)
		require.Nil(t, sig)
	})

	t.Run("deterministic for identical input", func(t *testing.T) {
		closes := append(flatSeries(30, 100), 150)
		a, err := g.Generate(strat, snapshot(closes))
		require.NoError(t, err)
		b, err := g.Generate(strat, snapshot(closes))
		require.NoError(t, err)
		require.Equal(t, a, b)
	})
}

func TestRSISignals(t *testing.T) {
	g, err := ForType("rsi")
	require.NoError(t, err)

	strat := &model.Strategy{ID: 2, Type: "rsi", Symbol: "ETHUSDT"}

	declining := make([]float64, 16)
	for i := range declining {
		declining[i] = 100 - float64(i)
	}
	rising := make([]float64, 16)
	for i := range rising {
		rising[i] = 100 + float64(i)
	}

	t.Run("oversold emits buy with clamped confidence", func(t *testing.T) {
		sig, err := g.Generate(strat, snapshot(declining))
		require.NoError(t, err)
		require.NotNil(t, sig)
		require.Equal(t, model.SignalActionBuy, sig.Action)
		// RSI 0 against threshold 30 gives raw confidence 3.0, clamped to 0.9.
		require.InDelta(t, 0.9, sig.Confidence, 1e-9)
	})

	t.Run("overbought emits sell", func(t *testing.T) {
		sig, err := g.Generate(strat, snapshot(rising))
		require.NoError(t, err)
		require.NotNil(t, sig)
		require.Equal(t, model.SignalActionSell, sig.Action)
		price := rising[len(rising)-1]
		require.InDelta(t, price*1.03, *sig.StopLoss, 1e-9)
		require.InDelta(t, price*0.95, *sig.TakeProfit, 1e-9)
	})

	t.Run("neutral market holds", func(t *testing.T) {
		mixed := make([]float64, 16)
		for i := range mixed {
			if i%2 == 0 {
				mixed[i] = 100
			} else {
				mixed[i] = 101
			}
		}
		sig, err := g.Generate(strat, snapshot(mixed))
		require.NoError(t, err)
		require.Nil(t, sig)
	})

	t.Run("custom thresholds from parameters", func(t *testing.T) {
		loose := &model.Strategy{
			ID: 3, Type: "rsi", Symbol: "ETHUSDT",
			Parameters: map[string]any{"oversold": float64(55), "overbought": float64(90)},
		}
		// This series has RSI near 36: under 55 but not under the default 30.
		closes := []float64{100, 99, 98, 99, 98, 97, 98, 97, 96, 97, 96, 95, 96, 95, 96}
		sig, err := g.Generate(loose, snapshot(closes))
		require.NoError(t, err)
		require.NotNil(t, sig)
		require.Equal(t, model.SignalActionBuy, sig.Action)
	})
}

func TestIndicators(t *testing.T) {
	t.Run("sma", func(t *testing.T) {
		avg, ok := SMA([]float64{1, 2, 3, 4, 5}, 5)
		require.True(t, ok)
		require.InDelta(t, 3.0, avg, 1e-9)

		avg, ok = SMA([]float64{1, 2, 3, 4, 5}, 2)
		require.True(t, ok)
		require.InDelta(t, 4.5, avg, 1e-9)

		_, ok = SMA([]float64{1, 2}, 5)
		require.False(t, ok)
	})

	t.Run("rsi extremes", func(t *testing.T) {
		up := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15}
		value, ok := RSI(up, 14)
		require.True(t, ok)
		require.InDelta(t, 100.0, value, 1e-9)

		down := make([]float64, 15)
		for i := range down {
			down[i] = float64(30 - i)
		}
		value, ok = RSI(down, 14)
		require.True(t, ok)
		require.InDelta(t, 0.0, value, 1e-9)

		_, ok = RSI([]float64{1, 2, 3}, 14)
		require.False(t, ok)
	})
}
