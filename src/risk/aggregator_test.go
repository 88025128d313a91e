package risk

import (
	"context"
	"testing"
	"time"

	"tradecontrol/src/model"

	"github.com/stretchr/testify/require"
)

type memTradeSource struct {
	today []model.Trade
	stats model.TradingStats
}

func (s *memTradeSource) GetTradingStats(context.Context, int) (*model.TradingStats, error) {
	out := s.stats
	return &out, nil
}

func (s *memTradeSource) ListSince(context.Context, time.Time) ([]model.Trade, error) {
	return s.today, nil
}

func TestAggregatorSnapshot(t *testing.T) {
	source := &memTradeSource{
		today: []model.Trade{{Pnl: 120}, {Pnl: -40}},
		stats: model.TradingStats{
			TotalTrades:   10,
			WinningTrades: 6,
			TotalPnl:      500,
			AvgLoss:       -50,
			WinRate:       0.6,
		},
	}
	agg := NewAggregator(source, 30)

	positions := []model.Position{
		{Symbol: "BTCUSDT", Size: 0.5, MarkPrice: 50000, UnrealizedPnl: 300},
		{Symbol: "ETHUSDT", Size: 2, MarkPrice: 3000, UnrealizedPnl: -100},
	}

	metrics, err := agg.Snapshot(context.Background(), 10000, 7000, positions)
	require.NoError(t, err)

	require.InDelta(t, 31000.0, metrics.TotalExposure, 1e-9)
	require.Equal(t, 2, metrics.PositionCount)
	// Daily pnl combines today's realized trades with current unrealized.
	require.InDelta(t, 280.0, metrics.DailyPnl, 1e-9)
	require.InDelta(t, 0.3, metrics.MarginUsage, 1e-9)
	require.InDelta(t, 0.6, metrics.WinRate, 1e-9)
	// Sharpe is avg trade pnl (50) over |avg loss| (50).
	require.InDelta(t, 1.0, metrics.SharpeRatio, 1e-9)
}

func TestAggregatorDrawdownTracksPeak(t *testing.T) {
	agg := NewAggregator(&memTradeSource{}, 30)
	ctx := context.Background()

	m1, err := agg.Snapshot(ctx, 10000, 10000, nil)
	require.NoError(t, err)
	require.Zero(t, m1.CurrentDrawdown)

	// Equity falls 12% from the 10k peak.
	m2, err := agg.Snapshot(ctx, 8800, 8800, nil)
	require.NoError(t, err)
	require.InDelta(t, 0.12, m2.CurrentDrawdown, 1e-9)
	require.InDelta(t, 10000.0, m2.PeakEquity, 1e-9)

	// A new high resets the drawdown and raises the peak.
	m3, err := agg.Snapshot(ctx, 11000, 11000, nil)
	require.NoError(t, err)
	require.Zero(t, m3.CurrentDrawdown)
	require.InDelta(t, 11000.0, m3.PeakEquity, 1e-9)
}

func TestAggregatorMaxDrawdownOverHistory(t *testing.T) {
	agg := NewAggregator(&memTradeSource{}, 30)
	ctx := context.Background()

	_, err := agg.Snapshot(ctx, 10000, 10000, nil)
	require.NoError(t, err)

	// A 15% dip, then a partial recovery. The max figure keeps the dip.
	dip, err := agg.Snapshot(ctx, 8500, 8500, nil)
	require.NoError(t, err)
	require.InDelta(t, 0.15, dip.MaxDrawdown, 1e-9)

	recovered, err := agg.Snapshot(ctx, 9500, 9500, nil)
	require.NoError(t, err)
	require.InDelta(t, 0.05, recovered.CurrentDrawdown, 1e-9)
	require.InDelta(t, 0.15, recovered.MaxDrawdown, 1e-9)
	require.Len(t, agg.History(), 3)
}

func TestAggregatorHistoryRetention(t *testing.T) {
	agg := NewAggregator(&memTradeSource{}, 30)
	ctx := context.Background()

	_, err := agg.Snapshot(ctx, 10000, 10000, nil)
	require.NoError(t, err)
	_, err = agg.Snapshot(ctx, 8500, 8500, nil)
	require.NoError(t, err)

	// Age the dip out of the retention window.
	agg.mu.Lock()
	agg.history[1].Timestamp = agg.history[1].Timestamp.Add(-25 * time.Hour)
	agg.history[0].Timestamp = agg.history[0].Timestamp.Add(-26 * time.Hour)
	agg.mu.Unlock()

	fresh, err := agg.Snapshot(ctx, 9500, 9500, nil)
	require.NoError(t, err)
	require.Len(t, agg.History(), 1)
	require.InDelta(t, fresh.CurrentDrawdown, fresh.MaxDrawdown, 1e-9)
}

func TestSizingHelpers(t *testing.T) {
	t.Run("qty from risk", func(t *testing.T) {
		// Risking 2% of 10k with a 500 stop distance buys 0.4 units.
		qty := QtyFromRisk(10000, 0.02, 50000, 49500)
		require.InDelta(t, 0.4, qty, 1e-9)

		require.Zero(t, QtyFromRisk(10000, 0.02, 50000, 50000))
		require.Zero(t, QtyFromRisk(0, 0.02, 50000, 49500))
	})

	t.Run("round step", func(t *testing.T) {
		require.InDelta(t, 0.123, RoundStep(0.12345, 0.001), 1e-9)
		require.InDelta(t, 0.12345, RoundStep(0.12345, 0), 1e-9)
	})
}
