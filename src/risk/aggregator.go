package risk

import (
	"context"
	"sync"
	"time"

	logger "github.com/sirupsen/logrus"

	"tradecontrol/src/model"
)

// TradeStatsSource is the slice of the trade repository the aggregator reads.
type TradeStatsSource interface {
	GetTradingStats(ctx context.Context, days int) (*model.TradingStats, error)
	ListSince(ctx context.Context, since time.Time) ([]model.Trade, error)
}

// historyRetention bounds the in-memory snapshot history. Max drawdown is
// derived over this window.
const historyRetention = 24 * time.Hour

// Aggregator computes the portfolio metrics snapshot shared by all risk
// checks of a tick. It tracks the running peak equity, so drawdown is
// measured against the best equity seen since the process started, and
// keeps the last day of snapshots for the max-drawdown figure.
type Aggregator struct {
	trades          TradeStatsSource
	statsWindowDays int

	mu         sync.Mutex
	peakEquity float64
	history    []model.PortfolioMetrics
}

func NewAggregator(trades TradeStatsSource, statsWindowDays int) *Aggregator {
	if statsWindowDays <= 0 {
		statsWindowDays = 30
	}
	return &Aggregator{trades: trades, statsWindowDays: statsWindowDays}
}

// Snapshot computes one metrics snapshot from the current wallet state and
// the open-position cache.
func (a *Aggregator) Snapshot(
	ctx context.Context,
	totalEquity, availableBalance float64,
	positions []model.Position,
) (*model.PortfolioMetrics, error) {

	metrics := &model.PortfolioMetrics{
		TotalEquity:      totalEquity,
		AvailableBalance: availableBalance,
		PositionCount:    len(positions),
		Timestamp:        time.Now().UTC(),
	}

	var unrealized float64
	for _, p := range positions {
		metrics.TotalExposure += p.Value()
		unrealized += p.UnrealizedPnl
	}

	metrics.PeakEquity = a.trackPeak(totalEquity)
	if metrics.PeakEquity > 0 {
		dd := (metrics.PeakEquity - totalEquity) / metrics.PeakEquity
		if dd > 0 {
			metrics.CurrentDrawdown = dd
		}
	}

	if totalEquity > 0 {
		used := totalEquity - availableBalance
		if used > 0 {
			metrics.MarginUsage = used / totalEquity
		}
	}

	midnight := time.Now().UTC().Truncate(24 * time.Hour)
	todays, err := a.trades.ListSince(ctx, midnight)
	if err != nil {
		return nil, err
	}
	for _, t := range todays {
		metrics.DailyPnl += t.Pnl
	}
	metrics.DailyPnl += unrealized

	stats, err := a.trades.GetTradingStats(ctx, a.statsWindowDays)
	if err != nil {
		return nil, err
	}
	metrics.TotalPnl = stats.TotalPnl + unrealized
	metrics.WinRate = stats.WinRate
	metrics.SharpeRatio = simplifiedSharpe(stats)
	metrics.MaxDrawdown = a.record(metrics)

	logger.WithFields(map[string]interface{}{
		"component": "Aggregator",
		"equity":    metrics.TotalEquity,
		"exposure":  metrics.TotalExposure,
		"daily_pnl": metrics.DailyPnl,
		"drawdown":  metrics.CurrentDrawdown,
		"positions": metrics.PositionCount,
	}).Debug("Computed portfolio metrics snapshot")

	return metrics, nil
}

func (a *Aggregator) trackPeak(equity float64) float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if equity > a.peakEquity {
		a.peakEquity = equity
	}
	return a.peakEquity
}

// record appends the snapshot to the retained history, drops entries past
// the retention window, and returns the worst drawdown left in the window.
func (a *Aggregator) record(metrics *model.PortfolioMetrics) float64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.history = append(a.history, *metrics)
	cutoff := metrics.Timestamp.Add(-historyRetention)
	for len(a.history) > 0 && a.history[0].Timestamp.Before(cutoff) {
		a.history = a.history[1:]
	}

	var maxDD float64
	for _, m := range a.history {
		if m.CurrentDrawdown > maxDD {
			maxDD = m.CurrentDrawdown
		}
	}
	return maxDD
}

// History returns a copy of the retained snapshots, oldest first.
func (a *Aggregator) History() []model.PortfolioMetrics {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]model.PortfolioMetrics, len(a.history))
	copy(out, a.history)
	return out
}

// PeakEquity returns the highest equity observed so far.
func (a *Aggregator) PeakEquity() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.peakEquity
}

// simplifiedSharpe approximates risk-adjusted performance as the average
// trade pnl over the magnitude of the average losing trade.
func simplifiedSharpe(stats *model.TradingStats) float64 {
	if stats.TotalTrades == 0 || stats.AvgLoss == 0 {
		return 0
	}
	avgReturn := stats.TotalPnl / float64(stats.TotalTrades)
	return avgReturn / abs(stats.AvgLoss)
}
