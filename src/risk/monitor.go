package risk

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	logger "github.com/sirupsen/logrus"

	"tradecontrol/src/model"
)

const (
	warnThreshold = 0.80
	highThreshold = 0.95
)

// AlertStore is the slice of the alert repository the monitor writes to.
type AlertStore interface {
	Create(ctx context.Context, a *model.RiskAlert) error
	Resolve(ctx context.Context, alertType string, at time.Time) error
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// AlertNotifier pushes risk events to connected clients.
type AlertNotifier interface {
	BroadcastRiskAlert(alert *model.RiskAlert)
	BroadcastEmergencyStop(reason string)
	BroadcastPortfolioSummary(metrics *model.PortfolioMetrics)
}

// Monitor watches the portfolio metrics, raises and resolves alerts, and
// trips the emergency stop when drawdown reaches its limit.
type Monitor struct {
	manager  *Manager
	alerts   AlertStore
	notifier AlertNotifier
	config   Config

	mu          sync.Mutex
	activeLevel map[string]string

	alertsTotal    int64
	emergencyTotal int64
}

func NewMonitor(manager *Manager, alerts AlertStore, notifier AlertNotifier, config Config) *Monitor {
	return &Monitor{
		manager:     manager,
		alerts:      alerts,
		notifier:    notifier,
		config:      config,
		activeLevel: make(map[string]string),
	}
}

type metricReading struct {
	alertType string
	symbol    string
	value     float64
	limit     float64
}

// key identifies a reading in the active-alert map. Position readings carry
// the symbol so each position tracks its own level.
func (r metricReading) key() string {
	if r.symbol == "" {
		return r.alertType
	}
	return r.alertType + ":" + r.symbol
}

// Check runs one monitoring pass over a metrics snapshot and the open
// positions behind it. Alerts are raised at 80% (medium) and 95% (high) of
// a limit, resolve automatically when the metric falls back under the
// warning band, and drawdown at or past its limit trips the emergency stop
// with a critical alert.
func (mo *Monitor) Check(ctx context.Context, metrics *model.PortfolioMetrics, positions []model.Position) error {
	limits := mo.manager.Limits()

	dailyLoss := 0.0
	if metrics.DailyPnl < 0 {
		dailyLoss = -metrics.DailyPnl
	}

	readings := []metricReading{
		{alertType: model.AlertTypeExposure, value: metrics.TotalExposure, limit: limits.MaxTotalExposure},
		{alertType: model.AlertTypeDailyLoss, value: dailyLoss, limit: limits.MaxDailyLoss},
		{alertType: model.AlertTypePositionCount, value: float64(metrics.PositionCount), limit: float64(limits.MaxPositions)},
		{alertType: model.AlertTypeMarginUsage, value: metrics.MarginUsage, limit: 1.0},
	}

	for _, r := range readings {
		if err := mo.applyReading(ctx, r); err != nil {
			return err
		}
	}

	if err := mo.checkPositionRisks(ctx, metrics, positions, limits); err != nil {
		return err
	}
	if err := mo.checkCorrelation(ctx, positions, limits); err != nil {
		return err
	}
	if err := mo.checkVolatility(ctx, positions); err != nil {
		return err
	}

	if err := mo.checkDrawdown(ctx, metrics, limits); err != nil {
		return err
	}

	if mo.notifier != nil {
		mo.notifier.BroadcastPortfolioSummary(metrics)
	}
	return nil
}

// checkPositionRisks watches each open position's share of equity against
// the single-position ceiling. Alerts for positions that closed since the
// last pass are cleared.
func (mo *Monitor) checkPositionRisks(ctx context.Context, metrics *model.PortfolioMetrics, positions []model.Position, limits GlobalLimits) error {
	if metrics.TotalEquity <= 0 {
		return nil
	}

	seen := make(map[string]bool, len(positions))
	for _, p := range positions {
		r := metricReading{
			alertType: model.AlertTypePositionSize,
			symbol:    p.Symbol,
			value:     p.Value() / metrics.TotalEquity,
			limit:     limits.MaxSinglePosition,
		}
		seen[r.key()] = true
		if err := mo.applyReading(ctx, r); err != nil {
			return err
		}
	}

	mo.mu.Lock()
	var stale []metricReading
	for key := range mo.activeLevel {
		if strings.HasPrefix(key, model.AlertTypePositionSize+":") && !seen[key] {
			stale = append(stale, metricReading{
				alertType: model.AlertTypePositionSize,
				symbol:    strings.TrimPrefix(key, model.AlertTypePositionSize+":"),
			})
		}
	}
	mo.mu.Unlock()

	for _, r := range stale {
		if err := mo.clear(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

// checkCorrelation flags over-concentration in one quote asset once the
// portfolio holds more than a handful of positions.
func (mo *Monitor) checkCorrelation(ctx context.Context, positions []model.Position, limits GlobalLimits) error {
	r := metricReading{alertType: model.AlertTypeCorrelation, limit: limits.MaxCorrelationRisk}

	if len(positions) > 5 {
		usdtQuoted := 0
		for _, p := range positions {
			if strings.HasSuffix(p.Symbol, "USDT") {
				usdtQuoted++
			}
		}
		r.value = float64(usdtQuoted) / float64(len(positions))
	}

	return mo.applyReading(ctx, r)
}

// checkVolatility raises one alert when more than half the open positions
// have drifted past the volatility threshold, measured as mark price
// deviation from entry.
func (mo *Monitor) checkVolatility(ctx context.Context, positions []model.Position) error {
	r := metricReading{alertType: model.AlertTypeVolatility, limit: 0.5}

	if len(positions) > 0 && mo.config.VolatilityThreshold > 0 {
		volatile := 0
		for _, p := range positions {
			if p.EntryPrice <= 0 {
				continue
			}
			if abs(p.MarkPrice-p.EntryPrice)/p.EntryPrice > mo.config.VolatilityThreshold {
				volatile++
			}
		}
		r.value = float64(volatile) / float64(len(positions))
	}

	if r.value > r.limit {
		return mo.raise(ctx, r, model.AlertLevelMedium)
	}
	return mo.clear(ctx, r)
}

func (mo *Monitor) applyReading(ctx context.Context, r metricReading) error {
	if r.limit <= 0 {
		return nil
	}

	ratio := r.value / r.limit
	switch {
	case ratio >= highThreshold:
		return mo.raise(ctx, r, model.AlertLevelHigh)
	case ratio >= warnThreshold:
		return mo.raise(ctx, r, model.AlertLevelMedium)
	default:
		return mo.clear(ctx, r)
	}
}

func (mo *Monitor) checkDrawdown(ctx context.Context, metrics *model.PortfolioMetrics, limits GlobalLimits) error {
	r := metricReading{alertType: model.AlertTypeDrawdown, value: metrics.CurrentDrawdown, limit: limits.MaxPortfolioDrawdown}
	if r.limit <= 0 {
		return nil
	}

	ratio := r.value / r.limit
	switch {
	case ratio >= 1:
		reason := fmt.Sprintf("portfolio drawdown %.2f%% reached limit %.2f%%",
			r.value*100, r.limit*100)
		if mo.manager.Emergency().Trigger(reason) {
			mo.emergencyTotal++
			if err := mo.raiseEmergencyAlert(ctx, reason, r); err != nil {
				return err
			}
			if mo.notifier != nil {
				mo.notifier.BroadcastEmergencyStop(reason)
			}
		}
		return nil
	case ratio >= highThreshold:
		return mo.raise(ctx, r, model.AlertLevelHigh)
	case ratio >= warnThreshold:
		return mo.raise(ctx, r, model.AlertLevelMedium)
	default:
		return mo.clear(ctx, r)
	}
}

func (mo *Monitor) raise(ctx context.Context, r metricReading, level string) error {
	mo.mu.Lock()
	current, exists := mo.activeLevel[r.key()]
	if exists && current == level {
		mo.mu.Unlock()
		return nil
	}
	mo.activeLevel[r.key()] = level
	mo.mu.Unlock()

	message := fmt.Sprintf("%s at %.2f of limit %.2f", r.alertType, r.value, r.limit)
	if r.symbol != "" {
		message = fmt.Sprintf("%s %s at %.2f of limit %.2f", r.alertType, r.symbol, r.value, r.limit)
	}

	alert := &model.RiskAlert{
		ID:      uuid.NewString(),
		Level:   level,
		Type:    r.alertType,
		Message: message,
		Value:   r.value,
		Limit:   r.limit,
		Symbol:  r.symbol,
	}

	logger.WithFields(map[string]interface{}{
		"component": "RiskMonitor",
		"type":      alert.Type,
		"level":     alert.Level,
		"value":     alert.Value,
		"limit":     alert.Limit,
	}).Warn("Risk alert raised")

	if err := mo.alerts.Create(ctx, alert); err != nil {
		return err
	}
	mo.alertsTotal++

	if mo.notifier != nil {
		mo.notifier.BroadcastRiskAlert(alert)
	}
	return nil
}

func (mo *Monitor) raiseEmergencyAlert(ctx context.Context, reason string, r metricReading) error {
	alert := &model.RiskAlert{
		ID:      uuid.NewString(),
		Level:   model.AlertLevelCritical,
		Type:    model.AlertTypeEmergencyStop,
		Message: reason,
		Value:   r.value,
		Limit:   r.limit,
	}
	if err := mo.alerts.Create(ctx, alert); err != nil {
		return err
	}
	mo.alertsTotal++

	if mo.notifier != nil {
		mo.notifier.BroadcastRiskAlert(alert)
	}
	return nil
}

func (mo *Monitor) clear(ctx context.Context, r metricReading) error {
	mo.mu.Lock()
	_, exists := mo.activeLevel[r.key()]
	if exists {
		delete(mo.activeLevel, r.key())
	}
	mo.mu.Unlock()

	if !exists {
		return nil
	}

	logger.WithFields(map[string]interface{}{
		"component": "RiskMonitor",
		"type":      r.alertType,
		"symbol":    r.symbol,
	}).Info("Risk alert resolved, metric back under warning band")

	return mo.alerts.Resolve(ctx, r.alertType, time.Now().UTC())
}

// CleanupExpired drops alerts past the retention window.
func (mo *Monitor) CleanupExpired(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-mo.config.AlertRetention)
	removed, err := mo.alerts.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return err
	}
	if removed > 0 {
		logger.WithFields(map[string]interface{}{
			"component": "RiskMonitor",
			"removed":   removed,
		}).Info("Purged expired risk alerts")
	}
	return nil
}
