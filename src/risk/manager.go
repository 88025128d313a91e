package risk

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	logger "github.com/sirupsen/logrus"

	"tradecontrol/src/model"
)

// ValidationContext carries the shared state one validation pass runs
// against. The metrics snapshot is computed once per tick and reused for
// every strategy, so all signals in a tick see the same portfolio state.
type ValidationContext struct {
	Metrics          *model.PortfolioMetrics
	OpenPositions    []model.Position
	StrategyDailyPnl float64
}

// Manager performs multi-tier trade validation and owns the emergency stop.
type Manager struct {
	mu        sync.RWMutex
	limits    GlobalLimits
	emergency *EmergencyStop

	checksTotal  atomic.Int64
	blockedTotal atomic.Int64
}

func NewManager(limits GlobalLimits, emergency *EmergencyStop) *Manager {
	if emergency == nil {
		emergency = NewEmergencyStop()
	}
	return &Manager{limits: limits, emergency: emergency}
}

// Emergency exposes the kill switch for the engine and the API surface.
func (m *Manager) Emergency() *EmergencyStop {
	return m.emergency
}

// Limits returns the current global limit set.
func (m *Manager) Limits() GlobalLimits {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.limits
}

// SetGlobalLimit adjusts one account-wide limit at runtime. Names follow the
// snake_case keys the API exposes. The new value applies from the next
// validation pass.
func (m *Manager) SetGlobalLimit(name string, value float64) error {
	if value <= 0 {
		return fmt.Errorf("limit %s: value must be positive, got %v", name, value)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	switch name {
	case "max_total_exposure":
		m.limits.MaxTotalExposure = value
	case "max_daily_loss":
		m.limits.MaxDailyLoss = value
	case "max_portfolio_drawdown":
		m.limits.MaxPortfolioDrawdown = value
	case "max_position_risk":
		m.limits.MaxPositionRisk = value
	case "max_correlation_risk":
		m.limits.MaxCorrelationRisk = value
	case "max_single_position":
		m.limits.MaxSinglePosition = value
	case "min_account_balance":
		m.limits.MinAccountBalance = value
	case "max_leverage_global":
		m.limits.MaxLeverageGlobal = value
	case "max_positions":
		m.limits.MaxPositions = int(value)
	default:
		return fmt.Errorf("%w: %s", model.ErrUnknownRiskLimit, name)
	}

	logger.WithFields(map[string]interface{}{
		"component": "RiskManager",
		"limit":     name,
		"value":     value,
	}).Info("Global risk limit updated")

	return nil
}

// Stats returns how many validations ran and how many were blocked.
func (m *Manager) Stats() (checks, blocked int64) {
	return m.checksTotal.Load(), m.blockedTotal.Load()
}

// Validate runs the full check pipeline for one signal. It returns whether
// the trade may proceed and the complete list of violations. Only the
// emergency stop short-circuits; every other tier accumulates so the caller
// sees all problems at once. Exit signals reduce risk and skip the limit
// tiers, but never the emergency gate: while the stop is set every signal
// is rejected.
func (m *Manager) Validate(signal *model.TradingSignal, strat *model.Strategy, vc ValidationContext) (bool, []string) {
	m.checksTotal.Add(1)

	if m.emergency.Active() {
		m.blockedTotal.Add(1)
		return false, []string{"emergency stop active, all trading blocked"}
	}

	if signal.IsExit() {
		return true, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var violations []string
	violations = append(violations, m.checkGlobalLimits(signal, strat, vc)...)
	violations = append(violations, m.checkStrategyLimits(signal, strat, vc)...)
	violations = append(violations, m.checkPortfolioLimits(vc)...)
	violations = append(violations, m.checkPositionRisk(signal, vc)...)
	violations = append(violations, m.checkCorrelationRisk(signal, vc)...)

	if len(violations) > 0 {
		m.blockedTotal.Add(1)
		logger.WithFields(map[string]interface{}{
			"component":   "RiskManager",
			"strategy_id": signal.StrategyID,
			"symbol":      signal.Symbol,
			"action":      signal.Action,
			"violations":  strings.Join(violations, "; "),
		}).Warn("Trade rejected by risk validation")
		return false, violations
	}

	return true, nil
}

func (m *Manager) checkGlobalLimits(signal *model.TradingSignal, strat *model.Strategy, vc ValidationContext) []string {
	var out []string
	metrics := vc.Metrics

	if metrics.TotalExposure+signal.TradeValue() > m.limits.MaxTotalExposure {
		out = append(out, fmt.Sprintf(
			"total exposure %.2f + trade %.2f exceeds limit %.2f",
			metrics.TotalExposure, signal.TradeValue(), m.limits.MaxTotalExposure))
	}

	if metrics.DailyPnl <= -m.limits.MaxDailyLoss {
		out = append(out, fmt.Sprintf(
			"daily loss %.2f reached limit %.2f", -metrics.DailyPnl, m.limits.MaxDailyLoss))
	}

	if metrics.TotalEquity < m.limits.MinAccountBalance {
		out = append(out, fmt.Sprintf(
			"account balance %.2f below minimum %.2f", metrics.TotalEquity, m.limits.MinAccountBalance))
	}

	if metrics.PositionCount >= m.limits.MaxPositions && !hasOpenPosition(vc.OpenPositions, signal.Symbol) {
		out = append(out, fmt.Sprintf(
			"open positions %d at limit %d", metrics.PositionCount, m.limits.MaxPositions))
	}

	if strat.Leverage > m.limits.MaxLeverageGlobal {
		out = append(out, fmt.Sprintf(
			"leverage %.1f exceeds global maximum %.1f", strat.Leverage, m.limits.MaxLeverageGlobal))
	}

	return out
}

func (m *Manager) checkStrategyLimits(signal *model.TradingSignal, strat *model.Strategy, vc ValidationContext) []string {
	var out []string

	maxPositionSize := strat.RiskLimit("max_position_size", DefaultMaxPositionSize)
	if signal.TradeValue() > maxPositionSize {
		out = append(out, fmt.Sprintf(
			"trade value %.2f exceeds strategy position size limit %.2f",
			signal.TradeValue(), maxPositionSize))
	}

	maxDailyLoss := strat.RiskLimit("max_daily_loss", DefaultMaxDailyLoss)
	if vc.StrategyDailyPnl <= -maxDailyLoss {
		out = append(out, fmt.Sprintf(
			"strategy daily loss %.2f reached limit %.2f", -vc.StrategyDailyPnl, maxDailyLoss))
	}

	maxLeverage := strat.RiskLimit("max_leverage", DefaultMaxLeverage)
	if strat.Leverage > maxLeverage {
		out = append(out, fmt.Sprintf(
			"leverage %.1f exceeds strategy maximum %.1f", strat.Leverage, maxLeverage))
	}

	return out
}

func (m *Manager) checkPortfolioLimits(vc ValidationContext) []string {
	var out []string

	if vc.Metrics.CurrentDrawdown >= m.limits.MaxPortfolioDrawdown {
		out = append(out, fmt.Sprintf(
			"portfolio drawdown %.2f%% at limit %.2f%%",
			vc.Metrics.CurrentDrawdown*100, m.limits.MaxPortfolioDrawdown*100))
	}

	return out
}

func (m *Manager) checkPositionRisk(signal *model.TradingSignal, vc ValidationContext) []string {
	var out []string

	equity := vc.Metrics.TotalEquity
	if equity <= 0 {
		return out
	}

	if share := signal.TradeValue() / equity; share > m.limits.MaxSinglePosition {
		out = append(out, fmt.Sprintf(
			"position share %.2f%% of equity exceeds limit %.2f%%",
			share*100, m.limits.MaxSinglePosition*100))
	}

	// Adding to an open position must keep the combined size under the same
	// ceiling, so a symbol cannot be grown past it trade by trade.
	if current, open := signedOpenSize(vc.OpenPositions, signal.Symbol); open {
		delta := signal.Quantity
		if signal.Action == model.SignalActionSell {
			delta = -delta
		}
		lev := signal.Leverage
		if lev < 1 {
			lev = 1
		}
		resulting := abs(current+delta) * signal.Price * lev
		if share := resulting / equity; share > m.limits.MaxSinglePosition {
			out = append(out, fmt.Sprintf(
				"resulting position share %.2f%% of equity exceeds limit %.2f%%",
				share*100, m.limits.MaxSinglePosition*100))
		}
	}

	// Risk per trade is measured by the distance to the stop. A signal
	// without a stop is judged on notional share alone.
	if signal.StopLoss != nil {
		riskAmount := abs(signal.Price-*signal.StopLoss) * signal.Quantity
		if riskShare := riskAmount / equity; riskShare > m.limits.MaxPositionRisk {
			out = append(out, fmt.Sprintf(
				"stop distance risks %.2f%% of equity, limit %.2f%%",
				riskShare*100, m.limits.MaxPositionRisk*100))
		}
	}

	return out
}

func (m *Manager) checkCorrelationRisk(signal *model.TradingSignal, vc ValidationContext) []string {
	var out []string

	total := len(vc.OpenPositions)
	if total <= 5 {
		return out
	}

	usdtQuoted := 0
	for _, p := range vc.OpenPositions {
		if strings.HasSuffix(p.Symbol, "USDT") {
			usdtQuoted++
		}
	}

	if strings.HasSuffix(signal.Symbol, "USDT") {
		share := float64(usdtQuoted) / float64(total)
		if share > m.limits.MaxCorrelationRisk {
			out = append(out, fmt.Sprintf(
				"%.0f%% of open positions share USDT quote, correlation limit %.0f%%",
				share*100, m.limits.MaxCorrelationRisk*100))
		}
	}

	return out
}

func hasOpenPosition(positions []model.Position, symbol string) bool {
	for _, p := range positions {
		if p.Symbol == symbol {
			return true
		}
	}
	return false
}

// signedOpenSize returns the open size for a symbol, negative for shorts.
func signedOpenSize(positions []model.Position, symbol string) (float64, bool) {
	for _, p := range positions {
		if p.Symbol == symbol {
			if p.Side == model.PositionSideShort {
				return -p.Size, true
			}
			return p.Size, true
		}
	}
	return 0, false
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
