// Package engine runs registered strategies through their state machine:
// each tick it fetches market data, generates signals, validates them against
// the risk manager, and hands approved trades to the order executor. One
// strategy's fault never aborts its siblings.
package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	logger "github.com/sirupsen/logrus"

	"tradecontrol/src/ai"
	"tradecontrol/src/exchange"
	"tradecontrol/src/model"
	"tradecontrol/src/monitoring"
	"tradecontrol/src/notify"
	"tradecontrol/src/risk"
	"tradecontrol/src/strategy"
)

// StrategyStore is the persistence surface the engine needs for strategies.
type StrategyStore interface {
	Create(ctx context.Context, s *model.Strategy) error
	ListAll(ctx context.Context) ([]model.Strategy, error)
	UpdateStatus(ctx context.Context, id uint, status, lastError string) error
	UpdateRiskLimits(ctx context.Context, id uint, limits map[string]any) error
	TouchLastSignal(ctx context.Context, id uint, at time.Time) error
	TouchLastExecution(ctx context.Context, id uint, at time.Time) error
}

// TradeStore records executions and feeds the daily pnl computation.
type TradeStore interface {
	Create(ctx context.Context, t *model.Trade) error
	ListSince(ctx context.Context, since time.Time) ([]model.Trade, error)
}

// PositionSource exposes the synchronizer's open-position snapshot.
type PositionSource interface {
	OpenPositions() []model.Position
}

// ConnectionSource lists the connections whose balances make up equity.
type ConnectionSource interface {
	ListActive(ctx context.Context) ([]model.ExchangeConnection, error)
}

var validTransitions = map[string][]string{
	model.StrategyStatusInactive: {model.StrategyStatusActive, model.StrategyStatusStopped},
	model.StrategyStatusActive:   {model.StrategyStatusPaused, model.StrategyStatusError, model.StrategyStatusStopped},
	model.StrategyStatusPaused:   {model.StrategyStatusActive, model.StrategyStatusStopped},
	model.StrategyStatusError:    {model.StrategyStatusActive, model.StrategyStatusStopped},
	model.StrategyStatusStopped:  {model.StrategyStatusActive},
}

const defaultQtyStep = 0.001

func canTransition(from, to string) bool {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Engine owns the strategy registry and the per-tick execution pipeline.
type Engine struct {
	config      *Config
	strategies  StrategyStore
	trades      TradeStore
	connections ConnectionSource
	provider    exchange.Provider
	riskManager *risk.Manager
	aggregator  *risk.Aggregator
	positions   PositionSource
	notifier    notify.Notifier
	advisor     ai.Advisor
	executor    *OrderExecutor

	mu       sync.RWMutex
	registry map[uint]*model.Strategy

	startedAt     time.Time
	ticksTotal    atomic.Int64
	signalsTotal  atomic.Int64
	executedTotal atomic.Int64
	failedTotal   atomic.Int64
	rejectedTotal atomic.Int64
	faultsTotal   atomic.Int64
}

func NewEngine(
	config *Config,
	strategies StrategyStore,
	trades TradeStore,
	connections ConnectionSource,
	provider exchange.Provider,
	riskManager *risk.Manager,
	aggregator *risk.Aggregator,
	positions PositionSource,
	notifier notify.Notifier,
	advisor ai.Advisor,
) *Engine {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if advisor == nil {
		advisor = ai.Nop{}
	}

	return &Engine{
		config:      config,
		strategies:  strategies,
		trades:      trades,
		connections: connections,
		provider:    provider,
		riskManager: riskManager,
		aggregator:  aggregator,
		positions:   positions,
		notifier:    notifier,
		advisor:     advisor,
		executor:    NewOrderExecutor(provider, trades, notifier),
		registry:    make(map[uint]*model.Strategy),
		startedAt:   time.Now().UTC(),
	}
}

// LoadStrategies fills the registry from storage. Called once at startup.
func (e *Engine) LoadStrategies(ctx context.Context) error {
	all, err := e.strategies.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("load strategies: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range all {
		s := all[i]
		e.registry[s.ID] = &s
	}

	logger.WithFields(map[string]interface{}{
		"component":  "Engine",
		"strategies": len(all),
	}).Info("Strategy registry loaded")
	return nil
}

// AddStrategy registers and persists a new strategy in inactive status.
func (e *Engine) AddStrategy(ctx context.Context, s *model.Strategy) error {
	if s.Type == "" || s.Symbol == "" {
		return fmt.Errorf("strategy needs a type and a symbol")
	}
	if _, err := strategy.ForType(s.Type); err != nil {
		return err
	}
	s.Status = model.StrategyStatusInactive

	if err := e.strategies.Create(ctx, s); err != nil {
		return err
	}

	e.mu.Lock()
	e.registry[s.ID] = s
	e.mu.Unlock()

	logger.WithFields(map[string]interface{}{
		"component": "Engine",
		"strategy":  s.Name,
		"type":      s.Type,
		"symbol":    s.Symbol,
	}).Info("Strategy added")
	return nil
}

// Activate moves a strategy into active status.
func (e *Engine) Activate(ctx context.Context, id uint) error {
	return e.transition(ctx, id, model.StrategyStatusActive, "")
}

// Pause suspends signal generation for a strategy without removing it.
func (e *Engine) Pause(ctx context.Context, id uint) error {
	return e.transition(ctx, id, model.StrategyStatusPaused, "")
}

// RemoveStrategy stops the strategy and drops it from the registry. The
// persisted row stays for trade history.
func (e *Engine) RemoveStrategy(ctx context.Context, id uint) error {
	if err := e.transition(ctx, id, model.StrategyStatusStopped, ""); err != nil {
		return err
	}

	e.mu.Lock()
	delete(e.registry, id)
	e.mu.Unlock()
	return nil
}

// SetStrategyLimits replaces the per-strategy risk limit overrides. The new
// values apply from the next validation pass.
func (e *Engine) SetStrategyLimits(ctx context.Context, id uint, limits map[string]any) error {
	for name, v := range limits {
		f, ok := v.(float64)
		if !ok || f <= 0 {
			return fmt.Errorf("limit %s: value must be a positive number", name)
		}
	}

	e.mu.Lock()
	s, ok := e.registry[id]
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("strategy %d: %w", id, model.ErrStrategyNotFound)
	}
	s.RiskLimits = limits
	e.mu.Unlock()

	if err := e.strategies.UpdateRiskLimits(ctx, id, limits); err != nil {
		logger.WithError(err).WithFields(map[string]interface{}{
			"component": "Engine",
			"strategy":  id,
		}).Warn("Failed to persist strategy risk limits")
	}

	logger.WithFields(map[string]interface{}{
		"component": "Engine",
		"strategy":  id,
		"limits":    limits,
	}).Info("Strategy risk limits updated")

	return nil
}

func (e *Engine) transition(ctx context.Context, id uint, to, lastError string) error {
	e.mu.Lock()
	s, ok := e.registry[id]
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("strategy %d: %w", id, model.ErrStrategyNotFound)
	}
	from := s.Status
	if !canTransition(from, to) {
		e.mu.Unlock()
		return fmt.Errorf("strategy %d cannot go from %s to %s: %w", id, from, to, model.ErrInvalidTransition)
	}
	s.Status = to
	s.LastError = lastError
	e.mu.Unlock()

	if err := e.strategies.UpdateStatus(ctx, id, to, lastError); err != nil {
		// Memory is the source of truth for the running process; the
		// persisted status catches up on the next successful write.
		logger.WithError(err).WithFields(map[string]interface{}{
			"component": "Engine",
			"strategy":  id,
		}).Warn("Failed to persist strategy status")
	}

	logger.WithFields(map[string]interface{}{
		"component": "Engine",
		"strategy":  id,
		"from":      from,
		"to":        to,
	}).Info("Strategy status changed")
	return nil
}

// Strategy returns a copy of one registered strategy.
func (e *Engine) Strategy(id uint) (*model.Strategy, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	s, ok := e.registry[id]
	if !ok {
		return nil, fmt.Errorf("strategy %d: %w", id, model.ErrStrategyNotFound)
	}
	copied := *s
	return &copied, nil
}

// Strategies returns a copy of the whole registry.
func (e *Engine) Strategies() []model.Strategy {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]model.Strategy, 0, len(e.registry))
	for _, s := range e.registry {
		out = append(out, *s)
	}
	return out
}

func (e *Engine) activeStrategies() []model.Strategy {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var out []model.Strategy
	for _, s := range e.registry {
		if s.Status == model.StrategyStatusActive {
			out = append(out, *s)
		}
	}
	return out
}

// PortfolioSnapshot computes one metrics snapshot from the summed wallet
// balances of every active connection and the synchronizer's position cache.
func (e *Engine) PortfolioSnapshot(ctx context.Context) (*model.PortfolioMetrics, error) {
	conns, err := e.connections.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}

	var equity, available float64
	for _, conn := range conns {
		client, err := e.provider.ClientForConnection(ctx, conn.ID)
		if err != nil {
			return nil, err
		}
		balance, err := client.GetWalletBalance(ctx)
		if err != nil {
			return nil, fmt.Errorf("wallet balance for connection %d: %w", conn.ID, err)
		}
		equity += balance.TotalEquity
		available += balance.AvailableBalance
	}

	return e.aggregator.Snapshot(ctx, equity, available, e.positions.OpenPositions())
}

// Tick runs one execution pass over every active strategy. All strategies in
// the pass validate against the same metrics snapshot, taken at tick start.
func (e *Engine) Tick(ctx context.Context) error {
	e.ticksTotal.Add(1)
	actives := e.activeStrategies()
	e.updateStatusGauge()
	if len(actives) == 0 {
		return nil
	}

	started := time.Now()
	defer func() {
		monitoring.TickDuration.Observe(time.Since(started).Seconds())
	}()

	metrics, err := e.PortfolioSnapshot(ctx)
	if err != nil {
		return fmt.Errorf("portfolio snapshot: %w", err)
	}
	monitoring.PortfolioExposure.Set(metrics.TotalExposure)

	openPositions := e.positions.OpenPositions()
	dailyPnl, err := e.strategyDailyPnl(ctx)
	if err != nil {
		logger.WithError(err).WithField("component", "Engine").
			Warn("Daily pnl unavailable, validating without strategy pnl")
		dailyPnl = map[uint]float64{}
	}

	sem := make(chan struct{}, e.config.MaxConcurrent)
	var wg sync.WaitGroup
	for i := range actives {
		strat := actives[i]
		wg.Add(1)
		sem <- struct{}{}

		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			defer func() {
				if r := recover(); r != nil {
					e.markError(ctx, strat.ID, strat.Type, fmt.Sprintf("panic: %v", r))
				}
			}()

			strategyCtx, cancel := context.WithTimeout(ctx,
				time.Duration(e.config.StrategyTimeoutSec)*time.Second)
			defer cancel()

			vc := risk.ValidationContext{
				Metrics:          metrics,
				OpenPositions:    openPositions,
				StrategyDailyPnl: dailyPnl[strat.ID],
			}
			e.processStrategy(strategyCtx, strat, vc)
		}()
	}
	wg.Wait()

	return nil
}

func (e *Engine) processStrategy(ctx context.Context, strat model.Strategy, vc risk.ValidationContext) {
	log := logger.WithFields(map[string]interface{}{
		"component": "Engine",
		"strategy":  strat.Name,
		"symbol":    strat.Symbol,
	})

	gen, err := strategy.ForType(strat.Type)
	if err != nil {
		e.markError(ctx, strat.ID, strat.Type, err.Error())
		return
	}

	client, err := e.provider.ClientForConnection(ctx, strat.ConnectionID)
	if err != nil {
		e.markError(ctx, strat.ID, strat.Type, err.Error())
		return
	}

	bars := e.config.CandleLimit
	if need := gen.MinBars() + 1; bars < need {
		bars = need
	}
	klines, err := client.GetKlines(ctx, strat.Symbol, e.config.CandleInterval, bars)
	if err != nil {
		// Transient exchange errors resolve on a later tick.
		log.WithError(err).Warn("Candle fetch failed, retrying next tick")
		return
	}
	if len(klines) == 0 {
		return
	}

	closes := make([]float64, len(klines))
	for i, k := range klines {
		closes[i] = k.Close
	}
	snapshot := strategy.MarketSnapshot{
		Symbol:    strat.Symbol,
		Closes:    closes,
		Price:     closes[len(closes)-1],
		Timestamp: klines[len(klines)-1].Start,
	}

	signal, err := gen.Generate(&strat, snapshot)
	if err != nil {
		e.markError(ctx, strat.ID, strat.Type, err.Error())
		return
	}
	if signal == nil || signal.Action == model.SignalActionHold {
		return
	}

	signal.ID = uuid.NewString()
	signal.StrategyID = strat.ID
	if signal.Leverage == 0 {
		signal.Leverage = strat.Leverage
	}
	signal.CreatedAt = time.Now().UTC()

	// A configured risk_per_trade overrides the generator's fixed quantity:
	// the position is sized so a stop-out loses at most that share of equity.
	if riskPct := strat.RiskLimit("risk_per_trade", 0); riskPct > 0 && signal.StopLoss != nil && !signal.IsExit() {
		qty := risk.QtyFromRisk(vc.Metrics.TotalEquity, riskPct, signal.Price, *signal.StopLoss)
		qty = risk.RoundStep(qty, strat.RiskLimit("qty_step", defaultQtyStep))
		if qty > 0 {
			signal.Quantity = qty
		}
	}

	e.signalsTotal.Add(1)
	monitoring.RecordSignal(strat.Type, signal.Action)
	e.notifier.BroadcastSignal(signal)
	if err := e.strategies.TouchLastSignal(ctx, strat.ID, signal.CreatedAt); err != nil {
		log.WithError(err).Warn("Failed to record signal time")
	}

	if hint, err := e.advisor.SuggestParameters(ctx, ai.MarketContext{
		Symbol: strat.Symbol,
		Price:  snapshot.Price,
		Closes: closes,
		AsOf:   snapshot.Timestamp,
	}); err == nil && hint != nil {
		log.WithFields(map[string]interface{}{
			"hint_action":     hint.Action,
			"hint_confidence": hint.Confidence,
		}).Info("Advisor hint received")
	}

	accepted, violations := e.riskManager.Validate(signal, &strat, vc)
	monitoring.RecordRiskCheck(accepted)
	if !accepted {
		e.rejectedTotal.Add(1)
		log.WithFields(map[string]interface{}{
			"action":     signal.Action,
			"violations": violations,
		}).Info("Signal rejected by risk validation")
		return
	}

	if _, err := e.executor.Execute(ctx, &strat, signal); err != nil {
		// Execution failures are recorded on the trade log; the strategy
		// keeps running and tries again on a later signal.
		e.failedTotal.Add(1)
		log.WithError(err).Warn("Order execution failed")
		return
	}
	e.executedTotal.Add(1)

	executedAt := time.Now().UTC()
	e.touchExecution(strat.ID, executedAt)
	if err := e.strategies.TouchLastExecution(ctx, strat.ID, executedAt); err != nil {
		log.WithError(err).Warn("Failed to record execution time")
	}
}

// touchExecution updates the in-memory registry copy so status queries see
// the execution immediately, independent of the persisted row.
func (e *Engine) touchExecution(id uint, at time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if s, ok := e.registry[id]; ok {
		s.LastExecutionAt = &at
	}
}

func (e *Engine) markError(ctx context.Context, id uint, strategyType, reason string) {
	e.faultsTotal.Add(1)
	monitoring.StrategyFaults.WithLabelValues(strategyType).Inc()

	if err := e.transition(ctx, id, model.StrategyStatusError, reason); err != nil {
		logger.WithError(err).WithFields(map[string]interface{}{
			"component": "Engine",
			"strategy":  id,
		}).Error("Failed to mark strategy as errored")
	}
}

func (e *Engine) strategyDailyPnl(ctx context.Context) (map[uint]float64, error) {
	midnight := time.Now().UTC().Truncate(24 * time.Hour)
	trades, err := e.trades.ListSince(ctx, midnight)
	if err != nil {
		return nil, err
	}

	out := make(map[uint]float64)
	for _, t := range trades {
		if t.Status == model.TradeStatusFilled {
			out[t.StrategyID] += t.Pnl
		}
	}
	return out, nil
}

func (e *Engine) updateStatusGauge() {
	e.mu.RLock()
	counts := map[string]int{}
	for _, s := range e.registry {
		counts[s.Status]++
	}
	e.mu.RUnlock()

	for _, status := range []string{
		model.StrategyStatusInactive, model.StrategyStatusActive,
		model.StrategyStatusPaused, model.StrategyStatusError,
		model.StrategyStatusStopped,
	} {
		monitoring.ActiveStrategies.WithLabelValues(status).Set(float64(counts[status]))
	}
}

// Status reports the engine's registry and execution counters.
func (e *Engine) Status() map[string]interface{} {
	counts := map[string]int{}
	for _, s := range e.Strategies() {
		counts[s.Status]++
	}

	checks, blocked := e.riskManager.Stats()
	return map[string]interface{}{
		"running":           true,
		"uptime_sec":        int(time.Since(e.startedAt).Seconds()),
		"strategies":        counts,
		"ticks":             e.ticksTotal.Load(),
		"signals_generated": e.signalsTotal.Load(),
		"trades_executed":   e.executedTotal.Load(),
		"executions_failed": e.failedTotal.Load(),
		"signals_rejected":  e.rejectedTotal.Load(),
		"strategy_faults":   e.faultsTotal.Load(),
		"risk_checks":       checks,
		"risk_blocked":      blocked,
		"emergency_stop":    e.riskManager.Emergency().Active(),
	}
}
