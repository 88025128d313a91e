package trailing

import (
	"context"
	"fmt"

	logger "github.com/sirupsen/logrus"

	"tradecontrol/src/exchange"
	"tradecontrol/src/model"
)

// PositionSource lists the currently open positions to trail.
type PositionSource interface {
	OpenPositions() []model.Position
}

// Manager ratchets exchange-side stop losses behind winning positions. It
// keeps the last stop it pushed per position so an unchanged candidate is
// not re-sent every cycle.
type Manager struct {
	provider  exchange.Provider
	positions PositionSource
	config    *Config

	stops map[string]float64
}

func NewManager(provider exchange.Provider, positions PositionSource, config *Config) *Manager {
	if config == nil {
		config = GetConfig()
	}

	return &Manager{
		provider:  provider,
		positions: positions,
		config:    config,
		stops:     make(map[string]float64),
	}
}

// Run adjusts the trailing stop for every open position once. A failure on
// one position does not block the others. Run is meant to be driven by the
// scheduler and is not safe for concurrent calls.
func (m *Manager) Run(ctx context.Context) error {
	open := m.positions.OpenPositions()

	seen := make(map[string]bool, len(open))
	var firstErr error
	for _, pos := range open {
		seen[pos.ID] = true

		if err := m.trailPosition(ctx, pos); err != nil {
			logger.WithError(err).WithFields(map[string]interface{}{
				"component": "TrailingStop",
				"position":  pos.ID,
			}).Warn("Failed to trail stop loss")
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	// Forget stops for positions that closed since the last cycle.
	for id := range m.stops {
		if !seen[id] {
			delete(m.stops, id)
		}
	}

	return firstErr
}

func (m *Manager) trailPosition(ctx context.Context, pos model.Position) error {
	client, err := m.provider.ClientForConnection(ctx, pos.ConnectionID)
	if err != nil {
		return fmt.Errorf("client for connection %d: %w", pos.ConnectionID, err)
	}

	limit := m.config.Lookback + 2
	klines, err := client.GetKlines(ctx, pos.Symbol, m.config.CandleInterval, limit)
	if err != nil {
		return fmt.Errorf("get klines for %s: %w", pos.Symbol, err)
	}

	newSL, moved := NextStopLoss(pos.Side, m.stops[pos.ID], klines, m.config.Lookback)
	if !moved {
		return nil
	}

	if err := client.SetTradingStop(ctx, pos.Symbol, &newSL, nil); err != nil {
		return fmt.Errorf("set trading stop for %s: %w", pos.Symbol, err)
	}
	m.stops[pos.ID] = newSL

	logger.WithFields(map[string]interface{}{
		"component": "TrailingStop",
		"position":  pos.ID,
		"side":      pos.Side,
		"stop_loss": newSL,
	}).Info("Moved trailing stop")

	return nil
}
