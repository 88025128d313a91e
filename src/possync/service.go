package possync

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	logger "github.com/sirupsen/logrus"

	"tradecontrol/src/exchange"
	"tradecontrol/src/model"
	"tradecontrol/src/notify"
)

// PositionStore is the persistence surface the synchronizer needs.
type PositionStore interface {
	Upsert(ctx context.Context, p *model.Position) error
	MarkClosed(ctx context.Context, id string, realizedPnl float64, at time.Time) error
}

// ConnectionSource lists the exchange connections to reconcile.
type ConnectionSource interface {
	ListActive(ctx context.Context) ([]model.ExchangeConnection, error)
}

// Stats is the running reconciliation tally.
type Stats struct {
	Cycles      uint64     `json:"cycles"`
	Changes     uint64     `json:"changes"`
	Errors      uint64     `json:"errors"`
	LastSyncAt  *time.Time `json:"last_sync_at,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
	CachedOpen  int        `json:"cached_open"`
	Connections int        `json:"connections"`
}

// Service owns the authoritative local position cache. Each cycle it pulls
// the full position list per connection, diffs it against the cached view,
// persists and broadcasts the changes, and swaps in the new snapshot. The
// swap is copy-on-write per connection, so readers never observe a
// half-reconciled connection.
type Service struct {
	provider    exchange.Provider
	connections ConnectionSource
	store       PositionStore
	notifier    notify.Notifier
	thresholds  Thresholds

	syncMu sync.Mutex

	mu    sync.RWMutex
	cache map[uint]map[string]model.Position

	statsMu sync.Mutex
	stats   Stats
}

func NewService(provider exchange.Provider, connections ConnectionSource, store PositionStore, notifier notify.Notifier, thresholds Thresholds) *Service {
	if notifier == nil {
		notifier = notify.Nop{}
	}

	return &Service{
		provider:    provider,
		connections: connections,
		store:       store,
		notifier:    notifier,
		thresholds:  thresholds,
		cache:       make(map[uint]map[string]model.Position),
	}
}

func positionID(connectionID uint, symbol string) string {
	return fmt.Sprintf("pos_%d_%s", connectionID, symbol)
}

// SyncAll reconciles every active connection once and blocks until the cycle
// completes. A connection whose exchange call fails keeps its previous cache
// for this cycle; the cycle itself never aborts for one connection's failure.
func (s *Service) SyncAll(ctx context.Context) error {
	s.syncMu.Lock()
	defer s.syncMu.Unlock()

	conns, err := s.connections.ListActive(ctx)
	if err != nil {
		s.recordError(err)
		return fmt.Errorf("list active connections: %w", err)
	}

	changed := 0
	failed := 0
	for _, conn := range conns {
		n, err := s.reconcileConnection(ctx, conn.ID)
		if err != nil {
			failed++
			s.recordError(err)
			logger.WithError(err).WithFields(map[string]interface{}{
				"component":  "PositionSync",
				"connection": conn.ID,
			}).Warn("Reconciliation failed for connection, keeping cached view")
			continue
		}
		changed += n
	}

	now := time.Now().UTC()
	s.statsMu.Lock()
	s.stats.Cycles++
	s.stats.Changes += uint64(changed)
	s.stats.LastSyncAt = &now
	s.stats.Connections = len(conns)
	s.statsMu.Unlock()

	if changed > 0 {
		s.notifier.BroadcastPositionSummary(s.PositionSummary())
	}

	logger.WithFields(map[string]interface{}{
		"component":   "PositionSync",
		"connections": len(conns),
		"changes":     changed,
		"failed":      failed,
	}).Debug("Reconciliation cycle complete")

	return nil
}

// ForceSync runs an out-of-band cycle immediately, bypassing the timer.
func (s *Service) ForceSync(ctx context.Context) error {
	return s.SyncAll(ctx)
}

func (s *Service) reconcileConnection(ctx context.Context, connectionID uint) (int, error) {
	client, err := s.provider.ClientForConnection(ctx, connectionID)
	if err != nil {
		return 0, err
	}

	remote, err := client.GetPositions(ctx)
	if err != nil {
		return 0, fmt.Errorf("get positions for connection %d: %w", connectionID, err)
	}

	s.mu.RLock()
	before := s.cache[connectionID]
	s.mu.RUnlock()

	after := make(map[string]model.Position, len(remote))
	now := time.Now().UTC()
	for _, data := range remote {
		after[data.Symbol] = s.toPosition(connectionID, data, before, now)
	}

	changes := diff(before, after, s.thresholds)

	for i := range changes {
		change := &changes[i]
		if err := s.persistChange(ctx, change, now); err != nil {
			return 0, err
		}
		s.notifier.BroadcastPositionChange(change)
	}

	// Swap in the fresh snapshot only after everything persisted, so a
	// storage failure retries the same diff next cycle.
	s.mu.Lock()
	s.cache[connectionID] = after
	s.mu.Unlock()

	return len(changes), nil
}

func (s *Service) toPosition(connectionID uint, data exchange.PositionData, before map[string]model.Position, now time.Time) model.Position {
	p := model.Position{
		ID:               positionID(connectionID, data.Symbol),
		ConnectionID:     connectionID,
		Symbol:           data.Symbol,
		Side:             data.Side,
		Size:             data.Size,
		EntryPrice:       data.EntryPrice,
		MarkPrice:        data.MarkPrice,
		UnrealizedPnl:    data.UnrealizedPnl,
		RealizedPnl:      data.RealizedPnl,
		Leverage:         data.Leverage,
		MarginMode:       data.MarginMode,
		LiquidationPrice: data.LiquidationPrice,
		Status:           model.PositionStatusOpen,
		OpenedAt:         now,
		UpdatedAt:        now,
	}

	if notional := data.EntryPrice * data.Size; notional > 0 {
		p.PnlPercentage = data.UnrealizedPnl / notional * 100
	}

	if prev, ok := before[data.Symbol]; ok {
		p.OpenedAt = prev.OpenedAt
	}

	return p
}

func (s *Service) persistChange(ctx context.Context, change *model.PositionChange, now time.Time) error {
	switch change.Type {
	case model.PositionChangeClosed:
		// The last observed unrealized pnl is the best realized figure
		// available without a fills feed.
		return s.store.MarkClosed(ctx, change.Position.ID, change.Position.UnrealizedPnl, now)
	default:
		p := change.Position
		return s.store.Upsert(ctx, &p)
	}
}

// diff classifies the delta between two per-connection snapshots. Updated
// events carry only the fields that drifted past their noise threshold.
func diff(before, after map[string]model.Position, t Thresholds) []model.PositionChange {
	var changes []model.PositionChange

	for symbol, next := range after {
		prev, existed := before[symbol]
		if !existed {
			changes = append(changes, model.PositionChange{
				Type:     model.PositionChangeNew,
				Position: next,
			})
			continue
		}

		drifted := map[string]float64{}
		if math.Abs(next.Size-prev.Size) > t.Size {
			drifted["size"] = next.Size
		}
		if math.Abs(next.UnrealizedPnl-prev.UnrealizedPnl) > t.UnrealizedPnl {
			drifted["unrealized_pnl"] = next.UnrealizedPnl
		}
		if math.Abs(next.MarkPrice-prev.MarkPrice) > t.MarkPrice {
			drifted["mark_price"] = next.MarkPrice
		}
		if math.Abs(next.PnlPercentage-prev.PnlPercentage) > t.PnlPct {
			drifted["pnl_percentage"] = next.PnlPercentage
		}

		if len(drifted) > 0 {
			changes = append(changes, model.PositionChange{
				Type:     model.PositionChangeUpdated,
				Position: next,
				Changes:  drifted,
			})
		}
	}

	for symbol, prev := range before {
		if _, still := after[symbol]; !still {
			closed := prev
			closed.Status = model.PositionStatusClosed
			changes = append(changes, model.PositionChange{
				Type:     model.PositionChangeClosed,
				Position: closed,
			})
		}
	}

	return changes
}

// OpenPositions returns an immutable snapshot of every cached open position.
func (s *Service) OpenPositions() []model.Position {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Position
	for _, conn := range s.cache {
		for _, p := range conn {
			out = append(out, p)
		}
	}
	return out
}

// Position returns the cached position for one connection and symbol, or nil.
func (s *Service) Position(connectionID uint, symbol string) *model.Position {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if conn, ok := s.cache[connectionID]; ok {
		if p, ok := conn[symbol]; ok {
			return &p
		}
	}
	return nil
}

// PositionSummary aggregates the cache for broadcast and status endpoints.
func (s *Service) PositionSummary() *model.PositionSummary {
	positions := s.OpenPositions()

	summary := &model.PositionSummary{TotalPositions: len(positions)}
	for _, p := range positions {
		summary.TotalUnrealizedPnl += p.UnrealizedPnl
		summary.TotalValue += p.Value()
		if p.UnrealizedPnl > 0 {
			summary.WinningPositions++
		} else if p.UnrealizedPnl < 0 {
			summary.LosingPositions++
		}
	}
	if summary.TotalPositions > 0 {
		summary.WinRate = float64(summary.WinningPositions) / float64(summary.TotalPositions)
	}

	return summary
}

// ClosePosition submits a reduce-only market order against the cached
// position and forces a reconciliation so the cache reflects the closure
// promptly. A nil quantity closes the full size.
func (s *Service) ClosePosition(ctx context.Context, connectionID uint, symbol string, quantity *float64) error {
	cached := s.Position(connectionID, symbol)
	if cached == nil {
		return fmt.Errorf("close %s on connection %d: %w", symbol, connectionID, model.ErrPositionNotFound)
	}

	qty := cached.Size
	if quantity != nil && *quantity > 0 && *quantity < cached.Size {
		qty = *quantity
	}

	side := "Sell"
	if cached.Side == model.PositionSideShort {
		side = "Buy"
	}

	client, err := s.provider.ClientForConnection(ctx, connectionID)
	if err != nil {
		return err
	}

	result, err := client.PlaceOrder(ctx, exchange.OrderParams{
		Symbol:     symbol,
		Side:       side,
		OrderType:  "Market",
		Qty:        qty,
		ReduceOnly: true,
	})
	if err != nil {
		return fmt.Errorf("close order for %s: %w", symbol, err)
	}

	logger.WithFields(map[string]interface{}{
		"component":  "PositionSync",
		"connection": connectionID,
		"symbol":     symbol,
		"qty":        qty,
		"order_id":   result.OrderID,
	}).Info("Submitted reduce-only close order")

	return s.ForceSync(ctx)
}

// Stats returns a copy of the reconciliation counters.
func (s *Service) Stats() Stats {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()

	stats := s.stats
	stats.CachedOpen = len(s.OpenPositions())
	return stats
}

func (s *Service) recordError(err error) {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	s.stats.Errors++
	s.stats.LastError = err.Error()
}
