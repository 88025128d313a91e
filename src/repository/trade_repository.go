package repository

import (
	"context"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"tradecontrol/src/database"
	"tradecontrol/src/model"
)

// TradeRepository persists executed and attempted trades.
type TradeRepository struct {
	db *gorm.DB
}

func NewTradeRepository() *TradeRepository {
	logger.WithField("component", "TradeRepository").
		Info("Creating new TradeRepository with MainDB")

	return &TradeRepository{
		db: database.MainDB,
	}
}

func NewTradeRepositoryWithDB(db *gorm.DB) *TradeRepository {
	return &TradeRepository{db: db}
}

// Create inserts a new trade record.
func (r *TradeRepository) Create(ctx context.Context, t *model.Trade) error {
	logger.WithFields(map[string]interface{}{
		"repo":        "TradeRepository",
		"op":          "Create",
		"trade_id":    t.ID,
		"strategy_id": t.StrategyID,
		"symbol":      t.Symbol,
		"side":        t.Side,
		"qty":         t.Quantity,
	}).Debug("Recording trade")

	return r.db.WithContext(ctx).Create(t).Error
}

// ListByStrategy returns the most recent trades for one strategy.
func (r *TradeRepository) ListByStrategy(ctx context.Context, strategyID uint, limit int) ([]model.Trade, error) {
	if limit <= 0 {
		limit = 100
	}
	var out []model.Trade
	err := r.db.WithContext(ctx).
		Where("strategy_id = ?", strategyID).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// ListSince returns all trades created at or after the given time.
func (r *TradeRepository) ListSince(ctx context.Context, since time.Time) ([]model.Trade, error) {
	var out []model.Trade
	err := r.db.WithContext(ctx).
		Where("created_at >= ?", since).
		Order("created_at ASC").
		Find(&out).Error
	return out, err
}

// GetTradingStats aggregates filled trades over the trailing window.
// Only trades with a recorded pnl participate in the win/loss averages.
func (r *TradeRepository) GetTradingStats(ctx context.Context, days int) (*model.TradingStats, error) {
	if days <= 0 {
		days = 30
	}
	since := time.Now().AddDate(0, 0, -days)

	var trades []model.Trade
	err := r.db.WithContext(ctx).
		Where("status = ? AND created_at >= ?", model.TradeStatusFilled, since).
		Find(&trades).Error
	if err != nil {
		return nil, err
	}

	stats := &model.TradingStats{TotalTrades: len(trades)}
	var winSum, lossSum float64
	for _, t := range trades {
		stats.TotalPnl += t.Pnl
		switch {
		case t.Pnl > 0:
			stats.WinningTrades++
			winSum += t.Pnl
		case t.Pnl < 0:
			stats.LosingTrades++
			lossSum += t.Pnl
		}
	}
	if stats.WinningTrades > 0 {
		stats.AvgWin = winSum / float64(stats.WinningTrades)
	}
	if stats.LosingTrades > 0 {
		stats.AvgLoss = lossSum / float64(stats.LosingTrades)
	}
	if stats.TotalTrades > 0 {
		stats.WinRate = float64(stats.WinningTrades) / float64(stats.TotalTrades)
	}
	return stats, nil
}
