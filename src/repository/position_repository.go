package repository

import (
	"context"
	"errors"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tradecontrol/src/database"
	"tradecontrol/src/model"
)

// PositionRepository persists the synchronized view of exchange positions.
type PositionRepository struct {
	db *gorm.DB
}

func NewPositionRepository() *PositionRepository {
	logger.WithField("component", "PositionRepository").
		Info("Creating new PositionRepository with MainDB")

	return &PositionRepository{
		db: database.MainDB,
	}
}

func NewPositionRepositoryWithDB(db *gorm.DB) *PositionRepository {
	return &PositionRepository{db: db}
}

// Upsert writes the position keyed by its derived ID, updating the mutable
// columns when the row already exists.
func (r *PositionRepository) Upsert(ctx context.Context, p *model.Position) error {
	logger.WithFields(map[string]interface{}{
		"repo":        "PositionRepository",
		"op":          "Upsert",
		"position_id": p.ID,
		"symbol":      p.Symbol,
		"size":        p.Size,
		"status":      p.Status,
	}).Debug("Upserting position")

	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"side", "size", "entry_price", "mark_price",
				"unrealized_pnl", "realized_pnl", "pnl_percentage",
				"leverage", "margin_mode", "liquidation_price",
				"status", "closed_at", "updated_at",
			}),
		}).
		Create(p).Error
}

// FindByID fetches a position by its derived ID.
// Returns (nil, nil) if the position is not found.
func (r *PositionRepository) FindByID(ctx context.Context, id string) (*model.Position, error) {
	var p model.Position
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListOpen returns every position currently marked open.
func (r *PositionRepository) ListOpen(ctx context.Context) ([]model.Position, error) {
	var out []model.Position
	err := r.db.WithContext(ctx).
		Where("status = ?", model.PositionStatusOpen).
		Order("id ASC").
		Find(&out).Error
	return out, err
}

// ListOpenByConnection returns open positions for one exchange connection.
func (r *PositionRepository) ListOpenByConnection(ctx context.Context, connectionID uint) ([]model.Position, error) {
	var out []model.Position
	err := r.db.WithContext(ctx).
		Where("connection_id = ? AND status = ?", connectionID, model.PositionStatusOpen).
		Order("id ASC").
		Find(&out).Error
	return out, err
}

// MarkClosed flips the position to closed, recording the final realized pnl
// and the close time.
func (r *PositionRepository) MarkClosed(ctx context.Context, id string, realizedPnl float64, at time.Time) error {
	logger.WithFields(map[string]interface{}{
		"repo":         "PositionRepository",
		"op":           "MarkClosed",
		"position_id":  id,
		"realized_pnl": realizedPnl,
	}).Debug("Closing position")

	return r.db.WithContext(ctx).
		Model(&model.Position{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":       model.PositionStatusClosed,
			"realized_pnl": realizedPnl,
			"closed_at":    at,
		}).Error
}
