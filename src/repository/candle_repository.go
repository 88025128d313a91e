package repository

import (
	"context"
	"database/sql"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tradecontrol/src/database"
	"tradecontrol/src/model"
)

// CandleRepository stores downloaded OHLCV history.
type CandleRepository struct {
	db *gorm.DB
}

func NewCandleRepository() *CandleRepository {
	logger.WithField("component", "CandleRepository").
		Info("Creating new CandleRepository with MainDB")

	return &CandleRepository{
		db: database.MainDB,
	}
}

func NewCandleRepositoryWithDB(db *gorm.DB) *CandleRepository {
	return &CandleRepository{db: db}
}

// BulkUpsert writes a batch of candles, replacing rows that collide on the
// (symbol, interval, datetime) key. Overlapping downloads are expected.
func (r *CandleRepository) BulkUpsert(ctx context.Context, candles []model.Candle) error {
	if len(candles) == 0 {
		return nil
	}

	logger.WithFields(map[string]interface{}{
		"repo":  "CandleRepository",
		"op":    "BulkUpsert",
		"count": len(candles),
	}).Debug("Upserting candle batch")

	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "symbol"}, {Name: "interval"}, {Name: "datetime"},
			},
			DoUpdates: clause.AssignmentColumns([]string{
				"open", "high", "low", "close", "volume",
			}),
		}).
		CreateInBatches(candles, 500).Error
}

// LatestTimestamp returns the newest stored bar time for a series, or nil
// when no history exists yet.
func (r *CandleRepository) LatestTimestamp(ctx context.Context, symbol, interval string) (*time.Time, error) {
	var latest sql.NullTime
	err := r.db.WithContext(ctx).
		Model(&model.Candle{}).
		Select("MAX(datetime)").
		Where("symbol = ? AND interval = ?", symbol, interval).
		Take(&latest).Error
	if err != nil {
		return nil, err
	}
	if !latest.Valid {
		return nil, nil
	}
	t := latest.Time.UTC()
	return &t, nil
}

// FetchRecent returns up to limit candles at or before to, oldest first.
func (r *CandleRepository) FetchRecent(
	ctx context.Context,
	symbol, interval string,
	to time.Time,
	limit int,
) ([]model.Candle, error) {
	if limit <= 0 {
		limit = 200
	}

	var rows []model.Candle
	err := r.db.WithContext(ctx).
		Where("symbol = ? AND interval = ? AND datetime <= ?", symbol, interval, to).
		Order("datetime DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	// Reverse into chronological order for the indicator helpers.
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
	return rows, nil
}
