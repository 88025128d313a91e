package repository

import (
	"context"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"tradecontrol/src/database"
	"tradecontrol/src/model"
)

// RiskAlertRepository persists limit breach alerts and their lifecycle.
type RiskAlertRepository struct {
	db *gorm.DB
}

func NewRiskAlertRepository() *RiskAlertRepository {
	logger.WithField("component", "RiskAlertRepository").
		Info("Creating new RiskAlertRepository with MainDB")

	return &RiskAlertRepository{
		db: database.MainDB,
	}
}

func NewRiskAlertRepositoryWithDB(db *gorm.DB) *RiskAlertRepository {
	return &RiskAlertRepository{db: db}
}

// Create inserts a new alert.
func (r *RiskAlertRepository) Create(ctx context.Context, a *model.RiskAlert) error {
	logger.WithFields(map[string]interface{}{
		"repo":  "RiskAlertRepository",
		"op":    "Create",
		"level": a.Level,
		"type":  a.Type,
		"value": a.Value,
		"limit": a.Limit,
	}).Debug("Recording risk alert")

	return r.db.WithContext(ctx).Create(a).Error
}

// ListActive returns unresolved alerts, newest first.
func (r *RiskAlertRepository) ListActive(ctx context.Context) ([]model.RiskAlert, error) {
	var out []model.RiskAlert
	err := r.db.WithContext(ctx).
		Where("resolved = ?", false).
		Order("created_at DESC").
		Find(&out).Error
	return out, err
}

// Resolve marks every unresolved alert of the given type as resolved.
func (r *RiskAlertRepository) Resolve(ctx context.Context, alertType string, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&model.RiskAlert{}).
		Where("type = ? AND resolved = ?", alertType, false).
		Updates(map[string]interface{}{
			"resolved":    true,
			"resolved_at": at,
		}).Error
}

// DeleteOlderThan drops alerts past their retention window and returns the
// number removed.
func (r *RiskAlertRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&model.RiskAlert{})
	return res.RowsAffected, res.Error
}
