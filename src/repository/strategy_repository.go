package repository

import (
	"context"
	"errors"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"tradecontrol/src/database"
	"tradecontrol/src/model"
)

// StrategyRepository handles read/write operations for registered strategies.
type StrategyRepository struct {
	db *gorm.DB
}

// NewStrategyRepository creates a new repository instance using the main read/write database.
func NewStrategyRepository() *StrategyRepository {
	logger.WithField("component", "StrategyRepository").
		Info("Creating new StrategyRepository with MainDB")

	return &StrategyRepository{
		db: database.MainDB,
	}
}

// NewStrategyRepositoryWithDB allows overriding the underlying *gorm.DB instance.
// Useful for tests or when using a specific session/transaction.
func NewStrategyRepositoryWithDB(db *gorm.DB) *StrategyRepository {
	return &StrategyRepository{db: db}
}

// Create inserts a new strategy. Returns model.ErrDuplicateStrategy when the
// name is already taken.
func (r *StrategyRepository) Create(ctx context.Context, s *model.Strategy) error {
	logger.WithFields(map[string]interface{}{
		"repo":   "StrategyRepository",
		"op":     "Create",
		"name":   s.Name,
		"type":   s.Type,
		"symbol": s.Symbol,
	}).Debug("Creating new strategy")

	err := r.db.WithContext(ctx).Create(s).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return model.ErrDuplicateStrategy
	}
	return err
}

// FindByID fetches a single strategy by its primary ID.
// Returns (nil, nil) if the strategy is not found.
func (r *StrategyRepository) FindByID(ctx context.Context, id uint) (*model.Strategy, error) {
	var s model.Strategy
	err := r.db.WithContext(ctx).First(&s, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// FindByName fetches a single strategy by its unique name.
// Returns (nil, nil) if the strategy is not found.
func (r *StrategyRepository) FindByName(ctx context.Context, name string) (*model.Strategy, error) {
	var s model.Strategy
	err := r.db.WithContext(ctx).Where("name = ?", name).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// ListAll returns every registered strategy ordered by ID.
func (r *StrategyRepository) ListAll(ctx context.Context) ([]model.Strategy, error) {
	var out []model.Strategy
	err := r.db.WithContext(ctx).Order("id ASC").Find(&out).Error
	return out, err
}

// ListByStatus returns strategies currently in the given status.
func (r *StrategyRepository) ListByStatus(ctx context.Context, status string) ([]model.Strategy, error) {
	var out []model.Strategy
	err := r.db.WithContext(ctx).Where("status = ?", status).Order("id ASC").Find(&out).Error
	return out, err
}

// UpdateStatus transitions the persisted status and clears or records the
// last error message.
func (r *StrategyRepository) UpdateStatus(ctx context.Context, id uint, status, lastError string) error {
	logger.WithFields(map[string]interface{}{
		"repo":   "StrategyRepository",
		"op":     "UpdateStatus",
		"id":     id,
		"status": status,
	}).Debug("Updating strategy status")

	return r.db.WithContext(ctx).
		Model(&model.Strategy{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     status,
			"last_error": lastError,
		}).Error
}

// TouchLastSignal stamps the time the strategy last produced a non-hold signal.
func (r *StrategyRepository) TouchLastSignal(ctx context.Context, id uint, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&model.Strategy{}).
		Where("id = ?", id).
		Update("last_signal_at", at).Error
}

// TouchLastExecution stamps the time an order for the strategy last filled.
func (r *StrategyRepository) TouchLastExecution(ctx context.Context, id uint, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&model.Strategy{}).
		Where("id = ?", id).
		Update("last_execution_at", at).Error
}

// UpdateRiskLimits replaces the per-strategy limit overrides.
func (r *StrategyRepository) UpdateRiskLimits(ctx context.Context, id uint, limits map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&model.Strategy{}).
		Where("id = ?", id).
		Update("risk_limits", limits).Error
}

// Update persists the full strategy record.
func (r *StrategyRepository) Update(ctx context.Context, s *model.Strategy) error {
	return r.db.WithContext(ctx).Save(s).Error
}

// Delete removes a strategy permanently.
func (r *StrategyRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Delete(&model.Strategy{}, id).Error
}
