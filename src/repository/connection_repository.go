package repository

import (
	"context"
	"errors"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"tradecontrol/src/database"
	"tradecontrol/src/model"
)

// ConnectionRepository stores exchange API credential sets.
type ConnectionRepository struct {
	db *gorm.DB
}

func NewConnectionRepository() *ConnectionRepository {
	logger.WithField("component", "ConnectionRepository").
		Info("Creating new ConnectionRepository with MainDB")

	return &ConnectionRepository{
		db: database.MainDB,
	}
}

func NewConnectionRepositoryWithDB(db *gorm.DB) *ConnectionRepository {
	return &ConnectionRepository{db: db}
}

// Create inserts a new exchange connection.
func (r *ConnectionRepository) Create(ctx context.Context, c *model.ExchangeConnection) error {
	return r.db.WithContext(ctx).Create(c).Error
}

// FindByID fetches a connection by ID.
// Returns (nil, nil) if the connection is not found.
func (r *ConnectionRepository) FindByID(ctx context.Context, id uint) (*model.ExchangeConnection, error) {
	var c model.ExchangeConnection
	err := r.db.WithContext(ctx).First(&c, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListActive returns every connection currently enabled for trading.
func (r *ConnectionRepository) ListActive(ctx context.Context) ([]model.ExchangeConnection, error) {
	var out []model.ExchangeConnection
	err := r.db.WithContext(ctx).
		Where("active = ?", true).
		Order("id ASC").
		Find(&out).Error
	return out, err
}

// Update persists the full connection record.
func (r *ConnectionRepository) Update(ctx context.Context, c *model.ExchangeConnection) error {
	return r.db.WithContext(ctx).Save(c).Error
}
