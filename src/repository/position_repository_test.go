package repository

import (
	"context"
	"testing"
	"time"

	"tradecontrol/src/model"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// helper to create a new in memory gorm DB and migrate schema
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open in memory db: %v", err)
	}

	if err := db.AutoMigrate(
		&model.Position{},
		&model.Trade{},
		&model.RiskAlert{},
	); err != nil {
		t.Fatalf("failed to automigrate: %v", err)
	}

	return db
}

func openPosition(id string, size, mark, upnl float64) *model.Position {
	return &model.Position{
		ID:            id,
		ConnectionID:  1,
		Symbol:        "BTCUSDT",
		Side:          model.PositionSideLong,
		Size:          size,
		EntryPrice:    50000,
		MarkPrice:     mark,
		UnrealizedPnl: upnl,
		Status:        model.PositionStatusOpen,
		OpenedAt:      time.Now().UTC(),
	}
}

func TestPositionRepositoryUpsertIsIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := NewPositionRepositoryWithDB(newTestDB(t))

	p := openPosition("pos_1_BTCUSDT", 0.5, 51000, 500)
	require.NoError(t, repo.Upsert(ctx, p))

	// Same key with fresh numbers must update in place, not duplicate.
	p2 := openPosition("pos_1_BTCUSDT", 0.7, 52000, 1400)
	require.NoError(t, repo.Upsert(ctx, p2))

	open, err := repo.ListOpen(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	require.Equal(t, 0.7, open[0].Size)
	require.Equal(t, 1400.0, open[0].UnrealizedPnl)
}

func TestPositionRepositoryMarkClosed(t *testing.T) {
	ctx := context.Background()
	repo := NewPositionRepositoryWithDB(newTestDB(t))

	require.NoError(t, repo.Upsert(ctx, openPosition("pos_1_BTCUSDT", 0.5, 51000, 500)))

	closedAt := time.Now().UTC()
	require.NoError(t, repo.MarkClosed(ctx, "pos_1_BTCUSDT", 512.5, closedAt))

	open, err := repo.ListOpen(ctx)
	require.NoError(t, err)
	require.Empty(t, open)

	p, err := repo.FindByID(ctx, "pos_1_BTCUSDT")
	require.NoError(t, err)
	require.NotNil(t, p)
	require.Equal(t, model.PositionStatusClosed, p.Status)
	require.Equal(t, 512.5, p.RealizedPnl)
	require.NotNil(t, p.ClosedAt)
}

func TestPositionRepositoryListOpenByConnection(t *testing.T) {
	ctx := context.Background()
	repo := NewPositionRepositoryWithDB(newTestDB(t))

	a := openPosition("pos_1_BTCUSDT", 0.5, 51000, 500)
	b := openPosition("pos_2_ETHUSDT", 2, 3000, -60)
	b.ConnectionID = 2
	b.Symbol = "ETHUSDT"

	require.NoError(t, repo.Upsert(ctx, a))
	require.NoError(t, repo.Upsert(ctx, b))

	got, err := repo.ListOpenByConnection(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "ETHUSDT", got[0].Symbol)
}
