package possync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradecontrol/src/exchange"
	"tradecontrol/src/model"
	"tradecontrol/src/notify"
)

// Test index:
// > TestSyncAllDetectsNewPositions
// > TestSyncAllIsIdempotent
// > TestSyncAllIgnoresNoise
// > TestSyncAllDetectsClosed
// > TestSyncAllIsolatesConnectionFailure
// > TestClosePositionFullSize
// > TestClosePositionPartial
// > TestPositionSummary

type fakeClient struct {
	exchange.Client

	positions []exchange.PositionData
	err       error

	orders []exchange.OrderParams
}

func (c *fakeClient) GetPositions(context.Context) ([]exchange.PositionData, error) {
	if c.err != nil {
		return nil, c.err
	}
	out := make([]exchange.PositionData, len(c.positions))
	copy(out, c.positions)
	return out, nil
}

func (c *fakeClient) PlaceOrder(_ context.Context, params exchange.OrderParams) (*exchange.OrderResult, error) {
	c.orders = append(c.orders, params)
	return &exchange.OrderResult{OrderID: "order-1"}, nil
}

type fakeConnections struct {
	conns []model.ExchangeConnection
}

func (f *fakeConnections) ListActive(context.Context) ([]model.ExchangeConnection, error) {
	return f.conns, nil
}

type fakeStore struct {
	upserts []model.Position
	closed  map[string]float64
}

func newFakeStore() *fakeStore {
	return &fakeStore{closed: make(map[string]float64)}
}

func (f *fakeStore) Upsert(_ context.Context, p *model.Position) error {
	f.upserts = append(f.upserts, *p)
	return nil
}

func (f *fakeStore) MarkClosed(_ context.Context, id string, realizedPnl float64, _ time.Time) error {
	f.closed[id] = realizedPnl
	return nil
}

type recNotifier struct {
	notify.Nop

	changes   []model.PositionChange
	summaries int
}

func (n *recNotifier) BroadcastPositionChange(change *model.PositionChange) {
	n.changes = append(n.changes, *change)
}

func (n *recNotifier) BroadcastPositionSummary(*model.PositionSummary) {
	n.summaries++
}

func btcPosition(size, mark, unrealized float64) exchange.PositionData {
	return exchange.PositionData{
		Symbol:        "BTCUSDT",
		Side:          model.PositionSideLong,
		Size:          size,
		EntryPrice:    50000,
		MarkPrice:     mark,
		UnrealizedPnl: unrealized,
		Leverage:      5,
		MarginMode:    "cross",
	}
}

func newTestService(t *testing.T, clients map[uint]*fakeClient) (*Service, *fakeStore, *recNotifier) {
	t.Helper()

	provider := exchange.StaticProvider{}
	conns := &fakeConnections{}
	for id, c := range clients {
		provider[id] = c
		conns.conns = append(conns.conns, model.ExchangeConnection{ID: id, Active: true})
	}

	store := newFakeStore()
	notifier := &recNotifier{}
	svc := NewService(provider, conns, store, notifier, GetConfig().Thresholds())
	return svc, store, notifier
}

func TestSyncAllDetectsNewPositions(t *testing.T) {
	client := &fakeClient{positions: []exchange.PositionData{
		btcPosition(0.5, 51000, 500),
		{Symbol: "ETHUSDT", Side: model.PositionSideShort, Size: 2, EntryPrice: 3000, MarkPrice: 2950, UnrealizedPnl: 100},
	}}
	svc, store, notifier := newTestService(t, map[uint]*fakeClient{1: client})

	require.NoError(t, svc.SyncAll(context.Background()))

	require.Len(t, notifier.changes, 2)
	for _, change := range notifier.changes {
		assert.Equal(t, model.PositionChangeNew, change.Type)
	}

	require.Len(t, store.upserts, 2)
	cached := svc.Position(1, "BTCUSDT")
	require.NotNil(t, cached)
	assert.Equal(t, "pos_1_BTCUSDT", cached.ID)
	assert.InDelta(t, 2.0, cached.PnlPercentage, 1e-9, "500 pnl on 25000 notional")
	assert.Equal(t, 1, notifier.summaries)
}

func TestSyncAllIsIdempotent(t *testing.T) {
	client := &fakeClient{positions: []exchange.PositionData{btcPosition(0.5, 51000, 500)}}
	svc, _, notifier := newTestService(t, map[uint]*fakeClient{1: client})

	require.NoError(t, svc.SyncAll(context.Background()))
	require.NoError(t, svc.SyncAll(context.Background()))

	assert.Len(t, notifier.changes, 1, "unchanged exchange data must produce no second event")
	assert.Equal(t, uint64(2), svc.Stats().Cycles)
	assert.Equal(t, uint64(1), svc.Stats().Changes)
}

func TestSyncAllIgnoresNoise(t *testing.T) {
	client := &fakeClient{positions: []exchange.PositionData{btcPosition(0.5, 51000, 500)}}
	svc, _, notifier := newTestService(t, map[uint]*fakeClient{1: client})
	require.NoError(t, svc.SyncAll(context.Background()))

	// Sub-threshold wobble on mark price and pnl.
	client.positions = []exchange.PositionData{btcPosition(0.5, 51000.005, 500.005)}
	require.NoError(t, svc.SyncAll(context.Background()))
	assert.Len(t, notifier.changes, 1)

	// A real pnl move crosses the threshold.
	client.positions = []exchange.PositionData{btcPosition(0.5, 51000.005, 520)}
	require.NoError(t, svc.SyncAll(context.Background()))
	require.Len(t, notifier.changes, 2)

	change := notifier.changes[1]
	assert.Equal(t, model.PositionChangeUpdated, change.Type)
	assert.Contains(t, change.Changes, "unrealized_pnl")
	assert.NotContains(t, change.Changes, "size")
	assert.NotContains(t, change.Changes, "mark_price")
}

func TestSyncAllDetectsClosed(t *testing.T) {
	client := &fakeClient{positions: []exchange.PositionData{
		btcPosition(0.5, 51000, 500),
		{Symbol: "ETHUSDT", Side: model.PositionSideLong, Size: 2, EntryPrice: 3000, MarkPrice: 3100, UnrealizedPnl: 200},
	}}
	svc, store, notifier := newTestService(t, map[uint]*fakeClient{1: client})
	require.NoError(t, svc.SyncAll(context.Background()))

	client.positions = []exchange.PositionData{btcPosition(0.5, 51000, 500)}
	require.NoError(t, svc.SyncAll(context.Background()))

	require.Len(t, notifier.changes, 3)
	closed := notifier.changes[2]
	assert.Equal(t, model.PositionChangeClosed, closed.Type)
	assert.Equal(t, "ETHUSDT", closed.Position.Symbol)
	assert.Equal(t, model.PositionStatusClosed, closed.Position.Status)

	assert.InDelta(t, 200, store.closed["pos_1_ETHUSDT"], 1e-9,
		"final unrealized pnl is recorded as realized on close")
	assert.Nil(t, svc.Position(1, "ETHUSDT"))
}

func TestSyncAllIsolatesConnectionFailure(t *testing.T) {
	healthy := &fakeClient{positions: []exchange.PositionData{btcPosition(0.5, 51000, 500)}}
	broken := &fakeClient{positions: []exchange.PositionData{
		{Symbol: "SOLUSDT", Side: model.PositionSideLong, Size: 10, EntryPrice: 150, MarkPrice: 155, UnrealizedPnl: 50},
	}}
	svc, _, _ := newTestService(t, map[uint]*fakeClient{1: healthy, 2: broken})

	require.NoError(t, svc.SyncAll(context.Background()))
	require.NotNil(t, svc.Position(2, "SOLUSDT"))

	// Connection 2 starts failing. Its cache must stay intact while
	// connection 1 keeps reconciling.
	broken.err = errors.New("exchange timeout")
	healthy.positions = []exchange.PositionData{btcPosition(0.7, 51000, 500)}
	require.NoError(t, svc.SyncAll(context.Background()))

	assert.NotNil(t, svc.Position(2, "SOLUSDT"), "failed connection keeps its last view")
	cached := svc.Position(1, "BTCUSDT")
	require.NotNil(t, cached)
	assert.InDelta(t, 0.7, cached.Size, 1e-9)
	assert.Equal(t, uint64(1), svc.Stats().Errors)
	assert.Equal(t, "get positions for connection 2: exchange timeout", svc.Stats().LastError)
}

func TestClosePositionFullSize(t *testing.T) {
	client := &fakeClient{positions: []exchange.PositionData{btcPosition(0.5, 51000, 500)}}
	svc, store, _ := newTestService(t, map[uint]*fakeClient{1: client})
	require.NoError(t, svc.SyncAll(context.Background()))

	client.positions = nil
	require.NoError(t, svc.ClosePosition(context.Background(), 1, "BTCUSDT", nil))

	require.Len(t, client.orders, 1)
	order := client.orders[0]
	assert.Equal(t, "Sell", order.Side)
	assert.Equal(t, "Market", order.OrderType)
	assert.InDelta(t, 0.5, order.Qty, 1e-9)
	assert.True(t, order.ReduceOnly)

	// The forced reconciliation observed the closure immediately.
	assert.Nil(t, svc.Position(1, "BTCUSDT"))
	assert.Contains(t, store.closed, "pos_1_BTCUSDT")
}

func TestClosePositionPartial(t *testing.T) {
	client := &fakeClient{positions: []exchange.PositionData{btcPosition(0.5, 51000, 500)}}
	svc, _, _ := newTestService(t, map[uint]*fakeClient{1: client})
	require.NoError(t, svc.SyncAll(context.Background()))

	qty := 0.2
	require.NoError(t, svc.ClosePosition(context.Background(), 1, "BTCUSDT", &qty))

	require.Len(t, client.orders, 1)
	assert.InDelta(t, 0.2, client.orders[0].Qty, 1e-9)

	err := svc.ClosePosition(context.Background(), 1, "XRPUSDT", nil)
	assert.ErrorIs(t, err, model.ErrPositionNotFound)
}

func TestPositionSummary(t *testing.T) {
	client := &fakeClient{positions: []exchange.PositionData{
		btcPosition(0.5, 51000, 500),
		{Symbol: "ETHUSDT", Side: model.PositionSideLong, Size: 2, EntryPrice: 3000, MarkPrice: 2900, UnrealizedPnl: -200},
	}}
	svc, _, _ := newTestService(t, map[uint]*fakeClient{1: client})
	require.NoError(t, svc.SyncAll(context.Background()))

	summary := svc.PositionSummary()
	assert.Equal(t, 2, summary.TotalPositions)
	assert.Equal(t, 1, summary.WinningPositions)
	assert.Equal(t, 1, summary.LosingPositions)
	assert.InDelta(t, 300, summary.TotalUnrealizedPnl, 1e-9)
	assert.InDelta(t, 0.5*51000+2*2900, summary.TotalValue, 1e-9)
	assert.InDelta(t, 0.5, summary.WinRate, 1e-9)
}
