package reconciler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signalTradeBot/internal/domain"
)

type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

type fakeTargetRepo struct {
	target      *domain.OrderTarget
	order       *domain.Order
	findErr     error
	triggeredID int64
	triggeredAt time.Time
}

func (r *fakeTargetRepo) FindTargetByExchangeID(ctx context.Context, exchangeTPID string) (*domain.OrderTarget, *domain.Order, error) {
	if r.findErr != nil {
		return nil, nil, r.findErr
	}
	if r.target == nil || r.target.ExchangeTPID != exchangeTPID {
		return nil, nil, nil
	}
	return r.target, r.order, nil
}

func (r *fakeTargetRepo) MarkTargetTriggered(ctx context.Context, targetID int64, at time.Time) error {
	r.triggeredID = targetID
	r.triggeredAt = at
	return nil
}

type fakeOrderRepo struct {
	updated   *domain.Order
	updateErr error
}

func (r *fakeOrderRepo) CreateOrderWithTargets(ctx context.Context, order *domain.Order, targets []*domain.OrderTarget) (int64, error) {
	return 0, errors.New("not used")
}

func (r *fakeOrderRepo) FindOrderByID(ctx context.Context, id int64) (*domain.Order, error) {
	return nil, nil
}

func (r *fakeOrderRepo) UpdateOrderFill(ctx context.Context, order *domain.Order) error {
	if r.updateErr != nil {
		return r.updateErr
	}
	r.updated = order
	return nil
}

type fakePnlRepo struct {
	logs []*domain.TradePnlLog
	err  error
}

func (r *fakePnlRepo) AppendPnlLog(ctx context.Context, log *domain.TradePnlLog) (int64, error) {
	if r.err != nil {
		return 0, r.err
	}
	r.logs = append(r.logs, log)
	return int64(len(r.logs)), nil
}

type fakeChannelRepo struct {
	channelID int64
	pnl       float64
	calls     int
}

func (r *fakeChannelRepo) FindOrCreateChannel(ctx context.Context, cid, name string) (*domain.Channel, error) {
	return nil, errors.New("not used")
}

func (r *fakeChannelRepo) ListChannels(ctx context.Context) ([]*domain.Channel, error) {
	return nil, nil
}

func (r *fakeChannelRepo) AddChannelPnl(ctx context.Context, channelID int64, pnl float64) error {
	r.channelID = channelID
	r.pnl += pnl
	r.calls++
	return nil
}

func testOrder(direction domain.Direction) *domain.Order {
	return &domain.Order{
		ID:           42,
		ChannelID:    7,
		Symbol:       "BTC_USDT",
		Direction:    direction,
		Type:         domain.OrderTypeMarket,
		Leverage:     10,
		EntryPrice:   100,
		SLPrice:      95,
		Qty:          2,
		RemainingQty: 2,
		Status:       domain.StatusOpen,
	}
}

func newTestReconciler(t *testing.T, targets *fakeTargetRepo) (*Reconciler, *fakeOrderRepo, *fakePnlRepo, *fakeChannelRepo) {
	t.Helper()
	orders := &fakeOrderRepo{}
	pnlLogs := &fakePnlRepo{}
	channels := &fakeChannelRepo{}
	r, err := New(targets, orders, pnlLogs, channels, &mockLogger{})
	require.NoError(t, err)
	return r, orders, pnlLogs, channels
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(nil, &fakeOrderRepo{}, &fakePnlRepo{}, &fakeChannelRepo{}, &mockLogger{})
	require.Error(t, err)
}

func TestHandleFillUnknownOrderDropped(t *testing.T) {
	targets := &fakeTargetRepo{}
	r, orders, pnlLogs, _ := newTestReconciler(t, targets)

	err := r.HandleFill(context.Background(), domain.FillEvent{ExchangeOrderID: "nope"})
	require.NoError(t, err)
	assert.Nil(t, orders.updated)
	assert.Empty(t, pnlLogs.logs)
}

func TestHandleFillLongTakeProfitFullClose(t *testing.T) {
	order := testOrder(domain.DirectionBuy)
	targets := &fakeTargetRepo{
		target: &domain.OrderTarget{ID: 11, OrderID: 42, ExchangeTPID: "tp-1", Type: domain.TriggerTP, Price: 110, Qty: 2},
		order:  order,
	}
	r, orders, pnlLogs, channels := newTestReconciler(t, targets)

	filledAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	err := r.HandleFill(context.Background(), domain.FillEvent{
		ExchangeOrderID: "tp-1",
		Price:           110,
		Size:            2,
		Fee:             1,
		CreateTime:      filledAt,
	})
	require.NoError(t, err)

	// (110-100)*2 - 1 = 19
	require.Len(t, pnlLogs.logs, 1)
	assert.InDelta(t, 19.0, pnlLogs.logs[0].Pnl, 1e-9)
	assert.Equal(t, domain.TriggerTP, pnlLogs.logs[0].Reason)
	// margin used = 100*2/10 = 20 → 95%
	assert.InDelta(t, 95.0, pnlLogs.logs[0].PnlPercent, 1e-9)

	assert.Equal(t, int64(11), targets.triggeredID)
	assert.Equal(t, filledAt, targets.triggeredAt)

	require.NotNil(t, orders.updated)
	assert.Equal(t, domain.StatusClosed, orders.updated.Status)
	assert.InDelta(t, 0.0, orders.updated.RemainingQty, 1e-9)
	assert.InDelta(t, 19.0, orders.updated.Pnl, 1e-9)
	assert.InDelta(t, 1.0, orders.updated.Commission, 1e-9)
	assert.Equal(t, int64(11), orders.updated.LastExitOrderID)
	assert.False(t, orders.updated.ClosedAt.IsZero())

	assert.Equal(t, int64(7), channels.channelID)
	assert.InDelta(t, 19.0, channels.pnl, 1e-9)
}

func TestHandleFillShortStopLossCloses(t *testing.T) {
	order := testOrder(domain.DirectionSell)
	order.SLPrice = 105
	targets := &fakeTargetRepo{
		target: &domain.OrderTarget{ID: 12, OrderID: 42, ExchangeTPID: "sl-1", Type: domain.TriggerSL, Price: 105, Qty: 2},
		order:  order,
	}
	r, orders, pnlLogs, _ := newTestReconciler(t, targets)

	err := r.HandleFill(context.Background(), domain.FillEvent{
		ExchangeOrderID: "sl-1",
		Price:           105,
		Size:            2,
	})
	require.NoError(t, err)

	// (100-105)*2 - 0 = -10; a stop-loss fill always closes the order.
	require.Len(t, pnlLogs.logs, 1)
	assert.InDelta(t, -10.0, pnlLogs.logs[0].Pnl, 1e-9)
	require.NotNil(t, orders.updated)
	assert.Equal(t, domain.StatusClosed, orders.updated.Status)
	assert.False(t, orders.updated.ClosedAt.IsZero())
}

func TestHandleFillPartialTakeProfit(t *testing.T) {
	order := testOrder(domain.DirectionBuy)
	targets := &fakeTargetRepo{
		target: &domain.OrderTarget{ID: 13, OrderID: 42, ExchangeTPID: "tp-1", Type: domain.TriggerTP, Price: 105, Qty: 1.2},
		order:  order,
	}
	r, orders, pnlLogs, _ := newTestReconciler(t, targets)

	err := r.HandleFill(context.Background(), domain.FillEvent{
		ExchangeOrderID: "tp-1",
		Price:           105,
		Size:            1.2,
		Fee:             0.5,
	})
	require.NoError(t, err)

	// Fill covers only part of the order quantity.
	require.NotNil(t, orders.updated)
	assert.Equal(t, domain.StatusPartiallyClosed, orders.updated.Status)
	assert.InDelta(t, 0.8, orders.updated.RemainingQty, 1e-9)
	assert.True(t, orders.updated.ClosedAt.IsZero())

	// (105-100)*1.2 - 0.5 = 5.5
	require.Len(t, pnlLogs.logs, 1)
	assert.InDelta(t, 5.5, pnlLogs.logs[0].Pnl, 1e-9)
}

func TestHandleFillAccumulatesOnOrder(t *testing.T) {
	order := testOrder(domain.DirectionBuy)
	order.Pnl = 5.5
	order.PnlPercent = 45.83
	order.Commission = 0.5
	order.RemainingQty = 0.8
	order.Status = domain.StatusPartiallyClosed
	targets := &fakeTargetRepo{
		target: &domain.OrderTarget{ID: 14, OrderID: 42, ExchangeTPID: "tp-2", Type: domain.TriggerTP, Price: 110, Qty: 0.8},
		order:  order,
	}
	r, orders, _, _ := newTestReconciler(t, targets)

	err := r.HandleFill(context.Background(), domain.FillEvent{
		ExchangeOrderID: "tp-2",
		Price:           110,
		Size:            0.8,
		Fee:             0.3,
	})
	require.NoError(t, err)

	// (110-100)*0.8 - 0.3 = 7.7 on top of the earlier 5.5.
	require.NotNil(t, orders.updated)
	assert.InDelta(t, 13.2, orders.updated.Pnl, 1e-9)
	assert.InDelta(t, 0.8, orders.updated.Commission, 1e-9)
	assert.InDelta(t, 0.0, orders.updated.RemainingQty, 1e-9)
	assert.Equal(t, int64(14), orders.updated.LastExitOrderID)
}

func TestHandleFillLookupErrorPropagates(t *testing.T) {
	targets := &fakeTargetRepo{findErr: errors.New("db down")}
	r, _, _, _ := newTestReconciler(t, targets)

	err := r.HandleFill(context.Background(), domain.FillEvent{ExchangeOrderID: "tp-1"})
	require.Error(t, err)
}

func TestHandleFillZeroEventTimeUsesClock(t *testing.T) {
	order := testOrder(domain.DirectionBuy)
	targets := &fakeTargetRepo{
		target: &domain.OrderTarget{ID: 15, OrderID: 42, ExchangeTPID: "tp-1", Type: domain.TriggerTP, Price: 110, Qty: 2},
		order:  order,
	}
	r, _, _, _ := newTestReconciler(t, targets)
	fixed := time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return fixed }

	err := r.HandleFill(context.Background(), domain.FillEvent{
		ExchangeOrderID: "tp-1",
		Price:           110,
		Size:            2,
	})
	require.NoError(t, err)
	assert.Equal(t, fixed, targets.triggeredAt)
}
