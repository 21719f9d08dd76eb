package sqlite

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"signalTradeBot/internal/domain"
	"signalTradeBot/internal/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockLogger implements ports.Logger for testing
type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}
func (m *mockLogger) Fatal(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

// setupTestDB creates a temporary database for testing
func setupTestDB(t *testing.T) (*Repository, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "signal-trade-bot-test-*")
	require.NoError(t, err)

	dbPath := filepath.Join(tmpDir, "test.db")
	repo, err := NewRepository(Config{
		DBPath: dbPath,
		Logger: &mockLogger{},
	})
	require.NoError(t, err)

	cleanup := func() {
		repo.Close()
		os.RemoveAll(tmpDir)
	}

	return repo, cleanup
}

func createTestChannel(t *testing.T, repo *Repository) *domain.Channel {
	t.Helper()
	channel, err := repo.FindOrCreateChannel(context.Background(), "-1001000000001", "test channel")
	require.NoError(t, err)
	return channel
}

func testOrder(channelID int64) *domain.Order {
	return &domain.Order{
		ExchangeOrderID: "ex-123",
		ChannelID:       channelID,
		Symbol:          "BTC_USDT",
		Direction:       domain.DirectionBuy,
		Type:            domain.OrderTypeMarket,
		Leverage:        10,
		EntryPrice:      100.0,
		SLPrice:         95.0,
		Qty:             2.0,
		RemainingQty:    2.0,
		Status:          domain.StatusOpen,
		OpenedAt:        time.Now().UTC(),
		EnterBalance:    1000.0,
	}
}

func TestRepository_CreateOrderWithTargets(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	channel := createTestChannel(t, repo)
	order := testOrder(channel.ID)
	targets := []*domain.OrderTarget{
		{ExchangeTPID: "tp-1", Type: domain.TriggerTP, Price: 110.0, Qty: 1.2, TriggerBy: domain.TriggerByLastPrice},
		{ExchangeTPID: "tp-2", Type: domain.TriggerTP, Price: 120.0, Qty: 0.8, TriggerBy: domain.TriggerByLastPrice},
	}

	id, err := repo.CreateOrderWithTargets(ctx, order, targets)
	require.NoError(t, err)
	assert.Equal(t, id, order.ID)
	for _, target := range targets {
		assert.NotZero(t, target.ID)
		assert.Equal(t, id, target.OrderID)
	}

	got, err := repo.FindOrderByID(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, order.ExchangeOrderID, got.ExchangeOrderID)
	assert.Equal(t, order.Symbol, got.Symbol)
	assert.Equal(t, domain.DirectionBuy, got.Direction)
	assert.Equal(t, domain.StatusOpen, got.Status)
	assert.InDelta(t, 2.0, got.RemainingQty, 1e-9)
	assert.InDelta(t, 1000.0, got.EnterBalance, 1e-9)
	assert.True(t, got.ClosedAt.IsZero())

	target, parent, err := repo.FindTargetByExchangeID(ctx, "tp-2")
	require.NoError(t, err)
	require.NotNil(t, target)
	require.NotNil(t, parent)
	assert.InDelta(t, 120.0, target.Price, 1e-9)
	assert.Equal(t, id, parent.ID)
	assert.False(t, target.IsTriggered)
}

func TestRepository_CreateOrderRollsBackOnFailure(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	// channel id 999 does not exist: the foreign key rejects the order and
	// nothing may remain of the batch
	order := testOrder(999)
	targets := []*domain.OrderTarget{
		{ExchangeTPID: "tp-orphan", Type: domain.TriggerTP, Price: 110.0, Qty: 1.0, TriggerBy: domain.TriggerByLastPrice},
	}

	_, err := repo.CreateOrderWithTargets(ctx, order, targets)
	require.Error(t, err)

	target, _, err := repo.FindTargetByExchangeID(ctx, "tp-orphan")
	require.NoError(t, err)
	assert.Nil(t, target)
}

func TestRepository_FindOrderByIDNotFound(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	got, err := repo.FindOrderByID(context.Background(), 42)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRepository_UpdateOrderFill(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	channel := createTestChannel(t, repo)
	order := testOrder(channel.ID)
	targets := []*domain.OrderTarget{
		{ExchangeTPID: "tp-1", Type: domain.TriggerTP, Price: 110.0, Qty: 2.0, TriggerBy: domain.TriggerByLastPrice},
	}
	_, err := repo.CreateOrderWithTargets(ctx, order, targets)
	require.NoError(t, err)

	closedAt := time.Now().UTC().Truncate(time.Second)
	order.RemainingQty = 0
	order.Status = domain.StatusClosed
	order.ClosedAt = closedAt
	order.Pnl = 19.0
	order.PnlPercent = 1.9
	order.Commission = 1.0
	order.LastExitOrderID = targets[0].ID

	require.NoError(t, repo.UpdateOrderFill(ctx, order))

	got, err := repo.FindOrderByID(ctx, order.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, domain.StatusClosed, got.Status)
	assert.InDelta(t, 0.0, got.RemainingQty, 1e-9)
	assert.InDelta(t, 19.0, got.Pnl, 1e-9)
	assert.InDelta(t, 1.9, got.PnlPercent, 1e-9)
	assert.InDelta(t, 1.0, got.Commission, 1e-9)
	assert.Equal(t, targets[0].ID, got.LastExitOrderID)
	assert.WithinDuration(t, closedAt, got.ClosedAt, time.Second)
}

func TestRepository_UpdateOrderFillNotFound(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	err := repo.UpdateOrderFill(context.Background(), &domain.Order{ID: 42})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ports.ErrNotFound))
}

func TestRepository_MarkTargetTriggered(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	channel := createTestChannel(t, repo)
	order := testOrder(channel.ID)
	targets := []*domain.OrderTarget{
		{ExchangeTPID: "tp-1", Type: domain.TriggerTP, Price: 110.0, Qty: 2.0, TriggerBy: domain.TriggerByLastPrice},
	}
	_, err := repo.CreateOrderWithTargets(ctx, order, targets)
	require.NoError(t, err)

	at := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, repo.MarkTargetTriggered(ctx, targets[0].ID, at))

	target, _, err := repo.FindTargetByExchangeID(ctx, "tp-1")
	require.NoError(t, err)
	require.NotNil(t, target)
	assert.True(t, target.IsTriggered)
	assert.WithinDuration(t, at, target.TriggeredAt, time.Second)

	err = repo.MarkTargetTriggered(ctx, 4242, at)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ports.ErrNotFound))
}

func TestRepository_AppendPnlLog(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	channel := createTestChannel(t, repo)
	order := testOrder(channel.ID)
	_, err := repo.CreateOrderWithTargets(ctx, order, nil)
	require.NoError(t, err)

	log := &domain.TradePnlLog{OrderID: order.ID, Pnl: 19.0, PnlPercent: 1.9, Reason: domain.TriggerTP}
	id, err := repo.AppendPnlLog(ctx, log)
	require.NoError(t, err)
	assert.NotZero(t, id)
	assert.Equal(t, id, log.ID)

	logs, err := repo.ListPnlLogs(ctx)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, order.ID, logs[0].OrderID)
	assert.InDelta(t, 19.0, logs[0].Pnl, 1e-9)
	assert.Equal(t, domain.TriggerTP, logs[0].Reason)
}

func TestRepository_Channels(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	first, err := repo.FindOrCreateChannel(ctx, "-1001", "alpha")
	require.NoError(t, err)
	assert.False(t, first.IsForHandle, "new channels start disabled")

	again, err := repo.FindOrCreateChannel(ctx, "-1001", "alpha renamed")
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, "alpha", again.Name, "existing row wins over a new title")

	_, err = repo.FindOrCreateChannel(ctx, "-1002", "beta")
	require.NoError(t, err)

	channels, err := repo.ListChannels(ctx)
	require.NoError(t, err)
	assert.Len(t, channels, 2)

	require.NoError(t, repo.AddChannelPnl(ctx, first.ID, 19.0))
	require.NoError(t, repo.AddChannelPnl(ctx, first.ID, -10.0))

	channels, err = repo.ListChannels(ctx)
	require.NoError(t, err)
	for _, c := range channels {
		if c.ID == first.ID {
			assert.InDelta(t, 9.0, c.TotalPnl, 1e-9)
			assert.InDelta(t, 9.0, c.TodayPnl, 1e-9)
		}
	}

	err = repo.AddChannelPnl(ctx, 4242, 1.0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ports.ErrNotFound))
}
