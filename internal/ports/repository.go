package ports

import (
	"context"
	"time"

	"signalTradeBot/internal/domain"
)

// OrderRepository persists orders and their exit targets.
type OrderRepository interface {
	// CreateOrderWithTargets saves a new order and all of its exit legs in a
	// single transaction and returns the assigned order id. Failure rolls
	// the whole batch back.
	CreateOrderWithTargets(ctx context.Context, order *domain.Order, targets []*domain.OrderTarget) (int64, error)
	// FindOrderByID retrieves an order by its id. Returns nil, nil if not found.
	FindOrderByID(ctx context.Context, id int64) (*domain.Order, error)
	// UpdateOrderFill applies the cumulative state of an order after a fill.
	UpdateOrderFill(ctx context.Context, order *domain.Order) error
}

// OrderTargetRepository reads and mutates individual exit legs.
type OrderTargetRepository interface {
	// FindTargetByExchangeID retrieves the target whose exchange-assigned id
	// matches, together with its parent order. Returns nil, nil, nil if no
	// target matches.
	FindTargetByExchangeID(ctx context.Context, exchangeTPID string) (*domain.OrderTarget, *domain.Order, error)
	// MarkTargetTriggered flags a target as triggered at the given time.
	MarkTargetTriggered(ctx context.Context, targetID int64, at time.Time) error
}

// PnlLogRepository appends realized P&L records.
type PnlLogRepository interface {
	AppendPnlLog(ctx context.Context, log *domain.TradePnlLog) (int64, error)
}

// ChannelRepository stores signal-source channels.
type ChannelRepository interface {
	// FindOrCreateChannel returns the channel row for a transport-side id,
	// creating it on first sight.
	FindOrCreateChannel(ctx context.Context, cid, name string) (*domain.Channel, error)
	// ListChannels retrieves all channels.
	ListChannels(ctx context.Context) ([]*domain.Channel, error)
	// AddChannelPnl accumulates realized P&L onto a channel's totals.
	AddChannelPnl(ctx context.Context, channelID int64, pnl float64) error
}
