// Package reconciler applies exchange fill events to the persisted order
// state: it marks the filled exit leg triggered, books realized P&L, and
// transitions the parent order's status.
package reconciler

import (
	"context"
	"fmt"
	"math"
	"time"

	"signalTradeBot/internal/domain"
	"signalTradeBot/internal/ports"
)

// qtyTolerance bounds the float comparison between a fill size and the
// order quantity when deciding whether the position fully closed.
const qtyTolerance = 1e-9

// Reconciler consumes execution reports keyed by the exchange-assigned id of
// the conditional order that filled.
type Reconciler struct {
	targets  ports.OrderTargetRepository
	orders   ports.OrderRepository
	pnlLogs  ports.PnlLogRepository
	channels ports.ChannelRepository
	logger   ports.Logger
	now      func() time.Time
}

// New creates a Reconciler. All dependencies are required.
func New(
	targets ports.OrderTargetRepository,
	orders ports.OrderRepository,
	pnlLogs ports.PnlLogRepository,
	channels ports.ChannelRepository,
	logger ports.Logger,
) (*Reconciler, error) {
	if targets == nil || orders == nil || pnlLogs == nil || channels == nil || logger == nil {
		return nil, fmt.Errorf("missing required dependencies for Reconciler")
	}
	return &Reconciler{
		targets:  targets,
		orders:   orders,
		pnlLogs:  pnlLogs,
		channels: channels,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// HandleFill reconciles one execution report. A fill whose exchange order id
// matches no recorded exit leg is logged and dropped; the stream also carries
// fills for orders this bot never placed.
func (r *Reconciler) HandleFill(ctx context.Context, fill domain.FillEvent) error {
	target, order, err := r.targets.FindTargetByExchangeID(ctx, fill.ExchangeOrderID)
	if err != nil {
		r.logger.Error(ctx, err, "failed to look up target for fill", map[string]interface{}{
			"exchangeOrderID": fill.ExchangeOrderID,
		})
		return err
	}
	if target == nil {
		r.logger.Warn(ctx, "no recorded target for fill, dropping", map[string]interface{}{
			"logChannel":      "unhandledFills",
			"exchangeOrderID": fill.ExchangeOrderID,
			"price":           fill.Price,
			"size":            fill.Size,
		})
		return nil
	}

	triggeredAt := fill.CreateTime
	if triggeredAt.IsZero() {
		triggeredAt = r.now()
	}
	if err := r.targets.MarkTargetTriggered(ctx, target.ID, triggeredAt); err != nil {
		r.logger.Error(ctx, err, "failed to mark target triggered", map[string]interface{}{
			"targetID": target.ID,
			"orderID":  order.ID,
		})
		return err
	}

	// P&L per leg: a take-profit books price minus entry, a stop-loss books
	// entry minus price. A stop-loss fill always closes the position; a
	// take-profit closes it when the fill covers the full order quantity.
	var diff float64
	status := domain.StatusPartiallyClosed
	if target.Type == domain.TriggerTP {
		diff = fill.Price - order.EntryPrice
		if math.Abs(order.Qty-fill.Size) < qtyTolerance {
			status = domain.StatusClosed
		}
	} else {
		diff = order.EntryPrice - fill.Price
		status = domain.StatusClosed
	}
	pnl := diff*fill.Size - fill.Fee

	pnlPercent := 0.0
	if marginUsed := order.EntryPrice * fill.Size / float64(order.Leverage); marginUsed != 0 {
		pnlPercent = pnl / marginUsed * 100
	}

	if _, err := r.pnlLogs.AppendPnlLog(ctx, &domain.TradePnlLog{
		OrderID:    order.ID,
		Pnl:        pnl,
		PnlPercent: pnlPercent,
		Reason:     target.Type,
	}); err != nil {
		r.logger.Error(ctx, err, "failed to append pnl log", map[string]interface{}{
			"orderID": order.ID,
			"pnl":     pnl,
		})
		return err
	}

	order.RemainingQty -= fill.Size
	order.Status = status
	if status == domain.StatusClosed {
		order.ClosedAt = r.now()
	}
	order.Pnl += pnl
	order.PnlPercent += pnlPercent
	order.Commission += fill.Fee
	order.LastExitOrderID = target.ID
	if err := r.orders.UpdateOrderFill(ctx, order); err != nil {
		r.logger.Error(ctx, err, "failed to update order after fill", map[string]interface{}{
			"orderID": order.ID,
		})
		return err
	}

	if err := r.channels.AddChannelPnl(ctx, order.ChannelID, pnl); err != nil {
		r.logger.Error(ctx, err, "failed to attribute pnl to channel", map[string]interface{}{
			"channelID": order.ChannelID,
			"orderID":   order.ID,
		})
		return err
	}

	r.logger.Info(ctx, "fill reconciled", map[string]interface{}{
		"orderID":      order.ID,
		"targetID":     target.ID,
		"trigger":      target.Type,
		"price":        fill.Price,
		"size":         fill.Size,
		"pnl":          pnl,
		"pnlPercent":   pnlPercent,
		"status":       status,
		"remainingQty": order.RemainingQty,
	})
	return nil
}
