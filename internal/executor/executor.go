// Package executor turns a complete trade intent into exchange orders and a
// persisted order record. The placement sequence is exchange-agnostic; every
// exchange-specific detail lives behind ports.ExchangeClient.
package executor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"golang.org/x/time/rate"

	"signalTradeBot/internal/domain"
	"signalTradeBot/internal/ports"
	"signalTradeBot/internal/risk"
)

// Executor places orders for one exchange. Safe for concurrent use; the
// shared limiter serializes outbound calls across workers.
type Executor struct {
	exchange ports.ExchangeClient
	cache    ports.Cache
	orders   ports.OrderRepository
	risk     *risk.Manager
	logger   ports.Logger
	limiter  *rate.Limiter
	now      func() time.Time
}

// New creates an Executor. The limiter may be nil to disable throttling
// (tests); every other dependency is required.
func New(
	exchange ports.ExchangeClient,
	cache ports.Cache,
	orders ports.OrderRepository,
	riskMgr *risk.Manager,
	logger ports.Logger,
	limiter *rate.Limiter,
) (*Executor, error) {
	if exchange == nil || cache == nil || orders == nil || riskMgr == nil || logger == nil {
		return nil, fmt.Errorf("missing required dependencies for Executor")
	}
	return &Executor{
		exchange: exchange,
		cache:    cache,
		orders:   orders,
		risk:     riskMgr,
		logger:   logger,
		limiter:  limiter,
		now:      time.Now,
	}, nil
}

// Place runs the full placement sequence for one intent:
// limits → leverage clamp → price → stop-loss derivation → balance check →
// sizing → leverage (idempotent) → market order → stop-loss (idempotent,
// liquidation-guarded) → take-profit legs → one persistence transaction.
//
// A nil return means the sequence either completed or was deliberately
// skipped (unlisted symbol, balance below minimum); an error means a step
// failed and the remaining steps were aborted.
func (e *Executor) Place(ctx context.Context, intent *domain.TradeIntent) error {
	if intent == nil || !intent.IsComplete() {
		return fmt.Errorf("%w: incomplete trade intent", ports.ErrInvalidRequest)
	}

	symbol := e.exchange.FormatSymbol(intent.Symbol)

	contracts, err := e.contracts(ctx)
	if err != nil {
		e.logError(ctx, err, "failed to load contract limits", symbol, intent)
		return err
	}
	limits, listed := contracts[symbol]
	if !listed {
		e.logger.Warn(ctx, "symbol is not listed on the exchange, skipping signal", map[string]interface{}{
			"exchange":  e.exchange.Name(),
			"symbol":    symbol,
			"channelID": intent.ChannelID,
		})
		return nil
	}

	leverage := limits.ClampLeverage(intent.Leverage)

	// Orders are placed at market; the live ticker is the entry price for
	// sizing and persistence regardless of what the message stated.
	entry, err := e.tickerPrice(ctx, symbol)
	if err != nil {
		e.logError(ctx, err, "failed to resolve entry price", symbol, intent)
		return err
	}

	slPrice, hasSL := intent.StopLoss.Value()
	if !hasSL {
		slPrice = e.risk.DefaultStopLoss(intent.Direction, entry, limits.PriceStep)
	}

	balance, err := e.accountBalance(ctx)
	if err != nil {
		e.logError(ctx, err, "failed to read account balance", symbol, intent)
		return err
	}
	if balance < e.exchange.MinNotional() {
		e.logger.Error(ctx, ports.ErrInsufficientFunds, "balance below exchange minimum, skipping signal", map[string]interface{}{
			"logChannel": "exchangeApiErrors",
			"exchange":   e.exchange.Name(),
			"symbol":     symbol,
			"balance":    balance,
			"channelID":  intent.ChannelID,
		})
		return nil
	}

	qty, err := e.sizeOrder(balance, entry, slPrice, leverage, limits)
	if err != nil {
		e.logError(ctx, err, "failed to size order", symbol, intent)
		return err
	}
	if qty == 0 {
		e.logger.Error(ctx, ports.ErrInsufficientFunds, "balance cannot cover the margin for a minimal order", map[string]interface{}{
			"exchange":  e.exchange.Name(),
			"symbol":    symbol,
			"balance":   balance,
			"channelID": intent.ChannelID,
		})
		return nil
	}

	if err := e.ensureLeverage(ctx, symbol, leverage); err != nil {
		e.logError(ctx, err, "failed to set leverage", symbol, intent)
		return err
	}

	if err := e.wait(ctx); err != nil {
		return err
	}
	placed, err := e.exchange.PlaceMarketOrder(ctx, symbol, intent.Direction, qty)
	if err != nil {
		e.logError(ctx, err, "failed to place market order", symbol, intent)
		return err
	}

	openedAt := placed.CreateTime
	if openedAt.IsZero() {
		openedAt = e.now()
	}
	entryPrice := entry
	if placed.AvgPrice > 0 {
		entryPrice = placed.AvgPrice
	}

	var targets []*domain.OrderTarget

	slPrice, slTarget, err := e.ensureStopLoss(ctx, symbol, intent.Direction, slPrice, qty, entryPrice, limits)
	if err != nil {
		e.logError(ctx, err, "failed to place stop-loss", symbol, intent)
		return err
	}
	if slTarget != nil {
		targets = append(targets, slTarget)
	}

	tpTargets, err := e.placeTakeProfits(ctx, symbol, intent, qty, entryPrice, limits)
	if err != nil {
		e.logError(ctx, err, "failed to place take-profit legs", symbol, intent)
		return err
	}
	targets = append(targets, tpTargets...)

	order := &domain.Order{
		ExchangeOrderID: placed.ExchangeOrderID,
		ChannelID:       intent.ChannelID,
		Symbol:          symbol,
		Direction:       intent.Direction,
		Type:            domain.OrderTypeMarket,
		Leverage:        leverage,
		EntryPrice:      entryPrice,
		SLPrice:         slPrice,
		Qty:             qty,
		RemainingQty:    qty,
		Status:          domain.StatusOpen,
		OpenedAt:        openedAt,
		EnterBalance:    balance,
	}

	if _, err := e.orders.CreateOrderWithTargets(ctx, order, targets); err != nil {
		// The exchange-side orders stay placed; nothing here can undo them.
		// Log the whole payload so the record can be restored by hand.
		e.logger.Error(ctx, err, "order placed on exchange but not persisted", map[string]interface{}{
			"exchange":        e.exchange.Name(),
			"exchangeOrderID": order.ExchangeOrderID,
			"symbol":          order.Symbol,
			"direction":       order.Direction,
			"leverage":        order.Leverage,
			"entryPrice":      order.EntryPrice,
			"slPrice":         order.SLPrice,
			"qty":             order.Qty,
			"targets":         len(targets),
			"channelID":       order.ChannelID,
		})
		return err
	}

	e.logger.Info(ctx, "order placed", map[string]interface{}{
		"exchange":        e.exchange.Name(),
		"exchangeOrderID": order.ExchangeOrderID,
		"symbol":          symbol,
		"direction":       intent.Direction,
		"qty":             qty,
		"entryPrice":      entryPrice,
		"slPrice":         slPrice,
		"targets":         len(targets),
	})
	return nil
}

// sizeOrder runs the risk sizing chain and converts the result into the
// exchange's own sizing unit.
func (e *Executor) sizeOrder(balance, entry, slPrice float64, leverage int, limits ports.SymbolLimits) (float64, error) {
	balanceToUse, err := e.risk.BalanceToUse(balance)
	if err != nil {
		return 0, err
	}
	if min := e.exchange.MinNotional(); balanceToUse < min {
		balanceToUse = min
	}

	rawQty, err := e.risk.QtyFromRisk(balanceToUse, entry, slPrice)
	if err != nil {
		return 0, err
	}

	qty := risk.ApplyQtyStep(rawQty, limits.QtyStep)
	qty = risk.EnforceMinimum(qty, limits.QtyStep, limits.MinQty)
	qty = risk.FitByMargin(qty, entry, leverage, balance, limits.QtyStep)
	if qty == 0 {
		return 0, nil
	}
	return sizeInContracts(qty, limits), nil
}

// sizeInContracts converts a base-asset quantity into a contract count on
// exchanges that size in contracts, respecting the per-order bounds. On
// base-asset exchanges the quantity passes through unchanged.
func sizeInContracts(qty float64, limits ports.SymbolLimits) float64 {
	if limits.QuantoMultiple <= 0 {
		return qty
	}
	// Relative tolerance keeps an exact contract multiple from flooring one
	// contract short (6.0/0.01 = 599.99...).
	size := int64(math.Floor(qty / limits.QuantoMultiple * (1 + 1e-9)))
	if size == 0 || size < limits.OrderSizeMin {
		size = limits.OrderSizeMin
	}
	if limits.OrderSizeMax > 0 && size > limits.OrderSizeMax {
		size = limits.OrderSizeMax
	}
	return float64(size)
}

// ensureLeverage sets the leverage for the symbol unless the idempotency
// flag shows it was set recently. The flag is written only after a
// successful call, so a failed attempt retries on the next signal.
func (e *Executor) ensureLeverage(ctx context.Context, symbol string, leverage int) error {
	key := ports.LeverageKey(e.exchange.Name(), symbol)
	if _, set := e.cache.Get(key); set {
		return nil
	}
	if err := e.wait(ctx); err != nil {
		return err
	}
	if err := e.exchange.SetLeverage(ctx, symbol, leverage); err != nil {
		return err
	}
	e.cache.Set(key, true, ports.IdempotencyTTL)
	return nil
}

// ensureStopLoss places the stop-loss leg unless the idempotency flag shows
// one was placed recently. The returned price reflects the liquidation
// guard; the returned target is nil when the flag short-circuited the call.
func (e *Executor) ensureStopLoss(
	ctx context.Context,
	symbol string,
	direction domain.Direction,
	slPrice, qty, entryPrice float64,
	limits ports.SymbolLimits,
) (float64, *domain.OrderTarget, error) {
	key := ports.StopLossKey(e.exchange.Name(), symbol)
	if _, set := e.cache.Get(key); set {
		return slPrice, nil, nil
	}

	guarded, err := e.guardAgainstLiquidation(ctx, symbol, direction, slPrice, limits.PriceStep)
	if err != nil {
		return slPrice, nil, err
	}
	slPrice = guarded

	if err := e.wait(ctx); err != nil {
		return slPrice, nil, err
	}
	res, err := e.exchange.PlaceConditionalOrder(ctx, ports.ConditionalOrder{
		Symbol:       symbol,
		Direction:    direction,
		Trigger:      domain.TriggerSL,
		TriggerPrice: slPrice,
		Qty:          0, // close the whole position
		TriggerBy:    domain.TriggerByMarkPrice,
		EntryPrice:   entryPrice,
	})
	if err != nil {
		return slPrice, nil, err
	}
	e.cache.Set(key, true, ports.IdempotencyTTL)

	return slPrice, &domain.OrderTarget{
		ExchangeTPID: res.ExchangeOrderID,
		Type:         domain.TriggerSL,
		Price:        slPrice,
		Qty:          qty,
		TriggerBy:    domain.TriggerByMarkPrice,
	}, nil
}

// guardAgainstLiquidation pulls a stop-loss that sits beyond the position's
// estimated liquidation price back inside it by 1%, rounded to the price
// step. A stop past the liquidation price would never fire.
func (e *Executor) guardAgainstLiquidation(ctx context.Context, symbol string, direction domain.Direction, slPrice, priceStep float64) (float64, error) {
	pos, err := e.positionInfo(ctx, symbol)
	if err != nil {
		return slPrice, err
	}
	if pos == nil || pos.LiquidationPrice <= 0 {
		return slPrice, nil
	}

	liq := pos.LiquidationPrice
	raw := 0.0
	switch {
	case direction == domain.DirectionSell && slPrice > liq:
		raw = liq * 0.99
	case direction == domain.DirectionBuy && slPrice < liq:
		raw = liq * 1.01
	default:
		return slPrice, nil
	}

	adjusted := risk.RoundToPriceStep(raw, priceStep)
	e.logger.Warn(ctx, "stop-loss beyond liquidation price, adjusted", map[string]interface{}{
		"exchange":         e.exchange.Name(),
		"symbol":           symbol,
		"requestedSL":      slPrice,
		"liquidationPrice": liq,
		"adjustedSL":       adjusted,
	})
	return adjusted, nil
}

// placeTakeProfits splits the position quantity across the intent's targets
// and places one reduce-only trigger order per leg.
func (e *Executor) placeTakeProfits(
	ctx context.Context,
	symbol string,
	intent *domain.TradeIntent,
	qty, entryPrice float64,
	limits ports.SymbolLimits,
) ([]*domain.OrderTarget, error) {
	// Channels that never state targets get one default leg.
	prices := make([]domain.Price, len(intent.Targets))
	for i, p := range intent.Targets {
		if p.IsSet() {
			prices[i] = p
			continue
		}
		prices[i] = domain.PriceOf(e.risk.DefaultTakeProfit(intent.Direction, entryPrice, limits.PriceStep))
	}

	qtyStep := limits.QtyStep
	if limits.QuantoMultiple > 0 {
		qtyStep = 1 // contract-sized exchanges split in whole contracts
	}
	legs, err := risk.SplitTargetQty(qty, len(prices), qtyStep, nil)
	if err != nil {
		return nil, err
	}
	prices, legs = risk.CollapseDegenerate(prices, legs, qty)
	risk.ReconcileRemainder(legs, qty)

	targets := make([]*domain.OrderTarget, 0, len(prices))
	for i, p := range prices {
		tp, _ := p.Value()

		// Some exchanges reject a trigger order whose initial price
		// deviates too far from the trigger; shift it when needed.
		initial := entryPrice
		if adj := e.risk.TPInitialPrice(tp, entryPrice, intent.Direction); adj != 0 {
			initial = adj
		}

		if err := e.wait(ctx); err != nil {
			return nil, err
		}
		res, err := e.exchange.PlaceConditionalOrder(ctx, ports.ConditionalOrder{
			Symbol:       symbol,
			Direction:    intent.Direction,
			Trigger:      domain.TriggerTP,
			TriggerPrice: tp,
			Qty:          legs[i],
			TriggerBy:    domain.TriggerByMarkPrice,
			EntryPrice:   initial,
		})
		if err != nil {
			return nil, err
		}
		targets = append(targets, &domain.OrderTarget{
			ExchangeTPID: res.ExchangeOrderID,
			Type:         domain.TriggerTP,
			Price:        tp,
			Qty:          legs[i],
			TriggerBy:    domain.TriggerByMarkPrice,
		})
	}
	return targets, nil
}

// --- cached exchange reads ---

func (e *Executor) contracts(ctx context.Context) (map[string]ports.SymbolLimits, error) {
	key := ports.ContractsKey(e.exchange.Name())
	if v, ok := e.cache.Get(key); ok {
		if m, ok := v.(map[string]ports.SymbolLimits); ok {
			return m, nil
		}
	}
	if err := e.wait(ctx); err != nil {
		return nil, err
	}
	m, err := e.exchange.Contracts(ctx)
	if err != nil {
		return nil, err
	}
	e.cache.Set(key, m, ports.ContractsTTL)
	return m, nil
}

func (e *Executor) tickerPrice(ctx context.Context, symbol string) (float64, error) {
	key := ports.PriceKey(e.exchange.Name(), symbol)
	if v, ok := e.cache.Get(key); ok {
		if p, ok := v.(float64); ok {
			return p, nil
		}
	}
	if err := e.wait(ctx); err != nil {
		return 0, err
	}
	p, err := e.exchange.TickerPrice(ctx, symbol)
	if err != nil {
		return 0, err
	}
	e.cache.Set(key, p, ports.TickerTTL)
	return p, nil
}

func (e *Executor) accountBalance(ctx context.Context) (float64, error) {
	key := ports.BalanceKey(e.exchange.Name())
	if v, ok := e.cache.Get(key); ok {
		if b, ok := v.(float64); ok {
			return b, nil
		}
	}
	if err := e.wait(ctx); err != nil {
		return 0, err
	}
	b, err := e.exchange.AccountBalance(ctx)
	if err != nil {
		return 0, err
	}
	e.cache.Set(key, b, ports.BalanceTTL)
	return b, nil
}

func (e *Executor) positionInfo(ctx context.Context, symbol string) (*ports.PositionInfo, error) {
	key := ports.PositionKey(e.exchange.Name(), symbol)
	if v, ok := e.cache.Get(key); ok {
		if p, ok := v.(*ports.PositionInfo); ok {
			return p, nil
		}
	}
	if err := e.wait(ctx); err != nil {
		return nil, err
	}
	p, err := e.exchange.PositionInfo(ctx, symbol)
	if err != nil {
		return nil, err
	}
	e.cache.Set(key, p, ports.IdempotencyTTL)
	return p, nil
}

// wait blocks on the shared outbound rate limit.
func (e *Executor) wait(ctx context.Context) error {
	if e.limiter == nil {
		return nil
	}
	if err := e.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %v", ports.ErrContextCanceled, err)
	}
	return nil
}

// logError logs a failed placement step with the exchange HTTP context when
// the error carries one.
func (e *Executor) logError(ctx context.Context, err error, msg, symbol string, intent *domain.TradeIntent) {
	fields := map[string]interface{}{
		"logChannel": "exchangeApiErrors",
		"exchange":   e.exchange.Name(),
		"symbol":     symbol,
		"channelID":  intent.ChannelID,
		"direction":  intent.Direction,
	}
	var exErr *ports.ExchangeError
	if errors.As(err, &exErr) {
		for k, v := range exErr.Fields() {
			fields[k] = v
		}
	}
	e.logger.Error(ctx, err, msg, fields)
}
