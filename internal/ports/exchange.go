package ports

import (
	"context"
	"time"

	"signalTradeBot/internal/domain"
)

// SymbolLimits are the trading constraints the exchange publishes per
// contract. Sizing must respect all of them before an order is sent.
type SymbolLimits struct {
	QtyStep        float64 // minimum increment for order quantity
	MinQty         float64 // minimum tradable quantity
	PriceStep      float64 // minimum price increment, used to round derived SL/TP
	OrderSizeMin   int64   // minimum contract count, where the exchange sizes in contracts
	OrderSizeMax   int64   // maximum contract count, 0 when unbounded
	LeverageMin    int
	LeverageMax    int
	QuantoMultiple float64 // base-asset amount per contract, 0 when the exchange sizes in base asset
}

// ClampLeverage pulls a requested leverage into the contract's allowed range.
func (l SymbolLimits) ClampLeverage(leverage int) int {
	if l.LeverageMin > 0 && leverage < l.LeverageMin {
		return l.LeverageMin
	}
	if l.LeverageMax > 0 && leverage > l.LeverageMax {
		return l.LeverageMax
	}
	return leverage
}

// OrderResult is the essential detail returned after placing any order.
type OrderResult struct {
	ExchangeOrderID string
	AvgPrice        float64 // average filled price, 0 when not reported
	CreateTime      time.Time
}

// ConditionalOrder describes one exit leg (stop-loss or take-profit) to be
// placed as a reduce-only trigger order.
type ConditionalOrder struct {
	Symbol       string
	Direction    domain.Direction // direction of the POSITION being reduced
	Trigger      domain.TriggerType
	TriggerPrice float64
	Qty          float64 // 0 means "close the whole position"
	TriggerBy    domain.TriggerBy
	EntryPrice   float64 // position entry, some exchanges need it for the initial order price
}

// PositionInfo is the subset of position state the placement sequence needs.
type PositionInfo struct {
	Symbol           string
	Size             float64
	EntryPrice       float64
	LiquidationPrice float64 // 0 when the exchange did not report one
}

// ExchangeClient is the common contract every per-exchange adapter
// implements. One implementation per exchange; selection happens through a
// registry keyed by the configured exchange name.
type ExchangeClient interface {
	// Name returns the registry key of the exchange, e.g. "gate".
	Name() string

	// MinNotional is the smallest balance the exchange accepts as order value.
	MinNotional() float64

	// Contracts retrieves the trading limits for every listed contract,
	// keyed by the exchange's symbol notation.
	Contracts(ctx context.Context) (map[string]SymbolLimits, error)

	// FormatSymbol converts a signal coin like "BTC" into the exchange's
	// contract notation (BTC_USDT, BTCUSDT, ...).
	FormatSymbol(coin string) string

	// TickerPrice retrieves the last trade price for a symbol.
	TickerPrice(ctx context.Context, symbol string) (float64, error)

	// AccountBalance retrieves the available futures balance in USDT.
	AccountBalance(ctx context.Context) (float64, error)

	// SetLeverage sets the leverage for a symbol. Side-effecting; callers
	// gate it with the idempotency cache.
	SetLeverage(ctx context.Context, symbol string, leverage int) error

	// PlaceMarketOrder opens a position at market price. Qty is in the
	// exchange's own sizing unit (contracts or base asset).
	PlaceMarketOrder(ctx context.Context, symbol string, direction domain.Direction, qty float64) (*OrderResult, error)

	// PlaceConditionalOrder places one reduce-only exit leg.
	PlaceConditionalOrder(ctx context.Context, ord ConditionalOrder) (*OrderResult, error)

	// PositionInfo retrieves the open position for a symbol, nil when flat.
	PositionInfo(ctx context.Context, symbol string) (*PositionInfo, error)
}
