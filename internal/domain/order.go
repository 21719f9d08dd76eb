package domain

import "time"

// Channel is a signal source the bot listens to.
type Channel struct {
	ID          int64
	CID         string // transport-side channel identifier
	Name        string
	IsForHandle bool    // whether messages from this channel are processed
	TotalPnl    float64 // running realized P&L attributed to the channel
	TodayPnl    float64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Order is one placed position. Created by the executor together with its
// exit targets; afterwards mutated only by the fill reconciler.
type Order struct {
	ID              int64
	ExchangeOrderID string // id assigned by the exchange
	ChannelID       int64
	Symbol          string
	Direction       Direction
	Type            OrderType
	Leverage        int
	EntryPrice      float64
	SLPrice         float64
	Qty             float64
	RemainingQty    float64
	Status          OrderStatus
	OpenedAt        time.Time
	ClosedAt        time.Time // zero while the order is not fully closed
	EnterBalance    float64   // account balance at the moment of entry
	Pnl             float64   // cumulative realized P&L
	PnlPercent      float64
	Commission      float64
	LastExitOrderID int64 // order_targets.id of the most recent triggered leg, 0 if none
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// IsOpen reports whether the order can still receive fills.
func (o *Order) IsOpen() bool {
	return o.Status == StatusOpen || o.Status == StatusPartiallyClosed
}

// OrderTarget is one exit leg (take-profit or stop-loss) of an order.
type OrderTarget struct {
	ID           int64
	OrderID      int64
	ExchangeTPID string // id assigned by the exchange, empty until placed
	Type         TriggerType
	Price        float64
	Qty          float64
	TriggerBy    TriggerBy
	IsTriggered  bool
	TriggeredAt  time.Time // zero until triggered
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TradePnlLog is one append-only realized P&L record per fill.
type TradePnlLog struct {
	ID         int64
	OrderID    int64
	Pnl        float64
	PnlPercent float64
	Reason     TriggerType // which trigger type closed the quantity
	CreatedAt  time.Time
}
