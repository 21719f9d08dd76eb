package domain

// Direction is the side of a position, stored as a small int in the orders table.
type Direction int

const (
	DirectionBuy  Direction = 1 // long
	DirectionSell Direction = 2 // short
)

// Label returns the human readable name of the direction.
func (d Direction) Label() string {
	switch d {
	case DirectionBuy:
		return "Buy"
	case DirectionSell:
		return "Sell"
	default:
		return "Unknown"
	}
}

// Opposite returns the closing side for the direction.
func (d Direction) Opposite() Direction {
	if d == DirectionBuy {
		return DirectionSell
	}
	return DirectionBuy
}

// OrderType is the entry order type.
type OrderType int

const (
	OrderTypeMarket OrderType = 1
	OrderTypeLimit  OrderType = 2
)

// OrderStatus is the lifecycle state of a placed order.
type OrderStatus int

const (
	StatusOpen            OrderStatus = 1
	StatusPartiallyClosed OrderStatus = 2
	StatusClosed          OrderStatus = 3
	StatusCancelled       OrderStatus = 4
)

// Label returns the human readable name of the status.
func (s OrderStatus) Label() string {
	switch s {
	case StatusOpen:
		return "Open"
	case StatusPartiallyClosed:
		return "PartiallyClosed"
	case StatusClosed:
		return "Closed"
	case StatusCancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// TriggerType classifies an exit leg of an order.
type TriggerType int

const (
	TriggerTP     TriggerType = 1
	TriggerManual TriggerType = 2
	TriggerSL     TriggerType = 3
)

// Label returns the human readable name of the trigger type.
func (t TriggerType) Label() string {
	switch t {
	case TriggerTP:
		return "TP"
	case TriggerManual:
		return "Manual"
	case TriggerSL:
		return "SL"
	default:
		return "Unknown"
	}
}

// TriggerBy is the price feed a conditional order triggers on.
type TriggerBy int

const (
	TriggerByMarkPrice TriggerBy = 1
	TriggerByLastPrice TriggerBy = 2
)
