package domain

import "time"

// FillEvent is one trade-execution report from the exchange stream, keyed by
// the exchange-assigned id of the conditional order that filled.
type FillEvent struct {
	ExchangeOrderID string
	Price           float64
	Size            float64
	Fee             float64
	CreateTime      time.Time
}
