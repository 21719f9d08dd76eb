package domain

// priceState is the resolution state of an optional price field.
type priceState int

const (
	priceMissing  priceState = iota // not found in the message
	priceDeferred                   // channel never provides it, derive a default later
	priceSet
)

// Price is an optional price value. Parsers produce fields that may be absent
// from a message, and some channels deliberately omit a field the executor
// derives later; both states must stay distinguishable from a real value, so
// optional numeric fields travel as a Price instead of a magic placeholder.
type Price struct {
	value float64
	state priceState
}

// PriceOf wraps a concrete price value.
func PriceOf(v float64) Price {
	return Price{value: v, state: priceSet}
}

// DeferredPrice marks a field the channel does not supply; the executor
// substitutes a configured default percentage of the entry price.
func DeferredPrice() Price {
	return Price{state: priceDeferred}
}

// NoPrice is the absent value. An intent carrying a missing required field is
// rejected by the completeness gate.
func NoPrice() Price {
	return Price{}
}

// Value returns the price and whether a concrete value is set.
func (p Price) Value() (float64, bool) {
	return p.value, p.state == priceSet
}

// IsSet reports whether a concrete value is present.
func (p Price) IsSet() bool {
	return p.state == priceSet
}

// IsDeferred reports whether a default should be derived at execution time.
func (p Price) IsDeferred() bool {
	return p.state == priceDeferred
}

// EntryKind tells how the entry price of an intent was specified.
type EntryKind int

const (
	EntryNone   EntryKind = iota // not found in the message
	EntryPrice                   // concrete price (single value or averaged range)
	EntryMarket                  // "market": resolve from the ticker at execution time
)

// Entry is the entry specification of a trade intent.
type Entry struct {
	Kind  EntryKind
	Price float64 // meaningful only when Kind == EntryPrice
}

// EntryAt builds a concrete-price entry.
func EntryAt(price float64) Entry {
	return Entry{Kind: EntryPrice, Price: price}
}

// EntryAtMarket builds a market entry.
func EntryAtMarket() Entry {
	return Entry{Kind: EntryMarket}
}

// TradeIntent is the normalized, exchange-agnostic result of parsing one
// channel message. It is ephemeral: produced by a parser, consumed by the
// executor, never persisted.
type TradeIntent struct {
	ChannelID int64 // channels.id of the originating channel
	Symbol    string
	Direction Direction
	Entry     Entry
	Leverage  int     // defaulted to 10 by the parsers when absent
	Targets   []Price // take-profit prices in message order
	StopLoss  Price
}

// IsComplete reports whether every field required for order placement is
// present. Deferred fields count as present (the executor derives them); a
// missing field does not.
func (t *TradeIntent) IsComplete() bool {
	if t.Symbol == "" || t.Direction == 0 || t.Entry.Kind == EntryNone {
		return false
	}
	if !t.StopLoss.IsSet() && !t.StopLoss.IsDeferred() {
		return false
	}
	if len(t.Targets) == 0 {
		return false
	}
	for _, tp := range t.Targets {
		if !tp.IsSet() && !tp.IsDeferred() {
			return false
		}
	}
	return true
}

// RawMessage is one inbound channel message as delivered by the transport.
type RawMessage struct {
	ChannelID  int64  // internal channel row id
	ChannelCID string // transport-side channel identifier
	MessageID  string // transport-side message id, used by reply-correlated grammars
	ReplyToID  string // id of the message this one replies to, if any
	Text       string
}
