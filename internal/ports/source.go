package ports

import "context"

// RawSignalEvent is the transport-level payload for one channel message.
type RawSignalEvent struct {
	ChannelID    string // transport-side channel identifier
	ChannelTitle string
	MessageID    string
	ReplyToID    string
	Text         string
}

// FillEventPayload is the transport-level payload for one execution report.
type FillEventPayload struct {
	OrderID    string
	Price      float64
	Size       float64
	Fee        float64
	CreateTime int64 // unix seconds
}

// EventSource abstracts the broker consumers feeding the core. The transport
// (queue technology, acknowledgment, reconnects) lives outside this module;
// the core only requires two event streams. Both channels close when the
// source is exhausted or the context is canceled.
type EventSource interface {
	Signals(ctx context.Context) <-chan RawSignalEvent
	Fills(ctx context.Context) <-chan FillEventPayload
}
