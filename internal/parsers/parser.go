// Package parsers turns free-text channel messages into normalized trade
// intents. Every channel publishes signals in its own format, so each one
// gets a dedicated parser behind the common SignalParser interface; the
// dispatcher picks the parser through a Registry keyed by the transport-side
// channel identifier.
package parsers

import (
	"errors"
	"fmt"

	"signalTradeBot/internal/domain"
	"signalTradeBot/internal/ports"
)

// SignalParser extracts a trade intent from one raw channel message.
type SignalParser interface {
	// Name returns the short channel codename the parser handles.
	Name() string

	// Parse returns the normalized intent, or an error wrapping ErrSkip
	// (message is not a signal) or ErrIncomplete (signal is missing a
	// required field). Any other error is a parser defect.
	Parse(msg domain.RawMessage) (*domain.TradeIntent, error)
}

var (
	// ErrSkip means the message is not a trading signal and should be
	// dropped silently.
	ErrSkip = errors.New("message is not a signal")

	// ErrIncomplete means the message looked like a signal but a field
	// required for order placement could not be extracted. The caller
	// logs these with the raw message for grammar debugging.
	ErrIncomplete = errors.New("signal is incomplete")
)

func skipf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{ErrSkip}, args...)...)
}

func incompletef(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{ErrIncomplete}, args...)...)
}

// ByName builds the parser with the given codename. The ks parser correlates
// a signal with an earlier setup message, so it needs the cache.
func ByName(name string, cache ports.Cache) (SignalParser, error) {
	switch name {
	case "wqo":
		return NewWqo(), nil
	case "cnt":
		return NewCnt(), nil
	case "esk":
		return NewEsk(), nil
	case "et":
		return NewEt(), nil
	case "etg":
		return NewEtg(), nil
	case "wot":
		return NewWot(), nil
	case "svr":
		return NewSvr(), nil
	case "skr":
		return NewSkr(), nil
	case "bkv":
		return NewBkv(), nil
	case "ks":
		return NewKs(cache), nil
	}
	return nil, fmt.Errorf("unknown signal parser %q", name)
}

// Registry maps transport-side channel identifiers to their parsers.
type Registry struct {
	byChannel map[string]SignalParser
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byChannel: make(map[string]SignalParser)}
}

// Register binds a channel identifier to a parser. Later registrations for
// the same identifier win.
func (r *Registry) Register(channelCID string, p SignalParser) {
	r.byChannel[channelCID] = p
}

// ForChannel returns the parser handling the given channel identifier.
func (r *Registry) ForChannel(channelCID string) (SignalParser, bool) {
	p, ok := r.byChannel[channelCID]
	return p, ok
}
