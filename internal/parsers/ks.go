package parsers

import (
	"regexp"

	"signalTradeBot/internal/domain"
	"signalTradeBot/internal/ports"
)

var (
	ksSetupRe = regexp.MustCompile(`(?i)(\w+)\s*-\s*(\w+)`)
	ksEntryRe = regexp.MustCompile(`(?i)твх\s*(\d\.\d{2,})`)
	ksStopRe  = regexp.MustCompile(`(?i)стоп\s*(\d\.\d{2,})`)
)

// Ks handles a two-message grammar: a setup message names the coin and
// direction ("doge - long"), and the actual signal arrives later as a reply
// carrying the entry ("твх 0.21") and stop prices. Every message is cached
// by its id for half an hour so the reply can find its setup; a used setup
// entry is dropped right away. Targets are never stated; the executor
// derives the default take-profit.
type Ks struct {
	cache ports.Cache
}

func NewKs(cache ports.Cache) *Ks { return &Ks{cache: cache} }

func (p *Ks) Name() string { return "ks" }

func (p *Ks) Parse(msg domain.RawMessage) (*domain.TradeIntent, error) {
	if msg.MessageID == "" {
		return nil, incompletef("message id missing")
	}
	p.cache.Set(ports.ReplyKey(p.Name(), msg.MessageID), msg.Text, ports.ReplyTTL)

	if !IsRelevant(msg.Text) {
		return nil, skipf("no trading keywords")
	}

	if msg.ReplyToID == "" {
		return nil, incompletef("signal is not a reply to a setup message")
	}
	setupKey := ports.ReplyKey(p.Name(), msg.ReplyToID)
	cached, ok := p.cache.Get(setupKey)
	if !ok {
		return nil, incompletef("setup message %s not found in cache", msg.ReplyToID)
	}
	setupText, ok := cached.(string)
	if !ok {
		return nil, incompletef("setup message %s has unexpected cached type", msg.ReplyToID)
	}
	p.cache.Delete(setupKey)

	intent := &domain.TradeIntent{
		ChannelID: msg.ChannelID,
		Leverage:  defaultLeverage,
		Targets:   []domain.Price{domain.DeferredPrice()},
	}

	if m := ksSetupRe.FindStringSubmatch(setupText); m != nil {
		intent.Symbol = normalizeSymbol(m[1])
		intent.Direction = directionOf(m[2])
	}
	if m := ksEntryRe.FindStringSubmatch(msg.Text); m != nil {
		if v, ok := toFloat(m[1]); ok {
			intent.Entry = domain.EntryAt(v)
		}
	}
	if m := ksStopRe.FindStringSubmatch(msg.Text); m != nil {
		if v, ok := toFloat(m[1]); ok {
			intent.StopLoss = domain.PriceOf(v)
		}
	}

	if !intent.IsComplete() {
		return nil, incompletef("required fields missing")
	}
	return intent, nil
}
