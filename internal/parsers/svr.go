package parsers

import (
	"regexp"
	"strings"

	"signalTradeBot/internal/domain"
)

// svr signals are Russian prose; one pass over the whole block
var svrBodyRe = regexp.MustCompile(`(?is)Оформляем\s+(\S+)\s*/\s*(LONG|SHORT).*?Плечи:\s*([\d.,]+)-([\d.,]+)х.*?Вход.*?Рынок\s*([\d.,]+).*?(?:и|и Лимитный ордер)\s*([\d.,]+).*?Тэйк-профит:\s*([0-9.,\s]+).*?Стоп-лосс:\s*([\d.,]+)`)

// Svr handles the Russian prose format ("Оформляем X / LONG ... Плечи:
// 5-10х"). Entry comes as a market-plus-limit pair that is averaged; the
// leverage range is averaged rounding up.
type Svr struct{}

func NewSvr() *Svr { return &Svr{} }

func (p *Svr) Name() string { return "svr" }

func (p *Svr) Parse(msg domain.RawMessage) (*domain.TradeIntent, error) {
	if !IsRelevant(msg.Text) {
		return nil, skipf("no trading keywords")
	}

	m := svrBodyRe.FindStringSubmatch(msg.Text)
	if m == nil {
		return nil, skipf("grammar mismatch")
	}

	intent := &domain.TradeIntent{
		ChannelID: msg.ChannelID,
		Symbol:    normalizeSymbol(m[1]),
		Direction: directionOf(m[2]),
		Leverage:  leverageFrom(m[3]+"-"+m[4], roundUp),
	}

	marketPrice, okM := toFloat(m[5])
	limitPrice, okL := toFloat(m[6])
	switch {
	case okM && okL:
		intent.Entry = domain.EntryAt((marketPrice + limitPrice) / 2)
	case okM:
		intent.Entry = domain.EntryAt(marketPrice)
	case okL:
		intent.Entry = domain.EntryAt(limitPrice)
	}

	for _, part := range strings.Split(m[7], ",") {
		if v, ok := toFloat(part); ok {
			intent.Targets = append(intent.Targets, domain.PriceOf(v))
		}
	}

	if v, ok := toFloat(m[8]); ok {
		intent.StopLoss = domain.PriceOf(v)
	}

	if !intent.IsComplete() {
		return nil, incompletef("required fields missing")
	}
	return intent, nil
}
