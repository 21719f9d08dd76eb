package parsers

import (
	"regexp"

	"signalTradeBot/internal/domain"
)

var (
	eskHeadRe    = regexp.MustCompile(`(?i)#([A-Z0-9]+)\s+(LONG|SHORT)\s+X(\d+(?:-\d+)?)`)
	eskStopRe    = regexp.MustCompile(`(?i)(?:стоп|sl|stop)[^0-9]{0,30}(\d+[.,]?\d*)`)
	eskTargetsRe = regexp.MustCompile(`(?i)(?:тейк|tp|target)[^0-9]{0,30}((?:\d+[.,]?\d*)(?:\s*(?:/|и)\s*(?:\d+[.,]?\d*))*)`)
	eskSplitRe   = regexp.MustCompile(`\s*(?:/|и)\s*`)
)

// Esk handles the "#COIN LONG X10" format with targets separated by "/" or
// the Russian "и". Entries are never stated; orders go in at market.
type Esk struct{}

func NewEsk() *Esk { return &Esk{} }

func (p *Esk) Name() string { return "esk" }

func (p *Esk) Parse(msg domain.RawMessage) (*domain.TradeIntent, error) {
	if !IsRelevant(msg.Text) {
		return nil, skipf("no trading keywords")
	}

	intent := &domain.TradeIntent{
		ChannelID: msg.ChannelID,
		Leverage:  defaultLeverage,
		Entry:     domain.EntryAtMarket(),
		StopLoss:  domain.DeferredPrice(),
	}

	if m := eskHeadRe.FindStringSubmatch(msg.Text); m != nil {
		intent.Symbol = normalizeSymbol(m[1])
		intent.Direction = directionOf(m[2])
		intent.Leverage = leverageFrom(m[3], roundDown)
	}

	if m := eskStopRe.FindStringSubmatch(msg.Text); m != nil {
		if v, ok := toFloat(m[1]); ok {
			intent.StopLoss = domain.PriceOf(v)
		}
	}

	if m := eskTargetsRe.FindStringSubmatch(msg.Text); m != nil {
		for _, tok := range eskSplitRe.Split(m[1], -1) {
			if v, ok := toFloat(tok); ok {
				intent.Targets = append(intent.Targets, domain.PriceOf(v))
			}
		}
	}

	if !intent.IsComplete() {
		return nil, incompletef("required fields missing")
	}
	return intent, nil
}
