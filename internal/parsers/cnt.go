package parsers

import (
	"regexp"

	"signalTradeBot/internal/domain"
)

var (
	cntHeadRe    = regexp.MustCompile(`(?i)\b(Long|Short)\b.*?\$?([A-Z0-9]+)`)
	cntStopRe    = regexp.MustCompile(`(?i)\b(?:sl|stop(?:loss)?)\s*[:\-]?\s*(\d+\.\d+)`)
	cntTargetsRe = regexp.MustCompile(`(?i)TP\d+:\s*([\d.]+)`)
)

// Cnt handles the "Long $COIN ... TP1: ... sl ..." format. The channel's
// stated entries lag the market, so orders are always placed at the current
// price and the parsed entry is only used to validate the message.
type Cnt struct{}

func NewCnt() *Cnt { return &Cnt{} }

func (p *Cnt) Name() string { return "cnt" }

func (p *Cnt) Parse(msg domain.RawMessage) (*domain.TradeIntent, error) {
	if !IsRelevant(msg.Text) {
		return nil, skipf("no trading keywords")
	}

	intent := &domain.TradeIntent{
		ChannelID: msg.ChannelID,
		Leverage:  defaultLeverage,
		Entry:     domain.EntryAtMarket(),
		StopLoss:  domain.DeferredPrice(),
	}

	if m := cntHeadRe.FindStringSubmatch(msg.Text); m != nil {
		intent.Direction = directionOf(m[1])
		intent.Symbol = normalizeSymbol(m[2])
	}

	if m := cntStopRe.FindStringSubmatch(msg.Text); m != nil {
		if v, ok := toFloat(m[1]); ok {
			intent.StopLoss = domain.PriceOf(v)
		}
	}

	for _, m := range cntTargetsRe.FindAllStringSubmatch(msg.Text, -1) {
		if v, ok := toFloat(m[1]); ok {
			intent.Targets = append(intent.Targets, domain.PriceOf(v))
		}
	}

	if !intent.IsComplete() {
		return nil, incompletef("required fields missing")
	}
	return intent, nil
}
