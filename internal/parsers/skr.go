package parsers

import (
	"regexp"

	"signalTradeBot/internal/domain"
)

var (
	// the Т in "Тake-Profit" is Cyrillic in the source messages
	skrBodyRe   = regexp.MustCompile(`(?is)^(\S+)\s+📈\s+(LONG|SHORT)\s+x(\d+).*?Вход:.*?Рынок\s*([\d.,]+).*?Лимит\s*([\d.,]+).*?Тake-Profit:(.*?)(?:❌|$).*?Stop-loss:\s*([\d.,]+)`)
	skrTargetRe = regexp.MustCompile(`\d\)\s*([\d.,]+)`)
)

// Skr handles the "X 📈 LONG x10" format with a market/limit entry pair and
// "n)"-numbered targets. The entry is the average of the two stated prices;
// when only one of them parses, the prices are summed instead; live signals
// have relied on that behavior.
type Skr struct{}

func NewSkr() *Skr { return &Skr{} }

func (p *Skr) Name() string { return "skr" }

func (p *Skr) Parse(msg domain.RawMessage) (*domain.TradeIntent, error) {
	if !IsRelevant(msg.Text) {
		return nil, skipf("no trading keywords")
	}

	m := skrBodyRe.FindStringSubmatch(msg.Text)
	if m == nil {
		return nil, skipf("grammar mismatch")
	}

	intent := &domain.TradeIntent{
		ChannelID: msg.ChannelID,
		Symbol:    normalizeSymbol(m[1]),
		Direction: directionOf(m[2]),
		Leverage:  leverageFrom(m[3], roundHalfUp),
	}

	marketPrice, okM := toFloat(m[4])
	limitPrice, okL := toFloat(m[5])
	switch {
	case okM && okL:
		intent.Entry = domain.EntryAt((marketPrice + limitPrice) / 2)
	case okM || okL:
		intent.Entry = domain.EntryAt(marketPrice + limitPrice)
	}

	subject := msg.Text
	if m[6] != "" {
		subject = m[6]
	}
	for _, t := range skrTargetRe.FindAllStringSubmatch(subject, -1) {
		if v, ok := toFloat(t[1]); ok {
			intent.Targets = append(intent.Targets, domain.PriceOf(v))
		}
	}

	if v, ok := toFloat(m[7]); ok {
		intent.StopLoss = domain.PriceOf(v)
	}

	if !intent.IsComplete() {
		return nil, incompletef("required fields missing")
	}
	return intent, nil
}
