package parsers

import (
	"regexp"
	"strings"

	"signalTradeBot/internal/domain"
)

// et signals are one free-form block, matched in a single pass
var etBodyRe = regexp.MustCompile(`(?is)💰\s*([A-Z0-9]+)\s+(long|short)\s+([0-9\-xх]+).*?Вход:\s*([^\n]+).*?Цели:\s*([\d.,\s]+).*?Стоп:\s*([\d.]+)`)

// Et handles the Russian "💰 COIN long x10 / Вход: / Цели: / Стоп:" format.
// The entry line is either a price (averaged when it is a range) or the
// word "рынок".
type Et struct{}

func NewEt() *Et { return &Et{} }

func (p *Et) Name() string { return "et" }

func (p *Et) Parse(msg domain.RawMessage) (*domain.TradeIntent, error) {
	if !IsRelevant(msg.Text) {
		return nil, skipf("no trading keywords")
	}

	m := etBodyRe.FindStringSubmatch(msg.Text)
	if m == nil {
		return nil, skipf("grammar mismatch")
	}

	intent := &domain.TradeIntent{
		ChannelID: msg.ChannelID,
		Symbol:    normalizeSymbol(m[1]),
		Direction: directionOf(m[2]),
		Leverage:  leverageFrom(m[3], roundHalfUp),
	}

	entryLine := strings.ToLower(m[4])
	if nums := numbersIn(entryLine); len(nums) > 0 {
		var sum float64
		for _, v := range nums {
			sum += v
		}
		intent.Entry = domain.EntryAt(sum / float64(len(nums)))
	} else if strings.Contains(entryLine, "рынк") || strings.Contains(entryLine, "market") {
		intent.Entry = domain.EntryAtMarket()
	}

	for _, part := range strings.Split(m[5], ",") {
		if v, ok := toFloat(part); ok {
			intent.Targets = append(intent.Targets, domain.PriceOf(v))
		}
	}

	if v, ok := toFloat(m[6]); ok {
		intent.StopLoss = domain.PriceOf(v)
	} else {
		intent.StopLoss = domain.DeferredPrice()
	}

	if !intent.IsComplete() {
		return nil, incompletef("required fields missing")
	}
	return intent, nil
}
