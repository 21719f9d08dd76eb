package parsers

import (
	"regexp"

	"signalTradeBot/internal/domain"
)

var (
	etgHeadRe    = regexp.MustCompile(`(?is)\b(long|short)\b.*?\$([A-Z0-9]+).*?\(max\s*(\d+)x\)`)
	etgEntryRe   = regexp.MustCompile(`(?i)entry\s*:\s*([\d.]+)\s*-\s*([\d.]+)`)
	etgTargetsRe = regexp.MustCompile(`(?i)tp\s*:\s*([^\n]+)`)
	etgStopRe    = regexp.MustCompile(`(?i)\bsl\s*:\s*([\d.]+)`)
)

// Etg handles the "long ... $COIN ... (max 20x)" format with a mandatory
// entry range.
type Etg struct{}

func NewEtg() *Etg { return &Etg{} }

func (p *Etg) Name() string { return "etg" }

func (p *Etg) Parse(msg domain.RawMessage) (*domain.TradeIntent, error) {
	if !IsRelevant(msg.Text) {
		return nil, skipf("no trading keywords")
	}

	intent := &domain.TradeIntent{
		ChannelID: msg.ChannelID,
		Leverage:  defaultLeverage,
		StopLoss:  domain.DeferredPrice(),
	}

	if m := etgHeadRe.FindStringSubmatch(msg.Text); m != nil {
		intent.Direction = directionOf(m[1])
		intent.Symbol = normalizeSymbol(m[2])
		intent.Leverage = leverageFrom(m[3], roundHalfUp)
	}

	if m := etgEntryRe.FindStringSubmatch(msg.Text); m != nil {
		lo, okLo := toFloat(m[1])
		hi, okHi := toFloat(m[2])
		if okLo && okHi {
			intent.Entry = domain.EntryAt((lo + hi) / 2)
		}
	}

	if m := etgTargetsRe.FindStringSubmatch(msg.Text); m != nil {
		intent.Targets = pricesOf(numbersIn(m[1]))
	}

	if m := etgStopRe.FindStringSubmatch(msg.Text); m != nil {
		if v, ok := toFloat(m[1]); ok {
			intent.StopLoss = domain.PriceOf(v)
		}
	}

	if !intent.IsComplete() {
		return nil, incompletef("required fields missing")
	}
	return intent, nil
}
