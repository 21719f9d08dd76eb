package parsers

import (
	"regexp"

	"signalTradeBot/internal/domain"
)

var (
	bkvBodyRe   = regexp.MustCompile(`(?s)📍Coin\s*:\s*#(\S+).*?🟢\s*(\w+).*?➡️ Entry:\s*([\d.]+)\s*-\s*([\d.]+).*?🌐 Leverage:\s*(\d+)x.*?(🎯 Target.*)`)
	bkvTargetRe = regexp.MustCompile(`🎯 Target \d+:\s*([\d.]+)`)
	bkvStopRe   = regexp.MustCompile(`❌ StopLoss:\s*([\d.]+)`)
)

// Bkv handles the emoji-labeled format ("📍Coin: #X ... 🎯 Target 1: ...").
// The entry range is averaged.
type Bkv struct{}

func NewBkv() *Bkv { return &Bkv{} }

func (p *Bkv) Name() string { return "bkv" }

func (p *Bkv) Parse(msg domain.RawMessage) (*domain.TradeIntent, error) {
	if !IsRelevant(msg.Text) {
		return nil, skipf("no trading keywords")
	}

	m := bkvBodyRe.FindStringSubmatch(msg.Text)
	if m == nil {
		return nil, skipf("grammar mismatch")
	}

	intent := &domain.TradeIntent{
		ChannelID: msg.ChannelID,
		Symbol:    normalizeSymbol(m[1]),
		Direction: directionOf(m[2]),
		Leverage:  leverageFrom(m[5], roundHalfUp),
	}

	lo, okLo := toFloat(m[3])
	hi, okHi := toFloat(m[4])
	if okLo && okHi {
		intent.Entry = domain.EntryAt((lo + hi) / 2)
	}

	for _, t := range bkvTargetRe.FindAllStringSubmatch(m[6], -1) {
		if v, ok := toFloat(t[1]); ok {
			intent.Targets = append(intent.Targets, domain.PriceOf(v))
		}
	}

	if sl := bkvStopRe.FindStringSubmatch(msg.Text); sl != nil {
		if v, ok := toFloat(sl[1]); ok {
			intent.StopLoss = domain.PriceOf(v)
		}
	}

	if !intent.IsComplete() {
		return nil, incompletef("required fields missing")
	}
	return intent, nil
}
