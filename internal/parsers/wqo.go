package parsers

import (
	"regexp"

	"signalTradeBot/internal/domain"
)

var (
	wqoCoinRe      = regexp.MustCompile(`(?i)Coin:\s*#?([A-Z0-9]+)`)
	wqoDirectionRe = regexp.MustCompile(`(?i)Direction:\s*(Long|Short)`)
	wqoLeverageRe  = regexp.MustCompile(`(?i)(?:Leverage|Плечи)\s*:\s*([0-9]+(?:\s*[-–]\s*[0-9]+)?\s*[xх])`)
	wqoMarketRe    = regexp.MustCompile(`(?i)Entry:\s*Market`)
	wqoRangeRe     = regexp.MustCompile(`(?i)Entry:\s*\$?([\d.]+)\s*[-–]\s*\$?([\d.]+)`)
	wqoSingleRe    = regexp.MustCompile(`(?i)Entry:\s*\$?([\d.]+)`)
	wqoTargetsRe   = regexp.MustCompile(`(?i)Targets?:\s*([^\n]+)`)
	wqoStopRe      = regexp.MustCompile(`(?i)(?:Stop[\s-]?loss|SL)\s*[:\-]?\s*\$?\s*([\d.]+)`)

	// the targets line mixes prices with hyphens and stray symbols
	wqoTargetJunkRe  = regexp.MustCompile(`[^0-9.\-\s]`)
	wqoTargetSplitRe = regexp.MustCompile(`[\s\-–]+`)
)

// Wqo handles the labeled "Coin: / Direction: / Entry: / Targets: / SL:"
// format. Entry is explicit: a market keyword, a range or a single price.
type Wqo struct{}

func NewWqo() *Wqo { return &Wqo{} }

func (p *Wqo) Name() string { return "wqo" }

func (p *Wqo) Parse(msg domain.RawMessage) (*domain.TradeIntent, error) {
	if !IsRelevant(msg.Text) {
		return nil, skipf("no trading keywords")
	}

	intent := &domain.TradeIntent{
		ChannelID: msg.ChannelID,
		Leverage:  defaultLeverage,
		StopLoss:  domain.DeferredPrice(),
	}

	if m := wqoCoinRe.FindStringSubmatch(msg.Text); m != nil {
		intent.Symbol = normalizeSymbol(m[1])
	}
	if m := wqoDirectionRe.FindStringSubmatch(msg.Text); m != nil {
		intent.Direction = directionOf(m[1])
	}
	if m := wqoLeverageRe.FindStringSubmatch(msg.Text); m != nil {
		intent.Leverage = leverageFrom(m[1], roundHalfUp)
	}

	switch {
	case wqoMarketRe.MatchString(msg.Text):
		intent.Entry = domain.EntryAtMarket()
	default:
		if m := wqoRangeRe.FindStringSubmatch(msg.Text); m != nil {
			lo, okLo := toFloat(m[1])
			hi, okHi := toFloat(m[2])
			if okLo && okHi {
				intent.Entry = domain.EntryAt((lo + hi) / 2)
			}
		} else if m := wqoSingleRe.FindStringSubmatch(msg.Text); m != nil {
			if v, ok := toFloat(m[1]); ok {
				intent.Entry = domain.EntryAt(v)
			}
		}
	}

	if m := wqoTargetsRe.FindStringSubmatch(msg.Text); m != nil {
		line := wqoTargetJunkRe.ReplaceAllString(m[1], "")
		for _, tok := range wqoTargetSplitRe.Split(line, -1) {
			if v, ok := toFloat(tok); ok {
				intent.Targets = append(intent.Targets, domain.PriceOf(v))
			}
		}
	}

	if m := wqoStopRe.FindStringSubmatch(msg.Text); m != nil {
		if v, ok := toFloat(m[1]); ok {
			intent.StopLoss = domain.PriceOf(v)
		}
	}

	if !intent.IsComplete() {
		return nil, incompletef("required fields missing")
	}
	return intent, nil
}
