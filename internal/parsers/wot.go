package parsers

import (
	"regexp"

	"signalTradeBot/internal/domain"
)

var (
	wotHeadRe = regexp.MustCompile(`(?i)(?:coin\s*:?\s*)?\$?#?([A-Z0-9/]+)\s+(long|short)\b`)
	// some posts lead with the direction instead ("LONG #BTC ...")
	wotHeadRevRe     = regexp.MustCompile(`(?i)\b(long|short)\s+\$?#?([A-Z0-9/]+)\b`)
	wotLeverageRe    = regexp.MustCompile(`(?i)leverage\s*:\s*(?:isolated\s*)?x(\d+)`)
	wotEntryRangeRe  = regexp.MustCompile(`(?i)entry\s*:\s*([\d.,]+)\s*-\s*([\d.,]+)`)
	wotEntrySingleRe = regexp.MustCompile(`(?i)entry\s*\d*\s*:\s*([\d.,]+)`)
	wotTargetRe      = regexp.MustCompile(`(?i)(?:target|tp)\s*\d*\s*[:\-]?\s*([\d.,]+)`)
	wotTargetsLineRe = regexp.MustCompile(`(?i)targets\s*:\s*([^\n]+)`)
	wotNumberRe      = regexp.MustCompile(`[\d.,]+`)
	wotStopRe        = regexp.MustCompile(`(?i)\b(?:sl|stop(?:loss)?)\s*:\s*([\d.,]+)`)
)

// Wot handles the "$COIN long / Leverage: Isolated x20" format. Prices carry
// comma thousands separators ("92,780") that must be stripped, and the entry
// can be a range, numbered singles, or both; all stated entries are averaged.
type Wot struct{}

func NewWot() *Wot { return &Wot{} }

func (p *Wot) Name() string { return "wot" }

func (p *Wot) Parse(msg domain.RawMessage) (*domain.TradeIntent, error) {
	if !IsRelevant(msg.Text) {
		return nil, skipf("no trading keywords")
	}

	intent := &domain.TradeIntent{
		ChannelID: msg.ChannelID,
		Leverage:  defaultLeverage,
		Entry:     domain.EntryAtMarket(),
		StopLoss:  domain.DeferredPrice(),
	}

	if m := wotHeadRe.FindStringSubmatch(msg.Text); m != nil {
		intent.Symbol = normalizeSymbol(m[1])
		intent.Direction = directionOf(m[2])
	} else if m := wotHeadRevRe.FindStringSubmatch(msg.Text); m != nil {
		intent.Direction = directionOf(m[1])
		intent.Symbol = normalizeSymbol(m[2])
	}
	if m := wotLeverageRe.FindStringSubmatch(msg.Text); m != nil {
		intent.Leverage = leverageFrom(m[1], roundHalfUp)
	}

	var entries []float64
	if m := wotEntryRangeRe.FindStringSubmatch(msg.Text); m != nil {
		for _, tok := range m[1:] {
			if v, ok := toFloat(stripThousands(tok)); ok {
				entries = append(entries, v)
			}
		}
	} else {
		for _, m := range wotEntrySingleRe.FindAllStringSubmatch(msg.Text, -1) {
			if v, ok := toFloat(stripThousands(m[1])); ok {
				entries = append(entries, v)
			}
		}
	}
	if len(entries) > 0 {
		var sum float64
		for _, v := range entries {
			sum += v
		}
		intent.Entry = domain.EntryAt(sum / float64(len(entries)))
	}

	seen := make(map[float64]bool)
	addTarget := func(raw string) {
		v, ok := toFloat(stripThousands(raw))
		if !ok || seen[v] {
			return
		}
		seen[v] = true
		intent.Targets = append(intent.Targets, domain.PriceOf(v))
	}
	for _, m := range wotTargetRe.FindAllStringSubmatch(msg.Text, -1) {
		addTarget(m[1])
	}
	if m := wotTargetsLineRe.FindStringSubmatch(msg.Text); m != nil {
		for _, tok := range wotNumberRe.FindAllString(m[1], -1) {
			addTarget(tok)
		}
	}

	if m := wotStopRe.FindStringSubmatch(msg.Text); m != nil {
		if v, ok := toFloat(stripThousands(m[1])); ok {
			intent.StopLoss = domain.PriceOf(v)
		}
	}

	if !intent.IsComplete() {
		return nil, incompletef("required fields missing")
	}
	return intent, nil
}
