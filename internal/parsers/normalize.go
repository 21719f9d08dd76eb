package parsers

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"signalTradeBot/internal/domain"
)

// defaultLeverage applies when a channel does not state leverage.
const defaultLeverage = 10

// relevanceWords gate message processing: a message mentioning none of them
// is not a signal. Channels mix English and Russian.
var relevanceWords = []string{
	"тейк",
	"take",
	"профит",
	"profit",
	"тп",
	"tp",
	"стоп",
	"stop",
	"лос",
	"los",
	"сл",
	"sl",
	"лимит",
	"limit",
	"рынок",
	"market",
}

// punctStripper removes the separators that would split a keyword in half
// ("stop-loss", "т.п.") before the relevance scan.
var punctStripper = strings.NewReplacer(".", "", "-", "", "/", "")

// IsRelevant reports whether the message mentions any trading keyword.
func IsRelevant(text string) bool {
	text = strings.ToLower(punctStripper.Replace(text))
	for _, w := range relevanceWords {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}

// directionOf maps a direction word to the order direction. Anything other
// than "long" is treated as a short.
func directionOf(word string) domain.Direction {
	if strings.EqualFold(strings.TrimSpace(word), "long") {
		return domain.DirectionBuy
	}
	return domain.DirectionSell
}

// normalizeSymbol uppercases a coin ticker.
func normalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// toFloat parses a decimal that may use a comma as the decimal separator.
func toFloat(s string) (float64, bool) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// stripThousands removes comma thousands separators ("92,780" -> "92780").
func stripThousands(s string) string {
	return strings.ReplaceAll(s, ",", "")
}

var leverageMarks = strings.NewReplacer("x", "", "х", "", "X", "", "Х", "")

// leverageFrom parses a leverage token like "20", "20x" or "10-20х" (Latin
// and Cyrillic marks both appear in the wild). A range is averaged with the
// given rounding; zero or garbage falls back to the default.
func leverageFrom(raw string, round func(float64) int) int {
	raw = strings.TrimSpace(leverageMarks.Replace(raw))
	if raw == "" {
		return defaultLeverage
	}
	var (
		sum   float64
		count int
	)
	for _, part := range strings.Split(raw, "-") {
		v, ok := toFloat(part)
		if !ok {
			return defaultLeverage
		}
		sum += v
		count++
	}
	if count == 0 || sum <= 0 {
		return defaultLeverage
	}
	if count == 1 {
		return int(sum)
	}
	return round(sum / float64(count))
}

func roundHalfUp(v float64) int { return int(math.Round(v)) }

func roundDown(v float64) int { return int(v) }

func roundUp(v float64) int { return int(math.Ceil(v)) }

var numberRe = regexp.MustCompile(`[\d.]+`)

// numbersIn extracts every decimal token from a line, in order.
func numbersIn(line string) []float64 {
	var out []float64
	for _, tok := range numberRe.FindAllString(line, -1) {
		if v, ok := toFloat(tok); ok {
			out = append(out, v)
		}
	}
	return out
}

// pricesOf wraps concrete values into the optional price type.
func pricesOf(values []float64) []domain.Price {
	out := make([]domain.Price, 0, len(values))
	for _, v := range values {
		out = append(out, domain.PriceOf(v))
	}
	return out
}
