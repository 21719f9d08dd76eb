package risk

import (
	"fmt"
	"math"
	"strconv"

	"signalTradeBot/internal/domain"
)

const (
	// qtyDecimals bounds float artifacts after step rounding (0.999999999...).
	qtyDecimals = 8

	// stepEpsilon is the relative tolerance absorbing binary representation
	// error in value/step ratios so an exact multiple is never floored one
	// step down (95/0.01 = 9499.99...).
	stepEpsilon = 1e-9
)

// Config holds the tunable risk percentages.
type Config struct {
	RiskPercent      float64 // share of the balance risked per trade, e.g. 0.03
	DefaultSLPercent float64 // distance of a derived stop-loss from entry, e.g. 0.05
	DefaultTPPercent float64 // distance of a derived take-profit from entry, e.g. 0.15
	TPDeviationLimit float64 // max relative distance between entry and TP initial price, e.g. 0.02
}

// DefaultConfig mirrors the production percentages.
func DefaultConfig() Config {
	return Config{
		RiskPercent:      0.03,
		DefaultSLPercent: 0.05,
		DefaultTPPercent: 0.15,
		TPDeviationLimit: 0.02,
	}
}

// Manager computes position sizes and target splits. All methods are pure;
// the struct only carries configuration.
type Manager struct {
	cfg Config
}

// New creates a risk manager.
func New(cfg Config) *Manager {
	return &Manager{cfg: cfg}
}

// BalanceToUse returns the money put at risk for one trade.
func (m *Manager) BalanceToUse(balance float64) (float64, error) {
	if balance <= 0 {
		return 0, fmt.Errorf("account balance must be > 0, got %f", balance)
	}
	return balance * m.cfg.RiskPercent, nil
}

// QtyFromRisk computes the unrounded base-asset quantity for a linear
// (USDT-margined) contract: qty = riskMoney / |entry - stopLoss|.
func (m *Manager) QtyFromRisk(riskMoney, entryPrice, stopLossPrice float64) (float64, error) {
	if riskMoney <= 0 {
		return 0, fmt.Errorf("risk money must be > 0, got %f", riskMoney)
	}
	if entryPrice <= 0 || stopLossPrice <= 0 {
		return 0, fmt.Errorf("prices must be > 0, got entry=%f sl=%f", entryPrice, stopLossPrice)
	}
	distance := math.Abs(entryPrice - stopLossPrice)
	if distance == 0 {
		return 0, fmt.Errorf("stop loss distance can not be zero")
	}
	return riskMoney / distance, nil
}

// ApplyQtyStep floors qty to a multiple of the exchange's quantity step.
// Always rounds down: a trade may risk less than intended, never more.
func ApplyQtyStep(qty, qtyStep float64) float64 {
	if qtyStep <= 0 {
		return 0
	}
	return trimFloat(math.Floor(qty/qtyStep*(1+stepEpsilon)) * qtyStep)
}

// EnforceMinimum returns qty step-rounded, or 0 when it falls below the
// exchange's minimum tradable size.
func EnforceMinimum(qty, qtyStep, minQty float64) float64 {
	qty = ApplyQtyStep(qty, qtyStep)
	if qty < minQty {
		return 0
	}
	return qty
}

// RequiredMargin is the USDT reserved for a linear position.
func RequiredMargin(qty, entryPrice float64, leverage int) float64 {
	if leverage <= 0 {
		return 0
	}
	return qty * entryPrice / float64(leverage)
}

// FitByMargin scales qty down proportionally when the required margin exceeds
// the available margin, then re-applies the step.
func FitByMargin(qty, entryPrice float64, leverage int, availableMargin, qtyStep float64) float64 {
	required := RequiredMargin(qty, entryPrice, leverage)
	if required <= availableMargin {
		return ApplyQtyStep(qty, qtyStep)
	}
	if required == 0 {
		return 0
	}
	return ApplyQtyStep(qty*(availableMargin/required), qtyStep)
}

// targetWeights are the default quantity shares per take-profit leg count.
var targetWeights = map[int][]float64{
	1: {1.0},
	2: {0.6, 0.4},
	3: {0.5, 0.3, 0.2},
	4: {0.5, 0.2, 0.2, 0.1},
	5: {0.4, 0.2, 0.2, 0.1, 0.1},
}

// SplitTargetQty distributes totalQty across targetsCount take-profit legs.
// With customWeights nil the default weight tables apply, equal split beyond
// five legs. Each leg is step-rounded independently, so the sum may drift
// from totalQty; ReconcileRemainder puts the difference onto the last leg.
func SplitTargetQty(totalQty float64, targetsCount int, qtyStep float64, customWeights []float64) ([]float64, error) {
	if targetsCount <= 0 {
		return nil, nil
	}

	var weights []float64
	if customWeights != nil {
		var sum float64
		for _, w := range customWeights {
			sum += w
		}
		if sum <= 0 {
			return nil, fmt.Errorf("custom target weights must sum to > 0")
		}
		weights = make([]float64, len(customWeights))
		for i, w := range customWeights {
			weights[i] = w / sum
		}
	} else if def, ok := targetWeights[targetsCount]; ok {
		weights = def
	} else {
		weights = make([]float64, targetsCount)
		for i := range weights {
			weights[i] = 1 / float64(targetsCount)
		}
	}

	result := make([]float64, len(weights))
	for i, w := range weights {
		result[i] = ApplyQtyStep(totalQty*w, qtyStep)
	}
	return result, nil
}

// ReconcileRemainder adjusts the last leg so the legs sum back to totalQty
// after independent step rounding.
func ReconcileRemainder(legs []float64, totalQty float64) {
	if len(legs) < 2 {
		return
	}
	var sum float64
	for _, l := range legs {
		sum += l
	}
	if sum == totalQty {
		return
	}
	last := len(legs) - 1
	diff := math.Abs(totalQty - sum)
	if sum < totalQty {
		legs[last] = trimFloat(legs[last] + diff)
	} else {
		legs[last] = trimFloat(legs[last] - diff)
	}
}

// CollapseDegenerate detects legs that rounded to zero. When any leg is zero
// the whole split collapses into one leg carrying the full quantity at the
// first target's price; a zero-quantity leg must never reach the exchange.
// Returns the possibly-replaced prices and quantities.
func CollapseDegenerate(prices []domain.Price, legs []float64, totalQty float64) ([]domain.Price, []float64) {
	degenerate := len(legs) == 0
	for _, l := range legs {
		if l <= 0 {
			degenerate = true
			break
		}
	}
	if !degenerate {
		return prices, legs
	}
	if len(prices) == 0 {
		return prices, legs
	}
	return prices[:1], []float64{totalQty}
}

// DefaultStopLoss derives a stop-loss at the configured percentage of entry:
// below entry for longs, above for shorts, rounded to the price increment.
func (m *Manager) DefaultStopLoss(direction domain.Direction, entryPrice, priceStep float64) float64 {
	var raw float64
	if direction == domain.DirectionBuy {
		raw = entryPrice * (1 - m.cfg.DefaultSLPercent)
	} else {
		raw = entryPrice * (1 + m.cfg.DefaultSLPercent)
	}
	return RoundToPriceStep(raw, priceStep)
}

// DefaultTakeProfit derives a take-profit at the configured percentage of
// entry, mirrored against DefaultStopLoss.
func (m *Manager) DefaultTakeProfit(direction domain.Direction, entryPrice, priceStep float64) float64 {
	var raw float64
	if direction == domain.DirectionBuy {
		raw = entryPrice * (1 + m.cfg.DefaultTPPercent)
	} else {
		raw = entryPrice * (1 - m.cfg.DefaultTPPercent)
	}
	return RoundToPriceStep(raw, priceStep)
}

// TPInitialPrice returns the adjusted initial order price for a take-profit
// leg when the trigger price is too far from entry for the exchange's
// deviation-rate limit, or 0 when no adjustment is needed.
func (m *Manager) TPInitialPrice(target, entryPrice float64, direction domain.Direction) float64 {
	if target+entryPrice == 0 {
		return 0
	}
	diffPercent := math.Abs(entryPrice-target) / ((target + entryPrice) / 2)
	if diffPercent <= m.cfg.TPDeviationLimit {
		return 0
	}
	shift := entryPrice * m.cfg.TPDeviationLimit
	if direction == domain.DirectionBuy {
		return entryPrice + shift
	}
	return entryPrice - shift
}

// RoundToPriceStep floors a price to the exchange's price increment.
func RoundToPriceStep(price, priceStep float64) float64 {
	if priceStep <= 0 {
		return price
	}
	return trimFloat(math.Floor(price/priceStep*(1+stepEpsilon)) * priceStep)
}

// trimFloat drops float artifacts beyond qtyDecimals places.
func trimFloat(v float64) float64 {
	trimmed, err := strconv.ParseFloat(strconv.FormatFloat(v, 'f', qtyDecimals, 64), 64)
	if err != nil {
		return v
	}
	return trimmed
}
