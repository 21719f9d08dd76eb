package parsers

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signalTradeBot/internal/domain"
)

// stubCache is a minimal in-memory cache for parser tests.
type stubCache struct {
	mu      sync.Mutex
	entries map[string]interface{}
}

func newStubCache() *stubCache {
	return &stubCache{entries: make(map[string]interface{})}
}

func (c *stubCache) Get(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[key]
	return v, ok
}

func (c *stubCache) Set(key string, value interface{}, _ time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = value
}

func (c *stubCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

func entryPrice(t *testing.T, e domain.Entry) float64 {
	t.Helper()
	require.Equal(t, domain.EntryPrice, e.Kind)
	return e.Price
}

func targetValues(t *testing.T, targets []domain.Price) []float64 {
	t.Helper()
	out := make([]float64, 0, len(targets))
	for _, p := range targets {
		v, ok := p.Value()
		require.True(t, ok)
		out = append(out, v)
	}
	return out
}

func stopValue(t *testing.T, p domain.Price) float64 {
	t.Helper()
	v, ok := p.Value()
	require.True(t, ok)
	return v
}

func TestWqoParse(t *testing.T) {
	p := NewWqo()

	msg := domain.RawMessage{ChannelID: 1, Text: "Coin: #SOL\nDirection: Long\nLeverage: 10-20x\nEntry: $140.5 - $142.5\nTargets: 150 - 155 - 160\nStop-loss: 135.5"}
	intent, err := p.Parse(msg)
	require.NoError(t, err)
	assert.Equal(t, "SOL", intent.Symbol)
	assert.Equal(t, domain.DirectionBuy, intent.Direction)
	assert.Equal(t, 15, intent.Leverage)
	assert.InDelta(t, 141.5, entryPrice(t, intent.Entry), 1e-9)
	assert.Equal(t, []float64{150, 155, 160}, targetValues(t, intent.Targets))
	assert.InDelta(t, 135.5, stopValue(t, intent.StopLoss), 1e-9)

	intent, err = p.Parse(domain.RawMessage{ChannelID: 1, Text: "Coin: #SOL\nDirection: Short\nEntry: Market\nTargets: 120\nSL: 150"})
	require.NoError(t, err)
	assert.Equal(t, domain.EntryMarket, intent.Entry.Kind)
	assert.Equal(t, domain.DirectionSell, intent.Direction)
	assert.Equal(t, defaultLeverage, intent.Leverage)

	// stop-loss omitted: derived later
	intent, err = p.Parse(domain.RawMessage{ChannelID: 1, Text: "Coin: #SOL\nDirection: Long\nEntry: Market\nTargets: 160\ntake profit soon"})
	require.NoError(t, err)
	assert.True(t, intent.StopLoss.IsDeferred())

	_, err = p.Parse(domain.RawMessage{ChannelID: 1, Text: "gm, nothing to see"})
	assert.ErrorIs(t, err, ErrSkip)

	// no entry at all
	_, err = p.Parse(domain.RawMessage{ChannelID: 1, Text: "Coin: #SOL\nDirection: Long\nTargets: 150\nSL: 130"})
	assert.ErrorIs(t, err, ErrIncomplete)
}

func TestCntParse(t *testing.T) {
	p := NewCnt()

	msg := domain.RawMessage{ChannelID: 2, Text: "Long $ARB\nentry 1.05 - 1.10\nTP1: 1.20\nTP2: 1.35\nsl 0.95"}
	intent, err := p.Parse(msg)
	require.NoError(t, err)
	assert.Equal(t, "ARB", intent.Symbol)
	assert.Equal(t, domain.DirectionBuy, intent.Direction)
	// stated entries lag the market; the order goes in at the current price
	assert.Equal(t, domain.EntryMarket, intent.Entry.Kind)
	assert.Equal(t, []float64{1.20, 1.35}, targetValues(t, intent.Targets))
	assert.InDelta(t, 0.95, stopValue(t, intent.StopLoss), 1e-9)

	_, err = p.Parse(domain.RawMessage{ChannelID: 2, Text: "Long $ARB\nsl 0.95"})
	assert.ErrorIs(t, err, ErrIncomplete, "no targets")
}

func TestEskParse(t *testing.T) {
	p := NewEsk()

	msg := domain.RawMessage{ChannelID: 3, Text: "#DOGE LONG X10-20\nстоп 0.155\nтейк 0.17 / 0.18 и 0.19"}
	intent, err := p.Parse(msg)
	require.NoError(t, err)
	assert.Equal(t, "DOGE", intent.Symbol)
	assert.Equal(t, domain.DirectionBuy, intent.Direction)
	assert.Equal(t, 15, intent.Leverage)
	assert.Equal(t, domain.EntryMarket, intent.Entry.Kind)
	assert.Equal(t, []float64{0.17, 0.18, 0.19}, targetValues(t, intent.Targets))
	assert.InDelta(t, 0.155, stopValue(t, intent.StopLoss), 1e-9)
}

func TestEtgParse(t *testing.T) {
	p := NewEtg()

	msg := domain.RawMessage{ChannelID: 4, Text: "Opening long on $LINK (max 20x)\n\nentry: 14.2 - 14.8\ntp: 15.5, 16.2, 17\nsl: 13.4"}
	intent, err := p.Parse(msg)
	require.NoError(t, err)
	assert.Equal(t, "LINK", intent.Symbol)
	assert.Equal(t, domain.DirectionBuy, intent.Direction)
	assert.Equal(t, 20, intent.Leverage)
	assert.InDelta(t, 14.5, entryPrice(t, intent.Entry), 1e-9)
	assert.Equal(t, []float64{15.5, 16.2, 17}, targetValues(t, intent.Targets))
	assert.InDelta(t, 13.4, stopValue(t, intent.StopLoss), 1e-9)
}

func TestEtParse(t *testing.T) {
	p := NewEt()

	msg := domain.RawMessage{ChannelID: 5, Text: "💰 AVAX long x10\nВход: 22.5\nЦели: 23.5, 24.5\nСтоп: 21.0"}
	intent, err := p.Parse(msg)
	require.NoError(t, err)
	assert.Equal(t, "AVAX", intent.Symbol)
	assert.Equal(t, domain.DirectionBuy, intent.Direction)
	assert.Equal(t, 10, intent.Leverage)
	assert.InDelta(t, 22.5, entryPrice(t, intent.Entry), 1e-9)
	assert.Equal(t, []float64{23.5, 24.5}, targetValues(t, intent.Targets))
	assert.InDelta(t, 21.0, stopValue(t, intent.StopLoss), 1e-9)

	msg = domain.RawMessage{ChannelID: 5, Text: "💰 AVAX short 10-20x\nВход: по рынку\nЦели: 20.5, 19.5\nСтоп: 24.0"}
	intent, err = p.Parse(msg)
	require.NoError(t, err)
	assert.Equal(t, domain.DirectionSell, intent.Direction)
	assert.Equal(t, 15, intent.Leverage)
	assert.Equal(t, domain.EntryMarket, intent.Entry.Kind)

	_, err = p.Parse(domain.RawMessage{ChannelID: 5, Text: "стоп лужу закрыл, всем спасибо"})
	assert.ErrorIs(t, err, ErrSkip)
}

func TestWotParse(t *testing.T) {
	p := NewWot()

	msg := domain.RawMessage{ChannelID: 6, Text: "$BTC Long\nLeverage: Isolated x20\nEntry: 92,500 - 93,500\nTarget 1: 95,000\nTarget 2: 96,500\nSL: 90,000"}
	intent, err := p.Parse(msg)
	require.NoError(t, err)
	assert.Equal(t, "BTC", intent.Symbol)
	assert.Equal(t, domain.DirectionBuy, intent.Direction)
	assert.Equal(t, 20, intent.Leverage)
	assert.InDelta(t, 93000, entryPrice(t, intent.Entry), 1e-9)
	assert.Equal(t, []float64{95000, 96500}, targetValues(t, intent.Targets))
	assert.InDelta(t, 90000, stopValue(t, intent.StopLoss), 1e-9)

	// inline "Targets:" line with thousands separators, deduplicated
	msg = domain.RawMessage{ChannelID: 6, Text: "$ETH short\nTargets: 3,200 - 3,100 - 3,100\nSL: 3,500"}
	intent, err = p.Parse(msg)
	require.NoError(t, err)
	assert.Equal(t, domain.EntryMarket, intent.Entry.Kind)
	assert.Equal(t, []float64{3200, 3100}, targetValues(t, intent.Targets))
}

func TestWotParseDirectionFirst(t *testing.T) {
	p := NewWot()

	msg := domain.RawMessage{ChannelID: 6, Text: "LONG #BTC Entry: 100-102 Leverage: 10x Target 1: 105 Target 2: 110 StopLoss: 95"}
	intent, err := p.Parse(msg)
	require.NoError(t, err)
	assert.Equal(t, "BTC", intent.Symbol)
	assert.Equal(t, domain.DirectionBuy, intent.Direction)
	assert.Equal(t, 10, intent.Leverage)
	assert.InDelta(t, 101, entryPrice(t, intent.Entry), 1e-9)
	assert.Equal(t, []float64{105, 110}, targetValues(t, intent.Targets))
	assert.InDelta(t, 95, stopValue(t, intent.StopLoss), 1e-9)
}

func TestSvrParse(t *testing.T) {
	p := NewSvr()

	msg := domain.RawMessage{ChannelID: 7, Text: "Оформляем SUI / LONG\n\nПлечи: 5-10х\n\nВход: Рынок 3.45 и Лимитный ордер 3.35\n\nТэйк-профит: 3.6, 3.75, 3.9\n\nСтоп-лосс: 3.2"}
	intent, err := p.Parse(msg)
	require.NoError(t, err)
	assert.Equal(t, "SUI", intent.Symbol)
	assert.Equal(t, domain.DirectionBuy, intent.Direction)
	assert.Equal(t, 8, intent.Leverage, "range averaged rounding up")
	assert.InDelta(t, 3.4, entryPrice(t, intent.Entry), 1e-9)
	assert.Equal(t, []float64{3.6, 3.75, 3.9}, targetValues(t, intent.Targets))
	assert.InDelta(t, 3.2, stopValue(t, intent.StopLoss), 1e-9)

	_, err = p.Parse(domain.RawMessage{ChannelID: 7, Text: "Стоп-лосс двигаем в безубыток"})
	assert.ErrorIs(t, err, ErrSkip, "keyword present but grammar mismatch")
}

func TestSkrParse(t *testing.T) {
	p := NewSkr()

	msg := domain.RawMessage{ChannelID: 8, Text: "ENA 📈 LONG x10\n\nВход: Рынок 0.85 Лимит 0.80\n\nТake-Profit:\n1) 0.90\n2) 0.95\n\n❌ Stop-loss: 0.75"}
	intent, err := p.Parse(msg)
	require.NoError(t, err)
	assert.Equal(t, "ENA", intent.Symbol)
	assert.Equal(t, domain.DirectionBuy, intent.Direction)
	assert.Equal(t, 10, intent.Leverage)
	assert.InDelta(t, 0.825, entryPrice(t, intent.Entry), 1e-9)
	assert.Equal(t, []float64{0.90, 0.95}, targetValues(t, intent.Targets))
	assert.InDelta(t, 0.75, stopValue(t, intent.StopLoss), 1e-9)
}

func TestBkvParse(t *testing.T) {
	p := NewBkv()

	msg := domain.RawMessage{ChannelID: 9, Text: "📍Coin: #OP\n\n🟢 Long\n\n➡️ Entry: 1.60 - 1.70\n\n🌐 Leverage: 10x\n\n🎯 Target 1: 1.80\n🎯 Target 2: 1.90\n\n❌ StopLoss: 1.45"}
	intent, err := p.Parse(msg)
	require.NoError(t, err)
	assert.Equal(t, "OP", intent.Symbol)
	assert.Equal(t, domain.DirectionBuy, intent.Direction)
	assert.Equal(t, 10, intent.Leverage)
	assert.InDelta(t, 1.65, entryPrice(t, intent.Entry), 1e-9)
	assert.Equal(t, []float64{1.80, 1.90}, targetValues(t, intent.Targets))
	assert.InDelta(t, 1.45, stopValue(t, intent.StopLoss), 1e-9)
}

func TestKsParse(t *testing.T) {
	cache := newStubCache()
	p := NewKs(cache)

	// the setup message names coin and direction; it carries no keywords
	// and is skipped, but must be cached for the coming reply
	_, err := p.Parse(domain.RawMessage{ChannelID: 10, MessageID: "100", Text: "doge - long"})
	assert.ErrorIs(t, err, ErrSkip)

	intent, err := p.Parse(domain.RawMessage{ChannelID: 10, MessageID: "101", ReplyToID: "100", Text: "твх 0.215 стоп 0.205"})
	require.NoError(t, err)
	assert.Equal(t, "DOGE", intent.Symbol)
	assert.Equal(t, domain.DirectionBuy, intent.Direction)
	assert.Equal(t, defaultLeverage, intent.Leverage)
	assert.InDelta(t, 0.215, entryPrice(t, intent.Entry), 1e-9)
	require.Len(t, intent.Targets, 1)
	assert.True(t, intent.Targets[0].IsDeferred(), "take-profit derived at execution")
	assert.InDelta(t, 0.205, stopValue(t, intent.StopLoss), 1e-9)

	// the setup entry is consumed on use
	_, err = p.Parse(domain.RawMessage{ChannelID: 10, MessageID: "102", ReplyToID: "100", Text: "твх 0.220 стоп 0.210"})
	assert.ErrorIs(t, err, ErrIncomplete)

	// a signal that is not a reply cannot be correlated
	_, err = p.Parse(domain.RawMessage{ChannelID: 10, MessageID: "103", Text: "твх 0.220 стоп 0.210"})
	assert.ErrorIs(t, err, ErrIncomplete)
}

func TestByName(t *testing.T) {
	cache := newStubCache()
	for _, name := range []string{"wqo", "cnt", "esk", "et", "etg", "wot", "svr", "skr", "bkv", "ks"} {
		p, err := ByName(name, cache)
		require.NoError(t, err)
		assert.Equal(t, name, p.Name())
	}
	_, err := ByName("nope", cache)
	assert.Error(t, err)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	r.Register("-1001", NewWqo())

	p, ok := r.ForChannel("-1001")
	require.True(t, ok)
	assert.Equal(t, "wqo", p.Name())

	_, ok = r.ForChannel("-4242")
	assert.False(t, ok)
}
