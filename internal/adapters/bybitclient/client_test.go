package bybitclient

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signalTradeBot/internal/domain"
	"signalTradeBot/internal/ports"
)

type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(Config{
		APIKey:    "key",
		APISecret: "secret",
		BaseURL:   srv.URL,
		Logger:    &mockLogger{},
	})
	require.NoError(t, err)
	return c
}

func ok(result string) string {
	return `{"retCode":0,"retMsg":"OK","result":` + result + `}`
}

func TestNewRequiresCredentials(t *testing.T) {
	_, err := New(Config{Logger: &mockLogger{}})
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrConfigurationError)
}

func TestFormatSymbol(t *testing.T) {
	c := newTestClient(t, http.NotFoundHandler())
	assert.Equal(t, "BTCUSDT", c.FormatSymbol("btc"))
}

func TestSignedGetHeaders(t *testing.T) {
	var key, ts, window, sign string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key = r.Header.Get("X-BAPI-API-KEY")
		ts = r.Header.Get("X-BAPI-TIMESTAMP")
		window = r.Header.Get("X-BAPI-RECV-WINDOW")
		sign = r.Header.Get("X-BAPI-SIGN")
		io.WriteString(w, ok(`{"list":[{"coin":[{"coin":"USDT","availableToWithdraw":"500"}]}]}`))
	}))
	c.now = func() time.Time { return time.UnixMilli(1700000000000) }

	balance, err := c.AccountBalance(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 500.0, balance, 1e-9)

	assert.Equal(t, "key", key)
	assert.Equal(t, "1700000000000", ts)
	assert.Equal(t, "5000", window)
	// HMAC-SHA256("1700000000000"+"key"+"5000"+"accountType=UNIFIED&coin=USDT", "secret")
	assert.Equal(t, "7b2d9b304d6e1b381f41b2a79e673f20e9fc2c8d78f97c388d3f9d873731c9dc", sign)
}

func TestContracts(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v5/market/instruments-info", r.URL.Path)
		assert.Equal(t, "linear", r.URL.Query().Get("category"))
		io.WriteString(w, ok(`{"list":[{
			"symbol":"BTCUSDT",
			"lotSizeFilter":{"qtyStep":"0.001","minOrderQty":"0.001"},
			"priceFilter":{"tickSize":"0.1"},
			"leverageFilter":{"minLeverage":"1","maxLeverage":"100"}
		}]}`))
	}))

	limits, err := c.Contracts(context.Background())
	require.NoError(t, err)
	require.Contains(t, limits, "BTCUSDT")
	l := limits["BTCUSDT"]
	assert.InDelta(t, 0.001, l.QtyStep, 1e-12)
	assert.InDelta(t, 0.001, l.MinQty, 1e-12)
	assert.InDelta(t, 0.1, l.PriceStep, 1e-12)
	assert.Equal(t, 1, l.LeverageMin)
	assert.Equal(t, 100, l.LeverageMax)
	// Bybit sizes in base asset, not contracts.
	assert.Zero(t, l.QuantoMultiple)
}

func TestTickerPrice(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v5/market/tickers", r.URL.Path)
		assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
		io.WriteString(w, ok(`{"list":[{"lastPrice":"65000.5"}]}`))
	}))

	price, err := c.TickerPrice(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.InDelta(t, 65000.5, price, 1e-9)
}

func TestSetLeverage(t *testing.T) {
	var body map[string]interface{}
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v5/position/set-leverage", r.URL.Path)
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &body))
		io.WriteString(w, ok(`{}`))
	}))

	require.NoError(t, c.SetLeverage(context.Background(), "BTCUSDT", 10))
	assert.Equal(t, "10", body["buyLeverage"])
	assert.Equal(t, "10", body["sellLeverage"])
	assert.Equal(t, "linear", body["category"])
}

func TestSetLeverageNotModifiedIsNotAnError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"retCode":110043,"retMsg":"leverage not modified","result":{}}`)
	}))
	require.NoError(t, c.SetLeverage(context.Background(), "BTCUSDT", 10))
}

func TestPlaceMarketOrder(t *testing.T) {
	var body map[string]interface{}
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v5/order/create", r.URL.Path)
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &body))
		io.WriteString(w, ok(`{"orderId":"abc-123"}`))
	}))

	res, err := c.PlaceMarketOrder(context.Background(), "BTCUSDT", domain.DirectionBuy, 0.006)
	require.NoError(t, err)
	assert.Equal(t, "abc-123", res.ExchangeOrderID)

	assert.Equal(t, "Buy", body["side"])
	assert.Equal(t, "Market", body["orderType"])
	assert.Equal(t, "0.006", body["qty"])
	assert.NotEmpty(t, body["orderLinkId"])
}

func TestPlaceConditionalStopLoss(t *testing.T) {
	var body map[string]interface{}
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &body))
		io.WriteString(w, ok(`{"orderId":"sl-1"}`))
	}))

	_, err := c.PlaceConditionalOrder(context.Background(), ports.ConditionalOrder{
		Symbol:       "BTCUSDT",
		Direction:    domain.DirectionBuy,
		Trigger:      domain.TriggerSL,
		TriggerPrice: 95,
		Qty:          0,
		TriggerBy:    domain.TriggerByMarkPrice,
	})
	require.NoError(t, err)

	// Closing a long sells; a long stop fires on falling price.
	assert.Equal(t, "Sell", body["side"])
	assert.Equal(t, "95", body["triggerPrice"])
	assert.Equal(t, "MarkPrice", body["triggerBy"])
	assert.Equal(t, float64(2), body["triggerDirection"])
	assert.Equal(t, true, body["reduceOnly"])
	assert.Equal(t, true, body["closeOnTrigger"])
}

func TestPlaceConditionalTakeProfit(t *testing.T) {
	var body map[string]interface{}
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &body))
		io.WriteString(w, ok(`{"orderId":"tp-1"}`))
	}))

	_, err := c.PlaceConditionalOrder(context.Background(), ports.ConditionalOrder{
		Symbol:       "BTCUSDT",
		Direction:    domain.DirectionSell,
		Trigger:      domain.TriggerTP,
		TriggerPrice: 90,
		Qty:          0.004,
		TriggerBy:    domain.TriggerByMarkPrice,
	})
	require.NoError(t, err)

	// Closing a short buys; a short take-profit fires on falling price.
	assert.Equal(t, "Buy", body["side"])
	assert.Equal(t, "0.004", body["qty"])
	assert.Equal(t, float64(2), body["triggerDirection"])
	assert.NotContains(t, body, "closeOnTrigger")
}

func TestPositionInfo(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v5/position/list", r.URL.Path)
		io.WriteString(w, ok(`{"list":[{"size":"0.006","avgPrice":"65000","liqPrice":"59000","side":"Buy"}]}`))
	}))

	pos, err := c.PositionInfo(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	require.NotNil(t, pos)
	assert.InDelta(t, 0.006, pos.Size, 1e-12)
	assert.InDelta(t, 65000.0, pos.EntryPrice, 1e-9)
	assert.InDelta(t, 59000.0, pos.LiquidationPrice, 1e-9)
}

func TestPositionInfoFlatReturnsNil(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, ok(`{"list":[{"size":"0","avgPrice":"0","liqPrice":"","side":""}]}`))
	}))

	pos, err := c.PositionInfo(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Nil(t, pos)
}

func TestRetCodeErrorCarriesContext(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"retCode":110007,"retMsg":"insufficient balance","result":{}}`)
	}))

	_, err := c.PlaceMarketOrder(context.Background(), "BTCUSDT", domain.DirectionBuy, 1)
	require.Error(t, err)
	var exErr *ports.ExchangeError
	require.ErrorAs(t, err, &exErr)
	assert.ErrorIs(t, err, ports.ErrPlaceOrder)
	assert.Contains(t, exErr.Response, "insufficient balance")
}

func TestTriggerDirection(t *testing.T) {
	assert.Equal(t, 1, triggerDirection(domain.DirectionBuy, domain.TriggerTP))
	assert.Equal(t, 2, triggerDirection(domain.DirectionBuy, domain.TriggerSL))
	assert.Equal(t, 2, triggerDirection(domain.DirectionSell, domain.TriggerTP))
	assert.Equal(t, 1, triggerDirection(domain.DirectionSell, domain.TriggerSL))
}
