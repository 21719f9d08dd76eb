// Package bybitclient implements ports.ExchangeClient for Bybit linear
// perpetuals over the v5 REST API. Bybit sizes orders in base asset and signs
// requests with HMAC-SHA256 over timestamp+key+recvWindow+payload.
package bybitclient

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"signalTradeBot/internal/domain"
	"signalTradeBot/internal/ports"
)

const (
	baseURLProduction = "https://api.bybit.com"

	category   = "linear"
	recvWindow = "5000"

	// Bybit rejects linear orders below this notional value in USDT.
	minNotional = 5.0

	exchangeName = "bybit"
)

// Client talks to the Bybit v5 REST API.
type Client struct {
	httpClient *http.Client
	logger     ports.Logger
	baseURL    string
	apiKey     string
	apiSecret  string
	now        func() time.Time
}

// Config holds configuration specific to the Bybit client adapter.
type Config struct {
	APIKey    string
	APISecret string
	BaseURL   string // defaults to the production endpoint
	Timeout   time.Duration
	Logger    ports.Logger
}

// New creates a new Bybit client adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Bybit client")
	}
	if cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, fmt.Errorf("%w: Bybit API key and secret are required", ports.ErrConfigurationError)
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = baseURLProduction
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		logger:     cfg.Logger,
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     cfg.APIKey,
		apiSecret:  cfg.APISecret,
		now:        time.Now,
	}, nil
}

func (c *Client) Name() string         { return exchangeName }
func (c *Client) MinNotional() float64 { return minNotional }

// FormatSymbol converts a signal coin into Bybit contract notation (BTCUSDT).
func (c *Client) FormatSymbol(coin string) string {
	return strings.ToUpper(strings.TrimSpace(coin)) + "USDT"
}

// envelope is the uniform v5 response wrapper.
type envelope struct {
	RetCode int             `json:"retCode"`
	RetMsg  string          `json:"retMsg"`
	Result  json.RawMessage `json:"result"`
}

// Contracts retrieves the trading limits for every linear perpetual.
func (c *Client) Contracts(ctx context.Context) (map[string]ports.SymbolLimits, error) {
	query := url.Values{"category": {category}, "limit": {"1000"}}
	result, err := c.get(ctx, "/v5/market/instruments-info", query, false, ports.ErrGetLimits, "bybit.Contracts")
	if err != nil {
		return nil, err
	}

	var payload struct {
		List []struct {
			Symbol        string `json:"symbol"`
			LotSizeFilter struct {
				QtyStep     string `json:"qtyStep"`
				MinOrderQty string `json:"minOrderQty"`
			} `json:"lotSizeFilter"`
			PriceFilter struct {
				TickSize string `json:"tickSize"`
			} `json:"priceFilter"`
			LeverageFilter struct {
				MinLeverage string `json:"minLeverage"`
				MaxLeverage string `json:"maxLeverage"`
			} `json:"leverageFilter"`
		} `json:"list"`
	}
	if err := json.Unmarshal(result, &payload); err != nil {
		return nil, c.decodeError(ports.ErrGetLimits, "bybit.Contracts", result, err)
	}
	if len(payload.List) == 0 {
		return nil, c.decodeError(ports.ErrGetLimits, "bybit.Contracts", result, fmt.Errorf("empty instrument list"))
	}

	limits := make(map[string]ports.SymbolLimits, len(payload.List))
	for _, item := range payload.List {
		qtyStep, _ := strconv.ParseFloat(item.LotSizeFilter.QtyStep, 64)
		minQty, _ := strconv.ParseFloat(item.LotSizeFilter.MinOrderQty, 64)
		tickSize, _ := strconv.ParseFloat(item.PriceFilter.TickSize, 64)
		levMin, _ := strconv.ParseFloat(item.LeverageFilter.MinLeverage, 64)
		levMax, _ := strconv.ParseFloat(item.LeverageFilter.MaxLeverage, 64)
		limits[item.Symbol] = ports.SymbolLimits{
			QtyStep:     qtyStep,
			MinQty:      minQty,
			PriceStep:   tickSize,
			LeverageMin: int(levMin),
			LeverageMax: int(levMax),
		}
	}
	return limits, nil
}

// TickerPrice retrieves the last trade price for a symbol.
func (c *Client) TickerPrice(ctx context.Context, symbol string) (float64, error) {
	query := url.Values{"category": {category}, "symbol": {symbol}}
	result, err := c.get(ctx, "/v5/market/tickers", query, false, ports.ErrGetPrice, "bybit.TickerPrice")
	if err != nil {
		return 0, err
	}

	var payload struct {
		List []struct {
			LastPrice string `json:"lastPrice"`
		} `json:"list"`
	}
	if err := json.Unmarshal(result, &payload); err != nil {
		return 0, c.decodeError(ports.ErrGetPrice, "bybit.TickerPrice", result, err)
	}
	if len(payload.List) == 0 || payload.List[0].LastPrice == "" {
		return 0, c.decodeError(ports.ErrGetPrice, "bybit.TickerPrice", result, fmt.Errorf("no ticker for %s", symbol))
	}
	price, err := strconv.ParseFloat(payload.List[0].LastPrice, 64)
	if err != nil {
		return 0, c.decodeError(ports.ErrGetPrice, "bybit.TickerPrice", result, err)
	}
	return price, nil
}

// AccountBalance retrieves the available balance of the unified account.
func (c *Client) AccountBalance(ctx context.Context) (float64, error) {
	query := url.Values{"accountType": {"UNIFIED"}, "coin": {"USDT"}}
	result, err := c.get(ctx, "/v5/account/wallet-balance", query, true, ports.ErrGetBalance, "bybit.AccountBalance")
	if err != nil {
		return 0, err
	}

	var payload struct {
		List []struct {
			Coin []struct {
				Coin                string `json:"coin"`
				AvailableToWithdraw string `json:"availableToWithdraw"`
				WalletBalance       string `json:"walletBalance"`
			} `json:"coin"`
		} `json:"list"`
	}
	if err := json.Unmarshal(result, &payload); err != nil {
		return 0, c.decodeError(ports.ErrGetBalance, "bybit.AccountBalance", result, err)
	}
	for _, acct := range payload.List {
		for _, coin := range acct.Coin {
			if coin.Coin != "USDT" {
				continue
			}
			raw := coin.AvailableToWithdraw
			if raw == "" {
				raw = coin.WalletBalance
			}
			balance, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return 0, c.decodeError(ports.ErrGetBalance, "bybit.AccountBalance", result, err)
			}
			return balance, nil
		}
	}
	return 0, c.decodeError(ports.ErrGetBalance, "bybit.AccountBalance", result, fmt.Errorf("no USDT balance in response"))
}

// SetLeverage sets buy and sell leverage for a symbol.
func (c *Client) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	body := map[string]interface{}{
		"category":     category,
		"symbol":       symbol,
		"buyLeverage":  strconv.Itoa(leverage),
		"sellLeverage": strconv.Itoa(leverage),
	}
	_, err := c.post(ctx, "/v5/position/set-leverage", body, ports.ErrSetLeverage, "bybit.SetLeverage")
	if err != nil {
		// Bybit answers 110043 when the leverage already matches; that is
		// not a failure for this sequence.
		var exErr *ports.ExchangeError
		if errors.As(err, &exErr) && strings.Contains(exErr.Response, "110043") {
			return nil
		}
		return err
	}
	return nil
}

// PlaceMarketOrder opens a position at market price. Qty is in base asset.
func (c *Client) PlaceMarketOrder(ctx context.Context, symbol string, direction domain.Direction, qty float64) (*ports.OrderResult, error) {
	body := map[string]interface{}{
		"category":    category,
		"symbol":      symbol,
		"side":        side(direction),
		"orderType":   "Market",
		"qty":         formatFloat(qty),
		"orderLinkId": uuid.NewString(),
	}
	result, err := c.post(ctx, "/v5/order/create", body, ports.ErrPlaceOrder, "bybit.PlaceMarketOrder")
	if err != nil {
		return nil, err
	}

	var payload struct {
		OrderID string `json:"orderId"`
	}
	if err := json.Unmarshal(result, &payload); err != nil {
		return nil, c.decodeError(ports.ErrPlaceOrder, "bybit.PlaceMarketOrder", result, err)
	}
	return &ports.OrderResult{ExchangeOrderID: payload.OrderID, CreateTime: c.now()}, nil
}

// PlaceConditionalOrder places one reduce-only trigger order.
func (c *Client) PlaceConditionalOrder(ctx context.Context, ord ports.ConditionalOrder) (*ports.OrderResult, error) {
	body := map[string]interface{}{
		"category":         category,
		"symbol":           ord.Symbol,
		"side":             side(ord.Direction.Opposite()),
		"orderType":        "Market",
		"triggerPrice":     formatFloat(ord.TriggerPrice),
		"triggerBy":        triggerBy(ord.TriggerBy),
		"triggerDirection": triggerDirection(ord.Direction, ord.Trigger),
		"reduceOnly":       true,
		"orderLinkId":      uuid.NewString(),
	}
	if ord.Qty > 0 {
		body["qty"] = formatFloat(ord.Qty)
	} else {
		// qty 0 closes whatever remains of the position when triggered.
		body["qty"] = "0"
		body["closeOnTrigger"] = true
	}

	kind := ports.ErrPlaceOrder
	op := "bybit.PlaceTakeProfit"
	if ord.Trigger == domain.TriggerSL {
		kind = ports.ErrPlaceStopLoss
		op = "bybit.PlaceStopLoss"
	}
	result, err := c.post(ctx, "/v5/order/create", body, kind, op)
	if err != nil {
		return nil, err
	}

	var payload struct {
		OrderID string `json:"orderId"`
	}
	if err := json.Unmarshal(result, &payload); err != nil {
		return nil, c.decodeError(kind, op, result, err)
	}
	return &ports.OrderResult{ExchangeOrderID: payload.OrderID}, nil
}

// PositionInfo retrieves the open position for a symbol, nil when flat.
func (c *Client) PositionInfo(ctx context.Context, symbol string) (*ports.PositionInfo, error) {
	query := url.Values{"category": {category}, "symbol": {symbol}}
	result, err := c.get(ctx, "/v5/position/list", query, true, ports.ErrGetPosition, "bybit.PositionInfo")
	if err != nil {
		return nil, err
	}

	var payload struct {
		List []struct {
			Size     string `json:"size"`
			AvgPrice string `json:"avgPrice"`
			LiqPrice string `json:"liqPrice"`
			Side     string `json:"side"`
		} `json:"list"`
	}
	if err := json.Unmarshal(result, &payload); err != nil {
		return nil, c.decodeError(ports.ErrGetPosition, "bybit.PositionInfo", result, err)
	}
	if len(payload.List) == 0 {
		return nil, nil
	}
	pos := payload.List[0]
	size, _ := strconv.ParseFloat(pos.Size, 64)
	if size == 0 {
		return nil, nil
	}
	if pos.Side == "Sell" {
		size = -size
	}
	entry, _ := strconv.ParseFloat(pos.AvgPrice, 64)
	liq, _ := strconv.ParseFloat(pos.LiqPrice, 64)
	return &ports.PositionInfo{
		Symbol:           symbol,
		Size:             size,
		EntryPrice:       entry,
		LiquidationPrice: liq,
	}, nil
}

// get sends a GET request, signing the query string when required.
func (c *Client) get(ctx context.Context, path string, query url.Values, signed bool, kind error, op string) (json.RawMessage, error) {
	queryString := query.Encode()
	fullURL := c.baseURL + path
	if queryString != "" {
		fullURL += "?" + queryString
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, &ports.ExchangeError{Kind: kind, Op: op, URL: fullURL, Err: err}
	}
	if signed {
		c.sign(req, queryString)
	}
	return c.send(req, kind, op, "")
}

// post sends a signed POST request with a JSON body.
func (c *Client) post(ctx context.Context, path string, body map[string]interface{}, kind error, op string) (json.RawMessage, error) {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, &ports.ExchangeError{Kind: kind, Op: op, Err: err}
	}

	fullURL := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fullURL, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, &ports.ExchangeError{Kind: kind, Op: op, URL: fullURL, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	c.sign(req, string(bodyBytes))
	return c.send(req, kind, op, string(bodyBytes))
}

// sign attaches the v5 authentication headers. The signed payload is the
// query string for GET and the raw body for POST.
func (c *Client) sign(req *http.Request, payload string) {
	timestamp := strconv.FormatInt(c.now().UnixMilli(), 10)
	mac := hmac.New(sha256.New, []byte(c.apiSecret))
	mac.Write([]byte(timestamp + c.apiKey + recvWindow + payload))
	req.Header.Set("X-BAPI-API-KEY", c.apiKey)
	req.Header.Set("X-BAPI-TIMESTAMP", timestamp)
	req.Header.Set("X-BAPI-RECV-WINDOW", recvWindow)
	req.Header.Set("X-BAPI-SIGN", hex.EncodeToString(mac.Sum(nil)))
}

// send executes the request and unwraps the v5 envelope.
func (c *Client) send(req *http.Request, kind error, op, requestBody string) (json.RawMessage, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &ports.ExchangeError{Kind: kind, Op: op, URL: req.URL.String(), RequestBody: requestBody, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ports.ExchangeError{Kind: kind, Op: op, URL: req.URL.String(), RequestBody: requestBody, StatusCode: resp.StatusCode, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &ports.ExchangeError{
			Kind:        refineKind(kind, resp.StatusCode),
			Op:          op,
			URL:         req.URL.String(),
			RequestBody: requestBody,
			Response:    string(respBody),
			StatusCode:  resp.StatusCode,
		}
	}

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return nil, &ports.ExchangeError{Kind: kind, Op: op, URL: req.URL.String(), RequestBody: requestBody, Response: string(respBody), StatusCode: resp.StatusCode, Err: err}
	}
	if env.RetCode != 0 {
		return nil, &ports.ExchangeError{
			Kind:        kind,
			Op:          op,
			URL:         req.URL.String(),
			RequestBody: requestBody,
			Response:    string(respBody),
			StatusCode:  resp.StatusCode,
		}
	}
	return env.Result, nil
}

func (c *Client) decodeError(kind error, op string, raw []byte, err error) error {
	return &ports.ExchangeError{Kind: kind, Op: op, Response: string(raw), Err: err}
}

func refineKind(kind error, status int) error {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ports.ErrAuthenticationFailed
	case http.StatusTooManyRequests:
		return ports.ErrRateLimited
	}
	return kind
}

func side(direction domain.Direction) string {
	if direction == domain.DirectionSell {
		return "Sell"
	}
	return "Buy"
}

func triggerBy(by domain.TriggerBy) string {
	if by == domain.TriggerByLastPrice {
		return "LastPrice"
	}
	return "MarkPrice"
}

// triggerDirection tells Bybit which way the price must move to fire the
// trigger: 1 rising, 2 falling.
func triggerDirection(direction domain.Direction, trigger domain.TriggerType) int {
	rising := (direction == domain.DirectionBuy) == (trigger == domain.TriggerTP)
	if rising {
		return 1
	}
	return 2
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
