// Package gateclient implements ports.ExchangeClient for Gate USDT-margined
// futures. Gate sizes orders in whole contracts and signs requests with
// HMAC-SHA512 over a canonical payload.
package gateclient

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"signalTradeBot/internal/domain"
	"signalTradeBot/internal/ports"
)

const (
	baseURLProduction = "https://api.gateio.ws"
	apiPrefix         = "/api/v4"

	// Gate rejects orders whose value falls below this many USDT.
	minNotional = 5.0

	exchangeName = "gate"
)

// Client talks to the Gate futures REST API.
type Client struct {
	httpClient *http.Client
	logger     ports.Logger
	baseURL    string
	apiKey     string
	apiSecret  string
	now        func() time.Time
}

// Config holds configuration specific to the Gate client adapter.
type Config struct {
	APIKey    string
	APISecret string
	BaseURL   string // defaults to the production endpoint
	Timeout   time.Duration
	Logger    ports.Logger
}

// New creates a new Gate client adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Gate client")
	}
	if cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, fmt.Errorf("%w: Gate API key and secret are required", ports.ErrConfigurationError)
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

// FormatSymbol converts a signal coin into Gate contract notation (BTC_USDT).
func (c *Client) FormatSymbol(coin string) string {
	return strings.ToUpper(strings.TrimSpace(coin)) + "_USDT"
}

type contractPayload struct {
	Name             string      `json:"name"`
	OrderSizeMin     json.Number `json:"order_size_min"`
	OrderSizeMax     json.Number `json:"order_size_max"`
	LeverageMin      json.Number `json:"leverage_min"`
	LeverageMax      json.Number `json:"leverage_max"`
	QuantoMultiplier string      `json:"quanto_multiplier"`
	OrderPriceRound  string      `json:"order_price_round"`
}

// Contracts retrieves the trading limits for every listed USDT contract.
func (c *Client) Contracts(ctx context.Context) (map[string]ports.SymbolLimits, error) {
	raw, err := c.do(ctx, http.MethodGet, "/futures/usdt/contracts", nil, nil, false, ports.ErrGetLimits, "gate.Contracts")
	if err != nil {
		return nil, err
	}

	var payload []contractPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, c.decodeError(ports.ErrGetLimits, "gate.Contracts", raw, err)
	}
	if len(payload) == 0 {
		return nil, c.decodeError(ports.ErrGetLimits, "gate.Contracts", raw, fmt.Errorf("empty contract list"))
	}

	limits := make(map[string]ports.SymbolLimits, len(payload))
	for _, item := range payload {
		quanto, _ := strconv.ParseFloat(item.QuantoMultiplier, 64)
		priceStep, _ := strconv.ParseFloat(item.OrderPriceRound, 64)
		sizeMin, _ := item.OrderSizeMin.Int64()
		sizeMax, _ := item.OrderSizeMax.Int64()
		levMin, _ := item.LeverageMin.Float64()
		levMax, _ := item.LeverageMax.Float64()
		limits[item.Name] = ports.SymbolLimits{
			// One contract is the smallest tradable amount of base asset.
			QtyStep:        quanto,
			MinQty:         quanto,
			PriceStep:      priceStep,
			OrderSizeMin:   sizeMin,
			OrderSizeMax:   sizeMax,
			LeverageMin:    int(levMin),
			LeverageMax:    int(levMax),
			QuantoMultiple: quanto,
		}
	}
	return limits, nil
}

// TickerPrice retrieves the last trade price for a contract.
func (c *Client) TickerPrice(ctx context.Context, symbol string) (float64, error) {
	query := url.Values{"contract": {symbol}}
	raw, err := c.do(ctx, http.MethodGet, "/futures/usdt/tickers", query, nil, false, ports.ErrGetPrice, "gate.TickerPrice")
	if err != nil {
		return 0, err
	}

	var payload []struct {
		Last string `json:"last"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return 0, c.decodeError(ports.ErrGetPrice, "gate.TickerPrice", raw, err)
	}
	if len(payload) == 0 || payload[0].Last == "" {
		return 0, c.decodeError(ports.ErrGetPrice, "gate.TickerPrice", raw, fmt.Errorf("no ticker for %s", symbol))
	}
	price, err := strconv.ParseFloat(payload[0].Last, 64)
	if err != nil {
		return 0, c.decodeError(ports.ErrGetPrice, "gate.TickerPrice", raw, err)
	}
	return price, nil
}

// AccountBalance retrieves the available USDT futures balance.
func (c *Client) AccountBalance(ctx context.Context) (float64, error) {
	raw, err := c.do(ctx, http.MethodGet, "/futures/usdt/accounts", nil, nil, true, ports.ErrGetBalance, "gate.AccountBalance")
	if err != nil {
		return 0, err
	}

	var payload struct {
		Available string `json:"available"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return 0, c.decodeError(ports.ErrGetBalance, "gate.AccountBalance", raw, err)
	}
	if payload.Available == "" {
		return 0, c.decodeError(ports.ErrGetBalance, "gate.AccountBalance", raw, fmt.Errorf("no available balance in response"))
	}
	balance, err := strconv.ParseFloat(payload.Available, 64)
	if err != nil {
		return 0, c.decodeError(ports.ErrGetBalance, "gate.AccountBalance", raw, err)
	}
	return balance, nil
}

// SetLeverage sets the leverage for a contract. The leverage travels as a
// signed query parameter, not a body.
func (c *Client) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	query := url.Values{"leverage": {strconv.Itoa(leverage)}}
	path := "/futures/usdt/positions/" + symbol + "/leverage"
	_, err := c.do(ctx, http.MethodPost, path, query, nil, true, ports.ErrSetLeverage, "gate.SetLeverage")
	return err
}

// PlaceMarketOrder opens a position at market price. Qty is a whole contract
// count; its sign encodes the direction on the wire.
func (c *Client) PlaceMarketOrder(ctx context.Context, symbol string, direction domain.Direction, qty float64) (*ports.OrderResult, error) {
	body := map[string]interface{}{
		"contract": symbol,
		"size":     signedSize(direction, qty),
		"price":    "0", // 0 means market price
		"tif":      "ioc",
		"text":     clientOrderID(),
	}
	raw, err := c.do(ctx, http.MethodPost, "/futures/usdt/orders", nil, body, true, ports.ErrPlaceOrder, "gate.PlaceMarketOrder")
	if err != nil {
		return nil, err
	}

	var payload struct {
		ID         int64   `json:"id"`
		FillPrice  string  `json:"fill_price"`
		CreateTime float64 `json:"create_time"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, c.decodeError(ports.ErrPlaceOrder, "gate.PlaceMarketOrder", raw, err)
	}
	avgPrice, _ := strconv.ParseFloat(payload.FillPrice, 64)
	return &ports.OrderResult{
		ExchangeOrderID: strconv.FormatInt(payload.ID, 10),
		AvgPrice:        avgPrice,
		CreateTime:      unixFloat(payload.CreateTime),
	}, nil
}

// PlaceConditionalOrder places one reduce-only trigger order. A stop-loss
// closes the whole position; a take-profit leg closes its own size.
func (c *Client) PlaceConditionalOrder(ctx context.Context, ord ports.ConditionalOrder) (*ports.OrderResult, error) {
	rule, orderType := ruleAndOrderType(ord.Direction, ord.Trigger)

	initial := map[string]interface{}{
		"contract":    ord.Symbol,
		"price":       "0", // market execution once triggered
		"reduce_only": true,
	}
	if ord.Trigger == domain.TriggerSL || ord.Qty == 0 {
		// No size: close whatever the position holds when triggered.
		initial["tif"] = "ioc"
		initial["close"] = true
	} else {
		initial["price"] = formatPrice(ord.EntryPrice)
		initial["size"] = signedSize(ord.Direction.Opposite(), ord.Qty)
	}

	body := map[string]interface{}{
		"initial": initial,
		"trigger": map[string]interface{}{
			"strategy_type": 0,
			"price_type":    priceType(ord.TriggerBy),
			"price":         formatPrice(ord.TriggerPrice),
			"rule":          rule,
		},
		"order_type": orderType,
	}

	kind := ports.ErrPlaceOrder
	op := "gate.PlaceTakeProfit"
	if ord.Trigger == domain.TriggerSL {
		kind = ports.ErrPlaceStopLoss
		op = "gate.PlaceStopLoss"
	}
	raw, err := c.do(ctx, http.MethodPost, "/futures/usdt/price_orders", nil, body, true, kind, op)
	if err != nil {
		return nil, err
	}

	var payload struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, c.decodeError(kind, op, raw, err)
	}
	return &ports.OrderResult{ExchangeOrderID: strconv.FormatInt(payload.ID, 10)}, nil
}

// PositionInfo retrieves the open position for a contract, nil when flat.
func (c *Client) PositionInfo(ctx context.Context, symbol string) (*ports.PositionInfo, error) {
	path := "/futures/usdt/positions/" + symbol
	raw, err := c.do(ctx, http.MethodGet, path, nil, nil, true, ports.ErrGetPosition, "gate.PositionInfo")
	if err != nil {
		return nil, err
	}

	var payload struct {
		Size       int64  `json:"size"`
		EntryPrice string `json:"entry_price"`
		LiqPrice   string `json:"liq_price"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, c.decodeError(ports.ErrGetPosition, "gate.PositionInfo", raw, err)
	}
	if payload.Size == 0 {
		return nil, nil
	}
	entry, _ := strconv.ParseFloat(payload.EntryPrice, 64)
	liq, _ := strconv.ParseFloat(payload.LiqPrice, 64)
	return &ports.PositionInfo{
		Symbol:           symbol,
		Size:             float64(payload.Size),
		EntryPrice:       entry,
		LiquidationPrice: liq,
	}, nil
}

// do sends one request, signing it when required, and returns the raw
// response body. Failures come back as *ports.ExchangeError carrying the
// full HTTP context.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body interface{}, signed bool, kind error, op string) ([]byte, error) {
	var bodyBytes []byte
	if body != nil {
		var err error
		bodyBytes, err = json.Marshal(body)
		if err != nil {
			return nil, &ports.ExchangeError{Kind: kind, Op: op, Err: err}
		}
	}

	queryString := canonicalQuery(query)
	fullURL := c.baseURL + apiPrefix + path
	if queryString != "" {
		fullURL += "?" + queryString
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, &ports.ExchangeError{Kind: kind, Op: op, URL: fullURL, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if signed {
		timestamp := strconv.FormatInt(c.now().Unix(), 10)
		sign := signature(method, apiPrefix+path, queryString, bodyBytes, timestamp, c.apiSecret)
		req.Header.Set("KEY", c.apiKey)
		req.Header.Set("Timestamp", timestamp)
		req.Header.Set("SIGN", sign)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &ports.ExchangeError{Kind: kind, Op: op, URL: fullURL, RequestBody: string(bodyBytes), Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ports.ExchangeError{Kind: kind, Op: op, URL: fullURL, RequestBody: string(bodyBytes), StatusCode: resp.StatusCode, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &ports.ExchangeError{
			Kind:        refineKind(kind, resp.StatusCode),
			Op:          op,
			URL:         fullURL,
			RequestBody: string(bodyBytes),
			Response:    string(respBody),
			StatusCode:  resp.StatusCode,
		}
	}
	return respBody, nil
}

func (c *Client) decodeError(kind error, op string, raw []byte, err error) error {
	return &ports.ExchangeError{Kind: kind, Op: op, Response: string(raw), Err: err}
}

// refineKind upgrades generic failure kinds for statuses with an unambiguous
// meaning.
func refineKind(kind error, status int) error {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ports.ErrAuthenticationFailed
	case http.StatusTooManyRequests:
		return ports.ErrRateLimited
	}
	return kind
}

// signature builds the Gate v4 request signature: HMAC-SHA512 over
// "METHOD\npath\nquery\nSHA512hex(body)\ntimestamp".
func signature(method, path, queryString string, body []byte, timestamp, secret string) string {
	bodyHash := sha512.Sum512(body)
	payload := strings.ToUpper(method) + "\n" +
		path + "\n" +
		queryString + "\n" +
		hex.EncodeToString(bodyHash[:]) + "\n" +
		timestamp
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// canonicalQuery renders query parameters sorted by key with RFC 3986
// percent-encoding, matching what the server signs against.
func canonicalQuery(query url.Values) string {
	if len(query) == 0 {
		return ""
	}
	keys := make([]string, 0, len(query))
	for k := range query {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		for _, v := range query[k] {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(escape(k))
			b.WriteByte('=')
			b.WriteString(escape(v))
		}
	}
	return b.String()
}

// escape is RFC 3986 percent-encoding; url.QueryEscape would emit '+' for
// spaces, which the signature check rejects.
func escape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// signedSize encodes direction into the contract count: positive opens or
// extends a long, negative a short.
func signedSize(direction domain.Direction, qty float64) int64 {
	size := int64(math.Round(qty))
	if direction == domain.DirectionSell {
		return -size
	}
	return size
}

// ruleAndOrderType maps a position direction and trigger type onto Gate's
// trigger rule and close-order type. Rule 1 fires when price rises to the
// trigger, rule 2 when it falls; partial take-profits use the plan- variant.
func ruleAndOrderType(direction domain.Direction, trigger domain.TriggerType) (int, string) {
	prefix := "plan-"
	if trigger == domain.TriggerSL {
		prefix = ""
	}
	if direction == domain.DirectionBuy {
		if trigger == domain.TriggerSL {
			return 2, prefix + "close-long-position"
		}
		return 1, prefix + "close-long-position"
	}
	if trigger == domain.TriggerSL {
		return 1, prefix + "close-short-position"
	}
	return 2, prefix + "close-short-position"
}

func priceType(by domain.TriggerBy) int {
	// 0 latest trade price, 1 mark price, 2 index price
	if by == domain.TriggerByLastPrice {
		return 0
	}
	return 1
}

func formatPrice(p float64) string {
	return strconv.FormatFloat(p, 'f', -1, 64)
}

func unixFloat(ts float64) time.Time {
	if ts == 0 {
		return time.Time{}
	}
	sec := int64(ts)
	nsec := int64((ts - float64(sec)) * 1e9)
	return time.Unix(sec, nsec)
}

// clientOrderID builds a Gate-acceptable custom order id ("t-" prefix,
// bounded length).
func clientOrderID() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "t-" + id[:28]
}
