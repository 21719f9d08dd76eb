// Package binanceclient implements ports.ExchangeClient for Binance USDT-M
// futures using the go-binance library.
package binanceclient

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/google/uuid"

	"signalTradeBot/internal/domain"
	"signalTradeBot/internal/ports"
)

const (
	// Base URLs
	baseURLProduction = "https://fapi.binance.com"
	baseURLTestnet    = "https://testnet.binancefuture.com"

	// Binance rejects futures orders below this notional value in USDT.
	minNotional = 5.0

	// Exchange info carries no leverage bounds; these are the platform-wide
	// limits.
	leverageMin = 1
	leverageMax = 125

	exchangeName = "binance"
)

// Client implements the ports.ExchangeClient interface using the go-binance library.
type Client struct {
	futuresClient *futures.Client
	logger        ports.Logger
}

// Config holds configuration specific to the Binance client adapter.
type Config struct {
	APIKey     string
	SecretKey  string
	UseTestnet bool
	Logger     ports.Logger
}

// New creates a new Binance client adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Binance client")
	}
	if cfg.APIKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("%w: Binance API key and secret are required", ports.ErrConfigurationError)
	}

	client := futures.NewClient(cfg.APIKey, cfg.SecretKey)

	// Set BaseURL directly instead of using the global futures.UseTestnet
	if cfg.UseTestnet {
		client.BaseURL = baseURLTestnet
		cfg.Logger.Info(context.Background(), "Binance client configured for Testnet", map[string]interface{}{"baseURL": client.BaseURL})
	} else {
		client.BaseURL = baseURLProduction
	}

	return &Client{
		futuresClient: client,
		logger:        cfg.Logger,
	}, nil
}

func (c *Client) Name() string         { return exchangeName }
func (c *Client) MinNotional() float64 { return minNotional }

// FormatSymbol converts a signal coin into Binance contract notation (BTCUSDT).
func (c *Client) FormatSymbol(coin string) string {
	return strings.ToUpper(strings.TrimSpace(coin)) + "USDT"
}

// handleError translates common Binance API errors into standardized ports errors.
func (c *Client) handleError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}

	fields := map[string]interface{}{"operation": operation, "originalError": err.Error()}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		fields["apiErrorCode"] = apiErr.Code
		fields["apiErrorMessage"] = apiErr.Message

		// Map specific Binance error codes to custom errors
		var mappedErr error
		switch apiErr.Code {
		case -1003: // Too many requests
			mappedErr = ports.ErrRateLimited
		case -1021: // Timestamp for this request is outside of the recvWindow
			mappedErr = ports.ErrTimeout
		case -1022: // Signature for this request is not valid
			mappedErr = ports.ErrAuthenticationFailed
		case -1101, -1102, -1103, -1104, -1105, -1106, -1111, -1115, -1116, -1117, -1120, -1121, -1125, -1127, -1128, -1130: // Parameter/Request format errors
			mappedErr = ports.ErrInvalidRequest
		case -2010: // New order rejected
			mappedErr = ports.ErrPlaceOrder
		case -2013: // Order does not exist
			mappedErr = ports.ErrOrderNotFound
		case -2014: // API-key format invalid
			mappedErr = ports.ErrInvalidAPIKeys
		case -2015: // Invalid API-key, IP, or permissions for action
			mappedErr = ports.ErrInvalidAPIKeys
		case -2019: // Margin is insufficient
			mappedErr = ports.ErrInsufficientFunds
		case -2022: // ReduceOnly Order is rejected
			mappedErr = ports.ErrPlaceOrder
		case -3005: // Insufficient balance
			mappedErr = ports.ErrInsufficientFunds
		case -4003: // Qty not within permissible range
			mappedErr = ports.ErrInvalidRequest
		case -4014: // Price not within permissible range
			mappedErr = ports.ErrInvalidRequest
		case -4015: // Leverage is not valid
			mappedErr = ports.ErrInvalidRequest
		default:
			mappedErr = ports.ErrUnknown
		}
		finalErr := fmt.Errorf("%s failed: %w: %w", operation, mappedErr, err)
		c.logger.Error(ctx, err, fmt.Sprintf("%s failed with API error", operation), fields)
		return finalErr
	}

	// Handle non-API errors (network, context cancellation, etc.)
	var finalErr error
	if errors.Is(err, context.DeadlineExceeded) {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrTimeout, err)
	} else if errors.Is(err, context.Canceled) {
		finalErr = fmt.Errorf("%s operation canceled: %w: %w", operation, ports.ErrContextCanceled, err)
	} else if strings.Contains(err.Error(), "use of closed network connection") ||
		strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "connection reset by peer") {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrConnectionFailed, err)
	} else {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrUnknown, err)
	}

	c.logger.Error(ctx, err, fmt.Sprintf("%s failed", operation), fields)
	return finalErr
}

// Contracts retrieves trading limits for every tradable futures symbol.
func (c *Client) Contracts(ctx context.Context) (map[string]ports.SymbolLimits, error) {
	op := "Contracts"
	info, err := c.futuresClient.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	limits := make(map[string]ports.SymbolLimits, len(info.Symbols))
	for _, sym := range info.Symbols {
		if sym.Status != "TRADING" {
			continue
		}
		l := ports.SymbolLimits{LeverageMin: leverageMin, LeverageMax: leverageMax}
		if lot := sym.LotSizeFilter(); lot != nil {
			l.QtyStep, _ = strconv.ParseFloat(lot.StepSize, 64)
			l.MinQty, _ = strconv.ParseFloat(lot.MinQuantity, 64)
		}
		if pf := sym.PriceFilter(); pf != nil {
			l.PriceStep, _ = strconv.ParseFloat(pf.TickSize, 64)
		}
		limits[sym.Symbol] = l
	}
	if len(limits) == 0 {
		return nil, c.handleError(ctx, fmt.Errorf("no tradable symbols in exchange info"), op)
	}
	return limits, nil
}

// TickerPrice retrieves the last ticker price for a given symbol.
func (c *Client) TickerPrice(ctx context.Context, symbol string) (float64, error) {
	op := "TickerPrice"
	tickers, err := c.futuresClient.NewListPriceChangeStatsService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, c.handleError(ctx, err, op)
	}
	if len(tickers) == 0 {
		err := fmt.Errorf("no ticker data returned for symbol %s", symbol)
		return 0, c.handleError(ctx, err, op)
	}

	price, err := strconv.ParseFloat(tickers[0].LastPrice, 64)
	if err != nil {
		parseErr := fmt.Errorf("could not parse price '%s': %w", tickers[0].LastPrice, err)
		return 0, c.handleError(ctx, parseErr, op)
	}
	return price, nil
}

// AccountBalance retrieves the available USDT futures balance.
func (c *Client) AccountBalance(ctx context.Context) (float64, error) {
	op := "AccountBalance"
	account, err := c.futuresClient.NewGetAccountService().Do(ctx)
	if err != nil {
		return 0, c.handleError(ctx, err, op)
	}

	for _, bal := range account.Assets {
		if bal.Asset != "USDT" {
			continue
		}
		balance, err := strconv.ParseFloat(bal.AvailableBalance, 64)
		if err != nil {
			parseErr := fmt.Errorf("could not parse balance '%s': %w", bal.AvailableBalance, err)
			return 0, c.handleError(ctx, parseErr, op)
		}
		return balance, nil
	}

	err = fmt.Errorf("asset USDT not found in account balance")
	return 0, c.handleError(ctx, err, op)
}

// SetLeverage sets the leverage for a specific symbol.
func (c *Client) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	op := "SetLeverage"
	_, err := c.futuresClient.NewChangeLeverageService().
		Symbol(symbol).
		Leverage(leverage).
		Do(ctx)
	if err != nil {
		return c.handleError(ctx, err, op)
	}
	c.logger.Info(ctx, op+" successful", map[string]interface{}{"symbol": symbol, "leverage": leverage})
	return nil
}

// PlaceMarketOrder opens a position at market price. Qty is in base asset.
func (c *Client) PlaceMarketOrder(ctx context.Context, symbol string, direction domain.Direction, qty float64) (*ports.OrderResult, error) {
	op := "PlaceMarketOrder"
	order, err := c.futuresClient.NewCreateOrderService().
		Symbol(symbol).
		Side(sideType(direction)).
		Type(futures.OrderTypeMarket).
		Quantity(formatFloat(qty)).
		NewClientOrderID(clientOrderID()).
		Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	res := translateOrderResult(order)
	c.logger.Info(ctx, op+" successful", map[string]interface{}{"symbol": symbol, "direction": direction, "qty": qty, "orderID": res.ExchangeOrderID})
	return res, nil
}

// PlaceConditionalOrder places one reduce-only exit leg. A stop-loss (or a
// leg with zero quantity) closes the whole position; a take-profit leg
// closes its own size.
func (c *Client) PlaceConditionalOrder(ctx context.Context, ord ports.ConditionalOrder) (*ports.OrderResult, error) {
	op := "PlaceTakeProfit"
	orderType := futures.OrderTypeTakeProfitMarket
	if ord.Trigger == domain.TriggerSL {
		op = "PlaceStopLoss"
		orderType = futures.OrderTypeStopMarket
	}

	svc := c.futuresClient.NewCreateOrderService().
		Symbol(ord.Symbol).
		Side(sideType(ord.Direction.Opposite())).
		Type(orderType).
		StopPrice(formatFloat(ord.TriggerPrice)).
		WorkingType(workingType(ord.TriggerBy)).
		NewClientOrderID(clientOrderID())
	if ord.Trigger == domain.TriggerSL || ord.Qty == 0 {
		svc = svc.ClosePosition(true)
	} else {
		svc = svc.Quantity(formatFloat(ord.Qty)).ReduceOnly(true)
	}

	order, err := svc.Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	res := translateOrderResult(order)
	c.logger.Info(ctx, op+" successful", map[string]interface{}{"symbol": ord.Symbol, "triggerPrice": ord.TriggerPrice, "qty": ord.Qty, "orderID": res.ExchangeOrderID})
	return res, nil
}

// PositionInfo retrieves the open position for a symbol, nil when flat.
func (c *Client) PositionInfo(ctx context.Context, symbol string) (*ports.PositionInfo, error) {
	op := "PositionInfo"
	positions, err := c.futuresClient.NewGetPositionRiskService().Symbol(symbol).Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	if len(positions) == 0 {
		return nil, nil
	}

	// Assuming only one position per symbol for one-way futures mode
	pos := positions[0]
	size, _ := strconv.ParseFloat(pos.PositionAmt, 64)
	if size == 0 {
		return nil, nil
	}
	entry, _ := strconv.ParseFloat(pos.EntryPrice, 64)
	liq, _ := strconv.ParseFloat(pos.LiquidationPrice, 64)
	return &ports.PositionInfo{
		Symbol:           symbol,
		Size:             size,
		EntryPrice:       entry,
		LiquidationPrice: liq,
	}, nil
}

func translateOrderResult(order *futures.CreateOrderResponse) *ports.OrderResult {
	if order == nil {
		return nil
	}
	avgPrice, _ := strconv.ParseFloat(order.AvgPrice, 64)
	return &ports.OrderResult{
		ExchangeOrderID: strconv.FormatInt(order.OrderID, 10),
		AvgPrice:        avgPrice,
		CreateTime:      time.UnixMilli(order.UpdateTime),
	}
}

func sideType(direction domain.Direction) futures.SideType {
	if direction == domain.DirectionSell {
		return futures.SideTypeSell
	}
	return futures.SideTypeBuy
}

func workingType(by domain.TriggerBy) futures.WorkingType {
	if by == domain.TriggerByLastPrice {
		return futures.WorkingTypeContractPrice
	}
	return futures.WorkingTypeMarkPrice
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func clientOrderID() string {
	return "stb-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:20]
}
