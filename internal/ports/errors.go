package ports

import (
	"errors"
	"fmt"
)

// Standard application-level errors.
// Adapters wrap underlying infrastructure errors with these standard errors.
var (
	// General Errors
	ErrUnknown            = errors.New("unknown error occurred")
	ErrInvalidRequest     = errors.New("invalid request parameters or format")
	ErrNotFound           = errors.New("resource not found")
	ErrTimeout            = errors.New("operation timed out")
	ErrContextCanceled    = errors.New("operation canceled via context")
	ErrConfigurationError = errors.New("invalid or missing configuration")

	// Exchange Specific Errors
	ErrExchangeUnavailable  = errors.New("exchange API is unavailable")
	ErrConnectionFailed     = errors.New("failed to connect to the exchange")
	ErrRateLimited          = errors.New("API rate limit exceeded")
	ErrAuthenticationFailed = errors.New("exchange authentication failed (check API keys)")
	ErrInvalidAPIKeys       = errors.New("invalid API keys or permissions")
	ErrInsufficientFunds    = errors.New("insufficient funds for operation")
	ErrOrderNotFound        = errors.New("order not found on the exchange")
	ErrSymbolNotListed      = errors.New("symbol is not traded on the exchange")

	// Exchange call failure kinds. Each step of the placement sequence fails
	// with its own kind so diagnostics can tell a dead ticker endpoint from a
	// rejected stop-loss.
	ErrGetPrice      = errors.New("could not read market price")
	ErrGetLimits     = errors.New("could not read symbol limits")
	ErrGetBalance    = errors.New("could not read account balance")
	ErrGetPosition   = errors.New("could not read position info")
	ErrSetLeverage   = errors.New("could not set leverage")
	ErrPlaceOrder    = errors.New("could not place order")
	ErrPlaceStopLoss = errors.New("could not place stop-loss")

	// Database Specific Errors
	ErrDuplicateEntry = errors.New("database record already exists")
	ErrDBConnection   = errors.New("database connection error")
	ErrQueryFailed    = errors.New("database query failed")
	ErrUpdateFailed   = errors.New("database update failed")
)

// ExchangeError carries the full HTTP context of a failed exchange call for
// post-hoc diagnosis. It wraps one of the failure-kind sentinels above.
type ExchangeError struct {
	Kind        error  // one of the Err* sentinels
	Op          string // adapter operation, e.g. "gate.PlaceOrder"
	URL         string
	RequestBody string
	Response    string
	StatusCode  int
	Err         error // underlying transport/decode error, may be nil
}

func (e *ExchangeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v (status=%d): %v", e.Op, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v (status=%d)", e.Op, e.Kind, e.StatusCode)
}

// Unwrap exposes the failure kind for errors.Is checks.
func (e *ExchangeError) Unwrap() error {
	return e.Kind
}

// Fields renders the HTTP context for structured logging.
func (e *ExchangeError) Fields() map[string]interface{} {
	return map[string]interface{}{
		"op":         e.Op,
		"url":        e.URL,
		"request":    e.RequestBody,
		"response":   e.Response,
		"statusCode": e.StatusCode,
	}
}
