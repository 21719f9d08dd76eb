package ports

import "context"

// Logger defines a standard interface for logging messages and errors.
// Implementations are injected everywhere; no component logs through a global.
// The original system's per-concern log channels (skipped messages, exchange
// API errors, unhandled fill messages) travel as a "logChannel" field.
type Logger interface {
	// Debug logs a message at Debug level.
	Debug(ctx context.Context, msg string, fields ...map[string]interface{})
	// Info logs a message at Info level.
	Info(ctx context.Context, msg string, fields ...map[string]interface{})
	// Warn logs a message at Warning level.
	Warn(ctx context.Context, msg string, fields ...map[string]interface{})
	// Error logs an error message at Error level.
	Error(ctx context.Context, err error, msg string, fields ...map[string]interface{})
}
