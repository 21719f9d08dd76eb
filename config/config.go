package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"signalTradeBot/internal/adapters/logger" // Import the logger package for LogLevel
)

// Config holds all application configuration.
type Config struct {
	// Exchange selection. One exchange trades at a time; the adapters for
	// the others stay registered but idle.
	Exchange string // "gate", "bybit" or "binance"

	// Gate API
	GateAPIKey    string
	GateAPISecret string
	GateAPIURL    string // empty means production

	// Bybit API
	BybitAPIKey    string
	BybitAPISecret string
	BybitAPIURL    string // empty means production

	// Binance API
	BinanceAPIKey    string
	BinanceAPISecret string
	BinanceTestnet   bool

	// Risk Parameters
	RiskPercent      float64 // share of balance risked per trade (e.g. 0.03 for 3%)
	DefaultSLPercent float64 // derived stop-loss distance from entry (e.g. 0.05)
	DefaultTPPercent float64 // derived take-profit distance from entry (e.g. 0.15)
	TPDeviationLimit float64 // max relative gap between entry and a TP initial price

	// Dispatch
	SignalWorkers      int     // concurrent signal handlers
	ExchangeRatePerSec float64 // outbound exchange API call budget

	// Channels maps transport-side channel ids to parser codenames.
	Channels map[string]string

	// Event streams (JSON lines; typically named pipes fed by the collectors)
	SignalsPath string
	FillsPath   string

	// Database
	DBPath string

	// Logging
	LogLevel logger.LogLevel // Use the LogLevel type from the logger adapter
}

// defaultChannels is the production channel-to-parser binding. Entries can be
// replaced wholesale through the CHANNEL_PARSERS environment variable.
var defaultChannels = map[string]string{
	"-1002513913321": "bkv",
	"-1001732065792": "skr",
	"-1001832087544": "svr",
	"-1001347728413": "wqo",
	"-1003114702207": "et",
	"-1001573488012": "cnt",
	"-1001309612050": "wot",
	"-1003127396427": "ks",
	"-1002529586843": "etg",
	"-1002309206103": "esk",
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error
	var errs []string // Collect validation errors

	// Exchange selection
	cfg.Exchange = strings.ToLower(getEnv("DEFAULT_EXCHANGE", "gate"))

	cfg.GateAPIKey = getEnv("GATE_API_KEY", "")
	cfg.GateAPISecret = getEnv("GATE_API_SECRET", "")
	cfg.GateAPIURL = getEnv("GATE_API_URL", "")

	cfg.BybitAPIKey = getEnv("BYBIT_API_KEY", "")
	cfg.BybitAPISecret = getEnv("BYBIT_API_SECRET", "")
	cfg.BybitAPIURL = getEnv("BYBIT_API_URL", "")

	cfg.BinanceAPIKey = getEnv("BINANCE_API_KEY", "")
	cfg.BinanceAPISecret = getEnv("BINANCE_API_SECRET", "")
	cfg.BinanceTestnet = getEnvAsBool("BINANCE_TESTNET", true) // Default to testnet for safety

	// Only the selected exchange needs credentials.
	switch cfg.Exchange {
	case "gate":
		if cfg.GateAPIKey == "" || cfg.GateAPISecret == "" {
			errs = append(errs, "GATE_API_KEY and GATE_API_SECRET must be set for exchange 'gate'")
		}
	case "bybit":
		if cfg.BybitAPIKey == "" || cfg.BybitAPISecret == "" {
			errs = append(errs, "BYBIT_API_KEY and BYBIT_API_SECRET must be set for exchange 'bybit'")
		}
	case "binance":
		if cfg.BinanceAPIKey == "" || cfg.BinanceAPISecret == "" {
			errs = append(errs, "BINANCE_API_KEY and BINANCE_API_SECRET must be set for exchange 'binance'")
		}
	default:
		errs = append(errs, fmt.Sprintf("unsupported DEFAULT_EXCHANGE %q (want gate, bybit or binance)", cfg.Exchange))
	}

	// Risk Parameters
	cfg.RiskPercent, err = getEnvAsFloatRequired("RISK_PERCENT", 0.03)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid RISK_PERCENT: %v", err))
	} else if cfg.RiskPercent <= 0 || cfg.RiskPercent >= 1.0 {
		errs = append(errs, "RISK_PERCENT must be between 0.0 and 1.0 (exclusive)")
	}

	cfg.DefaultSLPercent, err = getEnvAsFloatRequired("DEFAULT_SL_PERCENT", 0.05)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid DEFAULT_SL_PERCENT: %v", err))
	} else if cfg.DefaultSLPercent <= 0 || cfg.DefaultSLPercent >= 1.0 {
		errs = append(errs, "DEFAULT_SL_PERCENT must be between 0.0 and 1.0 (exclusive)")
	}

	cfg.DefaultTPPercent, err = getEnvAsFloatRequired("DEFAULT_TP_PERCENT", 0.15)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid DEFAULT_TP_PERCENT: %v", err))
	} else if cfg.DefaultTPPercent <= 0 {
		errs = append(errs, "DEFAULT_TP_PERCENT must be positive")
	}

	cfg.TPDeviationLimit, err = getEnvAsFloatRequired("TP_DEVIATION_LIMIT", 0.02)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid TP_DEVIATION_LIMIT: %v", err))
	} else if cfg.TPDeviationLimit <= 0 || cfg.TPDeviationLimit >= 1.0 {
		errs = append(errs, "TP_DEVIATION_LIMIT must be between 0.0 and 1.0 (exclusive)")
	}

	// Dispatch
	cfg.SignalWorkers, err = getEnvAsIntRequired("SIGNAL_WORKERS", 4)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid SIGNAL_WORKERS: %v", err))
	} else if cfg.SignalWorkers <= 0 {
		errs = append(errs, "SIGNAL_WORKERS must be positive")
	}

	cfg.ExchangeRatePerSec, err = getEnvAsFloatRequired("EXCHANGE_RATE_PER_SEC", 5.0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid EXCHANGE_RATE_PER_SEC: %v", err))
	} else if cfg.ExchangeRatePerSec <= 0 {
		errs = append(errs, "EXCHANGE_RATE_PER_SEC must be positive")
	}

	cfg.Channels, err = parseChannelMap(getEnv("CHANNEL_PARSERS", ""))
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid CHANNEL_PARSERS: %v", err))
	}

	// Event streams
	cfg.SignalsPath = getEnv("SIGNALS_PATH", "./data/signals.jsonl")
	if cfg.SignalsPath == "" {
		errs = append(errs, "SIGNALS_PATH must be set")
	}
	cfg.FillsPath = getEnv("FILLS_PATH", "./data/fills.jsonl")
	if cfg.FillsPath == "" {
		errs = append(errs, "FILLS_PATH must be set")
	}

	// Database
	cfg.DBPath = getEnv("DB_PATH", "./data/trading_bot.db")
	if cfg.DBPath == "" {
		errs = append(errs, "DB_PATH must be set")
	}

	// Logging
	logLevelStr := getEnv("LOG_LEVEL", "INFO")
	cfg.LogLevel = logger.ParseLevel(logLevelStr) // Use the parser from the logger package

	// Combine validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

// ChannelBindings parses "cid:parser,cid:parser" pairs the way the
// CHANNEL_PARSERS variable is parsed. An empty value returns the built-in
// production bindings. Exposed for the offline tooling.
func ChannelBindings(raw string) (map[string]string, error) {
	return parseChannelMap(raw)
}

// parseChannelMap parses "cid:parser,cid:parser" pairs. An empty value keeps
// the built-in production bindings.
func parseChannelMap(raw string) (map[string]string, error) {
	if strings.TrimSpace(raw) == "" {
		channels := make(map[string]string, len(defaultChannels))
		for cid, name := range defaultChannels {
			channels[cid] = name
		}
		return channels, nil
	}

	channels := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		parts := strings.SplitN(pair, ":", 2)
		if len(parts) != 2 || strings.TrimSpace(parts[0]) == "" || strings.TrimSpace(parts[1]) == "" {
			return nil, fmt.Errorf("malformed pair %q (want channelID:parser)", pair)
		}
		channels[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
	}
	if len(channels) == 0 {
		return nil, fmt.Errorf("no channel bindings parsed from %q", raw)
	}
	return channels, nil
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsIntRequired(key string, defaultValue int) (int, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		// Use default if env var is not set at all
		return defaultValue, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		// Return error if env var is set but invalid
		return 0, fmt.Errorf("invalid integer value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsFloatRequired(key string, defaultValue float64) (float64, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
