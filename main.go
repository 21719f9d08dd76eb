package main

import (
	"context"
	"fmt"
	"log" // Use standard log only for initial fatal errors before logger is set up
	"os"

	"golang.org/x/time/rate"

	"signalTradeBot/config"
	"signalTradeBot/internal/adapters/binanceclient"
	"signalTradeBot/internal/adapters/bybitclient"
	"signalTradeBot/internal/adapters/gateclient"
	"signalTradeBot/internal/adapters/jsonsource"
	"signalTradeBot/internal/adapters/logger"
	"signalTradeBot/internal/adapters/memcache"
	"signalTradeBot/internal/adapters/sqlite"
	"signalTradeBot/internal/app"
	"signalTradeBot/internal/executor"
	"signalTradeBot/internal/parsers"
	"signalTradeBot/internal/ports"
	"signalTradeBot/internal/reconciler"
	"signalTradeBot/internal/risk"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger := logger.NewStdLogger(cfg.LogLevel)
	appLogger.Info(context.Background(), "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String()})

	// 3. Initialize Repository (Database Adapter)
	repo, err := sqlite.NewRepository(sqlite.Config{
		DBPath: cfg.DBPath,
		Logger: appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize database repository")
		log.Fatalf("FATAL: Failed to initialize database repository: %v", err) // Also log to stderr
	}
	defer func() {
		if err := repo.Close(); err != nil {
			appLogger.Error(context.Background(), err, "Error closing database repository")
		}
	}()
	appLogger.Info(context.Background(), "Database repository initialized")

	// 4. Initialize Cache and Exchange Client
	cache := memcache.New()

	exchange, err := newExchangeClient(cfg, appLogger)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize exchange client")
		log.Fatalf("FATAL: Failed to initialize exchange client: %v", err)
	}
	appLogger.Info(context.Background(), "Exchange client initialized", map[string]interface{}{"exchange": exchange.Name()})

	// 5. Initialize Risk Manager and the outbound API rate limiter
	riskMgr := risk.New(risk.Config{
		RiskPercent:      cfg.RiskPercent,
		DefaultSLPercent: cfg.DefaultSLPercent,
		DefaultTPPercent: cfg.DefaultTPPercent,
		TPDeviationLimit: cfg.TPDeviationLimit,
	})
	limiter := rate.NewLimiter(rate.Limit(cfg.ExchangeRatePerSec), 1)

	// 6. Initialize Executor and Reconciler
	exec, err := executor.New(exchange, cache, repo, riskMgr, appLogger, limiter)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize executor")
		log.Fatalf("FATAL: Failed to initialize executor: %v", err)
	}
	rec, err := reconciler.New(repo, repo, repo, repo, appLogger)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize reconciler")
		log.Fatalf("FATAL: Failed to initialize reconciler: %v", err)
	}

	// 7. Build the parser registry from the configured channel bindings
	registry := parsers.NewRegistry()
	for cid, name := range cfg.Channels {
		p, err := parsers.ByName(name, cache)
		if err != nil {
			appLogger.Error(context.Background(), err, "FATAL: Unknown parser in channel bindings", map[string]interface{}{"channelCID": cid})
			log.Fatalf("FATAL: Unknown parser %q for channel %s", name, cid)
		}
		registry.Register(cid, p)
	}
	appLogger.Info(context.Background(), "Parser registry built", map[string]interface{}{"channels": len(cfg.Channels)})

	// 8. Open the event streams
	signalsFile, err := os.Open(cfg.SignalsPath)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to open signal stream")
		log.Fatalf("FATAL: Failed to open signal stream: %v", err)
	}
	defer signalsFile.Close()
	fillsFile, err := os.Open(cfg.FillsPath)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to open fill stream")
		log.Fatalf("FATAL: Failed to open fill stream: %v", err)
	}
	defer fillsFile.Close()

	source, err := jsonsource.New(signalsFile, fillsFile, appLogger)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize event source")
		log.Fatalf("FATAL: Failed to initialize event source: %v", err)
	}

	// 9. Initialize Application Service
	service, err := app.New(appLogger, source, exec, rec, repo, cache, registry, cfg.SignalWorkers)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize trading service")
		log.Fatalf("FATAL: Failed to initialize trading service: %v", err)
	}
	appLogger.Info(context.Background(), "Trading service initialized")

	// 10. Start the Service
	// Use context.Background() as the base context for the application run
	if err := service.Start(context.Background()); err != nil {
		appLogger.Error(context.Background(), err, "Trading service exited with error")
		log.Fatalf("FATAL: Trading service exited with error: %v", err)
	}

	appLogger.Info(context.Background(), "Application finished gracefully.")
}

// newExchangeClient builds the adapter for the configured exchange.
func newExchangeClient(cfg *config.Config, appLogger ports.Logger) (ports.ExchangeClient, error) {
	switch cfg.Exchange {
	case "gate":
		return gateclient.New(gateclient.Config{
			APIKey:    cfg.GateAPIKey,
			APISecret: cfg.GateAPISecret,
			BaseURL:   cfg.GateAPIURL,
			Logger:    appLogger,
		})
	case "bybit":
		return bybitclient.New(bybitclient.Config{
			APIKey:    cfg.BybitAPIKey,
			APISecret: cfg.BybitAPISecret,
			BaseURL:   cfg.BybitAPIURL,
			Logger:    appLogger,
		})
	case "binance":
		return binanceclient.New(binanceclient.Config{
			APIKey:     cfg.BinanceAPIKey,
			SecretKey:  cfg.BinanceAPISecret,
			UseTestnet: cfg.BinanceTestnet,
			Logger:     appLogger,
		})
	}
	return nil, fmt.Errorf("%w: unsupported exchange %q", ports.ErrConfigurationError, cfg.Exchange)
}
