// Package app wires the event streams to the trading core. One Service
// consumes channel messages and execution reports, gates messages on the
// channel registry, routes them through the per-channel parsers and hands
// the results to the executor and the fill reconciler.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"signalTradeBot/internal/domain"
	"signalTradeBot/internal/parsers"
	"signalTradeBot/internal/ports"
)

// signalPlacer is the executor surface the dispatcher needs.
type signalPlacer interface {
	Place(ctx context.Context, intent *domain.TradeIntent) error
}

// fillHandler is the reconciler surface the dispatcher needs.
type fillHandler interface {
	HandleFill(ctx context.Context, fill domain.FillEvent) error
}

// Service orchestrates signal intake, parsing, order placement and fill
// reconciliation.
type Service struct {
	logger   ports.Logger
	source   ports.EventSource
	placer   signalPlacer
	fills    fillHandler
	channels ports.ChannelRepository
	cache    ports.Cache
	registry *parsers.Registry
	workers  int

	// Guards cache rebuilds; lookups go through the shared TTL cache so a
	// restart starts from the database.
	mu sync.Mutex
}

// New creates the application service. The worker count bounds how many
// channel messages are parsed and placed concurrently.
func New(
	logger ports.Logger,
	source ports.EventSource,
	placer signalPlacer,
	fills fillHandler,
	channels ports.ChannelRepository,
	cache ports.Cache,
	registry *parsers.Registry,
	workers int,
) (*Service, error) {
	if logger == nil || source == nil || placer == nil || fills == nil || channels == nil || cache == nil || registry == nil {
		return nil, fmt.Errorf("missing required dependencies for Service")
	}
	if workers <= 0 {
		return nil, fmt.Errorf("worker count must be positive, got %d", workers)
	}
	return &Service{
		logger:   logger,
		source:   source,
		placer:   placer,
		fills:    fills,
		channels: channels,
		cache:    cache,
		registry: registry,
		workers:  workers,
	}, nil
}

// Start runs the dispatch loops until both event streams are exhausted or
// the context is canceled. SIGINT/SIGTERM cancel the context.
func (s *Service) Start(ctx context.Context) error {
	s.logger.Info(ctx, "Starting trading service...")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			s.logger.Info(ctx, "Received shutdown signal", map[string]interface{}{"signal": sig.String()})
			cancel()
		case <-ctx.Done():
		}
	}()

	// Warm the channel cache so the first messages don't each hit the DB.
	if _, err := s.loadChannels(ctx); err != nil {
		s.logger.Error(ctx, err, "Failed to load channel registry")
		return fmt.Errorf("failed to load channel registry: %w", err)
	}

	signalCh := s.source.Signals(ctx)
	fillCh := s.source.Fills(ctx)

	var wg sync.WaitGroup

	// Signal workers. Parsing and placement are independent per message, so
	// a slow exchange round-trip on one signal doesn't stall the rest.
	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ev := range signalCh {
				s.handleSignal(ctx, ev)
			}
		}()
	}

	// Fills are applied by a single worker: reconciliation mutates order
	// rows cumulatively and must see fills in stream order.
	wg.Add(1)
	go func() {
		defer wg.Done()
		for ev := range fillCh {
			s.handleFill(ctx, ev)
		}
	}()

	s.logger.Info(ctx, "Dispatch loops started", map[string]interface{}{"signalWorkers": s.workers})
	wg.Wait()

	if err := ctx.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	s.logger.Info(ctx, "Trading service stopped.")
	return nil
}

// handleSignal gates, parses and places one channel message. Failures never
// stop the dispatch loop; they are logged and the message is dropped.
func (s *Service) handleSignal(ctx context.Context, ev ports.RawSignalEvent) {
	channel, err := s.channelFor(ctx, ev)
	if err != nil {
		s.logger.Error(ctx, err, "Failed to resolve channel for message", map[string]interface{}{
			"channelID": ev.ChannelID,
		})
		return
	}

	// Unmarked channels are collected but never traded.
	if !channel.IsForHandle {
		return
	}

	parser, ok := s.registry.ForChannel(channel.CID)
	if !ok {
		s.logger.Error(ctx, nil, "No parser configured for marked channel", map[string]interface{}{
			"logChannel": "unhandledMessages",
			"channelCID": channel.CID,
			"raw":        ev.Text,
		})
		return
	}

	intent, err := parser.Parse(domain.RawMessage{
		ChannelID:  channel.ID,
		ChannelCID: channel.CID,
		MessageID:  ev.MessageID,
		ReplyToID:  ev.ReplyToID,
		Text:       ev.Text,
	})
	if err != nil {
		switch {
		case errors.Is(err, parsers.ErrSkip):
			s.logger.Debug(ctx, "Message is not a signal", map[string]interface{}{
				"parser": parser.Name(), "channelCID": channel.CID,
			})
		case errors.Is(err, parsers.ErrIncomplete):
			s.logger.Error(ctx, err, "Signal is missing a required field", map[string]interface{}{
				"logChannel": "skippedMessages",
				"parser":     parser.Name(),
				"channelCID": channel.CID,
				"raw":        ev.Text,
			})
		default:
			s.logger.Error(ctx, err, "Parser failed on message", map[string]interface{}{
				"parser": parser.Name(), "channelCID": channel.CID, "raw": ev.Text,
			})
		}
		return
	}

	intent.ChannelID = channel.ID
	if err := s.placer.Place(ctx, intent); err != nil {
		s.logger.Error(ctx, err, "Order placement failed", map[string]interface{}{
			"parser": parser.Name(), "symbol": intent.Symbol, "channelCID": channel.CID,
		})
	}
}

// handleFill applies one execution report.
func (s *Service) handleFill(ctx context.Context, ev ports.FillEventPayload) {
	fill := domain.FillEvent{
		ExchangeOrderID: ev.OrderID,
		Price:           ev.Price,
		Size:            ev.Size,
		Fee:             ev.Fee,
	}
	if ev.CreateTime > 0 {
		fill.CreateTime = time.Unix(ev.CreateTime, 0).UTC()
	}
	if err := s.fills.HandleFill(ctx, fill); err != nil {
		s.logger.Error(ctx, err, "Fill reconciliation failed", map[string]interface{}{
			"exchangeOrderID": ev.OrderID,
		})
	}
}

// channelFor resolves the channel row for a transport-side id, creating the
// row on first sight. The full registry is cached; a create invalidates it.
func (s *Service) channelFor(ctx context.Context, ev ports.RawSignalEvent) (*domain.Channel, error) {
	byCID, err := s.cachedChannels(ctx)
	if err != nil {
		return nil, err
	}
	if ch, ok := byCID[ev.ChannelID]; ok {
		return ch, nil
	}

	ch, err := s.channels.FindOrCreateChannel(ctx, ev.ChannelID, ev.ChannelTitle)
	if err != nil {
		return nil, err
	}
	s.cache.Delete(ports.ChannelsKey())
	return ch, nil
}

func (s *Service) cachedChannels(ctx context.Context) (map[string]*domain.Channel, error) {
	if v, ok := s.cache.Get(ports.ChannelsKey()); ok {
		if byCID, ok := v.(map[string]*domain.Channel); ok {
			return byCID, nil
		}
	}
	return s.loadChannels(ctx)
}

func (s *Service) loadChannels(ctx context.Context) (map[string]*domain.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Another worker may have rebuilt the map while we waited on the lock.
	if v, ok := s.cache.Get(ports.ChannelsKey()); ok {
		if byCID, ok := v.(map[string]*domain.Channel); ok {
			return byCID, nil
		}
	}

	all, err := s.channels.ListChannels(ctx)
	if err != nil {
		return nil, err
	}
	byCID := make(map[string]*domain.Channel, len(all))
	for _, ch := range all {
		byCID[ch.CID] = ch
	}
	s.cache.Set(ports.ChannelsKey(), byCID, ports.ChannelsTTL)
	return byCID, nil
}
