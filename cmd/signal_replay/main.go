// Command signal_replay runs a recorded signal stream through the channel
// parsers without touching an exchange. It prints the intents that would
// have been traded, which makes parser grammar changes reviewable against
// real message history.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"text/tabwriter"

	"signalTradeBot/config"
	"signalTradeBot/internal/adapters/jsonsource"
	"signalTradeBot/internal/adapters/logger"
	"signalTradeBot/internal/adapters/memcache"
	"signalTradeBot/internal/domain"
	"signalTradeBot/internal/parsers"
)

var (
	file        = flag.String("file", "data/signals.jsonl", "recorded signal stream (JSON lines)")
	channelsArg = flag.String("channels", "", "channel bindings as cid:parser,... (default: production bindings)")
)

func main() {
	flag.Parse()

	bindings, err := config.ChannelBindings(*channelsArg)
	if err != nil {
		log.Fatalf("Error parsing channel bindings: %v", err)
	}

	cache := memcache.New()
	registry := parsers.NewRegistry()
	for cid, name := range bindings {
		p, err := parsers.ByName(name, cache)
		if err != nil {
			log.Fatalf("Error building parser %q: %v", name, err)
		}
		registry.Register(cid, p)
	}

	f, err := os.Open(*file)
	if err != nil {
		log.Fatalf("Error opening signal stream: %v", err)
	}
	defer f.Close()

	source, err := jsonsource.New(f, strings.NewReader(""), logger.NewStdLogger(logger.LevelError))
	if err != nil {
		log.Fatalf("Error creating event source: %v", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.AlignRight|tabwriter.Debug)
	fmt.Fprintln(w, "Channel\tParser\tSymbol\tDir\tEntry\tLev\tTPs\tSL\t")

	var total, unbound, skipped, incomplete, parsed int
	for ev := range source.Signals(context.Background()) {
		total++
		p, ok := registry.ForChannel(ev.ChannelID)
		if !ok {
			unbound++
			continue
		}
		intent, err := p.Parse(domain.RawMessage{
			ChannelCID: ev.ChannelID,
			MessageID:  ev.MessageID,
			ReplyToID:  ev.ReplyToID,
			Text:       ev.Text,
		})
		switch {
		case err == nil:
			parsed++
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%d\t%s\t\n",
				ev.ChannelID, p.Name(), intent.Symbol, intent.Direction.Label(),
				formatEntry(intent.Entry), intent.Leverage, len(intent.Targets),
				formatPrice(intent.StopLoss))
		case errors.Is(err, parsers.ErrSkip):
			skipped++
		default:
			incomplete++
			fmt.Fprintf(os.Stderr, "incomplete signal in channel %s: %v\n", ev.ChannelID, err)
		}
	}
	w.Flush()

	fmt.Printf("\n%d messages: %d parsed, %d skipped, %d incomplete, %d from unbound channels\n",
		total, parsed, skipped, incomplete, unbound)
}

func formatEntry(e domain.Entry) string {
	switch e.Kind {
	case domain.EntryMarket:
		return "market"
	case domain.EntryPrice:
		return fmt.Sprintf("%g", e.Price)
	}
	return "-"
}

func formatPrice(p domain.Price) string {
	if v, ok := p.Value(); ok {
		return fmt.Sprintf("%g", v)
	}
	if p.IsDeferred() {
		return "auto"
	}
	return "-"
}
