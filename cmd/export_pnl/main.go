// Command export_pnl dumps the bot's realized P&L history and channel totals
// to CSV files and prints a summary table.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"text/tabwriter"

	"signalTradeBot/internal/adapters/logger"
	"signalTradeBot/internal/adapters/sqlite"
	"signalTradeBot/internal/domain"
	"signalTradeBot/internal/utils"
)

var (
	dbPath      = flag.String("db", "./data/trading_bot.db", "path to the bot database")
	pnlOut      = flag.String("pnl-out", "data/pnl_logs.csv", "output CSV for realized P&L records")
	channelsOut = flag.String("channels-out", "data/channels.csv", "output CSV for channel totals")
)

func main() {
	flag.Parse()
	ctx := context.Background()

	repo, err := sqlite.NewRepository(sqlite.Config{
		DBPath: *dbPath,
		Logger: logger.NewStdLogger(logger.LevelWarn),
	})
	if err != nil {
		log.Fatalf("Error opening database: %v", err)
	}
	defer repo.Close()

	logs, err := repo.ListPnlLogs(ctx)
	if err != nil {
		log.Fatalf("Error reading pnl logs: %v", err)
	}
	channels, err := repo.ListChannels(ctx)
	if err != nil {
		log.Fatalf("Error reading channels: %v", err)
	}

	if err := utils.WritePnlLogsToCSV(logs, *pnlOut); err != nil {
		log.Fatalf("Error writing %s: %v", *pnlOut, err)
	}
	if err := utils.WriteChannelsToCSV(channels, *channelsOut); err != nil {
		log.Fatalf("Error writing %s: %v", *channelsOut, err)
	}
	fmt.Printf("Wrote %d pnl records to %s and %d channels to %s\n\n", len(logs), *pnlOut, len(channels), *channelsOut)

	printSummary(logs, channels)
}

// exitStats aggregates realized P&L per exit reason.
type exitStats struct {
	count    int
	wins     int
	totalPnl float64
}

func printSummary(logs []*domain.TradePnlLog, channels []*domain.Channel) {
	byReason := make(map[domain.TriggerType]*exitStats)
	for _, l := range logs {
		s := byReason[l.Reason]
		if s == nil {
			s = &exitStats{}
			byReason[l.Reason] = s
		}
		s.count++
		if l.Pnl > 0 {
			s.wins++
		}
		s.totalPnl += l.Pnl
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.AlignRight|tabwriter.Debug)
	fmt.Fprintln(w, "Reason\tExits\tWinRate\tTotalPnL\t")
	for _, reason := range []domain.TriggerType{domain.TriggerTP, domain.TriggerSL, domain.TriggerManual} {
		s := byReason[reason]
		if s == nil {
			continue
		}
		fmt.Fprintf(w, "%s\t%d\t%.2f\t%.2f\t\n",
			reason.Label(), s.count, float64(s.wins)/float64(s.count)*100, s.totalPnl)
	}
	w.Flush()

	fmt.Println("\n## Channels")
	w = tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.AlignRight|tabwriter.Debug)
	fmt.Fprintln(w, "Channel\tHandled\tTotalPnL\tTodayPnL\t")
	for _, ch := range channels {
		fmt.Fprintf(w, "%s\t%t\t%.2f\t%.2f\t\n", ch.Name, ch.IsForHandle, ch.TotalPnl, ch.TodayPnl)
	}
	w.Flush()
}
