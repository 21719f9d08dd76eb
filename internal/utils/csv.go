package utils

import (
	"encoding/csv"
	"os"
	"strconv"
	"time"

	"signalTradeBot/internal/domain"
)

// WritePnlLogsToCSV dumps realized P&L records for offline analysis.
func WritePnlLogsToCSV(logs []*domain.TradePnlLog, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	// Write header
	writer.Write([]string{"id", "order_id", "pnl", "pnl_percent", "reason", "created_at"})

	for _, l := range logs {
		writer.Write([]string{
			strconv.FormatInt(l.ID, 10),
			strconv.FormatInt(l.OrderID, 10),
			strconv.FormatFloat(l.Pnl, 'f', -1, 64),
			strconv.FormatFloat(l.PnlPercent, 'f', -1, 64),
			l.Reason.Label(),
			l.CreatedAt.Format(time.RFC3339),
		})
	}
	return writer.Error()
}

// WriteChannelsToCSV dumps the channel registry with its running totals.
func WriteChannelsToCSV(channels []*domain.Channel, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	writer.Write([]string{"id", "cid", "name", "is_for_handle", "total_pnl", "today_pnl"})

	for _, ch := range channels {
		writer.Write([]string{
			strconv.FormatInt(ch.ID, 10),
			ch.CID,
			ch.Name,
			strconv.FormatBool(ch.IsForHandle),
			strconv.FormatFloat(ch.TotalPnl, 'f', -1, 64),
			strconv.FormatFloat(ch.TodayPnl, 'f', -1, 64),
		})
	}
	return writer.Error()
}
