// Package jsonsource feeds the core from JSON-lines streams. Each line is
// one message in the wire format the upstream collectors publish: channel
// messages carry the channel id and a nested message object, execution
// reports carry a stream name and a result list. The broker transport itself
// (connection, acknowledgment, reconnects) lives outside this module.
package jsonsource

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"signalTradeBot/internal/ports"
)

// userTradesStream is the only execution stream the fill pipeline consumes.
const userTradesStream = "futures.usertrades"

// maxLineBytes bounds one wire message; channel posts never come close.
const maxLineBytes = 1 << 20

type signalPayload struct {
	ChannelID    json.Number `json:"channelId"`
	ChannelTitle string      `json:"channelTitle"`
	Data         struct {
		Message struct {
			ID      json.Number `json:"id"`
			Message string      `json:"message"`
			ReplyTo struct {
				ReplyToMsgID json.Number `json:"reply_to_msg_id"`
			} `json:"reply_to"`
		} `json:"message"`
	} `json:"data"`
}

type fillPayload struct {
	Channel string `json:"channel"`
	Result  []struct {
		OrderID    json.Number `json:"order_id"`
		Price      json.Number `json:"price"`
		Size       json.Number `json:"size"`
		Fee        json.Number `json:"fee"`
		CreateTime json.Number `json:"create_time"`
	} `json:"result"`
}

// Source implements ports.EventSource over two line-delimited JSON readers.
type Source struct {
	signals io.Reader
	fills   io.Reader
	logger  ports.Logger
}

func New(signals, fills io.Reader, logger ports.Logger) (*Source, error) {
	if signals == nil || fills == nil {
		return nil, fmt.Errorf("%w: both signal and fill streams are required", ports.ErrConfigurationError)
	}
	if logger == nil {
		return nil, fmt.Errorf("%w: logger is required", ports.ErrConfigurationError)
	}
	return &Source{signals: signals, fills: fills, logger: logger}, nil
}

// Signals streams channel messages. Malformed lines and lines without a
// channel id are logged and dropped; the stream keeps going.
func (s *Source) Signals(ctx context.Context) <-chan ports.RawSignalEvent {
	out := make(chan ports.RawSignalEvent)
	go func() {
		defer close(out)
		scan := newScanner(s.signals)
		for scan.Scan() {
			line := scan.Bytes()
			var p signalPayload
			if err := json.Unmarshal(line, &p); err != nil {
				s.logger.Error(ctx, err, "Failed to decode channel message", map[string]interface{}{
					"logChannel": "unhandledMessages",
					"raw":        string(line),
				})
				continue
			}
			if p.ChannelID.String() == "" {
				s.logger.Error(ctx, nil, "Key channelId is missing in channel message", map[string]interface{}{
					"logChannel": "unhandledMessages",
					"raw":        string(line),
				})
				continue
			}
			ev := ports.RawSignalEvent{
				ChannelID:    p.ChannelID.String(),
				ChannelTitle: p.ChannelTitle,
				MessageID:    p.Data.Message.ID.String(),
				ReplyToID:    p.Data.Message.ReplyTo.ReplyToMsgID.String(),
				Text:         p.Data.Message.Message,
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
		if err := scan.Err(); err != nil {
			s.logger.Error(ctx, err, "Signal stream read failed", nil)
		}
	}()
	return out
}

// Fills streams execution reports from the user-trades stream. Reports from
// other streams pass through unhandled, matching the upstream consumer.
func (s *Source) Fills(ctx context.Context) <-chan ports.FillEventPayload {
	out := make(chan ports.FillEventPayload)
	go func() {
		defer close(out)
		scan := newScanner(s.fills)
		for scan.Scan() {
			line := scan.Bytes()
			var p fillPayload
			if err := json.Unmarshal(line, &p); err != nil {
				s.logger.Error(ctx, err, "Failed to decode execution report", map[string]interface{}{
					"logChannel": "websocketUnhandledMessages",
					"raw":        string(line),
				})
				continue
			}
			if p.Channel == "" {
				s.logger.Error(ctx, nil, "Key channel is missing in execution report", map[string]interface{}{
					"logChannel": "websocketUnhandledMessages",
					"raw":        string(line),
				})
				continue
			}
			if p.Channel != userTradesStream || len(p.Result) == 0 {
				continue
			}

			// One report per message; the collector publishes fills one at a time.
			r := p.Result[0]
			price, _ := r.Price.Float64()
			size, _ := r.Size.Float64()
			fee, _ := r.Fee.Float64()
			createTime, _ := r.CreateTime.Int64()
			ev := ports.FillEventPayload{
				OrderID:    r.OrderID.String(),
				Price:      price,
				Size:       size,
				Fee:        fee,
				CreateTime: createTime,
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
		if err := scan.Err(); err != nil {
			s.logger.Error(ctx, err, "Fill stream read failed", nil)
		}
	}()
	return out
}

func newScanner(r io.Reader) *bufio.Scanner {
	scan := bufio.NewScanner(r)
	scan.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	return scan
}
