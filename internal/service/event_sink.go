package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/outcomelab/marketd/internal/domain"
)

// Channel and stream names for core event fan-out.
const (
	EventChannel = "marketd:events"
	EventStream  = "marketd:events:log"
)

// busEvent is the wire form of a core event on the signal bus.
type busEvent struct {
	Type     string         `json:"type"`
	MarketID string         `json:"market_id,omitempty"`
	At       time.Time      `json:"at"`
	Fields   map[string]any `json:"fields,omitempty"`
}

// BusSink publishes core events to the signal bus: a pub/sub channel for
// live subscribers and a stream for replayable history. Delivery is
// best-effort per the EventSink contract; failures are logged and dropped.
type BusSink struct {
	bus    domain.SignalBus
	logger *slog.Logger
}

// NewBusSink creates a BusSink.
func NewBusSink(bus domain.SignalBus, logger *slog.Logger) *BusSink {
	return &BusSink{bus: bus, logger: logger}
}

// Emit serializes the event and fans it out to the channel and the stream.
func (s *BusSink) Emit(ctx context.Context, evt domain.Event) {
	payload, err := json.Marshal(busEvent{
		Type:     evt.Type,
		MarketID: evt.MarketID,
		At:       evt.At,
		Fields:   evt.Fields,
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "event_sink: marshal failed",
			slog.String("type", evt.Type),
			slog.String("error", err.Error()),
		)
		return
	}

	if err := s.bus.Publish(ctx, EventChannel, payload); err != nil {
		s.logger.WarnContext(ctx, "event_sink: publish failed",
			slog.String("type", evt.Type),
			slog.String("error", err.Error()),
		)
	}
	if err := s.bus.StreamAppend(ctx, EventStream, payload); err != nil {
		s.logger.WarnContext(ctx, "event_sink: stream append failed",
			slog.String("type", evt.Type),
			slog.String("error", err.Error()),
		)
	}
}

var _ domain.EventSink = (*BusSink)(nil)
