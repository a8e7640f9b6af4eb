package domain

import (
	"context"
	"log/slog"
	"time"
)

// Event types emitted by the market core for external indexing.
const (
	EventMarketCreated      = "market_created"
	EventSharesBought       = "shares_bought"
	EventSharesSold         = "shares_sold"
	EventSharesTransferred  = "shares_transferred"
	EventMarketClosed       = "market_closed"
	EventMarketResolved     = "market_resolved"
	EventMarketPaused       = "market_paused"
	EventMarketUnpaused     = "market_unpaused"
	EventRedeemed           = "redeemed"
	EventMetadataUpdated    = "metadata_updated"
	EventCreationFeeUpdated = "creation_fee_updated"
	EventLiquidityUpdated   = "initial_liquidity_updated"
	EventFeesWithdrawn      = "fees_withdrawn"
	EventOwnershipTransfer  = "ownership_transferred"
)

// Event is a single observable signal. Fields carries the event-specific
// payload with amounts already formatted as decimal strings.
type Event struct {
	Type     string
	MarketID string
	At       time.Time
	Fields   map[string]any
}

// EventSink receives core events. Delivery is best-effort: sinks must not
// fail the emitting operation, which has already committed by the time the
// event is produced.
type EventSink interface {
	Emit(ctx context.Context, evt Event)
}

// LogSink is an EventSink that writes events to a structured logger. It is
// the fallback sink for modes without a signal bus.
type LogSink struct {
	Logger *slog.Logger
}

// Emit logs the event at info level.
func (s LogSink) Emit(ctx context.Context, evt Event) {
	s.Logger.InfoContext(ctx, "event: "+evt.Type,
		slog.String("market_id", evt.MarketID),
		slog.Time("at", evt.At),
		slog.Any("fields", evt.Fields),
	)
}
