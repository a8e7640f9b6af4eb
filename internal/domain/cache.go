package domain

import (
	"context"
	"math/big"
	"time"
)

// PriceCache provides fast access to the latest implied prices of a market.
// Prices are fixed-point probabilities in [0, 1].
type PriceCache interface {
	SetPrices(ctx context.Context, marketID string, yes, no *big.Int, ts time.Time) error
	GetPrices(ctx context.Context, marketID string) (yes, no *big.Int, ts time.Time, err error)
	Invalidate(ctx context.Context, marketID string) error
}

// StreamMessage represents a single entry from a durable stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub and durable streams for market events.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}

// RateLimiter limits request rates per key over a rolling window.
type RateLimiter interface {
	// Allow reports whether a request for key is admitted under limit
	// requests per window, counting the request when admitted.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}
