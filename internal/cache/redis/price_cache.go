package redis

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/outcomelab/marketd/internal/domain"
)

// PriceCache implements domain.PriceCache using Redis hashes. Each market's
// implied prices are stored at key "price:{marketID}" with fields "yes",
// "no" (fixed-point integers as decimal strings) and "ts" (Unix nanoseconds).
type PriceCache struct {
	rdb *redis.Client
}

// NewPriceCache creates a PriceCache backed by the given Client.
func NewPriceCache(c *Client) *PriceCache {
	return &PriceCache{rdb: c.Underlying()}
}

func priceKey(marketID string) string {
	return "price:" + marketID
}

// SetPrices stores the latest implied prices for a market.
func (pc *PriceCache) SetPrices(ctx context.Context, marketID string, yes, no *big.Int, ts time.Time) error {
	fields := map[string]interface{}{
		"yes": yes.String(),
		"no":  no.String(),
		"ts":  strconv.FormatInt(ts.UnixNano(), 10),
	}
	if err := pc.rdb.HSet(ctx, priceKey(marketID), fields).Err(); err != nil {
		return fmt.Errorf("redis: set prices %s: %w", marketID, err)
	}
	return nil
}

// GetPrices retrieves the latest implied prices for a market. It returns
// domain.ErrNotFound when the key does not exist.
func (pc *PriceCache) GetPrices(ctx context.Context, marketID string) (yes, no *big.Int, ts time.Time, err error) {
	vals, err := pc.rdb.HGetAll(ctx, priceKey(marketID)).Result()
	if err != nil {
		return nil, nil, time.Time{}, fmt.Errorf("redis: get prices %s: %w", marketID, err)
	}
	if len(vals) == 0 {
		return nil, nil, time.Time{}, domain.ErrNotFound
	}

	yes, ok := new(big.Int).SetString(vals["yes"], 10)
	if !ok {
		return nil, nil, time.Time{}, fmt.Errorf("redis: parse yes price %s: %q", marketID, vals["yes"])
	}
	no, ok = new(big.Int).SetString(vals["no"], 10)
	if !ok {
		return nil, nil, time.Time{}, fmt.Errorf("redis: parse no price %s: %q", marketID, vals["no"])
	}
	tsNano, err := strconv.ParseInt(vals["ts"], 10, 64)
	if err != nil {
		return nil, nil, time.Time{}, fmt.Errorf("redis: parse ts %s: %w", marketID, err)
	}

	return yes, no, time.Unix(0, tsNano), nil
}

// Invalidate drops the cached prices for a market.
func (pc *PriceCache) Invalidate(ctx context.Context, marketID string) error {
	if err := pc.rdb.Del(ctx, priceKey(marketID)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate prices %s: %w", marketID, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.PriceCache = (*PriceCache)(nil)
