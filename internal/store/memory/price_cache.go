package memory

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/outcomelab/marketd/internal/domain"
)

type pricePoint struct {
	yes *big.Int
	no  *big.Int
	ts  time.Time
}

// PriceCache implements domain.PriceCache in memory for lite mode,
// where no Redis instance is available.
type PriceCache struct {
	mu     sync.Mutex
	prices map[string]pricePoint
}

// NewPriceCache creates an empty PriceCache.
func NewPriceCache() *PriceCache {
	return &PriceCache{prices: make(map[string]pricePoint)}
}

func (c *PriceCache) SetPrices(ctx context.Context, marketID string, yes, no *big.Int, ts time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.prices[marketID] = pricePoint{
		yes: new(big.Int).Set(yes),
		no:  new(big.Int).Set(no),
		ts:  ts,
	}
	return nil
}

func (c *PriceCache) GetPrices(ctx context.Context, marketID string) (yes, no *big.Int, ts time.Time, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.prices[marketID]
	if !ok {
		return nil, nil, time.Time{}, domain.ErrNotFound
	}
	return new(big.Int).Set(p.yes), new(big.Int).Set(p.no), p.ts, nil
}

func (c *PriceCache) Invalidate(ctx context.Context, marketID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.prices, marketID)
	return nil
}

var _ domain.PriceCache = (*PriceCache)(nil)
