// Package service composes the market core with persistence, caching, and
// event delivery into the operations the transport layer exposes.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/outcomelab/marketd/internal/domain"
	"github.com/outcomelab/marketd/internal/registry"
)

// MarketService handles market creation, trading, lifecycle, and settlement.
// It is the single write path into the market aggregates: every fill is
// persisted to the trade store and every price change refreshes the cache.
type MarketService struct {
	registry *registry.Registry
	trades   domain.TradeStore
	prices   domain.PriceCache
	logger   *slog.Logger
}

// NewMarketService creates a MarketService with all required dependencies.
func NewMarketService(
	reg *registry.Registry,
	trades domain.TradeStore,
	prices domain.PriceCache,
	logger *slog.Logger,
) *MarketService {
	return &MarketService{
		registry: reg,
		trades:   trades,
		prices:   prices,
		logger:   logger,
	}
}

// CreateMarket creates, funds, and seeds a new market and returns its
// initial state.
func (s *MarketService) CreateMarket(ctx context.Context, p registry.CreateParams) (domain.MarketInfo, error) {
	m, entry, err := s.registry.CreateMarket(ctx, p)
	if err != nil {
		return domain.MarketInfo{}, err
	}

	info, err := m.Info(ctx)
	if err != nil {
		return domain.MarketInfo{}, fmt.Errorf("market_service: created market info: %w", err)
	}
	info.MetadataURI = entry.MetadataURI

	s.refreshPrices(ctx, m.ID())
	return info, nil
}

// GetMarket returns the full state of one market, including its registered
// metadata URI.
func (s *MarketService) GetMarket(ctx context.Context, id string) (domain.MarketInfo, error) {
	m, err := s.registry.Market(id)
	if err != nil {
		return domain.MarketInfo{}, err
	}
	info, err := m.Info(ctx)
	if err != nil {
		return domain.MarketInfo{}, fmt.Errorf("market_service: market info %s: %w", id, err)
	}

	entry, err := s.registry.Entry(ctx, id)
	if err != nil {
		return domain.MarketInfo{}, err
	}
	info.MetadataURI = entry.MetadataURI
	return info, nil
}

// ListMarkets returns registry entries with pagination plus the total count.
func (s *MarketService) ListMarkets(ctx context.Context, opts domain.ListOpts) ([]domain.RegistryEntry, int64, error) {
	return s.registry.List(ctx, opts)
}

// Prices returns the current marginal prices for a market, checking the
// cache first and falling back to the live aggregate on a miss.
func (s *MarketService) Prices(ctx context.Context, id string) (yes, no *big.Int, err error) {
	yes, no, _, cacheErr := s.prices.GetPrices(ctx, id)
	if cacheErr == nil {
		return yes, no, nil
	}

	// Cache miss or error -- fall through to the aggregate.
	m, err := s.registry.Market(id)
	if err != nil {
		return nil, nil, err
	}
	yes, no, err = m.Prices()
	if err != nil {
		return nil, nil, fmt.Errorf("market_service: prices %s: %w", id, err)
	}

	// Back-fill cache; log but do not fail on cache write errors.
	if setErr := s.prices.SetPrices(ctx, id, yes, no, time.Now().UTC()); setErr != nil {
		s.logger.WarnContext(ctx, "market_service: price cache set failed",
			slog.String("market_id", id),
			slog.String("error", setErr.Error()),
		)
	}
	return yes, no, nil
}

// QuoteBuy prices a prospective buy without mutating state.
func (s *MarketService) QuoteBuy(ctx context.Context, id string, side domain.Side, delta *big.Int) (*big.Int, error) {
	m, err := s.registry.Market(id)
	if err != nil {
		return nil, err
	}
	return m.QuoteBuy(side, delta)
}

// QuoteSell prices a prospective sell without mutating state.
func (s *MarketService) QuoteSell(ctx context.Context, id string, side domain.Side, delta *big.Int) (*big.Int, error) {
	m, err := s.registry.Market(id)
	if err != nil {
		return nil, err
	}
	return m.QuoteSell(side, delta)
}

// Buy executes a share purchase, persists the fill, and refreshes the
// cached prices.
func (s *MarketService) Buy(ctx context.Context, id string, account common.Address, side domain.Side, delta *big.Int) (domain.Trade, error) {
	m, err := s.registry.Market(id)
	if err != nil {
		return domain.Trade{}, err
	}
	trade, err := m.Buy(ctx, account, side, delta)
	if err != nil {
		return domain.Trade{}, err
	}
	s.recordFill(ctx, trade)
	s.refreshPrices(ctx, id)
	return trade, nil
}

// Sell executes a share sale, persists the fill, and refreshes the cached
// prices.
func (s *MarketService) Sell(ctx context.Context, id string, account common.Address, side domain.Side, delta *big.Int) (domain.Trade, error) {
	m, err := s.registry.Market(id)
	if err != nil {
		return domain.Trade{}, err
	}
	trade, err := m.Sell(ctx, account, side, delta)
	if err != nil {
		return domain.Trade{}, err
	}
	s.recordFill(ctx, trade)
	s.refreshPrices(ctx, id)
	return trade, nil
}

// TransferShares moves share balance between accounts inside one market.
func (s *MarketService) TransferShares(ctx context.Context, id string, side domain.Side, from, to common.Address, amount *big.Int) error {
	m, err := s.registry.Market(id)
	if err != nil {
		return err
	}
	return m.Transfer(ctx, side, from, to, amount)
}

// Close ends trading on a market whose deadline has passed.
func (s *MarketService) Close(ctx context.Context, id string, caller common.Address) error {
	m, err := s.registry.Market(id)
	if err != nil {
		return err
	}
	return m.Close(ctx, caller)
}

// Resolve settles a market to its final outcome and drops the now stale
// cached prices.
func (s *MarketService) Resolve(ctx context.Context, id string, caller common.Address, outcome domain.Side) error {
	m, err := s.registry.Market(id)
	if err != nil {
		return err
	}
	if err := m.Resolve(ctx, caller, outcome); err != nil {
		return err
	}
	if err := s.prices.Invalidate(ctx, id); err != nil {
		s.logger.WarnContext(ctx, "market_service: price cache invalidate failed",
			slog.String("market_id", id),
			slog.String("error", err.Error()),
		)
	}
	return nil
}

// Pause suspends trading on a market.
func (s *MarketService) Pause(ctx context.Context, id string, caller common.Address) error {
	m, err := s.registry.Market(id)
	if err != nil {
		return err
	}
	return m.Pause(ctx, caller)
}

// Unpause lifts a trading suspension.
func (s *MarketService) Unpause(ctx context.Context, id string, caller common.Address) error {
	m, err := s.registry.Market(id)
	if err != nil {
		return err
	}
	return m.Unpause(ctx, caller)
}

// Redeem pays out the caller's winning shares on a resolved market and
// returns the collateral amount paid.
func (s *MarketService) Redeem(ctx context.Context, id string, caller common.Address) (*big.Int, error) {
	m, err := s.registry.Market(id)
	if err != nil {
		return nil, err
	}
	return m.Redeem(ctx, caller)
}

// Position returns one account's share balances in a market.
func (s *MarketService) Position(ctx context.Context, id string, account common.Address) (domain.Position, error) {
	m, err := s.registry.Market(id)
	if err != nil {
		return domain.Position{}, err
	}
	return m.Position(account), nil
}

// TradesByMarket returns a market's fill history, newest first.
func (s *MarketService) TradesByMarket(ctx context.Context, id string, opts domain.ListOpts) ([]domain.Trade, error) {
	trades, err := s.trades.ListByMarket(ctx, id, opts)
	if err != nil {
		return nil, fmt.Errorf("market_service: trades by market %s: %w", id, err)
	}
	return trades, nil
}

// TradesByAccount returns an account's fill history across markets, newest
// first.
func (s *MarketService) TradesByAccount(ctx context.Context, account common.Address, opts domain.ListOpts) ([]domain.Trade, error) {
	trades, err := s.trades.ListByAccount(ctx, account.Hex(), opts)
	if err != nil {
		return nil, fmt.Errorf("market_service: trades by account %s: %w", account.Hex(), err)
	}
	return trades, nil
}

// UpdateMetadata replaces a market's metadata URI. Creator only.
func (s *MarketService) UpdateMetadata(ctx context.Context, caller common.Address, id, uri string) error {
	return s.registry.UpdateMetadata(ctx, caller, id, uri)
}

// recordFill persists an executed trade. The fill has already settled in
// custody, so a store failure is logged and does not unwind the trade.
func (s *MarketService) recordFill(ctx context.Context, t domain.Trade) {
	if err := s.trades.Insert(ctx, t); err != nil {
		s.logger.ErrorContext(ctx, "market_service: trade persist failed",
			slog.String("trade_id", t.ID),
			slog.String("market_id", t.MarketID),
			slog.String("error", err.Error()),
		)
	}
}

// refreshPrices recomputes and caches the marginal prices after a state
// change. Cache failures are non-fatal; readers fall back to the aggregate.
func (s *MarketService) refreshPrices(ctx context.Context, id string) {
	m, err := s.registry.Market(id)
	if err != nil {
		return
	}
	yes, no, err := m.Prices()
	if err != nil {
		s.logger.WarnContext(ctx, "market_service: price recompute failed",
			slog.String("market_id", id),
			slog.String("error", err.Error()),
		)
		return
	}
	if err := s.prices.SetPrices(ctx, id, yes, no, time.Now().UTC()); err != nil {
		s.logger.WarnContext(ctx, "market_service: price cache set failed",
			slog.String("market_id", id),
			slog.String("error", err.Error()),
		)
	}
}
