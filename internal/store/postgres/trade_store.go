package postgres

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/outcomelab/marketd/internal/domain"
)

// TradeStore implements domain.TradeStore using PostgreSQL. Fixed-point
// amounts are persisted as decimal strings to keep the full 18-digit scale.
type TradeStore struct {
	pool *pgxpool.Pool
}

// NewTradeStore creates a TradeStore backed by the given pool.
func NewTradeStore(pool *pgxpool.Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

// Insert persists a single executed fill.
func (s *TradeStore) Insert(ctx context.Context, t domain.Trade) error {
	const query = `
		INSERT INTO trades (id, market_id, account, side, kind, shares, collateral, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := s.pool.Exec(ctx, query,
		t.ID, t.MarketID, t.Account.Hex(), string(t.Side), string(t.Kind),
		t.Shares.String(), t.Collateral.String(), t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert trade %s: %w", t.ID, err)
	}
	return nil
}

// ListByMarket returns a market's fills, newest first.
func (s *TradeStore) ListByMarket(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.Trade, error) {
	const query = `
		SELECT id, market_id, account, side, kind, shares, collateral, created_at
		FROM trades
		WHERE market_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`
	return s.list(ctx, query, marketID, opts)
}

// ListByAccount returns an account's fills across markets, newest first.
func (s *TradeStore) ListByAccount(ctx context.Context, account string, opts domain.ListOpts) ([]domain.Trade, error) {
	const query = `
		SELECT id, market_id, account, side, kind, shares, collateral, created_at
		FROM trades
		WHERE account = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`
	return s.list(ctx, query, account, opts)
}

func (s *TradeStore) list(ctx context.Context, query, key string, opts domain.ListOpts) ([]domain.Trade, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.pool.Query(ctx, query, key, limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades: %w", err)
	}
	defer rows.Close()

	var trades []domain.Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list trades rows: %w", err)
	}
	return trades, nil
}

func scanTrade(row pgx.Row) (domain.Trade, error) {
	var (
		t          domain.Trade
		account    string
		side       string
		kind       string
		shares     string
		collateral string
	)
	if err := row.Scan(&t.ID, &t.MarketID, &account, &side, &kind, &shares, &collateral, &t.CreatedAt); err != nil {
		return domain.Trade{}, fmt.Errorf("postgres: scan trade: %w", err)
	}

	t.Account = common.HexToAddress(account)
	t.Side = domain.Side(side)
	t.Kind = domain.TradeKind(kind)
	t.Shares, _ = new(big.Int).SetString(shares, 10)
	t.Collateral, _ = new(big.Int).SetString(collateral, 10)
	return t, nil
}
