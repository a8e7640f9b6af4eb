package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/outcomelab/marketd/internal/domain"
)

// RegistryStore implements domain.RegistryStore using PostgreSQL.
type RegistryStore struct {
	pool *pgxpool.Pool
}

// NewRegistryStore creates a RegistryStore backed by the given pool.
func NewRegistryStore(pool *pgxpool.Pool) *RegistryStore {
	return &RegistryStore{pool: pool}
}

// Insert appends a new registry entry and returns its sequential id.
func (s *RegistryStore) Insert(ctx context.Context, e domain.RegistryEntry) (int64, error) {
	const query = `
		INSERT INTO registry_entries (market_id, address, creator, metadata_uri, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`

	var id int64
	err := s.pool.QueryRow(ctx, query,
		e.MarketID, e.Address.Hex(), e.Creator.Hex(), e.MetadataURI, e.CreatedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("postgres: insert registry entry %s: %w", e.MarketID, err)
	}
	return id, nil
}

// GetByID returns the entry with the given sequential id.
func (s *RegistryStore) GetByID(ctx context.Context, id int64) (domain.RegistryEntry, error) {
	const query = `
		SELECT id, market_id, address, creator, metadata_uri, created_at
		FROM registry_entries WHERE id = $1`
	return s.scanOne(s.pool.QueryRow(ctx, query, id))
}

// GetByMarketID returns the entry for the given market.
func (s *RegistryStore) GetByMarketID(ctx context.Context, marketID string) (domain.RegistryEntry, error) {
	const query = `
		SELECT id, market_id, address, creator, metadata_uri, created_at
		FROM registry_entries WHERE market_id = $1`
	return s.scanOne(s.pool.QueryRow(ctx, query, marketID))
}

// List returns entries ordered by id with pagination.
func (s *RegistryStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.RegistryEntry, error) {
	const query = `
		SELECT id, market_id, address, creator, metadata_uri, created_at
		FROM registry_entries
		ORDER BY id
		LIMIT $1 OFFSET $2`

	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.pool.Query(ctx, query, limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: list registry entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.RegistryEntry
	for rows.Next() {
		e, err := s.scanOne(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list registry entries rows: %w", err)
	}
	return entries, nil
}

// Count returns the total number of registry entries.
func (s *RegistryStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM registry_entries`).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count registry entries: %w", err)
	}
	return n, nil
}

// UpdateMetadata replaces the metadata URI of an existing entry.
func (s *RegistryStore) UpdateMetadata(ctx context.Context, marketID, uri string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE registry_entries SET metadata_uri = $2 WHERE market_id = $1`,
		marketID, uri,
	)
	if err != nil {
		return fmt.Errorf("postgres: update metadata %s: %w", marketID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: update metadata %s: %w", marketID, domain.ErrNotFound)
	}
	return nil
}

func (s *RegistryStore) scanOne(row pgx.Row) (domain.RegistryEntry, error) {
	var (
		e       domain.RegistryEntry
		address string
		creator string
	)
	err := row.Scan(&e.ID, &e.MarketID, &address, &creator, &e.MetadataURI, &e.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.RegistryEntry{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.RegistryEntry{}, fmt.Errorf("postgres: scan registry entry: %w", err)
	}
	e.Address = common.HexToAddress(address)
	e.Creator = common.HexToAddress(creator)
	return e, nil
}
