// Package memory provides in-memory implementations of the domain store
// interfaces for lite mode and tests.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/outcomelab/marketd/internal/domain"
)

// RegistryStore implements domain.RegistryStore in memory.
type RegistryStore struct {
	mu      sync.Mutex
	nextID  int64
	entries []domain.RegistryEntry
	byID    map[string]int // market id -> index
}

// NewRegistryStore creates an empty RegistryStore.
func NewRegistryStore() *RegistryStore {
	return &RegistryStore{nextID: 1, byID: make(map[string]int)}
}

// Insert appends a new entry and returns its sequential id.
func (s *RegistryStore) Insert(ctx context.Context, e domain.RegistryEntry) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[e.MarketID]; ok {
		return 0, fmt.Errorf("memory: insert registry entry %s: already registered", e.MarketID)
	}

	e.ID = s.nextID
	s.nextID++
	s.byID[e.MarketID] = len(s.entries)
	s.entries = append(s.entries, e)
	return e.ID, nil
}

// GetByID returns the entry with the given sequential id.
func (s *RegistryStore) GetByID(ctx context.Context, id int64) (domain.RegistryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.entries {
		if e.ID == id {
			return e, nil
		}
	}
	return domain.RegistryEntry{}, domain.ErrNotFound
}

// GetByMarketID returns the entry for the given market.
func (s *RegistryStore) GetByMarketID(ctx context.Context, marketID string) (domain.RegistryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.byID[marketID]
	if !ok {
		return domain.RegistryEntry{}, domain.ErrNotFound
	}
	return s.entries[i], nil
}

// List returns entries in insertion order with pagination.
func (s *RegistryStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.RegistryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	if opts.Offset >= len(s.entries) {
		return nil, nil
	}

	end := opts.Offset + limit
	if end > len(s.entries) {
		end = len(s.entries)
	}
	out := make([]domain.RegistryEntry, end-opts.Offset)
	copy(out, s.entries[opts.Offset:end])
	return out, nil
}

// Count returns the number of entries.
func (s *RegistryStore) Count(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.entries)), nil
}

// UpdateMetadata replaces the metadata URI of an existing entry.
func (s *RegistryStore) UpdateMetadata(ctx context.Context, marketID, uri string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.byID[marketID]
	if !ok {
		return domain.ErrNotFound
	}
	s.entries[i].MetadataURI = uri
	return nil
}

// TradeStore implements domain.TradeStore in memory.
type TradeStore struct {
	mu     sync.Mutex
	trades []domain.Trade
}

// NewTradeStore creates an empty TradeStore.
func NewTradeStore() *TradeStore {
	return &TradeStore{}
}

// Insert records a fill.
func (s *TradeStore) Insert(ctx context.Context, t domain.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trades = append(s.trades, t)
	return nil
}

// ListByMarket returns a market's fills, newest first.
func (s *TradeStore) ListByMarket(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.Trade, error) {
	return s.filter(opts, func(t domain.Trade) bool { return t.MarketID == marketID })
}

// ListByAccount returns an account's fills, newest first.
func (s *TradeStore) ListByAccount(ctx context.Context, account string, opts domain.ListOpts) ([]domain.Trade, error) {
	return s.filter(opts, func(t domain.Trade) bool { return t.Account.Hex() == account })
}

func (s *TradeStore) filter(opts domain.ListOpts, keep func(domain.Trade) bool) ([]domain.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	var out []domain.Trade
	skipped := 0
	for i := len(s.trades) - 1; i >= 0 && len(out) < limit; i-- {
		if !keep(s.trades[i]) {
			continue
		}
		if skipped < opts.Offset {
			skipped++
			continue
		}
		out = append(out, s.trades[i])
	}
	return out, nil
}

// AuditStore implements domain.AuditStore in memory.
type AuditStore struct {
	mu      sync.Mutex
	nextID  int64
	entries []domain.AuditEntry
}

// NewAuditStore creates an empty AuditStore.
func NewAuditStore() *AuditStore {
	return &AuditStore{nextID: 1}
}

// Log appends an audit entry.
func (s *AuditStore) Log(ctx context.Context, event string, detail map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = append(s.entries, domain.AuditEntry{
		ID:        s.nextID,
		Event:     event,
		Detail:    detail,
		CreatedAt: time.Now().UTC(),
	})
	s.nextID++
	return nil
}

// List returns audit entries, newest first, with pagination.
func (s *AuditStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	var out []domain.AuditEntry
	skipped := 0
	for i := len(s.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if skipped < opts.Offset {
			skipped++
			continue
		}
		out = append(out, s.entries[i])
	}
	return out, nil
}
