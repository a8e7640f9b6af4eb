package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
}

// RegistryStore persists the append-only market registry.
type RegistryStore interface {
	// Insert appends a new entry and returns its sequential id.
	Insert(ctx context.Context, e RegistryEntry) (int64, error)
	GetByID(ctx context.Context, id int64) (RegistryEntry, error)
	GetByMarketID(ctx context.Context, marketID string) (RegistryEntry, error)
	List(ctx context.Context, opts ListOpts) ([]RegistryEntry, error)
	Count(ctx context.Context) (int64, error)
	UpdateMetadata(ctx context.Context, marketID, uri string) error
}

// TradeStore persists executed fills.
type TradeStore interface {
	Insert(ctx context.Context, t Trade) error
	ListByMarket(ctx context.Context, marketID string, opts ListOpts) ([]Trade, error)
	ListByAccount(ctx context.Context, account string, opts ListOpts) ([]Trade, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log of admin and lifecycle actions.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
