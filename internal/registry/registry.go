// Package registry implements the market factory and its coordination state:
// the append-only list of created markets, the creation-fee and
// initial-liquidity parameters with their invariants, fee custody, and
// ownership. It is the only caller that funds and seeds new markets.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"

	"github.com/outcomelab/marketd/internal/domain"
	"github.com/outcomelab/marketd/internal/fixedpoint"
	"github.com/outcomelab/marketd/internal/market"
)

// MaxCreationFee caps the configurable creation fee at 1000 collateral units.
var MaxCreationFee = fixedpoint.FromInt64(1000)

// Config holds the registry's mutable parameters at startup.
type Config struct {
	Owner            common.Address
	CreationFee      *big.Int
	InitialLiquidity *big.Int
}

// Registry tracks created markets and enforces the fee invariants
// 0 < initialLiquidity <= creationFee <= MaxCreationFee.
type Registry struct {
	mu sync.Mutex

	owner            common.Address
	creationFee      *big.Int
	initialLiquidity *big.Int
	addr             common.Address

	custody domain.Custody
	store   domain.RegistryStore
	audit   domain.AuditStore
	events  domain.EventSink
	logger  *slog.Logger
	now     func() time.Time

	markets map[string]*market.Market
}

// New validates cfg and constructs a Registry.
func New(
	cfg Config,
	custody domain.Custody,
	store domain.RegistryStore,
	audit domain.AuditStore,
	events domain.EventSink,
	logger *slog.Logger,
) (*Registry, error) {
	if cfg.Owner == domain.BurnAddress {
		return nil, fmt.Errorf("registry: %w: zero owner address", domain.ErrInvalidParams)
	}
	if err := checkFeeInvariants(cfg.CreationFee, cfg.InitialLiquidity); err != nil {
		return nil, err
	}

	h := crypto.Keccak256([]byte("marketd/registry"))
	return &Registry{
		owner:            cfg.Owner,
		creationFee:      new(big.Int).Set(cfg.CreationFee),
		initialLiquidity: new(big.Int).Set(cfg.InitialLiquidity),
		addr:             common.BytesToAddress(h[12:]),
		custody:          custody,
		store:            store,
		audit:            audit,
		events:           events,
		logger:           logger,
		now:              time.Now,
		markets:          make(map[string]*market.Market),
	}, nil
}

// Address returns the registry's fee custody address.
func (r *Registry) Address() common.Address { return r.addr }

// Owner returns the current registry owner.
func (r *Registry) Owner() common.Address {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.owner
}

// Fees returns the current creation fee and initial liquidity.
func (r *Registry) Fees() (creationFee, initialLiquidity *big.Int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return new(big.Int).Set(r.creationFee), new(big.Int).Set(r.initialLiquidity)
}

// CreateParams are the caller-supplied parameters for a new market.
type CreateParams struct {
	Creator         common.Address
	Oracle          common.Address
	TradingDeadline time.Time
	ResolveTime     time.Time
	LiquidityParam  *big.Int
	MetadataURI     string
}

// CreateMarket collects the creation fee from the creator, instantiates a
// market from the shared template, forwards the initial-liquidity sub-portion
// into its custody, seeds the balanced starting exposure, and registers the
// entry. The creator must have approved the registry address for at least
// the creation fee.
func (r *Registry) CreateMarket(ctx context.Context, p CreateParams) (*market.Market, domain.RegistryEntry, error) {
	if p.MetadataURI == "" {
		return nil, domain.RegistryEntry{}, fmt.Errorf("registry: create: %w: empty metadata", domain.ErrInvalidParams)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now().UTC()
	if !p.TradingDeadline.After(now) {
		return nil, domain.RegistryEntry{}, fmt.Errorf("registry: create: %w: trading deadline not in the future", domain.ErrInvalidParams)
	}

	m, err := market.New(market.Params{
		ID:              uuid.NewString(),
		Oracle:          p.Oracle,
		Creator:         p.Creator,
		TradingDeadline: p.TradingDeadline,
		ResolveTime:     p.ResolveTime,
		LiquidityParam:  p.LiquidityParam,
	}, r.custody, r.events, r.logger)
	if err != nil {
		return nil, domain.RegistryEntry{}, err
	}

	// Fee in, liquidity forwarded, exposure seeded, entry registered. The
	// fee pull is the realistic failure point; everything after it operates
	// on funds the registry already holds.
	if err := r.custody.TransferFrom(ctx, r.addr, p.Creator, r.addr, r.creationFee); err != nil {
		return nil, domain.RegistryEntry{}, fmt.Errorf("registry: create: collect fee: %w", err)
	}
	if err := r.custody.Transfer(ctx, r.addr, m.Address(), r.initialLiquidity); err != nil {
		r.refund(ctx, p.Creator, r.creationFee)
		return nil, domain.RegistryEntry{}, fmt.Errorf("registry: create: forward liquidity: %w", err)
	}
	if err := m.Seed(ctx, r.initialLiquidity); err != nil {
		r.unwind(ctx, m.Address(), p.Creator)
		return nil, domain.RegistryEntry{}, err
	}

	entry := domain.RegistryEntry{
		MarketID:    m.ID(),
		Address:     m.Address(),
		Creator:     p.Creator,
		MetadataURI: p.MetadataURI,
		CreatedAt:   now,
	}
	id, err := r.store.Insert(ctx, entry)
	if err != nil {
		r.unwind(ctx, m.Address(), p.Creator)
		return nil, domain.RegistryEntry{}, fmt.Errorf("registry: create: register: %w", err)
	}
	entry.ID = id
	r.markets[m.ID()] = m

	r.events.Emit(ctx, domain.Event{
		Type:     domain.EventMarketCreated,
		MarketID: m.ID(),
		At:       now,
		Fields: map[string]any{
			"registry_id":       id,
			"address":           m.Address().Hex(),
			"creator":           p.Creator.Hex(),
			"oracle":            p.Oracle.Hex(),
			"trading_deadline":  p.TradingDeadline.UTC(),
			"resolve_time":      p.ResolveTime.UTC(),
			"liquidity_param":   fixedpoint.Format(p.LiquidityParam),
			"creation_fee":      fixedpoint.Format(r.creationFee),
			"initial_liquidity": fixedpoint.Format(r.initialLiquidity),
			"metadata_uri":      p.MetadataURI,
		},
	})

	r.logger.InfoContext(ctx, "registry: market created",
		slog.String("market_id", m.ID()),
		slog.Int64("registry_id", id),
		slog.String("creator", p.Creator.Hex()),
	)
	return m, entry, nil
}

// Market returns a live market aggregate by id.
func (r *Registry) Market(id string) (*market.Market, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.markets[id]
	if !ok {
		return nil, fmt.Errorf("registry: market %s: %w", id, domain.ErrNotFound)
	}
	return m, nil
}

// Entry returns the stored registry entry for a market.
func (r *Registry) Entry(ctx context.Context, marketID string) (domain.RegistryEntry, error) {
	entry, err := r.store.GetByMarketID(ctx, marketID)
	if err != nil {
		return domain.RegistryEntry{}, fmt.Errorf("registry: entry %s: %w", marketID, err)
	}
	return entry, nil
}

// List returns registry entries with pagination.
func (r *Registry) List(ctx context.Context, opts domain.ListOpts) ([]domain.RegistryEntry, int64, error) {
	entries, err := r.store.List(ctx, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("registry: list: %w", err)
	}
	total, err := r.store.Count(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("registry: count: %w", err)
	}
	return entries, total, nil
}

// UpdateMetadata replaces a market's metadata URI. Creator only; the URI is
// opaque to the core and must be non-empty.
func (r *Registry) UpdateMetadata(ctx context.Context, caller common.Address, marketID, uri string) error {
	if uri == "" {
		return fmt.Errorf("registry: update metadata: %w: empty metadata", domain.ErrInvalidParams)
	}

	entry, err := r.store.GetByMarketID(ctx, marketID)
	if err != nil {
		return fmt.Errorf("registry: update metadata: %w", err)
	}
	if caller != entry.Creator {
		return fmt.Errorf("registry: update metadata: %w", domain.ErrUnauthorized)
	}

	if err := r.store.UpdateMetadata(ctx, marketID, uri); err != nil {
		return fmt.Errorf("registry: update metadata: %w", err)
	}

	r.events.Emit(ctx, domain.Event{
		Type:     domain.EventMetadataUpdated,
		MarketID: marketID,
		At:       r.now().UTC(),
		Fields:   map[string]any{"metadata_uri": uri},
	})
	return nil
}

// refund returns a collected fee to the creator; failures are logged, not
// propagated, since the creating operation has already failed.
func (r *Registry) refund(ctx context.Context, creator common.Address, amount *big.Int) {
	if err := r.custody.Transfer(ctx, r.addr, creator, amount); err != nil {
		r.logger.ErrorContext(ctx, "registry: fee refund failed",
			slog.String("creator", creator.Hex()),
			slog.String("error", err.Error()),
		)
	}
}

// unwind reverses the custody effects of a failed creation: liquidity back
// from the stillborn market, fee back to the creator.
func (r *Registry) unwind(ctx context.Context, marketAddr, creator common.Address) {
	if err := r.custody.Transfer(ctx, marketAddr, r.addr, r.initialLiquidity); err != nil {
		r.logger.ErrorContext(ctx, "registry: liquidity unwind failed",
			slog.String("market", marketAddr.Hex()),
			slog.String("error", err.Error()),
		)
	}
	r.refund(ctx, creator, r.creationFee)
}

func checkFeeInvariants(fee, liquidity *big.Int) error {
	if fee == nil || liquidity == nil {
		return fmt.Errorf("registry: %w: nil fee parameters", domain.ErrInvalidParams)
	}
	if liquidity.Sign() <= 0 {
		return fmt.Errorf("registry: %w: initial liquidity must be positive", domain.ErrInvalidParams)
	}
	if liquidity.Cmp(fee) > 0 {
		return fmt.Errorf("registry: %w: initial liquidity exceeds creation fee", domain.ErrInvalidParams)
	}
	if fee.Cmp(MaxCreationFee) > 0 {
		return fmt.Errorf("registry: %w: creation fee exceeds cap", domain.ErrInvalidParams)
	}
	return nil
}
