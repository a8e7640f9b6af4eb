// Package market implements the per-question market aggregate: the position
// ledger, the lifecycle state machine, trading against the LMSR pricing
// engine, and redemption settlement.
//
// Every state-changing operation runs under a single mutex and follows the
// same discipline: validate all preconditions, perform the fallible custody
// call, then mutate every field together. A failed operation leaves the
// aggregate exactly as it was.
package market

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/outcomelab/marketd/internal/domain"
	"github.com/outcomelab/marketd/internal/fixedpoint"
	"github.com/outcomelab/marketd/internal/lmsr"
)

// Params are the immutable creation parameters of a market.
type Params struct {
	ID              string
	Oracle          common.Address
	Creator         common.Address
	TradingDeadline time.Time
	ResolveTime     time.Time
	LiquidityParam  *big.Int
}

// holding is one account's side balances. Both are always non-negative.
type holding struct {
	yes *big.Int
	no  *big.Int
}

func (h *holding) side(s domain.Side) *big.Int {
	if s == domain.SideYes {
		return h.yes
	}
	return h.no
}

// Market is a single binary prediction market.
type Market struct {
	mu sync.Mutex

	params  Params
	addr    common.Address
	created time.Time

	pricing *lmsr.Engine
	custody domain.Custody
	events  domain.EventSink
	logger  *slog.Logger
	now     func() time.Time

	status    domain.MarketStatus
	outcome   domain.Side
	paused    bool
	qYes      *big.Int
	qNo       *big.Int
	positions map[common.Address]*holding
}

// New validates params and constructs an unseeded market in the OPEN state.
// The market's custody address is derived deterministically from its id.
func New(p Params, custody domain.Custody, events domain.EventSink, logger *slog.Logger) (*Market, error) {
	if p.ID == "" {
		return nil, fmt.Errorf("market: %w: empty id", domain.ErrInvalidParams)
	}
	if p.Oracle == domain.BurnAddress {
		return nil, fmt.Errorf("market: %w: zero oracle address", domain.ErrInvalidParams)
	}
	if p.ResolveTime.Before(p.TradingDeadline) {
		return nil, fmt.Errorf("market: %w: resolve time before trading deadline", domain.ErrInvalidParams)
	}

	pricing, err := lmsr.New(p.LiquidityParam)
	if err != nil {
		return nil, err
	}

	m := &Market{
		params:    p,
		addr:      deriveAddress(p.ID),
		pricing:   pricing,
		custody:   custody,
		events:    events,
		logger:    logger.With(slog.String("market_id", p.ID)),
		now:       time.Now,
		status:    domain.StatusOpen,
		qYes:      new(big.Int),
		qNo:       new(big.Int),
		positions: make(map[common.Address]*holding),
	}
	m.created = m.now().UTC()
	return m, nil
}

// ID returns the market identifier.
func (m *Market) ID() string { return m.params.ID }

// Address returns the market's custody address.
func (m *Market) Address() common.Address { return m.addr }

// Oracle returns the account authorized to resolve, pause, and unpause.
func (m *Market) Oracle() common.Address { return m.params.Oracle }

// Creator returns the account that instantiated the market.
func (m *Market) Creator() common.Address { return m.params.Creator }

// Info returns a snapshot of the market including its custody balance.
func (m *Market) Info(ctx context.Context) (domain.MarketInfo, error) {
	bal, err := m.custody.BalanceOf(ctx, m.addr)
	if err != nil {
		return domain.MarketInfo{}, fmt.Errorf("market: custody balance: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return domain.MarketInfo{
		ID:              m.params.ID,
		Address:         m.addr,
		Oracle:          m.params.Oracle,
		Creator:         m.params.Creator,
		TradingDeadline: m.params.TradingDeadline,
		ResolveTime:     m.params.ResolveTime,
		LiquidityParam:  m.pricing.B(),
		Status:          m.status,
		Outcome:         m.outcome,
		Paused:          m.paused,
		YesShares:       new(big.Int).Set(m.qYes),
		NoShares:        new(big.Int).Set(m.qNo),
		Custody:         bal,
		CreatedAt:       m.created,
	}, nil
}

// Position returns the account's current side balances.
func (m *Market) Position(account common.Address) domain.Position {
	m.mu.Lock()
	defer m.mu.Unlock()

	pos := domain.Position{Account: account, Yes: new(big.Int), No: new(big.Int)}
	if h, ok := m.positions[account]; ok {
		pos.Yes.Set(h.yes)
		pos.No.Set(h.no)
	}
	return pos
}

// Prices returns the implied probabilities of both sides.
func (m *Market) Prices() (yes, no *big.Int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	yes, err = m.pricing.Price(m.qYes, m.qNo, domain.SideYes)
	if err != nil {
		return nil, nil, err
	}
	no, err = m.pricing.Price(m.qYes, m.qNo, domain.SideNo)
	if err != nil {
		return nil, nil, err
	}
	return yes, no, nil
}

// position returns the holding for account, creating it if absent.
// Callers must hold m.mu.
func (m *Market) position(account common.Address) *holding {
	h, ok := m.positions[account]
	if !ok {
		h = &holding{yes: new(big.Int), no: new(big.Int)}
		m.positions[account] = h
	}
	return h
}

// emit publishes an event through the configured sink.
func (m *Market) emit(ctx context.Context, typ string, fields map[string]any) {
	m.events.Emit(ctx, domain.Event{
		Type:     typ,
		MarketID: m.params.ID,
		At:       m.now().UTC(),
		Fields:   fields,
	})
}

// deriveAddress maps a market id to a unique custody address.
func deriveAddress(id string) common.Address {
	h := crypto.Keccak256([]byte("marketd/market/" + id))
	return common.BytesToAddress(h[12:])
}

// fmtAmount renders a fixed-point amount for event payloads.
func fmtAmount(v *big.Int) string { return fixedpoint.Format(v) }
