package market

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/outcomelab/marketd/internal/domain"
)

// QuoteBuy prices a prospective buy without touching any state. Quotes are
// available in every lifecycle state; only execution is gated.
func (m *Market) QuoteBuy(side domain.Side, delta *big.Int) (*big.Int, error) {
	if !side.Valid() {
		return nil, fmt.Errorf("market: quote buy: %w: side %q", domain.ErrInvalidParams, side)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pricing.QuoteBuy(m.qYes, m.qNo, side, delta)
}

// QuoteSell prices a prospective sell without touching any state.
func (m *Market) QuoteSell(side domain.Side, delta *big.Int) (*big.Int, error) {
	if !side.Valid() {
		return nil, fmt.Errorf("market: quote sell: %w: side %q", domain.ErrInvalidParams, side)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pricing.QuoteSell(m.qYes, m.qNo, side, delta)
}

// Buy purchases delta shares of side for buyer. The payment is computed from
// the pre-trade quantities, pulled from the buyer's custody balance via the
// market's allowance, and only then are the quantities and the buyer's ledger
// balance increased. No partial fills: a failed collateral pull aborts the
// trade entirely.
func (m *Market) Buy(ctx context.Context, buyer common.Address, side domain.Side, delta *big.Int) (domain.Trade, error) {
	if !side.Valid() {
		return domain.Trade{}, fmt.Errorf("market: buy: %w: side %q", domain.ErrInvalidParams, side)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.tradable(); err != nil {
		return domain.Trade{}, fmt.Errorf("market: buy: %w", err)
	}

	cost, err := m.pricing.QuoteBuy(m.qYes, m.qNo, side, delta)
	if err != nil {
		return domain.Trade{}, fmt.Errorf("market: buy: %w", err)
	}

	if cost.Sign() > 0 {
		if err := m.custody.TransferFrom(ctx, m.addr, buyer, m.addr, cost); err != nil {
			return domain.Trade{}, fmt.Errorf("market: buy: %w", err)
		}
	}

	// Commit: custody has the payment, now apply the share deltas together.
	if side == domain.SideYes {
		m.qYes.Add(m.qYes, delta)
	} else {
		m.qNo.Add(m.qNo, delta)
	}
	bal := m.position(buyer).side(side)
	bal.Add(bal, delta)

	trade := domain.Trade{
		ID:         uuid.NewString(),
		MarketID:   m.params.ID,
		Account:    buyer,
		Side:       side,
		Kind:       domain.TradeKindBuy,
		Shares:     new(big.Int).Set(delta),
		Collateral: cost,
		CreatedAt:  m.now().UTC(),
	}

	m.emit(ctx, domain.EventSharesBought, map[string]any{
		"account": buyer.Hex(),
		"side":    string(side),
		"shares":  fmtAmount(delta),
		"cost":    fmtAmount(cost),
	})
	return trade, nil
}

// Sell returns delta shares of side from the seller to the market maker for
// a refund computed from the pre-trade quantities. The refund is paid from
// market custody; LMSR guarantees the custody balance covers it.
func (m *Market) Sell(ctx context.Context, seller common.Address, side domain.Side, delta *big.Int) (domain.Trade, error) {
	if !side.Valid() {
		return domain.Trade{}, fmt.Errorf("market: sell: %w: side %q", domain.ErrInvalidParams, side)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.tradable(); err != nil {
		return domain.Trade{}, fmt.Errorf("market: sell: %w", err)
	}
	if delta == nil || delta.Sign() <= 0 {
		return domain.Trade{}, fmt.Errorf("market: sell: %w", domain.ErrInvalidAmount)
	}
	if m.position(seller).side(side).Cmp(delta) < 0 {
		return domain.Trade{}, fmt.Errorf("market: sell: %w", domain.ErrInsufficientShares)
	}

	refund, err := m.pricing.QuoteSell(m.qYes, m.qNo, side, delta)
	if err != nil {
		return domain.Trade{}, fmt.Errorf("market: sell: %w", err)
	}

	// Truncation can round a dust refund to zero; the shares are still
	// surrendered, there is just nothing to pay out.
	if refund.Sign() > 0 {
		if err := m.custody.Transfer(ctx, m.addr, seller, refund); err != nil {
			return domain.Trade{}, fmt.Errorf("market: sell: %w", err)
		}
	}

	if side == domain.SideYes {
		m.qYes.Sub(m.qYes, delta)
	} else {
		m.qNo.Sub(m.qNo, delta)
	}
	bal := m.position(seller).side(side)
	bal.Sub(bal, delta)

	trade := domain.Trade{
		ID:         uuid.NewString(),
		MarketID:   m.params.ID,
		Account:    seller,
		Side:       side,
		Kind:       domain.TradeKindSell,
		Shares:     new(big.Int).Set(delta),
		Collateral: refund,
		CreatedAt:  m.now().UTC(),
	}

	m.emit(ctx, domain.EventSharesSold, map[string]any{
		"account": seller.Hex(),
		"side":    string(side),
		"shares":  fmtAmount(delta),
		"refund":  fmtAmount(refund),
	})
	return trade, nil
}

// tradable checks the trading guard: OPEN state, not paused, and before the
// trading deadline. All three are re-evaluated on every call.
// Callers must hold m.mu.
func (m *Market) tradable() error {
	if m.status != domain.StatusOpen {
		return domain.ErrMarketNotOpen
	}
	if m.paused {
		return domain.ErrMarketPaused
	}
	if !m.now().Before(m.params.TradingDeadline) {
		return domain.ErrTradingEnded
	}
	return nil
}
