package market

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/outcomelab/marketd/internal/domain"
)

// Transfer moves outcome shares between accounts. It is pure bookkeeping:
// no custody or pricing interaction, and it is legal in every lifecycle
// state including RESOLVED, because moving a redemption claim is distinct
// from trading. The burn sentinel is rejected as a recipient so shares can
// never silently leave the ledger.
func (m *Market) Transfer(ctx context.Context, side domain.Side, from, to common.Address, amount *big.Int) error {
	if !side.Valid() {
		return fmt.Errorf("market: transfer: %w: side %q", domain.ErrInvalidParams, side)
	}
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("market: transfer: %w", domain.ErrInvalidAmount)
	}
	if to == domain.BurnAddress {
		return fmt.Errorf("market: transfer: %w", domain.ErrBurnRecipient)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	src := m.position(from).side(side)
	if src.Cmp(amount) < 0 {
		return fmt.Errorf("market: transfer: %w", domain.ErrInsufficientShares)
	}

	src.Sub(src, amount)
	dst := m.position(to).side(side)
	dst.Add(dst, amount)

	m.emit(ctx, domain.EventSharesTransferred, map[string]any{
		"side":   string(side),
		"from":   from.Hex(),
		"to":     to.Hex(),
		"amount": fmtAmount(amount),
	})
	return nil
}
