package market

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/outcomelab/marketd/internal/domain"
)

// Seed establishes the balanced starting exposure using the cost-function
// identity C(s,s) - C(0,0) = s: the creator is credited s shares of each
// side directly, with no buy calls and therefore no rounding asymmetry
// between the two sides. The registry must already have forwarded the full
// initial liquidity into market custody; s is half of it, and the remainder
// stays in custody as the market maker's subsidy buffer. Implied prices
// after seeding are exactly 0.5/0.5.
func (m *Market) Seed(ctx context.Context, liquidity *big.Int) error {
	if liquidity == nil || liquidity.Sign() <= 0 {
		return fmt.Errorf("market: seed: %w", domain.ErrInvalidAmount)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.status != domain.StatusOpen {
		return fmt.Errorf("market: seed: %w", domain.ErrMarketNotOpen)
	}
	if m.qYes.Sign() != 0 || m.qNo.Sign() != 0 {
		return fmt.Errorf("market: seed: %w: already seeded", domain.ErrInvalidParams)
	}

	// Read custody under the market mutex so the funding check and the share
	// credit happen against one snapshot.
	bal, err := m.custody.BalanceOf(ctx, m.addr)
	if err != nil {
		return fmt.Errorf("market: seed: custody balance: %w", err)
	}
	if bal.Cmp(liquidity) < 0 {
		return fmt.Errorf("market: seed: %w", domain.ErrInsufficientCustody)
	}

	s := new(big.Int).Rsh(liquidity, 1)
	m.qYes.Set(s)
	m.qNo.Set(s)
	h := m.position(m.params.Creator)
	h.yes.Set(s)
	h.no.Set(s)
	return nil
}

// Redeem settles the caller's winning position pro rata: the payout is the
// caller's share of the remaining winning-side outstanding applied to the
// *current* custody balance. Recomputing against current custody keeps
// sequential redemptions solvent under fixed-point rounding drift, and the
// final redemption drains custody to at most integer-division dust. The
// winning balance is zeroed so a position redeems exactly once; losing
// balances are already worthless and are left untouched.
func (m *Market) Redeem(ctx context.Context, caller common.Address) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.status != domain.StatusResolved {
		return nil, fmt.Errorf("market: redeem: %w", domain.ErrNotResolved)
	}

	winBal := m.position(caller).side(m.outcome)
	if winBal.Sign() == 0 {
		return nil, fmt.Errorf("market: redeem: %w", domain.ErrNothingToRedeem)
	}

	// Read custody under the market mutex: overlapping redemptions must each
	// see the balance left by the previous payout, not a shared stale
	// snapshot.
	custodyBal, err := m.custody.BalanceOf(ctx, m.addr)
	if err != nil {
		return nil, fmt.Errorf("market: redeem: custody balance: %w", err)
	}

	outstanding := m.qYes
	if m.outcome == domain.SideNo {
		outstanding = m.qNo
	}

	// payout = custody * winBal / outstanding. The scale factors cancel, so
	// this is plain integer arithmetic; the payout can never exceed custody.
	payout := new(big.Int).Mul(custodyBal, winBal)
	payout.Quo(payout, outstanding)
	if payout.Sign() == 0 {
		return nil, fmt.Errorf("market: redeem: %w", domain.ErrNothingToRedeem)
	}

	if err := m.custody.Transfer(ctx, m.addr, caller, payout); err != nil {
		return nil, fmt.Errorf("market: redeem: %w", err)
	}

	// Burn the redeemed claim.
	outstanding.Sub(outstanding, winBal)
	redeemed := new(big.Int).Set(winBal)
	winBal.SetInt64(0)

	m.emit(ctx, domain.EventRedeemed, map[string]any{
		"account": caller.Hex(),
		"shares":  fmtAmount(redeemed),
		"payout":  fmtAmount(payout),
	})
	return payout, nil
}
