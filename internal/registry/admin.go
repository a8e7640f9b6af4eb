package registry

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/outcomelab/marketd/internal/domain"
	"github.com/outcomelab/marketd/internal/fixedpoint"
)

// SetCreationFee updates the fee collected on market creation. Owner only;
// the fee invariants are re-checked against the current initial liquidity.
func (r *Registry) SetCreationFee(ctx context.Context, caller common.Address, fee *big.Int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if caller != r.owner {
		return fmt.Errorf("registry: set creation fee: %w", domain.ErrUnauthorized)
	}
	if err := checkFeeInvariants(fee, r.initialLiquidity); err != nil {
		return err
	}

	r.creationFee = new(big.Int).Set(fee)
	r.auditLog(ctx, domain.EventCreationFeeUpdated, map[string]any{
		"caller": caller.Hex(),
		"fee":    fixedpoint.Format(fee),
	})
	return nil
}

// SetInitialLiquidity updates the sub-portion of the fee forwarded into new
// markets. Owner only; must stay within 0 < liquidity <= creationFee.
func (r *Registry) SetInitialLiquidity(ctx context.Context, caller common.Address, liquidity *big.Int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if caller != r.owner {
		return fmt.Errorf("registry: set initial liquidity: %w", domain.ErrUnauthorized)
	}
	if err := checkFeeInvariants(r.creationFee, liquidity); err != nil {
		return err
	}

	r.initialLiquidity = new(big.Int).Set(liquidity)
	r.auditLog(ctx, domain.EventLiquidityUpdated, map[string]any{
		"caller":    caller.Hex(),
		"liquidity": fixedpoint.Format(liquidity),
	})
	return nil
}

// WithdrawFees transfers the registry's accrued fee balance to the given
// account. Owner only.
func (r *Registry) WithdrawFees(ctx context.Context, caller, to common.Address) (*big.Int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if caller != r.owner {
		return nil, fmt.Errorf("registry: withdraw fees: %w", domain.ErrUnauthorized)
	}

	bal, err := r.custody.BalanceOf(ctx, r.addr)
	if err != nil {
		return nil, fmt.Errorf("registry: withdraw fees: %w", err)
	}
	if bal.Sign() == 0 {
		return nil, fmt.Errorf("registry: withdraw fees: %w", domain.ErrInsufficientFunds)
	}
	if err := r.custody.Transfer(ctx, r.addr, to, bal); err != nil {
		return nil, fmt.Errorf("registry: withdraw fees: %w", err)
	}

	r.auditLog(ctx, domain.EventFeesWithdrawn, map[string]any{
		"caller": caller.Hex(),
		"to":     to.Hex(),
		"amount": fixedpoint.Format(bal),
	})
	return bal, nil
}

// TransferOwnership hands the registry to a new owner. Owner only; the zero
// address is rejected so the registry can never become ownerless.
func (r *Registry) TransferOwnership(ctx context.Context, caller, newOwner common.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if caller != r.owner {
		return fmt.Errorf("registry: transfer ownership: %w", domain.ErrUnauthorized)
	}
	if newOwner == domain.BurnAddress {
		return fmt.Errorf("registry: transfer ownership: %w: zero owner address", domain.ErrInvalidParams)
	}

	prev := r.owner
	r.owner = newOwner
	r.auditLog(ctx, domain.EventOwnershipTransfer, map[string]any{
		"previous": prev.Hex(),
		"new":      newOwner.Hex(),
	})
	return nil
}

// auditLog records an admin action in the audit store and emits it as an
// event. Neither failure aborts the already-applied action.
func (r *Registry) auditLog(ctx context.Context, event string, detail map[string]any) {
	if err := r.audit.Log(ctx, event, detail); err != nil {
		r.logger.WarnContext(ctx, "registry: audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
	r.events.Emit(ctx, domain.Event{
		Type:   event,
		At:     r.now().UTC(),
		Fields: detail,
	})
}
