// Package custody provides an in-process implementation of the collateral
// transfer primitive. Production deployments custody collateral in an
// external fungible token; the Bank stands in for it in lite mode and tests
// while honoring the same semantics: fallible transfers, allowances with the
// infinite-allowance convention, and strict balance checks.
package custody

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/outcomelab/marketd/internal/domain"
)

// Bank is an in-memory collateral ledger. All methods are safe for
// concurrent use and atomic: a failed call leaves every balance unchanged.
type Bank struct {
	mu         sync.Mutex
	balances   map[common.Address]*big.Int
	allowances map[common.Address]map[common.Address]*big.Int
}

// NewBank creates an empty Bank.
func NewBank() *Bank {
	return &Bank{
		balances:   make(map[common.Address]*big.Int),
		allowances: make(map[common.Address]map[common.Address]*big.Int),
	}
}

// Mint credits freshly issued collateral to an account. It backs the faucet
// endpoint; the external custody token has no equivalent.
func (b *Bank) Mint(ctx context.Context, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("custody: mint: %w", domain.ErrInvalidAmount)
	}
	if to == domain.BurnAddress {
		return fmt.Errorf("custody: mint: %w", domain.ErrBurnRecipient)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.credit(to, amount)
	return nil
}

// Transfer moves collateral the caller itself owns.
func (b *Bank) Transfer(ctx context.Context, from, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("custody: transfer: %w", domain.ErrInvalidAmount)
	}
	if to == domain.BurnAddress {
		return fmt.Errorf("custody: transfer: %w", domain.ErrBurnRecipient)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.balanceLocked(from).Cmp(amount) < 0 {
		return fmt.Errorf("custody: transfer from %s: %w", from.Hex(), domain.ErrInsufficientFunds)
	}
	b.debit(from, amount)
	b.credit(to, amount)
	return nil
}

// TransferFrom moves collateral on behalf of from, consuming spender's
// allowance. An allowance equal to domain.InfiniteAllowance is never
// decremented.
func (b *Bank) TransferFrom(ctx context.Context, spender, from, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("custody: transfer from: %w", domain.ErrInvalidAmount)
	}
	if to == domain.BurnAddress {
		return fmt.Errorf("custody: transfer from: %w", domain.ErrBurnRecipient)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	allowance := b.allowanceLocked(from, spender)
	infinite := allowance.Cmp(domain.InfiniteAllowance) == 0
	if !infinite && allowance.Cmp(amount) < 0 {
		return fmt.Errorf("custody: transfer from %s by %s: %w", from.Hex(), spender.Hex(), domain.ErrAllowanceExceeded)
	}
	if b.balanceLocked(from).Cmp(amount) < 0 {
		return fmt.Errorf("custody: transfer from %s: %w", from.Hex(), domain.ErrInsufficientFunds)
	}

	if !infinite {
		allowance.Sub(allowance, amount)
	}
	b.debit(from, amount)
	b.credit(to, amount)
	return nil
}

// Approve grants spender the right to move up to amount of owner's
// collateral, replacing any prior grant.
func (b *Bank) Approve(ctx context.Context, owner, spender common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("custody: approve: %w", domain.ErrInvalidAmount)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	grants, ok := b.allowances[owner]
	if !ok {
		grants = make(map[common.Address]*big.Int)
		b.allowances[owner] = grants
	}
	grants[spender] = new(big.Int).Set(amount)
	return nil
}

// BalanceOf returns the collateral balance of account.
func (b *Bank) BalanceOf(ctx context.Context, account common.Address) (*big.Int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return new(big.Int).Set(b.balanceLocked(account)), nil
}

// Allowance returns the remaining grant from owner to spender.
func (b *Bank) Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return new(big.Int).Set(b.allowanceLocked(owner, spender)), nil
}

func (b *Bank) balanceLocked(account common.Address) *big.Int {
	if bal, ok := b.balances[account]; ok {
		return bal
	}
	return new(big.Int)
}

func (b *Bank) allowanceLocked(owner, spender common.Address) *big.Int {
	if grants, ok := b.allowances[owner]; ok {
		if a, ok := grants[spender]; ok {
			return a
		}
	}
	return new(big.Int)
}

func (b *Bank) credit(account common.Address, amount *big.Int) {
	bal, ok := b.balances[account]
	if !ok {
		bal = new(big.Int)
		b.balances[account] = bal
	}
	bal.Add(bal, amount)
}

func (b *Bank) debit(account common.Address, amount *big.Int) {
	b.balances[account].Sub(b.balances[account], amount)
}
