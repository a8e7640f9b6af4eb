package domain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// BurnAddress is the zero-address sentinel. Shares and collateral must never
// be sent to it; ledger transfers reject it as a recipient.
var BurnAddress = common.Address{}

// Custody is the collateral transfer primitive the market core assumes. It is
// an external collaborator in production (a fungible token balance); the
// in-process bank in internal/custody implements it for tests and lite mode.
// Every call is fallible and a failure must abort the enclosing operation.
type Custody interface {
	// Transfer moves collateral the caller itself owns.
	Transfer(ctx context.Context, from, to common.Address, amount *big.Int) error
	// TransferFrom moves collateral on behalf of from, consuming spender's
	// allowance unless the infinite-allowance convention is in effect.
	TransferFrom(ctx context.Context, spender, from, to common.Address, amount *big.Int) error
	// Approve grants spender the right to move up to amount of owner's
	// collateral. Approving InfiniteAllowance is a one-time unlimited grant.
	Approve(ctx context.Context, owner, spender common.Address, amount *big.Int) error
	BalanceOf(ctx context.Context, account common.Address) (*big.Int, error)
}

// InfiniteAllowance is the sentinel amount for a one-time unlimited approval:
// allowances equal to it are never decremented by TransferFrom.
var InfiniteAllowance = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
