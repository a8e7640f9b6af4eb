package custody

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/outcomelab/marketd/internal/domain"
	"github.com/outcomelab/marketd/internal/fixedpoint"
)

var (
	alice = common.HexToAddress("0x1111111111111111111111111111111111111111")
	bob   = common.HexToAddress("0x2222222222222222222222222222222222222222")
	carol = common.HexToAddress("0x3333333333333333333333333333333333333333")
)

func TestMint_CreditsBalance(t *testing.T) {
	b := NewBank()
	ctx := context.Background()

	require.NoError(t, b.Mint(ctx, alice, fixedpoint.FromInt64(100)))
	require.NoError(t, b.Mint(ctx, alice, fixedpoint.FromInt64(50)))

	bal, err := b.BalanceOf(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, fixedpoint.FromInt64(150), bal)
}

func TestMint_Invalid(t *testing.T) {
	b := NewBank()
	ctx := context.Background()

	assert.ErrorIs(t, b.Mint(ctx, alice, new(big.Int)), domain.ErrInvalidAmount)
	assert.ErrorIs(t, b.Mint(ctx, alice, nil), domain.ErrInvalidAmount)
	assert.ErrorIs(t, b.Mint(ctx, domain.BurnAddress, fixedpoint.FromInt64(1)), domain.ErrBurnRecipient)
}

func TestBalanceOf_DefaultsToZero(t *testing.T) {
	b := NewBank()
	bal, err := b.BalanceOf(context.Background(), alice)
	require.NoError(t, err)
	assert.Equal(t, 0, bal.Sign())
}

func TestTransfer_MovesFunds(t *testing.T) {
	b := NewBank()
	ctx := context.Background()
	require.NoError(t, b.Mint(ctx, alice, fixedpoint.FromInt64(100)))

	require.NoError(t, b.Transfer(ctx, alice, bob, fixedpoint.FromInt64(40)))

	aliceBal, _ := b.BalanceOf(ctx, alice)
	bobBal, _ := b.BalanceOf(ctx, bob)
	assert.Equal(t, fixedpoint.FromInt64(60), aliceBal)
	assert.Equal(t, fixedpoint.FromInt64(40), bobBal)
}

func TestTransfer_InsufficientFunds(t *testing.T) {
	b := NewBank()
	ctx := context.Background()
	require.NoError(t, b.Mint(ctx, alice, fixedpoint.FromInt64(10)))

	err := b.Transfer(ctx, alice, bob, fixedpoint.FromInt64(11))
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	// A failed transfer leaves both balances untouched.
	aliceBal, _ := b.BalanceOf(ctx, alice)
	bobBal, _ := b.BalanceOf(ctx, bob)
	assert.Equal(t, fixedpoint.FromInt64(10), aliceBal)
	assert.Equal(t, 0, bobBal.Sign())
}

func TestTransfer_BurnRecipient(t *testing.T) {
	b := NewBank()
	ctx := context.Background()
	require.NoError(t, b.Mint(ctx, alice, fixedpoint.FromInt64(10)))

	err := b.Transfer(ctx, alice, domain.BurnAddress, fixedpoint.FromInt64(1))
	assert.ErrorIs(t, err, domain.ErrBurnRecipient)
}

func TestTransferFrom_ConsumesAllowance(t *testing.T) {
	b := NewBank()
	ctx := context.Background()
	require.NoError(t, b.Mint(ctx, alice, fixedpoint.FromInt64(100)))
	require.NoError(t, b.Approve(ctx, alice, bob, fixedpoint.FromInt64(30)))

	require.NoError(t, b.TransferFrom(ctx, bob, alice, carol, fixedpoint.FromInt64(20)))

	remaining, err := b.Allowance(ctx, alice, bob)
	require.NoError(t, err)
	assert.Equal(t, fixedpoint.FromInt64(10), remaining)

	carolBal, _ := b.BalanceOf(ctx, carol)
	assert.Equal(t, fixedpoint.FromInt64(20), carolBal)
}

func TestTransferFrom_AllowanceExceeded(t *testing.T) {
	b := NewBank()
	ctx := context.Background()
	require.NoError(t, b.Mint(ctx, alice, fixedpoint.FromInt64(100)))
	require.NoError(t, b.Approve(ctx, alice, bob, fixedpoint.FromInt64(5)))

	err := b.TransferFrom(ctx, bob, alice, carol, fixedpoint.FromInt64(6))
	assert.ErrorIs(t, err, domain.ErrAllowanceExceeded)
}

func TestTransferFrom_NoAllowance(t *testing.T) {
	b := NewBank()
	ctx := context.Background()
	require.NoError(t, b.Mint(ctx, alice, fixedpoint.FromInt64(100)))

	err := b.TransferFrom(ctx, bob, alice, carol, fixedpoint.FromInt64(1))
	assert.ErrorIs(t, err, domain.ErrAllowanceExceeded)
}

func TestTransferFrom_InsufficientFundsCheckedAfterAllowance(t *testing.T) {
	b := NewBank()
	ctx := context.Background()
	require.NoError(t, b.Mint(ctx, alice, fixedpoint.FromInt64(5)))
	require.NoError(t, b.Approve(ctx, alice, bob, fixedpoint.FromInt64(10)))

	err := b.TransferFrom(ctx, bob, alice, carol, fixedpoint.FromInt64(6))
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	// The allowance is not consumed by a failed pull.
	remaining, _ := b.Allowance(ctx, alice, bob)
	assert.Equal(t, fixedpoint.FromInt64(10), remaining)
}

func TestTransferFrom_InfiniteAllowance(t *testing.T) {
	b := NewBank()
	ctx := context.Background()
	require.NoError(t, b.Mint(ctx, alice, fixedpoint.FromInt64(100)))
	require.NoError(t, b.Approve(ctx, alice, bob, new(big.Int).Set(domain.InfiniteAllowance)))

	require.NoError(t, b.TransferFrom(ctx, bob, alice, carol, fixedpoint.FromInt64(60)))

	remaining, err := b.Allowance(ctx, alice, bob)
	require.NoError(t, err)
	assert.Equal(t, domain.InfiniteAllowance, remaining)
}

func TestApprove_ReplacesPriorGrant(t *testing.T) {
	b := NewBank()
	ctx := context.Background()

	require.NoError(t, b.Approve(ctx, alice, bob, fixedpoint.FromInt64(50)))
	require.NoError(t, b.Approve(ctx, alice, bob, fixedpoint.FromInt64(7)))

	remaining, _ := b.Allowance(ctx, alice, bob)
	assert.Equal(t, fixedpoint.FromInt64(7), remaining)

	// Zero revokes entirely.
	require.NoError(t, b.Approve(ctx, alice, bob, new(big.Int)))
	remaining, _ = b.Allowance(ctx, alice, bob)
	assert.Equal(t, 0, remaining.Sign())
}
