package registry

import (
	"context"
	"io"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/outcomelab/marketd/internal/custody"
	"github.com/outcomelab/marketd/internal/domain"
	"github.com/outcomelab/marketd/internal/fixedpoint"
	"github.com/outcomelab/marketd/internal/store/memory"
)

var (
	owner   = common.HexToAddress("0x1000000000000000000000000000000000000001")
	creator = common.HexToAddress("0x1000000000000000000000000000000000000002")
	oracle  = common.HexToAddress("0x1000000000000000000000000000000000000003")
	someone = common.HexToAddress("0x1000000000000000000000000000000000000004")
)

type fixture struct {
	reg   *Registry
	bank  *custody.Bank
	store *memory.RegistryStore
	audit *memory.AuditStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	f := &fixture{
		bank:  custody.NewBank(),
		store: memory.NewRegistryStore(),
		audit: memory.NewAuditStore(),
	}

	reg, err := New(Config{
		Owner:            owner,
		CreationFee:      fixedpoint.FromInt64(10),
		InitialLiquidity: fixedpoint.FromInt64(5),
	}, f.bank, f.store, f.audit, domain.LogSink{Logger: logger}, logger)
	require.NoError(t, err)
	f.reg = reg
	return f
}

// fund mints collateral to an account and approves the registry to pull it.
func (f *fixture) fund(t *testing.T, account common.Address, units int64) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.bank.Mint(ctx, account, fixedpoint.FromInt64(units)))
	require.NoError(t, f.bank.Approve(ctx, account, f.reg.Address(), fixedpoint.FromInt64(units)))
}

func createParams() CreateParams {
	return CreateParams{
		Creator:         creator,
		Oracle:          oracle,
		TradingDeadline: time.Now().Add(24 * time.Hour),
		ResolveTime:     time.Now().Add(48 * time.Hour),
		LiquidityParam:  fixedpoint.FromInt64(10),
		MetadataURI:     "ipfs://QmMeta",
	}
}

func TestNew_Validation(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	bank := custody.NewBank()
	sink := domain.LogSink{Logger: logger}
	store := memory.NewRegistryStore()
	audit := memory.NewAuditStore()

	_, err := New(Config{
		Owner:            domain.BurnAddress,
		CreationFee:      fixedpoint.FromInt64(10),
		InitialLiquidity: fixedpoint.FromInt64(5),
	}, bank, store, audit, sink, logger)
	assert.ErrorIs(t, err, domain.ErrInvalidParams)

	// Liquidity above the fee.
	_, err = New(Config{
		Owner:            owner,
		CreationFee:      fixedpoint.FromInt64(5),
		InitialLiquidity: fixedpoint.FromInt64(10),
	}, bank, store, audit, sink, logger)
	assert.ErrorIs(t, err, domain.ErrInvalidParams)

	// Zero liquidity.
	_, err = New(Config{
		Owner:            owner,
		CreationFee:      fixedpoint.FromInt64(10),
		InitialLiquidity: new(big.Int),
	}, bank, store, audit, sink, logger)
	assert.ErrorIs(t, err, domain.ErrInvalidParams)

	// Fee above the hard cap.
	_, err = New(Config{
		Owner:            owner,
		CreationFee:      fixedpoint.FromInt64(1001),
		InitialLiquidity: fixedpoint.FromInt64(5),
	}, bank, store, audit, sink, logger)
	assert.ErrorIs(t, err, domain.ErrInvalidParams)
}

func TestCreateMarket_HappyPath(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, creator, 100)

	m, entry, err := f.reg.CreateMarket(ctx, createParams())
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, m.ID(), entry.MarketID)
	assert.Equal(t, m.Address(), entry.Address)
	assert.Equal(t, creator, entry.Creator)
	assert.Equal(t, "ipfs://QmMeta", entry.MetadataURI)
	assert.NotZero(t, entry.ID)

	// Fee split: liquidity to market custody, remainder retained as revenue.
	marketBal, _ := f.bank.BalanceOf(ctx, m.Address())
	regBal, _ := f.bank.BalanceOf(ctx, f.reg.Address())
	creatorBal, _ := f.bank.BalanceOf(ctx, creator)
	assert.Equal(t, fixedpoint.FromInt64(5), marketBal)
	assert.Equal(t, fixedpoint.FromInt64(5), regBal)
	assert.Equal(t, fixedpoint.FromInt64(90), creatorBal)

	// Seeded: creator holds half the liquidity on each side.
	pos := m.Position(creator)
	half := new(big.Int).Rsh(fixedpoint.FromInt64(5), 1)
	assert.Equal(t, half, pos.Yes)
	assert.Equal(t, half, pos.No)

	// Live lookup and stored entry agree.
	got, err := f.reg.Market(m.ID())
	require.NoError(t, err)
	assert.Same(t, m, got)

	stored, err := f.reg.Entry(ctx, m.ID())
	require.NoError(t, err)
	assert.Equal(t, entry, stored)
}

func TestCreateMarket_UnderfundedCreator(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	// Full approval but only 3 units of balance, below the 10 unit fee.
	require.NoError(t, f.bank.Mint(ctx, creator, fixedpoint.FromInt64(3)))
	require.NoError(t, f.bank.Approve(ctx, creator, f.reg.Address(), fixedpoint.FromInt64(100)))

	_, _, err := f.reg.CreateMarket(ctx, createParams())
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	// Nothing was registered or charged.
	entries, total, listErr := f.reg.List(ctx, domain.ListOpts{})
	require.NoError(t, listErr)
	assert.Empty(t, entries)
	assert.Zero(t, total)

	bal, _ := f.bank.BalanceOf(ctx, creator)
	assert.Equal(t, fixedpoint.FromInt64(3), bal)
}

func TestCreateMarket_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, creator, 100)

	p := createParams()
	p.MetadataURI = ""
	_, _, err := f.reg.CreateMarket(ctx, p)
	assert.ErrorIs(t, err, domain.ErrInvalidParams)

	p = createParams()
	p.TradingDeadline = time.Now().Add(-time.Hour)
	_, _, err = f.reg.CreateMarket(ctx, p)
	assert.ErrorIs(t, err, domain.ErrInvalidParams)

	p = createParams()
	p.Oracle = domain.BurnAddress
	_, _, err = f.reg.CreateMarket(ctx, p)
	assert.ErrorIs(t, err, domain.ErrInvalidParams)

	p = createParams()
	p.LiquidityParam = new(big.Int)
	_, _, err = f.reg.CreateMarket(ctx, p)
	assert.ErrorIs(t, err, domain.ErrInvalidParams)
}

func TestMarket_NotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.reg.Market("no-such-market")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestList_Pagination(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, creator, 100)

	for i := 0; i < 3; i++ {
		_, _, err := f.reg.CreateMarket(ctx, createParams())
		require.NoError(t, err)
	}

	entries, total, err := f.reg.List(ctx, domain.ListOpts{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, entries, 2)
	assert.EqualValues(t, 3, total)

	rest, _, err := f.reg.List(ctx, domain.ListOpts{Limit: 2, Offset: 2})
	require.NoError(t, err)
	assert.Len(t, rest, 1)
}

func TestUpdateMetadata_CreatorOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, creator, 100)

	m, _, err := f.reg.CreateMarket(ctx, createParams())
	require.NoError(t, err)

	err = f.reg.UpdateMetadata(ctx, someone, m.ID(), "ipfs://QmOther")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	require.NoError(t, f.reg.UpdateMetadata(ctx, creator, m.ID(), "ipfs://QmNew"))
	entry, err := f.reg.Entry(ctx, m.ID())
	require.NoError(t, err)
	assert.Equal(t, "ipfs://QmNew", entry.MetadataURI)
}

func TestSetCreationFee(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.ErrorIs(t, f.reg.SetCreationFee(ctx, someone, fixedpoint.FromInt64(20)), domain.ErrUnauthorized)

	// Below current liquidity: invariant violation.
	assert.ErrorIs(t, f.reg.SetCreationFee(ctx, owner, fixedpoint.FromInt64(2)), domain.ErrInvalidParams)

	require.NoError(t, f.reg.SetCreationFee(ctx, owner, fixedpoint.FromInt64(20)))
	fee, _ := f.reg.Fees()
	assert.Equal(t, fixedpoint.FromInt64(20), fee)

	// Audit trail recorded.
	entries, err := f.audit.List(ctx, domain.ListOpts{})
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	assert.Equal(t, domain.EventCreationFeeUpdated, entries[0].Event)
}

func TestSetInitialLiquidity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.ErrorIs(t, f.reg.SetInitialLiquidity(ctx, someone, fixedpoint.FromInt64(2)), domain.ErrUnauthorized)
	assert.ErrorIs(t, f.reg.SetInitialLiquidity(ctx, owner, fixedpoint.FromInt64(11)), domain.ErrInvalidParams)
	assert.ErrorIs(t, f.reg.SetInitialLiquidity(ctx, owner, new(big.Int)), domain.ErrInvalidParams)

	require.NoError(t, f.reg.SetInitialLiquidity(ctx, owner, fixedpoint.FromInt64(2)))
	_, liq := f.reg.Fees()
	assert.Equal(t, fixedpoint.FromInt64(2), liq)
}

func TestWithdrawFees(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, creator, 100)

	_, _, err := f.reg.CreateMarket(ctx, createParams())
	require.NoError(t, err)

	_, err = f.reg.WithdrawFees(ctx, someone, someone)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	amount, err := f.reg.WithdrawFees(ctx, owner, owner)
	require.NoError(t, err)
	assert.Equal(t, fixedpoint.FromInt64(5), amount)

	ownerBal, _ := f.bank.BalanceOf(ctx, owner)
	assert.Equal(t, fixedpoint.FromInt64(5), ownerBal)

	// The drained registry has nothing left to withdraw.
	_, err = f.reg.WithdrawFees(ctx, owner, owner)
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
}

func TestTransferOwnership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.ErrorIs(t, f.reg.TransferOwnership(ctx, someone, someone), domain.ErrUnauthorized)
	assert.ErrorIs(t, f.reg.TransferOwnership(ctx, owner, domain.BurnAddress), domain.ErrInvalidParams)

	require.NoError(t, f.reg.TransferOwnership(ctx, owner, someone))
	assert.Equal(t, someone, f.reg.Owner())

	// The previous owner is locked out, the new one is in charge.
	assert.ErrorIs(t, f.reg.SetCreationFee(ctx, owner, fixedpoint.FromInt64(20)), domain.ErrUnauthorized)
	assert.NoError(t, f.reg.SetCreationFee(ctx, someone, fixedpoint.FromInt64(20)))
}
