package lmsr

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/outcomelab/marketd/internal/domain"
	"github.com/outcomelab/marketd/internal/fixedpoint"
)

func newEngine(t *testing.T, b int64) *Engine {
	t.Helper()
	e, err := New(fixedpoint.FromInt64(b))
	require.NoError(t, err)
	return e
}

func assertClose(t *testing.T, want, got *big.Int, tol int64) {
	t.Helper()
	diff := new(big.Int).Sub(got, want)
	diff.Abs(diff)
	assert.LessOrEqual(t, diff.Cmp(big.NewInt(tol)), 0,
		"want %s, got %s", fixedpoint.Format(want), fixedpoint.Format(got))
}

func TestNew_RejectsNonPositiveLiquidity(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, domain.ErrInvalidParams)
	_, err = New(new(big.Int))
	assert.ErrorIs(t, err, domain.ErrInvalidParams)
	_, err = New(fixedpoint.FromInt64(-5))
	assert.ErrorIs(t, err, domain.ErrInvalidParams)
}

func TestCost_EmptyMarket(t *testing.T) {
	// C(0,0) = b * ln 2
	e := newEngine(t, 10)
	cost, err := e.Cost(new(big.Int), new(big.Int))
	require.NoError(t, err)

	want, err := fixedpoint.Parse("6.931471805599453094")
	require.NoError(t, err)
	assertClose(t, want, cost, 100000)
}

func TestCost_BalancedIdentity(t *testing.T) {
	// C(s,s) = s + C(0,0): seeding s on both sides costs exactly s.
	e := newEngine(t, 10)
	s := fixedpoint.FromInt64(25)

	base, err := e.Cost(new(big.Int), new(big.Int))
	require.NoError(t, err)
	seeded, err := e.Cost(s, s)
	require.NoError(t, err)

	assertClose(t, new(big.Int).Add(s, base), seeded, 1000000)
}

func TestPrice_SymmetricMarket(t *testing.T) {
	e := newEngine(t, 10)
	q := fixedpoint.FromInt64(5)

	half, err := fixedpoint.Parse("0.5")
	require.NoError(t, err)

	yes, err := e.Price(q, q, domain.SideYes)
	require.NoError(t, err)
	no, err := e.Price(q, q, domain.SideNo)
	require.NoError(t, err)

	assertClose(t, half, yes, 100000)
	assertClose(t, half, no, 100000)
}

func TestPrice_SumsToOne(t *testing.T) {
	e := newEngine(t, 10)
	qYes := fixedpoint.FromInt64(42)
	qNo := fixedpoint.FromInt64(17)

	yes, err := e.Price(qYes, qNo, domain.SideYes)
	require.NoError(t, err)
	no, err := e.Price(qYes, qNo, domain.SideNo)
	require.NoError(t, err)

	assertClose(t, fixedpoint.One(), new(big.Int).Add(yes, no), 1000000)
}

func TestPrice_SkewFollowsInventory(t *testing.T) {
	e := newEngine(t, 10)
	yes, err := e.Price(fixedpoint.FromInt64(30), fixedpoint.FromInt64(10), domain.SideYes)
	require.NoError(t, err)
	no, err := e.Price(fixedpoint.FromInt64(30), fixedpoint.FromInt64(10), domain.SideNo)
	require.NoError(t, err)

	assert.Equal(t, 1, yes.Cmp(no), "heavier side must be priced higher")
	half, _ := fixedpoint.Parse("0.5")
	assert.Equal(t, 1, yes.Cmp(half))
}

func TestQuoteBuy_PositiveAndMonotonic(t *testing.T) {
	e := newEngine(t, 10)
	q := fixedpoint.FromInt64(5)

	small, err := e.QuoteBuy(q, q, domain.SideYes, fixedpoint.FromInt64(1))
	require.NoError(t, err)
	large, err := e.QuoteBuy(q, q, domain.SideYes, fixedpoint.FromInt64(10))
	require.NoError(t, err)

	assert.Equal(t, 1, small.Sign())
	assert.Equal(t, 1, large.Cmp(small), "larger buys must cost more")
}

func TestQuoteBuy_DustDeltaCostsPositive(t *testing.T) {
	// A one-unit buy must never be free, however hard truncation rounds the
	// cost difference down.
	e := newEngine(t, 10)
	cost, err := e.QuoteBuy(new(big.Int), new(big.Int), domain.SideYes, big.NewInt(1))
	require.NoError(t, err)
	assert.Equal(t, 1, cost.Sign())
}

func TestQuoteBuy_WorkedExample(t *testing.T) {
	// b=1, balanced inventory at 2.5/2.5, buying 1 YES:
	// C(3.5,2.5) - C(2.5,2.5) = 1 + ln(1+e^-1) - ln 2.
	e := newEngine(t, 1)
	q, err := fixedpoint.Parse("2.5")
	require.NoError(t, err)

	cost, err := e.QuoteBuy(q, q, domain.SideYes, fixedpoint.FromInt64(1))
	require.NoError(t, err)

	want, err := fixedpoint.Parse("0.620114506958277525")
	require.NoError(t, err)
	assertClose(t, want, cost, 1000000)
}

func TestQuoteBuy_CostBelowShareCount(t *testing.T) {
	// A buy can never cost more than one unit of collateral per share.
	e := newEngine(t, 10)
	q := fixedpoint.FromInt64(5)
	delta := fixedpoint.FromInt64(20)

	cost, err := e.QuoteBuy(q, q, domain.SideYes, delta)
	require.NoError(t, err)
	assert.Equal(t, -1, cost.Cmp(delta))
}

func TestQuoteBuy_InvalidDelta(t *testing.T) {
	e := newEngine(t, 10)
	q := fixedpoint.FromInt64(5)

	_, err := e.QuoteBuy(q, q, domain.SideYes, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
	_, err = e.QuoteBuy(q, q, domain.SideYes, new(big.Int))
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
	_, err = e.QuoteBuy(q, q, domain.SideYes, fixedpoint.FromInt64(-1))
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
}

func TestQuoteSell_InverseOfBuy(t *testing.T) {
	// Selling what was just bought refunds the same amount, modulo dust.
	e := newEngine(t, 10)
	qYes := fixedpoint.FromInt64(5)
	qNo := fixedpoint.FromInt64(5)
	delta := fixedpoint.FromInt64(3)

	cost, err := e.QuoteBuy(qYes, qNo, domain.SideYes, delta)
	require.NoError(t, err)

	after := new(big.Int).Add(qYes, delta)
	refund, err := e.QuoteSell(after, qNo, domain.SideYes, delta)
	require.NoError(t, err)

	assertClose(t, cost, refund, 1000000)
}

func TestQuoteSell_RejectsOversell(t *testing.T) {
	e := newEngine(t, 10)
	q := fixedpoint.FromInt64(5)

	_, err := e.QuoteSell(q, q, domain.SideYes, fixedpoint.FromInt64(6))
	assert.ErrorIs(t, err, domain.ErrInsufficientShares)
}

func TestMaxLoss(t *testing.T) {
	e := newEngine(t, 100)
	want, err := fixedpoint.Parse("69.314718055994530941")
	require.NoError(t, err)
	assertClose(t, want, e.MaxLoss(), 1000000)
}

func TestBoundedLoss_ExtremeOneSidedVolume(t *testing.T) {
	// Collateral collected plus the subsidy b*ln2 always covers the winning
	// side's claims, even for volumes far beyond Exp's raw domain.
	e := newEngine(t, 10)
	s := fixedpoint.FromInt64(5)
	delta := fixedpoint.FromInt64(100000)

	collected, err := e.QuoteBuy(s, s, domain.SideYes, delta)
	require.NoError(t, err)

	// Winning claims: every YES share pays out one collateral unit at most.
	claims := new(big.Int).Add(s, delta)
	funding := new(big.Int).Add(collected, new(big.Int).Add(e.MaxLoss(), s))
	funding.Add(funding, big.NewInt(1000000)) // integer-division dust
	assert.GreaterOrEqual(t, funding.Cmp(claims), 0)
}
