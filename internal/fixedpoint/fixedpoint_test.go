package fixedpoint

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// assertClose asserts |got - want| <= tol, all at the package scale.
func assertClose(t *testing.T, want, got *big.Int, tol int64) {
	t.Helper()
	diff := new(big.Int).Sub(got, want)
	diff.Abs(diff)
	assert.LessOrEqual(t, diff.Cmp(big.NewInt(tol)), 0,
		"want %s, got %s", Format(want), Format(got))
}

func TestExp_SaturationBoundConstant(t *testing.T) {
	// The saturation bound is ln(1e-18), whose magnitude does not fit in an
	// int64 at the package scale.
	bound, err := Parse("-41.446531673892822313")
	require.NoError(t, err)
	assert.Equal(t, bound, expLower)

	// At the bound e^x is around one representable unit.
	v, err := Exp(bound)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, v.Sign(), 0)
	assert.LessOrEqual(t, v.Cmp(big.NewInt(10)), 0)

	// Just below it, Exp saturates to exactly zero.
	below := new(big.Int).Sub(bound, big.NewInt(1))
	v, err = Exp(below)
	require.NoError(t, err)
	assert.Zero(t, v.Sign())
}

func TestParse_WholeAndFractional(t *testing.T) {
	v, err := Parse("2.5")
	require.NoError(t, err)
	assert.Equal(t, "2500000000000000000", v.String())

	v, err = Parse("-0.125")
	require.NoError(t, err)
	assert.Equal(t, "-125000000000000000", v.String())

	v, err = Parse("10")
	require.NoError(t, err)
	assert.Equal(t, FromInt64(10), v)

	v, err = Parse(".5")
	require.NoError(t, err)
	assert.Equal(t, "500000000000000000", v.String())
}

func TestParse_Invalid(t *testing.T) {
	for _, s := range []string{"", ".", "abc", "1.2.3", "1.1234567890123456789"} {
		_, err := Parse(s)
		assert.Error(t, err, "input %q", s)
	}
}

func TestFormat_TrimsTrailingZeros(t *testing.T) {
	v, err := Parse("2.500")
	require.NoError(t, err)
	assert.Equal(t, "2.5", Format(v))

	assert.Equal(t, "0", Format(new(big.Int)))
	assert.Equal(t, "-3", Format(FromInt64(-3)))

	v, err = Parse("0.000000000000000001")
	require.NoError(t, err)
	assert.Equal(t, "0.000000000000000001", Format(v))
}

func TestFormat_RoundTrips(t *testing.T) {
	for _, s := range []string{"0", "1", "2.5", "-0.125", "1000000", "0.333333333333333333"} {
		v, err := Parse(s)
		require.NoError(t, err)
		assert.Equal(t, s, Format(v))
	}
}

func TestMulDiv_TruncateTowardZero(t *testing.T) {
	half := new(big.Int).Rsh(One(), 1)
	assert.Equal(t, FromInt64(1), Mul(FromInt64(2), half))

	// 1/3 * 3 loses the last unit to truncation.
	third := Div(One(), FromInt64(3))
	back := Mul(third, FromInt64(3))
	assertClose(t, One(), back, 3)

	// Negative operands truncate toward zero, not negative infinity.
	assert.Equal(t, "-500000000000000000", Div(FromInt64(-1), FromInt64(2)).String())
}

func TestExp_Identity(t *testing.T) {
	got, err := Exp(new(big.Int))
	require.NoError(t, err)
	assert.Equal(t, One(), got)
}

func TestExp_Ln2GivesTwo(t *testing.T) {
	got, err := Exp(new(big.Int).Set(ln2))
	require.NoError(t, err)
	assertClose(t, FromInt64(2), got, 1000)
}

func TestExp_One(t *testing.T) {
	// e = 2.718281828459045235...
	want, err := Parse("2.718281828459045235")
	require.NoError(t, err)
	got, err := Exp(One())
	require.NoError(t, err)
	assertClose(t, want, got, 1000)
}

func TestExp_NegativeSymmetry(t *testing.T) {
	// e^x * e^-x == 1
	x := FromInt64(5)
	pos, err := Exp(x)
	require.NoError(t, err)
	neg, err := Exp(new(big.Int).Neg(x))
	require.NoError(t, err)
	assertClose(t, One(), Mul(pos, neg), 1000000)
}

func TestExp_SaturatesToZero(t *testing.T) {
	got, err := Exp(FromInt64(-100))
	require.NoError(t, err)
	assert.Equal(t, 0, got.Sign())
}

func TestExp_OverflowDomain(t *testing.T) {
	_, err := Exp(FromInt64(136))
	assert.ErrorIs(t, err, ErrOverflow)

	// The documented upper bound itself is accepted.
	_, err = Exp(FromInt64(135))
	assert.NoError(t, err)
}

func TestLn_One(t *testing.T) {
	got, err := Ln(One())
	require.NoError(t, err)
	assertClose(t, new(big.Int), got, 10)
}

func TestLn_Two(t *testing.T) {
	got, err := Ln(FromInt64(2))
	require.NoError(t, err)
	assertClose(t, ln2, got, 10)
}

func TestLn_LargeValue(t *testing.T) {
	// ln(1e6) = 6*ln(10) = 13.815510557964274...
	want, err := Parse("13.815510557964274104")
	require.NoError(t, err)
	got, err := Ln(FromInt64(1000000))
	require.NoError(t, err)
	assertClose(t, want, got, 1000)
}

func TestLn_Domain(t *testing.T) {
	_, err := Ln(new(big.Int))
	assert.ErrorIs(t, err, ErrLnDomain)
	_, err = Ln(FromInt64(-1))
	assert.ErrorIs(t, err, ErrLnDomain)
}

func TestLn_InvertsExp(t *testing.T) {
	for _, n := range []int64{1, 2, 7, 30} {
		x := FromInt64(n)
		e, err := Exp(x)
		require.NoError(t, err)
		back, err := Ln(e)
		require.NoError(t, err)
		assertClose(t, x, back, 100000)
	}
}

func TestLogSumExp_Symmetric(t *testing.T) {
	// ln(e^0 + e^0) = ln 2
	got, err := LogSumExp(new(big.Int), new(big.Int))
	require.NoError(t, err)
	assertClose(t, ln2, got, 100)
}

func TestLogSumExp_DominantTerm(t *testing.T) {
	// For a >> c the result collapses to a.
	a := FromInt64(50)
	got, err := LogSumExp(a, new(big.Int))
	require.NoError(t, err)
	assertClose(t, a, got, 100)
}

func TestLogSumExp_Commutes(t *testing.T) {
	a, c := FromInt64(3), FromInt64(-2)
	x, err := LogSumExp(a, c)
	require.NoError(t, err)
	y, err := LogSumExp(c, a)
	require.NoError(t, err)
	assert.Equal(t, x, y)
}

func TestLogSumExp_LargeArguments(t *testing.T) {
	// Arguments far beyond Exp's raw domain still work because only the
	// difference is exponentiated.
	a := FromInt64(100000)
	c := FromInt64(99999)
	got, err := LogSumExp(a, c)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Cmp(a))
	// Bounded above by max + ln2.
	upper := new(big.Int).Add(a, ln2)
	assert.LessOrEqual(t, got.Cmp(upper), 0)
}
