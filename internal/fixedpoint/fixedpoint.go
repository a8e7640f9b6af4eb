// Package fixedpoint implements signed fixed-point arithmetic with 18
// fractional decimal digits over math/big integers, the same scale the rest
// of the corpus uses for on-chain collateral amounts ("wei" convention).
//
// A value v represents the real number v / 1e18. Arithmetic helpers truncate
// toward zero. The transcendental kernel (Exp, Ln, LogSumExp) is written so
// that the pricing engine only ever exercises it on a safe domain: LogSumExp
// keeps both exponential arguments at or below zero and the logarithm
// argument at or above one, regardless of how large the share quantities
// grow.
package fixedpoint

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// Decimals is the number of fractional decimal digits.
const Decimals = 18

var (
	one = new(big.Int).Exp(big.NewInt(10), big.NewInt(Decimals), nil)
	two = new(big.Int).Lsh(one, 1)

	// ln(2) at the package scale, truncated.
	ln2 = big.NewInt(693147180559945309)

	// expLower is ln(1e-18): below it e^x is smaller than one representable
	// unit and Exp saturates to zero rather than produce a subnormal result.
	// The magnitude exceeds int64, hence the string form.
	expLower = mustBig("-41446531673892822313")

	// expUpper bounds Exp's documented domain. e^135 is far beyond any
	// realistic cost-function intermediate; inputs above it are rejected
	// instead of silently producing astronomically large integers.
	expUpper = new(big.Int).Mul(big.NewInt(135), one)
)

var (
	ErrLnDomain = errors.New("fixedpoint: ln of non-positive value")
	ErrOverflow = errors.New("fixedpoint: exp input above domain")
)

func mustBig(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("fixedpoint: bad integer literal " + s)
	}
	return v
}

// One returns the representation of 1.0.
func One() *big.Int { return new(big.Int).Set(one) }

// FromInt64 converts a whole-unit count to a fixed-point value.
func FromInt64(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), one)
}

// Mul returns a*b at the package scale, truncated toward zero.
func Mul(a, b *big.Int) *big.Int {
	p := new(big.Int).Mul(a, b)
	return p.Quo(p, one)
}

// Div returns a/b at the package scale, truncated toward zero. Division by
// zero panics, as with big.Int.
func Div(a, b *big.Int) *big.Int {
	p := new(big.Int).Mul(a, one)
	return p.Quo(p, b)
}

// Exp returns e^x. Inputs below the saturation bound return exactly zero;
// inputs above the upper domain bound return ErrOverflow.
//
// The computation reduces x = k*ln2 + r with |r| <= ln2/2, evaluates e^r by
// Taylor series, and applies the 2^k factor as an exact binary shift.
func Exp(x *big.Int) (*big.Int, error) {
	if x.Cmp(expLower) < 0 {
		return new(big.Int), nil
	}
	if x.Cmp(expUpper) > 0 {
		return nil, ErrOverflow
	}

	// k = round(x / ln2)
	k := new(big.Int)
	rem := new(big.Int)
	k.QuoRem(x, ln2, rem)
	remAbs2 := new(big.Int).Abs(rem)
	remAbs2.Lsh(remAbs2, 1)
	if remAbs2.Cmp(ln2) >= 0 {
		if x.Sign() >= 0 {
			k.Add(k, big.NewInt(1))
		} else {
			k.Sub(k, big.NewInt(1))
		}
	}

	// r = x - k*ln2
	r := new(big.Int).Mul(k, ln2)
	r.Sub(x, r)

	// e^r = sum r^n / n!
	sum := One()
	term := One()
	for n := int64(1); n <= 30; n++ {
		term.Mul(term, r)
		term.Quo(term, one)
		term.Quo(term, big.NewInt(n))
		if term.Sign() == 0 {
			break
		}
		sum.Add(sum, term)
	}

	return shiftByPow2(sum, k.Int64()), nil
}

// Ln returns the natural logarithm of x. It is an error for x <= 0; the
// pricing engine only calls it with x >= 1 via LogSumExp.
//
// x is normalized to m * 2^k with m in [1, 2); ln(m) is evaluated through the
// atanh series ln(m) = 2*atanh((m-1)/(m+1)), whose argument is at most 1/3.
func Ln(x *big.Int) (*big.Int, error) {
	if x.Sign() <= 0 {
		return nil, ErrLnDomain
	}

	k := int64(x.BitLen() - one.BitLen())
	m := shiftByPow2(x, -k)
	for m.Cmp(one) < 0 {
		k--
		m = shiftByPow2(x, -k)
	}
	for m.Cmp(two) >= 0 {
		k++
		m = shiftByPow2(x, -k)
	}

	// z = (m-1)/(m+1), z in [0, 1/3)
	num := new(big.Int).Sub(m, one)
	den := new(big.Int).Add(m, one)
	z := Div(num, den)
	z2 := Mul(z, z)

	// ln(m) = 2 * (z + z^3/3 + z^5/5 + ...)
	sum := new(big.Int).Set(z)
	term := new(big.Int).Set(z)
	for n := int64(3); n <= 41; n += 2 {
		term.Mul(term, z2)
		term.Quo(term, one)
		if term.Sign() == 0 {
			break
		}
		sum.Add(sum, new(big.Int).Quo(term, big.NewInt(n)))
	}
	sum.Lsh(sum, 1)

	kTerm := new(big.Int).Mul(big.NewInt(k), ln2)
	return sum.Add(sum, kTerm), nil
}

// LogSumExp returns max(a,c) + ln(exp(a-max) + exp(c-max)).
//
// This is the only sanctioned way for callers to evaluate ln(e^a + e^c):
// one exponential argument is always exactly zero and the other at most
// zero, so neither exponential can overflow, and the logarithm argument is
// always at least one, keeping Ln inside its domain for any share volume.
func LogSumExp(a, c *big.Int) (*big.Int, error) {
	m := a
	if c.Cmp(m) > 0 {
		m = c
	}

	ea, err := Exp(new(big.Int).Sub(a, m))
	if err != nil {
		return nil, fmt.Errorf("fixedpoint: logsumexp: %w", err)
	}
	ec, err := Exp(new(big.Int).Sub(c, m))
	if err != nil {
		return nil, fmt.Errorf("fixedpoint: logsumexp: %w", err)
	}

	l, err := Ln(ea.Add(ea, ec))
	if err != nil {
		return nil, fmt.Errorf("fixedpoint: logsumexp: %w", err)
	}
	return l.Add(l, m), nil
}

// shiftByPow2 returns v * 2^k for signed k, truncating toward negative
// infinity on right shifts. v is not modified.
func shiftByPow2(v *big.Int, k int64) *big.Int {
	out := new(big.Int).Set(v)
	switch {
	case k > 0:
		out.Lsh(out, uint(k))
	case k < 0:
		out.Rsh(out, uint(-k))
	}
	return out
}

// Parse converts a decimal string such as "2.5" or "-0.125" to a fixed-point
// value. At most 18 fractional digits are accepted.
func Parse(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("fixedpoint: parse: empty string")
	}

	neg := false
	switch s[0] {
	case '-':
		neg = true
		s = s[1:]
	case '+':
		s = s[1:]
	}

	intPart, fracPart, _ := strings.Cut(s, ".")
	if intPart == "" && fracPart == "" {
		return nil, fmt.Errorf("fixedpoint: parse %q: no digits", s)
	}
	if len(fracPart) > Decimals {
		return nil, fmt.Errorf("fixedpoint: parse %q: more than %d fractional digits", s, Decimals)
	}
	if intPart == "" {
		intPart = "0"
	}

	digits := intPart + fracPart + strings.Repeat("0", Decimals-len(fracPart))
	v, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return nil, fmt.Errorf("fixedpoint: parse %q: invalid number", s)
	}
	if neg {
		v.Neg(v)
	}
	return v, nil
}

// Format renders a fixed-point value as a decimal string with trailing
// fractional zeros trimmed.
func Format(v *big.Int) string {
	abs := new(big.Int).Abs(v)
	q, r := new(big.Int).QuoRem(abs, one, new(big.Int))

	sign := ""
	if v.Sign() < 0 {
		sign = "-"
	}
	if r.Sign() == 0 {
		return sign + q.String()
	}

	rs := r.String()
	frac := strings.Repeat("0", Decimals-len(rs)) + rs
	frac = strings.TrimRight(frac, "0")
	return sign + q.String() + "." + frac
}
