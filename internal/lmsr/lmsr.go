// Package lmsr implements the Logarithmic Market Scoring Rule cost function
// for binary outcome markets.
//
// The market maker charges C(qYes+d, qNo) - C(qYes, qNo) for d shares, where
//
//	C(qYes, qNo) = b * ln(exp(qYes/b) + exp(qNo/b))
//
// and b is the liquidity parameter. The maker's aggregate loss across every
// trading path and outcome is bounded by b*ln(2).
package lmsr

import (
	"fmt"
	"math/big"

	"github.com/outcomelab/marketd/internal/domain"
	"github.com/outcomelab/marketd/internal/fixedpoint"
)

// Engine prices trades for one market. It is stateless apart from the
// immutable liquidity parameter; callers pass the current outstanding
// quantities on every call.
type Engine struct {
	b *big.Int
}

// New creates a pricing engine with the given fixed-point liquidity
// parameter, which must be strictly positive.
func New(b *big.Int) (*Engine, error) {
	if b == nil || b.Sign() <= 0 {
		return nil, fmt.Errorf("lmsr: %w: liquidity parameter must be positive", domain.ErrInvalidParams)
	}
	return &Engine{b: new(big.Int).Set(b)}, nil
}

// B returns a copy of the liquidity parameter.
func (e *Engine) B() *big.Int { return new(big.Int).Set(e.b) }

// Cost evaluates the cost function at the given outstanding quantities. The
// evaluation goes through log-sum-exp so the exponential arguments never
// exceed zero; a direct ln(exp+exp) would overflow for realistic volumes.
func (e *Engine) Cost(qYes, qNo *big.Int) (*big.Int, error) {
	lse, err := fixedpoint.LogSumExp(
		fixedpoint.Div(qYes, e.b),
		fixedpoint.Div(qNo, e.b),
	)
	if err != nil {
		return nil, fmt.Errorf("lmsr: cost: %w", err)
	}
	return fixedpoint.Mul(e.b, lse), nil
}

// QuoteBuy returns the payment required to buy delta shares of side at the
// given outstanding quantities. It is pure: no state is read or written
// beyond the arguments.
func (e *Engine) QuoteBuy(qYes, qNo *big.Int, side domain.Side, delta *big.Int) (*big.Int, error) {
	if delta == nil || delta.Sign() <= 0 {
		return nil, fmt.Errorf("lmsr: quote buy: %w", domain.ErrInvalidAmount)
	}

	before, err := e.Cost(qYes, qNo)
	if err != nil {
		return nil, err
	}
	after, err := e.Cost(bump(qYes, qNo, side, delta))
	if err != nil {
		return nil, err
	}

	// The cost chain truncates toward zero. Buys charge one unit above the
	// truncated difference: a positive delta always quotes a positive cost,
	// and sells refund at most the truncated amount.
	cost := after.Sub(after, before)
	return cost.Add(cost, big.NewInt(1)), nil
}

// QuoteSell returns the refund for selling delta shares of side. delta must
// be positive and no larger than the outstanding quantity on that side.
func (e *Engine) QuoteSell(qYes, qNo *big.Int, side domain.Side, delta *big.Int) (*big.Int, error) {
	if delta == nil || delta.Sign() <= 0 {
		return nil, fmt.Errorf("lmsr: quote sell: %w", domain.ErrInvalidAmount)
	}
	if delta.Cmp(pick(qYes, qNo, side)) > 0 {
		return nil, fmt.Errorf("lmsr: quote sell: %w", domain.ErrInsufficientShares)
	}

	before, err := e.Cost(qYes, qNo)
	if err != nil {
		return nil, err
	}
	after, err := e.Cost(bump(qYes, qNo, side, new(big.Int).Neg(delta)))
	if err != nil {
		return nil, err
	}
	return before.Sub(before, after), nil
}

// Price returns the instantaneous price (implied probability) of side as a
// fixed-point value in [0, 1]. It is derived through the same log-sum-exp
// machinery as the cost function: P(side) = exp(q_side/b - logSumExp), whose
// exponential argument is never positive.
func (e *Engine) Price(qYes, qNo *big.Int, side domain.Side) (*big.Int, error) {
	a := fixedpoint.Div(qYes, e.b)
	c := fixedpoint.Div(qNo, e.b)
	lse, err := fixedpoint.LogSumExp(a, c)
	if err != nil {
		return nil, fmt.Errorf("lmsr: price: %w", err)
	}

	q := a
	if side == domain.SideNo {
		q = c
	}
	p, err := fixedpoint.Exp(q.Sub(q, lse))
	if err != nil {
		return nil, fmt.Errorf("lmsr: price: %w", err)
	}
	return p, nil
}

// MaxLoss returns the market maker's worst-case aggregate subsidy, b*ln(2).
func (e *Engine) MaxLoss() *big.Int {
	ln2, _ := fixedpoint.Ln(fixedpoint.FromInt64(2))
	return fixedpoint.Mul(e.b, ln2)
}

// bump returns (qYes, qNo) with delta applied to the given side.
func bump(qYes, qNo *big.Int, side domain.Side, delta *big.Int) (*big.Int, *big.Int) {
	if side == domain.SideYes {
		return new(big.Int).Add(qYes, delta), qNo
	}
	return qYes, new(big.Int).Add(qNo, delta)
}

// pick returns the quantity outstanding on the given side.
func pick(qYes, qNo *big.Int, side domain.Side) *big.Int {
	if side == domain.SideYes {
		return qYes
	}
	return qNo
}
