package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// TradeKind distinguishes the direction of a fill against the market maker.
type TradeKind string

const (
	TradeKindBuy  TradeKind = "buy"
	TradeKindSell TradeKind = "sell"
)

// Trade is a single executed fill against the automated market maker.
// Shares is the outcome-share delta and Collateral the payment (buy) or
// refund (sell), both at the fixedpoint scale.
type Trade struct {
	ID         string
	MarketID   string
	Account    common.Address
	Side       Side
	Kind       TradeKind
	Shares     *big.Int
	Collateral *big.Int
	CreatedAt  time.Time
}
