// Package domain defines the shared types, sentinel errors, and collaborator
// interfaces used across the market core: lifecycle states, trade sides,
// registry entries, and the store/cache/custody/event contracts.
package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// MarketStatus represents the lifecycle state of a market.
type MarketStatus string

const (
	StatusOpen     MarketStatus = "open"
	StatusClosed   MarketStatus = "closed"
	StatusResolved MarketStatus = "resolved"
)

// Side identifies one of the two outcomes of a binary market. The resolved
// outcome reuses the same type; an empty Side means "not resolved yet".
type Side string

const (
	SideYes Side = "yes"
	SideNo  Side = "no"
)

// Valid reports whether s is one of the two tradable sides.
func (s Side) Valid() bool {
	return s == SideYes || s == SideNo
}

// Opposite returns the other side of the market.
func (s Side) Opposite() Side {
	if s == SideYes {
		return SideNo
	}
	return SideYes
}

// MarketInfo is a point-in-time snapshot of a market aggregate. All amounts
// are fixed-point values at the fixedpoint scale.
type MarketInfo struct {
	ID              string
	Address         common.Address
	Oracle          common.Address
	Creator         common.Address
	TradingDeadline time.Time
	ResolveTime     time.Time
	LiquidityParam  *big.Int
	Status          MarketStatus
	Outcome         Side // empty until resolved
	Paused          bool
	YesShares       *big.Int
	NoShares        *big.Int
	Custody         *big.Int
	MetadataURI     string
	CreatedAt       time.Time
}
