package domain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Position holds one account's outcome-share balances in a single market.
type Position struct {
	Account common.Address
	Yes     *big.Int
	No      *big.Int
}

// Balance returns the balance on the given side.
func (p Position) Balance(side Side) *big.Int {
	if side == SideYes {
		return p.Yes
	}
	return p.No
}
