package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// RegistryEntry is one row of the append-only market registry. Only the
// metadata URI is ever mutated after insertion, and only by the creator.
type RegistryEntry struct {
	ID          int64
	MarketID    string
	Address     common.Address
	Creator     common.Address
	MetadataURI string
	CreatedAt   time.Time
}
