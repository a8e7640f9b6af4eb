package domain

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")

	// Lifecycle and time-gate failures.
	ErrMarketNotOpen   = errors.New("market not open")
	ErrMarketPaused    = errors.New("market paused")
	ErrTradingEnded    = errors.New("trading deadline passed")
	ErrDeadlineNotMet  = errors.New("time gate not reached")
	ErrAlreadyClosed   = errors.New("market already closed")
	ErrAlreadyResolved = errors.New("market already resolved")
	ErrNotResolved     = errors.New("market not resolved")
	ErrAlreadyPaused   = errors.New("market already paused")
	ErrNotPaused       = errors.New("market not paused")

	// Balance and allowance failures.
	ErrInsufficientShares  = errors.New("insufficient share balance")
	ErrInsufficientFunds   = errors.New("insufficient collateral balance")
	ErrInsufficientCustody = errors.New("insufficient custody balance")
	ErrAllowanceExceeded   = errors.New("collateral allowance exceeded")
	ErrNothingToRedeem     = errors.New("nothing to redeem")

	// Parameter validation failures.
	ErrInvalidParams = errors.New("invalid parameters")
	ErrInvalidAmount = errors.New("amount must be positive")
	ErrBurnRecipient = errors.New("transfer to burn address")
)
