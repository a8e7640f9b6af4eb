package market

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/outcomelab/marketd/internal/domain"
)

// Close transitions OPEN -> CLOSED. Any caller may close once the trading
// deadline has passed; closing an already closed or resolved market fails.
func (m *Market) Close(ctx context.Context, caller common.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.status {
	case domain.StatusClosed:
		return fmt.Errorf("market: close: %w", domain.ErrAlreadyClosed)
	case domain.StatusResolved:
		return fmt.Errorf("market: close: %w", domain.ErrAlreadyResolved)
	}
	if m.now().Before(m.params.TradingDeadline) {
		return fmt.Errorf("market: close: %w", domain.ErrDeadlineNotMet)
	}

	m.status = domain.StatusClosed
	m.emit(ctx, domain.EventMarketClosed, map[string]any{
		"caller": caller.Hex(),
	})
	return nil
}

// Resolve sets the final outcome. Only the oracle may resolve, only at or
// after the resolve time, and only once. A still-open market is closed as
// part of the same atomic transition, emitting the close signal first.
func (m *Market) Resolve(ctx context.Context, caller common.Address, outcome domain.Side) error {
	if !outcome.Valid() {
		return fmt.Errorf("market: resolve: %w: outcome %q", domain.ErrInvalidParams, outcome)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if caller != m.params.Oracle {
		return fmt.Errorf("market: resolve: %w", domain.ErrUnauthorized)
	}
	if m.status == domain.StatusResolved {
		return fmt.Errorf("market: resolve: %w", domain.ErrAlreadyResolved)
	}
	if m.now().Before(m.params.ResolveTime) {
		return fmt.Errorf("market: resolve: %w", domain.ErrDeadlineNotMet)
	}

	wasOpen := m.status == domain.StatusOpen
	m.status = domain.StatusResolved
	m.outcome = outcome

	if wasOpen {
		m.emit(ctx, domain.EventMarketClosed, map[string]any{
			"caller": caller.Hex(),
		})
	}
	m.emit(ctx, domain.EventMarketResolved, map[string]any{
		"oracle":  caller.Hex(),
		"outcome": string(outcome),
	})
	return nil
}

// Pause suspends trading. Oracle only; pausing twice fails. Pause gates only
// price-affecting trades: close, resolve, redeem, and ledger transfers stay
// available.
func (m *Market) Pause(ctx context.Context, caller common.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if caller != m.params.Oracle {
		return fmt.Errorf("market: pause: %w", domain.ErrUnauthorized)
	}
	if m.paused {
		return fmt.Errorf("market: pause: %w", domain.ErrAlreadyPaused)
	}

	m.paused = true
	m.emit(ctx, domain.EventMarketPaused, map[string]any{
		"oracle": caller.Hex(),
	})
	return nil
}

// Unpause lifts a pause. Oracle only; unpausing an unpaused market fails.
func (m *Market) Unpause(ctx context.Context, caller common.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if caller != m.params.Oracle {
		return fmt.Errorf("market: unpause: %w", domain.ErrUnauthorized)
	}
	if !m.paused {
		return fmt.Errorf("market: unpause: %w", domain.ErrNotPaused)
	}

	m.paused = false
	m.emit(ctx, domain.EventMarketUnpaused, map[string]any{
		"oracle": caller.Hex(),
	})
	return nil
}
