package domain

import (
	"fmt"
	"time"
)

// ValidatePositiveAmount mirrors original_source's
// wallets/domain/policies.py validate_positive_amount: amounts are whole
// minor-unit integers strictly greater than zero.
func ValidatePositiveAmount(amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("%w: amount must be > 0, got %d", ErrInvalidAmount, amount)
	}
	return nil
}

// ValidateFutureExecuteAt mirrors original_source's
// wallets/domain/policies.py validate_future_execute_at: execute_at must be
// strictly after now.
func ValidateFutureExecuteAt(executeAt, now time.Time) error {
	if !executeAt.After(now) {
		return fmt.Errorf("%w: execute_at %s must be strictly after now %s", ErrInvalidExecuteAt, executeAt, now)
	}
	return nil
}
