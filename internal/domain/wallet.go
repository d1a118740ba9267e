package domain

import "github.com/google/uuid"

// Wallet holds a non-negative integer balance in minor currency units.
// Balance arithmetic is never performed in memory against a read value;
// callers rely on the repository's conditional UPDATE guards (see
// internal/infrastructure/postgres) to keep concurrent debits race-free.
type Wallet struct {
	ID        int64
	ExternalID uuid.UUID
	Balance   int64
}

// NewWallet constructs an empty wallet ready for persistence.
func NewWallet() *Wallet {
	return &Wallet{
		ExternalID: uuid.New(),
		Balance:    0,
	}
}

// CanDebit reports whether amount can be subtracted without the balance
// going negative. This is an optimistic, pre-transaction check only; the
// authoritative guard is the repository's conditional UPDATE.
func (w *Wallet) CanDebit(amount int64) bool {
	return amount > 0 && w.Balance >= amount
}
