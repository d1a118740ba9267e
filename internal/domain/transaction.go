// Package domain holds the wallet ledger's core entities: Wallet, Transaction
// and WithdrawalReconciliationTask, their status lattices, and the policy
// validators guarding them. Adapted from the teacher's internal/core/domain
// package (payment.go, idempotency.go, errors.go) and original_source's
// wallets/models/*.py + wallets/domain/{constants,policies}.py.
package domain

import (
	"fmt"
	"time"
)

// TransactionType distinguishes a synchronous deposit from a deferred,
// worker-executed withdrawal.
type TransactionType string

const (
	TransactionTypeDeposit    TransactionType = "DEPOSIT"
	TransactionTypeWithdrawal TransactionType = "WITHDRAWAL"
)

func (t TransactionType) IsValid() bool {
	switch t {
	case TransactionTypeDeposit, TransactionTypeWithdrawal:
		return true
	}
	return false
}

// TransactionStatus is the withdrawal execution lattice. UNKNOWN is a
// first-class status (see DESIGN.md Open Question 1): it is reached when the
// bank's outcome cannot be classified and is resolved later by the
// reconciler into SUCCEEDED or FAILED.
type TransactionStatus string

const (
	StatusScheduled  TransactionStatus = "SCHEDULED"
	StatusProcessing TransactionStatus = "PROCESSING"
	StatusSucceeded  TransactionStatus = "SUCCEEDED"
	StatusFailed     TransactionStatus = "FAILED"
	StatusUnknown    TransactionStatus = "UNKNOWN"
)

func (s TransactionStatus) IsValid() bool {
	switch s {
	case StatusScheduled, StatusProcessing, StatusSucceeded, StatusFailed, StatusUnknown:
		return true
	}
	return false
}

func (s TransactionStatus) IsFinal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// CanTransitionTo reports whether the lattice permits moving from s to
// target. Deposits never transition; they are created already SUCCEEDED.
func (s TransactionStatus) CanTransitionTo(target TransactionStatus) bool {
	switch s {
	case StatusScheduled:
		return target == StatusProcessing || target == StatusFailed
	case StatusProcessing:
		return target == StatusSucceeded || target == StatusFailed || target == StatusUnknown
	case StatusUnknown:
		return target == StatusSucceeded || target == StatusFailed
	default:
		return false
	}
}

// Transaction is a single ledger entry against a wallet: either an
// immediately-settled deposit or a deferred withdrawal moving through the
// status lattice above.
type Transaction struct {
	ID                int64
	WalletID          int64
	Type              TransactionType
	Status            TransactionStatus
	Amount            int64 // minor currency units, always > 0
	ExecuteAt         *time.Time
	IdempotencyKey    *string
	ExternalReference *string
	BankReference     *string
	FailureReason     *string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// NewDeposit constructs a deposit transaction, already settled.
func NewDeposit(walletID int64, amount int64, idempotencyKey *string) (*Transaction, error) {
	if err := ValidatePositiveAmount(amount); err != nil {
		return nil, err
	}
	return &Transaction{
		WalletID:       walletID,
		Type:           TransactionTypeDeposit,
		Status:         StatusSucceeded,
		Amount:         amount,
		IdempotencyKey: idempotencyKey,
	}, nil
}

// NewScheduledWithdrawal constructs a withdrawal transaction awaiting
// executor pickup at or after executeAt.
func NewScheduledWithdrawal(walletID int64, amount int64, executeAt time.Time, idempotencyKey string) (*Transaction, error) {
	if err := ValidatePositiveAmount(amount); err != nil {
		return nil, err
	}
	if idempotencyKey == "" {
		return nil, fmt.Errorf("%w: withdrawal requires a non-empty idempotency key", ErrInvalidIdempotencyKey)
	}
	return &Transaction{
		WalletID:       walletID,
		Type:           TransactionTypeWithdrawal,
		Status:         StatusScheduled,
		Amount:         amount,
		ExecuteAt:      &executeAt,
		IdempotencyKey: &idempotencyKey,
	}, nil
}

// MarkProcessing transitions a withdrawal that has been claimed by the
// executor and had funds debited from its wallet.
func (t *Transaction) MarkProcessing() error {
	if !t.Status.CanTransitionTo(StatusProcessing) {
		return fmt.Errorf("%w: cannot move %s -> PROCESSING", ErrInvalidTransactionState, t.Status)
	}
	t.Status = StatusProcessing
	t.FailureReason = nil
	return nil
}

// MarkSucceeded finalizes a withdrawal as settled by the bank.
func (t *Transaction) MarkSucceeded(bankReference string) error {
	if !t.Status.CanTransitionTo(StatusSucceeded) {
		return fmt.Errorf("%w: cannot move %s -> SUCCEEDED", ErrInvalidTransactionState, t.Status)
	}
	t.Status = StatusSucceeded
	if bankReference != "" {
		t.BankReference = &bankReference
	}
	t.FailureReason = nil
	return nil
}

// MarkFailed finalizes a withdrawal as rejected; callers are responsible for
// refunding the wallet before or alongside this call.
func (t *Transaction) MarkFailed(reason string) error {
	if !t.Status.CanTransitionTo(StatusFailed) {
		return fmt.Errorf("%w: cannot move %s -> FAILED", ErrInvalidTransactionState, t.Status)
	}
	t.Status = StatusFailed
	t.FailureReason = &reason
	return nil
}

// MarkUnknown routes a withdrawal to reconciliation because the bank's
// outcome could not be classified, or because a PROCESSING row went stale
// and the bank does not honor idempotency keys.
func (t *Transaction) MarkUnknown(reason string) error {
	if !t.Status.CanTransitionTo(StatusUnknown) {
		return fmt.Errorf("%w: cannot move %s -> UNKNOWN", ErrInvalidTransactionState, t.Status)
	}
	t.Status = StatusUnknown
	t.FailureReason = &reason
	return nil
}

// IsDue reports whether a SCHEDULED withdrawal's execute_at has arrived.
func (t *Transaction) IsDue(now time.Time) bool {
	return t.Type == TransactionTypeWithdrawal &&
		t.Status == StatusScheduled &&
		t.ExecuteAt != nil &&
		!t.ExecuteAt.After(now)
}
