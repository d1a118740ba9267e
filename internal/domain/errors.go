package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a business logic error, grounded on teacher's
// internal/core/domain/errors.go DomainError shape (code + message + wrapped
// cause), adapted to wallet-ledger error codes.
type DomainError struct {
	Code    string
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// Sentinel errors for conditions that do not carry a code, grounded on
// original_source's wallets/domain/exceptions.py (WalletNotFound,
// InvalidAmount, InvalidExecuteAt, InvalidTransactionState,
// InvalidIdempotencyKey, IdempotencyConflict).
var (
	ErrWalletNotFound          = errors.New("wallet not found")
	ErrTransactionNotFound     = errors.New("transaction not found")
	ErrReconciliationNotFound  = errors.New("reconciliation task not found")
	ErrInvalidAmount           = errors.New("invalid amount")
	ErrInvalidExecuteAt        = errors.New("invalid execute_at")
	ErrInvalidTransactionState = errors.New("invalid transaction state")
	ErrInvalidIdempotencyKey   = errors.New("invalid idempotency key")
	ErrIdempotencyConflict     = errors.New("idempotency key conflict")
	ErrInsufficientBalance     = errors.New("insufficient balance")
)

const (
	ErrCodeInvalidTransition   = "INVALID_TRANSITION"
	ErrCodeInvalidAmount       = "INVALID_AMOUNT"
	ErrCodeInvalidExecuteAt    = "INVALID_EXECUTE_AT"
	ErrCodeWalletNotFound      = "WALLET_NOT_FOUND"
	ErrCodeTransactionNotFound = "TRANSACTION_NOT_FOUND"
	ErrCodeIdempotencyMismatch = "IDEMPOTENCY_MISMATCH"
	ErrCodeInsufficientBalance = "INSUFFICIENT_BALANCE"
	ErrCodeInvalidState        = "INVALID_STATE"
)

func NewInvalidTransitionError(from, to TransactionStatus) *DomainError {
	return &DomainError{
		Code:    ErrCodeInvalidTransition,
		Message: fmt.Sprintf("cannot transition from %s to %s", from, to),
	}
}

func NewInvalidAmountError(amount int64) *DomainError {
	return &DomainError{
		Code:    ErrCodeInvalidAmount,
		Message: fmt.Sprintf("invalid amount %d", amount),
		Err:     ErrInvalidAmount,
	}
}

func NewWalletNotFoundError(id string) *DomainError {
	return &DomainError{
		Code:    ErrCodeWalletNotFound,
		Message: fmt.Sprintf("wallet %s not found", id),
		Err:     ErrWalletNotFound,
	}
}

// IdempotencyConflict is raised when a client reuses an idempotency key
// against a request whose payload does not match the original, mirroring
// original_source's IdempotencyConflict exception.
type IdempotencyConflict struct {
	Key    string
	Reason string
}

func (e *IdempotencyConflict) Error() string {
	return fmt.Sprintf("idempotency conflict for key %s: %s", e.Key, e.Reason)
}

func (e *IdempotencyConflict) Unwrap() error {
	return ErrIdempotencyConflict
}

// IsErrorCode checks whether err is a DomainError carrying the given code.
func IsErrorCode(err error, code string) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code == code
	}
	return false
}
