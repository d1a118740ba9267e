package application

import (
	"context"
	"time"

	"github.com/DanielPopoola/wallet-ledger/internal/domain"
)

// TransferRequest is what the application layer asks the bank gateway to
// execute: move Amount out of the wallet whose external UUID is WalletID,
// under IdempotencyKey.
type TransferRequest struct {
	IdempotencyKey string
	WalletID       string
	Amount         int64
}

// TransferOutcome classifies the bank's response, mirroring
// original_source's integrations/bank_client.py TransferOutcome enum.
type TransferOutcome string

const (
	OutcomeSuccess      TransferOutcome = "SUCCESS"
	OutcomeFinalFailure TransferOutcome = "FINAL_FAILURE"
	OutcomeUnknown      TransferOutcome = "UNKNOWN"
)

// TransferResult is the bank gateway's verdict for a single transfer
// attempt, grounded on original_source's TransferResult dataclass.
type TransferResult struct {
	Outcome       TransferOutcome
	BankReference string
	FailureReason string
}

func (r TransferResult) Success() bool      { return r.Outcome == OutcomeSuccess }
func (r TransferResult) IsFinalFailure() bool { return r.Outcome == OutcomeFinalFailure }
func (r TransferResult) IsUnknown() bool    { return r.Outcome == OutcomeUnknown }

// BankGateway is the port for the external bank transfer API, grounded on
// teacher's internal/application/ports.go BankClient interface, collapsed
// from the teacher's authorize/capture/void/refund verbs to the single
// transfer/query-status contract spec.md's bank API needs.
type BankGateway interface {
	Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error)
	// CanQueryStatus reports whether QueryStatus is supported by the
	// configured bank backend (some sandboxes do not expose it).
	CanQueryStatus() bool
	QueryStatus(ctx context.Context, idempotencyKey string) (*TransferResult, error)
}

// RateLimiter throttles outbound bank calls. AcquireResult mirrors
// original_source's rate_limiter.py AcquireResult dataclass.
type AcquireResult struct {
	WaitSeconds float64
	WaitEvents  int
}

type RateLimiter interface {
	Acquire(ctx context.Context, cost int) (AcquireResult, error)
}

// ErrRateLimiterUnavailable signals the limiter backend could not be
// reached; callers following original_source's _acquire_rate_limit must
// fail open (treat as a zero wait) rather than block bank calls.
var ErrRateLimiterUnavailable = domainRateLimiterUnavailable{}

type domainRateLimiterUnavailable struct{}

func (domainRateLimiterUnavailable) Error() string { return "rate limiter unavailable" }

// UnitOfWork runs fn inside a single database transaction, committing on a
// nil return and rolling back otherwise. Grounded on teacher's
// internal/adapters/postgres transaction coordinator and Haleralex's
// internal/application/ports/unit_of_work.go.
type UnitOfWork interface {
	Execute(ctx context.Context, fn func(ctx context.Context) error) error
}

// UnitOfWorkFactory builds a fresh UnitOfWork per logical operation.
type UnitOfWorkFactory interface {
	New() UnitOfWork
}

// WalletRepository is the persistence port for wallets.
type WalletRepository interface {
	Create(ctx context.Context, w *domain.Wallet) error
	FindByID(ctx context.Context, id int64) (*domain.Wallet, error)
	FindByExternalID(ctx context.Context, externalID string) (*domain.Wallet, error)
	// FindByIDForUpdate locks the wallet row; must be called after any
	// transaction row lock already held in the same unit of work, never
	// before, per spec.md's tx-before-wallet lock ordering.
	FindByIDForUpdate(ctx context.Context, id int64) (*domain.Wallet, error)
	// Credit adds amount unconditionally (deposits always succeed).
	Credit(ctx context.Context, id int64, amount int64) error
	// Debit subtracts amount only if the balance would stay non-negative,
	// returning ok=false when the guard fails (insufficient funds).
	Debit(ctx context.Context, id int64, amount int64) (ok bool, err error)
}

// TransactionFilter narrows TransactionRepository queries.
type TransactionFilter struct {
	Type   *domain.TransactionType
	Status *domain.TransactionStatus
}

// TransactionRepository is the persistence port for ledger transactions.
type TransactionRepository interface {
	Create(ctx context.Context, t *domain.Transaction) error
	FindByID(ctx context.Context, id int64) (*domain.Transaction, error)
	FindByIDForUpdate(ctx context.Context, id int64) (*domain.Transaction, error)
	FindByIdempotencyKey(ctx context.Context, key string) (*domain.Transaction, error)
	Update(ctx context.Context, t *domain.Transaction) error

	// ClaimNextDueWithdrawal locks and returns the oldest SCHEDULED
	// withdrawal whose execute_at has arrived, skipping rows already
	// locked by other workers. Returns nil, nil when none are due.
	ClaimNextDueWithdrawal(ctx context.Context, now time.Time) (*domain.Transaction, error)

	// ClaimStaleProcessingWithdrawal locks and returns one PROCESSING
	// withdrawal whose updated_at is older than staleAfter, or nil, nil
	// when none are stale.
	ClaimStaleProcessingWithdrawal(ctx context.Context, now time.Time, staleAfter time.Duration) (*domain.Transaction, error)

	// FindStaleProcessing lists PROCESSING withdrawals older than
	// staleAfter, for the reconciler's Phase A sweep, without locking.
	FindStaleProcessing(ctx context.Context, now time.Time, staleAfter time.Duration, limit int) ([]*domain.Transaction, error)
}

// ReconciliationTaskRepository is the persistence port for reconciliation
// tasks.
type ReconciliationTaskRepository interface {
	Create(ctx context.Context, t *domain.WithdrawalReconciliationTask) error
	FindByTransactionID(ctx context.Context, transactionID int64) (*domain.WithdrawalReconciliationTask, error)
	FindByTransactionIDForUpdate(ctx context.Context, transactionID int64) (*domain.WithdrawalReconciliationTask, error)
	Update(ctx context.Context, t *domain.WithdrawalReconciliationTask) error
	// FindPending lists PENDING tasks ordered by created_at, id for the
	// reconciler's Phase B resolution pass.
	FindPending(ctx context.Context, limit int) ([]*domain.WithdrawalReconciliationTask, error)
}
