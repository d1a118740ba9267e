package domain

import "time"

// ReconciliationStatus tracks the lifecycle of a WithdrawalReconciliationTask.
type ReconciliationStatus string

const (
	ReconciliationPending  ReconciliationStatus = "PENDING"
	ReconciliationResolved ReconciliationStatus = "RESOLVED"
)

// Reconciliation reasons, grounded on original_source's
// reconcile_withdrawals.py task-creation and resolution call sites.
const (
	ReasonUnknownTransferOutcome           = "UNKNOWN_TRANSFER_OUTCOME"
	ReasonStaleProcessingNoIdempotency     = "STALE_PROCESSING_WITHOUT_BANK_IDEMPOTENCY"
	ReasonProcessingTimeout                = "PROCESSING_TIMEOUT_RECONCILIATION_REQUIRED"
	ReasonAlreadySucceeded                 = "ALREADY_SUCCEEDED"
	ReasonAlreadyFailed                    = "ALREADY_FAILED"
	ReasonReconciledSuccess                = "RECONCILED_SUCCESS"
	ReasonReconciledFinalFailure           = "RECONCILED_FINAL_FAILURE"
)

// WithdrawalReconciliationTask is a one-to-one companion row for a withdrawal
// transaction whose bank outcome needs manual or automated follow-up.
type WithdrawalReconciliationTask struct {
	ID            int64
	TransactionID int64
	Reason        string
	Status        ReconciliationStatus
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewReconciliationTask creates a PENDING task for the given transaction.
func NewReconciliationTask(transactionID int64, reason string) *WithdrawalReconciliationTask {
	return &WithdrawalReconciliationTask{
		TransactionID: transactionID,
		Reason:        reason,
		Status:        ReconciliationPending,
	}
}

// Resolve marks the task RESOLVED, updating its reason to reflect the
// outcome that resolved it.
func (t *WithdrawalReconciliationTask) Resolve(reason string) {
	t.Status = ReconciliationResolved
	t.Reason = reason
}
