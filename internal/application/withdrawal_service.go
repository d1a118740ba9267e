package application

import (
	"context"
	"fmt"
	"time"

	"github.com/DanielPopoola/wallet-ledger/internal/domain"
)

// WithdrawalService implements schedule_withdrawal and the direct
// execute_withdrawal use case, grounded on original_source's
// wallets/domain/services.py WithdrawalService.
type WithdrawalService struct {
	uow             UnitOfWorkFactory
	wallets         WalletRepository
	txns            TransactionRepository
	reconciliations ReconciliationTaskRepository
	idemp           *IdempotencyService
	gateway         BankGateway
	limiter         RateLimiter
}

func NewWithdrawalService(uow UnitOfWorkFactory, wallets WalletRepository, txns TransactionRepository, reconciliations ReconciliationTaskRepository, idemp *IdempotencyService, gateway BankGateway, limiter RateLimiter) *WithdrawalService {
	return &WithdrawalService{uow: uow, wallets: wallets, txns: txns, reconciliations: reconciliations, idemp: idemp, gateway: gateway, limiter: limiter}
}

// ScheduleResult reports the outcome of scheduling a withdrawal.
type ScheduleResult struct {
	Transaction *domain.Transaction
	Created     bool
}

// ScheduleWithdrawal records a withdrawal to be picked up later by the
// executor worker. Funds are not reserved at schedule time; the executor's
// claim protocol performs the actual debit. Grounded on original_source's
// schedule_withdrawal, which likewise defers the debit.
func (s *WithdrawalService) ScheduleWithdrawal(ctx context.Context, walletID int64, amount int64, executeAt time.Time, idempotencyKey string) (*ScheduleResult, error) {
	if err := domain.ValidatePositiveAmount(amount); err != nil {
		return nil, NewInvalidInputError(err)
	}
	if err := domain.ValidateFutureExecuteAt(executeAt, time.Now()); err != nil {
		return nil, NewInvalidInputError(err)
	}

	var result ScheduleResult
	err := s.uow.New().Execute(ctx, func(ctx context.Context) error {
		if _, err := s.wallets.FindByID(ctx, walletID); err != nil {
			return err
		}

		if idempotencyKey == "" {
			key, err := GenerateIdempotencyKey()
			if err != nil {
				return err
			}
			t, err := domain.NewScheduledWithdrawal(walletID, amount, executeAt, key)
			if err != nil {
				return err
			}
			if err := s.txns.Create(ctx, t); err != nil {
				return err
			}
			result = ScheduleResult{Transaction: t, Created: true}
			return nil
		}

		existing, err := s.txns.FindByIdempotencyKey(ctx, idempotencyKey)
		if err != nil && err != domain.ErrTransactionNotFound {
			return err
		}
		if existing != nil {
			if existing.Type != domain.TransactionTypeWithdrawal ||
				existing.WalletID != walletID ||
				existing.Amount != amount ||
				existing.ExecuteAt == nil || !existing.ExecuteAt.Equal(executeAt) {
				return &domain.IdempotencyConflict{Key: idempotencyKey, Reason: "withdrawal payload does not match original request"}
			}
			result = ScheduleResult{Transaction: existing, Created: false}
			return nil
		}

		t, err := domain.NewScheduledWithdrawal(walletID, amount, executeAt, idempotencyKey)
		if err != nil {
			return err
		}
		if err := s.txns.Create(ctx, t); err != nil {
			return err
		}
		result = ScheduleResult{Transaction: t, Created: true}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("schedule withdrawal: %w", err)
	}
	return &result, nil
}

// ExecuteWithdrawal performs the direct, synchronous execution path for a
// single scheduled withdrawal: debit-and-mark-PROCESSING in one unit of
// work, then call the bank gateway outside any transaction, then finalize
// in a second unit of work. Grounded on original_source's
// WithdrawalService.execute_withdrawal. This is distinct from the
// executor worker's claim-based pipeline (internal/worker), which is the
// production path; this direct path exists for callers that want to force
// immediate execution of a single transaction (e.g. a future admin
// surface) rather than waiting for the next worker tick.
func (s *WithdrawalService) ExecuteWithdrawal(ctx context.Context, transactionID int64) (*domain.Transaction, error) {
	var claimed *domain.Transaction
	err := s.uow.New().Execute(ctx, func(ctx context.Context) error {
		t, err := s.txns.FindByIDForUpdate(ctx, transactionID)
		if err != nil {
			return err
		}
		if t.Type != domain.TransactionTypeWithdrawal {
			return fmt.Errorf("%w: transaction %d is not a withdrawal", domain.ErrInvalidTransactionState, transactionID)
		}
		if t.Status != domain.StatusScheduled {
			return fmt.Errorf("%w: transaction %d is %s, expected SCHEDULED", domain.ErrInvalidTransactionState, transactionID, t.Status)
		}
		if t.ExecuteAt == nil || t.ExecuteAt.After(time.Now()) {
			return fmt.Errorf("%w: transaction %d is not yet due", domain.ErrInvalidTransactionState, transactionID)
		}

		ok, err := s.wallets.Debit(ctx, t.WalletID, t.Amount)
		if err != nil {
			return err
		}
		if !ok {
			reason := "INSUFFICIENT_FUNDS"
			if err := t.MarkFailed(reason); err != nil {
				return err
			}
			return s.txns.Update(ctx, t)
		}

		if _, err := s.idemp.EnsureWithdrawalKey(ctx, t); err != nil {
			return err
		}
		if err := t.MarkProcessing(); err != nil {
			return err
		}
		if err := s.txns.Update(ctx, t); err != nil {
			return err
		}
		claimed = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	if claimed == nil {
		// Insufficient-funds path already finalized inside the unit of
		// work above; re-fetch for the caller.
		return s.txns.FindByID(ctx, transactionID)
	}

	result := s.callBank(ctx, claimed)

	var finalized *domain.Transaction
	err = s.uow.New().Execute(ctx, func(ctx context.Context) error {
		t, err := s.txns.FindByIDForUpdate(ctx, claimed.ID)
		if err != nil {
			return err
		}
		if t.Status != domain.StatusProcessing {
			finalized = t
			return nil
		}
		finalized, err = FinalizeWithdrawalOutcome(ctx, s.wallets, s.txns, s.reconciliations, t, result)
		return err
	})
	if err != nil {
		return nil, err
	}
	return finalized, nil
}

func (s *WithdrawalService) callBank(ctx context.Context, t *domain.Transaction) *TransferResult {
	if s.limiter != nil {
		if _, err := s.limiter.Acquire(ctx, 1); err != nil {
			// Fail open: rate limiter being unavailable never blocks a
			// bank call, per original_source's _acquire_rate_limit.
			_ = err
		}
	}
	wallet, err := s.wallets.FindByID(ctx, t.WalletID)
	if err != nil {
		return &TransferResult{
			Outcome:       OutcomeUnknown,
			FailureReason: fmt.Sprintf("wallet_lookup_failed:%v", err),
		}
	}
	key := ""
	if t.IdempotencyKey != nil {
		key = *t.IdempotencyKey
	}
	result, err := s.gateway.Transfer(ctx, TransferRequest{
		IdempotencyKey: key,
		WalletID:       wallet.ExternalID.String(),
		Amount:         t.Amount,
	})
	if err != nil {
		// Any error the gateway itself returns (as opposed to a classified
		// TransferResult) is routed to UNKNOWN, not FINAL_FAILURE: the bank
		// may have received and processed the transfer even though the
		// client-side call errored, so a refund would risk double-crediting.
		return &TransferResult{Outcome: OutcomeUnknown, FailureReason: fmt.Sprintf("gateway_exception:%T", err)}
	}
	return result
}

// FinalizeWithdrawalOutcome applies a bank TransferResult to a PROCESSING
// transaction, refunding the wallet on final failure and upserting a
// reconciliation task on an unknown outcome. Shared by the direct
// execution path and the executor worker (internal/worker/executor.go).
func FinalizeWithdrawalOutcome(ctx context.Context, wallets WalletRepository, txns TransactionRepository, reconciliations ReconciliationTaskRepository, t *domain.Transaction, result *TransferResult) (*domain.Transaction, error) {
	switch {
	case result.Success():
		if err := t.MarkSucceeded(result.BankReference); err != nil {
			return nil, err
		}
		if t.BankReference != nil {
			t.ExternalReference = t.BankReference
		}
	case result.IsUnknown():
		if err := t.MarkUnknown(result.FailureReason); err != nil {
			return nil, err
		}
		if err := upsertReconciliationTask(ctx, reconciliations, t.ID, reconciliationReason(result.FailureReason)); err != nil {
			return nil, err
		}
	default:
		if _, err := wallets.FindByIDForUpdate(ctx, t.WalletID); err != nil {
			return nil, err
		}
		if err := wallets.Credit(ctx, t.WalletID, t.Amount); err != nil {
			return nil, err
		}
		if err := t.MarkFailed(result.FailureReason); err != nil {
			return nil, err
		}
	}
	if err := txns.Update(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// reconciliationReason prefers the bank's own failure reason over the
// generic UNKNOWN_TRANSFER_OUTCOME label, per spec.md §4.5 ("upsert a
// reconciliation task with reason UNKNOWN_TRANSFER_OUTCOME (or the
// specific bank reason)").
func reconciliationReason(bankReason string) string {
	if bankReason != "" {
		return bankReason
	}
	return domain.ReasonUnknownTransferOutcome
}

// upsertReconciliationTask creates a PENDING task for transactionID, or
// leaves an existing one alone if already present (e.g. a second UNKNOWN
// outcome for the same withdrawal after a worker restart).
func upsertReconciliationTask(ctx context.Context, reconciliations ReconciliationTaskRepository, transactionID int64, reason string) error {
	existing, err := reconciliations.FindByTransactionID(ctx, transactionID)
	if err != nil && err != domain.ErrReconciliationNotFound {
		return err
	}
	if existing != nil {
		return nil
	}
	return reconciliations.Create(ctx, domain.NewReconciliationTask(transactionID, reason))
}
