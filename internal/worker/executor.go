// Package worker runs the two background loops that drive deferred
// withdrawal execution: the Executor (claim due/stale withdrawals, call the
// bank, finalize) and the Reconciler (timeout sweep + pending-task
// resolution). Grounded structurally on the teacher's internal/worker
// package (ticker-driven Start(ctx) loops, RunOnce for tests, per-run
// summary logging) and on original_source's wallets/tasks/
// execute_withdrawals.py + reconcile_withdrawals.py for the exact protocol.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/DanielPopoola/wallet-ledger/internal/application"
	"github.com/DanielPopoola/wallet-ledger/internal/config"
	"github.com/DanielPopoola/wallet-ledger/internal/domain"
	"github.com/DanielPopoola/wallet-ledger/internal/infrastructure/postgres"
)

// Executor claims due (and, failing that, stale) SCHEDULED/PROCESSING
// withdrawals and drives them through the bank call to a terminal or
// UNKNOWN state. Grounded on original_source's execute_withdrawals.py
// run_once, and on the teacher's RetryWorker's ticker/batch shape.
type Executor struct {
	uow             application.UnitOfWorkFactory
	wallets         application.WalletRepository
	txns            application.TransactionRepository
	reconciliations application.ReconciliationTaskRepository
	idemp           *application.IdempotencyService
	gateway         application.BankGateway
	limiter         application.RateLimiter
	cfg             config.WorkerConfig
	honorsIdempotency bool
	logger          *slog.Logger
}

func NewExecutor(
	uow application.UnitOfWorkFactory,
	wallets application.WalletRepository,
	txns application.TransactionRepository,
	reconciliations application.ReconciliationTaskRepository,
	idemp *application.IdempotencyService,
	gateway application.BankGateway,
	limiter application.RateLimiter,
	cfg config.WorkerConfig,
	honorsIdempotency bool,
	logger *slog.Logger,
) *Executor {
	return &Executor{
		uow: uow, wallets: wallets, txns: txns, reconciliations: reconciliations,
		idemp: idemp, gateway: gateway, limiter: limiter,
		cfg: cfg, honorsIdempotency: honorsIdempotency, logger: logger,
	}
}

// ExecutorSummary is the per-run counter set spec.md §4.5 requires.
type ExecutorSummary struct {
	Processed            int
	Succeeded             int
	Failed                int
	InsufficientFunds     int
	ReconciliationQueued  int
	Unknown               int
}

// Start runs RunOnce on every loop_interval tick (plus startup jitter),
// until ctx is cancelled. Grounded on teacher's RetryWorker.Start.
func (e *Executor) Start(ctx context.Context, limit int) {
	if jitter := e.cfg.StartupJitterMax; jitter > 0 {
		sleepJitter(ctx, jitter)
	}

	ticker := time.NewTicker(e.cfg.LoopInterval)
	defer ticker.Stop()

	e.logger.Info("event=executor_started", "interval", e.cfg.LoopInterval, "limit", limit)

	for {
		summary := e.RunOnce(ctx, limit)
		e.logger.Info("event=executor_run_complete",
			"processed", summary.Processed, "succeeded", summary.Succeeded,
			"failed", summary.Failed, "insufficient_funds", summary.InsufficientFunds,
			"reconciliation_queued", summary.ReconciliationQueued, "unknown", summary.Unknown)

		select {
		case <-ctx.Done():
			e.logger.Info("event=executor_stopping")
			return
		case <-ticker.C:
			if jitter := e.cfg.LoopJitterMax; jitter > 0 {
				sleepJitter(ctx, jitter)
			}
		}
	}
}

// RunOnce claims and processes withdrawals until either limit items have
// been processed or no claim is available, per spec.md §4.5.
func (e *Executor) RunOnce(ctx context.Context, limit int) ExecutorSummary {
	var summary ExecutorSummary
	for summary.Processed < limit {
		claimed, outcome, err := e.claimOne(ctx)
		if err != nil {
			e.logger.Error("event=executor_lock_contention_exhausted", "error", err)
			return summary
		}
		if claimed == nil {
			return summary
		}
		summary.Processed++

		switch outcome {
		case "insufficient_funds":
			summary.Failed++
			summary.InsufficientFunds++
			continue
		case "unknown":
			summary.Unknown++
			summary.ReconciliationQueued++
			continue
		}

		result := e.callBank(ctx, claimed)
		final := e.finalize(ctx, claimed, result)
		switch final {
		case domain.StatusSucceeded:
			summary.Succeeded++
		case domain.StatusFailed:
			summary.Failed++
		case domain.StatusUnknown:
			summary.Unknown++
			summary.ReconciliationQueued++
		}
	}
	return summary
}

// claimOne runs the claim protocol: first a due SCHEDULED withdrawal, then
// (if none) a stale PROCESSING one. Returns claimed=nil, outcome="" when
// nothing is available. outcome is "insufficient_funds" or "unknown" when
// the claim unit of work itself reached a terminal/UNKNOWN state without
// needing a bank call.
func (e *Executor) claimOne(ctx context.Context) (claimed *domain.Transaction, outcome string, err error) {
	for attempt := 1; attempt <= e.cfg.ExecutorLockContentionMaxRetries; attempt++ {
		claimed, outcome, err = e.tryClaimOnce(ctx)
		if err == nil {
			return claimed, outcome, nil
		}
		if !postgres.IsLockContention(err) {
			return nil, "", err
		}
		e.logger.Warn("event=executor_lock_contention_retry", "attempt", attempt, "error", err)
		if !sleepBackoff(ctx, e.cfg.ExecutorLockContentionBackoff) {
			return nil, "", ctx.Err()
		}
	}
	return nil, "", fmt.Errorf("executor_lock_contention_exhausted after %d attempts: %w", e.cfg.ExecutorLockContentionMaxRetries, err)
}

func (e *Executor) tryClaimOnce(ctx context.Context) (*domain.Transaction, string, error) {
	var claimed *domain.Transaction
	outcome := ""
	now := time.Now()

	err := e.uow.New().Execute(ctx, func(ctx context.Context) error {
		t, err := e.txns.ClaimNextDueWithdrawal(ctx, now)
		if err != nil {
			return err
		}
		if t == nil {
			t, err = e.claimStaleProcessing(ctx, now)
			if err != nil {
				return err
			}
			if t == nil {
				return nil
			}
			if t.Status == domain.StatusUnknown {
				claimed = t
				outcome = "unknown"
				return nil
			}
			claimed = t
			return nil
		}

		if _, err := e.wallets.FindByIDForUpdate(ctx, t.WalletID); err != nil {
			return err
		}
		ok, err := e.wallets.Debit(ctx, t.WalletID, t.Amount)
		if err != nil {
			return err
		}
		if !ok {
			if err := t.MarkFailed("INSUFFICIENT_FUNDS"); err != nil {
				return err
			}
			if err := e.txns.Update(ctx, t); err != nil {
				return err
			}
			claimed = t
			outcome = "insufficient_funds"
			return nil
		}

		if _, err := e.idemp.EnsureWithdrawalKey(ctx, t); err != nil {
			return err
		}
		if err := t.MarkProcessing(); err != nil {
			return err
		}
		if err := e.txns.Update(ctx, t); err != nil {
			return err
		}
		claimed = t
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	return claimed, outcome, nil
}

// claimStaleProcessing implements the bank_honors_idempotency branch of
// stale-PROCESSING recovery, per spec.md §4.5.
func (e *Executor) claimStaleProcessing(ctx context.Context, now time.Time) (*domain.Transaction, error) {
	t, err := e.txns.ClaimStaleProcessingWithdrawal(ctx, now, e.cfg.WithdrawalProcessingStaleSeconds)
	if err != nil || t == nil {
		return nil, err
	}

	if e.honorsIdempotency {
		if _, err := e.idemp.EnsureWithdrawalKey(ctx, t); err != nil {
			return nil, err
		}
		// The row stays PROCESSING (MarkProcessing is not called: PROCESSING
		// -> PROCESSING is not a permitted transition); Update bumps
		// updated_at so the next sweep doesn't reclaim it again immediately
		// while this attempt is in flight.
		if err := e.txns.Update(ctx, t); err != nil {
			return nil, err
		}
		return t, nil
	}

	if err := t.MarkUnknown(domain.ReasonStaleProcessingNoIdempotency); err != nil {
		return nil, err
	}
	if err := e.txns.Update(ctx, t); err != nil {
		return nil, err
	}
	if err := upsertReconciliationTaskFor(ctx, e.reconciliations, t.ID, domain.ReasonStaleProcessingNoIdempotency); err != nil {
		return nil, err
	}
	return t, nil
}

func (e *Executor) callBank(ctx context.Context, t *domain.Transaction) *application.TransferResult {
	if e.limiter != nil {
		if _, err := e.limiter.Acquire(ctx, 1); err != nil {
			e.logger.Warn("event=rate_limiter_unavailable_fail_open", "error", err)
		}
	}
	wallet, err := e.wallets.FindByID(ctx, t.WalletID)
	if err != nil {
		return &application.TransferResult{
			Outcome:       application.OutcomeUnknown,
			FailureReason: fmt.Sprintf("wallet_lookup_failed:%v", err),
		}
	}
	key := ""
	if t.IdempotencyKey != nil {
		key = *t.IdempotencyKey
	}
	result, err := e.gateway.Transfer(ctx, application.TransferRequest{
		IdempotencyKey: key,
		WalletID:       wallet.ExternalID.String(),
		Amount:         t.Amount,
	})
	if err != nil {
		return &application.TransferResult{
			Outcome:       application.OutcomeUnknown,
			FailureReason: fmt.Sprintf("gateway_exception:%T", err),
		}
	}
	return result
}

func (e *Executor) finalize(ctx context.Context, claimed *domain.Transaction, result *application.TransferResult) domain.TransactionStatus {
	var final domain.TransactionStatus
	err := e.uow.New().Execute(ctx, func(ctx context.Context) error {
		t, err := e.txns.FindByIDForUpdate(ctx, claimed.ID)
		if err != nil {
			return err
		}
		if t.Status != domain.StatusProcessing {
			final = t.Status
			return nil
		}
		finalized, err := application.FinalizeWithdrawalOutcome(ctx, e.wallets, e.txns, e.reconciliations, t, result)
		if err != nil {
			return err
		}
		final = finalized.Status
		return nil
	})
	if err != nil {
		e.logger.Error("event=executor_finalize_failed", "transaction_id", claimed.ID, "error", err)
		return domain.StatusUnknown
	}
	return final
}

func upsertReconciliationTaskFor(ctx context.Context, repo application.ReconciliationTaskRepository, transactionID int64, reason string) error {
	existing, err := repo.FindByTransactionID(ctx, transactionID)
	if err != nil && !errors.Is(err, domain.ErrReconciliationNotFound) {
		return err
	}
	if existing != nil {
		return nil
	}
	return repo.Create(ctx, domain.NewReconciliationTask(transactionID, reason))
}

func sleepBackoff(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func sleepJitter(ctx context.Context, max time.Duration) {
	if max <= 0 {
		return
	}
	d := time.Duration(rand.Int63n(int64(max)))
	sleepBackoff(ctx, d)
}
