package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/DanielPopoola/wallet-ledger/internal/application"
	"github.com/DanielPopoola/wallet-ledger/internal/config"
	"github.com/DanielPopoola/wallet-ledger/internal/domain"
)

// Reconciler runs alongside the Executor: it sweeps PROCESSING withdrawals
// that have gone silent for too long (Phase A) and then resolves whatever
// pending reconciliation tasks it can by querying the bank directly
// (Phase B). Grounded structurally on the teacher's Reconciler (ticker
// Start/RunOnce, batchSize) and on original_source's
// wallets/tasks/reconcile_withdrawals.py for the exact two-phase protocol.
type Reconciler struct {
	uow             application.UnitOfWorkFactory
	wallets         application.WalletRepository
	txns            application.TransactionRepository
	reconciliations application.ReconciliationTaskRepository
	gateway         application.BankGateway
	cfg             config.WorkerConfig
	logger          *slog.Logger
}

func NewReconciler(
	uow application.UnitOfWorkFactory,
	wallets application.WalletRepository,
	txns application.TransactionRepository,
	reconciliations application.ReconciliationTaskRepository,
	gateway application.BankGateway,
	cfg config.WorkerConfig,
	logger *slog.Logger,
) *Reconciler {
	return &Reconciler{
		uow: uow, wallets: wallets, txns: txns, reconciliations: reconciliations,
		gateway: gateway, cfg: cfg, logger: logger,
	}
}

// ReconcilerSummary is the per-run counter set spec.md §4.6 requires.
type ReconcilerSummary struct {
	StaleMarkedUnknown int
	ResolvedSuccess    int
	ResolvedFailure    int
	Pending            int
	Resolved           int
}

// Start runs RunOnce on every loop_interval tick until ctx is cancelled.
func (r *Reconciler) Start(ctx context.Context, limit int) {
	if jitter := r.cfg.StartupJitterMax; jitter > 0 {
		sleepJitter(ctx, jitter)
	}

	ticker := time.NewTicker(r.cfg.LoopInterval)
	defer ticker.Stop()

	r.logger.Info("event=reconciler_started", "interval", r.cfg.LoopInterval, "limit", limit)

	for {
		summary := r.RunOnce(ctx, limit)
		r.logger.Info("event=reconciler_run_complete",
			"stale_marked_unknown", summary.StaleMarkedUnknown,
			"resolved_success", summary.ResolvedSuccess,
			"resolved_failure", summary.ResolvedFailure,
			"pending", summary.Pending,
			"resolved", summary.Resolved)

		select {
		case <-ctx.Done():
			r.logger.Info("event=reconciler_stopping")
			return
		case <-ticker.C:
			if jitter := r.cfg.LoopJitterMax; jitter > 0 {
				sleepJitter(ctx, jitter)
			}
		}
	}
}

// RunOnce executes Phase A (stale timeout sweep) followed by Phase B
// (pending task resolution), both bounded by limit.
func (r *Reconciler) RunOnce(ctx context.Context, limit int) ReconcilerSummary {
	var summary ReconcilerSummary
	summary.StaleMarkedUnknown = r.sweepStaleProcessing(ctx, limit)
	r.resolvePending(ctx, limit, &summary)
	return summary
}

// sweepStaleProcessing implements Phase A: any PROCESSING withdrawal whose
// updated_at predates now - processing_timeout_seconds is moved to UNKNOWN
// and gets a reconciliation task with reason
// PROCESSING_TIMEOUT_RECONCILIATION_REQUIRED.
func (r *Reconciler) sweepStaleProcessing(ctx context.Context, limit int) int {
	now := time.Now()
	stale, err := r.txns.FindStaleProcessing(ctx, now, r.cfg.WithdrawalProcessingTimeoutSeconds, limit)
	if err != nil {
		r.logger.Error("event=reconciler_sweep_failed", "error", err)
		return 0
	}

	marked := 0
	for _, candidate := range stale {
		err := r.uow.New().Execute(ctx, func(ctx context.Context) error {
			t, err := r.txns.FindByIDForUpdate(ctx, candidate.ID)
			if err != nil {
				return err
			}
			if t.Status != domain.StatusProcessing {
				return nil
			}
			if err := t.MarkUnknown(domain.ReasonProcessingTimeout); err != nil {
				return err
			}
			if err := r.txns.Update(ctx, t); err != nil {
				return err
			}
			return upsertReconciliationTaskFor(ctx, r.reconciliations, t.ID, domain.ReasonProcessingTimeout)
		})
		if err != nil {
			r.logger.Error("event=reconciler_sweep_item_failed", "transaction_id", candidate.ID, "error", err)
			continue
		}
		marked++
	}
	return marked
}

// resolvePending implements Phase B: walk PENDING tasks oldest-first and try
// to resolve each by re-checking its transaction's state, and, if still
// live, querying the bank directly.
func (r *Reconciler) resolvePending(ctx context.Context, limit int, summary *ReconcilerSummary) {
	tasks, err := r.reconciliations.FindPending(ctx, limit)
	if err != nil {
		r.logger.Error("event=reconciler_resolve_failed", "error", err)
		return
	}

	for _, task := range tasks {
		outcome, err := r.resolveOne(ctx, task)
		if err != nil {
			r.logger.Error("event=reconciler_resolve_item_failed", "task_id", task.ID, "transaction_id", task.TransactionID, "error", err)
			continue
		}
		switch outcome {
		case "resolved_success":
			summary.ResolvedSuccess++
			summary.Resolved++
		case "resolved_failure":
			summary.ResolvedFailure++
			summary.Resolved++
		case "already_resolved":
			summary.Resolved++
		case "pending":
			summary.Pending++
		}
	}
}

// resolveOne locks the task, its transaction, and (when a refund is needed)
// the wallet, then dispatches per spec.md §4.6.
func (r *Reconciler) resolveOne(ctx context.Context, task *domain.WithdrawalReconciliationTask) (string, error) {
	var outcome string

	err := r.uow.New().Execute(ctx, func(ctx context.Context) error {
		lockedTask, err := r.reconciliations.FindByTransactionIDForUpdate(ctx, task.TransactionID)
		if err != nil {
			return err
		}
		if lockedTask.Status != domain.ReconciliationPending {
			outcome = "already_resolved"
			return nil
		}

		t, err := r.txns.FindByIDForUpdate(ctx, lockedTask.TransactionID)
		if err != nil {
			return err
		}

		switch t.Status {
		case domain.StatusSucceeded:
			lockedTask.Resolve(domain.ReasonAlreadySucceeded)
			outcome = "already_resolved"
			return r.reconciliations.Update(ctx, lockedTask)
		case domain.StatusFailed:
			lockedTask.Resolve(domain.ReasonAlreadyFailed)
			outcome = "already_resolved"
			return r.reconciliations.Update(ctx, lockedTask)
		case domain.StatusUnknown, domain.StatusProcessing:
			// fall through to bank query below
		default:
			outcome = "pending"
			return nil
		}

		if !r.gateway.CanQueryStatus() {
			outcome = "pending"
			return nil
		}

		key := ""
		if t.IdempotencyKey != nil {
			key = *t.IdempotencyKey
		}
		result, err := r.gateway.QueryStatus(ctx, key)
		if err != nil {
			outcome = "pending"
			return nil
		}

		switch {
		case result.Success():
			if err := t.MarkSucceeded(result.BankReference); err != nil {
				return err
			}
			if t.BankReference != nil {
				t.ExternalReference = t.BankReference
			}
			if err := r.txns.Update(ctx, t); err != nil {
				return err
			}
			lockedTask.Resolve(domain.ReasonReconciledSuccess)
			outcome = "resolved_success"
			return r.reconciliations.Update(ctx, lockedTask)
		case result.IsFinalFailure():
			if _, err := r.wallets.FindByIDForUpdate(ctx, t.WalletID); err != nil {
				return err
			}
			if err := r.wallets.Credit(ctx, t.WalletID, t.Amount); err != nil {
				return err
			}
			if err := t.MarkFailed(result.FailureReason); err != nil {
				return err
			}
			if err := r.txns.Update(ctx, t); err != nil {
				return err
			}
			lockedTask.Resolve(domain.ReasonReconciledFinalFailure)
			outcome = "resolved_failure"
			return r.reconciliations.Update(ctx, lockedTask)
		default:
			// still UNKNOWN: leave the task PENDING for the next run.
			outcome = "pending"
			return nil
		}
	})
	if err != nil && errors.Is(err, domain.ErrReconciliationNotFound) {
		return "pending", nil
	}
	return outcome, err
}
