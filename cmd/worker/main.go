// Command worker runs the executor and reconciler loops that drive
// deferred withdrawal execution (SPEC_FULL.md §4.5/§4.6), wired with the
// CLI surface spec.md §6 names: --limit, --loop, --sleep-seconds,
// --reconcile-limit. Grounded on the teacher's cmd/gateway/main.go wiring
// order and graceful-shutdown shape, generalized from an HTTP server to
// two worker goroutines under one cancellable context.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/DanielPopoola/wallet-ledger/internal/application"
	"github.com/DanielPopoola/wallet-ledger/internal/config"
	"github.com/DanielPopoola/wallet-ledger/internal/infrastructure/bank"
	"github.com/DanielPopoola/wallet-ledger/internal/infrastructure/postgres"
	"github.com/DanielPopoola/wallet-ledger/internal/infrastructure/ratelimit"
	"github.com/DanielPopoola/wallet-ledger/internal/logging"
	"github.com/DanielPopoola/wallet-ledger/internal/worker"
)

func main() {
	limit := flag.Int("limit", 50, "maximum withdrawals the executor claims per run")
	reconcileLimit := flag.Int("reconcile-limit", 50, "maximum items the reconciler processes per phase per run")
	loop := flag.Bool("loop", false, "keep running, sleeping sleep-seconds between runs, instead of exiting after one run")
	sleepSeconds := flag.Float64("sleep-seconds", 5, "seconds to sleep between runs when -loop is set")
	flag.Parse()

	if *limit <= 0 {
		fmt.Fprintln(os.Stderr, "validation error: -limit must be > 0")
		os.Exit(2)
	}
	if *reconcileLimit <= 0 {
		fmt.Fprintln(os.Stderr, "validation error: -reconcile-limit must be > 0")
		os.Exit(2)
	}
	if *sleepSeconds < 0 {
		fmt.Fprintln(os.Stderr, "validation error: -sleep-seconds must be >= 0")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "validation error: ", err)
		os.Exit(2)
	}

	logger := logging.New(cfg.Logger, os.Stdout)

	db, err := postgres.Connect(ctx, &cfg.Database, logger)
	if err != nil {
		logger.Error("event=db_connect_failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	wallets := postgres.NewWalletRepository(db)
	txns := postgres.NewTransactionRepository(db)
	reconciliations := postgres.NewReconciliationRepository(db)
	uow := postgres.NewUnitOfWorkFactory(db)

	txnRepoConcrete := txns.(*postgres.TransactionRepository)
	idemp := application.NewIdempotencyService(txns, txnRepoConcrete.TryInstallIdempotencyKey)

	limiter := ratelimit.Build(ctx, cfg.RateLimit, logger)
	gateway := bank.NewHTTPBankGateway(cfg.Bank, limiter, logger)

	executor := worker.NewExecutor(uow, wallets, txns, reconciliations, idemp, gateway, limiter, cfg.Worker, cfg.Bank.HonorsIdempotency, logger)
	reconciler := worker.NewReconciler(uow, wallets, txns, reconciliations, gateway, cfg.Worker, logger)

	sleepJitter(ctx, cfg.Worker.StartupJitterMax)

runLoop:
	for {
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			summary := executor.RunOnce(ctx, *limit)
			logger.Info("event=executor_run_complete",
				"processed", summary.Processed, "succeeded", summary.Succeeded,
				"failed", summary.Failed, "insufficient_funds", summary.InsufficientFunds,
				"reconciliation_queued", summary.ReconciliationQueued, "unknown", summary.Unknown)
		}()
		go func() {
			defer wg.Done()
			summary := reconciler.RunOnce(ctx, *reconcileLimit)
			logger.Info("event=reconciler_run_complete",
				"stale_marked_unknown", summary.StaleMarkedUnknown,
				"resolved_success", summary.ResolvedSuccess,
				"resolved_failure", summary.ResolvedFailure,
				"pending", summary.Pending,
				"resolved", summary.Resolved)
		}()
		wg.Wait()

		if !*loop {
			break
		}
		if ctx.Err() != nil {
			break
		}

		select {
		case <-ctx.Done():
			break runLoop
		case <-time.After(time.Duration(*sleepSeconds * float64(time.Second))):
		}
		sleepJitter(ctx, cfg.Worker.LoopJitterMax)
	}

	logger.Info("event=worker_exit")
}

func sleepJitter(ctx context.Context, max time.Duration) {
	if max <= 0 {
		return
	}
	d := time.Duration(rand.Int63n(int64(max)))
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
