package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DanielPopoola/wallet-ledger/internal/application"
	"github.com/DanielPopoola/wallet-ledger/internal/config"
	"github.com/DanielPopoola/wallet-ledger/internal/httpapi"
	"github.com/DanielPopoola/wallet-ledger/internal/infrastructure/bank"
	"github.com/DanielPopoola/wallet-ledger/internal/infrastructure/postgres"
	"github.com/DanielPopoola/wallet-ledger/internal/infrastructure/ratelimit"
	"github.com/DanielPopoola/wallet-ledger/internal/logging"
)

// main wires the deposit/schedule/query HTTP facade (SPEC_FULL.md §4.8).
// Graceful-shutdown shape (signal.NotifyContext -> serve in goroutine ->
// wait on ctx.Done -> bounded Shutdown) is carried verbatim from the
// teacher's original cmd/gateway/main.go.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadConfig()
	if err != nil {
		os.Exit(1)
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

	walletService := application.NewWalletService(uow, wallets, txns)
	withdrawalService := application.NewWithdrawalService(uow, wallets, txns, reconciliations, idemp, gateway, limiter)

	h := httpapi.NewHandler(walletService, withdrawalService, txns, logger)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      h.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("event=http_server_starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("event=http_server_failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("event=http_server_shutting_down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("event=http_server_forced_shutdown", "error", err)
	}

	logger.Info("event=http_server_exit")
}
