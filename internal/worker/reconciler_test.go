package worker_test

import (
	"context"
	"testing"
	"time"

	"github.com/DanielPopoola/wallet-ledger/internal/application"
	"github.com/DanielPopoola/wallet-ledger/internal/domain"
	"github.com/DanielPopoola/wallet-ledger/internal/infrastructure/postgres"
	"github.com/DanielPopoola/wallet-ledger/internal/testhelpers"
	"github.com/DanielPopoola/wallet-ledger/internal/worker"
	"github.com/stretchr/testify/require"
)

type reconcilerFixture struct {
	db              *testhelpers.TestDatabase
	wallets         application.WalletRepository
	txns            application.TransactionRepository
	reconciliations application.ReconciliationTaskRepository
	gateway         *fakeGateway
	reconciler      *worker.Reconciler
}

func setupReconciler(t *testing.T) *reconcilerFixture {
	td := testhelpers.SetupTestDatabase(t)
	t.Cleanup(func() { td.Cleanup(t) })
	t.Cleanup(func() { td.CleanTables(t) })

	wallets := postgres.NewWalletRepository(td.DB)
	txns := postgres.NewTransactionRepository(td.DB)
	reconciliations := postgres.NewReconciliationRepository(td.DB)
	uow := postgres.NewUnitOfWorkFactory(td.DB)

	gw := &fakeGateway{}
	r := worker.NewReconciler(uow, wallets, txns, reconciliations, gw, testWorkerConfig(), testLogger())

	return &reconcilerFixture{db: td, wallets: wallets, txns: txns, reconciliations: reconciliations, gateway: gw, reconciler: r}
}

func seedStuckProcessing(t *testing.T, f *reconcilerFixture, balance, amount int64, staleFor time.Duration) (*domain.Wallet, *domain.Transaction) {
	ctx := context.Background()
	w := domain.NewWallet()
	w.Balance = balance
	require.NoError(t, f.wallets.Create(ctx, w))
	// A real PROCESSING withdrawal has already been debited by the
	// executor's claim.
	ok, err := f.wallets.Debit(ctx, w.ID, amount)
	require.NoError(t, err)
	require.True(t, ok)

	tx, err := domain.NewScheduledWithdrawal(w.ID, amount, time.Now().Add(-2*time.Hour), "idem-"+w.ExternalID.String())
	require.NoError(t, err)
	require.NoError(t, f.txns.Create(ctx, tx))
	require.NoError(t, tx.MarkProcessing())
	require.NoError(t, f.txns.Update(ctx, tx))

	if staleFor > 0 {
		backdateUpdatedAt(t, f.db, tx.ID, staleFor)
	}
	return w, tx
}

// backdateUpdatedAt directly rewrites updated_at so a freshly-created
// PROCESSING row reads as stale without sleeping in the test.
func backdateUpdatedAt(t *testing.T, td *testhelpers.TestDatabase, transactionID int64, age time.Duration) {
	_, err := td.DB.Pool.Exec(context.Background(),
		"UPDATE transactions SET updated_at = $1 WHERE id = $2", time.Now().Add(-age), transactionID)
	require.NoError(t, err)
}

func TestReconciler_SweepStaleProcessing_MarksUnknownAndQueuesTask(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	f := setupReconciler(t)
	_, tx := seedStuckProcessing(t, f, 10_000, 2_000, 20*time.Minute)

	summary := f.reconciler.RunOnce(context.Background(), 10)

	require.Equal(t, 1, summary.StaleMarkedUnknown)

	got, err := f.txns.FindByID(context.Background(), tx.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusUnknown, got.Status)

	task, err := f.reconciliations.FindByTransactionID(context.Background(), tx.ID)
	require.NoError(t, err)
	require.Equal(t, domain.ReasonProcessingTimeout, task.Reason)
}

func TestReconciler_SweepStaleProcessing_LeavesFreshProcessingAlone(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	f := setupReconciler(t)
	_, tx := seedStuckProcessing(t, f, 10_000, 2_000, 0)

	summary := f.reconciler.RunOnce(context.Background(), 10)

	require.Equal(t, 0, summary.StaleMarkedUnknown)

	got, err := f.txns.FindByID(context.Background(), tx.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusProcessing, got.Status)
}

func TestReconciler_ResolvePending_SuccessCreditsNothingAndMarksSucceeded(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	f := setupReconciler(t)
	ctx := context.Background()
	w, tx := seedStuckProcessing(t, f, 10_000, 2_000, 20*time.Minute)

	f.reconciler.RunOnce(ctx, 10) // Phase A: PROCESSING -> UNKNOWN + task

	f.gateway.canQueryStatus = true
	f.gateway.queryResult = &application.TransferResult{Outcome: application.OutcomeSuccess, BankReference: "bank-ref-9"}

	summary := f.reconciler.RunOnce(ctx, 10)

	require.Equal(t, 1, summary.ResolvedSuccess)
	require.Equal(t, 1, summary.Resolved)

	got, err := f.txns.FindByID(ctx, tx.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusSucceeded, got.Status)

	wallet, err := f.wallets.FindByID(ctx, w.ID)
	require.NoError(t, err)
	require.Equal(t, int64(8_000), wallet.Balance, "a reconciled success must not credit the wallet")

	task, err := f.reconciliations.FindByTransactionID(ctx, tx.ID)
	require.NoError(t, err)
	require.Equal(t, domain.ReconciliationResolved, task.Status)
	require.Equal(t, domain.ReasonReconciledSuccess, task.Reason)
}

func TestReconciler_ResolvePending_FinalFailureRefundsWallet(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	f := setupReconciler(t)
	ctx := context.Background()
	w, tx := seedStuckProcessing(t, f, 10_000, 2_000, 20*time.Minute)

	f.reconciler.RunOnce(ctx, 10)

	f.gateway.canQueryStatus = true
	f.gateway.queryResult = &application.TransferResult{Outcome: application.OutcomeFinalFailure, FailureReason: "account_closed"}

	summary := f.reconciler.RunOnce(ctx, 10)

	require.Equal(t, 1, summary.ResolvedFailure)

	got, err := f.txns.FindByID(ctx, tx.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusFailed, got.Status)

	wallet, err := f.wallets.FindByID(ctx, w.ID)
	require.NoError(t, err)
	require.Equal(t, int64(10_000), wallet.Balance, "a reconciled final failure must refund the original debit")

	task, err := f.reconciliations.FindByTransactionID(ctx, tx.ID)
	require.NoError(t, err)
	require.Equal(t, domain.ReasonReconciledFinalFailure, task.Reason)
}

func TestReconciler_ResolvePending_StillUnknownStaysPending(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	f := setupReconciler(t)
	ctx := context.Background()
	_, tx := seedStuckProcessing(t, f, 10_000, 2_000, 20*time.Minute)

	f.reconciler.RunOnce(ctx, 10)

	f.gateway.canQueryStatus = true
	f.gateway.queryResult = &application.TransferResult{Outcome: application.OutcomeUnknown, FailureReason: "still waiting"}

	summary := f.reconciler.RunOnce(ctx, 10)

	require.Equal(t, 1, summary.Pending)
	require.Equal(t, 0, summary.Resolved)

	task, err := f.reconciliations.FindByTransactionID(ctx, tx.ID)
	require.NoError(t, err)
	require.Equal(t, domain.ReconciliationPending, task.Status)

	got, err := f.txns.FindByID(ctx, tx.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusUnknown, got.Status)
}

func TestReconciler_ResolvePending_CannotQueryStatusStaysPending(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	f := setupReconciler(t)
	ctx := context.Background()
	seedStuckProcessing(t, f, 10_000, 2_000, 20*time.Minute)

	f.reconciler.RunOnce(ctx, 10)

	f.gateway.canQueryStatus = false

	summary := f.reconciler.RunOnce(ctx, 10)

	require.Equal(t, 1, summary.Pending)
	require.Empty(t, f.gateway.queryCalls, "QueryStatus must not be called when the gateway reports it cannot serve it")
}
