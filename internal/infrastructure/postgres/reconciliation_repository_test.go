package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/DanielPopoola/wallet-ledger/internal/domain"
	"github.com/DanielPopoola/wallet-ledger/internal/infrastructure/postgres"
	"github.com/DanielPopoola/wallet-ledger/internal/testhelpers"
	"github.com/stretchr/testify/require"
)

func TestReconciliationRepository_CreateFindResolve(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	td := testhelpers.SetupTestDatabase(t)
	defer td.Cleanup(t)
	t.Cleanup(func() { td.CleanTables(t) })

	wallets := postgres.NewWalletRepository(td.DB)
	txns := postgres.NewTransactionRepository(td.DB)
	reconciliations := postgres.NewReconciliationRepository(td.DB)
	ctx := context.Background()
	w := seedWallet(t, wallets)

	wd, err := domain.NewScheduledWithdrawal(w.ID, 500, time.Now().Add(-time.Minute), "key-reconcile")
	require.NoError(t, err)
	require.NoError(t, txns.Create(ctx, wd))

	task := domain.NewReconciliationTask(wd.ID, domain.ReasonUnknownTransferOutcome)
	require.NoError(t, reconciliations.Create(ctx, task))
	require.NotZero(t, task.ID)

	pending, err := reconciliations.FindPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, task.ID, pending[0].ID)

	found, err := reconciliations.FindByTransactionID(ctx, wd.ID)
	require.NoError(t, err)
	require.Equal(t, domain.ReconciliationPending, found.Status)

	found.Resolve(domain.ReasonReconciledSuccess)
	require.NoError(t, reconciliations.Update(ctx, found))

	pending, err = reconciliations.FindPending(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, pending)
}

func TestReconciliationRepository_FindByTransactionID_NotFound(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	td := testhelpers.SetupTestDatabase(t)
	defer td.Cleanup(t)
	t.Cleanup(func() { td.CleanTables(t) })

	repo := postgres.NewReconciliationRepository(td.DB)
	_, err := repo.FindByTransactionID(context.Background(), 999999)
	require.ErrorIs(t, err, domain.ErrReconciliationNotFound)
}
