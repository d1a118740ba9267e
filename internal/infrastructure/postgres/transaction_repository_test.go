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

func seedWallet(t *testing.T, repo interface {
	Create(ctx context.Context, w *domain.Wallet) error
}) *domain.Wallet {
	w := domain.NewWallet()
	w.Balance = 10_000
	require.NoError(t, repo.Create(context.Background(), w))
	return w
}

func TestTransactionRepository_ClaimNextDueWithdrawal(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	td := testhelpers.SetupTestDatabase(t)
	defer td.Cleanup(t)
	t.Cleanup(func() { td.CleanTables(t) })

	wallets := postgres.NewWalletRepository(td.DB)
	txns := postgres.NewTransactionRepository(td.DB)
	ctx := context.Background()
	w := seedWallet(t, wallets)

	due, err := domain.NewScheduledWithdrawal(w.ID, 500, time.Now().Add(-time.Minute), "key-due")
	require.NoError(t, err)
	require.NoError(t, txns.Create(ctx, due))

	notDue, err := domain.NewScheduledWithdrawal(w.ID, 500, time.Now().Add(time.Hour), "key-not-due")
	require.NoError(t, err)
	require.NoError(t, txns.Create(ctx, notDue))

	// The first claim runs inside an open unit of work so its row lock is
	// still held while a second claim runs on another pooled connection.
	err = postgres.NewUnitOfWorkFactory(td.DB).New().Execute(ctx, func(txCtx context.Context) error {
		claimed, err := txns.ClaimNextDueWithdrawal(txCtx, time.Now())
		require.NoError(t, err)
		require.NotNil(t, claimed)
		require.Equal(t, due.ID, claimed.ID)

		again, err := txns.ClaimNextDueWithdrawal(ctx, time.Now())
		require.NoError(t, err)
		require.Nil(t, again, "the only due withdrawal was already claimed (still locked, not committed)")
		return nil
	})
	require.NoError(t, err)
}

func TestTransactionRepository_FindStaleProcessing(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	td := testhelpers.SetupTestDatabase(t)
	defer td.Cleanup(t)
	t.Cleanup(func() { td.CleanTables(t) })

	wallets := postgres.NewWalletRepository(td.DB)
	txns := postgres.NewTransactionRepository(td.DB)
	ctx := context.Background()
	w := seedWallet(t, wallets)

	stuck, err := domain.NewScheduledWithdrawal(w.ID, 500, time.Now().Add(-time.Hour), "key-stuck")
	require.NoError(t, err)
	require.NoError(t, txns.Create(ctx, stuck))
	require.NoError(t, stuck.MarkProcessing())
	require.NoError(t, txns.Update(ctx, stuck))
	// Update stamps updated_at = now(); backdate it so the row reads as
	// PROCESSING for 20 minutes.
	_, err = td.DB.Pool.Exec(ctx, "UPDATE transactions SET updated_at = $1 WHERE id = $2", time.Now().Add(-20*time.Minute), stuck.ID)
	require.NoError(t, err)

	stale, err := txns.FindStaleProcessing(ctx, time.Now(), time.Minute, 10)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	require.Equal(t, stuck.ID, stale[0].ID)

	fresh, err := txns.FindStaleProcessing(ctx, time.Now(), 2*time.Hour, 10)
	require.NoError(t, err)
	require.Empty(t, fresh)
}

func TestTransactionRepository_TryInstallIdempotencyKey(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	td := testhelpers.SetupTestDatabase(t)
	defer td.Cleanup(t)
	t.Cleanup(func() { td.CleanTables(t) })

	wallets := postgres.NewWalletRepository(td.DB)
	repo := postgres.NewTransactionRepository(td.DB).(*postgres.TransactionRepository)
	ctx := context.Background()
	w := seedWallet(t, wallets)

	deposit, err := domain.NewDeposit(w.ID, 500, nil)
	require.NoError(t, err)
	txns := postgres.NewTransactionRepository(td.DB)
	require.NoError(t, txns.Create(ctx, deposit))

	ok, err := repo.TryInstallIdempotencyKey(ctx, deposit.ID, "generated-key")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = repo.TryInstallIdempotencyKey(ctx, deposit.ID, "another-key")
	require.NoError(t, err)
	require.False(t, ok, "second install must not overwrite an existing key")
}
