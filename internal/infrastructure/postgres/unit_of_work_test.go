package postgres_test

import (
	"context"
	"errors"
	"testing"

	"github.com/DanielPopoola/wallet-ledger/internal/domain"
	"github.com/DanielPopoola/wallet-ledger/internal/infrastructure/postgres"
	"github.com/DanielPopoola/wallet-ledger/internal/testhelpers"
	"github.com/stretchr/testify/require"
)

func TestUnitOfWork_CommitsOnSuccess(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	td := testhelpers.SetupTestDatabase(t)
	defer td.Cleanup(t)
	t.Cleanup(func() { td.CleanTables(t) })

	wallets := postgres.NewWalletRepository(td.DB)
	uow := postgres.NewUnitOfWorkFactory(td.DB).New()
	ctx := context.Background()

	w := domain.NewWallet()
	w.Balance = 250
	err := uow.Execute(ctx, func(ctx context.Context) error {
		return wallets.Create(ctx, w)
	})
	require.NoError(t, err)

	found, err := wallets.FindByID(ctx, w.ID)
	require.NoError(t, err)
	require.Equal(t, int64(250), found.Balance)
}

func TestUnitOfWork_RollsBackOnError(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	td := testhelpers.SetupTestDatabase(t)
	defer td.Cleanup(t)
	t.Cleanup(func() { td.CleanTables(t) })

	wallets := postgres.NewWalletRepository(td.DB)
	uow := postgres.NewUnitOfWorkFactory(td.DB)
	ctx := context.Background()

	boom := errors.New("boom")
	w := domain.NewWallet()
	err := uow.New().Execute(ctx, func(ctx context.Context) error {
		if err := wallets.Create(ctx, w); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.NotZero(t, w.ID, "Create assigns an id even though the insert is rolled back")

	_, findErr := wallets.FindByID(ctx, w.ID)
	require.ErrorIs(t, findErr, domain.ErrWalletNotFound, "wallet created inside a rolled-back unit of work must not be visible")
}
