package application

import (
	"context"
	"fmt"

	"github.com/DanielPopoola/wallet-ledger/internal/domain"
)

// WalletService implements the deposit use case, grounded on
// original_source's wallets/domain/services.py WalletService.deposit and
// the teacher's internal/application/services one-service-per-use-case
// layout.
type WalletService struct {
	uow      UnitOfWorkFactory
	wallets  WalletRepository
	txns     TransactionRepository
}

func NewWalletService(uow UnitOfWorkFactory, wallets WalletRepository, txns TransactionRepository) *WalletService {
	return &WalletService{uow: uow, wallets: wallets, txns: txns}
}

// CreateWallet opens a new wallet with a zero balance.
func (s *WalletService) CreateWallet(ctx context.Context) (*domain.Wallet, error) {
	w := domain.NewWallet()
	if err := s.uow.New().Execute(ctx, func(ctx context.Context) error {
		return s.wallets.Create(ctx, w)
	}); err != nil {
		return nil, fmt.Errorf("create wallet: %w", err)
	}
	return w, nil
}

// GetWallet fetches a wallet by its external (public) identifier.
func (s *WalletService) GetWallet(ctx context.Context, externalID string) (*domain.Wallet, error) {
	return s.wallets.FindByExternalID(ctx, externalID)
}

// DepositResult reports the outcome of a deposit, including whether a
// previously-stored idempotent response was replayed.
type DepositResult struct {
	Transaction *domain.Transaction
	Created     bool
}

// Deposit credits walletID with amount. When idempotencyKey is non-empty,
// a repeat call with the same key and payload replays the original result
// instead of crediting twice; a repeat call with a different payload
// returns an IdempotencyConflict.
func (s *WalletService) Deposit(ctx context.Context, walletID int64, amount int64, idempotencyKey string) (*DepositResult, error) {
	if err := domain.ValidatePositiveAmount(amount); err != nil {
		return nil, NewInvalidInputError(err)
	}

	var result DepositResult
	err := s.uow.New().Execute(ctx, func(ctx context.Context) error {
		if idempotencyKey == "" {
			if _, err := s.wallets.FindByIDForUpdate(ctx, walletID); err != nil {
				return err
			}
			if err := s.wallets.Credit(ctx, walletID, amount); err != nil {
				return err
			}
			t, err := domain.NewDeposit(walletID, amount, nil)
			if err != nil {
				return err
			}
			if err := s.txns.Create(ctx, t); err != nil {
				return err
			}
			result = DepositResult{Transaction: t, Created: true}
			return nil
		}

		existing, err := s.txns.FindByIdempotencyKey(ctx, idempotencyKey)
		if err != nil && err != domain.ErrTransactionNotFound {
			return err
		}
		if existing != nil {
			if existing.Type != domain.TransactionTypeDeposit || existing.WalletID != walletID || existing.Amount != amount {
				return &domain.IdempotencyConflict{Key: idempotencyKey, Reason: "deposit payload does not match original request"}
			}
			result = DepositResult{Transaction: existing, Created: false}
			return nil
		}

		if _, err := s.wallets.FindByIDForUpdate(ctx, walletID); err != nil {
			return err
		}
		if err := s.wallets.Credit(ctx, walletID, amount); err != nil {
			return err
		}
		key := idempotencyKey
		t, err := domain.NewDeposit(walletID, amount, &key)
		if err != nil {
			return err
		}
		if err := s.txns.Create(ctx, t); err != nil {
			return err
		}
		result = DepositResult{Transaction: t, Created: true}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("deposit: %w", err)
	}
	return &result, nil
}
