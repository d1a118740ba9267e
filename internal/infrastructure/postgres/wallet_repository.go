package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/DanielPopoola/wallet-ledger/internal/application"
	"github.com/DanielPopoola/wallet-ledger/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type WalletRepository struct {
	db *DB
}

func NewWalletRepository(db *DB) application.WalletRepository {
	return &WalletRepository{db: db}
}

func (r *WalletRepository) Create(ctx context.Context, w *domain.Wallet) error {
	if w.ExternalID == uuid.Nil {
		w.ExternalID = uuid.New()
	}
	const query = `INSERT INTO wallets (external_id, balance) VALUES ($1, $2) RETURNING id`
	return r.db.querier(ctx).QueryRow(ctx, query, w.ExternalID, w.Balance).Scan(&w.ID)
}

func (r *WalletRepository) FindByID(ctx context.Context, id int64) (*domain.Wallet, error) {
	const query = `SELECT id, external_id, balance FROM wallets WHERE id = $1`
	return r.scan(r.db.querier(ctx).QueryRow(ctx, query, id))
}

func (r *WalletRepository) FindByExternalID(ctx context.Context, externalID string) (*domain.Wallet, error) {
	const query = `SELECT id, external_id, balance FROM wallets WHERE external_id = $1`
	return r.scan(r.db.querier(ctx).QueryRow(ctx, query, externalID))
}

// FindByIDForUpdate locks the wallet row. Callers must already hold any
// transaction row lock in the same unit of work, per spec.md's
// tx-before-wallet lock ordering.
func (r *WalletRepository) FindByIDForUpdate(ctx context.Context, id int64) (*domain.Wallet, error) {
	const query = `SELECT id, external_id, balance FROM wallets WHERE id = $1 FOR UPDATE`
	return r.scan(r.db.querier(ctx).QueryRow(ctx, query, id))
}

func (r *WalletRepository) Credit(ctx context.Context, id int64, amount int64) error {
	const query = `UPDATE wallets SET balance = balance + $1 WHERE id = $2`
	tag, err := r.db.querier(ctx).Exec(ctx, query, amount, id)
	if err != nil {
		return fmt.Errorf("credit wallet %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrWalletNotFound
	}
	return nil
}

// Debit subtracts amount only if doing so keeps the balance non-negative,
// via a conditional UPDATE guard rather than a read-then-write, grounded
// on original_source's Wallet.objects.filter(balance__gte=amount).update(...).
func (r *WalletRepository) Debit(ctx context.Context, id int64, amount int64) (bool, error) {
	const query = `UPDATE wallets SET balance = balance - $1 WHERE id = $2 AND balance >= $1`
	tag, err := r.db.querier(ctx).Exec(ctx, query, amount, id)
	if err != nil {
		return false, fmt.Errorf("debit wallet %d: %w", id, err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *WalletRepository) scan(row pgx.Row) (*domain.Wallet, error) {
	var w domain.Wallet
	if err := row.Scan(&w.ID, &w.ExternalID, &w.Balance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrWalletNotFound
		}
		return nil, fmt.Errorf("scan wallet: %w", err)
	}
	return &w, nil
}
