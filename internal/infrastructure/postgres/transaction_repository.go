package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/DanielPopoola/wallet-ledger/internal/application"
	"github.com/DanielPopoola/wallet-ledger/internal/domain"
	"github.com/jackc/pgx/v5"
)

type TransactionRepository struct {
	db *DB
}

func NewTransactionRepository(db *DB) application.TransactionRepository {
	return &TransactionRepository{db: db}
}

const transactionColumns = `id, wallet_id, type, status, amount, execute_at, idempotency_key,
	external_reference, bank_reference, failure_reason, created_at, updated_at`

func (r *TransactionRepository) Create(ctx context.Context, t *domain.Transaction) error {
	const query = `
		INSERT INTO transactions (wallet_id, type, status, amount, execute_at, idempotency_key,
			external_reference, bank_reference, failure_reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())
		RETURNING id, created_at, updated_at`
	return r.db.querier(ctx).QueryRow(ctx, query,
		t.WalletID, t.Type, t.Status, t.Amount, t.ExecuteAt, t.IdempotencyKey,
		t.ExternalReference, t.BankReference, t.FailureReason,
	).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
}

func (r *TransactionRepository) FindByID(ctx context.Context, id int64) (*domain.Transaction, error) {
	query := fmt.Sprintf(`SELECT %s FROM transactions WHERE id = $1`, transactionColumns)
	return r.scan(r.db.querier(ctx).QueryRow(ctx, query, id))
}

func (r *TransactionRepository) FindByIDForUpdate(ctx context.Context, id int64) (*domain.Transaction, error) {
	query := fmt.Sprintf(`SELECT %s FROM transactions WHERE id = $1 FOR UPDATE`, transactionColumns)
	return r.scan(r.db.querier(ctx).QueryRow(ctx, query, id))
}

func (r *TransactionRepository) FindByIdempotencyKey(ctx context.Context, key string) (*domain.Transaction, error) {
	query := fmt.Sprintf(`SELECT %s FROM transactions WHERE idempotency_key = $1`, transactionColumns)
	return r.scan(r.db.querier(ctx).QueryRow(ctx, query, key))
}

func (r *TransactionRepository) Update(ctx context.Context, t *domain.Transaction) error {
	const query = `
		UPDATE transactions
		SET status = $1, idempotency_key = $2, external_reference = $3, bank_reference = $4,
			failure_reason = $5, updated_at = now()
		WHERE id = $6
		RETURNING updated_at`
	err := r.db.querier(ctx).QueryRow(ctx, query,
		t.Status, t.IdempotencyKey, t.ExternalReference, t.BankReference, t.FailureReason, t.ID,
	).Scan(&t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrTransactionNotFound
	}
	return err
}

// ClaimNextDueWithdrawal locks and returns the oldest SCHEDULED withdrawal
// whose execute_at has arrived, skipping rows other workers already hold,
// grounded on original_source's execute_withdrawals.py SELECT ... FOR UPDATE
// SKIP LOCKED claim query.
func (r *TransactionRepository) ClaimNextDueWithdrawal(ctx context.Context, now time.Time) (*domain.Transaction, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM transactions
		WHERE type = $1 AND status = $2 AND execute_at <= $3
		ORDER BY execute_at, id
		FOR UPDATE SKIP LOCKED
		LIMIT 1`, transactionColumns)
	return r.claim(ctx, query, domain.TransactionTypeWithdrawal, domain.StatusScheduled, now)
}

// ClaimStaleProcessingWithdrawal locks and returns one PROCESSING withdrawal
// that has not been updated in staleAfter, for single-row stale recovery.
func (r *TransactionRepository) ClaimStaleProcessingWithdrawal(ctx context.Context, now time.Time, staleAfter time.Duration) (*domain.Transaction, error) {
	cutoff := now.Add(-staleAfter)
	query := fmt.Sprintf(`
		SELECT %s FROM transactions
		WHERE type = $1 AND status = $2 AND updated_at <= $3
		ORDER BY updated_at, id
		FOR UPDATE SKIP LOCKED
		LIMIT 1`, transactionColumns)
	return r.claim(ctx, query, domain.TransactionTypeWithdrawal, domain.StatusProcessing, cutoff)
}

func (r *TransactionRepository) claim(ctx context.Context, query string, args ...any) (*domain.Transaction, error) {
	t, err := r.scan(r.db.querier(ctx).QueryRow(ctx, query, args...))
	if errors.Is(err, domain.ErrTransactionNotFound) {
		return nil, nil
	}
	return t, err
}

// FindStaleProcessing lists PROCESSING withdrawals older than staleAfter
// without locking, for the reconciler's read-only Phase A sweep.
func (r *TransactionRepository) FindStaleProcessing(ctx context.Context, now time.Time, staleAfter time.Duration, limit int) ([]*domain.Transaction, error) {
	cutoff := now.Add(-staleAfter)
	query := fmt.Sprintf(`
		SELECT %s FROM transactions
		WHERE type = $1 AND status = $2 AND updated_at <= $3
		ORDER BY updated_at, id
		LIMIT $4`, transactionColumns)
	rows, err := r.db.querier(ctx).Query(ctx, query, domain.TransactionTypeWithdrawal, domain.StatusProcessing, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("query stale processing: %w", err)
	}
	defer rows.Close()

	var out []*domain.Transaction
	for rows.Next() {
		t, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// TryInstallIdempotencyKey conditionally sets idempotency_key on a
// transaction that does not yet have one, used by application.IdempotencyService
// to generate keys lazily for withdrawals scheduled without one. Returns
// ok=false if the row already has a key (lost the race to another worker).
func (r *TransactionRepository) TryInstallIdempotencyKey(ctx context.Context, transactionID int64, key string) (bool, error) {
	const query = `UPDATE transactions SET idempotency_key = $1, updated_at = now()
		WHERE id = $2 AND idempotency_key IS NULL`
	tag, err := r.db.querier(ctx).Exec(ctx, query, key, transactionID)
	if err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, fmt.Errorf("install idempotency key: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *TransactionRepository) scan(row pgx.Row) (*domain.Transaction, error) {
	return r.scanRow(row)
}

func (r *TransactionRepository) scanRow(row rowScanner) (*domain.Transaction, error) {
	var t domain.Transaction
	err := row.Scan(
		&t.ID, &t.WalletID, &t.Type, &t.Status, &t.Amount, &t.ExecuteAt, &t.IdempotencyKey,
		&t.ExternalReference, &t.BankReference, &t.FailureReason, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTransactionNotFound
		}
		return nil, fmt.Errorf("scan transaction: %w", err)
	}
	return &t, nil
}
