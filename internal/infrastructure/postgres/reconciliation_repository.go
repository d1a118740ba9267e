package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/DanielPopoola/wallet-ledger/internal/application"
	"github.com/DanielPopoola/wallet-ledger/internal/domain"
	"github.com/jackc/pgx/v5"
)

type ReconciliationRepository struct {
	db *DB
}

func NewReconciliationRepository(db *DB) application.ReconciliationTaskRepository {
	return &ReconciliationRepository{db: db}
}

const reconciliationColumns = `id, transaction_id, reason, status, created_at, updated_at`

func (r *ReconciliationRepository) Create(ctx context.Context, t *domain.WithdrawalReconciliationTask) error {
	const query = `
		INSERT INTO withdrawal_reconciliation_tasks (transaction_id, reason, status, created_at, updated_at)
		VALUES ($1, $2, $3, now(), now())
		RETURNING id, created_at, updated_at`
	return r.db.querier(ctx).QueryRow(ctx, query, t.TransactionID, t.Reason, t.Status).
		Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
}

func (r *ReconciliationRepository) FindByTransactionID(ctx context.Context, transactionID int64) (*domain.WithdrawalReconciliationTask, error) {
	query := fmt.Sprintf(`SELECT %s FROM withdrawal_reconciliation_tasks WHERE transaction_id = $1`, reconciliationColumns)
	return r.scan(r.db.querier(ctx).QueryRow(ctx, query, transactionID))
}

func (r *ReconciliationRepository) FindByTransactionIDForUpdate(ctx context.Context, transactionID int64) (*domain.WithdrawalReconciliationTask, error) {
	query := fmt.Sprintf(`SELECT %s FROM withdrawal_reconciliation_tasks WHERE transaction_id = $1 FOR UPDATE`, reconciliationColumns)
	return r.scan(r.db.querier(ctx).QueryRow(ctx, query, transactionID))
}

func (r *ReconciliationRepository) Update(ctx context.Context, t *domain.WithdrawalReconciliationTask) error {
	const query = `
		UPDATE withdrawal_reconciliation_tasks
		SET reason = $1, status = $2, updated_at = now()
		WHERE id = $3
		RETURNING updated_at`
	err := r.db.querier(ctx).QueryRow(ctx, query, t.Reason, t.Status, t.ID).Scan(&t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrReconciliationNotFound
	}
	return err
}

func (r *ReconciliationRepository) FindPending(ctx context.Context, limit int) ([]*domain.WithdrawalReconciliationTask, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM withdrawal_reconciliation_tasks
		WHERE status = $1
		ORDER BY created_at, id
		LIMIT $2`, reconciliationColumns)
	rows, err := r.db.querier(ctx).Query(ctx, query, domain.ReconciliationPending, limit)
	if err != nil {
		return nil, fmt.Errorf("query pending reconciliation tasks: %w", err)
	}
	defer rows.Close()

	var out []*domain.WithdrawalReconciliationTask
	for rows.Next() {
		t, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *ReconciliationRepository) scan(row pgx.Row) (*domain.WithdrawalReconciliationTask, error) {
	return r.scanRow(row)
}

func (r *ReconciliationRepository) scanRow(row rowScanner) (*domain.WithdrawalReconciliationTask, error) {
	var t domain.WithdrawalReconciliationTask
	err := row.Scan(&t.ID, &t.TransactionID, &t.Reason, &t.Status, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrReconciliationNotFound
		}
		return nil, fmt.Errorf("scan reconciliation task: %w", err)
	}
	return &t, nil
}
