package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// txKey is the context key under which the active transaction, if any, is
// stored by UnitOfWork.Execute. Grounded on Haleralex-PayBridge's
// internal/infrastructure/persistence/postgres/helpers.go.
type txKey struct{}

func injectTx(ctx context.Context, tx pgx.Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

func extractTx(ctx context.Context) (pgx.Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(pgx.Tx)
	return tx, ok
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx, letting
// repositories run the same SQL whether or not a unit of work is active.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (db *DB) querier(ctx context.Context) querier {
	if tx, ok := extractTx(ctx); ok {
		return tx
	}
	return db.Pool
}

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
	pgSerializationFailure = "40001"
	pgDeadlockDetected    = "40P01"
)

func pgErrorCode(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code, true
	}
	return "", false
}

func isUniqueViolation(err error) bool {
	code, ok := pgErrorCode(err)
	return ok && code == pgUniqueViolation
}

// isRetryableTxError reports whether err is a serialization failure or
// deadlock, both of which a unit of work may safely retry from scratch.
func isRetryableTxError(err error) bool {
	code, ok := pgErrorCode(err)
	return ok && (code == pgSerializationFailure || code == pgDeadlockDetected)
}

// IsLockContention is the exported form of isRetryableTxError for callers
// outside this package (the executor worker's claim-retry loop).
func IsLockContention(err error) bool {
	return isRetryableTxError(err)
}
