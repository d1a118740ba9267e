package postgres

import (
	"context"
	"fmt"

	"github.com/DanielPopoola/wallet-ledger/internal/application"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// UnitOfWork wraps a single pgx transaction, injecting it into the context
// so repositories pick it up transparently via DB.querier(ctx). Grounded on
// Haleralex-PayBridge's internal/infrastructure/persistence/postgres
// unit_of_work.go (panic recovery + rollback, commit-on-nil-error).
type UnitOfWork struct {
	pool *pgxpool.Pool
	opts pgx.TxOptions
}

func (u *UnitOfWork) Execute(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	tx, err := u.pool.BeginTx(ctx, u.opts)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
	}()

	txCtx := injectTx(ctx, tx)
	if err = fn(txCtx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("%w (rollback also failed: %v)", err, rbErr)
		}
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// UnitOfWorkFactory builds a fresh UnitOfWork per call, implementing
// application.UnitOfWorkFactory.
type UnitOfWorkFactory struct {
	pool *pgxpool.Pool
}

func NewUnitOfWorkFactory(db *DB) *UnitOfWorkFactory {
	return &UnitOfWorkFactory{pool: db.Pool}
}

func (f *UnitOfWorkFactory) New() application.UnitOfWork {
	return &UnitOfWork{pool: f.pool, opts: pgx.TxOptions{IsoLevel: pgx.ReadCommitted}}
}

// NewSerializable builds a UnitOfWork running at SERIALIZABLE isolation,
// available for callers that need stronger guarantees than row locking
// alone provides.
func (f *UnitOfWorkFactory) NewSerializable() application.UnitOfWork {
	return &UnitOfWork{pool: f.pool, opts: pgx.TxOptions{IsoLevel: pgx.Serializable}}
}
