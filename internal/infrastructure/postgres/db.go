// Package postgres implements the ledger store (C1) on pgx/v5 + pgxpool:
// connection pooling, a context-based unit-of-work, and repositories for
// wallets, transactions and reconciliation tasks. Grounded structurally on
// the teacher's internal/infrastructure/persistence/db.go (pool
// construction, Connect/Close) and on Haleralex-PayBridge's
// internal/infrastructure/persistence/postgres package for the
// context-injected-transaction pattern (txKey, injectTx/extractTx) that
// the application layer's UnitOfWork port needs.
package postgres

import (
	"context"
	"log/slog"

	"github.com/DanielPopoola/wallet-ledger/internal/config"
	"github.com/jackc/pgx/v5/pgxpool"
)

type DB struct {
	Pool   *pgxpool.Pool
	logger *slog.Logger
}

func Connect(ctx context.Context, cfg *config.DatabaseConfig, logger *slog.Logger) (*DB, error) {
	pgxCfg, err := cfg.PgxConfig(ctx)
	if err != nil {
		logger.Error("failed to build pgx config", "error", err)
		return nil, err
	}

	logger.Info("connecting to database", "host", cfg.Host, "port", cfg.Port, "database", cfg.Name)

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		logger.Error("failed to create connection pool", "error", err)
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		logger.Error("failed to ping database", "error", err)
		pool.Close()
		return nil, err
	}

	logger.Info("successfully connected to database", "max_conns", pgxCfg.MaxConns, "min_conns", pgxCfg.MinConns)

	return &DB{Pool: pool, logger: logger}, nil
}

func (db *DB) Close() {
	db.logger.Info("closing database connection pool")
	db.Pool.Close()
}
