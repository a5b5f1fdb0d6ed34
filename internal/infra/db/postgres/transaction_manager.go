package postgres

import (
	"context"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"benchfleet/internal/domain"
	"benchfleet/internal/domain/ports/repository"
)

// Ensure compile-time conformance
var _ repository.TransactionManager = (*TxManager)(nil)

// TxManager implements repository.TransactionManager for Postgres (pgx).
// It begins a transaction, invokes the callback, and commits/rolls back.
// The tx handle is passed to the callback as pgx.Tx via the repository.Tx arg.
type TxManager struct {
	pool *pgxpool.Pool
}

func NewTxManager(pool *pgxpool.Pool) *TxManager {
	return &TxManager{pool: pool}
}

// WithTx opens a DB transaction and passes the tx handle to fn.
// If fn returns an error, the transaction is rolled back; otherwise it is committed.
func (m *TxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	tx, err := m.pool.BeginTx(ctx, txOpt)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, tx); err != nil {
		return err // rollback in defer
	}
	return tx.Commit(ctx)
}

// executor is the subset of pgx query surface shared by pools, conns and txs.
type executor interface {
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
}

func getExecutor(pool *pgxpool.Pool, tx repository.Tx) (executor, error) {
	switch v := tx.(type) {
	case pgx.Tx:
		return v, nil
	case *pgxpool.Conn:
		return v, nil
	case *pgxpool.Pool:
		return v, nil
	case nil:
		// Explicitly use the pool if nil is passed
		if pool != nil {
			return pool, nil
		}
		return nil, domain.ErrInvalidArgument
	default:
		return nil, domain.ErrInvalidExecContext
	}
}

func execSQL(ctx context.Context, pool *pgxpool.Pool, tx repository.Tx, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	ex, err := getExecutor(pool, tx)
	if err != nil {
		return nil, err
	}
	return ex.Exec(ctx, sql, args...)
}

func pickRow(ctx context.Context, pool *pgxpool.Pool, tx repository.Tx, sql string, args ...interface{}) (pgx.Row, error) {
	ex, err := getExecutor(pool, tx)
	if err != nil {
		return nil, err
	}
	return ex.QueryRow(ctx, sql, args...), nil
}

func queryRows(ctx context.Context, pool *pgxpool.Pool, tx repository.Tx, sql string, args ...interface{}) (pgx.Rows, error) {
	ex, err := getExecutor(pool, tx)
	if err != nil {
		return nil, err
	}
	return ex.Query(ctx, sql, args...)
}
