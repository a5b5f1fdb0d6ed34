package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

type Tx interface{}

var NoTX interface{}

// TransactionManager provides a thin abstraction to execute a function within
// a database transaction, passing the underlying transaction handle via `tx`.
//
// Use cases never see the concrete tx type (pgx.Tx for Postgres); repository
// implementations detect it and bind their statements to it. Repositories
// MUST gracefully accept a nil tx (non-transactional path). The in-memory
// test doubles serialize the callback under a mutex instead, which gives the
// same single-writer guarantee the scheduler state machine relies on.
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}
