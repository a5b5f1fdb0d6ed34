package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"benchfleet/internal/domain"
	"benchfleet/internal/domain/model"
	"benchfleet/internal/domain/ports/repository"
)

// Ensure agentRepo implements repository.AgentRepository
var _ repository.AgentRepository = (*agentRepo)(nil)

// LivenessCache mirrors hot agent rows so directory reads (admin surface,
// status endpoints) skip the database. Nil disables caching.
type LivenessCache interface {
	StoreAgent(ctx context.Context, agent *model.Agent) error
	GetAgent(ctx context.Context, id string) (*model.Agent, error)
	DeleteAgent(ctx context.Context, id string) error
}

type agentRepo struct {
	pool  *pgxpool.Pool
	cache LivenessCache
}

func NewAgentRepo(pool *pgxpool.Pool, cache LivenessCache) *agentRepo {
	return &agentRepo{pool: pool, cache: cache}
}

func (r *agentRepo) Save(ctx context.Context, tx repository.Tx, a *model.Agent) error {
	const q = `
INSERT INTO agents (id, name, region, visibility, state, last_seen_at, registered_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (id) DO UPDATE SET
  name=$2, region=$3, visibility=$4, state=$5, last_seen_at=$6;`

	_, err := execSQL(ctx, r.pool, tx, q,
		a.ID, a.Name, a.Region, a.Visibility, a.State, a.LastSeenAt, a.RegisteredAt)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidArgument), errors.Is(err, domain.ErrInvalidExecContext):
			return err
		default:
			return domain.ErrOperationFailed
		}
	}
	if r.cache != nil {
		if tx == nil {
			// Write-through; a cache miss later just falls back to the DB.
			_ = r.cache.StoreAgent(ctx, a)
		} else {
			// The transaction may still roll back; storing uncommitted state
			// would let the plain read path serve it. Drop the key instead.
			_ = r.cache.DeleteAgent(ctx, a.ID)
		}
	}
	return nil
}

// Touch is the heartbeat write: one conditional UPDATE, no prior read, so a
// reclaim transaction committing in between cannot be overwritten. An offline
// agent comes back idle; any other state is preserved.
func (r *agentRepo) Touch(ctx context.Context, tx repository.Tx, id string, now time.Time) error {
	const q = `
UPDATE agents SET
  last_seen_at = $2,
  state = CASE WHEN state = 'offline' THEN 'idle' ELSE state END
 WHERE id = $1;`

	tag, err := execSQL(ctx, r.pool, tx, q, id, now)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidArgument), errors.Is(err, domain.ErrInvalidExecContext):
			return err
		default:
			return domain.ErrOperationFailed
		}
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	if r.cache != nil {
		// The cached row is stale now; let the next read repopulate it.
		_ = r.cache.DeleteAgent(ctx, id)
	}
	return nil
}

func (r *agentRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Agent, error) {
	// Mutation paths run inside a transaction and must see current state, so
	// the cache only serves the plain read path.
	if tx == nil && r.cache != nil {
		if a, err := r.cache.GetAgent(ctx, id); err == nil && a != nil {
			return a, nil
		}
	}
	const q = `
SELECT id, name, region, visibility, state, last_seen_at, registered_at
  FROM agents
 WHERE id=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	a, err := scanAgent(row)
	if err != nil {
		return nil, err
	}
	if tx == nil && r.cache != nil {
		_ = r.cache.StoreAgent(ctx, a)
	}
	return a, nil
}

func (r *agentRepo) List(ctx context.Context, tx repository.Tx) ([]*model.Agent, error) {
	const q = `
SELECT id, name, region, visibility, state, last_seen_at, registered_at
  FROM agents
 ORDER BY registered_at;`
	return r.queryMany(ctx, tx, q)
}

func (r *agentRepo) ListStale(ctx context.Context, tx repository.Tx, threshold time.Time) ([]*model.Agent, error) {
	// Strict '<': an agent exactly at the threshold is still fresh.
	const q = `
SELECT id, name, region, visibility, state, last_seen_at, registered_at
  FROM agents
 WHERE last_seen_at < $1 AND state <> 'offline';`
	return r.queryMany(ctx, tx, q, threshold)
}

func (r *agentRepo) ListOffline(ctx context.Context, tx repository.Tx) ([]*model.Agent, error) {
	const q = `
SELECT id, name, region, visibility, state, last_seen_at, registered_at
  FROM agents
 WHERE state = 'offline';`
	return r.queryMany(ctx, tx, q)
}

func (r *agentRepo) queryMany(ctx context.Context, tx repository.Tx, q string, args ...interface{}) ([]*model.Agent, error) {
	rows, err := queryRows(ctx, r.pool, tx, q, args...)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidArgument), errors.Is(err, domain.ErrInvalidExecContext):
			return nil, err
		default:
			return nil, domain.ErrOperationFailed
		}
	}
	defer rows.Close()
	var out []*model.Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

func scanAgent(row pgx.Row) (*model.Agent, error) {
	var a model.Agent
	err := row.Scan(&a.ID, &a.Name, &a.Region, &a.Visibility, &a.State, &a.LastSeenAt, &a.RegisteredAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return &a, nil
}
