package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"benchfleet/internal/domain"
	"benchfleet/internal/domain/model"
	"benchfleet/internal/domain/ports/repository"
)

// Ensure jobRepo implements repository.JobRepository
var _ repository.JobRepository = (*jobRepo)(nil)

type jobRepo struct {
	pool *pgxpool.Pool
}

func NewJobRepo(pool *pgxpool.Pool) *jobRepo {
	return &jobRepo{pool: pool}
}

const jobColumns = `id, region, status, owner_agent_id, retry_count, max_retries, version, started_at, error, result, config, created_at, updated_at`

func (r *jobRepo) Create(ctx context.Context, tx repository.Tx, j *model.Job) error {
	const q = `
INSERT INTO jobs (` + jobColumns + `)
VALUES ($1,$2,$3,NULLIF($4,''),$5,$6,$7,$8,NULLIF($9,''),$10,$11,$12,$13);`

	_, err := execSQL(ctx, r.pool, tx, q,
		j.ID, j.Region, j.Status, j.OwnerAgentID, j.RetryCount, j.MaxRetries,
		j.Version, j.StartedAt, j.Error, j.Result, j.Config, j.CreatedAt, j.UpdatedAt)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidArgument), errors.Is(err, domain.ErrInvalidExecContext):
			return err
		default:
			return domain.ErrOperationFailed
		}
	}
	return nil
}

func (r *jobRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Job, error) {
	const q = `
SELECT ` + jobColumns + `
  FROM jobs
 WHERE id=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	return scanJob(row)
}

func (r *jobRepo) ListPendingByRegion(ctx context.Context, tx repository.Tx, region model.Region) ([]*model.Job, error) {
	const q = `
SELECT ` + jobColumns + `
  FROM jobs
 WHERE status='pending' AND region=$1
 ORDER BY created_at;`
	return r.queryMany(ctx, tx, q, region)
}

func (r *jobRepo) ListRunningByOwners(ctx context.Context, tx repository.Tx, agentIDs []string) ([]*model.Job, error) {
	if len(agentIDs) == 0 {
		return nil, nil
	}
	const q = `
SELECT ` + jobColumns + `
  FROM jobs
 WHERE status='running' AND owner_agent_id = ANY($1);`
	return r.queryMany(ctx, tx, q, agentIDs)
}

// UpdateVersioned is the single-writer primitive: the row is rewritten only
// when it still carries expectedVersion, so two racing mutations can never
// both land.
func (r *jobRepo) UpdateVersioned(ctx context.Context, tx repository.Tx, j *model.Job, expectedVersion int64) error {
	const q = `
UPDATE jobs SET
  status=$3, owner_agent_id=NULLIF($4,''), retry_count=$5, version=$6,
  started_at=$7, error=NULLIF($8,''), result=$9, updated_at=$10
 WHERE id=$1 AND version=$2;`

	tag, err := execSQL(ctx, r.pool, tx, q,
		j.ID, expectedVersion, j.Status, j.OwnerAgentID, j.RetryCount,
		j.Version, j.StartedAt, j.Error, j.Result, j.UpdatedAt)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidArgument), errors.Is(err, domain.ErrInvalidExecContext):
			return err
		default:
			return domain.ErrOperationFailed
		}
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrVersionConflict
	}
	return nil
}

func (r *jobRepo) queryMany(ctx context.Context, tx repository.Tx, q string, args ...interface{}) ([]*model.Job, error) {
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
	var out []*model.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

func scanJob(row pgx.Row) (*model.Job, error) {
	var j model.Job
	var owner, jobErr *string
	err := row.Scan(&j.ID, &j.Region, &j.Status, &owner, &j.RetryCount, &j.MaxRetries,
		&j.Version, &j.StartedAt, &jobErr, &j.Result, &j.Config, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	if owner != nil {
		j.OwnerAgentID = *owner
	}
	if jobErr != nil {
		j.Error = *jobErr
	}
	return &j, nil
}
