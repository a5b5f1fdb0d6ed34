package postgres

import (
	"context"

	"github.com/jackc/pgx/v4/pgxpool"
)

// EnsureSchema creates the scheduler tables when they do not exist yet.
// Production deployments run real migrations; this keeps dev and CI
// bootstraps to a single binary.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS agents (
  id            TEXT PRIMARY KEY,
  name          TEXT NOT NULL,
  region        TEXT NOT NULL,
  visibility    TEXT NOT NULL DEFAULT 'public',
  state         TEXT NOT NULL DEFAULT 'idle',
  last_seen_at  TIMESTAMPTZ NOT NULL,
  registered_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS agents_liveness_idx ON agents (state, last_seen_at);

CREATE TABLE IF NOT EXISTS jobs (
  id             TEXT PRIMARY KEY,
  region         TEXT NOT NULL,
  status         TEXT NOT NULL DEFAULT 'pending',
  owner_agent_id TEXT,
  retry_count    INT NOT NULL DEFAULT 0,
  max_retries    INT NOT NULL DEFAULT 3,
  version        BIGINT NOT NULL DEFAULT 1,
  started_at     TIMESTAMPTZ,
  error          TEXT,
  result         JSONB,
  config         JSONB,
  created_at     TIMESTAMPTZ NOT NULL,
  updated_at     TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS jobs_claimable_idx ON jobs (status, region);
CREATE INDEX IF NOT EXISTS jobs_owner_idx ON jobs (owner_agent_id) WHERE status = 'running';`

	_, err := pool.Exec(ctx, ddl)
	return err
}
