package repository

import (
	"context"

	"benchfleet/internal/domain/model"
)

// JobRepository stores jobs and enforces the optimistic-concurrency contract:
// every state-changing write goes through UpdateVersioned, which compares the
// stored version against the version the mutation started from.
type JobRepository interface {
	// Create inserts a new pending job.
	Create(ctx context.Context, tx Tx, job *model.Job) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Job, error)
	ListPendingByRegion(ctx context.Context, tx Tx, region model.Region) ([]*model.Job, error)
	// ListRunningByOwners returns running jobs whose owner is any of agentIDs.
	ListRunningByOwners(ctx context.Context, tx Tx, agentIDs []string) ([]*model.Job, error)
	// UpdateVersioned persists job iff the stored row still carries
	// expectedVersion (the version the caller read before mutating).
	// Returns domain.ErrVersionConflict when another writer got there first;
	// the caller must then discard its mutation entirely.
	UpdateVersioned(ctx context.Context, tx Tx, job *model.Job, expectedVersion int64) error
}
