package usecase

import (
	"context"
	"time"

	"benchfleet/internal/domain/model"
	"benchfleet/internal/domain/ports/repository"
	"benchfleet/internal/infra/logging"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"
)

// ReasonAgentTimeout is recorded on a job whose final attempt was lost to a
// stale agent.
const ReasonAgentTimeout = "Agent timeout - max retries exceeded"

// Compile-time check
var _ ReclaimUseCase = (*reclaimUC)(nil)

// ReclaimUseCase detects agents that stopped heartbeating, marks them
// offline, and releases the running jobs they held back into the claimable
// pool (or terminal-fails them once retries are exhausted).
type ReclaimUseCase interface {
	ReclaimStale(ctx context.Context, now time.Time) (ReclaimReport, error)
}

// ReclaimReport summarizes one reclamation pass. A pass over an unchanged
// system reports all zeros: reclamation is idempotent.
type ReclaimReport struct {
	AgentsMarkedOffline int
	JobsRequeued        int
	JobsFailed          int
}

func (r ReclaimReport) Empty() bool {
	return r.AgentsMarkedOffline == 0 && r.JobsRequeued == 0 && r.JobsFailed == 0
}

type reclaimUC struct {
	agents     repository.AgentRepository
	jobs       repository.JobRepository
	tm         repository.TransactionManager
	staleAfter time.Duration
	log        *zerolog.Logger
}

func NewReclaimUseCase(agents repository.AgentRepository, jobs repository.JobRepository, tm repository.TransactionManager, staleAfter time.Duration, logger *zerolog.Logger) *reclaimUC {
	if staleAfter <= 0 {
		staleAfter = 5 * time.Minute
	}
	return &reclaimUC{agents: agents, jobs: jobs, tm: tm, staleAfter: staleAfter, log: logger}
}

// ReclaimStale runs one reclamation pass as of now. Staleness is a strict
// comparison: an agent whose lastSeenAt sits exactly on the threshold is
// still fresh. The caller (the sched worker) passes time.Now().
func (u *reclaimUC) ReclaimStale(ctx context.Context, now time.Time) (ReclaimReport, error) {
	defer logging.TraceDuration(u.log, "ReclaimUC.ReclaimStale")()

	var report ReclaimReport
	txOpts := pgx.TxOptions{IsoLevel: pgx.Serializable}
	err := u.tm.WithTx(ctx, txOpts, func(ctx context.Context, tx repository.Tx) error {
		report = ReclaimReport{}

		// Stale agents go offline regardless of job state; an idle agent that
		// stopped heartbeating must also stop being offered jobs.
		threshold := now.Add(-u.staleAfter)
		stale, err := u.agents.ListStale(ctx, tx, threshold)
		if err != nil {
			return err
		}
		for _, agent := range stale {
			agent.State = model.AgentStateOffline
			if err := u.agents.Save(ctx, tx, agent); err != nil {
				return err
			}
			report.AgentsMarkedOffline++
			u.log.Warn().Str("agent_id", agent.ID).Time("last_seen", agent.LastSeenAt).Msg("agent marked offline")
		}

		// Release every running job owned by an offline agent, whether it
		// went offline just now or in an earlier pass.
		offline, err := u.agents.ListOffline(ctx, tx)
		if err != nil {
			return err
		}
		if len(offline) == 0 {
			return nil
		}
		ownerIDs := make([]string, 0, len(offline))
		for _, agent := range offline {
			ownerIDs = append(ownerIDs, agent.ID)
		}
		orphaned, err := u.jobs.ListRunningByOwners(ctx, tx, ownerIDs)
		if err != nil {
			return err
		}
		for _, job := range orphaned {
			prev := job.Version
			owner := job.OwnerAgentID
			job.Release(ReasonAgentTimeout, now)
			// The version bump makes any in-flight Complete from the old
			// owner lose its owner-match check.
			if err := u.jobs.UpdateVersioned(ctx, tx, job, prev); err != nil {
				return err
			}
			if job.Status == model.JobStatusFailed {
				report.JobsFailed++
				u.log.Error().Str("job_id", job.ID).Str("owner", owner).Int("retry_count", job.RetryCount).Msg("job failed, retries exhausted")
			} else {
				report.JobsRequeued++
				u.log.Info().Str("job_id", job.ID).Str("owner", owner).Int("retry_count", job.RetryCount).Msg("job reclaimed and requeued")
			}
		}
		return nil
	})
	if err != nil {
		return ReclaimReport{}, err
	}
	return report, nil
}
