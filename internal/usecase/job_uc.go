package usecase

import (
	"context"
	"encoding/json"
	"time"

	"benchfleet/internal/domain"
	"benchfleet/internal/domain/model"
	"benchfleet/internal/domain/ports/repository"
	"benchfleet/internal/infra/logging"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"
)

// Compile-time check
var _ JobUseCase = (*jobUC)(nil)

// JobUseCase is the claim protocol: polling, atomic claim, and completion.
type JobUseCase interface {
	Create(ctx context.Context, region model.Region, maxRetries int, config json.RawMessage) (*model.Job, error)
	Get(ctx context.Context, jobID string) (*model.Job, error)
	ListClaimable(ctx context.Context, region model.Region) ([]*model.Job, error)
	// Claim atomically acquires ownership of a pending job for an idle agent
	// in the same region. expectedVersion is the version the agent saw when
	// polling; at most one concurrent caller presenting it can win. The
	// returned job carries the new version the agent must use to complete.
	Claim(ctx context.Context, jobID, agentID string, expectedVersion int64) (*model.Job, error)
	// Complete finalizes a running job with a successful result. A late call
	// from an agent the job was already reclaimed from is rejected with
	// domain.ErrNotOwner.
	Complete(ctx context.Context, jobID, agentID string, result json.RawMessage) error
	// Fail records an agent-reported failure. It consumes one attempt under
	// the same retry-vs-fail policy as reclamation rather than hard-failing,
	// and returns the job as released inside that same transaction, so the
	// caller reports the requeued-vs-failed outcome it actually caused.
	Fail(ctx context.Context, jobID, agentID, reason string) (*model.Job, error)
}

type jobUC struct {
	jobs   repository.JobRepository
	agents repository.AgentRepository
	tm     repository.TransactionManager
	log    *zerolog.Logger
}

func NewJobUseCase(jobs repository.JobRepository, agents repository.AgentRepository, tm repository.TransactionManager, logger *zerolog.Logger) *jobUC {
	return &jobUC{jobs: jobs, agents: agents, tm: tm, log: logger}
}

func (u *jobUC) Create(ctx context.Context, region model.Region, maxRetries int, config json.RawMessage) (*model.Job, error) {
	defer logging.TraceDuration(u.log, "JobUC.Create")()

	job, err := model.NewJob("", region, maxRetries, config)
	if err != nil {
		return nil, err
	}
	if err := u.jobs.Create(ctx, repository.NoTX, job); err != nil {
		return nil, err
	}
	u.log.Info().Str("job_id", job.ID).Str("region", string(job.Region)).Msg("job created")
	return job, nil
}

func (u *jobUC) Get(ctx context.Context, jobID string) (*model.Job, error) {
	return u.jobs.FindByID(ctx, repository.NoTX, jobID)
}

func (u *jobUC) ListClaimable(ctx context.Context, region model.Region) ([]*model.Job, error) {
	if !model.ValidRegion(region) {
		return nil, domain.ErrInvalidArgument
	}
	return u.jobs.ListPendingByRegion(ctx, repository.NoTX, region)
}

func (u *jobUC) Claim(ctx context.Context, jobID, agentID string, expectedVersion int64) (*model.Job, error) {
	defer logging.TraceDuration(u.log, "JobUC.Claim")()

	var claimed *model.Job
	// The read-check-write must be a single atomic unit: the version check
	// plus the conditional update is what guarantees at most one winner no
	// matter how many agents claim concurrently.
	txOpts := pgx.TxOptions{IsoLevel: pgx.Serializable}
	err := u.tm.WithTx(ctx, txOpts, func(ctx context.Context, tx repository.Tx) error {
		job, err := u.jobs.FindByID(ctx, tx, jobID)
		if err != nil {
			return err
		}
		if job.Version != expectedVersion {
			return domain.ErrVersionConflict
		}
		agent, err := u.agents.FindByID(ctx, tx, agentID)
		if err != nil {
			return err
		}
		switch agent.State {
		case model.AgentStateIdle:
		case model.AgentStateOffline:
			return domain.ErrAgentOffline
		default:
			return domain.ErrAgentNotIdle
		}
		if agent.Region != job.Region {
			return domain.ErrRegionMismatch
		}

		if err := job.Claim(agentID, time.Now()); err != nil {
			return err
		}
		if err := u.jobs.UpdateVersioned(ctx, tx, job, expectedVersion); err != nil {
			return err
		}
		agent.State = model.AgentStateOccupied
		if err := u.agents.Save(ctx, tx, agent); err != nil {
			return err
		}
		claimed = job
		return nil
	})
	if err != nil {
		if domain.IsConflict(err) {
			// Expected race outcome, the caller just re-polls.
			u.log.Debug().Str("job_id", jobID).Str("agent_id", agentID).Err(err).Msg("claim lost")
		}
		return nil, err
	}
	u.log.Info().Str("job_id", claimed.ID).Str("agent_id", agentID).Int64("version", claimed.Version).Msg("job claimed")
	return claimed, nil
}

func (u *jobUC) Complete(ctx context.Context, jobID, agentID string, result json.RawMessage) error {
	defer logging.TraceDuration(u.log, "JobUC.Complete")()

	txOpts := pgx.TxOptions{IsoLevel: pgx.Serializable}
	err := u.tm.WithTx(ctx, txOpts, func(ctx context.Context, tx repository.Tx) error {
		job, err := u.jobs.FindByID(ctx, tx, jobID)
		if err != nil {
			return err
		}
		prev := job.Version
		if err := job.Finish(agentID, result, time.Now()); err != nil {
			return err
		}
		if err := u.jobs.UpdateVersioned(ctx, tx, job, prev); err != nil {
			return err
		}
		return u.releaseAgent(ctx, tx, agentID)
	})
	if err != nil {
		return err
	}
	u.log.Info().Str("job_id", jobID).Str("agent_id", agentID).Msg("job completed")
	return nil
}

func (u *jobUC) Fail(ctx context.Context, jobID, agentID, reason string) (*model.Job, error) {
	defer logging.TraceDuration(u.log, "JobUC.Fail")()

	var released *model.Job
	txOpts := pgx.TxOptions{IsoLevel: pgx.Serializable}
	err := u.tm.WithTx(ctx, txOpts, func(ctx context.Context, tx repository.Tx) error {
		job, err := u.jobs.FindByID(ctx, tx, jobID)
		if err != nil {
			return err
		}
		if job.Status != model.JobStatusRunning || job.OwnerAgentID != agentID {
			return domain.ErrNotOwner
		}
		prev := job.Version
		job.Release(reason, time.Now())
		if err := u.jobs.UpdateVersioned(ctx, tx, job, prev); err != nil {
			return err
		}
		released = job
		return u.releaseAgent(ctx, tx, agentID)
	})
	if err != nil {
		return nil, err
	}
	u.log.Warn().Str("job_id", jobID).Str("agent_id", agentID).Str("status", string(released.Status)).Str("reason", reason).Msg("job failed by agent")
	return released, nil
}

// releaseAgent puts a reporting agent back in the claimable pool. An agent
// that already went offline stays offline.
func (u *jobUC) releaseAgent(ctx context.Context, tx repository.Tx, agentID string) error {
	agent, err := u.agents.FindByID(ctx, tx, agentID)
	if err != nil {
		return err
	}
	if agent.State == model.AgentStateOccupied {
		agent.State = model.AgentStateIdle
		return u.agents.Save(ctx, tx, agent)
	}
	return nil
}
