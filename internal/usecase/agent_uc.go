package usecase

import (
	"context"
	"time"

	"benchfleet/internal/domain/model"
	"benchfleet/internal/domain/ports/repository"
	"benchfleet/internal/infra/logging"

	"github.com/rs/zerolog"
)

// Compile-time check
var _ AgentUseCase = (*agentUC)(nil)

// AgentUseCase exposes the agent directory operations: registration,
// liveness tracking, and the reads the admin surface renders.
type AgentUseCase interface {
	Register(ctx context.Context, name string, region model.Region, visibility model.AgentVisibility) (*model.Agent, error)
	Heartbeat(ctx context.Context, agentID string) error
	Get(ctx context.Context, agentID string) (*model.Agent, error)
	List(ctx context.Context) ([]*model.Agent, error)
}

type agentUC struct {
	agents repository.AgentRepository
	log    *zerolog.Logger
}

func NewAgentUseCase(agents repository.AgentRepository, logger *zerolog.Logger) *agentUC {
	return &agentUC{agents: agents, log: logger}
}

func (u *agentUC) Register(ctx context.Context, name string, region model.Region, visibility model.AgentVisibility) (*model.Agent, error) {
	defer logging.TraceDuration(u.log, "AgentUC.Register")()

	agent, err := model.NewAgent("", name, region, visibility)
	if err != nil {
		return nil, err
	}
	if err := u.agents.Save(ctx, repository.NoTX, agent); err != nil {
		u.log.Error().Err(err).Str("name", name).Msg("failed to save new agent")
		return nil, err
	}
	u.log.Info().Str("agent_id", agent.ID).Str("region", string(agent.Region)).Msg("agent registered")
	return agent, nil
}

// Heartbeat refreshes lastSeenAt and resurrects an offline agent to idle.
// Jobs already reclaimed from it stay reclaimed; only the agent comes back.
// The write is a single conditional repo statement rather than a
// read-modify-write, so a reclaim pass committing in between cannot be
// overwritten with stale state.
func (u *agentUC) Heartbeat(ctx context.Context, agentID string) error {
	return u.agents.Touch(ctx, repository.NoTX, agentID, time.Now())
}

func (u *agentUC) Get(ctx context.Context, agentID string) (*model.Agent, error) {
	return u.agents.FindByID(ctx, repository.NoTX, agentID)
}

func (u *agentUC) List(ctx context.Context) ([]*model.Agent, error) {
	return u.agents.List(ctx, repository.NoTX)
}
