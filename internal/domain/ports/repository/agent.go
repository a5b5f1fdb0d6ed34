package repository

import (
	"context"
	"time"

	"benchfleet/internal/domain/model"
)

// AgentRepository is the directory of known agents. Liveness mutations are
// simple field writes; there is no version token on agents.
type AgentRepository interface {
	Save(ctx context.Context, tx Tx, agent *model.Agent) error
	// Touch records a heartbeat as one conditional write: lastSeenAt=now and,
	// when the stored state is offline, state=idle. It never reads first, so
	// it cannot overwrite a concurrent offline sweep with stale state.
	// Returns domain.ErrNotFound when no such agent exists.
	Touch(ctx context.Context, tx Tx, id string, now time.Time) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Agent, error)
	List(ctx context.Context, tx Tx) ([]*model.Agent, error)
	// ListStale returns agents whose last heartbeat is strictly older than
	// threshold and whose state is not already offline.
	ListStale(ctx context.Context, tx Tx, threshold time.Time) ([]*model.Agent, error)
	// ListOffline returns every offline agent, used by the reclaimer to catch
	// running jobs still owned by agents marked offline in an earlier pass.
	ListOffline(ctx context.Context, tx Tx) ([]*model.Agent, error)
}
