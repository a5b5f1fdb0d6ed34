//go:build !integration

package usecase_test

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"benchfleet/internal/domain"
	"benchfleet/internal/domain/model"
	"benchfleet/internal/domain/ports/repository"
)

func newTestLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

// ---- Mock TransactionManager ----

// MockTxManager serializes callbacks under a mutex, which stands in for the
// single-writer atomicity the real store provides. The claim-race tests rely
// on this: the read-check-write inside WithTx is one critical section.
type MockTxManager struct {
	mu sync.Mutex
}

var _ repository.TransactionManager = (*MockTxManager)(nil)

func NewMockTxManager() *MockTxManager { return &MockTxManager{} }

func (m *MockTxManager) WithTx(ctx context.Context, _ pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(ctx, repository.NoTX)
}

// ---- Mock AgentRepository ----

type MockAgentRepo struct {
	mu    sync.RWMutex
	store map[string]*model.Agent

	SaveFunc     func(ctx context.Context, tx repository.Tx, agent *model.Agent) error
	TouchFunc    func(ctx context.Context, tx repository.Tx, id string, now time.Time) error
	FindByIDFunc func(ctx context.Context, tx repository.Tx, id string) (*model.Agent, error)
}

var _ repository.AgentRepository = (*MockAgentRepo)(nil)

func NewMockAgentRepo() *MockAgentRepo {
	return &MockAgentRepo{store: make(map[string]*model.Agent)}
}

func (m *MockAgentRepo) Save(ctx context.Context, tx repository.Tx, agent *model.Agent) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, tx, agent)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *agent
	m.store[agent.ID] = &cp
	return nil
}

// Touch applies the heartbeat as one atomic mutation of the stored row,
// matching the single conditional UPDATE of the real store.
func (m *MockAgentRepo) Touch(ctx context.Context, tx repository.Tx, id string, now time.Time) error {
	if m.TouchFunc != nil {
		return m.TouchFunc(ctx, tx, id, now)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.store[id]
	if !ok {
		return domain.ErrNotFound
	}
	a.Touch(now)
	return nil
}

func (m *MockAgentRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Agent, error) {
	if m.FindByIDFunc != nil {
		return m.FindByIDFunc(ctx, tx, id)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *MockAgentRepo) List(ctx context.Context, tx repository.Tx) ([]*model.Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*model.Agent, 0, len(m.store))
	for _, a := range m.store {
		cp := *a
		out = append(out, &cp)
	}
	return out, nil
}

func (m *MockAgentRepo) ListStale(ctx context.Context, tx repository.Tx, threshold time.Time) ([]*model.Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Agent
	for _, a := range m.store {
		if a.State != model.AgentStateOffline && a.LastSeenAt.Before(threshold) {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MockAgentRepo) ListOffline(ctx context.Context, tx repository.Tx) ([]*model.Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Agent
	for _, a := range m.store {
		if a.State == model.AgentStateOffline {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

// ---- Mock JobRepository ----

type MockJobRepo struct {
	mu    sync.RWMutex
	store map[string]*model.Job

	UpdateVersionedFunc func(ctx context.Context, tx repository.Tx, job *model.Job, expectedVersion int64) error
}

var _ repository.JobRepository = (*MockJobRepo)(nil)

func NewMockJobRepo() *MockJobRepo {
	return &MockJobRepo{store: make(map[string]*model.Job)}
}

func (m *MockJobRepo) Create(ctx context.Context, tx repository.Tx, job *model.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.store[job.ID]; ok {
		return domain.ErrOperationFailed
	}
	cp := *job
	m.store[job.ID] = &cp
	return nil
}

func (m *MockJobRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	j, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (m *MockJobRepo) ListPendingByRegion(ctx context.Context, tx repository.Tx, region model.Region) ([]*model.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Job
	for _, j := range m.store {
		if j.Status == model.JobStatusPending && j.Region == region {
			cp := *j
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MockJobRepo) ListRunningByOwners(ctx context.Context, tx repository.Tx, agentIDs []string) ([]*model.Job, error) {
	owners := make(map[string]struct{}, len(agentIDs))
	for _, id := range agentIDs {
		owners[id] = struct{}{}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Job
	for _, j := range m.store {
		if j.Status != model.JobStatusRunning {
			continue
		}
		if _, ok := owners[j.OwnerAgentID]; ok {
			cp := *j
			out = append(out, &cp)
		}
	}
	return out, nil
}

// UpdateVersioned mirrors the conditional UPDATE of the real store: the write
// lands only if the stored row still carries expectedVersion.
func (m *MockJobRepo) UpdateVersioned(ctx context.Context, tx repository.Tx, job *model.Job, expectedVersion int64) error {
	if m.UpdateVersionedFunc != nil {
		return m.UpdateVersionedFunc(ctx, tx, job, expectedVersion)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.store[job.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if stored.Version != expectedVersion {
		return domain.ErrVersionConflict
	}
	cp := *job
	m.store[job.ID] = &cp
	return nil
}

// mustAgent stores an agent directly, bypassing the use case, so tests can
// arrange arbitrary directory states.
func mustAgent(repo *MockAgentRepo, id string, region model.Region, state model.AgentState, lastSeen time.Time) *model.Agent {
	a := &model.Agent{
		ID:           id,
		Name:         "agent-" + id,
		Region:       region,
		Visibility:   model.AgentVisibilityPublic,
		State:        state,
		LastSeenAt:   lastSeen,
		RegisteredAt: lastSeen,
	}
	_ = repo.Save(context.Background(), repository.NoTX, a)
	return a
}

// mustJob stores a job directly in the given lifecycle state.
func mustJob(repo *MockJobRepo, id string, region model.Region, status model.JobStatus, owner string, retryCount, maxRetries int, version int64) *model.Job {
	j := &model.Job{
		ID:         id,
		Region:     region,
		Status:     status,
		RetryCount: retryCount,
		MaxRetries: maxRetries,
		Version:    version,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
	if status == model.JobStatusRunning {
		j.OwnerAgentID = owner
		started := time.Now()
		j.StartedAt = &started
	}
	_ = repo.Create(context.Background(), repository.NoTX, j)
	return j
}
