//go:build !integration

package web_test

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/rs/zerolog"

	"benchfleet/internal/domain"
	"benchfleet/internal/domain/model"
	"benchfleet/internal/usecase"
)

func newTestLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

// ---- Mock AgentUseCase ----

type MockAgentUC struct {
	RegisterFunc  func(ctx context.Context, name string, region model.Region, visibility model.AgentVisibility) (*model.Agent, error)
	HeartbeatFunc func(ctx context.Context, agentID string) error
	GetFunc       func(ctx context.Context, agentID string) (*model.Agent, error)
	ListFunc      func(ctx context.Context) ([]*model.Agent, error)
}

var _ usecase.AgentUseCase = (*MockAgentUC)(nil)

func (m *MockAgentUC) Register(ctx context.Context, name string, region model.Region, visibility model.AgentVisibility) (*model.Agent, error) {
	if m.RegisterFunc != nil {
		return m.RegisterFunc(ctx, name, region, visibility)
	}
	return model.NewAgent("", name, region, visibility)
}

func (m *MockAgentUC) Heartbeat(ctx context.Context, agentID string) error {
	if m.HeartbeatFunc != nil {
		return m.HeartbeatFunc(ctx, agentID)
	}
	return nil
}

func (m *MockAgentUC) Get(ctx context.Context, agentID string) (*model.Agent, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, agentID)
	}
	return &model.Agent{ID: agentID, Name: "mock", Region: model.RegionNA, State: model.AgentStateIdle, LastSeenAt: time.Now()}, nil
}

func (m *MockAgentUC) List(ctx context.Context) ([]*model.Agent, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx)
	}
	return nil, nil
}

// ---- Mock JobUseCase ----

type MockJobUC struct {
	CreateFunc        func(ctx context.Context, region model.Region, maxRetries int, config json.RawMessage) (*model.Job, error)
	GetFunc           func(ctx context.Context, jobID string) (*model.Job, error)
	ListClaimableFunc func(ctx context.Context, region model.Region) ([]*model.Job, error)
	ClaimFunc         func(ctx context.Context, jobID, agentID string, expectedVersion int64) (*model.Job, error)
	CompleteFunc      func(ctx context.Context, jobID, agentID string, result json.RawMessage) error
	FailFunc          func(ctx context.Context, jobID, agentID, reason string) (*model.Job, error)
}

var _ usecase.JobUseCase = (*MockJobUC)(nil)

func (m *MockJobUC) Create(ctx context.Context, region model.Region, maxRetries int, config json.RawMessage) (*model.Job, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, region, maxRetries, config)
	}
	return model.NewJob("", region, maxRetries, config)
}

func (m *MockJobUC) Get(ctx context.Context, jobID string) (*model.Job, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, jobID)
	}
	return nil, domain.ErrNotFound
}

func (m *MockJobUC) ListClaimable(ctx context.Context, region model.Region) ([]*model.Job, error) {
	if m.ListClaimableFunc != nil {
		return m.ListClaimableFunc(ctx, region)
	}
	return nil, nil
}

func (m *MockJobUC) Claim(ctx context.Context, jobID, agentID string, expectedVersion int64) (*model.Job, error) {
	if m.ClaimFunc != nil {
		return m.ClaimFunc(ctx, jobID, agentID, expectedVersion)
	}
	return nil, domain.ErrVersionConflict
}

func (m *MockJobUC) Complete(ctx context.Context, jobID, agentID string, result json.RawMessage) error {
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, jobID, agentID, result)
	}
	return nil
}

func (m *MockJobUC) Fail(ctx context.Context, jobID, agentID, reason string) (*model.Job, error) {
	if m.FailFunc != nil {
		return m.FailFunc(ctx, jobID, agentID, reason)
	}
	return nil, domain.ErrNotFound
}

// ---- Mock PollLimiter ----

type MockLimiter struct {
	AllowFunc func(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

func (m *MockLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if m.AllowFunc != nil {
		return m.AllowFunc(ctx, key, limit, window)
	}
	return true, nil
}
