package model

import (
	"time"

	"benchfleet/internal/domain"

	"github.com/google/uuid"
)

type Region string

const (
	RegionNA   Region = "na"
	RegionAPAC Region = "apac"
	RegionEU   Region = "eu"
)

// ValidRegion reports whether r is one of the fixed placement regions.
func ValidRegion(r Region) bool {
	switch r {
	case RegionNA, RegionAPAC, RegionEU:
		return true
	}
	return false
}

type AgentVisibility string

const (
	AgentVisibilityPublic  AgentVisibility = "public"
	AgentVisibilityPrivate AgentVisibility = "private"
)

type AgentState string

const (
	// AgentStateIdle means the agent is heartbeating and holds no job.
	AgentStateIdle AgentState = "idle"
	// AgentStateOccupied means exactly one running job names this agent as owner.
	AgentStateOccupied AgentState = "occupied"
	// AgentStateOffline means the agent stopped heartbeating; no job may keep
	// it as a live owner.
	AgentStateOffline AgentState = "offline"
)

// Agent is a registered eval worker process. It polls for jobs in its own
// region and runs at most one at a time.
type Agent struct {
	ID           string
	Name         string
	Region       Region
	Visibility   AgentVisibility
	State        AgentState
	LastSeenAt   time.Time
	RegisteredAt time.Time
}

func NewAgent(id, name string, region Region, visibility AgentVisibility) (*Agent, error) {
	if id == "" {
		id = uuid.NewString()
	}
	if name == "" {
		return nil, domain.ErrInvalidArgument
	}
	if region == "" {
		region = RegionNA
	}
	if !ValidRegion(region) {
		return nil, domain.ErrInvalidArgument
	}
	if visibility == "" {
		visibility = AgentVisibilityPublic
	}
	if visibility != AgentVisibilityPublic && visibility != AgentVisibilityPrivate {
		return nil, domain.ErrInvalidArgument
	}
	now := time.Now()
	return &Agent{
		ID:           id,
		Name:         name,
		Region:       region,
		Visibility:   visibility,
		State:        AgentStateIdle,
		LastSeenAt:   now,
		RegisteredAt: now,
	}, nil
}

// Touch records a heartbeat. A late heartbeat resurrects an offline agent to
// idle, but never resurrects jobs that were already reclaimed from it.
func (a *Agent) Touch(now time.Time) {
	a.LastSeenAt = now
	if a.State == AgentStateOffline {
		a.State = AgentStateIdle
	}
}

// StaleAt reports whether the agent missed the heartbeat window as of now.
// The boundary belongs to the fresh side: lastSeen == now-threshold is fresh.
func (a *Agent) StaleAt(now time.Time, threshold time.Duration) bool {
	return a.LastSeenAt.Before(now.Add(-threshold))
}
