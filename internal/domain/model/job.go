package model

import (
	"encoding/json"
	"time"

	"benchfleet/internal/domain"

	"github.com/google/uuid"
)

type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

const DefaultMaxRetries = 3

// Job is one unit of benchmark work. Its Version is a monotonic token bumped
// on every state-changing mutation; writers must present the exact prior
// version, which is what keeps concurrent claims and the reclaimer from
// stepping on each other.
//
// Invariant: running ⇔ OwnerAgentID != "" ⇔ StartedAt != nil.
type Job struct {
	ID           string
	Region       Region
	Status       JobStatus
	OwnerAgentID string
	RetryCount   int
	MaxRetries   int
	Version      int64
	StartedAt    *time.Time
	Error        string
	Result       json.RawMessage
	Config       json.RawMessage
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func NewJob(id string, region Region, maxRetries int, config json.RawMessage) (*Job, error) {
	if id == "" {
		id = uuid.NewString()
	}
	if !ValidRegion(region) {
		return nil, domain.ErrInvalidArgument
	}
	if maxRetries < 0 {
		return nil, domain.ErrInvalidArgument
	}
	if maxRetries == 0 {
		maxRetries = DefaultMaxRetries
	}
	now := time.Now()
	return &Job{
		ID:         id,
		Region:     region,
		Status:     JobStatusPending,
		MaxRetries: maxRetries,
		Version:    1,
		Config:     config,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

func (j *Job) Terminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}

// Claim moves a pending job to running under agentID.
func (j *Job) Claim(agentID string, now time.Time) error {
	if j.Terminal() {
		return domain.ErrJobTerminal
	}
	if j.Status != JobStatusPending {
		return domain.ErrVersionConflict
	}
	started := now
	j.Status = JobStatusRunning
	j.OwnerAgentID = agentID
	j.StartedAt = &started
	j.Version++
	j.UpdatedAt = now
	return nil
}

// Finish records a successful result from the owning agent.
func (j *Job) Finish(agentID string, result json.RawMessage, now time.Time) error {
	if j.Status != JobStatusRunning || j.OwnerAgentID != agentID {
		return domain.ErrNotOwner
	}
	j.Status = JobStatusCompleted
	j.Result = result
	j.OwnerAgentID = ""
	j.StartedAt = nil
	j.Error = ""
	j.Version++
	j.UpdatedAt = now
	return nil
}

// Release takes a running job away from its owner, consuming one attempt.
// With retries left the job goes back to the claimable pool; otherwise it
// terminal-fails with reason. The retry counter counts successful releases
// only, so a job that exhausts maxRetries=2 ends failed with RetryCount=2.
func (j *Job) Release(reason string, now time.Time) {
	j.OwnerAgentID = ""
	j.StartedAt = nil
	j.Version++
	j.UpdatedAt = now
	if j.RetryCount >= j.MaxRetries {
		j.Status = JobStatusFailed
		j.Error = reason
		return
	}
	j.Status = JobStatusPending
	j.Error = ""
	j.RetryCount++
}
