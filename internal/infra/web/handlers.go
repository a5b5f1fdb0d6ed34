package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"benchfleet/internal/domain"
	"benchfleet/internal/domain/model"
	"benchfleet/internal/infra/metrics"
	red "benchfleet/internal/infra/redis"

	"github.com/go-chi/chi/v5"
)

type agentSummary struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Region     string    `json:"region"`
	Visibility string    `json:"visibility"`
	State      string    `json:"state"`
	LastSeenAt time.Time `json:"last_seen_at"`
}

func toAgentSummary(a *model.Agent) agentSummary {
	return agentSummary{
		ID:         a.ID,
		Name:       a.Name,
		Region:     string(a.Region),
		Visibility: string(a.Visibility),
		State:      string(a.State),
		LastSeenAt: a.LastSeenAt,
	}
}

type jobSummary struct {
	ID         string          `json:"id"`
	Region     string          `json:"region"`
	Status     string          `json:"status"`
	Version    int64           `json:"version"`
	RetryCount int             `json:"retry_count"`
	MaxRetries int             `json:"max_retries"`
	Config     json.RawMessage `json:"config,omitempty"`
}

type jobDetail struct {
	jobSummary
	OwnerAgentID string          `json:"owner_agent_id,omitempty"`
	StartedAt    *time.Time      `json:"started_at,omitempty"`
	Error        string          `json:"error,omitempty"`
	Result       json.RawMessage `json:"result,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

func toJobSummary(j *model.Job) jobSummary {
	return jobSummary{
		ID:         j.ID,
		Region:     string(j.Region),
		Status:     string(j.Status),
		Version:    j.Version,
		RetryCount: j.RetryCount,
		MaxRetries: j.MaxRetries,
		Config:     j.Config,
	}
}

func toJobDetail(j *model.Job) jobDetail {
	return jobDetail{
		jobSummary:   toJobSummary(j),
		OwnerAgentID: j.OwnerAgentID,
		StartedAt:    j.StartedAt,
		Error:        j.Error,
		Result:       j.Result,
		CreatedAt:    j.CreatedAt,
		UpdatedAt:    j.UpdatedAt,
	}
}

// ---- agent-facing handlers ----

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name       string `json:"name"`
		Region     string `json:"region"`
		Visibility string `json:"visibility"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	agent, err := s.agentUC.Register(r.Context(), req.Name, model.Region(req.Region), model.AgentVisibility(req.Visibility))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	token, err := s.auth.Mint(agent.ID, string(agent.Region))
	if err != nil {
		s.log.Error().Err(err).Msg("failed to mint agent token")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	metrics.IncAgentRegistered(string(agent.Region))
	writeJSON(w, http.StatusCreated, map[string]any{
		"agent": toAgentSummary(agent),
		"token": token,
	})
}

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	agentID := agentIDFrom(r.Context())
	if err := s.agentUC.Heartbeat(r.Context(), agentID); err != nil {
		s.writeDomainError(w, err)
		return
	}
	metrics.IncHeartbeat()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	agentID := agentIDFrom(r.Context())
	if s.limiter != nil {
		ok, err := s.limiter.Allow(r.Context(), red.AgentPollKey(agentID), s.pollLimit, s.pollWindow)
		if err != nil {
			// The limiter is advisory; a broken redis must not stop polling.
			s.log.Warn().Err(err).Msg("poll limiter unavailable")
		} else if !ok {
			writeError(w, http.StatusTooManyRequests, "poll rate exceeded")
			return
		}
	}
	agent, err := s.agentUC.Get(r.Context(), agentID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	jobs, err := s.jobUC.ListClaimable(r.Context(), agent.Region)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	out := make([]jobSummary, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, toJobSummary(j))
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": out})
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	agentID := agentIDFrom(r.Context())
	jobID := chi.URLParam(r, "jobID")
	var req struct {
		Version int64 `json:"version"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	job, err := s.jobUC.Claim(r.Context(), jobID, agentID, req.Version)
	if err != nil {
		if domain.IsConflict(err) {
			metrics.IncJobClaim("conflict")
		} else {
			metrics.IncJobClaim("error")
		}
		s.writeDomainError(w, err)
		return
	}
	metrics.IncJobClaim("won")
	writeJSON(w, http.StatusOK, toJobSummary(job))
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	agentID := agentIDFrom(r.Context())
	jobID := chi.URLParam(r, "jobID")
	var req struct {
		Result json.RawMessage `json:"result,omitempty"`
		Error  string          `json:"error,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	if req.Error != "" {
		// The failure either requeued or terminal-failed the job; the use case
		// returns the released job so the outcome reported here is the one the
		// release actually produced, not whatever a later claim made of it.
		job, err := s.jobUC.Fail(r.Context(), jobID, agentID, req.Error)
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		metrics.IncJobCompleted(string(job.Status))
		writeJSON(w, http.StatusOK, toJobSummary(job))
		return
	}

	if err := s.jobUC.Complete(r.Context(), jobID, agentID, req.Result); err != nil {
		s.writeDomainError(w, err)
		return
	}
	metrics.IncJobCompleted("completed")
	w.WriteHeader(http.StatusNoContent)
}

// ---- admin handlers ----

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Region     string          `json:"region"`
		MaxRetries int             `json:"max_retries"`
		Config     json.RawMessage `json:"config,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	job, err := s.jobUC.Create(r.Context(), model.Region(req.Region), req.MaxRetries, req.Config)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toJobSummary(job))
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.jobUC.Get(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toJobDetail(job))
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := s.agentUC.List(r.Context())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	out := make([]agentSummary, 0, len(agents))
	for _, a := range agents {
		out = append(out, toAgentSummary(a))
	}
	writeJSON(w, http.StatusOK, map[string]any{"agents": out})
}

// ---- helpers ----

func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, domain.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, "invalid argument")
	case errors.Is(err, domain.ErrNotOwner):
		writeError(w, http.StatusConflict, "not the current owner")
	case domain.IsConflict(err):
		writeError(w, http.StatusConflict, "claim conflict")
	default:
		s.log.Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
