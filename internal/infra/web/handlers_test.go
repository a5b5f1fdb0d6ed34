//go:build !integration

package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"benchfleet/internal/domain"
	"benchfleet/internal/domain/model"
	"benchfleet/internal/infra/web"
)

const testSecret = "test-secret"

func newTestServer(agentUC *MockAgentUC, jobUC *MockJobUC, limiter web.PollLimiter) (*httptest.Server, *web.AuthManager) {
	auth := web.NewAuthManager(testSecret, time.Hour)
	srv := web.NewServer(agentUC, jobUC, auth, limiter, "admin-key", 60, time.Minute, newTestLogger())
	return httptest.NewServer(srv.Router()), auth
}

func doJSON(t *testing.T, method, url, token string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	} else {
		buf.WriteString("{}")
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatal(err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func TestRegisterAndHeartbeat(t *testing.T) {
	agentUC := &MockAgentUC{}
	heartbeats := make(chan string, 1)
	agentUC.HeartbeatFunc = func(ctx context.Context, agentID string) error {
		heartbeats <- agentID
		return nil
	}
	ts, _ := newTestServer(agentUC, &MockJobUC{}, nil)
	defer ts.Close()

	// Register is open and returns a usable token.
	resp := doJSON(t, http.MethodPost, ts.URL+"/api/v1/agents", "", map[string]string{"name": "runner-1", "region": "eu"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d", resp.StatusCode)
	}
	var reg struct {
		Agent struct {
			ID     string `json:"id"`
			Region string `json:"region"`
			State  string `json:"state"`
		} `json:"agent"`
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&reg); err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if reg.Token == "" || reg.Agent.State != "idle" || reg.Agent.Region != "eu" {
		t.Fatalf("unexpected register payload: %+v", reg)
	}

	// The minted token authenticates the heartbeat and resolves to the id.
	resp = doJSON(t, http.MethodPost, ts.URL+"/api/v1/agents/heartbeat", reg.Token, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("heartbeat: expected 204, got %d", resp.StatusCode)
	}
	resp.Body.Close()
	select {
	case id := <-heartbeats:
		if id != reg.Agent.ID {
			t.Errorf("heartbeat for %q, want %q", id, reg.Agent.ID)
		}
	default:
		t.Error("heartbeat never reached the use case")
	}

	// No token, no heartbeat.
	resp = doJSON(t, http.MethodPost, ts.URL+"/api/v1/agents/heartbeat", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestListJobs(t *testing.T) {
	jobUC := &MockJobUC{}
	jobUC.ListClaimableFunc = func(ctx context.Context, region model.Region) ([]*model.Job, error) {
		if region != model.RegionNA {
			t.Errorf("expected poll in the agent's region, got %q", region)
		}
		j, _ := model.NewJob("j1", model.RegionNA, 3, nil)
		return []*model.Job{j}, nil
	}

	t.Run("returns pending jobs in the agent's region", func(t *testing.T) {
		ts, auth := newTestServer(&MockAgentUC{}, jobUC, nil)
		defer ts.Close()
		token, _ := auth.Mint("a1", "na")

		resp := doJSON(t, http.MethodGet, ts.URL+"/api/v1/jobs", token, nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}
		var out struct {
			Jobs []struct {
				ID      string `json:"id"`
				Version int64  `json:"version"`
			} `json:"jobs"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if len(out.Jobs) != 1 || out.Jobs[0].ID != "j1" || out.Jobs[0].Version != 1 {
			t.Errorf("unexpected poll payload: %+v", out)
		}
	})

	t.Run("over-polling is throttled", func(t *testing.T) {
		limiter := &MockLimiter{AllowFunc: func(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
			return false, nil
		}}
		ts, auth := newTestServer(&MockAgentUC{}, jobUC, limiter)
		defer ts.Close()
		token, _ := auth.Mint("a1", "na")

		resp := doJSON(t, http.MethodGet, ts.URL+"/api/v1/jobs", token, nil)
		if resp.StatusCode != http.StatusTooManyRequests {
			t.Fatalf("expected 429, got %d", resp.StatusCode)
		}
		resp.Body.Close()
	})
}

func TestClaim(t *testing.T) {
	t.Run("winning claim returns the new version", func(t *testing.T) {
		jobUC := &MockJobUC{}
		jobUC.ClaimFunc = func(ctx context.Context, jobID, agentID string, expectedVersion int64) (*model.Job, error) {
			if jobID != "j1" || agentID != "a1" || expectedVersion != 7 {
				t.Errorf("claim args (%s,%s,%d)", jobID, agentID, expectedVersion)
			}
			j, _ := model.NewJob("j1", model.RegionNA, 3, nil)
			j.Version = 8
			_ = j.Claim(agentID, time.Now())
			j.Version = 8
			return j, nil
		}
		ts, auth := newTestServer(&MockAgentUC{}, jobUC, nil)
		defer ts.Close()
		token, _ := auth.Mint("a1", "na")

		resp := doJSON(t, http.MethodPost, ts.URL+"/api/v1/jobs/j1/claim", token, map[string]int64{"version": 7})
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}
		var out struct {
			Status  string `json:"status"`
			Version int64  `json:"version"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if out.Status != "running" || out.Version != 8 {
			t.Errorf("unexpected claim payload: %+v", out)
		}
	})

	t.Run("lost race maps to 409", func(t *testing.T) {
		jobUC := &MockJobUC{}
		jobUC.ClaimFunc = func(ctx context.Context, jobID, agentID string, expectedVersion int64) (*model.Job, error) {
			return nil, domain.ErrVersionConflict
		}
		ts, auth := newTestServer(&MockAgentUC{}, jobUC, nil)
		defer ts.Close()
		token, _ := auth.Mint("a1", "na")

		resp := doJSON(t, http.MethodPost, ts.URL+"/api/v1/jobs/j1/claim", token, map[string]int64{"version": 1})
		if resp.StatusCode != http.StatusConflict {
			t.Fatalf("expected 409, got %d", resp.StatusCode)
		}
		resp.Body.Close()
	})

	t.Run("unknown job maps to 404", func(t *testing.T) {
		jobUC := &MockJobUC{}
		jobUC.ClaimFunc = func(ctx context.Context, jobID, agentID string, expectedVersion int64) (*model.Job, error) {
			return nil, domain.ErrNotFound
		}
		ts, auth := newTestServer(&MockAgentUC{}, jobUC, nil)
		defer ts.Close()
		token, _ := auth.Mint("a1", "na")

		resp := doJSON(t, http.MethodPost, ts.URL+"/api/v1/jobs/ghost/claim", token, map[string]int64{"version": 1})
		if resp.StatusCode != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", resp.StatusCode)
		}
		resp.Body.Close()
	})
}

func TestComplete(t *testing.T) {
	t.Run("owner result is accepted", func(t *testing.T) {
		jobUC := &MockJobUC{}
		var gotResult string
		jobUC.CompleteFunc = func(ctx context.Context, jobID, agentID string, result json.RawMessage) error {
			gotResult = string(result)
			return nil
		}
		ts, auth := newTestServer(&MockAgentUC{}, jobUC, nil)
		defer ts.Close()
		token, _ := auth.Mint("a1", "na")

		resp := doJSON(t, http.MethodPost, ts.URL+"/api/v1/jobs/j1/complete", token, map[string]any{"result": map[string]int{"score": 9}})
		if resp.StatusCode != http.StatusNoContent {
			t.Fatalf("expected 204, got %d", resp.StatusCode)
		}
		resp.Body.Close()
		if gotResult != `{"score":9}` {
			t.Errorf("unexpected result payload %q", gotResult)
		}
	})

	t.Run("zombie completion maps to 409", func(t *testing.T) {
		jobUC := &MockJobUC{}
		jobUC.CompleteFunc = func(ctx context.Context, jobID, agentID string, result json.RawMessage) error {
			return domain.ErrNotOwner
		}
		ts, auth := newTestServer(&MockAgentUC{}, jobUC, nil)
		defer ts.Close()
		token, _ := auth.Mint("a1", "na")

		resp := doJSON(t, http.MethodPost, ts.URL+"/api/v1/jobs/j1/complete", token, map[string]any{"result": map[string]bool{"ok": true}})
		if resp.StatusCode != http.StatusConflict {
			t.Fatalf("expected 409, got %d", resp.StatusCode)
		}
		resp.Body.Close()
	})

	t.Run("error payload routes through the failure policy", func(t *testing.T) {
		jobUC := &MockJobUC{}
		var gotReason string
		jobUC.FailFunc = func(ctx context.Context, jobID, agentID, reason string) (*model.Job, error) {
			gotReason = reason
			j, _ := model.NewJob(jobID, model.RegionNA, 3, nil)
			j.RetryCount = 1
			return j, nil
		}
		ts, auth := newTestServer(&MockAgentUC{}, jobUC, nil)
		defer ts.Close()
		token, _ := auth.Mint("a1", "na")

		resp := doJSON(t, http.MethodPost, ts.URL+"/api/v1/jobs/j1/complete", token, map[string]string{"error": "harness crashed"})
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}
		var out struct {
			Status     string `json:"status"`
			RetryCount int    `json:"retry_count"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if gotReason != "harness crashed" {
			t.Errorf("reason not forwarded, got %q", gotReason)
		}
		if out.Status != "pending" || out.RetryCount != 1 {
			t.Errorf("unexpected payload after reported failure: %+v", out)
		}
	})
}

func TestAdminEndpoints(t *testing.T) {
	t.Run("job creation requires the admin key", func(t *testing.T) {
		ts, _ := newTestServer(&MockAgentUC{}, &MockJobUC{}, nil)
		defer ts.Close()

		resp := doJSON(t, http.MethodPost, ts.URL+"/api/v1/jobs", "", map[string]string{"region": "na"})
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("expected 401 without key, got %d", resp.StatusCode)
		}
		resp.Body.Close()

		resp = doJSON(t, http.MethodPost, ts.URL+"/api/v1/jobs", "wrong-key", map[string]string{"region": "na"})
		if resp.StatusCode != http.StatusForbidden {
			t.Fatalf("expected 403 with wrong key, got %d", resp.StatusCode)
		}
		resp.Body.Close()

		resp = doJSON(t, http.MethodPost, ts.URL+"/api/v1/jobs", "admin-key", map[string]any{"region": "apac", "max_retries": 2})
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("expected 201, got %d", resp.StatusCode)
		}
		var out struct {
			Region     string `json:"region"`
			Status     string `json:"status"`
			MaxRetries int    `json:"max_retries"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if out.Region != "apac" || out.Status != "pending" || out.MaxRetries != 2 {
			t.Errorf("unexpected created job: %+v", out)
		}
	})

	t.Run("agent directory is readable", func(t *testing.T) {
		agentUC := &MockAgentUC{}
		agentUC.ListFunc = func(ctx context.Context) ([]*model.Agent, error) {
			return []*model.Agent{
				{ID: "a1", Name: "runner", Region: model.RegionNA, State: model.AgentStateOffline, LastSeenAt: time.Now().Add(-time.Hour)},
			}, nil
		}
		ts, _ := newTestServer(agentUC, &MockJobUC{}, nil)
		defer ts.Close()

		resp := doJSON(t, http.MethodGet, ts.URL+"/api/v1/agents", "admin-key", nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}
		var out struct {
			Agents []struct {
				ID    string `json:"id"`
				State string `json:"state"`
			} `json:"agents"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if len(out.Agents) != 1 || out.Agents[0].State != "offline" {
			t.Errorf("unexpected directory payload: %+v", out)
		}
	})
}
