package web

import (
	"context"
	"net/http"
	"strings"
	"time"

	"benchfleet/internal/usecase"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// PollLimiter caps job-poll requests per agent; the redis rate limiter
// implements it in production. Nil disables limiting.
type PollLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type Server struct {
	agentUC usecase.AgentUseCase
	jobUC   usecase.JobUseCase
	auth    *AuthManager
	limiter PollLimiter

	adminKey   string
	pollLimit  int
	pollWindow time.Duration
	log        *zerolog.Logger
}

func NewServer(
	agentUC usecase.AgentUseCase,
	jobUC usecase.JobUseCase,
	auth *AuthManager,
	limiter PollLimiter,
	adminKey string,
	pollLimit int,
	pollWindow time.Duration,
	logger *zerolog.Logger,
) *Server {
	return &Server{
		agentUC:    agentUC,
		jobUC:      jobUC,
		auth:       auth,
		limiter:    limiter,
		adminKey:   adminKey,
		pollLimit:  pollLimit,
		pollWindow: pollWindow,
		log:        logger,
	}
}

// Router builds the chi router for the agent-facing and admin API.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	// Global middlewares
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(api chi.Router) {
		// Registration is the only unauthenticated agent call; it hands out
		// the token everything else requires.
		api.Post("/agents", s.handleRegister)

		api.Group(func(g chi.Router) {
			g.Use(s.agentAuth)
			g.Post("/agents/heartbeat", s.handleHeartbeat)
			g.Get("/jobs", s.handleListJobs)
			g.Post("/jobs/{jobID}/claim", s.handleClaim)
			g.Post("/jobs/{jobID}/complete", s.handleComplete)
		})

		api.Group(func(g chi.Router) {
			g.Use(s.adminAuth)
			g.Post("/jobs", s.handleCreateJob)
			g.Get("/jobs/{jobID}", s.handleGetJob)
			g.Get("/agents", s.handleListAgents)
		})
	})

	return r
}

type ctxKey string

const ctxAgentID ctxKey = "agent_id"

func agentIDFrom(ctx context.Context) string {
	if v := ctx.Value(ctxAgentID); v != nil {
		return v.(string)
	}
	return ""
}

// agentAuth resolves the bearer token to an agent identity.
func (s *Server) agentAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := s.auth.ParseFromRequest(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		ctx := context.WithValue(r.Context(), ctxAgentID, claims.Subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// adminAuth provides simple Bearer token authentication for the admin API.
func (s *Server) adminAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.adminKey == "" {
			s.log.Error().Msg("admin API key is not configured")
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		hdr := r.Header.Get("Authorization")
		parts := strings.Split(hdr, " ")
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		if parts[1] != s.adminKey {
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		next.ServeHTTP(w, r)
	})
}
