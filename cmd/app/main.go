// File: cmd/app/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"benchfleet/internal/config"
	pg "benchfleet/internal/infra/db/postgres"
	"benchfleet/internal/infra/logging"
	"benchfleet/internal/infra/metrics"
	red "benchfleet/internal/infra/redis"
	"benchfleet/internal/infra/sched"
	"benchfleet/internal/infra/scheduler"
	"benchfleet/internal/infra/web"
	"benchfleet/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs, verbose)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Info().Msg("dev mode enabled")
	}
	metrics.MustRegister()

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 10)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connect failed")
	}
	defer pool.Close()
	if err := pg.EnsureSchema(ctx, pool); err != nil {
		logger.Fatal().Err(err).Msg("schema migration failed")
	}

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connect failed")
	}
	defer redisClient.Close()
	rateLimiter := red.NewRateLimiter(redisClient)
	livenessCache := red.NewLivenessCache(redisClient, cfg.Redis.TTL)

	// ---- Repositories ----
	agentRepo := pg.NewAgentRepo(pool, livenessCache)
	jobRepo := pg.NewJobRepo(pool)
	txManager := pg.NewTxManager(pool)

	// ---- Use cases ----
	agentUC := usecase.NewAgentUseCase(agentRepo, logger)
	jobUC := usecase.NewJobUseCase(jobRepo, agentRepo, txManager, logger)
	reclaimUC := usecase.NewReclaimUseCase(agentRepo, jobRepo, txManager, cfg.Scheduler.StaleAfter, logger)

	// ---- HTTP API ----
	auth := web.NewAuthManager(cfg.Security.JWTSecret, cfg.Security.TokenTTL)
	srv := web.NewServer(agentUC, jobUC, auth, rateLimiter, cfg.API.AdminKey, cfg.API.PollLimit, cfg.API.PollWindow, logger)
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.API.Port),
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("http api listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("http server stopped")
			cancel()
		}
	}()

	// ---- Stale-lease reclaimer ----
	reclaimer := scheduler.NewScheduler(cfg.Scheduler.ReclaimInterval, sched.NewReclaimWorker(reclaimUC, logger), logger)
	reclaimer.Start(ctx)

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigc:
		logger.Info().Msg("shutdown requested")
	case <-ctx.Done():
	}
	cancel()
	reclaimer.Stop()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown failed")
	}
}
