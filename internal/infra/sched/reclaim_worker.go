package sched

import (
	"context"
	"time"

	"benchfleet/internal/infra/metrics"
	"benchfleet/internal/usecase"

	"github.com/rs/zerolog"
)

// ReclaimWorker adapts the reclaim use-case to the periodic scheduler and
// keeps the reclamation metrics.
type ReclaimWorker struct {
	reclaimUC usecase.ReclaimUseCase
	log       *zerolog.Logger
}

func NewReclaimWorker(reclaimUC usecase.ReclaimUseCase, logger *zerolog.Logger) *ReclaimWorker {
	wlog := logger.With().Str("component", "ReclaimWorker").Logger()
	return &ReclaimWorker{reclaimUC: reclaimUC, log: &wlog}
}

// Sweep runs one reclamation pass as of now.
func (w *ReclaimWorker) Sweep(ctx context.Context, now time.Time) error {
	report, err := w.reclaimUC.ReclaimStale(ctx, now)
	if err != nil {
		w.log.Error().Err(err).Msg("reclaim pass failed")
		return err
	}
	if report.Empty() {
		return nil
	}
	metrics.AddAgentsMarkedOffline(report.AgentsMarkedOffline)
	metrics.AddJobsReclaimed("requeued", report.JobsRequeued)
	metrics.AddJobsReclaimed("failed", report.JobsFailed)
	w.log.Info().
		Int("agents_offline", report.AgentsMarkedOffline).
		Int("jobs_requeued", report.JobsRequeued).
		Int("jobs_failed", report.JobsFailed).
		Msg("reclaim pass finished")
	return nil
}
