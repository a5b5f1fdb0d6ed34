package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Reclaimer is the minimal interface the scheduler needs from the
// stale-lease reclamation use-case: one pass as of the given instant.
type Reclaimer interface {
	Sweep(ctx context.Context, now time.Time) error
}

// Scheduler periodically runs a Reclaimer's Sweep method. Runs do not need
// overlap protection: each pass runs in its own serializable transaction and
// a pass over an already-reclaimed system is a no-op.
type Scheduler struct {
	interval  time.Duration
	reclaimer Reclaimer
	log       *zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewScheduler constructs a scheduler that runs reclaimer.Sweep every `interval`.
// If interval <= 0 it defaults to 1 minute.
func NewScheduler(interval time.Duration, reclaimer Reclaimer, logger *zerolog.Logger) *Scheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	slog := logger.With().Str("component", "Scheduler").Logger()
	return &Scheduler{
		interval:  interval,
		reclaimer: reclaimer,
		log:       &slog,
		done:      make(chan struct{}),
	}
}

// Start begins the scheduler loop in a background goroutine.
// parentCtx is used as the parent for internal contexts; calling Start multiple times has no effect.
func (s *Scheduler) Start(parentCtx context.Context) {
	if s.ctx != nil {
		// already started
		return
	}
	ctx, cancel := context.WithCancel(parentCtx)
	s.ctx = ctx
	s.cancel = cancel

	go s.loop()
}

// loop runs the periodic sweep until cancelled.
func (s *Scheduler) loop() {
	ticker := time.NewTicker(s.interval)
	defer func() {
		ticker.Stop()
		close(s.done)
	}()

	s.log.Info().Dur("interval", s.interval).Msg("scheduler started")
	for {
		select {
		case <-s.ctx.Done():
			s.log.Info().Msg("context cancelled; stopping")
			return
		case <-ticker.C:
			// run the sweep with a bounded timeout
			runCtx, cancel := context.WithTimeout(s.ctx, 30*time.Second)
			func() {
				defer cancel()
				if err := s.reclaimer.Sweep(runCtx, time.Now()); err != nil {
					s.log.Error().Err(err).Msg("sweep failed")
				}
			}()
		}
	}
}

// Stop cancels the scheduler and waits for the loop to finish. It is idempotent.
func (s *Scheduler) Stop() {
	if s.cancel == nil {
		// not started
		return
	}
	// cancel and wait for done
	s.cancel()
	<-s.done
	// reset for potential restart
	s.ctx = nil
	s.cancel = nil
	s.done = make(chan struct{})
	s.log.Info().Msg("scheduler stopped")
}
