// Package scheduler drives the time-based jobs: the midnight day flip and
// the periodic maintenance heartbeat. It owns no business logic; every tick
// funnels into the reset service's idempotent entry point.
package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/decentralized-86/pumpshie-backend/internal/service"
)

const (
	// heartbeatInterval also bounds how late a missed midnight flip runs.
	heartbeatInterval = 5 * time.Minute
	// staleSessionTTL is how long an unfinished session may sit before the
	// sweep expires it.
	staleSessionTTL = 30 * time.Minute
)

// Scheduler runs the daily reset on time and the sweeps on a heartbeat.
type Scheduler struct {
	reset *service.ResetService
	days  *service.GlobalDayService
}

// New creates a Scheduler.
func New(reset *service.ResetService, days *service.GlobalDayService) *Scheduler {
	return &Scheduler{reset: reset, days: days}
}

// Run blocks until ctx is cancelled. A dedicated timer fires at the current
// day's end; the heartbeat catches anything the timer misses across restarts
// and runs the garbage-collection sweeps.
func (s *Scheduler) Run(ctx context.Context) {
	boundary := time.NewTimer(s.untilBoundary(ctx))
	defer boundary.Stop()
	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	log.Info().Msg("Scheduler started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Scheduler stopped")
			return
		case <-boundary.C:
			s.tick(ctx)
			boundary.Reset(s.untilBoundary(ctx))
		case <-heartbeat.C:
			s.tick(ctx)
			s.reset.Sweep(ctx, staleSessionTTL)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	advanced, err := s.reset.CheckAndRun(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Daily reset check failed")
		return
	}
	if advanced {
		log.Info().Msg("Daily reset completed")
	}
}

// untilBoundary returns the wait until the active day ends, with a small
// cushion so the timer fires just past the boundary. Any failure to read the
// day falls back to the heartbeat.
func (s *Scheduler) untilBoundary(ctx context.Context) time.Duration {
	day, err := s.days.GetCurrentDay(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Could not read current day for boundary timer")
		return heartbeatInterval
	}
	wait := time.Until(day.EndTime) + 5*time.Second
	if wait < time.Second {
		wait = time.Second
	}
	return wait
}
