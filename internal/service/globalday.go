// Package service provides business logic implementations.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/decentralized-86/pumpshie-backend/internal/model"
	"github.com/decentralized-86/pumpshie-backend/internal/repository"
)

// gameTZ is the competitive timezone. Midnights here move with DST, which is
// why day boundaries are computed in the location rather than by UTC offset.
const gameTZ = "America/New_York"

// ErrAmbiguousDayState is returned when more than one active day is found.
// The operation refuses to proceed rather than guess which day is real.
var ErrAmbiguousDayState = errors.New("more than one active global day")

// GlobalDayService owns the 24-hour competitive epoch every other component
// pivots on.
type GlobalDayService struct {
	dayRepo      *repository.GlobalDayRepository
	userRepo     *repository.UserRepository
	projectRepo  *repository.ProjectRepository
	rewardAmount int64
	loc          *time.Location
	now          func() time.Time
}

// NewGlobalDayService creates a GlobalDayService. rewardAmount is the token
// reward stamped onto each new day at creation; the reset job later pays out
// that snapshot, not whatever the config says at payout time.
func NewGlobalDayService(
	dayRepo *repository.GlobalDayRepository,
	userRepo *repository.UserRepository,
	projectRepo *repository.ProjectRepository,
	rewardAmount int64,
) (*GlobalDayService, error) {
	loc, err := time.LoadLocation(gameTZ)
	if err != nil {
		return nil, fmt.Errorf("failed to load game timezone: %w", err)
	}
	return &GlobalDayService{
		dayRepo:      dayRepo,
		userRepo:     userRepo,
		projectRepo:  projectRepo,
		rewardAmount: rewardAmount,
		loc:          loc,
		now:          time.Now,
	}, nil
}

// midnightBefore returns the most recent midnight in loc at or before t.
func midnightBefore(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}

// midnightAfter returns the first midnight in loc strictly after t.
// Constructing the date with day+1 lets the location apply DST, so a day can
// legitimately be 23 or 25 hours long at a transition.
func midnightAfter(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day()+1, 0, 0, 0, 0, loc)
}

// GetCurrentDay returns the active day, creating one anchored at the most
// recent EST midnight if none exists. Concurrent creation races resolve at
// the storage layer: the loser re-fetches the winner's row.
func (s *GlobalDayService) GetCurrentDay(ctx context.Context) (*model.GlobalDay, error) {
	day, err := s.dayRepo.GetActive(ctx)
	if err == nil {
		return day, nil
	}
	if !errors.Is(err, repository.ErrNoActiveDay) {
		return nil, err
	}

	now := s.now()
	start := midnightBefore(now, s.loc)
	end := midnightAfter(now, s.loc)

	day, err = s.dayRepo.Create(ctx, start, end, s.rewardAmount)
	if err == nil {
		log.Info().Int64("day_id", day.ID).Time("start", start).Time("end", end).
			Msg("Created new global day")
		return day, nil
	}
	if errors.Is(err, repository.ErrDayExists) {
		return s.dayRepo.GetActive(ctx)
	}
	return nil, err
}

// ResetGlobalDay closes the given day and opens the next one, then fans the
// per-day resets out to every user and project. The close is conditional on
// that exact row still being active, so two concurrent resets can never
// advance the day twice: the loser's deactivate matches zero rows and
// surfaces as ErrAmbiguousDayState. The fan-out is not part of the
// day-creation transaction; until it finishes the new day is active but not
// yet settled, which is logged for monitoring.
func (s *GlobalDayService) ResetGlobalDay(ctx context.Context, ending *model.GlobalDay) (*model.GlobalDay, error) {
	if err := s.dayRepo.Deactivate(ctx, ending.ID); err != nil {
		if errors.Is(err, repository.ErrNoActiveDay) {
			return nil, ErrAmbiguousDayState
		}
		return nil, fmt.Errorf("failed to close day %d: %w", ending.ID, err)
	}

	// The new day starts where the old one ended, even when the trigger
	// fired late.
	start := ending.EndTime
	end := midnightAfter(start, s.loc)

	newDay, err := s.dayRepo.Create(ctx, start, end, s.rewardAmount)
	if err != nil {
		if errors.Is(err, repository.ErrDayExists) {
			return nil, ErrAmbiguousDayState
		}
		return nil, err
	}

	log.Info().Int64("day_id", newDay.ID).Time("start", start).Time("end", end).
		Msg("Global day advanced, starting fan-out reset")

	usersReset, err := s.userRepo.ResetDaily(ctx)
	if err != nil {
		log.Error().Err(err).Msg("User fan-out reset failed, day is active but not settled")
	}
	projectsReset, err := s.projectRepo.ResetDaily(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Project fan-out reset failed, day is active but not settled")
	}

	log.Info().Int64("day_id", newDay.ID).
		Int64("users_reset", usersReset).
		Int64("projects_reset", projectsReset).
		Msg("Global day fan-out reset complete")

	return newDay, nil
}

// VerifyInvariant refuses to proceed when the single-active-day invariant is
// broken. Called at startup.
func (s *GlobalDayService) VerifyInvariant(ctx context.Context) error {
	n, err := s.dayRepo.CountActive(ctx)
	if err != nil {
		return err
	}
	if n > 1 {
		log.Error().Int("active_days", n).Msg("Global day invariant violated")
		return ErrAmbiguousDayState
	}
	return nil
}
