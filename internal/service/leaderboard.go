package service

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/decentralized-86/pumpshie-backend/internal/cache"
	"github.com/decentralized-86/pumpshie-backend/internal/model"
	"github.com/decentralized-86/pumpshie-backend/internal/repository"
)

// LeaderboardService serves the daily user and project rankings. Postgres is
// the source of truth; the Redis sorted set only short-circuits the common
// read when it has the day cached.
type LeaderboardService struct {
	days        *GlobalDayService
	sessionRepo *repository.SessionRepository
	projectRepo *repository.ProjectRepository
	userRepo    *repository.UserRepository
	cache       *cache.Leaderboard
}

// NewLeaderboardService creates a LeaderboardService. cache may be nil, in
// which case every read goes to Postgres.
func NewLeaderboardService(
	days *GlobalDayService,
	sessionRepo *repository.SessionRepository,
	projectRepo *repository.ProjectRepository,
	userRepo *repository.UserRepository,
	lbCache *cache.Leaderboard,
) *LeaderboardService {
	return &LeaderboardService{
		days:        days,
		sessionRepo: sessionRepo,
		projectRepo: projectRepo,
		userRepo:    userRepo,
		cache:       lbCache,
	}
}

// Daily returns the current day's top players. The Redis set carries only
// user IDs and scores, so cache hits are hydrated with display names from
// Postgres; an empty or failing cache falls back to the session history.
func (s *LeaderboardService) Daily(ctx context.Context, limit int) ([]*model.DailyRank, error) {
	day, err := s.days.GetCurrentDay(ctx)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		entries, err := s.cache.Top(ctx, day.ID, limit)
		if err != nil {
			log.Warn().Err(err).Int64("day_id", day.ID).Msg("Leaderboard cache read failed")
		} else if len(entries) > 0 {
			return s.hydrate(ctx, entries)
		}
	}

	return s.sessionRepo.DailyLeaderboard(ctx, day.ID, limit)
}

func (s *LeaderboardService) hydrate(ctx context.Context, entries []cache.Entry) ([]*model.DailyRank, error) {
	ranks := make([]*model.DailyRank, 0, len(entries))
	for _, e := range entries {
		user, err := s.userRepo.GetByID(ctx, e.UserID)
		if err != nil {
			log.Warn().Err(err).Int64("tg_id", e.UserID).Msg("Leaderboard hydrate skipped user")
			continue
		}
		ranks = append(ranks, &model.DailyRank{
			UserID:      e.UserID,
			DisplayName: user.DisplayName,
			Score:       e.Score,
		})
	}
	return ranks, nil
}

// Projects returns the current day's project ranking by daily points.
func (s *LeaderboardService) Projects(ctx context.Context, limit int) ([]*model.ProjectRank, error) {
	return s.projectRepo.DailyLeaderboard(ctx, limit)
}

// UserRank returns the user's zero-based position on today's board, or -1
// when the user has not played.
func (s *LeaderboardService) UserRank(ctx context.Context, tgID int64) (int64, error) {
	day, err := s.days.GetCurrentDay(ctx)
	if err != nil {
		return 0, err
	}

	if s.cache != nil {
		rank, err := s.cache.Rank(ctx, day.ID, tgID)
		if err == nil {
			return rank, nil
		}
		log.Warn().Err(err).Int64("tg_id", tgID).Msg("Rank cache read failed")
	}

	ranks, err := s.sessionRepo.DailyLeaderboard(ctx, day.ID, rankScanLimit)
	if err != nil {
		return 0, err
	}
	for i, r := range ranks {
		if r.UserID == tgID {
			return int64(i), nil
		}
	}
	return -1, nil
}

// rankScanLimit bounds the Postgres fallback scan for a single user's rank.
const rankScanLimit = 1000
