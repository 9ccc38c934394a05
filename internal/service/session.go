package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/decentralized-86/pumpshie-backend/internal/cache"
	"github.com/decentralized-86/pumpshie-backend/internal/model"
	"github.com/decentralized-86/pumpshie-backend/internal/repository"
)

// Session errors re-exported for callers that only import service.
var (
	ErrSessionNotActive = repository.ErrSessionNotActive
	ErrSessionNotFound  = repository.ErrSessionNotFound
	// ErrPlayDenied is returned when a session start fails the policy
	// chain. The decision carries the reason.
	ErrPlayDenied = errors.New("user cannot play")
)

// mcPointsDivisor converts score to MC points: one point per 1000 score.
const mcPointsDivisor = 1000

// GameService runs the session lifecycle: start, finalize, and the fan-out
// of a finished score into user, project and day aggregates.
type GameService struct {
	sessionRepo       *repository.SessionRepository
	userRepo          *repository.UserRepository
	projectRepo       *repository.ProjectRepository
	dayRepo           *repository.GlobalDayRepository
	access            *AccessService
	days              *GlobalDayService
	leaderboard       *cache.Leaderboard
	pointsPerObstacle int64
	now               func() time.Time
}

// NewGameService creates a GameService. leaderboard may be nil when the
// cache is disabled.
func NewGameService(
	sessionRepo *repository.SessionRepository,
	userRepo *repository.UserRepository,
	projectRepo *repository.ProjectRepository,
	dayRepo *repository.GlobalDayRepository,
	access *AccessService,
	days *GlobalDayService,
	leaderboard *cache.Leaderboard,
	pointsPerObstacle int64,
) *GameService {
	return &GameService{
		sessionRepo:       sessionRepo,
		userRepo:          userRepo,
		projectRepo:       projectRepo,
		dayRepo:           dayRepo,
		access:            access,
		days:              days,
		leaderboard:       leaderboard,
		pointsPerObstacle: pointsPerObstacle,
		now:               time.Now,
	}
}

// Score computes the deterministic score for a finished run.
func Score(obstaclesPassed int, pointsPerObstacle int64) int64 {
	if obstaclesPassed < 0 {
		return 0
	}
	return int64(obstaclesPassed) * pointsPerObstacle
}

// StartSession opens a session for the user against the current day. It does
// not consume a play; ConsumePlay is the explicit companion step so the two
// can be audited and retried independently.
func (s *GameService) StartSession(ctx context.Context, tgID int64, projectID *int64) (*model.GameSession, error) {
	user, err := s.access.SyncUser(ctx, tgID)
	if err != nil {
		return nil, err
	}

	decision, err := s.access.CanUserPlay(ctx, tgID)
	if err != nil {
		return nil, err
	}
	if !decision.CanPlay {
		return nil, ErrPlayDenied
	}

	day, err := s.days.GetCurrentDay(ctx)
	if err != nil {
		return nil, err
	}

	session, err := s.sessionRepo.Create(ctx, tgID, projectID, day.ID, user.AccessType)
	if err != nil {
		return nil, err
	}

	if projectID != nil && (user.ProjectID == nil || *user.ProjectID != *projectID) {
		s.joinProject(ctx, tgID, *projectID)
	}

	log.Debug().Int64("session_id", session.ID).Int64("tg_id", tgID).
		Str("reason", string(decision.Reason)).Msg("Session started")
	return session, nil
}

// joinProject moves the user onto a project and bumps its player counter.
// Best-effort; a failure only skews the counter, not the session.
func (s *GameService) joinProject(ctx context.Context, tgID, projectID int64) {
	if err := s.userRepo.SetProject(ctx, tgID, projectID); err != nil {
		log.Warn().Int64("tg_id", tgID).Int64("project_id", projectID).Err(err).
			Msg("Failed to record project switch")
		return
	}
	if err := s.projectRepo.IncrementPlayers(ctx, projectID); err != nil {
		log.Warn().Int64("project_id", projectID).Err(err).Msg("Failed to bump project players")
	}
}

// EndSession finalizes a session exactly once. The session's own persisted
// state reflects a single finalization; the three aggregate updates that
// follow are independent and each failure is logged without aborting the
// others.
func (s *GameService) EndSession(ctx context.Context, sessionID int64, obstaclesPassed int) (*model.GameSession, error) {
	score := Score(obstaclesPassed, s.pointsPerObstacle)
	mcPoints := score / mcPointsDivisor

	session, err := s.sessionRepo.Complete(ctx, sessionID, obstaclesPassed, score, mcPoints, s.now())
	if err != nil {
		return nil, err
	}

	isHighScore := false
	isDailyBest := false

	if best, err := s.userRepo.RecordSessionResult(ctx, session.UserID, score, session.PlayTime, mcPoints); err != nil {
		log.Error().Int64("session_id", sessionID).Err(err).Msg("User aggregate update failed")
	} else {
		isHighScore = best
	}

	if session.ProjectID != nil {
		if err := s.projectRepo.RecordGame(ctx, *session.ProjectID, session.UserID, score, mcPoints); err != nil {
			log.Error().Int64("session_id", sessionID).Err(err).Msg("Project aggregate update failed")
		}
	}

	if best, err := s.dayRepo.RecordGame(ctx, session.GlobalDayID, session.UserID, score, mcPoints); err != nil {
		log.Error().Int64("session_id", sessionID).Err(err).Msg("Day aggregate update failed")
	} else {
		isDailyBest = best
	}

	if isHighScore || isDailyBest {
		if err := s.sessionRepo.SetFlags(ctx, sessionID, isHighScore, isDailyBest); err != nil {
			log.Error().Int64("session_id", sessionID).Err(err).Msg("Session flag update failed")
		}
		session.IsHighScore = isHighScore
		session.IsDailyHighScore = isDailyBest
	}

	if s.leaderboard != nil {
		if err := s.leaderboard.RecordScore(ctx, session.GlobalDayID, session.UserID, score); err != nil {
			log.Warn().Int64("session_id", sessionID).Err(err).Msg("Leaderboard cache update failed")
		}
	}

	log.Info().Int64("session_id", sessionID).Int64("tg_id", session.UserID).
		Int64("score", score).Bool("daily_best", isDailyBest).Msg("Session completed")
	return session, nil
}
