package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/decentralized-86/pumpshie-backend/internal/model"
)

// Session-related errors.
var (
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionNotActive is returned when finalizing a session that is
	// already completed or expired. A second end call can never re-credit.
	ErrSessionNotActive = errors.New("session is not active")
)

const sessionColumns = `id, user_id, project_id, global_day_id, status, current_score, high_score,
		obstacles_passed, started_at, ended_at, play_time, access_type,
		mc_points_earned, is_high_score, is_daily_high_score, created_at`

// SessionRepository handles game session persistence.
type SessionRepository struct {
	pool *pgxpool.Pool
}

// NewSessionRepository creates a new SessionRepository instance.
func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

func scanSession(row pgx.Row) (*model.GameSession, error) {
	var s model.GameSession
	err := row.Scan(
		&s.ID,
		&s.UserID,
		&s.ProjectID,
		&s.GlobalDayID,
		&s.Status,
		&s.CurrentScore,
		&s.HighScore,
		&s.ObstaclesPassed,
		&s.StartedAt,
		&s.EndedAt,
		&s.PlayTime,
		&s.AccessType,
		&s.MCPointsEarned,
		&s.IsHighScore,
		&s.IsDailyHighScore,
		&s.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Create opens a session bound to the given day, with the user's access type
// snapshotted at start time.
func (r *SessionRepository) Create(ctx context.Context, userID int64, projectID *int64, dayID int64, accessType model.AccessType) (*model.GameSession, error) {
	query := fmt.Sprintf(`
		INSERT INTO game_sessions (user_id, project_id, global_day_id, status, access_type, started_at, created_at)
		VALUES ($1, $2, $3, 'active', $4, NOW(), NOW())
		RETURNING %s
	`, sessionColumns)

	session, err := scanSession(r.pool.QueryRow(ctx, query, userID, projectID, dayID, accessType))
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return session, nil
}

// GetByID retrieves a session by ID.
func (r *SessionRepository) GetByID(ctx context.Context, sessionID int64) (*model.GameSession, error) {
	query := fmt.Sprintf(`SELECT %s FROM game_sessions WHERE id = $1`, sessionColumns)

	session, err := scanSession(r.pool.QueryRow(ctx, query, sessionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return session, nil
}

// Complete finalizes an active session exactly once. The status guard in the
// WHERE clause makes duplicate end calls lose: they match no row and get
// ErrSessionNotActive instead of double-crediting.
func (r *SessionRepository) Complete(ctx context.Context, sessionID int64, obstaclesPassed int, score, mcPoints int64, endedAt time.Time) (*model.GameSession, error) {
	query := fmt.Sprintf(`
		UPDATE game_sessions
		SET status = 'completed',
		    obstacles_passed = $2,
		    current_score = $3,
		    high_score = GREATEST(high_score, $3),
		    mc_points_earned = $4,
		    ended_at = $5,
		    play_time = GREATEST(0, EXTRACT(EPOCH FROM ($5 - started_at))::BIGINT)
		WHERE id = $1 AND status = 'active'
		RETURNING %s
	`, sessionColumns)

	session, err := scanSession(r.pool.QueryRow(ctx, query, sessionID, obstaclesPassed, score, mcPoints, endedAt))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Distinguish a missing row from a finished one.
			if _, getErr := r.GetByID(ctx, sessionID); getErr != nil {
				return nil, getErr
			}
			return nil, ErrSessionNotActive
		}
		return nil, fmt.Errorf("failed to complete session: %w", err)
	}
	return session, nil
}

// SetFlags stamps the personal-best / daily-best flags after the aggregate
// fan-out has decided them.
func (r *SessionRepository) SetFlags(ctx context.Context, sessionID int64, isHighScore, isDailyHighScore bool) error {
	const query = `
		UPDATE game_sessions
		SET is_high_score = $2, is_daily_high_score = $3
		WHERE id = $1
	`

	if _, err := r.pool.Exec(ctx, query, sessionID, isHighScore, isDailyHighScore); err != nil {
		return fmt.Errorf("failed to set session flags: %w", err)
	}
	return nil
}

// ExpireStale marks sessions that never ended as expired. Reserved for the
// periodic cleanup pass.
func (r *SessionRepository) ExpireStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	const query = `
		UPDATE game_sessions
		SET status = 'expired'
		WHERE status = 'active' AND started_at < NOW() - $1::INTERVAL
	`

	result, err := r.pool.Exec(ctx, query, fmt.Sprintf("%d seconds", int(olderThan.Seconds())))
	if err != nil {
		return 0, fmt.Errorf("failed to expire stale sessions: %w", err)
	}
	return result.RowsAffected(), nil
}

// TopOfDay returns the winning session of a day: highest score first, with
// the lower play time winning a tie.
func (r *SessionRepository) TopOfDay(ctx context.Context, dayID int64) (*model.DailyRank, error) {
	const query = `
		SELECT s.user_id, u.display_name, s.current_score, s.play_time
		FROM game_sessions s
		JOIN users u ON u.tg_id = s.user_id
		WHERE s.global_day_id = $1 AND s.status = 'completed'
		ORDER BY s.current_score DESC, s.play_time ASC
		LIMIT 1
	`

	var rank model.DailyRank
	err := r.pool.QueryRow(ctx, query, dayID).Scan(&rank.UserID, &rank.DisplayName, &rank.Score, &rank.PlayTime)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get day winner: %w", err)
	}
	return &rank, nil
}

// DailyLeaderboard returns the best completed sessions of a day, one row per
// user, ordered like TopOfDay.
func (r *SessionRepository) DailyLeaderboard(ctx context.Context, dayID int64, limit int) ([]*model.DailyRank, error) {
	const query = `
		SELECT user_id, display_name, score, play_time
		FROM (
			SELECT DISTINCT ON (s.user_id)
				s.user_id, u.display_name, s.current_score AS score, s.play_time
			FROM game_sessions s
			JOIN users u ON u.tg_id = s.user_id
			WHERE s.global_day_id = $1 AND s.status = 'completed'
			ORDER BY s.user_id, s.current_score DESC, s.play_time ASC
		) best
		ORDER BY score DESC, play_time ASC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, dayID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily leaderboard: %w", err)
	}
	defer rows.Close()

	var ranks []*model.DailyRank
	for rows.Next() {
		var rank model.DailyRank
		if err := rows.Scan(&rank.UserID, &rank.DisplayName, &rank.Score, &rank.PlayTime); err != nil {
			return nil, fmt.Errorf("failed to scan rank: %w", err)
		}
		ranks = append(ranks, &rank)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating leaderboard: %w", err)
	}
	return ranks, nil
}
