package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/decentralized-86/pumpshie-backend/internal/model"
)

// ErrProjectNotFound is returned when a project does not exist.
var ErrProjectNotFound = errors.New("project not found")

const projectColumns = `id, name, image_url, token_address, total_points, daily_points,
		player_count, total_games_played, daily_high_score, daily_high_score_user,
		is_active, created_at`

// ProjectRepository handles team/project persistence and point aggregates.
type ProjectRepository struct {
	pool *pgxpool.Pool
}

// NewProjectRepository creates a new ProjectRepository instance.
func NewProjectRepository(pool *pgxpool.Pool) *ProjectRepository {
	return &ProjectRepository{pool: pool}
}

func scanProject(row pgx.Row) (*model.Project, error) {
	var p model.Project
	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.ImageURL,
		&p.TokenAddress,
		&p.TotalPoints,
		&p.DailyPoints,
		&p.PlayerCount,
		&p.TotalGamesPlayed,
		&p.DailyHighScore,
		&p.DailyHighScoreUser,
		&p.IsActive,
		&p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Create inserts a new project.
func (r *ProjectRepository) Create(ctx context.Context, name, tokenAddress string) (*model.Project, error) {
	query := fmt.Sprintf(`
		INSERT INTO projects (name, token_address, is_active, created_at)
		VALUES ($1, $2, TRUE, NOW())
		RETURNING %s
	`, projectColumns)

	project, err := scanProject(r.pool.QueryRow(ctx, query, name, tokenAddress))
	if err != nil {
		return nil, fmt.Errorf("failed to create project: %w", err)
	}
	return project, nil
}

// GetByID retrieves a project by ID.
func (r *ProjectRepository) GetByID(ctx context.Context, projectID int64) (*model.Project, error) {
	query := fmt.Sprintf(`SELECT %s FROM projects WHERE id = $1`, projectColumns)

	project, err := scanProject(r.pool.QueryRow(ctx, query, projectID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProjectNotFound
		}
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return project, nil
}

// RecordGame folds a finished session into project aggregates: games played,
// daily and lifetime points, and a conditional daily-high-score takeover.
func (r *ProjectRepository) RecordGame(ctx context.Context, projectID, userID, score, points int64) error {
	const query = `
		UPDATE projects
		SET total_games_played = total_games_played + 1,
		    total_points = total_points + $4,
		    daily_points = daily_points + $4,
		    daily_high_score_user = CASE WHEN $3 > daily_high_score THEN $2 ELSE daily_high_score_user END,
		    daily_high_score = GREATEST(daily_high_score, $3)
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query, projectID, userID, score, points)
	if err != nil {
		return fmt.Errorf("failed to record game on project: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrProjectNotFound
	}
	return nil
}

// IncrementPlayers bumps the player counter when a user joins.
func (r *ProjectRepository) IncrementPlayers(ctx context.Context, projectID int64) error {
	const query = `UPDATE projects SET player_count = player_count + 1 WHERE id = $1`

	result, err := r.pool.Exec(ctx, query, projectID)
	if err != nil {
		return fmt.Errorf("failed to increment players: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrProjectNotFound
	}
	return nil
}

// ResetDaily zeroes the per-day counters of every project.
func (r *ProjectRepository) ResetDaily(ctx context.Context) (int64, error) {
	const query = `
		UPDATE projects
		SET daily_points = 0, daily_high_score = 0, daily_high_score_user = NULL
	`

	result, err := r.pool.Exec(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to reset projects: %w", err)
	}
	return result.RowsAffected(), nil
}

// DailyLeaderboard returns active projects ranked by today's points.
func (r *ProjectRepository) DailyLeaderboard(ctx context.Context, limit int) ([]*model.ProjectRank, error) {
	const query = `
		SELECT id, name, daily_points, player_count
		FROM projects
		WHERE is_active
		ORDER BY daily_points DESC
		LIMIT $1
	`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query project leaderboard: %w", err)
	}
	defer rows.Close()

	var ranks []*model.ProjectRank
	for rows.Next() {
		var rank model.ProjectRank
		if err := rows.Scan(&rank.ProjectID, &rank.Name, &rank.DailyPoints, &rank.PlayerCount); err != nil {
			return nil, fmt.Errorf("failed to scan project rank: %w", err)
		}
		ranks = append(ranks, &rank)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating project leaderboard: %w", err)
	}
	return ranks, nil
}
