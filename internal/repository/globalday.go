package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/decentralized-86/pumpshie-backend/internal/model"
)

// GlobalDay-related errors.
var (
	// ErrNoActiveDay is returned when no global day row is active.
	ErrNoActiveDay = errors.New("no active global day")
	// ErrDayExists is returned when creation loses the single-active-day
	// race; the caller should re-fetch the winner.
	ErrDayExists = errors.New("an active global day already exists")
)

const dayColumns = `id, start_time, end_time, is_active, highest_score, highest_score_user,
		reward_amount, reward_claimed, reward_paid_at, reward_tx_hash,
		total_games_played, total_points, created_at`

// GlobalDayRepository handles the global day singleton and its historical
// rows. The partial unique index idx_global_days_single_active guarantees at
// most one active row regardless of caller interleaving.
type GlobalDayRepository struct {
	pool *pgxpool.Pool
}

// NewGlobalDayRepository creates a new GlobalDayRepository instance.
func NewGlobalDayRepository(pool *pgxpool.Pool) *GlobalDayRepository {
	return &GlobalDayRepository{pool: pool}
}

func scanDay(row pgx.Row) (*model.GlobalDay, error) {
	var d model.GlobalDay
	err := row.Scan(
		&d.ID,
		&d.StartTime,
		&d.EndTime,
		&d.IsActive,
		&d.HighestScore,
		&d.HighestScoreUser,
		&d.RewardAmount,
		&d.RewardClaimed,
		&d.RewardPaidAt,
		&d.RewardTxHash,
		&d.TotalGamesPlayed,
		&d.TotalPoints,
		&d.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// GetActive returns the currently active day, or ErrNoActiveDay.
func (r *GlobalDayRepository) GetActive(ctx context.Context) (*model.GlobalDay, error) {
	query := fmt.Sprintf(`SELECT %s FROM global_days WHERE is_active`, dayColumns)

	day, err := scanDay(r.pool.QueryRow(ctx, query))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoActiveDay
		}
		return nil, fmt.Errorf("failed to get active day: %w", err)
	}
	return day, nil
}

// Create inserts a new active day. Losing the creation race against a
// concurrent caller surfaces as ErrDayExists via the partial unique index.
func (r *GlobalDayRepository) Create(ctx context.Context, start, end time.Time, rewardAmount int64) (*model.GlobalDay, error) {
	query := fmt.Sprintf(`
		INSERT INTO global_days (start_time, end_time, is_active, reward_amount, created_at)
		VALUES ($1, $2, TRUE, $3, NOW())
		RETURNING %s
	`, dayColumns)

	day, err := scanDay(r.pool.QueryRow(ctx, query, start, end, rewardAmount))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, ErrDayExists
		}
		return nil, fmt.Errorf("failed to create global day: %w", err)
	}
	return day, nil
}

// Deactivate marks the given day inactive. The row is kept as history.
func (r *GlobalDayRepository) Deactivate(ctx context.Context, dayID int64) error {
	const query = `UPDATE global_days SET is_active = FALSE WHERE id = $1 AND is_active`

	result, err := r.pool.Exec(ctx, query, dayID)
	if err != nil {
		return fmt.Errorf("failed to deactivate day: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNoActiveDay
	}
	return nil
}

// RecordGame folds a finished session into the day aggregates: games played,
// point total, and a conditional highest-score takeover. Returns whether the
// score became the new daily best.
func (r *GlobalDayRepository) RecordGame(ctx context.Context, dayID, userID, score, points int64) (bool, error) {
	const query = `
		UPDATE global_days d
		SET total_games_played = d.total_games_played + 1,
		    total_points = d.total_points + $4,
		    highest_score = GREATEST(d.highest_score, $3),
		    highest_score_user = CASE WHEN $3 > d.highest_score THEN $2 ELSE d.highest_score_user END
		FROM (SELECT id, highest_score AS prev_best FROM global_days WHERE id = $1 FOR UPDATE) old
		WHERE d.id = old.id
		RETURNING $3 > old.prev_best
	`

	var isDailyBest bool
	err := r.pool.QueryRow(ctx, query, dayID, userID, score, points).Scan(&isDailyBest)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, ErrNoActiveDay
		}
		return false, fmt.Errorf("failed to record game on day: %w", err)
	}
	return isDailyBest, nil
}

// MarkRewardPaid records the winner payout on the closed day.
func (r *GlobalDayRepository) MarkRewardPaid(ctx context.Context, dayID int64, txHash string) error {
	const query = `
		UPDATE global_days
		SET reward_claimed = TRUE, reward_paid_at = NOW(), reward_tx_hash = $2
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query, dayID, txHash)
	if err != nil {
		return fmt.Errorf("failed to mark reward paid: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("day %d not found", dayID)
	}
	return nil
}

// CountActive returns the number of active day rows. Anything other than
// zero or one is an invariant violation the caller should refuse to work with.
func (r *GlobalDayRepository) CountActive(ctx context.Context) (int, error) {
	const query = `SELECT COUNT(*) FROM global_days WHERE is_active`

	var n int
	if err := r.pool.QueryRow(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count active days: %w", err)
	}
	return n, nil
}
