// Package repository provides data access layer implementations.
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

// Common errors for repository operations.
var (
	ErrUserNotFound = errors.New("user not found")
	// ErrWalletTaken is returned when a wallet address is already linked to
	// another account.
	ErrWalletTaken = errors.New("wallet already linked to another account")
	// ErrNoFreePlays is returned by ConsumeFreePlay when the counter is
	// already at zero.
	ErrNoFreePlays = errors.New("no free plays remaining")
	// ErrTweetAlreadyClaimed is returned by GrantTweetPlay when the daily
	// tweet bonus was already granted.
	ErrTweetAlreadyClaimed = errors.New("tweet bonus already claimed today")
)

const uniqueViolation = "23505"

const userColumns = `tg_id, username, display_name, access_type, free_plays_remaining,
		paid_access_until, tweet_verified_today, wallet_address, wallet_verified_at,
		current_global_day_id, project_id, highest_score, mc_points, total_mc_points,
		total_play_time, created_at, updated_at`

// UserRepository handles user data persistence. Every field touched by both
// the request path and the reconciler is mutated via targeted conditional
// updates, never read-modify-write of the whole row.
type UserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository creates a new UserRepository instance.
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

func scanUser(row pgx.Row) (*model.User, error) {
	var u model.User
	err := row.Scan(
		&u.TgID,
		&u.Username,
		&u.DisplayName,
		&u.AccessType,
		&u.FreePlaysRemaining,
		&u.PaidAccessUntil,
		&u.TweetVerifiedToday,
		&u.WalletAddress,
		&u.WalletVerifiedAt,
		&u.CurrentGlobalDayID,
		&u.ProjectID,
		&u.HighestScore,
		&u.MCPoints,
		&u.TotalMCPoints,
		&u.TotalPlayTime,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Create creates a new user with the configured daily free plays.
func (r *UserRepository) Create(ctx context.Context, tgID int64, username, displayName string, freePlays int) (*model.User, error) {
	query := fmt.Sprintf(`
		INSERT INTO users (tg_id, username, display_name, free_plays_remaining, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		RETURNING %s
	`, userColumns)

	user, err := scanUser(r.pool.QueryRow(ctx, query, tgID, username, displayName, freePlays))
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

// GetByID retrieves a user by their Telegram ID.
// Returns ErrUserNotFound if the user does not exist.
func (r *UserRepository) GetByID(ctx context.Context, tgID int64) (*model.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE tg_id = $1`, userColumns)

	user, err := scanUser(r.pool.QueryRow(ctx, query, tgID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// GetByWallet retrieves a user by their linked wallet address.
func (r *UserRepository) GetByWallet(ctx context.Context, walletAddress string) (*model.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE wallet_address = $1`, userColumns)

	user, err := scanUser(r.pool.QueryRow(ctx, query, walletAddress))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user by wallet: %w", err)
	}
	return user, nil
}

// GetOrCreate retrieves a user by Telegram ID, creating one if it doesn't exist.
func (r *UserRepository) GetOrCreate(ctx context.Context, tgID int64, username, displayName string, freePlays int) (*model.User, bool, error) {
	user, err := r.GetByID(ctx, tgID)
	if err == nil {
		return user, false, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return nil, false, err
	}

	user, err = r.Create(ctx, tgID, username, displayName, freePlays)
	if err != nil {
		// Another request might have created the user concurrently.
		user, err = r.GetByID(ctx, tgID)
		if err != nil {
			return nil, false, err
		}
		return user, false, nil
	}

	return user, true, nil
}

// SyncToDay lazily reconciles a user with the active global day: when the
// stamped day differs, daily free plays and the tweet flag reset and the new
// day is stamped in one conditional update. Returns the fresh row either way.
func (r *UserRepository) SyncToDay(ctx context.Context, tgID, dayID int64, freePlays int) (*model.User, error) {
	query := fmt.Sprintf(`
		UPDATE users
		SET free_plays_remaining = $3,
		    tweet_verified_today = FALSE,
		    current_global_day_id = $2,
		    updated_at = NOW()
		WHERE tg_id = $1
		  AND current_global_day_id IS DISTINCT FROM $2
		RETURNING %s
	`, userColumns)

	user, err := scanUser(r.pool.QueryRow(ctx, query, tgID, dayID, freePlays))
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to sync user to day: %w", err)
	}
	// No row matched: the user is already on the active day (or missing).
	return r.GetByID(ctx, tgID)
}

// ConsumeFreePlay decrements free_plays_remaining by one, conditionally on it
// being positive. Two concurrent calls can never push it below zero; the loser
// gets ErrNoFreePlays.
func (r *UserRepository) ConsumeFreePlay(ctx context.Context, tgID int64) (int, error) {
	const query = `
		UPDATE users
		SET free_plays_remaining = free_plays_remaining - 1, updated_at = NOW()
		WHERE tg_id = $1 AND free_plays_remaining > 0
		RETURNING free_plays_remaining
	`

	var remaining int
	err := r.pool.QueryRow(ctx, query, tgID).Scan(&remaining)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNoFreePlays
		}
		return 0, fmt.Errorf("failed to consume free play: %w", err)
	}
	return remaining, nil
}

// GrantTweetPlay grants the daily tweet bonus play: sets the flag and adds one
// play only if the flag is still clear. A double submission loses the race and
// gets ErrTweetAlreadyClaimed.
func (r *UserRepository) GrantTweetPlay(ctx context.Context, tgID int64) (int, error) {
	const query = `
		UPDATE users
		SET tweet_verified_today = TRUE,
		    free_plays_remaining = free_plays_remaining + 1,
		    updated_at = NOW()
		WHERE tg_id = $1 AND NOT tweet_verified_today
		RETURNING free_plays_remaining
	`

	var remaining int
	err := r.pool.QueryRow(ctx, query, tgID).Scan(&remaining)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrTweetAlreadyClaimed
		}
		return 0, fmt.Errorf("failed to grant tweet play: %w", err)
	}
	return remaining, nil
}

// BindWallet links a wallet address to a user. The unique index on
// wallet_address rejects a second account claiming the same wallet.
func (r *UserRepository) BindWallet(ctx context.Context, tgID int64, walletAddress string) error {
	const query = `
		UPDATE users
		SET wallet_address = $2, wallet_verified_at = NOW(), updated_at = NOW()
		WHERE tg_id = $1
	`

	result, err := r.pool.Exec(ctx, query, tgID, walletAddress)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrWalletTaken
		}
		return fmt.Errorf("failed to bind wallet: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// SetPaidAccess grants paid access until the given time. The window only
// ever moves forward, so a redelivered payment event converges on the grant
// it already made instead of rewriting it.
func (r *UserRepository) SetPaidAccess(ctx context.Context, tgID int64, until time.Time) error {
	const query = `
		UPDATE users
		SET access_type = 'paid',
		    paid_access_until = GREATEST(COALESCE(paid_access_until, 'epoch'::timestamptz), $2),
		    updated_at = NOW()
		WHERE tg_id = $1
	`

	result, err := r.pool.Exec(ctx, query, tgID, until)
	if err != nil {
		return fmt.Errorf("failed to set paid access: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// SetProject records which project the user currently plays for.
func (r *UserRepository) SetProject(ctx context.Context, tgID, projectID int64) error {
	const query = `
		UPDATE users
		SET project_id = $2, updated_at = NOW()
		WHERE tg_id = $1
	`

	result, err := r.pool.Exec(ctx, query, tgID, projectID)
	if err != nil {
		return fmt.Errorf("failed to set project: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// SetAccessType sets the access tier, used by the token-holder sweep.
func (r *UserRepository) SetAccessType(ctx context.Context, tgID int64, accessType model.AccessType) error {
	const query = `
		UPDATE users
		SET access_type = $2, updated_at = NOW()
		WHERE tg_id = $1
	`

	result, err := r.pool.Exec(ctx, query, tgID, accessType)
	if err != nil {
		return fmt.Errorf("failed to set access type: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// RecordSessionResult folds a finished session into the user aggregates:
// conditional highest-score bump, play time and daily/lifetime point totals.
// Returns whether the score became a new personal best.
func (r *UserRepository) RecordSessionResult(ctx context.Context, tgID, score, playTime, mcPoints int64) (bool, error) {
	const query = `
		UPDATE users u
		SET highest_score = GREATEST(u.highest_score, $2),
		    total_play_time = u.total_play_time + $3,
		    mc_points = u.mc_points + $4,
		    total_mc_points = u.total_mc_points + $4,
		    updated_at = NOW()
		FROM (SELECT tg_id, highest_score AS prev_best FROM users WHERE tg_id = $1 FOR UPDATE) old
		WHERE u.tg_id = old.tg_id
		RETURNING $2 > old.prev_best
	`

	var isHighScore bool
	err := r.pool.QueryRow(ctx, query, tgID, score, playTime, mcPoints).Scan(&isHighScore)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, ErrUserNotFound
		}
		return false, fmt.Errorf("failed to record session result: %w", err)
	}
	return isHighScore, nil
}

// ResetDaily performs the bulk per-day reset: daily scores and points,
// tweet flags, and reverting expired paid access to free. Lifetime totals are
// untouched. Returns the number of rows reset.
func (r *UserRepository) ResetDaily(ctx context.Context) (int64, error) {
	const resetQuery = `
		UPDATE users
		SET highest_score = 0,
		    mc_points = 0,
		    tweet_verified_today = FALSE,
		    updated_at = NOW()
	`
	result, err := r.pool.Exec(ctx, resetQuery)
	if err != nil {
		return 0, fmt.Errorf("failed to reset users: %w", err)
	}

	// Paid access bought late in the day spans the midnight boundary; only
	// lapsed windows are reverted.
	const revertQuery = `
		UPDATE users
		SET access_type = 'free', paid_access_until = NULL, updated_at = NOW()
		WHERE access_type = 'paid' AND paid_access_until < NOW()
	`
	if _, err := r.pool.Exec(ctx, revertQuery); err != nil {
		return 0, fmt.Errorf("failed to revert paid access: %w", err)
	}

	return result.RowsAffected(), nil
}

// ExpirePaidAccess reverts users whose paid window has lapsed back to free.
func (r *UserRepository) ExpirePaidAccess(ctx context.Context) (int64, error) {
	const query = `
		UPDATE users
		SET access_type = 'free', paid_access_until = NULL, updated_at = NOW()
		WHERE access_type = 'paid' AND paid_access_until < NOW()
	`

	result, err := r.pool.Exec(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to expire paid access: %w", err)
	}
	return result.RowsAffected(), nil
}

// ListWithWallets returns every user with a linked wallet, for the daily
// token-holder sweep.
func (r *UserRepository) ListWithWallets(ctx context.Context) ([]*model.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE wallet_address IS NOT NULL`, userColumns)

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list users with wallets: %w", err)
	}
	defer rows.Close()

	var users []*model.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}
	return users, nil
}

// UpdateUsername updates a user's username when it changes on Telegram.
func (r *UserRepository) UpdateUsername(ctx context.Context, tgID int64, username string) error {
	const query = `
		UPDATE users
		SET username = $2, updated_at = NOW()
		WHERE tg_id = $1
	`

	result, err := r.pool.Exec(ctx, query, tgID, username)
	if err != nil {
		return fmt.Errorf("failed to update username: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}
