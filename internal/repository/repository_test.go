// Tests use testcontainers-go to spin up a PostgreSQL container.
package repository

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/decentralized-86/pumpshie-backend/internal/model"
)

// checkDockerAvailable checks if Docker is available and running
func checkDockerAvailable() bool {
	cmd := exec.Command("docker", "info")
	err := cmd.Run()
	return err == nil
}

// setupTestDB creates a PostgreSQL container and returns a connection pool.
// Skips the test if Docker is not available.
func setupTestDB(t *testing.T) (*pgxpool.Pool, func()) {
	if !checkDockerAvailable() {
		t.Skip("Docker is not available, skipping integration test")
	}

	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)

	err = createSchema(ctx, pool)
	require.NoError(t, err)

	cleanup := func() {
		pool.Close()
		_ = pgContainer.Terminate(ctx)
	}

	return pool, cleanup
}

// createSchema applies the same schema main applies at startup.
func createSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			tg_id BIGINT PRIMARY KEY,
			username VARCHAR(255) NOT NULL DEFAULT '',
			display_name VARCHAR(255) NOT NULL DEFAULT '',
			access_type VARCHAR(20) NOT NULL DEFAULT 'free',
			free_plays_remaining INT NOT NULL DEFAULT 0,
			paid_access_until TIMESTAMPTZ,
			tweet_verified_today BOOLEAN NOT NULL DEFAULT FALSE,
			wallet_address VARCHAR(64),
			wallet_verified_at TIMESTAMPTZ,
			current_global_day_id BIGINT,
			project_id BIGINT,
			highest_score BIGINT NOT NULL DEFAULT 0,
			mc_points BIGINT NOT NULL DEFAULT 0,
			total_mc_points BIGINT NOT NULL DEFAULT 0,
			total_play_time BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_users_wallet
			ON users (wallet_address) WHERE wallet_address IS NOT NULL;

		CREATE TABLE IF NOT EXISTS global_days (
			id BIGSERIAL PRIMARY KEY,
			start_time TIMESTAMPTZ NOT NULL,
			end_time TIMESTAMPTZ NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			highest_score BIGINT NOT NULL DEFAULT 0,
			highest_score_user BIGINT,
			reward_amount BIGINT NOT NULL DEFAULT 0,
			reward_claimed BOOLEAN NOT NULL DEFAULT FALSE,
			reward_paid_at TIMESTAMPTZ,
			reward_tx_hash VARCHAR(128),
			total_games_played BIGINT NOT NULL DEFAULT 0,
			total_points BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_global_days_single_active
			ON global_days (is_active) WHERE is_active;

		CREATE TABLE IF NOT EXISTS projects (
			id BIGSERIAL PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			image_url TEXT NOT NULL DEFAULT '',
			token_address VARCHAR(64),
			total_points BIGINT NOT NULL DEFAULT 0,
			daily_points BIGINT NOT NULL DEFAULT 0,
			player_count BIGINT NOT NULL DEFAULT 0,
			total_games_played BIGINT NOT NULL DEFAULT 0,
			daily_high_score BIGINT NOT NULL DEFAULT 0,
			daily_high_score_user BIGINT,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS game_sessions (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL REFERENCES users(tg_id) ON DELETE CASCADE,
			project_id BIGINT REFERENCES projects(id) ON DELETE SET NULL,
			global_day_id BIGINT NOT NULL REFERENCES global_days(id),
			status VARCHAR(20) NOT NULL DEFAULT 'active',
			current_score BIGINT NOT NULL DEFAULT 0,
			high_score BIGINT NOT NULL DEFAULT 0,
			obstacles_passed INT NOT NULL DEFAULT 0,
			started_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			ended_at TIMESTAMPTZ,
			play_time BIGINT NOT NULL DEFAULT 0,
			access_type VARCHAR(20) NOT NULL DEFAULT 'free',
			mc_points_earned BIGINT NOT NULL DEFAULT 0,
			is_high_score BOOLEAN NOT NULL DEFAULT FALSE,
			is_daily_high_score BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS wallet_links (
			wallet_address VARCHAR(64) PRIMARY KEY,
			user_id BIGINT NOT NULL REFERENCES users(tg_id) ON DELETE CASCADE,
			confirmed BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS wallet_nonces (
			wallet_address VARCHAR(64) PRIMARY KEY,
			nonce VARCHAR(64) NOT NULL,
			issued_at TIMESTAMPTZ NOT NULL
		);
	`)
	return err
}

func createTestDay(t *testing.T, pool *pgxpool.Pool) *model.GlobalDay {
	t.Helper()
	repo := NewGlobalDayRepository(pool)
	now := time.Now().UTC().Truncate(time.Second)
	day, err := repo.Create(context.Background(), now, now.Add(24*time.Hour), 126000)
	require.NoError(t, err)
	return day
}

// ============================================================================
// UserRepository
// ============================================================================

func TestUserRepository_CreateAndGet(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewUserRepository(pool)
	ctx := context.Background()

	user, err := repo.Create(ctx, 12345, "pumpfan", "Pump Fan", 10)
	require.NoError(t, err)
	assert.Equal(t, int64(12345), user.TgID)
	assert.Equal(t, "pumpfan", user.Username)
	assert.Equal(t, model.AccessFree, user.AccessType)
	assert.Equal(t, 10, user.FreePlaysRemaining)

	got, err := repo.GetByID(ctx, 12345)
	require.NoError(t, err)
	assert.Equal(t, user.TgID, got.TgID)

	_, err = repo.GetByID(ctx, 99999)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestUserRepository_GetOrCreate(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewUserRepository(pool)
	ctx := context.Background()

	_, created, err := repo.GetOrCreate(ctx, 100, "a", "A", 10)
	require.NoError(t, err)
	assert.True(t, created)

	_, created, err = repo.GetOrCreate(ctx, 100, "a", "A", 10)
	require.NoError(t, err)
	assert.False(t, created)
}

func TestUserRepository_ConsumeFreePlay_StopsAtZero(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewUserRepository(pool)
	ctx := context.Background()

	_, err := repo.Create(ctx, 200, "p", "P", 2)
	require.NoError(t, err)

	remaining, err := repo.ConsumeFreePlay(ctx, 200)
	require.NoError(t, err)
	assert.Equal(t, 1, remaining)

	remaining, err = repo.ConsumeFreePlay(ctx, 200)
	require.NoError(t, err)
	assert.Equal(t, 0, remaining)

	_, err = repo.ConsumeFreePlay(ctx, 200)
	assert.ErrorIs(t, err, ErrNoFreePlays)

	// The counter never went negative.
	user, err := repo.GetByID(ctx, 200)
	require.NoError(t, err)
	assert.Equal(t, 0, user.FreePlaysRemaining)
}

func TestUserRepository_GrantTweetPlay_OncePerDay(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewUserRepository(pool)
	ctx := context.Background()

	_, err := repo.Create(ctx, 300, "t", "T", 0)
	require.NoError(t, err)

	remaining, err := repo.GrantTweetPlay(ctx, 300)
	require.NoError(t, err)
	assert.Equal(t, 1, remaining)

	_, err = repo.GrantTweetPlay(ctx, 300)
	assert.ErrorIs(t, err, ErrTweetAlreadyClaimed)
}

func TestUserRepository_BindWallet_Uniqueness(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewUserRepository(pool)
	ctx := context.Background()

	_, err := repo.Create(ctx, 400, "u1", "U1", 10)
	require.NoError(t, err)
	_, err = repo.Create(ctx, 401, "u2", "U2", 10)
	require.NoError(t, err)

	const wallet = "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin"

	err = repo.BindWallet(ctx, 400, wallet)
	require.NoError(t, err)

	// Rebinding the same wallet to the same user is fine.
	err = repo.BindWallet(ctx, 400, wallet)
	require.NoError(t, err)

	// A second account claiming the wallet loses.
	err = repo.BindWallet(ctx, 401, wallet)
	assert.ErrorIs(t, err, ErrWalletTaken)

	user, err := repo.GetByWallet(ctx, wallet)
	require.NoError(t, err)
	assert.Equal(t, int64(400), user.TgID)
}

func TestUserRepository_SyncToDay(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewUserRepository(pool)
	ctx := context.Background()
	day := createTestDay(t, pool)

	_, err := repo.Create(ctx, 500, "s", "S", 10)
	require.NoError(t, err)

	// Burn plays and claim tweet, then sync to a new day.
	_, err = repo.ConsumeFreePlay(ctx, 500)
	require.NoError(t, err)
	_, err = repo.GrantTweetPlay(ctx, 500)
	require.NoError(t, err)

	user, err := repo.SyncToDay(ctx, 500, day.ID, 10)
	require.NoError(t, err)
	assert.Equal(t, 10, user.FreePlaysRemaining)
	assert.False(t, user.TweetVerifiedToday)
	require.NotNil(t, user.CurrentGlobalDayID)
	assert.Equal(t, day.ID, *user.CurrentGlobalDayID)

	// Syncing again to the same day is a no-op.
	_, err = repo.ConsumeFreePlay(ctx, 500)
	require.NoError(t, err)
	user, err = repo.SyncToDay(ctx, 500, day.ID, 10)
	require.NoError(t, err)
	assert.Equal(t, 9, user.FreePlaysRemaining)
}

func TestUserRepository_RecordSessionResult(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewUserRepository(pool)
	ctx := context.Background()

	_, err := repo.Create(ctx, 600, "r", "R", 10)
	require.NoError(t, err)

	isBest, err := repo.RecordSessionResult(ctx, 600, 50000, 42, 50)
	require.NoError(t, err)
	assert.True(t, isBest)

	// A lower score is not a new best but still accumulates.
	isBest, err = repo.RecordSessionResult(ctx, 600, 30000, 30, 30)
	require.NoError(t, err)
	assert.False(t, isBest)

	user, err := repo.GetByID(ctx, 600)
	require.NoError(t, err)
	assert.Equal(t, int64(50000), user.HighestScore)
	assert.Equal(t, int64(80), user.MCPoints)
	assert.Equal(t, int64(80), user.TotalMCPoints)
	assert.Equal(t, int64(72), user.TotalPlayTime)
}

func TestUserRepository_ResetDaily(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewUserRepository(pool)
	ctx := context.Background()

	_, err := repo.Create(ctx, 700, "d", "D", 10)
	require.NoError(t, err)

	_, err = repo.RecordSessionResult(ctx, 700, 10000, 12, 10)
	require.NoError(t, err)

	// Expired paid access reverts to free on reset.
	err = repo.SetPaidAccess(ctx, 700, time.Now().Add(-time.Hour))
	require.NoError(t, err)

	n, err := repo.ResetDaily(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, int64(1))

	user, err := repo.GetByID(ctx, 700)
	require.NoError(t, err)
	assert.Equal(t, int64(0), user.HighestScore)
	assert.Equal(t, int64(0), user.MCPoints)
	assert.Equal(t, int64(10), user.TotalMCPoints) // lifetime total survives
	assert.False(t, user.TweetVerifiedToday)
	assert.Equal(t, model.AccessFree, user.AccessType)
}

func TestUserRepository_ResetDaily_KeepsLivePaidAccess(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewUserRepository(pool)
	ctx := context.Background()

	_, err := repo.Create(ctx, 710, "late", "Late", 10)
	require.NoError(t, err)

	// Bought just before midnight; the 24-hour window spans the reset.
	err = repo.SetPaidAccess(ctx, 710, time.Now().Add(23*time.Hour))
	require.NoError(t, err)

	_, err = repo.ResetDaily(ctx)
	require.NoError(t, err)

	user, err := repo.GetByID(ctx, 710)
	require.NoError(t, err)
	assert.Equal(t, model.AccessPaid, user.AccessType)
	require.NotNil(t, user.PaidAccessUntil)
}

func TestUserRepository_SetPaidAccess_OnlyMovesForward(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewUserRepository(pool)
	ctx := context.Background()

	_, err := repo.Create(ctx, 720, "p", "P", 10)
	require.NoError(t, err)

	until := time.Now().Add(24 * time.Hour).UTC().Truncate(time.Second)
	require.NoError(t, repo.SetPaidAccess(ctx, 720, until))

	// A redelivered payment event carries an older anchor; the window must
	// not shrink.
	require.NoError(t, repo.SetPaidAccess(ctx, 720, until.Add(-2*time.Hour)))

	user, err := repo.GetByID(ctx, 720)
	require.NoError(t, err)
	require.NotNil(t, user.PaidAccessUntil)
	assert.Equal(t, until, user.PaidAccessUntil.UTC())
}

func TestUserRepository_ExpirePaidAccess(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewUserRepository(pool)
	ctx := context.Background()

	_, err := repo.Create(ctx, 730, "lapsed", "Lapsed", 10)
	require.NoError(t, err)
	_, err = repo.Create(ctx, 731, "live", "Live", 10)
	require.NoError(t, err)

	require.NoError(t, repo.SetPaidAccess(ctx, 730, time.Now().Add(-time.Minute)))
	require.NoError(t, repo.SetPaidAccess(ctx, 731, time.Now().Add(time.Hour)))

	n, err := repo.ExpirePaidAccess(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	lapsed, err := repo.GetByID(ctx, 730)
	require.NoError(t, err)
	assert.Equal(t, model.AccessFree, lapsed.AccessType)
	assert.Nil(t, lapsed.PaidAccessUntil)

	live, err := repo.GetByID(ctx, 731)
	require.NoError(t, err)
	assert.Equal(t, model.AccessPaid, live.AccessType)
}

func TestUserRepository_SetProject(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	users := NewUserRepository(pool)
	projects := NewProjectRepository(pool)
	ctx := context.Background()

	_, err := users.Create(ctx, 740, "j", "J", 10)
	require.NoError(t, err)
	project, err := projects.Create(ctx, "Pumpshie", "TokenAddr111")
	require.NoError(t, err)

	require.NoError(t, users.SetProject(ctx, 740, project.ID))

	user, err := users.GetByID(ctx, 740)
	require.NoError(t, err)
	require.NotNil(t, user.ProjectID)
	assert.Equal(t, project.ID, *user.ProjectID)

	assert.ErrorIs(t, users.SetProject(ctx, 999999, project.ID), ErrUserNotFound)
}

// ============================================================================
// GlobalDayRepository
// ============================================================================

func TestGlobalDayRepository_SingleActiveDay(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewGlobalDayRepository(pool)
	ctx := context.Background()
	now := time.Now().UTC()

	day, err := repo.Create(ctx, now, now.Add(24*time.Hour), 126000)
	require.NoError(t, err)
	assert.True(t, day.IsActive)
	assert.Equal(t, int64(126000), day.RewardAmount)

	// The partial unique index rejects a second active day.
	_, err = repo.Create(ctx, now, now.Add(24*time.Hour), 126000)
	assert.ErrorIs(t, err, ErrDayExists)

	require.NoError(t, repo.Deactivate(ctx, day.ID))

	_, err = repo.Create(ctx, now.Add(24*time.Hour), now.Add(48*time.Hour), 126000)
	require.NoError(t, err)

	count, err := repo.CountActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestGlobalDayRepository_DeactivateIsConditional(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewGlobalDayRepository(pool)
	ctx := context.Background()
	now := time.Now().UTC()

	first, err := repo.Create(ctx, now, now.Add(24*time.Hour), 126000)
	require.NoError(t, err)
	require.NoError(t, repo.Deactivate(ctx, first.ID))

	second, err := repo.Create(ctx, now.Add(24*time.Hour), now.Add(48*time.Hour), 126000)
	require.NoError(t, err)

	// A reset still holding the already-closed day matches nothing and must
	// not touch the day that replaced it.
	assert.ErrorIs(t, repo.Deactivate(ctx, first.ID), ErrNoActiveDay)

	got, err := repo.GetActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, second.ID, got.ID)
	assert.True(t, got.IsActive)
}

func TestGlobalDayRepository_GetActive(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewGlobalDayRepository(pool)
	ctx := context.Background()

	_, err := repo.GetActive(ctx)
	assert.ErrorIs(t, err, ErrNoActiveDay)

	day := createTestDay(t, pool)
	got, err := repo.GetActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, day.ID, got.ID)
}

func TestGlobalDayRepository_RecordGame(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewGlobalDayRepository(pool)
	ctx := context.Background()
	day := createTestDay(t, pool)

	isBest, err := repo.RecordGame(ctx, day.ID, 11, 40000, 40000)
	require.NoError(t, err)
	assert.True(t, isBest)

	isBest, err = repo.RecordGame(ctx, day.ID, 22, 25000, 25000)
	require.NoError(t, err)
	assert.False(t, isBest)

	got, err := repo.GetActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(40000), got.HighestScore)
	require.NotNil(t, got.HighestScoreUser)
	assert.Equal(t, int64(11), *got.HighestScoreUser)
	assert.Equal(t, int64(2), got.TotalGamesPlayed)
	assert.Equal(t, int64(65000), got.TotalPoints)
}

func TestGlobalDayRepository_MarkRewardPaid(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewGlobalDayRepository(pool)
	ctx := context.Background()
	day := createTestDay(t, pool)

	err := repo.MarkRewardPaid(ctx, day.ID, "5KtP9mockTxHash")
	require.NoError(t, err)

	got, err := repo.GetActive(ctx)
	require.NoError(t, err)
	assert.True(t, got.RewardClaimed)
	require.NotNil(t, got.RewardTxHash)
	assert.Equal(t, "5KtP9mockTxHash", *got.RewardTxHash)
}

// ============================================================================
// SessionRepository
// ============================================================================

func TestSessionRepository_CompleteExactlyOnce(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	users := NewUserRepository(pool)
	sessions := NewSessionRepository(pool)
	ctx := context.Background()
	day := createTestDay(t, pool)

	_, err := users.Create(ctx, 800, "g", "G", 10)
	require.NoError(t, err)

	session, err := sessions.Create(ctx, 800, nil, day.ID, model.AccessFree)
	require.NoError(t, err)
	assert.Equal(t, model.SessionActive, session.Status)

	ended := time.Now()
	done, err := sessions.Complete(ctx, session.ID, 8, 40000, 40, ended)
	require.NoError(t, err)
	assert.Equal(t, model.SessionCompleted, done.Status)
	assert.Equal(t, int64(40000), done.CurrentScore)
	assert.Equal(t, 8, done.ObstaclesPassed)

	// The second finalization attempt loses the conditional update.
	_, err = sessions.Complete(ctx, session.ID, 9, 45000, 45, ended)
	assert.ErrorIs(t, err, ErrSessionNotActive)

	_, err = sessions.Complete(ctx, 424242, 1, 5000, 5, ended)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionRepository_TopOfDayTieBreak(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	users := NewUserRepository(pool)
	sessions := NewSessionRepository(pool)
	ctx := context.Background()
	day := createTestDay(t, pool)

	_, err := users.Create(ctx, 900, "fast", "Fast", 10)
	require.NoError(t, err)
	_, err = users.Create(ctx, 901, "slow", "Slow", 10)
	require.NoError(t, err)

	// Same score; the quicker run wins.
	slow, err := sessions.Create(ctx, 901, nil, day.ID, model.AccessFree)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `UPDATE game_sessions SET started_at = NOW() - INTERVAL '120 seconds' WHERE id = $1`, slow.ID)
	require.NoError(t, err)
	_, err = sessions.Complete(ctx, slow.ID, 10, 50000, 50, time.Now())
	require.NoError(t, err)

	fast, err := sessions.Create(ctx, 900, nil, day.ID, model.AccessFree)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `UPDATE game_sessions SET started_at = NOW() - INTERVAL '60 seconds' WHERE id = $1`, fast.ID)
	require.NoError(t, err)
	_, err = sessions.Complete(ctx, fast.ID, 10, 50000, 50, time.Now())
	require.NoError(t, err)

	top, err := sessions.TopOfDay(ctx, day.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(900), top.UserID)
	assert.Equal(t, int64(50000), top.Score)

	board, err := sessions.DailyLeaderboard(ctx, day.ID, 10)
	require.NoError(t, err)
	require.Len(t, board, 2)
	assert.Equal(t, int64(900), board[0].UserID)
	assert.Equal(t, int64(901), board[1].UserID)
}

func TestSessionRepository_ExpireStale(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	users := NewUserRepository(pool)
	sessions := NewSessionRepository(pool)
	ctx := context.Background()
	day := createTestDay(t, pool)

	_, err := users.Create(ctx, 1000, "z", "Z", 10)
	require.NoError(t, err)

	session, err := sessions.Create(ctx, 1000, nil, day.ID, model.AccessFree)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `UPDATE game_sessions SET started_at = NOW() - INTERVAL '2 hours' WHERE id = $1`, session.ID)
	require.NoError(t, err)

	n, err := sessions.ExpireStale(ctx, 30*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := sessions.GetByID(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionExpired, got.Status)
}

// ============================================================================
// WalletLinkRepository
// ============================================================================

func TestWalletLinkRepository_ConfirmOnce(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	users := NewUserRepository(pool)
	links := NewWalletLinkRepository(pool)
	ctx := context.Background()

	_, err := users.Create(ctx, 1100, "w", "W", 10)
	require.NoError(t, err)

	const wallet = "7sPmockWalletAddressForLinkingTests111111111"

	link, err := links.CreatePending(ctx, wallet, 1100)
	require.NoError(t, err)
	assert.False(t, link.Confirmed)

	require.NoError(t, links.Confirm(ctx, wallet))

	// A redelivered chain event finds the link already confirmed.
	err = links.Confirm(ctx, wallet)
	assert.ErrorIs(t, err, ErrLinkAlreadyConfirmed)

	// And a confirmed link cannot be restarted as pending.
	_, err = links.CreatePending(ctx, wallet, 1100)
	assert.ErrorIs(t, err, ErrLinkAlreadyConfirmed)

	_, err = links.GetPending(ctx, wallet)
	assert.ErrorIs(t, err, ErrLinkNotFound)
}

func TestWalletLinkRepository_SweepExpired(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	users := NewUserRepository(pool)
	links := NewWalletLinkRepository(pool)
	ctx := context.Background()

	_, err := users.Create(ctx, 1200, "e", "E", 10)
	require.NoError(t, err)

	_, err = links.CreatePending(ctx, "StaleWallet111111111111111111111111111111111", 1200)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `UPDATE wallet_links SET created_at = NOW() - INTERVAL '1 hour'`)
	require.NoError(t, err)

	n, err := links.SweepExpired(ctx, 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

// ============================================================================
// NonceRepository
// ============================================================================

func TestNonceRepository_SingleUse(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewNonceRepository(pool)
	ctx := context.Background()

	const wallet = "NonceWallet11111111111111111111111111111111"
	issued := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, repo.Put(ctx, wallet, "abc123", issued))

	// A fresh challenge replaces the old one.
	require.NoError(t, repo.Put(ctx, wallet, "def456", issued))

	nonce, err := repo.Consume(ctx, wallet)
	require.NoError(t, err)
	assert.Equal(t, "def456", nonce.Nonce)

	// Consumed means gone.
	_, err = repo.Consume(ctx, wallet)
	assert.ErrorIs(t, err, ErrNonceNotFound)
}

// ============================================================================
// ProjectRepository
// ============================================================================

func TestProjectRepository_RecordAndReset(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewProjectRepository(pool)
	ctx := context.Background()

	project, err := repo.Create(ctx, "Pumpshie Racers", "")
	require.NoError(t, err)

	require.NoError(t, repo.RecordGame(ctx, project.ID, 1, 30000, 30000))
	require.NoError(t, repo.RecordGame(ctx, project.ID, 2, 20000, 20000))
	require.NoError(t, repo.IncrementPlayers(ctx, project.ID))

	got, err := repo.GetByID(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(50000), got.DailyPoints)
	assert.Equal(t, int64(50000), got.TotalPoints)
	assert.Equal(t, int64(30000), got.DailyHighScore)
	assert.Equal(t, int64(1), got.PlayerCount)

	board, err := repo.DailyLeaderboard(ctx, 10)
	require.NoError(t, err)
	require.Len(t, board, 1)
	assert.Equal(t, project.ID, board[0].ProjectID)

	n, err := repo.ResetDaily(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err = repo.GetByID(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.DailyPoints)
	assert.Equal(t, int64(0), got.DailyHighScore)
	assert.Equal(t, int64(50000), got.TotalPoints) // lifetime survives
}
