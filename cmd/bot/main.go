// Package main is the entry point for the Pumpshie game backend.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/decentralized-86/pumpshie-backend/internal/bot"
	"github.com/decentralized-86/pumpshie-backend/internal/cache"
	"github.com/decentralized-86/pumpshie-backend/internal/chain"
	"github.com/decentralized-86/pumpshie-backend/internal/config"
	"github.com/decentralized-86/pumpshie-backend/internal/notify"
	"github.com/decentralized-86/pumpshie-backend/internal/pkg/db"
	"github.com/decentralized-86/pumpshie-backend/internal/reconciler"
	"github.com/decentralized-86/pumpshie-backend/internal/repository"
	"github.com/decentralized-86/pumpshie-backend/internal/scheduler"
	"github.com/decentralized-86/pumpshie-backend/internal/service"
)

func main() {
	// Configure zerolog
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// Load configuration
	cfg, err := config.Load("config")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log.Info().Msg("Configuration loaded successfully")

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database connection pool
	dbPool, err := db.NewPool(ctx, &cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer dbPool.Close()

	// Run database migrations
	if err := runMigrations(ctx, dbPool); err != nil {
		log.Fatal().Err(err).Msg("Failed to run database migrations")
	}

	// Initialize repositories
	userRepo := repository.NewUserRepository(dbPool.Pool)
	dayRepo := repository.NewGlobalDayRepository(dbPool.Pool)
	sessionRepo := repository.NewSessionRepository(dbPool.Pool)
	projectRepo := repository.NewProjectRepository(dbPool.Pool)
	linkRepo := repository.NewWalletLinkRepository(dbPool.Pool)
	nonceRepo := repository.NewNonceRepository(dbPool.Pool)

	// Initialize the chain client. The admin keypair signs reward payouts;
	// without it the backend still runs, it just cannot pay.
	var adminKey *chain.Keypair
	if cfg.Solana.AdminPrivateKey != "" {
		adminKey, err = chain.KeypairFromBase58(cfg.Solana.AdminPrivateKey)
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid admin private key")
		}
	} else {
		log.Warn().Msg("No admin private key configured, reward payouts disabled")
	}
	chainClient := chain.NewRPCClient(cfg.Solana.RPCURL, cfg.Solana.TokenMint, adminKey)

	// Initialize the leaderboard cache. Optional: an empty address means
	// every leaderboard read goes to Postgres.
	var leaderboard *cache.Leaderboard
	if cfg.Redis.Addr != "" {
		leaderboard = cache.NewLeaderboard(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err := leaderboard.Ping(ctx); err != nil {
			log.Warn().Err(err).Msg("Redis unreachable, running without leaderboard cache")
			leaderboard = nil
		} else {
			defer leaderboard.Close()
		}
	}

	// Initialize services
	dayService, err := service.NewGlobalDayService(dayRepo, userRepo, projectRepo, cfg.Game.DailyRewardTokens)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create global day service")
	}
	if err := dayService.VerifyInvariant(ctx); err != nil {
		log.Fatal().Err(err).Msg("Global day state is inconsistent, refusing to start")
	}

	accessService := service.NewAccessService(
		userRepo,
		dayService,
		chainClient,
		cfg.Game.FreePlaysPerDay,
		cfg.Solana.HolderMinTokens,
	)
	gameService := service.NewGameService(
		sessionRepo, userRepo, projectRepo, dayRepo,
		accessService, dayService, leaderboard,
		cfg.Game.PointsPerObstacle,
	)
	verifyService := service.NewWalletVerifyService(nonceRepo, userRepo)
	leaderboardService := service.NewLeaderboardService(dayService, sessionRepo, projectRepo, userRepo, leaderboard)

	// Initialize bot first so the reconciler and reset job can notify users.
	deps := &bot.Dependencies{
		Config:       cfg,
		Access:       accessService,
		Game:         gameService,
		Leaderboards: leaderboardService,
		Verify:       verifyService,
		Links:        linkRepo,
	}

	telegramBot, err := bot.New(deps)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create bot")
	}
	notifier := notify.NewTelegramNotifier(telegramBot.GetBot())

	resetService := service.NewResetService(
		dayService, dayRepo, sessionRepo, userRepo, nonceRepo, linkRepo,
		chainClient, notifier, leaderboard, cfg.Solana.HolderMinTokens,
	)
	telegramBot.SetAdminServices(resetService, dayService)

	// Start the on-chain event listener
	rec, err := reconciler.New(userRepo, linkRepo, chainClient, notifier, reconciler.Config{
		DepositTokenAccount: cfg.Solana.DepositTokenAccount,
		AdminAddress:        cfg.Solana.AdminAddress,
		LinkAmountTokens:    cfg.Solana.LinkAmountTokens,
		PaidAccessLamports:  cfg.Solana.PaidAccessLamports,
		HolderMinTokens:     cfg.Solana.HolderMinTokens,
		PaidAccessHours:     cfg.Game.PaidAccessHours,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create reconciler")
	}
	go reconciler.NewListener(rec, cfg.Solana.WSURL).Run(ctx)

	// Start the daily reset scheduler
	go scheduler.New(resetService, dayService).Run(ctx)

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start bot in a goroutine
	go func() {
		log.Info().Msg("Bot is starting...")
		telegramBot.Start()
	}()

	// Wait for shutdown signal
	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

	// Graceful shutdown
	cancel()
	telegramBot.Stop()
	log.Info().Msg("Bot stopped gracefully")
}

// runMigrations executes database migrations.
func runMigrations(ctx context.Context, pool *db.Pool) error {
	log.Info().Msg("Running database migrations...")

	// Migration 1: users
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
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 1: users table created")

	// Migration 2: global_days. The partial unique index is what enforces
	// the single-active-day invariant under concurrent creation.
	_, err = pool.Exec(ctx, `
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
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 2: global_days table created")

	// Migration 3: projects
	_, err = pool.Exec(ctx, `
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
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 3: projects table created")

	// Migration 4: game_sessions
	_, err = pool.Exec(ctx, `
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
		CREATE INDEX IF NOT EXISTS idx_sessions_day_score
			ON game_sessions (global_day_id, current_score DESC, play_time ASC)
			WHERE status = 'completed';
		CREATE INDEX IF NOT EXISTS idx_sessions_user_day
			ON game_sessions (user_id, global_day_id);
		CREATE INDEX IF NOT EXISTS idx_sessions_stale
			ON game_sessions (started_at) WHERE status = 'active';
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 4: game_sessions table created")

	// Migration 5: wallet linking
	_, err = pool.Exec(ctx, `
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
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 5: wallet tables created")

	log.Info().Msg("All migrations completed successfully")
	return nil
}
