// Package bot provides the Telegram bot initialization and handler
// registration.
package bot

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"github.com/decentralized-86/pumpshie-backend/internal/config"
	"github.com/decentralized-86/pumpshie-backend/internal/handler"
	"github.com/decentralized-86/pumpshie-backend/internal/pkg/lock"
	"github.com/decentralized-86/pumpshie-backend/internal/repository"
	"github.com/decentralized-86/pumpshie-backend/internal/service"
)

// Bot wraps the telebot instance with application dependencies.
type Bot struct {
	bot *tele.Bot
	cfg *config.Config

	accountHandler *handler.AccountHandler
	walletHandler  *handler.WalletHandler
	gameHandler    *handler.GameHandler
	rankingHandler *handler.RankingHandler
	adminHandler   *handler.AdminHandler
}

// Dependencies holds everything the bot handlers need.
type Dependencies struct {
	Config       *config.Config
	Access       *service.AccessService
	Game         *service.GameService
	Leaderboards *service.LeaderboardService
	Verify       *service.WalletVerifyService
	Links        *repository.WalletLinkRepository
}

// New creates a new Bot instance with the given dependencies.
func New(deps *Dependencies) (*Bot, error) {
	if deps.Config.Bot.Token == "" {
		return nil, fmt.Errorf("bot token is required")
	}

	pref := tele.Settings{
		Token:  deps.Config.Bot.Token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	}

	teleBot, err := tele.NewBot(pref)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	b := &Bot{
		bot:            teleBot,
		cfg:            deps.Config,
		accountHandler: handler.NewAccountHandler(deps.Access),
		walletHandler:  handler.NewWalletHandler(deps.Links, deps.Verify, deps.Config.Solana),
		gameHandler:    handler.NewGameHandler(deps.Game, deps.Access, lock.NewUserLock()),
		rankingHandler: handler.NewRankingHandler(deps.Leaderboards),
	}

	b.registerMiddleware()
	b.registerHandlers()

	return b, nil
}

// SetAdminServices wires the operator commands. Separate from New because
// the reset service needs a notifier backed by this bot, which only exists
// after New returns.
func (b *Bot) SetAdminServices(reset *service.ResetService, days *service.GlobalDayService) {
	b.adminHandler = handler.NewAdminHandler(reset, days)

	adminGroup := b.bot.Group()
	adminGroup.Use(AdminMiddleware(b.cfg))
	adminGroup.Handle("/force_reset", b.adminHandler.HandleForceReset)
	adminGroup.Handle("/day", b.adminHandler.HandleDayInfo)
}

func (b *Bot) registerMiddleware() {
	b.bot.Use(RecoveryMiddleware())
	b.bot.Use(LoggingMiddleware())
}

func (b *Bot) registerHandlers() {
	// Account
	b.bot.Handle("/start", b.accountHandler.HandleStart)
	b.bot.Handle("/status", b.accountHandler.HandleStatus)
	b.bot.Handle("/tweet", b.accountHandler.HandleTweet)

	// Wallet binding
	b.bot.Handle("/link", b.walletHandler.HandleLink)
	b.bot.Handle("/verify", b.walletHandler.HandleVerify)
	b.bot.Handle("/confirm", b.walletHandler.HandleConfirm)

	// Game sessions
	b.bot.Handle("/play", b.gameHandler.HandlePlay)
	b.bot.Handle("/finish", b.gameHandler.HandleFinish)

	// Leaderboards
	b.bot.Handle("/top", b.rankingHandler.HandleTop)
	b.bot.Handle("/projects", b.rankingHandler.HandleProjects)
}

// Start starts the bot polling. Blocks until Stop is called.
func (b *Bot) Start() {
	log.Info().Msg("Starting bot...")
	b.bot.Start()
}

// Stop stops the bot gracefully.
func (b *Bot) Stop() {
	log.Info().Msg("Stopping bot...")
	b.bot.Stop()
}

// GetBot returns the underlying telebot instance.
func (b *Bot) GetBot() *tele.Bot {
	return b.bot
}
