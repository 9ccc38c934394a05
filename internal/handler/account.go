// Package handler provides Telegram bot command handlers. They are a thin
// shell over the services: parse the command, call one operation, format the
// reply.
package handler

import (
	"context"
	"errors"
	"fmt"

	tele "gopkg.in/telebot.v3"

	"github.com/decentralized-86/pumpshie-backend/internal/model"
	"github.com/decentralized-86/pumpshie-backend/internal/service"
)

// AccountHandler handles registration and account status commands.
type AccountHandler struct {
	access *service.AccessService
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(access *service.AccessService) *AccountHandler {
	return &AccountHandler{access: access}
}

func displayName(sender *tele.User) string {
	name := sender.FirstName
	if sender.LastName != "" {
		name += " " + sender.LastName
	}
	if name == "" {
		name = sender.Username
	}
	return name
}

// HandleStart handles the /start command: registers the user and shows the
// available commands.
func (h *AccountHandler) HandleStart(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	user, created, err := h.access.EnsureUser(ctx, sender.ID, sender.Username, displayName(sender))
	if err != nil {
		return c.Reply("❌ Failed to set up your account, please try again later")
	}

	if created {
		return c.Reply(fmt.Sprintf(
			"🐡 Welcome to Pumpshie, %s!\n\n"+
				"You have %d free plays today.\n\n"+
				"Commands:\n"+
				"/status - access and plays left\n"+
				"/link <wallet> - link your Solana wallet\n"+
				"/top - today's leaderboard\n"+
				"/projects - today's project ranking",
			user.DisplayName, user.FreePlaysRemaining,
		))
	}
	return c.Reply(fmt.Sprintf("Welcome back, %s! Use /status to see your plays.", user.DisplayName))
}

// HandleStatus handles the /status command.
func (h *AccountHandler) HandleStatus(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	user, err := h.access.SyncUser(ctx, sender.ID)
	if err != nil {
		return c.Reply("❌ Could not load your account, use /start first")
	}
	decision, err := h.access.CanUserPlay(ctx, sender.ID)
	if err != nil {
		return c.Reply("❌ Could not check your access, please try again later")
	}

	wallet := "not linked"
	if user.WalletAddress != nil {
		wallet = *user.WalletAddress
	}

	return c.Reply(fmt.Sprintf(
		"📊 Your status\n\n"+
			"Access: %s\n"+
			"Free plays left: %d\n"+
			"Wallet: %s\n"+
			"Can play now: %s\n"+
			"Best score today: %d",
		user.AccessType, user.FreePlaysRemaining, wallet,
		playAnswer(decision), user.HighestScore,
	))
}

// HandleTweet handles /tweet <tweet id>: claims the once-per-day extra play
// for posting about the game.
func (h *AccountHandler) HandleTweet(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	args := c.Args()
	if len(args) != 1 {
		return c.Reply("Usage: /tweet <tweet id>")
	}

	remaining, err := h.access.VerifyTweetForExtraPlay(ctx, sender.ID, args[0])
	switch {
	case err == nil:
		return c.Reply(fmt.Sprintf("🐦 Tweet verified! You now have %d plays left today.", remaining))
	case errors.Is(err, service.ErrTweetAlreadyClaimed):
		return c.Reply("❌ You already claimed your tweet play today")
	case errors.Is(err, service.ErrTweetRejected):
		return c.Reply("❌ That tweet does not mention the game tags")
	default:
		return c.Reply("❌ Could not verify the tweet, please try again later")
	}
}

func playAnswer(d model.PlayDecision) string {
	if d.CanPlay {
		return fmt.Sprintf("yes (%s)", d.Reason)
	}
	return fmt.Sprintf("no (%s)", d.Reason)
}
