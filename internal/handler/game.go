package handler

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	tele "gopkg.in/telebot.v3"

	"github.com/decentralized-86/pumpshie-backend/internal/pkg/lock"
	"github.com/decentralized-86/pumpshie-backend/internal/service"
)

// GameHandler drives the session lifecycle from chat. The game client calls
// the same service operations; this surface exists so a run can be played
// end to end from Telegram alone.
type GameHandler struct {
	game     *service.GameService
	access   *service.AccessService
	userLock *lock.UserLock
}

// NewGameHandler creates a new GameHandler.
func NewGameHandler(game *service.GameService, access *service.AccessService, userLock *lock.UserLock) *GameHandler {
	return &GameHandler{game: game, access: access, userLock: userLock}
}

// HandlePlay handles /play [project id]: consumes a play and opens a session.
func (h *GameHandler) HandlePlay(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	var projectID *int64
	if args := c.Args(); len(args) == 1 {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return c.Reply("Usage: /play [project id]")
		}
		projectID = &id
	}

	// Start and consume are two statements; the lock keeps a double-tapped
	// /play from opening two sessions on one play.
	if !h.userLock.TryLock(sender.ID) {
		return c.Reply("⏳ Hold on, your last game is still starting")
	}
	defer h.userLock.Unlock(sender.ID)

	session, err := h.game.StartSession(ctx, sender.ID, projectID)
	if err != nil {
		if errors.Is(err, service.ErrPlayDenied) {
			return c.Reply("🚫 No plays left today. Tweet about the game (/tweet) or come back tomorrow!")
		}
		return c.Reply("❌ Could not start a game, please try again later")
	}

	// The play is consumed after the session opens; a consumption race
	// here never strands a paid-for session.
	if _, err := h.access.ConsumePlay(ctx, sender.ID); err != nil {
		return c.Reply("🚫 No plays left today")
	}

	return c.Reply(fmt.Sprintf(
		"🎮 Game on! Session #%d\n\nFinish with /finish %d <obstacles passed>",
		session.ID, session.ID,
	))
}

// HandleFinish handles /finish <session id> <obstacles passed>.
func (h *GameHandler) HandleFinish(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	args := c.Args()
	if len(args) != 2 {
		return c.Reply("Usage: /finish <session id> <obstacles passed>")
	}
	sessionID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return c.Reply("Usage: /finish <session id> <obstacles passed>")
	}
	obstacles, err := strconv.Atoi(args[1])
	if err != nil || obstacles < 0 {
		return c.Reply("Usage: /finish <session id> <obstacles passed>")
	}

	session, err := h.game.EndSession(ctx, sessionID, obstacles)
	switch {
	case err == nil:
		return c.Reply(fmt.Sprintf(
			"🏁 Run finished!\nScore: %d\nMC points: %d\nTime: %ds",
			session.CurrentScore, session.MCPointsEarned, session.PlayTime,
		))
	case errors.Is(err, service.ErrSessionNotActive):
		return c.Reply("❌ This session is already finished")
	case errors.Is(err, service.ErrSessionNotFound):
		return c.Reply("❌ Unknown session")
	default:
		return c.Reply("❌ Could not finish the game, please try again later")
	}
}
