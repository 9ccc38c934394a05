package notify

import (
	"context"
	"fmt"

	tele "gopkg.in/telebot.v3"
)

// TelegramNotifier delivers messages through the bot.
type TelegramNotifier struct {
	bot *tele.Bot
}

// NewTelegramNotifier creates a notifier backed by the given bot instance.
func NewTelegramNotifier(bot *tele.Bot) *TelegramNotifier {
	return &TelegramNotifier{bot: bot}
}

// NotifyUser sends a plain-text message to the user's private chat.
func (n *TelegramNotifier) NotifyUser(_ context.Context, tgID int64, message string) error {
	if _, err := n.bot.Send(&tele.User{ID: tgID}, message); err != nil {
		return fmt.Errorf("failed to notify user %d: %w", tgID, err)
	}
	return nil
}
