// Package notify pushes out-of-band messages to users. The reconciler and
// reset job use it after committing state; a failed delivery never rolls the
// state change back.
package notify

import "context"

// Notifier delivers a message to a user identified by Telegram ID.
type Notifier interface {
	NotifyUser(ctx context.Context, tgID int64, message string) error
}

// Noop discards every message. Used in tests and when the bot is disabled.
type Noop struct{}

// NotifyUser implements Notifier.
func (Noop) NotifyUser(context.Context, int64, string) error { return nil }
