package handler

import (
	"context"
	"fmt"

	tele "gopkg.in/telebot.v3"

	"github.com/decentralized-86/pumpshie-backend/internal/service"
)

// AdminHandler handles operator commands. Access control lives in the admin
// middleware; these assume the sender is trusted.
type AdminHandler struct {
	reset *service.ResetService
	days  *service.GlobalDayService
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(reset *service.ResetService, days *service.GlobalDayService) *AdminHandler {
	return &AdminHandler{reset: reset, days: days}
}

// HandleForceReset handles /force_reset: settles the current day and opens
// the next one immediately, regardless of the clock.
func (h *AdminHandler) HandleForceReset(c tele.Context) error {
	ctx := context.Background()

	day, err := h.days.GetCurrentDay(ctx)
	if err != nil {
		return c.Reply(fmt.Sprintf("❌ Could not load the current day: %v", err))
	}
	if err := h.reset.RunDailyReset(ctx, day); err != nil {
		return c.Reply(fmt.Sprintf("❌ Reset failed: %v", err))
	}
	return c.Reply(fmt.Sprintf("✅ Day %d settled, next day is open", day.ID))
}

// HandleDayInfo handles /day: shows the active day's window and totals.
func (h *AdminHandler) HandleDayInfo(c tele.Context) error {
	ctx := context.Background()

	day, err := h.days.GetCurrentDay(ctx)
	if err != nil {
		return c.Reply(fmt.Sprintf("❌ Could not load the current day: %v", err))
	}
	return c.Reply(fmt.Sprintf(
		"📅 Day %d\nStart: %s\nEnd: %s\nGames: %d\nPoints: %d\nReward: %d (claimed: %t)",
		day.ID,
		day.StartTime.Format("2006-01-02 15:04 MST"),
		day.EndTime.Format("2006-01-02 15:04 MST"),
		day.TotalGamesPlayed, day.TotalPoints,
		day.RewardAmount, day.RewardClaimed,
	))
}
