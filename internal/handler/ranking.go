package handler

import (
	"context"
	"fmt"
	"strings"

	tele "gopkg.in/telebot.v3"

	"github.com/decentralized-86/pumpshie-backend/internal/service"
)

const leaderboardSize = 10

// RankingHandler handles the daily leaderboard commands.
type RankingHandler struct {
	leaderboards *service.LeaderboardService
}

// NewRankingHandler creates a new RankingHandler.
func NewRankingHandler(leaderboards *service.LeaderboardService) *RankingHandler {
	return &RankingHandler{leaderboards: leaderboards}
}

var medals = []string{"🥇", "🥈", "🥉"}

func medal(i int) string {
	if i < len(medals) {
		return medals[i]
	}
	return fmt.Sprintf("%d.", i+1)
}

// HandleTop handles /top: today's player leaderboard.
func (h *RankingHandler) HandleTop(c tele.Context) error {
	ctx := context.Background()

	ranks, err := h.leaderboards.Daily(ctx, leaderboardSize)
	if err != nil {
		return c.Reply("❌ Could not load the leaderboard, please try again later")
	}
	if len(ranks) == 0 {
		return c.Reply("🏆 Nobody has played today yet. Be the first!")
	}

	var b strings.Builder
	b.WriteString("🏆 Today's top players\n\n")
	for i, r := range ranks {
		fmt.Fprintf(&b, "%s %s — %d\n", medal(i), r.DisplayName, r.Score)
	}

	if sender := c.Sender(); sender != nil {
		if rank, err := h.leaderboards.UserRank(ctx, sender.ID); err == nil && rank >= 0 {
			fmt.Fprintf(&b, "\nYour position: #%d", rank+1)
		}
	}
	return c.Reply(b.String())
}

// HandleProjects handles /projects: today's project ranking.
func (h *RankingHandler) HandleProjects(c tele.Context) error {
	ctx := context.Background()

	ranks, err := h.leaderboards.Projects(ctx, leaderboardSize)
	if err != nil {
		return c.Reply("❌ Could not load the project ranking, please try again later")
	}
	if len(ranks) == 0 {
		return c.Reply("📈 No project points scored today yet")
	}

	var b strings.Builder
	b.WriteString("📈 Today's project ranking\n\n")
	for i, r := range ranks {
		fmt.Fprintf(&b, "%s %s — %d pts (%d players)\n", medal(i), r.Name, r.DailyPoints, r.PlayerCount)
	}
	return c.Reply(b.String())
}
