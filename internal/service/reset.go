package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/decentralized-86/pumpshie-backend/internal/cache"
	"github.com/decentralized-86/pumpshie-backend/internal/chain"
	"github.com/decentralized-86/pumpshie-backend/internal/model"
	"github.com/decentralized-86/pumpshie-backend/internal/notify"
	"github.com/decentralized-86/pumpshie-backend/internal/repository"
)

// WalletLinkTTL is how long a pending wallet link waits for its deposit.
// The reconciler ignores deposits arriving later, and the sweep removes the
// stale rows.
const WalletLinkTTL = 10 * time.Minute

// ResetService runs the end-of-day settlement: pay the winner, sweep wallet
// holdings, and advance the global day. Every step after the day flip is
// best-effort; a payout or sweep failure never leaves the system without an
// active day.
type ResetService struct {
	days        *GlobalDayService
	dayRepo     *repository.GlobalDayRepository
	sessionRepo *repository.SessionRepository
	userRepo    *repository.UserRepository
	nonceRepo   *repository.NonceRepository
	linkRepo    *repository.WalletLinkRepository
	chain       chain.Client
	notifier    notify.Notifier
	leaderboard *cache.Leaderboard
	holderMin   uint64
	now         func() time.Time
}

// NewResetService creates a ResetService.
func NewResetService(
	days *GlobalDayService,
	dayRepo *repository.GlobalDayRepository,
	sessionRepo *repository.SessionRepository,
	userRepo *repository.UserRepository,
	nonceRepo *repository.NonceRepository,
	linkRepo *repository.WalletLinkRepository,
	chainClient chain.Client,
	notifier notify.Notifier,
	leaderboard *cache.Leaderboard,
	holderMinTokens uint64,
) *ResetService {
	if notifier == nil {
		notifier = notify.Noop{}
	}
	return &ResetService{
		days:        days,
		dayRepo:     dayRepo,
		sessionRepo: sessionRepo,
		userRepo:    userRepo,
		nonceRepo:   nonceRepo,
		linkRepo:    linkRepo,
		chain:       chainClient,
		notifier:    notifier,
		leaderboard: leaderboard,
		holderMin:   holderMinTokens,
		now:         time.Now,
	}
}

// CheckAndRun is the idempotent heartbeat entry point: before the day
// boundary it does nothing, after it the full settlement runs exactly once.
// Both the midnight timer and the periodic heartbeat funnel through here, so
// a missed trigger self-heals on the next tick.
func (s *ResetService) CheckAndRun(ctx context.Context) (bool, error) {
	day, err := s.days.GetCurrentDay(ctx)
	if err != nil {
		return false, err
	}
	if s.now().Before(day.EndTime) {
		return false, nil
	}

	if err := s.RunDailyReset(ctx, day); err != nil {
		// A concurrent heartbeat advancing the day first surfaces as an
		// ambiguous-state error from the day flip; the reset happened,
		// just not here.
		if errors.Is(err, ErrAmbiguousDayState) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// RunDailyReset settles the ending day and opens the next one. The winner is
// resolved against the ending day before the flip; the payout itself happens
// after, so a slow or failing RPC cannot delay the new day.
func (s *ResetService) RunDailyReset(ctx context.Context, endingDay *model.GlobalDay) error {
	winner := s.resolveWinner(ctx, endingDay)

	newDay, err := s.days.ResetGlobalDay(ctx, endingDay)
	if err != nil {
		return fmt.Errorf("failed to advance global day: %w", err)
	}
	log.Info().Int64("old_day_id", endingDay.ID).Int64("new_day_id", newDay.ID).
		Msg("Daily reset: day advanced")

	if winner != nil {
		s.payWinner(ctx, endingDay, winner)
	}

	if s.leaderboard != nil {
		if err := s.leaderboard.Drop(ctx, endingDay.ID); err != nil {
			log.Warn().Err(err).Int64("day_id", endingDay.ID).
				Msg("Failed to drop cached leaderboard for closed day")
		}
	}

	s.sweepTokenHolders(ctx)
	return nil
}

// resolveWinner finds the ending day's top session and the wallet to pay.
// A day with no completed sessions, or a winner with no linked wallet, yields
// no payout.
func (s *ResetService) resolveWinner(ctx context.Context, day *model.GlobalDay) *model.User {
	top, err := s.sessionRepo.TopOfDay(ctx, day.ID)
	if err != nil {
		if !errors.Is(err, repository.ErrSessionNotFound) {
			log.Error().Err(err).Int64("day_id", day.ID).Msg("Failed to resolve day winner")
		}
		return nil
	}

	user, err := s.userRepo.GetByID(ctx, top.UserID)
	if err != nil {
		log.Error().Err(err).Int64("tg_id", top.UserID).Msg("Failed to load day winner")
		return nil
	}
	if user.WalletAddress == nil {
		log.Warn().Int64("tg_id", user.TgID).Int64("score", top.Score).
			Msg("Day winner has no linked wallet, skipping reward")
		return nil
	}

	log.Info().Int64("tg_id", user.TgID).Int64("score", top.Score).
		Int64("play_time", top.PlayTime).Msg("Day winner resolved")
	return user
}

// payWinner sends the day's snapshotted reward and records the tx hash.
// Failure is logged and left for manual settlement; reward_claimed stays
// false so the operator can see which days went unpaid.
func (s *ResetService) payWinner(ctx context.Context, day *model.GlobalDay, winner *model.User) {
	if day.RewardClaimed {
		return
	}
	if day.RewardAmount <= 0 {
		return
	}

	txHash, err := s.chain.SendPayment(ctx, *winner.WalletAddress, uint64(day.RewardAmount))
	if err != nil {
		log.Error().Err(err).Int64("day_id", day.ID).Int64("tg_id", winner.TgID).
			Msg("Winner payout failed, leaving day unclaimed")
		return
	}

	if err := s.dayRepo.MarkRewardPaid(ctx, day.ID, txHash); err != nil {
		log.Error().Err(err).Int64("day_id", day.ID).Str("tx", txHash).
			Msg("Payout sent but not recorded")
	}

	log.Info().Int64("day_id", day.ID).Int64("tg_id", winner.TgID).Str("tx", txHash).
		Msg("Winner reward paid")

	msg := fmt.Sprintf("🏆 You won today's Pumpshie round! Reward sent.\nTx: %s", txHash)
	if err := s.notifier.NotifyUser(ctx, winner.TgID, msg); err != nil {
		log.Warn().Err(err).Int64("tg_id", winner.TgID).Msg("Failed to notify winner")
	}
}

// sweepTokenHolders re-checks on-chain balances for every linked wallet and
// moves users across the holder threshold in both directions. Per-user
// failures are logged and skipped; one flaky RPC response must not abort the
// whole pass.
func (s *ResetService) sweepTokenHolders(ctx context.Context) {
	users, err := s.userRepo.ListWithWallets(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Token-holder sweep failed to list wallets")
		return
	}

	var promoted, demoted int
	for _, u := range users {
		balance, err := s.chain.GetTokenBalance(ctx, *u.WalletAddress)
		if err != nil {
			log.Warn().Err(err).Int64("tg_id", u.TgID).Msg("Holder sweep balance check failed")
			continue
		}

		isHolder := balance >= s.holderMin
		switch {
		case isHolder && u.AccessType != model.AccessTokenHolder:
			if err := s.userRepo.SetAccessType(ctx, u.TgID, model.AccessTokenHolder); err != nil {
				log.Warn().Err(err).Int64("tg_id", u.TgID).Msg("Holder promotion failed")
				continue
			}
			promoted++
		case !isHolder && u.AccessType == model.AccessTokenHolder:
			if err := s.userRepo.SetAccessType(ctx, u.TgID, model.AccessFree); err != nil {
				log.Warn().Err(err).Int64("tg_id", u.TgID).Msg("Holder demotion failed")
				continue
			}
			demoted++
		}
	}

	log.Info().Int("wallets", len(users)).Int("promoted", promoted).Int("demoted", demoted).
		Msg("Token-holder sweep complete")
}

// Sweep garbage-collects expired nonces, stale pending wallet links and
// abandoned sessions, and reverts lapsed paid access. Called from the
// scheduler on its heartbeat.
func (s *ResetService) Sweep(ctx context.Context, sessionTTL time.Duration) {
	if n, err := s.userRepo.ExpirePaidAccess(ctx); err != nil {
		log.Warn().Err(err).Msg("Paid access expiry failed")
	} else if n > 0 {
		log.Info().Int64("reverted", n).Msg("Reverted lapsed paid access")
	}

	if n, err := s.nonceRepo.SweepExpired(ctx, nonceTTL); err != nil {
		log.Warn().Err(err).Msg("Nonce sweep failed")
	} else if n > 0 {
		log.Debug().Int64("removed", n).Msg("Swept expired nonces")
	}

	if n, err := s.linkRepo.SweepExpired(ctx, WalletLinkTTL); err != nil {
		log.Warn().Err(err).Msg("Wallet link sweep failed")
	} else if n > 0 {
		log.Debug().Int64("removed", n).Msg("Swept expired wallet links")
	}

	if n, err := s.sessionRepo.ExpireStale(ctx, sessionTTL); err != nil {
		log.Warn().Err(err).Msg("Stale session sweep failed")
	} else if n > 0 {
		log.Debug().Int64("expired", n).Msg("Expired stale sessions")
	}
}
