package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/decentralized-86/pumpshie-backend/internal/chain"
	"github.com/decentralized-86/pumpshie-backend/internal/model"
	"github.com/decentralized-86/pumpshie-backend/internal/repository"
)

// Access policy errors.
var (
	// ErrTweetAlreadyClaimed is returned when the daily tweet bonus was
	// already granted today.
	ErrTweetAlreadyClaimed = errors.New("tweet bonus already claimed today")
	// ErrTweetRejected is returned when the tweet fails the content check.
	ErrTweetRejected = errors.New("tweet does not qualify")
)

// AccessService is the single producer of play decisions. Everything that
// wants to know whether a user may play right now asks here.
//
// Token-holder and paid promotions written by the reconciler are only
// eventually consistent with these reads: a payment confirmed on chain can
// take one listener cycle before CanUserPlay reflects it.
type AccessService struct {
	userRepo  *repository.UserRepository
	days      *GlobalDayService
	chain     chain.Client
	freePlays int
	holderMin uint64
	now       func() time.Time

	lookupTweet func(ctx context.Context, tweetID string) (string, error)
}

// NewAccessService creates an AccessService.
func NewAccessService(
	userRepo *repository.UserRepository,
	days *GlobalDayService,
	chainClient chain.Client,
	freePlaysPerDay int,
	holderMinTokens uint64,
) *AccessService {
	return &AccessService{
		userRepo:  userRepo,
		days:      days,
		chain:     chainClient,
		freePlays: freePlaysPerDay,
		holderMin: holderMinTokens,
		now:       time.Now,
	}
}

// EnsureUser registers the user on first contact and syncs the row to the
// active day. Reports whether the account was just created.
func (s *AccessService) EnsureUser(ctx context.Context, tgID int64, username, displayName string) (*model.User, bool, error) {
	_, created, err := s.userRepo.GetOrCreate(ctx, tgID, username, displayName, s.freePlays)
	if err != nil {
		return nil, false, err
	}
	user, err := s.SyncUser(ctx, tgID)
	if err != nil {
		return nil, false, err
	}
	return user, created, nil
}

// SyncUser lazily reconciles the user row with the active day: daily free
// plays and the tweet flag reset the first time the user is touched after a
// rollover. This is what makes daily limits daily without the batch reset
// having to reach every row.
func (s *AccessService) SyncUser(ctx context.Context, tgID int64) (*model.User, error) {
	day, err := s.days.GetCurrentDay(ctx)
	if err != nil {
		return nil, err
	}
	user, err := s.userRepo.SyncToDay(ctx, tgID, day.ID, s.freePlays)
	if err != nil {
		return nil, fmt.Errorf("failed to sync user %d: %w", tgID, err)
	}
	return user, nil
}

// CanUserPlay evaluates the ordered policy chain and returns the first
// matching decision.
func (s *AccessService) CanUserPlay(ctx context.Context, tgID int64) (model.PlayDecision, error) {
	user, err := s.SyncUser(ctx, tgID)
	if err != nil {
		return model.PlayDecision{}, err
	}
	return s.decide(ctx, user), nil
}

// decide runs the policy chain against a synced user row. Holder status is
// checked live on chain so a wallet that dumped its tokens mid-day loses the
// tier without waiting for the nightly sweep; a chain outage just skips the
// rule and lets the rest of the chain answer.
func (s *AccessService) decide(ctx context.Context, user *model.User) model.PlayDecision {
	if user.HasPaidAccess(s.now()) {
		return model.PlayDecision{CanPlay: true, Reason: model.ReasonPaidAccess}
	}

	if user.WalletAddress != nil {
		isHolder, err := s.isTokenHolder(ctx, *user.WalletAddress)
		if err != nil {
			log.Warn().Int64("tg_id", user.TgID).Err(err).
				Msg("Holder check unavailable, falling through policy chain")
		} else if isHolder {
			return model.PlayDecision{CanPlay: true, Reason: model.ReasonTokenHolder}
		}
	}

	if user.FreePlaysRemaining > 0 {
		return model.PlayDecision{CanPlay: true, Reason: model.ReasonFreePlay}
	}

	if !user.TweetVerifiedToday {
		return model.PlayDecision{CanPlay: true, Reason: model.ReasonTweetAvailable}
	}

	return model.PlayDecision{CanPlay: false, Reason: model.ReasonNoPlaysLeft}
}

func (s *AccessService) isTokenHolder(ctx context.Context, walletAddress string) (bool, error) {
	balance, err := s.chain.GetTokenBalance(ctx, walletAddress)
	if err != nil {
		return false, err
	}
	return balance >= s.holderMin, nil
}

// ConsumePlay spends one play for the user. Paid and token-holder access
// consume nothing. Free users decrement through a conditional update, so two
// racing session starts can never drive the counter below zero.
func (s *AccessService) ConsumePlay(ctx context.Context, tgID int64) (model.PlayDecision, error) {
	user, err := s.SyncUser(ctx, tgID)
	if err != nil {
		return model.PlayDecision{}, err
	}

	decision := s.decide(ctx, user)
	if !decision.CanPlay {
		return decision, nil
	}

	switch decision.Reason {
	case model.ReasonPaidAccess, model.ReasonTokenHolder:
		return decision, nil
	case model.ReasonFreePlay:
		if _, err := s.userRepo.ConsumeFreePlay(ctx, tgID); err != nil {
			if errors.Is(err, repository.ErrNoFreePlays) {
				// Lost the decrement race; re-evaluate what is left.
				return s.CanUserPlay(ctx, tgID)
			}
			return model.PlayDecision{}, err
		}
		return decision, nil
	default:
		// tweet_available grants nothing by itself; the tweet flow is
		// the explicit way to convert it into a play.
		return decision, nil
	}
}

// requiredTweetTags must all appear for a tweet to qualify for the bonus
// play.
var requiredTweetTags = []string{"#pumpshie", "#play2earn", "@pumpshie_game"}

// TweetQualifies is the content check for the bonus-play tweet.
func TweetQualifies(text string) bool {
	lower := strings.ToLower(text)
	for _, tag := range requiredTweetTags {
		if !strings.Contains(lower, tag) {
			return false
		}
	}
	return true
}

// SetTweetLookup installs the function resolving a tweet ID to its text.
// Without one, any tweet ID qualifies (the development behavior).
func (s *AccessService) SetTweetLookup(lookup func(ctx context.Context, tweetID string) (string, error)) {
	s.lookupTweet = lookup
}

// VerifyTweetForExtraPlay grants exactly one bonus play per day. The grant is
// a single conditional update on the tweet flag, so two near-simultaneous
// submissions can never both succeed.
func (s *AccessService) VerifyTweetForExtraPlay(ctx context.Context, tgID int64, tweetID string) (int, error) {
	user, err := s.SyncUser(ctx, tgID)
	if err != nil {
		return 0, err
	}
	if user.TweetVerifiedToday {
		return 0, ErrTweetAlreadyClaimed
	}

	if s.lookupTweet != nil {
		text, err := s.lookupTweet(ctx, tweetID)
		if err != nil {
			return 0, fmt.Errorf("failed to look up tweet %s: %w", tweetID, err)
		}
		if !TweetQualifies(text) {
			return 0, ErrTweetRejected
		}
	}

	remaining, err := s.userRepo.GrantTweetPlay(ctx, tgID)
	if err != nil {
		if errors.Is(err, repository.ErrTweetAlreadyClaimed) {
			return 0, ErrTweetAlreadyClaimed
		}
		return 0, err
	}

	log.Info().Int64("tg_id", tgID).Int("free_plays", remaining).
		Msg("Tweet verified, bonus play granted")
	return remaining, nil
}
