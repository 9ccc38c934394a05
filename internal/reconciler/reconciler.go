// Package reconciler consumes on-chain transfer events and settles the two
// deposit flows they drive: wallet-link confirmation by exact token deposit
// and paid access by exact SOL payment. Every signature is processed at most
// once and unknown or inexact transfers are ignored, so replaying history is
// always safe.
package reconciler

import (
	"context"
	"errors"
	"strconv"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/rs/zerolog/log"

	"github.com/decentralized-86/pumpshie-backend/internal/chain"
	"github.com/decentralized-86/pumpshie-backend/internal/model"
	"github.com/decentralized-86/pumpshie-backend/internal/notify"
	"github.com/decentralized-86/pumpshie-backend/internal/repository"
	"github.com/decentralized-86/pumpshie-backend/internal/service"
)

// seenCacheSize bounds the in-memory dedup window. Signatures falling out of
// the window are still safe to reprocess: the repository writes are
// conditional and converge to the same state.
const seenCacheSize = 4096

// userStore is the slice of the user repository the reconciler writes to.
type userStore interface {
	GetByWallet(ctx context.Context, walletAddress string) (*model.User, error)
	BindWallet(ctx context.Context, tgID int64, walletAddress string) error
	SetAccessType(ctx context.Context, tgID int64, accessType model.AccessType) error
	SetPaidAccess(ctx context.Context, tgID int64, until time.Time) error
}

// linkStore is the slice of the wallet-link repository the reconciler uses.
type linkStore interface {
	GetPending(ctx context.Context, walletAddress string) (*model.WalletLink, error)
	Confirm(ctx context.Context, walletAddress string) error
	Delete(ctx context.Context, walletAddress string) error
}

// chainReader is the slice of the chain client the reconciler reads from.
type chainReader interface {
	GetParsedTransaction(ctx context.Context, signature string) (*chain.ParsedTransaction, error)
	GetSignaturesForAddress(ctx context.Context, address string, limit int) ([]string, error)
	GetTokenBalance(ctx context.Context, owner string) (uint64, error)
}

// Config carries the matching parameters.
type Config struct {
	DepositTokenAccount string
	AdminAddress        string
	LinkAmountTokens    uint64
	PaidAccessLamports  uint64
	HolderMinTokens     uint64
	PaidAccessHours     int
}

// Reconciler turns raw transaction signatures into wallet-link confirmations
// and paid-access grants.
type Reconciler struct {
	users    userStore
	links    linkStore
	chain    chainReader
	notifier notify.Notifier
	cfg      Config
	seen     *lru.Cache
	now      func() time.Time
}

// New creates a Reconciler. notifier may be nil.
func New(users userStore, links linkStore, chainReader chainReader, notifier notify.Notifier, cfg Config) (*Reconciler, error) {
	seen, err := lru.New(seenCacheSize)
	if err != nil {
		return nil, err
	}
	if notifier == nil {
		notifier = notify.Noop{}
	}
	return &Reconciler{
		users:    users,
		links:    links,
		chain:    chainReader,
		notifier: notifier,
		cfg:      cfg,
		seen:     seen,
		now:      time.Now,
	}, nil
}

// ProcessSignature fetches the transaction and applies whatever transfer
// instructions it carries. A signature already in the dedup window, a failed
// transaction, or a transaction with no matching instruction is a no-op.
func (r *Reconciler) ProcessSignature(ctx context.Context, signature string) error {
	if signature == "" {
		return nil
	}
	if _, dup := r.seen.Get(signature); dup {
		return nil
	}

	tx, err := r.chain.GetParsedTransaction(ctx, signature)
	if err != nil {
		if errors.Is(err, chain.ErrTransactionNotFound) {
			// Not finalized yet; the next notification or poll retries.
			return nil
		}
		return err
	}
	if tx.Meta.Failed() {
		r.seen.Add(signature, struct{}{})
		return nil
	}

	// Time-anchored writes use the block time so a redelivery produces the
	// same grant it produced the first time.
	confirmedAt := r.now()
	if t, ok := tx.Time(); ok {
		confirmedAt = t
	}

	for i := range tx.Transaction.Message.Instructions {
		ix := &tx.Transaction.Message.Instructions[i]
		if transfer, ok := ix.AsTokenTransfer(); ok {
			r.handleTokenTransfer(ctx, signature, transfer)
		}
		if transfer, ok := ix.AsSolTransfer(); ok {
			r.handleSolTransfer(ctx, signature, transfer, confirmedAt)
		}
	}

	r.seen.Add(signature, struct{}{})
	return nil
}

// handleTokenTransfer settles a wallet-link deposit: an exact-amount token
// transfer into the deposit account from a wallet with a live pending link.
func (r *Reconciler) handleTokenTransfer(ctx context.Context, signature string, transfer *chain.TokenTransfer) {
	if transfer.Destination != r.cfg.DepositTokenAccount {
		return
	}
	amount, err := strconv.ParseUint(transfer.TokenAmount.Amount, 10, 64)
	if err != nil || amount != r.cfg.LinkAmountTokens {
		return
	}

	sender := transfer.Sender()
	link, err := r.links.GetPending(ctx, sender)
	if err != nil {
		if errors.Is(err, repository.ErrLinkNotFound) {
			log.Debug().Str("wallet", sender).Str("sig", signature).
				Msg("Token deposit without pending link, ignored")
			return
		}
		log.Error().Err(err).Str("wallet", sender).Msg("Failed to load pending link")
		return
	}

	if r.now().Sub(link.CreatedAt) > service.WalletLinkTTL {
		log.Info().Str("wallet", sender).Int64("tg_id", link.UserID).
			Msg("Token deposit arrived after link window, discarding link")
		if err := r.links.Delete(ctx, sender); err != nil {
			log.Warn().Err(err).Str("wallet", sender).Msg("Failed to discard stale link")
		}
		return
	}

	if err := r.users.BindWallet(ctx, link.UserID, sender); err != nil {
		if errors.Is(err, repository.ErrWalletTaken) {
			log.Warn().Str("wallet", sender).Int64("tg_id", link.UserID).
				Msg("Deposit for a wallet already bound elsewhere, ignored")
			return
		}
		log.Error().Err(err).Str("wallet", sender).Msg("Failed to bind wallet")
		return
	}

	// Confirm is conditional on the row still being pending, so a
	// redelivered signature stops here.
	if err := r.links.Confirm(ctx, sender); err != nil {
		if !errors.Is(err, repository.ErrLinkAlreadyConfirmed) {
			log.Error().Err(err).Str("wallet", sender).Msg("Failed to confirm link")
		}
		return
	}

	log.Info().Str("wallet", sender).Int64("tg_id", link.UserID).Str("sig", signature).
		Msg("Wallet link confirmed by deposit")

	r.maybePromoteHolder(ctx, link.UserID, sender)

	if err := r.notifier.NotifyUser(ctx, link.UserID, "✅ Wallet linked! Your deposit was received."); err != nil {
		log.Warn().Err(err).Int64("tg_id", link.UserID).Msg("Failed to notify linked user")
	}
}

// maybePromoteHolder upgrades a freshly linked user whose balance already
// clears the holder threshold. Failure just waits for the nightly sweep.
func (r *Reconciler) maybePromoteHolder(ctx context.Context, tgID int64, wallet string) {
	balance, err := r.chain.GetTokenBalance(ctx, wallet)
	if err != nil {
		log.Warn().Err(err).Str("wallet", wallet).Msg("Post-link balance check failed")
		return
	}
	if balance < r.cfg.HolderMinTokens {
		return
	}
	if err := r.users.SetAccessType(ctx, tgID, model.AccessTokenHolder); err != nil {
		log.Warn().Err(err).Int64("tg_id", tgID).Msg("Post-link holder promotion failed")
		return
	}
	log.Info().Int64("tg_id", tgID).Str("wallet", wallet).Msg("User promoted to token holder on link")
}

// handleSolTransfer settles a paid-access purchase: an exact-lamport payment
// to the admin address from an already linked wallet. The paid window is
// anchored at confirmedAt, and the store only moves it forward, so replaying
// the signature after a restart cannot extend the access it already granted.
func (r *Reconciler) handleSolTransfer(ctx context.Context, signature string, transfer *chain.SolTransfer, confirmedAt time.Time) {
	if transfer.Destination != r.cfg.AdminAddress {
		return
	}
	if transfer.Lamports != r.cfg.PaidAccessLamports {
		return
	}

	user, err := r.users.GetByWallet(ctx, transfer.Source)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			log.Debug().Str("wallet", transfer.Source).Str("sig", signature).
				Msg("Payment from unlinked wallet, ignored")
			return
		}
		log.Error().Err(err).Str("wallet", transfer.Source).Msg("Failed to resolve payer")
		return
	}

	until := confirmedAt.Add(time.Duration(r.cfg.PaidAccessHours) * time.Hour)
	if err := r.users.SetPaidAccess(ctx, user.TgID, until); err != nil {
		log.Error().Err(err).Int64("tg_id", user.TgID).Msg("Failed to grant paid access")
		return
	}

	log.Info().Int64("tg_id", user.TgID).Str("wallet", transfer.Source).
		Time("until", until).Str("sig", signature).Msg("Paid access granted")

	msg := "🎮 Payment received! You have unlimited plays for the next 24 hours."
	if err := r.notifier.NotifyUser(ctx, user.TgID, msg); err != nil {
		log.Warn().Err(err).Int64("tg_id", user.TgID).Msg("Failed to notify paying user")
	}
}
