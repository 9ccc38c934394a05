package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tele "gopkg.in/telebot.v3"

	"github.com/decentralized-86/pumpshie-backend/internal/config"
	"github.com/decentralized-86/pumpshie-backend/internal/repository"
	"github.com/decentralized-86/pumpshie-backend/internal/service"
)

// tokenDecimals matches the mint; amounts are shown to users in whole tokens.
const tokenDecimals = 1_000_000

// WalletHandler handles the two wallet-binding flows: deposit-based linking
// and signature-based verification.
type WalletHandler struct {
	links  *repository.WalletLinkRepository
	verify *service.WalletVerifyService
	solana config.SolanaConfig
}

// NewWalletHandler creates a new WalletHandler.
func NewWalletHandler(links *repository.WalletLinkRepository, verify *service.WalletVerifyService, solana config.SolanaConfig) *WalletHandler {
	return &WalletHandler{links: links, verify: verify, solana: solana}
}

// HandleLink handles /link <wallet>: registers a pending link and replies
// with the deposit instructions that will confirm it.
func (h *WalletHandler) HandleLink(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	args := c.Args()
	if len(args) != 1 {
		return c.Reply("Usage: /link <wallet address>")
	}
	wallet := strings.TrimSpace(args[0])
	if len(wallet) < 32 || len(wallet) > 44 {
		return c.Reply("❌ That does not look like a Solana address")
	}

	if _, err := h.links.CreatePending(ctx, wallet, sender.ID); err != nil {
		if errors.Is(err, repository.ErrLinkAlreadyConfirmed) {
			return c.Reply("✅ This wallet is already linked")
		}
		return c.Reply("❌ Could not start the link, please try again later")
	}

	return c.Reply(fmt.Sprintf(
		"🔗 Almost there!\n\n"+
			"Send exactly %d PUMPSHIE from %s to:\n%s\n\n"+
			"The deposit must arrive within %d minutes. "+
			"I will confirm automatically once it lands.",
		h.solana.LinkAmountTokens/tokenDecimals, wallet,
		h.solana.DepositTokenAccount,
		int(service.WalletLinkTTL.Minutes()),
	))
}

// HandleVerify handles /verify <wallet>: issues the message to sign.
func (h *WalletHandler) HandleVerify(c tele.Context) error {
	ctx := context.Background()
	if c.Sender() == nil {
		return nil
	}

	args := c.Args()
	if len(args) != 1 {
		return c.Reply("Usage: /verify <wallet address>")
	}

	challenge, err := h.verify.PrepareVerification(ctx, strings.TrimSpace(args[0]))
	if err != nil {
		return c.Reply("❌ Could not prepare verification, please try again later")
	}

	return c.Reply(fmt.Sprintf(
		"✍️ Sign this message with your wallet and send back:\n"+
			"/confirm <wallet> <nonce> <signature>\n\n%s\n\n"+
			"Your nonce: %s\n"+
			"The challenge expires in 5 minutes.",
		challenge.Message, challenge.Nonce,
	))
}

// HandleConfirm handles /confirm <wallet> <nonce> <signature>: checks the
// signature against the pending challenge and binds the wallet.
func (h *WalletHandler) HandleConfirm(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	args := c.Args()
	if len(args) != 3 {
		return c.Reply("Usage: /confirm <wallet address> <nonce> <signature>")
	}
	wallet, nonce, sig := strings.TrimSpace(args[0]), strings.TrimSpace(args[1]), strings.TrimSpace(args[2])

	err := h.verify.Verify(ctx, sender.ID, wallet, sig, nonce)
	switch {
	case err == nil:
		return c.Reply("✅ Wallet verified and linked!")
	case errors.Is(err, service.ErrNonceExpired):
		return c.Reply("⌛ Challenge expired, run /verify again")
	case errors.Is(err, service.ErrNonceMismatch):
		return c.Reply("❌ No active challenge for this wallet, run /verify first")
	case errors.Is(err, service.ErrBadSignature):
		return c.Reply("❌ Signature did not verify")
	case errors.Is(err, service.ErrWalletTaken):
		return c.Reply("❌ This wallet is already linked to another account")
	default:
		return c.Reply("❌ Verification failed, please try again later")
	}
}
