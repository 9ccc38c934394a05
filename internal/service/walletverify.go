package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/decentralized-86/pumpshie-backend/internal/chain"
	"github.com/decentralized-86/pumpshie-backend/internal/repository"
)

// Wallet verification errors.
var (
	// ErrMissingWallet rejects a request without a wallet address before
	// anything touches storage.
	ErrMissingWallet = errors.New("wallet address is required")
	// ErrMissingSignature rejects a verification without a signature.
	ErrMissingSignature = errors.New("signature is required")
	// ErrNonceExpired means the challenge outlived its TTL; the client
	// restarts the flow.
	ErrNonceExpired = errors.New("nonce expired")
	// ErrNonceMismatch covers a missing, already-consumed or wrong nonce.
	ErrNonceMismatch = errors.New("nonce mismatch")
	// ErrBadSignature means the signature did not verify over the
	// reconstructed message.
	ErrBadSignature = errors.New("signature verification failed")
	// ErrWalletTaken re-exports the uniqueness conflict.
	ErrWalletTaken = repository.ErrWalletTaken
)

// nonceTTL is the challenge lifetime.
const nonceTTL = 5 * time.Minute

// Challenge is what the client must sign.
type Challenge struct {
	Message string
	Nonce   string
}

// WalletVerifyService runs the signature-based challenge/response flow that
// binds a wallet address to a user without moving funds.
type WalletVerifyService struct {
	nonceRepo *repository.NonceRepository
	userRepo  *repository.UserRepository
	now       func() time.Time
}

// NewWalletVerifyService creates a WalletVerifyService.
func NewWalletVerifyService(nonceRepo *repository.NonceRepository, userRepo *repository.UserRepository) *WalletVerifyService {
	return &WalletVerifyService{
		nonceRepo: nonceRepo,
		userRepo:  userRepo,
		now:       time.Now,
	}
}

func generateNonce() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// PrepareVerification issues a fresh challenge for the wallet, replacing any
// earlier one. The returned message embeds the nonce and issue timestamp;
// verification reconstructs it byte for byte.
func (s *WalletVerifyService) PrepareVerification(ctx context.Context, walletAddress string) (*Challenge, error) {
	if walletAddress == "" {
		return nil, ErrMissingWallet
	}

	nonce, err := generateNonce()
	if err != nil {
		return nil, err
	}

	issuedAt := s.now()
	if err := s.nonceRepo.Put(ctx, walletAddress, nonce, issuedAt); err != nil {
		return nil, err
	}

	return &Challenge{
		Message: chain.SignMessage(walletAddress, nonce, issuedAt),
		Nonce:   nonce,
	}, nil
}

// Verify consumes the stored challenge and checks the signature over the
// reconstructed message. The nonce is deleted on the first attempt whatever
// the outcome of the cryptographic check, so it can never be replayed.
// On success the wallet is bound to the user, subject to the one-wallet-one-
// account uniqueness rule.
func (s *WalletVerifyService) Verify(ctx context.Context, tgID int64, walletAddress, signatureB58, nonce string) error {
	if walletAddress == "" {
		return ErrMissingWallet
	}
	if signatureB58 == "" {
		return ErrMissingSignature
	}

	stored, err := s.nonceRepo.Consume(ctx, walletAddress)
	if err != nil {
		if errors.Is(err, repository.ErrNonceNotFound) {
			return ErrNonceMismatch
		}
		return err
	}

	if s.now().Sub(stored.IssuedAt) > nonceTTL {
		return ErrNonceExpired
	}
	if stored.Nonce != nonce {
		return ErrNonceMismatch
	}

	message := chain.SignMessage(walletAddress, stored.Nonce, stored.IssuedAt)
	ok, err := chain.VerifySignature(message, signatureB58, walletAddress)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	if !ok {
		return ErrBadSignature
	}

	// The unique index on wallet_address rejects a second account claiming
	// this wallet without mutating the caller.
	if err := s.userRepo.BindWallet(ctx, tgID, walletAddress); err != nil {
		return err
	}

	log.Info().Int64("tg_id", tgID).Str("wallet", walletAddress).Msg("Wallet verified and linked")
	return nil
}
