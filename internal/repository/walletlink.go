package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/decentralized-86/pumpshie-backend/internal/model"
)

// Wallet-link errors.
var (
	ErrLinkNotFound = errors.New("wallet link not found")
	// ErrLinkAlreadyConfirmed is returned when confirming a link twice; a
	// replayed chain event loses here instead of re-processing.
	ErrLinkAlreadyConfirmed = errors.New("wallet link already confirmed")
)

// WalletLinkRepository handles pending deposit-based wallet linking records.
type WalletLinkRepository struct {
	pool *pgxpool.Pool
}

// NewWalletLinkRepository creates a new WalletLinkRepository instance.
func NewWalletLinkRepository(pool *pgxpool.Pool) *WalletLinkRepository {
	return &WalletLinkRepository{pool: pool}
}

// CreatePending registers a candidate address for a user. A resubmission of
// the same address restarts the pending window; a confirmed record is left
// alone.
func (r *WalletLinkRepository) CreatePending(ctx context.Context, walletAddress string, userID int64) (*model.WalletLink, error) {
	const query = `
		INSERT INTO wallet_links (wallet_address, user_id, confirmed, created_at)
		VALUES ($1, $2, FALSE, NOW())
		ON CONFLICT (wallet_address) DO UPDATE
		SET user_id = EXCLUDED.user_id, created_at = NOW()
		WHERE NOT wallet_links.confirmed
		RETURNING wallet_address, user_id, confirmed, created_at
	`

	var link model.WalletLink
	err := r.pool.QueryRow(ctx, query, walletAddress, userID).Scan(
		&link.WalletAddress, &link.UserID, &link.Confirmed, &link.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLinkAlreadyConfirmed
		}
		return nil, fmt.Errorf("failed to create wallet link: %w", err)
	}
	return &link, nil
}

// GetPending returns the pending record for an address, if any.
func (r *WalletLinkRepository) GetPending(ctx context.Context, walletAddress string) (*model.WalletLink, error) {
	const query = `
		SELECT wallet_address, user_id, confirmed, created_at
		FROM wallet_links
		WHERE wallet_address = $1 AND NOT confirmed
	`

	var link model.WalletLink
	err := r.pool.QueryRow(ctx, query, walletAddress).Scan(
		&link.WalletAddress, &link.UserID, &link.Confirmed, &link.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLinkNotFound
		}
		return nil, fmt.Errorf("failed to get wallet link: %w", err)
	}
	return &link, nil
}

// Confirm flips a pending record to confirmed exactly once. A redelivered
// event matches no row and gets ErrLinkAlreadyConfirmed.
func (r *WalletLinkRepository) Confirm(ctx context.Context, walletAddress string) error {
	const query = `
		UPDATE wallet_links
		SET confirmed = TRUE
		WHERE wallet_address = $1 AND NOT confirmed
	`

	result, err := r.pool.Exec(ctx, query, walletAddress)
	if err != nil {
		return fmt.Errorf("failed to confirm wallet link: %w", err)
	}
	if result.RowsAffected() == 0 {
		if _, getErr := r.get(ctx, walletAddress); getErr != nil {
			return getErr
		}
		return ErrLinkAlreadyConfirmed
	}
	return nil
}

func (r *WalletLinkRepository) get(ctx context.Context, walletAddress string) (*model.WalletLink, error) {
	const query = `
		SELECT wallet_address, user_id, confirmed, created_at
		FROM wallet_links
		WHERE wallet_address = $1
	`

	var link model.WalletLink
	err := r.pool.QueryRow(ctx, query, walletAddress).Scan(
		&link.WalletAddress, &link.UserID, &link.Confirmed, &link.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLinkNotFound
		}
		return nil, fmt.Errorf("failed to get wallet link: %w", err)
	}
	return &link, nil
}

// Delete removes a record, used for expired pending links.
func (r *WalletLinkRepository) Delete(ctx context.Context, walletAddress string) error {
	const query = `DELETE FROM wallet_links WHERE wallet_address = $1`

	if _, err := r.pool.Exec(ctx, query, walletAddress); err != nil {
		return fmt.Errorf("failed to delete wallet link: %w", err)
	}
	return nil
}

// SweepExpired garbage-collects pending records past the TTL. The reconciler
// already refuses stale records at match time; this keeps the table small.
func (r *WalletLinkRepository) SweepExpired(ctx context.Context, ttl time.Duration) (int64, error) {
	const query = `
		DELETE FROM wallet_links
		WHERE NOT confirmed AND created_at < NOW() - $1::INTERVAL
	`

	result, err := r.pool.Exec(ctx, query, fmt.Sprintf("%d seconds", int(ttl.Seconds())))
	if err != nil {
		return 0, fmt.Errorf("failed to sweep wallet links: %w", err)
	}
	return result.RowsAffected(), nil
}
