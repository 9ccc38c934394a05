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

// ErrNonceNotFound is returned when no nonce is stored for a wallet.
var ErrNonceNotFound = errors.New("nonce not found")

// NonceRepository stores wallet verification nonces. A process restart
// invalidating in-flight challenges is acceptable, so this could live in
// memory; keeping it in Postgres makes the single-use delete race-free across
// replicas.
type NonceRepository struct {
	pool *pgxpool.Pool
}

// NewNonceRepository creates a new NonceRepository instance.
func NewNonceRepository(pool *pgxpool.Pool) *NonceRepository {
	return &NonceRepository{pool: pool}
}

// Put stores a nonce for a wallet, replacing any previous challenge.
func (r *NonceRepository) Put(ctx context.Context, walletAddress, nonce string, issuedAt time.Time) error {
	const query = `
		INSERT INTO wallet_nonces (wallet_address, nonce, issued_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (wallet_address) DO UPDATE
		SET nonce = EXCLUDED.nonce, issued_at = EXCLUDED.issued_at
	`

	if _, err := r.pool.Exec(ctx, query, walletAddress, nonce, issuedAt); err != nil {
		return fmt.Errorf("failed to store nonce: %w", err)
	}
	return nil
}

// Consume atomically removes and returns the stored nonce for a wallet.
// The DELETE ... RETURNING makes the nonce single use: of two concurrent
// verification attempts only one gets the row.
func (r *NonceRepository) Consume(ctx context.Context, walletAddress string) (*model.WalletNonce, error) {
	const query = `
		DELETE FROM wallet_nonces
		WHERE wallet_address = $1
		RETURNING wallet_address, nonce, issued_at
	`

	var n model.WalletNonce
	err := r.pool.QueryRow(ctx, query, walletAddress).Scan(&n.WalletAddress, &n.Nonce, &n.IssuedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNonceNotFound
		}
		return nil, fmt.Errorf("failed to consume nonce: %w", err)
	}
	return &n, nil
}

// SweepExpired garbage-collects nonces past the TTL. Expiry is enforced at
// consume time regardless; this only bounds table growth.
func (r *NonceRepository) SweepExpired(ctx context.Context, ttl time.Duration) (int64, error) {
	const query = `
		DELETE FROM wallet_nonces
		WHERE issued_at < NOW() - $1::INTERVAL
	`

	result, err := r.pool.Exec(ctx, query, fmt.Sprintf("%d seconds", int(ttl.Seconds())))
	if err != nil {
		return 0, fmt.Errorf("failed to sweep nonces: %w", err)
	}
	return result.RowsAffected(), nil
}
