package chain

import (
	"context"
	"errors"
)

// ErrUnavailable wraps RPC transport failures and timeouts. Callers treat it
// as "try again later", never as a state change.
var ErrUnavailable = errors.New("chain rpc unavailable")

// ErrTransactionNotFound is returned when a signature resolves to no
// transaction.
var ErrTransactionNotFound = errors.New("transaction not found")

// Client is the read/write contract against the chain. The backend never
// depends on a vendor SDK; everything it needs fits in these five calls.
type Client interface {
	// GetTokenBalance returns the owner's total balance of the configured
	// mint, in base units.
	GetTokenBalance(ctx context.Context, owner string) (uint64, error)
	// GetBalance returns the native balance of an address in lamports.
	GetBalance(ctx context.Context, address string) (uint64, error)
	// GetParsedTransaction fetches a confirmed transaction in jsonParsed
	// encoding.
	GetParsedTransaction(ctx context.Context, signature string) (*ParsedTransaction, error)
	// GetSignaturesForAddress returns the most recent transaction
	// signatures touching an address, newest first.
	GetSignaturesForAddress(ctx context.Context, address string, limit int) ([]string, error)
	// SendPayment transfers lamports from the admin wallet and returns the
	// transaction signature.
	SendPayment(ctx context.Context, to string, lamports uint64) (string, error)
}
