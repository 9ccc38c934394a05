package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// RPCClient talks JSON-RPC to a Solana node over HTTP. It implements Client.
type RPCClient struct {
	url       string
	mint      string
	admin     *Keypair
	http      *http.Client
	requestID atomic.Int64
}

// NewRPCClient creates a client against the given RPC endpoint. admin may be
// nil when the process never sends payments.
func NewRPCClient(url, mint string, admin *Keypair) *RPCClient {
	return &RPCClient{
		url:   url,
		mint:  mint,
		admin: admin,
		http:  &http.Client{Timeout: 30 * time.Second},
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params,omitempty"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// call performs a single JSON-RPC request and decodes result into out.
// Transport failures surface as ErrUnavailable so callers can branch on
// "chain is down" without string matching.
func (c *RPCClient) call(ctx context.Context, method string, params []any, out any) error {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.requestID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal rpc request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build rpc request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrUnavailable, method, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrUnavailable, method, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s: http %d", ErrUnavailable, method, resp.StatusCode)
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(raw, &rpcResp); err != nil {
		return fmt.Errorf("failed to decode rpc response for %s: %w", method, err)
	}
	if rpcResp.Error != nil {
		return fmt.Errorf("%s: %w", method, rpcResp.Error)
	}
	if out != nil {
		if err := json.Unmarshal(rpcResp.Result, out); err != nil {
			return fmt.Errorf("failed to decode %s result: %w", method, err)
		}
	}
	return nil
}

// GetBalance returns the lamport balance of an address.
func (c *RPCClient) GetBalance(ctx context.Context, address string) (uint64, error) {
	var result struct {
		Value uint64 `json:"value"`
	}
	err := c.call(ctx, "getBalance", []any{address}, &result)
	if err != nil {
		return 0, err
	}
	return result.Value, nil
}

// GetTokenBalance sums the owner's token accounts for the configured mint,
// in base units. Avoids client-side ATA derivation entirely.
func (c *RPCClient) GetTokenBalance(ctx context.Context, owner string) (uint64, error) {
	var result struct {
		Value []struct {
			Account struct {
				Data struct {
					Parsed struct {
						Info struct {
							TokenAmount struct {
								Amount string `json:"amount"`
							} `json:"tokenAmount"`
						} `json:"info"`
					} `json:"parsed"`
				} `json:"data"`
			} `json:"account"`
		} `json:"value"`
	}

	params := []any{
		owner,
		map[string]any{"mint": c.mint},
		map[string]any{"encoding": "jsonParsed"},
	}
	if err := c.call(ctx, "getTokenAccountsByOwner", params, &result); err != nil {
		return 0, err
	}

	var total uint64
	for _, entry := range result.Value {
		amount, err := strconv.ParseUint(entry.Account.Data.Parsed.Info.TokenAmount.Amount, 10, 64)
		if err != nil {
			log.Warn().Str("owner", owner).Err(err).Msg("Unparseable token amount, skipping account")
			continue
		}
		total += amount
	}
	return total, nil
}

// GetParsedTransaction fetches a confirmed transaction in jsonParsed form.
func (c *RPCClient) GetParsedTransaction(ctx context.Context, signature string) (*ParsedTransaction, error) {
	var tx *ParsedTransaction
	params := []any{
		signature,
		map[string]any{
			"encoding":                       "jsonParsed",
			"commitment":                     "confirmed",
			"maxSupportedTransactionVersion": 0,
		},
	}
	if err := c.call(ctx, "getTransaction", params, &tx); err != nil {
		return nil, err
	}
	if tx == nil {
		return nil, ErrTransactionNotFound
	}
	return tx, nil
}

// GetSignaturesForAddress returns recent signatures for an address, newest
// first.
func (c *RPCClient) GetSignaturesForAddress(ctx context.Context, address string, limit int) ([]string, error) {
	var result []struct {
		Signature string `json:"signature"`
	}
	params := []any{
		address,
		map[string]any{"limit": limit, "commitment": "confirmed"},
	}
	if err := c.call(ctx, "getSignaturesForAddress", params, &result); err != nil {
		return nil, err
	}

	signatures := make([]string, 0, len(result))
	for _, entry := range result {
		signatures = append(signatures, entry.Signature)
	}
	return signatures, nil
}

// SendPayment builds, signs and submits a System Program transfer from the
// admin wallet.
func (c *RPCClient) SendPayment(ctx context.Context, to string, lamports uint64) (string, error) {
	if c.admin == nil {
		return "", fmt.Errorf("no admin keypair configured")
	}

	blockhash, err := c.latestBlockhash(ctx)
	if err != nil {
		return "", err
	}

	tx, err := buildTransferTx(c.admin, to, lamports, blockhash)
	if err != nil {
		return "", fmt.Errorf("failed to build transfer: %w", err)
	}

	var signature string
	params := []any{
		tx,
		map[string]any{"encoding": "base64", "preflightCommitment": "confirmed"},
	}
	if err := c.call(ctx, "sendTransaction", params, &signature); err != nil {
		return "", err
	}

	log.Info().Str("to", to).Uint64("lamports", lamports).Str("signature", signature).
		Msg("Payment submitted")
	return signature, nil
}

func (c *RPCClient) latestBlockhash(ctx context.Context) (string, error) {
	var result struct {
		Value struct {
			Blockhash string `json:"blockhash"`
		} `json:"value"`
	}
	params := []any{map[string]any{"commitment": "confirmed"}}
	if err := c.call(ctx, "getLatestBlockhash", params, &result); err != nil {
		return "", err
	}
	return result.Value.Blockhash, nil
}
