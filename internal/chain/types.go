// Package chain provides the narrow Solana client contract the backend
// consumes: signature verification, balance reads, payment sending and
// parsed-transaction lookups, plus the websocket subscription feed.
package chain

import (
	"encoding/json"
	"time"
)

// Well-known program IDs.
const (
	SystemProgramID = "11111111111111111111111111111111"
	TokenProgramID  = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
)

// LamportsPerSOL is the number of lamports in one SOL.
const LamportsPerSOL = 1_000_000_000

// ParsedTransaction mirrors the jsonParsed transaction encoding returned by
// getTransaction. Only the fields the reconciler inspects are modeled.
type ParsedTransaction struct {
	BlockTime   *int64           `json:"blockTime"`
	Meta        *TransactionMeta `json:"meta"`
	Transaction struct {
		Message struct {
			AccountKeys  []AccountKey        `json:"accountKeys"`
			Instructions []ParsedInstruction `json:"instructions"`
		} `json:"message"`
		Signatures []string `json:"signatures"`
	} `json:"transaction"`
}

// Time returns the cluster-stamped confirmation time, when the node supplied
// one. Unlike the local clock it is the same on every delivery of the
// transaction.
func (t *ParsedTransaction) Time() (time.Time, bool) {
	if t.BlockTime == nil {
		return time.Time{}, false
	}
	return time.Unix(*t.BlockTime, 0), true
}

// TransactionMeta carries execution results and balance deltas.
type TransactionMeta struct {
	Err          json.RawMessage `json:"err"`
	PreBalances  []uint64        `json:"preBalances"`
	PostBalances []uint64        `json:"postBalances"`
}

// Failed reports whether the transaction errored on chain.
func (m *TransactionMeta) Failed() bool {
	return m != nil && len(m.Err) > 0 && string(m.Err) != "null"
}

// AccountKey is one entry of the transaction's account list.
type AccountKey struct {
	Pubkey   string `json:"pubkey"`
	Signer   bool   `json:"signer"`
	Writable bool   `json:"writable"`
}

// ParsedInstruction is one instruction of a jsonParsed transaction. Parsed is
// left raw because unknown programs encode it as a plain string.
type ParsedInstruction struct {
	ProgramID string          `json:"programId"`
	Parsed    json.RawMessage `json:"parsed"`
}

// parsedPayload is the object form of ParsedInstruction.Parsed.
type parsedPayload struct {
	Type string          `json:"type"`
	Info json.RawMessage `json:"info"`
}

// TokenTransfer is an SPL token transferChecked instruction.
type TokenTransfer struct {
	Signers     []string `json:"signers"`
	Authority   string   `json:"authority"`
	Source      string   `json:"source"`
	Destination string   `json:"destination"`
	TokenAmount struct {
		Amount   string `json:"amount"`
		Decimals int    `json:"decimals"`
	} `json:"tokenAmount"`
}

// Sender returns the authority that signed the transfer.
func (t *TokenTransfer) Sender() string {
	if len(t.Signers) > 0 {
		return t.Signers[0]
	}
	return t.Authority
}

// SolTransfer is a System Program transfer instruction.
type SolTransfer struct {
	Source      string `json:"source"`
	Destination string `json:"destination"`
	Lamports    uint64 `json:"lamports"`
}

// AsTokenTransfer decodes the instruction as an SPL transferChecked, if it
// is one.
func (ix *ParsedInstruction) AsTokenTransfer() (*TokenTransfer, bool) {
	if ix.ProgramID != TokenProgramID {
		return nil, false
	}
	var payload parsedPayload
	if err := json.Unmarshal(ix.Parsed, &payload); err != nil {
		return nil, false
	}
	if payload.Type != "transferChecked" {
		return nil, false
	}
	var transfer TokenTransfer
	if err := json.Unmarshal(payload.Info, &transfer); err != nil {
		return nil, false
	}
	return &transfer, true
}

// AsSolTransfer decodes the instruction as a System Program transfer, if it
// is one.
func (ix *ParsedInstruction) AsSolTransfer() (*SolTransfer, bool) {
	if ix.ProgramID != SystemProgramID {
		return nil, false
	}
	var payload parsedPayload
	if err := json.Unmarshal(ix.Parsed, &payload); err != nil {
		return nil, false
	}
	if payload.Type != "transfer" {
		return nil, false
	}
	var transfer SolTransfer
	if err := json.Unmarshal(payload.Info, &transfer); err != nil {
		return nil, false
	}
	return &transfer, true
}
