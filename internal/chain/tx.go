package chain

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/binary"
	"fmt"

	"github.com/mr-tron/base58"
)

// Keypair is an ed25519 signing key with its base58 public address.
type Keypair struct {
	private ed25519.PrivateKey
	Address string
}

// KeypairFromBase58 parses a 64-byte base58 secret key (the common Solana
// export format: seed followed by public key).
func KeypairFromBase58(secret string) (*Keypair, error) {
	raw, err := base58.Decode(secret)
	if err != nil {
		return nil, fmt.Errorf("invalid secret key encoding: %w", err)
	}
	if len(raw) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("invalid secret key length %d", len(raw))
	}
	private := ed25519.PrivateKey(raw)
	public := private.Public().(ed25519.PublicKey)
	return &Keypair{
		private: private,
		Address: base58.Encode(public),
	}, nil
}

// buildTransferTx serializes and signs a legacy System Program transfer
// transaction, returning it base64-encoded for sendTransaction.
//
// Wire layout: compact-u16 signature count, 64-byte signatures, then the
// message (header, account keys, recent blockhash, instructions).
func buildTransferTx(from *Keypair, to string, lamports uint64, recentBlockhash string) (string, error) {
	fromKey, err := base58.Decode(from.Address)
	if err != nil {
		return "", fmt.Errorf("invalid sender address: %w", err)
	}
	toKey, err := base58.Decode(to)
	if err != nil {
		return "", fmt.Errorf("invalid recipient address: %w", err)
	}
	if len(toKey) != ed25519.PublicKeySize {
		return "", fmt.Errorf("invalid recipient key length %d", len(toKey))
	}
	programKey, err := base58.Decode(SystemProgramID)
	if err != nil {
		return "", fmt.Errorf("invalid program id: %w", err)
	}
	blockhash, err := base58.Decode(recentBlockhash)
	if err != nil {
		return "", fmt.Errorf("invalid blockhash: %w", err)
	}
	if len(blockhash) != 32 {
		return "", fmt.Errorf("invalid blockhash length %d", len(blockhash))
	}

	// System Program transfer: u32 instruction tag (2), u64 lamports.
	data := make([]byte, 12)
	binary.LittleEndian.PutUint32(data[0:4], 2)
	binary.LittleEndian.PutUint64(data[4:12], lamports)

	var msg []byte
	// Header: one required signature, no read-only signed accounts, one
	// read-only unsigned account (the program).
	msg = append(msg, 1, 0, 1)
	// Account keys: sender (signer, writable), recipient (writable), program.
	msg = appendCompactU16(msg, 3)
	msg = append(msg, fromKey...)
	msg = append(msg, toKey...)
	msg = append(msg, programKey...)
	msg = append(msg, blockhash...)
	// One instruction: program index 2, accounts [0, 1].
	msg = appendCompactU16(msg, 1)
	msg = append(msg, 2)
	msg = appendCompactU16(msg, 2)
	msg = append(msg, 0, 1)
	msg = appendCompactU16(msg, len(data))
	msg = append(msg, data...)

	signature := ed25519.Sign(from.private, msg)

	var tx []byte
	tx = appendCompactU16(tx, 1)
	tx = append(tx, signature...)
	tx = append(tx, msg...)

	return base64.StdEncoding.EncodeToString(tx), nil
}

// appendCompactU16 appends n in the compact-u16 varint encoding used by the
// Solana wire format.
func appendCompactU16(buf []byte, n int) []byte {
	for {
		if n < 0x80 {
			return append(buf, byte(n))
		}
		buf = append(buf, byte(n&0x7f)|0x80)
		n >>= 7
	}
}
