package chain

import (
	"crypto/ed25519"
	"fmt"
	"time"

	"github.com/mr-tron/base58"
)

const signMessagePrefix = "Solana Signed Message: "

// SignMessage builds the human-readable challenge a wallet signs to prove
// ownership. Verification reconstructs this exact text, so the format is part
// of the protocol.
func SignMessage(walletAddress, nonce string, issuedAt time.Time) string {
	return fmt.Sprintf("%s\nSigning in to Pumpshie Game\n\nWallet: %s\nNonce: %s\nTimestamp: %d",
		signMessagePrefix, walletAddress, nonce, issuedAt.UnixMilli())
}

// VerifySignature checks a base58 ed25519 signature over message against the
// wallet address (which is the base58 public key on Solana).
func VerifySignature(message, signatureB58, walletAddress string) (bool, error) {
	signature, err := base58.Decode(signatureB58)
	if err != nil {
		return false, fmt.Errorf("invalid signature encoding: %w", err)
	}
	if len(signature) != ed25519.SignatureSize {
		return false, fmt.Errorf("invalid signature length %d", len(signature))
	}

	publicKey, err := base58.Decode(walletAddress)
	if err != nil {
		return false, fmt.Errorf("invalid wallet address encoding: %w", err)
	}
	if len(publicKey) != ed25519.PublicKeySize {
		return false, fmt.Errorf("invalid public key length %d", len(publicKey))
	}

	return ed25519.Verify(ed25519.PublicKey(publicKey), []byte(message), signature), nil
}
