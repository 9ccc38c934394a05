package chain

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"testing"
	"time"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKeypair(t *testing.T) (string, ed25519.PrivateKey) {
	t.Helper()
	public, private, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return base58.Encode(public), private
}

func TestSignMessage_Format(t *testing.T) {
	issuedAt := time.UnixMilli(1756400000000)
	got := SignMessage("WaLLet111", "abc123", issuedAt)

	want := fmt.Sprintf("Solana Signed Message: \nSigning in to Pumpshie Game\n\nWallet: %s\nNonce: %s\nTimestamp: %d",
		"WaLLet111", "abc123", issuedAt.UnixMilli())
	assert.Equal(t, want, got)
}

func TestVerifySignature_RoundTrip(t *testing.T) {
	wallet, private := testKeypair(t)
	message := SignMessage(wallet, "abcdef0123456789", time.Now())

	signature := base58.Encode(ed25519.Sign(private, []byte(message)))

	ok, err := VerifySignature(message, signature, wallet)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVerifySignature_TamperedMessage(t *testing.T) {
	wallet, private := testKeypair(t)
	message := SignMessage(wallet, "abcdef0123456789", time.Now())
	signature := base58.Encode(ed25519.Sign(private, []byte(message)))

	ok, err := VerifySignature(message+"x", signature, wallet)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifySignature_WrongKey(t *testing.T) {
	wallet, private := testKeypair(t)
	otherWallet, _ := testKeypair(t)
	message := SignMessage(wallet, "abcdef0123456789", time.Now())
	signature := base58.Encode(ed25519.Sign(private, []byte(message)))

	ok, err := VerifySignature(message, signature, otherWallet)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifySignature_MalformedInputs(t *testing.T) {
	wallet, private := testKeypair(t)
	message := "hello"
	signature := base58.Encode(ed25519.Sign(private, []byte(message)))

	_, err := VerifySignature(message, "not!base58", wallet)
	assert.Error(t, err)

	// Valid base58 but not 64 bytes.
	_, err = VerifySignature(message, base58.Encode([]byte("short")), wallet)
	assert.Error(t, err)

	_, err = VerifySignature(message, signature, base58.Encode([]byte("short")))
	assert.Error(t, err)
}
