package chain

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendCompactU16(t *testing.T) {
	tests := []struct {
		n    int
		want []byte
	}{
		{0, []byte{0x00}},
		{1, []byte{0x01}},
		{0x7f, []byte{0x7f}},
		{0x80, []byte{0x80, 0x01}},
		{0x3fff, []byte{0xff, 0x7f}},
		{0x4000, []byte{0x80, 0x80, 0x01}},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, appendCompactU16(nil, tt.n), "n=%d", tt.n)
	}
}

func TestKeypairFromBase58(t *testing.T) {
	public, private, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	kp, err := KeypairFromBase58(base58.Encode(private))
	require.NoError(t, err)
	assert.Equal(t, base58.Encode(public), kp.Address)

	_, err = KeypairFromBase58("not!base58")
	assert.Error(t, err)

	_, err = KeypairFromBase58(base58.Encode([]byte("too short")))
	assert.Error(t, err)
}

func TestBuildTransferTx(t *testing.T) {
	_, private, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	from, err := KeypairFromBase58(base58.Encode(private))
	require.NoError(t, err)

	toPublic, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	to := base58.Encode(toPublic)

	blockhash := make([]byte, 32)
	_, err = rand.Read(blockhash)
	require.NoError(t, err)

	const lamports = 5_000_000
	encoded, err := buildTransferTx(from, to, lamports, base58.Encode(blockhash))
	require.NoError(t, err)

	tx, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)

	// One signature, then the message the signature covers.
	require.Equal(t, byte(1), tx[0])
	signature := tx[1 : 1+ed25519.SignatureSize]
	msg := tx[1+ed25519.SignatureSize:]

	fromKey, err := base58.Decode(from.Address)
	require.NoError(t, err)
	assert.True(t, ed25519.Verify(ed25519.PublicKey(fromKey), msg, signature))

	// Header, then three account keys: sender, recipient, system program.
	assert.Equal(t, []byte{1, 0, 1}, msg[:3])
	require.Equal(t, byte(3), msg[3])
	assert.Equal(t, fromKey, msg[4:36])
	assert.Equal(t, []byte(toPublic), msg[36:68])
	programKey, err := base58.Decode(SystemProgramID)
	require.NoError(t, err)
	assert.Equal(t, programKey, msg[68:100])
	assert.Equal(t, blockhash, msg[100:132])

	// One instruction: program index 2, accounts [0 1], 12 bytes of data
	// carrying the transfer tag and the lamport amount.
	ix := msg[132:]
	require.Equal(t, []byte{1, 2, 2, 0, 1, 12}, ix[:6])
	data := ix[6:18]
	assert.Equal(t, uint32(2), binary.LittleEndian.Uint32(data[0:4]))
	assert.Equal(t, uint64(lamports), binary.LittleEndian.Uint64(data[4:12]))
}

func TestBuildTransferTx_BadInputs(t *testing.T) {
	_, private, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	from, err := KeypairFromBase58(base58.Encode(private))
	require.NoError(t, err)

	blockhash := base58.Encode(make([]byte, 32))

	_, err = buildTransferTx(from, base58.Encode([]byte("short")), 1, blockhash)
	assert.Error(t, err)

	_, err = buildTransferTx(from, from.Address, 1, base58.Encode([]byte("short")))
	assert.Error(t, err)
}
