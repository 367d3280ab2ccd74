package signatures

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)

	digest := MessageFromPreimage([]byte("handshake secret"))
	sig := Sign(kp.Priv, digest)
	require.Len(t, sig, SigLen)

	ok, err := Verify(digest, sig, kp.Pub)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)
	other, err := GenerateKeyPair()
	require.NoError(t, err)

	digest := MessageFromPreimage([]byte("handshake secret"))
	sig := Sign(kp.Priv, digest)

	ok, err := Verify(digest, sig, other.Pub)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPubkeyBytesRoundTrip(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)

	raw := BytesFromPubkey(kp.Pub)
	require.Len(t, raw, PubkeyLen)

	got, err := PubkeyFromBytes(raw)
	require.NoError(t, err)
	assert.Equal(t, kp.Pub, got)
}

func TestPubkeyFromBytesRejectsBadLength(t *testing.T) {
	_, err := PubkeyFromBytes([]byte{1, 2, 3})
	assert.Equal(t, ErrInvalidPubkey, err)
}

func TestSigFromBytesRejectsBadLength(t *testing.T) {
	_, err := SigFromBytes([]byte{1, 2, 3})
	assert.Equal(t, ErrInvalidSignature, err)
}
