package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cauchynet/cauchy/core"
	"github.com/cauchynet/cauchy/crypto/signatures"
	"github.com/cauchynet/cauchy/crypto/sketches"
)

func TestReconcileRoundTrip(t *testing.T) {
	enc := Encode(&Message{Tag: TagReconcile})
	assert.Equal(t, []byte{byte(TagReconcile)}, enc)

	msg, n, err := Decode(enc)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, TagReconcile, msg.Tag)
}

func TestWorkRoundTrip(t *testing.T) {
	var sketch sketches.OddSketch
	sketch.Insert(make([]byte, 32))
	root := make([]byte, 32)
	root[0] = 0xab

	enc := Encode(&Message{Tag: TagWork, OddSketch: sketch, Root: root, Nonce: 1234})
	msg, n, err := Decode(enc)
	require.NoError(t, err)
	assert.Equal(t, len(enc), n)
	assert.Equal(t, TagWork, msg.Tag)
	assert.Equal(t, sketch, msg.OddSketch)
	assert.Equal(t, root, msg.Root)
	assert.Equal(t, uint64(1234), msg.Nonce)
}

func TestWorkPartialFrame(t *testing.T) {
	var sketch sketches.OddSketch
	root := make([]byte, 32)
	enc := Encode(&Message{Tag: TagWork, OddSketch: sketch, Root: root, Nonce: 1})
	for i := 1; i < len(enc)-1; i++ {
		_, _, err := Decode(enc[:i])
		assert.Equal(t, ErrIncompleteFrame, err, "at length %d", i)
	}
}

func TestGetTransactionsRoundTrip(t *testing.T) {
	ids := [][]byte{make([]byte, 32), make([]byte, 32)}
	ids[1][0] = 1

	enc := Encode(&Message{Tag: TagGetTransactions, IDs: ids})
	msg, n, err := Decode(enc)
	require.NoError(t, err)
	assert.Equal(t, len(enc), n)
	assert.Equal(t, ids, msg.IDs)
}

func TestTransactionsRoundTrip(t *testing.T) {
	tx1 := core.NewTransaction(1, []byte("aux"), []byte("binary-one"))
	tx2 := core.NewTransaction(2, nil, []byte("binary-two"))

	enc := Encode(&Message{Tag: TagTransactions, Txs: []*core.Transaction{tx1, tx2}})
	msg, n, err := Decode(enc)
	require.NoError(t, err)
	assert.Equal(t, len(enc), n)
	require.Len(t, msg.Txs, 2)
	assert.Equal(t, tx1.ID(), msg.Txs[0].ID())
	assert.Equal(t, tx2.ID(), msg.Txs[1].ID())
}

func TestEndHandshakeRoundTrip(t *testing.T) {
	kp, err := signatures.GenerateKeyPair()
	require.NoError(t, err)
	digest := signatures.MessageFromPreimage([]byte("secret"))
	sig := signatures.Sign(kp.Priv, digest)

	enc := Encode(&Message{Tag: TagEndHandshake, Pubkey: kp.Pub, Sig: sig})
	msg, n, err := Decode(enc)
	require.NoError(t, err)
	assert.Equal(t, len(enc), n)
	assert.Equal(t, kp.Pub.SerializeCompressed(), msg.Pubkey.SerializeCompressed())

	ok, err := signatures.Verify(digest, msg.Sig, msg.Pubkey)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestUnknownTagIsMalformed(t *testing.T) {
	_, _, err := Decode([]byte{2})
	assert.Equal(t, ErrMalformedFrame, err)
}
