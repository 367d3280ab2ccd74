package arena

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cauchynet/cauchy/crypto/signatures"
	"github.com/cauchynet/cauchy/ego"
)

func newTestArena(t *testing.T) *Arena {
	t.Helper()
	keys, err := signatures.GenerateKeyPair()
	require.NoError(t, err)
	return New(ego.New(keys))
}

func TestPeerRegistryRoundTrip(t *testing.T) {
	a := newTestArena(t)
	peerEgo := ego.NewPeerEgo()

	_, ok := a.Peer("10.0.0.1:8332")
	assert.False(t, ok)

	a.NewPeer("10.0.0.1:8332", peerEgo)
	got, ok := a.Peer("10.0.0.1:8332")
	require.True(t, ok)
	assert.Same(t, peerEgo, got)

	a.RemovePeer("10.0.0.1:8332")
	_, ok = a.Peer("10.0.0.1:8332")
	assert.False(t, ok)
}

func TestDialBackoffTracksFailureAndClear(t *testing.T) {
	a := newTestArena(t)
	addr := "10.0.0.2:8332"

	assert.False(t, a.RecentDialFailure(addr))

	a.RecordDialFailure(addr)
	assert.True(t, a.RecentDialFailure(addr))

	a.ClearDialFailure(addr)
	assert.False(t, a.RecentDialFailure(addr))
}
