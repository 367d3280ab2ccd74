package mining

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cauchynet/cauchy/crypto/sketches"
	"github.com/cauchynet/cauchy/crypto/signatures"
	"github.com/cauchynet/cauchy/ego"
)

func TestPoolEmitsImprovingProposals(t *testing.T) {
	keys, err := signatures.GenerateKeyPair()
	require.NoError(t, err)

	proposals := make(chan ego.MiningProposal, 256)
	pool := Start(2, keys.Pub, proposals)
	defer pool.Stop()

	pool.Broadcast(ego.MiningReset{OddSketch: sketches.OddSketch{}, Root: make([]byte, 32)})

	var first ego.MiningProposal
	select {
	case first = <-proposals:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a mining proposal")
	}
	assert.GreaterOrEqual(t, first.Distance, 0)
	assert.Less(t, first.Distance, sentinelDistance)
}

func TestPoolResetRescoresCurrentNonce(t *testing.T) {
	keys, err := signatures.GenerateKeyPair()
	require.NoError(t, err)

	proposals := make(chan ego.MiningProposal, 256)
	pool := Start(1, keys.Pub, proposals)
	defer pool.Stop()

	pool.Broadcast(ego.MiningReset{OddSketch: sketches.OddSketch{}, Root: make([]byte, 32)})

	select {
	case <-proposals:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the initial proposal")
	}

	newRoot := make([]byte, 32)
	newRoot[0] = 1
	pool.Broadcast(ego.MiningReset{OddSketch: sketches.OddSketch{}, Root: newRoot})

	select {
	case p := <-proposals:
		assert.GreaterOrEqual(t, p.Distance, 0)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the reset re-score proposal")
	}
}
