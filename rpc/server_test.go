package rpc

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cauchynet/cauchy/config"
	"github.com/cauchynet/cauchy/core"
	"github.com/cauchynet/cauchy/storage/database"
	"github.com/cauchynet/cauchy/wire"
)

type fakeDialer struct {
	dialed []string
}

func (f *fakeDialer) Dial(address string) error {
	f.dialed = append(f.dialed, address)
	return nil
}

type fakeStage struct {
	ingested []*core.Transaction
}

func (f *fakeStage) IngestRPC(txs []*core.Transaction) error {
	f.ingested = append(f.ingested, txs...)
	return nil
}

func newTestServer() (*Server, *fakeDialer, *fakeStage, database.Store) {
	cfg := config.Default()
	dialer := &fakeDialer{}
	stage := &fakeStage{}
	store := database.NewMemoryStore()
	return New(cfg, dialer, stage, store), dialer, stage, store
}

func TestDispatchAddPeerDials(t *testing.T) {
	s, dialer, _, _ := newTestServer()

	peer := wire.PeerAddr{IP: [4]byte{10, 0, 0, 1}, Port: 8332}
	s.dispatch(nil, &Message{Tag: TagAddPeer, Peer: peer})

	require.Len(t, dialer.dialed, 1)
	assert.Equal(t, "10.0.0.1:8332", dialer.dialed[0])
}

func TestDispatchNewTransactionIngests(t *testing.T) {
	s, _, stage, _ := newTestServer()
	tx := core.NewTransaction(1, nil, []byte("bin"))

	s.dispatch(nil, &Message{Tag: TagNewTransaction, Tx: tx})

	require.Len(t, stage.ingested, 1)
	assert.True(t, stage.ingested[0].Equal(tx))
}

func TestDispatchFetchValueRepliesWithStoredBytes(t *testing.T) {
	s, _, _, store := newTestServer()
	actorID := make([]byte, 32)
	actorID[0] = 9
	key := make([]byte, 32)
	key[0] = 7
	require.NoError(t, store.Put(database.TableState, scopedStateKey(actorID, key), []byte("value")))

	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	done := make(chan struct{})
	go func() {
		s.dispatch(server, &Message{Tag: TagFetchValue, ActorID: actorID, Key: key})
		close(done)
	}()

	buf := make([]byte, 5)
	n, err := client.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "value", string(buf[:n]))
	<-done
}
