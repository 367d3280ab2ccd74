package vm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cauchynet/cauchy/core"
	"github.com/cauchynet/cauchy/storage/database"
)

type fakeLoader struct {
	byID map[string]*core.Transaction
}

func newFakeLoader() *fakeLoader { return &fakeLoader{byID: make(map[string]*core.Transaction)} }

func (f *fakeLoader) register(tx *core.Transaction) { f.byID[string(tx.ID())] = tx }

func (f *fakeLoader) LookupTx(id []byte) (*core.Transaction, bool, error) {
	tx, ok := f.byID[string(id)]
	return tx, ok, nil
}

// sendProgram builds a program that sends payload to receiver and exits.
func sendProgram(receiver, payload []byte) []Instruction {
	const (
		txidAddr = 0
		dataAddr = 64
	)
	return []Instruction{
		WriteInstr(txidAddr, receiver),
		WriteInstr(dataAddr, payload),
		LoadInstr(A3, txidAddr),
		LoadInstr(A4, uint64(len(receiver))),
		LoadInstr(A5, dataAddr),
		LoadInstr(A6, uint64(len(payload))),
		LoadInstr(A7, SyscallSend),
		EcallInstr(),
		LoadInstr(A0, 0),
		LoadInstr(A7, SyscallExit),
		EcallInstr(),
	}
}

// recvThenReplyProgram receives one message and replies to whoever sent
// it -- the sender's ID, written into memory by recv itself, is reused
// directly as the reply's destination, so this program never needs to
// know the caller's ID up front.
func recvThenReplyProgram(payload []byte) []Instruction {
	const (
		recvTxidAddr = 0
		recvDataAddr = 64
		payloadAddr  = 128
	)
	return []Instruction{
		LoadInstr(A3, recvTxidAddr),
		LoadInstr(A4, 32),
		LoadInstr(A5, recvDataAddr),
		LoadInstr(A6, 32),
		LoadInstr(A7, SyscallRecv),
		EcallInstr(),

		WriteInstr(payloadAddr, payload),
		LoadInstr(A3, recvTxidAddr),
		LoadInstr(A4, 32),
		LoadInstr(A5, payloadAddr),
		LoadInstr(A6, uint64(len(payload))),
		LoadInstr(A7, SyscallSend),
		EcallInstr(),

		LoadInstr(A0, 0),
		LoadInstr(A7, SyscallExit),
		EcallInstr(),
	}
}

func TestRunTransactionRoutesMessageToNewlySpawnedActor(t *testing.T) {
	loader := newFakeLoader()
	store := database.NewMemoryStore()
	runtime := NewRuntime(store, loader)

	replyTx := core.NewTransaction(2, nil, EncodeProgram(recvThenReplyProgram([]byte("pong"))))
	loader.register(replyTx)

	rootTx := core.NewTransaction(1, nil, EncodeProgram(sendProgram(replyTx.ID(), []byte("ping"))))

	perf := runRuntimeWithTimeout(t, runtime, rootTx)

	acts := perf.Acts()
	rootAct, ok := acts[string(rootTx.ID())]
	require.True(t, ok)
	require.Len(t, rootAct.Messages, 1)
	assert.Equal(t, []byte("ping"), rootAct.Messages[0].Payload)
	assert.Equal(t, replyTx.ID(), rootAct.Messages[0].Receiver)

	replyAct, ok := acts[string(replyTx.ID())]
	require.True(t, ok)
	require.Len(t, replyAct.Messages, 1)
	assert.Equal(t, []byte("pong"), replyAct.Messages[0].Payload)
	assert.Equal(t, rootTx.ID(), replyAct.Messages[0].Receiver)
}

func TestRunTransactionDropsMessageToUnknownActor(t *testing.T) {
	loader := newFakeLoader()
	store := database.NewMemoryStore()
	runtime := NewRuntime(store, loader)

	unknown := make([]byte, 32)
	unknown[0] = 0xAA
	rootTx := core.NewTransaction(1, nil, EncodeProgram(sendProgram(unknown, []byte("ping"))))

	perf := runRuntimeWithTimeout(t, runtime, rootTx)

	acts := perf.Acts()
	rootAct := acts[string(rootTx.ID())]
	assert.Len(t, rootAct.Messages, 1)
	_, spawned := acts[string(unknown)]
	assert.False(t, spawned)
}

type runResult struct {
	perf *Performance
	err  error
}

// runRuntimeWithTimeout runs tx to completion on a background goroutine and
// fails the test if it doesn't resolve within a bounded time -- a stuck
// actor tree (e.g. a deadlocked depth-first wait) would otherwise hang the
// test suite instead of failing it.
func runRuntimeWithTimeout(t *testing.T, runtime *Runtime, tx *core.Transaction) *Performance {
	t.Helper()
	results := make(chan runResult, 1)
	go func() {
		perf, err := runtime.RunTransaction(tx)
		results <- runResult{perf: perf, err: err}
	}()

	select {
	case r := <-results:
		require.NoError(t, r.err)
		return r.perf
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the actor tree to resolve")
		return nil
	}
}
