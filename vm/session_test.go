package vm

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cauchynet/cauchy/storage/database"
)

func TestSessionRecvReturnsQueuedMessage(t *testing.T) {
	outbox := make(chan outboxEntry, 4)
	mailbox, send := NewMailbox(outbox)
	var wg sync.WaitGroup
	s := NewSession(mailbox, []byte("actor"), nil, database.NewMemoryStore(), NewPerformance(), &wg)

	want := Message{Sender: []byte("peer"), Receiver: []byte("actor"), Payload: []byte("hi")}
	send <- want

	got, ok := s.Recv()
	assert.True(t, ok)
	assert.Equal(t, want, got)
}

func TestSessionRecvEmptyWithNoChildReturnsFalse(t *testing.T) {
	outbox := make(chan outboxEntry, 4)
	mailbox, _ := NewMailbox(outbox)
	var wg sync.WaitGroup
	s := NewSession(mailbox, []byte("actor"), nil, database.NewMemoryStore(), NewPerformance(), &wg)

	_, ok := s.Recv()
	assert.False(t, ok)
}

func TestSessionSendBlocksUntilPriorChildCompletes(t *testing.T) {
	outbox := make(chan outboxEntry, 4)
	mailbox, _ := NewMailbox(outbox)
	var wg sync.WaitGroup
	s := NewSession(mailbox, []byte("actor"), nil, database.NewMemoryStore(), NewPerformance(), &wg)

	s.Send([]byte("child-1"), []byte("payload-1"))
	first := <-outbox

	unblocked := make(chan struct{})
	go func() {
		s.Send([]byte("child-2"), []byte("payload-2"))
		close(unblocked)
	}()

	select {
	case <-unblocked:
		t.Fatal("second Send returned before the first child's completion signal fired")
	default:
	}

	close(first.done)
	<-unblocked

	second := <-outbox
	assert.Equal(t, []byte("payload-2"), second.msg.Payload)
}

func TestSessionStoreAndLookupRoundTrip(t *testing.T) {
	outbox := make(chan outboxEntry, 4)
	mailbox, _ := NewMailbox(outbox)
	var wg sync.WaitGroup
	perf := NewPerformance()
	s := NewSession(mailbox, []byte("actor"), nil, database.NewMemoryStore(), perf, &wg)

	require := assert.New(t)
	require.NoError(s.Store([]byte("key"), []byte("value")))

	value, ok, err := s.Lookup([]byte("key"))
	require.NoError(err)
	require.True(ok)
	require.Equal([]byte("value"), value)

	acts := perf.Acts()
	act := acts["actor"]
	_, read := act.AccessPattern.Reads["key"]
	require.True(read)
	require.Equal([]byte("value"), act.AccessPattern.Delta["key"])
}
