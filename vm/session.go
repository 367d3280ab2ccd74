package vm

import (
	"sync"

	"github.com/cauchynet/cauchy/storage/database"
)

// Session is the syscall handler one running actor sees: it owns the
// actor's identity, its mailbox, and its slice of the shared Performance
// and STATE store.
type Session struct {
	mailbox *Mailbox
	id      []byte // the running transaction's ID -- this actor's identity
	aux     []byte
	store   database.Store
	perf    *Performance

	// pending tracks every message in flight anywhere in the actor tree,
	// so the runtime knows when every descendant has resolved. Send adds
	// to it before handing a message to the router; the router marks it
	// resolved once delivery (or the spawned child's whole run) completes.
	pending *sync.WaitGroup

	// childDone tracks the one-shot completion channel of the most
	// recent Send, if it has not yet been waited on. Send/Recv is how
	// the depth-first ordering invariant is enforced: a session may
	// have at most one outstanding child at a time.
	childDone chan struct{}
}

// NewSession constructs a Session for actor id, backed by mailbox, store
// and a shared perf accumulator. pending is the run-wide WaitGroup used to
// detect when every actor in the tree has finished.
func NewSession(mailbox *Mailbox, id, aux []byte, store database.Store, perf *Performance, pending *sync.WaitGroup) *Session {
	return &Session{mailbox: mailbox, id: id, aux: aux, store: store, perf: perf, pending: pending}
}

// Recv dequeues the next inbound message. If the inbox is empty and a
// child send is still outstanding, Recv waits for that child to finish
// running (which may deliver a message in the meantime) and retries; it
// returns ok=false only once the inbox is empty and there is no
// descendant left that could still deliver something.
func (s *Session) Recv() (Message, bool) {
	for {
		select {
		case msg := <-s.mailbox.inbox:
			return msg, true
		default:
		}
		if s.childDone == nil {
			return Message{}, false
		}
		<-s.childDone
		s.childDone = nil
	}
}

// Send enqueues a message addressed to receiver onto the shared router
// outbox and blocks on the completion of whatever child is still
// outstanding from a prior Send before doing so -- this is the one-shot
// handshake that serializes the branch and gives the Performance a
// deterministic depth-first order across actors.
func (s *Session) Send(receiver, payload []byte) {
	if s.childDone != nil {
		<-s.childDone
		s.childDone = nil
	}
	done := make(chan struct{})
	s.pending.Add(1)
	s.mailbox.outbox <- outboxEntry{
		msg:  Message{Sender: s.id, Receiver: receiver, Payload: payload},
		done: done,
	}
	s.perf.AddMessage(s.id, Message{Sender: s.id, Receiver: receiver, Payload: payload})
	s.childDone = done
}

// Store persists a key/value pair scoped to this actor and records the
// write in the shared Performance.
func (s *Session) Store(key, value []byte) error {
	scoped := scopedKey(s.id, key)
	if err := s.store.Put(database.TableState, scoped, value); err != nil {
		return err
	}
	s.perf.AddWrite(s.id, key, value)
	return nil
}

// Lookup reads back a value stored under key by this actor, recording the
// read in the shared Performance regardless of whether the key exists.
func (s *Session) Lookup(key []byte) ([]byte, bool, error) {
	scoped := scopedKey(s.id, key)
	value, ok, err := s.store.Get(database.TableState, scoped)
	if err != nil {
		return nil, false, err
	}
	s.perf.AddRead(s.id, key)
	return value, ok, nil
}

// scopedKey namespaces a program-visible key by the owning actor, as
// spec'd for the STATE table.
func scopedKey(actorID, key []byte) []byte {
	out := make([]byte, 0, len(actorID)+len(key))
	out = append(out, actorID...)
	out = append(out, key...)
	return out
}
