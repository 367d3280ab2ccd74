package vm

import (
	"fmt"
	"sync"

	"github.com/cauchynet/cauchy/core"
	"github.com/cauchynet/cauchy/log"
	"github.com/cauchynet/cauchy/storage/database"
)

var logger = log.NewModuleLogger(log.ModuleVM)

// TxLoader resolves an actor ID to the transaction whose binary defines
// it -- the same lookup the Stage keeps the persisted TX table behind.
type TxLoader interface {
	LookupTx(id []byte) (*core.Transaction, bool, error)
}

// Runtime is the Performance orchestrator: it runs one transaction as the
// root of an actor tree, spawning a fresh VM session for every
// previously-unseen receiver a message names and routing further
// messages to whichever session -- live or freshly spawned -- currently
// owns that actor ID.
type Runtime struct {
	store  database.Store
	loader TxLoader
}

// NewRuntime constructs a Runtime backed by store (for STATE syscalls) and
// loader (to resolve receiver IDs to transactions).
func NewRuntime(store database.Store, loader TxLoader) *Runtime {
	return &Runtime{store: store, loader: loader}
}

// RunTransaction interprets tx's program as the root of an actor tree and
// blocks until the root session and every descendant it spawned, directly
// or transitively, has resolved, returning the accumulated Performance.
func (r *Runtime) RunTransaction(tx *core.Transaction) (*Performance, error) {
	program, err := DecodeProgram(tx.Binary)
	if err != nil {
		return nil, fmt.Errorf("vm: decoding root program: %w", err)
	}

	perf := NewPerformance()
	outbox := make(chan outboxEntry, 256)

	var mu sync.Mutex
	var pending sync.WaitGroup
	inboxes := make(map[string]chan<- Message)

	rootID := tx.ID()
	rootMailbox, rootSend := NewMailbox(outbox)
	mu.Lock()
	inboxes[string(rootID)] = rootSend
	mu.Unlock()

	pending.Add(1)
	go r.runSession(rootID, tx.Aux, rootMailbox, perf, program, &pending)

	routeDone := make(chan struct{})
	go func() {
		r.route(outbox, inboxes, &mu, perf, &pending)
		close(routeDone)
	}()

	pending.Wait()
	close(outbox)
	<-routeDone

	return perf, nil
}

// runSession runs one actor's program to completion, logging (but not
// propagating) a session-local fault -- a failing child does not abort
// the tree, it simply contributes whatever partial performance it
// accumulated before failing.
func (r *Runtime) runSession(id, aux []byte, mailbox *Mailbox, perf *Performance, program []Instruction, pending *sync.WaitGroup) {
	defer pending.Done()

	session := NewSession(mailbox, id, aux, r.store, perf, pending)
	var interp Interpreter
	if _, err := interp.Run(session, program); err != nil {
		logger.Warn("vm session faulted", "actor", fmt.Sprintf("%x", id), "error", err)
	}
}

// route drains the shared outbox, delivering each message to an
// already-live actor's inbox or, for a previously-unseen receiver,
// spawning a fresh session for it.
func (r *Runtime) route(outbox chan outboxEntry, inboxes map[string]chan<- Message, mu *sync.Mutex, perf *Performance, pending *sync.WaitGroup) {
	for entry := range outbox {
		receiverKey := string(entry.msg.Receiver)

		mu.Lock()
		ch, live := inboxes[receiverKey]
		mu.Unlock()

		if live {
			ch <- entry.msg
			close(entry.done)
			pending.Done()
			continue
		}
		r.spawnChild(entry, inboxes, mu, perf, outbox, pending)
	}
}

// spawnChild resolves entry's receiver to a transaction, registers its
// inbox, delivers entry's message, and runs it as a new session. entry's
// completion signal (what the sender's Send/Recv is blocked on) resolves
// once this child's entire run -- which itself depth-first-waits on
// whatever it sends to -- has finished.
func (r *Runtime) spawnChild(entry outboxEntry, inboxes map[string]chan<- Message, mu *sync.Mutex, perf *Performance, outbox chan<- outboxEntry, pending *sync.WaitGroup) {
	receiverID := entry.msg.Receiver

	tx, ok, err := r.loader.LookupTx(receiverID)
	if err != nil || !ok {
		logger.Warn("dropping message to unknown actor", "actor", fmt.Sprintf("%x", receiverID), "error", err)
		close(entry.done)
		pending.Done()
		return
	}
	program, err := DecodeProgram(tx.Binary)
	if err != nil {
		logger.Warn("actor has undecodable program", "actor", fmt.Sprintf("%x", receiverID), "error", err)
		close(entry.done)
		pending.Done()
		return
	}

	mailbox, send := NewMailbox(outbox)
	mu.Lock()
	inboxes[string(receiverID)] = send
	mu.Unlock()
	send <- entry.msg

	pending.Add(1)
	childFinished := make(chan struct{})
	go func() {
		r.runSession(receiverID, tx.Aux, mailbox, perf, program, pending)
		mu.Lock()
		delete(inboxes, string(receiverID))
		mu.Unlock()
		close(childFinished)
	}()
	go func() {
		<-childFinished
		close(entry.done)
		pending.Done()
	}()
}
