package core

import (
	"bytes"

	"github.com/cauchynet/cauchy/crypto/sketches"
)

// Expectation records what a StatePull is waiting to see confirmed: the
// IDs requested via GetTransactions, and the minisketch the local state
// should match once they're applied.
type Expectation struct {
	OddSketch  sketches.OddSketch
	Root       []byte
	IDs        map[string][]byte // string(id) -> id, nil until GetTransactions is sent
	MiniSketch *sketches.DifferenceSketch
}

// UpdateIDs records the set of IDs a Transactions reply must exactly
// match.
func (e *Expectation) UpdateIDs(ids [][]byte) {
	m := make(map[string][]byte, len(ids))
	for _, id := range ids {
		m[string(id)] = id
	}
	e.IDs = m
}

// ClearIDs drops the recorded ID expectation.
func (e *Expectation) ClearIDs() { e.IDs = nil }

// ClearMiniSketch drops the recorded minisketch expectation.
func (e *Expectation) ClearMiniSketch() { e.MiniSketch = nil }

// IsExpectedPayload reports whether txs is exactly the set of IDs this
// expectation recorded.
func (e *Expectation) IsExpectedPayload(txs []*Transaction) bool {
	if e.IDs == nil {
		return false
	}
	if len(txs) != len(e.IDs) {
		return false
	}
	for _, tx := range txs {
		if _, ok := e.IDs[string(tx.ID())]; !ok {
			return false
		}
	}
	return true
}

// StatusKind enumerates the PeerEgo state machine's states.
type StatusKind int

const (
	StatusIdle StatusKind = iota
	StatusWorkPull
	StatusFighting
	StatusStatePush
	StatusStatePull
)

func (k StatusKind) String() string {
	switch k {
	case StatusIdle:
		return "idle"
	case StatusWorkPull:
		return "work pulling"
	case StatusFighting:
		return "fighting"
	case StatusStatePush:
		return "state pushing"
	case StatusStatePull:
		return "state pulling"
	default:
		return "unknown"
	}
}

// Status is the PeerEgo state machine's current state. Only the field
// matching Kind is meaningful: WorkStack for StatusFighting, Expectation
// for StatusStatePull.
type Status struct {
	Kind        StatusKind
	WorkStack   *WorkStack
	Expectation *Expectation
}

// IdleStatus returns the zero state.
func IdleStatus() Status { return Status{Kind: StatusIdle} }

// WorkPullStatus marks that a Work reply has been requested.
func WorkPullStatus() Status { return Status{Kind: StatusWorkPull} }

// FightingStatus marks that a peer has entered the reconciliation
// quorum with the given published WorkStack.
func FightingStatus(stack *WorkStack) Status {
	return Status{Kind: StatusFighting, WorkStack: stack}
}

// StatePushStatus marks that we owe the peer a Transactions reply.
func StatePushStatus() Status { return Status{Kind: StatusStatePush} }

// StatePullStatus marks that we are waiting on a Transactions reply
// matching exp.
func StatePullStatus(exp *Expectation) Status {
	return Status{Kind: StatusStatePull, Expectation: exp}
}

// RootMatches compares a peer's published root against an expected one.
func RootMatches(a, b []byte) bool { return bytes.Equal(a, b) }
