// Package arena maintains the registry of connected peers and implements
// the two operations that drive leader selection: work_pulse (soliciting
// Work from a quorum) and reconcile_leader (picking, by summed Hamming
// distance, who the rest of the quorum should reconcile against).
package arena

import (
	"sync"

	lru "github.com/hashicorp/golang-lru"
	"gopkg.in/karalabe/cookiejar.v2/collections/prque"

	"github.com/cauchynet/cauchy/core"
	"github.com/cauchynet/cauchy/ego"
	"github.com/cauchynet/cauchy/log"
	"github.com/cauchynet/cauchy/wire"
)

// dialBackoffSize bounds how many recently-failed addresses are
// remembered; older failures are simply forgotten rather than retried
// forever, since a node that keeps going down shouldn't grow this set
// unboundedly.
const dialBackoffSize = 128

var logger = log.NewModuleLogger(log.ModuleArena)

type entry struct {
	peerEgo *ego.PeerEgo
	seq     uint64
}

// Arena is protected by a single mutex; every critical section is a short
// map insert/remove or a snapshot copy into a local slice.
type Arena struct {
	mu      sync.Mutex
	ego     *ego.Ego
	peers   map[string]*entry
	nextSeq uint64

	dialFailures *lru.ARCCache
}

// New returns an empty Arena bound to the local Ego.
func New(localEgo *ego.Ego) *Arena {
	failures, _ := lru.NewARC(dialBackoffSize)
	return &Arena{ego: localEgo, peers: make(map[string]*entry), dialFailures: failures}
}

// RecentDialFailure reports whether a dial to addr was recorded as failed
// and hasn't yet been evicted from the backoff set.
func (a *Arena) RecentDialFailure(addr string) bool {
	return a.dialFailures.Contains(addr)
}

// RecordDialFailure remembers that a dial to addr just failed, so a
// caller retrying unsolicited AddPeer requests can skip it for a while.
func (a *Arena) RecordDialFailure(addr string) {
	a.dialFailures.Add(addr, struct{}{})
}

// ClearDialFailure forgets a prior failure, called once addr is
// successfully connected.
func (a *Arena) ClearDialFailure(addr string) {
	a.dialFailures.Remove(addr)
}

// NewPeer registers peerEgo under addr. Peers are kept in insertion order
// via a monotonic sequence number, since Go map iteration order is
// undefined and the tie-break rule below needs a stable order.
func (a *Arena) NewPeer(addr string, peerEgo *ego.PeerEgo) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.peers[addr] = &entry{peerEgo: peerEgo, seq: a.nextSeq}
	a.nextSeq++
}

// RemovePeer drops addr from the registry.
func (a *Arena) RemovePeer(addr string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.peers, addr)
}

// Peer returns the PeerEgo registered at addr, if any.
func (a *Arena) Peer(addr string) (*ego.PeerEgo, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	e, ok := a.peers[addr]
	if !ok {
		return nil, false
	}
	return e.peerEgo, true
}

// ordered returns the registered entries in insertion order, the stand-in
// for "iteration order of the registry" the tie-break rule in §4.H refers
// to. Insertion order is recovered with a priority queue keyed on the
// negated sequence number, so the earliest-registered peer pops first.
func (a *Arena) ordered() []*entry {
	pq := prque.New()
	for _, e := range a.peers {
		pq.Push(e, -float32(e.seq))
	}
	out := make([]*entry, 0, len(a.peers))
	for !pq.Empty() {
		v, _ := pq.Pop()
		out = append(out, v.(*entry))
	}
	return out
}

// WorkPulse transitions the first size handshaken peers (in registry
// order) to WorkPull and sends each a GetWork request.
func (a *Arena) WorkPulse(size int) {
	a.mu.Lock()
	ordered := a.ordered()
	a.mu.Unlock()

	sent := 0
	for _, e := range ordered {
		if sent >= size {
			break
		}
		if e.peerEgo.Pubkey() == nil {
			continue
		}
		e.peerEgo.SetStatus(core.WorkPullStatus())
		e.peerEgo.SendMsg(&wire.Message{Tag: wire.TagGetWork})
		sent++
	}
}

// fighter is a snapshot of one peer currently in Fighting state.
type fighter struct {
	peerEgo *ego.PeerEgo
	stack   core.WorkStack
}

// ReconcileLeader computes, over the set of peers currently Fighting (plus
// ourselves), the candidate with the minimum summed Hamming distance to
// every fighter's site hash. If a peer wins, it is moved to StatePull and
// sent Reconcile; if we win, nothing happens.
func (a *Arena) ReconcileLeader() {
	a.mu.Lock()
	ordered := a.ordered()
	a.mu.Unlock()

	var fighters []fighter
	for _, e := range ordered {
		status := e.peerEgo.Status()
		if status.Kind != core.StatusFighting || e.peerEgo.Pubkey() == nil {
			continue
		}
		fighters = append(fighters, fighter{peerEgo: e.peerEgo, stack: *status.WorkStack})
	}
	if len(fighters) == 0 {
		return
	}

	selfStack := a.ego.WorkStack()

	distanceTo := func(sketch core.WorkStack) int {
		total := 0
		for _, f := range fighters {
			site := core.NewWorkSite(f.peerEgo.Pubkey(), f.stack.Root, f.stack.Nonce)
			total += site.Mine(sketch.OddSketch)
		}
		return total
	}

	bestDist := distanceTo(selfStack)
	bestIdx := -1

	for i, f := range fighters {
		dist := distanceTo(f.stack)
		if dist < bestDist {
			bestDist = dist
			bestIdx = i
		}
	}

	if bestIdx < 0 {
		logger.Debug("leading")
		return
	}

	winner := fighters[bestIdx]
	exp := &core.Expectation{OddSketch: winner.stack.OddSketch, Root: winner.stack.Root}
	winner.peerEgo.SetStatus(core.StatePullStatus(exp))
	winner.peerEgo.SendMsg(&wire.Message{Tag: wire.TagReconcile})
}
