// Package ego implements the node's own reconciliation state (Ego) and
// its per-peer counterpart (PeerEgo), including the mining updater and
// the PeerEgo state machine described by the dispatcher.
package ego

import (
	"sync"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/cauchynet/cauchy/core"
	"github.com/cauchynet/cauchy/crypto/signatures"
	"github.com/cauchynet/cauchy/crypto/sketches"
	"github.com/cauchynet/cauchy/log"
	"github.com/cauchynet/cauchy/wire"
)

var logger = log.NewModuleLogger(log.ModuleEgo)

// sentinelDistance is the initial, worse-than-any-real-value distance: the
// sketch is CapacityBits wide so no real Hamming distance reaches it.
const sentinelDistance = 512

// Ego owns the node's private identity, local OddSketch/DifferenceSketch
// state, current WorkStack, and best observed mining distance. It is a
// singleton within a process.
type Ego struct {
	mu sync.Mutex

	keys *signatures.KeyPair

	workStack *core.WorkStack
	miniSketch *sketches.DifferenceSketch

	currentDistance int
}

// New constructs an Ego from a keypair.
func New(keys *signatures.KeyPair) *Ego {
	return &Ego{
		keys:            keys,
		workStack:       core.NewWorkStack(nil, sketches.OddSketch{}, 0),
		miniSketch:      sketches.NewDifferenceSketch(),
		currentDistance: sentinelDistance,
	}
}

// Pubkey returns the node's public key.
func (e *Ego) Pubkey() *secp256k1.PublicKey { return e.keys.Pub }

// GenerateEndHandshake signs H(H(varint(secret))) and returns the
// EndHandshake message to send in reply.
func (e *Ego) GenerateEndHandshake(secret uint64) *wire.Message {
	digest := signatures.MessageFromPreimage(wire.EncodeVarint(secret))
	sig := signatures.Sign(e.keys.Priv, digest)
	return &wire.Message{Tag: wire.TagEndHandshake, Pubkey: e.keys.Pub, Sig: sig}
}

// GetWorkSite returns the WorkSite derived from the current WorkStack.
func (e *Ego) GetWorkSite() *core.WorkSite {
	e.mu.Lock()
	defer e.mu.Unlock()
	return core.NewWorkSite(e.keys.Pub, append([]byte(nil), e.workStack.Root...), e.workStack.Nonce)
}

// WorkStack returns a copy of the current WorkStack.
func (e *Ego) WorkStack() core.WorkStack {
	e.mu.Lock()
	defer e.mu.Unlock()
	return *e.workStack
}

// CurrentDistance returns the best distance seen since the last reset.
func (e *Ego) CurrentDistance() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.currentDistance
}

// MiniSketch returns the current DifferenceSketch.
func (e *Ego) MiniSketch() *sketches.DifferenceSketch {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.miniSketch
}

// Increment folds a newly-ingested transaction into the local state:
// the OddSketch and DifferenceSketch absorb its ID, the root advances,
// and the nonce resets since mining progress against the old root no
// longer applies.
func (e *Ego) Increment(tx *core.Transaction, newRoot []byte) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.workStack.Update(tx, newRoot)
	e.miniSketch.InsertID(tx.ID())
}

// Pull bulk-replaces local state after a successful peer reconciliation.
func (e *Ego) Pull(oddSketch sketches.OddSketch, miniSketch *sketches.DifferenceSketch, root []byte) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.workStack.OddSketch = oddSketch
	e.workStack.Root = root
	e.workStack.Nonce = 0
	e.miniSketch = miniSketch
}

// MiningProposal is a (nonce, distance) improvement reported by a worker.
type MiningProposal struct {
	Nonce    uint64
	Distance int
}

// MiningReset carries a new target (oddsketch, root) broadcast to every
// mining worker and to Updater whenever local state changes.
type MiningReset struct {
	OddSketch sketches.OddSketch
	Root      []byte
}

// Updater consumes mining proposals and reset signals until ctx-like done
// is closed. It is single-threaded with respect to both channels, exactly
// as the concurrency model requires. A reset causes the very next proposal
// to be adopted unconditionally; absent a pending reset, a proposal is
// adopted only if it strictly beats the best distance seen so far.
func (e *Ego) Updater(proposals <-chan MiningProposal, resets <-chan MiningReset, done <-chan struct{}) {
	bestDistance := sentinelDistance
	pendingReset := false

	adopt := func(nonce uint64, distance int) {
		e.mu.Lock()
		e.workStack.Nonce = nonce
		e.currentDistance = distance
		e.mu.Unlock()
		bestDistance = distance
	}

	for {
		select {
		case <-done:
			return
		case <-resets:
			pendingReset = true
		case p, ok := <-proposals:
			if !ok {
				return
			}
			if pendingReset {
				adopt(p.Nonce, p.Distance)
				pendingReset = false
			} else if p.Distance < bestDistance {
				adopt(p.Nonce, p.Distance)
			}
		}
	}
}
