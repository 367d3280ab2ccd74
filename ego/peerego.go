package ego

import (
	"crypto/rand"
	"encoding/binary"
	"sync"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/cauchynet/cauchy/core"
	"github.com/cauchynet/cauchy/crypto/signatures"
	"github.com/cauchynet/cauchy/crypto/sketches"
	"github.com/cauchynet/cauchy/wire"
)

// sinkDepth matches the reference implementation's bounded per-peer
// outbound channel capacity.
const sinkDepth = 1024

// Perception is what we believe a peer's own ego currently looks like,
// recorded the moment we push it a Work message.
type Perception struct {
	WorkStack  core.WorkStack
	MiniSketch *sketches.DifferenceSketch
}

// PeerEgo tracks one connected peer: its handshake secret, its bound
// public key (once verified), the reconciliation Status it is in, our
// perception of its last-pushed state, and the bounded outbound sink the
// dispatcher drains.
type PeerEgo struct {
	mu sync.Mutex

	pubkey *secp256k1.PublicKey
	secret uint64
	status core.Status

	perception *Perception

	sink chan *wire.Message
}

// NewPeerEgo returns a fresh PeerEgo with a random handshake secret and an
// Idle status.
func NewPeerEgo() *PeerEgo {
	return &PeerEgo{
		secret: randomSecret(),
		status: core.IdleStatus(),
		sink:   make(chan *wire.Message, sinkDepth),
	}
}

func randomSecret() uint64 {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return binary.BigEndian.Uint64(b[:])
}

// Secret returns the random nonce sent in our StartHandshake.
func (p *PeerEgo) Secret() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.secret
}

// Sink returns the channel the dispatcher's outbound loop drains.
func (p *PeerEgo) Sink() <-chan *wire.Message { return p.sink }

// SendMsg enqueues m on the bounded sink, fire-and-forget; a full sink
// (a stalled peer) silently drops the message rather than blocking the
// caller, matching the reference implementation's best-effort send.
func (p *PeerEgo) SendMsg(m *wire.Message) {
	select {
	case p.sink <- m:
	default:
	}
}

// CheckHandshake verifies sig over our secret under pk; on success it
// binds pubkey. It is valid from any status.
func (p *PeerEgo) CheckHandshake(sig []byte, pk *secp256k1.PublicKey) bool {
	digest := signatures.MessageFromPreimage(wire.EncodeVarint(p.Secret()))
	ok, err := signatures.Verify(digest, sig, pk)
	if err != nil || !ok {
		return false
	}
	p.mu.Lock()
	p.pubkey = pk
	p.mu.Unlock()
	return true
}

// Pubkey returns the peer's bound public key, or nil if not yet
// handshaken.
func (p *PeerEgo) Pubkey() *secp256k1.PublicKey {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pubkey
}

// Status returns the current reconciliation state.
func (p *PeerEgo) Status() core.Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// SetStatus transitions to s.
func (p *PeerEgo) SetStatus(s core.Status) {
	p.mu.Lock()
	from := p.status
	p.status = s
	p.mu.Unlock()
	logger.Debug("peer status transition", "from", from.Kind, "to", s.Kind)
}

// PerceivedOddSketch returns the OddSketch we last pushed to this peer,
// if any.
func (p *PeerEgo) PerceivedOddSketch() (sketches.OddSketch, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.perception == nil {
		return sketches.OddSketch{}, false
	}
	return p.perception.WorkStack.OddSketch, true
}

// PerceivedMiniSketch returns the DifferenceSketch we last pushed to this
// peer, if any.
func (p *PeerEgo) PerceivedMiniSketch() (*sketches.DifferenceSketch, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.perception == nil {
		return nil, false
	}
	return p.perception.MiniSketch, true
}

// PullWork records an inbound Work reply: From WorkPull, transitions to
// Fighting(stack).
func (p *PeerEgo) PullWork(stack *core.WorkStack) {
	p.SetStatus(core.FightingStatus(stack))
}

// PushWork records our own perception of what we just told the peer and
// sends it a Work message -- used when replying to GetWork.
func (p *PeerEgo) PushWork(stack core.WorkStack, miniSketch *sketches.DifferenceSketch) {
	p.mu.Lock()
	p.perception = &Perception{WorkStack: stack, MiniSketch: miniSketch}
	p.mu.Unlock()
	p.SendMsg(&wire.Message{Tag: wire.TagWork, OddSketch: stack.OddSketch, Root: stack.Root, Nonce: stack.Nonce})
}
