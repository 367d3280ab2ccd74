package core

import (
	"encoding/binary"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/cauchynet/cauchy/crypto/hashes"
	"github.com/cauchynet/cauchy/crypto/sketches"
	"github.com/cauchynet/cauchy/crypto/signatures"
)

// WorkSite is (pubkey, root, nonce): a candidate mining position whose
// site hash is compared against an OddSketch via Hamming distance.
type WorkSite struct {
	PublicKey *secp256k1.PublicKey
	Root      []byte
	Nonce     uint64
}

// NewWorkSite constructs a WorkSite.
func NewWorkSite(pub *secp256k1.PublicKey, root []byte, nonce uint64) *WorkSite {
	return &WorkSite{PublicKey: pub, Root: root, Nonce: nonce}
}

// Increment advances the nonce by one, the mining worker's inner-loop
// step.
func (w *WorkSite) Increment() { w.Nonce++ }

// Encode returns pubkey(33) || root(32) || nonce(8, big-endian), the
// canonical encoding the site hash is taken over.
func (w *WorkSite) Encode() []byte {
	buf := make([]byte, 0, signatures.PubkeyLen+32+8)
	buf = append(buf, signatures.BytesFromPubkey(w.PublicKey)...)
	buf = append(buf, w.Root...)
	var nonceBytes [8]byte
	binary.BigEndian.PutUint64(nonceBytes[:], w.Nonce)
	buf = append(buf, nonceBytes[:]...)
	return buf
}

// SiteHash is the double-BLAKE2b hash of the canonical encoding.
func (w *WorkSite) SiteHash() []byte {
	return hashes.DoubleSum256(w.Encode())
}

// Mine returns the Hamming distance between the site hash and an
// OddSketch's bytes -- lower is a better candidate.
func (w *WorkSite) Mine(sketch sketches.OddSketch) int {
	return sketch.DistanceToBytes(w.SiteHash())
}

// WorkStack is a peer's published snapshot: the OddSketch summarizing its
// transaction multiset, the root committed at its last ingest, and the
// best nonce it has found.
type WorkStack struct {
	Root      []byte
	Nonce     uint64
	OddSketch sketches.OddSketch
}

// NewWorkStack constructs a WorkStack, defaulting Root to HashLen zero
// bytes and the sketch to its zero value when unset.
func NewWorkStack(root []byte, sketch sketches.OddSketch, nonce uint64) *WorkStack {
	if root == nil {
		root = make([]byte, hashes.HashLen)
	}
	return &WorkStack{Root: root, Nonce: nonce, OddSketch: sketch}
}

// Update folds a newly-ingested transaction into the stack: the sketch
// absorbs the transaction's ID, the root moves to newRoot, and the nonce
// resets to zero since the previous mining progress no longer applies to
// the new state.
func (w *WorkStack) Update(tx *Transaction, newRoot []byte) {
	w.Nonce = 0
	w.OddSketch.Insert(tx.ID())
	w.Root = newRoot
}
