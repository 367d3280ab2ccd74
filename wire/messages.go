package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"net"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/cauchynet/cauchy/core"
	"github.com/cauchynet/cauchy/crypto/hashes"
	"github.com/cauchynet/cauchy/crypto/signatures"
	"github.com/cauchynet/cauchy/crypto/sketches"
)

// Tag identifies a wire message's type. Tag 2 (the draft Nonce message)
// is intentionally absent: the mining nonce was folded into Work before
// this protocol was finalized.
type Tag byte

const (
	TagStartHandshake   Tag = 0
	TagEndHandshake     Tag = 1
	TagWork             Tag = 3
	TagMiniSketch       Tag = 4
	TagGetTransactions  Tag = 5
	TagTransactions     Tag = 6
	TagReconcile        Tag = 7
	TagReconcileNegAck  Tag = 8
	TagGetWork          Tag = 9
	// TagPeers is a supplemental message not named in the external wire
	// table: it carries a peer address list, grounded in the reference
	// implementation's now-superseded Peer/Peers encoding. The dispatcher
	// dials each listed address on receipt; nothing in this module sends
	// one.
	TagPeers Tag = 10
)

// ErrIncompleteFrame signals the decoder needs more bytes; it is not a
// protocol error.
var ErrIncompleteFrame = errors.New("wire: incomplete frame")

// ErrMalformedFrame signals an unrecoverable decode failure, e.g. an
// unknown tag -- the caller should abort the connection.
var ErrMalformedFrame = errors.New("wire: malformed frame")

// PeerAddr is an IPv4 address and port, the payload of TagPeers entries
// and of the RPC AddPeer command.
type PeerAddr struct {
	IP   [4]byte
	Port uint16
}

// Message is the union of all wire-protocol messages. Only the fields
// relevant to Tag are meaningful.
type Message struct {
	Tag Tag

	Secret uint64 // StartHandshake

	Pubkey *secp256k1.PublicKey // EndHandshake
	Sig    []byte                // EndHandshake

	OddSketch sketches.OddSketch // Work
	Root      []byte             // Work
	Nonce     uint64             // Work

	MiniSketchIDs [][]byte // MiniSketch: the sender's positive ID set

	IDs [][]byte // GetTransactions

	Txs []*core.Transaction // Transactions

	Peers []PeerAddr // Peers
}

// Encode serializes msg into its wire form.
func Encode(msg *Message) []byte {
	var buf bytes.Buffer
	buf.WriteByte(byte(msg.Tag))

	switch msg.Tag {
	case TagStartHandshake:
		buf.Write(EncodeVarint(msg.Secret))
	case TagEndHandshake:
		buf.Write(signatures.BytesFromPubkey(msg.Pubkey))
		buf.Write(msg.Sig)
	case TagWork:
		sk := msg.OddSketch.Bytes()
		buf.Write(sk)
		buf.Write(msg.Root)
		buf.Write(EncodeVarint(msg.Nonce))
	case TagMiniSketch:
		buf.Write(EncodeVarint(uint64(len(msg.MiniSketchIDs))))
		for _, id := range msg.MiniSketchIDs {
			buf.Write(id)
		}
	case TagGetTransactions:
		buf.Write(EncodeVarint(uint64(len(msg.IDs))))
		for _, id := range msg.IDs {
			buf.Write(id)
		}
	case TagTransactions:
		buf.Write(EncodeVarint(uint64(len(msg.Txs))))
		for _, tx := range msg.Txs {
			buf.Write(tx.Encode())
		}
	case TagReconcile, TagReconcileNegAck, TagGetWork:
		// no payload
	case TagPeers:
		buf.Write(EncodeVarint(uint64(len(msg.Peers))))
		for _, p := range msg.Peers {
			buf.Write(p.IP[:])
			var portBytes [2]byte
			binary.BigEndian.PutUint16(portBytes[:], p.Port)
			buf.Write(portBytes[:])
		}
	}
	return buf.Bytes()
}

// Decode parses a single message from the front of src, returning the
// number of bytes consumed. It returns ErrIncompleteFrame when src does
// not yet hold a full frame, and ErrMalformedFrame on an unknown tag.
func Decode(src []byte) (*Message, int, error) {
	if len(src) == 0 {
		return nil, 0, ErrIncompleteFrame
	}
	tag := Tag(src[0])
	rest := src[1:]

	switch tag {
	case TagStartHandshake:
		secret, n, ok := DecodeVarint(rest)
		if !ok {
			return nil, 0, ErrIncompleteFrame
		}
		return &Message{Tag: tag, Secret: secret}, 1 + n, nil

	case TagEndHandshake:
		need := signatures.PubkeyLen + signatures.SigLen
		if len(rest) < need {
			return nil, 0, ErrIncompleteFrame
		}
		pubBytes := rest[:signatures.PubkeyLen]
		sigBytes := rest[signatures.PubkeyLen:need]
		pub, err := signatures.PubkeyFromBytes(pubBytes)
		if err != nil {
			return nil, 0, ErrMalformedFrame
		}
		sig, err := signatures.SigFromBytes(sigBytes)
		if err != nil {
			return nil, 0, ErrMalformedFrame
		}
		return &Message{Tag: tag, Pubkey: pub, Sig: sig}, 1 + need, nil

	case TagWork:
		need := sketches.CapacityBytes + hashes.HashLen
		if len(rest) < need {
			return nil, 0, ErrIncompleteFrame
		}
		sketch := sketches.FromBytes(rest[:sketches.CapacityBytes])
		root := append([]byte(nil), rest[sketches.CapacityBytes:need]...)
		nonce, n, ok := DecodeVarint(rest[need:])
		if !ok {
			return nil, 0, ErrIncompleteFrame
		}
		return &Message{Tag: tag, OddSketch: sketch, Root: root, Nonce: nonce}, 1 + need + n, nil

	case TagMiniSketch:
		count, n, ok := DecodeVarint(rest)
		if !ok {
			return nil, 0, ErrIncompleteFrame
		}
		rest = rest[n:]
		total := int(count) * hashes.HashLen
		if len(rest) < total {
			return nil, 0, ErrIncompleteFrame
		}
		ids := make([][]byte, count)
		for i := range ids {
			ids[i] = append([]byte(nil), rest[i*hashes.HashLen:(i+1)*hashes.HashLen]...)
		}
		return &Message{Tag: tag, MiniSketchIDs: ids}, 1 + n + total, nil

	case TagGetTransactions:
		count, n, ok := DecodeVarint(rest)
		if !ok {
			return nil, 0, ErrIncompleteFrame
		}
		rest = rest[n:]
		total := int(count) * hashes.HashLen
		if len(rest) < total {
			return nil, 0, ErrIncompleteFrame
		}
		ids := make([][]byte, count)
		for i := range ids {
			ids[i] = append([]byte(nil), rest[i*hashes.HashLen:(i+1)*hashes.HashLen]...)
		}
		return &Message{Tag: tag, IDs: ids}, 1 + n + total, nil

	case TagTransactions:
		count, n, ok := DecodeVarint(rest)
		if !ok {
			return nil, 0, ErrIncompleteFrame
		}
		rest = rest[n:]
		consumed := n
		txs := make([]*core.Transaction, 0, count)
		for i := uint64(0); i < count; i++ {
			tx, txLen, err := core.DecodeTransaction(rest)
			if err == core.ErrTruncatedTransaction {
				return nil, 0, ErrIncompleteFrame
			}
			if err != nil {
				return nil, 0, ErrMalformedFrame
			}
			txs = append(txs, tx)
			rest = rest[txLen:]
			consumed += txLen
		}
		return &Message{Tag: tag, Txs: txs}, 1 + consumed, nil

	case TagReconcile, TagReconcileNegAck, TagGetWork:
		return &Message{Tag: tag}, 1, nil

	case TagPeers:
		count, n, ok := DecodeVarint(rest)
		if !ok {
			return nil, 0, ErrIncompleteFrame
		}
		rest = rest[n:]
		total := int(count) * 6
		if len(rest) < total {
			return nil, 0, ErrIncompleteFrame
		}
		peers := make([]PeerAddr, count)
		for i := range peers {
			off := i * 6
			copy(peers[i].IP[:], rest[off:off+4])
			peers[i].Port = binary.BigEndian.Uint16(rest[off+4 : off+6])
		}
		return &Message{Tag: tag, Peers: peers}, 1 + n + total, nil

	default:
		return nil, 0, ErrMalformedFrame
	}
}

// PeerAddrFromTCP builds a PeerAddr from a resolved TCP address.
func PeerAddrFromTCP(addr *net.TCPAddr) (PeerAddr, bool) {
	ip4 := addr.IP.To4()
	if ip4 == nil {
		return PeerAddr{}, false
	}
	var p PeerAddr
	copy(p.IP[:], ip4)
	p.Port = uint16(addr.Port)
	return p, true
}
