// Package rpc implements the node's local control protocol: a
// tag-framed TCP server distinct from the peer wire protocol, used to
// add peers, submit transactions, and read back state without going
// through peer reconciliation.
package rpc

import (
	"bytes"
	"encoding/binary"
	"errors"

	"github.com/cauchynet/cauchy/core"
	"github.com/cauchynet/cauchy/crypto/hashes"
	"github.com/cauchynet/cauchy/wire"
)

// Tag identifies an RPC command.
type Tag byte

const (
	TagAddPeer       Tag = 0
	TagNewTransaction Tag = 1
	TagFetchValue    Tag = 2
)

// ErrIncompleteFrame signals the decoder needs more bytes.
var ErrIncompleteFrame = errors.New("rpc: incomplete frame")

// ErrMalformedFrame signals an unrecoverable decode failure.
var ErrMalformedFrame = errors.New("rpc: malformed frame")

// Message is the union of all RPC commands. Only the fields relevant to
// Tag are meaningful.
type Message struct {
	Tag Tag

	Peer wire.PeerAddr // AddPeer

	Tx *core.Transaction // NewTransaction

	ActorID []byte // FetchValue
	Key     []byte // FetchValue
}

// Encode serializes msg into its wire form.
func Encode(msg *Message) []byte {
	var buf bytes.Buffer
	buf.WriteByte(byte(msg.Tag))

	switch msg.Tag {
	case TagAddPeer:
		buf.Write(msg.Peer.IP[:])
		var portBytes [2]byte
		binary.BigEndian.PutUint16(portBytes[:], msg.Peer.Port)
		buf.Write(portBytes[:])
	case TagNewTransaction:
		buf.Write(msg.Tx.Encode())
	case TagFetchValue:
		buf.Write(msg.ActorID)
		buf.Write(msg.Key)
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
	case TagAddPeer:
		if len(rest) < 6 {
			return nil, 0, ErrIncompleteFrame
		}
		var peer wire.PeerAddr
		copy(peer.IP[:], rest[:4])
		peer.Port = binary.BigEndian.Uint16(rest[4:6])
		return &Message{Tag: tag, Peer: peer}, 1 + 6, nil

	case TagNewTransaction:
		tx, n, err := core.DecodeTransaction(rest)
		if err == core.ErrTruncatedTransaction {
			return nil, 0, ErrIncompleteFrame
		}
		if err != nil {
			return nil, 0, ErrMalformedFrame
		}
		return &Message{Tag: tag, Tx: tx}, 1 + n, nil

	case TagFetchValue:
		need := 2 * hashes.HashLen
		if len(rest) < need {
			return nil, 0, ErrIncompleteFrame
		}
		actorID := append([]byte(nil), rest[:hashes.HashLen]...)
		key := append([]byte(nil), rest[hashes.HashLen:need]...)
		return &Message{Tag: tag, ActorID: actorID, Key: key}, 1 + need, nil

	default:
		return nil, 0, ErrMalformedFrame
	}
}
