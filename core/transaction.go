// Package core implements the node's transaction model and the two
// work-related value types (WorkSite, WorkStack) that drive leader
// selection.
package core

import (
	"bytes"
	"errors"

	"github.com/cauchynet/cauchy/crypto/hashes"
	"github.com/cauchynet/cauchy/wire"
)

// Transaction is an immutable (time, aux, binary) tuple. Its ID is the
// double-BLAKE2b hash of its canonical encoding, and the total order over
// transactions is (time, id) -- both exactly as defined on the wire.
type Transaction struct {
	Time   uint64
	Aux    []byte
	Binary []byte

	id []byte // memoized on first call to ID()
}

// NewTransaction constructs a Transaction from its three fields.
func NewTransaction(time uint64, aux, binary []byte) *Transaction {
	return &Transaction{Time: time, Aux: aux, Binary: binary}
}

// Encode returns the canonical wire encoding:
// varint(time) || varint(len(aux)) || aux || varint(len(binary)) || binary.
func (t *Transaction) Encode() []byte {
	var buf bytes.Buffer
	buf.Write(wire.EncodeVarint(t.Time))
	buf.Write(wire.EncodeVarint(uint64(len(t.Aux))))
	buf.Write(t.Aux)
	buf.Write(wire.EncodeVarint(uint64(len(t.Binary))))
	buf.Write(t.Binary)
	return buf.Bytes()
}

// ErrTruncatedTransaction is returned when a transaction frame needs more
// bytes than are currently available -- the partial-frame case callers
// must distinguish from a genuine malformed-frame error.
var ErrTruncatedTransaction = errors.New("core: truncated transaction frame")

// ErrMalformedTransaction marks an unrecoverable decode failure.
var ErrMalformedTransaction = errors.New("core: malformed transaction frame")

// DecodeTransaction parses a canonically-encoded transaction from the
// front of buf, returning the number of bytes consumed. It returns
// ErrTruncatedTransaction (not a hard error) when buf doesn't yet hold a
// complete frame, so stream-oriented callers can wait for more bytes.
func DecodeTransaction(buf []byte) (*Transaction, int, error) {
	time, n1, ok := wire.DecodeVarint(buf)
	if !ok {
		return nil, 0, ErrTruncatedTransaction
	}
	rest := buf[n1:]

	auxLen, n2, ok := wire.DecodeVarint(rest)
	if !ok {
		return nil, 0, ErrTruncatedTransaction
	}
	rest = rest[n2:]
	if uint64(len(rest)) < auxLen {
		return nil, 0, ErrTruncatedTransaction
	}
	aux := append([]byte(nil), rest[:auxLen]...)
	rest = rest[auxLen:]

	binLen, n3, ok := wire.DecodeVarint(rest)
	if !ok {
		return nil, 0, ErrTruncatedTransaction
	}
	rest = rest[n3:]
	if uint64(len(rest)) < binLen {
		return nil, 0, ErrTruncatedTransaction
	}
	binary := append([]byte(nil), rest[:binLen]...)

	consumed := n1 + n2 + int(auxLen) + n3 + int(binLen)
	return &Transaction{Time: time, Aux: aux, Binary: binary}, consumed, nil
}

// ID returns the transaction's identifier: the double-BLAKE2b hash of its
// canonical encoding. It is memoized since the encoding never changes
// after construction.
func (t *Transaction) ID() []byte {
	if t.id == nil {
		t.id = hashes.DoubleSum256(t.Encode())
	}
	return t.id
}

// Less implements the (time, id) total order: time first, id as tiebreak.
func (t *Transaction) Less(other *Transaction) bool {
	if t.Time != other.Time {
		return t.Time < other.Time
	}
	return bytes.Compare(t.ID(), other.ID()) < 0
}

// Equal compares two transactions by identity, i.e. by ID.
func (t *Transaction) Equal(other *Transaction) bool {
	return bytes.Equal(t.ID(), other.ID())
}
