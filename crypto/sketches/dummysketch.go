package sketches

import (
	set "gopkg.in/fatih/set.v0"
)

// idKey is the map key form of a HashLen-byte ID: Go maps can't key on
// []byte, so IDs are copied into a fixed-size array the way a content hash
// naturally fits one.
type idKey [32]byte

func toKey(id []byte) idKey {
	var k idKey
	copy(k[:], id)
	return k
}

// DifferenceSketch is a placeholder for an IBLT-style minisketch: it keeps
// the full positive/negative ID sets rather than a compact linear sketch,
// so subtraction and decode are exact. The contract (Sub, Decode) is the
// one an IBLT-backed implementation would also have to satisfy, so the
// wire format and the reconciliation logic above it do not depend on which
// is in use.
type DifferenceSketch struct {
	pos *set.Set
	neg *set.Set
	ids map[idKey][]byte // canonical byte form backing the fatih/set entries
}

// NewDifferenceSketch returns an empty sketch.
func NewDifferenceSketch() *DifferenceSketch {
	return &DifferenceSketch{
		pos: set.New(),
		neg: set.New(),
		ids: make(map[idKey][]byte),
	}
}

// InsertID adds id to the positive set.
func (d *DifferenceSketch) InsertID(id []byte) {
	k := toKey(id)
	d.ids[k] = append([]byte(nil), id...)
	d.pos.Add(k)
}

// PosLen returns the size of the positive set.
func (d *DifferenceSketch) PosLen() int { return d.pos.Size() }

// NegLen returns the size of the negative set.
func (d *DifferenceSketch) NegLen() int { return d.neg.Size() }

// Sub computes self - other: IDs present only in self become the excess
// set, IDs present only in other become the missing set.
func (d *DifferenceSketch) Sub(other *DifferenceSketch) *DifferenceSketch {
	out := NewDifferenceSketch()

	excess := set.Difference(d.pos, other.pos)
	missing := set.Difference(other.pos, d.pos)

	set.Each(excess, func(item interface{}) bool {
		k := item.(idKey)
		out.ids[k] = d.ids[k]
		out.pos.Add(k)
		return true
	})
	set.Each(missing, func(item interface{}) bool {
		k := item.(idKey)
		out.ids[k] = other.ids[k]
		out.neg.Add(k)
		return true
	})
	return out
}

// Decode returns the (excess, missing) ID sets the sketch represents: the
// positive set decodes losslessly to "IDs we have that the peer doesn't",
// the negative set to "IDs the peer has that we don't".
func (d *DifferenceSketch) Decode() (excess, missing [][]byte) {
	set.Each(d.pos, func(item interface{}) bool {
		k := item.(idKey)
		excess = append(excess, d.ids[k])
		return true
	})
	set.Each(d.neg, func(item interface{}) bool {
		k := item.(idKey)
		missing = append(missing, d.ids[k])
		return true
	})
	return excess, missing
}

// PosIDs returns the positive set's IDs in no particular order; the wire
// codec uses this to frame tag-4 MiniSketch payloads.
func (d *DifferenceSketch) PosIDs() [][]byte {
	var out [][]byte
	set.Each(d.pos, func(item interface{}) bool {
		out = append(out, d.ids[item.(idKey)])
		return true
	})
	return out
}

// NegIDs returns the negative set's IDs in no particular order.
func (d *DifferenceSketch) NegIDs() [][]byte {
	var out [][]byte
	set.Each(d.neg, func(item interface{}) bool {
		out = append(out, d.ids[item.(idKey)])
		return true
	})
	return out
}
