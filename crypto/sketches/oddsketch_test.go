package sketches

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOddSketchInsertOrderIndependent(t *testing.T) {
	a, b, c := []byte{1, 2}, []byte{3, 4}, []byte{5, 6}

	var s1 OddSketch
	s1.Insert(a)
	s1.Insert(b)
	s1.Insert(c)

	var s2 OddSketch
	s2.Insert(c)
	s2.Insert(a)
	s2.Insert(b)

	assert.Equal(t, s1, s2)
}

func TestOddSketchInsertTwiceCancels(t *testing.T) {
	var s OddSketch
	id := []byte{9, 9}
	s.Insert(id)
	s.Insert(id)

	assert.Equal(t, OddSketch{}, s)
}

func TestOddSketchXORSelfInverse(t *testing.T) {
	s := FromIDs([][]byte{{1, 1}, {2, 2}, {3, 3}})
	assert.Equal(t, OddSketch{}, s.XOR(s))
}

func TestOddSketchBytesRoundTrip(t *testing.T) {
	s := FromIDs([][]byte{{7, 7}, {8, 8}})
	got := FromBytes(s.Bytes())
	assert.Equal(t, s, got)
}

func TestOddSketchDistanceZeroForEqual(t *testing.T) {
	s := FromIDs([][]byte{{1, 2}, {3, 4}})
	assert.Zero(t, s.Distance(s))
}
