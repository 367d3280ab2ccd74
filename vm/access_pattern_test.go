package vm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeltaSetXORsOverlappingKey(t *testing.T) {
	d := newDelta()
	d.Set([]byte("k"), []byte{0x0f, 0x0f})
	d.Set([]byte("k"), []byte{0xff, 0x00})

	assert.Equal(t, []byte{0xf0, 0x0f}, d["k"])
}

func TestDeltaMergeXORsOverlappingKeys(t *testing.T) {
	a := newDelta()
	a.Set([]byte("k"), []byte{0x0f})
	b := newDelta()
	b.Set([]byte("k"), []byte{0xff})
	b.Set([]byte("other"), []byte{0x01})

	a.Merge(b)

	assert.Equal(t, []byte{0xf0}, a["k"])
	assert.Equal(t, []byte{0x01}, a["other"])
}

func TestReadPatternMergeUnions(t *testing.T) {
	a := newReadPattern()
	a.Add([]byte("x"))
	b := newReadPattern()
	b.Add([]byte("y"))

	a.Merge(b)

	_, hasX := a["x"]
	_, hasY := a["y"]
	assert.True(t, hasX)
	assert.True(t, hasY)
}
