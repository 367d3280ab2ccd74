package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVarintRoundTrip(t *testing.T) {
	cases := []uint64{0, 1, 0x7f, 0x80, 0x3fff, 0x4000, 1 << 20, 1 << 40, 1<<64 - 1}
	for _, n := range cases {
		enc := EncodeVarint(n)
		got, consumed, ok := DecodeVarint(enc)
		assert.True(t, ok, "n=%d", n)
		assert.Equal(t, len(enc), consumed, "n=%d", n)
		assert.Equal(t, n, got, "n=%d", n)
	}
}

func TestVarintPartialFrame(t *testing.T) {
	enc := EncodeVarint(1 << 40)
	for i := 0; i < len(enc)-1; i++ {
		_, _, ok := DecodeVarint(enc[:i])
		assert.False(t, ok)
	}
}

func TestVarintTrailingBytesIgnored(t *testing.T) {
	enc := EncodeVarint(42)
	enc = append(enc, 0xff, 0xff)
	got, consumed, ok := DecodeVarint(enc)
	assert.True(t, ok)
	assert.Equal(t, uint64(42), got)
	assert.Less(t, consumed, len(enc))
}
