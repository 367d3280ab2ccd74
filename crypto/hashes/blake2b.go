// Package hashes provides the double-BLAKE2b hashing used to derive
// transaction and performance identifiers throughout the node.
package hashes

import (
	"golang.org/x/crypto/blake2b"
)

// HashLen is the truncated digest length used everywhere an ID is stored.
const HashLen = 32

// Sum256 returns the first HashLen bytes of the BLAKE2b-512 digest of b,
// mirroring Blk2bHashable::blake2b in the reference implementation.
func Sum256(b []byte) []byte {
	digest := blake2b.Sum512(b)
	out := make([]byte, HashLen)
	copy(out, digest[:HashLen])
	return out
}

// DoubleSum256 hashes b twice, the identifier derivation used for both
// transactions and performance records.
func DoubleSum256(b []byte) []byte {
	return Sum256(Sum256(b))
}
