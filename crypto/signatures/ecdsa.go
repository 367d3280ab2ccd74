// Package signatures implements the secp256k1 keypair and signing
// operations used to authenticate the EndHandshake message.
package signatures

import (
	"errors"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"

	"github.com/cauchynet/cauchy/crypto/hashes"
)

// PubkeyLen and SigLen match the wire protocol's fixed-width handshake
// fields.
const (
	PubkeyLen = 33
	SigLen    = 64
)

// ErrInvalidPubkey and ErrInvalidSignature mirror the reference
// implementation's error taxonomy for malformed handshake fields.
var (
	ErrInvalidPubkey   = errors.New("signatures: invalid public key")
	ErrInvalidSignature = errors.New("signatures: invalid signature")
)

// KeyPair holds a node's long-lived secp256k1 identity.
type KeyPair struct {
	Priv *secp256k1.PrivateKey
	Pub  *secp256k1.PublicKey
}

// GenerateKeyPair creates a new random keypair.
func GenerateKeyPair() (*KeyPair, error) {
	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}
	return &KeyPair{Priv: priv, Pub: priv.PubKey()}, nil
}

// MessageFromPreimage double-hashes raw and truncates to the 32 bytes a
// secp256k1 signature is taken over -- the same preimage-to-digest step
// the handshake signs.
func MessageFromPreimage(raw []byte) []byte {
	return hashes.DoubleSum256(raw)
}

// BytesFromPubkey returns the compressed (33-byte) encoding of a public
// key, matching PubkeyLen.
func BytesFromPubkey(pub *secp256k1.PublicKey) []byte {
	return pub.SerializeCompressed()
}

// PubkeyFromBytes parses a compressed public key.
func PubkeyFromBytes(raw []byte) (*secp256k1.PublicKey, error) {
	if len(raw) != PubkeyLen {
		return nil, ErrInvalidPubkey
	}
	pub, err := secp256k1.ParsePubKey(raw)
	if err != nil {
		return nil, ErrInvalidPubkey
	}
	return pub, nil
}

// Sign signs digest (typically the output of MessageFromPreimage) and
// returns the 64-byte R||S compact signature the wire protocol carries;
// the compact-format recovery header secp256k1 normally prepends is
// dropped since the handshake always supplies the signer's public key
// alongside the signature.
func Sign(priv *secp256k1.PrivateKey, digest []byte) []byte {
	compact := ecdsa.SignCompact(priv, digest, true)
	return compact[1:]
}

// BytesFromSig is an identity helper kept for symmetry with
// BytesFromPubkey: Sign already returns the wire-ready form.
func BytesFromSig(sig []byte) []byte { return sig }

// SigFromBytes validates that raw is a well-formed SigLen-byte signature.
func SigFromBytes(raw []byte) ([]byte, error) {
	if len(raw) != SigLen {
		return nil, ErrInvalidSignature
	}
	return raw, nil
}

// Verify checks that sig (64-byte R||S) is a valid signature over digest
// by the holder of pub. Since the compact encoding's recovery id was
// stripped on the wire, both possible recovery ids are tried and the
// recovered key compared against pub.
func Verify(digest, sig []byte, pub *secp256k1.PublicKey) (bool, error) {
	if len(sig) != SigLen {
		return false, ErrInvalidSignature
	}
	want := pub.SerializeCompressed()
	for _, header := range []byte{27, 28, 31, 32} {
		compact := append([]byte{header}, sig...)
		recovered, _, err := ecdsa.RecoverCompact(compact, digest)
		if err != nil {
			continue
		}
		got := recovered.SerializeCompressed()
		if len(got) == len(want) {
			match := true
			for i := range got {
				if got[i] != want[i] {
					match = false
					break
				}
			}
			if match {
				return true, nil
			}
		}
	}
	return false, nil
}
