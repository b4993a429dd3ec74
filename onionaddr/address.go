// Package onionaddr encodes and decodes the <52-char-base32>.onion address
// that names the service whose descriptor this repository's codec handles.
// Grounded on the teacher's onion/address.go.
package onionaddr

import (
	"crypto/ed25519"
	"fmt"
	"strings"

	"filippo.io/edwards25519"

	"github.com/cvsouth/hsdesc/primitive"
)

const (
	suffix     = ".onion"
	version    = 0x03
	addressLen = ed25519.PublicKeySize + 2 + 1 // pubkey | checksum | version
)

// Decode decodes a v3 .onion address and returns its 32-byte Ed25519
// identity public key. It validates the checksum, version byte, and
// rejects a key that doesn't correspond to a valid Ed25519 curve point or
// that has a torsion component.
func Decode(address string) (ed25519.PublicKey, error) {
	address = strings.TrimSuffix(strings.ToLower(address), suffix)

	decoded, err := primitive.DecodeBase32NoPad(address)
	if err != nil {
		return nil, fmt.Errorf("decode onion address: %w", err)
	}
	if len(decoded) != addressLen {
		return nil, fmt.Errorf("decoded length %d, want %d", len(decoded), addressLen)
	}

	pub := ed25519.PublicKey(decoded[:ed25519.PublicKeySize])
	checksum := decoded[ed25519.PublicKeySize : ed25519.PublicKeySize+2]
	v := decoded[ed25519.PublicKeySize+2]

	if v != version {
		return nil, fmt.Errorf("unsupported onion address version %d", v)
	}

	want := checksumOf(pub, v)
	if checksum[0] != want[0] || checksum[1] != want[1] {
		return nil, fmt.Errorf("onion address checksum mismatch")
	}

	p, err := new(edwards25519.Point).SetBytes(pub)
	if err != nil {
		return nil, fmt.Errorf("public key is not a valid curve point: %w", err)
	}
	// Reject a torsion component: [l]P, computed as [l-1]P + P, must be the
	// identity for a point in the prime-order subgroup.
	var oneBytes [32]byte
	oneBytes[0] = 1
	one, _ := edwards25519.NewScalar().SetCanonicalBytes(oneBytes[:])
	minusOne := edwards25519.NewScalar().Subtract(edwards25519.NewScalar(), one)
	lP := new(edwards25519.Point).ScalarMult(minusOne, p)
	lP.Add(lP, p)
	if lP.Equal(edwards25519.NewIdentityPoint()) != 1 {
		return nil, fmt.Errorf("public key has a torsion component")
	}

	return pub, nil
}

// Encode encodes pub as a v3 .onion address.
func Encode(pub ed25519.PublicKey) (string, error) {
	if len(pub) != ed25519.PublicKeySize {
		return "", fmt.Errorf("public key must be %d bytes, got %d", ed25519.PublicKeySize, len(pub))
	}
	checksum := checksumOf(pub, version)
	raw := make([]byte, 0, addressLen)
	raw = append(raw, pub...)
	raw = append(raw, checksum[:]...)
	raw = append(raw, version)
	return primitive.EncodeBase32NoPad(raw) + suffix, nil
}

// checksumOf computes SHA3-256(".onion checksum" | pubkey | version)[:2].
func checksumOf(pub ed25519.PublicKey, v byte) [2]byte {
	sum := primitive.Digest256([]byte(".onion checksum"), pub, []byte{v})
	var out [2]byte
	copy(out[:], sum[:2])
	return out
}
