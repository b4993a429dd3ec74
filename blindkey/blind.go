// Package blindkey derives the per-time-period blinded Ed25519 keypair a
// descriptor is signed under, and the subcredential value (computed here but
// not used by this module's crypto envelope, whose key derivation takes only
// the blinded public key). Grounded on the teacher's onion/blind.go,
// generalized from client-side public-key-only blinding to full-keypair
// blinding so an encoder can sign with the blinded key it just derived.
package blindkey

import (
	"crypto/ed25519"
	"crypto/sha512"
	"encoding/binary"
	"fmt"

	"filippo.io/edwards25519"
	"golang.org/x/crypto/sha3"
)

const (
	// DefaultPeriodLength is the time-period length in minutes (1 day).
	DefaultPeriodLength = 1440
	// rotationOffset shifts the period boundary by 12 hours, per rend-spec-v3.
	rotationOffset = 12 * 60
)

var (
	blindString       = []byte("Derive temporary signing key\x00")
	ed25519Basepoint  = []byte("(15112221349535400772501151409588531511454012693041857206046113283949847762202, 46316835694926478169428394003475163141307993866256225615783033603165251855960)")
)

// TimePeriod computes the time-period number for nowUnix, the caller-
// supplied "now" timestamp (seconds since epoch).
func TimePeriod(nowUnix int64, periodLength int64) int64 {
	if periodLength <= 0 {
		periodLength = DefaultPeriodLength
	}
	minutesSinceEpoch := nowUnix / 60
	return (minutesSinceEpoch - rotationOffset) / periodLength
}

// nonce builds N = "key-blind" | INT_8(period_number) | INT_8(period_length).
func nonce(periodNumber, periodLength int64) []byte {
	n := make([]byte, 0, 9+8+8)
	n = append(n, []byte("key-blind")...)
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(periodNumber))
	n = append(n, buf[:]...)
	binary.BigEndian.PutUint64(buf[:], uint64(periodLength))
	n = append(n, buf[:]...)
	return n
}

// blindingFactor computes h = SHA3-256(BLIND_STRING | A | B | N), clamped
// into an Ed25519 scalar.
func blindingFactor(pub ed25519.PublicKey, periodNumber, periodLength int64) (*edwards25519.Scalar, error) {
	h := sha3.New256()
	h.Write(blindString)
	h.Write(pub)
	h.Write(ed25519Basepoint)
	h.Write(nonce(periodNumber, periodLength))
	return new(edwards25519.Scalar).SetBytesWithClamping(h.Sum(nil))
}

// BlindPublicKey derives the blinded public key A' = h*A for the given
// time period.
func BlindPublicKey(pub ed25519.PublicKey, periodNumber, periodLength int64) (ed25519.PublicKey, error) {
	if len(pub) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("public key must be %d bytes, got %d", ed25519.PublicKeySize, len(pub))
	}
	h, err := blindingFactor(pub, periodNumber, periodLength)
	if err != nil {
		return nil, fmt.Errorf("derive blinding factor: %w", err)
	}
	A, err := new(edwards25519.Point).SetBytes(pub)
	if err != nil {
		return nil, fmt.Errorf("decode identity public key: %w", err)
	}
	blinded := new(edwards25519.Point).ScalarMult(h, A).Bytes()
	out := make(ed25519.PublicKey, ed25519.PublicKeySize)
	copy(out, blinded)
	return out, nil
}

// Keypair is a blinded Ed25519 keypair: a scalar private key, its signing
// nonce prefix, and the corresponding point public key. It is not a
// standard ed25519.PrivateKey (a 64-byte seed||pub encoding produced only
// by ed25519.GenerateKey) because the blinding factor is applied directly
// to the identity key's expanded scalar, not to a fresh seed.
type Keypair struct {
	Scalar *edwards25519.Scalar
	Prefix [32]byte
	Public ed25519.PublicKey
}

// Sign signs msg with the blinded private scalar, producing a standard
// Ed25519 (RFC 8032) signature verifiable against Public.
func (k *Keypair) Sign(msg []byte) []byte {
	r := reduceScalar(sha512Sum(k.Prefix[:], msg))
	R := new(edwards25519.Point).ScalarBaseMult(r).Bytes()
	kScalar := reduceScalar(sha512Sum(R, k.Public, msg))
	s := new(edwards25519.Scalar).MultiplyAdd(kScalar, k.Scalar, r)
	sig := make([]byte, ed25519.SignatureSize)
	copy(sig[:32], R)
	copy(sig[32:], s.Bytes())
	return sig
}

// BlindKeypair derives the full blinded keypair (scalar private key and
// public key) for identityPriv under the given time period, so an encoder
// can both sign with and publish the blinded identity.
func BlindKeypair(identityPriv ed25519.PrivateKey, periodNumber, periodLength int64) (*Keypair, error) {
	if len(identityPriv) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("private key must be %d bytes, got %d", ed25519.PrivateKeySize, len(identityPriv))
	}
	pub := identityPriv.Public().(ed25519.PublicKey)

	h, err := blindingFactor(pub, periodNumber, periodLength)
	if err != nil {
		return nil, fmt.Errorf("derive blinding factor: %w", err)
	}

	// Expand the identity seed per RFC 8032 §5.1.5 to get the clamped
	// scalar 'a' (with A = a*B = pub) and the nonce prefix.
	expanded := sha512Sum(identityPriv.Seed())
	a, err := new(edwards25519.Scalar).SetBytesWithClamping(expanded[:32])
	if err != nil {
		return nil, fmt.Errorf("clamp identity scalar: %w", err)
	}

	blindedScalar := new(edwards25519.Scalar).Multiply(h, a)
	blindedPoint := new(edwards25519.Point).ScalarBaseMult(blindedScalar)
	blindedPub := make(ed25519.PublicKey, ed25519.PublicKeySize)
	copy(blindedPub, blindedPoint.Bytes())

	// The nonce prefix must change along with the scalar so that the same
	// message never reuses an (r, R) pair across the identity and blinded
	// signing contexts; derive it from the blinding factor and the
	// identity key's own prefix.
	var prefix [32]byte
	copy(prefix[:], sha512Sum(h.Bytes(), expanded[32:64])[:32])

	return &Keypair{Scalar: blindedScalar, Prefix: prefix, Public: blindedPub}, nil
}

// Subcredential computes N_hs_subcred = SHA3-256("subcredential" |
// SHA3-256("credential" | identity_pubkey) | blinded_pubkey).
func Subcredential(identityPub, blindedPub ed25519.PublicKey) [32]byte {
	cred := sha3.New256()
	cred.Write([]byte("credential"))
	cred.Write(identityPub)
	credSum := cred.Sum(nil)

	sub := sha3.New256()
	sub.Write([]byte("subcredential"))
	sub.Write(credSum)
	sub.Write(blindedPub)
	var out [32]byte
	copy(out[:], sub.Sum(nil))
	return out
}

func sha512Sum(parts ...[]byte) []byte {
	h := sha512.New()
	for _, p := range parts {
		h.Write(p)
	}
	return h.Sum(nil)
}

// reduceScalar reduces a 64-byte uniform value mod the Ed25519 group order.
func reduceScalar(uniform []byte) *edwards25519.Scalar {
	s, err := new(edwards25519.Scalar).SetUniformBytes(uniform)
	if err != nil {
		// SetUniformBytes only fails on a length other than 64, which
		// sha512Sum never produces.
		panic(fmt.Sprintf("reduceScalar: %v", err))
	}
	return s
}
