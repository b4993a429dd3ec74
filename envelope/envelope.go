// Package envelope implements the descriptor's "authenticated stream
// cipher" envelope (§4.7): zero-padding to a fixed quantum, SHAKE256 key
// derivation, AES-256-CTR encryption, and a length-prefixed SHA3-256 MAC.
// Grounded on the teacher's onion/decrypt.go DecryptDescriptorLayer, which
// derives its secret_input from SECRET_DATA | subcredential |
// INT_8(revision_counter). This format's KDF input is SECRET_DATA only
// (the blinded identity public key) — a deliberate simplification of the
// real two-layer protocol's key derivation to this format's single-layer
// design; subcredential and revision-counter binding is intentionally not
// mixed into the ciphertext and is left for a future client-auth variant.
package envelope

import (
	"crypto/ed25519"
	"crypto/subtle"
	"encoding/binary"
	"io"

	"github.com/cvsouth/hsdesc/errkind"
	"github.com/cvsouth/hsdesc/primitive"
	"golang.org/x/crypto/sha3"
)

const (
	// PaddingQuantum is the padding unit plaintext is rounded up to before
	// encryption (§4.7).
	PaddingQuantum = 10_000

	secretKeyLen = 32 // AES-256
	secretIVLen  = 16 // AES-CTR IV
	macKeyLen    = 32
	saltLen      = 16
	macLen       = 32 // SHA3-256 output
	totalKeyLen  = secretKeyLen + secretIVLen + macKeyLen
)

// Pad rounds plaintext up to the next multiple of PaddingQuantum with zero
// bytes. Callers must never pass an empty plaintext (every real inner
// section carries a mandatory create2-formats directive).
func Pad(plaintext []byte) []byte {
	if len(plaintext) == 0 {
		return nil
	}
	target := ((len(plaintext) + PaddingQuantum - 1) / PaddingQuantum) * PaddingQuantum
	out := make([]byte, target)
	copy(out, plaintext)
	return out
}

// TrimPadding strips the trailing zero bytes Pad added. The inner section
// is a text grammar that never itself contains a zero byte, so this is
// unambiguous.
func TrimPadding(padded []byte) []byte {
	i := len(padded)
	for i > 0 && padded[i-1] == 0 {
		i--
	}
	return padded[:i]
}

// EncryptedDataLengthIsValid reports whether n is a size the envelope could
// have produced: at least one full padding quantum plus framing, and an
// exact multiple of the quantum once framing is removed, and no larger than
// max (the caller's overall descriptor size ceiling).
func EncryptedDataLengthIsValid(n, max int) bool {
	if n < saltLen+macLen+PaddingQuantum {
		return false
	}
	if (n-saltLen-macLen)%PaddingQuantum != 0 {
		return false
	}
	return n <= max
}

// Encrypt pads plaintext, draws a fresh salt from rnd, derives keys from
// blindedPub and domainString, and returns salt || ciphertext || MAC.
func Encrypt(rnd io.Reader, blindedPub ed25519.PublicKey, domainString string, plaintext []byte) ([]byte, error) {
	padded := Pad(plaintext)
	if padded == nil {
		return nil, errkind.New(errkind.Malformed, "cannot encrypt empty plaintext")
	}

	var salt [saltLen]byte
	if _, err := io.ReadFull(rnd, salt[:]); err != nil {
		return nil, errkind.Wrap(errkind.Malformed, "draw envelope salt", err)
	}

	secretKey, secretIV, macKey := deriveKeys(blindedPub, salt[:], domainString)

	ciphertext, err := primitive.StreamXOR(secretKey, secretIV, padded)
	if err != nil {
		return nil, errkind.Wrap(errkind.BadEnvelope, "encrypt envelope", err)
	}

	mac := computeMAC(macKey, salt[:], ciphertext)

	out := make([]byte, 0, saltLen+len(ciphertext)+macLen)
	out = append(out, salt[:]...)
	out = append(out, ciphertext...)
	out = append(out, mac...)
	return out, nil
}

// Decrypt verifies the MAC (constant-time) and decrypts the envelope,
// returning the still-padded plaintext — callers strip padding with
// TrimPadding once they've decided what to do with it.
func Decrypt(blindedPub ed25519.PublicKey, domainString string, encrypted []byte) ([]byte, error) {
	if len(encrypted) < saltLen+macLen+1 {
		return nil, errkind.Newf(errkind.BadEnvelope, "envelope too short: %d bytes", len(encrypted))
	}

	salt := encrypted[:saltLen]
	ciphertext := encrypted[saltLen : len(encrypted)-macLen]
	mac := encrypted[len(encrypted)-macLen:]

	secretKey, secretIV, macKey := deriveKeys(blindedPub, salt, domainString)

	expectedMAC := computeMAC(macKey, salt, ciphertext)
	if subtle.ConstantTimeCompare(expectedMAC, mac) != 1 {
		return nil, errkind.New(errkind.BadEnvelope, "envelope MAC verification failed")
	}

	plaintext, err := primitive.StreamXOR(secretKey, secretIV, ciphertext)
	if err != nil {
		return nil, errkind.Wrap(errkind.BadEnvelope, "decrypt envelope", err)
	}
	return plaintext, nil
}

func deriveKeys(blindedPub ed25519.PublicKey, salt []byte, domainString string) (secretKey [secretKeyLen]byte, secretIV [secretIVLen]byte, macKey [macKeyLen]byte) {
	kdfInput := make([]byte, 0, len(blindedPub)+len(salt)+len(domainString))
	kdfInput = append(kdfInput, blindedPub...)
	kdfInput = append(kdfInput, salt...)
	kdfInput = append(kdfInput, []byte(domainString)...)

	keys := make([]byte, totalKeyLen)
	shake := sha3.NewShake256()
	shake.Write(kdfInput)
	_, _ = shake.Read(keys)

	copy(secretKey[:], keys[:secretKeyLen])
	copy(secretIV[:], keys[secretKeyLen:secretKeyLen+secretIVLen])
	copy(macKey[:], keys[secretKeyLen+secretIVLen:])
	return secretKey, secretIV, macKey
}

// computeMAC is D_MAC = SHA3-256(mac_key_len | MAC_KEY | salt_len | SALT | ciphertext),
// with lengths as 8-byte big-endian integers, matching the teacher's
// construction exactly.
func computeMAC(macKey, salt, ciphertext []byte) []byte {
	h := sha3.New256()
	var lenBuf [8]byte
	binary.BigEndian.PutUint64(lenBuf[:], uint64(len(macKey)))
	h.Write(lenBuf[:])
	h.Write(macKey)
	binary.BigEndian.PutUint64(lenBuf[:], uint64(len(salt)))
	h.Write(lenBuf[:])
	h.Write(salt)
	h.Write(ciphertext)
	return h.Sum(nil)
}
