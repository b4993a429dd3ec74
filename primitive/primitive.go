// Package primitive binds the codec to the handful of cryptographic and
// encoding operations it needs and nowhere implements them itself: Ed25519
// signing, SHA3-256/SHAKE256, base64/base16, AES-CTR, and PEM-like armor.
package primitive

import (
	"crypto"
	"crypto/aes"
	"crypto/cipher"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base32"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/sha3"
)

const cryptoSHA256 = crypto.SHA256

// DigestSHA256 returns the SHA-256 digest of the concatenation of parts, for
// use where a signature scheme (RSA PKCS#1 v1.5) requires that specific
// hash rather than the SHA3-256 used by the rest of the format.
func DigestSHA256(parts ...[]byte) [32]byte {
	h := sha256.New()
	for _, p := range parts {
		h.Write(p)
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// Sign produces an Ed25519 signature over msg under priv.
func Sign(priv ed25519.PrivateKey, msg []byte) []byte {
	return ed25519.Sign(priv, msg)
}

// Verify reports whether sig is a valid Ed25519 signature over msg under pub.
func Verify(pub ed25519.PublicKey, msg, sig []byte) bool {
	if len(pub) != ed25519.PublicKeySize || len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(pub, msg, sig)
}

// Digest256 returns the SHA3-256 digest of the concatenation of parts.
func Digest256(parts ...[]byte) [32]byte {
	h := sha3.New256()
	for _, p := range parts {
		h.Write(p)
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// ShakeKDF derives outLen bytes from SHAKE256 over the concatenation of parts.
func ShakeKDF(outLen int, parts ...[]byte) []byte {
	shake := sha3.NewShake256()
	for _, p := range parts {
		shake.Write(p)
	}
	out := make([]byte, outLen)
	_, _ = shake.Read(out)
	return out
}

// EncodeBase64Std encodes with the standard alphabet and '=' padding, for use
// inside PEM-armored blocks.
func EncodeBase64Std(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

// DecodeBase64Std decodes a standard, padded base64 string.
func DecodeBase64Std(s string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("base64 decode: %w", err)
	}
	return b, nil
}

// EncodeBase64Raw encodes with the standard alphabet and no padding, for
// inline tokens (signature, link-specifier list).
func EncodeBase64Raw(b []byte) string {
	return base64.RawStdEncoding.EncodeToString(b)
}

// DecodeBase64Raw decodes an unpadded standard base64 string. Adversarial
// input may still carry padding or use the std encoding; both are accepted
// since the grammar (§4.6) only constrains what the encoder emits.
func DecodeBase64Raw(s string) ([]byte, error) {
	if b, err := base64.RawStdEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("base64 decode: %w", err)
	}
	return b, nil
}

// EncodeHex returns the lowercase base16 encoding of b.
func EncodeHex(b []byte) string {
	return hex.EncodeToString(b)
}

// DecodeHex decodes a base16 string, case-insensitively.
func DecodeHex(s string) ([]byte, error) {
	b, err := hex.DecodeString(strings.ToLower(s))
	if err != nil {
		return nil, fmt.Errorf("hex decode: %w", err)
	}
	return b, nil
}

// EncodeBase32NoPad returns the lower-case, unpadded base32 encoding of b,
// as used by .onion addresses.
func EncodeBase32NoPad(b []byte) string {
	return strings.ToLower(base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(b))
}

// DecodeBase32NoPad decodes an unpadded base32 string, case-insensitively.
func DecodeBase32NoPad(s string) ([]byte, error) {
	b, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(strings.ToUpper(s))
	if err != nil {
		return nil, fmt.Errorf("base32 decode: %w", err)
	}
	return b, nil
}

// Armor wraps der in a PEM-like block with the exact header/footer the
// grammar requires: "-----BEGIN <blockType>-----" / "-----END <blockType>-----".
func Armor(blockType string, der []byte) string {
	block := &pem.Block{Type: blockType, Bytes: der}
	return string(pem.EncodeToMemory(block))
}

// Dearmor parses a single PEM-like block of the expected type from the
// start of text and returns its decoded bytes and the unconsumed remainder.
// It rejects a mismatched header/footer type.
func Dearmor(blockType, text string) (der []byte, rest string, err error) {
	if !strings.HasPrefix(text, "-----BEGIN ") {
		return nil, "", fmt.Errorf("data before PEM block header")
	}
	block, remainder := pem.Decode([]byte(text))
	if block == nil {
		return nil, "", fmt.Errorf("no PEM block found")
	}
	if block.Type != blockType {
		return nil, "", fmt.Errorf("PEM block type %q, want %q", block.Type, blockType)
	}
	return block.Bytes, string(remainder), nil
}

// StreamXOR runs AES-256-CTR over data under key and iv, returning the
// keystream-XORed result. It is the "authenticated stream cipher" of §4.7;
// authentication itself is layered on top via a separate MAC (package
// envelope), matching the teacher's encrypt-then-MAC construction.
func StreamXOR(key [32]byte, iv [16]byte, data []byte) ([]byte, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("create AES cipher: %w", err)
	}
	stream := cipher.NewCTR(block, iv[:])
	out := make([]byte, len(data))
	stream.XORKeyStream(out, data)
	return out, nil
}

// GenerateCurve25519Keypair draws a fresh Curve25519 keypair from rnd, used
// to synthesize an `ntor` encryption key for introduction-point fixtures.
func GenerateCurve25519Keypair(rnd io.Reader) (priv, pub [32]byte, err error) {
	if _, err = io.ReadFull(rnd, priv[:]); err != nil {
		return priv, pub, fmt.Errorf("generate curve25519 private key: %w", err)
	}
	pubBytes, err := curve25519.X25519(priv[:], curve25519.Basepoint)
	if err != nil {
		return priv, pub, fmt.Errorf("compute curve25519 public key: %w", err)
	}
	copy(pub[:], pubBytes)
	return priv, pub, nil
}

// SignRSASHA256 signs digest's SHA-256 hash with an RSA private key using
// PKCS#1 v1.5, used by the legacy cross-certificate (§4.3).
func SignRSASHA256(priv *rsa.PrivateKey, digest [32]byte, rnd io.Reader) ([]byte, error) {
	sig, err := rsa.SignPKCS1v15(rnd, priv, cryptoSHA256, digest[:])
	if err != nil {
		return nil, fmt.Errorf("rsa sign: %w", err)
	}
	return sig, nil
}

// VerifyRSASHA256 verifies an RSA PKCS#1 v1.5 signature over digest.
func VerifyRSASHA256(pub *rsa.PublicKey, digest [32]byte, sig []byte) bool {
	return rsa.VerifyPKCS1v15(pub, cryptoSHA256, digest[:], sig) == nil
}
