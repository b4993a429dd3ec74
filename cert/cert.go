// Package cert implements the Ed25519 "Tor certificate" binary shape used
// by the descriptor's three certificate purposes (§4.3), and the distinct
// legacy RSA cross-certificate used by legacy encryption keys. Grounded on
// the teacher's link/certs.go (parseTorCert/verify), generalized from a
// decode-only CERTS-cell validator tied to two hardwired cert types into a
// build+parse+verify codec parameterized over purpose.
package cert

import (
	"crypto/ed25519"
	"crypto/rsa"
	"encoding/binary"
	"fmt"

	"github.com/cvsouth/hsdesc/errkind"
	"github.com/cvsouth/hsdesc/primitive"
)

// Purpose identifies what a certificate binds, per the table in spec.md §4.3.
type Purpose uint8

const (
	// PurposeSigningKey binds a descriptor signing key (subject) to the
	// blinded service key (issuer). Used once, in the outer envelope.
	PurposeSigningKey Purpose = 8
	// PurposeIntroAuthKey binds an introduction-point authentication key
	// (subject) to the descriptor signing key (issuer). One per intro point.
	PurposeIntroAuthKey Purpose = 9
	// PurposeIntroEncKey binds an introduction-point curve25519 encryption
	// key (subject) to the descriptor signing key (issuer). One per intro
	// point with an elliptic-curve encryption key.
	PurposeIntroEncKey Purpose = 11
)

const (
	keyTypeEd25519    = 1
	extTypeSigningKey = 0x04
	extFlagCritical   = 0x01
	sigLen            = ed25519.SignatureSize
	minCertLen        = 1 + 1 + 4 + 1 + ed25519.PublicKeySize + 1 + sigLen
)

// Cert is a parsed Ed25519 certificate. Raw retains exactly the bytes the
// signature was computed over, so it can be re-verified without
// re-serializing (invariant 4e in spec.md §3).
type Cert struct {
	Purpose     Purpose
	ExpiryHours uint32 // hours since the Unix epoch
	Subject     ed25519.PublicKey
	Issuer      ed25519.PublicKey // from the signing-key extension; nil if absent
	Signature   [sigLen]byte
	Raw         []byte // header + extensions, not including the signature
}

// Build constructs and signs a new certificate of the given purpose,
// embedding the issuer's public key as the signing-key extension (every
// certificate this format uses carries that extension per invariant 4b).
func Build(purpose Purpose, subject, issuer ed25519.PublicKey, expiryHours uint32, sign func(msg []byte) []byte) (*Cert, error) {
	if len(subject) != ed25519.PublicKeySize || len(issuer) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("cert: subject and issuer keys must be %d bytes", ed25519.PublicKeySize)
	}

	raw := make([]byte, 0, minCertLen-sigLen+2+2+ed25519.PublicKeySize)
	raw = append(raw, 1)           // version
	raw = append(raw, byte(purpose))
	var expBuf [4]byte
	binary.BigEndian.PutUint32(expBuf[:], expiryHours)
	raw = append(raw, expBuf[:]...)
	raw = append(raw, keyTypeEd25519)
	raw = append(raw, subject...)
	raw = append(raw, 1) // one extension: the signing key
	var extLen [2]byte
	binary.BigEndian.PutUint16(extLen[:], uint16(len(issuer)))
	raw = append(raw, extLen[0], extLen[1], extTypeSigningKey, extFlagCritical)
	raw = append(raw, issuer...)

	sig := sign(raw)
	if len(sig) != sigLen {
		return nil, fmt.Errorf("cert: signer produced %d-byte signature, want %d", len(sig), sigLen)
	}

	c := &Cert{Purpose: purpose, ExpiryHours: expiryHours, Subject: append(ed25519.PublicKey(nil), subject...), Issuer: append(ed25519.PublicKey(nil), issuer...), Raw: raw}
	copy(c.Signature[:], sig)
	return c, nil
}

// Encode returns the full binary certificate (header + extensions + signature).
func (c *Cert) Encode() []byte {
	out := make([]byte, 0, len(c.Raw)+sigLen)
	out = append(out, c.Raw...)
	out = append(out, c.Signature[:]...)
	return out
}

// Armor returns the certificate as a "-----BEGIN ED25519 CERT-----" PEM block.
func (c *Cert) Armor() string {
	return primitive.Armor("ED25519 CERT", c.Encode())
}

// Parse decodes a raw binary certificate. It does not verify the signature
// or check expiration; call Verify for that.
func Parse(data []byte) (*Cert, error) {
	if len(data) < minCertLen {
		return nil, errkind.Newf(errkind.Malformed, "certificate too short: %d bytes", len(data))
	}
	if data[0] != 1 {
		return nil, errkind.Newf(errkind.Malformed, "unsupported certificate version %d", data[0])
	}

	c := &Cert{
		Purpose:     Purpose(data[1]),
		ExpiryHours: binary.BigEndian.Uint32(data[2:6]),
	}
	keyType := data[6]
	if keyType != keyTypeEd25519 {
		return nil, errkind.Newf(errkind.Malformed, "unsupported certified-key type %d", keyType)
	}
	c.Subject = append(ed25519.PublicKey(nil), data[7:7+ed25519.PublicKeySize]...)

	pos := 7 + ed25519.PublicKeySize
	if pos >= len(data) {
		return nil, errkind.New(errkind.Malformed, "certificate truncated before extension count")
	}
	nExt := data[pos]
	pos++

	for i := 0; i < int(nExt); i++ {
		if pos+4 > len(data)-sigLen {
			return nil, errkind.New(errkind.Malformed, "certificate extension overflows body")
		}
		extLen := int(binary.BigEndian.Uint16(data[pos:]))
		extType := data[pos+2]
		extFlags := data[pos+3]
		pos += 4
		if pos+extLen > len(data)-sigLen {
			return nil, errkind.New(errkind.Malformed, "certificate extension data overflows body")
		}
		extData := data[pos : pos+extLen]
		switch {
		case extType == extTypeSigningKey && extLen == ed25519.PublicKeySize:
			c.Issuer = append(ed25519.PublicKey(nil), extData...)
		case extFlags&extFlagCritical != 0:
			return nil, errkind.Newf(errkind.Malformed, "unrecognized critical certificate extension type 0x%02x", extType)
		}
		pos += extLen
	}

	if pos != len(data)-sigLen {
		return nil, errkind.New(errkind.Malformed, "trailing data after certificate extensions")
	}

	c.Raw = append([]byte(nil), data[:pos]...)
	copy(c.Signature[:], data[pos:])
	return c, nil
}

// ParseArmored parses a single "-----BEGIN ED25519 CERT-----" PEM block
// from the start of text and returns the unconsumed remainder.
func ParseArmored(text string) (*Cert, string, error) {
	der, rest, err := primitive.Dearmor("ED25519 CERT", text)
	if err != nil {
		return nil, "", errkind.Wrap(errkind.Malformed, "parse ED25519 CERT block", err)
	}
	c, err := Parse(der)
	if err != nil {
		return nil, "", err
	}
	return c, rest, nil
}

// Verify checks invariant 4 (spec.md §3) for a certificate used in context:
// correct purpose, signing-key extension present and equal to issuer (if
// issuer is non-nil), subject equal to wantSubject (if non-nil), a valid
// signature, and non-expiration as of nowUnix.
func (c *Cert) Verify(nowUnix int64, wantPurpose Purpose, wantSubject, issuer ed25519.PublicKey) error {
	if c.Purpose != wantPurpose {
		return errkind.Newf(errkind.BadCertificate, "certificate purpose %d, want %d", c.Purpose, wantPurpose)
	}
	if c.Issuer == nil {
		return errkind.New(errkind.BadCertificate, "certificate missing signing-key extension")
	}
	if wantSubject != nil && !publicKeyEqual(c.Subject, wantSubject) {
		return errkind.New(errkind.BadCertificate, "certificate subject does not match context")
	}
	if issuer != nil && !publicKeyEqual(c.Issuer, issuer) {
		return errkind.New(errkind.BadCertificate, "certificate issuer does not match context")
	}
	if !primitive.Verify(c.Issuer, c.Raw, c.Signature[:]) {
		return errkind.New(errkind.BadCertificate, "certificate signature verification failed")
	}
	expiresAt := int64(c.ExpiryHours) * 3600
	if nowUnix >= expiresAt {
		return errkind.New(errkind.Expired, "certificate expired")
	}
	return nil
}

func publicKeyEqual(a, b ed25519.PublicKey) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// CrossCert is the legacy cross-certificate (§4.3): a signature computed
// by a legacy RSA encryption key over the blinded identity key and an
// expiration, so the legacy key's holder can prove consent to being bound
// under the blinded identity. Its verification mirrors Cert.Verify but
// uses the legacy RSA primitive instead of Ed25519.
type CrossCert struct {
	ExpiryHours uint32
	Signature   []byte
}

// BuildCrossCert signs the blinded identity key and expiration with a
// legacy RSA private key.
func BuildCrossCert(legacyPriv *rsa.PrivateKey, blindedPub ed25519.PublicKey, expiryHours uint32, rnd interface {
	Read([]byte) (int, error)
}) (*CrossCert, error) {
	digest := crossCertDigest(blindedPub, expiryHours)
	sig, err := primitive.SignRSASHA256(legacyPriv, digest, rnd)
	if err != nil {
		return nil, fmt.Errorf("cross-certificate: %w", err)
	}
	return &CrossCert{ExpiryHours: expiryHours, Signature: sig}, nil
}

// Verify checks the cross-certificate's signature and expiration.
func (cc *CrossCert) Verify(nowUnix int64, legacyPub *rsa.PublicKey, blindedPub ed25519.PublicKey) error {
	digest := crossCertDigest(blindedPub, cc.ExpiryHours)
	if !primitive.VerifyRSASHA256(legacyPub, digest, cc.Signature) {
		return errkind.New(errkind.BadCertificate, "cross-certificate signature verification failed")
	}
	if nowUnix >= int64(cc.ExpiryHours)*3600 {
		return errkind.New(errkind.Expired, "cross-certificate expired")
	}
	return nil
}

// Encode returns the cross-certificate's binary form: expiry(4) || signature.
func (cc *CrossCert) Encode() []byte {
	out := make([]byte, 4, 4+len(cc.Signature))
	binary.BigEndian.PutUint32(out, cc.ExpiryHours)
	return append(out, cc.Signature...)
}

// ParseCrossCert decodes a cross-certificate's binary form.
func ParseCrossCert(data []byte) (*CrossCert, error) {
	if len(data) < 5 {
		return nil, errkind.New(errkind.Malformed, "cross-certificate too short")
	}
	return &CrossCert{
		ExpiryHours: binary.BigEndian.Uint32(data[:4]),
		Signature:   append([]byte(nil), data[4:]...),
	}, nil
}

// Armor returns the cross-certificate as a "-----BEGIN CROSSCERT-----" block.
func (cc *CrossCert) Armor() string {
	return primitive.Armor("CROSSCERT", cc.Encode())
}

// ParseArmoredCrossCert parses a single "-----BEGIN CROSSCERT-----" block
// from the start of text and returns the unconsumed remainder.
func ParseArmoredCrossCert(text string) (*CrossCert, string, error) {
	der, rest, err := primitive.Dearmor("CROSSCERT", text)
	if err != nil {
		return nil, "", errkind.Wrap(errkind.Malformed, "parse CROSSCERT block", err)
	}
	cc, err := ParseCrossCert(der)
	if err != nil {
		return nil, "", err
	}
	return cc, rest, nil
}

func crossCertDigest(blindedPub ed25519.PublicKey, expiryHours uint32) [32]byte {
	var expBuf [4]byte
	binary.BigEndian.PutUint32(expBuf[:], expiryHours)
	return primitive.DigestSHA256(blindedPub, expBuf[:])
}
