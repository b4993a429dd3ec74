// Package hsdesc is the top-level codec for an onion-service descriptor
// document: the outer signed plaintext envelope wrapping an encrypted
// inner section. Grounded on the teacher's onion/descriptor.go
// (EncodeDescriptor/ParseDescriptor), generalized from a fixed two-layer
// (superencrypted+encrypted) reader tied to one hardcoded certificate
// chain into a single-layer encode+decode orchestrator that sequences
// envelope, inner, intropoint, and cert validation and enforces the
// cross-layer invariants of §3.
//
// Decoding moves through the stages start -> outerParsed ->
// signatureVerified -> envelopeOpened -> innerParsed -> done; any error
// at any stage aborts with a Kind-tagged error and no descriptor is ever
// returned alongside one.
package hsdesc

import (
	"crypto/ed25519"
	"io"
	"strconv"
	"strings"

	"github.com/cvsouth/hsdesc/cert"
	"github.com/cvsouth/hsdesc/envelope"
	"github.com/cvsouth/hsdesc/errkind"
	"github.com/cvsouth/hsdesc/innerdesc"
	"github.com/cvsouth/hsdesc/primitive"
)

// Kind re-exports the error taxonomy so callers never need to import
// errkind directly.
type Kind = errkind.Kind

const (
	KindMalformed          = errkind.Malformed
	KindUnsupportedVersion = errkind.UnsupportedVersion
	KindTooLarge           = errkind.TooLarge
	KindBadSignature       = errkind.BadSignature
	KindBadCertificate     = errkind.BadCertificate
	KindExpired            = errkind.Expired
	KindBadEnvelope        = errkind.BadEnvelope
	KindBadIntroPoint      = errkind.BadIntroPoint
	KindUnknownKeyType     = errkind.UnknownKeyType
)

const (
	// MinVersion and MaxVersion bound the descriptor versions this codec
	// understands. Both compiled to 3, matching the only version this
	// format's source protocol ever defined.
	MinVersion = 3
	MaxVersion = 3

	// MaxDescriptorLen is the maximum size, in bytes, of an encoded
	// descriptor's text form.
	MaxDescriptorLen = 50 * 1024

	// MaxLifetimeMinutes is the inclusive ceiling on descriptor-lifetime (12 hours).
	MaxLifetimeMinutes = 720

	signatureDomainPrefix = "Tor onion service descriptor sig v3"
	envelopeDomainString  = "hsdesc-encrypted-data"
)

const (
	directiveVersion         = "hs-descriptor "
	directiveLifetime        = "descriptor-lifetime "
	directiveSigningKeyCert  = "descriptor-signing-key-cert"
	directiveRevisionCounter = "revision-counter "
	directiveEncrypted       = "encrypted"
	directiveSignature       = "signature "
)

// Descriptor is the outer, plaintext-visible part of a descriptor
// document. SigningKeyCert's Issuer field carries the blinded service
// public key; its Subject field carries SigningPub.
type Descriptor struct {
	Version         int
	LifetimeMinutes int
	RevisionCounter uint64
	SigningPub      ed25519.PublicKey
	BlindedPub      ed25519.PublicKey
	SigningKeyCert  *cert.Cert

	// EncryptedBlob and Signature are populated only transiently, during
	// Encode or immediately after Decode; callers should not rely on them
	// surviving independent of the object that produced them.
	EncryptedBlob []byte
	Signature     [ed25519.SignatureSize]byte
}

// IsSupportedVersion reports whether v falls within the inclusive
// compiled-in supported range.
func IsSupportedVersion(v int) bool {
	return v >= MinVersion && v <= MaxVersion
}

// EncryptedDataLengthIsValid reports whether n is a size the crypto
// envelope could have produced for a descriptor no larger than
// MaxDescriptorLen.
func EncryptedDataLengthIsValid(n int) bool {
	return envelope.EncryptedDataLengthIsValid(n, MaxDescriptorLen)
}

// Encode serializes d and inner into the signed, armored descriptor text.
// The encrypted blob is produced first, then the prefix is assembled, then
// the signature is computed last — sign-then-encrypt is never permitted.
func Encode(d *Descriptor, inner *innerdesc.Section, signingPriv ed25519.PrivateKey, rnd io.Reader) (string, error) {
	if !IsSupportedVersion(d.Version) {
		return "", errkind.Newf(errkind.UnsupportedVersion, "unsupported descriptor version %d", d.Version)
	}
	if d.LifetimeMinutes <= 0 || d.LifetimeMinutes > MaxLifetimeMinutes {
		return "", errkind.Newf(errkind.Malformed, "descriptor-lifetime %d out of range", d.LifetimeMinutes)
	}
	if pub, ok := signingPriv.Public().(ed25519.PublicKey); !ok || !pub.Equal(d.SigningPub) {
		return "", errkind.New(errkind.Malformed, "signing private key does not match descriptor signing public key")
	}

	innerText, err := innerdesc.Encode(inner)
	if err != nil {
		return "", err
	}
	blob, err := envelope.Encrypt(rnd, d.BlindedPub, envelopeDomainString, []byte(innerText))
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(directiveVersion)
	b.WriteString(strconv.Itoa(d.Version))
	b.WriteByte('\n')
	b.WriteString(directiveLifetime)
	b.WriteString(strconv.Itoa(d.LifetimeMinutes))
	b.WriteByte('\n')
	b.WriteString(directiveSigningKeyCert)
	b.WriteByte('\n')
	b.WriteString(d.SigningKeyCert.Armor())
	b.WriteString(directiveRevisionCounter)
	b.WriteString(strconv.FormatUint(d.RevisionCounter, 10))
	b.WriteByte('\n')
	b.WriteString(directiveEncrypted)
	b.WriteByte('\n')
	b.WriteString(primitive.Armor("MESSAGE", blob))

	signedRange := b.String()
	sig := primitive.Sign(signingPriv, append([]byte(signatureDomainPrefix), signedRange...))

	b.WriteString(directiveSignature)
	b.WriteString(primitive.EncodeBase64Raw(sig))
	b.WriteByte('\n')

	out := b.String()
	if len(out) > MaxDescriptorLen {
		return "", errkind.New(errkind.TooLarge, "descriptor exceeds maximum length")
	}

	d.EncryptedBlob = blob
	copy(d.Signature[:], sig)
	return out, nil
}

// Decode parses, verifies, and decrypts a descriptor document. subcredential
// is reserved for a future client-authenticated decode path; it is accepted
// but not yet consulted by any check this codec performs.
func Decode(text string, subcredential []byte, nowUnix int64) (*Descriptor, *innerdesc.Section, error) {
	if len(text) > MaxDescriptorLen {
		return nil, nil, errkind.Newf(errkind.TooLarge, "descriptor is %d bytes, exceeds maximum", len(text))
	}

	// stage: outerParsed
	line, rest, ok := cutLine(text)
	if !ok || !strings.HasPrefix(line, directiveVersion) {
		return nil, nil, errkind.New(errkind.Malformed, "missing hs-descriptor directive")
	}
	version, err := parseNonNegativeInt(strings.TrimPrefix(line, directiveVersion))
	if err != nil {
		return nil, nil, errkind.Wrap(errkind.Malformed, "parse hs-descriptor version", err)
	}
	if !IsSupportedVersion(version) {
		return nil, nil, errkind.Newf(errkind.UnsupportedVersion, "unsupported descriptor version %d", version)
	}

	line, rest, ok = cutLine(rest)
	if !ok || !strings.HasPrefix(line, directiveLifetime) {
		return nil, nil, errkind.New(errkind.Malformed, "missing descriptor-lifetime directive")
	}
	lifetime, err := parseNonNegativeInt(strings.TrimPrefix(line, directiveLifetime))
	if err != nil || lifetime <= 0 || lifetime > MaxLifetimeMinutes {
		return nil, nil, errkind.New(errkind.Malformed, "descriptor-lifetime out of range")
	}

	line, rest, ok = cutLine(rest)
	if !ok || line != directiveSigningKeyCert {
		return nil, nil, errkind.New(errkind.Malformed, "missing descriptor-signing-key-cert directive")
	}
	signingCert, rest, err := cert.ParseArmored(rest)
	if err != nil {
		return nil, nil, err
	}

	line, rest, ok = cutLine(rest)
	if !ok || !strings.HasPrefix(line, directiveRevisionCounter) {
		return nil, nil, errkind.New(errkind.Malformed, "missing revision-counter directive")
	}
	revCounterToken := strings.TrimPrefix(line, directiveRevisionCounter)
	if revCounterToken == "" || (len(revCounterToken) > 1 && revCounterToken[0] == '0') {
		return nil, nil, errkind.New(errkind.Malformed, "revision-counter has leading zero or is empty")
	}
	revCounter, err := strconv.ParseUint(revCounterToken, 10, 64)
	if err != nil {
		return nil, nil, errkind.Wrap(errkind.Malformed, "parse revision-counter", err)
	}

	line, rest, ok = cutLine(rest)
	if !ok || line != directiveEncrypted {
		return nil, nil, errkind.New(errkind.Malformed, "missing encrypted directive")
	}

	// The signed range covers everything up to and including the newline
	// just before the signature line.
	blob, afterBlob, err := primitive.Dearmor("MESSAGE", rest)
	if err != nil {
		return nil, nil, errkind.Wrap(errkind.Malformed, "parse encrypted MESSAGE block", err)
	}
	signedRange := text[:len(text)-len(afterBlob)]

	line, rest, ok = cutLine(afterBlob)
	if !ok || !strings.HasPrefix(line, directiveSignature) {
		return nil, nil, errkind.New(errkind.Malformed, "missing signature directive")
	}
	if rest != "" {
		return nil, nil, errkind.New(errkind.Malformed, "trailing data after signature line")
	}
	sigBytes, err := primitive.DecodeBase64Raw(strings.TrimPrefix(line, directiveSignature))
	if err != nil || len(sigBytes) != ed25519.SignatureSize {
		return nil, nil, errkind.New(errkind.Malformed, "malformed signature token")
	}

	// stage: signatureVerified
	if !primitive.Verify(signingCert.Subject, append([]byte(signatureDomainPrefix), signedRange...), sigBytes) {
		return nil, nil, errkind.New(errkind.BadSignature, "descriptor signature verification failed")
	}

	if err := signingCert.Verify(nowUnix, cert.PurposeSigningKey, nil, nil); err != nil {
		return nil, nil, err
	}

	// stage: envelopeOpened
	if !EncryptedDataLengthIsValid(len(blob)) {
		return nil, nil, errkind.New(errkind.BadEnvelope, "encrypted blob has an invalid length")
	}
	padded, err := envelope.Decrypt(signingCert.Issuer, envelopeDomainString, blob)
	if err != nil {
		return nil, nil, err
	}

	// stage: innerParsed
	inner, err := innerdesc.Decode(string(envelope.TrimPadding(padded)))
	if err != nil {
		return nil, nil, err
	}
	for _, ip := range inner.IntroPoints {
		if err := ip.VerifyCerts(nowUnix, signingCert.Subject, signingCert.Issuer); err != nil {
			return nil, nil, err
		}
	}

	// stage: done
	d := &Descriptor{
		Version:         version,
		LifetimeMinutes: lifetime,
		RevisionCounter: revCounter,
		SigningPub:      append(ed25519.PublicKey(nil), signingCert.Subject...),
		BlindedPub:      append(ed25519.PublicKey(nil), signingCert.Issuer...),
		SigningKeyCert:  signingCert,
		EncryptedBlob:   blob,
	}
	copy(d.Signature[:], sigBytes)
	return d, inner, nil
}

func parseNonNegativeInt(s string) (int, error) {
	if s == "" || (len(s) > 1 && s[0] == '0') {
		return 0, errkind.New(errkind.Malformed, "leading zero or empty integer token")
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, errkind.New(errkind.Malformed, "invalid integer token")
	}
	return n, nil
}

// cutLine splits text at the first newline, returning the line (without
// the terminator) and the remainder. ok is false if text is empty.
func cutLine(text string) (line, rest string, ok bool) {
	if text == "" {
		return "", "", false
	}
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		return text[:i], text[i+1:], true
	}
	return text, "", true
}
