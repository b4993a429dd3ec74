// Package intropoint encodes and decodes a single introduction-point record
// (§4.4): its link specifiers, authentication-key certificate, encryption
// key, and encryption-key certification. Grounded on the teacher's
// onion/intropoint.go (parseIntroPoints/extractCert), generalized from a
// best-effort decode-only reader (onion-key line kept only for the ntor
// circuit-extend handshake, no encoder, unknown sub-directives ignored)
// into a build+parse codec covering both key variants and rejecting a
// record outright on any malformed or duplicate sub-directive.
package intropoint

import (
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/x509"
	"fmt"
	"strings"

	"github.com/cvsouth/hsdesc/cert"
	"github.com/cvsouth/hsdesc/errkind"
	"github.com/cvsouth/hsdesc/linkspec"
	"github.com/cvsouth/hsdesc/primitive"
)

// EncKeyVariant distinguishes the two encryption-key shapes an introduction
// point may carry.
type EncKeyVariant int

const (
	EncKeyNtor EncKeyVariant = iota
	EncKeyLegacy
)

func (v EncKeyVariant) String() string {
	if v == EncKeyLegacy {
		return "legacy"
	}
	return "ntor"
}

// IntroPoint is one parsed or to-be-encoded introduction-point record.
type IntroPoint struct {
	LinkSpecifiers []linkspec.Spec
	AuthKeyCert    *cert.Cert // purpose B: descriptor signing key -> intro auth key

	EncKeyVariant EncKeyVariant
	NtorKey       [32]byte        // set iff EncKeyVariant == EncKeyNtor
	LegacyKey     *rsa.PublicKey  // set iff EncKeyVariant == EncKeyLegacy

	// EncKeyCert is the purpose-C certificate binding NtorKey to the
	// descriptor signing key; set iff EncKeyVariant == EncKeyNtor
	// (invariant 6, spec.md §3).
	EncKeyCert *cert.Cert
	// LegacyCrossCert binds LegacyKey to the blinded identity key; set iff
	// EncKeyVariant == EncKeyLegacy.
	LegacyCrossCert *cert.CrossCert
}

// Validate checks invariant 5 (spec.md §3): at least one link specifier,
// exactly one auth-key certificate, exactly one encryption key. Per the
// open question in spec.md §9, a lone non-reachable link specifier (e.g.
// legacy-identity only) is accepted — the spec requires a link specifier
// to be present, not that it be reachable.
func (ip *IntroPoint) Validate() error {
	if len(ip.LinkSpecifiers) == 0 {
		return errkind.New(errkind.BadIntroPoint, "introduction point has no link specifiers")
	}
	if ip.AuthKeyCert == nil {
		return errkind.New(errkind.BadIntroPoint, "introduction point missing auth-key certificate")
	}
	switch ip.EncKeyVariant {
	case EncKeyNtor:
		if ip.EncKeyCert == nil {
			return errkind.New(errkind.BadIntroPoint, "introduction point with ntor enc-key missing enc-key-certification")
		}
	case EncKeyLegacy:
		if ip.LegacyKey == nil {
			return errkind.New(errkind.BadIntroPoint, "introduction point missing legacy enc-key")
		}
		if ip.LegacyCrossCert == nil {
			return errkind.New(errkind.BadIntroPoint, "introduction point with legacy enc-key missing cross-certificate")
		}
	default:
		return errkind.New(errkind.UnknownKeyType, "unrecognized encryption key variant")
	}
	return nil
}

// VerifyCerts checks invariant 6: the auth-key and (curve variant) enc-key
// certificates verify against the descriptor signing key, and (legacy
// variant) the cross-certificate verifies against the blinded identity key.
func (ip *IntroPoint) VerifyCerts(nowUnix int64, signingKey, blindedKey ed25519.PublicKey) error {
	if err := ip.AuthKeyCert.Verify(nowUnix, cert.PurposeIntroAuthKey, nil, signingKey); err != nil {
		return err
	}
	switch ip.EncKeyVariant {
	case EncKeyNtor:
		if err := ip.EncKeyCert.Verify(nowUnix, cert.PurposeIntroEncKey, ed25519.PublicKey(ip.NtorKey[:]), signingKey); err != nil {
			return err
		}
	case EncKeyLegacy:
		if err := ip.LegacyCrossCert.Verify(nowUnix, ip.LegacyKey, blindedKey); err != nil {
			return err
		}
	}
	return nil
}

// Encode serializes one introduction-point record, in the fixed directive
// order the grammar requires (§4.4).
func Encode(ip *IntroPoint) (string, error) {
	var b strings.Builder

	lsBytes, err := linkspec.Encode(ip.LinkSpecifiers)
	if err != nil {
		return "", fmt.Errorf("encode link specifiers: %w", err)
	}
	fmt.Fprintf(&b, "introduction-point %s\n", primitive.EncodeBase64Raw(lsBytes))

	b.WriteString("auth-key\n")
	b.WriteString(ip.AuthKeyCert.Armor())

	switch ip.EncKeyVariant {
	case EncKeyNtor:
		fmt.Fprintf(&b, "enc-key ntor %s\n", primitive.EncodeBase64Raw(ip.NtorKey[:]))
		b.WriteString("enc-key-certification\n")
		b.WriteString(ip.EncKeyCert.Armor())
	case EncKeyLegacy:
		der := x509.MarshalPKCS1PublicKey(ip.LegacyKey)
		b.WriteString("enc-key legacy\n")
		b.WriteString(primitive.Armor("RSA PUBLIC KEY", der))
		b.WriteString("enc-key-certification\n")
		b.WriteString(ip.LegacyCrossCert.Armor())
	default:
		return "", errkind.New(errkind.UnknownKeyType, "unrecognized encryption key variant")
	}

	return b.String(), nil
}

// Decode parses a single introduction-point record starting at the
// beginning of text (which must begin with "introduction-point ") and
// returns the parsed record together with the unconsumed remainder (empty,
// or beginning with the next "introduction-point " line). Decoding order
// within the record is fixed; a duplicate or malformed sub-directive fails
// the whole record, never leaving partial state (§4.4).
func Decode(text string) (*IntroPoint, string, error) {
	line, rest, ok := cutLine(text)
	if !ok || !strings.HasPrefix(line, "introduction-point ") {
		return nil, "", errkind.New(errkind.Malformed, "introduction-point record missing introduction-point directive")
	}
	lsToken := strings.TrimPrefix(line, "introduction-point ")
	lsBytes, err := primitive.DecodeBase64Raw(lsToken)
	if err != nil {
		return nil, "", errkind.Wrap(errkind.Malformed, "decode link specifier list", err)
	}
	specs, err := linkspec.Decode(lsBytes)
	if err != nil {
		return nil, "", err
	}

	ip := &IntroPoint{LinkSpecifiers: specs}

	line, rest, ok = cutLine(rest)
	if !ok || line != "auth-key" {
		return nil, "", errkind.New(errkind.Malformed, "introduction-point record missing auth-key directive")
	}
	authCert, rest, err := cert.ParseArmored(rest)
	if err != nil {
		return nil, "", err
	}
	ip.AuthKeyCert = authCert

	line, rest, ok = cutLine(rest)
	if !ok || !strings.HasPrefix(line, "enc-key ") {
		return nil, "", errkind.New(errkind.Malformed, "introduction-point record missing enc-key directive")
	}
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return nil, "", errkind.New(errkind.Malformed, "malformed enc-key directive")
	}
	switch fields[1] {
	case "ntor":
		if len(fields) != 3 {
			return nil, "", errkind.New(errkind.Malformed, "malformed enc-key ntor directive")
		}
		keyBytes, err := primitive.DecodeBase64Raw(fields[2])
		if err != nil || len(keyBytes) != 32 {
			return nil, "", errkind.New(errkind.Malformed, "malformed enc-key ntor payload")
		}
		ip.EncKeyVariant = EncKeyNtor
		copy(ip.NtorKey[:], keyBytes)
	case "legacy":
		der, next, err := primitive.Dearmor("RSA PUBLIC KEY", rest)
		if err != nil {
			return nil, "", errkind.Wrap(errkind.Malformed, "parse legacy enc-key", err)
		}
		pub, err := x509.ParsePKCS1PublicKey(der)
		if err != nil {
			return nil, "", errkind.Wrap(errkind.Malformed, "parse legacy RSA public key", err)
		}
		ip.EncKeyVariant = EncKeyLegacy
		ip.LegacyKey = pub
		rest = next
	default:
		return nil, "", errkind.New(errkind.UnknownKeyType, "unrecognized enc-key variant")
	}

	line, rest, ok = cutLine(rest)
	if !ok || line != "enc-key-certification" {
		return nil, "", errkind.New(errkind.Malformed, "introduction-point record missing enc-key-certification directive")
	}
	switch ip.EncKeyVariant {
	case EncKeyNtor:
		encCert, next, err := cert.ParseArmored(rest)
		if err != nil {
			return nil, "", err
		}
		ip.EncKeyCert = encCert
		rest = next
	case EncKeyLegacy:
		cc, next, err := cert.ParseArmoredCrossCert(rest)
		if err != nil {
			return nil, "", err
		}
		ip.LegacyCrossCert = cc
		rest = next
	}

	if err := ip.Validate(); err != nil {
		return nil, "", err
	}
	if rest != "" && !strings.HasPrefix(rest, "introduction-point ") {
		return nil, "", errkind.New(errkind.Malformed, "unexpected directive after introduction-point record")
	}

	return ip, rest, nil
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
