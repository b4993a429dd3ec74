package cert

import (
	"crypto/ed25519"
	"testing"

	"github.com/cvsouth/hsdesc/errkind"
	"github.com/cvsouth/hsdesc/primitive"
)

func TestBuildParseVerifyRoundTrip(t *testing.T) {
	issuerPub, issuerPriv, _ := ed25519.GenerateKey(nil)
	subjectPub, _, _ := ed25519.GenerateKey(nil)

	now := int64(1_700_000_000)
	expiry := uint32(now/3600) + 2

	c, err := Build(PurposeSigningKey, subjectPub, issuerPub, expiry, func(msg []byte) []byte {
		return primitive.Sign(issuerPriv, msg)
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	parsed, err := Parse(c.Encode())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if err := parsed.Verify(now, PurposeSigningKey, subjectPub, issuerPub); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestVerifyWrongPurpose(t *testing.T) {
	issuerPub, issuerPriv, _ := ed25519.GenerateKey(nil)
	subjectPub, _, _ := ed25519.GenerateKey(nil)
	c, _ := Build(PurposeIntroAuthKey, subjectPub, issuerPub, 1_000_000, func(msg []byte) []byte {
		return primitive.Sign(issuerPriv, msg)
	})

	if err := c.Verify(0, PurposeSigningKey, subjectPub, issuerPub); !errkind.Is(err, errkind.BadCertificate) {
		t.Fatalf("expected BadCertificate, got %v", err)
	}
}

func TestVerifyExpiryMonotonic(t *testing.T) {
	issuerPub, issuerPriv, _ := ed25519.GenerateKey(nil)
	subjectPub, _, _ := ed25519.GenerateKey(nil)
	var expiryHour uint32 = 472_000 // arbitrary hour boundary
	c, _ := Build(PurposeSigningKey, subjectPub, issuerPub, expiryHour, func(msg []byte) []byte {
		return primitive.Sign(issuerPriv, msg)
	})

	expiresAt := int64(expiryHour) * 3600

	if err := c.Verify(expiresAt-1, PurposeSigningKey, subjectPub, issuerPub); err != nil {
		t.Fatalf("expected success just before expiry, got %v", err)
	}
	if err := c.Verify(expiresAt, PurposeSigningKey, subjectPub, issuerPub); !errkind.Is(err, errkind.Expired) {
		t.Fatalf("expected Expired at expiry boundary, got %v", err)
	}
	if err := c.Verify(expiresAt+1, PurposeSigningKey, subjectPub, issuerPub); !errkind.Is(err, errkind.Expired) {
		t.Fatalf("expected Expired after expiry, got %v", err)
	}
}

func TestVerifyBadSignatureBit(t *testing.T) {
	issuerPub, issuerPriv, _ := ed25519.GenerateKey(nil)
	subjectPub, _, _ := ed25519.GenerateKey(nil)
	c, _ := Build(PurposeSigningKey, subjectPub, issuerPub, 1_000_000, func(msg []byte) []byte {
		return primitive.Sign(issuerPriv, msg)
	})
	c.Signature[0] ^= 0x01

	if err := c.Verify(0, PurposeSigningKey, subjectPub, issuerPub); !errkind.Is(err, errkind.BadCertificate) {
		t.Fatalf("expected BadCertificate on flipped signature bit, got %v", err)
	}
}

func TestParseArmoredRoundTrip(t *testing.T) {
	issuerPub, issuerPriv, _ := ed25519.GenerateKey(nil)
	subjectPub, _, _ := ed25519.GenerateKey(nil)
	c, _ := Build(PurposeIntroEncKey, subjectPub, issuerPub, 1_000_000, func(msg []byte) []byte {
		return primitive.Sign(issuerPriv, msg)
	})

	armored := c.Armor() + "revision-counter 1\n"
	parsed, rest, err := ParseArmored(armored)
	if err != nil {
		t.Fatalf("ParseArmored: %v", err)
	}
	if rest != "revision-counter 1\n" {
		t.Fatalf("unexpected remainder: %q", rest)
	}
	if parsed.Purpose != PurposeIntroEncKey {
		t.Fatalf("purpose: got %d", parsed.Purpose)
	}
}

func TestParseTooShort(t *testing.T) {
	if _, err := Parse([]byte{1, 2, 3}); !errkind.Is(err, errkind.Malformed) {
		t.Fatalf("expected Malformed, got %v", err)
	}
}

func FuzzParseCert(f *testing.F) {
	issuerPub, issuerPriv, _ := ed25519.GenerateKey(nil)
	subjectPub, _, _ := ed25519.GenerateKey(nil)
	c, _ := Build(PurposeSigningKey, subjectPub, issuerPub, 1_000_000, func(msg []byte) []byte {
		return primitive.Sign(issuerPriv, msg)
	})
	f.Add(c.Encode())
	f.Add([]byte{})
	f.Add([]byte{1})

	f.Fuzz(func(t *testing.T, data []byte) {
		// Must never panic on adversarial input.
		Parse(data)
	})
}
