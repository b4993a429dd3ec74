package intropoint

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"net"
	"strings"
	"testing"

	"github.com/cvsouth/hsdesc/cert"
	"github.com/cvsouth/hsdesc/errkind"
	"github.com/cvsouth/hsdesc/linkspec"
	"github.com/cvsouth/hsdesc/primitive"
)

func buildNtorIntroPoint(t testing.TB, signingPub ed25519.PublicKey, sign func([]byte) []byte) *IntroPoint {
	t.Helper()
	authPub, _, _ := ed25519.GenerateKey(rand.Reader)
	authCert, err := cert.Build(cert.PurposeIntroAuthKey, authPub, signingPub, 2_000_000, sign)
	if err != nil {
		t.Fatalf("build auth cert: %v", err)
	}

	_, curvePub, err := primitive.GenerateCurve25519Keypair(rand.Reader)
	if err != nil {
		t.Fatalf("generate curve25519 keypair: %v", err)
	}
	encCert, err := cert.Build(cert.PurposeIntroEncKey, ed25519.PublicKey(curvePub[:]), signingPub, 2_000_000, sign)
	if err != nil {
		t.Fatalf("build enc cert: %v", err)
	}

	return &IntroPoint{
		LinkSpecifiers: []linkspec.Spec{linkspec.NewIPv4(net.IPv4(198, 51, 100, 5), 9001)},
		AuthKeyCert:    authCert,
		EncKeyVariant:  EncKeyNtor,
		NtorKey:        curvePub,
		EncKeyCert:     encCert,
	}
}

func TestEncodeDecodeRoundTripNtor(t *testing.T) {
	signingPub, signingPriv, _ := ed25519.GenerateKey(rand.Reader)
	sign := func(msg []byte) []byte { return primitive.Sign(signingPriv, msg) }

	ip := buildNtorIntroPoint(t, signingPub, sign)

	text, err := Encode(ip)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	parsed, rest, err := Decode(text)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if rest != "" {
		t.Fatalf("unexpected remainder: %q", rest)
	}
	if parsed.EncKeyVariant != EncKeyNtor || parsed.NtorKey != ip.NtorKey {
		t.Fatalf("ntor key mismatch after round trip")
	}
	if err := parsed.VerifyCerts(0, signingPub, signingPub); err != nil {
		t.Fatalf("VerifyCerts: %v", err)
	}
}

func TestEncodeDecodeRoundTripLegacy(t *testing.T) {
	signingPub, signingPriv, _ := ed25519.GenerateKey(rand.Reader)
	sign := func(msg []byte) []byte { return primitive.Sign(signingPriv, msg) }

	authPub, _, _ := ed25519.GenerateKey(rand.Reader)
	authCert, err := cert.Build(cert.PurposeIntroAuthKey, authPub, signingPub, 2_000_000, sign)
	if err != nil {
		t.Fatalf("build auth cert: %v", err)
	}

	legacyPriv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate RSA key: %v", err)
	}

	blindedPub, _, _ := ed25519.GenerateKey(rand.Reader)
	cc, err := cert.BuildCrossCert(legacyPriv, blindedPub, 2_000_000, rand.Reader)
	if err != nil {
		t.Fatalf("build cross-cert: %v", err)
	}

	ip := &IntroPoint{
		LinkSpecifiers:  []linkspec.Spec{linkspec.NewIPv4(net.IPv4(198, 51, 100, 6), 9001)},
		AuthKeyCert:     authCert,
		EncKeyVariant:   EncKeyLegacy,
		LegacyKey:       &legacyPriv.PublicKey,
		LegacyCrossCert: cc,
	}

	text, err := Encode(ip)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	parsed, rest, err := Decode(text)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if rest != "" {
		t.Fatalf("unexpected remainder: %q", rest)
	}
	if err := parsed.VerifyCerts(0, signingPub, blindedPub); err != nil {
		t.Fatalf("VerifyCerts: %v", err)
	}
}

func TestDecodeStopsAtNextIntroductionPoint(t *testing.T) {
	signingPub, signingPriv, _ := ed25519.GenerateKey(rand.Reader)
	sign := func(msg []byte) []byte { return primitive.Sign(signingPriv, msg) }
	ip := buildNtorIntroPoint(t, signingPub, sign)

	text, err := Encode(ip)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	doc := text + "introduction-point AAAA\n"

	_, rest, err := Decode(doc)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !strings.HasPrefix(rest, "introduction-point ") {
		t.Fatalf("expected remainder to begin the next record, got %q", rest)
	}
}

func TestDecodeUnknownEncKeyVariant(t *testing.T) {
	signingPub, signingPriv, _ := ed25519.GenerateKey(rand.Reader)
	sign := func(msg []byte) []byte { return primitive.Sign(signingPriv, msg) }
	ip := buildNtorIntroPoint(t, signingPub, sign)
	text, _ := Encode(ip)
	text = strings.Replace(text, "enc-key ntor ", "enc-key unicorn ", 1)

	if _, _, err := Decode(text); !errkind.Is(err, errkind.UnknownKeyType) {
		t.Fatalf("expected UnknownKeyType, got %v", err)
	}
}

func TestDecodeMissingAuthKey(t *testing.T) {
	signingPub, signingPriv, _ := ed25519.GenerateKey(rand.Reader)
	sign := func(msg []byte) []byte { return primitive.Sign(signingPriv, msg) }
	ip := buildNtorIntroPoint(t, signingPub, sign)
	text, _ := Encode(ip)

	lines := strings.SplitN(text, "\n", 2)
	truncated := lines[0] + "\n" + strings.Replace(lines[1], "auth-key\n", "", 1)

	if _, _, err := Decode(truncated); !errkind.Is(err, errkind.Malformed) {
		t.Fatalf("expected Malformed on missing auth-key, got %v", err)
	}
}

func TestValidateRejectsNoLinkSpecifiers(t *testing.T) {
	signingPub, signingPriv, _ := ed25519.GenerateKey(rand.Reader)
	sign := func(msg []byte) []byte { return primitive.Sign(signingPriv, msg) }
	ip := buildNtorIntroPoint(t, signingPub, sign)
	ip.LinkSpecifiers = nil

	if err := ip.Validate(); !errkind.Is(err, errkind.BadIntroPoint) {
		t.Fatalf("expected BadIntroPoint, got %v", err)
	}
}

func FuzzDecodeIntroPoint(f *testing.F) {
	signingPub, signingPriv, _ := ed25519.GenerateKey(rand.Reader)
	sign := func(msg []byte) []byte { return primitive.Sign(signingPriv, msg) }
	ip := buildNtorIntroPoint(f, signingPub, sign)
	text, _ := Encode(ip)
	f.Add(text)
	f.Add("")
	f.Add("introduction-point \n")

	f.Fuzz(func(t *testing.T, text string) {
		Decode(text)
	})
}
