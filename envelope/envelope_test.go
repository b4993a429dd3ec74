package envelope

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"testing"

	"github.com/cvsouth/hsdesc/errkind"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	blindedPub, _, _ := ed25519.GenerateKey(rand.Reader)
	plaintext := []byte("create2-formats 2\n")

	enc, err := Encrypt(rand.Reader, blindedPub, "hsdesc-data", plaintext)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	padded, err := Decrypt(blindedPub, "hsdesc-data", enc)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if got := TrimPadding(padded); !bytes.Equal(got, plaintext) {
		t.Fatalf("round trip mismatch: got %q, want %q", got, plaintext)
	}
}

func TestPaddingLaw(t *testing.T) {
	for _, n := range []int{1, 1000, 9999, 10000, 10001, 25000} {
		padded := Pad(make([]byte, n))
		if len(padded)%PaddingQuantum != 0 {
			t.Fatalf("Pad(%d) produced non-quantum length %d", n, len(padded))
		}
		if len(padded) < n {
			t.Fatalf("Pad(%d) shrank input to %d", n, len(padded))
		}
		if len(padded)-n >= PaddingQuantum {
			t.Fatalf("Pad(%d) over-padded to %d", n, len(padded))
		}
	}
}

func TestDecryptRejectsTamperedCiphertext(t *testing.T) {
	blindedPub, _, _ := ed25519.GenerateKey(rand.Reader)
	enc, err := Encrypt(rand.Reader, blindedPub, "hsdesc-data", []byte("create2-formats 2\n"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	enc[saltLen] ^= 0x01

	if _, err := Decrypt(blindedPub, "hsdesc-data", enc); !errkind.Is(err, errkind.BadEnvelope) {
		t.Fatalf("expected BadEnvelope, got %v", err)
	}
}

func TestDecryptWrongKeyFails(t *testing.T) {
	blindedPub, _, _ := ed25519.GenerateKey(rand.Reader)
	other, _, _ := ed25519.GenerateKey(rand.Reader)
	enc, err := Encrypt(rand.Reader, blindedPub, "hsdesc-data", []byte("create2-formats 2\n"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	if _, err := Decrypt(other, "hsdesc-data", enc); !errkind.Is(err, errkind.BadEnvelope) {
		t.Fatalf("expected BadEnvelope with wrong key, got %v", err)
	}
}

func TestEncryptedDataLengthIsValid(t *testing.T) {
	const max = 60_000
	if !EncryptedDataLengthIsValid(saltLen+macLen+PaddingQuantum, max) {
		t.Fatalf("minimum valid length rejected")
	}
	if EncryptedDataLengthIsValid(saltLen+macLen+PaddingQuantum-1, max) {
		t.Fatalf("below-minimum length accepted")
	}
	if EncryptedDataLengthIsValid(saltLen+macLen+PaddingQuantum+1, max) {
		t.Fatalf("non-quantum-aligned length accepted")
	}
	if EncryptedDataLengthIsValid(saltLen+macLen+7*PaddingQuantum, max) {
		t.Fatalf("over-maximum length accepted")
	}
}
