package linkspec

import (
	"net"
	"reflect"
	"testing"

	"github.com/cvsouth/hsdesc/errkind"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	var legacy [20]byte
	for i := range legacy {
		legacy[i] = byte(i)
	}
	specs := []Spec{
		NewIPv4(net.IPv4(203, 0, 113, 7), 9001),
		NewIPv6(net.ParseIP("2001:db8::1"), 9001),
		NewLegacyID(legacy),
	}

	enc, err := Encode(specs)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	dec, err := Decode(enc)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(dec) != len(specs) {
		t.Fatalf("got %d specs, want %d", len(dec), len(specs))
	}
	if !dec[0].IP.Equal(specs[0].IP) || dec[0].Port != specs[0].Port {
		t.Fatalf("IPv4 round-trip mismatch: %+v", dec[0])
	}
	if !dec[1].IP.Equal(specs[1].IP) || dec[1].Port != specs[1].Port {
		t.Fatalf("IPv6 round-trip mismatch: %+v", dec[1])
	}
	if dec[2].LegacyID != legacy {
		t.Fatalf("legacy identity round-trip mismatch: %+v", dec[2])
	}
}

func TestDecodeUnknownTypePreserved(t *testing.T) {
	data := []byte{1, 0x7f, 3, 0xaa, 0xbb, 0xcc}
	specs, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(specs) != 1 || specs[0].Type != 0x7f || !reflect.DeepEqual(specs[0].Unknown, []byte{0xaa, 0xbb, 0xcc}) {
		t.Fatalf("unexpected decode: %+v", specs)
	}

	enc, err := Encode(specs)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !reflect.DeepEqual(enc, data) {
		t.Fatalf("unknown specifier did not round-trip losslessly: got %x, want %x", enc, data)
	}
}

func TestDecodeTruncated(t *testing.T) {
	data := []byte{1, 0x00, 6, 1, 2, 3} // header claims 6-byte payload, only 3 present
	if _, err := Decode(data); !errkind.Is(err, errkind.Malformed) {
		t.Fatalf("expected Malformed, got %v", err)
	}
}

func TestDecodeDuplicateKnownType(t *testing.T) {
	one := []byte{0x00, 6, 1, 2, 3, 4, 0x23, 0x29}
	data := append([]byte{2}, append(append([]byte{}, one...), one...)...)
	if _, err := Decode(data); !errkind.Is(err, errkind.Malformed) {
		t.Fatalf("expected Malformed on duplicate type, got %v", err)
	}
}

func TestDecodeTrailingData(t *testing.T) {
	data := []byte{0, 0xff}
	if _, err := Decode(data); !errkind.Is(err, errkind.Malformed) {
		t.Fatalf("expected Malformed on trailing data, got %v", err)
	}
}

func TestDecodeEmpty(t *testing.T) {
	if _, err := Decode(nil); !errkind.Is(err, errkind.Malformed) {
		t.Fatalf("expected Malformed on empty input, got %v", err)
	}
}

func TestHasUsableEndpoint(t *testing.T) {
	var legacy [20]byte
	if HasUsableEndpoint([]Spec{NewLegacyID(legacy)}) {
		t.Fatalf("legacy-identity-only specifier list should not count as a usable endpoint")
	}
	if !HasUsableEndpoint([]Spec{NewLegacyID(legacy), NewIPv4(net.IPv4(1, 2, 3, 4), 80)}) {
		t.Fatalf("IPv4 specifier should count as a usable endpoint")
	}
}

func FuzzDecode(f *testing.F) {
	specs := []Spec{NewIPv4(net.IPv4(1, 2, 3, 4), 443)}
	enc, _ := Encode(specs)
	f.Add(enc)
	f.Add([]byte{})
	f.Add([]byte{0})
	f.Add([]byte{1, 0, 4, 1, 2, 3})

	f.Fuzz(func(t *testing.T, data []byte) {
		Decode(data)
	})
}
