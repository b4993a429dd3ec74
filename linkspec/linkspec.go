// Package linkspec encodes and decodes the length-prefixed list of
// polymorphic link specifiers carried inside each introduction-point
// record (§4.5). Grounded on the teacher's onion/intropoint.go
// ParseLinkSpecifiers, generalized from a decode-only, best-effort parse
// (unknown types silently skipped, no encoder) into a lossless codec that
// preserves unknown-type payloads byte-for-byte on round-trip.
package linkspec

import (
	"encoding/binary"
	"net"

	"github.com/cvsouth/hsdesc/errkind"
)

// Type is the link specifier's one-byte type tag.
type Type uint8

const (
	TypeIPv4         Type = 0x00
	TypeIPv6         Type = 0x01
	TypeLegacyID     Type = 0x02
	TypeEd25519ID    Type = 0x03 // recognized but not required by this format
)

const (
	ipv4Len    = 4 + 2
	ipv6Len    = 16 + 2
	legacyLen  = 20
	maxPayload = 255
)

// Spec is one link specifier: either a known, structured variant or an
// Unknown{Type, Bytes} arm that preserves an unrecognized type's payload
// opaquely so it survives round-tripping without loss.
type Spec struct {
	Type Type
	// IP is set for TypeIPv4 and TypeIPv6.
	IP net.IP
	// Port is set alongside IP.
	Port uint16
	// LegacyID is set for TypeLegacyID (20-byte RSA identity digest).
	LegacyID [20]byte
	// Unknown carries the opaque payload for any type this codec doesn't
	// interpret (including TypeEd25519ID, which this format doesn't use
	// but must still preserve byte-for-byte if encountered).
	Unknown []byte
}

// IsKnownReachable reports whether this specifier describes a directly
// reachable endpoint (IPv4 or IPv6 address+port).
func (s Spec) IsKnownReachable() bool {
	return s.Type == TypeIPv4 || s.Type == TypeIPv6
}

func (s Spec) payload() []byte {
	switch s.Type {
	case TypeIPv4:
		b := make([]byte, ipv4Len)
		copy(b, s.IP.To4())
		binary.BigEndian.PutUint16(b[4:], s.Port)
		return b
	case TypeIPv6:
		b := make([]byte, ipv6Len)
		copy(b, s.IP.To16())
		binary.BigEndian.PutUint16(b[16:], s.Port)
		return b
	case TypeLegacyID:
		return s.LegacyID[:]
	default:
		return s.Unknown
	}
}

// NewIPv4 constructs an IPv4+port link specifier.
func NewIPv4(ip net.IP, port uint16) Spec {
	return Spec{Type: TypeIPv4, IP: ip.To4(), Port: port}
}

// NewIPv6 constructs an IPv6+port link specifier.
func NewIPv6(ip net.IP, port uint16) Spec {
	return Spec{Type: TypeIPv6, IP: ip.To16(), Port: port}
}

// NewLegacyID constructs a legacy 20-byte RSA identity digest specifier.
func NewLegacyID(id [20]byte) Spec {
	return Spec{Type: TypeLegacyID, LegacyID: id}
}

// Encode serializes specs into the binary sub-format:
//
//	n : uint8
//	for i in 0..n: type(1) len(1) val(len)
func Encode(specs []Spec) ([]byte, error) {
	if len(specs) > 255 {
		return nil, errkind.Newf(errkind.Malformed, "too many link specifiers: %d", len(specs))
	}
	out := []byte{byte(len(specs))}
	for _, s := range specs {
		p := s.payload()
		if len(p) > maxPayload {
			return nil, errkind.Newf(errkind.Malformed, "link specifier payload too long: %d bytes", len(p))
		}
		out = append(out, byte(s.Type), byte(len(p)))
		out = append(out, p...)
	}
	return out, nil
}

// Decode parses the binary sub-format. It rejects truncated input, a zero
// length-prefix byte by itself is valid (zero specifiers) but the caller
// (package intropoint) enforces that at least one specifier, of any type, is
// present per introduction point. Duplicate specifiers of the same known
// type are rejected; unknown types are preserved opaquely.
func Decode(data []byte) ([]Spec, error) {
	if len(data) < 1 {
		return nil, errkind.New(errkind.Malformed, "link specifier list too short")
	}
	n := int(data[0])
	out := make([]Spec, 0, n)
	seen := map[Type]bool{}
	off := 1
	for i := 0; i < n; i++ {
		if off+2 > len(data) {
			return nil, errkind.Newf(errkind.Malformed, "link specifier %d header truncated", i)
		}
		typ := Type(data[off])
		length := int(data[off+1])
		off += 2
		if off+length > len(data) {
			return nil, errkind.Newf(errkind.Malformed, "link specifier %d payload truncated", i)
		}
		payload := data[off : off+length]
		off += length

		var spec Spec
		switch typ {
		case TypeIPv4:
			if length != ipv4Len {
				return nil, errkind.Newf(errkind.Malformed, "IPv4 link specifier has length %d, want %d", length, ipv4Len)
			}
			spec = Spec{Type: typ, IP: net.IP(append([]byte(nil), payload[:4]...)), Port: binary.BigEndian.Uint16(payload[4:6])}
		case TypeIPv6:
			if length != ipv6Len {
				return nil, errkind.Newf(errkind.Malformed, "IPv6 link specifier has length %d, want %d", length, ipv6Len)
			}
			spec = Spec{Type: typ, IP: net.IP(append([]byte(nil), payload[:16]...)), Port: binary.BigEndian.Uint16(payload[16:18])}
		case TypeLegacyID:
			if length != legacyLen {
				return nil, errkind.Newf(errkind.Malformed, "legacy identity link specifier has length %d, want %d", length, legacyLen)
			}
			spec = Spec{Type: typ}
			copy(spec.LegacyID[:], payload)
		default:
			spec = Spec{Type: typ, Unknown: append([]byte(nil), payload...)}
		}

		if typ == TypeIPv4 || typ == TypeIPv6 || typ == TypeLegacyID {
			if seen[typ] {
				return nil, errkind.Newf(errkind.Malformed, "duplicate link specifier of type %d", typ)
			}
			seen[typ] = true
		}

		out = append(out, spec)
	}
	if off != len(data) {
		return nil, errkind.New(errkind.Malformed, "trailing data after link specifier list")
	}
	return out, nil
}

// HasUsableEndpoint reports whether specs contains at least one reachable
// endpoint (IPv4 or IPv6 address+port). The legacy-identity-only case is
// deliberately not treated as reachable on its own.
func HasUsableEndpoint(specs []Spec) bool {
	for _, s := range specs {
		if s.IsKnownReachable() {
			return true
		}
	}
	return false
}
