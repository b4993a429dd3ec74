// Package innerdesc encodes and decodes the inner, decrypted section of a
// descriptor (§4.2): the create2-formats list, an optional
// authentication-required token list, and the ordered sequence of
// introduction-point records. Grounded on the teacher's
// onion/descriptor.go parseEncryptedSection, generalized from a
// single-pass best-effort reader (unknown directives skipped, malformed
// intro points dropped silently) into a strict grammar that rejects
// unknown top-level directives and surfaces (rather than drops) a
// malformed introduction-point record.
package innerdesc

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cvsouth/hsdesc/errkind"
	"github.com/cvsouth/hsdesc/intropoint"
)

// Section is the parsed inner plaintext of a descriptor.
type Section struct {
	CreateFormats         []int
	AuthenticationRequired []string // nil if the directive was absent
	IntroPoints           []*intropoint.IntroPoint
}

// Encode serializes the inner section per the fixed grammar order:
// create2-formats, then (if present) authentication-required, then each
// introduction-point record in order.
func Encode(s *Section) (string, error) {
	if len(s.CreateFormats) == 0 {
		return "", errkind.New(errkind.Malformed, "create2-formats must list at least one format")
	}

	var b strings.Builder
	fields := make([]string, len(s.CreateFormats))
	for i, f := range s.CreateFormats {
		if f < 0 {
			return "", errkind.New(errkind.Malformed, "create2-formats entries must be non-negative")
		}
		fields[i] = strconv.Itoa(f)
	}
	fmt.Fprintf(&b, "create2-formats %s\n", strings.Join(fields, " "))

	if s.AuthenticationRequired != nil {
		if len(s.AuthenticationRequired) == 0 {
			return "", errkind.New(errkind.Malformed, "authentication-required must list at least one type if present")
		}
		fmt.Fprintf(&b, "authentication-required %s\n", strings.Join(s.AuthenticationRequired, " "))
	}

	for _, ip := range s.IntroPoints {
		text, err := intropoint.Encode(ip)
		if err != nil {
			return "", err
		}
		b.WriteString(text)
	}

	return b.String(), nil
}

// Decode parses the inner plaintext. create2-formats and
// authentication-required may appear in either order but both (when
// present) must precede any introduction-point record; an unknown
// top-level directive is rejected, and a malformed individual
// introduction-point record fails decoding of the whole section (it is
// never silently dropped — spec.md §7 surfaces BadIntroPoint for the
// whole descriptor).
func Decode(text string) (*Section, error) {
	s := &Section{}
	haveCreateFormats := false
	rest := text

	for rest != "" {
		line, remainder, ok := cutLine(rest)
		if !ok {
			break
		}

		switch {
		case line == "":
			return nil, errkind.New(errkind.Malformed, "blank line in inner section")

		case strings.HasPrefix(line, "introduction-point "):
			ip, next, err := intropoint.Decode(rest)
			if err != nil {
				return nil, err
			}
			if !haveCreateFormats {
				return nil, errkind.New(errkind.Malformed, "introduction-point record before create2-formats")
			}
			s.IntroPoints = append(s.IntroPoints, ip)
			rest = next
			continue

		case strings.HasPrefix(line, "create2-formats "):
			if haveCreateFormats {
				return nil, errkind.New(errkind.Malformed, "duplicate create2-formats directive")
			}
			if len(s.IntroPoints) > 0 {
				return nil, errkind.New(errkind.Malformed, "create2-formats directive after introduction-point records")
			}
			formats, err := parseCreateFormats(line)
			if err != nil {
				return nil, err
			}
			s.CreateFormats = formats
			haveCreateFormats = true

		case strings.HasPrefix(line, "authentication-required "):
			if s.AuthenticationRequired != nil {
				return nil, errkind.New(errkind.Malformed, "duplicate authentication-required directive")
			}
			if len(s.IntroPoints) > 0 {
				return nil, errkind.New(errkind.Malformed, "authentication-required directive after introduction-point records")
			}
			types := strings.Fields(strings.TrimPrefix(line, "authentication-required "))
			if len(types) == 0 {
				return nil, errkind.New(errkind.Malformed, "authentication-required directive with no types")
			}
			s.AuthenticationRequired = types

		default:
			return nil, errkind.New(errkind.Malformed, "unrecognized inner section directive")
		}

		rest = remainder
	}

	if !haveCreateFormats {
		return nil, errkind.New(errkind.Malformed, "inner section missing create2-formats directive")
	}

	return s, nil
}

func parseCreateFormats(line string) ([]int, error) {
	fields := strings.Fields(strings.TrimPrefix(line, "create2-formats "))
	if len(fields) == 0 {
		return nil, errkind.New(errkind.Malformed, "create2-formats must list at least one format")
	}
	out := make([]int, len(fields))
	for i, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil || n < 0 || strconv.Itoa(n) != f {
			return nil, errkind.Newf(errkind.Malformed, "malformed create2-formats entry %d", i)
		}
		out[i] = n
	}
	return out, nil
}

func firstToken(line string) string {
	if i := strings.IndexByte(line, ' '); i >= 0 {
		return line[:i]
	}
	return line
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
