// Package errkind defines the small, caller-distinguishable error taxonomy
// spec'd for the descriptor codec (§7). The teacher repo has no equivalent
// — it wraps everything with bare fmt.Errorf("...: %w", err) because none
// of its callers ever need to branch on error identity. This codec's
// callers do (a client must tell an expired certificate from a corrupt
// signature), so this is the smallest extension of that same wrap-with-%w
// idiom that adds identity: a Kind enum plus an error type checkable with
// errors.Is/errors.As, not a new error framework.
package errkind

import (
	"errors"
	"fmt"
)

// Kind identifies which rule a decode or encode failure violated.
type Kind int

const (
	// Malformed covers any grammar violation: tokenizer, integer ranges,
	// directive ordering, PEM framing, duplicate or missing directives.
	Malformed Kind = iota
	// UnsupportedVersion means the descriptor version falls outside the
	// inclusive compiled-in supported range.
	UnsupportedVersion
	// TooLarge means the input exceeded the maximum descriptor length, or
	// the decrypted plaintext exceeded the maximum padded-plaintext length.
	TooLarge
	// BadSignature means the outer envelope's Ed25519 signature failed to
	// verify.
	BadSignature
	// BadCertificate means an embedded certificate had the wrong purpose,
	// was missing its signing-key extension, had a subject mismatch, or
	// failed its own signature check.
	BadCertificate
	// Expired means a certificate's expiration lies at or before "now".
	Expired
	// BadEnvelope means the encrypted blob failed its MAC, had an invalid
	// salt/length, or didn't conform to the padding-quantum size rule.
	BadEnvelope
	// BadIntroPoint means one specific introduction-point record was
	// invalid; it is surfaced for the whole descriptor, never silently
	// dropped.
	BadIntroPoint
	// UnknownKeyType means an enc-key variant tag was neither ntor nor
	// legacy.
	UnknownKeyType
)

func (k Kind) String() string {
	switch k {
	case Malformed:
		return "Malformed"
	case UnsupportedVersion:
		return "UnsupportedVersion"
	case TooLarge:
		return "TooLarge"
	case BadSignature:
		return "BadSignature"
	case BadCertificate:
		return "BadCertificate"
	case Expired:
		return "Expired"
	case BadEnvelope:
		return "BadEnvelope"
	case BadIntroPoint:
		return "BadIntroPoint"
	case UnknownKeyType:
		return "UnknownKeyType"
	default:
		return "Unknown"
	}
}

// Error is a Kind-tagged error. It never carries the raw input bytes that
// triggered it (§7: "errors...never include raw input bytes"), only the
// rule violated and, optionally, a wrapped lower-level cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a Kind-tagged error with no wrapped cause.
func New(kind Kind, msg string) error {
	return &Error{Kind: kind, Msg: msg}
}

// Newf creates a Kind-tagged error with a formatted message.
func Newf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap creates a Kind-tagged error around a lower-level cause.
func Wrap(kind Kind, msg string, err error) error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// Is reports whether err is a Kind-tagged error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// As extracts the Kind of err, if it is a Kind-tagged error.
func As(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}
