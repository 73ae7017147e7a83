package shared

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a verification failure
type ErrorKind string

const (
	KindParse             ErrorKind = "parse_error"
	KindSignatureInvalid  ErrorKind = "signature_invalid"
	KindIdentityInvalid   ErrorKind = "identity_invalid"
	KindSubstringMismatch ErrorKind = "substring_mismatch"
	KindInvalidRanges     ErrorKind = "invalid_ranges"
	KindDecode            ErrorKind = "decode_error"
)

// VerificationError is the base error type for everything the pipeline reports.
// Message carries library error text verbatim.
type VerificationError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	Cause   error     `json:"-"`
}

// Error implements the error interface
func (e *VerificationError) Error() string {
	if e.Cause != nil && e.Cause.Error() != e.Message {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap implements the error unwrapping interface
func (e *VerificationError) Unwrap() error {
	return e.Cause
}

// Is matches any VerificationError of the same kind, so callers can write
// errors.Is(err, shared.ErrSignatureInvalid).
func (e *VerificationError) Is(target error) bool {
	var t *VerificationError
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// Internal reports whether the error signals an implementation fault rather
// than a bad proof.
func (e *VerificationError) Internal() bool {
	return e.Kind == KindInvalidRanges
}

// Sentinels for errors.Is
var (
	ErrParse             = &VerificationError{Kind: KindParse}
	ErrSignatureInvalid  = &VerificationError{Kind: KindSignatureInvalid}
	ErrIdentityInvalid   = &VerificationError{Kind: KindIdentityInvalid}
	ErrSubstringMismatch = &VerificationError{Kind: KindSubstringMismatch}
	ErrInvalidRanges     = &VerificationError{Kind: KindInvalidRanges}
	ErrDecode            = &VerificationError{Kind: KindDecode}
)

// NewParseError creates a new artifact parse error
func NewParseError(message string, cause error) *VerificationError {
	return &VerificationError{Kind: KindParse, Message: message, Cause: cause}
}

// NewSignatureError wraps a signature failure, keeping the library text
func NewSignatureError(cause error) *VerificationError {
	return &VerificationError{Kind: KindSignatureInvalid, Message: messageOf(cause), Cause: cause}
}

// NewIdentityError wraps a server identity failure, keeping the library text
func NewIdentityError(cause error) *VerificationError {
	return &VerificationError{Kind: KindIdentityInvalid, Message: messageOf(cause), Cause: cause}
}

// NewSubstringError wraps a substrings failure, keeping the library text
func NewSubstringError(cause error) *VerificationError {
	return &VerificationError{Kind: KindSubstringMismatch, Message: messageOf(cause), Cause: cause}
}

// NewInvalidRangesError reports a withheld range set that breaks the
// sorted/disjoint/in-bounds invariant.
func NewInvalidRangesError(message string) *VerificationError {
	return &VerificationError{Kind: KindInvalidRanges, Message: message}
}

// DecodeError records a lossy byte-to-text conversion. It is informational
// and never propagated as a failure.
type DecodeError struct {
	Offset       int // first invalid byte offset
	Replacements int // number of replacement characters emitted
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: %d invalid sequence(s), first at offset %d", KindDecode, e.Replacements, e.Offset)
}

// Is lets errors.Is(decodeErr, ErrDecode) hold
func (e *DecodeError) Is(target error) bool {
	return target == ErrDecode
}

func messageOf(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
