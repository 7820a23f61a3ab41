// Package errs defines the structured error taxonomy shared by every vault package.
//
// Callers should branch on Kind (or Code) rather than matching error strings.
// Use errors.As to extract *Error for structured handling.
package errs

import "errors"

// Kind is a stable category for programmatic error handling.
type Kind string

const (
	KindDerivationExhausted Kind = "DerivationExhausted"
	KindInvalidSeeds        Kind = "InvalidSeeds"
	KindMalformedRecord     Kind = "MalformedRecord"
	KindAuthorization       Kind = "Authorization"
	KindAddressMismatch     Kind = "AddressMismatch"
	KindInsufficientBalance Kind = "InsufficientBalance"
	KindAlreadyInitialized  Kind = "AlreadyInitialized"
	KindNotFound            Kind = "NotFound"
	KindInvalidInstruction  Kind = "InvalidInstruction"
	KindInvalidProof        Kind = "InvalidProof"
	KindInternal            Kind = "Internal"
)

// Error is the structured error type returned by the vault core.
//
// Code is a stable identifier (e.g. VAULT-BAL-002) naming the failed check.
// Message is intended for humans; do not match on it.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is matches another *Error by Kind, so errors.Is(err, &Error{Kind: k}) works
// as a kind test.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	if t.Code != "" && t.Code != e.Code {
		return false
	}
	return t.Kind == e.Kind
}

func New(kind Kind, code, msg string) error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

func Wrap(kind Kind, code, msg string, cause error) error {
	if cause == nil {
		return New(kind, code, msg)
	}
	return &Error{Kind: kind, Code: code, Message: msg, Cause: cause}
}

// IsKind reports whether err is (or wraps) a *Error with the given Kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

// KindOf returns the Kind of a structured error, or KindInternal for anything else.
func KindOf(err error) Kind {
	var e *Error
	if !errors.As(err, &e) {
		return KindInternal
	}
	return e.Kind
}

// Code returns the stable code for a structured error, or "" if unknown.
func Code(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return ""
	}
	return e.Code
}
