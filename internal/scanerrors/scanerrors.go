// Package scanerrors implements the error taxonomy from the core's error
// handling design: a small set of behavioral Kinds, each carrying a
// key-value Context map, following the same fmt.Errorf-wrapping idiom
// the rest of this codebase uses rather than a third-party errors
// package (see DESIGN.md for why stdlib wrapping was kept here).
package scanerrors

import (
	"errors"
	"fmt"
)

// Kind is the behavioral category of a scan error, not its Go type.
type Kind string

const (
	KindConfig             Kind = "config_error"
	KindPermissionDenied   Kind = "permission_denied"
	KindInvalidTarget      Kind = "invalid_target"
	KindInvalidPacket      Kind = "invalid_packet"
	KindTimeout            Kind = "timeout"
	KindNetworkUnreachable Kind = "network_unreachable"
	KindResourceExhausted  Kind = "resource_exhausted"
	KindInsufficientData   Kind = "insufficient_data"
	KindTargetNotFound     Kind = "target_not_found"
	KindMalformedSignature Kind = "malformed_signature"
	KindCancelled          Kind = "cancelled"
)

// Error is the structured, user-visible failure object from §7: a kind,
// a message, and a small context map. It never carries raw socket errno
// text beyond what Message already summarizes.
type Error struct {
	Kind    Kind
	Message string
	Context map[string]string
	cause   error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New builds a scanerrors.Error with the given kind and formatted message.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a Kind to an underlying error, preserving it for errors.Is/As.
func Wrap(kind Kind, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), cause: cause}
}

// WithContext returns a copy of e with the given context key set.
func (e *Error) WithContext(key, value string) *Error {
	cp := *e
	cp.Context = make(map[string]string, len(e.Context)+1)
	for k, v := range e.Context {
		cp.Context[k] = v
	}
	cp.Context[key] = value
	return &cp
}

// Is reports whether err is a scanerrors.Error of the given kind.
func Is(err error, kind Kind) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind == kind
	}
	return false
}
