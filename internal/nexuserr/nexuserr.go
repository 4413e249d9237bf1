// Package nexuserr defines the error taxonomy shared across the Nexus
// storage and query stack. Every component wraps failures in an *Error so
// callers can branch on Kind without string-matching messages, in the same
// sentinel-plus-wrap style used throughout this codebase's storage layer.
package nexuserr

import (
	"errors"
	"fmt"
)

// Kind classifies an error into one of the buckets a caller needs to act on:
// retry, surface to the user, or treat the engine as unhealthy.
type Kind int

const (
	// KindUnknown is the zero value; it should never be returned deliberately.
	KindUnknown Kind = iota
	KindParse
	KindSemantic
	KindConstraint
	KindTimeout
	KindCancelled
	KindDurability
	KindPageCorrupted
	KindCatalog
	KindCacheFull
	KindIO
)

func (k Kind) String() string {
	switch k {
	case KindParse:
		return "ParseError"
	case KindSemantic:
		return "SemanticError"
	case KindConstraint:
		return "ConstraintError"
	case KindTimeout:
		return "QueryError::Timeout"
	case KindCancelled:
		return "QueryError::Cancelled"
	case KindDurability:
		return "DurabilityError"
	case KindPageCorrupted:
		return "PageError::Corrupted"
	case KindCatalog:
		return "CatalogError"
	case KindCacheFull:
		return "CacheError::Full"
	case KindIO:
		return "IoError"
	default:
		return "UnknownError"
	}
}

// Location is the optional source position attached to parse errors.
type Location struct {
	Line   int
	Column int
}

// Error is the shared error envelope returned across every Nexus entry
// point (spec.md §6 "Error model"): a stable machine-readable kind, a
// human message, an optional source location, and the wrapped cause.
type Error struct {
	Kind     Kind
	Message  string
	Location *Location
	Cause    error
}

func (e *Error) Error() string {
	if e.Location != nil {
		return fmt.Sprintf("%s: %s (line %d, column %d)", e.Kind, e.Message, e.Location.Line, e.Location.Column)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an *Error with no wrapped cause.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an *Error carrying cause as its unwrap target.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// AtLocation attaches a source position, for parser errors.
func (e *Error) AtLocation(line, column int) *Error {
	e.Location = &Location{Line: line, Column: column}
	return e
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	var ne *Error
	if errors.As(err, &ne) {
		return ne.Kind == kind
	}
	return false
}

// Retriable reports whether the caller may retry the operation that
// produced err, per spec.md §7's propagation policy.
func Retriable(err error) bool {
	var ne *Error
	if !errors.As(err, &ne) {
		return false
	}
	switch ne.Kind {
	case KindTimeout, KindCancelled, KindIO:
		return true
	default:
		return false
	}
}

// Fatal reports whether err leaves the engine in a state that must not
// serve further operations until reopened (spec.md §7).
func Fatal(err error) bool {
	var ne *Error
	if !errors.As(err, &ne) {
		return false
	}
	switch ne.Kind {
	case KindDurability, KindCacheFull:
		return true
	default:
		return false
	}
}
