// Package apperr defines the typed errors returned by the catalog and progress
// services. Callers branch on Kind rather than on message text.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// Kind classifies an error for the caller.
type Kind string

const (
	KindValidation         Kind = "validation"
	KindConflict           Kind = "conflict"
	KindNotFound           Kind = "not_found"
	KindPreconditionFailed Kind = "precondition_failed"
	KindStorage            Kind = "storage"
)

// Error carries a kind, a human-readable reason and optional per-field detail.
type Error struct {
	Kind   Kind
	Reason string
	Fields map[string]string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Reason
	if msg == "" {
		msg = string(e.Kind)
	}
	if len(e.Fields) > 0 {
		keys := make([]string, 0, len(e.Fields))
		for k := range e.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, k+": "+e.Fields[k])
		}
		msg += " (" + strings.Join(parts, ", ") + ")"
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Status maps the kind to the HTTP status the presentation layer should use.
func (e *Error) Status() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	case KindPreconditionFailed:
		return http.StatusPreconditionFailed
	default:
		return http.StatusInternalServerError
	}
}

func New(kind Kind, reason string, err error) *Error {
	return &Error{Kind: kind, Reason: reason, Err: err}
}

func Validation(reason string) *Error {
	return &Error{Kind: KindValidation, Reason: reason}
}

// ValidationFields reports every offending field at once.
func ValidationFields(reason string, fields map[string]string) *Error {
	return &Error{Kind: KindValidation, Reason: reason, Fields: fields}
}

func Conflict(format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Reason: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Reason: fmt.Sprintf(format, args...)}
}

func PreconditionFailed(reason string) *Error {
	return &Error{Kind: KindPreconditionFailed, Reason: reason}
}

// Storage wraps an infrastructure failure. Typed errors pass through unchanged
// so a NotFound raised inside a transaction is not downgraded.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}
	return &Error{Kind: KindStorage, Reason: op, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or KindStorage
// for untyped errors.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindStorage
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
