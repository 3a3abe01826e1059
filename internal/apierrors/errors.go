// Package apierrors centralizes the error taxonomy shared by every
// inspection-pipeline package and the HTTP handlers that translate it.
package apierrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for HTTP status mapping and logging.
type Kind int

const (
	Internal Kind = iota
	NotFound
	Validation
	Conflict
	Unavailable
	IO
	External
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "not_found"
	case Validation:
		return "validation"
	case Conflict:
		return "conflict"
	case Unavailable:
		return "unavailable"
	case IO:
		return "io"
	case External:
		return "external"
	default:
		return "internal"
	}
}

// Error is the wrapped, typed error every package returns for a condition
// that needs to surface to an HTTP client with a specific status code.
type Error struct {
	Kind    Kind
	Message string
	Items   []string // per-item validation messages, e.g. one per invalid ROI
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a typed Error. cause may be nil.
func New(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Err: cause}
}

// NewValidation builds a Validation error carrying the per-item messages
// collected during a Save (spec §4.2: "the whole save is rejected with a
// per-ROI error list").
func NewValidation(msg string, items []string) *Error {
	return &Error{Kind: Validation, Message: msg, Items: items}
}

// Wrap tags an existing error with a Kind unless it is already an *Error.
func Wrap(kind Kind, msg string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return New(kind, msg, err)
}

// KindOf extracts the Kind of err, defaulting to Internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// HTTPStatus maps a Kind to the status codes in spec §6: exactly
// 400/404/409/500 are specified; Unavailable and External are
// server-side conditions and fall back to 500 like IO and Internal.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case NotFound:
		return http.StatusNotFound
	case Validation:
		return http.StatusBadRequest
	case Conflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Items returns the per-item validation messages of err, if any.
func Items(err error) []string {
	var e *Error
	if errors.As(err, &e) {
		return e.Items
	}
	return nil
}
