// Package autherr classifies the failures of the session lifecycle so the
// HTTP layer can tell "needs login" apart from infrastructure problems.
package autherr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the class of an authentication failure.
type Kind int

const (
	// KindInternal covers store and entropy failures.
	KindInternal Kind = iota
	// KindUnauthorized means no usable session or state.
	KindUnauthorized
	// KindProvider means the identity provider answered with a non-success status.
	KindProvider
	// KindParse means a stored or provider payload could not be decoded.
	KindParse
)

func (k Kind) String() string {
	switch k {
	case KindUnauthorized:
		return "unauthorized"
	case KindProvider:
		return "provider_error"
	case KindParse:
		return "parse_error"
	default:
		return "internal_error"
	}
}

// Error carries a Kind together with the operation that failed.
type Error struct {
	Kind Kind
	Op   string
	// Status is the provider's HTTP status text for KindProvider.
	Status string
	Err    error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Status != "" {
		msg += " (" + e.Status + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Unauthorized builds a KindUnauthorized error.
func Unauthorized(op string, err error) *Error {
	return &Error{Kind: KindUnauthorized, Op: op, Err: err}
}

// Provider builds a KindProvider error with the upstream status text.
func Provider(op, status string, err error) *Error {
	return &Error{Kind: KindProvider, Op: op, Status: status, Err: err}
}

// Parse builds a KindParse error.
func Parse(op string, err error) *Error {
	return &Error{Kind: KindParse, Op: op, Err: err}
}

// Internal builds a KindInternal error.
func Internal(op string, err error) *Error {
	return &Error{Kind: KindInternal, Op: op, Err: err}
}

// KindOf returns the Kind of the first *Error in err's chain. Errors that
// carry no kind are internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func IsUnauthorized(err error) bool {
	return err != nil && KindOf(err) == KindUnauthorized
}

func IsProvider(err error) bool {
	return err != nil && KindOf(err) == KindProvider
}

func IsParse(err error) bool {
	return err != nil && KindOf(err) == KindParse
}

// HTTPStatus maps err to the status the broker answers with.
func HTTPStatus(err error) int {
	if IsUnauthorized(err) {
		return http.StatusUnauthorized
	}
	return http.StatusInternalServerError
}

// Describe returns a client-safe description; provider and store details stay
// in the logs.
func Describe(err error) string {
	switch KindOf(err) {
	case KindUnauthorized:
		return "Unauthorized."
	case KindProvider:
		return "Identity provider request failed."
	default:
		return fmt.Sprintf("Internal error (%s).", KindOf(err))
	}
}
