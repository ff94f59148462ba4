package apperrors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/lib/pq"
)

// Kind classifies a ledger error for callers and for HTTP status mapping.
type Kind string

const (
	KindValidation     Kind = "VALIDATION"
	KindNotFound       Kind = "NOT_FOUND"
	KindCrossTenant    Kind = "CROSS_TENANT"
	KindOverAllocation Kind = "OVER_ALLOCATION"
	KindConflict       Kind = "CONFLICT"
	KindInfrastructure Kind = "INFRASTRUCTURE"
)

// Error is the typed error the deposit engine raises. Message is safe to
// show to callers.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf returns the kind of err, or KindInfrastructure for anything
// that is not a typed *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInfrastructure
}

// Postgres error codes the engine cares about. 23514 is check_violation;
// P0001 is raise_exception, used by the allocation guard triggers.
const (
	pgCheckViolation  = "23514"
	pgRaiseException  = "P0001"
	pgIntegrityPrefix = "23"
)

// FromStore classifies a store-level error. Check-constraint and trigger
// violations from the allocation guards carry a human-readable message
// ("Item allocations (1200) would exceed item total (1000)") which must be
// forwarded verbatim as OVER_ALLOCATION. Any other integrity violation is
// CONFLICT; everything else is INFRASTRUCTURE.
func FromStore(err error) *Error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch {
		case string(pqErr.Code) == pgCheckViolation || string(pqErr.Code) == pgRaiseException:
			return Wrap(KindOverAllocation, pqErr.Message, err)
		case len(pqErr.Code) >= 2 && string(pqErr.Code[:2]) == pgIntegrityPrefix:
			return Wrap(KindConflict, pqErr.Message, err)
		}
	}
	return Wrap(KindInfrastructure, "database operation failed", err)
}

// HTTPStatus maps an error kind to a response status code.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindCrossTenant:
		return http.StatusForbidden
	case KindOverAllocation:
		return http.StatusUnprocessableEntity
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
