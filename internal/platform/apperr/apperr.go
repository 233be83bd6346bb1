// Package apperr defines the error kinds shared by every domain service and
// maps them onto HTTP responses at the handler boundary.
package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/labstack/echo/v4"
)

// Error kinds. Domain code wraps these with fmt.Errorf("%w: ...") so callers
// can match on the kind with errors.Is while keeping a useful message.
var (
	ErrValidation        = errors.New("validation error")
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrConflict          = errors.New("conflict")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrDependency        = errors.New("dependency failure")
)

// PostgreSQL SQLSTATE codes translated at the repository boundary.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
)

// Validation returns an ErrValidation with a formatted detail message.
func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// NotFound returns an ErrNotFound naming the missing entity.
func NotFound(entity string) error {
	return fmt.Errorf("%w: %s", ErrNotFound, entity)
}

// Conflict returns an ErrConflict with a formatted detail message.
func Conflict(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}

// Unauthorized returns an ErrUnauthorized with a formatted detail message.
func Unauthorized(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUnauthorized, fmt.Sprintf(format, args...))
}

// FromStore translates a storage error into one of the kinds above. entity
// names the record for not-found messages. Errors that already carry a kind
// pass through untouched; everything unrecognised becomes ErrDependency and
// the driver message is dropped.
func FromStore(err error, entity string) error {
	if err == nil {
		return nil
	}
	if Kind(err) != nil {
		return err
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return NotFound(entity)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return Conflict("%s already exists", entity)
		case pgForeignKeyViolation:
			return NotFound("referenced " + entity)
		case pgCheckViolation:
			return Validation("%s violates a constraint", entity)
		}
	}
	return fmt.Errorf("%w: %s store unavailable", ErrDependency, entity)
}

// Kind returns the sentinel kind carried by err, or nil.
func Kind(err error) error {
	for _, k := range []error{ErrValidation, ErrNotFound, ErrInvalidTransition, ErrConflict, ErrUnauthorized, ErrDependency} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// Status maps an error to its HTTP status code.
func Status(err error) int {
	switch Kind(err) {
	case ErrValidation:
		return http.StatusBadRequest
	case ErrNotFound:
		return http.StatusNotFound
	case ErrInvalidTransition, ErrConflict:
		return http.StatusConflict
	case ErrUnauthorized:
		return http.StatusForbidden
	case ErrDependency:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Body is the JSON error payload returned to API clients.
type Body struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// ToHTTP converts a service error into an echo.HTTPError. Errors without a
// kind are reported as a generic internal error.
func ToHTTP(err error) *echo.HTTPError {
	kind := Kind(err)
	if kind == nil {
		return echo.NewHTTPError(http.StatusInternalServerError, Body{Error: "internal", Message: "internal server error"})
	}
	return echo.NewHTTPError(Status(err), Body{Error: kindName(kind), Message: err.Error()})
}

func kindName(kind error) string {
	switch kind {
	case ErrValidation:
		return "validation_error"
	case ErrNotFound:
		return "not_found"
	case ErrInvalidTransition:
		return "invalid_transition"
	case ErrConflict:
		return "conflict"
	case ErrUnauthorized:
		return "unauthorized"
	case ErrDependency:
		return "dependency_failure"
	}
	return "internal"
}
