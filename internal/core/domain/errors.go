package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrBackendUnavailable = errors.New("backend unavailable")
	ErrFormatViolation    = errors.New("format violation")
	ErrTemporary          = errors.New("temporary failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// ErrorKind names the taxonomy bucket of err for log attributes.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidInput):
		return "input_validation"
	case errors.Is(err, ErrFormatViolation):
		return "format_violation"
	case errors.Is(err, ErrBackendUnavailable), errors.Is(err, ErrTemporary):
		return "backend_unavailable"
	default:
		return "unknown"
	}
}
