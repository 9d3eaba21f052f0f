package httpadapter

import (
	"net/http"

	"github.com/kirillkom/finvault/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrBackendUnavailable), domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	case domain.IsKind(err, domain.ErrFormatViolation):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// publicErrorMessage keeps backend details out of responses. Only input
// validation errors are echoed back to the caller.
func publicErrorMessage(err error, status int) string {
	if status == http.StatusBadRequest {
		return err.Error()
	}
	return http.StatusText(status)
}
