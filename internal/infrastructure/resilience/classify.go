package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/kirillkom/finvault/internal/core/domain"
)

// StatusError is a non-2xx answer from an HTTP backend.
type StatusError struct {
	Backend    string
	Operation  string
	StatusCode int
	Status     string
	Body       string
}

func (e *StatusError) Error() string {
	if e == nil {
		return "backend status error"
	}
	if strings.TrimSpace(e.Body) == "" {
		return fmt.Sprintf("%s %s status: %s", e.Backend, e.Operation, e.Status)
	}
	return fmt.Sprintf("%s %s status: %s: %s", e.Backend, e.Operation, e.Status, strings.TrimSpace(e.Body))
}

// ClassifyError is the classifier shared by the HTTP backends: transport
// errors and overload statuses are retried, cancellations are not counted.
func ClassifyError(err error) ErrorClassification {
	if err == nil {
		return ErrorClassification{}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ErrorClassification{Retryable: false, RecordFailure: false}
	}
	if IsCircuitOpen(err) {
		return ErrorClassification{Retryable: false, RecordFailure: false}
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		if IsRetryableHTTPStatus(statusErr.StatusCode) {
			return ErrorClassification{Retryable: true, RecordFailure: true}
		}
		return ErrorClassification{Retryable: false, RecordFailure: false}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return ErrorClassification{Retryable: true, RecordFailure: true}
	}

	return ErrorClassification{Retryable: false, RecordFailure: true}
}

// WrapBackendError tags err with the domain kind callers branch on.
// classifier must be the one the call ran under; nil means ClassifyError.
func WrapBackendError(operation string, err error, classifier ErrorClassifier) error {
	if err == nil {
		return nil
	}
	if classifier == nil {
		classifier = ClassifyError
	}
	if domain.IsKind(err, domain.ErrTemporary) || domain.IsKind(err, domain.ErrBackendUnavailable) {
		return err
	}
	if IsCircuitOpen(err) {
		return domain.WrapError(domain.ErrBackendUnavailable, operation, err)
	}
	if classifier(err).Retryable {
		return domain.WrapError(domain.ErrTemporary, operation, err)
	}
	return err
}

func IsRetryableHTTPStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusRequestTimeout, http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
