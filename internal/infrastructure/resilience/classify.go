package resilience

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/kirillkom/car-knowledge-assistant/internal/core/domain"
)

var (
	// Transient failures are retried and count against the breaker.
	Transient = ErrorClassification{Retryable: true, RecordFailure: true}
	// Permanent failures fail fast but still count against the breaker.
	Permanent = ErrorClassification{RecordFailure: true}
	// Ignored failures are caller-side and leave the breaker untouched.
	Ignored = ErrorClassification{}
)

// Classify applies the rules shared by every backend: caller cancellation is
// ignored, call timeouts and open circuits are transient, and network errors
// are transient unless specific claims the error first.
func Classify(err error, specific func(error) (ErrorClassification, bool)) ErrorClassification {
	switch {
	case err == nil:
		return Ignored
	case IsCallTimeout(err), IsCircuitOpen(err):
		return Transient
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return Ignored
	}

	if specific != nil {
		if class, ok := specific(err); ok {
			return class
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return Transient
	}
	return Permanent
}

// RetryableStatus reports upstream HTTP statuses worth another attempt.
func RetryableStatus(code int) bool {
	return code == http.StatusRequestTimeout || code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

// StatusClassification maps an upstream HTTP status. Non-retryable statuses
// are request problems and do not trip the breaker.
func StatusClassification(code int) ErrorClassification {
	if RetryableStatus(code) {
		return Transient
	}
	return Ignored
}

// MarkTemporary tags err as domain.ErrTemporary when classifier deems it
// retryable, so callers can tell "try again later" from hard failures.
func MarkTemporary(operation string, err error, classifier ErrorClassifier) error {
	if err == nil || domain.IsKind(err, domain.ErrTemporary) {
		return err
	}
	if classifier == nil {
		classifier = defaultClassifier
	}
	if classifier(err).Retryable || IsCircuitOpen(err) || IsCallTimeout(err) {
		return domain.WrapError(domain.ErrTemporary, operation, err)
	}
	return err
}
