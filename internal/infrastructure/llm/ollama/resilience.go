package ollama

import (
	"errors"
	"net/http"

	"github.com/kirillkom/car-knowledge-assistant/internal/infrastructure/resilience"
)

func classifyOllamaError(err error) resilience.ErrorClassification {
	return resilience.Classify(err, func(err error) (resilience.ErrorClassification, bool) {
		var statusErr *HTTPStatusError
		if !errors.As(err, &statusErr) {
			return resilience.ErrorClassification{}, false
		}
		// A missing model is a deployment fault, not a bad request.
		if statusErr.StatusCode == http.StatusNotFound {
			return resilience.Permanent, true
		}
		return resilience.StatusClassification(statusErr.StatusCode), true
	})
}

func wrapTemporaryIfNeeded(operation string, err error) error {
	return resilience.MarkTemporary(operation, err, classifyOllamaError)
}
