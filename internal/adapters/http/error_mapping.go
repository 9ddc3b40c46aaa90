package httpadapter

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/kirillkom/car-knowledge-assistant/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrNotInitialized):
		return http.StatusConflict
	case domain.IsKind(err, domain.ErrData):
		return http.StatusUnprocessableEntity
	case domain.IsKind(err, domain.ErrTemporary), domain.IsKind(err, domain.ErrClassificationUnavailable):
		return http.StatusServiceUnavailable
	case domain.IsKind(err, domain.ErrGeneration):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := mapErrorToHTTPStatus(err)
	message := err.Error()
	if errors.Is(err, domain.ErrIndexNotReady) {
		message = domain.NotInitializedMessage
	}
	if status >= http.StatusInternalServerError {
		slog.Error("request_failed", "status", status, "error", err.Error())
	}
	writeJSON(w, status, map[string]string{"error": message})
}
