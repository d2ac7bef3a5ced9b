package httpx

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/odyssey-erp/odyssey-hr/internal/shared"
)

// StatusFor maps the shared error taxonomy to an HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, shared.ErrDuplicateName):
		return http.StatusConflict
	case errors.Is(err, shared.ErrInvalidPermissionKey), errors.Is(err, shared.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, shared.ErrProtectedRole), errors.Is(err, shared.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, shared.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, shared.ErrStorageUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// RespondError writes a structured failure for err. Server-side failures are
// logged and answered with a generic message.
func RespondError(w http.ResponseWriter, logger *slog.Logger, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		if logger != nil {
			logger.Error("request failed", slog.Int("status", status), slog.Any("error", err))
		}
		if status == http.StatusServiceUnavailable {
			Fail(w, status, "storage unavailable, try again later")
			return
		}
		Fail(w, status, "")
		return
	}
	Fail(w, status, err.Error())
}
