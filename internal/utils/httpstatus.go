package utils

import (
	"errors"
	"net/http"

	"ms-grouporder/internal/models"
)

// ErrorStatus maps the service error taxonomy to HTTP status codes. Unknown
// errors are treated as infrastructure failures.
func ErrorStatus(err error) int {
	switch {
	case errors.Is(err, models.ErrNotFound),
		errors.Is(err, models.ErrCatalogItemMissing):
		return http.StatusNotFound
	case errors.Is(err, models.ErrGroupClosed),
		errors.Is(err, models.ErrOrderLocked),
		errors.Is(err, models.ErrTreatAlreadyDeclared):
		return http.StatusConflict
	case errors.Is(err, models.ErrEmptyOrder),
		errors.Is(err, models.ErrNoSnapshotToRestore):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrUnauthorizedActor):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
