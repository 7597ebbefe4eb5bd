package httpx

import (
	"errors"
	"net/http"

	"github.com/gatekit/gatekit/internal/shared"
)

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrEntityNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrDuplicateName):
		Problem(w, http.StatusConflict, "Duplicate Name", err.Error())
	case errors.Is(err, shared.ErrFeatureDisabled):
		Problem(w, http.StatusForbidden, "Feature Disabled", err.Error())
	case errors.Is(err, shared.ErrModelIncompatible):
		Problem(w, http.StatusUnprocessableEntity, "Incompatible Subject", err.Error())
	case errors.Is(err, shared.ErrMissingActor):
		Problem(w, http.StatusBadRequest, "Missing Actor", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
