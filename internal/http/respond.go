package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/axiom-os/ccp/internal/domain"
	"github.com/axiom-os/ccp/internal/repository"
	"github.com/axiom-os/ccp/internal/service/promotion"
)

// writeJSON writes JSON response with status code.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError sends an error message with its taxonomy kind.
func writeError(w http.ResponseWriter, status int, kind, msg string) {
	writeJSON(w, status, map[string]string{"kind": kind, "error": msg})
}

// respondError maps a service error onto the API's error taxonomy. Every
// handler funnels failures through here so the wire shape stays uniform.
func respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, repository.ErrConflict):
		writeError(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, domain.ErrNonContiguousPromotion), errors.Is(err, domain.ErrInvalidLadderStep):
		writeError(w, http.StatusUnprocessableEntity, "invalid_transition", err.Error())
	case errors.Is(err, promotion.ErrPromotionBlocked), errors.Is(err, promotion.ErrRetireBlocked):
		writeError(w, http.StatusPreconditionFailed, "precondition_failed", err.Error())
	case errors.Is(err, domain.ErrValidation), errors.Is(err, repository.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, "validation_error", err.Error())
	case errors.Is(err, repository.ErrUnavailable):
		writeError(w, http.StatusServiceUnavailable, "store_unavailable", "registry store unavailable")
	default:
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
	}
}
