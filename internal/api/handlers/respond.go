package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Harshitk-cp/beliefgraph/internal/service"
	"github.com/Harshitk-cp/beliefgraph/internal/store"
	"github.com/google/uuid"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

type rejectionResponse struct {
	Error       string      `json:"error"`
	Reason      string      `json:"reason"`
	Conflicting []uuid.UUID `json:"conflicting,omitempty"`
}

// writeServiceError maps gateway errors to HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	var rej *service.RejectionError
	switch {
	case errors.As(err, &rej):
		writeJSON(w, http.StatusConflict, rejectionResponse{
			Error:       rej.Error(),
			Reason:      string(rej.Reason),
			Conflicting: rej.Conflicting,
		})
	case errors.Is(err, service.ErrUnknownRelation),
		errors.Is(err, service.ErrInvalidTriple),
		errors.Is(err, service.ErrReservedSource),
		errors.Is(err, service.ErrUnattributedOpinion),
		errors.Is(err, service.ErrNotNumericRelation),
		errors.Is(err, store.ErrUnitUnresolvable):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrInsufficientData),
		errors.Is(err, service.ErrIncommensurableUnits):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, service.ErrTripleNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrImmutableViolation):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, service.ErrTimeout):
		writeError(w, http.StatusGatewayTimeout, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
