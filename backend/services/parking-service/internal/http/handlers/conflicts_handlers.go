package handlers

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"parkwise/backend/services/parking-service/internal/engine"
	"parkwise/backend/services/parking-service/internal/models"
)

// ConflictsHandlers serves plate conflicts and parked registrations.
type ConflictsHandlers struct {
	engine *engine.Engine
	logger *zap.Logger
}

// NewConflictsHandlers returns handler.
func NewConflictsHandlers(eng *engine.Engine, logger *zap.Logger) *ConflictsHandlers {
	return &ConflictsHandlers{engine: eng, logger: orNop(logger)}
}

// List handles GET /v1/conflicts.
func (h *ConflictsHandlers) List(w http.ResponseWriter, r *http.Request) {
	conflicts, err := h.engine.PlateConflicts(r.Context())
	if err != nil {
		respondError(w, h.logger, "list conflicts", err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(conflicts))
}

// Resolve handles POST /v1/conflicts/{plate}/resolve.
func (h *ConflictsHandlers) Resolve(w http.ResponseWriter, r *http.Request) {
	var body struct {
		KeepID string `json:"keep_id"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	if strings.TrimSpace(body.KeepID) == "" {
		respondError(w, h.logger, "resolve conflict", models.NewValidationError(models.CodeInvalidArgument, "keep_id is required"))
		return
	}
	if err := h.engine.ResolvePlateConflict(r.Context(), pathParam(r, "plate"), body.KeepID); err != nil {
		respondError(w, h.logger, "resolve conflict", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListPending handles GET /v1/conflicts/pending.
func (h *ConflictsHandlers) ListPending(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, nonNil(h.engine.PendingConflicts()))
}

// Pending handles GET /v1/conflicts/pending/{id}.
func (h *ConflictsHandlers) Pending(w http.ResponseWriter, r *http.Request) {
	pending, err := h.engine.PendingConflict(pathParam(r, "id"))
	if err != nil {
		respondError(w, h.logger, "pending conflict", err)
		return
	}
	writeJSON(w, http.StatusOK, pending)
}

// CancelPending handles DELETE /v1/conflicts/pending/{id}.
func (h *ConflictsHandlers) CancelPending(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.CancelPendingConflict(pathParam(r, "id")); err != nil {
		respondError(w, h.logger, "cancel pending conflict", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ResolvePending handles POST /v1/conflicts/pending/{id}/resolve: the named session is
// deleted and the parked registration replayed.
func (h *ConflictsHandlers) ResolvePending(w http.ResponseWriter, r *http.Request) {
	var body struct {
		DeleteSessionID string `json:"delete_session_id"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	session, err := h.engine.ResolvePendingConflict(r.Context(), pathParam(r, "id"), body.DeleteSessionID)
	if err != nil {
		respondError(w, h.logger, "resolve pending conflict", err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}
