package handlers

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"parkwise/backend/services/parking-service/internal/engine"
	"parkwise/backend/services/parking-service/internal/models"
)

// TreasuryHandlers serves the till view and shift closures.
type TreasuryHandlers struct {
	engine *engine.Engine
	loc    *time.Location
	logger *zap.Logger
}

// NewTreasuryHandlers returns handler.
func NewTreasuryHandlers(eng *engine.Engine, loc *time.Location, logger *zap.Logger) *TreasuryHandlers {
	if loc == nil {
		loc = time.Local
	}
	return &TreasuryHandlers{engine: eng, loc: loc, logger: orNop(logger)}
}

// Treasury handles GET /v1/treasury?date&actualCash.
func (h *TreasuryHandlers) Treasury(w http.ResponseWriter, r *http.Request) {
	date, err := dateQuery(r, "date", h.loc)
	if err != nil {
		respondError(w, h.logger, "treasury", err)
		return
	}
	actual, err := decimalQuery(r, "actualCash")
	if err != nil {
		respondError(w, h.logger, "treasury", err)
		return
	}
	view, err := h.engine.Treasury(r.Context(), date, actual)
	if err != nil {
		respondError(w, h.logger, "treasury", err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// Closures handles GET /v1/shifts?limit.
func (h *TreasuryHandlers) Closures(w http.ResponseWriter, r *http.Request) {
	limit, err := intQuery(r, "limit", 0)
	if err != nil {
		respondError(w, h.logger, "list closures", err)
		return
	}
	closures, err := h.engine.ListShiftClosures(r.Context(), limit)
	if err != nil {
		respondError(w, h.logger, "list closures", err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(closures))
}

// Close handles POST /v1/shifts/close.
func (h *TreasuryHandlers) Close(w http.ResponseWriter, r *http.Request) {
	var req models.CloseShiftRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	closure, err := h.engine.CloseShift(r.Context(), req)
	if err != nil {
		respondError(w, h.logger, "close shift", err)
		return
	}
	writeJSON(w, http.StatusCreated, closure)
}
