package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"parkwise/backend/services/parking-service/internal/engine"
	"parkwise/backend/services/parking-service/internal/models"
)

// TariffsHandlers serves the tariff catalog.
type TariffsHandlers struct {
	engine *engine.Engine
	logger *zap.Logger
}

// NewTariffsHandlers returns handler.
func NewTariffsHandlers(eng *engine.Engine, logger *zap.Logger) *TariffsHandlers {
	return &TariffsHandlers{engine: eng, logger: orNop(logger)}
}

// List handles GET /v1/tariffs?search.
func (h *TariffsHandlers) List(w http.ResponseWriter, r *http.Request) {
	tariffs, err := h.engine.ListTariffs(r.Context(), r.URL.Query().Get("search"))
	if err != nil {
		respondError(w, h.logger, "list tariffs", err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(tariffs))
}

// Create handles POST /v1/tariffs.
func (h *TariffsHandlers) Create(w http.ResponseWriter, r *http.Request) {
	var in models.TariffInput
	if !decodeJSON(w, r, &in) {
		return
	}
	tariff, err := h.engine.CreateTariff(r.Context(), in)
	if err != nil {
		respondError(w, h.logger, "create tariff", err)
		return
	}
	writeJSON(w, http.StatusCreated, tariff)
}

// Update handles PUT /v1/tariffs/{id}.
func (h *TariffsHandlers) Update(w http.ResponseWriter, r *http.Request) {
	var in models.TariffInput
	if !decodeJSON(w, r, &in) {
		return
	}
	tariff, err := h.engine.UpdateTariff(r.Context(), pathParam(r, "id"), in)
	if err != nil {
		respondError(w, h.logger, "update tariff", err)
		return
	}
	writeJSON(w, http.StatusOK, tariff)
}

// Delete handles DELETE /v1/tariffs/{id}.
func (h *TariffsHandlers) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.DeleteTariff(r.Context(), pathParam(r, "id")); err != nil {
		respondError(w, h.logger, "delete tariff", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
