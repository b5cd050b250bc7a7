package handlers

import (
	"net/http"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"parkwise/backend/services/parking-service/internal/engine"
	"parkwise/backend/services/parking-service/internal/models"
)

// DebtsHandlers serves plate debt and the debtor report.
type DebtsHandlers struct {
	engine *engine.Engine
	logger *zap.Logger
}

// NewDebtsHandlers returns handler.
func NewDebtsHandlers(eng *engine.Engine, logger *zap.Logger) *DebtsHandlers {
	return &DebtsHandlers{engine: eng, logger: orNop(logger)}
}

// PlateDebt handles GET /v1/plates/{plate}/debt.
func (h *DebtsHandlers) PlateDebt(w http.ResponseWriter, r *http.Request) {
	plate := models.NormalizePlate(pathParam(r, "plate"))
	debt, err := h.engine.GetPlateDebt(r.Context(), plate)
	if err != nil {
		respondError(w, h.logger, "plate debt", err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Plate string          `json:"plate"`
		Debt  decimal.Decimal `json:"debt"`
	}{Plate: plate, Debt: debt})
}

// Debtors handles GET /v1/debtors.
func (h *DebtsHandlers) Debtors(w http.ResponseWriter, r *http.Request) {
	page, err := pageQuery(r)
	if err != nil {
		respondError(w, h.logger, "list debtors", err)
		return
	}
	list, err := h.engine.ListDebtors(r.Context(), page)
	if err != nil {
		respondError(w, h.logger, "list debtors", err)
		return
	}
	list.Items = nonNil(list.Items)
	writeJSON(w, http.StatusOK, list)
}

// Total handles GET /v1/debtors/total.
func (h *DebtsHandlers) Total(w http.ResponseWriter, r *http.Request) {
	total, err := h.engine.TotalDebt(r.Context())
	if err != nil {
		respondError(w, h.logger, "total debt", err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		TotalDebt decimal.Decimal `json:"total_debt"`
	}{TotalDebt: total})
}
