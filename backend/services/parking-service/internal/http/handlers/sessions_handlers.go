package handlers

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"parkwise/backend/services/parking-service/internal/engine"
	"parkwise/backend/services/parking-service/internal/models"
)

// SessionsHandlers serves entry, exit and session lookups.
type SessionsHandlers struct {
	engine *engine.Engine
	loc    *time.Location
	logger *zap.Logger
}

// NewSessionsHandlers returns handler. Dates in queries are read in loc.
func NewSessionsHandlers(eng *engine.Engine, loc *time.Location, logger *zap.Logger) *SessionsHandlers {
	if loc == nil {
		loc = time.Local
	}
	return &SessionsHandlers{engine: eng, loc: loc, logger: orNop(logger)}
}

// pendingConflictBody is returned with 409 when a registration is parked.
type pendingConflictBody struct {
	Error           string                          `json:"error"`
	Code            string                          `json:"code"`
	PendingConflict *models.PendingRegisterConflict `json:"pending_conflict"`
}

// Register handles POST /v1/sessions.
func (h *SessionsHandlers) Register(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	out, err := h.engine.RegisterEntry(r.Context(), req)
	if err != nil {
		respondError(w, h.logger, "register entry", err)
		return
	}
	if out.Pending != nil {
		writeJSON(w, http.StatusConflict, pendingConflictBody{
			Error:           out.Pending.Reason,
			Code:            string(models.CodePlateAlreadyActive),
			PendingConflict: out.Pending,
		})
		return
	}
	writeJSON(w, http.StatusCreated, out.Session)
}

// Exit handles POST /v1/sessions/exit.
func (h *SessionsHandlers) Exit(w http.ResponseWriter, r *http.Request) {
	var req models.ExitRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	receipt, err := h.engine.ProcessExit(r.Context(), req)
	if err != nil {
		respondError(w, h.logger, "process exit", err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

// Quote handles GET /v1/sessions/quote?ticket=.
func (h *SessionsHandlers) Quote(w http.ResponseWriter, r *http.Request) {
	ticket := strings.TrimSpace(r.URL.Query().Get("ticket"))
	if ticket == "" {
		respondError(w, h.logger, "quote", models.ErrUnknownTicket)
		return
	}
	quote, err := h.engine.Quote(r.Context(), ticket)
	if err != nil {
		respondError(w, h.logger, "quote", err)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

// Search handles GET /v1/sessions/search?prefix=. Requests carrying a terminal header
// fail with 409 once a newer search from the same terminal has started.
func (h *SessionsHandlers) Search(w http.ResponseWriter, r *http.Request) {
	prefix := r.URL.Query().Get("prefix")
	terminal := strings.TrimSpace(r.Header.Get(TerminalHeader))
	sessions, err := h.engine.SearchByPlatePrefix(r.Context(), terminal, prefix)
	if err != nil {
		respondError(w, h.logger, "search sessions", err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(sessions))
}

// ByTicket handles GET /v1/sessions/ticket/{code}.
func (h *SessionsHandlers) ByTicket(w http.ResponseWriter, r *http.Request) {
	session, err := h.engine.FindByTicket(r.Context(), pathParam(r, "code"))
	if err != nil {
		respondError(w, h.logger, "find by ticket", err)
		return
	}
	if session == nil {
		respondError(w, h.logger, "find by ticket", models.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// ActiveByPlate handles GET /v1/plates/{plate}/active.
func (h *SessionsHandlers) ActiveByPlate(w http.ResponseWriter, r *http.Request) {
	session, err := h.engine.FindByPlate(r.Context(), pathParam(r, "plate"))
	if err != nil {
		respondError(w, h.logger, "find by plate", err)
		return
	}
	if session == nil {
		respondError(w, h.logger, "find by plate", models.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// ByPlate handles GET /v1/plates/{plate}/sessions.
func (h *SessionsHandlers) ByPlate(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.engine.ListByPlate(r.Context(), pathParam(r, "plate"))
	if err != nil {
		respondError(w, h.logger, "list by plate", err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(sessions))
}

// Active handles GET /v1/sessions/active.
func (h *SessionsHandlers) Active(w http.ResponseWriter, r *http.Request) {
	page, err := pageQuery(r)
	if err != nil {
		respondError(w, h.logger, "list active", err)
		return
	}
	list, err := h.engine.ListActive(r.Context(), page)
	if err != nil {
		respondError(w, h.logger, "list active", err)
		return
	}
	list.Items = nonNil(list.Items)
	writeJSON(w, http.StatusOK, list)
}

// ByDate handles GET /v1/sessions?date=YYYY-MM-DD.
func (h *SessionsHandlers) ByDate(w http.ResponseWriter, r *http.Request) {
	date, err := dateQuery(r, "date", h.loc)
	if err != nil {
		respondError(w, h.logger, "list by date", err)
		return
	}
	page, err := pageQuery(r)
	if err != nil {
		respondError(w, h.logger, "list by date", err)
		return
	}
	list, err := h.engine.ListByDate(r.Context(), date, page)
	if err != nil {
		respondError(w, h.logger, "list by date", err)
		return
	}
	list.Items = nonNil(list.Items)
	writeJSON(w, http.StatusOK, list)
}

// Delete handles DELETE /v1/sessions/{id}.
func (h *SessionsHandlers) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.DeleteSession(r.Context(), pathParam(r, "id")); err != nil {
		respondError(w, h.logger, "delete session", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// pathParam returns the decoded URL parameter key.
func pathParam(r *http.Request, key string) string {
	raw := chi.URLParam(r, key)
	if v, err := url.PathUnescape(raw); err == nil {
		return v
	}
	return raw
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
