package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"parkwise/backend/services/parking-service/internal/http/handlers"
	"parkwise/backend/services/parking-service/internal/http/middleware"
)

// RouterDeps collects handler dependencies.
type RouterDeps struct {
	SessionsHandlers  *handlers.SessionsHandlers
	DebtsHandlers     *handlers.DebtsHandlers
	ConflictsHandlers *handlers.ConflictsHandlers
	TreasuryHandlers  *handlers.TreasuryHandlers
	TariffsHandlers   *handlers.TariffsHandlers
	HealthHandler     http.HandlerFunc
	MetricsHandler    http.Handler
	EventsHandler     http.HandlerFunc
	Logger            *zap.Logger
}

// NewRouter wires HTTP routes with middleware. authMiddleware guards everything under
// /v1; nil leaves it open.
func NewRouter(deps RouterDeps, authMiddleware func(http.Handler) http.Handler) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	r := chi.NewRouter()
	r.Use(middleware.Recovery(logger), middleware.AccessLog(logger))
	r.NotFound(notFound)
	r.MethodNotAllowed(methodNotAllowed)

	r.Get("/health", deps.HealthHandler)
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	r.Route("/v1", func(r chi.Router) {
		if authMiddleware != nil {
			r.Use(authMiddleware)
		}

		if deps.EventsHandler != nil {
			r.Get("/events", deps.EventsHandler)
		}

		s := deps.SessionsHandlers
		r.Get("/sessions", s.ByDate)
		r.Post("/sessions", s.Register)
		r.Get("/sessions/active", s.Active)
		r.Post("/sessions/exit", s.Exit)
		r.Get("/sessions/quote", s.Quote)
		r.Get("/sessions/search", s.Search)
		r.Get("/sessions/ticket/{code}", s.ByTicket)
		r.Delete("/sessions/{id}", s.Delete)
		r.Get("/plates/{plate}/active", s.ActiveByPlate)
		r.Get("/plates/{plate}/sessions", s.ByPlate)

		d := deps.DebtsHandlers
		r.Get("/plates/{plate}/debt", d.PlateDebt)
		r.Get("/debtors", d.Debtors)
		r.Get("/debtors/total", d.Total)

		c := deps.ConflictsHandlers
		r.Get("/conflicts", c.List)
		r.Get("/conflicts/pending", c.ListPending)
		r.Get("/conflicts/pending/{id}", c.Pending)
		r.Delete("/conflicts/pending/{id}", c.CancelPending)
		r.Post("/conflicts/pending/{id}/resolve", c.ResolvePending)
		r.Post("/conflicts/{plate}/resolve", c.Resolve)

		t := deps.TreasuryHandlers
		r.Get("/treasury", t.Treasury)
		r.Get("/shifts", t.Closures)
		r.Post("/shifts/close", t.Close)

		tf := deps.TariffsHandlers
		r.Get("/tariffs", tf.List)
		r.Post("/tariffs", tf.Create)
		r.Put("/tariffs/{id}", tf.Update)
		r.Delete("/tariffs/{id}", tf.Delete)
	})

	return r
}

func notFound(w http.ResponseWriter, _ *http.Request) {
	writeStatus(w, http.StatusNotFound, `{"error":"route not found","code":"NOT_FOUND"}`)
}

func methodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	writeStatus(w, http.StatusMethodNotAllowed, `{"error":"method not allowed","code":"METHOD_NOT_ALLOWED"}`)
}

func writeStatus(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body + "\n"))
}
