package engine

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"parkwise/backend/services/parking-service/internal/conflict"
	"parkwise/backend/services/parking-service/internal/events"
	"parkwise/backend/services/parking-service/internal/models"
	"parkwise/backend/services/parking-service/internal/store"
)

// Engine is the operator-facing facade over the active mode. Mutations publish events
// once they have been acknowledged by the owning store.
type Engine struct {
	mode      Mode
	conflicts *conflict.Resolver
	events    events.Publisher
	latest    *store.LatestOnly
	logger    *zap.Logger
}

// New builds engine over mode. Pending registration conflicts expire after pendingTTL.
func New(mode Mode, publisher events.Publisher, pendingTTL time.Duration, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if publisher == nil {
		publisher = events.Discard{}
	}
	e := &Engine{
		mode:      mode,
		conflicts: conflict.NewResolver(mode.Sessions, pendingTTL, logger),
		events:    publisher,
		latest:    store.NewLatestOnly(),
		logger:    logger.With(zap.String("mode", mode.Name)),
	}
	e.conflicts.OnDetected(func(c models.PlateConflict) {
		e.publish(events.ConflictDetected, c)
	})
	return e
}

// Mode returns the name of the active mode.
func (e *Engine) Mode() string {
	return e.mode.Name
}

func (e *Engine) publish(t events.Type, data interface{}) {
	e.events.Publish(events.Event{Type: t, At: time.Now().UTC(), Data: data})
}

// RegisterEntry registers the vehicle or returns the pending conflict blocking it.
func (e *Engine) RegisterEntry(ctx context.Context, req models.RegisterRequest) (conflict.RegisterOutcome, error) {
	out, err := e.conflicts.Register(ctx, req)
	if err != nil {
		return conflict.RegisterOutcome{}, err
	}
	if out.Session != nil {
		e.publish(events.EntryRegistered, out.Session)
	}
	return out, nil
}

// ProcessExit checks the vehicle out.
func (e *Engine) ProcessExit(ctx context.Context, req models.ExitRequest) (models.ExitReceipt, error) {
	receipt, err := e.mode.Sessions.ProcessExit(ctx, req)
	if err != nil {
		return models.ExitReceipt{}, err
	}
	e.publish(events.ExitProcessed, receipt)
	return receipt, nil
}

func (e *Engine) Quote(ctx context.Context, ticketCode string) (models.Quote, error) {
	return e.mode.Sessions.Quote(ctx, ticketCode)
}

func (e *Engine) FindByTicket(ctx context.Context, code string) (*models.Session, error) {
	return e.mode.Sessions.FindByTicket(ctx, code)
}

func (e *Engine) FindByPlate(ctx context.Context, plate string) (*models.Session, error) {
	return e.mode.Sessions.FindByPlate(ctx, plate)
}

func (e *Engine) ListByPlate(ctx context.Context, plate string) ([]models.Session, error) {
	return e.mode.Sessions.ListByPlate(ctx, plate)
}

// SearchByPlatePrefix answers an interactive search. When terminal is set, only the
// newest search of that terminal gets a result; older ones fail with store.ErrSuperseded.
func (e *Engine) SearchByPlatePrefix(ctx context.Context, terminal, prefix string) ([]models.Session, error) {
	search := func() ([]models.Session, error) {
		return e.mode.Sessions.SearchByPlatePrefix(ctx, prefix)
	}
	if terminal == "" {
		return search()
	}
	return store.Latest(e.latest, "search:"+terminal, search)
}

func (e *Engine) ListActive(ctx context.Context, page models.Page) (models.SessionList, error) {
	return e.mode.Sessions.ListActive(ctx, page)
}

func (e *Engine) ListByDate(ctx context.Context, date time.Time, page models.Page) (models.SessionList, error) {
	return e.mode.Sessions.ListByDate(ctx, date, page)
}

func (e *Engine) GetPlateDebt(ctx context.Context, plate string) (decimal.Decimal, error) {
	return e.mode.Sessions.GetPlateDebt(ctx, plate)
}

func (e *Engine) ListDebtors(ctx context.Context, page models.Page) (models.DebtorList, error) {
	return e.mode.Sessions.ListDebtors(ctx, page)
}

func (e *Engine) TotalDebt(ctx context.Context) (decimal.Decimal, error) {
	return e.mode.Sessions.TotalDebt(ctx)
}

// DeleteSession removes a session and its payments.
func (e *Engine) DeleteSession(ctx context.Context, id string) error {
	if err := e.mode.Sessions.DeleteSession(ctx, id); err != nil {
		return err
	}
	e.publish(events.SessionDeleted, map[string]string{"id": id})
	return nil
}

// PlateConflicts rescans and returns the open plate conflicts.
func (e *Engine) PlateConflicts(ctx context.Context) ([]models.PlateConflict, error) {
	return e.conflicts.Scan(ctx)
}

func (e *Engine) ResolvePlateConflict(ctx context.Context, plate, keepID string) error {
	return e.conflicts.ResolvePlate(ctx, plate, keepID)
}

func (e *Engine) PendingConflicts() []models.PendingRegisterConflict {
	return e.conflicts.ListPending()
}

func (e *Engine) PendingConflict(id string) (models.PendingRegisterConflict, error) {
	return e.conflicts.Pending(id)
}

func (e *Engine) CancelPendingConflict(id string) error {
	return e.conflicts.CancelPending(id)
}

// ResolvePendingConflict deletes deleteSessionID and replays the blocked registration.
func (e *Engine) ResolvePendingConflict(ctx context.Context, id, deleteSessionID string) (models.Session, error) {
	session, err := e.conflicts.ResolvePending(ctx, id, deleteSessionID)
	if err != nil {
		return models.Session{}, err
	}
	e.publish(events.SessionDeleted, map[string]string{"id": deleteSessionID})
	e.publish(events.EntryRegistered, session)
	return session, nil
}

// RunConflictScanner scans for plate conflicts every interval until ctx is done.
func (e *Engine) RunConflictScanner(ctx context.Context, interval time.Duration) {
	e.conflicts.Run(ctx, interval)
}

func (e *Engine) Treasury(ctx context.Context, date time.Time, actualCash *decimal.Decimal) (models.TillView, error) {
	return e.mode.Till.Treasury(ctx, date, actualCash)
}

// CloseShift snapshots the open shift.
func (e *Engine) CloseShift(ctx context.Context, req models.CloseShiftRequest) (models.ShiftClosure, error) {
	closure, err := e.mode.Till.CloseShift(ctx, req)
	if err != nil {
		return models.ShiftClosure{}, err
	}
	e.publish(events.ShiftClosed, closure)
	return closure, nil
}

func (e *Engine) ListShiftClosures(ctx context.Context, limit int) ([]models.ShiftClosure, error) {
	return e.mode.Till.ListClosures(ctx, limit)
}

func (e *Engine) ListTariffs(ctx context.Context, search string) ([]models.Tariff, error) {
	return e.mode.Tariffs.ListTariffs(ctx, search)
}

func (e *Engine) CreateTariff(ctx context.Context, in models.TariffInput) (models.Tariff, error) {
	return e.mode.Tariffs.CreateTariff(ctx, in)
}

func (e *Engine) UpdateTariff(ctx context.Context, id string, in models.TariffInput) (models.Tariff, error) {
	return e.mode.Tariffs.UpdateTariff(ctx, id, in)
}

func (e *Engine) DeleteTariff(ctx context.Context, id string) error {
	return e.mode.Tariffs.DeleteTariff(ctx, id)
}
