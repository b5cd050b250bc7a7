package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parkwise/backend/services/parking-service/internal/events"
	"parkwise/backend/services/parking-service/internal/models"
	"parkwise/backend/services/parking-service/internal/tariff"
)

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(evt events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recorder) types() []events.Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.Type, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

func newLocalEngine(t *testing.T) (*Engine, *recorder) {
	t.Helper()
	rec := &recorder{}
	return New(LocalMode(tariff.DefaultRates(), time.UTC, nil), rec, time.Hour, nil), rec
}

func ticket(code string) *string { return &code }

func TestEngineLifecyclePublishesEvents(t *testing.T) {
	ctx := context.Background()
	e, rec := newLocalEngine(t)
	assert.Equal(t, ModeLocal, e.Mode())

	out, err := e.RegisterEntry(ctx, models.RegisterRequest{Plate: "ABC-123", VehicleClass: models.VehicleCar, TicketCode: ticket("TK1")})
	require.NoError(t, err)
	require.NotNil(t, out.Session)

	receipt, err := e.ProcessExit(ctx, models.ExitRequest{TicketCode: "TK1"})
	require.NoError(t, err)
	assert.True(t, receipt.Session.TotalAmount.Decimal.Equal(decimal.NewFromInt(50)))

	view, err := e.Treasury(ctx, time.Now(), nil)
	require.NoError(t, err)
	assert.True(t, view.ExpectedCash.Equal(decimal.NewFromInt(50)))

	arqueo := decimal.NewFromInt(45)
	closure, err := e.CloseShift(ctx, models.CloseShiftRequest{ArqueoCash: &arqueo})
	require.NoError(t, err)
	assert.True(t, closure.Discrepancy.Equal(decimal.NewFromInt(-5)))

	closures, err := e.ListShiftClosures(ctx, 0)
	require.NoError(t, err)
	require.Len(t, closures, 1)

	require.NoError(t, e.DeleteSession(ctx, receipt.Session.ID))

	assert.Equal(t, []events.Type{
		events.EntryRegistered,
		events.ExitProcessed,
		events.ShiftClosed,
		events.SessionDeleted,
	}, rec.types())
}

func TestEnginePendingConflictFlow(t *testing.T) {
	ctx := context.Background()
	e, rec := newLocalEngine(t)

	first, err := e.RegisterEntry(ctx, models.RegisterRequest{Plate: "DUP-1", VehicleClass: models.VehicleCar, TicketCode: ticket("TKA")})
	require.NoError(t, err)
	blocked, err := e.RegisterEntry(ctx, models.RegisterRequest{Plate: "DUP-1", VehicleClass: models.VehicleMotorcycle, TicketCode: ticket("TKB")})
	require.NoError(t, err)
	require.NotNil(t, blocked.Pending)

	listed := e.PendingConflicts()
	require.Len(t, listed, 1)
	got, err := e.PendingConflict(blocked.Pending.ID)
	require.NoError(t, err)
	assert.Equal(t, models.VehicleMotorcycle, got.Request.VehicleClass)

	session, err := e.ResolvePendingConflict(ctx, blocked.Pending.ID, first.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.VehicleMotorcycle, session.VehicleClass)

	active, err := e.FindByPlate(ctx, "DUP-1")
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, "TKB", active.TicketCode)

	assert.Equal(t, []events.Type{
		events.EntryRegistered,
		events.SessionDeleted,
		events.EntryRegistered,
	}, rec.types())

	assert.ErrorIs(t, e.CancelPendingConflict(blocked.Pending.ID), models.ErrNotFound)
}

func TestEngineTariffsAndQuote(t *testing.T) {
	ctx := context.Background()
	e, _ := newLocalEngine(t)

	class := models.VehicleCar
	scope := "abc-123"
	amount := decimal.NewFromInt(20)
	created, err := e.CreateTariff(ctx, models.TariffInput{VehicleClass: &class, ScopeKey: &scope, Amount: &amount})
	require.NoError(t, err)
	assert.Equal(t, "ABC-123", created.ScopeKey)

	_, err = e.RegisterEntry(ctx, models.RegisterRequest{Plate: "ABC-123", VehicleClass: models.VehicleCar, TicketCode: ticket("TK1")})
	require.NoError(t, err)

	q, err := e.Quote(ctx, "TK1")
	require.NoError(t, err)
	require.NotNil(t, q.Tariff)
	assert.Equal(t, created.ID, q.Tariff.ID)
	require.NotNil(t, q.TariffCost)
	assert.True(t, q.TariffCost.Equal(amount))
	assert.True(t, q.DefaultCost.Equal(decimal.NewFromInt(50)))

	receipt, err := e.ProcessExit(ctx, models.ExitRequest{TicketCode: "TK1", CustomAmount: q.TariffCost})
	require.NoError(t, err)
	assert.True(t, receipt.Session.TotalAmount.Decimal.Equal(amount))

	list, err := e.ListTariffs(ctx, "abc")
	require.NoError(t, err)
	assert.Len(t, list, 1)
	require.NoError(t, e.DeleteTariff(ctx, created.ID))
}

func TestEngineSearchWithoutTerminal(t *testing.T) {
	ctx := context.Background()
	e, _ := newLocalEngine(t)
	_, err := e.RegisterEntry(ctx, models.RegisterRequest{Plate: "ABC-1", VehicleClass: models.VehicleCar})
	require.NoError(t, err)

	found, err := e.SearchByPlatePrefix(ctx, "", "ab")
	require.NoError(t, err)
	assert.Len(t, found, 1)

	found, err = e.SearchByPlatePrefix(ctx, "t1", "ab")
	require.NoError(t, err)
	assert.Len(t, found, 1)
}
