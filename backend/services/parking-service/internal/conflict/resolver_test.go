package conflict

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"parkwise/backend/services/parking-service/internal/models"
	"parkwise/backend/services/parking-service/internal/store"
	"parkwise/backend/services/parking-service/internal/tariff"
	"parkwise/backend/services/parking-service/internal/treasury"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// flakySessions wraps a local store and fails deletes of chosen ids.
type flakySessions struct {
	*store.Local

	mu       sync.Mutex
	failIDs  map[string]error
	deleted  []string
	entered  chan struct{}
	blockDel chan struct{}
}

func (f *flakySessions) DeleteSession(ctx context.Context, id string) error {
	if f.blockDel != nil {
		f.entered <- struct{}{}
		<-f.blockDel
	}
	f.mu.Lock()
	err := f.failIDs[id]
	f.mu.Unlock()
	if err != nil {
		return err
	}
	if err := f.Local.DeleteSession(ctx, id); err != nil {
		return err
	}
	f.mu.Lock()
	f.deleted = append(f.deleted, id)
	f.mu.Unlock()
	return nil
}

func newSessions() *flakySessions {
	tariffs := tariff.NewService(tariff.NewMemoryCatalog(), tariff.NewResolver(nil), nil)
	return &flakySessions{
		Local:   store.NewLocal(treasury.NewMemoryLedger(), tariffs, nil),
		failIDs: make(map[string]error),
	}
}

func active(id, plate, ticket string, entry time.Time) models.Session {
	return models.Session{ID: id, TicketCode: ticket, Plate: plate, VehicleClass: models.VehicleCar, EntryTime: entry, Status: models.SessionActive}
}

func carRequest(plate, ticket string) models.RegisterRequest {
	return models.RegisterRequest{Plate: plate, VehicleClass: models.VehicleCar, TicketCode: &ticket}
}

func TestRegisterTurnsPlateConflictIntoPending(t *testing.T) {
	ctx := context.Background()
	sessions := newSessions()
	r := NewResolver(sessions, time.Hour, nil)

	first, err := r.Register(ctx, carRequest("DUP-1", "TKA"))
	require.NoError(t, err)
	require.NotNil(t, first.Session)
	assert.Nil(t, first.Pending)

	blocked, err := r.Register(ctx, carRequest("dup-1", "TKB"))
	require.NoError(t, err)
	assert.Nil(t, blocked.Session)
	require.NotNil(t, blocked.Pending)
	assert.Equal(t, "DUP-1", blocked.Pending.Plate)
	assert.Equal(t, "TKB", *blocked.Pending.Request.TicketCode)
	assert.Regexp(t, `^PC`, blocked.Pending.ID)
	require.Len(t, blocked.Pending.Candidates, 1)
	assert.Equal(t, first.Session.ID, blocked.Pending.Candidates[0].ID)

	_, err = r.Register(ctx, models.RegisterRequest{VehicleClass: models.VehicleCar})
	assert.ErrorIs(t, err, models.ErrPlateRequired)

	require.Len(t, r.ListPending(), 1)

	session, err := r.ResolvePending(ctx, blocked.Pending.ID, first.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, "TKB", session.TicketCode)
	assert.Empty(t, r.ListPending())

	_, err = r.Pending(blocked.Pending.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestResolvePendingRetainsOnFailure(t *testing.T) {
	ctx := context.Background()
	sessions := newSessions()
	r := NewResolver(sessions, 0, nil)

	first, err := r.Register(ctx, carRequest("DUP-1", "TKA"))
	require.NoError(t, err)
	blocked, err := r.Register(ctx, carRequest("DUP-1", "TKB"))
	require.NoError(t, err)

	sessions.failIDs[first.Session.ID] = errors.New("connection reset by peer")
	_, err = r.ResolvePending(ctx, blocked.Pending.ID, first.Session.ID)
	require.Error(t, err)

	kept, err := r.Pending(blocked.Pending.ID)
	require.NoError(t, err)
	assert.Equal(t, blocked.Pending.ID, kept.ID)

	_, err = r.ResolvePending(ctx, blocked.Pending.ID, "VHunrelated")
	assert.ErrorIs(t, err, models.ErrInvalidArgument)

	require.NoError(t, r.CancelPending(blocked.Pending.ID))
	assert.ErrorIs(t, r.CancelPending(blocked.Pending.ID), models.ErrNotFound)
	found, err := sessions.FindByTicket(ctx, "TKA")
	require.NoError(t, err)
	assert.NotNil(t, found, "cancel leaves sessions alone")
}

func TestResolvePendingRejectsConcurrentAttempt(t *testing.T) {
	ctx := context.Background()
	sessions := newSessions()
	r := NewResolver(sessions, 0, nil)

	first, err := r.Register(ctx, carRequest("DUP-1", "TKA"))
	require.NoError(t, err)
	blocked, err := r.Register(ctx, carRequest("DUP-1", "TKB"))
	require.NoError(t, err)

	sessions.entered = make(chan struct{})
	sessions.blockDel = make(chan struct{})
	done := make(chan error, 1)
	go func() {
		_, err := r.ResolvePending(ctx, blocked.Pending.ID, first.Session.ID)
		done <- err
	}()
	<-sessions.entered

	_, err = r.ResolvePending(ctx, blocked.Pending.ID, first.Session.ID)
	assert.ErrorIs(t, err, models.ErrOperationInProgress)

	close(sessions.blockDel)
	require.NoError(t, <-done)
}

func TestPendingExpires(t *testing.T) {
	ctx := context.Background()
	sessions := newSessions()
	r := NewResolver(sessions, time.Minute, nil)
	now := time.Date(2024, 6, 3, 8, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	_, err := r.Register(ctx, carRequest("DUP-1", "TKA"))
	require.NoError(t, err)
	blocked, err := r.Register(ctx, carRequest("DUP-1", "TKB"))
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = r.Pending(blocked.Pending.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestScanOrdersAndNotifies(t *testing.T) {
	ctx := context.Background()
	sessions := newSessions()
	base := time.Date(2024, 6, 3, 8, 0, 0, 0, time.UTC)
	sessions.Insert(active("VH3", "AAA", "T3", base.Add(2*time.Minute)))
	sessions.Insert(active("VH4", "AAA", "T4", base.Add(3*time.Minute)))
	sessions.Insert(active("VH2", "BBB", "T2", base.Add(time.Minute)))
	sessions.Insert(active("VH1", "BBB", "T1", base))

	r := NewResolver(sessions, 0, nil)
	var notified []string
	r.OnDetected(func(c models.PlateConflict) { notified = append(notified, c.Plate) })

	conflicts, err := r.Scan(ctx)
	require.NoError(t, err)
	require.Len(t, conflicts, 2)
	assert.Equal(t, "BBB", conflicts[0].Plate)
	assert.Equal(t, []string{"VH1", "VH2"}, conflicts[0].SessionIDs())
	assert.Equal(t, "AAA", conflicts[1].Plate)
	assert.ElementsMatch(t, []string{"AAA", "BBB"}, notified)

	again, err := r.Scan(ctx)
	require.NoError(t, err)
	assert.Equal(t, conflicts, again)
	assert.Len(t, notified, 2, "known conflicts are not re-announced")
}

func TestResolvePlatePartialFailureKeepsRemaining(t *testing.T) {
	ctx := context.Background()
	sessions := newSessions()
	base := time.Date(2024, 6, 3, 8, 0, 0, 0, time.UTC)
	for i, id := range []string{"VH1", "VH2", "VH3", "VH4"} {
		sessions.Insert(active(id, "DUP", "T"+id, base.Add(time.Duration(i)*time.Minute)))
	}
	sessions.Insert(active("VH9", "OTHER", "T9", base))
	sessions.Insert(active("VH8", "OTHER", "T8", base.Add(time.Minute)))

	r := NewResolver(sessions, 0, nil)
	_, err := r.Scan(ctx)
	require.NoError(t, err)

	sessions.failIDs["VH3"] = errors.New("connection refused")
	err = r.ResolvePlate(ctx, "dup", "VH1")
	require.Error(t, err)

	open := r.Open()
	require.Len(t, open, 2)
	var dup models.PlateConflict
	for _, c := range open {
		if c.Plate == "DUP" {
			dup = c
		}
	}
	assert.Equal(t, []string{"VH1", "VH3", "VH4"}, dup.SessionIDs())
	assert.Equal(t, []string{"VH2"}, sessions.deleted)

	delete(sessions.failIDs, "VH3")
	require.NoError(t, r.ResolvePlate(ctx, "DUP", "VH1"))
	assert.Equal(t, []string{"VH2", "VH3", "VH4"}, sessions.deleted)

	open = r.Open()
	require.Len(t, open, 1)
	assert.Equal(t, "OTHER", open[0].Plate, "plates resolve independently")

	err = r.ResolvePlate(ctx, "OTHER", "VH1")
	assert.ErrorIs(t, err, models.ErrNotFound)
	err = r.ResolvePlate(ctx, "NOPE", "VH1")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestResolvePlateTreatsMissingSessionAsDeleted(t *testing.T) {
	ctx := context.Background()
	sessions := newSessions()
	base := time.Date(2024, 6, 3, 8, 0, 0, 0, time.UTC)
	sessions.Insert(active("VH1", "DUP", "T1", base))
	sessions.Insert(active("VH2", "DUP", "T2", base.Add(time.Minute)))

	r := NewResolver(sessions, 0, nil)
	_, err := r.Scan(ctx)
	require.NoError(t, err)
	require.NoError(t, sessions.Local.DeleteSession(ctx, "VH2"))

	require.NoError(t, r.ResolvePlate(ctx, "DUP", "VH1"))
	assert.Empty(t, r.Open())
}

func TestRunStopsWithContext(t *testing.T) {
	sessions := newSessions()
	r := NewResolver(sessions, 0, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		r.Run(ctx, 5*time.Millisecond)
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()
	<-done

	r.Run(context.Background(), 0)
}

func TestResolvePlateDropsPlateHistory(t *testing.T) {
	ctx := context.Background()
	sessions := newSessions()
	base := time.Date(2024, 6, 3, 8, 0, 0, 0, time.UTC)
	left := base.Add(-2 * time.Hour)
	sessions.Insert(models.Session{
		ID: "VH0", TicketCode: "T0", Plate: "DUP-1", VehicleClass: models.VehicleTruck,
		EntryTime: base.Add(-4 * time.Hour), ExitTime: &left, Status: models.SessionCompleted,
		TotalAmount: decimal.NewNullDecimal(decimal.NewFromInt(140)), Debt: decimal.NewFromInt(70),
	})
	sessions.Insert(active("VH1", "DUP-1", "T1", base))
	sessions.Insert(active("VH2", "DUP-1", "T2", base.Add(time.Minute)))

	debt, err := sessions.GetPlateDebt(ctx, "DUP-1")
	require.NoError(t, err)
	require.True(t, debt.Equal(decimal.NewFromInt(70)))

	r := NewResolver(sessions, 0, nil)
	require.NoError(t, r.ResolvePlate(ctx, "dup-1", "VH2"))
	assert.Equal(t, []string{"VH1", "VH0"}, sessions.deleted)

	remaining, err := sessions.ListByPlate(ctx, "DUP-1")
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "VH2", remaining[0].ID)

	debt, err = sessions.GetPlateDebt(ctx, "DUP-1")
	require.NoError(t, err)
	assert.True(t, debt.IsZero(), "debt of deleted history is gone, got %s", debt)
	assert.Empty(t, r.Open())
}
