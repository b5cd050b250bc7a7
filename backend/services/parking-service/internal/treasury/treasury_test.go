package treasury

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parkwise/backend/services/parking-service/internal/models"
)

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func payment(id string, amount int64, method models.PaymentMethod, at time.Time) models.Payment {
	return models.Payment{ID: id, SessionID: "VH" + id, Amount: d(amount), Method: method, CreatedAt: at}
}

func TestAggregateShiftScenario(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	payments := []models.Payment{
		payment("1", 30, models.PaymentCash, at),
		payment("2", 20, models.PaymentCard, at),
		payment("3", 50, models.PaymentCash, at),
	}

	view := Aggregate(payments, nil)
	assert.True(t, view.ExpectedCash.Equal(d(80)))
	assert.True(t, view.ExpectedTotal.Equal(d(100)))
	assert.True(t, view.ActualCash.Equal(d(80)))
	assert.True(t, view.Discrepancy.IsZero())
	assert.True(t, view.PaymentBreakdown.Cash.Equal(d(80)))
	assert.True(t, view.PaymentBreakdown.Card.Equal(d(20)))
	assert.True(t, view.PaymentBreakdown.Transfer.IsZero())
	assert.Equal(t, 3, view.TotalTransactions)

	counted := d(75)
	closure := Snapshot(view, models.CloseShiftRequest{ArqueoCash: &counted})
	assert.True(t, closure.Discrepancy.Equal(d(-5)))
	assert.True(t, closure.ArqueoCash.Valid)
	assert.True(t, closure.CashTotal.Equal(d(80)))
	assert.True(t, closure.ExpectedTotal.Equal(d(100)))

	withActual := Aggregate(payments, &counted)
	assert.True(t, withActual.Discrepancy.Equal(d(-5)))
}

func TestAggregateUnknownMethodCountsAsCash(t *testing.T) {
	view := Aggregate([]models.Payment{payment("1", 10, "voucher", time.Now())}, nil)
	assert.True(t, view.ExpectedCash.Equal(d(10)))
}

func TestSnapshotWithoutCountHasNoDiscrepancy(t *testing.T) {
	view := Aggregate([]models.Payment{payment("1", 10, models.PaymentCash, time.Now())}, nil)
	closure := Snapshot(view, models.CloseShiftRequest{Notes: "quiet day"})
	assert.False(t, closure.ArqueoCash.Valid)
	assert.True(t, closure.Discrepancy.IsZero())
	assert.Equal(t, "quiet day", closure.Notes)
}

func TestServiceCloseShiftStartsNewWindow(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryLedger()
	svc := NewService(ledger, time.UTC, nil)

	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	ledger.RecordPayment(payment("0", 999, models.PaymentCash, day.Add(-time.Hour)))
	ledger.RecordPayment(payment("1", 30, models.PaymentCash, day.Add(9*time.Hour)))
	ledger.RecordPayment(payment("2", 20, models.PaymentCard, day.Add(10*time.Hour)))
	ledger.RecordPayment(payment("3", 50, models.PaymentCash, day.Add(11*time.Hour)))

	svc.now = func() time.Time { return day.Add(12 * time.Hour) }
	view, err := svc.Treasury(ctx, day.Add(13*time.Hour), nil)
	require.NoError(t, err)
	assert.True(t, view.ExpectedCash.Equal(d(80)))
	assert.Equal(t, 3, view.TotalTransactions)
	assert.Equal(t, day, view.Since)
	assert.Equal(t, day.Add(12*time.Hour), view.Until)

	counted := d(75)
	closure, err := svc.CloseShift(ctx, models.CloseShiftRequest{ArqueoCash: &counted, Notes: "  evening "})
	require.NoError(t, err)
	assert.True(t, closure.Discrepancy.Equal(d(-5)))
	assert.Equal(t, "evening", closure.Notes)
	assert.Equal(t, 3, closure.TotalTransactions)
	assert.Len(t, closure.ID, 25)

	ledger.RecordPayment(payment("4", 15, models.PaymentTransfer, day.Add(13*time.Hour)))
	svc.now = func() time.Time { return day.Add(14 * time.Hour) }
	view, err = svc.Treasury(ctx, day, nil)
	require.NoError(t, err)
	assert.True(t, view.ExpectedCash.IsZero())
	assert.True(t, view.ExpectedTotal.Equal(d(15)))
	assert.Equal(t, 1, view.TotalTransactions)
	assert.Equal(t, closure.ClosedAt, view.Since.UTC())

	history, err := svc.ListClosures(ctx, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, closure.ID, history[0].ID)
}

func TestServiceRejectsNegativeCount(t *testing.T) {
	svc := NewService(NewMemoryLedger(), time.UTC, nil)
	negative := d(-1)
	_, err := svc.CloseShift(context.Background(), models.CloseShiftRequest{ArqueoCash: &negative})
	assert.Equal(t, models.CodeInvalidArgument, models.CodeOf(err))
}

func TestMemoryLedgerRemoveSessionAndOrdering(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()
	at := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	l.RecordPayment(payment("1", 10, models.PaymentCash, at))
	l.RecordPayment(payment("2", 10, models.PaymentCash, at))
	l.RemoveSession("VH1")

	payments, err := l.Payments(ctx, at, at.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, "2", payments[0].ID)

	for i := 0; i < 3; i++ {
		require.NoError(t, l.InsertClosure(ctx, models.ShiftClosure{ID: string(rune('a' + i)), ClosedAt: at.Add(time.Duration(i) * time.Hour)}))
	}
	closures, err := l.Closures(ctx, 2)
	require.NoError(t, err)
	require.Len(t, closures, 2)
	assert.Equal(t, "c", closures[0].ID)
	assert.Equal(t, "b", closures[1].ID)

	last, err := l.LastClosedAt(ctx, at, at.Add(90*time.Minute))
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, at.Add(time.Hour), *last)
}
