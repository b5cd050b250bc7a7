package models

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func TestSettle(t *testing.T) {
	owed := d(80)

	charged, debt, change := Settle(owed, nil)
	assert.True(t, charged.Equal(owed))
	assert.True(t, debt.IsZero())
	assert.True(t, change.IsZero())

	partial := d(10)
	charged, debt, change = Settle(owed, &partial)
	assert.True(t, charged.Equal(d(10)))
	assert.True(t, debt.Equal(d(70)))
	assert.True(t, change.IsZero())

	exact := d(80)
	charged, debt, _ = Settle(owed, &exact)
	assert.True(t, charged.Equal(owed))
	assert.True(t, debt.IsZero())

	over := d(100)
	charged, debt, change = Settle(owed, &over)
	assert.True(t, charged.Equal(owed))
	assert.True(t, debt.IsZero())
	assert.True(t, change.Equal(d(20)))
}

func TestNormalizePaymentMethod(t *testing.T) {
	assert.Equal(t, PaymentCash, NormalizePaymentMethod(""))
	assert.Equal(t, PaymentCash, NormalizePaymentMethod("bitcoin"))
	assert.Equal(t, PaymentCard, NormalizePaymentMethod(" CARD "))
	assert.Equal(t, PaymentTransfer, NormalizePaymentMethod("Transfer"))
}

func TestRegisterRequestNormalize(t *testing.T) {
	empty := ""
	code := " TK1 "

	cases := []struct {
		name    string
		req     RegisterRequest
		plate   string
		ticket  string
		wantErr error
	}{
		{"car", RegisterRequest{Plate: " abc-123", VehicleClass: VehicleCar, TicketCode: &code}, "ABC-123", "TK1", nil},
		{"bicycle without plate", RegisterRequest{VehicleClass: VehicleBicycle}, "", "", nil},
		{"truck without plate", RegisterRequest{Plate: "  ", VehicleClass: VehicleTruck}, "", "", ErrPlateRequired},
		{"empty ticket", RegisterRequest{Plate: "A", VehicleClass: VehicleCar, TicketCode: &empty}, "", "", ErrTicketCodeEmpty},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			plate, ticket, err := tc.req.Normalize()
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.plate, plate)
			assert.Equal(t, tc.ticket, ticket)
		})
	}

	_, _, err := RegisterRequest{Plate: "A", VehicleClass: "bus"}.Normalize()
	assert.Equal(t, CodeInvalidArgument, CodeOf(err))

	negative := decimal.NewFromInt(-1)
	_, _, err = RegisterRequest{Plate: "A", VehicleClass: VehicleCar, RateOverride: &negative}.Normalize()
	assert.Equal(t, CodeInvalidArgument, CodeOf(err))

	free := decimal.Zero
	_, _, err = RegisterRequest{Plate: "A", VehicleClass: VehicleCar, RateOverride: &free}.Normalize()
	assert.NoError(t, err)
}

func TestExitRequestValidate(t *testing.T) {
	neg := d(-1)
	assert.ErrorIs(t, ExitRequest{}.Validate(), ErrUnknownTicket)
	assert.Equal(t, CodeInvalidArgument, CodeOf(ExitRequest{TicketCode: "TK", PartialPayment: &neg}.Validate()))
	assert.Equal(t, CodeInvalidArgument, CodeOf(ExitRequest{TicketCode: "TK", CustomAmount: &neg}.Validate()))
	assert.NoError(t, ExitRequest{TicketCode: "TK"}.Validate())
}

func TestValidationErrorMatching(t *testing.T) {
	wrapped := fmt.Errorf("register: %w", NewValidationError(CodePlateAlreadyActive, "plate %s busy", "ABC"))
	assert.ErrorIs(t, wrapped, ErrPlateAlreadyActive)
	assert.False(t, errors.Is(wrapped, ErrTicketAlreadyInUse))
	assert.True(t, IsValidation(wrapped))
	assert.False(t, IsValidation(errors.New("boom")))
	assert.Equal(t, ErrorCode(""), CodeOf(errors.New("boom")))
}

func TestMustBeConsistent(t *testing.T) {
	now := time.Now()
	active := Session{ID: "1", Status: SessionActive}
	assert.NotPanics(t, func() { MustBeConsistent(active) })

	withExit := active
	withExit.ExitTime = &now
	assert.Panics(t, func() { MustBeConsistent(withExit) })

	withDebt := active
	withDebt.Debt = d(5)
	assert.Panics(t, func() { MustBeConsistent(withDebt) })

	completed := Session{ID: "2", Status: SessionCompleted, ExitTime: &now, TotalAmount: decimal.NewNullDecimal(d(50))}
	assert.NotPanics(t, func() { MustBeConsistent(completed) })

	noExit := completed
	noExit.ExitTime = nil
	assert.Panics(t, func() { MustBeConsistent(noExit) })

	negative := completed
	negative.Debt = d(-1)
	assert.Panics(t, func() { MustBeConsistent(negative) })

	assert.Panics(t, func() { MustBeConsistent(Session{Status: "parked"}) })
}

func TestDetectPlateConflicts(t *testing.T) {
	base := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	sessions := []Session{
		{ID: "b2", Plate: "BBB", Status: SessionActive, EntryTime: base.Add(3 * time.Hour)},
		{ID: "a2", Plate: "aaa", Status: SessionActive, EntryTime: base.Add(2 * time.Hour)},
		{ID: "b1", Plate: "BBB", Status: SessionActive, EntryTime: base.Add(time.Hour)},
		{ID: "a1", Plate: "AAA", Status: SessionActive, EntryTime: base.Add(90 * time.Minute)},
		{ID: "a0", Plate: "AAA", Status: SessionCompleted, EntryTime: base},
		{ID: "c1", Plate: "CCC", Status: SessionActive, EntryTime: base},
		{ID: "n1", Status: SessionActive, EntryTime: base},
		{ID: "n2", Status: SessionActive, EntryTime: base},
	}

	conflicts := DetectPlateConflicts(sessions)
	require.Len(t, conflicts, 2)
	assert.Equal(t, "BBB", conflicts[0].Plate)
	assert.Equal(t, []string{"b1", "b2"}, conflicts[0].SessionIDs())
	assert.Equal(t, "AAA", conflicts[1].Plate)
	assert.Equal(t, []string{"a1", "a2"}, conflicts[1].SessionIDs())

	assert.Empty(t, DetectPlateConflicts(nil))
}

func TestTariffInputApply(t *testing.T) {
	class := VehicleMotorcycle
	amount := d(12)
	minutes := 30
	zero := 0
	scope := " ab-1 "

	tariff, err := TariffInput{VehicleClass: &class, Amount: &amount, BlockHours: &zero, BlockMinutes: &minutes, ScopeKey: &scope}.Apply(Tariff{})
	require.NoError(t, err)
	assert.Equal(t, int64(30), tariff.BlockLength())
	assert.Equal(t, "AB-1", tariff.ScopeKey)
	assert.False(t, tariff.IsDefault())
	assert.True(t, tariff.MatchesSearch("motor"))
	assert.False(t, tariff.MatchesSearch("truck"))

	defaults, err := TariffInput{VehicleClass: &class, Amount: &amount}.Apply(Tariff{})
	require.NoError(t, err)
	assert.Equal(t, int64(60), defaults.BlockLength())

	neg := d(-3)
	_, err = TariffInput{VehicleClass: &class, Amount: &neg}.Apply(Tariff{})
	assert.Equal(t, CodeInvalidArgument, CodeOf(err))

	bad := 75
	_, err = TariffInput{VehicleClass: &class, BlockMinutes: &bad}.Apply(Tariff{})
	assert.Equal(t, CodeInvalidArgument, CodeOf(err))

	unit := RateUnit("day")
	_, err = TariffInput{VehicleClass: &class, RateUnit: &unit}.Apply(Tariff{})
	assert.Equal(t, CodeInvalidArgument, CodeOf(err))

	_, err = TariffInput{}.Apply(Tariff{})
	assert.Equal(t, CodeInvalidArgument, CodeOf(err))
}

func TestPageNormalized(t *testing.T) {
	assert.Equal(t, Page{Limit: DefaultPageLimit}, Page{}.Normalized())
	assert.Equal(t, Page{Limit: MaxPageLimit, Offset: 0}, Page{Limit: 9999, Offset: -4}.Normalized())
	assert.Equal(t, 50, ClampClosureLimit(0))
	assert.Equal(t, 200, ClampClosureLimit(1000))
}
