package billing

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"parkwise/backend/services/parking-service/internal/idgen"
	"parkwise/backend/services/parking-service/internal/metrics"
	"parkwise/backend/services/parking-service/internal/models"
	"parkwise/backend/services/parking-service/internal/tariff"
)

// Timestamp truncates t to the precision every store keeps.
func Timestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// ExitTime returns at, moved just past entry when the clock has not advanced.
func ExitTime(entry, at time.Time) time.Time {
	at = Timestamp(at)
	if !at.After(entry) {
		return entry.Add(time.Microsecond)
	}
	return at
}

// NewSession builds the active session for a validated registration.
func NewSession(req models.RegisterRequest, plate, ticket string, now time.Time, inheritedDebt decimal.Decimal) models.Session {
	s := models.Session{
		ID:            idgen.New(idgen.PrefixSession),
		TicketCode:    ticket,
		Plate:         plate,
		VehicleClass:  req.VehicleClass,
		Observations:  strings.TrimSpace(req.Observations),
		EntryTime:     Timestamp(now),
		Status:        models.SessionActive,
		Debt:          decimal.Zero,
		InheritedDebt: inheritedDebt,
	}
	if req.RateOverride != nil {
		s.RateOverride = decimal.NewNullDecimal(*req.RateOverride)
	}
	return s
}

// Checkout completes s at the given instant. plateDebt is the outstanding debt of the
// plate's earlier sessions; it is added to the parking cost and, after settlement, any
// unpaid remainder lives on s alone.
func Checkout(r *tariff.Resolver, s models.Session, at time.Time, plateDebt decimal.Decimal, req models.ExitRequest) models.ExitReceipt {
	exit := ExitTime(s.EntryTime, at)

	var override *decimal.Decimal
	if s.RateOverride.Valid {
		override = &s.RateOverride.Decimal
	}
	charge := r.Default(s.VehicleClass, exit.Sub(s.EntryTime), override)
	cost := charge.Amount
	if req.CustomAmount != nil {
		cost = *req.CustomAmount
	}

	owed := cost.Add(plateDebt)
	charged, debt, change := models.Settle(owed, req.PartialPayment)

	s.Status = models.SessionCompleted
	s.ExitTime = &exit
	s.TotalAmount = decimal.NewNullDecimal(charged)
	s.Debt = debt
	models.MustBeConsistent(s)

	return models.ExitReceipt{
		Session:        s,
		ElapsedMinutes: charge.ElapsedMinutes,
		ParkingCost:    cost,
		DebtApplied:    plateDebt,
		Owed:           owed,
		Change:         change,
	}
}

// PaymentFor is the ledger line of a processed exit.
func PaymentFor(receipt models.ExitReceipt, method string) models.Payment {
	return models.Payment{
		ID:        idgen.New(idgen.PrefixPayment),
		SessionID: receipt.Session.ID,
		Amount:    receipt.Session.TotalAmount.Decimal,
		Method:    models.NormalizePaymentMethod(method),
		CreatedAt: *receipt.Session.ExitTime,
	}
}

// ObserveExit records the exit counters for a processed checkout.
func ObserveExit(receipt models.ExitReceipt, payment models.Payment) {
	metrics.ExitsProcessed.WithLabelValues(string(payment.Method)).Inc()
	metrics.AmountCharged.WithLabelValues(string(payment.Method)).Add(payment.Amount.InexactFloat64())
	if receipt.Session.Debt.IsPositive() {
		metrics.DebtCreated.Add(receipt.Session.Debt.InexactFloat64())
	}
}
