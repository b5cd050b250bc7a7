package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// VehicleClass selects the default hourly rate and whether a plate is mandatory.
type VehicleClass string

const (
	VehicleCar        VehicleClass = "car"
	VehicleMotorcycle VehicleClass = "motorcycle"
	VehicleTruck      VehicleClass = "truck"
	VehicleBicycle    VehicleClass = "bicycle"
)

// VehicleClasses lists every known class in display order.
var VehicleClasses = []VehicleClass{VehicleCar, VehicleMotorcycle, VehicleTruck, VehicleBicycle}

// Valid reports whether c is a known class.
func (c VehicleClass) Valid() bool {
	switch c {
	case VehicleCar, VehicleMotorcycle, VehicleTruck, VehicleBicycle:
		return true
	}
	return false
}

// RequiresPlate is false only for bicycles.
func (c VehicleClass) RequiresPlate() bool {
	return c != VehicleBicycle
}

// ParseVehicleClass normalizes s and rejects unknown classes.
func ParseVehicleClass(s string) (VehicleClass, error) {
	c := VehicleClass(strings.ToLower(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", NewValidationError(CodeInvalidArgument, "unknown vehicle class %q", s)
	}
	return c, nil
}

// SessionStatus is the lifecycle state of a parking session.
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
)

// Session is one parking visit from entry to exit.
type Session struct {
	ID            string              `db:"id" json:"id"`
	TicketCode    string              `db:"ticket_code" json:"ticket_code"`
	Plate         string              `db:"plate" json:"plate"`
	VehicleClass  VehicleClass        `db:"vehicle_class" json:"vehicle_class"`
	Observations  string              `db:"observations" json:"observations,omitempty"`
	EntryTime     time.Time           `db:"entry_time" json:"entry_time"`
	ExitTime      *time.Time          `db:"exit_time" json:"exit_time,omitempty"`
	Status        SessionStatus       `db:"status" json:"status"`
	TotalAmount   decimal.NullDecimal `db:"total_amount" json:"total_amount"`
	Debt          decimal.Decimal     `db:"debt" json:"debt"`
	InheritedDebt decimal.Decimal     `db:"inherited_debt" json:"inherited_debt"`
	RateOverride  decimal.NullDecimal `db:"rate_override" json:"rate_override"`
}

// IsActive reports whether the vehicle is still parked.
func (s *Session) IsActive() bool {
	return s.Status == SessionActive
}

// MustBeConsistent panics when s breaks a lifecycle rule. A broken session means a
// billing defect upstream, so it is never reported as an ordinary error.
func MustBeConsistent(s Session) {
	switch s.Status {
	case SessionActive:
		if s.ExitTime != nil {
			panic(fmt.Sprintf("models: active session %s has exit time", s.ID))
		}
		if !s.Debt.IsZero() {
			panic(fmt.Sprintf("models: active session %s carries debt", s.ID))
		}
	case SessionCompleted:
		if s.ExitTime == nil {
			panic(fmt.Sprintf("models: completed session %s has no exit time", s.ID))
		}
		if !s.TotalAmount.Valid || s.TotalAmount.Decimal.IsNegative() {
			panic(fmt.Sprintf("models: completed session %s has invalid total", s.ID))
		}
	default:
		panic(fmt.Sprintf("models: session %s has unknown status %q", s.ID, s.Status))
	}
	if s.Debt.IsNegative() {
		panic(fmt.Sprintf("models: session %s has negative debt", s.ID))
	}
}

// NormalizePlate trims and upper-cases a plate.
func NormalizePlate(plate string) string {
	return strings.ToUpper(strings.TrimSpace(plate))
}

// RegisterRequest carries the arguments of an entry registration. TicketCode nil means
// "generate one"; a non-nil empty code is rejected. RateOverride replaces the class
// hourly rate for this session.
type RegisterRequest struct {
	Plate        string           `json:"plate"`
	VehicleClass VehicleClass     `json:"vehicle_class"`
	Observations string           `json:"observations,omitempty"`
	TicketCode   *string          `json:"ticket_code,omitempty"`
	RateOverride *decimal.Decimal `json:"rate_override,omitempty"`
}

// Normalize validates req and returns the canonical plate and ticket code. The ticket
// code is empty when one must be generated.
func (r RegisterRequest) Normalize() (plate string, ticket string, err error) {
	if !r.VehicleClass.Valid() {
		return "", "", NewValidationError(CodeInvalidArgument, "unknown vehicle class %q", r.VehicleClass)
	}
	if r.TicketCode != nil {
		ticket = strings.TrimSpace(*r.TicketCode)
		if ticket == "" {
			return "", "", ErrTicketCodeEmpty
		}
	}
	if r.RateOverride != nil && r.RateOverride.IsNegative() {
		return "", "", NewValidationError(CodeInvalidArgument, "rate override must not be negative")
	}
	plate = NormalizePlate(r.Plate)
	if plate == "" && r.VehicleClass.RequiresPlate() {
		return "", "", ErrPlateRequired
	}
	return plate, ticket, nil
}

// ExitRequest carries the arguments of a checkout.
type ExitRequest struct {
	TicketCode     string           `json:"ticket_code"`
	PartialPayment *decimal.Decimal `json:"partial_payment,omitempty"`
	PaymentMethod  string           `json:"payment_method,omitempty"`
	CustomAmount   *decimal.Decimal `json:"custom_amount,omitempty"`
}

// Validate rejects negative money arguments.
func (r ExitRequest) Validate() error {
	if strings.TrimSpace(r.TicketCode) == "" {
		return ErrUnknownTicket
	}
	if r.PartialPayment != nil && r.PartialPayment.IsNegative() {
		return NewValidationError(CodeInvalidArgument, "partial payment must be non-negative")
	}
	if r.CustomAmount != nil && r.CustomAmount.IsNegative() {
		return NewValidationError(CodeInvalidArgument, "custom amount must be non-negative")
	}
	return nil
}

// ExitReceipt is the outcome of a processed exit.
type ExitReceipt struct {
	Session        Session         `json:"session"`
	ElapsedMinutes int64           `json:"elapsed_minutes"`
	ParkingCost    decimal.Decimal `json:"parking_cost"`
	DebtApplied    decimal.Decimal `json:"debt_applied"`
	Owed           decimal.Decimal `json:"owed"`
	Change         decimal.Decimal `json:"change"`
}

// Settle splits owed into the amount charged now and the debt carried forward. An
// overpayment clears the debt; the excess is reported as change and not stored.
func Settle(owed decimal.Decimal, partial *decimal.Decimal) (charged, debt, change decimal.Decimal) {
	if partial != nil && partial.LessThan(owed) {
		return *partial, owed.Sub(*partial), decimal.Zero
	}
	if partial != nil {
		return owed, decimal.Zero, partial.Sub(owed)
	}
	return owed, decimal.Zero, decimal.Zero
}

// PaymentMethod is how an exit was paid.
type PaymentMethod string

const (
	PaymentCash     PaymentMethod = "cash"
	PaymentCard     PaymentMethod = "card"
	PaymentTransfer PaymentMethod = "transfer"
)

// NormalizePaymentMethod lower-cases m; unknown or empty values count as cash.
func NormalizePaymentMethod(m string) PaymentMethod {
	switch PaymentMethod(strings.ToLower(strings.TrimSpace(m))) {
	case PaymentCard:
		return PaymentCard
	case PaymentTransfer:
		return PaymentTransfer
	default:
		return PaymentCash
	}
}

// Payment is one ledger line written at checkout.
type Payment struct {
	ID        string          `db:"id" json:"id"`
	SessionID string          `db:"session_id" json:"session_id"`
	Amount    decimal.Decimal `db:"amount" json:"amount"`
	Method    PaymentMethod   `db:"method" json:"method"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}

const (
	DefaultPageLimit = 50
	MaxPageLimit     = 500
	// SearchLimit caps plate prefix searches.
	SearchLimit = 50
)

// Page is a limit/offset window.
type Page struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// Normalized applies the default and maximum limit.
func (p Page) Normalized() Page {
	if p.Limit <= 0 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// SessionList is one page of sessions plus the unpaged total.
type SessionList struct {
	Items []Session `json:"items"`
	Total int       `json:"total"`
}

// Debtor aggregates the outstanding debt of one plate.
type Debtor struct {
	Plate            string          `db:"plate" json:"plate"`
	TotalDebt        decimal.Decimal `db:"total_debt" json:"total_debt"`
	OldestExitTime   *time.Time      `db:"oldest_exit_time" json:"oldest_exit_time,omitempty"`
	SessionsWithDebt int             `db:"sessions_with_debt" json:"sessions_with_debt"`
}

// DebtorList is one page of debtors plus the unpaged total.
type DebtorList struct {
	Items []Debtor `json:"items"`
	Total int      `json:"total"`
}

// Quote previews what a checkout would charge right now.
type Quote struct {
	Session        Session          `json:"session"`
	ElapsedMinutes int64            `json:"elapsed_minutes"`
	DefaultCost    decimal.Decimal  `json:"default_cost"`
	Tariff         *Tariff          `json:"tariff,omitempty"`
	TariffCost     *decimal.Decimal `json:"tariff_cost,omitempty"`
	PlateDebt      decimal.Decimal  `json:"plate_debt"`
}
