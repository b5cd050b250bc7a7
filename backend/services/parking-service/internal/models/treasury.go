package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentBreakdown sums payments per method.
type PaymentBreakdown struct {
	Cash     decimal.Decimal `json:"cash"`
	Card     decimal.Decimal `json:"card"`
	Transfer decimal.Decimal `json:"transfer"`
}

// Total is the sum over every method.
func (b PaymentBreakdown) Total() decimal.Decimal {
	return b.Cash.Add(b.Card).Add(b.Transfer)
}

// TillView is the read-only state of the open shift.
type TillView struct {
	Since             time.Time        `json:"since"`
	Until             time.Time        `json:"until"`
	ExpectedCash      decimal.Decimal  `json:"expected_cash"`
	ExpectedTotal     decimal.Decimal  `json:"expected_total"`
	ActualCash        decimal.Decimal  `json:"actual_cash"`
	Discrepancy       decimal.Decimal  `json:"discrepancy"`
	PaymentBreakdown  PaymentBreakdown `json:"payment_breakdown"`
	TotalTransactions int              `json:"total_transactions"`
}

// ShiftClosure is an immutable snapshot of the till taken when a shift ends.
type ShiftClosure struct {
	ID                string              `db:"id" json:"id"`
	ClosedAt          time.Time           `db:"closed_at" json:"closed_at"`
	ExpectedTotal     decimal.Decimal     `db:"expected_total" json:"expected_total"`
	CashTotal         decimal.Decimal     `db:"cash_total" json:"cash_total"`
	CardTotal         decimal.Decimal     `db:"card_total" json:"card_total"`
	TransferTotal     decimal.Decimal     `db:"transfer_total" json:"transfer_total"`
	ArqueoCash        decimal.NullDecimal `db:"arqueo_cash" json:"arqueo_cash"`
	Discrepancy       decimal.Decimal     `db:"discrepancy" json:"discrepancy"`
	TotalTransactions int                 `db:"total_transactions" json:"total_transactions"`
	Notes             string              `db:"notes" json:"notes,omitempty"`
}

// CloseShiftRequest carries the operator's count and remarks.
type CloseShiftRequest struct {
	ArqueoCash *decimal.Decimal `json:"arqueo_cash,omitempty"`
	Notes      string           `json:"notes,omitempty"`
}

const (
	DefaultClosureLimit = 50
	MaxClosureLimit     = 200
)

// ClampClosureLimit applies the default and maximum history size.
func ClampClosureLimit(limit int) int {
	if limit <= 0 {
		return DefaultClosureLimit
	}
	if limit > MaxClosureLimit {
		return MaxClosureLimit
	}
	return limit
}
