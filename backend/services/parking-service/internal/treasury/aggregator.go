package treasury

import (
	"github.com/shopspring/decimal"

	"parkwise/backend/services/parking-service/internal/models"
)

// Aggregate builds the till view of payments. actualCash is the operator's count; when
// nil it defaults to the expected cash and the discrepancy is zero.
func Aggregate(payments []models.Payment, actualCash *decimal.Decimal) models.TillView {
	var b models.PaymentBreakdown
	for _, p := range payments {
		switch models.NormalizePaymentMethod(string(p.Method)) {
		case models.PaymentCard:
			b.Card = b.Card.Add(p.Amount)
		case models.PaymentTransfer:
			b.Transfer = b.Transfer.Add(p.Amount)
		default:
			b.Cash = b.Cash.Add(p.Amount)
		}
	}

	view := models.TillView{
		ExpectedCash:      b.Cash,
		ExpectedTotal:     b.Total(),
		ActualCash:        b.Cash,
		PaymentBreakdown:  b,
		TotalTransactions: len(payments),
	}
	if actualCash != nil {
		view.ActualCash = *actualCash
	}
	view.Discrepancy = view.ActualCash.Sub(view.ExpectedCash)
	return view
}

// Snapshot turns a till view into a closure. The discrepancy is measured against the
// cash total only when the operator counted the drawer.
func Snapshot(view models.TillView, req models.CloseShiftRequest) models.ShiftClosure {
	c := models.ShiftClosure{
		ExpectedTotal:     view.ExpectedTotal,
		CashTotal:         view.PaymentBreakdown.Cash,
		CardTotal:         view.PaymentBreakdown.Card,
		TransferTotal:     view.PaymentBreakdown.Transfer,
		Discrepancy:       decimal.Zero,
		TotalTransactions: view.TotalTransactions,
		Notes:             req.Notes,
	}
	if req.ArqueoCash != nil {
		c.ArqueoCash = decimal.NewNullDecimal(*req.ArqueoCash)
		c.Discrepancy = req.ArqueoCash.Sub(c.CashTotal)
	}
	return c
}
