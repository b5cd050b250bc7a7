package command

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"parkwise/backend/services/parking-service/internal/models"
)

// Backend is the command interface of the durable parking store. Every call is
// request/response. Reads are safe to retry; RegisterEntry, ProcessExit and CloseShift
// are retried only when the request provably never reached the store.
type Backend interface {
	ListActiveSessions(ctx context.Context, page models.Page) (models.SessionList, error)
	ListSessionsByDate(ctx context.Context, date time.Time, page models.Page) (models.SessionList, error)
	RegisterEntry(ctx context.Context, req models.RegisterRequest) (models.Session, error)
	ProcessExit(ctx context.Context, req models.ExitRequest) (models.ExitReceipt, error)
	Quote(ctx context.Context, ticketCode string) (models.Quote, error)

	GetPlateDebt(ctx context.Context, plate string) (decimal.Decimal, error)
	FindByTicket(ctx context.Context, code string) (*models.Session, error)
	FindByPlate(ctx context.Context, plate string) (*models.Session, error)
	ListByPlate(ctx context.Context, plate string) ([]models.Session, error)
	SearchByPlatePrefix(ctx context.Context, prefix string) ([]models.Session, error)
	ListDebtors(ctx context.Context, page models.Page) (models.DebtorList, error)
	TotalDebt(ctx context.Context) (decimal.Decimal, error)

	DeleteSession(ctx context.Context, id string) error
	ListPlateConflicts(ctx context.Context) ([]models.PlateConflict, error)
	ResolvePlateConflict(ctx context.Context, plate, keepID string) error

	GetTreasury(ctx context.Context, date time.Time, actualCash *decimal.Decimal) (models.TillView, error)
	ListShiftClosures(ctx context.Context, limit int) ([]models.ShiftClosure, error)
	CloseShift(ctx context.Context, req models.CloseShiftRequest) (models.ShiftClosure, error)

	ListTariffs(ctx context.Context, search string) ([]models.Tariff, error)
	CreateTariff(ctx context.Context, in models.TariffInput) (models.Tariff, error)
	UpdateTariff(ctx context.Context, id string, in models.TariffInput) (models.Tariff, error)
	DeleteTariff(ctx context.Context, id string) error
}
