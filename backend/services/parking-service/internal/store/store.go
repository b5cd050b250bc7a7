package store

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"parkwise/backend/services/parking-service/internal/models"
)

// SessionStore is the single owner of parking sessions in the running mode. Local keeps
// them in memory; Backed fronts the durable backend with a cache.
type SessionStore interface {
	RegisterEntry(ctx context.Context, req models.RegisterRequest) (models.Session, error)
	ProcessExit(ctx context.Context, req models.ExitRequest) (models.ExitReceipt, error)
	Quote(ctx context.Context, ticketCode string) (models.Quote, error)

	FindByTicket(ctx context.Context, code string) (*models.Session, error)
	FindByPlate(ctx context.Context, plate string) (*models.Session, error)
	ListByPlate(ctx context.Context, plate string) ([]models.Session, error)
	SearchByPlatePrefix(ctx context.Context, prefix string) ([]models.Session, error)
	ListActive(ctx context.Context, page models.Page) (models.SessionList, error)
	ListByDate(ctx context.Context, date time.Time, page models.Page) (models.SessionList, error)

	GetPlateDebt(ctx context.Context, plate string) (decimal.Decimal, error)
	ListDebtors(ctx context.Context, page models.Page) (models.DebtorList, error)
	TotalDebt(ctx context.Context) (decimal.Decimal, error)

	DeleteSession(ctx context.Context, id string) error
	PlateConflicts(ctx context.Context) ([]models.PlateConflict, error)
}

// DayBounds returns [midnight, next midnight) of date in its own location.
func DayBounds(date time.Time) (time.Time, time.Time) {
	start := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	return start, start.AddDate(0, 0, 1)
}
