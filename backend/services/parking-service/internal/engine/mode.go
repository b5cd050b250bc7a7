package engine

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"parkwise/backend/services/parking-service/internal/command"
	"parkwise/backend/services/parking-service/internal/models"
	"parkwise/backend/services/parking-service/internal/store"
	"parkwise/backend/services/parking-service/internal/tariff"
	"parkwise/backend/services/parking-service/internal/treasury"
)

const (
	ModeLocal  = "local"
	ModeBacked = "backed"
)

// Till is the treasury surface of a mode.
type Till interface {
	Treasury(ctx context.Context, date time.Time, actualCash *decimal.Decimal) (models.TillView, error)
	CloseShift(ctx context.Context, req models.CloseShiftRequest) (models.ShiftClosure, error)
	ListClosures(ctx context.Context, limit int) ([]models.ShiftClosure, error)
}

// Mode bundles the components that own sessions, tariffs and the till. Exactly one mode
// is active per process.
type Mode struct {
	Name     string
	Sessions store.SessionStore
	Tariffs  tariff.Catalog
	Till     Till
}

// LocalMode keeps everything in memory.
func LocalMode(rates tariff.Rates, loc *time.Location, logger *zap.Logger) Mode {
	ledger := treasury.NewMemoryLedger()
	catalog := tariff.NewMemoryCatalog()
	tariffs := tariff.NewService(catalog, tariff.NewResolver(rates), logger)
	return Mode{
		Name:     ModeLocal,
		Sessions: store.NewLocal(ledger, tariffs, logger),
		Tariffs:  catalog,
		Till:     treasury.NewService(ledger, loc, logger),
	}
}

// BackedMode routes every operation to backend, with sessions read through cache.
func BackedMode(backend command.Backend, cache store.Cache, cacheName string, logger *zap.Logger) Mode {
	return Mode{
		Name:     ModeBacked,
		Sessions: store.NewBacked(backend, cache, cacheName, logger),
		Tariffs:  backend,
		Till:     remoteTill{backend: backend},
	}
}

type remoteTill struct {
	backend command.Backend
}

func (t remoteTill) Treasury(ctx context.Context, date time.Time, actualCash *decimal.Decimal) (models.TillView, error) {
	return t.backend.GetTreasury(ctx, date, actualCash)
}

func (t remoteTill) CloseShift(ctx context.Context, req models.CloseShiftRequest) (models.ShiftClosure, error) {
	return t.backend.CloseShift(ctx, req)
}

func (t remoteTill) ListClosures(ctx context.Context, limit int) ([]models.ShiftClosure, error) {
	return t.backend.ListShiftClosures(ctx, models.ClampClosureLimit(limit))
}
