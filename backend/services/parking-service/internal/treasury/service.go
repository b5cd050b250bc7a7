package treasury

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"parkwise/backend/services/parking-service/internal/idgen"
	"parkwise/backend/services/parking-service/internal/metrics"
	"parkwise/backend/services/parking-service/internal/models"
)

// Ledger is the payment and closure history the till is derived from.
type Ledger interface {
	Payments(ctx context.Context, from, to time.Time) ([]models.Payment, error)
	LastClosedAt(ctx context.Context, from, to time.Time) (*time.Time, error)
	InsertClosure(ctx context.Context, c models.ShiftClosure) error
	Closures(ctx context.Context, limit int) ([]models.ShiftClosure, error)
}

// Service computes till views and records shift closures. It never touches sessions.
type Service struct {
	ledger Ledger
	loc    *time.Location
	logger *zap.Logger
	now    func() time.Time
}

// NewService returns service instance. Business days start at midnight in loc; nil
// means the local zone.
func NewService(ledger Ledger, loc *time.Location, logger *zap.Logger) *Service {
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{ledger: ledger, loc: loc, logger: logger, now: time.Now}
}

// window returns the open shift of the day containing date: from the later of midnight
// and that day's last closure, up to the end of the day.
func (s *Service) window(ctx context.Context, date time.Time) (since, dayEnd time.Time, err error) {
	date = date.In(s.loc)
	since = time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, s.loc)
	dayEnd = since.AddDate(0, 0, 1)
	last, err := s.ledger.LastClosedAt(ctx, since, dayEnd)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("treasury: last closure: %w", err)
	}
	if last != nil && last.After(since) {
		since = last.In(s.loc)
	}
	return since, dayEnd, nil
}

// Treasury returns the till view of the open shift on date.
func (s *Service) Treasury(ctx context.Context, date time.Time, actualCash *decimal.Decimal) (models.TillView, error) {
	since, dayEnd, err := s.window(ctx, date)
	if err != nil {
		return models.TillView{}, err
	}
	until := dayEnd
	if now := s.now(); now.Before(until) {
		until = now.In(s.loc)
	}
	payments, err := s.ledger.Payments(ctx, since, dayEnd)
	if err != nil {
		return models.TillView{}, fmt.Errorf("treasury: payments: %w", err)
	}
	view := Aggregate(payments, actualCash)
	view.Since = since
	view.Until = until
	return view, nil
}

// CloseShift snapshots today's open shift into an immutable closure.
func (s *Service) CloseShift(ctx context.Context, req models.CloseShiftRequest) (models.ShiftClosure, error) {
	if req.ArqueoCash != nil && req.ArqueoCash.IsNegative() {
		return models.ShiftClosure{}, models.NewValidationError(models.CodeInvalidArgument, "arqueo cash must be non-negative")
	}
	now := s.now().Truncate(time.Microsecond)
	since, _, err := s.window(ctx, now)
	if err != nil {
		return models.ShiftClosure{}, err
	}
	payments, err := s.ledger.Payments(ctx, since, now)
	if err != nil {
		return models.ShiftClosure{}, fmt.Errorf("treasury: payments: %w", err)
	}

	req.Notes = strings.TrimSpace(req.Notes)
	closure := Snapshot(Aggregate(payments, nil), req)
	closure.ID = idgen.New(idgen.PrefixShiftClosure)
	closure.ClosedAt = now.UTC()
	if err := s.ledger.InsertClosure(ctx, closure); err != nil {
		return models.ShiftClosure{}, fmt.Errorf("treasury: insert closure: %w", err)
	}

	metrics.ShiftsClosed.Inc()
	s.logger.Info("shift closed",
		zap.String("closure_id", closure.ID),
		zap.Stringer("expected_total", closure.ExpectedTotal),
		zap.Stringer("cash_total", closure.CashTotal),
		zap.Stringer("discrepancy", closure.Discrepancy),
		zap.Int("transactions", closure.TotalTransactions),
	)
	return closure, nil
}

// ListClosures returns the closure history newest first.
func (s *Service) ListClosures(ctx context.Context, limit int) ([]models.ShiftClosure, error) {
	return s.ledger.Closures(ctx, models.ClampClosureLimit(limit))
}
