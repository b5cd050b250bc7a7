package command

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"parkwise/backend/services/parking-service/internal/metrics"
	"parkwise/backend/services/parking-service/internal/models"
)

const (
	DefaultMaxRetries = 2
	DefaultRetryDelay = time.Second
)

// RetryPolicy bounds retries of transient failures. Attempt n waits Delay*n.
type RetryPolicy struct {
	MaxRetries int
	Delay      time.Duration
}

// DefaultRetryPolicy returns two retries with a one second linear backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: DefaultMaxRetries, Delay: DefaultRetryDelay}
}

// Retrying decorates a Backend with bounded retries.
type Retrying struct {
	next   Backend
	policy RetryPolicy
	logger *zap.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// WithRetry wraps next. A negative MaxRetries disables retries.
func WithRetry(next Backend, policy RetryPolicy, logger *zap.Logger) *Retrying {
	if policy.MaxRetries < 0 {
		policy.MaxRetries = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retrying{next: next, policy: policy, logger: logger, sleep: sleepContext}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type retryable func(error) bool

func call[T any](ctx context.Context, r *Retrying, op string, shouldRetry retryable, fn func(context.Context) (T, error)) (T, error) {
	var (
		out T
		err error
	)
	for attempt := 0; ; attempt++ {
		out, err = fn(ctx)
		if err == nil || models.IsValidation(err) || !shouldRetry(err) {
			return out, err
		}
		if ctx.Err() != nil {
			return out, err
		}
		if attempt >= r.policy.MaxRetries {
			break
		}
		delay := r.policy.Delay * time.Duration(attempt+1)
		r.logger.Warn("backend call failed, retrying",
			zap.String("operation", op),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		metrics.BackendRetries.WithLabelValues(op).Inc()
		if sleepErr := r.sleep(ctx, delay); sleepErr != nil {
			return out, err
		}
	}
	metrics.BackendFailures.WithLabelValues(op).Inc()
	var zero T
	return zero, fmt.Errorf("%w: %s: %w", ErrBackendUnavailable, op, err)
}

func (r *Retrying) read(ctx context.Context, op string, fn func(context.Context) error) error {
	_, err := call(ctx, r, op, IsTransient, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

func (r *Retrying) ListActiveSessions(ctx context.Context, page models.Page) (models.SessionList, error) {
	return call(ctx, r, "list_active_sessions", IsTransient, func(ctx context.Context) (models.SessionList, error) {
		return r.next.ListActiveSessions(ctx, page)
	})
}

func (r *Retrying) ListSessionsByDate(ctx context.Context, date time.Time, page models.Page) (models.SessionList, error) {
	return call(ctx, r, "list_sessions_by_date", IsTransient, func(ctx context.Context) (models.SessionList, error) {
		return r.next.ListSessionsByDate(ctx, date, page)
	})
}

// RegisterEntry retries only when the request never reached the backend.
func (r *Retrying) RegisterEntry(ctx context.Context, req models.RegisterRequest) (models.Session, error) {
	return call(ctx, r, "register_entry", IsTransport, func(ctx context.Context) (models.Session, error) {
		return r.next.RegisterEntry(ctx, req)
	})
}

// ProcessExit retries only when the request never reached the backend.
func (r *Retrying) ProcessExit(ctx context.Context, req models.ExitRequest) (models.ExitReceipt, error) {
	return call(ctx, r, "process_exit", IsTransport, func(ctx context.Context) (models.ExitReceipt, error) {
		return r.next.ProcessExit(ctx, req)
	})
}

func (r *Retrying) Quote(ctx context.Context, ticketCode string) (models.Quote, error) {
	return call(ctx, r, "quote", IsTransient, func(ctx context.Context) (models.Quote, error) {
		return r.next.Quote(ctx, ticketCode)
	})
}

func (r *Retrying) GetPlateDebt(ctx context.Context, plate string) (decimal.Decimal, error) {
	return call(ctx, r, "get_plate_debt", IsTransient, func(ctx context.Context) (decimal.Decimal, error) {
		return r.next.GetPlateDebt(ctx, plate)
	})
}

func (r *Retrying) FindByTicket(ctx context.Context, code string) (*models.Session, error) {
	return call(ctx, r, "find_by_ticket", IsTransient, func(ctx context.Context) (*models.Session, error) {
		return r.next.FindByTicket(ctx, code)
	})
}

func (r *Retrying) FindByPlate(ctx context.Context, plate string) (*models.Session, error) {
	return call(ctx, r, "find_by_plate", IsTransient, func(ctx context.Context) (*models.Session, error) {
		return r.next.FindByPlate(ctx, plate)
	})
}

func (r *Retrying) ListByPlate(ctx context.Context, plate string) ([]models.Session, error) {
	return call(ctx, r, "list_by_plate", IsTransient, func(ctx context.Context) ([]models.Session, error) {
		return r.next.ListByPlate(ctx, plate)
	})
}

func (r *Retrying) SearchByPlatePrefix(ctx context.Context, prefix string) ([]models.Session, error) {
	return call(ctx, r, "search_by_plate_prefix", IsTransient, func(ctx context.Context) ([]models.Session, error) {
		return r.next.SearchByPlatePrefix(ctx, prefix)
	})
}

func (r *Retrying) ListDebtors(ctx context.Context, page models.Page) (models.DebtorList, error) {
	return call(ctx, r, "list_debtors", IsTransient, func(ctx context.Context) (models.DebtorList, error) {
		return r.next.ListDebtors(ctx, page)
	})
}

func (r *Retrying) TotalDebt(ctx context.Context) (decimal.Decimal, error) {
	return call(ctx, r, "total_debt", IsTransient, func(ctx context.Context) (decimal.Decimal, error) {
		return r.next.TotalDebt(ctx)
	})
}

// DeleteSession is idempotent on the backend, so it retries like a read.
func (r *Retrying) DeleteSession(ctx context.Context, id string) error {
	return r.read(ctx, "delete_session", func(ctx context.Context) error {
		return r.next.DeleteSession(ctx, id)
	})
}

func (r *Retrying) ListPlateConflicts(ctx context.Context) ([]models.PlateConflict, error) {
	return call(ctx, r, "list_plate_conflicts", IsTransient, func(ctx context.Context) ([]models.PlateConflict, error) {
		return r.next.ListPlateConflicts(ctx)
	})
}

func (r *Retrying) ResolvePlateConflict(ctx context.Context, plate, keepID string) error {
	return r.read(ctx, "resolve_plate_conflict", func(ctx context.Context) error {
		return r.next.ResolvePlateConflict(ctx, plate, keepID)
	})
}

func (r *Retrying) GetTreasury(ctx context.Context, date time.Time, actualCash *decimal.Decimal) (models.TillView, error) {
	return call(ctx, r, "get_treasury", IsTransient, func(ctx context.Context) (models.TillView, error) {
		return r.next.GetTreasury(ctx, date, actualCash)
	})
}

func (r *Retrying) ListShiftClosures(ctx context.Context, limit int) ([]models.ShiftClosure, error) {
	return call(ctx, r, "list_shift_closures", IsTransient, func(ctx context.Context) ([]models.ShiftClosure, error) {
		return r.next.ListShiftClosures(ctx, limit)
	})
}

// CloseShift retries only when the request never reached the backend.
func (r *Retrying) CloseShift(ctx context.Context, req models.CloseShiftRequest) (models.ShiftClosure, error) {
	return call(ctx, r, "close_shift", IsTransport, func(ctx context.Context) (models.ShiftClosure, error) {
		return r.next.CloseShift(ctx, req)
	})
}

func (r *Retrying) ListTariffs(ctx context.Context, search string) ([]models.Tariff, error) {
	return call(ctx, r, "list_tariffs", IsTransient, func(ctx context.Context) ([]models.Tariff, error) {
		return r.next.ListTariffs(ctx, search)
	})
}

func (r *Retrying) CreateTariff(ctx context.Context, in models.TariffInput) (models.Tariff, error) {
	return call(ctx, r, "create_tariff", IsTransient, func(ctx context.Context) (models.Tariff, error) {
		return r.next.CreateTariff(ctx, in)
	})
}

func (r *Retrying) UpdateTariff(ctx context.Context, id string, in models.TariffInput) (models.Tariff, error) {
	return call(ctx, r, "update_tariff", IsTransient, func(ctx context.Context) (models.Tariff, error) {
		return r.next.UpdateTariff(ctx, id, in)
	})
}

func (r *Retrying) DeleteTariff(ctx context.Context, id string) error {
	return r.read(ctx, "delete_tariff", func(ctx context.Context) error {
		return r.next.DeleteTariff(ctx, id)
	})
}

var _ Backend = (*Retrying)(nil)
