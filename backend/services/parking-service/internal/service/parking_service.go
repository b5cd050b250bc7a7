package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"parkwise/backend/services/parking-service/internal/billing"
	"parkwise/backend/services/parking-service/internal/command"
	"parkwise/backend/services/parking-service/internal/idgen"
	"parkwise/backend/services/parking-service/internal/metrics"
	"parkwise/backend/services/parking-service/internal/models"
	"parkwise/backend/services/parking-service/internal/repository"
	"parkwise/backend/services/parking-service/internal/store"
	"parkwise/backend/services/parking-service/internal/tariff"
	"parkwise/backend/services/parking-service/internal/treasury"
)

// maxTicketAttempts bounds retries when a generated ticket code collides.
const maxTicketAttempts = 5

// ParkingService is the durable parking backend. Every write runs in one transaction
// holding the plate's advisory lock, so registrations and exits on a plate serialize.
type ParkingService struct {
	db       *sqlx.DB
	sessions *repository.SessionRepository
	payments *repository.TreasuryRepository
	catalog  tariff.Catalog
	tariffs  *tariff.Service
	till     *treasury.Service
	logger   *zap.Logger
	now      func() time.Time
}

// NewParkingService builds service.
func NewParkingService(
	db *sqlx.DB,
	catalog tariff.Catalog,
	tariffs *tariff.Service,
	till *treasury.Service,
	logger *zap.Logger,
) *ParkingService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ParkingService{
		db:       db,
		sessions: repository.NewSessionRepository(db),
		payments: repository.NewTreasuryRepository(db),
		catalog:  catalog,
		tariffs:  tariffs,
		till:     till,
		logger:   logger,
		now:      time.Now,
	}
}

func (s *ParkingService) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// RegisterEntry opens a session for the vehicle.
func (s *ParkingService) RegisterEntry(ctx context.Context, req models.RegisterRequest) (models.Session, error) {
	plate, ticket, err := req.Normalize()
	if err != nil {
		return models.Session{}, err
	}

	var session models.Session
	err = s.inTx(ctx, func(tx *sqlx.Tx) error {
		repo := s.sessions.WithTx(tx)
		if plate != "" {
			if err := repo.LockPlate(ctx, plate); err != nil {
				return err
			}
		}
		now := s.now()

		code, err := s.ticketFor(ctx, repo, ticket, now)
		if err != nil {
			return err
		}
		if plate != "" {
			existing, err := repo.FindActiveByPlate(ctx, plate)
			if err != nil {
				return err
			}
			if existing != nil {
				return models.NewValidationError(models.CodePlateAlreadyActive,
					"plate %s already has an active %s session (ticket %s)", existing.Plate, existing.VehicleClass, existing.TicketCode)
			}
		}
		debt := decimal.Zero
		if plate != "" {
			if debt, err = repo.PlateDebt(ctx, plate); err != nil {
				return err
			}
		}

		session = billing.NewSession(req, plate, code, now, debt)
		return repo.Insert(ctx, session)
	})
	if err != nil {
		return models.Session{}, err
	}

	metrics.EntriesRegistered.WithLabelValues(string(session.VehicleClass)).Inc()
	s.logger.Info("entry registered",
		zap.String("session_id", session.ID),
		zap.String("ticket_code", session.TicketCode),
		zap.String("plate", session.Plate),
		zap.String("vehicle_class", string(session.VehicleClass)),
	)
	return session, nil
}

func (s *ParkingService) ticketFor(ctx context.Context, repo *repository.SessionRepository, ticket string, now time.Time) (string, error) {
	if ticket != "" {
		existing, err := repo.FindActiveByTicket(ctx, ticket)
		if err != nil {
			return "", err
		}
		if existing != nil {
			return "", models.ErrTicketAlreadyInUse
		}
		return ticket, nil
	}
	for i := 0; i < maxTicketAttempts; i++ {
		code := idgen.TicketCode(now)
		existing, err := repo.FindActiveByTicket(ctx, code)
		if err != nil {
			return "", err
		}
		if existing == nil {
			return code, nil
		}
	}
	return "", fmt.Errorf("could not generate a free ticket code after %d attempts", maxTicketAttempts)
}

// ProcessExit completes the active session of the ticket, settles the plate's debt and
// records the payment, all in one transaction.
func (s *ParkingService) ProcessExit(ctx context.Context, req models.ExitRequest) (models.ExitReceipt, error) {
	if err := req.Validate(); err != nil {
		return models.ExitReceipt{}, err
	}
	ticket := strings.TrimSpace(req.TicketCode)

	var (
		receipt models.ExitReceipt
		payment models.Payment
	)
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		repo := s.sessions.WithTx(tx)
		session, err := repo.FindActiveByTicket(ctx, ticket)
		if err != nil {
			return err
		}
		if session == nil {
			return models.ErrUnknownTicket
		}

		debt := decimal.Zero
		if session.Plate != "" {
			if err := repo.LockPlate(ctx, session.Plate); err != nil {
				return err
			}
			if debt, err = repo.PlateDebt(ctx, session.Plate); err != nil {
				return err
			}
		}

		receipt = billing.Checkout(s.tariffs.Resolver(), *session, s.now(), debt, req)
		if err := repo.Complete(ctx, receipt.Session); err != nil {
			return err
		}
		if session.Plate != "" {
			if err := repo.ClearDebt(ctx, session.Plate, session.ID); err != nil {
				return err
			}
		}
		payment = billing.PaymentFor(receipt, req.PaymentMethod)
		return s.payments.WithTx(tx).InsertPayment(ctx, payment)
	})
	if err != nil {
		return models.ExitReceipt{}, err
	}

	billing.ObserveExit(receipt, payment)
	s.logger.Info("exit processed",
		zap.String("session_id", receipt.Session.ID),
		zap.String("ticket_code", receipt.Session.TicketCode),
		zap.Stringer("owed", receipt.Owed),
		zap.Stringer("charged", payment.Amount),
		zap.Stringer("debt", receipt.Session.Debt),
		zap.String("payment_method", string(payment.Method)),
	)
	return receipt, nil
}

// Quote previews the checkout of an active ticket.
func (s *ParkingService) Quote(ctx context.Context, ticketCode string) (models.Quote, error) {
	session, err := s.sessions.FindActiveByTicket(ctx, ticketCode)
	if err != nil {
		return models.Quote{}, err
	}
	if session == nil {
		return models.Quote{}, models.ErrUnknownTicket
	}
	q := s.tariffs.Quote(ctx, *session, s.now())
	if session.Plate != "" {
		if q.PlateDebt, err = s.sessions.PlateDebt(ctx, session.Plate); err != nil {
			return models.Quote{}, err
		}
	}
	return q, nil
}

func (s *ParkingService) ListActiveSessions(ctx context.Context, page models.Page) (models.SessionList, error) {
	return s.sessions.ListActive(ctx, page)
}

func (s *ParkingService) ListSessionsByDate(ctx context.Context, date time.Time, page models.Page) (models.SessionList, error) {
	from, to := store.DayBounds(date)
	return s.sessions.ListByDate(ctx, from, to, page)
}

func (s *ParkingService) GetPlateDebt(ctx context.Context, plate string) (decimal.Decimal, error) {
	plate = models.NormalizePlate(plate)
	if plate == "" {
		return decimal.Zero, nil
	}
	return s.sessions.PlateDebt(ctx, plate)
}

func (s *ParkingService) FindByTicket(ctx context.Context, code string) (*models.Session, error) {
	return s.sessions.FindActiveByTicket(ctx, code)
}

func (s *ParkingService) FindByPlate(ctx context.Context, plate string) (*models.Session, error) {
	plate = models.NormalizePlate(plate)
	if plate == "" {
		return nil, nil
	}
	return s.sessions.FindActiveByPlate(ctx, plate)
}

func (s *ParkingService) ListByPlate(ctx context.Context, plate string) ([]models.Session, error) {
	plate = models.NormalizePlate(plate)
	if plate == "" {
		return []models.Session{}, nil
	}
	return s.sessions.ListByPlate(ctx, plate)
}

func (s *ParkingService) SearchByPlatePrefix(ctx context.Context, prefix string) ([]models.Session, error) {
	return s.sessions.SearchByPlatePrefix(ctx, models.NormalizePlate(prefix))
}

func (s *ParkingService) ListDebtors(ctx context.Context, page models.Page) (models.DebtorList, error) {
	return s.sessions.Debtors(ctx, page)
}

func (s *ParkingService) TotalDebt(ctx context.Context) (decimal.Decimal, error) {
	return s.sessions.TotalDebt(ctx)
}

// DeleteSession removes a session and, through the foreign key, its payments.
func (s *ParkingService) DeleteSession(ctx context.Context, id string) error {
	if err := s.sessions.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("session deleted", zap.String("session_id", id))
	return nil
}

// ListPlateConflicts lists plates holding more than one active session.
func (s *ParkingService) ListPlateConflicts(ctx context.Context) ([]models.PlateConflict, error) {
	sessions, err := s.sessions.ActiveConflicting(ctx)
	if err != nil {
		return nil, err
	}
	return models.DetectPlateConflicts(sessions), nil
}

// ResolvePlateConflict keeps keepID and deletes every other session of plate, history
// included. Payments go with their sessions through the foreign key cascade.
func (s *ParkingService) ResolvePlateConflict(ctx context.Context, plate, keepID string) error {
	plate = models.NormalizePlate(plate)
	var removed []string
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		repo := s.sessions.WithTx(tx)
		if err := repo.LockPlate(ctx, plate); err != nil {
			return err
		}
		sessions, err := repo.ListByPlate(ctx, plate)
		if err != nil {
			return err
		}
		kept := false
		for _, x := range sessions {
			if x.IsActive() && x.ID == keepID {
				kept = true
			}
		}
		if !kept {
			return models.NewValidationError(models.CodeNotFound, "session %s is not an active session of plate %s", keepID, plate)
		}
		for _, x := range sessions {
			if x.ID == keepID {
				continue
			}
			if err := repo.Delete(ctx, x.ID); err != nil {
				return err
			}
			removed = append(removed, x.ID)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info("plate conflict resolved",
		zap.String("plate", plate),
		zap.String("kept", keepID),
		zap.Strings("deleted", removed),
	)
	return nil
}

func (s *ParkingService) GetTreasury(ctx context.Context, date time.Time, actualCash *decimal.Decimal) (models.TillView, error) {
	return s.till.Treasury(ctx, date, actualCash)
}

func (s *ParkingService) ListShiftClosures(ctx context.Context, limit int) ([]models.ShiftClosure, error) {
	return s.till.ListClosures(ctx, limit)
}

func (s *ParkingService) CloseShift(ctx context.Context, req models.CloseShiftRequest) (models.ShiftClosure, error) {
	return s.till.CloseShift(ctx, req)
}

func (s *ParkingService) ListTariffs(ctx context.Context, search string) ([]models.Tariff, error) {
	return s.catalog.ListTariffs(ctx, search)
}

func (s *ParkingService) CreateTariff(ctx context.Context, in models.TariffInput) (models.Tariff, error) {
	return s.catalog.CreateTariff(ctx, in)
}

func (s *ParkingService) UpdateTariff(ctx context.Context, id string, in models.TariffInput) (models.Tariff, error) {
	return s.catalog.UpdateTariff(ctx, id, in)
}

func (s *ParkingService) DeleteTariff(ctx context.Context, id string) error {
	return s.catalog.DeleteTariff(ctx, id)
}

var _ command.Backend = (*ParkingService)(nil)
