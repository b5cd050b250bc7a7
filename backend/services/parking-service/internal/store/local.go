package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"parkwise/backend/services/parking-service/internal/billing"
	"parkwise/backend/services/parking-service/internal/idgen"
	"parkwise/backend/services/parking-service/internal/metrics"
	"parkwise/backend/services/parking-service/internal/models"
	"parkwise/backend/services/parking-service/internal/tariff"
	"parkwise/backend/services/parking-service/internal/treasury"
)

// Local keeps every session in memory and is authoritative for them. Each call holds
// the lock until it completes, so two registrations never interleave.
type Local struct {
	mu       sync.Mutex
	sessions []models.Session
	ledger   *treasury.MemoryLedger
	tariffs  *tariff.Service
	logger   *zap.Logger
	now      func() time.Time
}

// NewLocal returns an empty store. Exits record their payments into ledger.
func NewLocal(ledger *treasury.MemoryLedger, tariffs *tariff.Service, logger *zap.Logger) *Local {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Local{
		ledger:  ledger,
		tariffs: tariffs,
		logger:  logger,
		now:     time.Now,
	}
}

// RegisterEntry opens a session for the vehicle.
func (s *Local) RegisterEntry(_ context.Context, req models.RegisterRequest) (models.Session, error) {
	plate, ticket, err := req.Normalize()
	if err != nil {
		return models.Session{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if ticket == "" {
		ticket = idgen.TicketCode(now)
		for s.activeByTicket(ticket) >= 0 {
			ticket = idgen.TicketCode(now)
		}
	} else if s.activeByTicket(ticket) >= 0 {
		return models.Session{}, models.ErrTicketAlreadyInUse
	}
	if plate != "" {
		if i := s.activeByPlate(plate); i >= 0 {
			return models.Session{}, plateActive(s.sessions[i])
		}
	}

	session := billing.NewSession(req, plate, ticket, now, s.plateDebt(plate))
	s.sessions = append(s.sessions, session)

	metrics.EntriesRegistered.WithLabelValues(string(session.VehicleClass)).Inc()
	s.logger.Info("entry registered",
		zap.String("session_id", session.ID),
		zap.String("ticket_code", session.TicketCode),
		zap.String("plate", session.Plate),
		zap.String("vehicle_class", string(session.VehicleClass)),
	)
	return session, nil
}

func plateActive(existing models.Session) error {
	return models.NewValidationError(models.CodePlateAlreadyActive,
		"plate %s already has an active %s session (ticket %s)", existing.Plate, existing.VehicleClass, existing.TicketCode)
}

// ProcessExit completes the active session of the ticket and settles the plate's debt.
func (s *Local) ProcessExit(_ context.Context, req models.ExitRequest) (models.ExitReceipt, error) {
	if err := req.Validate(); err != nil {
		return models.ExitReceipt{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.activeByTicket(strings.TrimSpace(req.TicketCode))
	if i < 0 {
		return models.ExitReceipt{}, models.ErrUnknownTicket
	}
	session := s.sessions[i]

	receipt := billing.Checkout(s.tariffs.Resolver(), session, s.now(), s.plateDebt(session.Plate), req)
	if session.Plate != "" {
		for j := range s.sessions {
			if j != i && s.sessions[j].Plate == session.Plate {
				s.sessions[j].Debt = decimal.Zero
			}
		}
	}
	s.sessions[i] = receipt.Session

	payment := billing.PaymentFor(receipt, req.PaymentMethod)
	s.ledger.RecordPayment(payment)

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
func (s *Local) Quote(ctx context.Context, ticketCode string) (models.Quote, error) {
	s.mu.Lock()
	i := s.activeByTicket(strings.TrimSpace(ticketCode))
	if i < 0 {
		s.mu.Unlock()
		return models.Quote{}, models.ErrUnknownTicket
	}
	session := s.sessions[i]
	debt := s.plateDebt(session.Plate)
	now := s.now()
	s.mu.Unlock()

	q := s.tariffs.Quote(ctx, session, now)
	q.PlateDebt = debt
	return q, nil
}

// FindByTicket returns the active session holding code, or nil.
func (s *Local) FindByTicket(_ context.Context, code string) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.activeByTicket(strings.TrimSpace(code)); i >= 0 {
		found := s.sessions[i]
		return &found, nil
	}
	return nil, nil
}

// FindByPlate returns the active session of plate, or nil.
func (s *Local) FindByPlate(_ context.Context, plate string) (*models.Session, error) {
	plate = models.NormalizePlate(plate)
	if plate == "" {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.activeByPlate(plate); i >= 0 {
		found := s.sessions[i]
		return &found, nil
	}
	return nil, nil
}

// ListByPlate returns every session of plate, newest first.
func (s *Local) ListByPlate(_ context.Context, plate string) ([]models.Session, error) {
	plate = models.NormalizePlate(plate)
	return s.filter(func(x *models.Session) bool { return plate != "" && x.Plate == plate }, newestFirst), nil
}

// SearchByPlatePrefix returns sessions whose plate starts with prefix, newest first.
func (s *Local) SearchByPlatePrefix(_ context.Context, prefix string) ([]models.Session, error) {
	prefix = models.NormalizePlate(prefix)
	out := s.filter(func(x *models.Session) bool { return x.Plate != "" && strings.HasPrefix(x.Plate, prefix) }, newestFirst)
	if len(out) > models.SearchLimit {
		out = out[:models.SearchLimit]
	}
	return out, nil
}

// ListActive returns one page of active sessions, oldest entry first.
func (s *Local) ListActive(_ context.Context, page models.Page) (models.SessionList, error) {
	return paginate(s.filter((*models.Session).IsActive, oldestFirst), page), nil
}

// ListByDate returns one page of sessions that entered on date, newest first.
func (s *Local) ListByDate(_ context.Context, date time.Time, page models.Page) (models.SessionList, error) {
	from, to := DayBounds(date)
	in := func(x *models.Session) bool { return !x.EntryTime.Before(from) && x.EntryTime.Before(to) }
	return paginate(s.filter(in, newestFirst), page), nil
}

// GetPlateDebt sums the debt over every session of plate.
func (s *Local) GetPlateDebt(_ context.Context, plate string) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.plateDebt(models.NormalizePlate(plate)), nil
}

// ListDebtors returns one page of plates with outstanding debt, largest first.
func (s *Local) ListDebtors(_ context.Context, page models.Page) (models.DebtorList, error) {
	s.mu.Lock()
	byPlate := make(map[string]*models.Debtor)
	for _, x := range s.sessions {
		if !x.Debt.IsPositive() {
			continue
		}
		d, ok := byPlate[x.Plate]
		if !ok {
			d = &models.Debtor{Plate: x.Plate}
			byPlate[x.Plate] = d
		}
		d.TotalDebt = d.TotalDebt.Add(x.Debt)
		d.SessionsWithDebt++
		if x.ExitTime != nil && (d.OldestExitTime == nil || x.ExitTime.Before(*d.OldestExitTime)) {
			exit := *x.ExitTime
			d.OldestExitTime = &exit
		}
	}
	s.mu.Unlock()

	items := make([]models.Debtor, 0, len(byPlate))
	for _, d := range byPlate {
		items = append(items, *d)
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].TotalDebt.Equal(items[j].TotalDebt) {
			return items[i].Plate < items[j].Plate
		}
		return items[i].TotalDebt.GreaterThan(items[j].TotalDebt)
	})

	page = page.Normalized()
	total := len(items)
	items = window(items, page)
	return models.DebtorList{Items: items, Total: total}, nil
}

// TotalDebt sums the debt over every session.
func (s *Local) TotalDebt(_ context.Context) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := decimal.Zero
	for _, x := range s.sessions {
		total = total.Add(x.Debt)
	}
	return total, nil
}

// DeleteSession removes a session and its payments.
func (s *Local) DeleteSession(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.sessions {
		if s.sessions[i].ID == id {
			s.sessions = append(s.sessions[:i], s.sessions[i+1:]...)
			s.ledger.RemoveSession(id)
			s.logger.Info("session deleted", zap.String("session_id", id))
			return nil
		}
	}
	return models.ErrNotFound
}

// PlateConflicts lists plates holding more than one active session.
func (s *Local) PlateConflicts(_ context.Context) ([]models.PlateConflict, error) {
	return models.DetectPlateConflicts(s.filter((*models.Session).IsActive, oldestFirst)), nil
}

// Insert adds a session verbatim, bypassing registration checks. It exists to import
// records, including ones that conflict.
func (s *Local) Insert(session models.Session) {
	models.MustBeConsistent(session)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = append(s.sessions, session)
}

func (s *Local) activeByTicket(code string) int {
	for i := range s.sessions {
		if s.sessions[i].IsActive() && s.sessions[i].TicketCode == code {
			return i
		}
	}
	return -1
}

func (s *Local) activeByPlate(plate string) int {
	for i := range s.sessions {
		if s.sessions[i].IsActive() && s.sessions[i].Plate == plate {
			return i
		}
	}
	return -1
}

func (s *Local) plateDebt(plate string) decimal.Decimal {
	total := decimal.Zero
	if plate == "" {
		return total
	}
	for _, x := range s.sessions {
		if x.Plate == plate {
			total = total.Add(x.Debt)
		}
	}
	return total
}

func (s *Local) filter(keep func(*models.Session) bool, less func(a, b models.Session) bool) []models.Session {
	s.mu.Lock()
	out := make([]models.Session, 0)
	for i := range s.sessions {
		if keep(&s.sessions[i]) {
			out = append(out, s.sessions[i])
		}
	}
	s.mu.Unlock()
	sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

func oldestFirst(a, b models.Session) bool {
	if a.EntryTime.Equal(b.EntryTime) {
		return a.ID < b.ID
	}
	return a.EntryTime.Before(b.EntryTime)
}

func newestFirst(a, b models.Session) bool {
	return oldestFirst(b, a)
}

func paginate(sessions []models.Session, page models.Page) models.SessionList {
	page = page.Normalized()
	return models.SessionList{Items: window(sessions, page), Total: len(sessions)}
}

func window[T any](items []T, page models.Page) []T {
	if page.Offset >= len(items) {
		return []T{}
	}
	end := page.Offset + page.Limit
	if end > len(items) {
		end = len(items)
	}
	return items[page.Offset:end]
}

var _ SessionStore = (*Local)(nil)
