package store

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"parkwise/backend/services/parking-service/internal/command"
	"parkwise/backend/services/parking-service/internal/metrics"
	"parkwise/backend/services/parking-service/internal/models"
)

// Backed fronts the durable backend with a session cache. Every mutation goes to the
// backend first; once acknowledged, the affected keys are invalidated and re-read from
// the backend before the result is returned. Nothing is merged optimistically.
type Backed struct {
	backend   command.Backend
	cache     Cache
	cacheName string
	guard     *inflight
	logger    *zap.Logger
}

// NewBacked returns a store over backend. cacheName labels cache metrics.
func NewBacked(backend command.Backend, cache Cache, cacheName string, logger *zap.Logger) *Backed {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Backed{
		backend:   backend,
		cache:     cache,
		cacheName: cacheName,
		guard:     newInflight(),
		logger:    logger,
	}
}

// RegisterEntry sends the registration to the backend.
func (s *Backed) RegisterEntry(ctx context.Context, req models.RegisterRequest) (models.Session, error) {
	plate, ticket, err := req.Normalize()
	if err != nil {
		return models.Session{}, err
	}
	// A plateless bicycle with a generated ticket shares no key with anything else.
	if plate != "" || ticket != "" {
		release, err := s.guard.acquire("register:" + plate + "|" + ticket)
		if err != nil {
			return models.Session{}, err
		}
		defer release()
	}

	session, err := s.backend.RegisterEntry(ctx, req)
	if err != nil {
		return models.Session{}, err
	}
	s.invalidate(ctx, SessionKeys(session)...)

	fresh, err := s.backend.FindByTicket(ctx, session.TicketCode)
	if err != nil {
		s.logger.Warn("refetch after register failed", zap.String("ticket_code", session.TicketCode), zap.Error(err))
		return session, nil
	}
	if fresh != nil {
		s.remember(ctx, *fresh)
		session = *fresh
	}
	return session, nil
}

// ProcessExit sends the checkout to the backend. Completed sessions are never cached,
// so invalidation is the whole resync.
func (s *Backed) ProcessExit(ctx context.Context, req models.ExitRequest) (models.ExitReceipt, error) {
	if err := req.Validate(); err != nil {
		return models.ExitReceipt{}, err
	}
	ticket := strings.TrimSpace(req.TicketCode)
	release, err := s.guard.acquire("exit:" + ticket)
	if err != nil {
		return models.ExitReceipt{}, err
	}
	defer release()

	receipt, err := s.backend.ProcessExit(ctx, req)
	if err != nil {
		return models.ExitReceipt{}, err
	}
	s.invalidate(ctx, append(SessionKeys(receipt.Session), TicketKey(ticket))...)
	return receipt, nil
}

// Quote is answered by the backend.
func (s *Backed) Quote(ctx context.Context, ticketCode string) (models.Quote, error) {
	return s.backend.Quote(ctx, strings.TrimSpace(ticketCode))
}

// FindByTicket reads through the cache.
func (s *Backed) FindByTicket(ctx context.Context, code string) (*models.Session, error) {
	code = strings.TrimSpace(code)
	return s.readThrough(ctx, TicketKey(code), func() (*models.Session, error) {
		return s.backend.FindByTicket(ctx, code)
	})
}

// FindByPlate reads through the cache.
func (s *Backed) FindByPlate(ctx context.Context, plate string) (*models.Session, error) {
	plate = models.NormalizePlate(plate)
	if plate == "" {
		return nil, nil
	}
	return s.readThrough(ctx, PlateKey(plate), func() (*models.Session, error) {
		return s.backend.FindByPlate(ctx, plate)
	})
}

func (s *Backed) readThrough(ctx context.Context, key string, load func() (*models.Session, error)) (*models.Session, error) {
	cached, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.Warn("session cache read failed", zap.String("key", key), zap.Error(err))
	}
	if cached != nil {
		metrics.CacheHits.WithLabelValues(s.cacheName).Inc()
		return cached, nil
	}
	metrics.CacheMisses.WithLabelValues(s.cacheName).Inc()

	found, err := load()
	if err != nil || found == nil {
		return found, err
	}
	if found.IsActive() {
		if err := s.cache.Set(ctx, key, *found); err != nil {
			s.logger.Warn("session cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return found, nil
}

func (s *Backed) ListByPlate(ctx context.Context, plate string) ([]models.Session, error) {
	return s.backend.ListByPlate(ctx, models.NormalizePlate(plate))
}

func (s *Backed) SearchByPlatePrefix(ctx context.Context, prefix string) ([]models.Session, error) {
	return s.backend.SearchByPlatePrefix(ctx, models.NormalizePlate(prefix))
}

func (s *Backed) ListActive(ctx context.Context, page models.Page) (models.SessionList, error) {
	return s.backend.ListActiveSessions(ctx, page.Normalized())
}

func (s *Backed) ListByDate(ctx context.Context, date time.Time, page models.Page) (models.SessionList, error) {
	return s.backend.ListSessionsByDate(ctx, date, page.Normalized())
}

func (s *Backed) GetPlateDebt(ctx context.Context, plate string) (decimal.Decimal, error) {
	plate = models.NormalizePlate(plate)
	if plate == "" {
		return decimal.Zero, nil
	}
	return s.backend.GetPlateDebt(ctx, plate)
}

func (s *Backed) ListDebtors(ctx context.Context, page models.Page) (models.DebtorList, error) {
	return s.backend.ListDebtors(ctx, page.Normalized())
}

func (s *Backed) TotalDebt(ctx context.Context) (decimal.Decimal, error) {
	return s.backend.TotalDebt(ctx)
}

// DeleteSession removes the durable record, then drops the whole cache since the
// deleted session's keys are not known here.
func (s *Backed) DeleteSession(ctx context.Context, id string) error {
	release, err := s.guard.acquire("delete:" + id)
	if err != nil {
		return err
	}
	defer release()

	if err := s.backend.DeleteSession(ctx, id); err != nil {
		return err
	}
	if err := s.cache.Purge(ctx); err != nil {
		s.logger.Warn("session cache purge failed", zap.Error(err))
	}
	return nil
}

func (s *Backed) PlateConflicts(ctx context.Context) ([]models.PlateConflict, error) {
	conflicts, err := s.backend.ListPlateConflicts(ctx)
	if err != nil {
		return nil, err
	}
	models.SortConflicts(conflicts)
	return conflicts, nil
}

func (s *Backed) invalidate(ctx context.Context, keys ...string) {
	if err := s.cache.Delete(ctx, keys...); err != nil {
		s.logger.Warn("session cache invalidation failed, purging", zap.Strings("keys", keys), zap.Error(err))
		if err := s.cache.Purge(ctx); err != nil {
			s.logger.Error("session cache purge failed", zap.Error(err))
		}
	}
}

func (s *Backed) remember(ctx context.Context, session models.Session) {
	if !session.IsActive() {
		return
	}
	for _, key := range SessionKeys(session) {
		if err := s.cache.Set(ctx, key, session); err != nil {
			s.logger.Warn("session cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
}

var _ SessionStore = (*Backed)(nil)
