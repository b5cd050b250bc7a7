package tariff

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"parkwise/backend/services/parking-service/internal/models"
)

// Service provides tariff lookups with fallback to the default hourly rates.
type Service struct {
	source   Source
	resolver *Resolver
	logger   *zap.Logger
}

// NewService returns service instance. A nil source means only default rates apply.
func NewService(source Source, resolver *Resolver, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{source: source, resolver: resolver, logger: logger}
}

// Resolver returns the underlying rate resolver.
func (s *Service) Resolver() *Resolver {
	return s.resolver
}

// Lookup returns the tariff that applies to a vehicle, or nil when the default rate
// applies. Source failures are logged and degrade to the default rate.
func (s *Service) Lookup(ctx context.Context, class models.VehicleClass, plate string) *models.Tariff {
	if s.source == nil {
		return nil
	}
	tariffs, err := s.source.TariffsFor(ctx, class, plate)
	if err != nil {
		s.logger.Warn("tariff lookup failed, using default rate",
			zap.String("vehicle_class", string(class)),
			zap.Error(err),
		)
		return nil
	}
	return Select(tariffs, class, plate)
}

// Quote previews the checkout of an active session at the given instant. PlateDebt is
// left for the caller to fill.
func (s *Service) Quote(ctx context.Context, sess models.Session, at time.Time) models.Quote {
	elapsed := at.Sub(sess.EntryTime)
	var override *decimal.Decimal
	if sess.RateOverride.Valid {
		override = &sess.RateOverride.Decimal
	}
	def := s.resolver.Default(sess.VehicleClass, elapsed, override)

	q := models.Quote{
		Session:        sess,
		ElapsedMinutes: def.ElapsedMinutes,
		DefaultCost:    def.Amount,
	}
	if t := s.Lookup(ctx, sess.VehicleClass, sess.Plate); t != nil {
		c := Custom(*t, elapsed)
		q.Tariff = t
		q.TariffCost = &c.Amount
	}
	return q
}
