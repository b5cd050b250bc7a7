package service

import (
	"context"
	"time"

	"parkwise/backend/services/parking-service/internal/idgen"
	"parkwise/backend/services/parking-service/internal/models"
	"parkwise/backend/services/parking-service/internal/repository"
	"parkwise/backend/services/parking-service/internal/tariff"
)

// TariffCatalog stores tariffs in postgres. Uniqueness per class and scope is enforced
// by the table constraint.
type TariffCatalog struct {
	repo *repository.TariffRepository
	now  func() time.Time
}

// NewTariffCatalog returns catalog over repo.
func NewTariffCatalog(repo *repository.TariffRepository) *TariffCatalog {
	return &TariffCatalog{repo: repo, now: time.Now}
}

func (c *TariffCatalog) ListTariffs(ctx context.Context, search string) ([]models.Tariff, error) {
	return c.repo.List(ctx, search)
}

func (c *TariffCatalog) TariffsFor(ctx context.Context, class models.VehicleClass, plate string) ([]models.Tariff, error) {
	return c.repo.ForVehicle(ctx, class, plate)
}

func (c *TariffCatalog) CreateTariff(ctx context.Context, in models.TariffInput) (models.Tariff, error) {
	t, err := in.Apply(models.Tariff{})
	if err != nil {
		return models.Tariff{}, err
	}
	t.ID = idgen.New(idgen.PrefixTariff)
	t.CreatedAt = c.now().UTC().Truncate(time.Microsecond)
	if err := c.repo.Insert(ctx, t); err != nil {
		return models.Tariff{}, err
	}
	return t, nil
}

func (c *TariffCatalog) UpdateTariff(ctx context.Context, id string, in models.TariffInput) (models.Tariff, error) {
	current, err := c.repo.Get(ctx, id)
	if err != nil {
		return models.Tariff{}, err
	}
	t, err := in.Apply(current)
	if err != nil {
		return models.Tariff{}, err
	}
	if err := c.repo.Update(ctx, t); err != nil {
		return models.Tariff{}, err
	}
	return t, nil
}

func (c *TariffCatalog) DeleteTariff(ctx context.Context, id string) error {
	return c.repo.Delete(ctx, id)
}

var (
	_ tariff.Catalog = (*TariffCatalog)(nil)
	_ tariff.Source  = (*TariffCatalog)(nil)
)
