package tariff

import (
	"context"
	"sort"
	"sync"
	"time"

	"parkwise/backend/services/parking-service/internal/idgen"
	"parkwise/backend/services/parking-service/internal/models"
)

// Catalog stores tariff definitions.
type Catalog interface {
	ListTariffs(ctx context.Context, search string) ([]models.Tariff, error)
	CreateTariff(ctx context.Context, in models.TariffInput) (models.Tariff, error)
	UpdateTariff(ctx context.Context, id string, in models.TariffInput) (models.Tariff, error)
	DeleteTariff(ctx context.Context, id string) error
}

// Source selects the tariffs that can apply to one vehicle: those of its class that
// are either the class default or scoped to its plate. The selection is never capped.
type Source interface {
	TariffsFor(ctx context.Context, class models.VehicleClass, plate string) ([]models.Tariff, error)
}

// MemoryCatalog is the Catalog used when no durable store is reachable.
type MemoryCatalog struct {
	mu      sync.RWMutex
	tariffs map[string]models.Tariff
	now     func() time.Time
}

// NewMemoryCatalog returns an empty catalog.
func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{
		tariffs: make(map[string]models.Tariff),
		now:     time.Now,
	}
}

// ListTariffs returns tariffs matching search, newest first, capped at MaxTariffList.
func (c *MemoryCatalog) ListTariffs(_ context.Context, search string) ([]models.Tariff, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]models.Tariff, 0, len(c.tariffs))
	for _, t := range c.tariffs {
		if t.MatchesSearch(search) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if len(out) > models.MaxTariffList {
		out = out[:models.MaxTariffList]
	}
	return out, nil
}

// TariffsFor returns the class default and the plate-scoped tariff of class, if any.
func (c *MemoryCatalog) TariffsFor(_ context.Context, class models.VehicleClass, plate string) ([]models.Tariff, error) {
	plate = models.NormalizePlate(plate)
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]models.Tariff, 0, 2)
	for _, t := range c.tariffs {
		if t.VehicleClass == class && (t.IsDefault() || (plate != "" && t.ScopeKey == plate)) {
			out = append(out, t)
		}
	}
	return out, nil
}

// CreateTariff validates in and stores a new tariff.
func (c *MemoryCatalog) CreateTariff(_ context.Context, in models.TariffInput) (models.Tariff, error) {
	t, err := in.Apply(models.Tariff{})
	if err != nil {
		return models.Tariff{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.taken(t, "") {
		return models.Tariff{}, models.ErrTariffExists
	}
	t.ID = idgen.New(idgen.PrefixTariff)
	t.CreatedAt = c.now().UTC()
	c.tariffs[t.ID] = t
	return t, nil
}

// UpdateTariff patches the tariff with the given id.
func (c *MemoryCatalog) UpdateTariff(_ context.Context, id string, in models.TariffInput) (models.Tariff, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	current, ok := c.tariffs[id]
	if !ok {
		return models.Tariff{}, models.ErrNotFound
	}
	t, err := in.Apply(current)
	if err != nil {
		return models.Tariff{}, err
	}
	if c.taken(t, id) {
		return models.Tariff{}, models.ErrTariffExists
	}
	c.tariffs[id] = t
	return t, nil
}

// DeleteTariff removes the tariff with the given id.
func (c *MemoryCatalog) DeleteTariff(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.tariffs[id]; !ok {
		return models.ErrNotFound
	}
	delete(c.tariffs, id)
	return nil
}

func (c *MemoryCatalog) taken(t models.Tariff, exceptID string) bool {
	for id, other := range c.tariffs {
		if id != exceptID && other.VehicleClass == t.VehicleClass && other.ScopeKey == t.ScopeKey {
			return true
		}
	}
	return false
}
