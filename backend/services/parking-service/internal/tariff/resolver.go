package tariff

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"parkwise/backend/services/parking-service/internal/models"
)

// Rates maps each vehicle class to its default hourly amount.
type Rates map[models.VehicleClass]decimal.Decimal

// DefaultRates are the fixed hourly amounts used when nothing else is configured.
func DefaultRates() Rates {
	return Rates{
		models.VehicleCar:        decimal.NewFromInt(50),
		models.VehicleMotorcycle: decimal.NewFromInt(30),
		models.VehicleTruck:      decimal.NewFromInt(80),
		models.VehicleBicycle:    decimal.NewFromInt(15),
	}
}

// Charge explains how an amount was derived.
type Charge struct {
	ElapsedMinutes int64           `json:"elapsed_minutes"`
	BlockMinutes   int64           `json:"block_minutes"`
	Units          int64           `json:"units"`
	UnitAmount     decimal.Decimal `json:"unit_amount"`
	Amount         decimal.Decimal `json:"amount"`
	TariffID       string          `json:"tariff_id,omitempty"`
}

// Resolver computes parking costs. It holds no mutable state.
type Resolver struct {
	rates Rates
}

// NewResolver returns a resolver; classes missing from rates (or with a non-positive
// rate) fall back to DefaultRates.
func NewResolver(rates Rates) *Resolver {
	merged := DefaultRates()
	for class, rate := range rates {
		if class.Valid() && rate.IsPositive() {
			merged[class] = rate
		}
	}
	return &Resolver{rates: merged}
}

// Rate returns the default hourly amount for class.
func (r *Resolver) Rate(class models.VehicleClass) decimal.Decimal {
	if rate, ok := r.rates[class]; ok {
		return rate
	}
	return r.rates[models.VehicleCar]
}

// ElapsedMinutes rounds d up to whole minutes; anything below zero counts as zero.
func ElapsedMinutes(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	m := int64(d / time.Minute)
	if d%time.Minute != 0 {
		m++
	}
	return m
}

// Default charges whole hours at override (when set) or the class rate, with a minimum
// of one hour.
func (r *Resolver) Default(class models.VehicleClass, elapsed time.Duration, override *decimal.Decimal) Charge {
	rate := r.Rate(class)
	if override != nil {
		rate = *override
	}
	minutes := ElapsedMinutes(elapsed)
	units := chargedUnits(minutes, 60)
	return finish(Charge{
		ElapsedMinutes: minutes,
		BlockMinutes:   60,
		Units:          units,
		UnitAmount:     rate,
		Amount:         rate.Mul(decimal.NewFromInt(units)),
	})
}

// Custom charges whole blocks of t, with a minimum of one block.
func Custom(t models.Tariff, elapsed time.Duration) Charge {
	minutes := ElapsedMinutes(elapsed)
	block := t.BlockLength()
	units := chargedUnits(minutes, block)
	return finish(Charge{
		ElapsedMinutes: minutes,
		BlockMinutes:   block,
		Units:          units,
		UnitAmount:     t.Amount,
		Amount:         t.Amount.Mul(decimal.NewFromInt(units)),
		TariffID:       t.ID,
	})
}

// Compute uses t when given, else the default path.
func (r *Resolver) Compute(class models.VehicleClass, elapsed time.Duration, override *decimal.Decimal, t *models.Tariff) Charge {
	if t != nil {
		return Custom(*t, elapsed)
	}
	return r.Default(class, elapsed, override)
}

// Select picks the tariff for a vehicle: one scoped to the exact plate wins over the
// class default. Nil means the default hourly rate applies.
func Select(tariffs []models.Tariff, class models.VehicleClass, plate string) *models.Tariff {
	plate = models.NormalizePlate(plate)
	var classDefault *models.Tariff
	for i := range tariffs {
		t := &tariffs[i]
		if t.VehicleClass != class {
			continue
		}
		if plate != "" && models.NormalizePlate(t.ScopeKey) == plate {
			return t
		}
		if t.IsDefault() && classDefault == nil {
			classDefault = t
		}
	}
	return classDefault
}

func chargedUnits(minutes, block int64) int64 {
	if block < 1 {
		block = 1
	}
	units := (minutes + block - 1) / block
	if units < 1 {
		return 1
	}
	return units
}

func finish(c Charge) Charge {
	if c.Amount.IsNegative() || c.Units < 1 {
		panic(fmt.Sprintf("tariff: invalid charge %s over %d units", c.Amount, c.Units))
	}
	return c
}
