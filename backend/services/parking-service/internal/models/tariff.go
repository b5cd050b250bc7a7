package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// RateUnit is informational; billing always uses the block duration.
type RateUnit string

const (
	RateUnitHour   RateUnit = "hour"
	RateUnitMinute RateUnit = "minute"
)

// Tariff is a rate definition: Amount per block of BlockHours:BlockMinutes, for a
// vehicle class, optionally scoped to one plate or reference.
type Tariff struct {
	ID           string          `db:"id" json:"id"`
	VehicleClass VehicleClass    `db:"vehicle_class" json:"vehicle_class"`
	Name         string          `db:"name" json:"name,omitempty"`
	ScopeKey     string          `db:"scope_key" json:"scope_key,omitempty"`
	Description  string          `db:"description" json:"description,omitempty"`
	Amount       decimal.Decimal `db:"amount" json:"amount"`
	BlockHours   int             `db:"block_hours" json:"block_hours"`
	BlockMinutes int             `db:"block_minutes" json:"block_minutes"`
	RateUnit     RateUnit        `db:"rate_unit" json:"rate_unit"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
}

// IsDefault reports whether t applies to the whole class.
func (t Tariff) IsDefault() bool {
	return t.ScopeKey == ""
}

// BlockLength returns the charging block in minutes, never below one.
func (t Tariff) BlockLength() int64 {
	m := int64(t.BlockHours)*60 + int64(t.BlockMinutes)
	if m < 1 {
		return 1
	}
	return m
}

// TariffInput creates or patches a tariff. On update nil fields keep their value.
type TariffInput struct {
	VehicleClass *VehicleClass    `json:"vehicle_class,omitempty"`
	Name         *string          `json:"name,omitempty"`
	ScopeKey     *string          `json:"scope_key,omitempty"`
	Description  *string          `json:"description,omitempty"`
	Amount       *decimal.Decimal `json:"amount,omitempty"`
	BlockHours   *int             `json:"block_hours,omitempty"`
	BlockMinutes *int             `json:"block_minutes,omitempty"`
	RateUnit     *RateUnit        `json:"rate_unit,omitempty"`
}

// Apply overlays in onto t and validates the result. New tariffs start from a zero
// Tariff and default to a one hour block.
func (in TariffInput) Apply(t Tariff) (Tariff, error) {
	if in.VehicleClass != nil {
		c, err := ParseVehicleClass(string(*in.VehicleClass))
		if err != nil {
			return Tariff{}, err
		}
		t.VehicleClass = c
	}
	if in.Name != nil {
		t.Name = strings.TrimSpace(*in.Name)
	}
	if in.ScopeKey != nil {
		t.ScopeKey = NormalizePlate(*in.ScopeKey)
	}
	if in.Description != nil {
		t.Description = strings.TrimSpace(*in.Description)
	}
	if in.Amount != nil {
		t.Amount = *in.Amount
	}
	if in.BlockHours != nil {
		t.BlockHours = *in.BlockHours
	}
	if in.BlockMinutes != nil {
		t.BlockMinutes = *in.BlockMinutes
	}
	if in.RateUnit != nil {
		t.RateUnit = *in.RateUnit
	}

	if !t.VehicleClass.Valid() {
		return Tariff{}, NewValidationError(CodeInvalidArgument, "unknown vehicle class %q", t.VehicleClass)
	}
	if t.Amount.IsNegative() {
		return Tariff{}, NewValidationError(CodeInvalidArgument, "amount must be non-negative")
	}
	if t.BlockHours < 0 || t.BlockMinutes < 0 || t.BlockMinutes > 59 {
		return Tariff{}, NewValidationError(CodeInvalidArgument, "block duration out of range")
	}
	if t.BlockHours == 0 && t.BlockMinutes == 0 {
		t.BlockHours = 1
	}
	switch t.RateUnit {
	case "":
		t.RateUnit = RateUnitHour
	case RateUnitHour, RateUnitMinute:
	default:
		return Tariff{}, NewValidationError(CodeInvalidArgument, "unknown rate unit %q", t.RateUnit)
	}
	return t, nil
}

// MatchesSearch reports whether t contains term in its name, scope, description or class.
func (t Tariff) MatchesSearch(term string) bool {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return true
	}
	for _, field := range []string{t.Name, t.ScopeKey, t.Description, string(t.VehicleClass)} {
		if strings.Contains(strings.ToLower(field), term) {
			return true
		}
	}
	return false
}

// MaxTariffList caps tariff listings.
const MaxTariffList = 100
