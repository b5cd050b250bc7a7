package repository

import (
	"context"
	"strings"

	"github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"parkwise/backend/services/parking-service/internal/models"
)

const tariffColumns = "id, vehicle_class, name, scope_key, description, amount, block_hours, block_minutes, rate_unit, created_at"

// TariffRepository handles tariff definitions.
type TariffRepository struct {
	db      sqlx.ExtContext
	builder squirrel.StatementBuilderType
}

// NewTariffRepository returns repository.
func NewTariffRepository(db sqlx.ExtContext) *TariffRepository {
	return &TariffRepository{
		db:      db,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// List returns tariffs whose name, scope, description or class contains search.
func (r *TariffRepository) List(ctx context.Context, search string) ([]models.Tariff, error) {
	q := r.builder.
		Select(tariffColumns).
		From("tariffs").
		OrderBy("created_at DESC", "id DESC").
		Limit(models.MaxTariffList)
	if term := strings.TrimSpace(search); term != "" {
		pattern := "%" + escapeLike(term) + "%"
		q = q.Where(squirrel.Or{
			squirrel.ILike{"name": pattern},
			squirrel.ILike{"scope_key": pattern},
			squirrel.ILike{"description": pattern},
			squirrel.ILike{"vehicle_class": pattern},
		})
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}
	tariffs := make([]models.Tariff, 0)
	if err := sqlx.SelectContext(ctx, r.db, &tariffs, query, args...); err != nil {
		return nil, err
	}
	return tariffs, nil
}

// ForVehicle returns every tariff of class that is the class default or scoped to
// plate. Unlike List it is not capped.
func (r *TariffRepository) ForVehicle(ctx context.Context, class models.VehicleClass, plate string) ([]models.Tariff, error) {
	scopes := []string{""}
	if plate = models.NormalizePlate(plate); plate != "" {
		scopes = append(scopes, plate)
	}
	query, args, err := r.builder.
		Select(tariffColumns).
		From("tariffs").
		Where(squirrel.Eq{"vehicle_class": string(class), "scope_key": scopes}).
		OrderBy("created_at DESC", "id DESC").
		ToSql()
	if err != nil {
		return nil, err
	}
	tariffs := make([]models.Tariff, 0, len(scopes))
	if err := sqlx.SelectContext(ctx, r.db, &tariffs, query, args...); err != nil {
		return nil, err
	}
	return tariffs, nil
}

// Get returns the tariff or models.ErrNotFound.
func (r *TariffRepository) Get(ctx context.Context, id string) (models.Tariff, error) {
	var t models.Tariff
	err := sqlx.GetContext(ctx, r.db, &t, `SELECT `+tariffColumns+` FROM tariffs WHERE id = $1`, id)
	if IsNoRows(err) {
		return models.Tariff{}, models.ErrNotFound
	}
	return t, err
}

// Insert stores a new tariff.
func (r *TariffRepository) Insert(ctx context.Context, t models.Tariff) error {
	const query = `
		INSERT INTO tariffs (id, vehicle_class, name, scope_key, description, amount, block_hours, block_minutes, rate_unit, created_at)
		VALUES (:id, :vehicle_class, :name, :scope_key, :description, :amount, :block_hours, :block_minutes, :rate_unit, :created_at)
	`
	if _, err := sqlx.NamedExecContext(ctx, r.db, query, t); err != nil {
		if IsUniqueViolation(err) {
			return models.ErrTariffExists
		}
		return err
	}
	return nil
}

// Update overwrites every mutable column of t.
func (r *TariffRepository) Update(ctx context.Context, t models.Tariff) error {
	const query = `
		UPDATE tariffs
		SET vehicle_class = :vehicle_class,
		    name = :name,
		    scope_key = :scope_key,
		    description = :description,
		    amount = :amount,
		    block_hours = :block_hours,
		    block_minutes = :block_minutes,
		    rate_unit = :rate_unit
		WHERE id = :id
	`
	result, err := sqlx.NamedExecContext(ctx, r.db, query, t)
	if err != nil {
		if IsUniqueViolation(err) {
			return models.ErrTariffExists
		}
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return models.ErrNotFound
	}
	return nil
}

// Delete removes a tariff.
func (r *TariffRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM tariffs WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return models.ErrNotFound
	}
	return nil
}
