package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"parkwise/backend/services/parking-service/internal/models"
)

const sessionColumns = "id, ticket_code, plate, vehicle_class, observations, entry_time, exit_time, status, total_amount, debt, inherited_debt, rate_override"

// SessionRepository handles persistence of parking sessions.
type SessionRepository struct {
	db      sqlx.ExtContext
	builder squirrel.StatementBuilderType
}

// NewSessionRepository returns repository. db is a *sqlx.DB or a *sqlx.Tx.
func NewSessionRepository(db sqlx.ExtContext) *SessionRepository {
	return &SessionRepository{
		db:      db,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// WithTx returns a repository bound to tx.
func (r *SessionRepository) WithTx(tx *sqlx.Tx) *SessionRepository {
	return &SessionRepository{db: tx, builder: r.builder}
}

// LockPlate serializes writers on one plate until the surrounding transaction ends.
func (r *SessionRepository) LockPlate(ctx context.Context, plate string) error {
	_, err := r.db.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, "plate:"+plate)
	return err
}

// Insert stores a new active session.
func (r *SessionRepository) Insert(ctx context.Context, s models.Session) error {
	const query = `
		INSERT INTO sessions (id, ticket_code, plate, vehicle_class, observations, entry_time, exit_time, status, total_amount, debt, inherited_debt, rate_override)
		VALUES (:id, :ticket_code, :plate, :vehicle_class, :observations, :entry_time, :exit_time, :status, :total_amount, :debt, :inherited_debt, :rate_override)
	`
	if _, err := sqlx.NamedExecContext(ctx, r.db, query, s); err != nil {
		if IsUniqueViolation(err) {
			return models.ErrTicketAlreadyInUse
		}
		return err
	}
	return nil
}

// Complete records the checkout of an active session.
func (r *SessionRepository) Complete(ctx context.Context, s models.Session) error {
	const query = `
		UPDATE sessions
		SET exit_time = $2,
		    status = $3,
		    total_amount = $4,
		    debt = $5
		WHERE id = $1 AND status = 'active'
	`
	result, err := r.db.ExecContext(ctx, query, s.ID, s.ExitTime, s.Status, s.TotalAmount, s.Debt)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return models.ErrUnknownTicket
	}
	return nil
}

// ClearDebt zeroes the debt of every session of plate except keepID.
func (r *SessionRepository) ClearDebt(ctx context.Context, plate, keepID string) error {
	const query = `UPDATE sessions SET debt = 0 WHERE plate = $1 AND id <> $2 AND debt > 0`
	_, err := r.db.ExecContext(ctx, query, plate, keepID)
	return err
}

// Delete removes a session; its payments go with it.
func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, id)
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

// GetByID returns the session or models.ErrNotFound.
func (r *SessionRepository) GetByID(ctx context.Context, id string) (models.Session, error) {
	var s models.Session
	err := sqlx.GetContext(ctx, r.db, &s, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id)
	if IsNoRows(err) {
		return models.Session{}, models.ErrNotFound
	}
	return s, err
}

// FindActiveByTicket returns the active session for code, or nil.
func (r *SessionRepository) FindActiveByTicket(ctx context.Context, code string) (*models.Session, error) {
	return r.findOne(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE ticket_code = $1 AND status = 'active'`, strings.TrimSpace(code))
}

// FindActiveByPlate returns the most recent active session for plate, or nil.
func (r *SessionRepository) FindActiveByPlate(ctx context.Context, plate string) (*models.Session, error) {
	const query = `
		SELECT ` + sessionColumns + `
		FROM sessions
		WHERE plate = $1 AND status = 'active'
		ORDER BY entry_time DESC
		LIMIT 1
	`
	return r.findOne(ctx, query, plate)
}

func (r *SessionRepository) findOne(ctx context.Context, query string, args ...interface{}) (*models.Session, error) {
	var s models.Session
	if err := sqlx.GetContext(ctx, r.db, &s, query, args...); err != nil {
		if IsNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

// ListByPlate returns every session of plate, newest first.
func (r *SessionRepository) ListByPlate(ctx context.Context, plate string) ([]models.Session, error) {
	query, args, err := r.builder.
		Select(sessionColumns).
		From("sessions").
		Where(squirrel.Eq{"plate": plate}).
		OrderBy("entry_time DESC").
		ToSql()
	if err != nil {
		return nil, err
	}
	return r.selectSessions(ctx, query, args...)
}

// SearchByPlatePrefix returns sessions whose plate starts with prefix, newest first.
func (r *SessionRepository) SearchByPlatePrefix(ctx context.Context, prefix string) ([]models.Session, error) {
	query, args, err := r.builder.
		Select(sessionColumns).
		From("sessions").
		Where(squirrel.Like{"plate": escapeLike(prefix) + "%"}).
		OrderBy("entry_time DESC").
		Limit(models.SearchLimit).
		ToSql()
	if err != nil {
		return nil, err
	}
	return r.selectSessions(ctx, query, args...)
}

// ListActive returns one page of active sessions, oldest entry first.
func (r *SessionRepository) ListActive(ctx context.Context, page models.Page) (models.SessionList, error) {
	return r.listPage(ctx, squirrel.Eq{"status": models.SessionActive}, "entry_time ASC", page)
}

// ListByDate returns one page of sessions that entered in [from, to), newest first.
func (r *SessionRepository) ListByDate(ctx context.Context, from, to time.Time, page models.Page) (models.SessionList, error) {
	where := squirrel.And{
		squirrel.GtOrEq{"entry_time": from},
		squirrel.Lt{"entry_time": to},
	}
	return r.listPage(ctx, where, "entry_time DESC", page)
}

func (r *SessionRepository) listPage(ctx context.Context, where squirrel.Sqlizer, order string, page models.Page) (models.SessionList, error) {
	page = page.Normalized()

	countQuery, countArgs, err := r.builder.Select("COUNT(*)").From("sessions").Where(where).ToSql()
	if err != nil {
		return models.SessionList{}, err
	}
	var total int
	if err := sqlx.GetContext(ctx, r.db, &total, countQuery, countArgs...); err != nil {
		return models.SessionList{}, err
	}

	query, args, err := r.builder.
		Select(sessionColumns).
		From("sessions").
		Where(where).
		OrderBy(order, "id").
		Limit(uint64(page.Limit)).
		Offset(uint64(page.Offset)).
		ToSql()
	if err != nil {
		return models.SessionList{}, err
	}
	items, err := r.selectSessions(ctx, query, args...)
	if err != nil {
		return models.SessionList{}, err
	}
	return models.SessionList{Items: items, Total: total}, nil
}

// ActiveConflicting returns active sessions of plates holding more than one active session.
func (r *SessionRepository) ActiveConflicting(ctx context.Context) ([]models.Session, error) {
	const query = `
		SELECT ` + sessionColumns + `
		FROM sessions
		WHERE status = 'active' AND plate IN (
			SELECT plate FROM sessions
			WHERE status = 'active' AND plate <> ''
			GROUP BY plate
			HAVING COUNT(*) > 1
		)
		ORDER BY entry_time ASC, id ASC
	`
	return r.selectSessions(ctx, query)
}

func (r *SessionRepository) selectSessions(ctx context.Context, query string, args ...interface{}) ([]models.Session, error) {
	sessions := make([]models.Session, 0)
	if err := sqlx.SelectContext(ctx, r.db, &sessions, query, args...); err != nil {
		return nil, err
	}
	return sessions, nil
}

// PlateDebt sums the debt over every session of plate.
func (r *SessionRepository) PlateDebt(ctx context.Context, plate string) (decimal.Decimal, error) {
	var debt decimal.Decimal
	err := sqlx.GetContext(ctx, r.db, &debt, `SELECT COALESCE(SUM(debt), 0) FROM sessions WHERE plate = $1`, plate)
	return debt, err
}

// TotalDebt sums the debt over every session.
func (r *SessionRepository) TotalDebt(ctx context.Context) (decimal.Decimal, error) {
	var debt decimal.Decimal
	err := sqlx.GetContext(ctx, r.db, &debt, `SELECT COALESCE(SUM(debt), 0) FROM sessions`)
	return debt, err
}

// Debtors returns one page of plates with outstanding debt, largest first.
func (r *SessionRepository) Debtors(ctx context.Context, page models.Page) (models.DebtorList, error) {
	page = page.Normalized()

	var total int
	if err := sqlx.GetContext(ctx, r.db, &total, `SELECT COUNT(DISTINCT plate) FROM sessions WHERE debt > 0`); err != nil {
		return models.DebtorList{}, err
	}

	const query = `
		SELECT plate,
		       SUM(debt) AS total_debt,
		       MIN(exit_time) AS oldest_exit_time,
		       COUNT(*) AS sessions_with_debt
		FROM sessions
		WHERE debt > 0
		GROUP BY plate
		ORDER BY total_debt DESC, plate ASC
		LIMIT $1 OFFSET $2
	`
	items := make([]models.Debtor, 0)
	if err := sqlx.SelectContext(ctx, r.db, &items, query, page.Limit, page.Offset); err != nil {
		return models.DebtorList{}, fmt.Errorf("debtors: %w", err)
	}
	return models.DebtorList{Items: items, Total: total}, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
