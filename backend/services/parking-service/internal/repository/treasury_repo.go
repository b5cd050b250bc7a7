package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"parkwise/backend/services/parking-service/internal/models"
)

// TreasuryRepository handles payments and shift closures.
type TreasuryRepository struct {
	db sqlx.ExtContext
}

// NewTreasuryRepository returns repository.
func NewTreasuryRepository(db sqlx.ExtContext) *TreasuryRepository {
	return &TreasuryRepository{db: db}
}

// WithTx returns a repository bound to tx.
func (r *TreasuryRepository) WithTx(tx *sqlx.Tx) *TreasuryRepository {
	return &TreasuryRepository{db: tx}
}

// InsertPayment appends a ledger line.
func (r *TreasuryRepository) InsertPayment(ctx context.Context, p models.Payment) error {
	const query = `
		INSERT INTO payments (id, session_id, amount, method, created_at)
		VALUES (:id, :session_id, :amount, :method, :created_at)
	`
	_, err := sqlx.NamedExecContext(ctx, r.db, query, p)
	return err
}

// Payments returns payments created in [from, to), oldest first.
func (r *TreasuryRepository) Payments(ctx context.Context, from, to time.Time) ([]models.Payment, error) {
	const query = `
		SELECT id, session_id, amount, method, created_at
		FROM payments
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at ASC, id ASC
	`
	payments := make([]models.Payment, 0)
	if err := sqlx.SelectContext(ctx, r.db, &payments, query, from, to); err != nil {
		return nil, err
	}
	return payments, nil
}

// Closures returns the newest closures first.
func (r *TreasuryRepository) Closures(ctx context.Context, limit int) ([]models.ShiftClosure, error) {
	const query = `
		SELECT id, closed_at, expected_total, cash_total, card_total, transfer_total, arqueo_cash, discrepancy, total_transactions, notes
		FROM shift_closures
		ORDER BY closed_at DESC, id DESC
		LIMIT $1
	`
	closures := make([]models.ShiftClosure, 0)
	if err := sqlx.SelectContext(ctx, r.db, &closures, query, models.ClampClosureLimit(limit)); err != nil {
		return nil, err
	}
	return closures, nil
}

// LastClosedAt returns the latest closure time in [from, to), or nil.
func (r *TreasuryRepository) LastClosedAt(ctx context.Context, from, to time.Time) (*time.Time, error) {
	var closedAt *time.Time
	const query = `SELECT MAX(closed_at) FROM shift_closures WHERE closed_at >= $1 AND closed_at < $2`
	if err := sqlx.GetContext(ctx, r.db, &closedAt, query, from, to); err != nil {
		return nil, err
	}
	return closedAt, nil
}

// InsertClosure appends a closure.
func (r *TreasuryRepository) InsertClosure(ctx context.Context, c models.ShiftClosure) error {
	const query = `
		INSERT INTO shift_closures (id, closed_at, expected_total, cash_total, card_total, transfer_total, arqueo_cash, discrepancy, total_transactions, notes)
		VALUES (:id, :closed_at, :expected_total, :cash_total, :card_total, :transfer_total, :arqueo_cash, :discrepancy, :total_transactions, :notes)
	`
	_, err := sqlx.NamedExecContext(ctx, r.db, query, c)
	return err
}
