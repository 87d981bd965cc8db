package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/dojo-admin-api/internal/models"
)

const collectedPaymentColumns = `id, student_id, payment_month, amount, bank_transaction_id, notes, created_at`

// CollectedPaymentRepository stores posted tuition payments.
type CollectedPaymentRepository struct {
	db *sqlx.DB
}

// NewCollectedPaymentRepository creates a CollectedPaymentRepository.
func NewCollectedPaymentRepository(db *sqlx.DB) *CollectedPaymentRepository {
	return &CollectedPaymentRepository{db: db}
}

// StudentExists reports whether the student is known.
func (r *CollectedPaymentRepository) StudentExists(ctx context.Context, id string) (bool, error) {
	var exists bool
	if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM students WHERE id = $1)`, id); err != nil {
		return false, fmt.Errorf("check student: %w", err)
	}
	return exists, nil
}

// Create inserts a collected payment.
func (r *CollectedPaymentRepository) Create(ctx context.Context, payment *models.CollectedPayment) error {
	if payment.ID == "" {
		payment.ID = uuid.NewString()
	}
	if payment.CreatedAt.IsZero() {
		payment.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO collected_payments (id, student_id, payment_month, amount, bank_transaction_id, notes, created_at)
VALUES (:id, :student_id, :payment_month, :amount, :bank_transaction_id, :notes, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, payment); err != nil {
		return fmt.Errorf("create collected payment: %w", err)
	}
	return nil
}

// FindByID returns a collected payment.
func (r *CollectedPaymentRepository) FindByID(ctx context.Context, id string) (*models.CollectedPayment, error) {
	query := `SELECT ` + collectedPaymentColumns + ` FROM collected_payments WHERE id = $1`
	var payment models.CollectedPayment
	if err := r.db.GetContext(ctx, &payment, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find collected payment: %w", err)
	}
	return &payment, nil
}

// ListByMonth returns the collected payments of a month.
func (r *CollectedPaymentRepository) ListByMonth(ctx context.Context, period models.Period) ([]models.CollectedPayment, error) {
	query := `SELECT ` + collectedPaymentColumns + ` FROM collected_payments
WHERE payment_month >= $1 AND payment_month < $2
ORDER BY payment_month, created_at`
	var payments []models.CollectedPayment
	if err := r.db.SelectContext(ctx, &payments, query, period.Start(), period.End()); err != nil {
		return nil, fmt.Errorf("list collected payments: %w", err)
	}
	return payments, nil
}

// Delete removes a collected payment.
func (r *CollectedPaymentRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM collected_payments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete collected payment: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
