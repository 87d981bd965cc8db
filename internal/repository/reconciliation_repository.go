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

const (
	instructorPaymentColumns = `id, instructor_id, category_id, month, role, total_classes, total_payment_collected,
	share_amount, paid_amount, is_paid, paid_date, bank_transaction_id, notes, created_at, updated_at`
	federationPaymentColumns = `id, category_id, month, total_payment_collected, share_amount, is_paid, paid_date,
	bank_transaction_id, notes, created_at, updated_at`
	allocationColumns      = `id, payment_id, bank_transaction_id, amount, notes, created_by, created_at`
	bankTransactionColumns = `id, transaction_date, description, credit_amount, debit_amount, amount, payer_name,
	reference_number, status, imported_at`
	ledgerAllocationColumns = `id, bank_transaction_id, side, category, student_id, entry_date, amount, notes, created_by, created_at`
)

// ReconciliationTx exposes row-locked access to payment records and bank transactions.
// Callers lock the payment before the bank transaction.
type ReconciliationTx interface {
	LockInstructorPayment(ctx context.Context, id string) (*models.MonthlyInstructorPayment, error)
	LockFederationPayment(ctx context.Context, id string) (*models.MonthlyFederationPayment, error)
	LockBankTransaction(ctx context.Context, id string) (*models.BankTransactionBalance, error)
	LockAllocation(ctx context.Context, id string) (*models.InstructorPaymentAllocation, error)
	InsertAllocation(ctx context.Context, allocation *models.InstructorPaymentAllocation) error
	DeleteAllocation(ctx context.Context, id string) error
	LatestAllocation(ctx context.Context, paymentID string) (*models.InstructorPaymentAllocation, error)
	UpdateInstructorPayment(ctx context.Context, payment *models.MonthlyInstructorPayment) error
	UpdateFederationPayment(ctx context.Context, payment *models.MonthlyFederationPayment) error
	RefreshBankTransaction(ctx context.Context, id string) (models.BankTransactionStatus, error)
	InsertLedgerAllocation(ctx context.Context, allocation *models.LedgerAllocation) error
	LockLedgerAllocation(ctx context.Context, id string) (*models.LedgerAllocation, error)
	DeleteLedgerAllocation(ctx context.Context, id string) error
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// ReconciliationRepository persists partial settlements and bank transaction links.
type ReconciliationRepository struct {
	db *sqlx.DB
}

// NewReconciliationRepository creates a ReconciliationRepository.
func NewReconciliationRepository(db *sqlx.DB) *ReconciliationRepository {
	return &ReconciliationRepository{db: db}
}

// WithinTx runs fn inside a transaction, committing only when fn returns nil.
func (r *ReconciliationRepository) WithinTx(ctx context.Context, fn func(ReconciliationTx) error) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reconciliation transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(&reconciliationTx{tx: tx}); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit reconciliation transaction: %w", err)
	}
	return nil
}

// FindInstructorPayment returns an instructor payment without locking it.
func (r *ReconciliationRepository) FindInstructorPayment(ctx context.Context, id string) (*models.MonthlyInstructorPayment, error) {
	query := `SELECT ` + instructorPaymentColumns + ` FROM monthly_instructor_payments WHERE id = $1`
	var payment models.MonthlyInstructorPayment
	if err := r.db.GetContext(ctx, &payment, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find instructor payment: %w", err)
	}
	return &payment, nil
}

// ListAllocations returns the allocations of an instructor payment, oldest first.
func (r *ReconciliationRepository) ListAllocations(ctx context.Context, paymentID string) ([]models.InstructorPaymentAllocation, error) {
	query := `SELECT ` + allocationColumns + ` FROM instructor_payment_allocations WHERE payment_id = $1 ORDER BY created_at, id`
	var allocations []models.InstructorPaymentAllocation
	if err := r.db.SelectContext(ctx, &allocations, query, paymentID); err != nil {
		return nil, fmt.Errorf("list allocations: %w", err)
	}
	return allocations, nil
}

// ListLedgerAllocations returns the income and expense allocations of a bank transaction, oldest first.
func (r *ReconciliationRepository) ListLedgerAllocations(ctx context.Context, bankTransactionID string) ([]models.LedgerAllocation, error) {
	query := `SELECT ` + ledgerAllocationColumns + ` FROM ledger_allocations WHERE bank_transaction_id = $1 ORDER BY created_at, id`
	var allocations []models.LedgerAllocation
	if err := r.db.SelectContext(ctx, &allocations, query, bankTransactionID); err != nil {
		return nil, fmt.Errorf("list ledger allocations: %w", err)
	}
	return allocations, nil
}

type reconciliationTx struct {
	tx *sqlx.Tx
}

func (t *reconciliationTx) LockInstructorPayment(ctx context.Context, id string) (*models.MonthlyInstructorPayment, error) {
	query := `SELECT ` + instructorPaymentColumns + ` FROM monthly_instructor_payments WHERE id = $1 FOR UPDATE`
	var payment models.MonthlyInstructorPayment
	if err := t.tx.GetContext(ctx, &payment, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("lock instructor payment: %w", err)
	}
	return &payment, nil
}

func (t *reconciliationTx) LockFederationPayment(ctx context.Context, id string) (*models.MonthlyFederationPayment, error) {
	query := `SELECT ` + federationPaymentColumns + ` FROM monthly_federation_payments WHERE id = $1 FOR UPDATE`
	var payment models.MonthlyFederationPayment
	if err := t.tx.GetContext(ctx, &payment, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("lock federation payment: %w", err)
	}
	return &payment, nil
}

// LockBankTransaction locks the transaction row and loads what is already matched against it.
func (t *reconciliationTx) LockBankTransaction(ctx context.Context, id string) (*models.BankTransactionBalance, error) {
	query := `SELECT ` + bankTransactionColumns + `, ` + allocatedExpr + ` AS allocated FROM bank_transactions WHERE id = $1 FOR UPDATE`
	var balance models.BankTransactionBalance
	if err := t.tx.GetContext(ctx, &balance, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("lock bank transaction: %w", err)
	}
	return &balance, nil
}

func (t *reconciliationTx) LockAllocation(ctx context.Context, id string) (*models.InstructorPaymentAllocation, error) {
	query := `SELECT ` + allocationColumns + ` FROM instructor_payment_allocations WHERE id = $1 FOR UPDATE`
	var allocation models.InstructorPaymentAllocation
	if err := t.tx.GetContext(ctx, &allocation, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("lock allocation: %w", err)
	}
	return &allocation, nil
}

func (t *reconciliationTx) InsertAllocation(ctx context.Context, allocation *models.InstructorPaymentAllocation) error {
	if allocation.ID == "" {
		allocation.ID = uuid.NewString()
	}
	if allocation.CreatedAt.IsZero() {
		allocation.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO instructor_payment_allocations (id, payment_id, bank_transaction_id, amount, notes, created_by, created_at)
VALUES (:id, :payment_id, :bank_transaction_id, :amount, :notes, :created_by, :created_at)`
	if _, err := t.tx.NamedExecContext(ctx, query, allocation); err != nil {
		return fmt.Errorf("insert allocation: %w", err)
	}
	return nil
}

func (t *reconciliationTx) DeleteAllocation(ctx context.Context, id string) error {
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM instructor_payment_allocations WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete allocation: %w", err)
	}
	return nil
}

// LatestAllocation returns the most recent allocation of a payment, or nil when none is left.
func (t *reconciliationTx) LatestAllocation(ctx context.Context, paymentID string) (*models.InstructorPaymentAllocation, error) {
	query := `SELECT ` + allocationColumns + ` FROM instructor_payment_allocations WHERE payment_id = $1 ORDER BY created_at DESC, id DESC LIMIT 1`
	var allocation models.InstructorPaymentAllocation
	if err := t.tx.GetContext(ctx, &allocation, query, paymentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find latest allocation: %w", err)
	}
	return &allocation, nil
}

func (t *reconciliationTx) UpdateInstructorPayment(ctx context.Context, payment *models.MonthlyInstructorPayment) error {
	payment.UpdatedAt = time.Now().UTC()
	const query = `UPDATE monthly_instructor_payments
SET paid_amount = :paid_amount, is_paid = :is_paid, paid_date = :paid_date, bank_transaction_id = :bank_transaction_id, updated_at = :updated_at
WHERE id = :id`
	if _, err := t.tx.NamedExecContext(ctx, query, payment); err != nil {
		return fmt.Errorf("update instructor payment: %w", err)
	}
	return nil
}

func (t *reconciliationTx) UpdateFederationPayment(ctx context.Context, payment *models.MonthlyFederationPayment) error {
	payment.UpdatedAt = time.Now().UTC()
	const query = `UPDATE monthly_federation_payments
SET is_paid = :is_paid, paid_date = :paid_date, bank_transaction_id = :bank_transaction_id, notes = :notes, updated_at = :updated_at
WHERE id = :id`
	if _, err := t.tx.NamedExecContext(ctx, query, payment); err != nil {
		return fmt.Errorf("update federation payment: %w", err)
	}
	return nil
}

func (t *reconciliationTx) InsertLedgerAllocation(ctx context.Context, allocation *models.LedgerAllocation) error {
	if allocation.ID == "" {
		allocation.ID = uuid.NewString()
	}
	if allocation.CreatedAt.IsZero() {
		allocation.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO ledger_allocations (id, bank_transaction_id, side, category, student_id, entry_date, amount, notes, created_by, created_at)
VALUES (:id, :bank_transaction_id, :side, :category, :student_id, :entry_date, :amount, :notes, :created_by, :created_at)`
	if _, err := t.tx.NamedExecContext(ctx, query, allocation); err != nil {
		return fmt.Errorf("insert ledger allocation: %w", err)
	}
	return nil
}

func (t *reconciliationTx) LockLedgerAllocation(ctx context.Context, id string) (*models.LedgerAllocation, error) {
	query := `SELECT ` + ledgerAllocationColumns + ` FROM ledger_allocations WHERE id = $1 FOR UPDATE`
	var allocation models.LedgerAllocation
	if err := t.tx.GetContext(ctx, &allocation, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("lock ledger allocation: %w", err)
	}
	return &allocation, nil
}

func (t *reconciliationTx) DeleteLedgerAllocation(ctx context.Context, id string) error {
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM ledger_allocations WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete ledger allocation: %w", err)
	}
	return nil
}

func (t *reconciliationTx) RefreshBankTransaction(ctx context.Context, id string) (models.BankTransactionStatus, error) {
	return refreshBankTransactionStatus(ctx, t.tx, id)
}

func (t *reconciliationTx) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	return insertAuditLog(ctx, t.tx, log)
}
