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

// BankTransactionRepository stores imported bank statement lines.
type BankTransactionRepository struct {
	db *sqlx.DB
}

// NewBankTransactionRepository creates a BankTransactionRepository.
func NewBankTransactionRepository(db *sqlx.DB) *BankTransactionRepository {
	return &BankTransactionRepository{db: db}
}

// Create inserts a bank transaction.
func (r *BankTransactionRepository) Create(ctx context.Context, txn *models.BankTransaction) error {
	if txn.ID == "" {
		txn.ID = uuid.NewString()
	}
	if txn.ImportedAt.IsZero() {
		txn.ImportedAt = time.Now().UTC()
	}
	if txn.Status == "" {
		txn.Status = models.BankTransactionPending
	}
	const query = `INSERT INTO bank_transactions (id, transaction_date, description, credit_amount, debit_amount, amount, payer_name, reference_number, status, imported_at)
VALUES (:id, :transaction_date, :description, :credit_amount, :debit_amount, :amount, :payer_name, :reference_number, :status, :imported_at)`
	if _, err := r.db.NamedExecContext(ctx, query, txn); err != nil {
		return fmt.Errorf("create bank transaction: %w", err)
	}
	return nil
}

// FindBalance returns a transaction together with its matched total.
func (r *BankTransactionRepository) FindBalance(ctx context.Context, id string) (*models.BankTransactionBalance, error) {
	query := `SELECT ` + bankTransactionColumns + `, ` + allocatedExpr + ` AS allocated FROM bank_transactions WHERE id = $1`
	var balance models.BankTransactionBalance
	if err := r.db.GetContext(ctx, &balance, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find bank transaction: %w", err)
	}
	return &balance, nil
}

// List returns the transactions of a date range, newest first, optionally filtered by status.
func (r *BankTransactionRepository) List(ctx context.Context, from, to time.Time, status models.BankTransactionStatus) ([]models.BankTransaction, error) {
	query := `SELECT ` + bankTransactionColumns + ` FROM bank_transactions
WHERE transaction_date >= $1 AND transaction_date < $2 AND ($3 = '' OR status = $3)
ORDER BY transaction_date DESC, imported_at DESC`
	var txns []models.BankTransaction
	if err := r.db.SelectContext(ctx, &txns, query, from, to, string(status)); err != nil {
		return nil, fmt.Errorf("list bank transactions: %w", err)
	}
	return txns, nil
}

// SetStatus updates the status of a transaction.
func (r *BankTransactionRepository) SetStatus(ctx context.Context, id string, status models.BankTransactionStatus) error {
	res, err := r.db.ExecContext(ctx, `UPDATE bank_transactions SET status = $2 WHERE id = $1`, id, string(status))
	if err != nil {
		return fmt.Errorf("update bank transaction status: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// RefreshStatus recomputes the matching status from the matched total.
func (r *BankTransactionRepository) RefreshStatus(ctx context.Context, id string) (models.BankTransactionStatus, error) {
	return refreshBankTransactionStatus(ctx, r.db, id)
}
