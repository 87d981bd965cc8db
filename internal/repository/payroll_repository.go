package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/dojo-admin-api/internal/dto"
	"github.com/noah-isme/dojo-admin-api/internal/models"
)

// PayrollTx is the unit of work for one (category, month) computation. Every call runs inside
// the transaction that holds the advisory lock for the pair.
type PayrollTx interface {
	HasReconciledRecords(ctx context.Context) (bool, error)
	TotalCollected(ctx context.Context) (decimal.Decimal, error)
	CountSessions(ctx context.Context) (int, error)
	ListAssignments(ctx context.Context) ([]models.TeachingAssignment, error)
	DeleteRecords(ctx context.Context) (int, []string, error)
	UpsertFederation(ctx context.Context, total, share decimal.Decimal) error
	UpsertInstructor(ctx context.Context, total decimal.Decimal, share dto.InstructorShare) error
	DeleteStaleInstructors(ctx context.Context, keep []dto.InstructorShare) (int, error)
	RefreshBankTransactions(ctx context.Context, ids []string) error
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// PayrollRepository persists monthly federation and instructor payment records.
type PayrollRepository struct {
	db *sqlx.DB
}

// NewPayrollRepository creates a PayrollRepository.
func NewPayrollRepository(db *sqlx.DB) *PayrollRepository {
	return &PayrollRepository{db: db}
}

// ListCategories returns every class category ordered by code.
func (r *PayrollRepository) ListCategories(ctx context.Context) ([]models.ClassCategory, error) {
	const query = `SELECT id, code, name, default_lead_instructor_id FROM class_categories ORDER BY code`
	var categories []models.ClassCategory
	if err := r.db.SelectContext(ctx, &categories, query); err != nil {
		return nil, fmt.Errorf("list class categories: %w", err)
	}
	return categories, nil
}

// WithinCategoryLock runs fn in a transaction holding a Postgres advisory lock keyed by
// (category, month). The transaction commits only when fn returns nil.
func (r *PayrollRepository) WithinCategoryLock(ctx context.Context, categoryID string, period models.Period, fn func(PayrollTx) error) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin payroll transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const lockQuery = `SELECT pg_advisory_xact_lock(hashtext($1))`
	if _, err = tx.ExecContext(ctx, lockQuery, payrollLockKey(categoryID, period)); err != nil {
		return fmt.Errorf("acquire payroll lock: %w", err)
	}

	if err = fn(&payrollTx{tx: tx, categoryID: categoryID, period: period}); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit payroll transaction: %w", err)
	}
	return nil
}

func payrollLockKey(categoryID string, period models.Period) string {
	return "payroll:" + categoryID + ":" + period.String()
}

// ListFederationPayments returns the federation records of a month.
func (r *PayrollRepository) ListFederationPayments(ctx context.Context, period models.Period) ([]dto.FederationLine, error) {
	const query = `
SELECT id, category_id, total_payment_collected, share_amount, is_paid, bank_transaction_id
FROM monthly_federation_payments
WHERE month = $1
ORDER BY category_id`
	var lines []dto.FederationLine
	if err := r.db.SelectContext(ctx, &lines, query, period.Start()); err != nil {
		return nil, fmt.Errorf("list federation payments: %w", err)
	}
	return lines, nil
}

// ListInstructorPayments returns the instructor records of a month with instructor names.
func (r *PayrollRepository) ListInstructorPayments(ctx context.Context, period models.Period) ([]dto.InstructorLine, error) {
	const query = `
SELECT p.id, p.category_id, p.instructor_id, i.full_name AS instructor_name, p.role,
	p.total_classes, p.share_amount, p.paid_amount, p.is_paid
FROM monthly_instructor_payments p
JOIN instructors i ON i.id = p.instructor_id
WHERE p.month = $1
ORDER BY p.category_id, p.role, i.full_name`
	var lines []dto.InstructorLine
	if err := r.db.SelectContext(ctx, &lines, query, period.Start()); err != nil {
		return nil, fmt.Errorf("list instructor payments: %w", err)
	}
	return lines, nil
}

type payrollTx struct {
	tx         *sqlx.Tx
	categoryID string
	period     models.Period
}

// HasReconciledRecords reports whether any record of the pair is paid, bank-linked or partially settled.
func (p *payrollTx) HasReconciledRecords(ctx context.Context) (bool, error) {
	const query = `
SELECT EXISTS (
	SELECT 1 FROM monthly_instructor_payments
	WHERE category_id = $1 AND month = $2
		AND (is_paid OR bank_transaction_id IS NOT NULL OR paid_amount > 0)
) OR EXISTS (
	SELECT 1 FROM monthly_federation_payments
	WHERE category_id = $1 AND month = $2
		AND (is_paid OR bank_transaction_id IS NOT NULL)
)`
	var locked bool
	if err := p.tx.GetContext(ctx, &locked, query, p.categoryID, p.period.Start()); err != nil {
		return false, fmt.Errorf("check reconciled payments: %w", err)
	}
	return locked, nil
}

// TotalCollected sums the month's tuition paid by students enrolled in the category.
func (p *payrollTx) TotalCollected(ctx context.Context) (decimal.Decimal, error) {
	const query = `
SELECT COALESCE(SUM(cp.amount), 0)
FROM collected_payments cp
JOIN student_class_categories scc ON scc.student_id = cp.student_id
WHERE scc.category_id = $1 AND cp.payment_month >= $2 AND cp.payment_month < $3`
	var total decimal.Decimal
	if err := p.tx.GetContext(ctx, &total, query, p.categoryID, p.period.Start(), p.period.End()); err != nil {
		return decimal.Zero, fmt.Errorf("sum collected payments: %w", err)
	}
	return total, nil
}

// CountSessions counts the non-cancelled sessions of the category in the month.
func (p *payrollTx) CountSessions(ctx context.Context) (int, error) {
	const query = `
SELECT COUNT(*) FROM class_sessions
WHERE category_id = $1 AND session_date >= $2 AND session_date < $3 AND NOT cancelled`
	var count int
	if err := p.tx.GetContext(ctx, &count, query, p.categoryID, p.period.Start(), p.period.End()); err != nil {
		return 0, fmt.Errorf("count class sessions: %w", err)
	}
	return count, nil
}

// ListAssignments returns every assignment on the category's non-cancelled sessions in the month.
func (p *payrollTx) ListAssignments(ctx context.Context) ([]models.TeachingAssignment, error) {
	const query = `
SELECT ta.id, ta.session_id, ta.instructor_id, ta.role, ta.created_at
FROM teaching_assignments ta
JOIN class_sessions cs ON cs.id = ta.session_id
WHERE cs.category_id = $1 AND cs.session_date >= $2 AND cs.session_date < $3 AND NOT cs.cancelled
ORDER BY cs.session_date, ta.instructor_id, ta.role`
	var assignments []models.TeachingAssignment
	if err := p.tx.SelectContext(ctx, &assignments, query, p.categoryID, p.period.Start(), p.period.End()); err != nil {
		return nil, fmt.Errorf("list teaching assignments: %w", err)
	}
	return assignments, nil
}

// DeleteRecords removes every payment record of the pair and returns the bank transactions that
// were linked to them so their status can be refreshed. Allocations cascade.
func (p *payrollTx) DeleteRecords(ctx context.Context) (int, []string, error) {
	const linkedQuery = `
SELECT a.bank_transaction_id
FROM instructor_payment_allocations a
JOIN monthly_instructor_payments mp ON mp.id = a.payment_id
WHERE mp.category_id = $1 AND mp.month = $2
UNION
SELECT bank_transaction_id FROM monthly_instructor_payments
WHERE category_id = $1 AND month = $2 AND bank_transaction_id IS NOT NULL
UNION
SELECT bank_transaction_id FROM monthly_federation_payments
WHERE category_id = $1 AND month = $2 AND bank_transaction_id IS NOT NULL`
	var linked []string
	if err := p.tx.SelectContext(ctx, &linked, linkedQuery, p.categoryID, p.period.Start()); err != nil {
		return 0, nil, fmt.Errorf("list linked bank transactions: %w", err)
	}

	removed := 0
	for _, query := range []string{
		`DELETE FROM monthly_instructor_payments WHERE category_id = $1 AND month = $2`,
		`DELETE FROM monthly_federation_payments WHERE category_id = $1 AND month = $2`,
	} {
		res, err := p.tx.ExecContext(ctx, query, p.categoryID, p.period.Start())
		if err != nil {
			return 0, nil, fmt.Errorf("delete payment records: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil {
			removed += int(n)
		}
	}
	return removed, linked, nil
}

// UpsertFederation creates or refreshes the federation record of the pair.
func (p *payrollTx) UpsertFederation(ctx context.Context, total, share decimal.Decimal) error {
	const query = `
INSERT INTO monthly_federation_payments (id, category_id, month, total_payment_collected, share_amount, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $6)
ON CONFLICT (category_id, month) DO UPDATE SET
	total_payment_collected = EXCLUDED.total_payment_collected,
	share_amount = EXCLUDED.share_amount,
	updated_at = EXCLUDED.updated_at`
	now := time.Now().UTC()
	if _, err := p.tx.ExecContext(ctx, query, uuid.NewString(), p.categoryID, p.period.Start(), total, share, now); err != nil {
		return fmt.Errorf("upsert federation payment: %w", err)
	}
	return nil
}

// UpsertInstructor creates or refreshes the record keyed by (instructor, category, month, role).
func (p *payrollTx) UpsertInstructor(ctx context.Context, total decimal.Decimal, share dto.InstructorShare) error {
	const query = `
INSERT INTO monthly_instructor_payments (id, instructor_id, category_id, month, role, total_classes, total_payment_collected, share_amount, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
ON CONFLICT (instructor_id, category_id, month, role) DO UPDATE SET
	total_classes = EXCLUDED.total_classes,
	total_payment_collected = EXCLUDED.total_payment_collected,
	share_amount = EXCLUDED.share_amount,
	updated_at = EXCLUDED.updated_at`
	now := time.Now().UTC()
	if _, err := p.tx.ExecContext(ctx, query,
		uuid.NewString(), share.InstructorID, p.categoryID, p.period.Start(), string(share.Role),
		share.Classes, total, share.Amount, now,
	); err != nil {
		return fmt.Errorf("upsert instructor payment: %w", err)
	}
	return nil
}

// DeleteStaleInstructors removes records of the pair whose (instructor, role) no longer has assignments.
func (p *payrollTx) DeleteStaleInstructors(ctx context.Context, keep []dto.InstructorShare) (int, error) {
	keys := make([]string, 0, len(keep))
	for _, share := range keep {
		keys = append(keys, share.InstructorID+"|"+string(share.Role))
	}
	const query = `
DELETE FROM monthly_instructor_payments
WHERE category_id = $1 AND month = $2 AND NOT (instructor_id || '|' || role = ANY($3))`
	res, err := p.tx.ExecContext(ctx, query, p.categoryID, p.period.Start(), pq.Array(keys))
	if err != nil {
		return 0, fmt.Errorf("delete stale instructor payments: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count stale instructor payments: %w", err)
	}
	return int(n), nil
}

// RefreshBankTransactions recomputes the matching status of the given transactions.
func (p *payrollTx) RefreshBankTransactions(ctx context.Context, ids []string) error {
	for _, id := range ids {
		if _, err := refreshBankTransactionStatus(ctx, p.tx, id); err != nil {
			return err
		}
	}
	return nil
}

func (p *payrollTx) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	return insertAuditLog(ctx, p.tx, log)
}

// allocatedExpr sums everything matched against bank transaction $1 on the side of its direction.
// Credit lines carry tuition and other income; debit lines carry payouts and expenses.
// It must be evaluated with bank_transactions in the outer FROM clause.
const allocatedExpr = `
	CASE WHEN COALESCE(bank_transactions.credit_amount, 0) > 0 THEN
		(SELECT COALESCE(SUM(amount), 0) FROM collected_payments WHERE bank_transaction_id = $1)
		+ (SELECT COALESCE(SUM(amount), 0) FROM ledger_allocations WHERE bank_transaction_id = $1 AND side = 'INCOME')
	ELSE
		(SELECT COALESCE(SUM(amount), 0) FROM instructor_payment_allocations WHERE bank_transaction_id = $1)
		+ (SELECT COALESCE(SUM(share_amount), 0) FROM monthly_federation_payments WHERE bank_transaction_id = $1)
		+ (SELECT COALESCE(SUM(amount), 0) FROM ledger_allocations WHERE bank_transaction_id = $1 AND side = 'EXPENSE')
	END`

// refreshBankTransactionStatus derives PENDING / PARTIALLY_MATCHED / MATCHED from the matched total.
func refreshBankTransactionStatus(ctx context.Context, exec sqlx.ExtContext, id string) (models.BankTransactionStatus, error) {
	var row struct {
		Amount    decimal.Decimal              `db:"amount"`
		Status    models.BankTransactionStatus `db:"status"`
		Allocated decimal.Decimal              `db:"allocated"`
	}
	query := `SELECT amount, status, ` + allocatedExpr + ` AS allocated FROM bank_transactions WHERE id = $1`
	if err := sqlx.GetContext(ctx, exec, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("load bank transaction %s: %w", id, err)
	}
	status := models.ResolveStatus(row.Status, row.Amount, row.Allocated)
	if status == row.Status {
		return status, nil
	}
	if _, err := exec.ExecContext(ctx, `UPDATE bank_transactions SET status = $2 WHERE id = $1`, id, string(status)); err != nil {
		return "", fmt.Errorf("update bank transaction status: %w", err)
	}
	return status, nil
}
