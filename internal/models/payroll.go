package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus is the reconciliation state of a monthly payment record.
type PaymentStatus string

const (
	PaymentUnallocated   PaymentStatus = "UNALLOCATED"
	PaymentPartiallyPaid PaymentStatus = "PARTIALLY_PAID"
	PaymentPaid          PaymentStatus = "PAID"
)

// MonthlyInstructorPayment is keyed by (instructor, category, month, role).
type MonthlyInstructorPayment struct {
	ID                    string          `db:"id" json:"id"`
	InstructorID          string          `db:"instructor_id" json:"instructor_id"`
	CategoryID            string          `db:"category_id" json:"category_id"`
	Month                 time.Time       `db:"month" json:"month"`
	Role                  AssignmentRole  `db:"role" json:"role"`
	TotalClasses          int             `db:"total_classes" json:"total_classes"`
	TotalPaymentCollected decimal.Decimal `db:"total_payment_collected" json:"total_payment_collected"`
	ShareAmount           decimal.Decimal `db:"share_amount" json:"share_amount"`
	PaidAmount            decimal.Decimal `db:"paid_amount" json:"paid_amount"`
	IsPaid                bool            `db:"is_paid" json:"is_paid"`
	PaidDate              *time.Time      `db:"paid_date" json:"paid_date,omitempty"`
	BankTransactionID     *string         `db:"bank_transaction_id" json:"bank_transaction_id,omitempty"`
	Notes                 string          `db:"notes" json:"notes"`
	CreatedAt             time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time       `db:"updated_at" json:"updated_at"`
}

// Remaining is the share not yet covered by allocations, never negative.
func (p MonthlyInstructorPayment) Remaining() decimal.Decimal {
	rest := p.ShareAmount.Sub(p.PaidAmount)
	if rest.IsNegative() {
		return decimal.Zero
	}
	return rest
}

// IsFullyPaid reports whether allocations cover the whole share.
func (p MonthlyInstructorPayment) IsFullyPaid() bool {
	return p.PaidAmount.GreaterThanOrEqual(p.ShareAmount)
}

// Status derives the reconciliation state from the paid amount.
func (p MonthlyInstructorPayment) Status() PaymentStatus {
	switch {
	case p.IsPaid || (p.PaidAmount.IsPositive() && p.IsFullyPaid()):
		return PaymentPaid
	case p.PaidAmount.IsPositive():
		return PaymentPartiallyPaid
	default:
		return PaymentUnallocated
	}
}

// Locked reports whether reconciliation has touched the record.
func (p MonthlyInstructorPayment) Locked() bool {
	return p.IsPaid || p.BankTransactionID != nil || p.PaidAmount.IsPositive()
}

// MonthlyFederationPayment is keyed by (category, month).
type MonthlyFederationPayment struct {
	ID                    string          `db:"id" json:"id"`
	CategoryID            string          `db:"category_id" json:"category_id"`
	Month                 time.Time       `db:"month" json:"month"`
	TotalPaymentCollected decimal.Decimal `db:"total_payment_collected" json:"total_payment_collected"`
	ShareAmount           decimal.Decimal `db:"share_amount" json:"share_amount"`
	IsPaid                bool            `db:"is_paid" json:"is_paid"`
	PaidDate              *time.Time      `db:"paid_date" json:"paid_date,omitempty"`
	BankTransactionID     *string         `db:"bank_transaction_id" json:"bank_transaction_id,omitempty"`
	Notes                 string          `db:"notes" json:"notes"`
	CreatedAt             time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time       `db:"updated_at" json:"updated_at"`
}

// Status is PAID once linked or flagged; federation payments have no partial state.
func (p MonthlyFederationPayment) Status() PaymentStatus {
	if p.IsPaid || p.BankTransactionID != nil {
		return PaymentPaid
	}
	return PaymentUnallocated
}

// Locked reports whether reconciliation has touched the record.
func (p MonthlyFederationPayment) Locked() bool {
	return p.IsPaid || p.BankTransactionID != nil
}

// InstructorPaymentAllocation settles part of an instructor payment from a bank transaction.
type InstructorPaymentAllocation struct {
	ID                string          `db:"id" json:"id"`
	PaymentID         string          `db:"payment_id" json:"payment_id"`
	BankTransactionID string          `db:"bank_transaction_id" json:"bank_transaction_id"`
	Amount            decimal.Decimal `db:"amount" json:"amount"`
	Notes             string          `db:"notes" json:"notes"`
	CreatedBy         *string         `db:"created_by" json:"created_by,omitempty"`
	CreatedAt         time.Time       `db:"created_at" json:"created_at"`
}
