package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// LedgerSide separates non-tuition income from expenses.
type LedgerSide string

const (
	LedgerIncome  LedgerSide = "INCOME"
	LedgerExpense LedgerSide = "EXPENSE"
)

// Direction is the kind of bank line the side settles against.
func (s LedgerSide) Direction() BankDirection {
	if s == LedgerIncome {
		return BankCredit
	}
	return BankDebit
}

// Common ledger categories. Expenses may use any category.
const (
	LedgerCategorySeminar    = "SEMINAR"
	LedgerCategoryMembership = "MEMBERSHIP"
	LedgerCategoryOther      = "OTHER"
)

// LedgerAllocation assigns part of a bank line to income or an expense outside tuition and payroll,
// such as seminar fees, federation membership dues or rent.
type LedgerAllocation struct {
	ID                string          `db:"id" json:"id"`
	BankTransactionID string          `db:"bank_transaction_id" json:"bank_transaction_id"`
	Side              LedgerSide      `db:"side" json:"side"`
	Category          string          `db:"category" json:"category"`
	StudentID         *string         `db:"student_id" json:"student_id,omitempty"`
	EntryDate         time.Time       `db:"entry_date" json:"entry_date"`
	Amount            decimal.Decimal `db:"amount" json:"amount"`
	Notes             string          `db:"notes" json:"notes"`
	CreatedBy         *string         `db:"created_by" json:"created_by,omitempty"`
	CreatedAt         time.Time       `db:"created_at" json:"created_at"`
}
