package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CollectedPayment is a posted tuition payment for one student and one month.
type CollectedPayment struct {
	ID                string          `db:"id" json:"id"`
	StudentID         string          `db:"student_id" json:"student_id"`
	PaymentMonth      time.Time       `db:"payment_month" json:"payment_month"`
	Amount            decimal.Decimal `db:"amount" json:"amount"`
	BankTransactionID *string         `db:"bank_transaction_id" json:"bank_transaction_id,omitempty"`
	Notes             string          `db:"notes" json:"notes"`
	CreatedAt         time.Time       `db:"created_at" json:"created_at"`
}
