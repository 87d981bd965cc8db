package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// BankTransactionStatus tracks how much of a statement line is matched to payments.
type BankTransactionStatus string

const (
	BankTransactionPending          BankTransactionStatus = "PENDING"
	BankTransactionMatched          BankTransactionStatus = "MATCHED"
	BankTransactionPartiallyMatched BankTransactionStatus = "PARTIALLY_MATCHED"
	BankTransactionIgnored          BankTransactionStatus = "IGNORED"
)

// BankDirection tells whether money entered or left the account.
type BankDirection string

const (
	BankCredit BankDirection = "CREDIT"
	BankDebit  BankDirection = "DEBIT"
)

// BankTransaction is one line of an imported bank statement.
type BankTransaction struct {
	ID              string                `db:"id" json:"id"`
	TransactionDate time.Time             `db:"transaction_date" json:"transaction_date"`
	Description     string                `db:"description" json:"description"`
	CreditAmount    decimal.NullDecimal   `db:"credit_amount" json:"credit_amount"`
	DebitAmount     decimal.NullDecimal   `db:"debit_amount" json:"debit_amount"`
	Amount          decimal.Decimal       `db:"amount" json:"amount"`
	PayerName       string                `db:"payer_name" json:"payer_name"`
	ReferenceNumber string                `db:"reference_number" json:"reference_number"`
	Status          BankTransactionStatus `db:"status" json:"status"`
	ImportedAt      time.Time             `db:"imported_at" json:"imported_at"`
}

// Direction is CREDIT when the line carries a positive credit amount and DEBIT otherwise.
func (t BankTransaction) Direction() BankDirection {
	if t.CreditAmount.Valid && t.CreditAmount.Decimal.IsPositive() {
		return BankCredit
	}
	return BankDebit
}

// BankTransactionBalance is a transaction together with what is already matched against it.
type BankTransactionBalance struct {
	BankTransaction
	Allocated decimal.Decimal `db:"allocated" json:"allocated"`
}

// Unallocated is the part of the transaction not yet matched to any payment.
func (b BankTransactionBalance) Unallocated() decimal.Decimal {
	rest := b.Amount.Sub(b.Allocated)
	if rest.IsNegative() {
		return decimal.Zero
	}
	return rest
}

// ResolveStatus derives the matching status from the allocated total. Ignored lines stay ignored.
func ResolveStatus(current BankTransactionStatus, amount, allocated decimal.Decimal) BankTransactionStatus {
	if current == BankTransactionIgnored {
		return current
	}
	switch {
	case allocated.LessThanOrEqual(decimal.Zero):
		return BankTransactionPending
	case allocated.GreaterThanOrEqual(amount):
		return BankTransactionMatched
	default:
		return BankTransactionPartiallyMatched
	}
}
