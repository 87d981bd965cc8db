package dto

import (
	"github.com/shopspring/decimal"

	"github.com/noah-isme/dojo-admin-api/internal/models"
)

// AllocationRequest settles part of an instructor payment from a bank transaction.
type AllocationRequest struct {
	BankTransactionID string          `json:"bankTransactionId" validate:"required"`
	Amount            decimal.Decimal `json:"amount"`
	Notes             string          `json:"notes" validate:"max=500"`
	ActorID           string          `json:"-"`
}

// LinkFederationRequest links a federation payment to a bank transaction.
type LinkFederationRequest struct {
	BankTransactionID string `json:"bankTransactionId" validate:"required"`
	Notes             string `json:"notes" validate:"max=500"`
	ActorID           string `json:"-"`
}

// InstructorPaymentStatus answers "is this instructor paid, and how much remains".
type InstructorPaymentStatus struct {
	PaymentID         string                               `json:"paymentId"`
	InstructorID      string                               `json:"instructorId"`
	CategoryID        string                               `json:"categoryId"`
	Month             string                               `json:"month"`
	Role              models.AssignmentRole                `json:"role"`
	ShareAmount       decimal.Decimal                      `json:"shareAmount"`
	PaidAmount        decimal.Decimal                      `json:"paidAmount"`
	Remaining         decimal.Decimal                      `json:"remaining"`
	Status            models.PaymentStatus                 `json:"status"`
	IsPaid            bool                                 `json:"isPaid"`
	BankTransactionID *string                              `json:"bankTransactionId,omitempty"`
	Allocations       []models.InstructorPaymentAllocation `json:"allocations"`
}

// AllocationResult is returned after an allocation is created or removed.
type AllocationResult struct {
	Allocation            *models.InstructorPaymentAllocation `json:"allocation,omitempty"`
	Payment               InstructorPaymentStatus             `json:"payment"`
	BankTransactionStatus models.BankTransactionStatus        `json:"bankTransactionStatus"`
}

// FederationLinkResult is returned after linking or unlinking a federation payment.
type FederationLinkResult struct {
	Payment               models.MonthlyFederationPayment `json:"payment"`
	Status                models.PaymentStatus            `json:"status"`
	BankTransactionStatus models.BankTransactionStatus    `json:"bankTransactionStatus"`
}

// LedgerAllocationRequest assigns part of a bank transaction to non-tuition income or an expense.
// Category defaults to OTHER and EntryDate to the transaction date.
type LedgerAllocationRequest struct {
	Side      models.LedgerSide `json:"side" validate:"required,oneof=INCOME EXPENSE"`
	Category  string            `json:"category" validate:"max=64"`
	Amount    decimal.Decimal   `json:"amount"`
	EntryDate string            `json:"entryDate" validate:"omitempty,datetime=2006-01-02"`
	StudentID *string           `json:"studentId,omitempty"`
	Notes     string            `json:"notes" validate:"max=500"`
	ActorID   string            `json:"-"`
}

// LedgerAllocationResult is returned after a ledger allocation is created or removed.
type LedgerAllocationResult struct {
	Allocation            *models.LedgerAllocation     `json:"allocation,omitempty"`
	BankTransactionStatus models.BankTransactionStatus `json:"bankTransactionStatus"`
}
