package dto

import (
	"github.com/shopspring/decimal"

	"github.com/noah-isme/dojo-admin-api/internal/models"
)

// CreateBankTransactionRequest registers one bank statement line.
type CreateBankTransactionRequest struct {
	TransactionDate string           `json:"transactionDate" validate:"required,datetime=2006-01-02"`
	Description     string           `json:"description" validate:"max=500"`
	CreditAmount    *decimal.Decimal `json:"creditAmount,omitempty"`
	DebitAmount     *decimal.Decimal `json:"debitAmount,omitempty"`
	PayerName       string           `json:"payerName" validate:"max=200"`
	ReferenceNumber string           `json:"referenceNumber" validate:"max=100"`
	ActorID         string           `json:"-"`
}

// BankTransactionView is a transaction with its matched and open balance.
type BankTransactionView struct {
	models.BankTransaction
	Direction   models.BankDirection `json:"direction"`
	Allocated   decimal.Decimal      `json:"allocated"`
	Unallocated decimal.Decimal      `json:"unallocated"`
}

// CreateCollectedPaymentRequest posts a tuition payment for a student and month.
type CreateCollectedPaymentRequest struct {
	StudentID         string          `json:"studentId" validate:"required"`
	Month             string          `json:"month" validate:"required"`
	Amount            decimal.Decimal `json:"amount"`
	BankTransactionID *string         `json:"bankTransactionId,omitempty"`
	Notes             string          `json:"notes" validate:"max=500"`
}

// AssignSessionRequest records who taught a category's class on a date.
// LeadInstructorID and LeadInstructorIDs are merged; when both are empty the category's
// default lead is used if it has one.
type AssignSessionRequest struct {
	CategoryID             string   `json:"categoryId" validate:"required"`
	SessionDate            string   `json:"sessionDate" validate:"required,datetime=2006-01-02"`
	StartTime              string   `json:"startTime" validate:"omitempty,datetime=15:04"`
	EndTime                string   `json:"endTime" validate:"omitempty,datetime=15:04"`
	LeadInstructorID       string   `json:"leadInstructorId"`
	LeadInstructorIDs      []string `json:"leadInstructorIds" validate:"omitempty,dive,required"`
	AssistantInstructorIDs []string `json:"assistantInstructorIds" validate:"omitempty,dive,required"`
}

// SessionAssignments is a session with its teaching assignments.
type SessionAssignments struct {
	Session     models.ClassSession         `json:"session"`
	Assignments []models.TeachingAssignment `json:"assignments"`
}
