package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/dojo-admin-api/internal/models"
)

// OutcomeStatus reports what a payroll run did for one category.
type OutcomeStatus string

const (
	OutcomeComputed             OutcomeStatus = "COMPUTED"
	OutcomeBlocked              OutcomeStatus = "BLOCKED"
	OutcomeSkippedNoCollections OutcomeStatus = "SKIPPED_NO_COLLECTIONS"
	OutcomeSkippedNoSessions    OutcomeStatus = "SKIPPED_NO_SESSIONS"
	OutcomeFailed               OutcomeStatus = "FAILED"
)

// RunRequest triggers a payroll computation for one month.
type RunRequest struct {
	Month       string `json:"month" validate:"required"`
	Recalculate bool   `json:"recalculate"`
	ActorID     string `json:"-"`
	IPAddress   string `json:"-"`
	UserAgent   string `json:"-"`
}

// InstructorShare is the computed payment for one (instructor, role) group.
type InstructorShare struct {
	InstructorID string                `json:"instructorId"`
	Role         models.AssignmentRole `json:"role"`
	Classes      int                   `json:"classes"`
	Rate         decimal.Decimal       `json:"rate"`
	Amount       decimal.Decimal       `json:"amount"`
}

// CategoryOutcome describes the result of one (category, month) computation.
type CategoryOutcome struct {
	CategoryID           string            `json:"categoryId"`
	CategoryCode         string            `json:"categoryCode"`
	Status               OutcomeStatus     `json:"status"`
	TotalCollected       decimal.Decimal   `json:"totalCollected"`
	FederationShare      decimal.Decimal   `json:"federationShare"`
	InstructorPool       decimal.Decimal   `json:"instructorPool"`
	LeadPool             decimal.Decimal   `json:"leadPool"`
	AssistantPool        decimal.Decimal   `json:"assistantPool"`
	Sessions             int               `json:"sessions"`
	LeadAssignments      int               `json:"leadAssignments"`
	AssistantAssignments int               `json:"assistantAssignments"`
	LeadRate             decimal.Decimal   `json:"leadRate"`
	AssistantRate        decimal.Decimal   `json:"assistantRate"`
	LeadResidual         decimal.Decimal   `json:"leadResidual"`
	AssistantResidual    decimal.Decimal   `json:"assistantResidual"`
	Shares               []InstructorShare `json:"shares,omitempty"`
	RemovedRecords       int               `json:"removedRecords,omitempty"`
	Message              string            `json:"message,omitempty"`
}

// RunReport aggregates every category outcome of a run.
type RunReport struct {
	Month       string            `json:"month"`
	Recalculate bool              `json:"recalculate"`
	StartedAt   time.Time         `json:"startedAt"`
	FinishedAt  time.Time         `json:"finishedAt"`
	Categories  []CategoryOutcome `json:"categories"`
}

// Blocked reports whether any category was refused by the reconciliation gate.
func (r RunReport) Blocked() bool {
	return r.count(OutcomeBlocked) > 0
}

// Failed reports whether any category hit a store failure.
func (r RunReport) Failed() bool {
	return r.count(OutcomeFailed) > 0
}

// Counts tallies categories by outcome.
func (r RunReport) Counts() map[OutcomeStatus]int {
	counts := make(map[OutcomeStatus]int)
	for _, outcome := range r.Categories {
		counts[outcome.Status]++
	}
	return counts
}

func (r RunReport) count(status OutcomeStatus) int {
	return r.Counts()[status]
}

// PayrollJobResponse is returned when a run is queued.
type PayrollJobResponse struct {
	JobID       string `json:"jobId"`
	Month       string `json:"month"`
	Recalculate bool   `json:"recalculate"`
	State       string `json:"state"`
}

// FederationLine is the federation record of a category in the monthly summary.
type FederationLine struct {
	PaymentID         string               `db:"id" json:"paymentId"`
	CategoryID        string               `db:"category_id" json:"categoryId"`
	TotalCollected    decimal.Decimal      `db:"total_payment_collected" json:"totalCollected"`
	ShareAmount       decimal.Decimal      `db:"share_amount" json:"shareAmount"`
	IsPaid            bool                 `db:"is_paid" json:"isPaid"`
	BankTransactionID *string              `db:"bank_transaction_id" json:"bankTransactionId,omitempty"`
	Status            models.PaymentStatus `db:"-" json:"status"`
}

// InstructorLine is one instructor payment in the monthly summary.
type InstructorLine struct {
	PaymentID      string                `db:"id" json:"paymentId"`
	CategoryID     string                `db:"category_id" json:"categoryId"`
	InstructorID   string                `db:"instructor_id" json:"instructorId"`
	InstructorName string                `db:"instructor_name" json:"instructorName"`
	Role           models.AssignmentRole `db:"role" json:"role"`
	TotalClasses   int                   `db:"total_classes" json:"totalClasses"`
	ShareAmount    decimal.Decimal       `db:"share_amount" json:"shareAmount"`
	PaidAmount     decimal.Decimal       `db:"paid_amount" json:"paidAmount"`
	IsPaid         bool                  `db:"is_paid" json:"isPaid"`
	Remaining      decimal.Decimal       `db:"-" json:"remaining"`
	Status         models.PaymentStatus  `db:"-" json:"status"`
}

// CategorySummary groups the payment records of one category.
type CategorySummary struct {
	CategoryID      string           `json:"categoryId"`
	CategoryCode    string           `json:"categoryCode"`
	CategoryName    string           `json:"categoryName"`
	Federation      *FederationLine  `json:"federation,omitempty"`
	Instructors     []InstructorLine `json:"instructors"`
	InstructorTotal decimal.Decimal  `json:"instructorTotal"`
	InstructorPaid  decimal.Decimal  `json:"instructorPaid"`
}

// PayrollSummary is the read model of a month's payment records.
type PayrollSummary struct {
	Month           string            `json:"month"`
	Categories      []CategorySummary `json:"categories"`
	FederationTotal decimal.Decimal   `json:"federationTotal"`
	InstructorTotal decimal.Decimal   `json:"instructorTotal"`
	OutstandingPay  decimal.Decimal   `json:"outstanding"`
	GeneratedAt     time.Time         `json:"generatedAt"`
}

// ExportFormat is a downloadable statement format.
type ExportFormat string

const (
	ExportCSV ExportFormat = "csv"
	ExportPDF ExportFormat = "pdf"
)

// ExportResult is a rendered statement.
type ExportResult struct {
	Filename    string
	ContentType string
	Body        []byte
}
