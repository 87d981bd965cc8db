package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/noah-isme/dojo-admin-api/internal/dto"
	"github.com/noah-isme/dojo-admin-api/internal/models"
	"github.com/noah-isme/dojo-admin-api/internal/repository"
	appErrors "github.com/noah-isme/dojo-admin-api/pkg/errors"
)

type reconciliationStore interface {
	WithinTx(ctx context.Context, fn func(repository.ReconciliationTx) error) error
	FindInstructorPayment(ctx context.Context, id string) (*models.MonthlyInstructorPayment, error)
	ListAllocations(ctx context.Context, paymentID string) ([]models.InstructorPaymentAllocation, error)
	ListLedgerAllocations(ctx context.Context, bankTransactionID string) ([]models.LedgerAllocation, error)
}

// ReconciliationService settles payment records against bank transactions.
type ReconciliationService struct {
	store     reconciliationStore
	cache     summaryInvalidator
	validator *validator.Validate
	metrics   *MetricsService
	logger    *zap.Logger
	now       func() time.Time
}

// NewReconciliationService constructs a ReconciliationService.
func NewReconciliationService(store reconciliationStore, cache summaryInvalidator, validate *validator.Validate, metrics *MetricsService, logger *zap.Logger) *ReconciliationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &ReconciliationService{
		store:     store,
		cache:     cache,
		validator: validate,
		metrics:   metrics,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// InstructorPaymentStatus reports how much of an instructor payment is settled.
func (s *ReconciliationService) InstructorPaymentStatus(ctx context.Context, paymentID string) (*dto.InstructorPaymentStatus, error) {
	payment, err := s.store.FindInstructorPayment(ctx, paymentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "instructor payment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load instructor payment")
	}
	allocations, err := s.store.ListAllocations(ctx, paymentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load allocations")
	}
	status := buildPaymentStatus(*payment, allocations)
	return &status, nil
}

// AllocateInstructorPayment settles part of an instructor payment from a debit bank transaction.
// The amount may exceed neither the payment's remaining balance nor the transaction's
// unallocated amount.
func (s *ReconciliationService) AllocateInstructorPayment(ctx context.Context, paymentID string, req dto.AllocationRequest) (result *dto.AllocationResult, err error) {
	defer func() { s.metrics.RecordReconciliation("allocate", err) }()

	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid allocation payload")
	}
	if !req.Amount.IsPositive() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "amount must be greater than zero")
	}

	var (
		payment    *models.MonthlyInstructorPayment
		allocation *models.InstructorPaymentAllocation
		bankStatus models.BankTransactionStatus
	)
	err = s.store.WithinTx(ctx, func(tx repository.ReconciliationTx) error {
		var err error
		payment, err = tx.LockInstructorPayment(ctx, paymentID)
		if err != nil {
			return notFoundOr(err, "instructor payment not found")
		}
		bank, err := tx.LockBankTransaction(ctx, req.BankTransactionID)
		if err != nil {
			return notFoundOr(err, "bank transaction not found")
		}
		if bank.Status == models.BankTransactionIgnored {
			return appErrors.Clone(appErrors.ErrBankTransactionIgnore, "")
		}
		if err := requireDirection(bank, models.BankDebit); err != nil {
			return err
		}
		if req.Amount.GreaterThan(payment.Remaining()) {
			return appErrors.Clone(appErrors.ErrOverAllocation,
				fmt.Sprintf("amount %s exceeds remaining balance %s", req.Amount.StringFixed(2), payment.Remaining().StringFixed(2)))
		}
		if req.Amount.GreaterThan(bank.Unallocated()) {
			return appErrors.Clone(appErrors.ErrOverAllocation,
				fmt.Sprintf("amount %s exceeds unallocated bank amount %s", req.Amount.StringFixed(2), bank.Unallocated().StringFixed(2)))
		}

		allocation = &models.InstructorPaymentAllocation{
			PaymentID:         payment.ID,
			BankTransactionID: bank.ID,
			Amount:            req.Amount,
			Notes:             req.Notes,
			CreatedBy:         optionalString(req.ActorID),
		}
		if err := tx.InsertAllocation(ctx, allocation); err != nil {
			return err
		}

		oldPaid := payment.PaidAmount
		payment.PaidAmount = payment.PaidAmount.Add(req.Amount)
		payment.IsPaid = payment.IsFullyPaid()
		if payment.IsPaid && payment.PaidDate == nil {
			paidAt := s.now()
			payment.PaidDate = &paidAt
		}
		bankID := bank.ID
		payment.BankTransactionID = &bankID
		if err := tx.UpdateInstructorPayment(ctx, payment); err != nil {
			return err
		}

		if bankStatus, err = tx.RefreshBankTransaction(ctx, bank.ID); err != nil {
			return err
		}

		return tx.CreateAuditLog(ctx, reconciliationAudit(models.AuditActionAllocationCreate, "instructor_payment", payment.ID, req.ActorID,
			map[string]interface{}{"paidAmount": oldPaid},
			map[string]interface{}{"paidAmount": payment.PaidAmount, "allocationId": allocation.ID, "bankTransactionId": bank.ID, "amount": req.Amount},
		))
	})
	if err != nil {
		return nil, translateStoreError(err, "failed to allocate instructor payment")
	}

	s.invalidateSummary(ctx, payment.Month)
	s.logger.Info("instructor payment allocated",
		zap.String("payment_id", payment.ID),
		zap.String("bank_transaction_id", req.BankTransactionID),
		zap.String("amount", req.Amount.String()),
		zap.String("status", string(payment.Status())),
	)

	return &dto.AllocationResult{
		Allocation:            allocation,
		Payment:               s.statusAfterCommit(ctx, *payment),
		BankTransactionStatus: bankStatus,
	}, nil
}

// DeleteInstructorAllocation removes an allocation and moves the payment back towards UNALLOCATED.
func (s *ReconciliationService) DeleteInstructorAllocation(ctx context.Context, allocationID, actorID string) (result *dto.AllocationResult, err error) {
	defer func() { s.metrics.RecordReconciliation("delete_allocation", err) }()

	var (
		payment    *models.MonthlyInstructorPayment
		bankStatus models.BankTransactionStatus
	)
	err = s.store.WithinTx(ctx, func(tx repository.ReconciliationTx) error {
		allocation, err := tx.LockAllocation(ctx, allocationID)
		if err != nil {
			return notFoundOr(err, "allocation not found")
		}
		payment, err = tx.LockInstructorPayment(ctx, allocation.PaymentID)
		if err != nil {
			return notFoundOr(err, "instructor payment not found")
		}
		if err := tx.DeleteAllocation(ctx, allocation.ID); err != nil {
			return err
		}

		oldPaid := payment.PaidAmount
		payment.PaidAmount = payment.PaidAmount.Sub(allocation.Amount)
		if payment.PaidAmount.IsNegative() {
			payment.PaidAmount = decimal.Zero
		}
		payment.IsPaid = payment.PaidAmount.IsPositive() && payment.IsFullyPaid()
		if !payment.IsPaid {
			payment.PaidDate = nil
		}

		latest, err := tx.LatestAllocation(ctx, payment.ID)
		if err != nil {
			return err
		}
		payment.BankTransactionID = nil
		if latest != nil {
			bankID := latest.BankTransactionID
			payment.BankTransactionID = &bankID
		}
		if err := tx.UpdateInstructorPayment(ctx, payment); err != nil {
			return err
		}

		if bankStatus, err = tx.RefreshBankTransaction(ctx, allocation.BankTransactionID); err != nil {
			return err
		}

		return tx.CreateAuditLog(ctx, reconciliationAudit(models.AuditActionAllocationDelete, "instructor_payment", payment.ID, actorID,
			map[string]interface{}{"paidAmount": oldPaid, "allocationId": allocation.ID, "amount": allocation.Amount},
			map[string]interface{}{"paidAmount": payment.PaidAmount},
		))
	})
	if err != nil {
		return nil, translateStoreError(err, "failed to delete allocation")
	}

	s.invalidateSummary(ctx, payment.Month)
	s.logger.Info("instructor allocation deleted",
		zap.String("allocation_id", allocationID),
		zap.String("payment_id", payment.ID),
		zap.String("status", string(payment.Status())),
	)

	return &dto.AllocationResult{
		Payment:               s.statusAfterCommit(ctx, *payment),
		BankTransactionStatus: bankStatus,
	}, nil
}

// LinkFederationPayment settles a federation payment in one shot against a debit bank transaction.
func (s *ReconciliationService) LinkFederationPayment(ctx context.Context, paymentID string, req dto.LinkFederationRequest) (result *dto.FederationLinkResult, err error) {
	defer func() { s.metrics.RecordReconciliation("link_federation", err) }()

	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid link payload")
	}

	var (
		payment    *models.MonthlyFederationPayment
		bankStatus models.BankTransactionStatus
	)
	err = s.store.WithinTx(ctx, func(tx repository.ReconciliationTx) error {
		var err error
		payment, err = tx.LockFederationPayment(ctx, paymentID)
		if err != nil {
			return notFoundOr(err, "federation payment not found")
		}
		if payment.Locked() {
			return appErrors.Clone(appErrors.ErrConflict, "federation payment is already paid")
		}
		bank, err := tx.LockBankTransaction(ctx, req.BankTransactionID)
		if err != nil {
			return notFoundOr(err, "bank transaction not found")
		}
		if bank.Status == models.BankTransactionIgnored {
			return appErrors.Clone(appErrors.ErrBankTransactionIgnore, "")
		}
		if err := requireDirection(bank, models.BankDebit); err != nil {
			return err
		}
		if payment.ShareAmount.GreaterThan(bank.Unallocated()) {
			return appErrors.Clone(appErrors.ErrOverAllocation,
				fmt.Sprintf("federation share %s exceeds unallocated bank amount %s", payment.ShareAmount.StringFixed(2), bank.Unallocated().StringFixed(2)))
		}

		paidAt := s.now()
		bankID := bank.ID
		payment.IsPaid = true
		payment.PaidDate = &paidAt
		payment.BankTransactionID = &bankID
		if req.Notes != "" {
			payment.Notes = req.Notes
		}
		if err := tx.UpdateFederationPayment(ctx, payment); err != nil {
			return err
		}

		if bankStatus, err = tx.RefreshBankTransaction(ctx, bank.ID); err != nil {
			return err
		}

		return tx.CreateAuditLog(ctx, reconciliationAudit(models.AuditActionFederationLink, "federation_payment", payment.ID, req.ActorID,
			nil, map[string]interface{}{"bankTransactionId": bank.ID, "shareAmount": payment.ShareAmount},
		))
	})
	if err != nil {
		return nil, translateStoreError(err, "failed to link federation payment")
	}

	s.invalidateSummary(ctx, payment.Month)
	s.logger.Info("federation payment linked", zap.String("payment_id", payment.ID), zap.String("bank_transaction_id", req.BankTransactionID))

	return &dto.FederationLinkResult{Payment: *payment, Status: payment.Status(), BankTransactionStatus: bankStatus}, nil
}

// UnlinkFederationPayment reverts a federation payment to UNALLOCATED.
func (s *ReconciliationService) UnlinkFederationPayment(ctx context.Context, paymentID, actorID string) (result *dto.FederationLinkResult, err error) {
	defer func() { s.metrics.RecordReconciliation("unlink_federation", err) }()

	var (
		payment    *models.MonthlyFederationPayment
		bankStatus models.BankTransactionStatus
	)
	err = s.store.WithinTx(ctx, func(tx repository.ReconciliationTx) error {
		var err error
		payment, err = tx.LockFederationPayment(ctx, paymentID)
		if err != nil {
			return notFoundOr(err, "federation payment not found")
		}
		if !payment.Locked() {
			return appErrors.Clone(appErrors.ErrConflict, "federation payment is not linked")
		}

		previous := payment.BankTransactionID
		payment.IsPaid = false
		payment.PaidDate = nil
		payment.BankTransactionID = nil
		if err := tx.UpdateFederationPayment(ctx, payment); err != nil {
			return err
		}

		if previous != nil {
			if bankStatus, err = tx.RefreshBankTransaction(ctx, *previous); err != nil {
				return err
			}
		}

		return tx.CreateAuditLog(ctx, reconciliationAudit(models.AuditActionFederationUnlink, "federation_payment", payment.ID, actorID,
			map[string]interface{}{"bankTransactionId": previous}, nil,
		))
	})
	if err != nil {
		return nil, translateStoreError(err, "failed to unlink federation payment")
	}

	s.invalidateSummary(ctx, payment.Month)
	s.logger.Info("federation payment unlinked", zap.String("payment_id", payment.ID))

	return &dto.FederationLinkResult{Payment: *payment, Status: payment.Status(), BankTransactionStatus: bankStatus}, nil
}

func (s *ReconciliationService) statusAfterCommit(ctx context.Context, payment models.MonthlyInstructorPayment) dto.InstructorPaymentStatus {
	allocations, err := s.store.ListAllocations(ctx, payment.ID)
	if err != nil {
		s.logger.Warn("failed to load allocations", zap.String("payment_id", payment.ID), zap.Error(err))
	}
	return buildPaymentStatus(payment, allocations)
}

func (s *ReconciliationService) invalidateSummary(ctx context.Context, month time.Time) {
	if s.cache == nil {
		return
	}
	period := models.Period{Year: month.Year(), Month: month.Month()}
	if err := s.cache.Invalidate(ctx, payrollSummaryCacheKey(period)); err != nil {
		s.logger.Warn("failed to invalidate payroll summary cache", zap.String("month", period.String()), zap.Error(err))
	}
}

func buildPaymentStatus(payment models.MonthlyInstructorPayment, allocations []models.InstructorPaymentAllocation) dto.InstructorPaymentStatus {
	if allocations == nil {
		allocations = []models.InstructorPaymentAllocation{}
	}
	return dto.InstructorPaymentStatus{
		PaymentID:         payment.ID,
		InstructorID:      payment.InstructorID,
		CategoryID:        payment.CategoryID,
		Month:             models.Period{Year: payment.Month.Year(), Month: payment.Month.Month()}.String(),
		Role:              payment.Role,
		ShareAmount:       payment.ShareAmount,
		PaidAmount:        payment.PaidAmount,
		Remaining:         payment.Remaining(),
		Status:            payment.Status(),
		IsPaid:            payment.IsPaid,
		BankTransactionID: payment.BankTransactionID,
		Allocations:       allocations,
	}
}

func reconciliationAudit(action, resource, resourceID, actorID string, oldValues, newValues map[string]interface{}) *models.AuditLog {
	log := &models.AuditLog{
		UserID:     optionalString(actorID),
		Action:     action,
		Resource:   resource,
		ResourceID: &resourceID,
	}
	if oldValues != nil {
		log.OldValues, _ = json.Marshal(oldValues)
	}
	if newValues != nil {
		log.NewValues, _ = json.Marshal(newValues)
	}
	return log
}

func optionalString(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

// notFoundOr maps sql.ErrNoRows to a typed not-found error and passes anything else through.
func notFoundOr(err error, message string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, message)
	}
	return err
}

// translateStoreError keeps typed errors raised inside a transaction and wraps the rest as internal.
func translateStoreError(err error, message string) error {
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}
