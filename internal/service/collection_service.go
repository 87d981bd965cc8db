package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/dojo-admin-api/internal/dto"
	"github.com/noah-isme/dojo-admin-api/internal/models"
	appErrors "github.com/noah-isme/dojo-admin-api/pkg/errors"
)

type collectedPaymentRepository interface {
	StudentExists(ctx context.Context, id string) (bool, error)
	Create(ctx context.Context, payment *models.CollectedPayment) error
	FindByID(ctx context.Context, id string) (*models.CollectedPayment, error)
	ListByMonth(ctx context.Context, period models.Period) ([]models.CollectedPayment, error)
	Delete(ctx context.Context, id string) error
}

type bankBalanceRepository interface {
	FindBalance(ctx context.Context, id string) (*models.BankTransactionBalance, error)
	RefreshStatus(ctx context.Context, id string) (models.BankTransactionStatus, error)
}

type auditWriter interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// CollectionService records tuition payments, the revenue input of the payroll run.
type CollectionService struct {
	repo      collectedPaymentRepository
	banks     bankBalanceRepository
	audit     auditWriter
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCollectionService constructs a CollectionService.
func NewCollectionService(repo collectedPaymentRepository, banks bankBalanceRepository, audit auditWriter, validate *validator.Validate, logger *zap.Logger) *CollectionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &CollectionService{repo: repo, banks: banks, audit: audit, validator: validate, logger: logger}
}

// Create posts a tuition payment. When linked to a bank transaction, the transaction must be a credit
// and the amount must fit its open balance.
func (s *CollectionService) Create(ctx context.Context, req dto.CreateCollectedPaymentRequest) (*models.CollectedPayment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid collected payment payload")
	}
	if !req.Amount.IsPositive() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "amount must be greater than zero")
	}
	period, err := models.ParsePeriod(req.Month)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInvalidPeriod.Code, appErrors.ErrInvalidPeriod.Status, appErrors.ErrInvalidPeriod.Message)
	}

	exists, err := s.repo.StudentExists(ctx, req.StudentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check student")
	}
	if !exists {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
	}

	if req.BankTransactionID != nil && *req.BankTransactionID != "" {
		balance, err := s.banks.FindBalance(ctx, *req.BankTransactionID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "bank transaction not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load bank transaction")
		}
		if balance.Status == models.BankTransactionIgnored {
			return nil, appErrors.Clone(appErrors.ErrBankTransactionIgnore, "")
		}
		if err := requireDirection(balance, models.BankCredit); err != nil {
			return nil, err
		}
		if req.Amount.GreaterThan(balance.Unallocated()) {
			return nil, appErrors.Clone(appErrors.ErrOverAllocation,
				fmt.Sprintf("amount %s exceeds unallocated bank amount %s", req.Amount.StringFixed(2), balance.Unallocated().StringFixed(2)))
		}
	} else {
		req.BankTransactionID = nil
	}

	payment := &models.CollectedPayment{
		StudentID:         req.StudentID,
		PaymentMonth:      period.Start(),
		Amount:            req.Amount,
		BankTransactionID: req.BankTransactionID,
		Notes:             req.Notes,
	}
	if err := s.repo.Create(ctx, payment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create collected payment")
	}
	s.refreshBank(ctx, payment.BankTransactionID)
	return payment, nil
}

// ListByMonth returns the tuition payments posted for a month.
func (s *CollectionService) ListByMonth(ctx context.Context, month string) ([]models.CollectedPayment, error) {
	period, err := models.ParsePeriod(month)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInvalidPeriod.Code, appErrors.ErrInvalidPeriod.Status, appErrors.ErrInvalidPeriod.Message)
	}
	payments, err := s.repo.ListByMonth(ctx, period)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list collected payments")
	}
	if payments == nil {
		payments = []models.CollectedPayment{}
	}
	return payments, nil
}

// Delete removes a tuition payment. Existing payroll records are untouched until the next run.
func (s *CollectionService) Delete(ctx context.Context, id, actorID string) error {
	payment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "collected payment not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load collected payment")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "collected payment not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete collected payment")
	}
	s.refreshBank(ctx, payment.BankTransactionID)

	if s.audit != nil {
		oldValues, _ := json.Marshal(payment)
		if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
			UserID:     optionalString(actorID),
			Action:     models.AuditActionCollectionDelete,
			Resource:   "collected_payment",
			ResourceID: &payment.ID,
			OldValues:  oldValues,
		}); err != nil {
			s.logger.Warn("failed to record collected payment audit log", zap.Error(err))
		}
	}
	return nil
}

func (s *CollectionService) refreshBank(ctx context.Context, id *string) {
	if id == nil || s.banks == nil {
		return
	}
	if _, err := s.banks.RefreshStatus(ctx, *id); err != nil {
		s.logger.Warn("failed to refresh bank transaction status", zap.String("bank_transaction_id", *id), zap.Error(err))
	}
}
