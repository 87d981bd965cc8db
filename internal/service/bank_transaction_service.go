package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/noah-isme/dojo-admin-api/internal/dto"
	"github.com/noah-isme/dojo-admin-api/internal/models"
	appErrors "github.com/noah-isme/dojo-admin-api/pkg/errors"
)

type bankTransactionRepository interface {
	Create(ctx context.Context, txn *models.BankTransaction) error
	FindBalance(ctx context.Context, id string) (*models.BankTransactionBalance, error)
	List(ctx context.Context, from, to time.Time, status models.BankTransactionStatus) ([]models.BankTransaction, error)
	SetStatus(ctx context.Context, id string, status models.BankTransactionStatus) error
	RefreshStatus(ctx context.Context, id string) (models.BankTransactionStatus, error)
}

// BankTransactionService registers statement lines and exposes their matching balance.
type BankTransactionService struct {
	repo      bankTransactionRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewBankTransactionService constructs a BankTransactionService.
func NewBankTransactionService(repo bankTransactionRepository, validate *validator.Validate, logger *zap.Logger) *BankTransactionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &BankTransactionService{repo: repo, validator: validate, logger: logger}
}

// Create registers a statement line. Exactly one of credit or debit must be a positive amount.
func (s *BankTransactionService) Create(ctx context.Context, req dto.CreateBankTransactionRequest) (*dto.BankTransactionView, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bank transaction payload")
	}
	date, err := time.Parse("2006-01-02", req.TransactionDate)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "transactionDate must be YYYY-MM-DD")
	}

	credit := positive(req.CreditAmount)
	debit := positive(req.DebitAmount)
	if credit.Valid == debit.Valid {
		return nil, appErrors.Clone(appErrors.ErrValidation, "exactly one of creditAmount or debitAmount must be positive")
	}
	amount := credit.Decimal
	if debit.Valid {
		amount = debit.Decimal
	}

	txn := &models.BankTransaction{
		TransactionDate: date,
		Description:     req.Description,
		CreditAmount:    credit,
		DebitAmount:     debit,
		Amount:          amount,
		PayerName:       req.PayerName,
		ReferenceNumber: req.ReferenceNumber,
		Status:          models.BankTransactionPending,
	}
	if err := s.repo.Create(ctx, txn); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create bank transaction")
	}
	return viewOf(models.BankTransactionBalance{BankTransaction: *txn, Allocated: decimal.Zero}), nil
}

// Get returns a transaction with its matched and open amounts.
func (s *BankTransactionService) Get(ctx context.Context, id string) (*dto.BankTransactionView, error) {
	balance, err := s.repo.FindBalance(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "bank transaction not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load bank transaction")
	}
	return viewOf(*balance), nil
}

// List returns the transactions dated within month, optionally filtered by status.
func (s *BankTransactionService) List(ctx context.Context, month string, status models.BankTransactionStatus) ([]models.BankTransaction, error) {
	period, err := models.ParsePeriod(month)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInvalidPeriod.Code, appErrors.ErrInvalidPeriod.Status, appErrors.ErrInvalidPeriod.Message)
	}
	txns, err := s.repo.List(ctx, period.Start(), period.End(), status)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list bank transactions")
	}
	if txns == nil {
		txns = []models.BankTransaction{}
	}
	return txns, nil
}

// SetIgnored marks a line as irrelevant to reconciliation, or restores it.
// A line that already carries matches cannot be ignored.
func (s *BankTransactionService) SetIgnored(ctx context.Context, id string, ignored bool) (*dto.BankTransactionView, error) {
	view, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if ignored {
		if view.Allocated.IsPositive() {
			return nil, appErrors.Clone(appErrors.ErrConflict, "bank transaction already has matched payments")
		}
		if err := s.repo.SetStatus(ctx, id, models.BankTransactionIgnored); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to ignore bank transaction")
		}
	} else if view.Status == models.BankTransactionIgnored {
		if err := s.repo.SetStatus(ctx, id, models.BankTransactionPending); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to restore bank transaction")
		}
		if _, err := s.repo.RefreshStatus(ctx, id); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to refresh bank transaction")
		}
	}
	s.logger.Info("bank transaction status changed", zap.String("bank_transaction_id", id), zap.Bool("ignored", ignored))
	return s.Get(ctx, id)
}

func positive(value *decimal.Decimal) decimal.NullDecimal {
	if value == nil || !value.IsPositive() {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *value, Valid: true}
}

func viewOf(balance models.BankTransactionBalance) *dto.BankTransactionView {
	return &dto.BankTransactionView{
		BankTransaction: balance.BankTransaction,
		Direction:       balance.Direction(),
		Allocated:       balance.Allocated,
		Unallocated:     balance.Unallocated(),
	}
}
