package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/dojo-admin-api/internal/dto"
	"github.com/noah-isme/dojo-admin-api/internal/models"
	"github.com/noah-isme/dojo-admin-api/internal/repository"
	appErrors "github.com/noah-isme/dojo-admin-api/pkg/errors"
)

// AllocateLedger assigns part of a bank transaction to income or an expense outside tuition and payroll.
// Income settles against credit lines and expenses against debit lines.
func (s *ReconciliationService) AllocateLedger(ctx context.Context, bankTransactionID string, req dto.LedgerAllocationRequest) (result *dto.LedgerAllocationResult, err error) {
	defer func() { s.metrics.RecordReconciliation("ledger_allocate", err) }()

	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid ledger allocation payload")
	}
	if !req.Amount.IsPositive() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "amount must be greater than zero")
	}
	var entryDate time.Time
	if req.EntryDate != "" {
		if entryDate, err = time.Parse("2006-01-02", req.EntryDate); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "entryDate must be YYYY-MM-DD")
		}
	}

	var (
		allocation *models.LedgerAllocation
		bankStatus models.BankTransactionStatus
	)
	err = s.store.WithinTx(ctx, func(tx repository.ReconciliationTx) error {
		bank, err := tx.LockBankTransaction(ctx, bankTransactionID)
		if err != nil {
			return notFoundOr(err, "bank transaction not found")
		}
		if bank.Status == models.BankTransactionIgnored {
			return appErrors.Clone(appErrors.ErrBankTransactionIgnore, "")
		}
		if err := requireDirection(bank, req.Side.Direction()); err != nil {
			return err
		}
		if req.Amount.GreaterThan(bank.Unallocated()) {
			return appErrors.Clone(appErrors.ErrOverAllocation,
				fmt.Sprintf("amount %s exceeds unallocated bank amount %s", req.Amount.StringFixed(2), bank.Unallocated().StringFixed(2)))
		}

		category := strings.ToUpper(strings.TrimSpace(req.Category))
		if category == "" {
			category = models.LedgerCategoryOther
		}
		date := entryDate
		if date.IsZero() {
			date = bank.TransactionDate
		}
		allocation = &models.LedgerAllocation{
			BankTransactionID: bank.ID,
			Side:              req.Side,
			Category:          category,
			StudentID:         req.StudentID,
			EntryDate:         date,
			Amount:            req.Amount,
			Notes:             req.Notes,
			CreatedBy:         optionalString(req.ActorID),
		}
		if err := tx.InsertLedgerAllocation(ctx, allocation); err != nil {
			return err
		}
		if bankStatus, err = tx.RefreshBankTransaction(ctx, bank.ID); err != nil {
			return err
		}

		return tx.CreateAuditLog(ctx, reconciliationAudit(models.AuditActionLedgerCreate, "bank_transaction", bank.ID, req.ActorID,
			nil, map[string]interface{}{"allocationId": allocation.ID, "side": allocation.Side, "category": allocation.Category, "amount": allocation.Amount},
		))
	})
	if err != nil {
		return nil, translateStoreError(err, "failed to allocate bank transaction")
	}

	s.logger.Info("ledger allocation created",
		zap.String("bank_transaction_id", bankTransactionID),
		zap.String("side", string(req.Side)),
		zap.String("category", allocation.Category),
		zap.String("amount", req.Amount.String()),
	)
	return &dto.LedgerAllocationResult{Allocation: allocation, BankTransactionStatus: bankStatus}, nil
}

// DeleteLedgerAllocation removes a ledger allocation and releases its amount on the bank transaction.
func (s *ReconciliationService) DeleteLedgerAllocation(ctx context.Context, allocationID, actorID string) (result *dto.LedgerAllocationResult, err error) {
	defer func() { s.metrics.RecordReconciliation("ledger_delete", err) }()

	var bankStatus models.BankTransactionStatus
	err = s.store.WithinTx(ctx, func(tx repository.ReconciliationTx) error {
		allocation, err := tx.LockLedgerAllocation(ctx, allocationID)
		if err != nil {
			return notFoundOr(err, "ledger allocation not found")
		}
		if err := tx.DeleteLedgerAllocation(ctx, allocation.ID); err != nil {
			return err
		}
		if bankStatus, err = tx.RefreshBankTransaction(ctx, allocation.BankTransactionID); err != nil {
			return err
		}
		return tx.CreateAuditLog(ctx, reconciliationAudit(models.AuditActionLedgerDelete, "bank_transaction", allocation.BankTransactionID, actorID,
			map[string]interface{}{"allocationId": allocation.ID, "side": allocation.Side, "category": allocation.Category, "amount": allocation.Amount}, nil,
		))
	})
	if err != nil {
		return nil, translateStoreError(err, "failed to delete ledger allocation")
	}

	s.logger.Info("ledger allocation deleted", zap.String("allocation_id", allocationID))
	return &dto.LedgerAllocationResult{BankTransactionStatus: bankStatus}, nil
}

// LedgerAllocations lists the income and expense allocations of a bank transaction.
func (s *ReconciliationService) LedgerAllocations(ctx context.Context, bankTransactionID string) ([]models.LedgerAllocation, error) {
	allocations, err := s.store.ListLedgerAllocations(ctx, bankTransactionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list ledger allocations")
	}
	if allocations == nil {
		allocations = []models.LedgerAllocation{}
	}
	return allocations, nil
}

// requireDirection rejects a bank line whose direction cannot carry the money being matched.
func requireDirection(bank *models.BankTransactionBalance, want models.BankDirection) error {
	if got := bank.Direction(); got != want {
		return appErrors.Clone(appErrors.ErrBankDirection,
			fmt.Sprintf("bank transaction %s is a %s line, expected %s", bank.ID, strings.ToLower(string(got)), strings.ToLower(string(want))))
	}
	return nil
}
