package service

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/dojo-admin-api/internal/dto"
	"github.com/noah-isme/dojo-admin-api/internal/models"
	"github.com/noah-isme/dojo-admin-api/internal/repository"
	appErrors "github.com/noah-isme/dojo-admin-api/pkg/errors"
	"github.com/noah-isme/dojo-admin-api/pkg/logger"
)

type payrollStore interface {
	ListCategories(ctx context.Context) ([]models.ClassCategory, error)
	WithinCategoryLock(ctx context.Context, categoryID string, period models.Period, fn func(repository.PayrollTx) error) error
}

type summaryInvalidator interface {
	Invalidate(ctx context.Context, key string) error
}

// PayrollService runs the monthly revenue allocation over every class category.
type PayrollService struct {
	store   payrollStore
	cache   summaryInvalidator
	metrics *MetricsService
	logger  *zap.Logger
	now     func() time.Time
}

// NewPayrollService constructs a PayrollService. cache and metrics may be nil.
func NewPayrollService(store payrollStore, cache summaryInvalidator, metrics *MetricsService, logger *zap.Logger) *PayrollService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PayrollService{
		store:   store,
		cache:   cache,
		metrics: metrics,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Run computes the federation and instructor payments of req.Month for every category.
// Categories are isolated: a skip, refusal or store failure in one never aborts the others.
// A malformed month is rejected before any category is touched.
func (s *PayrollService) Run(ctx context.Context, req dto.RunRequest) (*dto.RunReport, error) {
	period, err := models.ParsePeriod(req.Month)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInvalidPeriod.Code, appErrors.ErrInvalidPeriod.Status, appErrors.ErrInvalidPeriod.Message)
	}

	categories, err := s.store.ListCategories(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list class categories")
	}

	report := &dto.RunReport{
		Month:       period.String(),
		Recalculate: req.Recalculate,
		StartedAt:   s.now(),
		Categories:  make([]dto.CategoryOutcome, 0, len(categories)),
	}

	log := logger.ForRequest(ctx, s.logger)
	for _, category := range categories {
		outcome := s.runCategory(ctx, category, period, req)
		logOutcome(log, period, req.Recalculate, outcome)
		report.Categories = append(report.Categories, outcome)
	}
	report.FinishedAt = s.now()

	s.metrics.ObservePayrollRun(*report)
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, payrollSummaryCacheKey(period)); err != nil {
			log.Warn("failed to invalidate payroll summary cache", zap.String("month", period.String()), zap.Error(err))
		}
	}

	return report, nil
}

func (s *PayrollService) runCategory(ctx context.Context, category models.ClassCategory, period models.Period, req dto.RunRequest) dto.CategoryOutcome {
	base := dto.CategoryOutcome{CategoryID: category.ID, CategoryCode: category.Code}
	outcome := base

	err := s.store.WithinCategoryLock(ctx, category.ID, period, func(tx repository.PayrollTx) error {
		outcome = base

		if !req.Recalculate {
			locked, err := tx.HasReconciledRecords(ctx)
			if err != nil {
				return err
			}
			if locked {
				outcome.Status = dto.OutcomeBlocked
				outcome.Message = appErrors.ErrRecalculationBlocked.Message + "; use recalculate to override"
				return nil
			}
		}

		total, err := tx.TotalCollected(ctx)
		if err != nil {
			return err
		}
		outcome.TotalCollected = total
		if !total.IsPositive() {
			outcome.Status = dto.OutcomeSkippedNoCollections
			outcome.Message = "no collected payments for the month"
			return nil
		}

		sessions, err := tx.CountSessions(ctx)
		if err != nil {
			return err
		}
		outcome.Sessions = sessions
		if sessions == 0 {
			outcome.Status = dto.OutcomeSkippedNoSessions
			outcome.Message = "no class sessions for the month"
			return nil
		}

		assignments, err := tx.ListAssignments(ctx)
		if err != nil {
			return err
		}
		allocation := Allocate(total, assignments)
		applyAllocation(&outcome, allocation)

		if req.Recalculate {
			removed, linked, err := tx.DeleteRecords(ctx)
			if err != nil {
				return err
			}
			outcome.RemovedRecords = removed
			if err := tx.RefreshBankTransactions(ctx, linked); err != nil {
				return err
			}
		}

		if err := tx.UpsertFederation(ctx, total, allocation.FederationShare); err != nil {
			return err
		}
		for _, share := range allocation.Shares {
			if err := tx.UpsertInstructor(ctx, total, share); err != nil {
				return err
			}
		}

		if req.Recalculate {
			if err := tx.CreateAuditLog(ctx, recalculationAudit(category, period, req, outcome)); err != nil {
				return err
			}
		} else {
			stale, err := tx.DeleteStaleInstructors(ctx, allocation.Shares)
			if err != nil {
				return err
			}
			outcome.RemovedRecords = stale
		}

		outcome.Status = dto.OutcomeComputed
		return nil
	})
	if err != nil {
		failed := base
		failed.Status = dto.OutcomeFailed
		failed.Message = err.Error()
		return failed
	}
	return outcome
}

func applyAllocation(outcome *dto.CategoryOutcome, allocation Allocation) {
	outcome.FederationShare = allocation.FederationShare
	outcome.InstructorPool = allocation.InstructorPool
	outcome.LeadPool = allocation.LeadPool
	outcome.AssistantPool = allocation.AssistantPool
	outcome.LeadAssignments = allocation.LeadAssignments
	outcome.AssistantAssignments = allocation.AssistantAssignments
	outcome.LeadRate = allocation.LeadRate
	outcome.AssistantRate = allocation.AssistantRate
	outcome.LeadResidual = allocation.LeadResidual
	outcome.AssistantResidual = allocation.AssistantResidual
	outcome.Shares = allocation.Shares
}

func recalculationAudit(category models.ClassCategory, period models.Period, req dto.RunRequest, outcome dto.CategoryOutcome) *models.AuditLog {
	oldValues, _ := json.Marshal(map[string]interface{}{
		"month":          period.String(),
		"removedRecords": outcome.RemovedRecords,
	})
	newValues, _ := json.Marshal(map[string]interface{}{
		"month":           period.String(),
		"totalCollected":  outcome.TotalCollected,
		"federationShare": outcome.FederationShare,
		"shares":          outcome.Shares,
		"triggeredBy":     triggeredBy(req),
	})
	log := &models.AuditLog{
		Action:     models.AuditActionPayrollRecalculate,
		Resource:   "payroll",
		ResourceID: &category.ID,
		OldValues:  oldValues,
		NewValues:  newValues,
		IPAddress:  req.IPAddress,
		UserAgent:  req.UserAgent,
	}
	if req.ActorID != "" {
		actor := req.ActorID
		log.UserID = &actor
	}
	return log
}

// triggeredBy names who started a run. Runs without a user account, such as the batch CLI,
// are identified by their user agent.
func triggeredBy(req dto.RunRequest) string {
	if req.ActorID != "" {
		return req.ActorID
	}
	return req.UserAgent
}

func logOutcome(log *zap.Logger, period models.Period, recalculate bool, outcome dto.CategoryOutcome) {
	fields := []zap.Field{
		zap.String("month", period.String()),
		zap.String("category", outcome.CategoryCode),
		zap.String("outcome", string(outcome.Status)),
		zap.Bool("recalculate", recalculate),
	}
	switch outcome.Status {
	case dto.OutcomeComputed:
		log.Info("payroll computed", append(fields,
			zap.String("total_collected", outcome.TotalCollected.String()),
			zap.String("federation_share", outcome.FederationShare.String()),
			zap.Int("instructor_records", len(outcome.Shares)),
			zap.Int("removed_records", outcome.RemovedRecords),
			zap.String("lead_residual", outcome.LeadResidual.String()),
			zap.String("assistant_residual", outcome.AssistantResidual.String()),
		)...)
	case dto.OutcomeBlocked:
		log.Warn("payroll recalculation refused", fields...)
	case dto.OutcomeFailed:
		log.Error("payroll computation failed", append(fields, zap.String("error", outcome.Message))...)
	default:
		log.Info("payroll skipped", append(fields, zap.String("reason", outcome.Message))...)
	}
}
