package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/dojo-admin-api/internal/dto"
	"github.com/noah-isme/dojo-admin-api/internal/models"
	"github.com/noah-isme/dojo-admin-api/internal/repository"
	appErrors "github.com/noah-isme/dojo-admin-api/pkg/errors"
)

type sessionRepository interface {
	FindCategory(ctx context.Context, id string) (*models.ClassCategory, error)
	ActiveInstructorIDs(ctx context.Context, ids []string) (map[string]bool, error)
	Assign(ctx context.Context, params repository.SessionAssignmentParams) (*models.ClassSession, []models.TeachingAssignment, error)
	SetCancelled(ctx context.Context, id string, cancelled bool) (*models.ClassSession, error)
}

// SessionService records who taught which class, the activity input of the payroll run.
type SessionService struct {
	repo      sessionRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewSessionService constructs a SessionService.
func NewSessionService(repo sessionRepository, validate *validator.Validate, logger *zap.Logger) *SessionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &SessionService{repo: repo, validator: validate, logger: logger}
}

// Assign records the leads and assistants of a category's session on a date.
// Without explicit leads the category's default lead is used; a category without one may
// record assistant-only sessions. The same instructor may be both lead and assistant.
func (s *SessionService) Assign(ctx context.Context, req dto.AssignSessionRequest) (*dto.SessionAssignments, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid session assignment payload")
	}
	date, err := time.Parse("2006-01-02", req.SessionDate)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "sessionDate must be YYYY-MM-DD")
	}

	category, err := s.repo.FindCategory(ctx, req.CategoryID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class category not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class category")
	}

	leads := uniqueIDs(append([]string{req.LeadInstructorID}, req.LeadInstructorIDs...))
	if len(leads) == 0 && category.DefaultLeadInstructorID != nil {
		leads = []string{*category.DefaultLeadInstructorID}
	}
	assistants := uniqueIDs(req.AssistantInstructorIDs)
	if len(leads) == 0 && len(assistants) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "at least one instructor is required: category has no default lead")
	}

	ids := append(append([]string{}, leads...), assistants...)
	active, err := s.repo.ActiveInstructorIDs(ctx, ids)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check instructors")
	}
	for _, id := range ids {
		if !active[id] {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("instructor %s is unknown or inactive", id))
		}
	}

	session, assignments, err := s.repo.Assign(ctx, repository.SessionAssignmentParams{
		CategoryID:   category.ID,
		SessionDate:  date,
		StartTime:    req.StartTime,
		EndTime:      req.EndTime,
		LeadIDs:      leads,
		AssistantIDs: assistants,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record session assignments")
	}

	s.logger.Info("session assignments recorded",
		zap.String("category", category.Code),
		zap.String("session_date", req.SessionDate),
		zap.Int("assignments", len(assignments)),
	)
	return &dto.SessionAssignments{Session: *session, Assignments: assignments}, nil
}

// uniqueIDs drops empty and repeated ids, keeping the first occurrence.
func uniqueIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// SetCancelled excludes a session from payroll, or includes it again.
func (s *SessionService) SetCancelled(ctx context.Context, id string, cancelled bool) (*models.ClassSession, error) {
	session, err := s.repo.SetCancelled(ctx, id, cancelled)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update class session")
	}
	return session, nil
}
