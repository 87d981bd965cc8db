package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/dojo-admin-api/internal/models"
)

const sessionColumns = `id, category_id, session_date, start_time, end_time, cancelled, created_at`

// SessionAssignmentParams describes the assignments to record for one session.
type SessionAssignmentParams struct {
	CategoryID   string
	SessionDate  time.Time
	StartTime    string
	EndTime      string
	LeadIDs      []string
	AssistantIDs []string
}

// SessionRepository stores class sessions and their teaching assignments.
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository creates a SessionRepository.
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// FindCategory returns a class category by id.
func (r *SessionRepository) FindCategory(ctx context.Context, id string) (*models.ClassCategory, error) {
	const query = `SELECT id, code, name, default_lead_instructor_id FROM class_categories WHERE id = $1`
	var category models.ClassCategory
	if err := r.db.GetContext(ctx, &category, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find class category: %w", err)
	}
	return &category, nil
}

// ActiveInstructorIDs returns which of the given ids belong to active instructors.
func (r *SessionRepository) ActiveInstructorIDs(ctx context.Context, ids []string) (map[string]bool, error) {
	found := make(map[string]bool, len(ids))
	if len(ids) == 0 {
		return found, nil
	}
	query, args, err := sqlx.In(`SELECT id FROM instructors WHERE active AND id IN (?)`, ids)
	if err != nil {
		return nil, fmt.Errorf("build instructor query: %w", err)
	}
	var rows []string
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list instructors: %w", err)
	}
	for _, id := range rows {
		found[id] = true
	}
	return found, nil
}

// Assign upserts the session for (category, date) and adds the given assignments.
// Existing assignments are kept; duplicates are ignored by the unique constraint.
func (r *SessionRepository) Assign(ctx context.Context, params SessionAssignmentParams) (session *models.ClassSession, assignments []models.TeachingAssignment, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("begin session transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	upsertSession := `INSERT INTO class_sessions (id, category_id, session_date, start_time, end_time, cancelled, created_at)
VALUES ($1, $2, $3, $4, $5, FALSE, $6)
ON CONFLICT (category_id, session_date) DO UPDATE SET cancelled = FALSE
RETURNING ` + sessionColumns
	session = &models.ClassSession{}
	if err = tx.GetContext(ctx, session, upsertSession, uuid.NewString(), params.CategoryID, params.SessionDate, params.StartTime, params.EndTime, now); err != nil {
		return nil, nil, fmt.Errorf("upsert class session: %w", err)
	}

	const insertAssignment = `INSERT INTO teaching_assignments (id, session_id, instructor_id, role, created_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (session_id, instructor_id, role) DO NOTHING`
	insert := func(instructorID string, role models.AssignmentRole) error {
		if _, err := tx.ExecContext(ctx, insertAssignment, uuid.NewString(), session.ID, instructorID, string(role), now); err != nil {
			return fmt.Errorf("insert teaching assignment: %w", err)
		}
		return nil
	}
	for _, id := range params.LeadIDs {
		if err = insert(id, models.RoleLead); err != nil {
			return nil, nil, err
		}
	}
	for _, id := range params.AssistantIDs {
		if err = insert(id, models.RoleAssistant); err != nil {
			return nil, nil, err
		}
	}

	const listAssignments = `SELECT id, session_id, instructor_id, role, created_at FROM teaching_assignments WHERE session_id = $1 ORDER BY role DESC, instructor_id`
	if err = tx.SelectContext(ctx, &assignments, listAssignments, session.ID); err != nil {
		return nil, nil, fmt.Errorf("list teaching assignments: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("commit session assignment: %w", err)
	}
	return session, assignments, nil
}

// SetCancelled flags or restores a session.
func (r *SessionRepository) SetCancelled(ctx context.Context, id string, cancelled bool) (*models.ClassSession, error) {
	query := `UPDATE class_sessions SET cancelled = $2 WHERE id = $1 RETURNING ` + sessionColumns
	var session models.ClassSession
	if err := r.db.GetContext(ctx, &session, query, id, cancelled); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("update class session: %w", err)
	}
	return &session, nil
}
