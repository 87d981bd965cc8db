package models

import "time"

// ClassCategory is an independent revenue pool (morning, evening, children).
type ClassCategory struct {
	ID                      string  `db:"id" json:"id"`
	Code                    string  `db:"code" json:"code"`
	Name                    string  `db:"name" json:"name"`
	DefaultLeadInstructorID *string `db:"default_lead_instructor_id" json:"default_lead_instructor_id,omitempty"`
}

// AssignmentRole is the role an instructor held on a session.
type AssignmentRole string

const (
	RoleLead      AssignmentRole = "LEAD"
	RoleAssistant AssignmentRole = "ASSISTANT"
)

// Valid reports whether r is a known role.
func (r AssignmentRole) Valid() bool {
	return r == RoleLead || r == RoleAssistant
}

// ClassSession is a single scheduled class of a category.
type ClassSession struct {
	ID          string    `db:"id" json:"id"`
	CategoryID  string    `db:"category_id" json:"category_id"`
	SessionDate time.Time `db:"session_date" json:"session_date"`
	StartTime   string    `db:"start_time" json:"start_time"`
	EndTime     string    `db:"end_time" json:"end_time"`
	Cancelled   bool      `db:"cancelled" json:"cancelled"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// TeachingAssignment records that an instructor taught a session in a role.
type TeachingAssignment struct {
	ID           string         `db:"id" json:"id"`
	SessionID    string         `db:"session_id" json:"session_id"`
	InstructorID string         `db:"instructor_id" json:"instructor_id"`
	Role         AssignmentRole `db:"role" json:"role"`
	CreatedAt    time.Time      `db:"created_at" json:"created_at"`
}
