package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/dojo-admin-api/internal/models"
)

func TestBankTransactionCreateDefaultsPending(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewBankTransactionRepository(db)

	mock.ExpectExec("INSERT INTO bank_transactions").WillReturnResult(sqlmock.NewResult(0, 1))

	txn := &models.BankTransaction{TransactionDate: time.Now(), Amount: decimal.NewFromInt(100)}
	require.NoError(t, repo.Create(context.Background(), txn))
	assert.Equal(t, models.BankTransactionPending, txn.Status)
	assert.NotEmpty(t, txn.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBankTransactionSetStatusNotFound(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewBankTransactionRepository(db)

	mock.ExpectExec("UPDATE bank_transactions SET status").WithArgs("missing", "IGNORED").WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.SetStatus(context.Background(), "missing", models.BankTransactionIgnored)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestCollectedPaymentDelete(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewCollectedPaymentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM collected_payments WHERE id = $1")).WithArgs("cp-1").WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Delete(context.Background(), "cp-1"))

	mock.ExpectExec("DELETE FROM collected_payments").WithArgs("cp-2").WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, repo.Delete(context.Background(), "cp-2"), sql.ErrNoRows)
}

func TestCollectedPaymentListByMonth(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewCollectedPaymentRepository(db)

	now := time.Now()
	mock.ExpectQuery("FROM collected_payments").
		WithArgs(january.Start(), january.End()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "student_id", "payment_month", "amount", "bank_transaction_id", "notes", "created_at"}).
			AddRow("cp-1", "s-1", january.Start(), "80000.00", nil, "", now))

	payments, err := repo.ListByMonth(context.Background(), january)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.True(t, payments[0].Amount.Equal(decimal.NewFromInt(80000)))
}

func TestSessionAssignInsertsLeadAndAssistants(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	date := time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)
	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO class_sessions").
		WillReturnRows(sqlmock.NewRows([]string{"id", "category_id", "session_date", "start_time", "end_time", "cancelled", "created_at"}).
			AddRow("s-1", "morning", date, "09:00", "11:00", false, now))
	mock.ExpectExec("INSERT INTO teaching_assignments").WithArgs(sqlmock.AnyArg(), "s-1", "A", "LEAD", sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO teaching_assignments").WithArgs(sqlmock.AnyArg(), "s-1", "B", "ASSISTANT", sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("FROM teaching_assignments WHERE session_id").
		WithArgs("s-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "session_id", "instructor_id", "role", "created_at"}).
			AddRow("ta-1", "s-1", "A", "LEAD", now).
			AddRow("ta-2", "s-1", "B", "ASSISTANT", now))
	mock.ExpectCommit()

	session, assignments, err := repo.Assign(context.Background(), SessionAssignmentParams{
		CategoryID: "morning", SessionDate: date, StartTime: "09:00", EndTime: "11:00", LeadIDs: []string{"A"}, AssistantIDs: []string{"B"},
	})
	require.NoError(t, err)
	assert.Equal(t, "s-1", session.ID)
	require.Len(t, assignments, 2)
	assert.Equal(t, models.RoleLead, assignments[0].Role)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestActiveInstructorIDs(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM instructors WHERE active AND id IN ($1, $2)")).
		WithArgs("A", "B").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("A"))

	found, err := repo.ActiveInstructorIDs(context.Background(), []string{"A", "B"})
	require.NoError(t, err)
	assert.True(t, found["A"])
	assert.False(t, found["B"])
}

func TestCacheRepositoryWithoutClient(t *testing.T) {
	repo := NewCacheRepository(nil, nil)
	var dest map[string]string
	assert.Error(t, repo.Get(context.Background(), "k", &dest))
	assert.NoError(t, repo.Set(context.Background(), "k", "v", time.Minute))
	assert.NoError(t, repo.Delete(context.Background(), "k"))
}
