package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/dojo-admin-api/internal/dto"
	"github.com/noah-isme/dojo-admin-api/internal/models"
	"github.com/noah-isme/dojo-admin-api/internal/repository"
	appErrors "github.com/noah-isme/dojo-admin-api/pkg/errors"
)

type stubCollectedRepo struct {
	students map[string]bool
	payments map[string]*models.CollectedPayment
	created  []*models.CollectedPayment
}

func (s *stubCollectedRepo) StudentExists(ctx context.Context, id string) (bool, error) {
	return s.students[id], nil
}

func (s *stubCollectedRepo) Create(ctx context.Context, payment *models.CollectedPayment) error {
	payment.ID = "cp-new"
	s.created = append(s.created, payment)
	return nil
}

func (s *stubCollectedRepo) FindByID(ctx context.Context, id string) (*models.CollectedPayment, error) {
	payment, ok := s.payments[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return payment, nil
}

func (s *stubCollectedRepo) ListByMonth(ctx context.Context, period models.Period) ([]models.CollectedPayment, error) {
	return nil, nil
}

func (s *stubCollectedRepo) Delete(ctx context.Context, id string) error {
	delete(s.payments, id)
	return nil
}

type stubBankRepo struct {
	balances  map[string]*models.BankTransactionBalance
	created   []*models.BankTransaction
	statuses  map[string]models.BankTransactionStatus
	refreshed []string
}

func newStubBankRepo() *stubBankRepo {
	return &stubBankRepo{balances: map[string]*models.BankTransactionBalance{}, statuses: map[string]models.BankTransactionStatus{}}
}

func (s *stubBankRepo) Create(ctx context.Context, txn *models.BankTransaction) error {
	txn.ID = "bank-new"
	s.created = append(s.created, txn)
	s.balances[txn.ID] = &models.BankTransactionBalance{BankTransaction: *txn, Allocated: decimal.Zero}
	return nil
}

func (s *stubBankRepo) FindBalance(ctx context.Context, id string) (*models.BankTransactionBalance, error) {
	balance, ok := s.balances[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	out := *balance
	return &out, nil
}

func (s *stubBankRepo) List(ctx context.Context, from, to time.Time, status models.BankTransactionStatus) ([]models.BankTransaction, error) {
	return nil, nil
}

func (s *stubBankRepo) SetStatus(ctx context.Context, id string, status models.BankTransactionStatus) error {
	s.statuses[id] = status
	s.balances[id].Status = status
	return nil
}

func (s *stubBankRepo) RefreshStatus(ctx context.Context, id string) (models.BankTransactionStatus, error) {
	s.refreshed = append(s.refreshed, id)
	balance := s.balances[id]
	balance.Status = models.ResolveStatus(balance.Status, balance.Amount, balance.Allocated)
	return balance.Status, nil
}

type recordingAudit struct {
	logs []*models.AuditLog
}

func (r *recordingAudit) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	r.logs = append(r.logs, log)
	return nil
}

func strPtr(s string) *string { return &s }

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func TestCollectionCreateLinkedToBank(t *testing.T) {
	repo := &stubCollectedRepo{students: map[string]bool{"stu-1": true}}
	banks := newStubBankRepo()
	banks.balances["bank-1"] = &models.BankTransactionBalance{
		BankTransaction: models.BankTransaction{ID: "bank-1", CreditAmount: decimal.NewNullDecimal(dec("150000")), Amount: dec("150000"), Status: models.BankTransactionPending},
		Allocated:       dec("50000"),
	}
	svc := NewCollectionService(repo, banks, nil, nil, nil)

	payment, err := svc.Create(context.Background(), dto.CreateCollectedPaymentRequest{
		StudentID: "stu-1", Month: "2025-01", Amount: dec("100000"), BankTransactionID: strPtr("bank-1"),
	})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), payment.PaymentMonth)
	assert.Equal(t, []string{"bank-1"}, banks.refreshed)

	_, err = svc.Create(context.Background(), dto.CreateCollectedPaymentRequest{
		StudentID: "stu-1", Month: "2025-01", Amount: dec("100000.01"), BankTransactionID: strPtr("bank-1"),
	})
	assert.True(t, errors.Is(err, appErrors.ErrOverAllocation))
	assert.Len(t, repo.created, 1)
}

func TestCollectionCreateRejectsDebitLine(t *testing.T) {
	repo := &stubCollectedRepo{students: map[string]bool{"stu-1": true}}
	banks := newStubBankRepo()
	banks.balances["bank-out"] = &models.BankTransactionBalance{
		BankTransaction: models.BankTransaction{ID: "bank-out", DebitAmount: decimal.NewNullDecimal(dec("150000")), Amount: dec("150000"), Status: models.BankTransactionPending},
	}
	svc := NewCollectionService(repo, banks, nil, nil, nil)

	_, err := svc.Create(context.Background(), dto.CreateCollectedPaymentRequest{
		StudentID: "stu-1", Month: "2025-01", Amount: dec("100000"), BankTransactionID: strPtr("bank-out"),
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrBankDirection))
	assert.Empty(t, repo.created)
	assert.Empty(t, banks.refreshed)
}

func TestCollectionCreateRejectsBadInput(t *testing.T) {
	repo := &stubCollectedRepo{students: map[string]bool{"stu-1": true}}
	svc := NewCollectionService(repo, newStubBankRepo(), nil, nil, nil)
	ctx := context.Background()

	_, err := svc.Create(ctx, dto.CreateCollectedPaymentRequest{StudentID: "stu-1", Month: "2025-01", Amount: dec("-5")})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	_, err = svc.Create(ctx, dto.CreateCollectedPaymentRequest{StudentID: "stu-1", Month: "01-2025", Amount: dec("5")})
	assert.True(t, errors.Is(err, appErrors.ErrInvalidPeriod))

	_, err = svc.Create(ctx, dto.CreateCollectedPaymentRequest{StudentID: "ghost", Month: "2025-01", Amount: dec("5")})
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))

	_, err = svc.Create(ctx, dto.CreateCollectedPaymentRequest{StudentID: "stu-1", Month: "2025-01", Amount: dec("5"), BankTransactionID: strPtr("missing")})
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
	assert.Empty(t, repo.created)
}

func TestCollectionDeleteRefreshesBankAndAudits(t *testing.T) {
	repo := &stubCollectedRepo{payments: map[string]*models.CollectedPayment{
		"cp-1": {ID: "cp-1", StudentID: "stu-1", Amount: dec("100"), BankTransactionID: strPtr("bank-1")},
	}}
	banks := newStubBankRepo()
	banks.balances["bank-1"] = &models.BankTransactionBalance{BankTransaction: models.BankTransaction{ID: "bank-1", Amount: dec("100"), Status: models.BankTransactionMatched}}
	audit := &recordingAudit{}
	svc := NewCollectionService(repo, banks, audit, nil, nil)

	require.NoError(t, svc.Delete(context.Background(), "cp-1", "admin-1"))
	assert.Equal(t, []string{"bank-1"}, banks.refreshed)
	assert.Equal(t, models.BankTransactionPending, banks.balances["bank-1"].Status)
	require.Len(t, audit.logs, 1)
	assert.Equal(t, models.AuditActionCollectionDelete, audit.logs[0].Action)

	err := svc.Delete(context.Background(), "cp-1", "admin-1")
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestBankTransactionCreateRequiresOneSide(t *testing.T) {
	repo := newStubBankRepo()
	svc := NewBankTransactionService(repo, nil, nil)
	ctx := context.Background()

	view, err := svc.Create(ctx, dto.CreateBankTransactionRequest{TransactionDate: "2025-01-15", CreditAmount: decPtr("250000"), PayerName: "Tanaka"})
	require.NoError(t, err)
	assert.True(t, view.Amount.Equal(dec("250000")))
	assert.True(t, view.Unallocated.Equal(dec("250000")))
	assert.Equal(t, models.BankTransactionPending, view.Status)
	assert.Equal(t, models.BankCredit, view.Direction)
	assert.False(t, view.DebitAmount.Valid)

	_, err = svc.Create(ctx, dto.CreateBankTransactionRequest{TransactionDate: "2025-01-15", CreditAmount: decPtr("1"), DebitAmount: decPtr("1")})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	_, err = svc.Create(ctx, dto.CreateBankTransactionRequest{TransactionDate: "2025-01-15"})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	_, err = svc.Create(ctx, dto.CreateBankTransactionRequest{TransactionDate: "15/01/2025", CreditAmount: decPtr("1")})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestBankTransactionIgnoreAndRestore(t *testing.T) {
	repo := newStubBankRepo()
	repo.balances["bank-1"] = &models.BankTransactionBalance{BankTransaction: models.BankTransaction{ID: "bank-1", Amount: dec("100"), Status: models.BankTransactionPending}}
	repo.balances["bank-2"] = &models.BankTransactionBalance{BankTransaction: models.BankTransaction{ID: "bank-2", Amount: dec("100"), Status: models.BankTransactionPartiallyMatched}, Allocated: dec("40")}
	svc := NewBankTransactionService(repo, nil, nil)
	ctx := context.Background()

	view, err := svc.SetIgnored(ctx, "bank-1", true)
	require.NoError(t, err)
	assert.Equal(t, models.BankTransactionIgnored, view.Status)

	view, err = svc.SetIgnored(ctx, "bank-1", false)
	require.NoError(t, err)
	assert.Equal(t, models.BankTransactionPending, view.Status)

	_, err = svc.SetIgnored(ctx, "bank-2", true)
	assert.True(t, errors.Is(err, appErrors.ErrConflict))

	_, err = svc.SetIgnored(ctx, "missing", true)
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

type stubSessionRepo struct {
	category *models.ClassCategory
	active   map[string]bool
	params   *repository.SessionAssignmentParams
}

func (s *stubSessionRepo) FindCategory(ctx context.Context, id string) (*models.ClassCategory, error) {
	if s.category == nil || s.category.ID != id {
		return nil, sql.ErrNoRows
	}
	return s.category, nil
}

func (s *stubSessionRepo) ActiveInstructorIDs(ctx context.Context, ids []string) (map[string]bool, error) {
	out := map[string]bool{}
	for _, id := range ids {
		if s.active[id] {
			out[id] = true
		}
	}
	return out, nil
}

func (s *stubSessionRepo) Assign(ctx context.Context, params repository.SessionAssignmentParams) (*models.ClassSession, []models.TeachingAssignment, error) {
	s.params = &params
	session := &models.ClassSession{ID: "sess-1", CategoryID: params.CategoryID, SessionDate: params.SessionDate}
	var assignments []models.TeachingAssignment
	for _, id := range params.LeadIDs {
		assignments = append(assignments, models.TeachingAssignment{SessionID: "sess-1", InstructorID: id, Role: models.RoleLead})
	}
	for _, id := range params.AssistantIDs {
		assignments = append(assignments, models.TeachingAssignment{SessionID: "sess-1", InstructorID: id, Role: models.RoleAssistant})
	}
	return session, assignments, nil
}

func (s *stubSessionRepo) SetCancelled(ctx context.Context, id string, cancelled bool) (*models.ClassSession, error) {
	if id != "sess-1" {
		return nil, sql.ErrNoRows
	}
	return &models.ClassSession{ID: id, Cancelled: cancelled}, nil
}

func TestSessionAssignDefaultsLeadFromCategory(t *testing.T) {
	repo := &stubSessionRepo{
		category: &models.ClassCategory{ID: "cat-morning", Code: "MORNING", DefaultLeadInstructorID: strPtr("sensei")},
		active:   map[string]bool{"sensei": true, "kohai": true},
	}
	svc := NewSessionService(repo, nil, nil)

	res, err := svc.Assign(context.Background(), dto.AssignSessionRequest{
		CategoryID:             "cat-morning",
		SessionDate:            "2025-01-06",
		StartTime:              "07:00",
		AssistantInstructorIDs: []string{"kohai", "kohai", "sensei"},
	})
	require.NoError(t, err)
	require.NotNil(t, repo.params)
	assert.Equal(t, []string{"sensei"}, repo.params.LeadIDs)
	assert.Equal(t, []string{"kohai", "sensei"}, repo.params.AssistantIDs)
	assert.Len(t, res.Assignments, 3)
}

func TestSessionAssignWithoutLead(t *testing.T) {
	repo := &stubSessionRepo{
		category: &models.ClassCategory{ID: "cat-evening", Code: "EVENING"},
		active:   map[string]bool{"kohai": true},
	}
	svc := NewSessionService(repo, nil, nil)

	res, err := svc.Assign(context.Background(), dto.AssignSessionRequest{
		CategoryID: "cat-evening", SessionDate: "2025-01-07", AssistantInstructorIDs: []string{"kohai"},
	})
	require.NoError(t, err)
	assert.Empty(t, repo.params.LeadIDs)
	require.Len(t, res.Assignments, 1)
	assert.Equal(t, models.RoleAssistant, res.Assignments[0].Role)
}

func TestSessionAssignSeveralLeads(t *testing.T) {
	repo := &stubSessionRepo{
		category: &models.ClassCategory{ID: "cat-morning", Code: "MORNING", DefaultLeadInstructorID: strPtr("sensei")},
		active:   map[string]bool{"sensei": true, "senpai": true},
	}
	svc := NewSessionService(repo, nil, nil)

	res, err := svc.Assign(context.Background(), dto.AssignSessionRequest{
		CategoryID: "cat-morning", SessionDate: "2025-01-08",
		LeadInstructorID: "senpai", LeadInstructorIDs: []string{"sensei", "senpai"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"senpai", "sensei"}, repo.params.LeadIDs)
	assert.Empty(t, repo.params.AssistantIDs)
	assert.Len(t, res.Assignments, 2)
}

func TestSessionAssignRejectsMissingOrInactiveLead(t *testing.T) {
	repo := &stubSessionRepo{
		category: &models.ClassCategory{ID: "cat-evening", Code: "EVENING"},
		active:   map[string]bool{"sensei": true},
	}
	svc := NewSessionService(repo, nil, nil)
	ctx := context.Background()

	_, err := svc.Assign(ctx, dto.AssignSessionRequest{CategoryID: "cat-evening", SessionDate: "2025-01-06"})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	_, err = svc.Assign(ctx, dto.AssignSessionRequest{CategoryID: "cat-evening", SessionDate: "2025-01-06", LeadInstructorID: "retired"})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
	assert.Contains(t, err.Error(), "retired")

	_, err = svc.Assign(ctx, dto.AssignSessionRequest{CategoryID: "cat-unknown", SessionDate: "2025-01-06", LeadInstructorID: "sensei"})
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
	assert.Nil(t, repo.params)
}

func TestSessionSetCancelled(t *testing.T) {
	svc := NewSessionService(&stubSessionRepo{}, nil, nil)

	session, err := svc.SetCancelled(context.Background(), "sess-1", true)
	require.NoError(t, err)
	assert.True(t, session.Cancelled)

	_, err = svc.SetCancelled(context.Background(), "nope", true)
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}
