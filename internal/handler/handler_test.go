package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/dojo-admin-api/internal/dto"
	"github.com/noah-isme/dojo-admin-api/internal/middleware"
	"github.com/noah-isme/dojo-admin-api/internal/models"
	appErrors "github.com/noah-isme/dojo-admin-api/pkg/errors"
	"github.com/noah-isme/dojo-admin-api/pkg/jobs"
)

type envelope struct {
	Data  json.RawMessage        `json:"data"`
	Error *appErrors.Error       `json:"error"`
	Meta  map[string]interface{} `json:"meta"`
}

func newGinContext(method, path string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin})
	return c, w
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

type stubAuthenticator struct {
	got models.LoginRequest
}

func (s *stubAuthenticator) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	s.got = req
	return &models.LoginResponse{AccessToken: "token", User: models.UserInfo{ID: "admin-1"}}, nil
}

func TestAuthHandlerLogin(t *testing.T) {
	svc := &stubAuthenticator{}
	h := NewAuthHandler(svc)

	c, w := newGinContext(http.MethodPost, "/auth/login", []byte(`{"email":"sensei@dojo.test","password":"secret"}`))
	c.Request.Header.Set("User-Agent", "handler-test")
	h.Login(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "sensei@dojo.test", svc.got.Email)
	assert.Equal(t, "handler-test", svc.got.UserAgent)

	c, w = newGinContext(http.MethodPost, "/auth/login", []byte(`{`))
	h.Login(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAuthHandlerMe(t *testing.T) {
	h := NewAuthHandler(&stubAuthenticator{})
	c, w := newGinContext(http.MethodGet, "/auth/me", nil)
	h.Me(c)
	require.Equal(t, http.StatusOK, w.Code)

	var info models.UserInfo
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &info))
	assert.Equal(t, "admin-1", info.ID)
}

type stubPayroll struct {
	report   *dto.RunReport
	runErr   error
	lastRun  dto.RunRequest
	enqueued []dto.RunRequest
	status   *jobs.Status
	summary  *dto.PayrollSummary
	export   *dto.ExportResult
	format   dto.ExportFormat
}

func (s *stubPayroll) Run(ctx context.Context, req dto.RunRequest) (*dto.RunReport, error) {
	s.lastRun = req
	return s.report, s.runErr
}

func (s *stubPayroll) Enqueue(req dto.RunRequest) (*dto.PayrollJobResponse, error) {
	s.enqueued = append(s.enqueued, req)
	return &dto.PayrollJobResponse{JobID: "job-1", Month: req.Month, Recalculate: req.Recalculate, State: string(jobs.StateQueued)}, nil
}

func (s *stubPayroll) Status(id string) (*jobs.Status, error) {
	if s.status == nil || s.status.ID != id {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "payroll job not found")
	}
	return s.status, nil
}

func (s *stubPayroll) Summary(ctx context.Context, month string) (*dto.PayrollSummary, error) {
	if month == "bad" {
		return nil, appErrors.ErrInvalidPeriod
	}
	return s.summary, nil
}

func (s *stubPayroll) Export(ctx context.Context, month string, format dto.ExportFormat) (*dto.ExportResult, error) {
	s.format = format
	return s.export, nil
}

func TestPayrollHandlerRunReportsBlockedMeta(t *testing.T) {
	svc := &stubPayroll{report: &dto.RunReport{
		Month: "2025-01",
		Categories: []dto.CategoryOutcome{
			{CategoryCode: "KIDS", Status: dto.OutcomeComputed},
			{CategoryCode: "ADULT", Status: dto.OutcomeBlocked},
		},
	}}
	h := NewPayrollHandler(svc, svc, svc)

	c, w := newGinContext(http.MethodPost, "/payroll/runs/2025-01", nil)
	c.Params = gin.Params{{Key: "month", Value: "2025-01"}}
	middleware.WithResponseMeta()(c)
	h.Run(c)

	require.Equal(t, http.StatusOK, w.Code)
	env := decodeEnvelope(t, w)
	assert.Equal(t, true, env.Meta["blocked"])
	assert.Equal(t, false, env.Meta["failed"])
	assert.Equal(t, "2025-01", svc.lastRun.Month)
	assert.False(t, svc.lastRun.Recalculate)
	assert.Equal(t, "admin-1", svc.lastRun.ActorID)
}

func TestPayrollHandlerRecalculateAsync(t *testing.T) {
	svc := &stubPayroll{}
	h := NewPayrollHandler(svc, svc, svc)

	c, w := newGinContext(http.MethodPost, "/payroll/runs/2025-02/recalculate?async=true", nil)
	c.Params = gin.Params{{Key: "month", Value: "2025-02"}}
	h.Recalculate(c)

	require.Equal(t, http.StatusAccepted, w.Code)
	require.Len(t, svc.enqueued, 1)
	assert.True(t, svc.enqueued[0].Recalculate)
}

func TestPayrollHandlerAsyncWithoutQueue(t *testing.T) {
	svc := &stubPayroll{}
	h := NewPayrollHandler(svc, nil, svc)

	c, w := newGinContext(http.MethodPost, "/payroll/runs/2025-02?async=1", nil)
	c.Params = gin.Params{{Key: "month", Value: "2025-02"}}
	h.Run(c)
	assert.Equal(t, http.StatusPreconditionFailed, w.Code)
}

func TestPayrollHandlerJobStatus(t *testing.T) {
	svc := &stubPayroll{status: &jobs.Status{ID: "job-1", State: jobs.StateSucceeded}}
	h := NewPayrollHandler(svc, svc, svc)

	c, w := newGinContext(http.MethodGet, "/payroll/jobs/job-1", nil)
	c.Params = gin.Params{{Key: "id", Value: "job-1"}}
	h.JobStatus(c)
	assert.Equal(t, http.StatusOK, w.Code)

	c, w = newGinContext(http.MethodGet, "/payroll/jobs/other", nil)
	c.Params = gin.Params{{Key: "id", Value: "other"}}
	h.JobStatus(c)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPayrollHandlerSummaryInvalidMonth(t *testing.T) {
	svc := &stubPayroll{}
	h := NewPayrollHandler(svc, svc, svc)

	c, w := newGinContext(http.MethodGet, "/payroll/bad", nil)
	c.Params = gin.Params{{Key: "month", Value: "bad"}}
	h.Summary(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
	env := decodeEnvelope(t, w)
	require.NotNil(t, env.Error)
	assert.Equal(t, "INVALID_PERIOD", env.Error.Code)
}

func TestPayrollHandlerExport(t *testing.T) {
	svc := &stubPayroll{export: &dto.ExportResult{Filename: "payroll-2025-01.pdf", ContentType: "application/pdf", Body: []byte("%PDF-1.3")}}
	h := NewPayrollHandler(svc, svc, svc)

	c, w := newGinContext(http.MethodGet, "/payroll/2025-01/export?format=pdf", nil)
	c.Params = gin.Params{{Key: "month", Value: "2025-01"}}
	h.Export(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, dto.ExportPDF, svc.format)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "payroll-2025-01.pdf")
}

type stubReconciler struct {
	allocation dto.AllocationRequest
	allocErr   error
	unlinkedBy string
}

func (s *stubReconciler) InstructorPaymentStatus(ctx context.Context, paymentID string) (*dto.InstructorPaymentStatus, error) {
	return &dto.InstructorPaymentStatus{PaymentID: paymentID, Status: models.PaymentPartiallyPaid}, nil
}

func (s *stubReconciler) AllocateInstructorPayment(ctx context.Context, paymentID string, req dto.AllocationRequest) (*dto.AllocationResult, error) {
	s.allocation = req
	if s.allocErr != nil {
		return nil, s.allocErr
	}
	return &dto.AllocationResult{Payment: dto.InstructorPaymentStatus{PaymentID: paymentID}}, nil
}

func (s *stubReconciler) DeleteInstructorAllocation(ctx context.Context, allocationID, actorID string) (*dto.AllocationResult, error) {
	return &dto.AllocationResult{}, nil
}

func (s *stubReconciler) LinkFederationPayment(ctx context.Context, paymentID string, req dto.LinkFederationRequest) (*dto.FederationLinkResult, error) {
	return nil, appErrors.Clone(appErrors.ErrConflict, "federation payment is already linked")
}

func (s *stubReconciler) UnlinkFederationPayment(ctx context.Context, paymentID, actorID string) (*dto.FederationLinkResult, error) {
	s.unlinkedBy = actorID
	return &dto.FederationLinkResult{Status: models.PaymentUnallocated}, nil
}

func TestReconciliationHandlerAllocate(t *testing.T) {
	svc := &stubReconciler{}
	h := NewReconciliationHandler(svc)

	c, w := newGinContext(http.MethodPost, "/instructor-payments/pay-1/allocations", []byte(`{"bankTransactionId":"bank-1","amount":"150000.50"}`))
	c.Params = gin.Params{{Key: "id", Value: "pay-1"}}
	h.AllocateInstructorPayment(c)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "bank-1", svc.allocation.BankTransactionID)
	assert.True(t, svc.allocation.Amount.Equal(decimal.RequireFromString("150000.50")))
	assert.Equal(t, "admin-1", svc.allocation.ActorID)
}

func TestReconciliationHandlerOverAllocation(t *testing.T) {
	h := NewReconciliationHandler(&stubReconciler{allocErr: appErrors.Clone(appErrors.ErrOverAllocation, "")})

	c, w := newGinContext(http.MethodPost, "/instructor-payments/pay-1/allocations", []byte(`{"bankTransactionId":"bank-1","amount":1}`))
	c.Params = gin.Params{{Key: "id", Value: "pay-1"}}
	h.AllocateInstructorPayment(c)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestReconciliationHandlerFederationLinking(t *testing.T) {
	svc := &stubReconciler{}
	h := NewReconciliationHandler(svc)

	c, w := newGinContext(http.MethodPost, "/federation-payments/fed-1/link", []byte(`{"bankTransactionId":"bank-1"}`))
	c.Params = gin.Params{{Key: "id", Value: "fed-1"}}
	h.LinkFederationPayment(c)
	assert.Equal(t, http.StatusConflict, w.Code)

	c, w = newGinContext(http.MethodDelete, "/federation-payments/fed-1/link", nil)
	c.Params = gin.Params{{Key: "id", Value: "fed-1"}}
	h.UnlinkFederationPayment(c)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "admin-1", svc.unlinkedBy)
}

type stubLedger struct {
	bankID    string
	req       dto.LedgerAllocationRequest
	err       error
	deletedBy string
}

func (s *stubLedger) AllocateLedger(ctx context.Context, bankTransactionID string, req dto.LedgerAllocationRequest) (*dto.LedgerAllocationResult, error) {
	s.bankID, s.req = bankTransactionID, req
	if s.err != nil {
		return nil, s.err
	}
	return &dto.LedgerAllocationResult{BankTransactionStatus: models.BankTransactionPartiallyMatched}, nil
}

func (s *stubLedger) DeleteLedgerAllocation(ctx context.Context, allocationID, actorID string) (*dto.LedgerAllocationResult, error) {
	s.deletedBy = actorID
	return &dto.LedgerAllocationResult{BankTransactionStatus: models.BankTransactionPending}, nil
}

func (s *stubLedger) LedgerAllocations(ctx context.Context, bankTransactionID string) ([]models.LedgerAllocation, error) {
	return []models.LedgerAllocation{{ID: "entry-1", BankTransactionID: bankTransactionID}}, nil
}

func TestLedgerHandlerCreateListDelete(t *testing.T) {
	svc := &stubLedger{}
	h := NewLedgerHandler(svc)

	c, w := newGinContext(http.MethodPost, "/bank-transactions/bank-1/ledger-allocations", []byte(`{"side":"INCOME","category":"SEMINAR","amount":"45000"}`))
	c.Params = gin.Params{{Key: "id", Value: "bank-1"}}
	h.Create(c)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "bank-1", svc.bankID)
	assert.Equal(t, models.LedgerIncome, svc.req.Side)
	assert.Equal(t, "admin-1", svc.req.ActorID)

	c, w = newGinContext(http.MethodGet, "/bank-transactions/bank-1/ledger-allocations", nil)
	c.Params = gin.Params{{Key: "id", Value: "bank-1"}}
	h.List(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decodeEnvelope(t, w).Meta["count"])

	c, w = newGinContext(http.MethodDelete, "/ledger-allocations/entry-1", nil)
	c.Params = gin.Params{{Key: "id", Value: "entry-1"}}
	h.Delete(c)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "admin-1", svc.deletedBy)
}

func TestLedgerHandlerDirectionMismatch(t *testing.T) {
	h := NewLedgerHandler(&stubLedger{err: appErrors.Clone(appErrors.ErrBankDirection, "")})

	c, w := newGinContext(http.MethodPost, "/bank-transactions/bank-1/ledger-allocations", []byte(`{"side":"EXPENSE","amount":1}`))
	c.Params = gin.Params{{Key: "id", Value: "bank-1"}}
	h.Create(c)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, appErrors.ErrBankDirection.Code, decodeEnvelope(t, w).Error.Code)
}

type stubBankTransactions struct {
	status  models.BankTransactionStatus
	ignored *bool
}

func (s *stubBankTransactions) Create(ctx context.Context, req dto.CreateBankTransactionRequest) (*dto.BankTransactionView, error) {
	return &dto.BankTransactionView{}, nil
}

func (s *stubBankTransactions) Get(ctx context.Context, id string) (*dto.BankTransactionView, error) {
	return nil, appErrors.Clone(appErrors.ErrNotFound, "bank transaction not found")
}

func (s *stubBankTransactions) List(ctx context.Context, month string, status models.BankTransactionStatus) ([]models.BankTransaction, error) {
	s.status = status
	return []models.BankTransaction{{ID: "bank-1"}, {ID: "bank-2"}}, nil
}

func (s *stubBankTransactions) SetIgnored(ctx context.Context, id string, ignored bool) (*dto.BankTransactionView, error) {
	s.ignored = &ignored
	return &dto.BankTransactionView{}, nil
}

func TestBankTransactionHandler(t *testing.T) {
	svc := &stubBankTransactions{}
	h := NewBankTransactionHandler(svc)

	c, w := newGinContext(http.MethodGet, "/bank-transactions?month=2025-01&status=pending", nil)
	h.List(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.BankTransactionStatus("PENDING"), svc.status)
	assert.EqualValues(t, 2, decodeEnvelope(t, w).Meta["count"])

	c, w = newGinContext(http.MethodGet, "/bank-transactions/missing", nil)
	c.Params = gin.Params{{Key: "id", Value: "missing"}}
	h.Get(c)
	assert.Equal(t, http.StatusNotFound, w.Code)

	c, w = newGinContext(http.MethodDelete, "/bank-transactions/bank-1/ignore", nil)
	c.Params = gin.Params{{Key: "id", Value: "bank-1"}}
	h.Restore(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, svc.ignored)
	assert.False(t, *svc.ignored)
}

type stubCollections struct {
	deletedBy string
}

func (s *stubCollections) Create(ctx context.Context, req dto.CreateCollectedPaymentRequest) (*models.CollectedPayment, error) {
	return &models.CollectedPayment{StudentID: req.StudentID}, nil
}

func (s *stubCollections) ListByMonth(ctx context.Context, month string) ([]models.CollectedPayment, error) {
	return nil, appErrors.ErrInvalidPeriod
}

func (s *stubCollections) Delete(ctx context.Context, id, actorID string) error {
	s.deletedBy = actorID
	return nil
}

func TestCollectionHandler(t *testing.T) {
	svc := &stubCollections{}
	h := NewCollectionHandler(svc)

	c, w := newGinContext(http.MethodPost, "/collected-payments", []byte(`{"studentId":"st-1","month":"2025-01","amount":"250000"}`))
	h.Create(c)
	assert.Equal(t, http.StatusCreated, w.Code)

	c, w = newGinContext(http.MethodGet, "/collected-payments?month=x", nil)
	h.List(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	c, w = newGinContext(http.MethodDelete, "/collected-payments/cp-1", nil)
	c.Params = gin.Params{{Key: "id", Value: "cp-1"}}
	h.Delete(c)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "admin-1", svc.deletedBy)
}

type stubSessions struct {
	cancelled *bool
}

func (s *stubSessions) Assign(ctx context.Context, req dto.AssignSessionRequest) (*dto.SessionAssignments, error) {
	return &dto.SessionAssignments{}, nil
}

func (s *stubSessions) SetCancelled(ctx context.Context, id string, cancelled bool) (*models.ClassSession, error) {
	s.cancelled = &cancelled
	return &models.ClassSession{ID: id}, nil
}

func TestSessionHandler(t *testing.T) {
	svc := &stubSessions{}
	h := NewSessionHandler(svc)

	c, w := newGinContext(http.MethodPost, "/sessions/assignments", []byte(`not json`))
	h.Assign(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	c, w = newGinContext(http.MethodPost, "/sessions/s-1/cancel", nil)
	c.Params = gin.Params{{Key: "id", Value: "s-1"}}
	h.Cancel(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, svc.cancelled)
	assert.True(t, *svc.cancelled)
}

func TestMetricsHandlerReady(t *testing.T) {
	h := NewMetricsHandler(nil, map[string]ReadinessCheck{
		"postgres": func(ctx context.Context) error { return nil },
		"redis":    func(ctx context.Context) error { return errors.New("connection refused") },
	})

	c, w := newGinContext(http.MethodGet, "/ready", nil)
	h.Ready(c)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "connection refused")

	c, w = newGinContext(http.MethodGet, "/metrics", nil)
	h.Prometheus(c)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
