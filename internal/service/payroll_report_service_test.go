package service

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/dojo-admin-api/internal/dto"
	"github.com/noah-isme/dojo-admin-api/internal/models"
	appErrors "github.com/noah-isme/dojo-admin-api/pkg/errors"
)

type stubPayrollReader struct {
	federations []dto.FederationLine
	instructors []dto.InstructorLine
	calls       int
	err         error
}

func (s *stubPayrollReader) ListCategories(ctx context.Context) ([]models.ClassCategory, error) {
	s.calls++
	return []models.ClassCategory{
		{ID: "cat-children", Code: "CHILDREN", Name: "Children"},
		{ID: "cat-morning", Code: "MORNING", Name: "Morning"},
	}, s.err
}

func (s *stubPayrollReader) ListFederationPayments(ctx context.Context, period models.Period) ([]dto.FederationLine, error) {
	return s.federations, nil
}

func (s *stubPayrollReader) ListInstructorPayments(ctx context.Context, period models.Period) ([]dto.InstructorLine, error) {
	return s.instructors, nil
}

type memorySummaryCache struct {
	entries map[string]dto.PayrollSummary
}

func (m *memorySummaryCache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	value, ok := m.entries[key]
	if !ok {
		return false, nil
	}
	*(dest.(*dto.PayrollSummary)) = value
	return true, nil
}

func (m *memorySummaryCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	m.entries[key] = *(value.(*dto.PayrollSummary))
	return nil
}

func newReportFixture() (*stubPayrollReader, *memorySummaryCache, *PayrollReportService) {
	bankID := "bank-1"
	reader := &stubPayrollReader{
		federations: []dto.FederationLine{
			{PaymentID: "fed-1", CategoryID: "cat-morning", TotalCollected: dec("1000000"), ShareAmount: dec("500000"), BankTransactionID: &bankID, IsPaid: true},
		},
		instructors: []dto.InstructorLine{
			{PaymentID: "p-a", CategoryID: "cat-morning", InstructorID: "A", InstructorName: "Aiko", Role: models.RoleLead, TotalClasses: 10, ShareAmount: dec("300000"), PaidAmount: dec("100000")},
			{PaymentID: "p-b", CategoryID: "cat-morning", InstructorID: "B", InstructorName: "Ben", Role: models.RoleAssistant, TotalClasses: 6, ShareAmount: dec("200000"), PaidAmount: dec("0")},
			{PaymentID: "p-x", CategoryID: "cat-unknown", InstructorID: "X", ShareAmount: dec("1")},
		},
	}
	cache := &memorySummaryCache{entries: map[string]dto.PayrollSummary{}}
	svc := NewPayrollReportService(reader, cache, time.Minute, "Dojo statement", nil)
	svc.now = func() time.Time { return time.Date(2025, 2, 3, 9, 0, 0, 0, time.UTC) }
	return reader, cache, svc
}

func TestPayrollSummaryGroupsByCategory(t *testing.T) {
	_, cache, svc := newReportFixture()

	summary, err := svc.Summary(context.Background(), "2025-01")
	require.NoError(t, err)
	require.Len(t, summary.Categories, 2)

	children := summary.Categories[0]
	assert.Nil(t, children.Federation)
	assert.Empty(t, children.Instructors)

	morning := summary.Categories[1]
	require.NotNil(t, morning.Federation)
	assert.Equal(t, models.PaymentPaid, morning.Federation.Status)
	require.Len(t, morning.Instructors, 2)
	assert.Equal(t, models.PaymentPartiallyPaid, morning.Instructors[0].Status)
	assert.True(t, morning.Instructors[0].Remaining.Equal(dec("200000")))
	assert.Equal(t, models.PaymentUnallocated, morning.Instructors[1].Status)
	assert.True(t, morning.InstructorTotal.Equal(dec("500000")))
	assert.True(t, morning.InstructorPaid.Equal(dec("100000")))

	assert.True(t, summary.FederationTotal.Equal(dec("500000")))
	assert.True(t, summary.InstructorTotal.Equal(dec("500000")))
	assert.True(t, summary.OutstandingPay.Equal(dec("400000")))
	assert.Contains(t, cache.entries, "payroll:summary:2025-01")
}

func TestPayrollSummaryServedFromCache(t *testing.T) {
	reader, _, svc := newReportFixture()

	_, err := svc.Summary(context.Background(), "2025-01")
	require.NoError(t, err)
	_, err = svc.Summary(context.Background(), "2025-01")
	require.NoError(t, err)

	assert.Equal(t, 1, reader.calls)
}

func TestPayrollSummaryErrors(t *testing.T) {
	reader, _, svc := newReportFixture()

	_, err := svc.Summary(context.Background(), "2025/01")
	assert.True(t, errors.Is(err, appErrors.ErrInvalidPeriod))

	reader.err = errors.New("db down")
	_, err = svc.Summary(context.Background(), "2025-03")
	assert.Equal(t, appErrors.ErrInternal.Code, appErrors.FromError(err).Code)
}

func TestPayrollExportCSV(t *testing.T) {
	_, _, svc := newReportFixture()

	result, err := svc.Export(context.Background(), "2025-01", dto.ExportCSV)
	require.NoError(t, err)
	assert.Equal(t, "payroll-2025-01.csv", result.Filename)
	assert.Equal(t, "text/csv", result.ContentType)

	body := string(result.Body)
	assert.Contains(t, body, "Federation\nCategory,Collected,Share,Status\nMORNING,1000000.00,500000.00,PAID\nTotal,,500000.00,\n")
	assert.Contains(t, body, "Instructors - Morning\n")
	assert.Contains(t, body, "Aiko,LEAD,10,300000.00,100000.00,200000.00,PARTIALLY_PAID\n")
	assert.True(t, strings.HasSuffix(body, "Total,,,500000.00,100000.00,400000.00,\n"))
}

func TestPayrollExportPDFAndUnsupportedFormat(t *testing.T) {
	_, _, svc := newReportFixture()

	result, err := svc.Export(context.Background(), "2025-01", dto.ExportPDF)
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", result.ContentType)
	assert.True(t, bytes.HasPrefix(result.Body, []byte("%PDF")))

	_, err = svc.Export(context.Background(), "2025-01", dto.ExportFormat("xlsx"))
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}
