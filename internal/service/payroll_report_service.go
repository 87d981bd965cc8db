package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/noah-isme/dojo-admin-api/internal/dto"
	"github.com/noah-isme/dojo-admin-api/internal/models"
	appErrors "github.com/noah-isme/dojo-admin-api/pkg/errors"
	"github.com/noah-isme/dojo-admin-api/pkg/export"
)

type payrollReader interface {
	ListCategories(ctx context.Context) ([]models.ClassCategory, error)
	ListFederationPayments(ctx context.Context, period models.Period) ([]dto.FederationLine, error)
	ListInstructorPayments(ctx context.Context, period models.Period) ([]dto.InstructorLine, error)
}

type summaryCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

type documentRenderer interface {
	Render(doc export.Document) ([]byte, error)
}

func payrollSummaryCacheKey(period models.Period) string {
	return "payroll:summary:" + period.String()
}

// PayrollReportService builds the monthly payroll read model and its statements.
type PayrollReportService struct {
	reader    payrollReader
	cache     summaryCache
	ttl       time.Duration
	title     string
	renderers map[dto.ExportFormat]documentRenderer
	logger    *zap.Logger
	now       func() time.Time
}

// NewPayrollReportService constructs a PayrollReportService. cache may be nil.
func NewPayrollReportService(reader payrollReader, cache summaryCache, ttl time.Duration, title string, logger *zap.Logger) *PayrollReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if title == "" {
		title = "Payroll statement"
	}
	return &PayrollReportService{
		reader: reader,
		cache:  cache,
		ttl:    ttl,
		title:  title,
		renderers: map[dto.ExportFormat]documentRenderer{
			dto.ExportCSV: export.NewCSVExporter(),
			dto.ExportPDF: export.NewPDFExporter(),
		},
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Summary returns every federation and instructor record of the month grouped by category.
func (s *PayrollReportService) Summary(ctx context.Context, month string) (*dto.PayrollSummary, error) {
	period, err := models.ParsePeriod(month)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInvalidPeriod.Code, appErrors.ErrInvalidPeriod.Status, appErrors.ErrInvalidPeriod.Message)
	}

	key := payrollSummaryCacheKey(period)
	if s.cache != nil {
		var cached dto.PayrollSummary
		hit, err := s.cache.Get(ctx, key, &cached)
		if err != nil {
			s.logger.Warn("payroll summary cache read failed", zap.String("key", key), zap.Error(err))
		}
		if hit {
			return &cached, nil
		}
	}

	summary, err := s.buildSummary(ctx, period)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, summary, s.ttl); err != nil {
			s.logger.Warn("payroll summary cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return summary, nil
}

func (s *PayrollReportService) buildSummary(ctx context.Context, period models.Period) (*dto.PayrollSummary, error) {
	categories, err := s.reader.ListCategories(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list class categories")
	}
	federations, err := s.reader.ListFederationPayments(ctx, period)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list federation payments")
	}
	instructors, err := s.reader.ListInstructorPayments(ctx, period)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list instructor payments")
	}

	summary := &dto.PayrollSummary{
		Month:           period.String(),
		Categories:      make([]dto.CategorySummary, 0, len(categories)),
		FederationTotal: decimal.Zero,
		InstructorTotal: decimal.Zero,
		OutstandingPay:  decimal.Zero,
		GeneratedAt:     s.now(),
	}

	index := make(map[string]int, len(categories))
	for _, category := range categories {
		index[category.ID] = len(summary.Categories)
		summary.Categories = append(summary.Categories, dto.CategorySummary{
			CategoryID:      category.ID,
			CategoryCode:    category.Code,
			CategoryName:    category.Name,
			Instructors:     []dto.InstructorLine{},
			InstructorTotal: decimal.Zero,
			InstructorPaid:  decimal.Zero,
		})
	}

	for _, line := range federations {
		i, ok := index[line.CategoryID]
		if !ok {
			continue
		}
		line := line
		line.Status = models.MonthlyFederationPayment{IsPaid: line.IsPaid, BankTransactionID: line.BankTransactionID}.Status()
		summary.Categories[i].Federation = &line
		summary.FederationTotal = summary.FederationTotal.Add(line.ShareAmount)
		if line.Status != models.PaymentPaid {
			summary.OutstandingPay = summary.OutstandingPay.Add(line.ShareAmount)
		}
	}

	for _, line := range instructors {
		i, ok := index[line.CategoryID]
		if !ok {
			continue
		}
		record := models.MonthlyInstructorPayment{ShareAmount: line.ShareAmount, PaidAmount: line.PaidAmount, IsPaid: line.IsPaid}
		line.Remaining = record.Remaining()
		line.Status = record.Status()
		category := &summary.Categories[i]
		category.Instructors = append(category.Instructors, line)
		category.InstructorTotal = category.InstructorTotal.Add(line.ShareAmount)
		category.InstructorPaid = category.InstructorPaid.Add(line.PaidAmount)
		summary.InstructorTotal = summary.InstructorTotal.Add(line.ShareAmount)
		summary.OutstandingPay = summary.OutstandingPay.Add(line.Remaining)
	}

	return summary, nil
}

// Export renders the month's statement as CSV or PDF.
func (s *PayrollReportService) Export(ctx context.Context, month string, format dto.ExportFormat) (*dto.ExportResult, error) {
	renderer, ok := s.renderers[format]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}
	summary, err := s.Summary(ctx, month)
	if err != nil {
		return nil, err
	}

	body, err := renderer.Render(statementDocument(s.title, summary))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render payroll statement")
	}

	contentType := "text/csv"
	if format == dto.ExportPDF {
		contentType = "application/pdf"
	}
	return &dto.ExportResult{
		Filename:    fmt.Sprintf("payroll-%s.%s", summary.Month, format),
		ContentType: contentType,
		Body:        body,
	}, nil
}

func statementDocument(title string, summary *dto.PayrollSummary) export.Document {
	federation := export.Table{
		Title:   "Federation",
		Headers: []string{"Category", "Collected", "Share", "Status"},
	}
	doc := export.Document{
		Title:    title,
		Subtitle: "Month " + summary.Month + ", generated " + summary.GeneratedAt.Format(time.RFC3339),
	}

	for _, category := range summary.Categories {
		if category.Federation != nil {
			federation.Rows = append(federation.Rows, []string{
				category.CategoryCode,
				money(category.Federation.TotalCollected),
				money(category.Federation.ShareAmount),
				string(category.Federation.Status),
			})
		}
	}
	federation.Footer = []string{"Total", "", money(summary.FederationTotal), ""}
	doc.Tables = append(doc.Tables, federation)

	for _, category := range summary.Categories {
		if len(category.Instructors) == 0 {
			continue
		}
		table := export.Table{
			Title:   "Instructors - " + category.CategoryName,
			Headers: []string{"Instructor", "Role", "Classes", "Share", "Paid", "Remaining", "Status"},
		}
		remaining := decimal.Zero
		for _, line := range category.Instructors {
			remaining = remaining.Add(line.Remaining)
			table.Rows = append(table.Rows, []string{
				line.InstructorName,
				string(line.Role),
				strconv.Itoa(line.TotalClasses),
				money(line.ShareAmount),
				money(line.PaidAmount),
				money(line.Remaining),
				string(line.Status),
			})
		}
		table.Footer = []string{"Total", "", "", money(category.InstructorTotal), money(category.InstructorPaid), money(remaining), ""}
		doc.Tables = append(doc.Tables, table)
	}
	return doc
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}
