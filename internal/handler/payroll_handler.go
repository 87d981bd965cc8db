package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/dojo-admin-api/internal/dto"
	"github.com/noah-isme/dojo-admin-api/internal/middleware"
	appErrors "github.com/noah-isme/dojo-admin-api/pkg/errors"
	"github.com/noah-isme/dojo-admin-api/pkg/jobs"
	"github.com/noah-isme/dojo-admin-api/pkg/response"
)

type payrollRunner interface {
	Run(ctx context.Context, req dto.RunRequest) (*dto.RunReport, error)
}

type payrollQueue interface {
	Enqueue(req dto.RunRequest) (*dto.PayrollJobResponse, error)
	Status(id string) (*jobs.Status, error)
}

type payrollReporter interface {
	Summary(ctx context.Context, month string) (*dto.PayrollSummary, error)
	Export(ctx context.Context, month string, format dto.ExportFormat) (*dto.ExportResult, error)
}

// PayrollHandler exposes payroll computation and reporting endpoints.
type PayrollHandler struct {
	runner  payrollRunner
	queue   payrollQueue
	reports payrollReporter
}

// NewPayrollHandler constructs a payroll handler. queue may be nil to disable async runs.
func NewPayrollHandler(runner payrollRunner, queue payrollQueue, reports payrollReporter) *PayrollHandler {
	return &PayrollHandler{runner: runner, queue: queue, reports: reports}
}

// Run godoc
// @Summary Compute monthly payroll
// @Description Computes federation and instructor payments for every category. Categories with reconciled records are reported as BLOCKED.
// @Tags Payroll
// @Produce json
// @Param month path string true "Month (YYYY-MM)"
// @Param async query bool false "Queue the run in the background"
// @Success 200 {object} response.Envelope
// @Success 202 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /payroll/runs/{month} [post]
func (h *PayrollHandler) Run(c *gin.Context) {
	h.run(c, false)
}

// Recalculate godoc
// @Summary Force payroll recalculation
// @Description Deletes the month's payment records, including reconciled ones, and computes them again.
// @Tags Payroll
// @Produce json
// @Param month path string true "Month (YYYY-MM)"
// @Param async query bool false "Queue the run in the background"
// @Success 200 {object} response.Envelope
// @Success 202 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /payroll/runs/{month}/recalculate [post]
func (h *PayrollHandler) Recalculate(c *gin.Context) {
	h.run(c, true)
}

func (h *PayrollHandler) run(c *gin.Context, recalculate bool) {
	ip, userAgent := clientMeta(c)
	req := dto.RunRequest{
		Month:       c.Param("month"),
		Recalculate: recalculate,
		ActorID:     actorID(c),
		IPAddress:   ip,
		UserAgent:   userAgent,
	}

	async, _ := strconv.ParseBool(c.Query("async"))
	if async {
		if h.queue == nil {
			response.Error(c, appErrors.Clone(appErrors.ErrPreconditionFailed, "background payroll runs are disabled"))
			return
		}
		job, err := h.queue.Enqueue(req)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.Accepted(c, job)
		return
	}

	report, err := h.runner.Run(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	counts := make(map[string]int)
	for status, n := range report.Counts() {
		counts[string(status)] = n
	}
	middleware.SetMeta(c, "blocked", report.Blocked())
	middleware.SetMeta(c, "failed", report.Failed())
	middleware.SetMeta(c, "outcomes", counts)
	response.JSON(c, http.StatusOK, report, middleware.ExtractMeta(c))
}

// JobStatus godoc
// @Summary Background payroll run status
// @Tags Payroll
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /payroll/jobs/{id} [get]
func (h *PayrollHandler) JobStatus(c *gin.Context) {
	if h.queue == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "payroll job not found"))
		return
	}
	status, err := h.queue.Status(c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status, nil)
}

// Summary godoc
// @Summary Monthly payroll summary
// @Tags Payroll
// @Produce json
// @Param month path string true "Month (YYYY-MM)"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /payroll/{month} [get]
func (h *PayrollHandler) Summary(c *gin.Context) {
	summary, err := h.reports.Summary(c.Request.Context(), c.Param("month"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, middleware.ExtractMeta(c))
}

// Export godoc
// @Summary Download monthly payroll statement
// @Tags Payroll
// @Produce text/csv
// @Produce application/pdf
// @Param month path string true "Month (YYYY-MM)"
// @Param format query string false "csv or pdf" default(csv)
// @Success 200 {file} file
// @Failure 400 {object} response.Envelope
// @Router /payroll/{month}/export [get]
func (h *PayrollHandler) Export(c *gin.Context) {
	format := dto.ExportFormat(c.DefaultQuery("format", string(dto.ExportCSV)))
	result, err := h.reports.Export(c.Request.Context(), c.Param("month"), format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, result.Filename, result.ContentType, result.Body)
}
