package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/noah-isme/dojo-admin-api/internal/dto"
	"github.com/noah-isme/dojo-admin-api/internal/models"
	appErrors "github.com/noah-isme/dojo-admin-api/pkg/errors"
	"github.com/noah-isme/dojo-admin-api/pkg/jobs"
)

const payrollJobType = "payroll.run"

type payrollRunner interface {
	Run(ctx context.Context, req dto.RunRequest) (*dto.RunReport, error)
}

// PayrollJobService runs payroll computations on a background worker so HTTP
// triggers return immediately. Per-category failures are part of the report and
// never fail the job.
type PayrollJobService struct {
	queue *jobs.Queue
}

// NewPayrollJobService builds the queue backing asynchronous runs.
func NewPayrollJobService(runner payrollRunner, cfg jobs.QueueConfig) *PayrollJobService {
	handler := func(ctx context.Context, job jobs.Job) (interface{}, error) {
		req, ok := job.Payload.(dto.RunRequest)
		if !ok {
			return nil, fmt.Errorf("unexpected payroll payload %T", job.Payload)
		}
		return runner.Run(ctx, req)
	}
	return &PayrollJobService{queue: jobs.NewQueue("payroll", handler, cfg)}
}

// Start launches the workers.
func (s *PayrollJobService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop waits for the workers to exit.
func (s *PayrollJobService) Stop() {
	s.queue.Stop()
}

// Enqueue validates the month and schedules a run.
func (s *PayrollJobService) Enqueue(req dto.RunRequest) (*dto.PayrollJobResponse, error) {
	period, err := models.ParsePeriod(req.Month)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInvalidPeriod.Code, appErrors.ErrInvalidPeriod.Status, appErrors.ErrInvalidPeriod.Message)
	}
	req.Month = period.String()

	job := jobs.Job{ID: uuid.NewString(), Type: payrollJobType, Payload: req}
	if err := s.queue.Enqueue(job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue payroll run")
	}
	return &dto.PayrollJobResponse{
		JobID:       job.ID,
		Month:       req.Month,
		Recalculate: req.Recalculate,
		State:       string(jobs.StateQueued),
	}, nil
}

// Status returns the state of a queued run, including its report once finished.
func (s *PayrollJobService) Status(id string) (*jobs.Status, error) {
	status, ok := s.queue.Status(id)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "payroll job not found")
	}
	return &status, nil
}
