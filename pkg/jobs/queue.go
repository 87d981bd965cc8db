package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// State describes where a job is in its lifecycle.
type State string

const (
	StateQueued    State = "QUEUED"
	StateRunning   State = "RUNNING"
	StateRetrying  State = "RETRYING"
	StateSucceeded State = "SUCCEEDED"
	StateFailed    State = "FAILED"
)

// Job represents a queued background task.
type Job struct {
	ID       string
	Type     string
	Payload  interface{}
	Attempt  int
	Enqueued time.Time
}

// Status is the externally visible snapshot of a job.
type Status struct {
	ID         string      `json:"id"`
	Type       string      `json:"type"`
	State      State       `json:"state"`
	Attempt    int         `json:"attempt"`
	Error      string      `json:"error,omitempty"`
	Result     interface{} `json:"result,omitempty"`
	EnqueuedAt time.Time   `json:"enqueued_at"`
	FinishedAt *time.Time  `json:"finished_at,omitempty"`
}

// Handler processes a job. The returned result is kept on the job status.
type Handler func(context.Context, Job) (interface{}, error)

// QueueConfig configures worker pool behaviour.
type QueueConfig struct {
	Workers    int
	BufferSize int
	MaxRetries int
	RetryDelay time.Duration
	// HistoryLimit bounds how many finished statuses are remembered.
	HistoryLimit int
	Logger       *zap.Logger
}

// Queue is a lightweight in-memory job dispatcher backed by goroutines.
type Queue struct {
	name    string
	handler Handler

	workers      int
	maxRetries   int
	retryDelay   time.Duration
	historyLimit int
	logger       *zap.Logger

	jobs    chan Job
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	started bool

	statuses map[string]*Status
	finished []string
}

// NewQueue builds a new queue with the provided handler.
func NewQueue(name string, handler Handler, cfg QueueConfig) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = cfg.Workers * 4
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 100
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Queue{
		name:         name,
		handler:      handler,
		workers:      cfg.Workers,
		maxRetries:   cfg.MaxRetries,
		retryDelay:   cfg.RetryDelay,
		historyLimit: cfg.HistoryLimit,
		logger:       cfg.Logger,
		jobs:         make(chan Job, cfg.BufferSize),
		statuses:     make(map[string]*Status),
	}
}

// Start begins worker consumption. Safe to call once.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return
	}
	q.ctx, q.cancel = context.WithCancel(ctx)
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
	q.started = true
	q.logger.Sugar().Infow("queue started", "queue", q.name, "workers", q.workers)
}

// Stop cancels workers and waits for them to exit.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.started {
		q.mu.Unlock()
		return
	}
	q.cancel()
	q.mu.Unlock()
	q.wg.Wait()
	q.logger.Sugar().Infow("queue stopped", "queue", q.name)
}

// Enqueue pushes a job onto the queue.
func (q *Queue) Enqueue(job Job) error {
	if job.ID == "" {
		return fmt.Errorf("queue %s: job id required", q.name)
	}

	q.mu.Lock()
	ctx := q.ctx
	started := q.started
	if started {
		if job.Enqueued.IsZero() {
			job.Enqueued = time.Now().UTC()
		}
		state := StateQueued
		if job.Attempt > 0 {
			state = StateRetrying
		}
		q.setStatusLocked(job, state, nil, nil)
	}
	q.mu.Unlock()

	if !started {
		return fmt.Errorf("queue %s not started", q.name)
	}

	select {
	case <-ctx.Done():
		return fmt.Errorf("queue %s stopped: %w", q.name, ctx.Err())
	case q.jobs <- job:
		return nil
	}
}

// Status returns a copy of the last known status of a job.
func (q *Queue) Status(id string) (Status, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	status, ok := q.statuses[id]
	if !ok {
		return Status{}, false
	}
	return *status, true
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for {
		select {
		case <-q.ctx.Done():
			return
		case job := <-q.jobs:
			q.mu.Lock()
			q.setStatusLocked(job, StateRunning, nil, nil)
			q.mu.Unlock()

			result, err := q.handler(q.ctx, job)
			if err != nil {
				q.handleFailure(job, err)
				continue
			}
			q.mu.Lock()
			q.setStatusLocked(job, StateSucceeded, result, nil)
			q.mu.Unlock()
		}
	}
}

func (q *Queue) handleFailure(job Job, err error) {
	job.Attempt++
	if job.Attempt > q.maxRetries {
		q.mu.Lock()
		q.setStatusLocked(job, StateFailed, nil, err)
		q.mu.Unlock()
		q.logger.Sugar().Errorw("job exceeded retries", "queue", q.name, "job_id", job.ID, "type", job.Type, "error", err)
		return
	}
	q.mu.Lock()
	q.setStatusLocked(job, StateRetrying, nil, err)
	q.mu.Unlock()
	q.logger.Sugar().Warnw("job failed, retrying", "queue", q.name, "job_id", job.ID, "type", job.Type, "attempt", job.Attempt, "error", err)

	go func(j Job) {
		timer := time.NewTimer(q.retryDelay)
		defer timer.Stop()
		select {
		case <-q.ctx.Done():
			return
		case <-timer.C:
			if err := q.Enqueue(j); err != nil {
				q.logger.Sugar().Errorw("failed to requeue job", "queue", q.name, "job_id", j.ID, "error", err)
			}
		}
	}(job)
}

// setStatusLocked must be called with q.mu held.
func (q *Queue) setStatusLocked(job Job, state State, result interface{}, err error) {
	status, ok := q.statuses[job.ID]
	if !ok {
		status = &Status{ID: job.ID, Type: job.Type, EnqueuedAt: job.Enqueued}
		q.statuses[job.ID] = status
	}
	status.State = state
	status.Attempt = job.Attempt
	status.Error = ""
	if err != nil {
		status.Error = err.Error()
	}
	if result != nil {
		status.Result = result
	}
	if state == StateSucceeded || state == StateFailed {
		now := time.Now().UTC()
		status.FinishedAt = &now
		q.finished = append(q.finished, job.ID)
		for len(q.finished) > q.historyLimit {
			delete(q.statuses, q.finished[0])
			q.finished = q.finished[1:]
		}
	}
}
