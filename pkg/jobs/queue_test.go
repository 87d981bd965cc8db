package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueRecordsSuccessResult(t *testing.T) {
	q := NewQueue("test", func(ctx context.Context, job Job) (interface{}, error) {
		return "done:" + job.ID, nil
	}, QueueConfig{})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "job-1", Type: "payroll"}))

	require.Eventually(t, func() bool {
		status, ok := q.Status("job-1")
		return ok && status.State == StateSucceeded
	}, time.Second, 5*time.Millisecond)

	status, _ := q.Status("job-1")
	assert.Equal(t, "done:job-1", status.Result)
	assert.Equal(t, "payroll", status.Type)
	assert.NotNil(t, status.FinishedAt)
}

func TestQueueRetriesThenFails(t *testing.T) {
	var calls int32
	q := NewQueue("test", func(ctx context.Context, job Job) (interface{}, error) {
		atomic.AddInt32(&calls, 1)
		return nil, errors.New("boom")
	}, QueueConfig{MaxRetries: 2, RetryDelay: time.Millisecond})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "job-2"}))

	require.Eventually(t, func() bool {
		status, ok := q.Status("job-2")
		return ok && status.State == StateFailed
	}, time.Second, 5*time.Millisecond)

	status, _ := q.Status("job-2")
	assert.Equal(t, "boom", status.Error)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestQueueRejectsBeforeStart(t *testing.T) {
	q := NewQueue("test", func(ctx context.Context, job Job) (interface{}, error) { return nil, nil }, QueueConfig{})

	err := q.Enqueue(Job{ID: "job-3"})
	assert.Error(t, err)
	_, ok := q.Status("job-3")
	assert.False(t, ok)
}

func TestQueueRequiresJobID(t *testing.T) {
	q := NewQueue("test", func(ctx context.Context, job Job) (interface{}, error) { return nil, nil }, QueueConfig{})
	q.Start(context.Background())
	defer q.Stop()

	assert.Error(t, q.Enqueue(Job{}))
}

func TestQueueTrimsFinishedHistory(t *testing.T) {
	q := NewQueue("test", func(ctx context.Context, job Job) (interface{}, error) { return nil, nil }, QueueConfig{HistoryLimit: 1})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "a"}))
	require.Eventually(t, func() bool {
		status, ok := q.Status("a")
		return ok && status.State == StateSucceeded
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, q.Enqueue(Job{ID: "b"}))
	require.Eventually(t, func() bool {
		status, ok := q.Status("b")
		return ok && status.State == StateSucceeded
	}, time.Second, 5*time.Millisecond)

	_, ok := q.Status("a")
	assert.False(t, ok)
}
