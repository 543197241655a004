package reconcileworker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TCaken/loancrm/internal/reconcile"
)

type fakeRunner struct {
	mu   sync.Mutex
	reqs []reconcile.Request
	err  error
}

func (r *fakeRunner) Run(_ context.Context, req reconcile.Request) (*reconcile.Summary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reqs = append(r.reqs, req)
	if r.err != nil {
		return nil, r.err
	}
	return &reconcile.Summary{Mode: req.Mode, Processed: len(req.Rows)}, nil
}

type fakeJobs struct {
	mu        sync.Mutex
	completed map[string]*reconcile.Summary
	failed    map[string]string
}

func newFakeJobs() *fakeJobs {
	return &fakeJobs{completed: make(map[string]*reconcile.Summary), failed: make(map[string]string)}
}

func (j *fakeJobs) MarkCompleted(_ context.Context, jobID string, sum *reconcile.Summary) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.completed[jobID] = sum
	return nil
}

func (j *fakeJobs) MarkFailed(_ context.Context, jobID, msg string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.failed[jobID] = msg
	return nil
}

func enqueue(t *testing.T, q *reconcile.MemoryQueue, payload reconcile.JobPayload) {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	require.NoError(t, q.Send(context.Background(), string(body)))
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestWorkerRunsJobAndRecordsSummary(t *testing.T) {
	queue := reconcile.NewMemoryQueue(4)
	runner := &fakeRunner{}
	jobs := newFakeJobs()

	w := New(runner, queue, jobs, nil, WithWorkerCount(1), WithReceiveWaitSeconds(1))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	enqueue(t, queue, reconcile.JobPayload{
		JobID:   "job-1",
		Request: reconcile.Request{Mode: reconcile.ModeRealtime},
	})

	waitFor(t, func() bool {
		jobs.mu.Lock()
		defer jobs.mu.Unlock()
		return len(jobs.completed) == 1
	})

	cancel()
	w.Wait()

	jobs.mu.Lock()
	defer jobs.mu.Unlock()
	require.Contains(t, jobs.completed, "job-1")
	assert.Equal(t, reconcile.ModeRealtime, jobs.completed["job-1"].Mode)
}

func TestWorkerMarksFailedOnEngineError(t *testing.T) {
	queue := reconcile.NewMemoryQueue(4)
	runner := &fakeRunner{err: errors.New("bad mode")}
	jobs := newFakeJobs()

	w := New(runner, queue, jobs, nil, WithWorkerCount(1), WithReceiveWaitSeconds(1))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	enqueue(t, queue, reconcile.JobPayload{JobID: "job-2", Request: reconcile.Request{Mode: "weekly"}})

	waitFor(t, func() bool {
		jobs.mu.Lock()
		defer jobs.mu.Unlock()
		return len(jobs.failed) == 1
	})

	cancel()
	w.Wait()

	jobs.mu.Lock()
	defer jobs.mu.Unlock()
	assert.Equal(t, "bad mode", jobs.failed["job-2"])
}

func TestWorkerDropsMalformedPayload(t *testing.T) {
	queue := reconcile.NewMemoryQueue(4)
	runner := &fakeRunner{}
	jobs := newFakeJobs()

	w := New(runner, queue, jobs, nil, WithWorkerCount(1), WithReceiveWaitSeconds(1))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	require.NoError(t, queue.Send(context.Background(), "{not json"))
	enqueue(t, queue, reconcile.JobPayload{JobID: "job-3", Request: reconcile.Request{Mode: reconcile.ModeEndOfDay}})

	waitFor(t, func() bool {
		jobs.mu.Lock()
		defer jobs.mu.Unlock()
		return len(jobs.completed) == 1
	})

	cancel()
	w.Wait()

	runner.mu.Lock()
	defer runner.mu.Unlock()
	require.Len(t, runner.reqs, 1)
	assert.Equal(t, reconcile.ModeEndOfDay, runner.reqs[0].Mode)
}
