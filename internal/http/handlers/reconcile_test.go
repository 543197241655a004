package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TCaken/loancrm/internal/reconcile"
)

type fakeRunner struct {
	lastReq reconcile.Request
	summary *reconcile.Summary
	err     error
}

func (f *fakeRunner) Run(_ context.Context, req reconcile.Request) (*reconcile.Summary, error) {
	f.lastReq = req
	return f.summary, f.err
}

type fakePublisher struct {
	lastReq reconcile.Request
	jobID   string
	err     error
}

func (f *fakePublisher) Publish(_ context.Context, req reconcile.Request) (string, error) {
	f.lastReq = req
	return f.jobID, f.err
}

type fakeJobReader struct {
	jobs map[string]*reconcile.JobRecord
}

func (f *fakeJobReader) GetJob(_ context.Context, jobID string) (*reconcile.JobRecord, error) {
	job, ok := f.jobs[jobID]
	if !ok {
		return nil, reconcile.ErrJobNotFound
	}
	return job, nil
}

type fakeSink struct {
	stored []*reconcile.Summary
}

func (f *fakeSink) Put(_ context.Context, sum *reconcile.Summary) error {
	f.stored = append(f.stored, sum)
	return nil
}

func TestRunPassReturnsSummaryAndCachesIt(t *testing.T) {
	runner := &fakeRunner{summary: &reconcile.Summary{
		Mode:       reconcile.ModeRealtime,
		TargetDate: "2025-03-10",
		Processed:  2,
		Updated:    1,
		Errors:     1,
	}}
	sink := &fakeSink{}
	h := NewReconcileHandler(runner, nil, nil, sink, nil, 2.5, 4, nil)

	body := `{"rows":[{"mobile_number":"91234567","outcome_code":"P","reported_date":"10/3/25"},{"mobile_number":"garbage"}]}`
	req := httptest.NewRequest(http.MethodPost, "/reconcile/run", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.RunPass(rec, req)

	// Row errors still produce a 200; the summary carries them.
	require.Equal(t, http.StatusOK, rec.Code)

	var sum reconcile.Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sum))
	assert.Equal(t, 2, sum.Processed)
	assert.Equal(t, 1, sum.Errors)

	// Mode defaults to realtime with the realtime threshold.
	assert.Equal(t, reconcile.ModeRealtime, runner.lastReq.Mode)
	assert.InDelta(t, 2.5, runner.lastReq.ThresholdHours, 0.001)
	assert.Len(t, runner.lastReq.Rows, 2)

	require.Len(t, sink.stored, 1)
	assert.Equal(t, "2025-03-10", sink.stored[0].TargetDate)
}

func TestRunPassEndOfDayUsesEODThreshold(t *testing.T) {
	runner := &fakeRunner{summary: &reconcile.Summary{Mode: reconcile.ModeEndOfDay}}
	h := NewReconcileHandler(runner, nil, nil, nil, nil, 2.5, 4, nil)

	body := `{"mode":"end_of_day","rows":[]}`
	req := httptest.NewRequest(http.MethodPost, "/reconcile/run", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.RunPass(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, reconcile.ModeEndOfDay, runner.lastReq.Mode)
	assert.InDelta(t, 4, runner.lastReq.ThresholdHours, 0.001)
}

func TestRunPassRejectsBadBody(t *testing.T) {
	h := NewReconcileHandler(&fakeRunner{}, nil, nil, nil, nil, 0, 0, nil)

	req := httptest.NewRequest(http.MethodPost, "/reconcile/run", bytes.NewReader([]byte("not json")))
	rec := httptest.NewRecorder()
	h.RunPass(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRunPassReportsEngineFailure(t *testing.T) {
	h := NewReconcileHandler(&fakeRunner{err: errors.New("db down")}, nil, nil, nil, nil, 0, 0, nil)

	req := httptest.NewRequest(http.MethodPost, "/reconcile/run", strings.NewReader(`{"rows":[]}`))
	rec := httptest.NewRecorder()
	h.RunPass(rec, req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestEnqueuePassReturnsJobID(t *testing.T) {
	pub := &fakePublisher{jobID: "job-123"}
	h := NewReconcileHandler(&fakeRunner{}, pub, nil, nil, nil, 0, 0, nil)

	body := `{"mode":"realtime","rows":[{"mobile_number":"91234567"}]}`
	req := httptest.NewRequest(http.MethodPost, "/reconcile/jobs", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.EnqueuePass(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "job-123", resp["job_id"])
	assert.Equal(t, "pending", resp["status"])
	assert.Len(t, pub.lastReq.Rows, 1)
}

func TestEnqueuePassWithoutPublisherIsUnavailable(t *testing.T) {
	h := NewReconcileHandler(&fakeRunner{}, nil, nil, nil, nil, 0, 0, nil)

	req := httptest.NewRequest(http.MethodPost, "/reconcile/jobs", strings.NewReader(`{"rows":[]}`))
	rec := httptest.NewRecorder()
	h.EnqueuePass(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestJobStatus(t *testing.T) {
	jobs := &fakeJobReader{jobs: map[string]*reconcile.JobRecord{
		"job-1": {JobID: "job-1", Status: reconcile.JobStatusCompleted, Summary: &reconcile.Summary{Processed: 3}},
	}}
	h := NewReconcileHandler(&fakeRunner{}, nil, jobs, nil, nil, 0, 0, nil)

	r := chi.NewRouter()
	r.Get("/reconcile/jobs/{jobID}", h.JobStatus)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/reconcile/jobs/job-1", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var job reconcile.JobRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	assert.Equal(t, reconcile.JobStatusCompleted, job.Status)
	require.NotNil(t, job.Summary)
	assert.Equal(t, 3, job.Summary.Processed)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/reconcile/jobs/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
