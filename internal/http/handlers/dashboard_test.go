package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TCaken/loancrm/internal/appointment"
	"github.com/TCaken/loancrm/internal/clock"
	"github.com/TCaken/loancrm/internal/observability/metrics"
	"github.com/TCaken/loancrm/internal/reconcile"
	"github.com/TCaken/loancrm/internal/timeslot"
)

type fakeCounter struct {
	counts map[appointment.Kind]map[string]int
	err    error
}

func (f *fakeCounter) CountByStatusOnDate(_ context.Context, kind appointment.Kind, _ time.Time) (map[string]int, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.counts[kind], nil
}

type fakeSlotLister struct {
	slots []timeslot.Timeslot
	err   error
}

func (f *fakeSlotLister) ListByDate(_ context.Context, _ time.Time) ([]timeslot.Timeslot, error) {
	return f.slots, f.err
}

type fakeSummaryReader struct {
	summaries map[reconcile.Mode]*reconcile.Summary
}

func (f *fakeSummaryReader) Get(_ context.Context, mode reconcile.Mode, _ string) (*reconcile.Summary, error) {
	return f.summaries[mode], nil
}

func TestGetDashboard(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewEngineMetrics(reg)
	m.ObservePassLatency("realtime", 0.2)
	m.ObservePassLatency("realtime", 0.4)

	counter := &fakeCounter{counts: map[appointment.Kind]map[string]int{
		appointment.KindLead:     {"upcoming": 3, "done": 5, "missed": 1},
		appointment.KindBorrower: {"done": 2},
	}}
	slots := &fakeSlotLister{slots: []timeslot.Timeslot{
		{ID: uuid.New(), MaxCapacity: 4, OccupiedCount: 4},
		{ID: uuid.New(), MaxCapacity: 4, OccupiedCount: 1},
	}}
	reader := &fakeSummaryReader{summaries: map[reconcile.Mode]*reconcile.Summary{
		reconcile.ModeRealtime: {Mode: reconcile.ModeRealtime, TargetDate: "2025-03-10", Processed: 8},
	}}

	clk := clock.Frozen{Instant: time.Date(2025, 3, 10, 4, 0, 0, 0, time.UTC)}
	h := NewDashboardHandler(counter, slots, reader, reg, clk, clock.NewLocation("Asia/Singapore", 8), nil)

	rec := httptest.NewRecorder()
	h.GetDashboard(rec, httptest.NewRequest(http.MethodGet, "/dashboard", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp DashboardResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	assert.Equal(t, "2025-03-10", resp.Date)
	assert.Equal(t, 5, resp.Funnel["lead"]["done"])
	assert.Equal(t, 2, resp.Funnel["borrower"]["done"])

	assert.Equal(t, 2, resp.Occupancy.SlotCount)
	assert.Equal(t, 8, resp.Occupancy.TotalCapacity)
	assert.Equal(t, 5, resp.Occupancy.TotalOccupied)
	assert.Equal(t, 1, resp.Occupancy.FullSlots)

	require.Contains(t, resp.PassSummaries, "realtime")
	assert.Equal(t, 8, resp.PassSummaries["realtime"].Processed)
	assert.NotContains(t, resp.PassSummaries, "end_of_day")

	require.Len(t, resp.PassLatency, 1)
	assert.Equal(t, "realtime", resp.PassLatency[0].Mode)
	assert.Equal(t, uint64(2), resp.PassLatency[0].Passes)
	assert.InDelta(t, 300, resp.PassLatency[0].AvgLatencyMs, 0.1)
}

func TestGetDashboardRejectsBadDate(t *testing.T) {
	h := NewDashboardHandler(&fakeCounter{}, &fakeSlotLister{}, nil, prometheus.NewRegistry(), nil, nil, nil)

	rec := httptest.NewRecorder()
	h.GetDashboard(rec, httptest.NewRequest(http.MethodGet, "/dashboard?date=10-03-2025", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetDashboardFunnelFailure(t *testing.T) {
	counter := &fakeCounter{err: errors.New("db down")}
	h := NewDashboardHandler(counter, &fakeSlotLister{}, nil, prometheus.NewRegistry(), nil, nil, nil)

	rec := httptest.NewRecorder()
	h.GetDashboard(rec, httptest.NewRequest(http.MethodGet, "/dashboard?date=2025-03-10", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
