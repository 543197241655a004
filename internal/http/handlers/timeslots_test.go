package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TCaken/loancrm/internal/clock"
	"github.com/TCaken/loancrm/internal/timeslot"
)

func TestListTimeslots(t *testing.T) {
	slots := &fakeSlotLister{slots: []timeslot.Timeslot{
		{ID: uuid.New(), StartTime: "09:00", EndTime: "10:00", MaxCapacity: 4, OccupiedCount: 1},
		{ID: uuid.New(), StartTime: "10:00", EndTime: "11:00", MaxCapacity: 4, OccupiedCount: 5},
	}}
	h := NewTimeslotsHandler(slots, nil, nil, nil)

	rec := httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/timeslots?date=2025-03-10", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp TimeslotsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "2025-03-10", resp.Date)
	require.Len(t, resp.Slots, 2)
	assert.Equal(t, 3, resp.Slots[0].Remaining)
	// Overbooked slots report negative remaining capacity.
	assert.Equal(t, -1, resp.Slots[1].Remaining)
}

func TestListTimeslotsDefaultsToToday(t *testing.T) {
	slots := &fakeSlotLister{}
	clk := clock.Frozen{Instant: time.Date(2025, 3, 9, 20, 0, 0, 0, time.UTC)} // 10 Mar 04:00 SGT
	h := NewTimeslotsHandler(slots, clk, clock.NewLocation("Asia/Singapore", 8), nil)

	rec := httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/timeslots", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp TimeslotsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "2025-03-10", resp.Date)
	assert.Empty(t, resp.Slots)
}

func TestListTimeslotsRejectsBadDate(t *testing.T) {
	h := NewTimeslotsHandler(&fakeSlotLister{}, nil, nil, nil)

	rec := httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/timeslots?date=next-tuesday", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
