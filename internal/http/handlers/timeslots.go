package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/TCaken/loancrm/internal/clock"
	"github.com/TCaken/loancrm/internal/timeslot"
	"github.com/TCaken/loancrm/pkg/logging"
)

// SlotLister reads the slot calendar for a day.
type SlotLister interface {
	ListByDate(ctx context.Context, date time.Time) ([]timeslot.Timeslot, error)
}

// TimeslotsHandler serves the agent-facing slot calendar.
type TimeslotsHandler struct {
	slots  SlotLister
	clk    clock.Clock
	loc    *time.Location
	logger *logging.Logger
}

func NewTimeslotsHandler(slots SlotLister, clk clock.Clock, loc *time.Location, logger *logging.Logger) *TimeslotsHandler {
	if slots == nil {
		panic("handlers: slot store cannot be nil")
	}
	if clk == nil {
		clk = clock.System{}
	}
	if loc == nil {
		loc = clock.NewLocation("Asia/Singapore", 8)
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &TimeslotsHandler{slots: slots, clk: clk, loc: loc, logger: logger}
}

// TimeslotView is one calendar slot with its remaining capacity. Remaining
// can be negative when a slot has been overbooked.
type TimeslotView struct {
	timeslot.Timeslot
	Remaining int `json:"remaining"`
}

// TimeslotsResponse lists a day's slots.
type TimeslotsResponse struct {
	Date  string         `json:"date"`
	Slots []TimeslotView `json:"slots"`
}

// List returns the slots for a day, defaulting to today.
// GET /timeslots?date=2025-03-10
func (h *TimeslotsHandler) List(w http.ResponseWriter, r *http.Request) {
	date, err := parseDateParam(r, h.loc, h.clk.Now())
	if err != nil {
		http.Error(w, "date must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	slots, err := h.slots.ListByDate(r.Context(), date)
	if err != nil {
		h.logger.Error("failed to list timeslots", "error", err, "date", date.Format("2006-01-02"))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	views := make([]TimeslotView, 0, len(slots))
	for _, s := range slots {
		views = append(views, TimeslotView{
			Timeslot:  s,
			Remaining: s.MaxCapacity - s.OccupiedCount,
		})
	}

	writeJSON(w, http.StatusOK, TimeslotsResponse{
		Date:  date.Format("2006-01-02"),
		Slots: views,
	})
}
