package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/TCaken/loancrm/internal/appointment"
	"github.com/TCaken/loancrm/internal/clock"
	"github.com/TCaken/loancrm/internal/observability/metrics"
	"github.com/TCaken/loancrm/internal/reconcile"
	"github.com/TCaken/loancrm/pkg/logging"
)

// AppointmentCounter aggregates appointment statuses for the funnel.
type AppointmentCounter interface {
	CountByStatusOnDate(ctx context.Context, kind appointment.Kind, date time.Time) (map[string]int, error)
}

// SummaryReader loads cached pass summaries for the dashboard.
type SummaryReader interface {
	Get(ctx context.Context, mode reconcile.Mode, date string) (*reconcile.Summary, error)
}

// DashboardHandler serves the daily operations view: the appointment funnel
// per kind, slot occupancy, the latest pass summaries and engine latency.
type DashboardHandler struct {
	appts     AppointmentCounter
	slots     SlotLister
	summaries SummaryReader
	gatherer  prometheus.Gatherer
	clk       clock.Clock
	loc       *time.Location
	logger    *logging.Logger
}

func NewDashboardHandler(appts AppointmentCounter, slots SlotLister, summaries SummaryReader, gatherer prometheus.Gatherer, clk clock.Clock, loc *time.Location, logger *logging.Logger) *DashboardHandler {
	if appts == nil {
		panic("handlers: appointment service cannot be nil")
	}
	if slots == nil {
		panic("handlers: slot store cannot be nil")
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
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
	return &DashboardHandler{
		appts:     appts,
		slots:     slots,
		summaries: summaries,
		gatherer:  gatherer,
		clk:       clk,
		loc:       loc,
		logger:    logger,
	}
}

// OccupancyView aggregates slot usage for the day.
type OccupancyView struct {
	SlotCount     int `json:"slot_count"`
	TotalCapacity int `json:"total_capacity"`
	TotalOccupied int `json:"total_occupied"`
	FullSlots     int `json:"full_slots"`
}

// PassLatencyView is the average observed pass latency per mode since the
// process started.
type PassLatencyView struct {
	Mode         string  `json:"mode"`
	Passes       uint64  `json:"passes"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
}

// DashboardResponse is the daily operations snapshot.
type DashboardResponse struct {
	Date          string                        `json:"date"`
	Funnel        map[string]map[string]int     `json:"funnel"`
	Occupancy     OccupancyView                 `json:"occupancy"`
	PassSummaries map[string]*reconcile.Summary `json:"pass_summaries"`
	PassLatency   []PassLatencyView             `json:"pass_latency"`
}

// GetDashboard returns the operations snapshot for a day.
// GET /dashboard?date=2025-03-10
func (h *DashboardHandler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	date, err := parseDateParam(r, h.loc, h.clk.Now())
	if err != nil {
		http.Error(w, "date must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	dateKey := date.Format("2006-01-02")

	funnel := make(map[string]map[string]int, 2)
	for _, kind := range []appointment.Kind{appointment.KindLead, appointment.KindBorrower} {
		counts, err := h.appts.CountByStatusOnDate(r.Context(), kind, date)
		if err != nil {
			h.logger.Error("failed to build funnel", "error", err, "kind", kind)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		funnel[string(kind)] = counts
	}

	slots, err := h.slots.ListByDate(r.Context(), date)
	if err != nil {
		h.logger.Error("failed to list timeslots", "error", err, "date", dateKey)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	occupancy := OccupancyView{SlotCount: len(slots)}
	for _, s := range slots {
		occupancy.TotalCapacity += s.MaxCapacity
		occupancy.TotalOccupied += s.OccupiedCount
		if s.Full() {
			occupancy.FullSlots++
		}
	}

	summaries := make(map[string]*reconcile.Summary, 2)
	if h.summaries != nil {
		for _, mode := range []reconcile.Mode{reconcile.ModeRealtime, reconcile.ModeEndOfDay} {
			sum, err := h.summaries.Get(r.Context(), mode, dateKey)
			if err != nil {
				h.logger.Warn("summary cache read failed", "error", err, "mode", mode)
				continue
			}
			if sum != nil {
				summaries[string(mode)] = sum
			}
		}
	}

	writeJSON(w, http.StatusOK, DashboardResponse{
		Date:          dateKey,
		Funnel:        funnel,
		Occupancy:     occupancy,
		PassSummaries: summaries,
		PassLatency:   h.passLatency(),
	})
}

// passLatency snapshots the engine's latency histogram from the local
// Prometheus registry.
func (h *DashboardHandler) passLatency() []PassLatencyView {
	families, err := h.gatherer.Gather()
	if err != nil {
		h.logger.Warn("metrics gather failed", "error", err)
		return nil
	}
	return passLatencyFromFamilies(families)
}

func passLatencyFromFamilies(families []*dto.MetricFamily) []PassLatencyView {
	var views []PassLatencyView
	for _, fam := range families {
		if fam.GetName() != metrics.PassLatencyMetric {
			continue
		}
		for _, m := range fam.GetMetric() {
			hist := m.GetHistogram()
			if hist == nil || hist.GetSampleCount() == 0 {
				continue
			}
			view := PassLatencyView{
				Passes:       hist.GetSampleCount(),
				AvgLatencyMs: hist.GetSampleSum() / float64(hist.GetSampleCount()) * 1000,
			}
			for _, label := range m.GetLabel() {
				if label.GetName() == "mode" {
					view.Mode = label.GetValue()
				}
			}
			views = append(views, view)
		}
	}
	return views
}
