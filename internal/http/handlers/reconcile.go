package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/TCaken/loancrm/internal/feed"
	"github.com/TCaken/loancrm/internal/reconcile"
	"github.com/TCaken/loancrm/pkg/logging"
)

// PassRunner runs a reconciliation pass synchronously.
type PassRunner interface {
	Run(ctx context.Context, req reconcile.Request) (*reconcile.Summary, error)
}

// PassPublisher enqueues a pass for background execution.
type PassPublisher interface {
	Publish(ctx context.Context, req reconcile.Request) (string, error)
}

// JobReader looks up the state of an enqueued pass.
type JobReader interface {
	GetJob(ctx context.Context, jobID string) (*reconcile.JobRecord, error)
}

// SummarySink records the summary of a finished pass for later reads.
type SummarySink interface {
	Put(ctx context.Context, sum *reconcile.Summary) error
}

// ReconcileHandler exposes the attendance-feed reconciliation endpoints.
type ReconcileHandler struct {
	engine    PassRunner
	publisher PassPublisher
	jobs      JobReader
	summaries SummarySink
	mailer    *reconcile.SummaryMailer

	realtimeThresholdHours float64
	eodThresholdHours      float64

	logger *logging.Logger
}

// NewReconcileHandler creates the reconciliation handler. publisher, jobs,
// summaries and mailer are optional; the matching endpoints report 503 or
// skip the side effect when absent.
func NewReconcileHandler(engine PassRunner, publisher PassPublisher, jobs JobReader, summaries SummarySink, mailer *reconcile.SummaryMailer, realtimeThresholdHours, eodThresholdHours float64, logger *logging.Logger) *ReconcileHandler {
	if engine == nil {
		panic("handlers: engine cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if realtimeThresholdHours <= 0 {
		realtimeThresholdHours = 2.5
	}
	if eodThresholdHours <= 0 {
		eodThresholdHours = 4
	}
	return &ReconcileHandler{
		engine:                 engine,
		publisher:              publisher,
		jobs:                   jobs,
		summaries:              summaries,
		mailer:                 mailer,
		realtimeThresholdHours: realtimeThresholdHours,
		eodThresholdHours:      eodThresholdHours,
		logger:                 logger,
	}
}

// passRequest is the wire shape shared by the sync and async endpoints. The
// dialer export posts batch metadata alongside the rows; both are accepted.
type passRequest struct {
	Mode           reconcile.Mode `json:"mode"`
	ThresholdHours float64        `json:"threshold_hours,omitempty"`
	BatchID        string         `json:"batch_id,omitempty"`
	Source         string         `json:"source,omitempty"`
	Rows           []feed.Row     `json:"rows"`
	ActorID        string         `json:"actor_id,omitempty"`
}

func (h *ReconcileHandler) buildRequest(body passRequest) (reconcile.Request, error) {
	mode := body.Mode
	if mode == "" {
		mode = reconcile.ModeRealtime
	}
	threshold := body.ThresholdHours
	if threshold <= 0 {
		switch mode {
		case reconcile.ModeRealtime:
			threshold = h.realtimeThresholdHours
		case reconcile.ModeEndOfDay:
			threshold = h.eodThresholdHours
		default:
			return reconcile.Request{}, errors.New("unknown mode")
		}
	}
	actor := body.ActorID
	if actor == "" {
		actor = "attendance_feed"
	}
	return reconcile.Request{
		Mode:           mode,
		ThresholdHours: threshold,
		Rows:           body.Rows,
		ActorID:        actor,
	}, nil
}

// RunPass executes a pass inline and returns its summary.
// POST /reconcile/run
//
// Row-level failures are reported inside the summary; only a malformed
// request or a pass-level failure produces a non-200 status.
func (h *ReconcileHandler) RunPass(w http.ResponseWriter, r *http.Request) {
	var body passRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	req, err := h.buildRequest(body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	sum, err := h.engine.Run(r.Context(), req)
	if err != nil {
		h.logger.Error("reconcile pass failed", "error", err, "mode", req.Mode)
		http.Error(w, "reconcile pass failed", http.StatusInternalServerError)
		return
	}

	if h.summaries != nil {
		if err := h.summaries.Put(r.Context(), sum); err != nil {
			h.logger.Warn("summary cache write failed", "error", err, "mode", sum.Mode)
		}
	}
	if h.mailer != nil && req.Mode == reconcile.ModeEndOfDay {
		h.mailer.Send(r.Context(), sum)
	}

	writeJSON(w, http.StatusOK, sum)
}

// EnqueuePass accepts a batch for background processing.
// POST /reconcile/jobs
func (h *ReconcileHandler) EnqueuePass(w http.ResponseWriter, r *http.Request) {
	if h.publisher == nil {
		http.Error(w, "background processing not configured", http.StatusServiceUnavailable)
		return
	}

	var body passRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	req, err := h.buildRequest(body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	jobID, err := h.publisher.Publish(r.Context(), req)
	if err != nil {
		h.logger.Error("failed to enqueue reconcile job", "error", err, "mode", req.Mode)
		http.Error(w, "failed to enqueue job", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"job_id": jobID,
		"status": string(reconcile.JobStatusPending),
	})
}

// JobStatus reports the state of an enqueued pass.
// GET /reconcile/jobs/{jobID}
func (h *ReconcileHandler) JobStatus(w http.ResponseWriter, r *http.Request) {
	if h.jobs == nil {
		http.Error(w, "background processing not configured", http.StatusServiceUnavailable)
		return
	}

	jobID := chi.URLParam(r, "jobID")
	if jobID == "" {
		http.Error(w, "missing jobID", http.StatusBadRequest)
		return
	}

	job, err := h.jobs.GetJob(r.Context(), jobID)
	if errors.Is(err, reconcile.ErrJobNotFound) {
		http.Error(w, "job not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("failed to load job", "error", err, "job_id", jobID)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, job)
}
