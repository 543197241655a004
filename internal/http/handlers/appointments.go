package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/TCaken/loancrm/internal/appointment"
	"github.com/TCaken/loancrm/internal/assignments"
	"github.com/TCaken/loancrm/internal/borrowers"
	"github.com/TCaken/loancrm/internal/http/middleware"
	"github.com/TCaken/loancrm/internal/leads"
	"github.com/TCaken/loancrm/internal/timeslot"
	"github.com/TCaken/loancrm/pkg/logging"
)

// AppointmentBooker is the slice of the appointment service the booking
// endpoints use.
type AppointmentBooker interface {
	Create(ctx context.Context, p appointment.CreateParams) (*appointment.Appointment, error)
	Move(ctx context.Context, kind appointment.Kind, id, newSlotID uuid.UUID, actorID string) (*appointment.Appointment, error)
	SetStatus(ctx context.Context, kind appointment.Kind, id uuid.UUID, newStatus appointment.Status, outcome appointment.Outcome, actorID string) (*appointment.Appointment, error)
	GetByID(ctx context.Context, kind appointment.Kind, id uuid.UUID) (*appointment.Appointment, error)
}

// AssignmentLog records who booked what. Optional; nil disables the audit
// trail without affecting booking.
type AssignmentLog interface {
	Append(ctx context.Context, r *assignments.Record) error
}

// AppointmentsHandler exposes the agent-facing booking endpoints.
type AppointmentsHandler struct {
	appts       AppointmentBooker
	assignments AssignmentLog
	logger      *logging.Logger
}

func NewAppointmentsHandler(appts AppointmentBooker, log AssignmentLog, logger *logging.Logger) *AppointmentsHandler {
	if appts == nil {
		panic("handlers: appointment service cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AppointmentsHandler{appts: appts, assignments: log, logger: logger}
}

// CreateAppointmentRequest is the manual booking payload.
type CreateAppointmentRequest struct {
	Kind          string `json:"kind"`
	OwnerID       string `json:"owner_id"`
	SlotID        string `json:"slot_id"`
	AllowOverbook bool   `json:"allow_overbook"`
	Notes         string `json:"notes,omitempty"`
}

func actorFromRequest(r *http.Request) string {
	if claims, ok := middleware.AgentFromContext(r.Context()); ok && claims.AgentID != "" {
		return claims.AgentID
	}
	return "system"
}

func parseKindParam(raw string) (appointment.Kind, bool) {
	k := appointment.Kind(raw)
	return k, k.Valid()
}

// writeBookingError maps domain errors onto HTTP statuses. Capacity and
// transition conflicts are 409 so the caller can retry with different input.
func (h *AppointmentsHandler) writeBookingError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, appointment.ErrAppointmentNotFound):
		http.Error(w, "appointment not found", http.StatusNotFound)
	case errors.Is(err, timeslot.ErrSlotNotFound):
		http.Error(w, "timeslot not found", http.StatusNotFound)
	case errors.Is(err, leads.ErrLeadNotFound):
		http.Error(w, "lead not found", http.StatusNotFound)
	case errors.Is(err, borrowers.ErrBorrowerNotFound):
		http.Error(w, "borrower not found", http.StatusNotFound)
	case errors.Is(err, timeslot.ErrCapacityExceeded):
		http.Error(w, "timeslot is full", http.StatusConflict)
	case errors.Is(err, appointment.ErrInvalidTransition):
		http.Error(w, "invalid status transition", http.StatusConflict)
	default:
		h.logger.Error("appointment operation failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

// Create books an appointment into a chosen slot.
// POST /appointments
func (h *AppointmentsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	kind, ok := parseKindParam(req.Kind)
	if !ok {
		http.Error(w, "kind must be lead or borrower", http.StatusBadRequest)
		return
	}
	ownerID, err := uuid.Parse(req.OwnerID)
	if err != nil {
		http.Error(w, "invalid owner_id", http.StatusBadRequest)
		return
	}
	slotID, err := uuid.Parse(req.SlotID)
	if err != nil {
		http.Error(w, "invalid slot_id", http.StatusBadRequest)
		return
	}

	actor := actorFromRequest(r)
	appt, err := h.appts.Create(r.Context(), appointment.CreateParams{
		Kind:          kind,
		OwnerID:       ownerID,
		SlotID:        slotID,
		Notes:         req.Notes,
		AllowOverbook: req.AllowOverbook,
		ActorID:       actor,
	})
	if err != nil {
		h.writeBookingError(w, err)
		return
	}

	if h.assignments != nil {
		rec := &assignments.Record{
			OwnerID:   ownerID,
			OwnerKind: string(kind),
			AgentID:   actor,
			Method:    "manual_booking",
			Note:      req.Notes,
		}
		if err := h.assignments.Append(r.Context(), rec); err != nil {
			h.logger.Warn("assignment record failed", "error", err, "appointment_id", appt.ID)
		}
	}

	writeJSON(w, http.StatusCreated, appt)
}

// MoveAppointmentRequest names the target slot for a move.
type MoveAppointmentRequest struct {
	SlotID string `json:"slot_id"`
}

// Move rebooks an upcoming appointment into another slot.
// POST /appointments/{kind}/{id}/move
func (h *AppointmentsHandler) Move(w http.ResponseWriter, r *http.Request) {
	kind, ok := parseKindParam(chi.URLParam(r, "kind"))
	if !ok {
		http.Error(w, "kind must be lead or borrower", http.StatusBadRequest)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid appointment id", http.StatusBadRequest)
		return
	}

	var req MoveAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	slotID, err := uuid.Parse(req.SlotID)
	if err != nil {
		http.Error(w, "invalid slot_id", http.StatusBadRequest)
		return
	}

	appt, err := h.appts.Move(r.Context(), kind, id, slotID, actorFromRequest(r))
	if err != nil {
		h.writeBookingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

// SetStatusRequest resolves an appointment manually.
type SetStatusRequest struct {
	Status      string `json:"status"`
	OutcomeCode string `json:"outcome_code,omitempty"`
	OutcomeNote string `json:"outcome_note,omitempty"`
}

// SetStatus marks an appointment done, missed or cancelled.
// POST /appointments/{kind}/{id}/status
func (h *AppointmentsHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	kind, ok := parseKindParam(chi.URLParam(r, "kind"))
	if !ok {
		http.Error(w, "kind must be lead or borrower", http.StatusBadRequest)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid appointment id", http.StatusBadRequest)
		return
	}

	var req SetStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	status := appointment.Status(req.Status)
	if !status.Valid() || status == appointment.StatusUpcoming {
		http.Error(w, "status must be done, missed or cancelled", http.StatusBadRequest)
		return
	}

	outcome := appointment.Outcome{Code: req.OutcomeCode, Note: req.OutcomeNote}
	appt, err := h.appts.SetStatus(r.Context(), kind, id, status, outcome, actorFromRequest(r))
	if err != nil {
		h.writeBookingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

// Get returns one appointment.
// GET /appointments/{kind}/{id}
func (h *AppointmentsHandler) Get(w http.ResponseWriter, r *http.Request) {
	kind, ok := parseKindParam(chi.URLParam(r, "kind"))
	if !ok {
		http.Error(w, "kind must be lead or borrower", http.StatusBadRequest)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid appointment id", http.StatusBadRequest)
		return
	}

	appt, err := h.appts.GetByID(r.Context(), kind, id)
	if err != nil {
		h.writeBookingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}
