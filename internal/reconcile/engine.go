package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/TCaken/loancrm/internal/appointment"
	"github.com/TCaken/loancrm/internal/clock"
	"github.com/TCaken/loancrm/internal/feed"
	"github.com/TCaken/loancrm/internal/leads"
	"github.com/TCaken/loancrm/internal/notify"
	"github.com/TCaken/loancrm/internal/observability/metrics"
	"github.com/TCaken/loancrm/internal/phone"
	"github.com/TCaken/loancrm/internal/timeslot"
	"github.com/TCaken/loancrm/pkg/logging"
)

// Mode selects which rule set a pass runs.
type Mode string

const (
	// ModeRealtime handles today's rows as they arrive and sweeps overdue
	// appointments past the no-show threshold.
	ModeRealtime Mode = "realtime"
	// ModeEndOfDay refines the outcome of appointments already marked done
	// today; it never applies the threshold.
	ModeEndOfDay Mode = "end_of_day"
)

// Row actions recorded on results.
const (
	ActionUpdated   = "updated"
	ActionCreated   = "created"
	ActionMoved     = "moved"
	ActionRefreshed = "refreshed"
	ActionSkipped   = "skipped"
	ActionSwept     = "missed_by_threshold"
	ActionError     = "error"
)

// Request describes one reconciliation pass.
type Request struct {
	Mode           Mode       `json:"mode"`
	ThresholdHours float64    `json:"threshold_hours,omitempty"`
	Rows           []feed.Row `json:"rows"`
	ActorID        string     `json:"actor_id,omitempty"`
}

// RowResult records what the engine did with one feed row. Threshold-sweep
// entries carry RowIndex -1 since no row drove them.
type RowResult struct {
	RowIndex      int              `json:"row_index"`
	AppointmentID uuid.UUID        `json:"appointment_id,omitempty"`
	OwnerID       uuid.UUID        `json:"owner_id,omitempty"`
	Kind          appointment.Kind `json:"kind,omitempty"`
	OldStatus     string           `json:"old_status,omitempty"`
	NewStatus     string           `json:"new_status,omitempty"`
	Action        string           `json:"action"`
	Reason        string           `json:"reason,omitempty"`
	Err           string           `json:"error,omitempty"`
}

// Summary is the structured result of a pass. Row-level failures are isolated
// into Results; the pass itself still succeeds.
type Summary struct {
	Mode       Mode        `json:"mode"`
	TargetDate string      `json:"target_date"`
	Processed  int         `json:"processed"`
	Updated    int         `json:"updated"`
	Created    int         `json:"created"`
	Moved      int         `json:"moved"`
	Skipped    int         `json:"skipped"`
	Errors     int         `json:"errors"`
	Results    []RowResult `json:"results"`
	Notes      []string    `json:"notes,omitempty"`
}

// AppointmentService is the slice of the appointment service the engine uses.
type AppointmentService interface {
	Create(ctx context.Context, p appointment.CreateParams) (*appointment.Appointment, error)
	SetStatus(ctx context.Context, kind appointment.Kind, id uuid.UUID, newStatus appointment.Status, outcome appointment.Outcome, actorID string) (*appointment.Appointment, error)
	Move(ctx context.Context, kind appointment.Kind, id uuid.UUID, newSlotID uuid.UUID, actorID string) (*appointment.Appointment, error)
	RefreshOutcome(ctx context.Context, kind appointment.Kind, id uuid.UUID, outcome appointment.Outcome, actorID string) error
	FindByOwnerOnDate(ctx context.Context, kind appointment.Kind, ownerID uuid.UUID, date time.Time) (*appointment.Appointment, error)
	FindOpenByOwner(ctx context.Context, kind appointment.Kind, ownerID uuid.UUID) (*appointment.Appointment, error)
	ListUnresolvedBefore(ctx context.Context, kind appointment.Kind, cutoff time.Time) ([]appointment.Appointment, error)
	ListByStatusOnDate(ctx context.Context, kind appointment.Kind, status appointment.Status, date time.Time) ([]appointment.Appointment, error)
}

// SlotFinder locates a slot for feed-driven bookings.
type SlotFinder interface {
	FindAvailable(ctx context.Context, date time.Time) (*timeslot.Timeslot, error)
	FindNearest(ctx context.Context, date time.Time) (*timeslot.Timeslot, error)
}

// RejectionDispatcher fires the best-effort rejection side effect. The
// returned annotation is non-empty when delivery failed; it never aborts the
// pass.
type RejectionDispatcher interface {
	Dispatch(ctx context.Context, rej notify.Rejection) string
}

// Engine runs reconciliation passes over the appointment book.
type Engine struct {
	appts            AppointmentService
	matcher          *Matcher
	leads            LeadDirectory
	borrowers        BorrowerDirectory
	slots            SlotFinder
	rejections       RejectionDispatcher
	clk              clock.Clock
	loc              *time.Location
	defaultThreshold float64
	metrics          *metrics.EngineMetrics
	tracer           trace.Tracer
	logger           *logging.Logger
}

func NewEngine(
	appts AppointmentService,
	leadDir LeadDirectory,
	borrowerDir BorrowerDirectory,
	slots SlotFinder,
	rejections RejectionDispatcher,
	clk clock.Clock,
	loc *time.Location,
	defaultThresholdHours float64,
	m *metrics.EngineMetrics,
	logger *logging.Logger,
) *Engine {
	if appts == nil {
		panic("reconcile: appointment service required")
	}
	if slots == nil {
		panic("reconcile: slot finder required")
	}
	if clk == nil {
		clk = clock.System{}
	}
	if loc == nil {
		loc = clock.NewLocation("", 8)
	}
	if defaultThresholdHours <= 0 {
		defaultThresholdHours = 2.5
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Engine{
		appts:            appts,
		matcher:          NewMatcher(leadDir, borrowerDir),
		leads:            leadDir,
		borrowers:        borrowerDir,
		slots:            slots,
		rejections:       rejections,
		clk:              clk,
		loc:              loc,
		defaultThreshold: defaultThresholdHours,
		metrics:          m,
		tracer:           otel.Tracer("loancrm.internal.reconcile"),
		logger:           logger,
	}
}

// Run executes one pass. Row-level errors and panics land in the summary;
// only setup failures return an error.
func (e *Engine) Run(ctx context.Context, req Request) (*Summary, error) {
	switch req.Mode {
	case ModeRealtime, ModeEndOfDay:
	default:
		return nil, fmt.Errorf("reconcile: unknown mode %q", req.Mode)
	}

	ctx, span := e.tracer.Start(ctx, "reconcile.run", trace.WithAttributes(
		attribute.String("mode", string(req.Mode)),
		attribute.Int("rows", len(req.Rows)),
	))
	defer span.End()

	started := e.clk.Now()
	today := clock.Today(e.clk, e.loc)
	sum := &Summary{Mode: req.Mode, TargetDate: today.Format("2006-01-02")}

	if req.Mode == ModeEndOfDay {
		e.runEndOfDay(ctx, req, today, sum)
	} else {
		e.runRealtime(ctx, req, today, sum)
	}

	e.metrics.ObservePassLatency(string(req.Mode), e.clk.Now().Sub(started).Seconds())
	span.SetAttributes(
		attribute.Int("processed", sum.Processed),
		attribute.Int("errors", sum.Errors),
	)
	e.logger.Info("reconcile pass finished",
		"mode", req.Mode,
		"date", sum.TargetDate,
		"processed", sum.Processed,
		"updated", sum.Updated,
		"created", sum.Created,
		"moved", sum.Moved,
		"skipped", sum.Skipped,
		"errors", sum.Errors,
	)
	return sum, nil
}

type apptKey string

func keyOf(kind appointment.Kind, id uuid.UUID) apptKey {
	return apptKey(string(kind) + ":" + id.String())
}

func (e *Engine) runRealtime(ctx context.Context, req Request, today time.Time, sum *Summary) {
	resolved := make(map[apptKey]bool)

	for i, row := range req.Rows {
		res := e.safeRow(ctx, i, row, today, req.ActorID, resolved)
		e.record(sum, res)
	}
	if len(req.Rows) == 0 {
		sum.Notes = append(sum.Notes, "no rows supplied; threshold sweep only")
	}

	threshold := req.ThresholdHours
	if threshold <= 0 {
		threshold = e.defaultThreshold
	}
	cutoff := e.clk.Now().Add(-time.Duration(threshold * float64(time.Hour)))
	for _, kind := range []appointment.Kind{appointment.KindLead, appointment.KindBorrower} {
		overdue, err := e.appts.ListUnresolvedBefore(ctx, kind, cutoff)
		if err != nil {
			sum.Notes = append(sum.Notes, fmt.Sprintf("threshold sweep (%s) failed: %v", kind, err))
			sum.Errors++
			continue
		}
		for _, appt := range overdue {
			if resolved[keyOf(kind, appt.ID)] {
				continue
			}
			res := e.sweepOne(ctx, kind, appt, req.ActorID)
			e.record(sum, res)
		}
	}
}

func (e *Engine) sweepOne(ctx context.Context, kind appointment.Kind, appt appointment.Appointment, actorID string) RowResult {
	res := RowResult{
		RowIndex:      -1,
		AppointmentID: appt.ID,
		OwnerID:       appt.OwnerID,
		Kind:          kind,
		OldStatus:     string(appt.Status),
	}
	outcome := appointment.Outcome{OwnerStatus: appointment.OwnerStatusMissedRS}
	if _, err := e.appts.SetStatus(ctx, kind, appt.ID, appointment.StatusMissed, outcome, actorID); err != nil {
		res.Action = ActionError
		res.Err = err.Error()
		return res
	}
	res.NewStatus = string(appointment.StatusMissed)
	res.Action = ActionSwept
	return res
}

// safeRow isolates a single row: a panic or error is captured on its result
// and never aborts the pass.
func (e *Engine) safeRow(ctx context.Context, i int, row feed.Row, today time.Time, actorID string, resolved map[apptKey]bool) (res RowResult) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("feed row panicked", "row", i, "panic", r)
			res = RowResult{RowIndex: i, Action: ActionError, Err: fmt.Sprintf("panic: %v", r)}
		}
	}()
	return e.processRow(ctx, i, row, today, actorID, resolved)
}

func (e *Engine) processRow(ctx context.Context, i int, row feed.Row, today time.Time, actorID string, resolved map[apptKey]bool) RowResult {
	res := RowResult{RowIndex: i}

	date, err := feed.ParseReportedDate(row.ReportedDate, e.loc)
	if err != nil {
		res.Action = ActionError
		res.Err = err.Error()
		return res
	}
	if !date.Equal(today) {
		res.Action = ActionSkipped
		res.Reason = "reported date is not today"
		return res
	}

	owner, err := e.matcher.Resolve(ctx, row.MobileNumber)
	if err != nil {
		res.Action = ActionError
		res.Err = err.Error()
		return res
	}

	if owner == nil {
		return e.handleUnknownRow(ctx, res, row, today, actorID, resolved)
	}
	res.Kind = owner.Kind
	res.OwnerID = owner.ID

	appt, err := e.appts.FindByOwnerOnDate(ctx, owner.Kind, owner.ID, today)
	if err != nil {
		res.Action = ActionError
		res.Err = err.Error()
		return res
	}
	if appt == nil {
		return e.handleNoAppointmentToday(ctx, res, row, owner, today, actorID, resolved)
	}
	return e.handleTodayAppointment(ctx, res, row, owner, appt, actorID, resolved)
}

// handleUnknownRow covers phones with no owner record: attendance without a
// record means a walk-in, which gets a fresh lead and a done appointment for
// today. Rows without attendance never create anything.
func (e *Engine) handleUnknownRow(ctx context.Context, res RowResult, row feed.Row, today time.Time, actorID string, resolved map[apptKey]bool) RowResult {
	if !feed.HasAttendance(row.AttendanceMarker) {
		res.Action = ActionSkipped
		res.Reason = "unknown phone without attendance"
		return res
	}

	lead, err := e.leads.Create(ctx, leads.CreateParams{
		FullName: row.FullName,
		Phone:    row.MobileNumber,
		Source:   "attendance_feed",
		Status:   appointment.OwnerStatusNew,
		ActorID:  actorID,
	})
	if err != nil {
		res.Action = ActionError
		res.Err = err.Error()
		return res
	}
	res.Kind = appointment.KindLead
	res.OwnerID = lead.ID

	slot, err := e.slotForToday(ctx, today)
	if err != nil {
		res.Action = ActionError
		res.Err = err.Error()
		return res
	}

	outcome, notifyRejection, ok := outcomeForCode(row.OutcomeCode, row.Remarks)
	if !ok {
		outcome = appointment.Outcome{Note: "Done."}
	}
	appt, err := e.appts.Create(ctx, appointment.CreateParams{
		Kind:          appointment.KindLead,
		OwnerID:       lead.ID,
		SlotID:        slot.ID,
		Status:        appointment.StatusDone,
		Outcome:       outcome,
		AllowOverbook: true,
		ActorID:       actorID,
	})
	if err != nil {
		res.Action = ActionError
		res.Err = err.Error()
		return res
	}
	res.AppointmentID = appt.ID
	res.NewStatus = string(appointment.StatusDone)
	res.Action = ActionCreated
	resolved[keyOf(appointment.KindLead, appt.ID)] = true
	if notifyRejection {
		e.dispatchRejection(ctx, &OwnerRef{Kind: appointment.KindLead, ID: lead.ID, Name: lead.FullName, Phone: lead.Phone}, appt.ID, outcome.Code)
	}
	return res
}

// handleNoAppointmentToday covers known owners with nothing booked today.
// Leads with attendance get their open appointment moved to today, or a new
// one created; borrower rows never create or move bookings from the feed.
func (e *Engine) handleNoAppointmentToday(ctx context.Context, res RowResult, row feed.Row, owner *OwnerRef, today time.Time, actorID string, resolved map[apptKey]bool) RowResult {
	if owner.Kind == appointment.KindBorrower {
		res.Action = ActionSkipped
		res.Reason = "existing customer without an appointment today"
		return res
	}
	if !feed.HasAttendance(row.AttendanceMarker) {
		res.Action = ActionSkipped
		res.Reason = "no appointment today and no attendance"
		return res
	}

	outcome, notifyRejection, ok := outcomeForCode(row.OutcomeCode, row.Remarks)
	if !ok {
		outcome = appointment.Outcome{Note: "Done."}
	}

	open, err := e.appts.FindOpenByOwner(ctx, owner.Kind, owner.ID)
	if err != nil {
		res.Action = ActionError
		res.Err = err.Error()
		return res
	}

	slot, err := e.slotForToday(ctx, today)
	if err != nil {
		res.Action = ActionError
		res.Err = err.Error()
		return res
	}

	var appt *appointment.Appointment
	if open != nil {
		appt, err = e.appts.Move(ctx, owner.Kind, open.ID, slot.ID, actorID)
		if err == nil {
			res.OldStatus = string(open.Status)
			res.Action = ActionMoved
		}
	} else {
		appt, err = e.appts.Create(ctx, appointment.CreateParams{
			Kind:          owner.Kind,
			OwnerID:       owner.ID,
			SlotID:        slot.ID,
			Status:        appointment.StatusUpcoming,
			AllowOverbook: true,
			ActorID:       actorID,
		})
		if err == nil {
			res.Action = ActionCreated
		}
	}
	if err != nil {
		res.Action = ActionError
		res.Err = err.Error()
		return res
	}

	if _, err := e.appts.SetStatus(ctx, owner.Kind, appt.ID, appointment.StatusDone, outcome, actorID); err != nil {
		res.AppointmentID = appt.ID
		res.Action = ActionError
		res.Err = err.Error()
		return res
	}
	res.AppointmentID = appt.ID
	res.NewStatus = string(appointment.StatusDone)
	resolved[keyOf(owner.Kind, appt.ID)] = true
	if notifyRejection {
		e.dispatchRejection(ctx, owner, appt.ID, outcome.Code)
	}
	return res
}

// handleTodayAppointment covers the main path: the owner has a booking today.
// A recognized code resolves it; a bare attendance marker marks it done; a
// terminal booking is left alone.
func (e *Engine) handleTodayAppointment(ctx context.Context, res RowResult, row feed.Row, owner *OwnerRef, appt *appointment.Appointment, actorID string, resolved map[apptKey]bool) RowResult {
	res.AppointmentID = appt.ID
	res.OldStatus = string(appt.Status)

	if appt.Status.Terminal() {
		res.Action = ActionSkipped
		res.Reason = "already resolved"
		resolved[keyOf(owner.Kind, appt.ID)] = true
		return res
	}

	outcome, notifyRejection, ok := outcomeForCode(row.OutcomeCode, row.Remarks)
	if !ok {
		if !feed.HasAttendance(row.AttendanceMarker) {
			res.Action = ActionSkipped
			res.Reason = "no usable outcome code"
			return res
		}
		outcome = appointment.Outcome{Note: "Done."}
	}

	if _, err := e.appts.SetStatus(ctx, owner.Kind, appt.ID, appointment.StatusDone, outcome, actorID); err != nil {
		res.Action = ActionError
		res.Err = err.Error()
		return res
	}
	res.NewStatus = string(appointment.StatusDone)
	res.Action = ActionUpdated
	resolved[keyOf(owner.Kind, appt.ID)] = true
	if notifyRejection {
		e.dispatchRejection(ctx, owner, appt.ID, outcome.Code)
	}
	return res
}

// runEndOfDay refines the outcome metadata of appointments already done
// today; statuses never change and the threshold never applies.
func (e *Engine) runEndOfDay(ctx context.Context, req Request, today time.Time, sum *Summary) {
	index := e.indexRows(req.Rows, today, sum)
	used := make(map[int]bool)

	for _, kind := range []appointment.Kind{appointment.KindLead, appointment.KindBorrower} {
		done, err := e.appts.ListByStatusOnDate(ctx, kind, appointment.StatusDone, today)
		if err != nil {
			sum.Notes = append(sum.Notes, fmt.Sprintf("end-of-day scan (%s) failed: %v", kind, err))
			sum.Errors++
			continue
		}
		for _, appt := range done {
			owner, err := e.ownerRef(ctx, kind, appt.OwnerID)
			if err != nil {
				e.record(sum, RowResult{
					RowIndex: -1, AppointmentID: appt.ID, OwnerID: appt.OwnerID, Kind: kind,
					Action: ActionError, Err: err.Error(),
				})
				continue
			}
			idx, found := lookupRow(index, owner.Phone)
			if !found {
				continue
			}
			used[idx] = true
			e.record(sum, e.refreshOne(ctx, idx, req.Rows[idx], owner, appt, req.ActorID))
		}
	}

	for i := range req.Rows {
		if used[i] {
			continue
		}
		e.record(sum, RowResult{RowIndex: i, Action: ActionSkipped, Reason: "no done appointment matched"})
	}
}

func (e *Engine) refreshOne(ctx context.Context, idx int, row feed.Row, owner *OwnerRef, appt appointment.Appointment, actorID string) RowResult {
	res := RowResult{
		RowIndex:      idx,
		AppointmentID: appt.ID,
		OwnerID:       owner.ID,
		Kind:          owner.Kind,
		OldStatus:     string(appt.Status),
		NewStatus:     string(appt.Status),
	}
	outcome, notifyRejection, ok := outcomeForCode(row.OutcomeCode, row.Remarks)
	if !ok {
		res.Action = ActionSkipped
		res.Reason = "no usable outcome code"
		return res
	}
	if err := e.appts.RefreshOutcome(ctx, owner.Kind, appt.ID, outcome, actorID); err != nil {
		res.Action = ActionError
		res.Err = err.Error()
		return res
	}
	res.Action = ActionRefreshed
	if notifyRejection {
		// The notification ledger deduplicates across passes, so a rejection
		// already fired in realtime mode is not re-sent here.
		e.dispatchRejection(ctx, owner, appt.ID, outcome.Code)
	}
	return res
}

// indexRows maps every phone variant of today's rows to the first row
// carrying it. Unparseable or off-date rows are reported and excluded.
func (e *Engine) indexRows(rows []feed.Row, today time.Time, sum *Summary) map[string]int {
	index := make(map[string]int)
	for i, row := range rows {
		date, err := feed.ParseReportedDate(row.ReportedDate, e.loc)
		if err != nil {
			e.record(sum, RowResult{RowIndex: i, Action: ActionError, Err: err.Error()})
			continue
		}
		if !date.Equal(today) {
			e.record(sum, RowResult{RowIndex: i, Action: ActionSkipped, Reason: "reported date is not today"})
			continue
		}
		for _, v := range phone.Normalize(row.MobileNumber) {
			if _, exists := index[v]; !exists {
				index[v] = i
			}
		}
	}
	return index
}

func lookupRow(index map[string]int, ownerPhone string) (int, bool) {
	for _, v := range phone.Normalize(ownerPhone) {
		if idx, ok := index[v]; ok {
			return idx, true
		}
	}
	return 0, false
}

func (e *Engine) ownerRef(ctx context.Context, kind appointment.Kind, id uuid.UUID) (*OwnerRef, error) {
	if kind == appointment.KindBorrower {
		b, err := e.borrowers.GetByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("reconcile: borrower %s: %w", id, err)
		}
		return &OwnerRef{Kind: kind, ID: b.ID, Name: b.FullName, Phone: b.Phone}, nil
	}
	l, err := e.leads.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("reconcile: lead %s: %w", id, err)
	}
	return &OwnerRef{Kind: kind, ID: l.ID, Name: l.FullName, Phone: l.Phone}, nil
}

// slotForToday prefers an open slot today and falls back to the nearest day
// with any slot at all within the search horizon.
func (e *Engine) slotForToday(ctx context.Context, today time.Time) (*timeslot.Timeslot, error) {
	slot, err := e.slots.FindAvailable(ctx, today)
	if err != nil {
		return nil, err
	}
	if slot != nil {
		return slot, nil
	}
	slot, err = e.slots.FindNearest(ctx, today)
	if err != nil {
		return nil, err
	}
	if slot == nil {
		return nil, timeslot.ErrSlotNotFound
	}
	return slot, nil
}

func (e *Engine) dispatchRejection(ctx context.Context, owner *OwnerRef, apptID uuid.UUID, code string) {
	if e.rejections == nil {
		return
	}
	annotation := e.rejections.Dispatch(ctx, notify.Rejection{
		Phone:         owner.Phone,
		OwnerID:       owner.ID,
		OwnerName:     owner.Name,
		AppointmentID: apptID,
		Kind:          string(owner.Kind),
		Code:          code,
		OccurredAt:    e.clk.Now(),
	})
	if annotation != "" {
		e.logger.Warn("rejection notification issue", "appointment_id", apptID, "detail", annotation)
	}
}

func (e *Engine) record(sum *Summary, res RowResult) {
	if res.RowIndex >= 0 {
		sum.Processed++
	}
	switch res.Action {
	case ActionUpdated, ActionRefreshed:
		sum.Updated++
	case ActionCreated:
		sum.Created++
	case ActionMoved:
		sum.Moved++
	case ActionSkipped:
		sum.Skipped++
	case ActionSwept:
		sum.Updated++
	case ActionError:
		sum.Errors++
		if res.Err != "" {
			sum.Notes = append(sum.Notes, fmt.Sprintf("row %d: %s", res.RowIndex, res.Err))
		}
	}
	sum.Results = append(sum.Results, res)
	e.metrics.ObserveRow(string(sum.Mode), res.Action)
}
