package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/TCaken/loancrm/internal/clock"
	"github.com/TCaken/loancrm/internal/observability/metrics"
	"github.com/TCaken/loancrm/internal/timeslot"
	"github.com/TCaken/loancrm/pkg/logging"
)

// PgxPool is the subset of pgxpool.Pool the service uses; pgxmock satisfies
// it in tests.
type PgxPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// OwnerMirror updates the owner record's duplicated status fields inside the
// appointment transaction. Implemented by the leads and borrowers stores.
type OwnerMirror interface {
	UpdateStatusTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, status, outcomeCode, outcomeNotes, actorID string) error
}

// Service is the single write path for both appointment aggregates. Every
// status change updates the appointment and its owner's mirrored fields in
// one transaction, so the two can never diverge past a transaction boundary.
type Service struct {
	pool      PgxPool
	slots     *timeslot.Store
	leads     OwnerMirror
	borrowers OwnerMirror
	clk       clock.Clock
	loc       *time.Location
	metrics   *metrics.EngineMetrics
	tracer    trace.Tracer
	logger    *logging.Logger
}

// NewService wires the appointment service.
func NewService(pool PgxPool, slots *timeslot.Store, leadMirror, borrowerMirror OwnerMirror, clk clock.Clock, loc *time.Location, m *metrics.EngineMetrics, logger *logging.Logger) *Service {
	if pool == nil {
		panic("appointment: pgx pool required")
	}
	if slots == nil {
		panic("appointment: timeslot store required")
	}
	if clk == nil {
		clk = clock.System{}
	}
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		pool:      pool,
		slots:     slots,
		leads:     leadMirror,
		borrowers: borrowerMirror,
		clk:       clk,
		loc:       loc,
		metrics:   m,
		tracer:    otel.Tracer("loancrm.internal.appointment"),
		logger:    logger,
	}
}

func (s *Service) mirror(kind Kind) OwnerMirror {
	if kind == KindBorrower {
		return s.borrowers
	}
	return s.leads
}

func (s *Service) withTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("appointment: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("appointment: commit tx: %w", err)
	}
	return nil
}

const apptColumns = `id, %s, status, start_at, end_at, notes, outcome_code, outcome_notes, created_by, updated_by, created_at, updated_at`

// Create books an appointment into a slot: reserve capacity, derive the UTC
// span from the slot's local wall-clock, insert the primary slot association
// and mirror the owner status, all in one transaction.
func (s *Service) Create(ctx context.Context, p CreateParams) (*Appointment, error) {
	ctx, span := s.tracer.Start(ctx, "appointment.create", trace.WithAttributes(
		attribute.String("appointment.kind", string(p.Kind)),
		attribute.Bool("appointment.allow_overbook", p.AllowOverbook),
	))
	defer span.End()

	if !p.Kind.Valid() {
		return nil, fmt.Errorf("appointment: unknown kind %q", p.Kind)
	}
	if p.Status == "" {
		p.Status = StatusUpcoming
	}
	if !p.Status.Valid() {
		return nil, fmt.Errorf("appointment: unknown status %q", p.Status)
	}

	t := p.Kind.tables()
	var appt *Appointment
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		slot, err := s.slots.Reserve(ctx, tx, p.SlotID, p.AllowOverbook)
		if err != nil {
			return err
		}

		startAt := clock.SlotUTC(slot.Date, slot.StartTime, s.loc)
		endAt := clock.SlotUTC(slot.Date, slot.EndTime, s.loc)

		id := uuid.New()
		insert := fmt.Sprintf(`
			INSERT INTO %s (id, %s, status, start_at, end_at, notes, outcome_code, outcome_notes, created_by, updated_by)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
			RETURNING `+apptColumns, t.appointments, t.ownerColumn, t.ownerColumn)
		appt, err = scanAppointment(tx.QueryRow(ctx, insert,
			id, p.OwnerID, p.Status, startAt, endAt, p.Notes, p.Outcome.Code, p.Outcome.Note, p.ActorID,
		), p.Kind)
		if err != nil {
			return err
		}

		joinInsert := fmt.Sprintf(`
			INSERT INTO %s (appointment_id, timeslot_id, is_primary)
			VALUES ($1, $2, true)
		`, t.joins)
		if _, err := tx.Exec(ctx, joinInsert, id, slot.ID); err != nil {
			return fmt.Errorf("appointment: insert slot association: %w", err)
		}

		return s.mirror(p.Kind).UpdateStatusTx(ctx, tx, p.OwnerID, p.Outcome.ownerStatusFor(p.Status), p.Outcome.Code, p.Outcome.Note, p.ActorID)
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	s.metrics.ObserveReservation(p.AllowOverbook)
	s.logger.Info("appointment created",
		"kind", p.Kind,
		"appointment_id", appt.ID,
		"owner_id", p.OwnerID,
		"slot_id", p.SlotID,
		"status", p.Status,
	)
	return appt, nil
}

// SetStatus transitions an appointment and mirrors the owner record in the
// same transaction. Terminal states reject further transitions, except that
// re-applying the same terminal state refreshes the outcome metadata and is
// otherwise a no-op.
func (s *Service) SetStatus(ctx context.Context, kind Kind, id uuid.UUID, newStatus Status, outcome Outcome, actorID string) (*Appointment, error) {
	ctx, span := s.tracer.Start(ctx, "appointment.set_status", trace.WithAttributes(
		attribute.String("appointment.kind", string(kind)),
		attribute.String("appointment.new_status", string(newStatus)),
	))
	defer span.End()

	if !newStatus.Valid() {
		return nil, fmt.Errorf("appointment: unknown status %q", newStatus)
	}

	t := kind.tables()
	var appt *Appointment
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		current, err := s.getForUpdate(ctx, tx, kind, id)
		if err != nil {
			return err
		}

		switch {
		case current.Status == newStatus && newStatus.Terminal():
			// Idempotent re-application of a terminal state with refreshed
			// outcome metadata.
		case current.Status.Terminal():
			return ErrInvalidTransition
		case !CanTransition(current.Status, newStatus):
			return ErrInvalidTransition
		}

		update := fmt.Sprintf(`
			UPDATE %s
			SET status = $2, outcome_code = $3, outcome_notes = $4, updated_by = $5, updated_at = now()
			WHERE id = $1
			RETURNING `+apptColumns, t.appointments, t.ownerColumn)
		appt, err = scanAppointment(tx.QueryRow(ctx, update, id, newStatus, outcome.Code, outcome.Note, actorID), kind)
		if err != nil {
			return err
		}

		return s.mirror(kind).UpdateStatusTx(ctx, tx, appt.OwnerID, outcome.ownerStatusFor(newStatus), outcome.Code, outcome.Note, actorID)
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	s.logger.Info("appointment status updated",
		"kind", kind,
		"appointment_id", id,
		"status", newStatus,
		"outcome_code", outcome.Code,
	)
	return appt, nil
}

// Move transfers an appointment to a new slot. Loading the current
// association and destination, recomputing the UTC span, updating the
// appointment, releasing the old slot and reserving the new one all run in a
// single transaction so occupancy accounting can never be partially applied.
func (s *Service) Move(ctx context.Context, kind Kind, id uuid.UUID, newSlotID uuid.UUID, actorID string) (*Appointment, error) {
	ctx, span := s.tracer.Start(ctx, "appointment.move", trace.WithAttributes(
		attribute.String("appointment.kind", string(kind)),
	))
	defer span.End()

	t := kind.tables()
	var appt *Appointment
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		if _, err := s.getForUpdate(ctx, tx, kind, id); err != nil {
			return err
		}

		// Current primary slot association, if any.
		var oldSlotID *uuid.UUID
		joinQuery := fmt.Sprintf(`
			SELECT timeslot_id
			FROM %s
			WHERE appointment_id = $1 AND is_primary
		`, t.joins)
		var found uuid.UUID
		switch err := tx.QueryRow(ctx, joinQuery, id).Scan(&found); {
		case err == nil:
			oldSlotID = &found
		case errors.Is(err, pgx.ErrNoRows):
		default:
			return fmt.Errorf("appointment: load slot association: %w", err)
		}

		dest, err := s.slots.GetForUpdate(ctx, tx, newSlotID)
		if err != nil {
			return err
		}

		startAt := clock.SlotUTC(dest.Date, dest.StartTime, s.loc)
		endAt := clock.SlotUTC(dest.Date, dest.EndTime, s.loc)

		update := fmt.Sprintf(`
			UPDATE %s
			SET start_at = $2, end_at = $3, updated_by = $4, updated_at = now()
			WHERE id = $1
			RETURNING `+apptColumns, t.appointments, t.ownerColumn)
		appt, err = scanAppointment(tx.QueryRow(ctx, update, id, startAt, endAt, actorID), kind)
		if err != nil {
			return err
		}

		if oldSlotID != nil {
			joinDelete := fmt.Sprintf(`
				DELETE FROM %s
				WHERE appointment_id = $1 AND timeslot_id = $2
			`, t.joins)
			if _, err := tx.Exec(ctx, joinDelete, id, *oldSlotID); err != nil {
				return fmt.Errorf("appointment: delete slot association: %w", err)
			}
			if err := s.slots.Release(ctx, tx, *oldSlotID); err != nil {
				return err
			}
		}

		joinInsert := fmt.Sprintf(`
			INSERT INTO %s (appointment_id, timeslot_id, is_primary)
			VALUES ($1, $2, true)
		`, t.joins)
		if _, err := tx.Exec(ctx, joinInsert, id, dest.ID); err != nil {
			return fmt.Errorf("appointment: insert slot association: %w", err)
		}

		// Moves reflect reality (the person is coming today), so capacity is
		// not re-enforced on the destination.
		if _, err := s.slots.Reserve(ctx, tx, dest.ID, true); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	s.logger.Info("appointment moved",
		"kind", kind,
		"appointment_id", id,
		"new_slot_id", newSlotID,
	)
	return appt, nil
}

// RefreshOutcome overwrites the outcome fields of an already-done appointment
// and re-mirrors the owner, leaving the appointment status untouched. Used by
// the end-of-day pass.
func (s *Service) RefreshOutcome(ctx context.Context, kind Kind, id uuid.UUID, outcome Outcome, actorID string) error {
	t := kind.tables()
	return s.withTx(ctx, func(tx pgx.Tx) error {
		current, err := s.getForUpdate(ctx, tx, kind, id)
		if err != nil {
			return err
		}
		if current.Status != StatusDone {
			return ErrInvalidTransition
		}

		update := fmt.Sprintf(`
			UPDATE %s
			SET outcome_code = $2, outcome_notes = $3, updated_by = $4, updated_at = now()
			WHERE id = $1
		`, t.appointments)
		if _, err := tx.Exec(ctx, update, id, outcome.Code, outcome.Note, actorID); err != nil {
			return fmt.Errorf("appointment: refresh outcome: %w", err)
		}

		return s.mirror(kind).UpdateStatusTx(ctx, tx, current.OwnerID, outcome.ownerStatusFor(StatusDone), outcome.Code, outcome.Note, actorID)
	})
}

// GetByID fetches an appointment.
func (s *Service) GetByID(ctx context.Context, kind Kind, id uuid.UUID) (*Appointment, error) {
	t := kind.tables()
	query := fmt.Sprintf(`SELECT `+apptColumns+` FROM %s WHERE id = $1`, t.ownerColumn, t.appointments)
	return scanAppointment(s.pool.QueryRow(ctx, query, id), kind)
}

// FindByOwnerOnDate returns the owner's latest appointment starting on the
// given local calendar day, regardless of status, or nil when there is none.
func (s *Service) FindByOwnerOnDate(ctx context.Context, kind Kind, ownerID uuid.UUID, date time.Time) (*Appointment, error) {
	t := kind.tables()
	from, to := dayBounds(date)
	query := fmt.Sprintf(`
		SELECT `+apptColumns+`
		FROM %s
		WHERE %s = $1 AND start_at >= $2 AND start_at < $3
		ORDER BY created_at DESC
		LIMIT 1
	`, t.ownerColumn, t.appointments, t.ownerColumn)
	appt, err := scanAppointment(s.pool.QueryRow(ctx, query, ownerID, from, to), kind)
	if errors.Is(err, ErrAppointmentNotFound) {
		return nil, nil
	}
	return appt, err
}

// FindOpenByOwner returns the owner's earliest upcoming appointment on any
// date, or nil.
func (s *Service) FindOpenByOwner(ctx context.Context, kind Kind, ownerID uuid.UUID) (*Appointment, error) {
	t := kind.tables()
	query := fmt.Sprintf(`
		SELECT `+apptColumns+`
		FROM %s
		WHERE %s = $1 AND status = $2
		ORDER BY start_at
		LIMIT 1
	`, t.ownerColumn, t.appointments, t.ownerColumn)
	appt, err := scanAppointment(s.pool.QueryRow(ctx, query, ownerID, StatusUpcoming), kind)
	if errors.Is(err, ErrAppointmentNotFound) {
		return nil, nil
	}
	return appt, err
}

// ListUnresolvedBefore returns upcoming appointments whose start time is at
// or before cutoff, for the elapsed-time threshold sweep.
func (s *Service) ListUnresolvedBefore(ctx context.Context, kind Kind, cutoff time.Time) ([]Appointment, error) {
	t := kind.tables()
	query := fmt.Sprintf(`
		SELECT `+apptColumns+`
		FROM %s
		WHERE status = $1 AND start_at <= $2
		ORDER BY start_at
	`, t.ownerColumn, t.appointments)
	return s.listAppointments(ctx, kind, query, StatusUpcoming, cutoff)
}

// ListByStatusOnDate returns appointments in the given status starting on the
// given local calendar day, for the end-of-day scan.
func (s *Service) ListByStatusOnDate(ctx context.Context, kind Kind, status Status, date time.Time) ([]Appointment, error) {
	t := kind.tables()
	from, to := dayBounds(date)
	query := fmt.Sprintf(`
		SELECT `+apptColumns+`
		FROM %s
		WHERE status = $1 AND start_at >= $2 AND start_at < $3
		ORDER BY start_at
	`, t.ownerColumn, t.appointments)
	return s.listAppointments(ctx, kind, query, status, from, to)
}

// CountByStatusOnDate aggregates appointment statuses for one local calendar
// day, for the dashboard funnel.
func (s *Service) CountByStatusOnDate(ctx context.Context, kind Kind, date time.Time) (map[string]int, error) {
	t := kind.tables()
	from, to := dayBounds(date)
	query := fmt.Sprintf(`
		SELECT status, count(*)
		FROM %s
		WHERE start_at >= $1 AND start_at < $2
		GROUP BY status
	`, t.appointments)
	rows, err := s.pool.Query(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("appointment: count by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("appointment: scan count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func (s *Service) listAppointments(ctx context.Context, kind Kind, query string, args ...any) ([]Appointment, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("appointment: list: %w", err)
	}
	defer rows.Close()

	var out []Appointment
	for rows.Next() {
		appt, err := scanAppointmentRow(rows, kind)
		if err != nil {
			return nil, err
		}
		out = append(out, *appt)
	}
	return out, rows.Err()
}

func (s *Service) getForUpdate(ctx context.Context, tx pgx.Tx, kind Kind, id uuid.UUID) (*Appointment, error) {
	t := kind.tables()
	query := fmt.Sprintf(`
		SELECT `+apptColumns+`
		FROM %s
		WHERE id = $1
		FOR UPDATE
	`, t.ownerColumn, t.appointments)
	return scanAppointment(tx.QueryRow(ctx, query, id), kind)
}

func dayBounds(date time.Time) (time.Time, time.Time) {
	return date.UTC(), date.AddDate(0, 0, 1).UTC()
}

func scanAppointment(row pgx.Row, kind Kind) (*Appointment, error) {
	appt, err := scanAppointmentRow(row, kind)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}
	return appt, nil
}

func scanAppointmentRow(row pgx.Row, kind Kind) (*Appointment, error) {
	var appt Appointment
	if err := row.Scan(
		&appt.ID,
		&appt.OwnerID,
		&appt.Status,
		&appt.StartAt,
		&appt.EndAt,
		&appt.Notes,
		&appt.OutcomeCode,
		&appt.OutcomeNotes,
		&appt.CreatedBy,
		&appt.UpdatedBy,
		&appt.CreatedAt,
		&appt.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("appointment: scan appointment: %w", err)
	}
	appt.Kind = kind
	return &appt, nil
}
