package appointment

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrAppointmentNotFound indicates the requested appointment does not exist.
var ErrAppointmentNotFound = errors.New("appointment: appointment not found")

// Kind selects one of the two parallel appointment aggregates: prospect
// appointments owned by leads, and customer appointments owned by borrowers.
type Kind string

const (
	KindLead     Kind = "lead"
	KindBorrower Kind = "borrower"
)

// Valid reports whether k names a known aggregate.
func (k Kind) Valid() bool {
	return k == KindLead || k == KindBorrower
}

// tableSet holds the table triple backing one aggregate.
type tableSet struct {
	appointments string
	joins        string
	ownerColumn  string
}

func (k Kind) tables() tableSet {
	if k == KindBorrower {
		return tableSet{
			appointments: "borrower_appointments",
			joins:        "borrower_appointment_timeslots",
			ownerColumn:  "borrower_id",
		}
	}
	return tableSet{
		appointments: "appointments",
		joins:        "appointment_timeslots",
		ownerColumn:  "lead_id",
	}
}

// Appointment is one booked visit. StartAt/EndAt always equal the span of the
// primary timeslot association, stored in UTC; moving slots and moving times
// are the same operation.
type Appointment struct {
	ID           uuid.UUID `json:"id"`
	Kind         Kind      `json:"kind"`
	OwnerID      uuid.UUID `json:"owner_id"`
	Status       Status    `json:"status"`
	StartAt      time.Time `json:"start_at"`
	EndAt        time.Time `json:"end_at"`
	Notes        string    `json:"notes,omitempty"`
	OutcomeCode  string    `json:"outcome_code,omitempty"`
	OutcomeNotes string    `json:"outcome_notes,omitempty"`
	CreatedBy    string    `json:"created_by,omitempty"`
	UpdatedBy    string    `json:"updated_by,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// CreateParams describes a new appointment booking.
type CreateParams struct {
	Kind          Kind
	OwnerID       uuid.UUID
	SlotID        uuid.UUID
	Status        Status
	Notes         string
	Outcome       Outcome
	AllowOverbook bool
	ActorID       string
}
