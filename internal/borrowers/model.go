package borrowers

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrBorrowerNotFound indicates the requested borrower does not exist.
var ErrBorrowerNotFound = errors.New("borrowers: borrower not found")

// Borrower is an existing customer with an active or past loan. Like leads,
// its status and outcome fields mirror the borrower's appointment lifecycle
// and are written only through the appointment status path.
type Borrower struct {
	ID              uuid.UUID `json:"id"`
	FullName        string    `json:"full_name"`
	Phone           string    `json:"phone"`
	Email           string    `json:"email,omitempty"`
	LoanRef         string    `json:"loan_ref,omitempty"`
	Status          string    `json:"status"`
	OutcomeCode     string    `json:"outcome_code,omitempty"`
	OutcomeNotes    string    `json:"outcome_notes,omitempty"`
	AssignedAgentID string    `json:"assigned_agent_id,omitempty"`
	CreatedBy       string    `json:"created_by,omitempty"`
	UpdatedBy       string    `json:"updated_by,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}
