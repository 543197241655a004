package leads

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrLeadNotFound indicates the requested lead does not exist.
	ErrLeadNotFound = errors.New("leads: lead not found")
	// ErrInvalidLead indicates a create request missing required fields.
	ErrInvalidLead = errors.New("leads: name or phone required")
)

// Lead is a prospective customer. Status, outcome code and outcome notes are
// denormalized mirrors of the lead's appointment lifecycle and are only ever
// written through the appointment status path.
type Lead struct {
	ID              uuid.UUID `json:"id"`
	FullName        string    `json:"full_name"`
	Phone           string    `json:"phone"`
	Email           string    `json:"email,omitempty"`
	Source          string    `json:"source,omitempty"`
	Status          string    `json:"status"`
	OutcomeCode     string    `json:"outcome_code,omitempty"`
	OutcomeNotes    string    `json:"outcome_notes,omitempty"`
	AssignedAgentID string    `json:"assigned_agent_id,omitempty"`
	CreatedBy       string    `json:"created_by,omitempty"`
	UpdatedBy       string    `json:"updated_by,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// CreateParams carries the fields needed to register a new lead.
type CreateParams struct {
	FullName string `json:"full_name"`
	Phone    string `json:"phone"`
	Email    string `json:"email"`
	Source   string `json:"source"`
	Status   string `json:"status"`
	ActorID  string `json:"-"`
}

// Validate checks the create request.
func (p *CreateParams) Validate() error {
	if strings.TrimSpace(p.FullName) == "" && strings.TrimSpace(p.Phone) == "" {
		return ErrInvalidLead
	}
	return nil
}
