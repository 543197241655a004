package appointment

import "errors"

// ErrInvalidTransition indicates an attempt to move an appointment out of a
// terminal state, or an otherwise undefined transition.
var ErrInvalidTransition = errors.New("appointment: invalid status transition")

// Status is the appointment lifecycle state.
type Status string

const (
	StatusUpcoming  Status = "upcoming"
	StatusDone      Status = "done"
	StatusMissed    Status = "missed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the status permits no further transitions.
func (s Status) Terminal() bool {
	switch s {
	case StatusDone, StatusMissed, StatusCancelled:
		return true
	}
	return false
}

// Valid reports whether s is a known appointment status.
func (s Status) Valid() bool {
	switch s {
	case StatusUpcoming, StatusDone, StatusMissed, StatusCancelled:
		return true
	}
	return false
}

// CanTransition reports whether from → to is a permitted transition. The only
// legal moves are upcoming → done/missed/cancelled.
func CanTransition(from, to Status) bool {
	return from == StatusUpcoming && to.Terminal()
}

// Owner status values form a superset of appointment statuses: owners carry
// additional non-appointment states set by agents. The "missed/RS" value is
// shared by the RS code path and the time-threshold no-show path; the two are
// deliberately not distinguished in the owner record.
const (
	OwnerStatusNew         = "new"
	OwnerStatusUpcoming    = "upcoming"
	OwnerStatusDone        = "done"
	OwnerStatusMissedRS    = "missed/RS"
	OwnerStatusCancelled   = "cancelled"
	OwnerStatusFollowUp    = "follow_up"
	OwnerStatusGivenUp     = "given_up"
	OwnerStatusBlacklisted = "blacklisted"
)

// Outcome carries the externally reported result applied alongside a status
// transition. OwnerStatus overrides the default owner mirror value when the
// owner-level state differs from the appointment-level one (the RS path).
type Outcome struct {
	Code        string `json:"code"`
	Note        string `json:"note"`
	OwnerStatus string `json:"owner_status,omitempty"`
}

// ownerStatusFor resolves the owner mirror value for a transition.
func (o Outcome) ownerStatusFor(status Status) string {
	if o.OwnerStatus != "" {
		return o.OwnerStatus
	}
	return string(status)
}
