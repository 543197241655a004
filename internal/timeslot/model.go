package timeslot

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors for reservation outcomes. CapacityExceeded is non-fatal;
// the caller decides whether to retry with the overbook override.
var (
	ErrSlotNotFound     = errors.New("timeslot: slot not found")
	ErrCapacityExceeded = errors.New("timeslot: capacity exceeded")
)

// Timeslot is a bounded calendar interval with a capacity limit. Identity and
// time fields are owned by calendar configuration; only occupied_count is
// mutated here, and it never goes below zero. Overbooking past MaxCapacity is
// permitted when the caller explicitly asks for it.
type Timeslot struct {
	ID            uuid.UUID `json:"id"`
	Date          time.Time `json:"date"`
	StartTime     string    `json:"start_time"`
	EndTime       string    `json:"end_time"`
	MaxCapacity   int       `json:"max_capacity"`
	OccupiedCount int       `json:"occupied_count"`
	Disabled      bool      `json:"disabled"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Full reports whether the slot is at or past its advisory capacity.
func (t *Timeslot) Full() bool {
	return t.OccupiedCount >= t.MaxCapacity
}
